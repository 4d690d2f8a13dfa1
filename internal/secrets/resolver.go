// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package secrets

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Resolver queries a chain of SecretBackends in priority order.
type Resolver struct {
	backends []SecretBackend
}

// NewResolver creates a resolver over the available backends, sorted by
// priority (highest first).
func NewResolver(backends ...SecretBackend) *Resolver {
	available := make([]SecretBackend, 0, len(backends))
	for _, b := range backends {
		if b.Available() {
			available = append(available, b)
		}
	}
	slices.SortStableFunc(available, func(a, b SecretBackend) int {
		return b.Priority() - a.Priority()
	})
	return &Resolver{backends: available}
}

// NewDefaultResolver returns the environment and keychain backends.
func NewDefaultResolver() *Resolver {
	return NewResolver(NewEnvBackend(), NewKeychainBackend())
}

// Get retrieves a secret from the first backend that holds it.
func (r *Resolver) Get(ctx context.Context, key string) (string, error) {
	value, _, err := r.Lookup(ctx, key)
	return value, err
}

// Lookup returns the secret and the name of the backend that held it.
// A backend failure other than not-found is reported only when no later
// backend has the key.
func (r *Resolver) Lookup(ctx context.Context, key string) (string, string, error) {
	if len(r.backends) == 0 {
		return "", "", fmt.Errorf("%w: no available backends", ErrBackendUnavailable)
	}

	var lastErr error
	for _, backend := range r.backends {
		value, err := backend.Get(ctx, key)
		if err == nil {
			return value, backend.Name(), nil
		}
		if !errors.Is(err, ErrSecretNotFound) {
			lastErr = err
		}
	}
	if lastErr != nil {
		return "", "", fmt.Errorf("failed to get secret %q: %w", key, lastErr)
	}
	return "", "", fmt.Errorf("%w: %q", ErrSecretNotFound, key)
}

// Set stores a secret in the named backend, or in the highest-priority
// writable backend when backendName is empty.
func (r *Resolver) Set(ctx context.Context, key, value, backendName string) error {
	targets, err := r.writable(backendName)
	if err != nil {
		return err
	}
	for _, backend := range targets {
		err := backend.Set(ctx, key, value)
		if errors.Is(err, ErrReadOnlyBackend) && backendName == "" {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to set secret in %s: %w", backend.Name(), err)
		}
		return nil
	}
	return errors.New("no writable backend available")
}

// Delete removes a secret from the named backend, or from every writable
// backend that holds it when backendName is empty.
func (r *Resolver) Delete(ctx context.Context, key, backendName string) error {
	targets, err := r.writable(backendName)
	if err != nil {
		return err
	}
	deleted := false
	for _, backend := range targets {
		err := backend.Delete(ctx, key)
		if backendName == "" && (errors.Is(err, ErrSecretNotFound) || errors.Is(err, ErrReadOnlyBackend)) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to delete secret from %s: %w", backend.Name(), err)
		}
		deleted = true
	}
	if !deleted {
		return fmt.Errorf("%w: %q", ErrSecretNotFound, key)
	}
	return nil
}

// writable returns the backends a write should target: only the named one
// when backendName is set, else every backend not marked read-only.
func (r *Resolver) writable(backendName string) ([]SecretBackend, error) {
	if len(r.backends) == 0 {
		return nil, fmt.Errorf("%w: no available backends", ErrBackendUnavailable)
	}
	if backendName != "" {
		for _, backend := range r.backends {
			if backend.Name() == backendName {
				return []SecretBackend{backend}, nil
			}
		}
		return nil, fmt.Errorf("backend %q not found or unavailable", backendName)
	}
	var out []SecretBackend
	for _, backend := range r.backends {
		if writable(backend) {
			out = append(out, backend)
		}
	}
	return out, nil
}

// Backends returns the list of available backends in priority order.
func (r *Resolver) Backends() []SecretBackend {
	return r.backends
}
