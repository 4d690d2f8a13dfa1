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
	"strings"
)

var (
	// ErrSecretNotFound is returned when a secret key does not exist in the backend.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrBackendUnavailable is returned when a backend cannot be used in the current environment.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrReadOnlyBackend is returned when attempting to modify a read-only backend.
	ErrReadOnlyBackend = errors.New("backend is read-only")
)

// SecretBackend stores and retrieves secrets by key.
type SecretBackend interface {
	// Name returns the backend identifier (e.g., "keychain", "env").
	Name() string

	// Get retrieves a secret by key. Returns ErrSecretNotFound if not present.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a secret. Returns ErrReadOnlyBackend if not supported.
	Set(ctx context.Context, key string, value string) error

	// Delete removes a secret. Returns ErrSecretNotFound if not present.
	// Returns ErrReadOnlyBackend if not supported.
	Delete(ctx context.Context, key string) error

	// Available returns true if this backend is usable in the current environment.
	Available() bool

	// Priority returns the resolution priority (higher = checked first).
	Priority() int
}

// ReadOnlyBackend is implemented by backends that never accept writes.
type ReadOnlyBackend interface {
	SecretBackend
	ReadOnly() bool
}

func writable(b SecretBackend) bool {
	ro, ok := b.(ReadOnlyBackend)
	return !ok || !ro.ReadOnly()
}

// Secret keys for http saver credentials.
const (
	UploadToken        = "providers/http/token"
	UploadClientSecret = "providers/http/client_secret"
)

// APIKey returns the secret key under which a provider's API key is stored.
func APIKey(provider string) string {
	return "providers/" + provider + "/api_key"
}

// NormalizeKey trims arg and expands a bare provider name such as "OpenAI"
// to its API key. Hierarchical keys must not contain empty, "." or ".."
// segments.
func NormalizeKey(arg string) (string, error) {
	key := strings.TrimSpace(arg)
	if key == "" {
		return "", errors.New("secret key cannot be empty")
	}
	if !strings.Contains(key, "/") {
		return APIKey(strings.ToLower(key)), nil
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("invalid secret key %q: empty or relative path segment", key)
		}
	}
	return key, nil
}
