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

	"github.com/zalando/go-keyring"
)

const (
	// KeychainBackendPriority is the priority for keychain backend.
	KeychainBackendPriority = 50

	// DefaultKeychainService is the service name pixelflow entries are stored under.
	DefaultKeychainService = "pixelflow"
)

// KeychainBackend stores secrets in the system keychain: macOS Keychain,
// the Linux Secret Service (GNOME Keyring, KWallet) or the Windows
// Credential Manager.
type KeychainBackend struct {
	service   string
	available bool
}

// NewKeychainBackend creates a keychain backend for DefaultKeychainService.
func NewKeychainBackend() *KeychainBackend {
	return NewKeychainBackendForService(DefaultKeychainService)
}

// NewKeychainBackendForService creates a keychain backend for service.
// It probes the keyring once so a locked or missing keyring is reported
// as unavailable instead of failing every lookup.
func NewKeychainBackendForService(service string) *KeychainBackend {
	k := &KeychainBackend{service: service, available: true}

	_, err := keyring.Get(service, "__pixelflow_availability_probe__")
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		k.available = false
	}
	return k
}

// Name returns the backend identifier.
func (k *KeychainBackend) Name() string {
	return "keychain"
}

// ready fails fast when ctx is done or the probe found no keyring.
func (k *KeychainBackend) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !k.available {
		return fmt.Errorf("%w: keychain service unavailable", ErrBackendUnavailable)
	}
	return nil
}

// Get retrieves a secret from the system keychain.
func (k *KeychainBackend) Get(ctx context.Context, key string) (string, error) {
	if err := k.ready(ctx); err != nil {
		return "", err
	}
	value, err := keyring.Get(k.service, key)
	return value, k.wrap(key, err)
}

// Set stores a secret in the system keychain. Values over the platform
// limit (about 3000 bytes on macOS) fail with ErrBackendUnavailable so the
// caller suggests an environment variable instead.
func (k *KeychainBackend) Set(ctx context.Context, key string, value string) error {
	if err := k.ready(ctx); err != nil {
		return err
	}
	return k.wrap(key, keyring.Set(k.service, key, value))
}

// Delete removes a secret from the system keychain.
func (k *KeychainBackend) Delete(ctx context.Context, key string) error {
	if err := k.ready(ctx); err != nil {
		return err
	}
	return k.wrap(key, keyring.Delete(k.service, key))
}

// Available returns true if the keychain service is accessible.
func (k *KeychainBackend) Available() bool {
	return k.available
}

// Priority returns the backend priority.
func (k *KeychainBackend) Priority() int {
	return KeychainBackendPriority
}

// wrap maps go-keyring errors onto the package sentinels. A nil err stays nil.
func (k *KeychainBackend) wrap(key string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, keyring.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrSecretNotFound, key)
	case errors.Is(err, keyring.ErrSetDataTooBig):
		return fmt.Errorf("%w: value for %s is too large for the keychain", ErrBackendUnavailable, key)
	case isKeychainUnavailableError(err):
		return fmt.Errorf("%w: %s", ErrBackendUnavailable, err.Error())
	default:
		return fmt.Errorf("keychain error: %w", err)
	}
}

// isKeychainUnavailableError reports whether err means the keychain is
// locked or inaccessible. Messages differ by platform.
func isKeychainUnavailableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, indicator := range []string{
		"locked",
		"cannot access",
		"permission denied",
		"failed to unlock",
		"user interaction required",
		"secret service",
		"dbus",
		"user canceled",
	} {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}
