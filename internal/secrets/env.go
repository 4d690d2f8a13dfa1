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
	"fmt"
	"os"
	"strings"
)

// EnvBackendPriority puts environment variables ahead of every writable
// backend so a shell export always overrides a stored secret.
const EnvBackendPriority = 100

const envSecretPrefix = "PIXELFLOW_SECRET_"

// aliases maps secret keys without an api_key suffix to the conventional
// variable a user would export for them.
var aliases = map[string]string{
	UploadToken:        "PIXELFLOW_UPLOAD_TOKEN",
	UploadClientSecret: "PIXELFLOW_UPLOAD_CLIENT_SECRET",
}

// EnvBackend resolves secrets from environment variables. It is read-only.
type EnvBackend struct {
	lookup func(string) (string, bool)
}

// NewEnvBackend creates a backend over the process environment.
func NewEnvBackend() *EnvBackend {
	return &EnvBackend{lookup: os.LookupEnv}
}

// NewEnvBackendFrom creates a backend over a fixed KEY=VALUE list.
func NewEnvBackendFrom(environ []string) *EnvBackend {
	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	return &EnvBackend{lookup: func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}}
}

func (e *EnvBackend) Name() string { return "env" }

// Get returns the first non-empty variable among EnvNames(key).
func (e *EnvBackend) Get(_ context.Context, key string) (string, error) {
	names := EnvNames(key)
	for _, name := range names {
		if value, ok := e.lookup(name); ok && value != "" {
			return value, nil
		}
	}
	return "", fmt.Errorf("%w: none of %s is set", ErrSecretNotFound, strings.Join(names, ", "))
}

func (e *EnvBackend) Set(context.Context, string, string) error { return ErrReadOnlyBackend }

func (e *EnvBackend) Delete(context.Context, string) error { return ErrReadOnlyBackend }

func (e *EnvBackend) Available() bool { return true }

func (e *EnvBackend) Priority() int { return EnvBackendPriority }

func (e *EnvBackend) ReadOnly() bool { return true }

// EnvNames lists the variables checked for key, most specific first:
//
//	providers/openai/api_key -> PIXELFLOW_SECRET_PROVIDERS_OPENAI_API_KEY, OPENAI_API_KEY
//	providers/http/token     -> PIXELFLOW_SECRET_PROVIDERS_HTTP_TOKEN, PIXELFLOW_UPLOAD_TOKEN
func EnvNames(key string) []string {
	names := []string{envSecretPrefix + envSafe(key)}
	if alias, ok := aliases[key]; ok {
		return append(names, alias)
	}
	parts := strings.Split(key, "/")
	if len(parts) == 3 && parts[0] == "providers" && parts[2] == "api_key" {
		names = append(names, envSafe(parts[1])+"_API_KEY")
	}
	return names
}

func envSafe(s string) string {
	return strings.ToUpper(strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(s))
}
