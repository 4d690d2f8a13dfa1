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
	"sort"
	"strings"
	"sync"
)

// minSecretLength keeps short values such as "1" or "yes" from being
// masked everywhere they appear.
const minSecretLength = 6

// secretSuffixes mark environment variables whose values are secrets.
var secretSuffixes = []string{"_TOKEN", "_SECRET", "_KEY", "_PASSWORD", "_PASS", "_PWD"}

// Masker replaces known secret values in text with "***". It is used to
// scrub error messages and step output before they are written to the run
// history. A nil Masker masks nothing. Safe for concurrent use.
type Masker struct {
	mu      sync.RWMutex
	secrets map[string]bool
	ordered []string
}

// NewMasker creates an empty masker.
func NewMasker() *Masker {
	return &Masker{secrets: make(map[string]bool)}
}

// AddSecret registers a value to be masked. Values shorter than six
// characters are ignored.
func (m *Masker) AddSecret(value string) {
	if m == nil || len(value) < minSecretLength {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.secrets[value] {
		return
	}
	m.secrets[value] = true
	m.ordered = append(m.ordered, value)
	// Longest first so a secret containing another is replaced whole.
	sort.Slice(m.ordered, func(i, j int) bool { return len(m.ordered[i]) > len(m.ordered[j]) })
}

// AddSecretsFromEnv registers the values of variables in environ, given
// as KEY=VALUE pairs like os.Environ, whose names end in a secret suffix
// such as _KEY or _TOKEN.
func (m *Masker) AddSecretsFromEnv(environ []string) {
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if ok && IsSecretName(key) {
			m.AddSecret(value)
		}
	}
}

// IsSecretName reports whether an environment variable name looks like it
// holds a secret.
func IsSecretName(name string) bool {
	upper := strings.ToUpper(name)
	for _, suffix := range secretSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

// Mask replaces every registered secret in s with "***".
func (m *Masker) Mask(s string) string {
	if m == nil || s == "" {
		return s
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, secret := range m.ordered {
		if strings.Contains(s, secret) {
			s = strings.ReplaceAll(s, secret, "***")
		}
	}
	return s
}
