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

package prompt

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// ValidateString validates a string input.
// Rejects null bytes, control characters, and oversized inputs.
func ValidateString(input string) error {
	if len(input) > MaxInputSize {
		return fmt.Errorf("input exceeds maximum size of %d bytes", MaxInputSize)
	}

	for i, r := range input {
		if r == 0 {
			return fmt.Errorf("input contains null byte at position %d", i)
		}
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return fmt.Errorf("input contains invalid control character at position %d", i)
		}
	}

	return nil
}

// ValidateChoice checks that choice is one of options.
func ValidateChoice(choice string, options []string) error {
	if !slices.Contains(options, choice) {
		return fmt.Errorf("%q is not one of: %s", choice, strings.Join(options, ", "))
	}
	return nil
}

// ValidateSecret validates a secret value. Secrets are single-line and
// must not be blank.
func ValidateSecret(input string) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("value is empty")
	}
	if strings.ContainsAny(input, "\r\n") {
		return fmt.Errorf("value must be a single line")
	}
	return ValidateString(input)
}
