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

package errors

import (
	"errors"
	"fmt"
)

// Wrap prefixes err with message. It returns nil for a nil err.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a formatted prefix.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// Reason returns the kind reported for a failed step. Unclassified errors
// come from providers, so they count as execution failures.
func Reason(err error) Kind {
	kind := KindOf(err)
	if kind == KindUnknown {
		return KindExecution
	}
	return kind
}

// Hint returns the first remediation suggestion carried by an error in
// err's chain, or "" when there is none.
func Hint(err error) string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) && validationErr.Suggestion != "" {
		return validationErr.Suggestion
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) && providerErr.Suggestion != "" {
		return providerErr.Suggestion
	}
	var gateErr *GateRejectedError
	if errors.As(err, &gateErr) {
		return fmt.Sprintf("change the step's parameters or drop gate %q", gateErr.Gate)
	}
	return ""
}
