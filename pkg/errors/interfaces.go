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

import "errors"

// Kind is the coarse error category surfaced by the pipeline engine.
type Kind string

const (
	// KindConfiguration covers unsatisfiable graphs, missing variables, unknown
	// step kinds, unregistered providers, router and collect misconfiguration.
	// Never retryable.
	KindConfiguration Kind = "configuration"

	// KindExecution covers failed provider calls.
	KindExecution Kind = "execution"

	// KindGating covers gate rejections such as content moderation.
	KindGating Kind = "gating"

	// KindUnknown is returned for errors outside the taxonomy.
	KindUnknown Kind = "unknown"
)

// ErrorClassifier defines methods for programmatic error handling.
// Errors that implement this interface can be classified by kind
// for retry decisions and status reporting.
type ErrorClassifier interface {
	error

	// ErrorType returns a string identifying the error category.
	// One of "configuration", "execution", "gating".
	ErrorType() string

	// IsRetryable returns true if the operation may succeed when repeated.
	IsRetryable() bool
}

// KindOf returns the kind of the first classified error in err's chain.
// Unclassified errors from providers are treated as execution failures by
// callers; KindOf itself reports them as KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var classified ErrorClassifier
	if errors.As(err, &classified) {
		return Kind(classified.ErrorType())
	}
	return KindUnknown
}

// IsRetryable reports whether the first classified error in err's chain is
// retryable. Unclassified errors are not retryable.
func IsRetryable(err error) bool {
	var classified ErrorClassifier
	if errors.As(err, &classified) {
		return classified.IsRetryable()
	}
	return false
}
