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

package shared

import (
	"errors"
	"fmt"
	"io"
	"os"

	pferrors "github.com/tombee/pixelflow/pkg/errors"
	"github.com/tombee/pixelflow/pkg/pipeline"
)

// Exit codes for pixelflow commands
const (
	ExitSuccess         = 0
	ExitExecutionFailed = 1
	ExitInvalidPipeline = 2
	ExitPartial         = 3
	ExitProviderError   = 4
	ExitCancelled       = 130 // 128 + SIGINT
)

// ExitCodeInfo documents one exit code for `pixelflow help exit-codes`.
type ExitCodeInfo struct {
	Code    int    `json:"code"`
	Name    string `json:"name"`
	Meaning string `json:"meaning"`
}

// ExitCodes lists every exit code pixelflow returns.
var ExitCodes = []ExitCodeInfo{
	{ExitSuccess, "success", "every step completed"},
	{ExitExecutionFailed, "failed", "a step failed in wave mode, or no step completed"},
	{ExitInvalidPipeline, "invalid", "the definition failed to load, validate or plan"},
	{ExitPartial, "partial", "some steps completed and some failed or were skipped"},
	{ExitProviderError, "provider", "a provider was missing or misconfigured"},
	{ExitCancelled, "cancelled", "the run was interrupted"},
}

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewExecutionError creates an error for pipeline execution failures
func NewExecutionError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitExecutionFailed,
		Message: msg,
		Cause:   cause,
	}
}

// NewInvalidPipelineError creates an error for definitions that fail to
// load, parse or plan
func NewInvalidPipelineError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitInvalidPipeline,
		Message: msg,
		Cause:   cause,
	}
}

// NewProviderError creates an error for provider-related failures
func NewProviderError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitProviderError,
		Message: msg,
		Cause:   cause,
	}
}

// ExitForRun maps a finished run's status to an error, or nil on success.
func ExitForRun(status pipeline.RunStatus, failed int) error {
	switch status {
	case pipeline.RunSucceeded:
		return nil
	case pipeline.RunPartial:
		return &ExitError{Code: ExitPartial, Message: fmt.Sprintf("%d step(s) failed", failed)}
	case pipeline.RunCancelled:
		return &ExitError{Code: ExitCancelled, Message: "run cancelled"}
	default:
		return &ExitError{Code: ExitExecutionFailed, Message: "run failed"}
	}
}

// HandleExitError prints err and exits with its code.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	code := PrintError(os.Stderr, err)
	os.Exit(code)
}

// PrintError writes err and any suggestion to w and returns the exit code.
func PrintError(w io.Writer, err error) int {
	code := ExitExecutionFailed

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.Code
	}

	if msg := err.Error(); msg != "" {
		fmt.Fprintln(w, "Error:", msg)
	}
	if suggestion := Suggestion(err); suggestion != "" {
		fmt.Fprintf(w, "\nSuggestion: %s\n", suggestion)
	}
	return code
}

// Suggestion returns the first remediation hint found in err's chain.
func Suggestion(err error) string {
	if hint := pferrors.Hint(err); hint != "" {
		return hint
	}
	var notFound *pferrors.NotFoundError
	if errors.As(err, &notFound) && notFound.Resource == "run" {
		return "list recent runs with 'pixelflow history list'"
	}
	return ""
}
