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
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"

	pferrors "github.com/tombee/pixelflow/pkg/errors"
)

// JSONVersion is the envelope version emitted with every JSON response.
const JSONVersion = "1.0"

// JSONResponse is the base envelope for all JSON output
type JSONResponse struct {
	Version string `json:"@version"`
	Command string `json:"command"`
	Success bool   `json:"success"`
}

// NewJSONResponse returns an envelope for command.
func NewJSONResponse(command string, success bool) JSONResponse {
	return JSONResponse{Version: JSONVersion, Command: command, Success: success}
}

// JSONError represents a structured error with code, message and suggestion
type JSONError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	StepID     string `json:"step_id,omitempty"`
}

// emitJSON marshals a response to JSON and writes it to w
func emitJSON(w io.Writer, response interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// EmitJSON writes response to stdout.
func EmitJSON(response interface{}) error {
	return emitJSON(os.Stdout, response)
}

// EmitJSONTo writes response to w.
func EmitJSONTo(w io.Writer, response interface{}) error {
	return emitJSON(w, response)
}

// EmitJSONError writes a failed envelope carrying errs to w.
func EmitJSONError(w io.Writer, command string, errs []JSONError) error {
	type errorResponse struct {
		JSONResponse
		Errors []JSONError `json:"errors"`
	}

	return emitJSON(w, errorResponse{
		JSONResponse: NewJSONResponse(command, false),
		Errors:       errs,
	})
}

// JSONErrorFrom converts err into a JSONError, classifying it by kind.
func JSONErrorFrom(err error) JSONError {
	return JSONError{
		Code:       errorCode(err),
		Message:    err.Error(),
		Suggestion: Suggestion(err),
	}
}

func errorCode(err error) string {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Cause == nil {
		switch exitErr.Code {
		case ExitPartial:
			return "RUN_PARTIAL"
		case ExitCancelled:
			return "RUN_CANCELLED"
		}
	}
	return strings.ToUpper(string(pferrors.KindOf(err)))
}
