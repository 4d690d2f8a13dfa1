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

package completion

import (
	"github.com/spf13/cobra"
)

func fixed(values ...string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
			return append([]string(nil), values...), cobra.ShellCompDirectiveNoFileComp
		})
	}
}

// CompleteRunStatus provides completion for --status flag values.
var CompleteRunStatus = fixed(
	"running\tRun has not finished",
	"succeeded\tEvery step completed",
	"partial\tSome steps failed or were skipped",
	"failed\tNo step completed",
	"cancelled\tRun was interrupted",
)

// CompleteModes provides completion for --mode flag values.
var CompleteModes = fixed(
	"waves\tRun independent steps in parallel, stop on the first error",
	"progressive\tRun steps one at a time, skip dependents of failed steps",
)

// CompleteTraceExporters provides completion for --trace flag values.
var CompleteTraceExporters = fixed(
	"console\tPrint spans to stderr",
	"otlp\tOTLP over gRPC",
	"otlp-http\tOTLP over HTTP",
)

// CompleteSecretsBackend provides completion for --backend flag values.
var CompleteSecretsBackend = fixed(
	"env\tEnvironment variables (read-only)",
	"keychain\tSystem keychain",
)
