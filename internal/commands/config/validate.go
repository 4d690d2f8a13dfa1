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

package config

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tombee/pixelflow/internal/commands/shared"
	"github.com/tombee/pixelflow/internal/config"
)

// ValidationResult represents the result of config validation.
type ValidationResult struct {
	Path     string   `json:"path"`
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// NewValidateCommand creates the 'config validate' subcommand.
func NewValidateCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Long: `Validate the configuration file and environment overrides.

Checks performed:
  - YAML syntax and structure
  - Log level and format
  - Engine mode and concurrency
  - History path
  - OpenAI provider limits
  - Observability exporters

With --strict, warnings are treated as errors.`,
		Example: `  # Validate configuration
  pixelflow config validate

  # Validate with warnings as errors
  pixelflow config validate --strict

  # Get validation result as JSON
  pixelflow config validate --json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, strict)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")

	return cmd
}

func runValidate(cmd *cobra.Command, strict bool) error {
	path, exists, err := configPath()
	if err != nil {
		return err
	}

	result := ValidationResult{Path: path, Valid: true}
	if !exists {
		result.Warnings = append(result.Warnings, "No config file found; defaults and environment are in use")
		path = ""
	}

	cfg, err := config.Load(path)
	if err != nil {
		result.Valid = false
		result.Errors = problems(err)
	} else {
		result.Warnings = append(result.Warnings, warnings(cfg, exists)...)
	}

	return outputValidationResult(cmd.OutOrStdout(), result, strict)
}

// warnings flags settings that load but are probably not intended.
func warnings(cfg *config.Config, fromFile bool) []string {
	var out []string
	if fromFile && cfg.Providers.OpenAI.APIKey != "" {
		out = append(out, "providers.openai.api_key is set; prefer OPENAI_API_KEY or 'pixelflow secrets set openai'")
	}
	if fromFile && (cfg.Providers.HTTP.Auth.Token != "" || cfg.Providers.HTTP.Auth.ClientSecret != "") {
		out = append(out, "providers.http.auth carries a credential; prefer 'pixelflow secrets set providers/http/...'")
	}
	if !cfg.History.Enabled {
		out = append(out, "history is disabled; runs will not be recorded")
	}
	if cfg.Providers.OpenAI.RateLimit > 0 && cfg.Providers.OpenAI.Burst == 0 {
		out = append(out, "providers.openai.rate_limit is set without burst; a burst of 1 is used")
	}
	return out
}

// outputValidationResult prints the result and returns an exit error when
// it failed.
func outputValidationResult(w io.Writer, result ValidationResult, strict bool) error {
	failed := !result.Valid || (strict && len(result.Warnings) > 0)

	if shared.GetJSON() {
		if err := shared.EmitJSONTo(w, struct {
			shared.JSONResponse
			ValidationResult
		}{
			JSONResponse:     shared.NewJSONResponse("config validate", !failed),
			ValidationResult: result,
		}); err != nil {
			return err
		}
	} else {
		if result.Valid {
			fmt.Fprintln(w, shared.RenderOK("Configuration is valid"))
		} else {
			fmt.Fprintln(w, shared.RenderError("Configuration validation failed"))
		}
		fmt.Fprintln(w)

		if len(result.Errors) > 0 {
			fmt.Fprintln(w, shared.Header.Render("Errors:"))
			for _, err := range result.Errors {
				fmt.Fprintf(w, "  %s %s\n", shared.StatusError.Render(shared.SymbolError), err)
			}
			fmt.Fprintln(w)
		}

		if len(result.Warnings) > 0 {
			fmt.Fprintln(w, shared.Header.Render("Warnings:"))
			for _, warn := range result.Warnings {
				fmt.Fprintf(w, "  %s %s\n", shared.StatusWarn.Render(shared.SymbolWarn), warn)
			}
			fmt.Fprintln(w)
		}

		if result.Valid && len(result.Warnings) == 0 {
			fmt.Fprintln(w, "No issues found.")
		}
	}

	switch {
	case !result.Valid:
		return &shared.ExitError{Code: shared.ExitInvalidPipeline}
	case failed:
		msg := "validation failed (strict mode: warnings treated as errors)"
		if shared.GetJSON() {
			msg = ""
		}
		return &shared.ExitError{Code: shared.ExitInvalidPipeline, Message: msg}
	}
	return nil
}
