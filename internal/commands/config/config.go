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

// Package config implements the config command: showing, locating and
// validating the pixelflow configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tombee/pixelflow/internal/commands/shared"
	"github.com/tombee/pixelflow/internal/config"
	"github.com/tombee/pixelflow/internal/tracing"
)

// NewConfigCommand creates the config command with subcommands
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use: "config",
		Annotations: map[string]string{
			"group": "configuration",
		},
		Short: "View and validate configuration",
		Long: `View and validate pixelflow configuration.

Subcommands:
  show     - Display the effective configuration
  path     - Show config file location
  validate - Check the configuration file`,
	}

	show := newConfigShowCommand()
	cmd.AddCommand(show)
	cmd.AddCommand(newConfigPathCommand())
	cmd.AddCommand(NewValidateCommand())

	// If no subcommand provided, default to 'show'
	cmd.RunE = show.RunE

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Long: `Display the effective configuration: defaults, then the config file,
then environment overrides.

API keys are masked. Use --json for machine-readable output.`,
		Args: cobra.NoArgs,
		RunE: runConfigShow,
	}
}

func newConfigPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show config file location",
		Long:  `Display the path to the configuration file.`,
		Args:  cobra.NoArgs,
		RunE:  runConfigPath,
	}
}

// configPath returns --config or the default location, and whether the
// file exists.
func configPath() (string, bool, error) {
	path := shared.GetConfigPath()
	if path == "" {
		var err error
		path, err = config.ConfigPath()
		if err != nil {
			return "", false, fmt.Errorf("failed to determine config path: %w", err)
		}
	}
	_, err := os.Stat(path)
	return path, err == nil, nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	path, exists, err := configPath()
	if err != nil {
		return err
	}

	source := path
	if !exists {
		source = ""
	}
	cfg, err := config.Load(source)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	masked := maskSensitiveConfig(cfg)
	out := cmd.OutOrStdout()

	if shared.GetJSON() {
		doc, err := toMap(masked)
		if err != nil {
			return err
		}
		return shared.EmitJSONTo(out, struct {
			shared.JSONResponse
			Path   string         `json:"path"`
			Exists bool           `json:"exists"`
			Config map[string]any `json:"config"`
		}{
			JSONResponse: shared.NewJSONResponse("config show", true),
			Path:         path,
			Exists:       exists,
			Config:       doc,
		})
	}

	header := "Configuration: " + path
	if !exists {
		header += " " + shared.Muted.Render("(not found, showing defaults)")
	}
	fmt.Fprintln(out, header)
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintln(out)
	return writeYAML(out, masked)
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	path, _, err := configPath()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

// maskSensitiveConfig creates a copy of config with sensitive values masked
func maskSensitiveConfig(cfg *config.Config) *config.Config {
	masked := *cfg
	masked.Providers.OpenAI.APIKey = maskAPIKey(cfg.Providers.OpenAI.APIKey)
	masked.Providers.HTTP.Auth.Token = maskAPIKey(cfg.Providers.HTTP.Auth.Token)
	masked.Providers.HTTP.Auth.ClientSecret = maskAPIKey(cfg.Providers.HTTP.Auth.ClientSecret)

	// Exporter headers usually carry auth tokens.
	masked.Observability.Exporters = make([]tracing.ExporterConfig, len(cfg.Observability.Exporters))
	for i, exp := range cfg.Observability.Exporters {
		if len(exp.Headers) > 0 {
			headers := make(map[string]string, len(exp.Headers))
			for k, v := range exp.Headers {
				headers[k] = maskAPIKey(v)
			}
			exp.Headers = headers
		}
		masked.Observability.Exporters[i] = exp
	}
	return &masked
}

// maskAPIKey masks an API key for display
func maskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

func writeYAML(w io.Writer, cfg *config.Config) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return encoder.Close()
}

// toMap round-trips cfg through YAML so JSON output uses the same keys as
// the config file.
func toMap(cfg *config.Config) (map[string]any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return doc, nil
}

// problems splits a configuration error into its individual messages.
func problems(err error) []string {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if parts := strings.Split(e.Error(), "\n  - "); len(parts) > 1 {
			return parts[1:]
		}
	}
	if cause := errors.Unwrap(err); cause != nil {
		return []string{err.Error() + ": " + cause.Error()}
	}
	return []string{err.Error()}
}
