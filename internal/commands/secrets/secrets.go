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

// Package secrets implements the secrets command: storing, reading and
// removing provider API keys in the secret backends.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tombee/pixelflow/internal/commands/completion"
	"github.com/tombee/pixelflow/internal/cli/prompt"
	"github.com/tombee/pixelflow/internal/commands/shared"
	pflog "github.com/tombee/pixelflow/internal/log"
	"github.com/tombee/pixelflow/internal/secrets"
)

// knownProviders are listed by 'secrets status'.
var knownProviders = []string{"openai"}

// Test seams.
var (
	newResolver = secrets.NewDefaultResolver
	newPrompter = func() prompt.Prompter {
		return prompt.NewSurveyPrompter(term.IsTerminal(int(os.Stdin.Fd())))
	}
	stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
)

// NewCommand creates the secrets command for secret management.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage provider API keys",
		Annotations: map[string]string{
			"group": "configuration",
		},
		Long: `Manage provider API keys.

Secrets are resolved from these backends, highest priority first:
  1. Environment variables (read-only): PIXELFLOW_SECRET_<KEY> or <PROVIDER>_API_KEY
  2. System keychain (macOS Keychain, Linux Secret Service, Windows Credential Manager)

A bare provider name is shorthand for its API key: "openai" means
"providers/openai/api_key". Upload credentials for the http saver live
under "providers/http/token" and "providers/http/client_secret".`,
		Example: `  pixelflow secrets set openai
  echo "sk-..." | pixelflow secrets set openai
  pixelflow secrets get openai
  pixelflow secrets delete openai --yes
  pixelflow secrets set providers/http/client_secret
  pixelflow secrets status`,
	}

	cmd.AddCommand(newSetCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newDeleteCommand())
	cmd.AddCommand(newStatusCommand())

	return cmd
}

func newSetCommand() *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "set <key>",
		Short: "Store a secret",
		Long: `Store a secret in the keychain.

The value is read from standard input when it is not a terminal, otherwise
it is prompted for with hidden input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := secrets.NormalizeKey(args[0])
			if err != nil {
				return err
			}

			value, err := readSecretValue(cmd, key)
			if err != nil {
				return fmt.Errorf("failed to read secret value: %w", err)
			}

			if err := newResolver().Set(cmd.Context(), key, value, backend); err != nil {
				if errors.Is(err, secrets.ErrBackendUnavailable) {
					return fmt.Errorf("%w\n\nSet the environment variable instead: export %s=<value>", err, envName(key))
				}
				return fmt.Errorf("failed to set secret: %w", err)
			}

			if !shared.GetQuiet() {
				fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("Stored %s", key)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&backend, "backend", "", "Target backend (default: first writable)")
	_ = cmd.RegisterFlagCompletionFunc("backend", completion.CompleteSecretsBackend)

	return cmd
}

func newGetCommand() *cobra.Command {
	var unmask bool

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Show a secret and the backend holding it",
		Long: `Show a secret. The value is masked unless --unmask is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := secrets.NormalizeKey(args[0])
			if err != nil {
				return err
			}

			value, backend, err := newResolver().Lookup(cmd.Context(), key)
			if err != nil {
				if errors.Is(err, secrets.ErrSecretNotFound) {
					return fmt.Errorf("secret not found: %q\n\nSet it with: pixelflow secrets set %s", key, args[0])
				}
				return err
			}

			shown := pflog.SanitizeAPIKey(value)
			if unmask {
				shown = value
			}

			if shared.GetJSON() {
				return shared.EmitJSONTo(cmd.OutOrStdout(), struct {
					shared.JSONResponse
					Key     string `json:"key"`
					Backend string `json:"backend"`
					Value   string `json:"value"`
				}{shared.NewJSONResponse("secrets get", true), key, backend, shown})
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", shown, shared.Muted.Render("("+backend+")"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&unmask, "unmask", false, "Show full value (not masked)")

	return cmd
}

func newDeleteCommand() *cobra.Command {
	var (
		backend string
		yes     bool
	)

	cmd := &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := secrets.NormalizeKey(args[0])
			if err != nil {
				return err
			}

			ok, err := prompt.Confirm(cmd.Context(), newPrompter(), fmt.Sprintf("Delete %s?", key), yes)
			if err != nil {
				if errors.Is(err, prompt.ErrNonInteractive) {
					return fmt.Errorf("refusing to delete without confirmation; pass --yes")
				}
				return err
			}
			if !ok {
				return nil
			}

			if err := newResolver().Delete(cmd.Context(), key, backend); err != nil {
				return fmt.Errorf("failed to delete secret: %w", err)
			}

			if !shared.GetQuiet() {
				fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("Deleted %s", key)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&backend, "backend", "", "Delete only from this backend")
	_ = cmd.RegisterFlagCompletionFunc("backend", completion.CompleteSecretsBackend)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")

	return cmd
}

// ProviderStatus reports whether a provider's API key resolves.
type ProviderStatus struct {
	Provider string `json:"provider"`
	Key      string `json:"key"`
	Set      bool   `json:"set"`
	Backend  string `json:"backend,omitempty"`
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show available backends and which provider keys are set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver := newResolver()
			ctx := cmd.Context()

			var backends []string
			for _, b := range resolver.Backends() {
				backends = append(backends, b.Name())
			}

			statuses := providerStatuses(ctx, resolver)

			if shared.GetJSON() {
				return shared.EmitJSONTo(cmd.OutOrStdout(), struct {
					shared.JSONResponse
					Backends  []string         `json:"backends"`
					Providers []ProviderStatus `json:"providers"`
				}{shared.NewJSONResponse("secrets status", true), backends, statuses})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("Backends:"), strings.Join(backends, ", "))
			for _, s := range statuses {
				if s.Set {
					fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("%s %s", s.Provider, shared.Muted.Render("("+s.Backend+")"))))
				} else {
					fmt.Fprintln(out, shared.RenderWarn(fmt.Sprintf("%s not set", s.Provider)))
				}
			}
			return nil
		},
	}
}

func providerStatuses(ctx context.Context, resolver *secrets.Resolver) []ProviderStatus {
	out := make([]ProviderStatus, 0, len(knownProviders))
	for _, p := range knownProviders {
		key := secrets.APIKey(p)
		_, backend, err := resolver.Lookup(ctx, key)
		out = append(out, ProviderStatus{Provider: p, Key: key, Set: err == nil, Backend: backend})
	}
	return out
}

// envName is the variable suggested when the keyring cannot store key.
func envName(key string) string {
	names := secrets.EnvNames(key)
	return names[len(names)-1]
}

func readSecretValue(cmd *cobra.Command, key string) (string, error) {
	if !stdinIsTerminal() {
		data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), prompt.MaxInputSize+1))
		if err != nil {
			return "", err
		}
		value := strings.TrimRight(string(data), "\r\n")
		if err := prompt.ValidateSecret(value); err != nil {
			return "", err
		}
		return value, nil
	}
	return prompt.Secret(cmd.Context(), newPrompter(), key)
}
