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

// Package examples implements the examples command, which lists, shows and
// copies the sample pipelines embedded in the binary.
package examples

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tombee/pixelflow/internal/cli/format"
	"github.com/tombee/pixelflow/internal/cli/prompt"
	"github.com/tombee/pixelflow/internal/commands/completion"
	"github.com/tombee/pixelflow/internal/commands/shared"
	"github.com/tombee/pixelflow/internal/examples"
	pferrors "github.com/tombee/pixelflow/pkg/errors"
)

// newPrompter is swapped in tests.
var newPrompter = func() prompt.Prompter {
	return prompt.NewSurveyPrompter(term.IsTerminal(int(os.Stdin.Fd())))
}

// NewCommand creates the examples command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use: "examples",
		Annotations: map[string]string{
			"group": "execution",
		},
		Short: "Browse example pipelines",
		Long: `Browse, view and copy example pipelines.

Examples are embedded in the pixelflow binary and use builtin providers
only, so they run offline without API keys.`,
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newCopyCommand())

	// Default to list if no subcommand specified
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runList(cmd)
	}

	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available example pipelines",
		Long: `List all embedded example pipelines with their descriptions.

See also: pixelflow examples show, pixelflow examples copy`,
		Example: `  # List all examples
  pixelflow examples list

  # Extract example names for scripting
  pixelflow examples list --json | jq -r '.examples[].name'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd)
		},
	}
}

func runList(cmd *cobra.Command) error {
	list, err := examples.List()
	if err != nil {
		return shared.NewExecutionError("failed to list examples", err)
	}

	if shared.GetJSON() {
		return shared.EmitJSONTo(cmd.OutOrStdout(), struct {
			shared.JSONResponse
			Examples []examples.Example `json:"examples"`
		}{shared.NewJSONResponse("examples list", true), list})
	}

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tFILE\tDESCRIPTION")
	fmt.Fprintln(w, "────\t────\t───────────")
	for _, ex := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\n", ex.Name, ex.File, ex.Description)
	}
	w.Flush()

	fmt.Fprintln(out)
	fmt.Fprintln(out, shared.Muted.Render("Use 'pixelflow examples show <name>' to view an example"))
	fmt.Fprintln(out, shared.Muted.Render("Use 'pixelflow examples copy <name> [dest]' to copy one and run it"))
	return nil
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Display an example pipeline",
		Long: `Display the definition of an example pipeline, highlighted when stdout
is a terminal.

See also: pixelflow examples list, pixelflow examples copy, pixelflow validate`,
		Example: `  # View an example
  pixelflow examples show covers

  # Save it under another name
  pixelflow examples show variants > my-variants.yaml`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteExampleNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			ex, content, err := examples.Get(args[0])
			if err != nil {
				return notFound(err)
			}

			if shared.GetJSON() {
				return shared.EmitJSONTo(cmd.OutOrStdout(), struct {
					shared.JSONResponse
					examples.Example
					Content string `json:"content"`
				}{shared.NewJSONResponse("examples show", true), ex, string(content)})
			}

			lexer := "yaml"
			if filepath.Ext(ex.File) == ".hcl" {
				lexer = "hcl"
			}
			fmt.Fprint(cmd.OutOrStdout(), format.Source(string(content), lexer, format.IsTTY()))
			return nil
		},
	}
}

func newCopyCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "copy [name] [dest]",
		Short: "Copy an example pipeline to a file",
		Long: `Copy an example pipeline definition to dest. When dest is a directory,
or omitted, the example keeps its file name. Existing files are only
replaced with --force. Without a name, an interactive terminal offers a
list to pick from.

See also: pixelflow examples show, pixelflow run`,
		Example: `  # Copy into the current directory
  pixelflow examples copy covers

  # Copy and run
  pixelflow examples copy variants pipelines/variants.yaml
  pixelflow run pipelines/variants.yaml`,
		Args:              cobra.RangeArgs(0, 2),
		ValidArgsFunction: completion.CompleteExampleNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			dest := "."
			if len(args) == 2 {
				dest = args[1]
			}

			var name string
			if len(args) > 0 {
				name = args[0]
			} else {
				picked, err := pickExample(cmd)
				if err != nil {
					return err
				}
				name = picked
			}

			path, err := examples.CopyTo(name, dest, force)
			if err != nil {
				var nf *pferrors.NotFoundError
				if errors.As(err, &nf) {
					return notFound(err)
				}
				return shared.NewExecutionError("failed to copy example", err)
			}

			if shared.GetJSON() {
				return shared.EmitJSONTo(cmd.OutOrStdout(), struct {
					shared.JSONResponse
					Name string `json:"name"`
					Path string `json:"path"`
				}{shared.NewJSONResponse("examples copy", true), name, path})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("Copied %s to %s", name, path)))
			fmt.Fprintf(out, "\nRun it with: pixelflow run %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

// pickExample lets the user choose an example when copy is run without a
// name.
func pickExample(cmd *cobra.Command) (string, error) {
	list, err := examples.List()
	if err != nil {
		return "", shared.NewExecutionError("failed to list examples", err)
	}
	names := make([]string, len(list))
	for i, ex := range list {
		names[i] = ex.Name
	}

	name, err := prompt.Choose(cmd.Context(), newPrompter(), "Example to copy", names)
	if errors.Is(err, prompt.ErrNonInteractive) {
		return "", &shared.ExitError{
			Code:    shared.ExitInvalidPipeline,
			Message: "an example name is required (use 'pixelflow examples list' to see available examples)",
			Cause:   err,
		}
	}
	return name, err
}

func notFound(err error) error {
	return &shared.ExitError{
		Code:    shared.ExitInvalidPipeline,
		Message: "unknown example (use 'pixelflow examples list' to see available examples)",
		Cause:   err,
	}
}
