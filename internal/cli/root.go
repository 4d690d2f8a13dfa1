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

package cli

import (
	"github.com/spf13/cobra"

	"github.com/tombee/pixelflow/internal/commands/shared"
)

// commandGroups orders the sections of `pixelflow --help`. Commands pick a
// section through their "group" annotation.
var commandGroups = []*cobra.Group{
	{ID: "execution", Title: "Pipeline Commands:"},
	{ID: "management", Title: "History Commands:"},
	{ID: "configuration", Title: "Configuration Commands:"},
}

// SetVersion records build metadata for `pixelflow version`.
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root command with global flags, command
// groups and the JSON-capable help command.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pixelflow",
		Short: "pixelflow - declarative image pipelines",
		Long: `pixelflow runs declarative image pipelines: generate, transform, inspect,
describe and save images through pluggable providers, with steps scheduled
by their data dependencies.

Run 'pixelflow validate pipeline.yaml' to check a definition.
Run 'pixelflow run pipeline.yaml' to execute it.
Run 'pixelflow help exit-codes' to see what each exit code means.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	shared.BindGlobalFlags(cmd.PersistentFlags())
	cmd.AddGroup(commandGroups...)
	cmd.SetHelpCommand(NewHelpCommand(cmd))

	return cmd
}

// AddCommands attaches subcommands to root, placing each in the help
// section named by its "group" annotation. Unknown groups stay in the
// default "Additional Commands" section.
func AddCommands(root *cobra.Command, cmds ...*cobra.Command) {
	for _, c := range cmds {
		if group := c.Annotations["group"]; group != "" && root.ContainsGroup(group) {
			c.GroupID = group
		}
		root.AddCommand(c)
	}
}

// HandleExitError prints err and exits with the code it carries.
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
