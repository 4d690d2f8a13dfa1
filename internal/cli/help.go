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
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tombee/pixelflow/internal/commands/shared"
)

// exitCodesTopic is a help topic rather than a command.
const exitCodesTopic = "exit-codes"

// CommandMetadata describes a command for `help --json`.
type CommandMetadata struct {
	Name        string            `json:"name"`
	Path        string            `json:"path"`
	Short       string            `json:"short"`
	Long        string            `json:"long,omitempty"`
	Usage       string            `json:"usage"`
	Flags       []FlagMetadata    `json:"flags,omitempty"`
	Examples    string            `json:"examples,omitempty"`
	Subcommands []CommandMetadata `json:"subcommands,omitempty"`
	Group       string            `json:"group,omitempty"`
	Aliases     []string          `json:"aliases,omitempty"`
}

// FlagMetadata describes one flag.
type FlagMetadata struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Type      string `json:"type"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
	Required  bool   `json:"required"`
}

// HelpResponse is the JSON envelope for `help`.
type HelpResponse struct {
	shared.JSONResponse
	Commands    []CommandMetadata     `json:"commands,omitempty"`
	CommandInfo *CommandMetadata      `json:"command_info,omitempty"`
	GlobalFlags []FlagMetadata        `json:"global_flags,omitempty"`
	ExitCodes   []shared.ExitCodeInfo `json:"exit_codes,omitempty"`
}

// NewHelpCommand creates the help command. Unlike cobra's default it
// supports --json, nested command paths and the exit-codes topic.
func NewHelpCommand(rootCmd *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "help [command]",
		Short: "Help about any command",
		Long: `Help provides detailed information about commands and their usage.

Run 'pixelflow help' to see all available commands.
Run 'pixelflow help history show' for a subcommand.
Run 'pixelflow help exit-codes' for the meaning of each exit code.
Use --json to get machine-readable output.`,
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			names := []string{exitCodesTopic}
			for _, c := range rootCmd.Commands() {
				if c.IsAvailableCommand() {
					names = append(names, c.Name())
				}
			}
			return names, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch {
			case len(args) == 0 && shared.GetJSON():
				return shared.EmitJSONTo(out, HelpResponse{
					JSONResponse: shared.NewJSONResponse("help", true),
					Commands:     subcommands(rootCmd),
					GlobalFlags:  flagList(rootCmd.PersistentFlags()),
					ExitCodes:    shared.ExitCodes,
				})
			case len(args) == 0:
				return rootCmd.Help()
			case len(args) == 1 && args[0] == exitCodesTopic:
				if shared.GetJSON() {
					return shared.EmitJSONTo(out, HelpResponse{
						JSONResponse: shared.NewJSONResponse("help "+exitCodesTopic, true),
						ExitCodes:    shared.ExitCodes,
					})
				}
				return printExitCodes(cmd)
			}

			target, rest, err := rootCmd.Find(args)
			if err != nil || target == rootCmd || len(rest) > 0 {
				return fmt.Errorf("command %q not found", strings.Join(args, " "))
			}
			if !shared.GetJSON() {
				return target.Help()
			}
			meta := describe(target)
			return shared.EmitJSONTo(out, HelpResponse{
				JSONResponse: shared.NewJSONResponse("help "+meta.Path, true),
				CommandInfo:  &meta,
				GlobalFlags:  flagList(rootCmd.PersistentFlags()),
			})
		},
	}
}

func printExitCodes(cmd *cobra.Command) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tNAME\tMEANING")
	for _, c := range shared.ExitCodes {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", c.Code, c.Name, c.Meaning)
	}
	return tw.Flush()
}

// describe builds metadata for cmd and, recursively, its visible
// subcommands.
func describe(cmd *cobra.Command) CommandMetadata {
	meta := CommandMetadata{
		Name:        cmd.Name(),
		Path:        strings.TrimPrefix(cmd.CommandPath(), cmd.Root().Name()+" "),
		Short:       cmd.Short,
		Long:        cmd.Long,
		Usage:       cmd.UseLine(),
		Examples:    cmd.Example,
		Aliases:     cmd.Aliases,
		Group:       cmd.Annotations["group"],
		Flags:       flagList(cmd.LocalNonPersistentFlags()),
		Subcommands: subcommands(cmd),
	}
	return meta
}

func subcommands(cmd *cobra.Command) []CommandMetadata {
	var out []CommandMetadata
	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" {
			continue
		}
		out = append(out, describe(sub))
	}
	return out
}

func flagList(fs *pflag.FlagSet) []FlagMetadata {
	var flags []FlagMetadata
	fs.VisitAll(func(flag *pflag.Flag) {
		if flag.Hidden {
			return
		}
		_, required := flag.Annotations[cobra.BashCompOneRequiredFlag]
		flags = append(flags, FlagMetadata{
			Name:      flag.Name,
			Shorthand: flag.Shorthand,
			Type:      flag.Value.Type(),
			Usage:     flag.Usage,
			Default:   flag.DefValue,
			Required:  required,
		})
	})
	return flags
}
