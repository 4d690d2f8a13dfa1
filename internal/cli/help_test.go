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
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/pixelflow/internal/commands/shared"
)

func newHelpTestRoot() *cobra.Command {
	rootCmd := NewRootCommand()

	sampleCmd := &cobra.Command{
		Use:     "sample",
		Short:   "Sample subcommand",
		Long:    "This is a sample subcommand for testing",
		Example: "  pixelflow sample --flag value",
		Annotations: map[string]string{
			"group": "testing",
		},
		RunE: func(cmd *cobra.Command, args []string) error { return nil },
	}
	sampleCmd.AddCommand(&cobra.Command{
		Use:   "child",
		Short: "Nested subcommand",
		RunE:  func(cmd *cobra.Command, args []string) error { return nil },
	})
	sampleCmd.Flags().String("flag", "", "A sample flag")
	sampleCmd.Flags().Int("count", 1, "A numeric flag")
	sampleCmd.Flags().String("needed", "", "A required flag")
	_ = sampleCmd.MarkFlagRequired("needed")
	rootCmd.AddCommand(sampleCmd)
	return rootCmd
}

func runHelp(t *testing.T, args ...string) *bytes.Buffer {
	t.Helper()
	rootCmd := newHelpTestRoot()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(append([]string{"help"}, args...))
	t.Cleanup(func() { shared.SetJSONForTest(false) })
	require.NoError(t, rootCmd.Execute())
	return buf
}

func TestHelpCommandJSON_AllCommands(t *testing.T) {
	buf := runHelp(t, "--json")

	var resp HelpResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "help", resp.Command)
	assert.Equal(t, "1.0", resp.Version)

	var names []string
	for _, c := range resp.Commands {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "sample")

	var globals []string
	for _, f := range resp.GlobalFlags {
		globals = append(globals, f.Name)
	}
	assert.ElementsMatch(t, []string{"verbose", "quiet", "json", "config"}, globals)
	assert.NotEmpty(t, resp.ExitCodes)
}

func TestHelpCommandJSON_SingleCommand(t *testing.T) {
	buf := runHelp(t, "sample", "--json")

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	var meta CommandMetadata
	require.NoError(t, json.Unmarshal(raw["command_info"], &meta))

	var envelope string
	require.NoError(t, json.Unmarshal(raw["command"], &envelope))
	assert.Equal(t, "help sample", envelope)

	assert.Equal(t, "sample", meta.Name)
	assert.Equal(t, "testing", meta.Group)
	assert.Contains(t, meta.Examples, "--flag value")

	flags := map[string]FlagMetadata{}
	for _, f := range meta.Flags {
		flags[f.Name] = f
	}
	require.Contains(t, flags, "needed")
	assert.True(t, flags["needed"].Required)
	assert.False(t, flags["flag"].Required)
	assert.NotContains(t, flags, "verbose", "global flags are listed separately")
	assert.Equal(t, "string", flags["flag"].Type)
	assert.Equal(t, "int", flags["count"].Type)
	assert.Equal(t, "1", flags["count"].Default)

	require.Len(t, meta.Subcommands, 1)
	assert.Equal(t, "child", meta.Subcommands[0].Name)
	assert.Equal(t, "sample child", meta.Subcommands[0].Path)
}

func TestHelpCommandJSON_NestedPath(t *testing.T) {
	buf := runHelp(t, "sample", "child", "--json")

	var resp HelpResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "help sample child", resp.Command)
	require.NotNil(t, resp.CommandInfo)
	assert.Equal(t, "child", resp.CommandInfo.Name)
	assert.Equal(t, "Nested subcommand", resp.CommandInfo.Short)
}

func TestHelpCommand_ExitCodes(t *testing.T) {
	buf := runHelp(t, "exit-codes")
	out := buf.String()
	assert.Contains(t, out, "CODE")
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "130")
}

func TestHelpCommandJSON_ExitCodes(t *testing.T) {
	buf := runHelp(t, "exit-codes", "--json")

	var resp HelpResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Commands)

	codes := map[int]string{}
	for _, c := range resp.ExitCodes {
		codes[c.Code] = c.Name
	}
	assert.Equal(t, "success", codes[shared.ExitSuccess])
	assert.Equal(t, "partial", codes[shared.ExitPartial])
	assert.Equal(t, "cancelled", codes[shared.ExitCancelled])
	assert.Len(t, codes, 6)
}

func TestHelpCommandHumanOutput(t *testing.T) {
	buf := runHelp(t, "sample")
	assert.Contains(t, buf.String(), "This is a sample subcommand for testing")
}

func TestHelpCommand_UnknownCommand(t *testing.T) {
	rootCmd := newHelpTestRoot()
	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"help", "nope"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"nope"`)
}
