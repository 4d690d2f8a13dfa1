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

package version

import (
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/pixelflow/internal/commands/shared"
	"github.com/tombee/pixelflow/pkg/provider"
	"github.com/tombee/pixelflow/pkg/provider/builtin"
)

// VersionInfo is the `version --json` payload.
type VersionInfo struct {
	shared.JSONResponse
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`

	// Builtins lists the providers compiled in, by category.
	Builtins map[provider.Category][]string `json:"builtins"`
}

var categories = []provider.Category{
	provider.CategoryGenerator,
	provider.CategoryTransform,
	provider.CategoryVision,
	provider.CategoryText,
	provider.CategorySaver,
}

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display version, commit, build date, Go runtime and the builtin
providers compiled into pixelflow.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd, short)
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print only the version number")
	return cmd
}

func builtinProviders() map[provider.Category][]string {
	reg := provider.NewRegistry()
	builtin.Register(reg, builtin.Options{})

	out := make(map[provider.Category][]string, len(categories))
	for _, c := range categories {
		out[c] = reg.List(c)
	}
	return out
}

func runVersion(cmd *cobra.Command, short bool) error {
	v, c, b := shared.GetVersion()
	if short && !shared.GetJSON() {
		cmd.Println(v)
		return nil
	}

	info := VersionInfo{
		JSONResponse: shared.NewJSONResponse("version", true),
		Version:      v,
		Commit:       c,
		BuildDate:    b,
		GoVersion:    runtime.Version(),
		Platform:     runtime.GOOS + "/" + runtime.GOARCH,
		Builtins:     builtinProviders(),
	}

	if shared.GetJSON() {
		return shared.EmitJSONTo(cmd.OutOrStdout(), info)
	}

	cmd.Printf("pixelflow version %s\n", info.Version)
	cmd.Printf("  commit:     %s\n", info.Commit)
	cmd.Printf("  build date: %s\n", info.BuildDate)
	cmd.Printf("  go:         %s %s\n", info.GoVersion, info.Platform)
	cmd.Println("  builtins:")
	for _, c := range categories {
		cmd.Printf("    %-10s %s\n", c+":", strings.Join(info.Builtins[c], ", "))
	}

	return nil
}
