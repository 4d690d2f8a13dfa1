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

package main

import (
	"github.com/tombee/pixelflow/internal/cli"
	"github.com/tombee/pixelflow/internal/commands/completion"
	configcmd "github.com/tombee/pixelflow/internal/commands/config"
	"github.com/tombee/pixelflow/internal/commands/examples"
	"github.com/tombee/pixelflow/internal/commands/management"
	"github.com/tombee/pixelflow/internal/commands/plan"
	"github.com/tombee/pixelflow/internal/commands/run"
	"github.com/tombee/pixelflow/internal/commands/secrets"
	"github.com/tombee/pixelflow/internal/commands/validate"
	versioncmd "github.com/tombee/pixelflow/internal/commands/version"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildDate)

	rootCmd := cli.NewRootCommand()

	cli.AddCommands(rootCmd,
		run.NewCommand(),
		validate.NewCommand(),
		plan.NewCommand(),
		examples.NewCommand(),
		management.NewHistoryCommand(),
		configcmd.NewConfigCommand(),
		secrets.NewCommand(),
		completion.NewCommand(),
		versioncmd.NewVersionCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		cli.HandleExitError(err)
	}
}
