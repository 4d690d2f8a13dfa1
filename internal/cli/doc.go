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

/*
Package cli provides the root command and shared configuration for the
pixelflow CLI.

This package creates the main Cobra command tree and handles global concerns
like version information, persistent flags, and error handling. Individual
commands are implemented in the internal/commands subpackages.

# Command Tree

	pixelflow
	├── run           Run a pipeline definition
	├── validate      Check a definition without running it
	├── plan          Show the execution waves of a definition
	├── examples      List, show and copy embedded example pipelines
	├── history       List, inspect and delete recorded runs
	├── config        Show, locate and validate the configuration file
	├── secrets       Store provider API keys in the system keychain
	├── completion    Generate shell completion scripts
	├── version       Show version
	└── help          Show help

# Usage

From main.go:

	cli.SetVersion(version, commit, date)
	rootCmd := cli.NewRootCommand()
	cli.AddCommands(rootCmd, run.NewCommand(), validate.NewCommand())
	if err := rootCmd.Execute(); err != nil {
	    cli.HandleExitError(err)
	}

# Global Flags

All commands inherit these flags:

	--verbose, -v    Enable verbose output
	--quiet, -q      Suppress non-error output
	--json           Output in JSON format
	--config         Path to config file (or PIXELFLOW_CONFIG)

# Exit Codes

  - 0: Success
  - 1: Execution failed
  - 2: Invalid pipeline definition
  - 3: Run finished with failed steps
  - 4: Provider error
  - 130: Cancelled
*/
package cli
