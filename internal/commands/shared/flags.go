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

// Package shared holds state and helpers used by every pixelflow command:
// global flags, exit codes, terminal styles, JSON envelopes and the
// config/provider/history wiring.
package shared

import (
	"os"

	"github.com/spf13/pflag"
)

// ConfigEnvVar names a config file when --config is not given.
const ConfigEnvVar = "PIXELFLOW_CONFIG"

// globalFlags are bound to the root command's persistent flags.
type globalFlags struct {
	verbose bool
	quiet   bool
	json    bool
	config  string
}

var (
	globals globalFlags

	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// BindGlobalFlags registers --verbose, --quiet, --json and --config on fs.
func BindGlobalFlags(fs *pflag.FlagSet) {
	fs.BoolVarP(&globals.verbose, "verbose", "v", false, "Enable verbose output")
	fs.BoolVarP(&globals.quiet, "quiet", "q", false, "Suppress non-error output")
	fs.BoolVar(&globals.json, "json", false, "Output in JSON format")
	fs.StringVar(&globals.config, "config", "", "Path to config file (default: $"+ConfigEnvVar+" or ~/.config/pixelflow/config.yaml)")
}

// SetVersion records build information; main calls it before Execute.
func SetVersion(v, c, b string) {
	version, commit, buildDate = v, c, b
}

// GetVersion returns version, commit and build date.
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

func GetVerbose() bool { return globals.verbose }

// GetQuiet reports whether human-readable progress should be suppressed.
// JSON output implies quiet so the envelope is the only thing on stdout.
func GetQuiet() bool { return globals.quiet || globals.json }

func GetJSON() bool { return globals.json }

// GetConfigPath returns --config, else $PIXELFLOW_CONFIG, else "" for the
// default location.
func GetConfigPath() string {
	if globals.config != "" {
		return globals.config
	}
	return os.Getenv(ConfigEnvVar)
}

// SetConfigPathForTest sets the --config value.
func SetConfigPathForTest(path string) { globals.config = path }

// SetJSONForTest sets the --json value.
func SetJSONForTest(v bool) { globals.json = v }

// SetVerboseForTest sets the --verbose value.
func SetVerboseForTest(v bool) { globals.verbose = v }
