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

// Package run implements the run command: it loads a pipeline definition,
// wires providers, gates, telemetry and run history, and executes it in
// waves or progressive mode.
package run

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tombee/pixelflow/internal/commands/completion"
	"github.com/tombee/pixelflow/internal/commands/shared"
	"github.com/tombee/pixelflow/pkg/pipeline"
)

// loadEnv is replaced in tests.
var loadEnv = shared.LoadEnv

// options holds the run command's flags.
type options struct {
	mode        string
	concurrency int
	inputs      shared.Inputs
	globs       map[string]string
	outDir      string
	watch       bool
	metricsAddr string
	trace       string
	moderate    []string
	moderation  bool
	timeline    bool
	noHistory   bool
}

// NewCommand creates the run command
func NewCommand() *cobra.Command {
	opts := &options{inputs: shared.Inputs{Images: shared.VarsFlag{}}}

	cmd := &cobra.Command{
		Use:   "run <pipeline>",
		Short: "Execute a pipeline",
		Annotations: map[string]string{
			"group": "execution",
		},
		Long: `Run executes a pipeline definition.

Execution Modes:
  --mode waves        Steps run wave by wave, concurrently within a wave.
                      The first failure aborts the run. (default)
  --mode progressive  Steps run one at a time and report status as they go.
                      A failure skips only the steps that depend on it.

Inputs:
  --var name=path     Load an image file as variable name
  --text name=value   Set a text variable
  --glob name=pattern Load every file matching pattern as name_0, name_1, ...
                      (** matches across directories)

Gates (progressive mode):
  --moderate expr     Reject step results for which expr is false
  --moderation        Reject results flagged by the OpenAI moderation API

Every run is recorded in the run history unless --no-history is given or
history is disabled in the config. See 'pixelflow history list'.`,
		Example: `  # Run a pipeline
  pixelflow run covers.yaml

  # Progressive mode with a timeline at the end
  pixelflow run covers.yaml --mode progressive --timeline

  # Batch over a directory of photos
  pixelflow run thumbs.hcl --glob 'photo=shots/**/*.png' --out thumbs/

  # Re-run whenever the definition or an input changes
  pixelflow run covers.yaml --watch

  # Gate generated captions
  pixelflow run covers.yaml --mode progressive --moderate 'len(text) < 280'`,
		Args:              cobra.ExactArgs(1),
		SilenceUsage:      true,
		SilenceErrors:     true,
		ValidArgsFunction: completion.CompletePipelineFiles,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return shared.NewInvalidPipelineError("failed to resolve pipeline path", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r, err := newRunner(ctx, cmd, path, opts)
			if err != nil {
				return err
			}
			defer r.close()

			if opts.watch {
				return r.watch(ctx)
			}
			return r.once(ctx)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.mode, "mode", "", "Execution mode: waves or progressive (default from config)")
	f.IntVarP(&opts.concurrency, "concurrency", "c", 0, "Max concurrent steps per wave (default from config, 0 = unbounded)")
	f.Var(opts.inputs.Images, "var", "Image input as name=path (repeatable)")
	f.StringToStringVar(&opts.inputs.Text, "text", nil, "Text input as name=value (repeatable)")
	f.StringToStringVar(&opts.globs, "glob", nil, "Image inputs as name=pattern, loaded as name_0..name_N (repeatable)")
	f.StringVarP(&opts.outDir, "out", "o", "", "Output directory for the file saver")
	f.BoolVarP(&opts.watch, "watch", "w", false, "Re-run when the definition or an input file changes")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	f.StringVar(&opts.trace, "trace", "", "Export spans: console, otlp or otlp-http")
	f.StringArrayVar(&opts.moderate, "moderate", nil, "Gate expression over each step result (repeatable)")
	f.BoolVar(&opts.moderation, "moderation", false, "Gate results with the OpenAI moderation API")
	f.BoolVar(&opts.timeline, "timeline", false, "Print a timeline after a progressive run")
	f.BoolVar(&opts.noHistory, "no-history", false, "Do not record this run")

	_ = cmd.RegisterFlagCompletionFunc("mode", completion.CompleteModes)
	_ = cmd.RegisterFlagCompletionFunc("trace", completion.CompleteTraceExporters)

	return cmd
}

// resolveMode picks the execution mode: the flag, else progressive when a
// gate is requested, else the configured default.
func resolveMode(flag, configured string, gated bool) (pipeline.Mode, error) {
	mode := pipeline.Mode(flag)
	switch {
	case mode == "" && gated:
		mode = pipeline.ModeProgressive
	case mode == "":
		mode = pipeline.Mode(configured)
	}

	switch mode {
	case pipeline.ModeWaves:
		if gated {
			return "", shared.NewInvalidPipelineError("invalid flags",
				fmt.Errorf("gates apply only in progressive mode; use --mode progressive"))
		}
	case pipeline.ModeProgressive:
	default:
		return "", shared.NewInvalidPipelineError("invalid flags",
			fmt.Errorf("unknown mode %q: use waves or progressive", mode))
	}
	return mode, nil
}
