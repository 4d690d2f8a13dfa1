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

package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tombee/pixelflow/internal/cli/format"
	"github.com/tombee/pixelflow/internal/cli/timeline"
	"github.com/tombee/pixelflow/internal/commands/shared"
	"github.com/tombee/pixelflow/internal/history"
	pflog "github.com/tombee/pixelflow/internal/log"
	"github.com/tombee/pixelflow/internal/tracing"
	pferrors "github.com/tombee/pixelflow/pkg/errors"
	"github.com/tombee/pixelflow/pkg/pipeline"
)

// runner executes a pipeline file one or more times with the services set
// up once per command.
type runner struct {
	cmd       *cobra.Command
	path      string
	opts      *options
	env       *shared.Env
	logger    *slog.Logger
	mode      pipeline.Mode
	telemetry *telemetry
	history   *recorder
}

func newRunner(ctx context.Context, cmd *cobra.Command, path string, opts *options) (*runner, error) {
	env, err := loadEnv()
	if err != nil {
		return nil, err
	}
	if opts.outDir != "" {
		env.Config.OutputDir = opts.outDir
	}

	gated := len(opts.moderate) > 0 || opts.moderation
	mode, err := resolveMode(opts.mode, env.Config.Engine.Mode, gated)
	if err != nil {
		return nil, err
	}

	metricsAddr := opts.metricsAddr
	if metricsAddr == "" {
		metricsAddr = env.Config.Observability.MetricsAddr
	}
	tel, err := startTelemetry(ctx, env.Config.Observability, opts.trace, metricsAddr, env.Logger)
	if err != nil {
		return nil, err
	}
	if tel.addr != "" && !shared.GetQuiet() && !shared.GetJSON() {
		fmt.Fprintf(cmd.ErrOrStderr(), "Serving metrics on http://%s/metrics\n", tel.addr)
	}

	rec := &recorder{logger: env.Logger}
	if !opts.noHistory {
		store, err := env.OpenHistory()
		if err != nil {
			env.Logger.Warn("run history unavailable", pflog.Error(err))
		}
		rec.store = store
	}

	return &runner{
		cmd:       cmd,
		path:      path,
		opts:      opts,
		env:       env,
		logger:    env.Logger,
		mode:      mode,
		telemetry: tel,
		history:   rec,
	}, nil
}

func (r *runner) close() {
	ctx := context.Background()
	if err := r.telemetry.close(ctx); err != nil {
		r.logger.Warn("failed to shut down telemetry", pflog.Error(err))
	}
	if err := r.history.close(); err != nil {
		r.logger.Warn("failed to close run history", pflog.Error(err))
	}
}

func (r *runner) concurrency() int {
	if r.cmd.Flags().Changed("concurrency") {
		return r.opts.concurrency
	}
	return r.env.Config.Engine.Concurrency
}

// once loads, plans and executes the pipeline a single time.
func (r *runner) once(ctx context.Context) error {
	in, err := r.inputs()
	if err != nil {
		return r.fail(ctx, err)
	}

	def, p, err := shared.LoadPipeline(r.path, in)
	if err != nil {
		return r.fail(ctx, err)
	}

	reg, client, err := r.env.Registry(ctx, def.Dir)
	if err != nil {
		return r.fail(ctx, shared.NewProviderError("failed to set up providers", err))
	}

	g, err := buildGate(r.opts.moderate, r.opts.moderation, client)
	if err != nil {
		return r.fail(ctx, err)
	}

	engine := pipeline.NewEngine(reg).
		WithLogger(r.logger).
		WithConcurrency(r.concurrency()).
		WithTracer(r.telemetry.tracer()).
		WithMetrics(r.telemetry.recorder())
	if g != nil {
		engine.WithGate(g)
	}

	waves, err := shared.PlanPipeline(engine, p)
	if err != nil {
		return r.fail(ctx, err)
	}
	if errs := shared.CheckProviders(reg, waves); len(errs) > 0 {
		return r.fail(ctx, shared.NewInvalidPipelineError("invalid pipeline", errors.Join(errs...)))
	}

	runID := uuid.NewString()
	correlationID := tracing.NewCorrelationID()
	ctx = pipeline.ContextWithRunID(tracing.ToContext(ctx, correlationID), runID)

	r.history.start(ctx, &history.Run{
		ID:            runID,
		Pipeline:      p.Name,
		Source:        r.path,
		Mode:          r.mode,
		CorrelationID: correlationID.String(),
		Steps:         len(p.Steps),
	})

	if r.mode == pipeline.ModeProgressive {
		return r.progressive(ctx, engine, p, runID)
	}
	return r.waves(ctx, engine, p, runID)
}

func (r *runner) waves(ctx context.Context, engine *pipeline.Engine, p *pipeline.Pipeline, runID string) error {
	out := r.cmd.OutOrStdout()
	printing := !shared.GetJSON() && !shared.GetQuiet()
	if printing {
		fmt.Fprintf(out, "Running pipeline: %s %s\n\n", p.Name, shared.Muted.Render("("+runID+")"))
	}

	start := time.Now()
	res, err := engine.Run(ctx, p)
	if err != nil {
		status := pipeline.RunFailed
		if ctx.Err() != nil {
			status = pipeline.RunCancelled
		}
		r.history.finish(ctx, runID, history.Summary{
			Status:   status,
			Error:    err.Error(),
			Failed:   1,
			Duration: time.Since(start),
		})
		return r.fail(ctx, err)
	}

	r.history.results(ctx, runID, res.Results)
	r.history.finish(ctx, runID, history.Summary{
		Status:    pipeline.RunSucceeded,
		Completed: len(res.Results),
		Duration:  res.Duration,
	})

	if shared.GetJSON() {
		return shared.EmitJSONTo(out, newWavesResponse(res))
	}
	if printing {
		printResults(out, res)
	}
	return nil
}

func (r *runner) progressive(ctx context.Context, engine *pipeline.Engine, p *pipeline.Pipeline, runID string) error {
	out := r.cmd.OutOrStdout()

	var (
		display *shared.ProgressDisplay
		obs     pipeline.Observer
	)
	if !shared.GetJSON() && !shared.GetQuiet() {
		display = shared.NewProgressDisplay(out, format.IsTTY(), shared.GetVerbose())
		display.Start(p.Name, runID)
		obs = display
	}
	if o := r.history.observer(); o != nil {
		engine.WithObserver(o)
	}

	res, err := engine.RunProgressive(ctx, p, obs)
	if err != nil {
		r.history.finish(ctx, runID, history.Summary{Status: pipeline.RunFailed, Error: err.Error()})
		return r.fail(ctx, err)
	}

	r.history.finish(ctx, runID, history.Summary{
		Status:    res.Status,
		Error:     firstError(res.Events),
		Completed: res.Completed,
		Failed:    res.Failed,
		Skipped:   res.Skipped,
		Duration:  res.Duration,
	})

	if display != nil {
		display.Finish(res.Status, res.Duration)
	}
	if r.opts.timeline && !shared.GetJSON() {
		r.printTimeline(p.Name, res.Events)
	}

	if shared.GetJSON() {
		if err := shared.EmitJSONTo(out, newProgressiveResponse(res)); err != nil {
			return err
		}
	}

	err = shared.ExitForRun(res.Status, res.Failed)
	var exitErr *shared.ExitError
	if shared.GetJSON() && errors.As(err, &exitErr) {
		// The status is already in the JSON document.
		exitErr.Message = ""
	}
	return err
}

func (r *runner) printTimeline(name string, events []pipeline.StatusEvent) {
	renderer, err := timeline.NewRenderer()
	if err != nil {
		r.logger.Warn("timeline unavailable", pflog.Error(err))
		return
	}
	rendered, err := renderer.Render(name, events)
	if err != nil {
		r.logger.Warn("timeline unavailable", pflog.Error(err))
		return
	}
	fmt.Fprint(r.cmd.OutOrStdout(), "\n"+rendered)
}

// fail maps err to an exit error. In JSON mode the error is written to
// stdout as an envelope and the returned error carries only the code.
func (r *runner) fail(ctx context.Context, err error) error {
	exitErr := toExitError(ctx, err)
	if !shared.GetJSON() {
		return exitErr
	}
	if emitErr := shared.EmitJSONError(r.cmd.OutOrStdout(), "run", []shared.JSONError{shared.JSONErrorFrom(err)}); emitErr != nil {
		return emitErr
	}
	return &shared.ExitError{Code: exitErr.Code}
}

func toExitError(ctx context.Context, err error) *shared.ExitError {
	var exitErr *shared.ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	var providerErr *pferrors.ProviderError
	switch {
	case ctx.Err() != nil:
		return &shared.ExitError{Code: shared.ExitCancelled, Message: "run cancelled", Cause: err}
	case errors.As(err, &providerErr):
		return shared.NewProviderError("pipeline failed", err)
	case pferrors.KindOf(err) == pferrors.KindConfiguration:
		return shared.NewInvalidPipelineError("invalid pipeline", err)
	default:
		return shared.NewExecutionError("pipeline failed", err)
	}
}

func firstError(events []pipeline.StatusEvent) string {
	for _, ev := range events {
		if ev.Status == pipeline.StepStatusError {
			return ev.StepID + ": " + ev.Message
		}
	}
	return ""
}
