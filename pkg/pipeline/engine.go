package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	pflog "github.com/tombee/pixelflow/internal/log"
	"github.com/tombee/pixelflow/pkg/artifact"
	"github.com/tombee/pixelflow/pkg/errors"
	"github.com/tombee/pixelflow/pkg/gate"
	"github.com/tombee/pixelflow/pkg/provider"
)

const tracerName = "github.com/tombee/pixelflow/pkg/pipeline"

// Pipeline is a pipeline definition ready to run.
type Pipeline struct {
	// Name is an optional human-readable name.
	Name string

	// Steps run in an order derived from their dependencies; the slice order
	// only breaks ties.
	Steps []Step

	// Concurrency caps in-flight steps per wave. Zero defers to the engine.
	Concurrency int

	// Initial holds variables available before any step runs.
	Initial map[string]artifact.Value
}

// PipelineResult records one completed step.
type PipelineResult struct {
	StepID string
	Kind   Kind

	// Output is the primary output name; empty for a save without output.
	Output string

	Value artifact.Value
}

// RunResult is the outcome of a successful wave-parallel run.
type RunResult struct {
	RunID    string
	Pipeline string

	// Results are in wave order, then input order within a wave.
	Results []PipelineResult

	// Variables is the final variable store, initial variables included.
	Variables map[string]artifact.Value

	Waves    int
	Duration time.Duration
}

// RunStatus is the terminal status of a run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Engine runs pipelines against a provider registry. An Engine is safe for
// concurrent use once configured.
type Engine struct {
	dispatcher  *Dispatcher
	logger      *slog.Logger
	concurrency int
	tracer      trace.Tracer
	metrics     Recorder
	observers   []Observer
	gate        gate.Gate
	newRunID    func() string
}

// NewEngine creates an engine that dispatches to registry.
func NewEngine(registry *provider.Registry) *Engine {
	return &Engine{
		dispatcher: NewDispatcher(registry),
		logger:     slog.Default(),
		tracer:     otel.Tracer(tracerName),
		metrics:    nopRecorder{},
		newRunID:   uuid.NewString,
	}
}

// WithLogger sets the logger.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// WithConcurrency sets the default per-wave concurrency. Zero or less means
// unbounded. A pipeline's own Concurrency takes precedence.
func (e *Engine) WithConcurrency(n int) *Engine {
	if n < 0 {
		n = 0
	}
	e.concurrency = n
	return e
}

// WithTracer sets the tracer used for run, wave and step spans.
func (e *Engine) WithTracer(tracer trace.Tracer) *Engine {
	if tracer != nil {
		e.tracer = tracer
	}
	return e
}

// WithMetrics sets the metrics recorder.
func (e *Engine) WithMetrics(r Recorder) *Engine {
	if r != nil {
		e.metrics = r
	}
	return e
}

// WithObserver adds an observer that receives every progressive status event.
func (e *Engine) WithObserver(o Observer) *Engine {
	if o != nil {
		e.observers = append(e.observers, o)
	}
	return e
}

// WithGate sets the gate applied to provider results in progressive runs.
func (e *Engine) WithGate(g gate.Gate) *Engine {
	e.gate = g
	return e
}

// Plan builds the graph of p and schedules it.
func (e *Engine) Plan(p *Pipeline) ([]ExecutionWave, error) {
	if p == nil {
		return nil, &errors.ValidationError{Field: "pipeline", Message: "pipeline is nil"}
	}
	nodes, err := BuildGraph(p.Steps)
	if err != nil {
		return nil, err
	}
	initial := make([]string, 0, len(p.Initial))
	for name := range p.Initial {
		initial = append(initial, name)
	}
	sort.Strings(initial)
	return Schedule(nodes, initial)
}

type runIDKey struct{}

// ContextWithRunID makes a run started with the returned context use id as
// its run ID instead of a fresh UUID. Callers use it to record the run
// before it starts.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFromContext returns the run ID carried by ctx, or "".
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

type stepIDKey struct{}

// StepIDFromContext returns the ID of the step whose provider call ctx
// belongs to, or "".
func StepIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(stepIDKey{}).(string)
	return id
}

func (e *Engine) runID(ctx context.Context) string {
	if id := RunIDFromContext(ctx); id != "" {
		return id
	}
	return e.newRunID()
}

func (e *Engine) limit(p *Pipeline) int {
	if p.Concurrency > 0 {
		return p.Concurrency
	}
	return e.concurrency
}

// Run executes p wave by wave. Steps within a wave run concurrently, capped
// by the concurrency limit; the next wave starts only after every step of
// the current one has settled.
//
// Run is fail-fast. The first error aborts the run and is returned as is,
// wrapped with the failing step's ID. Steps of the same wave that were
// already running are not cancelled and may still complete their side
// effects. Nothing is rolled back.
func (e *Engine) Run(ctx context.Context, p *Pipeline) (*RunResult, error) {
	start := time.Now()
	runID := e.runID(ctx)
	ctx = ContextWithRunID(ctx, runID)
	name := ""
	if p != nil {
		name = p.Name
	}
	logger := pflog.WithRunContext(e.logger, runID, name)

	ctx, span := e.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("pipeline.run_id", runID),
		attribute.String("pipeline.name", name),
		attribute.String("pipeline.mode", string(ModeWaves)),
	))
	defer span.End()

	fail := func(err error) (*RunResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.RecordRun(ctx, ModeWaves, RunFailed, time.Since(start))
		logger.Error("pipeline failed",
			pflog.Error(err),
			slog.String("reason", string(errors.KindOf(err))),
			pflog.Duration(time.Since(start)))
		return nil, err
	}

	waves, err := e.Plan(p)
	if err != nil {
		return fail(err)
	}

	limit := e.limit(p)
	store := NewStore(p.Initial)
	result := &RunResult{RunID: runID, Pipeline: name, Waves: len(waves)}

	logger.Info("pipeline started",
		slog.Int("steps", len(p.Steps)),
		slog.Int("waves", len(waves)),
		slog.Int("concurrency", limit))

	for _, w := range waves {
		outcomes, err := e.runWave(ctx, logger, w, store, limit)
		if err != nil {
			return fail(err)
		}

		// Single writer: outcomes are applied only after the wave settles.
		for i, out := range outcomes {
			node := w.Nodes[i]
			for _, a := range out.Assignments {
				store.Set(a.Name, a.Value)
			}
			result.Results = append(result.Results, PipelineResult{
				StepID: node.ID,
				Kind:   node.Kind(),
				Output: node.Primary(),
				Value:  out.Value,
			})
		}
	}

	result.Variables = store.Snapshot()
	result.Duration = time.Since(start)
	span.SetStatus(codes.Ok, "")
	e.metrics.RecordRun(ctx, ModeWaves, RunSucceeded, result.Duration)
	logger.Info("pipeline completed",
		slog.Int("results", len(result.Results)),
		pflog.Duration(result.Duration))

	return result, nil
}

func (e *Engine) runWave(ctx context.Context, logger *slog.Logger, w ExecutionWave, store *Store, limit int) ([]*Outcome, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "pipeline.wave", trace.WithAttributes(
		attribute.Int("pipeline.wave", w.Index),
		attribute.Int("pipeline.wave.size", len(w.Nodes)),
	))
	defer span.End()

	logger = logger.With(slog.Int(pflog.WaveKey, w.Index))
	logger.Debug("wave started", slog.Int("size", len(w.Nodes)))

	thunks := make([]Thunk[*Outcome], len(w.Nodes))
	for i, node := range w.Nodes {
		thunks[i] = func(ctx context.Context) (*Outcome, error) {
			out, err := e.execute(ctx, logger, node, store)
			if err != nil {
				return nil, errors.Wrapf(err, "step %s", node.ID)
			}
			return out, nil
		}
	}

	outcomes, err := RunBounded(ctx, limit, thunks)
	e.metrics.RecordWave(ctx, len(w.Nodes), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	logger.Debug("wave completed", pflog.Duration(time.Since(start)))
	return outcomes, nil
}

// execute dispatches one step inside a span and records its metrics.
func (e *Engine) execute(ctx context.Context, logger *slog.Logger, node *StepNode, vars Variables) (*Outcome, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "pipeline.step", trace.WithAttributes(
		attribute.String("pipeline.step.id", node.ID),
		attribute.String("pipeline.step.kind", string(node.Kind())),
	))
	defer span.End()
	ctx = context.WithValue(ctx, stepIDKey{}, node.ID)

	logger = pflog.WithStepContext(logger, node.ID, string(node.Kind()))
	logger.Debug("step started")

	out, err := e.dispatcher.Dispatch(ctx, node, vars)
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.RecordStep(ctx, node.Kind(), StepStatusError, elapsed)
		logger.Warn("step failed",
			pflog.Error(err),
			slog.String("reason", string(errors.KindOf(err))),
			slog.Bool("retryable", errors.IsRetryable(err)),
			pflog.Duration(elapsed))
		return nil, err
	}

	if out.Provider != "" {
		span.SetAttributes(attribute.String("pipeline.step.provider", out.Provider))
	}
	e.metrics.RecordStep(ctx, node.Kind(), StepStatusCompleted, elapsed)
	logger.Debug("step completed",
		slog.String(pflog.ProviderKey, out.Provider),
		slog.String("value", artifact.Describe(out.Value)),
		pflog.Duration(elapsed))
	return out, nil
}
