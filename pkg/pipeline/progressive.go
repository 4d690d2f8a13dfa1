package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	pflog "github.com/tombee/pixelflow/internal/log"
	"github.com/tombee/pixelflow/pkg/artifact"
	"github.com/tombee/pixelflow/pkg/errors"
)

// ProgressiveResult summarizes a progressive run.
type ProgressiveResult struct {
	RunID    string
	Pipeline string
	Status   RunStatus

	// Events is every status event in emission order.
	Events []StatusEvent

	// Steps maps step ID to its final status. Steps never reached because
	// of cancellation remain pending.
	Steps map[string]StepStatus

	// Order lists step IDs in execution order.
	Order []string

	// Variables is the final variable store.
	Variables map[string]artifact.Value

	Completed int
	Failed    int
	Skipped   int
	Duration  time.Duration
}

// RunProgressive executes p one step at a time, in wave order and then
// pipeline order, emitting a StatusEvent for every transition to the
// engine's observers and to obs, which may be nil.
//
// A failing step taints its outputs. Any later step reading a tainted
// variable is skipped without calling its provider, and its own outputs are
// tainted in turn. Steps that do not depend on a failure still run. A
// best-effort collect is never skipped; tainted inputs are simply absent.
//
// The context is checked between steps. Once it is done no further step is
// started and the run ends with RunCancelled.
//
// The returned error is non-nil only when the pipeline cannot be planned.
func (e *Engine) RunProgressive(ctx context.Context, p *Pipeline, obs Observer) (*ProgressiveResult, error) {
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
		attribute.String("pipeline.mode", string(ModeProgressive)),
	))
	defer span.End()

	waves, err := e.Plan(p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.RecordRun(ctx, ModeProgressive, RunFailed, time.Since(start))
		return nil, err
	}

	observers := append([]Observer(nil), e.observers...)
	if obs != nil {
		observers = append(observers, obs)
	}
	em := &emitter{runID: runID, observers: observers}

	order := Linearize(waves)
	result := &ProgressiveResult{
		RunID:    runID,
		Pipeline: name,
		Steps:    make(map[string]StepStatus, len(order)),
		Order:    make([]string, 0, len(order)),
	}
	for _, node := range order {
		result.Steps[node.ID] = StepStatusPending
		result.Order = append(result.Order, node.ID)
		em.emit(ctx, StatusEvent{StepID: node.ID, Kind: node.Kind(), Status: StepStatusPending})
	}

	logger.Info("progressive run started", slog.Int("steps", len(order)))

	store := NewStore(p.Initial)
	failed := make(map[string]string) // variable -> step that failed to produce it
	cancelled := false

	for _, node := range order {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		if upstream, origin, tainted := taintedInput(node, failed); tainted {
			for _, out := range node.Outputs {
				failed[out] = origin
			}
			result.Steps[node.ID] = StepStatusSkipped
			result.Skipped++
			e.metrics.RecordStep(ctx, node.Kind(), StepStatusSkipped, 0)
			em.emit(ctx, StatusEvent{
				StepID:   node.ID,
				Kind:     node.Kind(),
				Status:   StepStatusSkipped,
				Reason:   ReasonUpstreamFailed,
				Upstream: upstream,
				Message:  fmt.Sprintf("input %q was not produced because step %s failed", upstream, origin),
			})
			logger.Info("step skipped",
				slog.String(pflog.StepIDKey, node.ID),
				slog.String("upstream", upstream))
			continue
		}

		result.Steps[node.ID] = StepStatusRunning
		em.emit(ctx, StatusEvent{StepID: node.ID, Kind: node.Kind(), Status: StepStatusRunning})

		stepStart := time.Now()
		out, err := e.execute(ctx, logger, node, store)
		if err == nil {
			err = e.check(ctx, node, out)
		}
		elapsed := time.Since(stepStart)

		if err != nil {
			for _, o := range node.Outputs {
				failed[o] = node.ID
			}
			result.Steps[node.ID] = StepStatusError
			result.Failed++
			em.emit(ctx, StatusEvent{
				StepID:    node.ID,
				Kind:      node.Kind(),
				Status:    StepStatusError,
				Message:   err.Error(),
				Reason:    string(errors.Reason(err)),
				Retryable: errors.IsRetryable(err),
				Duration:  elapsed,
			})
			continue
		}

		for _, a := range out.Assignments {
			store.Set(a.Name, a.Value)
		}
		result.Steps[node.ID] = StepStatusCompleted
		result.Completed++
		ev := StatusEvent{StepID: node.ID, Kind: node.Kind(), Status: StepStatusCompleted, Duration: elapsed}
		describe(&ev, out.Value)
		em.emit(ctx, ev)
	}

	switch {
	case cancelled:
		result.Status = RunCancelled
	case result.Failed == 0 && result.Skipped == 0:
		result.Status = RunSucceeded
	case result.Completed == 0:
		result.Status = RunFailed
	default:
		result.Status = RunPartial
	}

	result.Events = em.events
	result.Variables = store.Snapshot()
	result.Duration = time.Since(start)

	if result.Status != RunSucceeded {
		span.SetStatus(codes.Error, string(result.Status))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.String("pipeline.status", string(result.Status)))
	e.metrics.RecordRun(ctx, ModeProgressive, result.Status, result.Duration)
	logger.Info("progressive run finished",
		slog.String("status", string(result.Status)),
		slog.Int("completed", result.Completed),
		slog.Int("failed", result.Failed),
		slog.Int("skipped", result.Skipped),
		pflog.Duration(result.Duration))

	return result, nil
}

// check applies the gate to the result of a provider step.
func (e *Engine) check(ctx context.Context, node *StepNode, out *Outcome) error {
	if e.gate == nil || out.Value == nil {
		return nil
	}
	switch node.Kind() {
	case KindGenerate, KindTransform, KindVision, KindText:
	default:
		return nil
	}
	return e.gate.Check(ctx, node.ID, out.Value)
}

// taintedInput returns the first hard dependency of node that is in the
// failed set, with the step that originally failed.
func taintedInput(node *StepNode, failed map[string]string) (string, string, bool) {
	for _, dep := range node.Dependencies {
		if origin, ok := failed[dep]; ok {
			return dep, origin, true
		}
	}
	return "", "", false
}
