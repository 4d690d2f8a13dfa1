package pipeline

import (
	"context"
	"time"
)

// Mode names a scheduling mode in metrics and history.
type Mode string

const (
	ModeWaves       Mode = "waves"
	ModeProgressive Mode = "progressive"
)

// Recorder receives execution metrics. The tracing package provides an
// OpenTelemetry implementation.
type Recorder interface {
	RecordStep(ctx context.Context, kind Kind, status StepStatus, d time.Duration)
	RecordWave(ctx context.Context, size int, d time.Duration)
	RecordRun(ctx context.Context, mode Mode, status RunStatus, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordStep(context.Context, Kind, StepStatus, time.Duration) {}
func (nopRecorder) RecordWave(context.Context, int, time.Duration)              {}
func (nopRecorder) RecordRun(context.Context, Mode, RunStatus, time.Duration)   {}
