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
package tracing

import (
	"context"
	"time"

	"github.com/tombee/pixelflow/pkg/pipeline"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsCollector records pipeline metrics through OpenTelemetry.
// It implements pipeline.Recorder.
type MetricsCollector struct {
	runsTotal    metric.Int64Counter
	stepsTotal   metric.Int64Counter
	wavesTotal   metric.Int64Counter
	runDuration  metric.Float64Histogram
	stepDuration metric.Float64Histogram
	waveDuration metric.Float64Histogram
	waveSize     metric.Int64Histogram
}

var _ pipeline.Recorder = (*MetricsCollector)(nil)

// NewMetricsCollector creates the pixelflow instruments on mp.
func NewMetricsCollector(mp metric.MeterProvider) (*MetricsCollector, error) {
	meter := mp.Meter("github.com/tombee/pixelflow")
	mc := &MetricsCollector{}

	var err error
	mc.runsTotal, err = meter.Int64Counter(
		"pixelflow_runs_total",
		metric.WithDescription("Total number of pipeline runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	mc.stepsTotal, err = meter.Int64Counter(
		"pixelflow_steps_total",
		metric.WithDescription("Total number of finished steps"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		return nil, err
	}

	mc.wavesTotal, err = meter.Int64Counter(
		"pixelflow_waves_total",
		metric.WithDescription("Total number of executed waves"),
		metric.WithUnit("{wave}"),
	)
	if err != nil {
		return nil, err
	}

	mc.runDuration, err = meter.Float64Histogram(
		"pixelflow_run_duration_seconds",
		metric.WithDescription("Pipeline run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mc.stepDuration, err = meter.Float64Histogram(
		"pixelflow_step_duration_seconds",
		metric.WithDescription("Step execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mc.waveDuration, err = meter.Float64Histogram(
		"pixelflow_wave_duration_seconds",
		metric.WithDescription("Wave execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mc.waveSize, err = meter.Int64Histogram(
		"pixelflow_wave_size",
		metric.WithDescription("Number of steps per wave"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		return nil, err
	}

	return mc, nil
}

// RecordStep records a finished, failed or skipped step.
func (mc *MetricsCollector) RecordStep(ctx context.Context, kind pipeline.Kind, status pipeline.StepStatus, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("status", string(status)),
	)
	mc.stepsTotal.Add(ctx, 1, attrs)
	if status != pipeline.StepStatusSkipped {
		mc.stepDuration.Record(ctx, d.Seconds(), attrs)
	}
}

// RecordWave records one executed wave.
func (mc *MetricsCollector) RecordWave(ctx context.Context, size int, d time.Duration) {
	mc.wavesTotal.Add(ctx, 1)
	mc.waveSize.Record(ctx, int64(size))
	mc.waveDuration.Record(ctx, d.Seconds())
}

// RecordRun records a finished run.
func (mc *MetricsCollector) RecordRun(ctx context.Context, mode pipeline.Mode, status pipeline.RunStatus, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("mode", string(mode)),
		attribute.String("status", string(status)),
	)
	mc.runsTotal.Add(ctx, 1, attrs)
	mc.runDuration.Record(ctx, d.Seconds(), attrs)
}
