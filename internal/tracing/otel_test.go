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
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/pixelflow/pkg/pipeline"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewOTelProvider(t *testing.T) {
	ctx := context.Background()
	exporter := tracetest.NewInMemoryExporter()

	p, err := NewOTelProvider(ctx, DefaultConfig(), sdktrace.WithSyncer(exporter))
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(ctx) }()

	_, span := p.Tracer("test").Start(ctx, "pipeline.run")
	span.End()
	require.NoError(t, p.ForceFlush(ctx))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "pipeline.run", spans[0].Name)

	p.MetricsCollector().RecordRun(ctx, pipeline.ModeWaves, pipeline.RunSucceeded, time.Second)

	rec := httptest.NewRecorder()
	p.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "pixelflow_runs_total")
}

func TestNewOTelProvider_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Exporters = []ExporterConfig{{Type: "otlp"}}

	_, err := NewOTelProvider(context.Background(), cfg)
	assert.ErrorContains(t, err, "endpoint is required")
}

func TestCreateExporter(t *testing.T) {
	ctx := context.Background()

	exp, err := CreateExporter(ctx, ExporterConfig{Type: "none"})
	require.NoError(t, err)
	assert.Nil(t, exp)

	exp, err = CreateExporter(ctx, ExporterConfig{Type: "console"})
	require.NoError(t, err)
	assert.NotNil(t, exp)

	exp, err = CreateExporter(ctx, ExporterConfig{Type: "otlp-http", Endpoint: "localhost:4318", Compression: "gzip"})
	require.NoError(t, err)
	require.NotNil(t, exp)
	assert.NoError(t, exp.Shutdown(ctx))

	_, err = CreateExporter(ctx, ExporterConfig{Type: "zipkin"})
	assert.ErrorContains(t, err, "unknown exporter type")
}

func TestConfigValidate_ExporterOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Exporters = []ExporterConfig{{Type: "otlp", Endpoint: "collector:4317", Compression: "gzip", Timeout: time.Second}}
	assert.NoError(t, cfg.Validate())

	cfg.Exporters[0].Compression = "zstd"
	assert.ErrorContains(t, cfg.Validate(), "compression")

	cfg.Exporters[0].Compression = ""
	cfg.Exporters[0].Timeout = -time.Second
	assert.ErrorContains(t, cfg.Validate(), "timeout")
}

func TestCreateExportersFromConfig_SkipsFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Exporters = []ExporterConfig{{Type: "bogus"}, {Type: "none"}, {Type: "console"}}

	processors := CreateExportersFromConfig(context.Background(), cfg)
	assert.Len(t, processors, 1)
	for _, p := range processors {
		_ = p.Shutdown(context.Background())
	}
}
