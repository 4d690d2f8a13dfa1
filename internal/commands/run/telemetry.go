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
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	pflog "github.com/tombee/pixelflow/internal/log"
	"github.com/tombee/pixelflow/internal/tracing"
	"github.com/tombee/pixelflow/pkg/pipeline"
)

const pipelineTracer = "github.com/tombee/pixelflow/pkg/pipeline"

// defaultEndpoints are used by --trace when the config has no exporter of
// that type.
var defaultEndpoints = map[string]string{
	"otlp":      "localhost:4317",
	"otlp-http": "localhost:4318",
}

// telemetry owns the OpenTelemetry provider and the optional Prometheus
// endpoint for the lifetime of one command.
type telemetry struct {
	provider *tracing.OTelProvider
	server   *http.Server
	addr     string
	logger   *slog.Logger
}

// startTelemetry builds the provider from cfg. A non-empty traceType turns
// span export on with that exporter. A non-empty metricsAddr starts the
// scrape endpoint; the bound address is kept in addr.
func startTelemetry(ctx context.Context, cfg tracing.Config, traceType, metricsAddr string, logger *slog.Logger) (*telemetry, error) {
	if traceType != "" {
		cfg = withExporter(cfg, traceType)
	}

	provider, err := tracing.NewOTelProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	t := &telemetry{provider: provider, logger: logger}

	if metricsAddr != "" {
		ln, err := net.Listen("tcp", metricsAddr)
		if err != nil {
			_ = provider.Shutdown(ctx)
			return nil, err
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", provider.MetricsHandler())
		t.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		t.addr = ln.Addr().String()

		go func() {
			if err := t.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", pflog.Error(err))
			}
		}()
	}
	return t, nil
}

// withExporter enables tracing with the configured exporter of type
// traceType, or a default one when none is configured.
func withExporter(cfg tracing.Config, traceType string) tracing.Config {
	cfg.Enabled = true
	for _, e := range cfg.Exporters {
		if e.Type == traceType {
			cfg.Exporters = []tracing.ExporterConfig{e}
			return cfg
		}
	}
	cfg.Exporters = []tracing.ExporterConfig{{Type: traceType, Endpoint: defaultEndpoints[traceType]}}
	return cfg
}

func (t *telemetry) tracer() trace.Tracer {
	return t.provider.Tracer(pipelineTracer)
}

func (t *telemetry) recorder() pipeline.Recorder {
	return t.provider.MetricsCollector()
}

func (t *telemetry) close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var errs []error
	if t.server != nil {
		errs = append(errs, t.server.Shutdown(ctx))
	}
	errs = append(errs, t.provider.Shutdown(ctx))
	return errors.Join(errs...)
}
