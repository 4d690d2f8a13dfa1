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
	"fmt"
	"log/slog"

	"github.com/tombee/pixelflow/internal/tracing/export"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// CreateExporter creates a span exporter from configuration. A nil exporter
// with a nil error means the entry disables export.
func CreateExporter(ctx context.Context, cfg ExporterConfig) (sdktrace.SpanExporter, error) {
	var protocol export.Protocol
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "console":
		return export.NewConsoleExporter(export.ConsoleConfig{PrettyPrint: true})
	case "otlp":
		protocol = export.ProtocolGRPC
	case "otlp-http", "otlp_http":
		protocol = export.ProtocolHTTP
	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.Type)
	}

	tlsConfig, err := export.BuildTLSConfig(export.TLSConfigInput{
		Enabled:           cfg.TLS.Enabled,
		VerifyCertificate: cfg.TLS.VerifyCertificate,
		CACertPath:        cfg.TLS.CACertPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build TLS config for %s exporter: %w", cfg.Type, err)
	}

	return export.NewOTLPExporter(ctx, export.OTLPConfig{
		Protocol:  protocol,
		Endpoint:  cfg.Endpoint,
		URLPath:   cfg.URLPath,
		Insecure:  !cfg.TLS.Enabled,
		TLSConfig: tlsConfig,
		Headers:   cfg.Headers,
		Gzip:      cfg.Compression == "gzip",
		Timeout:   cfg.Timeout,
	})
}

// CreateExportersFromConfig creates batch span processors for all configured
// exporters. Exporter creation failures are logged and skipped.
func CreateExportersFromConfig(ctx context.Context, cfg Config) []sdktrace.SpanProcessor {
	var processors []sdktrace.SpanProcessor
	for i, exporterCfg := range cfg.Exporters {
		exporter, err := CreateExporter(ctx, exporterCfg)
		if err != nil {
			slog.Warn("failed to create exporter, skipping",
				"index", i,
				"type", exporterCfg.Type,
				"endpoint", exporterCfg.Endpoint,
				"error", err)
			continue
		}
		if exporter == nil {
			continue
		}

		var opts []sdktrace.BatchSpanProcessorOption
		if cfg.BatchTimeout > 0 {
			opts = append(opts, sdktrace.WithBatchTimeout(cfg.BatchTimeout))
		}
		processors = append(processors, sdktrace.NewBatchSpanProcessor(exporter, opts...))
	}
	return processors
}
