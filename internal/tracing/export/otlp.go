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

package export

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/credentials"
	_ "google.golang.org/grpc/encoding/gzip"
)

// Protocol selects the OTLP transport.
type Protocol string

const (
	ProtocolGRPC Protocol = "grpc"
	ProtocolHTTP Protocol = "http"
)

// OTLPConfig configures an OTLP span exporter over either transport.
type OTLPConfig struct {
	Protocol Protocol

	// Endpoint is host[:port], e.g. "localhost:4317" or "api.honeycomb.io".
	Endpoint string

	// URLPath overrides "/v1/traces" for the HTTP transport.
	URLPath string

	// Insecure disables TLS. TLSConfig is ignored when set.
	Insecure  bool
	TLSConfig *tls.Config

	Headers map[string]string

	// Gzip compresses export payloads.
	Gzip bool

	// Timeout bounds a single export call. Zero keeps the exporter default.
	Timeout time.Duration
}

// NewOTLPExporter creates an OTLP span exporter for cfg.Protocol.
func NewOTLPExporter(ctx context.Context, cfg OTLPConfig) (trace.SpanExporter, error) {
	tlsConfig, err := clientTLS(cfg)
	if err != nil {
		return nil, err
	}

	switch cfg.Protocol {
	case ProtocolGRPC, "":
		return newGRPC(ctx, cfg, tlsConfig)
	case ProtocolHTTP:
		return newHTTP(ctx, cfg, tlsConfig)
	default:
		return nil, fmt.Errorf("unknown OTLP protocol %q", cfg.Protocol)
	}
}

// clientTLS returns nil for insecure exporters, else the validated custom
// config or a TLS 1.2+ system-pool default.
func clientTLS(cfg OTLPConfig) (*tls.Config, error) {
	if cfg.Insecure {
		return nil, nil
	}
	if cfg.TLSConfig == nil {
		return &tls.Config{MinVersion: tls.VersionTLS12}, nil
	}
	if err := ValidateTLSConfig(cfg.TLSConfig); err != nil {
		return nil, fmt.Errorf("invalid TLS config: %w", err)
	}
	return cfg.TLSConfig, nil
}

func newGRPC(ctx context.Context, cfg OTLPConfig, tlsConfig *tls.Config) (trace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if tlsConfig == nil {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(tlsConfig)))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	if cfg.Gzip {
		opts = append(opts, otlptracegrpc.WithCompressor("gzip"))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, otlptracegrpc.WithTimeout(cfg.Timeout))
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP gRPC exporter: %w", err)
	}
	return exporter, nil
}

func newHTTP(ctx context.Context, cfg OTLPConfig, tlsConfig *tls.Config) (trace.SpanExporter, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.URLPath != "" {
		opts = append(opts, otlptracehttp.WithURLPath(cfg.URLPath))
	}
	if tlsConfig == nil {
		opts = append(opts, otlptracehttp.WithInsecure())
	} else {
		opts = append(opts, otlptracehttp.WithTLSClientConfig(tlsConfig))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	if cfg.Gzip {
		opts = append(opts, otlptracehttp.WithCompression(otlptracehttp.GzipCompression))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, otlptracehttp.WithTimeout(cfg.Timeout))
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP HTTP exporter: %w", err)
	}
	return exporter, nil
}
