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

/*
Package tracing wires pixelflow runs into OpenTelemetry.

It owns three things:

  - correlation IDs, carried on the context and injected into outbound
    provider requests as X-Correlation-ID
  - the tracer provider and its span exporters (console, OTLP gRPC,
    OTLP HTTP)
  - a MetricsCollector that implements pipeline.Recorder and is scraped
    through the Prometheus exporter

# Usage

	provider, err := tracing.NewOTelProvider(ctx, cfg)
	if err != nil {
		return err
	}
	defer provider.Shutdown(context.Background())

	engine := pipeline.NewEngine(reg).
		WithTracer(provider.Tracer("pixelflow")).
		WithMetrics(provider.MetricsCollector())

	http.Handle("/metrics", provider.MetricsHandler())
*/
package tracing
