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
	"fmt"
	"time"
)

// Config controls tracing and metrics for a pixelflow process.
type Config struct {
	// Enabled turns span export on. Metrics are always collected.
	Enabled bool `yaml:"enabled"`

	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`

	// Exporters lists span destinations. Failed exporters are skipped.
	Exporters []ExporterConfig `yaml:"exporters"`

	// MetricsAddr, when set, serves Prometheus metrics on this address
	MetricsAddr string `yaml:"metrics_addr"`

	// BatchTimeout bounds how long spans are buffered before export
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// ExporterConfig describes one span exporter.
type ExporterConfig struct {
	// Type is "console", "otlp", "otlp-http" or "none"
	Type string `yaml:"type"`

	Endpoint string            `yaml:"endpoint"`
	Headers  map[string]string `yaml:"headers"`
	TLS      TLSConfig         `yaml:"tls"`

	// URLPath overrides "/v1/traces" for otlp-http.
	URLPath string `yaml:"url_path,omitempty"`

	// Compression is "gzip" or "none" (default).
	Compression string `yaml:"compression,omitempty"`

	// Timeout bounds one export call.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// TLSConfig controls TLS for OTLP exporters.
type TLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	VerifyCertificate bool   `yaml:"verify_certificate"`
	CACertPath        string `yaml:"ca_cert_path"`
}

// DefaultConfig returns tracing disabled with a 5s batch timeout.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "pixelflow",
		ServiceVersion: "dev",
		BatchTimeout:   5 * time.Second,
	}
}

// Validate checks exporter types and endpoints.
func (c Config) Validate() error {
	for i, e := range c.Exporters {
		switch e.Type {
		case "console", "none", "":
		case "otlp", "otlp-http", "otlp_http":
			if e.Endpoint == "" {
				return fmt.Errorf("exporters[%d]: endpoint is required for %s", i, e.Type)
			}
		default:
			return fmt.Errorf("exporters[%d]: unknown exporter type %q", i, e.Type)
		}
		switch e.Compression {
		case "", "none", "gzip":
		default:
			return fmt.Errorf("exporters[%d]: compression must be gzip or none, got %q", i, e.Compression)
		}
		if e.Timeout < 0 {
			return fmt.Errorf("exporters[%d]: timeout must not be negative", i)
		}
	}
	if c.BatchTimeout < 0 {
		return fmt.Errorf("batch_timeout must not be negative")
	}
	return nil
}
