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
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// TLSConfigInput describes TLS settings for an OTLP exporter.
type TLSConfigInput struct {
	Enabled           bool
	VerifyCertificate bool
	CACertPath        string
}

// BuildTLSConfig creates a TLS configuration. Returns nil if TLS is not enabled.
func BuildTLSConfig(input TLSConfigInput) (*tls.Config, error) {
	if !input.Enabled {
		return nil, nil
	}

	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if !input.VerifyCertificate {
		cfg.InsecureSkipVerify = true
	}

	switch {
	case input.CACertPath != "":
		pem, err := os.ReadFile(input.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("failed to parse CA certificate")
		}
		cfg.RootCAs = pool
	case input.VerifyCertificate:
		pool, err := x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("failed to load system cert pool: %w", err)
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}

// ValidateTLSConfig rejects configs below TLS 1.2.
func ValidateTLSConfig(cfg *tls.Config) error {
	if cfg == nil {
		return errors.New("TLS config is nil")
	}
	if cfg.MinVersion < tls.VersionTLS12 {
		return fmt.Errorf("minimum TLS version must be 1.2 or higher, got %d", cfg.MinVersion)
	}
	return nil
}
