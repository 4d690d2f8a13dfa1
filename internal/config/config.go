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

// Package config loads the pixelflow configuration file and applies
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tombee/pixelflow/internal/log"
	"github.com/tombee/pixelflow/internal/tracing"
	pferrors "github.com/tombee/pixelflow/pkg/errors"
	"github.com/tombee/pixelflow/pkg/httpclient"
	"github.com/tombee/pixelflow/pkg/httpclient/auth"
	"github.com/tombee/pixelflow/pkg/pipeline"
	"github.com/tombee/pixelflow/pkg/provider"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Config represents the complete pixelflow configuration.
type Config struct {
	Log    log.Config   `yaml:"log"`
	Engine EngineConfig `yaml:"engine"`

	// OutputDir is where the file saver writes relative destinations.
	// Environment: PIXELFLOW_OUTPUT_DIR
	OutputDir string `yaml:"output_dir"`

	History       HistoryConfig   `yaml:"history"`
	Providers     ProvidersConfig `yaml:"providers"`
	Observability tracing.Config  `yaml:"observability"`
}

// EngineConfig configures pipeline execution defaults.
type EngineConfig struct {
	// Concurrency caps in-flight steps per wave when a pipeline does not
	// set its own bound. Zero means unbounded.
	// Environment: PIXELFLOW_CONCURRENCY
	Concurrency int `yaml:"concurrency"`

	// Mode is "waves" or "progressive".
	// Default: waves
	Mode string `yaml:"mode"`
}

// HistoryConfig configures the run history database.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path is the SQLite database file.
	// Environment: PIXELFLOW_HISTORY_PATH
	// Default: $XDG_DATA_HOME/pixelflow/history.db
	Path string `yaml:"path"`
}

// ProvidersConfig holds per-provider settings.
type ProvidersConfig struct {
	OpenAI OpenAIConfig `yaml:"openai"`
	HTTP   HTTPConfig   `yaml:"http"`
}

// HTTPConfig configures the http saver.
type HTTPConfig struct {
	// Auth signs uploads. The bearer token and OAuth2 client secret are
	// normally resolved from the secret store (providers/http/token and
	// providers/http/client_secret) rather than set here.
	Auth auth.Config `yaml:"auth,omitempty"`
}

// OpenAIConfig configures the OpenAI-compatible providers.
type OpenAIConfig struct {
	// BaseURL overrides the API endpoint.
	// Environment: OPENAI_BASE_URL
	BaseURL string `yaml:"base_url,omitempty"`

	// APIKey is normally resolved from OPENAI_API_KEY or the keyring.
	// Storing it in the config file works but is discouraged.
	APIKey string `yaml:"api_key,omitempty"`

	Model           string `yaml:"model,omitempty"`
	ImageModel      string `yaml:"image_model,omitempty"`
	ModerationModel string `yaml:"moderation_model,omitempty"`

	// Timeout bounds a single HTTP request.
	// Default: 120s
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// RateLimit is requests per second across all openai providers.
	// Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit,omitempty"`
	Burst     int     `yaml:"burst,omitempty"`

	// RetryAttempts is how many times transient HTTP failures are retried.
	// Default: 3
	RetryAttempts int `yaml:"retry_attempts,omitempty"`
}

// Limit returns the provider rate limit for the configured budget.
func (o OpenAIConfig) Limit() provider.Limit {
	return provider.Limit{RPS: o.RateLimit, Burst: o.Burst}
}

// HTTP returns the HTTP client configuration for the providers.
func (o OpenAIConfig) HTTP() httpclient.Config {
	cfg := httpclient.DefaultConfig()
	if o.Timeout > 0 {
		cfg.Timeout = o.Timeout
	}
	cfg.RetryAttempts = o.RetryAttempts
	return cfg
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Log: log.Config{
			Level:  "info",
			Format: log.FormatJSON,
		},
		Engine: EngineConfig{
			Mode: string(pipeline.ModeWaves),
		},
		OutputDir: "output",
		History: HistoryConfig{
			Enabled: true,
			Path:    filepath.Join(DataDir(), "history.db"),
		},
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				Timeout:       120 * time.Second,
				RetryAttempts: 3,
			},
		},
		Observability: tracing.DefaultConfig(),
	}
}

// Load loads configuration from an optional YAML file and then from
// environment variables. Environment variables take precedence over the
// file. If configPath is empty, only defaults and the environment are used.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &pferrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &pferrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// LoadDefault loads the file at ConfigPath when it exists, otherwise only
// defaults and the environment.
func LoadDefault() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Load("")
	}
	if _, err := os.Stat(path); err != nil {
		return Load("")
	}
	return Load(path)
}

// applyDefaults fills in zero values left by a minimal config file.
func (c *Config) applyDefaults() {
	d := Default()
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Engine.Mode == "" {
		c.Engine.Mode = d.Engine.Mode
	}
	if c.OutputDir == "" {
		c.OutputDir = d.OutputDir
	}
	if c.History.Path == "" {
		c.History.Path = d.History.Path
	}
	if c.Providers.OpenAI.Timeout == 0 {
		c.Providers.OpenAI.Timeout = d.Providers.OpenAI.Timeout
	}
	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = d.Observability.ServiceName
	}
	if c.Observability.BatchTimeout == 0 {
		c.Observability.BatchTimeout = d.Observability.BatchTimeout
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func (c *Config) loadFromEnv() {
	log.ApplyEnv(&c.Log)

	if val := os.Getenv("PIXELFLOW_CONCURRENCY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Engine.Concurrency = n
		}
	}
	if val := os.Getenv("PIXELFLOW_MODE"); val != "" {
		c.Engine.Mode = strings.ToLower(val)
	}
	if val := os.Getenv("PIXELFLOW_OUTPUT_DIR"); val != "" {
		c.OutputDir = val
	}
	if val := os.Getenv("PIXELFLOW_HISTORY_PATH"); val != "" {
		c.History.Path = val
	}
	if val := os.Getenv("PIXELFLOW_HISTORY"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.History.Enabled = enabled
		}
	}
	if val := os.Getenv("PIXELFLOW_METRICS_ADDR"); val != "" {
		c.Observability.MetricsAddr = val
	}

	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		c.Providers.OpenAI.APIKey = val
	}
	if val := os.Getenv("OPENAI_BASE_URL"); val != "" {
		c.Providers.OpenAI.BaseURL = val
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, error], got %q", c.Log.Level))
	}
	if c.Log.Format != log.FormatJSON && c.Log.Format != log.FormatText {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	if c.Engine.Concurrency < 0 {
		errs = append(errs, fmt.Sprintf("engine.concurrency must be non-negative, got %d", c.Engine.Concurrency))
	}
	switch pipeline.Mode(c.Engine.Mode) {
	case pipeline.ModeWaves, pipeline.ModeProgressive:
	default:
		errs = append(errs, fmt.Sprintf("engine.mode must be one of [waves, progressive], got %q", c.Engine.Mode))
	}

	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, "history.path is required when history is enabled")
	}

	oa := c.Providers.OpenAI
	if oa.Timeout < 0 {
		errs = append(errs, fmt.Sprintf("providers.openai.timeout must be non-negative, got %v", oa.Timeout))
	}
	if oa.RateLimit < 0 {
		errs = append(errs, fmt.Sprintf("providers.openai.rate_limit must be non-negative, got %v", oa.RateLimit))
	}
	if oa.Burst < 0 {
		errs = append(errs, fmt.Sprintf("providers.openai.burst must be non-negative, got %d", oa.Burst))
	}
	if oa.RetryAttempts < 0 {
		errs = append(errs, fmt.Sprintf("providers.openai.retry_attempts must be non-negative, got %d", oa.RetryAttempts))
	}

	if err := c.Providers.HTTP.Auth.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("providers.http.auth: %v", err))
	}

	if err := c.Observability.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("observability: %v", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}

	return nil
}

// ResolveOutputDir returns OutputDir, made absolute relative to base when
// it is relative.
func (c *Config) ResolveOutputDir(base string) string {
	if filepath.IsAbs(c.OutputDir) || base == "" {
		return c.OutputDir
	}
	return filepath.Join(base, c.OutputDir)
}
