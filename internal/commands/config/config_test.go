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

package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/pixelflow/internal/commands/shared"
	"github.com/tombee/pixelflow/internal/config"
	"github.com/tombee/pixelflow/internal/tracing"
)

// setup points --config at a file in a temp dir, written when body is not
// empty, and clears the environment overrides config.Load reads.
func setup(t *testing.T, body string) string {
	t.Helper()
	for _, k := range []string{
		"PIXELFLOW_DEBUG", "PIXELFLOW_LOG_LEVEL", "LOG_LEVEL", "LOG_FORMAT", "LOG_SOURCE",
		"PIXELFLOW_CONCURRENCY", "PIXELFLOW_MODE", "PIXELFLOW_OUTPUT_DIR",
		"PIXELFLOW_HISTORY_PATH", "PIXELFLOW_HISTORY", "PIXELFLOW_METRICS_ADDR",
		"OPENAI_API_KEY", "OPENAI_BASE_URL",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "config.yaml")
	if body != "" {
		require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	}
	shared.SetConfigPathForTest(path)
	t.Cleanup(func() {
		shared.SetConfigPathForTest("")
		shared.SetJSONForTest(false)
	})
	return path
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigShow(t *testing.T) {
	path := setup(t, `
engine:
  mode: progressive
providers:
  openai:
    api_key: sk-1234567890abcdef
`)

	out, err := execute(t, NewConfigCommand(), "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration: "+path)
	assert.Contains(t, out, "mode: progressive")
	assert.Contains(t, out, "sk-1***********cdef")
	assert.NotContains(t, out, "sk-1234567890abcdef")
}

func TestConfigShow_DefaultsWhenMissing(t *testing.T) {
	setup(t, "")

	out, err := execute(t, NewConfigCommand())
	require.NoError(t, err, "show is the default subcommand")
	assert.Contains(t, out, "not found, showing defaults")
	assert.Contains(t, out, "mode: waves")
}

func TestConfigShow_JSON(t *testing.T) {
	path := setup(t, "output_dir: /srv/out\n")
	shared.SetJSONForTest(true)

	out, err := execute(t, NewConfigCommand(), "show")
	require.NoError(t, err)

	var resp struct {
		Path   string         `json:"path"`
		Exists bool           `json:"exists"`
		Config map[string]any `json:"config"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, path, resp.Path)
	assert.True(t, resp.Exists)
	assert.Equal(t, "/srv/out", resp.Config["output_dir"])
}

func TestConfigPath(t *testing.T) {
	path := setup(t, "")

	out, err := execute(t, NewConfigCommand(), "path")
	require.NoError(t, err)
	assert.Equal(t, path+"\n", out)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		strict   bool
		wantErr  bool
		contains []string
	}{
		{
			name:     "valid",
			body:     "engine:\n  concurrency: 2\n",
			contains: []string{"Configuration is valid", "No issues found."},
		},
		{
			name:     "missing file warns",
			contains: []string{"Configuration is valid", "No config file found"},
		},
		{
			name:     "missing file fails strict",
			strict:   true,
			wantErr:  true,
			contains: []string{"No config file found"},
		},
		{
			name:     "invalid values",
			body:     "log:\n  level: loud\nengine:\n  mode: turbo\n",
			wantErr:  true,
			contains: []string{"Configuration validation failed", "log.level", "engine.mode"},
		},
		{
			name:     "bad yaml",
			body:     "engine: [not, a, map]\n",
			wantErr:  true,
			contains: []string{"config_file"},
		},
		{
			name:     "api key in file",
			body:     "providers:\n  openai:\n    api_key: sk-abc\n",
			contains: []string{"Warnings:", "pixelflow secrets set openai"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setup(t, tt.body)

			args := []string{"validate"}
			if tt.strict {
				args = append(args, "--strict")
			}
			out, err := execute(t, NewConfigCommand(), args...)
			if tt.wantErr {
				var exitErr *shared.ExitError
				require.ErrorAs(t, err, &exitErr)
				assert.Equal(t, shared.ExitInvalidPipeline, exitErr.Code)
			} else {
				require.NoError(t, err)
			}
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
		})
	}
}

func TestConfigValidate_JSON(t *testing.T) {
	setup(t, "engine:\n  concurrency: -1\n")
	shared.SetJSONForTest(true)

	out, err := execute(t, NewConfigCommand(), "validate")
	require.Error(t, err)
	assert.NotContains(t, out, "Usage:")
	assert.NotContains(t, out, "Error:")

	var resp struct {
		Success bool     `json:"success"`
		Valid   bool     `json:"valid"`
		Errors  []string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.False(t, resp.Success)
	assert.False(t, resp.Valid)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0], "engine.concurrency")
}

func TestMaskSensitiveConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Providers.OpenAI.APIKey = "short"
	cfg.Providers.HTTP.Auth.ClientSecret = "client-secret-value"
	cfg.Observability.Exporters = []tracing.ExporterConfig{
		{Type: "otlp", Endpoint: "collector:4317", Headers: map[string]string{"authorization": "Bearer abcdefghijkl"}},
	}

	masked := maskSensitiveConfig(cfg)
	assert.Equal(t, "****", masked.Providers.OpenAI.APIKey)
	assert.Equal(t, "clie***********alue", masked.Providers.HTTP.Auth.ClientSecret)
	assert.Empty(t, masked.Providers.HTTP.Auth.Token)
	assert.Equal(t, "Bear***********ijkl", masked.Observability.Exporters[0].Headers["authorization"])
	assert.Equal(t, "short", cfg.Providers.OpenAI.APIKey, "the original is untouched")
	assert.Equal(t, "Bearer abcdefghijkl", cfg.Observability.Exporters[0].Headers["authorization"])
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "", maskAPIKey(""))
	assert.Equal(t, "****", maskAPIKey("12345678"))
	assert.Equal(t, "sk-1*****2345", maskAPIKey("sk-1abcde2345"))
}
