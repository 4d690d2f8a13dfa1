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

package shared

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/pixelflow/internal/config"
	"github.com/tombee/pixelflow/internal/history"
	pflog "github.com/tombee/pixelflow/internal/log"
	"github.com/tombee/pixelflow/internal/secrets"
	pferrors "github.com/tombee/pixelflow/pkg/errors"
	"github.com/tombee/pixelflow/pkg/httpclient/auth"
	"github.com/tombee/pixelflow/pkg/pipeline"
	"github.com/tombee/pixelflow/pkg/provider"
)

func testEnv(t *testing.T) *Env {
	t.Helper()
	cfg := config.Default()
	cfg.History.Path = filepath.Join(t.TempDir(), "history.db")
	cfg.OutputDir = t.TempDir()
	return &Env{
		Config:  cfg,
		Logger:  pflog.Discard(),
		Secrets: secrets.NewResolver(secrets.NewEnvBackend()),
		Masker:  secrets.NewMasker(),
	}
}

func TestNewLogger_Levels(t *testing.T) {
	cfg := pflog.Config{Level: "info", Format: pflog.FormatText}

	assert.True(t, NewLogger(cfg, true, false).Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, NewLogger(cfg, false, false).Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, NewLogger(cfg, false, true).Enabled(context.Background(), slog.LevelWarn))

	cfg.Level = "trace"
	assert.True(t, NewLogger(cfg, true, false).Enabled(context.Background(), pflog.LevelTrace),
		"verbose never raises a lower configured level")
}

func TestLoadEnv_ConfigFlag(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("PIXELFLOW_OUTPUT_DIR", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output_dir: rendered\n"), 0600))

	SetConfigPathForTest(path)
	t.Cleanup(func() { SetConfigPathForTest("") })

	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "rendered", env.Config.OutputDir)
	assert.NotNil(t, env.Logger)
	assert.NotNil(t, env.Secrets)
	assert.NotNil(t, env.Masker)
}

func TestEnv_OpenHistory(t *testing.T) {
	env := testEnv(t)

	store, err := env.OpenHistory()
	require.NoError(t, err)
	require.NotNil(t, store)
	require.NoError(t, store.Close())

	env.Config.History.Enabled = false
	store, err = env.OpenHistory()
	require.NoError(t, err)
	assert.Nil(t, store)
}

func TestEnv_OpenHistoryMasksSecrets(t *testing.T) {
	ctx := context.Background()
	env := testEnv(t)
	env.Masker.AddSecret("sk-hidden-key")

	store, err := env.OpenHistory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.CreateRun(ctx, &history.Run{ID: "run-1", Pipeline: "covers"}))
	require.NoError(t, store.FinishRun(ctx, "run-1", history.Summary{Status: pipeline.RunFailed, Error: "bad key sk-hidden-key"}))
	run, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "bad key ***", run.Error)
}

func TestEnv_OpenAIKey(t *testing.T) {
	ctx := context.Background()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("PIXELFLOW_SECRET_PROVIDERS_OPENAI_API_KEY", "")

	env := testEnv(t)
	assert.Empty(t, env.OpenAIKey(ctx))

	t.Setenv("PIXELFLOW_SECRET_PROVIDERS_OPENAI_API_KEY", "sk-from-secrets")
	assert.Equal(t, "sk-from-secrets", env.OpenAIKey(ctx))
	assert.Equal(t, "key ***", env.Masker.Mask("key sk-from-secrets"), "resolved keys are masked")

	env.Config.Providers.OpenAI.APIKey = "sk-from-config"
	assert.Equal(t, "sk-from-config", env.OpenAIKey(ctx))
}

func TestEnv_Registry(t *testing.T) {
	ctx := context.Background()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("PIXELFLOW_SECRET_PROVIDERS_OPENAI_API_KEY", "")

	var logs bytes.Buffer
	env := testEnv(t)
	env.Logger = slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	reg, client, err := env.Registry(ctx, t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, client)
	assert.True(t, reg.Has(provider.CategoryGenerator, "solid"))
	assert.True(t, reg.Has(provider.CategorySaver, "file"))
	assert.False(t, reg.Has(provider.CategoryGenerator, "openai"))
	assert.Contains(t, logs.String(), "openai providers disabled")

	env.Config.Providers.OpenAI.APIKey = "sk-test-1234567890"
	reg, client, err = env.Registry(ctx, t.TempDir())
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.True(t, reg.Has(provider.CategoryGenerator, "openai"))
	assert.True(t, reg.Has(provider.CategoryText, "openai"))
	assert.NotContains(t, logs.String(), "sk-test-1234567890")
}

func TestEnv_UploadAuth(t *testing.T) {
	ctx := context.Background()
	t.Setenv("PIXELFLOW_SECRET_PROVIDERS_HTTP_TOKEN", "")
	t.Setenv("PIXELFLOW_SECRET_PROVIDERS_HTTP_CLIENT_SECRET", "")
	env := testEnv(t)

	signer, err := env.UploadAuth(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, signer, "no auth configured")

	env.Config.Providers.HTTP.Auth = auth.Config{Type: auth.TypeBearer}
	_, err = env.UploadAuth(ctx, nil)
	var cfgErr *pferrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	_, _, err = env.Registry(ctx, t.TempDir())
	require.Error(t, err, "registry refuses a half-configured upload auth")

	t.Setenv("PIXELFLOW_SECRET_PROVIDERS_HTTP_TOKEN", "upload-token-123")
	signer, err = env.UploadAuth(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, auth.Bearer{Token: "upload-token-123"}, signer)
	assert.Equal(t, "***", env.Masker.Mask("upload-token-123"))

	env.Config.Providers.HTTP.Auth = auth.Config{Type: auth.TypeOAuth2, ClientID: "pf", TokenURL: "https://auth.example.com/token"}
	_, err = env.UploadAuth(ctx, nil)
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "auth.client_secret", cfgErr.Key)

	t.Setenv("PIXELFLOW_SECRET_PROVIDERS_HTTP_CLIENT_SECRET", "client-secret-xyz")
	signer, err = env.UploadAuth(ctx, nil)
	require.NoError(t, err)
	assert.IsType(t, &auth.OAuth2{}, signer)
	assert.Equal(t, "***", env.Masker.Mask("client-secret-xyz"))
}
