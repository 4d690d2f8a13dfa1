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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/tombee/pixelflow/internal/config"
	"github.com/tombee/pixelflow/internal/history"
	pflog "github.com/tombee/pixelflow/internal/log"
	"github.com/tombee/pixelflow/internal/secrets"
	"github.com/tombee/pixelflow/pkg/httpclient"
	"github.com/tombee/pixelflow/pkg/httpclient/auth"
	"github.com/tombee/pixelflow/pkg/provider"
	"github.com/tombee/pixelflow/pkg/provider/builtin"
	"github.com/tombee/pixelflow/pkg/provider/openai"
)

// Env is the configuration and shared services a command runs with.
type Env struct {
	Config  *config.Config
	Logger  *slog.Logger
	Secrets *secrets.Resolver

	// Masker scrubs known secret values from what the run history stores.
	// It starts with secret-looking environment variables and the
	// configured API key; keys read from the secret store are added as
	// they are resolved.
	Masker *secrets.Masker
}

// LoadEnv loads configuration from --config (or the default location),
// builds the CLI logger and the secret resolver.
func LoadEnv() (*Env, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := GetConfigPath(); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}

	masker := secrets.NewMasker()
	masker.AddSecretsFromEnv(os.Environ())
	masker.AddSecret(cfg.Providers.OpenAI.APIKey)

	logCfg := cfg.Log
	logCfg.Redact = masker.Mask

	return &Env{
		Config:  cfg,
		Logger:  NewLogger(logCfg, GetVerbose(), GetQuiet()),
		Secrets: secrets.NewDefaultResolver(),
		Masker:  masker,
	}, nil
}

// NewLogger builds the CLI logger. Logs go to stderr so they never mix
// with command output; --verbose lowers the level to debug and --quiet
// raises it to error.
func NewLogger(cfg pflog.Config, verbose, quiet bool) *slog.Logger {
	cfg.Output = os.Stderr
	switch {
	case quiet:
		cfg.Level = "error"
	case verbose && pflog.ParseLevel(cfg.Level) > slog.LevelDebug:
		cfg.Level = "debug"
	}
	return pflog.New(&cfg)
}

// OpenHistory opens the run history database, or returns nil when history
// is disabled.
func (e *Env) OpenHistory() (*history.Store, error) {
	if !e.Config.History.Enabled {
		return nil, nil
	}
	cfg := history.Config{Path: e.Config.History.Path, WAL: true}
	if e.Masker != nil {
		cfg.Masker = e.Masker
	}
	store, err := history.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open run history: %w", err)
	}
	return store, nil
}

// OpenAIKey returns the OpenAI API key from config/environment or the
// secret store, or "" when none is set.
func (e *Env) OpenAIKey(ctx context.Context) string {
	if key := e.Config.Providers.OpenAI.APIKey; key != "" {
		return key
	}
	key := e.secret(ctx, secrets.APIKey("openai"))
	e.Masker.AddSecret(key)
	return key
}

// UploadAuth builds the signer for http saver uploads, or nil when
// providers.http.auth is unset. A token or client secret missing from the
// config file is read from the secret store.
func (e *Env) UploadAuth(ctx context.Context, client *http.Client) (auth.Signer, error) {
	cfg := e.Config.Providers.HTTP.Auth
	switch cfg.Type {
	case auth.TypeBearer:
		if cfg.Token == "" {
			cfg.Token = e.secret(ctx, secrets.UploadToken)
		}
		e.Masker.AddSecret(cfg.Token)
	case auth.TypeOAuth2:
		if cfg.ClientSecret == "" {
			cfg.ClientSecret = e.secret(ctx, secrets.UploadClientSecret)
		}
		e.Masker.AddSecret(cfg.ClientSecret)
	}
	signer, err := auth.New(ctx, cfg, client)
	if err != nil {
		return nil, err
	}
	if signer != nil {
		e.Logger.Debug("http saver uploads are signed", slog.String("auth", cfg.Type))
	}
	return signer, nil
}

func (e *Env) secret(ctx context.Context, key string) string {
	if e.Secrets == nil {
		return ""
	}
	value, err := e.Secrets.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, secrets.ErrSecretNotFound) {
			e.Logger.Warn("failed to read secret", slog.String("key", key), pflog.Error(err))
		}
		return ""
	}
	return value
}

// Registry builds the provider registry: every builtin provider, plus the
// openai providers when an API key is available. The returned client is
// nil when openai is not configured. root resolves relative file inputs.
func (e *Env) Registry(ctx context.Context, root string) (*provider.Registry, *openai.Client, error) {
	reg := provider.NewRegistry()

	httpCfg := httpclient.DefaultConfig()
	httpCfg.Logger = e.Logger
	hc, err := httpclient.New(httpCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	signer, err := e.UploadAuth(ctx, hc)
	if err != nil {
		return nil, nil, err
	}
	builtin.Register(reg, builtin.Options{
		Root:       root,
		OutputDir:  e.Config.OutputDir,
		HTTPClient: hc,
		UploadAuth: signer,
	})

	key := e.OpenAIKey(ctx)
	if key == "" {
		e.Logger.Debug("openai providers disabled: no api key")
		return reg, nil, nil
	}

	oa := e.Config.Providers.OpenAI
	oaHTTP := oa.HTTP()
	oaHTTP.Logger = e.Logger
	client, err := openai.New(openai.Config{
		BaseURL:         oa.BaseURL,
		APIKey:          key,
		Model:           oa.Model,
		ImageModel:      oa.ImageModel,
		ModerationModel: oa.ModerationModel,
		HTTP:            oaHTTP,
	})
	if err != nil {
		return nil, nil, err
	}
	openai.Register(reg, client, oa.Limit())
	e.Logger.Debug("openai providers enabled", slog.String("api_key", pflog.SanitizeAPIKey(key)))
	return reg, client, nil
}
