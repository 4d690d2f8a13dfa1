// Package openai implements pixelflow providers on top of the OpenAI HTTP
// API, or any server that speaks the same protocol: image generation,
// vision and text through chat completions, and content moderation.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	pferrors "github.com/tombee/pixelflow/pkg/errors"
	"github.com/tombee/pixelflow/pkg/httpclient"
)

const (
	// DefaultBaseURL is the public OpenAI API endpoint
	DefaultBaseURL = "https://api.openai.com/v1"

	DefaultModel           = "gpt-4o-mini"
	DefaultImageModel      = "gpt-image-1"
	DefaultModerationModel = "omni-moderation-latest"

	providerName = "openai"
)

// Config configures a Client.
type Config struct {
	BaseURL         string
	APIKey          string
	Model           string
	ImageModel      string
	ModerationModel string

	// HTTP configures the underlying client; zero value means
	// httpclient.DefaultConfig().
	HTTP httpclient.Config
}

// Client is a thin JSON client for the OpenAI API. It is safe for
// concurrent use. The provider types in this package share one Client.
type Client struct {
	baseURL         string
	apiKey          string
	model           string
	imageModel      string
	moderationModel string
	http            *http.Client
}

// New creates a Client. An API key is required.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, &pferrors.ConfigError{
			Key:    "providers.openai.api_key",
			Reason: "OpenAI API key is not set (OPENAI_API_KEY or pixelflow auth set openai)",
		}
	}

	httpCfg := cfg.HTTP
	if httpCfg.Timeout == 0 {
		logger := httpCfg.Logger
		httpCfg = httpclient.DefaultConfig()
		httpCfg.Logger = logger
	}
	hc, err := httpclient.New(httpCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	c := &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:          cfg.APIKey,
		model:           cfg.Model,
		imageModel:      cfg.ImageModel,
		moderationModel: cfg.ModerationModel,
		http:            hc,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.imageModel == "" {
		c.imageModel = DefaultImageModel
	}
	if c.moderationModel == "" {
		c.moderationModel = DefaultModerationModel
	}
	return c, nil
}

// post sends body as JSON to path and decodes the response into out.
// Every request carries an Idempotency-Key so the retry transport may
// resend it.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(httpclient.HeaderIdempotencyKey, uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &pferrors.ProviderError{
			Provider:  providerName,
			Message:   "request failed",
			Retryable: true,
			Cause:     err,
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpclient.ErrorFromResponse(providerName, resp)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &pferrors.ProviderError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Message:    "invalid response body",
			RequestID:  resp.Header.Get("X-Request-Id"),
			Cause:      err,
		}
	}
	return nil
}
