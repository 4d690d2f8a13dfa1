package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"

	"github.com/tombee/pixelflow/pkg/artifact"
	pferrors "github.com/tombee/pixelflow/pkg/errors"
	"github.com/tombee/pixelflow/pkg/httpclient"
	"github.com/tombee/pixelflow/pkg/provider"
)

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size,omitempty"`
	Quality        string `json:"quality,omitempty"`
	Background     string `json:"background,omitempty"`
	OutputFormat   string `json:"output_format,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type imageResponse struct {
	Data []struct {
		B64JSON       string `json:"b64_json"`
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

// Generator creates images with /images/generations.
//
// Params: prompt (required), model, size, quality, background,
// output_format.
type Generator struct {
	Client *Client
}

var _ provider.Generator = (*Generator)(nil)

// Generate implements provider.Generator.
func (g *Generator) Generate(ctx context.Context, params provider.Params) (*artifact.Image, error) {
	prompt := params.String("prompt", "")
	if prompt == "" {
		return nil, &pferrors.ValidationError{Field: "prompt", Message: "openai image generation requires a prompt"}
	}

	model := params.String("model", g.Client.imageModel)
	req := imageRequest{
		Model:      model,
		Prompt:     prompt,
		N:          1,
		Size:       params.String("size", ""),
		Quality:    params.String("quality", ""),
		Background: params.String("background", ""),
	}
	if strings.HasPrefix(model, "dall-e") {
		req.ResponseFormat = "b64_json"
	} else {
		req.OutputFormat = params.String("output_format", "")
	}

	var resp imageResponse
	if err := g.Client.post(ctx, "/images/generations", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, &pferrors.ProviderError{Provider: providerName, Message: "image response contained no data"}
	}

	item := resp.Data[0]
	var data []byte
	switch {
	case item.B64JSON != "":
		decoded, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, &pferrors.ProviderError{Provider: providerName, Message: "invalid base64 image", Cause: err}
		}
		data = decoded
	case item.URL != "":
		downloaded, err := g.Client.download(ctx, item.URL)
		if err != nil {
			return nil, err
		}
		data = downloaded
	default:
		return nil, &pferrors.ProviderError{Provider: providerName, Message: "image response had neither b64_json nor url"}
	}

	img := &artifact.Image{
		Bytes:      data,
		Format:     params.String("output_format", "png"),
		Provenance: providerName,
		Metadata:   map[string]any{"model": model, "prompt": prompt},
	}
	if item.RevisedPrompt != "" {
		img.Metadata["revised_prompt"] = item.RevisedPrompt
	}
	if cfg, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		img.Format, img.Width, img.Height = format, cfg.Width, cfg.Height
	}
	return img, nil
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &pferrors.ProviderError{Provider: providerName, Message: "image download failed", Retryable: true, Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.ErrorFromResponse(providerName, resp)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// dataURL inlines an image for chat and moderation requests.
func dataURL(img *artifact.Image) string {
	return "data:" + img.MediaType() + ";base64," + base64.StdEncoding.EncodeToString(img.Bytes)
}
