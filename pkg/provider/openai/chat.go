package openai

import (
	"context"

	"github.com/tombee/pixelflow/pkg/artifact"
	pferrors "github.com/tombee/pixelflow/pkg/errors"
	"github.com/tombee/pixelflow/pkg/provider"
)

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_completion_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// complete runs one chat completion and converts the reply to Data.
// format "json" requests a JSON object reply and parses it.
func (c *Client) complete(ctx context.Context, params provider.Params, user []contentPart) (*artifact.Data, error) {
	format := params.String("format", "text")
	req := chatRequest{
		Model:     params.String("model", c.model),
		MaxTokens: params.Int("max_tokens", 0),
	}
	if system := params.String("system", ""); system != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: system})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: user})
	if format == "json" {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var resp chatResponse
	if err := c.post(ctx, "/chat/completions", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, &pferrors.ProviderError{Provider: providerName, Message: "chat response contained no choices"}
	}

	content := resp.Choices[0].Message.Content
	var out *artifact.Data
	if format == "json" {
		parsed, err := artifact.ParseJSON(content)
		if err != nil {
			return nil, &pferrors.ProviderError{Provider: providerName, Message: "model did not return valid JSON", Cause: err}
		}
		out = parsed
	} else {
		out = artifact.NewText(content)
	}

	out.Provenance = providerName
	out.Metadata = map[string]any{
		"model":             resp.Model,
		"finish_reason":     resp.Choices[0].FinishReason,
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
	}
	return out, nil
}

// Vision describes images through a multimodal chat model.
//
// Params: prompt (default asks for a caption), format, model, system,
// max_tokens, detail.
type Vision struct {
	Client *Client
}

var _ provider.Vision = (*Vision)(nil)

// Analyze implements provider.Vision.
func (v *Vision) Analyze(ctx context.Context, img *artifact.Image, params provider.Params) (*artifact.Data, error) {
	if img == nil || len(img.Bytes) == 0 {
		return nil, &pferrors.ValidationError{Field: "input", Message: "vision requires a non-empty image"}
	}
	prompt := params.String("prompt", "Describe this image in one sentence.")
	return v.Client.complete(ctx, params, []contentPart{
		{Type: "text", Text: prompt},
		{Type: "image_url", ImageURL: &imageURL{URL: dataURL(img), Detail: params.String("detail", "")}},
	})
}

// Text completes prompts, optionally with a context artifact appended:
// data is inlined as text, images are attached.
//
// Params: prompt (required), format, model, system, max_tokens.
type Text struct {
	Client *Client
}

var _ provider.Text = (*Text)(nil)

// Complete implements provider.Text.
func (t *Text) Complete(ctx context.Context, input artifact.Value, params provider.Params) (*artifact.Data, error) {
	prompt := params.String("prompt", "")
	if prompt == "" {
		return nil, &pferrors.ValidationError{Field: "prompt", Message: "openai text requires a prompt"}
	}

	parts := []contentPart{{Type: "text", Text: prompt}}
	switch in := input.(type) {
	case nil:
	case *artifact.Data:
		parts = append(parts, contentPart{Type: "text", Text: "Context:\n" + in.Raw})
	case *artifact.Image:
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: dataURL(in)}})
	default:
		parts = append(parts, contentPart{Type: "text", Text: "Context: " + artifact.Describe(in)})
	}
	return t.Client.complete(ctx, params, parts)
}
