package openai

import (
	"context"

	"github.com/tombee/pixelflow/pkg/artifact"
	pferrors "github.com/tombee/pixelflow/pkg/errors"
	"github.com/tombee/pixelflow/pkg/gate"
)

type moderationRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type moderationResponse struct {
	Results []struct {
		Flagged    bool            `json:"flagged"`
		Categories map[string]bool `json:"categories"`
	} `json:"results"`
}

// Moderator classifies artifacts with /moderations. Wrap it with
// gate.NewModeration to reject flagged step results.
type Moderator struct {
	Client *Client
}

var _ gate.Moderator = (*Moderator)(nil)

// Moderate implements gate.Moderator.
func (m *Moderator) Moderate(ctx context.Context, v artifact.Value) (*gate.Verdict, error) {
	var input any
	switch t := v.(type) {
	case *artifact.Data:
		if t.Raw == "" {
			return &gate.Verdict{}, nil
		}
		input = t.Raw
	case *artifact.Image:
		input = []contentPart{{Type: "image_url", ImageURL: &imageURL{URL: dataURL(t)}}}
	default:
		return &gate.Verdict{}, nil
	}

	var resp moderationResponse
	if err := m.Client.post(ctx, "/moderations", moderationRequest{Model: m.Client.moderationModel, Input: input}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, &pferrors.ProviderError{Provider: providerName, Message: "moderation response contained no results"}
	}

	r := resp.Results[0]
	return &gate.Verdict{Flagged: r.Flagged, Categories: r.Categories}, nil
}
