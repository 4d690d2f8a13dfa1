package gate

import (
	"context"
	"fmt"
	"sort"

	"github.com/tombee/pixelflow/pkg/artifact"
	pferrors "github.com/tombee/pixelflow/pkg/errors"
)

// Verdict is a moderation result.
type Verdict struct {
	Flagged bool

	// Categories maps category names to whether they were flagged
	Categories map[string]bool
}

// Moderator classifies an image or data artifact.
type Moderator interface {
	Moderate(ctx context.Context, v artifact.Value) (*Verdict, error)
}

// ModerationGate rejects artifacts a Moderator flags. Collections are
// checked item by item; save results pass unchecked. Moderator failures
// are returned as they are, so they report as execution errors.
type ModerationGate struct {
	Name      string
	Moderator Moderator
}

// NewModeration returns a gate named name backed by m.
func NewModeration(name string, m Moderator) *ModerationGate {
	if name == "" {
		name = "moderation"
	}
	return &ModerationGate{Name: name, Moderator: m}
}

// Check implements Gate.
func (g *ModerationGate) Check(ctx context.Context, stepID string, v artifact.Value) error {
	switch t := v.(type) {
	case *artifact.SaveResult, nil:
		return nil
	case *artifact.Collection:
		for i, item := range t.Items {
			if err := g.Check(ctx, stepID, item); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
		return nil
	}

	verdict, err := g.Moderator.Moderate(ctx, v)
	if err != nil {
		return err
	}
	if verdict == nil || !verdict.Flagged {
		return nil
	}

	var flagged []string
	for name, hit := range verdict.Categories {
		if hit {
			flagged = append(flagged, name)
		}
	}
	sort.Strings(flagged)

	return &pferrors.GateRejectedError{
		Gate:       g.Name,
		Reason:     fmt.Sprintf("%s output was flagged", stepID),
		Categories: flagged,
	}
}
