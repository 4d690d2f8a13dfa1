// Package gate provides checks applied to step results before the progressive
// executor accepts them. A gate that refuses a result returns a
// *errors.GateRejectedError, which is reported distinctly from execution
// failures.
package gate

import (
	"context"

	"github.com/tombee/pixelflow/pkg/artifact"
)

// Gate inspects a produced artifact. A nil error accepts it.
type Gate interface {
	Check(ctx context.Context, stepID string, v artifact.Value) error
}

// Func adapts a function to Gate.
type Func func(ctx context.Context, stepID string, v artifact.Value) error

// Check implements Gate.
func (f Func) Check(ctx context.Context, stepID string, v artifact.Value) error {
	return f(ctx, stepID, v)
}

// All runs gates in order and returns the first rejection.
func All(gates ...Gate) Gate {
	return Func(func(ctx context.Context, stepID string, v artifact.Value) error {
		for _, g := range gates {
			if g == nil {
				continue
			}
			if err := g.Check(ctx, stepID, v); err != nil {
				return err
			}
		}
		return nil
	})
}
