package pipeline

import (
	"fmt"
	"strings"

	"github.com/tombee/pixelflow/pkg/errors"
)

// ExecutionWave is a batch of steps whose dependencies are satisfied by
// pre-supplied variables or by earlier waves.
type ExecutionWave struct {
	Index int
	Nodes []*StepNode
}

// UnsatisfiedStep describes one step the scheduler could not place.
type UnsatisfiedStep struct {
	ID      string
	Kind    Kind
	Missing []string
}

// UnsatisfiedError is returned when no remaining step can run: either the
// graph has a cycle or a step reads a variable nothing produces.
type UnsatisfiedError struct {
	Steps []UnsatisfiedStep
}

// Error implements the error interface.
func (e *UnsatisfiedError) Error() string {
	parts := make([]string, 0, len(e.Steps))
	for _, s := range e.Steps {
		parts = append(parts, fmt.Sprintf("%s (%s) is missing %s", s.ID, s.Kind, strings.Join(s.Missing, ", ")))
	}
	return fmt.Sprintf("pipeline cannot be scheduled: %s", strings.Join(parts, "; "))
}

// ErrorType implements errors.ErrorClassifier.
func (e *UnsatisfiedError) ErrorType() string { return string(errors.KindConfiguration) }

// IsRetryable implements errors.ErrorClassifier.
func (e *UnsatisfiedError) IsRetryable() bool { return false }

// Schedule partitions nodes into waves using greedy level assignment. A node
// joins the first wave in which all its dependencies are members of
// preSatisfied or outputs of nodes in strictly earlier waves. Within a wave,
// nodes keep their pipeline order.
func Schedule(nodes []*StepNode, preSatisfied []string) ([]ExecutionWave, error) {
	satisfied := make(map[string]struct{}, len(preSatisfied))
	for _, name := range preSatisfied {
		satisfied[name] = struct{}{}
	}

	remaining := append([]*StepNode(nil), nodes...)
	var waves []ExecutionWave

	for len(remaining) > 0 {
		var wave, blocked []*StepNode
		for _, n := range remaining {
			if len(missing(n, satisfied)) == 0 {
				wave = append(wave, n)
			} else {
				blocked = append(blocked, n)
			}
		}

		if len(wave) == 0 {
			err := &UnsatisfiedError{}
			for _, n := range blocked {
				err.Steps = append(err.Steps, UnsatisfiedStep{
					ID:      n.ID,
					Kind:    n.Kind(),
					Missing: missing(n, satisfied),
				})
			}
			return nil, err
		}

		for _, n := range wave {
			for _, out := range n.Outputs {
				satisfied[out] = struct{}{}
			}
		}
		waves = append(waves, ExecutionWave{Index: len(waves), Nodes: wave})
		remaining = blocked
	}

	return waves, nil
}

func missing(n *StepNode, satisfied map[string]struct{}) []string {
	var out []string
	for _, names := range [][]string{n.Dependencies, n.After} {
		for _, name := range names {
			if _, ok := satisfied[name]; !ok {
				out = append(out, name)
			}
		}
	}
	return out
}

// Linearize flattens waves into the order the progressive executor uses:
// wave order, then pipeline order within a wave.
func Linearize(waves []ExecutionWave) []*StepNode {
	var out []*StepNode
	for _, w := range waves {
		out = append(out, w.Nodes...)
	}
	return out
}
