package pipeline

import (
	"fmt"
	"strings"

	"github.com/tombee/pixelflow/pkg/errors"
)

// StepNode is a step plus its derived dependencies and outputs.
type StepNode struct {
	Step Step

	// ID identifies the step in results and status events: the step name,
	// else the primary output, else "step-<index>".
	ID string

	// Index is the position of the step in the pipeline.
	Index int

	// Dependencies are the variables that must exist before the step runs.
	Dependencies []string

	// After are soft ordering constraints: variables produced by other steps
	// that a best-effort collect waits for without requiring them.
	After []string

	// Outputs are the variables the step declares. The first is primary.
	Outputs []string
}

// Kind returns the step kind.
func (n *StepNode) Kind() Kind { return n.Step.Kind() }

// Primary returns the primary output name, or "" for a save without output.
func (n *StepNode) Primary() string {
	if len(n.Outputs) == 0 {
		return ""
	}
	return n.Outputs[0]
}

// BuildGraph derives a StepNode for every step. It rejects malformed steps
// and output names declared by more than one step.
func BuildGraph(steps []Step) ([]*StepNode, error) {
	nodes := make([]*StepNode, 0, len(steps))
	producers := make(map[string]int)
	ids := make(map[string]int)

	for i, s := range steps {
		if s == nil {
			return nil, &errors.ValidationError{
				Field:   fmt.Sprintf("steps[%d]", i),
				Message: "step is nil",
			}
		}

		deps, outputs, err := extract(s)
		if err != nil {
			return nil, fmt.Errorf("steps[%d] (%s): %w", i, s.Kind(), err)
		}

		for _, out := range outputs {
			if out == "" {
				return nil, &errors.ValidationError{
					Field:   fmt.Sprintf("steps[%d].output", i),
					Message: fmt.Sprintf("%s step declares an empty output name", s.Kind()),
				}
			}
			if prev, dup := producers[out]; dup {
				return nil, &errors.ConfigError{
					Key:    fmt.Sprintf("steps[%d].output", i),
					Reason: fmt.Sprintf("output %q is already declared by steps[%d]", out, prev),
				}
			}
			producers[out] = i
		}

		node := &StepNode{
			Step:         s,
			Index:        i,
			Dependencies: dedupe(deps),
			Outputs:      outputs,
		}
		node.ID = stepID(s, outputs, i)
		if prev, dup := ids[node.ID]; dup {
			return nil, &errors.ValidationError{
				Field:      fmt.Sprintf("steps[%d].name", i),
				Message:    fmt.Sprintf("step id %q is already used by steps[%d]", node.ID, prev),
				Suggestion: "give the step a unique name",
			}
		}
		ids[node.ID] = i
		nodes = append(nodes, node)
	}

	// A best-effort collect runs after whichever of its inputs some step produces.
	for _, n := range nodes {
		c, ok := n.Step.(*CollectStep)
		if !ok || c.Wait != WaitAvailable {
			continue
		}
		for _, in := range dedupe(c.Inputs) {
			if p, produced := producers[in]; produced && p != n.Index {
				n.After = append(n.After, in)
			}
		}
	}

	return nodes, nil
}

// extract returns the hard dependencies and declared outputs of a step.
func extract(s Step) ([]string, []string, error) {
	switch st := s.(type) {
	case *GenerateStep:
		if err := requireFields(map[string]string{"provider": st.Provider}); err != nil {
			return nil, nil, err
		}
		return nil, []string{st.Output}, nil

	case *TransformStep:
		if err := requireFields(map[string]string{"provider": st.Provider, "input": st.Input}); err != nil {
			return nil, nil, err
		}
		return []string{st.Input}, []string{st.Output}, nil

	case *VisionStep:
		if err := requireFields(map[string]string{"provider": st.Provider, "input": st.Input}); err != nil {
			return nil, nil, err
		}
		return []string{st.Input}, []string{st.Output}, nil

	case *TextStep:
		if err := requireFields(map[string]string{"provider": st.Provider}); err != nil {
			return nil, nil, err
		}
		if st.Input == "" {
			return nil, []string{st.Output}, nil
		}
		return []string{st.Input}, []string{st.Output}, nil

	case *SaveStep:
		if err := requireFields(map[string]string{"provider": st.Provider, "input": st.Input}); err != nil {
			return nil, nil, err
		}
		if st.Output == "" {
			return []string{st.Input}, nil, nil
		}
		return []string{st.Input}, []string{st.Output}, nil

	case *FanOutStep:
		if err := requireFields(map[string]string{"input": st.Input}); err != nil {
			return nil, nil, err
		}
		if st.Count < 0 {
			return nil, nil, &errors.ValidationError{Field: "count", Message: fmt.Sprintf("count must be positive, got %d", st.Count)}
		}
		if len(st.Outputs) == 0 {
			return nil, nil, &errors.ValidationError{Field: "outputs", Message: "fan-out declares no outputs"}
		}
		switch st.Mode {
		case FanOutCount, "":
			if st.Count != 0 && st.Count != len(st.Outputs) {
				return nil, nil, &errors.ValidationError{
					Field:   "count",
					Message: fmt.Sprintf("count %d does not match %d declared outputs", st.Count, len(st.Outputs)),
				}
			}
		case FanOutArray:
		default:
			return nil, nil, &errors.ValidationError{
				Field:      "mode",
				Message:    fmt.Sprintf("unknown fan-out mode %q", st.Mode),
				Suggestion: "use count or array",
			}
		}
		return []string{st.Input}, append([]string(nil), st.Outputs...), nil

	case *CollectStep:
		if len(st.Inputs) == 0 {
			return nil, nil, &errors.ValidationError{Field: "inputs", Message: "collect declares no inputs"}
		}
		for i, in := range st.Inputs {
			if in == "" {
				return nil, nil, &errors.ValidationError{Field: fmt.Sprintf("inputs[%d]", i), Message: "input name is empty"}
			}
		}
		switch st.Wait {
		case WaitAll, "":
			return append([]string(nil), st.Inputs...), []string{st.Output}, nil
		case WaitAvailable:
			if st.MinRequired < 0 || st.MinRequired > len(st.Inputs) {
				return nil, nil, &errors.ValidationError{
					Field:   "min_required",
					Message: fmt.Sprintf("min_required %d is outside [0, %d]", st.MinRequired, len(st.Inputs)),
				}
			}
			return nil, []string{st.Output}, nil
		default:
			return nil, nil, &errors.ValidationError{
				Field:      "wait",
				Message:    fmt.Sprintf("unknown wait mode %q", st.Wait),
				Suggestion: "use all or available",
			}
		}

	case *RouterStep:
		if err := requireFields(map[string]string{"candidates": st.Candidates, "selection": st.Selection}); err != nil {
			return nil, nil, err
		}
		switch st.By {
		case SelectIndex, "":
		case SelectProperty:
			if st.Property == "" {
				return nil, nil, &errors.ValidationError{Field: "property", Message: "property selection needs a candidate property"}
			}
		default:
			return nil, nil, &errors.ValidationError{
				Field:      "by",
				Message:    fmt.Sprintf("unknown selection mode %q", st.By),
				Suggestion: "use index or property",
			}
		}
		return []string{st.Candidates, st.Selection}, []string{st.Output}, nil
	}

	return nil, nil, &errors.ConfigError{
		Key:    "kind",
		Reason: fmt.Sprintf("unknown step kind %q", s.Kind()),
	}
}

func requireFields(fields map[string]string) error {
	var missing []string
	for _, name := range []string{"provider", "input", "candidates", "selection"} {
		if v, ok := fields[name]; ok && strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &errors.ValidationError{
		Field:   strings.Join(missing, ", "),
		Message: "required field is empty",
	}
}

func stepID(s Step, outputs []string, index int) string {
	if name := s.StepName(); name != "" {
		return name
	}
	if len(outputs) > 0 && outputs[0] != "" {
		return outputs[0]
	}
	return fmt.Sprintf("step-%d", index)
}

func dedupe(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
