package pipeline

import (
	"context"
	"fmt"

	"github.com/tombee/pixelflow/internal/jq"
	"github.com/tombee/pixelflow/pkg/artifact"
	"github.com/tombee/pixelflow/pkg/errors"
	"github.com/tombee/pixelflow/pkg/provider"
)

// Assignment is one variable write produced by a step.
type Assignment struct {
	Name  string
	Value artifact.Value
}

// Outcome is the result of dispatching one step. Nothing is written to the
// store until the caller applies the assignments.
type Outcome struct {
	// Assignments are the variables to set, in declared output order.
	Assignments []Assignment

	// Value is the step's primary result.
	Value artifact.Value

	// Provider is the provider the step called, if any.
	Provider string
}

// Dispatcher routes a step to its provider or evaluates a control-flow step.
type Dispatcher struct {
	registry *provider.Registry
	jq       *jq.Executor
}

// NewDispatcher creates a dispatcher over a provider registry.
func NewDispatcher(registry *provider.Registry) *Dispatcher {
	if registry == nil {
		registry = provider.NewRegistry()
	}
	return &Dispatcher{registry: registry, jq: jq.Default}
}

// Dispatch executes one step against vars.
func (d *Dispatcher) Dispatch(ctx context.Context, node *StepNode, vars Variables) (*Outcome, error) {
	switch s := node.Step.(type) {
	case *GenerateStep:
		return d.generate(ctx, node, s)
	case *TransformStep:
		return d.transform(ctx, node, s, vars)
	case *VisionStep:
		return d.vision(ctx, node, s, vars)
	case *TextStep:
		return d.text(ctx, node, s, vars)
	case *SaveStep:
		return d.save(ctx, node, s, vars)
	case *FanOutStep:
		return d.fanOut(ctx, node, s, vars)
	case *CollectStep:
		return collect(node, s, vars)
	case *RouterStep:
		return d.route(ctx, node, s, vars)
	}
	return nil, &errors.ConfigError{
		Key:    node.ID,
		Reason: fmt.Sprintf("unknown step kind %q", node.Kind()),
	}
}

func (d *Dispatcher) generate(ctx context.Context, node *StepNode, s *GenerateStep) (*Outcome, error) {
	g, err := d.registry.Generator(s.Provider)
	if err != nil {
		return nil, err
	}
	img, err := g.Generate(ctx, s.Params)
	if err != nil {
		return nil, providerError(s.Provider, err)
	}
	if img == nil {
		return nil, emptyResult(s.Provider, "image")
	}
	return single(node, img, s.Provider), nil
}

func (d *Dispatcher) transform(ctx context.Context, node *StepNode, s *TransformStep, vars Variables) (*Outcome, error) {
	t, err := d.registry.Transformer(s.Provider)
	if err != nil {
		return nil, err
	}
	in, err := lookupImage(vars, node.ID, s.Input)
	if err != nil {
		return nil, err
	}
	img, err := t.Transform(ctx, s.Operation, in, s.Params)
	if err != nil {
		return nil, providerError(s.Provider, err)
	}
	if img == nil {
		return nil, emptyResult(s.Provider, "image")
	}
	return single(node, img, s.Provider), nil
}

func (d *Dispatcher) vision(ctx context.Context, node *StepNode, s *VisionStep, vars Variables) (*Outcome, error) {
	v, err := d.registry.Vision(s.Provider)
	if err != nil {
		return nil, err
	}
	in, err := lookupImage(vars, node.ID, s.Input)
	if err != nil {
		return nil, err
	}
	data, err := v.Analyze(ctx, in, s.Params)
	if err != nil {
		return nil, providerError(s.Provider, err)
	}
	if data == nil {
		return nil, emptyResult(s.Provider, "data")
	}
	return single(node, data, s.Provider), nil
}

func (d *Dispatcher) text(ctx context.Context, node *StepNode, s *TextStep, vars Variables) (*Outcome, error) {
	t, err := d.registry.Text(s.Provider)
	if err != nil {
		return nil, err
	}
	var input artifact.Value
	if s.Input != "" {
		if input, err = lookup(vars, node.ID, s.Input); err != nil {
			return nil, err
		}
	}
	data, err := t.Complete(ctx, input, s.Params)
	if err != nil {
		return nil, providerError(s.Provider, err)
	}
	if data == nil {
		return nil, emptyResult(s.Provider, "data")
	}
	return single(node, data, s.Provider), nil
}

func (d *Dispatcher) save(ctx context.Context, node *StepNode, s *SaveStep, vars Variables) (*Outcome, error) {
	sv, err := d.registry.Saver(s.Provider)
	if err != nil {
		return nil, err
	}
	in, err := lookupImage(vars, node.ID, s.Input)
	if err != nil {
		return nil, err
	}
	res, err := sv.Save(ctx, in, s.Destination, s.Params)
	if err != nil {
		return nil, providerError(s.Provider, err)
	}
	if res == nil {
		return nil, emptyResult(s.Provider, "save result")
	}
	if res.Provider == "" {
		res.Provider = s.Provider
	}
	return single(node, res, s.Provider), nil
}

func (d *Dispatcher) fanOut(ctx context.Context, node *StepNode, s *FanOutStep, vars Variables) (*Outcome, error) {
	in, err := lookup(vars, node.ID, s.Input)
	if err != nil {
		return nil, err
	}

	out := &Outcome{}
	if s.Mode != FanOutArray {
		for _, name := range s.Outputs {
			out.Assignments = append(out.Assignments, Assignment{Name: name, Value: in})
		}
		out.Value = in
		return out, nil
	}

	items, err := d.arrayItems(ctx, node.ID, s, in)
	if err != nil {
		return nil, err
	}

	// Extra items are dropped; outputs without an item stay unset.
	for i, name := range s.Outputs {
		if i >= len(items) {
			break
		}
		v, err := wrap(items[i])
		if err != nil {
			return nil, &errors.ConfigError{
				Key:    fmt.Sprintf("%s.outputs[%d]", node.ID, i),
				Reason: "array item cannot be stored as JSON",
				Cause:  err,
			}
		}
		out.Assignments = append(out.Assignments, Assignment{Name: name, Value: v})
	}
	if len(out.Assignments) > 0 {
		out.Value = out.Assignments[0].Value
	}
	return out, nil
}

// arrayItems returns the array a fan-out splits: a collection's items, a
// JSON array, or an array property of a JSON object.
func (d *Dispatcher) arrayItems(ctx context.Context, stepID string, s *FanOutStep, in artifact.Value) ([]any, error) {
	if c, ok := in.(*artifact.Collection); ok && s.Property == "" {
		items := make([]any, len(c.Items))
		for i, v := range c.Items {
			items[i] = v
		}
		return items, nil
	}

	data, ok := in.(*artifact.Data)
	if !ok || data.Parsed == nil {
		return nil, &errors.ConfigError{
			Key:    stepID,
			Reason: fmt.Sprintf("fan-out input %q must be an array or JSON data, got %s", s.Input, in.ArtifactType()),
		}
	}

	raw := data.Parsed
	if s.Property != "" {
		v, found, err := d.field(ctx, data.Parsed, s.Property)
		if err != nil {
			return nil, &errors.ConfigError{Key: stepID, Reason: fmt.Sprintf("evaluating %s", s.Property), Cause: err}
		}
		if !found {
			return nil, &errors.ConfigError{
				Key:    stepID,
				Reason: fmt.Sprintf("fan-out input %q has no property %q", s.Input, s.Property),
			}
		}
		raw = v
	}

	items, ok := raw.([]any)
	if !ok {
		return nil, &errors.ConfigError{
			Key:    stepID,
			Reason: fmt.Sprintf("fan-out source %q is %T, want array", s.Property, raw),
		}
	}
	return items, nil
}

func collect(node *StepNode, s *CollectStep, vars Variables) (*Outcome, error) {
	values := make([]artifact.Value, len(s.Inputs))
	for i, name := range s.Inputs {
		v, ok := vars.Get(name)
		if ok && v != nil {
			values[i] = v
			continue
		}
		if s.Wait != WaitAvailable {
			return nil, &errors.ConfigError{
				Key:    node.ID,
				Reason: fmt.Sprintf("collect input %q is not set", name),
				Cause:  &errors.NotFoundError{Resource: "variable", ID: name},
			}
		}
	}

	items := make([]artifact.Value, 0, len(values))
	for _, v := range values {
		if v != nil {
			items = append(items, v)
		}
	}
	if s.Wait == WaitAvailable && s.MinRequired > 0 && len(items) < s.MinRequired {
		return nil, &errors.ConfigError{
			Key:    node.ID,
			Reason: fmt.Sprintf("collect requires at least %d inputs, only %d available", s.MinRequired, len(items)),
		}
	}

	c := &artifact.Collection{Items: items}
	return single(node, c, ""), nil
}

func (d *Dispatcher) route(ctx context.Context, node *StepNode, s *RouterStep, vars Variables) (*Outcome, error) {
	cv, err := lookup(vars, node.ID, s.Candidates)
	if err != nil {
		return nil, err
	}
	candidates, err := candidateList(node.ID, s.Candidates, cv)
	if err != nil {
		return nil, err
	}

	sv, err := lookup(vars, node.ID, s.Selection)
	if err != nil {
		return nil, err
	}
	sel, ok := sv.(*artifact.Data)
	if !ok || sel.Parsed == nil {
		return nil, &errors.ConfigError{
			Key:    node.ID,
			Reason: fmt.Sprintf("router selection %q must be JSON data, got %s", s.Selection, sv.ArtifactType()),
		}
	}

	field := s.Field
	if field == "" {
		field = "index"
		if s.By == SelectProperty {
			field = "value"
		}
	}
	want, found, err := d.field(ctx, sel.Parsed, field)
	if err != nil {
		return nil, &errors.ConfigError{Key: node.ID, Reason: fmt.Sprintf("evaluating %s", field), Cause: err}
	}
	if !found {
		return nil, &errors.ConfigError{
			Key:    node.ID,
			Reason: fmt.Sprintf("router selection %q has no field %q", s.Selection, field),
		}
	}

	var chosen artifact.Value
	if s.By == SelectProperty {
		for _, c := range candidates {
			if got, ok := artifact.Property(c, s.Property); ok && artifact.Equal(got, want) {
				chosen = c
				break
			}
		}
		if chosen == nil {
			return nil, &errors.ConfigError{
				Key:    node.ID,
				Reason: fmt.Sprintf("no candidate has %s = %v", s.Property, want),
				Cause:  &errors.NotFoundError{Resource: "candidate", ID: fmt.Sprintf("%s=%v", s.Property, want)},
			}
		}
	} else {
		idx, ok := artifact.ToInt(want)
		if !ok {
			return nil, &errors.ConfigError{
				Key:    node.ID,
				Reason: fmt.Sprintf("router index %v is not an integer", want),
			}
		}
		if idx < 0 || idx >= len(candidates) {
			return nil, &errors.ConfigError{
				Key:    node.ID,
				Reason: fmt.Sprintf("router index %d out of range [0, %d)", idx, len(candidates)),
			}
		}
		chosen = candidates[idx]
	}

	return single(node, chosen, ""), nil
}

// candidateList accepts a collection or a JSON array.
func candidateList(stepID, name string, v artifact.Value) ([]artifact.Value, error) {
	switch c := v.(type) {
	case *artifact.Collection:
		return c.Items, nil
	case *artifact.Data:
		if arr, ok := c.Parsed.([]any); ok {
			out := make([]artifact.Value, 0, len(arr))
			for _, item := range arr {
				w, err := wrap(item)
				if err != nil {
					return nil, &errors.ConfigError{Key: stepID, Reason: "candidate cannot be stored as JSON", Cause: err}
				}
				out = append(out, w)
			}
			return out, nil
		}
	}
	return nil, &errors.ConfigError{
		Key:    stepID,
		Reason: fmt.Sprintf("router candidates %q must be a collection, got %s", name, v.ArtifactType()),
	}
}

// field reads a key of a parsed JSON object, or evaluates a jq path.
func (d *Dispatcher) field(ctx context.Context, parsed any, ref string) (any, bool, error) {
	if jq.IsPath(ref) {
		v, err := d.jq.Execute(ctx, ref, parsed)
		if err != nil {
			return nil, false, err
		}
		return v, v != nil, nil
	}
	obj, ok := parsed.(map[string]any)
	if !ok {
		return nil, false, nil
	}
	v, ok := obj[ref]
	return v, ok, nil
}

// wrap turns a raw array item into an artifact. Artifacts pass through.
func wrap(item any) (artifact.Value, error) {
	if v, ok := item.(artifact.Value); ok {
		return v, nil
	}
	return artifact.NewJSON(item)
}

func single(node *StepNode, v artifact.Value, providerName string) *Outcome {
	out := &Outcome{Value: v, Provider: providerName}
	if p := node.Primary(); p != "" {
		out.Assignments = []Assignment{{Name: p, Value: v}}
	}
	return out
}

// providerError keeps classified errors as they are and wraps anything else
// as an execution error of the named provider.
func providerError(name string, err error) error {
	if errors.KindOf(err) != errors.KindUnknown {
		return err
	}
	return &errors.ProviderError{
		Provider: name,
		Message:  err.Error(),
		Cause:    err,
	}
}

func emptyResult(name, what string) error {
	return &errors.ProviderError{
		Provider: name,
		Message:  fmt.Sprintf("provider returned no %s", what),
	}
}
