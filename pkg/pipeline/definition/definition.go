// Package definition loads pipeline definitions from YAML or HCL files and
// turns them into runnable pipelines.
//
// A YAML definition:
//
//	name: covers
//	concurrency: 4
//	inputs:
//	  source: {path: ./photo.png}
//	steps:
//	  - kind: transform
//	    provider: image
//	    operation: resize
//	    input: source
//	    params: {width: 512}
//	    output: thumb
//	  - kind: save
//	    provider: file
//	    input: thumb
//	    destination: thumb.png
//
// The same definition in HCL:
//
//	name        = "covers"
//	concurrency = 4
//
//	input "source" {
//	  path = "./photo.png"
//	}
//
//	step "transform" {
//	  provider  = "image"
//	  operation = "resize"
//	  input     = "source"
//	  params    = { width = 512 }
//	  output    = "thumb"
//	}
package definition

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tombee/pixelflow/pkg/artifact"
	pferrors "github.com/tombee/pixelflow/pkg/errors"
	"github.com/tombee/pixelflow/pkg/pipeline"
	"github.com/tombee/pixelflow/pkg/provider"
	"github.com/tombee/pixelflow/pkg/provider/builtin"
)

// Definition is the file form of a pipeline.
type Definition struct {
	Name        string           `yaml:"name"`
	Concurrency int              `yaml:"concurrency"`
	Inputs      map[string]Input `yaml:"inputs"`
	Steps       []Step           `yaml:"steps"`

	// Dir resolves relative input paths. Load sets it to the file's directory.
	Dir string `yaml:"-"`
}

// Input is an initial variable. Exactly one of Path, Text or JSON is set.
type Input struct {
	Path string `yaml:"path"`
	Text string `yaml:"text"`
	JSON any    `yaml:"json"`
}

// Step is the union of every step kind's fields. Kind selects which apply.
type Step struct {
	Kind     string          `yaml:"kind"`
	Name     string          `yaml:"name"`
	Provider string          `yaml:"provider"`
	Params   provider.Params `yaml:"params"`
	Input    string          `yaml:"input"`
	Output   string          `yaml:"output"`

	// transform
	Operation string `yaml:"operation"`

	// save
	Destination string `yaml:"destination"`

	// fan_out
	Mode     string   `yaml:"mode"`
	Count    int      `yaml:"count"`
	Prefix   string   `yaml:"prefix"`
	Property string   `yaml:"property"`
	Outputs  []string `yaml:"outputs"`

	// collect
	Inputs      []string `yaml:"inputs"`
	Wait        string   `yaml:"wait"`
	MinRequired int      `yaml:"min_required"`

	// router
	Candidates string `yaml:"candidates"`
	Selection  string `yaml:"selection"`
	By         string `yaml:"by"`
	Field      string `yaml:"field"`
}

// Pipeline converts the definition into a pipeline. Input files are loaded
// eagerly so a missing file fails before any step runs.
func (d *Definition) Pipeline() (*pipeline.Pipeline, error) {
	p := &pipeline.Pipeline{
		Name:        d.Name,
		Concurrency: d.Concurrency,
		Initial:     make(map[string]artifact.Value, len(d.Inputs)),
	}
	if d.Concurrency < 0 {
		return nil, &pferrors.ValidationError{Field: "concurrency", Message: "concurrency must not be negative"}
	}

	names := make([]string, 0, len(d.Inputs))
	for name := range d.Inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v, err := d.Inputs[name].value(d.Dir)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", name, err)
		}
		p.Initial[name] = v
	}

	for i, s := range d.Steps {
		step, err := s.build()
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		p.Steps = append(p.Steps, step)
	}
	return p, nil
}

func (in Input) value(dir string) (artifact.Value, error) {
	set := 0
	for _, ok := range []bool{in.Path != "", in.Text != "", in.JSON != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return nil, &pferrors.ValidationError{Field: "inputs", Message: "exactly one of path, text or json is required"}
	}

	switch {
	case in.Path != "":
		path := in.Path
		if !filepath.IsAbs(path) && dir != "" {
			path = filepath.Join(dir, path)
		}
		return builtin.LoadImage(path)
	case in.Text != "":
		return artifact.NewText(in.Text), nil
	default:
		if s, ok := in.JSON.(string); ok {
			return artifact.ParseJSON(s)
		}
		return artifact.NewJSON(in.JSON)
	}
}

// normalizeKind accepts "fan_out", "fan-out" and "fanout" alike.
func normalizeKind(kind string) pipeline.Kind {
	strip := strings.NewReplacer("_", "", "-", "")
	k := strings.ToLower(strip.Replace(kind))
	for _, known := range pipeline.Kinds {
		if strip.Replace(string(known)) == k {
			return known
		}
	}
	return pipeline.Kind(kind)
}

func (s Step) build() (pipeline.Step, error) {
	switch kind := normalizeKind(s.Kind); kind {
	case pipeline.KindGenerate:
		return &pipeline.GenerateStep{Name: s.Name, Provider: s.Provider, Params: s.Params, Output: s.Output}, nil

	case pipeline.KindTransform:
		return &pipeline.TransformStep{
			Name: s.Name, Provider: s.Provider, Operation: s.Operation,
			Input: s.Input, Params: s.Params, Output: s.Output,
		}, nil

	case pipeline.KindSave:
		return &pipeline.SaveStep{
			Name: s.Name, Provider: s.Provider, Input: s.Input,
			Destination: s.Destination, Params: s.Params, Output: s.Output,
		}, nil

	case pipeline.KindVision:
		return &pipeline.VisionStep{Name: s.Name, Provider: s.Provider, Input: s.Input, Params: s.Params, Output: s.Output}, nil

	case pipeline.KindText:
		return &pipeline.TextStep{Name: s.Name, Provider: s.Provider, Input: s.Input, Params: s.Params, Output: s.Output}, nil

	case pipeline.KindFanOut:
		step := &pipeline.FanOutStep{
			Name:     s.Name,
			Input:    s.Input,
			Mode:     pipeline.FanOutMode(s.Mode),
			Count:    s.Count,
			Property: s.Property,
			Outputs:  s.Outputs,
		}
		if step.Mode == "" {
			step.Mode = pipeline.FanOutCount
			if s.Property != "" {
				step.Mode = pipeline.FanOutArray
			}
		}
		if len(step.Outputs) == 0 && s.Prefix != "" && s.Count > 0 {
			for i := 0; i < s.Count; i++ {
				step.Outputs = append(step.Outputs, fmt.Sprintf("%s_%d", s.Prefix, i))
			}
		}
		return step, nil

	case pipeline.KindCollect:
		step := &pipeline.CollectStep{
			Name:        s.Name,
			Inputs:      s.Inputs,
			Output:      s.Output,
			Wait:        pipeline.WaitMode(s.Wait),
			MinRequired: s.MinRequired,
		}
		if step.Wait == "" {
			step.Wait = pipeline.WaitAll
		}
		return step, nil

	case pipeline.KindRouter:
		step := &pipeline.RouterStep{
			Name:       s.Name,
			Candidates: s.Candidates,
			Selection:  s.Selection,
			Output:     s.Output,
			By:         pipeline.SelectBy(s.By),
			Field:      s.Field,
			Property:   s.Property,
		}
		if step.By == "" {
			step.By = pipeline.SelectIndex
		}
		return step, nil

	default:
		return nil, &pferrors.ValidationError{
			Field:      "kind",
			Message:    fmt.Sprintf("unknown step kind %q", s.Kind),
			Suggestion: "use one of generate, transform, save, vision, text, fan_out, collect, router",
		}
	}
}
