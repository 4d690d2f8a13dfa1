// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shared

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/pflag"

	pferrors "github.com/tombee/pixelflow/pkg/errors"
	"github.com/tombee/pixelflow/pkg/pipeline"
	"github.com/tombee/pixelflow/pkg/pipeline/definition"
	"github.com/tombee/pixelflow/pkg/provider"
)

// VarsFlag collects repeated name=path flags. Paths are made absolute when
// set so they resolve against the working directory, not the definition.
type VarsFlag map[string]string

var _ pflag.Value = (VarsFlag)(nil)

// Set implements pflag.Value.
func (v VarsFlag) Set(s string) error {
	name, path, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" || path == "" {
		return fmt.Errorf("expected name=path, got %q", s)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	v[name] = abs
	return nil
}

// String implements pflag.Value.
func (v VarsFlag) String() string {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + v[name]
	}
	return strings.Join(parts, ",")
}

// Type implements pflag.Value.
func (v VarsFlag) Type() string {
	return "name=path"
}

// Inputs overrides or adds definition inputs from the command line.
type Inputs struct {
	// Images maps variable names to image files.
	Images VarsFlag

	// Text maps variable names to literal text values.
	Text map[string]string
}

// Apply sets the overrides on def.
func (in Inputs) Apply(def *definition.Definition) {
	if len(in.Images) == 0 && len(in.Text) == 0 {
		return
	}
	if def.Inputs == nil {
		def.Inputs = make(map[string]definition.Input)
	}
	for name, path := range in.Images {
		def.Inputs[name] = definition.Input{Path: path}
	}
	for name, text := range in.Text {
		def.Inputs[name] = definition.Input{Text: text}
	}
}

// LoadPipeline loads a definition file, applies command-line inputs and
// builds the pipeline. Failures are returned as invalid-pipeline exit
// errors.
func LoadPipeline(path string, in Inputs) (*definition.Definition, *pipeline.Pipeline, error) {
	def, err := definition.Load(path)
	if err != nil {
		return nil, nil, NewInvalidPipelineError("failed to load pipeline", err)
	}
	in.Apply(def)

	p, err := def.Pipeline()
	if err != nil {
		return nil, nil, NewInvalidPipelineError("invalid pipeline", err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return def, p, nil
}

// PlanPipeline schedules p, mapping failures to invalid-pipeline errors.
func PlanPipeline(engine *pipeline.Engine, p *pipeline.Pipeline) ([]pipeline.ExecutionWave, error) {
	waves, err := engine.Plan(p)
	if err != nil {
		return nil, NewInvalidPipelineError("invalid pipeline", err)
	}
	return waves, nil
}

// ProviderRef names the provider a step uses.
type ProviderRef struct {
	StepID   string            `json:"step_id"`
	Category provider.Category `json:"category"`
	Name     string            `json:"name"`
}

// ProviderRefs lists the provider every provider-backed step references.
func ProviderRefs(waves []pipeline.ExecutionWave) []ProviderRef {
	var refs []ProviderRef
	for _, node := range pipeline.Linearize(waves) {
		ref := ProviderRef{StepID: node.ID}
		switch s := node.Step.(type) {
		case *pipeline.GenerateStep:
			ref.Category, ref.Name = provider.CategoryGenerator, s.Provider
		case *pipeline.TransformStep:
			ref.Category, ref.Name = provider.CategoryTransform, s.Provider
		case *pipeline.VisionStep:
			ref.Category, ref.Name = provider.CategoryVision, s.Provider
		case *pipeline.TextStep:
			ref.Category, ref.Name = provider.CategoryText, s.Provider
		case *pipeline.SaveStep:
			ref.Category, ref.Name = provider.CategorySaver, s.Provider
		default:
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

// UnknownProviderError reports a step whose provider is not registered.
func UnknownProviderError(ref ProviderRef) error {
	suggestion := "check the provider name; builtin providers are listed by 'pixelflow validate --verbose'"
	if ref.Name == "openai" {
		suggestion = "set OPENAI_API_KEY or run 'pixelflow secrets set openai'"
	}
	return &pferrors.ValidationError{
		Field:      ref.StepID,
		Message:    fmt.Sprintf("%s provider %q is not registered", ref.Category, ref.Name),
		Suggestion: suggestion,
	}
}

// CheckProviders returns an error for every step whose provider is missing
// from reg.
func CheckProviders(reg *provider.Registry, waves []pipeline.ExecutionWave) []error {
	var errs []error
	for _, ref := range ProviderRefs(waves) {
		if !reg.Has(ref.Category, ref.Name) {
			errs = append(errs, UnknownProviderError(ref))
		}
	}
	return errs
}
