package definition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	"gopkg.in/yaml.v3"

	pferrors "github.com/tombee/pixelflow/pkg/errors"
	"github.com/tombee/pixelflow/pkg/provider"
)

// Format is a definition file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatHCL  Format = "hcl"
)

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".hcl":
		return FormatHCL, nil
	default:
		return "", &pferrors.ValidationError{
			Field:      "file",
			Message:    fmt.Sprintf("unsupported definition file %q", path),
			Suggestion: "use a .yaml, .yml or .hcl file",
		}
	}
}

// Load reads and parses a definition file.
func Load(path string) (*Definition, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &pferrors.NotFoundError{Resource: "pipeline definition", ID: path}
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	def, err := Parse(data, format, path)
	if err != nil {
		return nil, err
	}
	def.Dir = filepath.Dir(path)
	return def, nil
}

// Parse decodes a definition. filename is used in error messages only.
func Parse(data []byte, format Format, filename string) (*Definition, error) {
	switch format {
	case FormatYAML:
		return parseYAML(data, filename)
	case FormatHCL:
		return parseHCL(data, filename)
	default:
		return nil, fmt.Errorf("unknown definition format %q", format)
	}
}

func parseYAML(data []byte, filename string) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, &pferrors.ConfigError{Key: filename, Reason: "invalid YAML definition", Cause: err}
	}
	return &def, nil
}

type hclFile struct {
	Name        string     `hcl:"name,optional"`
	Concurrency int        `hcl:"concurrency,optional"`
	Inputs      []hclInput `hcl:"input,block"`
	Steps       []hclStep  `hcl:"step,block"`
}

type hclInput struct {
	Name string     `hcl:"name,label"`
	Path string     `hcl:"path,optional"`
	Text string     `hcl:"text,optional"`
	JSON *cty.Value `hcl:"json,optional"`
}

type hclStep struct {
	Kind        string     `hcl:"kind,label"`
	Name        string     `hcl:"name,optional"`
	Provider    string     `hcl:"provider,optional"`
	Params      *cty.Value `hcl:"params,optional"`
	Input       string     `hcl:"input,optional"`
	Output      string     `hcl:"output,optional"`
	Operation   string     `hcl:"operation,optional"`
	Destination string     `hcl:"destination,optional"`
	Mode        string     `hcl:"mode,optional"`
	Count       int        `hcl:"count,optional"`
	Prefix      string     `hcl:"prefix,optional"`
	Property    string     `hcl:"property,optional"`
	Outputs     []string   `hcl:"outputs,optional"`
	Inputs      []string   `hcl:"inputs,optional"`
	Wait        string     `hcl:"wait,optional"`
	MinRequired int        `hcl:"min_required,optional"`
	Candidates  string     `hcl:"candidates,optional"`
	Selection   string     `hcl:"selection,optional"`
	By          string     `hcl:"by,optional"`
	Field       string     `hcl:"field,optional"`
}

func parseHCL(data []byte, filename string) (*Definition, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, &pferrors.ConfigError{Key: filename, Reason: "invalid HCL definition", Cause: diags}
	}

	var raw hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return nil, &pferrors.ConfigError{Key: filename, Reason: "invalid HCL definition", Cause: diags}
	}

	def := &Definition{
		Name:        raw.Name,
		Concurrency: raw.Concurrency,
		Inputs:      make(map[string]Input, len(raw.Inputs)),
	}
	for _, in := range raw.Inputs {
		if _, dup := def.Inputs[in.Name]; dup {
			return nil, &pferrors.ValidationError{Field: "input", Message: fmt.Sprintf("input %q is declared twice", in.Name)}
		}
		v, err := goValue(in.JSON)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", in.Name, err)
		}
		def.Inputs[in.Name] = Input{Path: in.Path, Text: in.Text, JSON: v}
	}

	for i, s := range raw.Steps {
		params, err := goValue(s.Params)
		if err != nil {
			return nil, fmt.Errorf("step %d params: %w", i, err)
		}
		step := Step{
			Kind: s.Kind, Name: s.Name, Provider: s.Provider,
			Input: s.Input, Output: s.Output, Operation: s.Operation, Destination: s.Destination,
			Mode: s.Mode, Count: s.Count, Prefix: s.Prefix, Property: s.Property, Outputs: s.Outputs,
			Inputs: s.Inputs, Wait: s.Wait, MinRequired: s.MinRequired,
			Candidates: s.Candidates, Selection: s.Selection, By: s.By, Field: s.Field,
		}
		if params != nil {
			m, ok := params.(map[string]any)
			if !ok {
				return nil, &pferrors.ValidationError{Field: "params", Message: fmt.Sprintf("step %d params must be an object", i)}
			}
			step.Params = provider.Params(m)
		}
		def.Steps = append(def.Steps, step)
	}
	return def, nil
}

// goValue converts a cty value into the generic JSON shapes used by
// artifacts and params.
func goValue(v *cty.Value) (any, error) {
	if v == nil || v.IsNull() {
		return nil, nil
	}
	if !v.IsWhollyKnown() {
		return nil, fmt.Errorf("value is not known at load time")
	}

	raw, err := ctyjson.Marshal(*v, v.Type())
	if err != nil {
		return nil, fmt.Errorf("convert value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("convert value: %w", err)
	}
	return out, nil
}
