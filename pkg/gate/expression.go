package gate

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/tombee/pixelflow/pkg/artifact"
	"github.com/tombee/pixelflow/pkg/errors"
)

// Expression is a gate that accepts an artifact when a boolean expr-lang
// expression evaluates to true.
//
// The expression sees these variables:
//   - step: the step ID
//   - type: "image", "data", "collection" or "save_result"
//   - format, width, height, size: image or save result attributes
//   - text: the raw payload of a data artifact
//   - json: the parsed payload of a JSON data artifact
//   - metadata: image or save result metadata
//
// Example:
//
//	gate.NewExpression("min-size", `type != "image" || (width >= 512 && height >= 512)`)
type Expression struct {
	name   string
	source string

	mu      sync.Mutex
	program *vm.Program
}

// NewExpression creates an expression gate. Compilation is deferred to the
// first check; call Validate to surface syntax errors early.
func NewExpression(name, source string) *Expression {
	if name == "" {
		name = "expression"
	}
	return &Expression{name: name, source: source}
}

// Validate compiles the expression.
func (e *Expression) Validate() error {
	_, err := e.compile()
	return err
}

// Check implements Gate.
func (e *Expression) Check(_ context.Context, stepID string, v artifact.Value) error {
	if strings.TrimSpace(e.source) == "" {
		return nil
	}

	program, err := e.compile()
	if err != nil {
		return err
	}

	result, err := expr.Run(program, env(stepID, v))
	if err != nil {
		return &errors.ValidationError{
			Field:      "gate." + e.name,
			Message:    fmt.Sprintf("expression evaluation failed: %s", err.Error()),
			Suggestion: "verify that the expression only references step, type, format, width, height, size, text, json and metadata",
		}
	}

	if ok, _ := result.(bool); !ok {
		return &errors.GateRejectedError{
			Gate:   e.name,
			Reason: fmt.Sprintf("%s is false for %s", e.source, artifact.Describe(v)),
		}
	}
	return nil
}

func (e *Expression) compile() (*vm.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.program != nil {
		return e.program, nil
	}

	prog, err := expr.Compile(e.source,
		expr.Env(map[string]any{"has": hasFunc}),
		// "type" is an artifact variable here, not expr's type() builtin.
		expr.DisableBuiltin("type"),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, &errors.ValidationError{
			Field:      "gate." + e.name,
			Message:    fmt.Sprintf("failed to compile expression: %s", err.Error()),
			Suggestion: "check expression syntax",
		}
	}
	e.program = prog
	return prog, nil
}

func env(stepID string, v artifact.Value) map[string]any {
	m := map[string]any{
		"step":     stepID,
		"type":     "",
		"format":   "",
		"width":    0,
		"height":   0,
		"size":     0,
		"text":     "",
		"json":     nil,
		"metadata": map[string]any{},
		"has":      hasFunc,
	}
	if v != nil {
		m["type"] = string(v.ArtifactType())
	}

	switch a := v.(type) {
	case *artifact.Image:
		m["format"] = a.Format
		m["width"] = a.Width
		m["height"] = a.Height
		m["size"] = len(a.Bytes)
		if a.Metadata != nil {
			m["metadata"] = a.Metadata
		}
	case *artifact.Data:
		m["format"] = string(a.Type)
		m["size"] = len(a.Raw)
		m["text"] = a.Raw
		m["json"] = a.Parsed
		if a.Metadata != nil {
			m["metadata"] = a.Metadata
		}
	case *artifact.SaveResult:
		m["format"] = a.Format
		m["size"] = int(a.Size)
		if a.Metadata != nil {
			m["metadata"] = a.Metadata
		}
	case *artifact.Collection:
		m["size"] = a.Len()
	}
	return m
}

// hasFunc reports whether a string contains a substring, a slice contains an
// element, or a map contains a key.
func hasFunc(collection any, item any) bool {
	switch c := collection.(type) {
	case string:
		s, ok := item.(string)
		return ok && strings.Contains(c, s)
	case map[string]any:
		k, ok := item.(string)
		if !ok {
			return false
		}
		_, exists := c[k]
		return exists
	}

	rv := reflect.ValueOf(collection)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if artifact.Equal(rv.Index(i).Interface(), item) {
			return true
		}
	}
	return false
}
