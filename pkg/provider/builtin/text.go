package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/tombee/pixelflow/pkg/artifact"
	pferrors "github.com/tombee/pixelflow/pkg/errors"
	"github.com/tombee/pixelflow/pkg/provider"
)

// Template renders a Go text/template.
//
// Params: template (required), format ("text" or "json"). The template
// sees .Input (the context artifact's parsed JSON, raw text, or image
// description), .Params and the helper funcs json, upper, lower and join.
type Template struct{}

var templateFuncs = template.FuncMap{
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"join": func(sep string, items []any) string {
		parts := make([]string, len(items))
		for i, it := range items {
			parts[i] = fmt.Sprint(it)
		}
		return strings.Join(parts, sep)
	},
}

// Complete implements provider.Text.
func (Template) Complete(ctx context.Context, input artifact.Value, params provider.Params) (*artifact.Data, error) {
	src := params.String("template", "")
	if src == "" {
		return nil, &pferrors.ValidationError{Field: "template", Message: "template provider requires a template param"}
	}

	tmpl, err := template.New("text").Funcs(templateFuncs).Option("missingkey=zero").Parse(src)
	if err != nil {
		return nil, &pferrors.ValidationError{Field: "template", Message: err.Error()}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]any{
		"Input":  templateInput(input),
		"Params": map[string]any(params),
	}); err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	out, err := asData(buf.String(), params.String("format", "text"))
	if err != nil {
		return nil, err
	}
	out.Provenance = "template"
	return out, nil
}

func templateInput(v artifact.Value) any {
	switch t := v.(type) {
	case nil:
		return nil
	case *artifact.Data:
		if t.Type == artifact.DataJSON {
			return t.Parsed
		}
		return t.Raw
	case *artifact.Image:
		return map[string]any{
			"format":   t.Format,
			"width":    t.Width,
			"height":   t.Height,
			"metadata": t.Metadata,
		}
	default:
		return artifact.Describe(v)
	}
}

// Static returns a fixed payload. Params: text, or json (any value).
type Static struct{}

// Complete implements provider.Text.
func (Static) Complete(ctx context.Context, input artifact.Value, params provider.Params) (*artifact.Data, error) {
	if v, ok := params["json"]; ok {
		if s, isString := v.(string); isString {
			return artifact.ParseJSON(s)
		}
		return artifact.NewJSON(v)
	}
	if text, ok := params["text"].(string); ok {
		return artifact.NewText(text), nil
	}
	return nil, &pferrors.ValidationError{Field: "text", Message: "static provider requires a text or json param"}
}

func asData(raw, format string) (*artifact.Data, error) {
	if format != "json" {
		return artifact.NewText(raw), nil
	}
	d, err := artifact.ParseJSON(raw)
	if err != nil {
		return nil, &pferrors.ValidationError{Field: "format", Message: fmt.Sprintf("output is not valid JSON: %v", err)}
	}
	return d, nil
}
