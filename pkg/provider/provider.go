// Package provider defines the external collaborators the pipeline engine
// dispatches to, and the registry that maps provider names to them.
//
// There are five categories: generators produce images from parameters,
// transformers turn an image into another image, vision providers describe
// an image as text or JSON, text providers produce text or JSON, and savers
// persist an image somewhere. A Registry is constructed per engine instance;
// nothing here is process-wide state.
package provider

import (
	"context"

	"github.com/tombee/pixelflow/pkg/artifact"
)

// Params are the provider-specific parameters declared on a step.
type Params map[string]any

// String returns a string parameter or def when it is absent or not a string.
func (p Params) String(key, def string) string {
	if v, ok := p[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Int returns an integer parameter or def when it is absent or not integral.
func (p Params) Int(key string, def int) int {
	if v, ok := artifact.ToInt(p[key]); ok {
		return v
	}
	return def
}

// Bool returns a boolean parameter or def.
func (p Params) Bool(key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}

// Generator produces an image from parameters.
type Generator interface {
	Generate(ctx context.Context, params Params) (*artifact.Image, error)
}

// Transformer applies a named operation to an image.
type Transformer interface {
	Transform(ctx context.Context, operation string, img *artifact.Image, params Params) (*artifact.Image, error)
}

// Vision analyzes an image and returns text or JSON.
type Vision interface {
	Analyze(ctx context.Context, img *artifact.Image, params Params) (*artifact.Data, error)
}

// Text produces text or JSON. input is the optional context artifact and may be nil.
type Text interface {
	Complete(ctx context.Context, input artifact.Value, params Params) (*artifact.Data, error)
}

// Saver persists an image to a destination.
type Saver interface {
	Save(ctx context.Context, img *artifact.Image, destination string, params Params) (*artifact.SaveResult, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, params Params) (*artifact.Image, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, params Params) (*artifact.Image, error) {
	return f(ctx, params)
}

// TransformerFunc adapts a function to Transformer.
type TransformerFunc func(ctx context.Context, operation string, img *artifact.Image, params Params) (*artifact.Image, error)

// Transform implements Transformer.
func (f TransformerFunc) Transform(ctx context.Context, operation string, img *artifact.Image, params Params) (*artifact.Image, error) {
	return f(ctx, operation, img, params)
}

// VisionFunc adapts a function to Vision.
type VisionFunc func(ctx context.Context, img *artifact.Image, params Params) (*artifact.Data, error)

// Analyze implements Vision.
func (f VisionFunc) Analyze(ctx context.Context, img *artifact.Image, params Params) (*artifact.Data, error) {
	return f(ctx, img, params)
}

// TextFunc adapts a function to Text.
type TextFunc func(ctx context.Context, input artifact.Value, params Params) (*artifact.Data, error)

// Complete implements Text.
func (f TextFunc) Complete(ctx context.Context, input artifact.Value, params Params) (*artifact.Data, error) {
	return f(ctx, input, params)
}

// SaverFunc adapts a function to Saver.
type SaverFunc func(ctx context.Context, img *artifact.Image, destination string, params Params) (*artifact.SaveResult, error)

// Save implements Saver.
func (f SaverFunc) Save(ctx context.Context, img *artifact.Image, destination string, params Params) (*artifact.SaveResult, error) {
	return f(ctx, img, destination, params)
}
