package provider

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/tombee/pixelflow/pkg/artifact"
)

// Limit describes a requests-per-second budget for a provider.
// A zero RPS disables limiting.
type Limit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

func (l Limit) limiter() *rate.Limiter {
	burst := l.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(l.RPS), burst)
}

// RateLimitGenerator wraps g so calls wait for the limiter first.
func RateLimitGenerator(g Generator, l Limit) Generator {
	if l.RPS <= 0 {
		return g
	}
	lim := l.limiter()
	return GeneratorFunc(func(ctx context.Context, params Params) (*artifact.Image, error) {
		if err := lim.Wait(ctx); err != nil {
			return nil, err
		}
		return g.Generate(ctx, params)
	})
}

// RateLimitTransformer wraps t so calls wait for the limiter first.
func RateLimitTransformer(t Transformer, l Limit) Transformer {
	if l.RPS <= 0 {
		return t
	}
	lim := l.limiter()
	return TransformerFunc(func(ctx context.Context, op string, img *artifact.Image, params Params) (*artifact.Image, error) {
		if err := lim.Wait(ctx); err != nil {
			return nil, err
		}
		return t.Transform(ctx, op, img, params)
	})
}

// RateLimitVision wraps v so calls wait for the limiter first.
func RateLimitVision(v Vision, l Limit) Vision {
	if l.RPS <= 0 {
		return v
	}
	lim := l.limiter()
	return VisionFunc(func(ctx context.Context, img *artifact.Image, params Params) (*artifact.Data, error) {
		if err := lim.Wait(ctx); err != nil {
			return nil, err
		}
		return v.Analyze(ctx, img, params)
	})
}

// RateLimitText wraps t so calls wait for the limiter first.
func RateLimitText(t Text, l Limit) Text {
	if l.RPS <= 0 {
		return t
	}
	lim := l.limiter()
	return TextFunc(func(ctx context.Context, input artifact.Value, params Params) (*artifact.Data, error) {
		if err := lim.Wait(ctx); err != nil {
			return nil, err
		}
		return t.Complete(ctx, input, params)
	})
}
