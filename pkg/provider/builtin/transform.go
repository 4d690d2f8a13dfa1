package builtin

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/tombee/pixelflow/pkg/artifact"
	pferrors "github.com/tombee/pixelflow/pkg/errors"
	"github.com/tombee/pixelflow/pkg/provider"
)

// Operations supported by Image.
const (
	OpGrayscale = "grayscale"
	OpInvert    = "invert"
	OpFlip      = "flip"
	OpResize    = "resize"
	OpCrop      = "crop"
)

// Image applies local pixel operations. The output keeps the input format
// unless a "format" param is given.
type Image struct{}

// Transform implements provider.Transformer.
func (Image) Transform(ctx context.Context, operation string, img *artifact.Image, params provider.Params) (*artifact.Image, error) {
	src, format, err := decode(img)
	if err != nil {
		return nil, err
	}

	var dst image.Image
	switch operation {
	case OpGrayscale:
		dst = mapPixels(src, func(c color.RGBA) color.RGBA {
			y := color.GrayModel.Convert(c).(color.Gray).Y
			return color.RGBA{R: y, G: y, B: y, A: c.A}
		})
	case OpInvert:
		dst = mapPixels(src, func(c color.RGBA) color.RGBA {
			return color.RGBA{R: 255 - c.R, G: 255 - c.G, B: 255 - c.B, A: c.A}
		})
	case OpFlip:
		dst, err = flip(src, params.String("direction", "horizontal"))
	case OpResize:
		dst, err = resize(src, params.Int("width", 0), params.Int("height", 0))
	case OpCrop:
		dst, err = crop(src, params)
	default:
		return nil, &pferrors.ValidationError{
			Field:      "operation",
			Message:    fmt.Sprintf("unknown image operation %q", operation),
			Suggestion: "use one of grayscale, invert, flip, resize, crop",
		}
	}
	if err != nil {
		return nil, err
	}

	out, err := encode(dst, params.String("format", format), params.Int("quality", 0))
	if err != nil {
		return nil, err
	}
	out.Provenance = "image." + operation
	out.Metadata = map[string]any{"operation": operation, "source_format": format}
	return out, nil
}

func toRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	m := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(m, m.Bounds(), src, b.Min, draw.Src)
	return m
}

func mapPixels(src image.Image, fn func(color.RGBA) color.RGBA) *image.RGBA {
	m := toRGBA(src)
	for i := 0; i+3 < len(m.Pix); i += 4 {
		c := fn(color.RGBA{R: m.Pix[i], G: m.Pix[i+1], B: m.Pix[i+2], A: m.Pix[i+3]})
		m.Pix[i], m.Pix[i+1], m.Pix[i+2], m.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return m
}

func flip(src image.Image, direction string) (*image.RGBA, error) {
	var horizontal bool
	switch direction {
	case "horizontal", "h":
		horizontal = true
	case "vertical", "v":
	default:
		return nil, &pferrors.ValidationError{Field: "direction", Message: fmt.Sprintf("unknown flip direction %q", direction)}
	}

	in := toRGBA(src)
	w, h := in.Bounds().Dx(), in.Bounds().Dy()
	out := image.NewRGBA(in.Bounds())
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if horizontal {
				out.SetRGBA(w-1-x, y, in.RGBAAt(x, y))
			} else {
				out.SetRGBA(x, h-1-y, in.RGBAAt(x, y))
			}
		}
	}
	return out, nil
}

// resize scales with nearest-neighbour sampling. A zero width or height
// keeps the aspect ratio.
func resize(src image.Image, w, h int) (*image.RGBA, error) {
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	switch {
	case w <= 0 && h <= 0:
		return nil, &pferrors.ValidationError{Field: "width/height", Message: "resize requires width or height"}
	case w <= 0:
		w = max(1, sw*h/sh)
	case h <= 0:
		h = max(1, sh*w/sw)
	}
	if w > maxDimension || h > maxDimension {
		return nil, &pferrors.ValidationError{Field: "width/height", Message: fmt.Sprintf("dimensions %dx%d exceed %d", w, h, maxDimension)}
	}

	in := toRGBA(src)
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		sy := y * sh / h
		for x := 0; x < w; x++ {
			out.SetRGBA(x, y, in.RGBAAt(x*sw/w, sy))
		}
	}
	return out, nil
}

func crop(src image.Image, params provider.Params) (*image.RGBA, error) {
	in := toRGBA(src)
	x, y := params.Int("x", 0), params.Int("y", 0)
	rect := image.Rect(x, y, x+params.Int("width", 0), y+params.Int("height", 0))
	if rect.Empty() || !rect.In(in.Bounds()) {
		return nil, &pferrors.ValidationError{
			Field:   "x/y/width/height",
			Message: fmt.Sprintf("crop %v is outside image bounds %v", rect, in.Bounds()),
		}
	}

	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), in, rect.Min, draw.Src)
	return out, nil
}
