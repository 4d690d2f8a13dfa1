package builtin

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"os"
	"path/filepath"
	"strings"

	"github.com/tombee/pixelflow/pkg/artifact"
	pferrors "github.com/tombee/pixelflow/pkg/errors"
	"github.com/tombee/pixelflow/pkg/provider"
)

// maxDimension bounds generated images.
const maxDimension = 8192

// Solid generates a single-color image.
//
// Params: width, height (default 64), color (default "black"),
// format ("png" or "jpeg").
type Solid struct{}

// Generate implements provider.Generator.
func (Solid) Generate(ctx context.Context, params provider.Params) (*artifact.Image, error) {
	w, h := params.Int("width", 64), params.Int("height", 64)
	if w <= 0 || h <= 0 || w > maxDimension || h > maxDimension {
		return nil, &pferrors.ValidationError{
			Field:   "width/height",
			Message: fmt.Sprintf("dimensions %dx%d out of range (1..%d)", w, h, maxDimension),
		}
	}

	c, err := parseColor(params.String("color", "black"))
	if err != nil {
		return nil, err
	}

	m := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(m, m.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)

	img, err := encode(m, params.String("format", "png"), params.Int("quality", 0))
	if err != nil {
		return nil, err
	}
	img.Provenance = "solid"
	img.Metadata = map[string]any{"color": hexColor(c)}
	return img, nil
}

// File loads an image from disk. Relative paths resolve against Root.
//
// Params: path (required).
type File struct {
	Root string
}

// Generate implements provider.Generator.
func (f File) Generate(ctx context.Context, params provider.Params) (*artifact.Image, error) {
	path := params.String("path", "")
	if path == "" {
		return nil, &pferrors.ValidationError{Field: "path", Message: "file generator requires a path"}
	}
	return LoadImage(f.resolve(path))
}

func (f File) resolve(path string) string {
	if filepath.IsAbs(path) || f.Root == "" {
		return path
	}
	return filepath.Join(f.Root, path)
}

// LoadImage reads an encoded image from disk and records its format and
// dimensions.
func LoadImage(path string) (*artifact.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &pferrors.NotFoundError{Resource: "image file", ID: path}
		}
		return nil, fmt.Errorf("read image %s: %w", path, err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &pferrors.ValidationError{
			Field:   "path",
			Message: fmt.Sprintf("%s is not a supported image: %v", path, err),
		}
	}

	return &artifact.Image{
		Bytes:      data,
		Format:     strings.ToLower(format),
		Width:      cfg.Width,
		Height:     cfg.Height,
		Provenance: "file",
		Metadata:   map[string]any{"path": path},
	}, nil
}
