package builtin

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strconv"
	"strings"

	_ "image/gif" // decode-only

	"github.com/tombee/pixelflow/pkg/artifact"
	pferrors "github.com/tombee/pixelflow/pkg/errors"
)

// decode returns the pixel data of an image artifact.
func decode(img *artifact.Image) (image.Image, string, error) {
	if img == nil || len(img.Bytes) == 0 {
		return nil, "", &pferrors.ValidationError{Field: "input", Message: "image has no bytes"}
	}
	m, format, err := image.Decode(bytes.NewReader(img.Bytes))
	if err != nil {
		return nil, "", fmt.Errorf("decode %s image: %w", img.Format, err)
	}
	return m, format, nil
}

// encode writes m in format. Anything other than jpeg is written as png.
func encode(m image.Image, format string, quality int) (*artifact.Image, error) {
	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "jpeg", "jpg":
		if quality <= 0 || quality > 100 {
			quality = jpeg.DefaultQuality
		}
		if err := jpeg.Encode(&buf, m, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		format = "jpeg"
	default:
		if err := png.Encode(&buf, m); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		format = "png"
	}

	b := m.Bounds()
	return &artifact.Image{
		Bytes:  buf.Bytes(),
		Format: format,
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}

var namedColors = map[string]color.RGBA{
	"black":  {0, 0, 0, 255},
	"white":  {255, 255, 255, 255},
	"red":    {255, 0, 0, 255},
	"green":  {0, 128, 0, 255},
	"blue":   {0, 0, 255, 255},
	"navy":   {0, 0, 128, 255},
	"gray":   {128, 128, 128, 255},
	"grey":   {128, 128, 128, 255},
	"orange": {255, 165, 0, 255},
	"yellow": {255, 255, 0, 255},
	"purple": {128, 0, 128, 255},
}

// parseColor accepts a named color, #rgb, #rrggbb or #rrggbbaa.
func parseColor(s string) (color.RGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return c, nil
	}

	hex := strings.TrimPrefix(s, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.RGBA{}, &pferrors.ValidationError{Field: "color", Message: fmt.Sprintf("invalid color %q", s), Suggestion: "use a name like red or a hex value like #ff8800"}
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, &pferrors.ValidationError{Field: "color", Message: fmt.Sprintf("invalid color %q", s)}
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

func hexColor(c color.Color) string {
	r, g, b, _ := c.RGBA()
	return fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8)
}

// extension returns the file extension for an image format.
func extension(format string) string {
	switch strings.ToLower(format) {
	case "jpeg", "jpg":
		return ".jpg"
	case "":
		return ".bin"
	default:
		return "." + strings.ToLower(format)
	}
}
