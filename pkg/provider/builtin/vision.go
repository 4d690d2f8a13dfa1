package builtin

import (
	"context"
	"image/color"

	"github.com/tombee/pixelflow/pkg/artifact"
	"github.com/tombee/pixelflow/pkg/provider"
)

// Inspect reports basic image facts as JSON: format, dimensions, byte size,
// mean color and brightness (0..1). It needs no network access and is the
// default vision provider for local pipelines.
type Inspect struct{}

// Analyze implements provider.Vision.
func (Inspect) Analyze(ctx context.Context, img *artifact.Image, params provider.Params) (*artifact.Data, error) {
	m, format, err := decode(img)
	if err != nil {
		return nil, err
	}

	rgba := toRGBA(m)
	var r, g, b, n uint64
	for i := 0; i+3 < len(rgba.Pix); i += 4 {
		r += uint64(rgba.Pix[i])
		g += uint64(rgba.Pix[i+1])
		b += uint64(rgba.Pix[i+2])
		n++
	}
	mean := color.RGBA{A: 255}
	if n > 0 {
		mean.R, mean.G, mean.B = uint8(r/n), uint8(g/n), uint8(b/n)
	}
	brightness := float64(color.GrayModel.Convert(mean).(color.Gray).Y) / 255

	bounds := rgba.Bounds()
	out, err := artifact.NewJSON(map[string]any{
		"format":     format,
		"width":      bounds.Dx(),
		"height":     bounds.Dy(),
		"size":       len(img.Bytes),
		"mean_color": hexColor(mean),
		"brightness": brightness,
		"dark":       brightness < 0.5,
	})
	if err != nil {
		return nil, err
	}
	out.Provenance = "inspect"
	return out, nil
}
