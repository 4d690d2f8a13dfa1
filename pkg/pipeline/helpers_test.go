package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tombee/pixelflow/pkg/artifact"
	"github.com/tombee/pixelflow/pkg/errors"
	"github.com/tombee/pixelflow/pkg/provider"
)

// fakes records provider calls made through a test registry.
type fakes struct {
	mu    sync.Mutex
	calls []string

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	hold        chan struct{}
}

func (f *fakes) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakes) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakes) enter() func() {
	n := f.inFlight.Add(1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if f.hold != nil {
		<-f.hold
	}
	return func() { f.inFlight.Add(-1) }
}

// newTestRegistry registers:
//   - generator "solid": an image whose bytes are params["color"]
//   - transformer "fx": appends the operation to the image bytes; "fail" fails
//   - vision "caption": JSON {"caption": ..., "format": ...}
//   - text "echo": params["text"], or the description of its input
//   - saver "mem": records the destination
func newTestRegistry(f *fakes) *provider.Registry {
	r := provider.NewRegistry()

	r.RegisterGenerator("solid", provider.GeneratorFunc(func(ctx context.Context, p provider.Params) (*artifact.Image, error) {
		done := f.enter()
		defer done()
		color := p.String("color", "black")
		f.record("generate:" + color)
		if p.Bool("fail", false) {
			return nil, &errors.ProviderError{Provider: "solid", Message: "quota exceeded", StatusCode: 429, Retryable: true}
		}
		return &artifact.Image{Bytes: []byte(color), Format: "png", Width: 4, Height: 4}, nil
	}))

	r.RegisterTransformer("fx", provider.TransformerFunc(func(ctx context.Context, op string, img *artifact.Image, p provider.Params) (*artifact.Image, error) {
		f.record("transform:" + op)
		if op == "fail" {
			return nil, fmt.Errorf("filter %s crashed", op)
		}
		out := append(append([]byte(nil), img.Bytes...), []byte("+"+op)...)
		return &artifact.Image{Bytes: out, Format: img.Format, Width: img.Width, Height: img.Height}, nil
	}))

	r.RegisterVision("caption", provider.VisionFunc(func(ctx context.Context, img *artifact.Image, p provider.Params) (*artifact.Data, error) {
		f.record("vision")
		return artifact.NewJSON(map[string]any{"caption": string(img.Bytes), "format": img.Format})
	}))

	r.RegisterText("echo", provider.TextFunc(func(ctx context.Context, in artifact.Value, p provider.Params) (*artifact.Data, error) {
		f.record("text")
		if in != nil {
			return artifact.NewText("about " + artifact.Describe(in)), nil
		}
		return artifact.NewText(p.String("text", "")), nil
	}))

	r.RegisterSaver("mem", provider.SaverFunc(func(ctx context.Context, img *artifact.Image, dest string, p provider.Params) (*artifact.SaveResult, error) {
		f.record("save:" + dest)
		return &artifact.SaveResult{Location: dest, Size: int64(len(img.Bytes)), Format: img.Format}, nil
	}))

	return r
}

func gen(output, color string) *GenerateStep {
	return &GenerateStep{Provider: "solid", Params: provider.Params{"color": color}, Output: output}
}

func fx(input, op, output string) *TransformStep {
	return &TransformStep{Provider: "fx", Operation: op, Input: input, Output: output}
}

func mustJSON(v any) *artifact.Data {
	d, err := artifact.NewJSON(v)
	if err != nil {
		panic(err)
	}
	return d
}
