// Package builtin provides the providers pixelflow ships with. None of them
// need credentials: image generation from colors and files, pixel
// transforms, a local inspection "vision" provider, templated text, and
// savers for the filesystem, memory and HTTP uploads.
package builtin

import (
	"net/http"

	"github.com/tombee/pixelflow/pkg/httpclient/auth"
	"github.com/tombee/pixelflow/pkg/provider"
)

// Options configures Register.
type Options struct {
	// Root resolves relative paths for the file generator.
	Root string

	// OutputDir is where the file saver writes.
	OutputDir string

	// HTTPClient is used by the http saver. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// UploadAuth, when non-nil, signs every http saver upload.
	UploadAuth auth.Signer

	// Memory, when non-nil, is registered as the memory saver so callers can
	// read saved images back.
	Memory *MemorySaver
}

// Register adds every builtin provider to reg.
//
//	generators:   solid, file
//	transformers: image
//	vision:       inspect
//	text:         template, static
//	savers:       file, memory, http
func Register(reg *provider.Registry, opts Options) {
	reg.RegisterGenerator("solid", Solid{})
	reg.RegisterGenerator("file", File{Root: opts.Root})

	reg.RegisterTransformer("image", Image{})

	reg.RegisterVision("inspect", Inspect{})

	reg.RegisterText("template", Template{})
	reg.RegisterText("static", Static{})

	mem := opts.Memory
	if mem == nil {
		mem = NewMemorySaver()
	}
	reg.RegisterSaver("file", FileSaver{Root: opts.OutputDir})
	reg.RegisterSaver("memory", mem)
	reg.RegisterSaver("http", HTTPSaver{Client: opts.HTTPClient, Auth: opts.UploadAuth})
}
