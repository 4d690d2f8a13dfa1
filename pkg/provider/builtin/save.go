package builtin

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/tombee/pixelflow/pkg/artifact"
	pferrors "github.com/tombee/pixelflow/pkg/errors"
	"github.com/tombee/pixelflow/pkg/httpclient"
	"github.com/tombee/pixelflow/pkg/httpclient/auth"
	"github.com/tombee/pixelflow/pkg/provider"
)

// digest returns the hex BLAKE2b-256 of b.
func digest(b []byte) string {
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// FileSaver writes images under Root. A destination without an extension
// gets one from the image format. Destinations may not escape Root.
//
// Params: overwrite (default true).
type FileSaver struct {
	Root string
}

// Save implements provider.Saver.
func (f FileSaver) Save(ctx context.Context, img *artifact.Image, destination string, params provider.Params) (*artifact.SaveResult, error) {
	if destination == "" {
		return nil, &pferrors.ValidationError{Field: "destination", Message: "file saver requires a destination"}
	}

	path, err := f.resolve(destination)
	if err != nil {
		return nil, err
	}
	if filepath.Ext(path) == "" {
		path += extension(img.Format)
	}

	if !params.Bool("overwrite", true) {
		if _, err := os.Stat(path); err == nil {
			return nil, &pferrors.ConfigError{Key: "destination", Reason: fmt.Sprintf("%s already exists", path)}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	// Write to a temp file in the same directory so readers never see a
	// partial image.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pixelflow-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(img.Bytes); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, fmt.Errorf("rename into %s: %w", path, err)
	}

	return &artifact.SaveResult{
		Provider: "file",
		Location: path,
		Size:     int64(len(img.Bytes)),
		Format:   img.Format,
		Metadata: map[string]any{"blake2b": digest(img.Bytes)},
	}, nil
}

func (f FileSaver) resolve(destination string) (string, error) {
	if f.Root == "" || filepath.IsAbs(destination) {
		return filepath.Clean(destination), nil
	}
	root := filepath.Clean(f.Root)
	path := filepath.Join(root, destination)
	if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return "", &pferrors.ValidationError{
			Field:   "destination",
			Message: fmt.Sprintf("%q escapes the output directory", destination),
		}
	}
	return path, nil
}

// MemorySaver keeps saved images in memory, keyed by destination.
type MemorySaver struct {
	mu    sync.RWMutex
	items map[string]*artifact.Image
}

// NewMemorySaver returns an empty MemorySaver.
func NewMemorySaver() *MemorySaver {
	return &MemorySaver{items: make(map[string]*artifact.Image)}
}

// Save implements provider.Saver.
func (m *MemorySaver) Save(ctx context.Context, img *artifact.Image, destination string, params provider.Params) (*artifact.SaveResult, error) {
	m.mu.Lock()
	m.items[destination] = img
	m.mu.Unlock()

	return &artifact.SaveResult{
		Provider: "memory",
		Location: "memory://" + destination,
		Size:     int64(len(img.Bytes)),
		Format:   img.Format,
		Metadata: map[string]any{"blake2b": digest(img.Bytes)},
	}, nil
}

// Get returns a previously saved image.
func (m *MemorySaver) Get(destination string) (*artifact.Image, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	img, ok := m.items[destination]
	return img, ok
}

// HTTPSaver uploads images with PUT, typically to a presigned object
// storage URL given as the destination. When Auth is set every upload is
// signed with it, which covers object stores that take SigV4-signed PUTs
// and endpoints behind bearer or OAuth2 tokens.
//
// Params: method (default PUT), content_type (default from format).
type HTTPSaver struct {
	Client *http.Client
	Auth   auth.Signer
}

// Save implements provider.Saver.
func (h HTTPSaver) Save(ctx context.Context, img *artifact.Image, destination string, params provider.Params) (*artifact.SaveResult, error) {
	u, err := url.Parse(destination)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, &pferrors.ValidationError{
			Field:   "destination",
			Message: fmt.Sprintf("http saver requires an http(s) URL, got %q", destination),
		}
	}

	req, err := http.NewRequestWithContext(ctx, params.String("method", http.MethodPut), destination, bytes.NewReader(img.Bytes))
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", params.String("content_type", img.MediaType()))
	if h.Auth != nil {
		if err := h.Auth.Sign(ctx, req, img.Bytes); err != nil {
			return nil, err
		}
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &pferrors.ProviderError{Provider: "http", Message: "upload failed", Retryable: true, Cause: err}
	}
	if resp.StatusCode >= 300 {
		return nil, httpclient.ErrorFromResponse("http", resp)
	}
	resp.Body.Close()

	// Drop the query so presigned credentials never reach results or history.
	location := *u
	location.RawQuery = ""

	meta := map[string]any{"blake2b": digest(img.Bytes), "status": resp.StatusCode}
	if etag := resp.Header.Get("ETag"); etag != "" {
		meta["etag"] = strings.Trim(etag, `"`)
	}

	return &artifact.SaveResult{
		Provider: "http",
		Location: location.String(),
		Size:     int64(len(img.Bytes)),
		Format:   img.Format,
		Metadata: meta,
	}, nil
}
