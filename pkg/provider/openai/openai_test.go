package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/pixelflow/pkg/artifact"
	pferrors "github.com/tombee/pixelflow/pkg/errors"
	"github.com/tombee/pixelflow/pkg/gate"
	"github.com/tombee/pixelflow/pkg/httpclient"
	"github.com/tombee/pixelflow/pkg/provider"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	httpCfg := httpclient.DefaultConfig()
	httpCfg.RetryBackoff = time.Millisecond
	httpCfg.MaxBackoff = 5 * time.Millisecond

	c, err := New(Config{BaseURL: server.URL + "/", APIKey: "sk-test", HTTP: httpCfg})
	require.NoError(t, err)
	return c
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.Equal(t, pferrors.KindConfiguration, pferrors.KindOf(err))
}

func TestGenerator(t *testing.T) {
	img := pngBytes(t, 6, 3)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get(httpclient.HeaderIdempotencyKey))

		body := decodeBody(t, r)
		assert.Equal(t, "a red fox", body["prompt"])
		assert.Equal(t, DefaultImageModel, body["model"])
		assert.Equal(t, "1024x1024", body["size"])
		assert.NotContains(t, body, "response_format")

		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []any{map[string]any{"b64_json": base64.StdEncoding.EncodeToString(img), "revised_prompt": "a red fox, digital art"}},
		})
	})

	out, err := (&Generator{Client: c}).Generate(context.Background(), provider.Params{"prompt": "a red fox", "size": "1024x1024"})
	require.NoError(t, err)
	assert.Equal(t, img, out.Bytes)
	assert.Equal(t, "png", out.Format)
	assert.Equal(t, 6, out.Width)
	assert.Equal(t, 3, out.Height)
	assert.Equal(t, "a red fox, digital art", out.Metadata["revised_prompt"])
}

func TestGenerator_DallEDownloadsURL(t *testing.T) {
	img := pngBytes(t, 2, 2)
	var srvURL string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/images/generations":
			assert.Equal(t, "b64_json", decodeBody(t, r)["response_format"])
			_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{map[string]any{"url": srvURL + "/files/fox.png"}}})
		case "/files/fox.png":
			_, _ = w.Write(img)
		}
	})
	srvURL = c.baseURL

	out, err := (&Generator{Client: c}).Generate(context.Background(), provider.Params{"prompt": "fox", "model": "dall-e-3"})
	require.NoError(t, err)
	assert.Equal(t, img, out.Bytes)
}

func TestGenerator_Errors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("X-Request-Id", "req_42")
		if strings.Contains(decodeBody(t, r)["prompt"].(string), "busy") {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached"}}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Your request was rejected by the safety system"}}`))
	})
	g := &Generator{Client: c}

	_, err := g.Generate(context.Background(), provider.Params{})
	assert.Equal(t, pferrors.KindConfiguration, pferrors.KindOf(err))
	assert.Zero(t, calls.Load())

	_, err = g.Generate(context.Background(), provider.Params{"prompt": "bad"})
	var perr *pferrors.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusBadRequest, perr.StatusCode)
	assert.Equal(t, "req_42", perr.RequestID)
	assert.Contains(t, perr.Message, "safety system")
	assert.False(t, pferrors.IsRetryable(err))

	calls.Store(0)
	_, err = g.Generate(context.Background(), provider.Params{"prompt": "busy"})
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Retryable)
	assert.Equal(t, int32(4), calls.Load(), "idempotency key lets the POST be retried")
}

func chatReply(w http.ResponseWriter, content string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"model": "gpt-4o-mini",
		"choices": []any{map[string]any{
			"message":       map[string]any{"content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5},
	})
}

func TestVision(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])

		messages := body["messages"].([]any)
		require.Len(t, messages, 1)
		parts := messages[0].(map[string]any)["content"].([]any)
		require.Len(t, parts, 2)
		url := parts[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
		assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))

		chatReply(w, `{"caption":"a fox","score":0.9}`)
	})

	img := &artifact.Image{Bytes: pngBytes(t, 1, 1), Format: "png"}
	out, err := (&Vision{Client: c}).Analyze(context.Background(), img, provider.Params{"format": "json", "prompt": "caption as JSON"})
	require.NoError(t, err)
	assert.Equal(t, artifact.DataJSON, out.Type)
	assert.Equal(t, "a fox", out.Object()["caption"])
	assert.Equal(t, 10, out.Metadata["prompt_tokens"])

	_, err = (&Vision{Client: c}).Analyze(context.Background(), &artifact.Image{}, nil)
	assert.Error(t, err)
}

func TestText(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		messages := body["messages"].([]any)
		require.Len(t, messages, 2)
		assert.Equal(t, "system", messages[0].(map[string]any)["role"])

		parts := messages[1].(map[string]any)["content"].([]any)
		require.Len(t, parts, 2)
		assert.Contains(t, parts[1].(map[string]any)["text"], "a fox")

		chatReply(w, "Foxes at dawn")
	})

	out, err := (&Text{Client: c}).Complete(context.Background(), artifact.NewText("a fox"), provider.Params{
		"prompt": "Write a title",
		"system": "You write short titles.",
	})
	require.NoError(t, err)
	assert.Equal(t, "Foxes at dawn", out.Raw)
	assert.Equal(t, artifact.DataText, out.Type)
}

func TestText_InvalidJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		chatReply(w, "not json")
	})

	_, err := (&Text{Client: c}).Complete(context.Background(), nil, provider.Params{"prompt": "x", "format": "json"})
	var perr *pferrors.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Message, "valid JSON")
}

func TestModerator(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/moderations", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, DefaultModerationModel, body["model"])

		flagged := body["input"] == "something violent"
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []any{map[string]any{
				"flagged":    flagged,
				"categories": map[string]any{"violence": flagged, "hate": false},
			}},
		})
	})

	g := gate.NewModeration("openai", &Moderator{Client: c})
	ctx := context.Background()

	assert.NoError(t, g.Check(ctx, "caption", artifact.NewText("a calm lake")))

	err := g.Check(ctx, "caption", artifact.NewText("something violent"))
	var rej *pferrors.GateRejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, []string{"violence"}, rej.Categories)

	assert.NoError(t, g.Check(ctx, "img", &artifact.Image{Bytes: pngBytes(t, 1, 1), Format: "png"}))
}

func TestRegister(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	reg := provider.NewRegistry()
	Register(reg, c, provider.Limit{RPS: 5, Burst: 1})

	assert.True(t, reg.Has(provider.CategoryGenerator, "openai"))
	assert.True(t, reg.Has(provider.CategoryVision, "openai"))
	assert.True(t, reg.Has(provider.CategoryText, "openai"))
	assert.False(t, reg.Has(provider.CategorySaver, "openai"))
}
