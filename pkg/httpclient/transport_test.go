package httpclient

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pflog "github.com/tombee/pixelflow/internal/log"
	"github.com/tombee/pixelflow/internal/tracing"
)

func newResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestLoggingTransport_PreservesExistingUserAgent(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	transport := newLoggingTransport(http.DefaultTransport, "pixelflow/test", nil)
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "custom/2.0")

	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "custom/2.0", got)
}

func TestLoggingTransport_NoCorrelationIDWhenInvalid(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(tracing.HeaderCorrelationID)
	}))
	defer server.Close()

	transport := newLoggingTransport(http.DefaultTransport, "pixelflow/test", nil)
	ctx := tracing.ToContext(context.Background(), tracing.CorrelationID("nope"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, got)
}

func TestLoggingTransport_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	transport := newLoggingTransport(http.DefaultTransport, "pixelflow/test", slog.New(slog.NewJSONHandler(&buf, nil)))

	req, err := http.NewRequest(http.MethodGet, "http://127.0.0.1:1/unreachable?token=secret", nil)
	require.NoError(t, err)

	_, err = transport.RoundTrip(req)
	require.Error(t, err)
	assert.Contains(t, buf.String(), "http request failed")
	assert.NotContains(t, buf.String(), "token=secret")
}

func TestLoggingTransport_TraceLogsRedactedHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: pflog.LevelTrace}))
	transport := newLoggingTransport(http.DefaultTransport, "pixelflow/test", logger)

	req, err := http.NewRequest(http.MethodPut, server.URL+"/covers/a.png", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer upload-token-123")

	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()

	out := buf.String()
	assert.Contains(t, out, "http request headers")
	assert.Contains(t, out, "Bearer [REDACTED]")
	assert.NotContains(t, out, "upload-token-123")
}

func TestLoggingTransport_NoHeaderLogAboveTrace(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	transport := newLoggingTransport(http.DefaultTransport, "pixelflow/test", logger)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Contains(t, buf.String(), `"msg":"http request"`)
	assert.NotContains(t, buf.String(), "http request headers")
}
