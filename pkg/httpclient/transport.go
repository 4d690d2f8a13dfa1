package httpclient

import (
	"log/slog"
	"net/http"
	"time"

	pflog "github.com/tombee/pixelflow/internal/log"
	"github.com/tombee/pixelflow/internal/tracing"
)

// loggingTransport sets the User-Agent, propagates the correlation ID and
// logs each request with a sanitized URL.
type loggingTransport struct {
	base      http.RoundTripper
	userAgent string
	logger    *slog.Logger
}

func newLoggingTransport(base http.RoundTripper, userAgent string, logger *slog.Logger) *loggingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &loggingTransport{base: base, userAgent: userAgent, logger: logger}
}

// RoundTrip implements http.RoundTripper.
func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	tracing.InjectIntoRequest(req.Context(), req)
	if t.logger.Enabled(req.Context(), pflog.LevelTrace) {
		t.logger.Log(req.Context(), pflog.LevelTrace, "http request headers",
			"method", req.Method,
			"url", sanitizeURL(req.URL),
			headerAttrs(req.Header),
		)
	}

	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start)
	logURL := sanitizeURL(req.URL)

	if err != nil {
		t.logger.WarnContext(req.Context(), "http request failed",
			"method", req.Method,
			"url", logURL,
			pflog.Duration(elapsed),
			pflog.Error(err),
		)
		return nil, err
	}

	level := slog.LevelDebug
	if resp.StatusCode >= 400 {
		level = slog.LevelWarn
	}
	t.logger.Log(req.Context(), level, "http request",
		"method", req.Method,
		"url", logURL,
		"status", resp.StatusCode,
		"request_id", resp.Header.Get(tracing.HeaderRequestID),
		pflog.Duration(elapsed),
	)
	return resp, nil
}
