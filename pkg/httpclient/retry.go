package httpclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tombee/pixelflow/pkg/pipeline"
)

// HeaderIdempotencyKey marks a non-idempotent request as safe to retry.
const HeaderIdempotencyKey = "Idempotency-Key"

// retryTransport retries transient failures with exponential backoff and
// jitter, honoring Retry-After when the server sends one.
type retryTransport struct {
	base                    http.RoundTripper
	maxAttempts             int
	baseBackoff             time.Duration
	maxBackoff              time.Duration
	allowNonIdempotentRetry bool
	logger                  *slog.Logger
}

func newRetryTransport(base http.RoundTripper, cfg Config) *retryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &retryTransport{
		base:                    base,
		maxAttempts:             cfg.RetryAttempts + 1, // attempts include the initial try
		baseBackoff:             cfg.RetryBackoff,
		maxBackoff:              cfg.MaxBackoff,
		allowNonIdempotentRetry: cfg.AllowNonIdempotentRetry,
		logger:                  logger,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.retryable(req) {
		return t.base.RoundTrip(req)
	}

	var lastErr error
	var lastResp *http.Response

	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := t.calculateBackoff(attempt - 1)
			if lastResp != nil {
				if retryAfter := parseRetryAfter(lastResp); retryAfter > 0 && retryAfter < t.maxBackoff {
					delay = retryAfter
				}
			}

			t.logRetry(req, attempt, delay, lastResp, lastErr)
			select {
			case <-time.After(delay):
			case <-req.Context().Done():
				return nil, req.Context().Err()
			}
		}

		attemptReq, err := rewind(req, attempt)
		if err != nil {
			return nil, err
		}

		resp, err := t.base.RoundTrip(attemptReq)
		if err == nil && !IsRetryableStatus(resp.StatusCode) {
			return resp, nil
		}
		if err != nil && !isRetryableError(err) {
			return nil, err
		}

		// Keep the final response readable so callers can decode the error body.
		if attempt == t.maxAttempts {
			return resp, err
		}

		lastErr = err
		lastResp = resp
		if resp != nil && resp.Body != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}
	}

	return lastResp, lastErr
}

// logRetry records why another attempt is about to be made, tagged with
// the pipeline step that issued the request.
func (t *retryTransport) logRetry(req *http.Request, attempt int, delay time.Duration, resp *http.Response, err error) {
	ctx := req.Context()
	attrs := []any{
		slog.String("host", req.URL.Host),
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", t.maxAttempts),
		slog.Duration("delay", delay),
	}
	if step := pipeline.StepIDFromContext(ctx); step != "" {
		attrs = append(attrs, slog.String("step_id", step))
	}
	if resp != nil {
		attrs = append(attrs, slog.Int("status", resp.StatusCode))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	t.logger.WarnContext(ctx, "retrying http request", attrs...)
}

// retryable reports whether req may be sent more than once.
func (t *retryTransport) retryable(req *http.Request) bool {
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return false
	}
	if t.allowNonIdempotentRetry || req.Header.Get(HeaderIdempotencyKey) != "" {
		return true
	}
	switch strings.ToUpper(req.Method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut:
		return true
	default:
		return false
	}
}

// rewind returns a request with a fresh body for attempts after the first.
func rewind(req *http.Request, attempt int) (*http.Request, error) {
	if attempt == 1 || req.GetBody == nil {
		return req, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone := req.Clone(req.Context())
	clone.Body = body
	return clone, nil
}

// IsRetryableStatus reports whether an HTTP status indicates a transient
// failure: 408, 429 and any 5xx.
func IsRetryableStatus(statusCode int) bool {
	switch {
	case statusCode >= 500 && statusCode < 600:
		return true
	case statusCode == http.StatusRequestTimeout:
		return true
	case statusCode == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return isRetryableError(urlErr.Err)
	}

	errMsg := strings.ToLower(err.Error())
	for _, keyword := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network unreachable",
		"temporary failure in name resolution",
		"eof",
	} {
		if strings.Contains(errMsg, keyword) {
			return true
		}
	}

	return false
}

func (t *retryTransport) calculateBackoff(attempt int) time.Duration {
	backoff := float64(t.baseBackoff) * math.Pow(2.0, float64(attempt-1))
	if backoff > float64(t.maxBackoff) {
		backoff = float64(t.maxBackoff)
	}

	// up to 20% jitter
	jitter := rand.Float64() * backoff * 0.2
	return time.Duration(backoff + jitter)
}

func parseRetryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if retryTime, err := http.ParseTime(header); err == nil {
		if delay := time.Until(retryTime); delay > 0 {
			return delay
		}
	}

	return 0
}
