package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tombee/pixelflow/internal/tracing"
	pferrors "github.com/tombee/pixelflow/pkg/errors"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// ErrorFromResponse converts a non-2xx response into a ProviderError.
// It consumes and closes the body. The message comes from a JSON
// {"error": {"message": ...}} or {"error": "..."} body when present, and
// from the raw body otherwise.
func ErrorFromResponse(provider string, resp *http.Response) *pferrors.ProviderError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()

	msg := errorMessage(body)
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	return &pferrors.ProviderError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Message:    msg,
		Suggestion: suggestion(resp.StatusCode),
		RequestID:  requestID(resp.Header),
		Retryable:  IsRetryableStatus(resp.StatusCode),
	}
}

func errorMessage(body []byte) string {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(envelope.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		var flat string
		if json.Unmarshal(envelope.Error, &flat) == nil && flat != "" {
			return flat
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	return strings.TrimSpace(string(body))
}

func requestID(h http.Header) string {
	for _, k := range []string{tracing.HeaderRequestID, "X-Amz-Request-Id", "Request-Id"} {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return ""
}

func suggestion(status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "check the provider API key (pixelflow auth set <provider>)"
	case status == http.StatusTooManyRequests:
		return "lower the provider rate limit or pipeline concurrency"
	case status >= 500:
		return fmt.Sprintf("the provider returned %d; retry later", status)
	default:
		return ""
	}
}
