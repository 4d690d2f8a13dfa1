package httpclient

import (
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

const redacted = "[REDACTED]"

// secretMarkers are matched case-insensitively as substrings of query
// parameter and header names. "signature" and "credential" cover SigV4
// presigned upload URLs.
var secretMarkers = []string{
	"api_key", "apikey", "api-key",
	"token", "password", "secret", "credential", "signature",
	"auth", "cookie",
}

// sanitizeURL drops userinfo and redacts secret query parameters.
func sanitizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	q := u.Query()
	for param := range q {
		if isSecretName(param) || strings.EqualFold(param, "sig") {
			q.Set(param, redacted)
		}
	}

	safe := *u
	safe.User = nil
	safe.RawQuery = q.Encode()
	return safe.String()
}

// headerAttrs returns req's headers as a log group with secret values
// redacted. Authorization keeps its scheme so a bearer and a SigV4 upload
// can still be told apart.
func headerAttrs(h http.Header) slog.Attr {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	attrs := make([]any, 0, len(names))
	for _, name := range names {
		value := strings.Join(h.Values(name), ", ")
		if isSecretName(name) {
			value = redactCredential(value)
		}
		attrs = append(attrs, slog.String(name, value))
	}
	return slog.Group("headers", attrs...)
}

func redactCredential(value string) string {
	if scheme, _, ok := strings.Cut(value, " "); ok {
		return scheme + " " + redacted
	}
	return redacted
}

func isSecretName(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range secretMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
