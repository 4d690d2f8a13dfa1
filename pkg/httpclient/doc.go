// Package httpclient builds the HTTP clients pixelflow uses to reach remote
// image, vision and text providers and presigned upload targets.
//
// Clients come with:
//   - retry with exponential backoff and jitter on 408, 429, 5xx and
//     transient network errors, honoring Retry-After
//   - request logging through an injected *slog.Logger with sanitized URLs
//   - User-Agent injection and X-Correlation-ID propagation
//   - TLS 1.2 minimum and pooled connections
//
// # Usage
//
//	cfg := httpclient.DefaultConfig()
//	cfg.Logger = logger
//	client, err := httpclient.New(cfg)
//	if err != nil {
//	    return err
//	}
//	resp, err := client.Do(req)
//	if resp.StatusCode >= 300 {
//	    return httpclient.ErrorFromResponse("openai", resp)
//	}
//
// # Retry Behavior
//
// GET, HEAD, OPTIONS and PUT are retried. POST is retried only when the
// request carries an Idempotency-Key header or AllowNonIdempotentRetry is
// set. Requests with a body are retried only when http.Request.GetBody is
// available, which http.NewRequest sets for bytes and strings readers.
//
// ErrorFromResponse maps a failed response into a pixelflow ProviderError
// whose Retryable flag matches IsRetryableStatus.
package httpclient
