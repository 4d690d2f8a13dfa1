package httpclient

import (
	"fmt"
	"log/slog"
	"time"
)

// Config controls the behavior of clients built by New.
type Config struct {
	// Timeout bounds the whole request, including retries of the headers phase.
	Timeout time.Duration `yaml:"timeout"`

	// RetryAttempts is the number of retries after the first attempt.
	// Zero disables retries.
	RetryAttempts int `yaml:"retry_attempts"`

	// RetryBackoff is the base delay for exponential backoff.
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration `yaml:"max_backoff"`

	UserAgent string `yaml:"user_agent"`

	// AllowNonIdempotentRetry retries every method. Requests carrying an
	// Idempotency-Key header are retried regardless.
	AllowNonIdempotentRetry bool `yaml:"allow_non_idempotent_retry"`

	// Logger receives request logs. Defaults to slog.Default().
	Logger *slog.Logger `yaml:"-"`
}

// DefaultConfig returns the settings used for provider calls.
func DefaultConfig() Config {
	return Config{
		Timeout:       120 * time.Second,
		RetryAttempts: 3,
		RetryBackoff:  250 * time.Millisecond,
		MaxBackoff:    30 * time.Second,
		UserAgent:     "pixelflow/dev",
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0, got %v", c.Timeout)
	}

	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts must be >= 0, got %d", c.RetryAttempts)
	}

	if c.RetryAttempts > 0 {
		if c.RetryBackoff <= 0 {
			return fmt.Errorf("retry_backoff must be > 0 when retry_attempts > 0, got %v", c.RetryBackoff)
		}
		if c.MaxBackoff < c.RetryBackoff {
			return fmt.Errorf("max_backoff (%v) must be >= retry_backoff (%v)", c.MaxBackoff, c.RetryBackoff)
		}
	}

	if c.UserAgent == "" {
		return fmt.Errorf("user_agent is required and must be non-empty")
	}

	return nil
}
