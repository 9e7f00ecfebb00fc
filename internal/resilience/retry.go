package resilience

import (
	"context"
	"time"
)

// RetryConfig bounds attempts and shapes the exponential backoff between them.
type RetryConfig struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

const (
	DefaultRetryAttempts = 3
	DefaultRetryBackoff  = 200 * time.Millisecond
	DefaultMaxBackoff    = 2 * time.Second
)

// Retry calls fn up to Attempts times. It stops early on success, on a
// Permanent error, or when ctx is done; the last error is returned.
func Retry(ctx context.Context, cfg RetryConfig, fn func(context.Context) error) error {
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}
		err = fn(ctx)
		if err == nil || IsPermanent(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff(cfg, attempt)):
		}
	}
	return err
}

func backoff(cfg RetryConfig, attempt int) time.Duration {
	base := cfg.Backoff
	if base <= 0 {
		return 0
	}
	d := base << attempt
	if cfg.MaxBackoff > 0 && (d > cfg.MaxBackoff || d <= 0) {
		d = cfg.MaxBackoff
	}
	return d
}
