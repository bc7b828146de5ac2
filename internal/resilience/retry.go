package resilience

import (
	"context"
	"time"
)

type RetryConfig struct {
	Attempts int
	Delay    time.Duration
	// Retryable decides whether err is worth another attempt. Nil retries every error.
	Retryable func(error) bool
	// OnRetry is called after a failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// Retry calls fn up to cfg.Attempts times, waiting cfg.Delay between attempts
// and stopping early on success, a non-retryable error or context cancellation.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if cfg.Retryable != nil && !cfg.Retryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.Attempts {
			break
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr)
		}

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(cfg.Delay):
		}
	}
	return lastErr
}
