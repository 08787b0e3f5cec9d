package util

import (
	"context"
	"time"
)

// Retry runs fn until it succeeds, making at most maxAttempts tries. The
// pause between tries starts at baseDelay and doubles each round. Cancelling
// ctx during a pause aborts with the context error; when every try fails the
// last fn error is returned.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var lastErr error
	delay := baseDelay

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return lastErr
}
