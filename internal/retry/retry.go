// File: internal/retry/retry.go
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy bounds how many times an operation is attempted and how long to
// sleep between attempts.
type Policy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// ExponentialBackoff doubles the base delay per attempt: base, 2*base,
// 4*base, and so on. Attempt numbering starts at 1.
func ExponentialBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return base << (attempt - 1)
	}
}

// Do runs fn until it succeeds, the attempt budget is exhausted, or the
// context is canceled. It returns the number of attempts made and the last
// error.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	if p.MaxAttempts < 1 {
		return 0, fmt.Errorf("retry policy has no attempt budget")
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return attempt, nil
		}

		if attempt == p.MaxAttempts {
			break
		}
		if p.Backoff != nil {
			select {
			case <-time.After(p.Backoff(attempt)):
			case <-ctx.Done():
				return attempt, ctx.Err()
			}
		}
	}
	return p.MaxAttempts, fmt.Errorf("after %d attempts: %w", p.MaxAttempts, lastErr)
}
