package adapter

import (
	"context"
	"fmt"
	"time"
)

// BaseBackoff is the delay before the first retry; it doubles per attempt.
const BaseBackoff = 500 * time.Millisecond

// Backoff returns the delay preceding retry number n (n >= 1).
func Backoff(n int) time.Duration {
	if n < 1 {
		return 0
	}
	return time.Duration(1<<uint(n-1)) * BaseBackoff
}

// Retrier runs a delivery attempt up to 1+Retries times.
type Retrier struct {
	// Name prefixes returned errors.
	Name    string
	Retries int
	// Backoff is the delay before retry n; nil uses Backoff.
	Backoff func(n int) time.Duration
	// Permanent reports errors that must not be retried.
	Permanent func(error) bool
}

// Do calls op until it succeeds, fails permanently, or attempts run out.
func (r Retrier) Do(ctx context.Context, op func(context.Context) error) error {
	backoff := r.Backoff
	if backoff == nil {
		backoff = Backoff
	}
	attempts := 1 + r.Retries
	var lastErr error

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", r.Name, err)
		}

		if i > 0 {
			timer := time.NewTimer(backoff(i))
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s: context canceled during backoff: %w", r.Name, ctx.Err())
			case <-timer.C:
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if r.Permanent != nil && r.Permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", r.Name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", r.Name, attempts, lastErr)
}
