// File: internal/retry/retry.go
package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Backoff returns base * 2^(attempt-1), capped at max, with +/-25% jitter. Attempt
// numbering starts at 1; non-positive attempts return zero.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt <= 0 || base <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	backoff := base * time.Duration(1<<uint(attempt-1))
	if max > 0 && (backoff > max || backoff <= 0) {
		backoff = max
	}
	if quarter := backoff / 4; quarter > 0 {
		backoff += time.Duration(rand.Int64N(int64(quarter)*2)) - quarter
	}
	return backoff
}

// Uniform returns a duration drawn uniformly from [min, max]. A max below min yields min.
func Uniform(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int64N(int64(max-min)+1))
}

// Sleep waits for d or until ctx ends, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
