package bacnet

import (
	"context"
	"time"
)

// RetryPolicy governs ReadProperty timeout and retry behaviour.
//
// Attempt n (1-indexed) waits AttemptTimeout(n) for a reply; after a failed
// attempt the policy sleeps RetryDelay before the next one. The total
// budget is therefore bounded by
//
//	BaseTimeout × (2^0 + 2^1 + ... + 2^MaxRetries) + MaxRetries × RetryDelay
//
// when backoff is enabled.
type RetryPolicy struct {
	// BaseTimeout is the first attempt's reply timeout.
	BaseTimeout time.Duration

	// MaxRetries is the number of extra attempts after the first.
	MaxRetries int

	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration

	// ExponentialBackoff doubles the timeout on each retry when set.
	ExponentialBackoff bool
}

// DefaultRetryPolicy matches the worker's production read behaviour:
// 6 s base timeout, 3 retries, 500 ms between attempts, exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseTimeout:        6 * time.Second,
		MaxRetries:         3,
		RetryDelay:         500 * time.Millisecond,
		ExponentialBackoff: true,
	}
}

// Attempts returns the total number of attempts the policy allows.
func (p RetryPolicy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// AttemptTimeout returns the reply timeout for attempt n (1-indexed).
// With backoff, retry r (attempt r+1) uses BaseTimeout × 2^(r-1):
// a 6 s base yields 6/6/12/24 s across four attempts.
func (p RetryPolicy) AttemptTimeout(attempt int) time.Duration {
	if attempt <= 1 || !p.ExponentialBackoff {
		return p.BaseTimeout
	}
	return p.BaseTimeout << (attempt - 2)
}

// MaxElapsed returns the upper bound on a single request's total duration.
func (p RetryPolicy) MaxElapsed() time.Duration {
	total := time.Duration(0)
	for attempt := 1; attempt <= p.Attempts(); attempt++ {
		total += p.AttemptTimeout(attempt)
	}
	return total + time.Duration(p.MaxRetries)*p.RetryDelay
}

// sleep pauses for d, returning early if ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
