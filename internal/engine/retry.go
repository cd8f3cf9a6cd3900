package engine

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// RetryPolicy is exponential backoff with jitter for failed batches.
type RetryPolicy struct {
	// MaxAttempts counts the first try. Values below 1 mean one attempt.
	MaxAttempts int

	// BaseDelay is the wait after the first failure; each further failure
	// doubles it, up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy returns 5 attempts starting at 200ms, capped at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

// Backoff returns the wait before retrying after failed attempt n
// (1-based): BaseDelay * 2^(n-1), capped at MaxDelay, plus up to half of
// BaseDelay of jitter.
func (p RetryPolicy) Backoff(n int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if half := int64(p.BaseDelay / 2); half > 0 {
		d += time.Duration(rand.Int63n(half))
	}
	return d
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempts are exhausted. Only errors IsRetryable accepts are retried.
// The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	maxAttempts := max(p.MaxAttempts, 1)

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt >= maxAttempts || !IsRetryable(err) {
			return err
		}

		wait := p.Backoff(attempt)
		slog.Warn("batch failed, retrying",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"backoff", wait,
			"error", err,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
