package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_BackoffGrowsAndCaps(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	within := func(n int, lo time.Duration) {
		d := p.Backoff(n)
		assert.GreaterOrEqual(t, d, lo, "attempt %d", n)
		assert.Less(t, d, lo+50*time.Millisecond, "attempt %d", n)
	}
	within(1, 100*time.Millisecond)
	within(2, 200*time.Millisecond)
	within(3, 400*time.Millisecond)
	within(4, 800*time.Millisecond)
	within(5, time.Second)
	within(9, time.Second)
}

func TestRetryPolicy_ZeroBase(t *testing.T) {
	assert.Equal(t, time.Duration(0), RetryPolicy{}.Backoff(3))
}

func TestRetryPolicy_DoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := fastRetry(5).Do(context.Background(), func(int) error {
		calls++
		return errors.New("handler bug")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_DoRetriesStoreErrors(t *testing.T) {
	calls := 0
	err := fastRetry(5).Do(context.Background(), func(attempt int) error {
		calls++
		if attempt < 3 {
			return &BatchError{Phase: StateCommitting, Cause: &StoreError{Op: "commit", Code: StoreUnavailable, Err: errors.New("busy")}}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_DoStopsOnRejectedCommit(t *testing.T) {
	calls := 0
	err := fastRetry(5).Do(context.Background(), func(int) error {
		calls++
		return &BatchError{Phase: StateCommitting, Cause: &StoreError{Op: "commit", Code: StoreRejected, Err: ErrBatchCommitted}}
	})
	assert.ErrorIs(t, err, ErrBatchCommitted)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_DoHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour}

	calls := 0
	err := p.Do(ctx, func(int) error {
		calls++
		cancel()
		return &StoreError{Op: "fetch", Code: StoreUnavailable, Err: errors.New("down")}
	})
	assert.True(t, IsStoreError(err))
	assert.Equal(t, 1, calls)
}
