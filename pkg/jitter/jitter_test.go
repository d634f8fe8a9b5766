package jitter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration_Range(t *testing.T) {
	d := 100 * time.Millisecond
	for i := 0; i < 100; i++ {
		got := Duration(d, DefaultJitter)
		assert.GreaterOrEqual(t, got, d)
		assert.LessOrEqual(t, got, d+d/2)
	}
}

func TestExponentialBackoff_CappedByMax(t *testing.T) {
	base := 10 * time.Millisecond
	max := 50 * time.Millisecond

	assert.Equal(t, base, ExponentialBackoff(base, max, 0, 0))
	assert.Equal(t, 20*time.Millisecond, ExponentialBackoff(base, max, 1, 0))
	assert.Equal(t, 40*time.Millisecond, ExponentialBackoff(base, max, 2, 0))
	assert.Equal(t, max, ExponentialBackoff(base, max, 3, 0))
	assert.Equal(t, max, ExponentialBackoff(base, max, 30, 0))
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	var retries []int

	err := Retry(context.Background(), Policy{
		Attempts: 3,
		Base:     time.Millisecond,
		Max:      time.Millisecond,
		OnRetry:  func(attempt int, _ time.Duration, _ error) { retries = append(retries, attempt) },
	}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestRetry_ReturnsLastError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), Policy{Attempts: 2, Base: time.Millisecond, Max: time.Millisecond},
		func(context.Context) error {
			calls++
			return errors.New("still failing")
		})

	assert.EqualError(t, err, "still failing")
	assert.Equal(t, 2, calls)
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0

	err := Retry(context.Background(), Policy{
		Attempts:  5,
		Base:      time.Millisecond,
		Max:       time.Millisecond,
		Retryable: func(err error) bool { return !errors.Is(err, permanent) },
	}, func(context.Context) error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetry_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = Retry(context.Background(), Policy{}, func(context.Context) error {
		calls++
		return errors.New("fail")
	})
	assert.Equal(t, 1, calls)
}

func TestRetry_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Retry(ctx, Policy{Attempts: 3, Base: time.Hour, Max: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return errors.New("fail")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
