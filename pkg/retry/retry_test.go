package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fastRetrier(attempts int, opts ...Option) *Retrier {
	return New(append([]Option{
		WithMaxAttempts(attempts),
		WithInitialDelay(time.Millisecond),
		WithMaxDelay(2 * time.Millisecond),
		WithJitter(0),
	}, opts...)...)
}

func TestDo_RetriesRetryableUntilSuccess(t *testing.T) {
	calls := 0
	err := fastRetrier(5).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errBoom)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ReturnsOperationErrorAfterLastAttempt(t *testing.T) {
	calls := 0
	err := fastRetrier(3).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Retryable(errBoom)
	})

	assert.Equal(t, 3, calls)
	assert.Same(t, errBoom, err)
}

func TestDo_DoesNotRetryUnmarkedErrors(t *testing.T) {
	calls := 0
	err := fastRetrier(3).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errBoom
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, errBoom, err)
}

func TestDo_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := fastRetrier(3).Do(ctx, func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.Equal(t, 0, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_CancelDuringWaitReturnsLastError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := New(WithMaxAttempts(5), WithInitialDelay(time.Hour), WithJitter(0),
		WithOnRetry(func(int, error, time.Duration) { cancel() }),
	)

	calls := 0
	err := r.Do(ctx, func(ctx context.Context) error {
		calls++
		return Retryable(errBoom)
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, errBoom, err)
}

func TestDo_OnRetryCallback(t *testing.T) {
	var attempts []int
	var delays []time.Duration
	r := fastRetrier(3, WithOnRetry(func(attempt int, err error, delay time.Duration) {
		assert.Same(t, errBoom, err)
		attempts = append(attempts, attempt)
		delays = append(delays, delay)
	}))
	_ = r.Do(context.Background(), func(ctx context.Context) error {
		return Retryable(errBoom)
	})

	assert.Equal(t, []int{1, 2}, attempts)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, delays)
}

func TestDelay_DoublesAndCaps(t *testing.T) {
	r := New(WithInitialDelay(100*time.Millisecond), WithMaxDelay(300*time.Millisecond), WithJitter(0))

	assert.Equal(t, 100*time.Millisecond, r.delay(1))
	assert.Equal(t, 200*time.Millisecond, r.delay(2))
	assert.Equal(t, 300*time.Millisecond, r.delay(5))
	assert.Equal(t, 300*time.Millisecond, r.delay(80))
}

func TestDelay_JitterStaysInBand(t *testing.T) {
	r := New(WithInitialDelay(100*time.Millisecond), WithJitter(0.5))
	for i := 0; i < 50; i++ {
		d := r.delay(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestRetryableNil(t *testing.T) {
	assert.NoError(t, Retryable(nil))
	assert.ErrorIs(t, Retryable(errBoom), errBoom)
}

func TestPresets(t *testing.T) {
	calls := 0
	err := ProgressWriteRetrier(4, WithInitialDelay(time.Microsecond), WithMaxDelay(time.Microsecond)).
		Do(context.Background(), func(ctx context.Context) error {
			calls++
			return Retryable(errBoom)
		})
	assert.Same(t, errBoom, err)
	assert.Equal(t, 4, calls)

	tutor := TutorAPIRetrier().config
	assert.Equal(t, 3, tutor.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, tutor.InitialDelay)
	assert.Equal(t, 10*time.Second, tutor.MaxDelay)
}
