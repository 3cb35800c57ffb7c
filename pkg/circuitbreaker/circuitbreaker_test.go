package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fail(context.Context) error { return errBoom }
func ok(context.Context) error   { return nil }

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestBreaker(s Settings) (*Breaker, *clock) {
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s.Now = c.Now
	return New("test", s), c
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	var transitions []State
	cb, _ := newTestBreaker(Settings{
		FailureThreshold: 2,
		Cooldown:         time.Minute,
		OnStateChange:    func(_ string, _, to State) { transitions = append(transitions, to) },
	})

	assert.ErrorIs(t, cb.Execute(context.Background(), fail), errBoom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(context.Background(), fail), errBoom)
	assert.True(t, cb.IsOpen())

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, []State{StateOpen}, transitions)
}

func TestBreaker_SuccessResetsFailureRun(t *testing.T) {
	cb, _ := newTestBreaker(Settings{FailureThreshold: 2})

	require.Error(t, cb.Execute(context.Background(), fail))
	require.NoError(t, cb.Execute(context.Background(), ok))
	require.Error(t, cb.Execute(context.Background(), fail))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	cb, c := newTestBreaker(Settings{FailureThreshold: 1, SuccessThreshold: 2, Cooldown: time.Minute})

	require.Error(t, cb.Execute(context.Background(), fail))
	c.Advance(30 * time.Second)
	assert.ErrorIs(t, cb.Execute(context.Background(), ok), ErrCircuitOpen)

	c.Advance(31 * time.Second)
	require.NoError(t, cb.Execute(context.Background(), ok))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(context.Background(), ok))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, c := newTestBreaker(Settings{FailureThreshold: 1, Cooldown: time.Minute})

	require.Error(t, cb.Execute(context.Background(), fail))
	c.Advance(time.Minute)
	require.Error(t, cb.Execute(context.Background(), fail))
	assert.True(t, cb.IsOpen())

	// the cooldown restarts from the reopen
	c.Advance(59 * time.Second)
	assert.ErrorIs(t, cb.Execute(context.Background(), ok), ErrCircuitOpen)
}

func TestBreaker_HalfOpenLimitsTrialCalls(t *testing.T) {
	cb, c := newTestBreaker(Settings{FailureThreshold: 1, SuccessThreshold: 1, TrialCalls: 1, Cooldown: time.Minute})
	require.Error(t, cb.Execute(context.Background(), fail))
	c.Advance(time.Minute)

	entered := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = cb.Execute(context.Background(), func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()

	<-entered
	assert.ErrorIs(t, cb.Execute(context.Background(), ok), ErrCircuitOpen)
	close(release)
	wg.Wait()
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_IsFailureFilter(t *testing.T) {
	errIgnored := errors.New("client mistake")
	cb, _ := newTestBreaker(Settings{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, errIgnored) },
	})

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Execute(context.Background(), func(context.Context) error { return errIgnored }), errIgnored)
	}
	assert.Equal(t, StateClosed, cb.State())

	require.Error(t, cb.Execute(context.Background(), fail))
	assert.True(t, cb.IsOpen())
}

func TestBreaker_DoneContextSkipsCall(t *testing.T) {
	cb, _ := newTestBreaker(Settings{FailureThreshold: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return errBoom })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_ResultFromBeforeResetIsDropped(t *testing.T) {
	cb, _ := newTestBreaker(Settings{FailureThreshold: 1})

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- cb.Execute(context.Background(), func(context.Context) error {
			close(entered)
			<-release
			return errBoom
		})
	}()

	<-entered
	cb.Reset()
	close(release)
	assert.ErrorIs(t, <-done, errBoom)
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(Settings{FailureThreshold: 1, Cooldown: time.Hour})
	require.Error(t, cb.Execute(context.Background(), fail))
	require.True(t, cb.IsOpen())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Execute(context.Background(), ok))
}

func TestPresets(t *testing.T) {
	errMiss := errors.New("miss")
	notMiss := func(err error) bool { return !errors.Is(err, errMiss) }

	cache := CacheBreaker(nil, notMiss)
	assert.Equal(t, "redis", cache.Name())
	for i := 0; i < 20; i++ {
		_ = cache.Execute(context.Background(), func(context.Context) error { return errMiss })
	}
	assert.Equal(t, StateClosed, cache.State())

	tutor := TutorAPIBreaker(nil, nil)
	assert.Equal(t, "tutor-api", tutor.Name())
	for i := 0; i < 3; i++ {
		_ = tutor.Execute(context.Background(), fail)
	}
	assert.True(t, tutor.IsOpen())

	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}
