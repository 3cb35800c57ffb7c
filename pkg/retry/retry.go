// Package retry re-runs an operation with exponential backoff and jitter.
// Progress writes use it when they lose a compare-and-set race; the tutor
// client uses it for provider failures that may pass.
//
// Only errors marked with Retryable are retried. Whatever Do returns is the
// operation's own error, never the marker.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

type retryable struct{ err error }

func (e retryable) Error() string { return e.err.Error() }
func (e retryable) Unwrap() error { return e.err }

// Retryable marks err as worth another attempt. Nil stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return retryable{err: err}
}

func unwrap(err error) (error, bool) {
	var r retryable
	if errors.As(err, &r) {
		return r.err, true
	}
	return err, false
}

// Config holds the backoff policy. Delays double from InitialDelay up to
// MaxDelay, each moved by up to ±Jitter of itself.
type Config struct {
	// MaxAttempts counts the first call.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Jitter       float64

	// OnRetry runs before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Option adjusts a Config.
type Option func(*Config)

// WithMaxAttempts sets the number of calls, the first one included.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

// WithInitialDelay sets the wait after the first failure.
func WithInitialDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.InitialDelay = d
		}
	}
}

// WithMaxDelay caps every wait.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.MaxDelay = d
		}
	}
}

// WithJitter sets the jitter fraction, between 0 and 1.
func WithJitter(j float64) Option {
	return func(c *Config) {
		if j >= 0 && j <= 1 {
			c.Jitter = j
		}
	}
}

// WithOnRetry sets a callback run before each wait.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(c *Config) {
		c.OnRetry = fn
	}
}

// Retrier runs operations under one policy. Safe for concurrent use.
type Retrier struct {
	config Config
}

// New creates a Retrier: three attempts from 100ms up to 30s with 10%
// jitter, before opts.
func New(opts ...Option) *Retrier {
	config := Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Jitter:       0.1,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &Retrier{config: config}
}

// Do calls op until it succeeds, returns an error not marked Retryable, or
// runs out of attempts. A done context stops the loop; the last error of op
// wins over the context error when there is one.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}

		err, again := unwrap(op(ctx))
		if err == nil || !again || attempt >= r.config.MaxAttempts {
			return err
		}
		last = err

		delay := r.delay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last
		case <-timer.C:
		}
	}
}

// delay returns the wait after the given failed attempt.
func (r *Retrier) delay(attempt int) time.Duration {
	d := r.config.InitialDelay
	for i := 1; i < attempt && d < r.config.MaxDelay; i++ {
		d *= 2
	}
	d = min(d, r.config.MaxDelay)

	if r.config.Jitter > 0 {
		d += time.Duration(float64(d) * r.config.Jitter * (rand.Float64()*2 - 1))
	}
	return max(d, 0)
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESETS
// ══════════════════════════════════════════════════════════════════════════════

// ProgressWriteRetrier retries a progress update that lost the compare-and-set
// on updated_at. The winning writer is already done, so waits stay short and
// the jitter wide enough to split writers that collided. opts apply last.
func ProgressWriteRetrier(maxAttempts int, opts ...Option) *Retrier {
	return New(append([]Option{
		WithMaxAttempts(maxAttempts),
		WithInitialDelay(5 * time.Millisecond),
		WithMaxDelay(200 * time.Millisecond),
		WithJitter(0.5),
	}, opts...)...)
}

// TutorAPIRetrier retries provider calls. Three attempts from half a second
// keep a session turn under the request timeout.
func TutorAPIRetrier() *Retrier {
	return New(
		WithMaxAttempts(3),
		WithInitialDelay(500*time.Millisecond),
		WithMaxDelay(10*time.Second),
		WithJitter(0.2),
	)
}
