// Package circuitbreaker stops calling a dependency that keeps failing.
//
// A Breaker starts closed. After FailureThreshold consecutive failures it
// opens and rejects calls with ErrCircuitOpen for Cooldown. After the
// cooldown it lets TrialCalls calls through (half-open): SuccessThreshold
// successes close it again, any failure reopens it.
//
// Which errors count is decided by Settings.IsFailure. An error it rejects
// (a cache miss, a provider refusing a bad request) means the dependency
// answered and counts as a success.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the position of a Breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the state name used in logs and status output.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned without running the call while the breaker is
// open, or half-open with every trial slot taken.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// StateChangeFunc observes transitions.
type StateChangeFunc func(name string, from, to State)

// Settings configures a Breaker. Zero fields take the defaults of New.
type Settings struct {
	FailureThreshold int
	SuccessThreshold int
	Cooldown         time.Duration

	// TrialCalls bounds the calls admitted while half-open. Never below
	// SuccessThreshold.
	TrialCalls int

	// IsFailure reports whether err says the dependency is unhealthy. Nil
	// counts every error.
	IsFailure func(error) bool

	OnStateChange StateChangeFunc

	// Now is the clock, time.Now when nil.
	Now func() time.Time
}

// Breaker guards calls to one dependency. Safe for concurrent use.
type Breaker struct {
	name string
	s    Settings

	mu        sync.Mutex
	state     State
	gen       uint64 // bumped on every transition; stale results are dropped
	failures  int
	successes int
	trials    int
	openedAt  time.Time
}

// New creates a closed Breaker.
func New(name string, s Settings) *Breaker {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 5
	}
	if s.SuccessThreshold <= 0 {
		s.SuccessThreshold = 1
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	s.TrialCalls = max(s.TrialCalls, s.SuccessThreshold)
	if s.Now == nil {
		s.Now = time.Now
	}
	return &Breaker{name: name, s: s}
}

// Execute runs fn when the breaker admits it and records the outcome. A
// context that is already done is returned without touching the breaker.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	gen, err := b.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)
	b.record(gen, err != nil && (b.s.IsFailure == nil || b.s.IsFailure(err)))
	return err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.s.Now().Sub(b.openedAt) < b.s.Cooldown {
			return 0, ErrCircuitOpen
		}
		b.transitionLocked(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if b.trials >= b.s.TrialCalls {
			return 0, ErrCircuitOpen
		}
		b.trials++
	}
	return b.gen, nil
}

func (b *Breaker) record(gen uint64, failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen != b.gen {
		return
	}

	switch b.state {
	case StateClosed:
		if !failed {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.s.FailureThreshold {
			b.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		if failed {
			b.transitionLocked(StateOpen)
			return
		}
		b.successes++
		if b.successes >= b.s.SuccessThreshold {
			b.transitionLocked(StateClosed)
		}
	}
}

func (b *Breaker) transitionLocked(to State) {
	from := b.state
	b.state = to
	b.gen++
	b.failures, b.successes, b.trials = 0, 0, 0
	if to == StateOpen {
		b.openedAt = b.s.Now()
	}
	if b.s.OnStateChange != nil && from != to {
		b.s.OnStateChange(b.name, from, to)
	}
}

// State returns the current state. An open breaker whose cooldown has passed
// still reports open until the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsOpen reports whether calls are currently rejected.
func (b *Breaker) IsOpen() bool {
	return b.State() == StateOpen
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// Reset closes the breaker and forgets its history.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionLocked(StateClosed)
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESETS
// ══════════════════════════════════════════════════════════════════════════════

// CacheBreaker guards Redis. Every cache read has a store fallback, so it
// trips after five failures and tries again after ten seconds. isFailure
// must reject answers such as a cache miss, or cold reads open the breaker
// and drop the invalidations that follow writes.
func CacheBreaker(onChange StateChangeFunc, isFailure func(error) bool) *Breaker {
	return New("redis", Settings{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Cooldown:         10 * time.Second,
		TrialCalls:       2,
		IsFailure:        isFailure,
		OnStateChange:    onChange,
	})
}

// TutorAPIBreaker guards the tutor provider. A session turn waits on it, so
// three failures open it for thirty seconds and two trial turns must pass.
func TutorAPIBreaker(onChange StateChangeFunc, isFailure func(error) bool) *Breaker {
	return New("tutor-api", Settings{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
		IsFailure:        isFailure,
		OnStateChange:    onChange,
	})
}
