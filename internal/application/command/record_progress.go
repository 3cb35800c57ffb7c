// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"time"

	"github.com/notewise/notewise-backend/internal/domain/progress"
	"github.com/notewise/notewise-backend/internal/domain/shared"
	"github.com/notewise/notewise-backend/pkg/logger"
	"github.com/notewise/notewise-backend/pkg/retry"
	"github.com/notewise/notewise-backend/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD PROGRESS COMMAND
// Applies one qualifying action (login touch, study session, tutoring session,
// manual grant) to a user's progress record with an optimistic-lock write.
// ══════════════════════════════════════════════════════════════════════════════

// RecordProgressCommand contains the data to record one action.
type RecordProgressCommand struct {
	// UserID is the account that performed the action.
	UserID string

	// Action is the qualifying action.
	Action progress.Action

	// CorrelationID for tracing.
	CorrelationID string
}

// RecordProgressResult contains the committed outcome.
type RecordProgressResult struct {
	// Progress is the record as written.
	Progress progress.UserProgress `json:"progress"`

	// XPAwarded is the XP actually added.
	XPAwarded int64 `json:"xp_awarded"`

	// PreviousLevel is the level before the action.
	PreviousLevel int `json:"previous_level"`

	// LeveledUp is true when a level threshold was crossed.
	LeveledUp bool `json:"leveled_up"`

	// StreakExtended and StreakReset describe the streak change.
	StreakExtended bool `json:"streak_extended"`
	StreakReset    bool `json:"streak_reset"`

	// NewBadges lists badges unlocked by this action.
	NewBadges []progress.BadgeCode `json:"new_badges"`

	// Attempts is how many read-modify-write rounds were needed.
	Attempts int `json:"-"`

	// Events contains the domain events that were published.
	Events []shared.Event `json:"-"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordProgressHandler handles the RecordProgressCommand.
type RecordProgressHandler struct {
	repo           progress.Repository
	badgeRepo      progress.BadgeRepository
	eventPublisher shared.EventPublisher
	rules          progress.Rules
	checker        *progress.BadgeChecker
	clock          timeutil.Clock
	retrier        *retry.Retrier
	logger         *logger.Logger
}

// RecordProgressHandlerConfig contains configuration for the handler.
type RecordProgressHandlerConfig struct {
	Rules          progress.Rules
	DisabledBadges []progress.BadgeCode
	MaxAttempts    int
	Clock          timeutil.Clock
	Logger         *logger.Logger
}

// DefaultRecordProgressHandlerConfig returns default configuration.
func DefaultRecordProgressHandlerConfig() RecordProgressHandlerConfig {
	return RecordProgressHandlerConfig{
		Rules:       progress.DefaultRules(),
		MaxAttempts: 5,
		Clock:       timeutil.SystemClock{},
		Logger:      logger.Default(),
	}
}

// NewRecordProgressHandler creates a new RecordProgressHandler. badgeRepo and
// eventPublisher may be nil.
func NewRecordProgressHandler(
	repo progress.Repository,
	badgeRepo progress.BadgeRepository,
	eventPublisher shared.EventPublisher,
	config RecordProgressHandlerConfig,
) *RecordProgressHandler {
	defaults := DefaultRecordProgressHandlerConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.Clock == nil {
		config.Clock = defaults.Clock
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.Rules == (progress.Rules{}) {
		config.Rules = defaults.Rules
	}
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}

	log := config.Logger.With(logger.Component("record_progress"))

	return &RecordProgressHandler{
		repo:           repo,
		badgeRepo:      badgeRepo,
		eventPublisher: eventPublisher,
		rules:          config.Rules,
		checker:        progress.NewBadgeChecker(config.DisabledBadges...),
		clock:          config.Clock,
		logger:         log,
		retrier: retry.ProgressWriteRetrier(config.MaxAttempts,
			retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
				log.Debug("progress write conflict, retrying",
					logger.Int("attempt", attempt),
					logger.Duration("delay", delay),
					logger.Err(err),
				)
			}),
		),
	}
}

// Rules returns the XP rules in effect.
func (h *RecordProgressHandler) Rules() progress.Rules {
	return h.rules
}

// Handle executes the record progress command.
func (h *RecordProgressHandler) Handle(ctx context.Context, cmd RecordProgressCommand) (*RecordProgressResult, error) {
	userID, err := shared.NewUserID(cmd.UserID)
	if err != nil {
		return nil, err
	}
	if err := cmd.Action.Validate(h.rules); err != nil {
		return nil, err
	}

	var (
		transition progress.Transition
		attempts   int
	)

	err = h.retrier.Do(ctx, func(ctx context.Context) error {
		attempts++

		t, err := h.attempt(ctx, userID, cmd.Action)
		if err != nil {
			if shared.IsRetryable(err) {
				return retry.Retryable(err)
			}
			return err
		}
		transition = t
		return nil
	})
	if err != nil {
		if shared.IsConflict(err) {
			h.logger.Warn("progress write gave up after conflicts",
				logger.UserID(userID.String()),
				logger.Int("attempts", attempts),
			)
		}
		return nil, err
	}

	badges := h.awardBadges(ctx, transition, cmd.Action)
	events := stampCorrelation(progress.EventsFor(transition, cmd.Action.Trigger, badges), cmd.CorrelationID)
	h.publish(events)

	next := transition.Next
	h.logger.Info("progress recorded",
		logger.UserID(userID.String()),
		logger.Trigger(string(cmd.Action.Trigger)),
		logger.XPAmount(transition.XPAwarded),
		logger.XP(next.XP),
		logger.ProgressLevel(next.Level),
		logger.Streak(next.Streak),
	)

	return &RecordProgressResult{
		Progress:       next,
		XPAwarded:      transition.XPAwarded,
		PreviousLevel:  progress.LevelForXP(transition.Previous.XP),
		LeveledUp:      transition.LeveledUp(),
		StreakExtended: transition.StreakExtended,
		StreakReset:    transition.StreakReset,
		NewBadges:      badges,
		Attempts:       attempts,
		Events:         events,
	}, nil
}

// attempt runs one read-compute-conditional-write round.
func (h *RecordProgressHandler) attempt(ctx context.Context, userID shared.UserID, action progress.Action) (progress.Transition, error) {
	prev, err := h.repo.Get(ctx, userID)
	switch {
	case shared.IsNotFound(err):
		prev = progress.New(userID)
	case err != nil:
		return progress.Transition{}, err
	}

	now := h.clock.Now()
	award := h.rules.AwardFor(action, prev, now)
	t := progress.Apply(prev, now, award)

	// Storage keeps microseconds; the write key must differ from the key it replaces.
	stamp := t.Next.UpdatedAt.UTC().Truncate(time.Microsecond)
	if prev.Exists() && !stamp.After(prev.UpdatedAt) {
		stamp = prev.UpdatedAt.Add(time.Microsecond)
	}
	t.Next.UpdatedAt = stamp

	var expected *time.Time
	if prev.Exists() {
		u := prev.UpdatedAt
		expected = &u
	}

	if err := h.repo.CompareAndSet(ctx, t.Next, expected); err != nil {
		return progress.Transition{}, err
	}
	return t, nil
}

// awardBadges stores newly unlocked badges. Failures are logged; the progress
// write has already committed.
func (h *RecordProgressHandler) awardBadges(ctx context.Context, t progress.Transition, action progress.Action) []progress.BadgeCode {
	if h.badgeRepo == nil {
		return nil
	}

	userID := t.Next.UserID
	owned, err := h.badgeRepo.List(ctx, userID)
	if err != nil {
		h.logger.Warn("failed to list badges", logger.UserID(userID.String()), logger.Err(err))
		return nil
	}

	earned := h.checker.Check(t, action, owned)
	if len(earned) == 0 {
		return nil
	}
	if err := h.badgeRepo.Award(ctx, userID, earned, t.Next.UpdatedAt); err != nil {
		h.logger.Warn("failed to award badges", logger.UserID(userID.String()), logger.Err(err))
		return nil
	}
	return earned
}

func (h *RecordProgressHandler) publish(events []shared.Event) {
	for _, e := range events {
		if err := h.eventPublisher.Publish(e); err != nil {
			h.logger.Warn("failed to publish event",
				logger.String("event_type", string(e.EventType())),
				logger.Err(err),
			)
		}
	}
}

// stampCorrelation returns the events carrying the correlation ID.
func stampCorrelation(events []shared.Event, id string) []shared.Event {
	if id == "" {
		return events
	}
	for i, e := range events {
		events[i] = withCorrelation(e, id)
	}
	return events
}

// withCorrelation stamps the correlation ID on the progress event types.
func withCorrelation(e shared.Event, id string) shared.Event {
	switch ev := e.(type) {
	case progress.ProgressUpdatedEvent:
		ev.BaseEvent = ev.BaseEvent.WithCorrelationID(id)
		return ev
	case progress.LevelUpEvent:
		ev.BaseEvent = ev.BaseEvent.WithCorrelationID(id)
		return ev
	case progress.StreakResetEvent:
		ev.BaseEvent = ev.BaseEvent.WithCorrelationID(id)
		return ev
	case progress.BadgeEarnedEvent:
		ev.BaseEvent = ev.BaseEvent.WithCorrelationID(id)
		return ev
	}
	return e
}
