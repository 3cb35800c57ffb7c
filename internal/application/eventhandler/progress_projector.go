// Package eventhandler contains the subscribers of progress events. They
// keep read models in step with the record store and never fail a write.
package eventhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/notewise/notewise-backend/internal/domain/progress"
	"github.com/notewise/notewise-backend/internal/domain/shared"
	"github.com/notewise/notewise-backend/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// PROGRESS PROJECTOR
// Applies progress.updated events to the leaderboard index and drops the
// cached copy of the record. Works on payloads so events replayed from
// other instances are handled the same way as local ones.
// ═══════════════════════════════════════════════════════════════════════════

// ProgressProjector maintains read models from progress events.
type ProgressProjector struct {
	leaderboard progress.Leaderboard
	cache       progress.Cache
	timeout     time.Duration
	logger      *logger.Logger
}

// NewProgressProjector creates a projector. Either port may be nil.
func NewProgressProjector(leaderboard progress.Leaderboard, cache progress.Cache, log *logger.Logger) *ProgressProjector {
	if log == nil {
		log = logger.Default()
	}
	return &ProgressProjector{
		leaderboard: leaderboard,
		cache:       cache,
		timeout:     5 * time.Second,
		logger:      log.With(logger.Component("progress_projector")),
	}
}

// Register subscribes the projector and the milestone log to the bus.
func (p *ProgressProjector) Register(bus shared.EventSubscriber) error {
	if err := bus.Subscribe(shared.EventProgressUpdated, p.Handle); err != nil {
		return err
	}
	for _, t := range []shared.EventType{shared.EventLevelUp, shared.EventBadgeEarned, shared.EventStreakReset} {
		if err := bus.Subscribe(t, p.LogMilestone); err != nil {
			return err
		}
	}
	return nil
}

// Handle implements shared.EventHandler for progress.updated.
func (p *ProgressProjector) Handle(event shared.Event) error {
	if event.EventType() != shared.EventProgressUpdated {
		return nil
	}

	payload := event.Payload()
	userID, err := shared.NewUserID(payloadString(payload, "user_id"))
	if err != nil {
		return fmt.Errorf("progress.updated: %w", err)
	}
	xp, ok := payloadInt64(payload, "xp")
	if !ok {
		return fmt.Errorf("progress.updated: missing xp for %s", userID)
	}

	version := event.OccurredAt()
	if v, err := time.Parse(time.RFC3339Nano, payloadString(payload, "updated_at")); err == nil {
		version = v
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	var firstErr error
	if p.cache != nil {
		if err := p.cache.Invalidate(ctx, userID, version); err != nil {
			p.logger.Warn("failed to invalidate progress cache", logger.UserID(userID.String()), logger.Err(err))
			firstErr = err
		}
	}
	if p.leaderboard != nil {
		if err := p.leaderboard.Upsert(ctx, userID, xp); err != nil {
			p.logger.Warn("failed to update leaderboard", logger.UserID(userID.String()), logger.Err(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// LogMilestone records level-ups, badges and streak resets.
func (p *ProgressProjector) LogMilestone(event shared.Event) error {
	payload := event.Payload()
	fields := []logger.Field{
		logger.String("event_type", string(event.EventType())),
		logger.UserID(payloadString(payload, "user_id")),
	}

	switch event.EventType() {
	case shared.EventLevelUp:
		level, _ := payloadInt64(payload, "new_level")
		fields = append(fields, logger.ProgressLevel(int(level)))
	case shared.EventBadgeEarned:
		fields = append(fields, logger.String("badge", payloadString(payload, "badge")))
	case shared.EventStreakReset:
		prev, _ := payloadInt64(payload, "previous_streak")
		fields = append(fields, logger.Int64("previous_streak", prev))
	}

	p.logger.Info("progress milestone", fields...)
	return nil
}

func payloadString(payload map[string]interface{}, key string) string {
	s, _ := payload[key].(string)
	return s
}

// payloadInt64 reads a number that may have been through a JSON round-trip.
func payloadInt64(payload map[string]interface{}, key string) (int64, bool) {
	switch v := payload[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
