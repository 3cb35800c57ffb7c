package progress

import (
	"time"

	"github.com/notewise/notewise-backend/internal/domain/shared"
)

// ProgressUpdatedEvent is emitted after every successful progress write.
type ProgressUpdatedEvent struct {
	shared.BaseEvent
	UserID    shared.UserID `json:"user_id"`
	Trigger   Trigger       `json:"trigger"`
	XP        int64         `json:"xp"`
	Level     int           `json:"level"`
	Streak    int           `json:"streak"`
	XPAwarded int64         `json:"xp_awarded"`

	// UpdatedAt is the version of the written record.
	UpdatedAt time.Time `json:"updated_at"`
}

// Payload implements shared.Event.
func (e ProgressUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID.String(),
		"trigger":    string(e.Trigger),
		"xp":         e.XP,
		"level":      e.Level,
		"streak":     e.Streak,
		"xp_awarded": e.XPAwarded,
		"updated_at": e.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// LevelUpEvent is emitted when a write crosses a level threshold.
type LevelUpEvent struct {
	shared.BaseEvent
	UserID   shared.UserID `json:"user_id"`
	OldLevel int           `json:"old_level"`
	NewLevel int           `json:"new_level"`
	XP       int64         `json:"xp"`
}

// Payload implements shared.Event.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID.String(),
		"old_level": e.OldLevel,
		"new_level": e.NewLevel,
		"xp":        e.XP,
	}
}

// StreakResetEvent is emitted when an existing streak restarts at 1.
type StreakResetEvent struct {
	shared.BaseEvent
	UserID         shared.UserID `json:"user_id"`
	PreviousStreak int           `json:"previous_streak"`
	LastActiveDate time.Time     `json:"last_active_date"`
}

// Payload implements shared.Event.
func (e StreakResetEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":          e.UserID.String(),
		"previous_streak":  e.PreviousStreak,
		"last_active_date": e.LastActiveDate.Format("2006-01-02"),
	}
}

// BadgeEarnedEvent is emitted once per newly awarded badge.
type BadgeEarnedEvent struct {
	shared.BaseEvent
	UserID shared.UserID `json:"user_id"`
	Badge  BadgeCode     `json:"badge"`
}

// Payload implements shared.Event.
func (e BadgeEarnedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID.String(),
		"badge":   string(e.Badge),
	}
}

// EventsFor builds the events describing a committed transition.
func EventsFor(t Transition, trigger Trigger, badges []BadgeCode) []shared.Event {
	next := t.Next
	at := next.UpdatedAt
	id := next.UserID.String()

	events := []shared.Event{
		ProgressUpdatedEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventProgressUpdated, id, at),
			UserID:    next.UserID,
			Trigger:   trigger,
			XP:        next.XP,
			Level:     next.Level,
			Streak:    next.Streak,
			XPAwarded: t.XPAwarded,
			UpdatedAt: next.UpdatedAt,
		},
	}

	if t.LeveledUp() {
		events = append(events, LevelUpEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventLevelUp, id, at),
			UserID:    next.UserID,
			OldLevel:  next.Level - t.LevelsGained,
			NewLevel:  next.Level,
			XP:        next.XP,
		})
	}

	if t.StreakReset && t.Previous.LastActiveDate != nil {
		events = append(events, StreakResetEvent{
			BaseEvent:      shared.NewBaseEvent(shared.EventStreakReset, id, at),
			UserID:         next.UserID,
			PreviousStreak: t.Previous.Streak,
			LastActiveDate: *t.Previous.LastActiveDate,
		})
	}

	for _, b := range badges {
		events = append(events, BadgeEarnedEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventBadgeEarned, id, at),
			UserID:    next.UserID,
			Badge:     b,
		})
	}

	return events
}
