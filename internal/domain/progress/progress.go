// Package progress is the gamification engine: it computes the next XP, level
// and streak state of a user from the previous state, the current time and an
// XP award. Everything here is pure; persistence and delivery live elsewhere
// and talk to this package through the ports in repository.go.
package progress

import (
	"fmt"
	"math"
	"time"

	"github.com/notewise/notewise-backend/internal/domain/shared"
	"github.com/notewise/notewise-backend/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// UserProgress is the persisted gamification record of one user.
type UserProgress struct {
	// UserID identifies the record owner.
	UserID shared.UserID `json:"user_id"`

	// XP is the total accumulated experience. Never negative.
	XP int64 `json:"xp"`

	// Level is derived from XP and always equals LevelForXP(XP) after an update.
	Level int `json:"level"`

	// Streak is the number of consecutive active days.
	Streak int `json:"streak"`

	// LastActiveDate is the UTC midnight of the last qualifying action, nil
	// when the user has never been active.
	LastActiveDate *time.Time `json:"last_active_date,omitempty"`

	// UpdatedAt is the time of the last write. Conditional writes key on it.
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns the initial record for a user without any activity.
func New(userID shared.UserID) UserProgress {
	return UserProgress{
		UserID: userID,
		XP:     0,
		Level:  1,
		Streak: 0,
	}
}

// Exists reports whether the record has ever been written.
func (p UserProgress) Exists() bool {
	return !p.UpdatedAt.IsZero()
}

// Validate checks the record invariants.
func (p UserProgress) Validate() error {
	switch {
	case p.XP < 0:
		return shared.NewDomainError("progress", "Validate", shared.ErrNegativeValue, "xp cannot be negative")
	case p.Streak < 0:
		return shared.NewDomainError("progress", "Validate", shared.ErrNegativeValue, "streak cannot be negative")
	case p.Level < 1:
		return shared.NewDomainError("progress", "Validate", shared.ErrValueOutOfRange, "level must be at least 1")
	case p.Level != LevelForXP(p.XP):
		return shared.NewDomainError("progress", "Validate", shared.ErrValidation,
			fmt.Sprintf("level %d does not match xp %d", p.Level, p.XP))
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// ComputeNextProgress returns the state after one qualifying action at now
// that grants xpAward experience. It never fails: negative awards add nothing
// and a now earlier than LastActiveDate resets the streak.
func ComputeNextProgress(previous UserProgress, now time.Time, xpAward int64) UserProgress {
	today := timeutil.DateOf(now)

	xp := addXP(previous.XP, xpAward)

	return UserProgress{
		UserID:         previous.UserID,
		XP:             xp,
		Level:          LevelForXP(xp),
		Streak:         NextStreak(previous.Streak, previous.LastActiveDate, today),
		LastActiveDate: &today,
		UpdatedAt:      now,
	}
}

// addXP adds a non-negative award, saturating at MaxInt64.
func addXP(xp, award int64) int64 {
	if xp < 0 {
		xp = 0
	}
	if award <= 0 {
		return xp
	}
	if xp > math.MaxInt64-award {
		return math.MaxInt64
	}
	return xp + award
}

// Transition is one engine step together with what changed in it.
type Transition struct {
	Previous  UserProgress
	Next      UserProgress
	XPAwarded int64

	// FirstActivity is set for the first action a user ever makes.
	FirstActivity bool
	// SameDay is set when the previous action was on the same calendar day.
	SameDay bool
	// StreakExtended is set when the streak grew by one day.
	StreakExtended bool
	// StreakReset is set when an existing streak restarted at 1.
	StreakReset bool
	// LevelsGained is the number of levels crossed, 0 if none.
	LevelsGained int
}

// LeveledUp reports whether the step crossed at least one level threshold.
func (t Transition) LeveledUp() bool {
	return t.LevelsGained > 0
}

// Apply runs ComputeNextProgress and classifies the result.
func Apply(previous UserProgress, now time.Time, xpAward int64) Transition {
	next := ComputeNextProgress(previous, now, xpAward)

	t := Transition{
		Previous:  previous,
		Next:      next,
		XPAwarded: next.XP - max(previous.XP, 0),
	}

	if previous.LastActiveDate == nil {
		t.FirstActivity = true
	} else {
		switch timeutil.DaysBetween(*previous.LastActiveDate, now) {
		case 0:
			t.SameDay = true
		case 1:
			t.StreakExtended = true
		default:
			t.StreakReset = true
		}
	}

	prevLevel := LevelForXP(previous.XP)
	if next.Level > prevLevel {
		t.LevelsGained = next.Level - prevLevel
	}

	return t
}
