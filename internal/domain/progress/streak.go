package progress

import (
	"time"

	"github.com/notewise/notewise-backend/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK
// ══════════════════════════════════════════════════════════════════════════════

// NextStreak applies one qualifying action on day today to a streak whose last
// counted day is last (nil for a user with no history).
//
//	no history        -> 1
//	same day          -> unchanged
//	the following day -> streak + 1
//	anything else     -> 1 (gap of two or more days, or a backdated action)
func NextStreak(streak int, last *time.Time, today time.Time) int {
	if last == nil {
		return 1
	}
	if streak < 0 {
		streak = 0
	}

	switch timeutil.DaysBetween(*last, today) {
	case 0:
		return streak
	case 1:
		return streak + 1
	default:
		return 1
	}
}

// StreakStatus describes whether a streak is still alive on a given day.
type StreakStatus string

const (
	// StreakNone means the user has never been active.
	StreakNone StreakStatus = "none"
	// StreakSafe means the user was already active today.
	StreakSafe StreakStatus = "safe"
	// StreakAtRisk means the streak breaks unless the user is active today.
	StreakAtRisk StreakStatus = "at_risk"
	// StreakBroken means the next action will reset the streak to 1.
	StreakBroken StreakStatus = "broken"
)

// StatusAt reports the streak status of p as seen at now.
func (p UserProgress) StatusAt(now time.Time) StreakStatus {
	if p.LastActiveDate == nil || p.Streak == 0 {
		return StreakNone
	}

	switch timeutil.DaysBetween(*p.LastActiveDate, now) {
	case 0:
		return StreakSafe
	case 1:
		return StreakAtRisk
	default:
		return StreakBroken
	}
}

// DisplayStreak is the streak a user would see at now: a broken streak
// shows as 0 until the next action starts a new one.
func (p UserProgress) DisplayStreak(now time.Time) int {
	if p.StatusAt(now) == StreakBroken {
		return 0
	}
	return p.Streak
}
