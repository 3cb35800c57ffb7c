package progress

import (
	"math"
	"time"

	"github.com/notewise/notewise-backend/internal/domain/shared"
	"github.com/notewise/notewise-backend/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRIGGERS
// ══════════════════════════════════════════════════════════════════════════════

// Trigger names the kind of qualifying action that recomputes progress.
type Trigger string

const (
	// TriggerDailyLogin is the touch sent when a user opens the app.
	TriggerDailyLogin Trigger = "daily_login"
	// TriggerStudySession is a completed study session of some minutes.
	TriggerStudySession Trigger = "study_session"
	// TriggerTutoringSession is a finished tutoring conversation.
	TriggerTutoringSession Trigger = "tutoring_session"
	// TriggerManualGrant is an explicit XP grant by an operator.
	TriggerManualGrant Trigger = "manual_grant"
)

// IsValid checks if the trigger is known.
func (t Trigger) IsValid() bool {
	switch t {
	case TriggerDailyLogin, TriggerStudySession, TriggerTutoringSession, TriggerManualGrant:
		return true
	}
	return false
}

// IsSession reports whether the trigger represents a study or tutoring session.
func (t Trigger) IsSession() bool {
	return t == TriggerStudySession || t == TriggerTutoringSession
}

// Action is one qualifying action as reported by a caller.
type Action struct {
	Trigger Trigger `json:"trigger"`
	Minutes int     `json:"minutes,omitempty"`
	Amount  int64   `json:"amount,omitempty"`
}

// DailyLogin builds a login touch.
func DailyLogin() Action { return Action{Trigger: TriggerDailyLogin} }

// StudySession builds a study session action.
func StudySession(minutes int) Action { return Action{Trigger: TriggerStudySession, Minutes: minutes} }

// TutoringSession builds a tutoring session action.
func TutoringSession(minutes int) Action {
	return Action{Trigger: TriggerTutoringSession, Minutes: minutes}
}

// ManualGrant builds an explicit grant.
func ManualGrant(amount int64) Action { return Action{Trigger: TriggerManualGrant, Amount: amount} }

// Validate checks the action against the rules' limits.
func (a Action) Validate(rules Rules) error {
	if !a.Trigger.IsValid() {
		return shared.ErrUnknownTrigger
	}

	switch a.Trigger {
	case TriggerStudySession:
		if a.Minutes < 1 || a.Minutes > rules.MaxSessionMinutes {
			return shared.ErrInvalidMinutes
		}
	case TriggerTutoringSession:
		if a.Minutes < 0 || a.Minutes > rules.MaxSessionMinutes {
			return shared.ErrInvalidMinutes
		}
	case TriggerManualGrant:
		if a.Amount <= 0 {
			return shared.ErrMissingGrantValue
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RULES
// ══════════════════════════════════════════════════════════════════════════════

// Rules decides how much XP each trigger awards.
type Rules struct {
	// DailyLoginXP is granted on the first login touch of a calendar day.
	DailyLoginXP int64

	// XPPerMinute is the base rate for study sessions.
	XPPerMinute int64

	// StreakMultiplier adds this fraction of the base per streak day.
	StreakMultiplier float64

	// MaxSessionMinutes caps the minutes a single session may report.
	MaxSessionMinutes int

	// TutoringXPPerMinute is the rate for tutoring sessions.
	TutoringXPPerMinute int64
}

// DefaultRules returns the production defaults.
func DefaultRules() Rules {
	return Rules{
		DailyLoginXP:        0,
		XPPerMinute:         10,
		StreakMultiplier:    0.1,
		MaxSessionMinutes:   240,
		TutoringXPPerMinute: 10,
	}
}

// Validate checks the rules are usable.
func (r Rules) Validate() error {
	switch {
	case r.DailyLoginXP < 0, r.XPPerMinute < 0, r.TutoringXPPerMinute < 0:
		return shared.NewDomainError("progress", "ValidateRules", shared.ErrNegativeValue, "xp rates cannot be negative")
	case r.StreakMultiplier < 0:
		return shared.NewDomainError("progress", "ValidateRules", shared.ErrNegativeValue, "streak multiplier cannot be negative")
	case r.MaxSessionMinutes < 1:
		return shared.NewDomainError("progress", "ValidateRules", shared.ErrValueOutOfRange, "max session minutes must be positive")
	}
	return nil
}

// AwardFor returns the XP the action earns given the state before it.
func (r Rules) AwardFor(a Action, previous UserProgress, now time.Time) int64 {
	switch a.Trigger {
	case TriggerDailyLogin:
		if r.DailyLoginXP <= 0 {
			return 0
		}
		if previous.LastActiveDate != nil && timeutil.IsSameDay(*previous.LastActiveDate, now) {
			return 0
		}
		return r.DailyLoginXP

	case TriggerStudySession:
		bonus := 1 + float64(max(previous.Streak, 0))*r.StreakMultiplier
		return int64(math.Round(float64(a.Minutes) * float64(r.XPPerMinute) * bonus))

	case TriggerTutoringSession:
		return int64(a.Minutes) * r.TutoringXPPerMinute

	case TriggerManualGrant:
		return a.Amount
	}
	return 0
}
