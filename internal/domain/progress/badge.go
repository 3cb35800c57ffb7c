package progress

import "time"

// ══════════════════════════════════════════════════════════════════════════════
// BADGES
// ══════════════════════════════════════════════════════════════════════════════

// BadgeCode identifies a badge.
type BadgeCode string

const (
	BadgeFirstSession BadgeCode = "first_session"
	BadgeStreak3      BadgeCode = "streak_3"
	BadgeStreak7      BadgeCode = "streak_7"
	BadgeStreak30     BadgeCode = "streak_30"
	BadgeLevel5       BadgeCode = "level_5"
	BadgeLevel10      BadgeCode = "level_10"
	BadgeXP1000       BadgeCode = "xp_1000"
)

// Badge is a badge owned by a user.
type Badge struct {
	Code      BadgeCode `json:"code"`
	AwardedAt time.Time `json:"awarded_at"`
}

// BadgeDefinition describes a badge.
type BadgeDefinition struct {
	Code        BadgeCode `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Emoji       string    `json:"emoji"`
}

var badgeDefinitions = []BadgeDefinition{
	{BadgeFirstSession, "First Session", "Completed a first study or tutoring session", "🎯"},
	{BadgeStreak3, "Warming Up", "3 days in a row", "✨"},
	{BadgeStreak7, "7-Day Streak", "7 days in a row", "🔥"},
	{BadgeStreak30, "Iron Will", "30 days in a row", "💪"},
	{BadgeLevel5, "Scholar", "Reached level 5", "📚"},
	{BadgeLevel10, "Master", "Reached level 10", "🧙"},
	{BadgeXP1000, "Thousand Club", "Earned 1000 XP", "🏅"},
}

// Badges returns all badge definitions in display order.
func Badges() []BadgeDefinition {
	out := make([]BadgeDefinition, len(badgeDefinitions))
	copy(out, badgeDefinitions)
	return out
}

// LookupBadge returns the definition for code.
func LookupBadge(code BadgeCode) (BadgeDefinition, bool) {
	for _, def := range badgeDefinitions {
		if def.Code == code {
			return def, true
		}
	}
	return BadgeDefinition{}, false
}

// BadgeChecker decides which badges a transition unlocks.
type BadgeChecker struct {
	disabled map[BadgeCode]bool
}

// NewBadgeChecker creates a checker; the listed badges are never awarded.
func NewBadgeChecker(disabled ...BadgeCode) *BadgeChecker {
	d := make(map[BadgeCode]bool, len(disabled))
	for _, c := range disabled {
		d[c] = true
	}
	return &BadgeChecker{disabled: d}
}

// Check returns the badges earned by t that the user does not own yet, in
// display order. Badges are never revoked, so only Next is inspected.
func (c *BadgeChecker) Check(t Transition, action Action, owned []Badge) []BadgeCode {
	have := make(map[BadgeCode]bool, len(owned))
	for _, b := range owned {
		have[b.Code] = true
	}

	next := t.Next
	earned := map[BadgeCode]bool{
		BadgeFirstSession: action.Trigger.IsSession(),
		BadgeStreak3:      next.Streak >= 3,
		BadgeStreak7:      next.Streak >= 7,
		BadgeStreak30:     next.Streak >= 30,
		BadgeLevel5:       next.Level >= 5,
		BadgeLevel10:      next.Level >= 10,
		BadgeXP1000:       next.XP >= 1000,
	}

	var out []BadgeCode
	for _, def := range badgeDefinitions {
		if earned[def.Code] && !have[def.Code] && !c.disabled[def.Code] {
			out = append(out, def.Code)
		}
	}
	return out
}
