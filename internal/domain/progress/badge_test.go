package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/notewise/notewise-backend/internal/domain/shared"
)

func TestBadgeChecker_FirstSession(t *testing.T) {
	c := NewBadgeChecker()
	tr := Apply(New("u"), at(2024, 1, 1, 9), 100)

	assert.Equal(t, []BadgeCode{BadgeFirstSession}, c.Check(tr, StudySession(10), nil))
	assert.Empty(t, c.Check(tr, DailyLogin(), nil))
	assert.Empty(t, c.Check(tr, TutoringSession(3), []Badge{{Code: BadgeFirstSession}}))
}

func TestBadgeChecker_StreakLevelXPInDisplayOrder(t *testing.T) {
	c := NewBadgeChecker()
	prev := UserProgress{XP: 9950, Level: 10, Streak: 29, LastActiveDate: datePtr(2024, 3, 1)}
	tr := Apply(prev, at(2024, 3, 2, 9), 100)

	got := c.Check(tr, ManualGrant(100), []Badge{{Code: BadgeStreak3}})
	assert.Equal(t, []BadgeCode{BadgeStreak7, BadgeStreak30, BadgeLevel5, BadgeLevel10, BadgeXP1000}, got)
}

func TestBadgeChecker_Disabled(t *testing.T) {
	c := NewBadgeChecker(BadgeStreak3)
	prev := UserProgress{Streak: 2, LastActiveDate: datePtr(2024, 3, 1)}
	tr := Apply(prev, at(2024, 3, 2, 9), 0)

	assert.Empty(t, c.Check(tr, DailyLogin(), nil))
}

func TestLookupBadge(t *testing.T) {
	def, ok := LookupBadge(BadgeStreak7)
	assert.True(t, ok)
	assert.Equal(t, "7-Day Streak", def.Name)

	_, ok = LookupBadge("nope")
	assert.False(t, ok)
	assert.Len(t, Badges(), 7)
}

func TestEventsFor(t *testing.T) {
	prev := UserProgress{UserID: "u", XP: 90, Level: 1, Streak: 4, LastActiveDate: datePtr(2024, 1, 1)}
	tr := Apply(prev, at(2024, 1, 5, 9), 20)

	events := EventsFor(tr, TriggerManualGrant, []BadgeCode{BadgeXP1000})
	types := make([]shared.EventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.EventType())
		assert.Equal(t, "u", e.AggregateID())
		assert.Equal(t, tr.Next.UpdatedAt, e.OccurredAt())
	}

	assert.Equal(t, []shared.EventType{
		shared.EventProgressUpdated,
		shared.EventLevelUp,
		shared.EventStreakReset,
		shared.EventBadgeEarned,
	}, types)

	reset := events[2].(StreakResetEvent)
	assert.Equal(t, 4, reset.PreviousStreak)
	assert.Equal(t, "2024-01-01", reset.Payload()["last_active_date"])
}

func TestRankEntries_SharesRankOnTies(t *testing.T) {
	records := []UserProgress{
		{UserID: "a", XP: 500},
		{UserID: "b", XP: 300},
		{UserID: "c", XP: 300},
		{UserID: "d", XP: 10},
	}
	got := RankEntries(records)

	ranks := []shared.Rank{got[0].Rank, got[1].Rank, got[2].Rank, got[3].Rank}
	assert.Equal(t, []shared.Rank{1, 2, 2, 4}, ranks)
	assert.Equal(t, 3, got[0].Level)
}
