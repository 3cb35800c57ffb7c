package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateOf_DropsTimeOfDay(t *testing.T) {
	in := time.Date(2024, 3, 10, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, Date(2024, 3, 10), DateOf(in))
}

func TestDateOf_NormalizesToUTC(t *testing.T) {
	// 01:30 in UTC+5 is still the previous day in UTC.
	almaty := time.FixedZone("UTC+5", 5*60*60)
	in := time.Date(2024, 3, 11, 1, 30, 0, 0, almaty)
	assert.Equal(t, Date(2024, 3, 10), DateOf(in))
}

func TestDaysBetween(t *testing.T) {
	base := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, DaysBetween(base, base.Add(3*time.Hour)))
	assert.Equal(t, 1, DaysBetween(base, base.Add(7*time.Hour)))
	assert.Equal(t, 4, DaysBetween(base, Date(2024, 1, 5)))
	assert.Equal(t, -1, DaysBetween(base, Date(2023, 12, 31)))
	// Leap day is counted.
	assert.Equal(t, 2, DaysBetween(Date(2024, 2, 28), Date(2024, 3, 1)))
}

func TestIsSameAndConsecutiveDay(t *testing.T) {
	a := time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC)
	b := time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)
	c := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	assert.True(t, IsSameDay(a, b))
	assert.False(t, IsSameDay(b, c))
	assert.True(t, IsConsecutiveDay(b, c))
	assert.False(t, IsConsecutiveDay(c, b))
}

func TestStartOfWeek(t *testing.T) {
	// 2024-01-07 is a Sunday.
	assert.Equal(t, Date(2024, 1, 1), StartOfWeek(Date(2024, 1, 7)))
	assert.Equal(t, Date(2024, 1, 1), StartOfWeek(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-01")
	require.NoError(t, err)
	assert.Equal(t, Date(2024, 2, 1), d)
	assert.Equal(t, "2024-02-01", FormatDateStr(d))

	_, err = ParseDate("02/01/2024")
	assert.Error(t, err)
}

func TestFixedClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	c := NewFixedClock(start)
	assert.Equal(t, start, c.Now())

	c.Advance(25 * time.Hour)
	assert.Equal(t, start.Add(25*time.Hour), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())
}
