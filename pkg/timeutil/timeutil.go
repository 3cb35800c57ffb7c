// Package timeutil provides calendar-day helpers in the canonical timezone
// used for streak accounting (UTC) and a Clock abstraction so callers can be
// driven by a fixed time in tests.
package timeutil

import (
	"sync"
	"time"
)

// Zone is the canonical timezone for date-only comparisons.
var Zone = time.UTC

// ══════════════════════════════════════════════════════════════════════════════
// CLOCK
// ══════════════════════════════════════════════════════════════════════════════

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is a Clock backed by time.Now.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock is a Clock that returns a settable instant. Safe for concurrent use.
type FixedClock struct {
	mu sync.RWMutex
	t  time.Time
}

// NewFixedClock creates a FixedClock set to t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

// Now implements Clock.
func (c *FixedClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.t
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// ══════════════════════════════════════════════════════════════════════════════
// CALENDAR DAYS
// ══════════════════════════════════════════════════════════════════════════════

// Date creates midnight of the given day in the canonical zone.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, Zone)
}

// DateOf truncates t to midnight of its calendar day in the canonical zone.
func DateOf(t time.Time) time.Time {
	c := t.In(Zone)
	return time.Date(c.Year(), c.Month(), c.Day(), 0, 0, 0, 0, Zone)
}

// DatePtr returns a pointer to DateOf(t).
func DatePtr(t time.Time) *time.Time {
	d := DateOf(t)
	return &d
}

// IsSameDay checks if two times fall on the same canonical calendar day.
func IsSameDay(t1, t2 time.Time) bool {
	return DateOf(t1).Equal(DateOf(t2))
}

// IsConsecutiveDay checks if t2 is the calendar day right after t1.
func IsConsecutiveDay(t1, t2 time.Time) bool {
	return DaysBetween(t1, t2) == 1
}

// DaysBetween returns the signed number of calendar days from t1 to t2.
// It is negative when t2 falls on an earlier day than t1.
func DaysBetween(t1, t2 time.Time) int {
	d := DateOf(t2).Sub(DateOf(t1))
	return int(d / (24 * time.Hour))
}

// StartOfWeek returns Monday 00:00 of the week containing t.
func StartOfWeek(t time.Time) time.Time {
	day := DateOf(t)
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return day.AddDate(0, 0, -(weekday - 1))
}

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
)

// FormatDateStr formats a time as a canonical date string (YYYY-MM-DD).
func FormatDateStr(t time.Time) string {
	return DateOf(t).Format(FormatDate)
}

// ParseDate parses a YYYY-MM-DD string as a canonical date.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDate, value, Zone)
}
