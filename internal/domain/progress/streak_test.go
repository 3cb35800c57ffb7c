package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextStreak(t *testing.T) {
	today := day(2024, time.March, 10)
	ptr := func(d time.Time) *time.Time { return &d }

	tests := []struct {
		name   string
		streak int
		last   *time.Time
		want   int
	}{
		{"no history", 0, nil, 1},
		{"same day keeps streak", 4, ptr(today), 4},
		{"next day extends", 4, ptr(day(2024, time.March, 9)), 5},
		{"two day gap resets", 4, ptr(day(2024, time.March, 8)), 1},
		{"backdated action resets", 4, ptr(day(2024, time.March, 11)), 1},
		{"negative streak treated as zero", -3, ptr(day(2024, time.March, 9)), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextStreak(tt.streak, tt.last, today))
		})
	}
}

func TestNextStreak_AcrossMonthBoundary(t *testing.T) {
	last := day(2024, time.February, 29)
	assert.Equal(t, 3, NextStreak(2, &last, day(2024, time.March, 1)))
}
