package progress

import "math"

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL SCHEDULE
// ══════════════════════════════════════════════════════════════════════════════

// XPPerLevelUnit scales the quadratic threshold schedule.
const XPPerLevelUnit = 100

// maxThresholdLevel is the largest level whose threshold fits in an int64.
const maxThresholdLevel = 303700049

// ThresholdForLevel returns the cumulative XP that completes level L and
// starts level L+1: L² × 100. Levels below 1 have a threshold of 0.
func ThresholdForLevel(level int) int64 {
	if level <= 0 {
		return 0
	}
	if level > maxThresholdLevel {
		return math.MaxInt64
	}
	l := int64(level)
	return l * l * XPPerLevelUnit
}

// LevelForXP returns the smallest L ≥ 1 with ThresholdForLevel(L) > xp.
// Negative XP is treated as zero.
//
// The result equals a linear scan from L = 1; the square root only picks the
// starting point so that large XP values stay O(1).
func LevelForXP(xp int64) int {
	if xp < 0 {
		xp = 0
	}

	// l converges to the largest k ≥ 0 with ThresholdForLevel(k) <= xp.
	l := int(math.Sqrt(float64(xp) / XPPerLevelUnit))
	for l > 0 && ThresholdForLevel(l) > xp {
		l--
	}
	for l < maxThresholdLevel && ThresholdForLevel(l+1) <= xp {
		l++
	}
	return l + 1
}

// NextLevelXP returns the XP at which the holder of xp reaches the next level.
func NextLevelXP(xp int64) int64 {
	return ThresholdForLevel(LevelForXP(xp))
}

// XPToNextLevel returns how much XP is still missing for the next level.
func XPToNextLevel(xp int64) int64 {
	if xp < 0 {
		xp = 0
	}
	return NextLevelXP(xp) - xp
}

// LevelProgress returns the completion percentage of the current level band:
// (xp - thr(level-1)) / (thr(level) - thr(level-1)) × 100, clamped to [0, 100].
func LevelProgress(xp int64) float64 {
	if xp < 0 {
		xp = 0
	}
	level := LevelForXP(xp)
	lo := ThresholdForLevel(level - 1)
	hi := ThresholdForLevel(level)
	if hi <= lo {
		return 100
	}

	pct := float64(xp-lo) / float64(hi-lo) * 100
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}
