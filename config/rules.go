package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/notewise/notewise-backend/internal/domain/progress"
)

// ProgressConfig is the effective XP rules and badge toggles.
type ProgressConfig struct {
	Rules          progress.Rules
	DisabledBadges []progress.BadgeCode
}

// rulesFile mirrors the YAML rules file:
//
//	xp:
//	  daily_login: 0
//	  per_minute: 10
//	  streak_multiplier: 0.1
//	  tutoring_per_minute: 10
//	  max_session_minutes: 240
//	badges:
//	  streak_30: false
//
// Omitted keys keep their defaults.
type rulesFile struct {
	XP struct {
		DailyLogin        *int64   `yaml:"daily_login"`
		PerMinute         *int64   `yaml:"per_minute"`
		StreakMultiplier  *float64 `yaml:"streak_multiplier"`
		TutoringPerMinute *int64   `yaml:"tutoring_per_minute"`
		MaxSessionMinutes *int     `yaml:"max_session_minutes"`
	} `yaml:"xp"`
	Badges map[string]bool `yaml:"badges"`
}

// LoadProgressConfig returns the default rules overridden by the file at
// path. An empty path yields the defaults.
func LoadProgressConfig(path string) (ProgressConfig, error) {
	cfg := ProgressConfig{Rules: progress.DefaultRules()}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	return ParseProgressConfig(data)
}

// ParseProgressConfig applies a YAML document over the defaults.
func ParseProgressConfig(data []byte) (ProgressConfig, error) {
	cfg := ProgressConfig{Rules: progress.DefaultRules()}

	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return cfg, fmt.Errorf("parse rules: %w", err)
	}

	if f.XP.DailyLogin != nil {
		cfg.Rules.DailyLoginXP = *f.XP.DailyLogin
	}
	if f.XP.PerMinute != nil {
		cfg.Rules.XPPerMinute = *f.XP.PerMinute
	}
	if f.XP.StreakMultiplier != nil {
		cfg.Rules.StreakMultiplier = *f.XP.StreakMultiplier
	}
	if f.XP.TutoringPerMinute != nil {
		cfg.Rules.TutoringXPPerMinute = *f.XP.TutoringPerMinute
	}
	if f.XP.MaxSessionMinutes != nil {
		cfg.Rules.MaxSessionMinutes = *f.XP.MaxSessionMinutes
	}

	for code, enabled := range f.Badges {
		if _, ok := progress.LookupBadge(progress.BadgeCode(code)); !ok {
			return cfg, fmt.Errorf("unknown badge %q", code)
		}
		if !enabled {
			cfg.DisabledBadges = append(cfg.DisabledBadges, progress.BadgeCode(code))
		}
	}
	sort.Slice(cfg.DisabledBadges, func(i, j int) bool { return cfg.DisabledBadges[i] < cfg.DisabledBadges[j] })

	return cfg, cfg.Rules.Validate()
}

// EffectiveDisabledBadges folds the badges feature flag into the toggles:
// with the flag off every badge is disabled.
func (c *Config) EffectiveDisabledBadges() []progress.BadgeCode {
	if c.Features != nil && !c.Features.IsEnabled(FeatureBadges, "") {
		all := progress.Badges()
		out := make([]progress.BadgeCode, 0, len(all))
		for _, b := range all {
			out = append(out, b.Code)
		}
		return out
	}
	return c.Progress.DisabledBadges
}
