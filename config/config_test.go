package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notewise/notewise-backend/internal/domain/progress"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	assert.Empty(t, cfg.Database.URL)
	assert.False(t, cfg.Redis.Configured())
	assert.False(t, cfg.Tutor.Enabled())
	assert.Equal(t, progress.DefaultRules(), cfg.Progress.Rules)
	assert.Equal(t, "*/10 * * * *", cfg.Scheduler.RebuildLeaderboardCron)
	assert.Equal(t, 15*time.Minute, cfg.Tutor.IdleTimeout)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("HTTP_ALLOWED_ORIGINS", "https://app.notewise.io, https://admin.notewise.io")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "nw")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("TUTOR_API_KEY", "sk-test")
	t.Setenv("TUTOR_IDLE_TIMEOUT", "5m")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, []string{"https://app.notewise.io", "https://admin.notewise.io"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, "postgres://nw:pw@db:5432/notewise?sslmode=prefer", cfg.Database.URL)
	assert.True(t, cfg.Redis.Configured())
	assert.True(t, cfg.Tutor.Enabled())
	assert.Equal(t, 5*time.Minute, cfg.Tutor.IdleTimeout)
}

func TestValidate_AggregatesErrors(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("HTTP_PORT", "70000")
	t.Setenv("API_KEY_HASHES", "plaintext-key")

	_, err := LoadFromEnv()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "DATABASE_URL is required in production")
	assert.Contains(t, msg, "HTTP_PORT must be 1-65535")
	assert.Contains(t, msg, "API_KEY_HASHES must contain bcrypt hashes")
}

func TestParseProgressConfig(t *testing.T) {
	cfg, err := ParseProgressConfig([]byte(`
xp:
  daily_login: 5
  streak_multiplier: 0.25
badges:
  streak_30: false
  level_5: true
  xp_1000: false
`))
	require.NoError(t, err)

	assert.Equal(t, int64(5), cfg.Rules.DailyLoginXP)
	assert.Equal(t, 0.25, cfg.Rules.StreakMultiplier)
	assert.Equal(t, int64(10), cfg.Rules.XPPerMinute)
	assert.Equal(t, []progress.BadgeCode{progress.BadgeStreak30, progress.BadgeXP1000}, cfg.DisabledBadges)
}

func TestParseProgressConfig_Rejects(t *testing.T) {
	_, err := ParseProgressConfig([]byte("badges:\n  gold_star: false\n"))
	assert.ErrorContains(t, err, "unknown badge")

	_, err = ParseProgressConfig([]byte("xp:\n  per_minute: -1\n"))
	assert.Error(t, err)

	_, err = ParseProgressConfig([]byte("xp: [1, 2"))
	assert.ErrorContains(t, err, "parse rules")
}

func TestLoadProgressConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("xp:\n  max_session_minutes: 90\n"), 0o600))

	cfg, err := LoadProgressConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 90, cfg.Rules.MaxSessionMinutes)

	_, err = LoadProgressConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFeatureFlags(t *testing.T) {
	t.Setenv("FEATURE_GAMIFICATION_BADGES", "false")
	t.Setenv("FEATURE_TUTORING_SESSIONS", "0")
	t.Setenv("FEATURE_LEADERBOARD_INDEX", "not-a-value")

	ff := LoadFeatureFlags()
	assert.False(t, ff.IsEnabled(FeatureBadges, ""))
	assert.False(t, ff.IsEnabled(FeatureTutoring, "u1"))
	assert.True(t, ff.IsEnabled(FeatureLeaderboardIndex, ""))
	assert.False(t, ff.IsEnabled("nope", ""))

	require.NoError(t, ff.SetRolloutPercent(FeatureTutoring, 50))
	first := ff.IsEnabled(FeatureTutoring, "user-42")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, ff.IsEnabled(FeatureTutoring, "user-42"))
	}
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureTutoring, 101), ErrInvalidRolloutPercent)
	assert.ErrorIs(t, ff.SetRolloutPercent("nope", 10), ErrFeatureNotFound)

	cfg := &Config{Features: ff}
	assert.Len(t, cfg.EffectiveDisabledBadges(), len(progress.Badges()))
}
