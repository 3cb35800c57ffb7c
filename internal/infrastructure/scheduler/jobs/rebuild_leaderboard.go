// Package jobs contains the scheduled jobs of the service.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/notewise/notewise-backend/internal/domain/progress"
	"github.com/notewise/notewise-backend/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD LEADERBOARD JOB
// ══════════════════════════════════════════════════════════════════════════════

// RebuildLeaderboardJob replaces the leaderboard index with the top records
// of the store. It heals entries missed by dropped events.
type RebuildLeaderboardJob struct {
	repo        progress.Repository
	leaderboard progress.Leaderboard
	logger      *logger.Logger
	config      RebuildLeaderboardConfig

	lastStats atomic.Value // RebuildStats
}

// RebuildLeaderboardConfig contains configuration for the rebuild job.
type RebuildLeaderboardConfig struct {
	// Size is the number of records loaded into the index.
	Size int
}

// DefaultRebuildLeaderboardConfig returns sensible defaults.
func DefaultRebuildLeaderboardConfig() RebuildLeaderboardConfig {
	return RebuildLeaderboardConfig{Size: 1000}
}

// RebuildStats contains statistics from a rebuild run.
type RebuildStats struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Entries   int           `json:"entries"`
	TopXP     int64         `json:"top_xp"`
}

// NewRebuildLeaderboardJob creates a new rebuild job.
func NewRebuildLeaderboardJob(repo progress.Repository, leaderboard progress.Leaderboard, log *logger.Logger, config RebuildLeaderboardConfig) *RebuildLeaderboardJob {
	if log == nil {
		log = logger.Default()
	}
	if config.Size <= 0 {
		config.Size = DefaultRebuildLeaderboardConfig().Size
	}
	return &RebuildLeaderboardJob{
		repo:        repo,
		leaderboard: leaderboard,
		logger:      log.With(logger.Component("rebuild_leaderboard")),
		config:      config,
	}
}

// Name implements scheduler.Job.
func (j *RebuildLeaderboardJob) Name() string { return "rebuild_leaderboard" }

// Description implements scheduler.Job.
func (j *RebuildLeaderboardJob) Description() string {
	return "Reloads the XP leaderboard index from the progress store"
}

// Run implements scheduler.Job.
func (j *RebuildLeaderboardJob) Run(ctx context.Context) error {
	started := time.Now()

	records, err := j.repo.Top(ctx, j.config.Size)
	if err != nil {
		return fmt.Errorf("load top records: %w", err)
	}

	entries := progress.RankEntries(records)
	if err := j.leaderboard.Replace(ctx, entries); err != nil {
		return fmt.Errorf("replace leaderboard: %w", err)
	}

	stats := RebuildStats{
		StartedAt: started,
		Duration:  time.Since(started),
		Entries:   len(entries),
	}
	if len(entries) > 0 {
		stats.TopXP = entries[0].XP
	}
	j.lastStats.Store(stats)

	j.logger.Info("leaderboard rebuilt",
		logger.Int("entries", stats.Entries),
		logger.Int64("top_xp", stats.TopXP),
		logger.Latency(stats.Duration),
	)
	return nil
}

// LastStats returns the statistics of the last successful run.
func (j *RebuildLeaderboardJob) LastStats() (RebuildStats, bool) {
	stats, ok := j.lastStats.Load().(RebuildStats)
	return stats, ok
}
