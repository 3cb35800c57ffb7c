package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notewise/notewise-backend/internal/domain/progress"
	"github.com/notewise/notewise-backend/internal/domain/shared"
	"github.com/notewise/notewise-backend/internal/infrastructure/persistence/memory"
	"github.com/notewise/notewise-backend/internal/infrastructure/persistence/projections"
	"github.com/notewise/notewise-backend/pkg/logger"
)

func seedStore(t *testing.T, store *memory.ProgressStore, id string, xp int64) {
	t.Helper()
	p := progress.New(shared.UserID(id))
	p.XP = xp
	p.Level = progress.LevelForXP(xp)
	p.UpdatedAt = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Set(context.Background(), p))
}

func TestRebuildLeaderboardJob_ReplacesIndex(t *testing.T) {
	ctx := context.Background()
	store := memory.NewProgressStore()
	seedStore(t, store, "alice", 900)
	seedStore(t, store, "bob", 300)
	seedStore(t, store, "carol", 300)

	view := projections.NewLeaderboardView()
	require.NoError(t, view.Upsert(ctx, "stale", 5000))

	job := NewRebuildLeaderboardJob(store, view, logger.Nop(), RebuildLeaderboardConfig{Size: 10})
	require.NoError(t, job.Run(ctx))

	top, err := view.Top(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, shared.UserID("alice"), top[0].UserID)
	assert.Equal(t, 4, top[0].Level)
	assert.Equal(t, shared.Rank(2), top[1].Rank)
	assert.Equal(t, shared.Rank(2), top[2].Rank)

	rank, err := view.Rank(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, shared.Unranked, rank)

	stats, ok := job.LastStats()
	require.True(t, ok)
	assert.Equal(t, 3, stats.Entries)
	assert.Equal(t, int64(900), stats.TopXP)
}

type failingRepo struct{ progress.Repository }

func (failingRepo) Top(ctx context.Context, limit int) ([]progress.UserProgress, error) {
	return nil, errors.New("db down")
}

func TestRebuildLeaderboardJob_StoreFailure(t *testing.T) {
	job := NewRebuildLeaderboardJob(failingRepo{}, projections.NewLeaderboardView(), logger.Nop(), RebuildLeaderboardConfig{})
	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")

	_, ok := job.LastStats()
	assert.False(t, ok)
}

type reaperFunc func(ctx context.Context, d time.Duration) int

func (f reaperFunc) ReapIdle(ctx context.Context, d time.Duration) int { return f(ctx, d) }

func TestReapTutoringJob_PassesMaxIdle(t *testing.T) {
	var got time.Duration
	job := NewReapTutoringJob(reaperFunc(func(ctx context.Context, d time.Duration) int {
		got = d
		return 2
	}), 0)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 15*time.Minute, got)
	assert.Equal(t, "reap_tutoring_sessions", job.Name())
}
