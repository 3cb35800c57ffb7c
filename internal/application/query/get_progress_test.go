package query

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
	"github.com/notewise/notewise-backend/pkg/timeutil"
)

// mapCache is a versioned progress.Cache counting its hits.
type mapCache struct {
	records  map[shared.UserID]progress.UserProgress
	versions map[shared.UserID]time.Time
	hits     int
	fail     bool
}

func newMapCache() *mapCache {
	return &mapCache{
		records:  make(map[shared.UserID]progress.UserProgress),
		versions: make(map[shared.UserID]time.Time),
	}
}

func (c *mapCache) Get(_ context.Context, id shared.UserID) (progress.UserProgress, bool, error) {
	if c.fail {
		return progress.UserProgress{}, false, errors.New("cache down")
	}
	p, ok := c.records[id]
	if ok {
		c.hits++
	}
	return p, ok, nil
}

func (c *mapCache) Set(_ context.Context, p progress.UserProgress) error {
	if c.fail {
		return errors.New("cache down")
	}
	if p.UpdatedAt.Before(c.versions[p.UserID]) {
		return nil
	}
	c.versions[p.UserID] = p.UpdatedAt
	c.records[p.UserID] = p
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, id shared.UserID, version time.Time) error {
	if version.Before(c.versions[id]) {
		return nil
	}
	c.versions[id] = version
	delete(c.records, id)
	return nil
}

var queryNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, store *memory.ProgressStore, id shared.UserID, xp int64, streak int, last time.Time) progress.UserProgress {
	t.Helper()
	p := progress.UserProgress{
		UserID:         id,
		XP:             xp,
		Level:          progress.LevelForXP(xp),
		Streak:         streak,
		LastActiveDate: timeutil.DatePtr(last),
		UpdatedAt:      last,
	}
	require.NoError(t, store.Set(context.Background(), p))
	return p
}

func TestGetProgress_UnknownUserIsLevelOne(t *testing.T) {
	h := NewGetProgressHandler(memory.NewProgressStore(), nil, nil, nil,
		timeutil.NewFixedClock(queryNow), logger.Nop())

	v, err := h.Handle(context.Background(), GetProgressQuery{UserID: "ghost"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), v.XP)
	assert.Equal(t, 1, v.Level)
	assert.Equal(t, int64(100), v.NextLevelXP)
	assert.Equal(t, int64(100), v.XPToNextLevel)
	assert.Equal(t, 0, v.Streak)
	assert.Nil(t, v.LastActiveDate)
	assert.True(t, v.Rank.IsUnranked())
	assert.Empty(t, v.Badges)
}

func TestGetProgress_FullView(t *testing.T) {
	ctx := context.Background()
	store := memory.NewProgressStore()
	badges := memory.NewBadgeStore()
	board := projections.NewLeaderboardView()

	seed(t, store, "u", 250, 3, queryNow.AddDate(0, 0, -1))
	seed(t, store, "top", 5000, 1, queryNow)
	require.NoError(t, board.Upsert(ctx, "u", 250))
	require.NoError(t, board.Upsert(ctx, "top", 5000))
	require.NoError(t, badges.Award(ctx, "u", []progress.BadgeCode{progress.BadgeFirstSession}, queryNow))

	h := NewGetProgressHandler(store, badges, nil, board, timeutil.NewFixedClock(queryNow), logger.Nop())
	v, err := h.Handle(ctx, GetProgressQuery{UserID: "u"})
	require.NoError(t, err)

	assert.Equal(t, 2, v.Level)
	assert.InDelta(t, 50.0, v.LevelProgress, 1e-9)
	assert.Equal(t, int64(150), v.XPToNextLevel)
	assert.Equal(t, 3, v.Streak)
	require.NotNil(t, v.LastActiveDate)
	assert.Equal(t, "2024-03-09", *v.LastActiveDate)
	assert.Equal(t, shared.Rank(2), v.Rank)
	require.Len(t, v.Badges, 1)
	assert.Equal(t, progress.BadgeFirstSession, v.Badges[0].Code)
}

func TestGetProgress_StreakLapsesOnRead(t *testing.T) {
	store := memory.NewProgressStore()
	seed(t, store, "u", 100, 7, queryNow.AddDate(0, 0, -3))

	h := NewGetProgressHandler(store, nil, nil, nil, timeutil.NewFixedClock(queryNow), logger.Nop())
	v, err := h.Handle(context.Background(), GetProgressQuery{UserID: "u"})
	require.NoError(t, err)
	assert.Equal(t, 0, v.Streak)
}

func TestGetProgress_ReadsThroughCache(t *testing.T) {
	ctx := context.Background()
	store := memory.NewProgressStore()
	cache := newMapCache()
	seed(t, store, "u", 120, 1, queryNow)

	h := NewGetProgressHandler(store, nil, cache, nil, timeutil.NewFixedClock(queryNow), logger.Nop())

	_, err := h.Handle(ctx, GetProgressQuery{UserID: "u"})
	require.NoError(t, err)
	assert.Equal(t, 0, cache.hits)
	assert.Contains(t, cache.records, shared.UserID("u"))

	v, err := h.Handle(ctx, GetProgressQuery{UserID: "u"})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, int64(120), v.XP)

	cache.fail = true
	v, err = h.Handle(ctx, GetProgressQuery{UserID: "u"})
	require.NoError(t, err)
	assert.Equal(t, int64(120), v.XP)
}

func TestGetProgress_InvalidUser(t *testing.T) {
	h := NewGetProgressHandler(memory.NewProgressStore(), nil, nil, nil, nil, logger.Nop())
	_, err := h.Handle(context.Background(), GetProgressQuery{UserID: ""})
	assert.True(t, shared.IsValidation(err))
}
