package projections

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notewise/notewise-backend/internal/domain/progress"
	"github.com/notewise/notewise-backend/internal/domain/shared"
)

func TestLeaderboardView_SharedRanks(t *testing.T) {
	ctx := context.Background()
	lv := NewLeaderboardView()

	require.NoError(t, lv.Upsert(ctx, "carol", 400))
	require.NoError(t, lv.Upsert(ctx, "alice", 900))
	require.NoError(t, lv.Upsert(ctx, "bob", 400))
	require.NoError(t, lv.Upsert(ctx, "dave", 50))

	top, err := lv.Top(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 4)

	assert.Equal(t, shared.UserID("alice"), top[0].UserID)
	assert.Equal(t, shared.Rank(1), top[0].Rank)
	assert.Equal(t, 4, top[0].Level)
	assert.Equal(t, shared.UserID("bob"), top[1].UserID)
	assert.Equal(t, shared.Rank(2), top[1].Rank)
	assert.Equal(t, shared.UserID("carol"), top[2].UserID)
	assert.Equal(t, shared.Rank(2), top[2].Rank)
	assert.Equal(t, shared.Rank(4), top[3].Rank)

	rank, err := lv.Rank(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, shared.Rank(2), rank)

	rank, err = lv.Rank(ctx, "nobody")
	require.NoError(t, err)
	assert.True(t, rank.IsUnranked())
}

func TestLeaderboardView_TopLimitAndUpdates(t *testing.T) {
	ctx := context.Background()
	lv := NewLeaderboardView()

	require.NoError(t, lv.Upsert(ctx, "a", 100))
	require.NoError(t, lv.Upsert(ctx, "b", 200))
	v := lv.GetVersion()

	require.NoError(t, lv.Upsert(ctx, "b", 200))
	assert.Equal(t, v, lv.GetVersion())

	require.NoError(t, lv.Upsert(ctx, "a", 300))
	assert.Greater(t, lv.GetVersion(), v)

	top, err := lv.Top(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, shared.UserID("a"), top[0].UserID)
}

func TestLeaderboardView_Replace(t *testing.T) {
	ctx := context.Background()
	lv := NewLeaderboardView()
	require.NoError(t, lv.Upsert(ctx, "stale", 999))

	require.NoError(t, lv.Replace(ctx, []progress.LeaderboardEntry{
		{UserID: "x", XP: 10},
		{UserID: "y", XP: 20},
	}))

	rank, err := lv.Rank(ctx, "stale")
	require.NoError(t, err)
	assert.True(t, rank.IsUnranked())

	meta := lv.GetMetadata(ctx)
	assert.Equal(t, 2, meta.TotalUsers)
	assert.Equal(t, int64(30), meta.TotalXP)
	assert.Equal(t, int64(15), meta.AverageXP)
	assert.Equal(t, int64(20), meta.TopXP)
}

func TestLeaderboardView_Neighbors(t *testing.T) {
	ctx := context.Background()
	lv := NewLeaderboardView()
	for i, id := range []shared.UserID{"a", "b", "c", "d", "e"} {
		require.NoError(t, lv.Upsert(ctx, id, int64(1000-i*100)))
	}

	around, err := lv.GetNeighbors(ctx, "c", 1)
	require.NoError(t, err)
	require.Len(t, around, 3)
	assert.Equal(t, shared.UserID("b"), around[0].UserID)
	assert.Equal(t, shared.UserID("d"), around[2].UserID)

	edge, err := lv.GetNeighbors(ctx, "a", 2)
	require.NoError(t, err)
	assert.Len(t, edge, 3)

	_, err = lv.GetNeighbors(ctx, "zzz", 1)
	assert.True(t, shared.IsNotFound(err))
}
