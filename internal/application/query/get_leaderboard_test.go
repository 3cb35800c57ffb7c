package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notewise/notewise-backend/internal/domain/progress"
	"github.com/notewise/notewise-backend/internal/domain/shared"
	"github.com/notewise/notewise-backend/internal/infrastructure/persistence/memory"
	"github.com/notewise/notewise-backend/internal/infrastructure/persistence/projections"
	"github.com/notewise/notewise-backend/pkg/logger"
)

type brokenLeaderboard struct{ progress.Leaderboard }

func (brokenLeaderboard) Top(context.Context, int) ([]progress.LeaderboardEntry, error) {
	return nil, errors.New("redis: connection refused")
}

func TestGetLeaderboardQuery_Validate(t *testing.T) {
	q := GetLeaderboardQuery{}
	require.NoError(t, q.Validate())
	assert.Equal(t, DefaultLeaderboardLimit, q.Limit)

	q = GetLeaderboardQuery{Limit: 5000}
	require.NoError(t, q.Validate())
	assert.Equal(t, MaxLeaderboardLimit, q.Limit)

	q = GetLeaderboardQuery{Limit: -1}
	assert.True(t, shared.IsValidation(q.Validate()))
}

func TestGetLeaderboard_Sources(t *testing.T) {
	ctx := context.Background()
	store := memory.NewProgressStore()
	seed(t, store, "a", 300, 1, queryNow)
	seed(t, store, "b", 300, 1, queryNow)
	seed(t, store, "c", 10, 1, queryNow)

	board := projections.NewLeaderboardView()

	h := NewGetLeaderboardHandler(store, board, logger.Nop())
	v, err := h.Handle(ctx, GetLeaderboardQuery{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, SourceStore, v.Source)
	require.Len(t, v.Entries, 3)
	assert.Equal(t, shared.Rank(1), v.Entries[1].Rank)
	assert.Equal(t, shared.Rank(3), v.Entries[2].Rank)

	require.NoError(t, board.Upsert(ctx, "a", 300))
	v, err = h.Handle(ctx, GetLeaderboardQuery{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, SourceIndex, v.Source)
	assert.Len(t, v.Entries, 1)

	h = NewGetLeaderboardHandler(store, brokenLeaderboard{}, logger.Nop())
	v, err = h.Handle(ctx, GetLeaderboardQuery{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, SourceStore, v.Source)
	assert.Len(t, v.Entries, 2)
}
