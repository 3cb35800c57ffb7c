package query

import (
	"context"

	"github.com/notewise/notewise-backend/internal/domain/progress"
	"github.com/notewise/notewise-backend/internal/domain/shared"
	"github.com/notewise/notewise-backend/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Top-N users by XP. Served from the ranked index when it is available and
// populated, otherwise straight from the record store.
// ══════════════════════════════════════════════════════════════════════════════

// Leaderboard limits.
const (
	DefaultLeaderboardLimit = 20
	MaxLeaderboardLimit     = 100
)

// Leaderboard sources reported in the view.
const (
	SourceIndex = "index"
	SourceStore = "store"
)

// GetLeaderboardQuery contains the query parameters.
type GetLeaderboardQuery struct {
	// Limit is the number of entries (default 20, max 100).
	Limit int
}

// Validate normalizes the limit.
func (q *GetLeaderboardQuery) Validate() error {
	if q.Limit < 0 {
		return shared.NewDomainError("leaderboard", "Validate", shared.ErrValueOutOfRange, "limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = DefaultLeaderboardLimit
	}
	if q.Limit > MaxLeaderboardLimit {
		q.Limit = MaxLeaderboardLimit
	}
	return nil
}

// LeaderboardView is the query result.
type LeaderboardView struct {
	Entries []progress.LeaderboardEntry `json:"entries"`
	Source  string                      `json:"source"`
}

// GetLeaderboardHandler handles GetLeaderboardQuery.
type GetLeaderboardHandler struct {
	repo        progress.Repository
	leaderboard progress.Leaderboard
	logger      *logger.Logger
}

// NewGetLeaderboardHandler creates a handler. leaderboard may be nil.
func NewGetLeaderboardHandler(repo progress.Repository, leaderboard progress.Leaderboard, log *logger.Logger) *GetLeaderboardHandler {
	if log == nil {
		log = logger.Default()
	}
	return &GetLeaderboardHandler{
		repo:        repo,
		leaderboard: leaderboard,
		logger:      log.With(logger.Component("get_leaderboard")),
	}
}

// Handle executes the query.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*LeaderboardView, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if h.leaderboard != nil {
		entries, err := h.leaderboard.Top(ctx, q.Limit)
		switch {
		case err != nil:
			h.logger.Warn("leaderboard index unavailable, reading store", logger.Err(err))
		case len(entries) > 0:
			return &LeaderboardView{Entries: entries, Source: SourceIndex}, nil
		}
	}

	records, err := h.repo.Top(ctx, q.Limit)
	if err != nil {
		return nil, err
	}
	return &LeaderboardView{Entries: progress.RankEntries(records), Source: SourceStore}, nil
}
