// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
package query

import (
	"context"
	"time"

	"github.com/notewise/notewise-backend/internal/domain/progress"
	"github.com/notewise/notewise-backend/internal/domain/shared"
	"github.com/notewise/notewise-backend/pkg/logger"
	"github.com/notewise/notewise-backend/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS QUERY
// Builds the progress card of one user: XP, level band, streak and badges.
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressQuery asks for the progress view of a user.
type GetProgressQuery struct {
	UserID string
}

// BadgeView is an owned badge joined with its definition.
type BadgeView struct {
	progress.BadgeDefinition
	AwardedAt time.Time `json:"awarded_at"`
}

// ProgressView is the read model shown on the progress page.
type ProgressView struct {
	UserID         string                `json:"user_id"`
	XP             int64                 `json:"xp"`
	Level          int                   `json:"level"`
	LevelProgress  float64               `json:"level_progress"`
	XPToNextLevel  int64                 `json:"xp_to_next_level"`
	NextLevelXP    int64                 `json:"next_level_xp"`
	Streak         int                   `json:"streak"`
	StreakStatus   progress.StreakStatus `json:"streak_status"`
	LastActiveDate *string               `json:"last_active_date"`
	Rank           shared.Rank           `json:"rank"`
	Badges         []BadgeView           `json:"badges"`
}

// NewProgressView derives the view of p as seen at now.
func NewProgressView(p progress.UserProgress, now time.Time) ProgressView {
	v := ProgressView{
		UserID:        p.UserID.String(),
		XP:            p.XP,
		Level:         progress.LevelForXP(p.XP),
		LevelProgress: progress.LevelProgress(p.XP),
		XPToNextLevel: progress.XPToNextLevel(p.XP),
		NextLevelXP:   progress.NextLevelXP(p.XP),
		Streak:        p.DisplayStreak(now),
		StreakStatus:  p.StatusAt(now),
		Rank:          shared.Unranked,
		Badges:        []BadgeView{},
	}
	if p.LastActiveDate != nil {
		d := timeutil.FormatDateStr(*p.LastActiveDate)
		v.LastActiveDate = &d
	}
	return v
}

// GetProgressHandler handles GetProgressQuery.
type GetProgressHandler struct {
	repo        progress.Repository
	badgeRepo   progress.BadgeRepository
	cache       progress.Cache
	leaderboard progress.Leaderboard
	clock       timeutil.Clock
	logger      *logger.Logger
}

// NewGetProgressHandler creates a handler. badgeRepo, cache and leaderboard
// are optional.
func NewGetProgressHandler(
	repo progress.Repository,
	badgeRepo progress.BadgeRepository,
	cache progress.Cache,
	leaderboard progress.Leaderboard,
	clock timeutil.Clock,
	log *logger.Logger,
) *GetProgressHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Default()
	}
	return &GetProgressHandler{
		repo:        repo,
		badgeRepo:   badgeRepo,
		cache:       cache,
		leaderboard: leaderboard,
		clock:       clock,
		logger:      log.With(logger.Component("get_progress")),
	}
}

// Handle executes the query. Unknown users get the zero view at level 1.
func (h *GetProgressHandler) Handle(ctx context.Context, q GetProgressQuery) (*ProgressView, error) {
	userID, err := shared.NewUserID(q.UserID)
	if err != nil {
		return nil, err
	}

	p, err := h.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	view := NewProgressView(p, h.clock.Now())

	if h.badgeRepo != nil {
		owned, err := h.badgeRepo.List(ctx, userID)
		if err != nil {
			return nil, err
		}
		for _, b := range owned {
			def, ok := progress.LookupBadge(b.Code)
			if !ok {
				continue
			}
			view.Badges = append(view.Badges, BadgeView{BadgeDefinition: def, AwardedAt: b.AwardedAt})
		}
	}

	if h.leaderboard != nil && p.Exists() {
		rank, err := h.leaderboard.Rank(ctx, userID)
		if err != nil {
			h.logger.Warn("leaderboard rank unavailable", logger.UserID(userID.String()), logger.Err(err))
		} else {
			view.Rank = rank
		}
	}

	return &view, nil
}

// load reads through the cache when one is configured.
func (h *GetProgressHandler) load(ctx context.Context, userID shared.UserID) (progress.UserProgress, error) {
	if h.cache != nil {
		p, ok, err := h.cache.Get(ctx, userID)
		if err != nil {
			h.logger.Warn("progress cache read failed", logger.UserID(userID.String()), logger.Err(err))
		} else if ok {
			return p, nil
		}
	}

	p, err := h.repo.Get(ctx, userID)
	if shared.IsNotFound(err) {
		return progress.New(userID), nil
	}
	if err != nil {
		return progress.UserProgress{}, err
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, p); err != nil {
			h.logger.Warn("progress cache write failed", logger.UserID(userID.String()), logger.Err(err))
		}
	}
	return p, nil
}
