// Package projections implements read models for CQRS pattern.
// Projections are denormalized views optimized for fast reads.
// They are updated asynchronously when domain events occur.
package projections

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/notewise/notewise-backend/internal/domain/progress"
	"github.com/notewise/notewise-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD VIEW - Denormalized Read Model
// ══════════════════════════════════════════════════════════════════════════════

var _ progress.Leaderboard = (*LeaderboardView)(nil)

// LeaderboardView is an in-process ranked index of users by XP. It serves
// the leaderboard when Redis is not configured.
type LeaderboardView struct {
	mu sync.RWMutex

	// xp holds the indexed XP per user.
	xp map[shared.UserID]int64

	// sorted holds the ranked entries; rebuilt lazily after writes.
	sorted []progress.LeaderboardEntry
	dirty  bool

	lastUpdated time.Time

	// version is incremented on each update for cache invalidation.
	version int64
}

// LeaderboardMetadata holds aggregate statistics about the leaderboard.
type LeaderboardMetadata struct {
	TotalUsers  int       `json:"total_users"`
	TotalXP     int64     `json:"total_xp"`
	AverageXP   int64     `json:"average_xp"`
	TopXP       int64     `json:"top_xp"`
	LastUpdated time.Time `json:"last_updated"`
	Version     int64     `json:"version"`
}

// NewLeaderboardView creates a new empty leaderboard view.
func NewLeaderboardView() *LeaderboardView {
	return &LeaderboardView{
		xp:          make(map[shared.UserID]int64),
		lastUpdated: time.Now().UTC(),
		version:     1,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Upsert implements progress.Leaderboard.
func (lv *LeaderboardView) Upsert(ctx context.Context, userID shared.UserID, xp int64) error {
	lv.mu.Lock()
	defer lv.mu.Unlock()

	if old, ok := lv.xp[userID]; ok && old == xp {
		return nil
	}
	lv.xp[userID] = xp
	lv.touchLocked()
	return nil
}

// Replace implements progress.Leaderboard.
func (lv *LeaderboardView) Replace(ctx context.Context, entries []progress.LeaderboardEntry) error {
	lv.mu.Lock()
	defer lv.mu.Unlock()

	lv.xp = make(map[shared.UserID]int64, len(entries))
	for _, e := range entries {
		lv.xp[e.UserID] = e.XP
	}
	lv.touchLocked()
	return nil
}

func (lv *LeaderboardView) touchLocked() {
	lv.dirty = true
	lv.lastUpdated = time.Now().UTC()
	lv.version++
}

// rebuildLocked sorts by XP (descending, ties by user ID) and assigns
// shared ranks. Must be called with the write lock held.
func (lv *LeaderboardView) rebuildLocked() {
	if !lv.dirty && lv.sorted != nil {
		return
	}

	records := make([]progress.UserProgress, 0, len(lv.xp))
	for id, xp := range lv.xp {
		records = append(records, progress.UserProgress{UserID: id, XP: xp})
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].XP != records[j].XP {
			return records[i].XP > records[j].XP
		}
		return records[i].UserID < records[j].UserID
	})

	lv.sorted = progress.RankEntries(records)
	lv.dirty = false
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERY OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Top implements progress.Leaderboard.
func (lv *LeaderboardView) Top(ctx context.Context, limit int) ([]progress.LeaderboardEntry, error) {
	lv.mu.Lock()
	defer lv.mu.Unlock()
	lv.rebuildLocked()

	if limit <= 0 || limit > len(lv.sorted) {
		limit = len(lv.sorted)
	}
	out := make([]progress.LeaderboardEntry, limit)
	copy(out, lv.sorted[:limit])
	return out, nil
}

// Rank implements progress.Leaderboard.
func (lv *LeaderboardView) Rank(ctx context.Context, userID shared.UserID) (shared.Rank, error) {
	lv.mu.Lock()
	defer lv.mu.Unlock()

	if _, ok := lv.xp[userID]; !ok {
		return shared.Unranked, nil
	}
	lv.rebuildLocked()

	for _, e := range lv.sorted {
		if e.UserID == userID {
			return e.Rank, nil
		}
	}
	return shared.Unranked, nil
}

// GetNeighbors returns up to rangeSize entries above and below a user.
func (lv *LeaderboardView) GetNeighbors(ctx context.Context, userID shared.UserID, rangeSize int) ([]progress.LeaderboardEntry, error) {
	lv.mu.Lock()
	defer lv.mu.Unlock()
	lv.rebuildLocked()

	idx := -1
	for i, e := range lv.sorted {
		if e.UserID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, shared.ErrProgressNotFound
	}

	start := max(idx-rangeSize, 0)
	end := min(idx+rangeSize+1, len(lv.sorted))
	out := make([]progress.LeaderboardEntry, end-start)
	copy(out, lv.sorted[start:end])
	return out, nil
}

// GetMetadata returns aggregate statistics.
func (lv *LeaderboardView) GetMetadata(ctx context.Context) LeaderboardMetadata {
	lv.mu.RLock()
	defer lv.mu.RUnlock()

	meta := LeaderboardMetadata{
		TotalUsers:  len(lv.xp),
		LastUpdated: lv.lastUpdated,
		Version:     lv.version,
	}
	for _, xp := range lv.xp {
		meta.TotalXP += xp
		if xp > meta.TopXP {
			meta.TopXP = xp
		}
	}
	if meta.TotalUsers > 0 {
		meta.AverageXP = meta.TotalXP / int64(meta.TotalUsers)
	}
	return meta
}

// GetVersion returns the current version of the view.
func (lv *LeaderboardView) GetVersion() int64 {
	lv.mu.RLock()
	defer lv.mu.RUnlock()
	return lv.version
}
