package progress

import (
	"context"
	"time"

	"github.com/notewise/notewise-backend/internal/domain/shared"
)

// Repository is the record store for UserProgress. It only stores; all rules
// live in this package.
type Repository interface {
	// Get returns the record of a user. Absent records yield an error whose
	// kind is shared.ErrNotFound.
	Get(ctx context.Context, userID shared.UserID) (UserProgress, error)

	// Set writes the record unconditionally.
	Set(ctx context.Context, p UserProgress) error

	// CompareAndSet writes next only if the stored UpdatedAt still equals
	// expectedUpdatedAt. A nil expectedUpdatedAt means the record must not
	// exist yet. A lost race yields shared.ErrConcurrentModification; a
	// rejected write yields shared.ErrForbidden.
	CompareAndSet(ctx context.Context, next UserProgress, expectedUpdatedAt *time.Time) error

	// Top returns the records with the most XP, ties broken by user ID.
	Top(ctx context.Context, limit int) ([]UserProgress, error)
}

// BadgeRepository stores owned badges.
type BadgeRepository interface {
	// List returns the badges a user owns, oldest first.
	List(ctx context.Context, userID shared.UserID) ([]Badge, error)

	// Award grants badges. Already owned badges are ignored.
	Award(ctx context.Context, userID shared.UserID, codes []BadgeCode, at time.Time) error
}

// LeaderboardEntry is one ranked row of the XP leaderboard.
type LeaderboardEntry struct {
	Rank   shared.Rank   `json:"rank"`
	UserID shared.UserID `json:"user_id"`
	XP     int64         `json:"xp"`
	Level  int           `json:"level"`
}

// Leaderboard is a ranked index of users by XP.
type Leaderboard interface {
	// Upsert sets the XP of a user.
	Upsert(ctx context.Context, userID shared.UserID, xp int64) error

	// Top returns the highest ranked entries.
	Top(ctx context.Context, limit int) ([]LeaderboardEntry, error)

	// Rank returns the 1-based rank of a user, shared.Unranked when absent.
	Rank(ctx context.Context, userID shared.UserID) (shared.Rank, error)

	// Replace swaps the whole index for the given entries.
	Replace(ctx context.Context, entries []LeaderboardEntry) error
}

// RankEntries assigns ranks to records already sorted by XP. Equal XP shares
// a rank (1, 2, 2, 4).
func RankEntries(records []UserProgress) []LeaderboardEntry {
	out := make([]LeaderboardEntry, 0, len(records))
	for i, p := range records {
		rank := shared.Rank(i + 1)
		if i > 0 && p.XP == records[i-1].XP {
			rank = out[i-1].Rank
		}
		out = append(out, LeaderboardEntry{
			Rank:   rank,
			UserID: p.UserID,
			XP:     p.XP,
			Level:  LevelForXP(p.XP),
		})
	}
	return out
}

// Cache is an optional read-through copy of records. Misses return false
// with a nil error.
//
// Copies are versioned by UpdatedAt. Invalidate drops the copy and remembers
// version, the UpdatedAt of the write that made it stale; Set ignores any
// record older than the newest version seen, so a reader that loaded the
// store before that write cannot put the old record back.
type Cache interface {
	Get(ctx context.Context, userID shared.UserID) (UserProgress, bool, error)
	Set(ctx context.Context, p UserProgress) error
	Invalidate(ctx context.Context, userID shared.UserID, version time.Time) error
}
