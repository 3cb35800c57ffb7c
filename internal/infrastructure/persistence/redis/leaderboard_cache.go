package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/notewise/notewise-backend/internal/domain/progress"
	"github.com/notewise/notewise-backend/internal/domain/shared"
	"github.com/notewise/notewise-backend/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

var _ progress.Leaderboard = (*LeaderboardCache)(nil)

// LeaderboardCache implements progress.Leaderboard on a Redis sorted set.
//
// Architecture:
//   - Sorted set "leaderboard:xp" stores userID -> -XP, so ascending order is
//     XP descending with ties broken by user ID ascending
//   - Hash "leaderboard:meta" stores the last rebuild time and size
//
// Rank lookups are O(log N): the rank of a user is one plus the number of
// members with strictly more XP, so equal XP shares a rank.
type LeaderboardCache struct {
	cache   *Cache
	breaker *circuitbreaker.Breaker
}

// LeaderboardMeta contains metadata about the last rebuild.
type LeaderboardMeta struct {
	RebuiltAt time.Time `json:"rebuilt_at"`
	Size      int64     `json:"size"`
}

// NewLeaderboardCache creates a LeaderboardCache. A nil breaker gets the
// default cache breaker.
func NewLeaderboardCache(cache *Cache, breaker *circuitbreaker.Breaker) *LeaderboardCache {
	if breaker == nil {
		breaker = NewBreaker(nil)
	}
	return &LeaderboardCache{cache: cache, breaker: breaker}
}

func (l *LeaderboardCache) key() string {
	return LeaderboardKey(l.cache.Prefix())
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Upsert implements progress.Leaderboard.
func (l *LeaderboardCache) Upsert(ctx context.Context, userID shared.UserID, xp int64) error {
	if userID == "" {
		return shared.ErrInvalidUserID
	}
	return l.breaker.Execute(ctx, func(ctx context.Context) error {
		return l.cache.Client().ZAdd(ctx, l.key(), toZ(userID, xp)).Err()
	})
}

// Replace implements progress.Leaderboard. The swap is one MULTI/EXEC so
// readers never see a half-built set.
func (l *LeaderboardCache) Replace(ctx context.Context, entries []progress.LeaderboardEntry) error {
	members := make([]redis.Z, 0, len(entries))
	for _, e := range entries {
		if e.UserID == "" {
			continue
		}
		members = append(members, toZ(e.UserID, e.XP))
	}

	return l.breaker.Execute(ctx, func(ctx context.Context) error {
		pipe := l.cache.Client().TxPipeline()
		pipe.Del(ctx, l.key())
		if len(members) > 0 {
			pipe.ZAdd(ctx, l.key(), members...)
		}
		pipe.HSet(ctx, LeaderboardMetaKey(l.cache.Prefix()),
			"rebuilt_at", time.Now().UTC().Format(time.RFC3339),
			"size", len(members),
		)
		pipe.Expire(ctx, LeaderboardMetaKey(l.cache.Prefix()), TTLLeaderboardMeta)
		_, err := pipe.Exec(ctx)
		return err
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// READ OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Top implements progress.Leaderboard.
func (l *LeaderboardCache) Top(ctx context.Context, limit int) ([]progress.LeaderboardEntry, error) {
	if limit <= 0 {
		return nil, nil
	}

	var members []redis.Z
	err := l.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		members, err = l.cache.Client().ZRangeWithScores(ctx, l.key(), 0, int64(limit-1)).Result()
		return err
	})
	if err != nil {
		return nil, err
	}

	return entriesFromZ(members)
}

// Rank implements progress.Leaderboard.
func (l *LeaderboardCache) Rank(ctx context.Context, userID shared.UserID) (shared.Rank, error) {
	rank := shared.Unranked
	err := l.breaker.Execute(ctx, func(ctx context.Context) error {
		score, err := l.cache.Client().ZScore(ctx, l.key(), userID.String()).Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}

		ahead, err := l.cache.Client().ZCount(ctx, l.key(), "-inf", "("+strconv.FormatFloat(score, 'f', -1, 64)).Result()
		if err != nil {
			return err
		}
		rank = shared.Rank(ahead + 1)
		return nil
	})
	return rank, err
}

// Count returns the number of ranked users.
func (l *LeaderboardCache) Count(ctx context.Context) (int64, error) {
	var n int64
	err := l.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		n, err = l.cache.Client().ZCard(ctx, l.key()).Result()
		return err
	})
	return n, err
}

// Meta returns metadata about the last rebuild.
func (l *LeaderboardCache) Meta(ctx context.Context) (*LeaderboardMeta, error) {
	var fields map[string]string
	err := l.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		fields, err = l.cache.Client().HGetAll(ctx, LeaderboardMetaKey(l.cache.Prefix())).Result()
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrCacheMiss
	}
	return parseMeta(fields)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func toZ(userID shared.UserID, xp int64) redis.Z {
	return redis.Z{Score: -float64(xp), Member: userID.String()}
}

// entriesFromZ converts an ascending ZRANGE result into ranked entries.
func entriesFromZ(members []redis.Z) ([]progress.LeaderboardEntry, error) {
	records := make([]progress.UserProgress, 0, len(members))
	for _, m := range members {
		id, ok := m.Member.(string)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected member %T", ErrCacheSerialization, m.Member)
		}
		records = append(records, progress.UserProgress{UserID: shared.UserID(id), XP: int64(-m.Score)})
	}
	return progress.RankEntries(records), nil
}

func parseMeta(fields map[string]string) (*LeaderboardMeta, error) {
	meta := &LeaderboardMeta{}
	if v, ok := fields["rebuilt_at"]; ok {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("%w: rebuilt_at: %v", ErrCacheSerialization, err)
		}
		meta.RebuiltAt = t
	}
	if v, ok := fields["size"]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: size: %v", ErrCacheSerialization, err)
		}
		meta.Size = n
	}
	return meta, nil
}
