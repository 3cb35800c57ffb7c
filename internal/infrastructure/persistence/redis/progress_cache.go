package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/notewise/notewise-backend/internal/domain/progress"
	"github.com/notewise/notewise-backend/internal/domain/shared"
	"github.com/notewise/notewise-backend/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS CACHE
// ══════════════════════════════════════════════════════════════════════════════

var _ progress.Cache = (*ProgressCache)(nil)

// Each record lives in a hash: field v holds the newest version seen in
// microseconds, field d the JSON copy. An invalidation keeps v and drops d.
const fieldData = "d"

// setProgressScript writes d unless a newer version is already recorded.
// KEYS[1] key; ARGV[1] version; ARGV[2] data; ARGV[3] ttl in ms.
var setProgressScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'd', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// invalidateProgressScript drops d and raises v.
// KEYS[1] key; ARGV[1] version; ARGV[2] ttl in ms.
var invalidateProgressScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HDEL', KEYS[1], 'd')
redis.call('HSET', KEYS[1], 'v', ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`)

// ProgressCache keeps versioned JSON copies of progress records. Calls go
// through a circuit breaker so a failing Redis is skipped instead of slowing
// reads.
type ProgressCache struct {
	cache   *Cache
	breaker *circuitbreaker.Breaker
	ttl     time.Duration
}

// NewProgressCache creates a ProgressCache. A nil breaker gets NewBreaker(nil);
// a non-positive ttl gets TTLProgressCache.
func NewProgressCache(cache *Cache, breaker *circuitbreaker.Breaker, ttl time.Duration) *ProgressCache {
	if breaker == nil {
		breaker = NewBreaker(nil)
	}
	if ttl <= 0 {
		ttl = TTLProgressCache
	}
	return &ProgressCache{cache: cache, breaker: breaker, ttl: ttl}
}

// NewBreaker returns the breaker the Redis adapters share. Misses and caller
// cancellations do not count as failures.
func NewBreaker(onChange circuitbreaker.StateChangeFunc) *circuitbreaker.Breaker {
	return circuitbreaker.CacheBreaker(onChange, countsAgainstBreaker)
}

// Get implements progress.Cache.
func (c *ProgressCache) Get(ctx context.Context, userID shared.UserID) (progress.UserProgress, bool, error) {
	var p progress.UserProgress
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		data, err := c.cache.Client().HGet(ctx, c.key(userID), fieldData).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		if err != nil {
			return fmt.Errorf("failed to get progress copy: %w", err)
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
		}
		return nil
	})
	if errors.Is(err, ErrCacheMiss) {
		return progress.UserProgress{}, false, nil
	}
	if err != nil {
		return progress.UserProgress{}, false, err
	}
	return p, true, nil
}

// Set implements progress.Cache. A record older than the stored version is
// dropped without error.
func (c *ProgressCache) Set(ctx context.Context, p progress.UserProgress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return setProgressScript.Run(ctx, c.cache.Client(),
			[]string{c.key(p.UserID)},
			version(p.UpdatedAt), data, c.ttl.Milliseconds(),
		).Err()
	})
}

// Invalidate implements progress.Cache.
func (c *ProgressCache) Invalidate(ctx context.Context, userID shared.UserID, v time.Time) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return invalidateProgressScript.Run(ctx, c.cache.Client(),
			[]string{c.key(userID)},
			version(v), c.ttl.Milliseconds(),
		).Err()
	})
}

func (c *ProgressCache) key(userID shared.UserID) string {
	return ProgressKey(c.cache.Prefix(), userID.String())
}

// version keeps record versions inside the integer range of Lua numbers.
func version(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

// countsAgainstBreaker keeps misses and caller cancellations from opening
// the breaker.
func countsAgainstBreaker(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrCacheMiss), errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}
