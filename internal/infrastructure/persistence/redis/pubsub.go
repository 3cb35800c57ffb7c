package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/notewise/notewise-backend/internal/infrastructure/messaging"
)

// ══════════════════════════════════════════════════════════════════════════════
// PUB/SUB ADAPTER
// ══════════════════════════════════════════════════════════════════════════════

var _ messaging.RedisClient = (*PubSub)(nil)

// PubSub adapts Cache to messaging.RedisClient.
type PubSub struct {
	cache *Cache
}

// NewPubSub creates the adapter.
func NewPubSub(cache *Cache) *PubSub {
	return &PubSub{cache: cache}
}

// Publish implements messaging.RedisClient.
func (p *PubSub) Publish(ctx context.Context, channel string, message interface{}) error {
	return p.cache.Publish(ctx, channel, message)
}

// Subscribe implements messaging.RedisClient. The subscription is closed
// when ctx is done.
func (p *PubSub) Subscribe(ctx context.Context, channels ...string) (<-chan messaging.RedisMessage, error) {
	sub := p.cache.Subscribe(ctx, channels...)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := forward(ctx, sub.Channel())
	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()
	return out, nil
}

// forward copies Redis messages until in closes or ctx is done.
func forward(ctx context.Context, in <-chan *redis.Message) <-chan messaging.RedisMessage {
	out := make(chan messaging.RedisMessage, 64)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- messaging.RedisMessage{Channel: msg.Channel, Payload: msg.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
