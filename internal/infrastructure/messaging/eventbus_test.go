package messaging

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notewise/notewise-backend/internal/domain/progress"
	"github.com/notewise/notewise-backend/internal/domain/shared"
	"github.com/notewise/notewise-backend/pkg/logger"
)

func levelUp(id shared.UserID) progress.LevelUpEvent {
	base := shared.NewBaseEvent(shared.EventLevelUp, id.String(), time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	return progress.LevelUpEvent{
		BaseEvent: base.WithCorrelationID("req-1"),
		UserID:    id,
		OldLevel:  1,
		NewLevel:  2,
		XP:        150,
	}
}

func TestInMemoryEventBus_Sync(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{Logger: logger.Nop(), EnableMetrics: true})

	var typed, all int
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error { typed++; return nil }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { all++; return nil }))
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error { panic("boom") }))

	require.NoError(t, bus.Publish(levelUp("u")))
	require.NoError(t, bus.Publish(progress.BadgeEarnedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventBadgeEarned, "u", time.Now()),
	}))

	assert.Equal(t, 1, typed)
	assert.Equal(t, 2, all)

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.TotalPublished)
	assert.Equal(t, int64(4), snap.TotalHandlerExecs)
	assert.Equal(t, int64(1), snap.HandlerFailures)

	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(levelUp("u")), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestInMemoryEventBus_Async(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2, Logger: logger.Nop()})

	var n atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { n.Add(1); return nil }))
	for i := 0; i < 20; i++ {
		require.NoError(t, bus.Publish(levelUp("u")))
	}
	bus.Drain()
	assert.Equal(t, int32(20), n.Load())
	require.NoError(t, bus.Close())
}

func TestInMemoryEventBus_RejectsNil(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{Logger: logger.Nop()})
	assert.Error(t, bus.Publish(nil))
	assert.Error(t, bus.Subscribe(shared.EventLevelUp, nil))
}

func TestEncodeDecodeEvent(t *testing.T) {
	data, err := EncodeEvent("node-a", levelUp("alice"))
	require.NoError(t, err)

	instance, ev, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, "node-a", instance)
	assert.Equal(t, shared.EventLevelUp, ev.EventType())
	assert.Equal(t, "alice", ev.AggregateID())
	assert.Equal(t, "req-1", ev.Correlation())
	assert.Equal(t, "alice", ev.Payload()["user_id"])
	assert.Equal(t, float64(2), ev.Payload()["new_level"])

	_, _, err = DecodeEvent([]byte("{not json"))
	assert.Error(t, err)
}

// loopbackRedis delivers every published message to all subscribers.
type loopbackRedis struct {
	mu   sync.Mutex
	subs []chan RedisMessage
}

func (r *loopbackRedis) Publish(_ context.Context, channel string, message interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.subs {
		ch <- RedisMessage{Channel: channel, Payload: message.(string)}
	}
	return nil
}

func (r *loopbackRedis) Subscribe(context.Context, ...string) (<-chan RedisMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan RedisMessage, 16)
	r.subs = append(r.subs, ch)
	return ch, nil
}

func TestRedisEventBus_FansOutAcrossInstances(t *testing.T) {
	redis := &loopbackRedis{}
	newBus := func(id string) *RedisEventBus {
		bus, err := NewRedisEventBus(RedisEventBusConfig{
			Client:         redis,
			InstanceID:     id,
			LocalBusConfig: InMemoryEventBusConfig{Logger: logger.Nop()},
			Logger:         logger.Nop(),
		})
		require.NoError(t, err)
		return bus
	}
	a, b := newBus("a"), newBus("b")
	defer a.Close()
	defer b.Close()

	var onA, onB atomic.Int32
	require.NoError(t, a.Subscribe(shared.EventLevelUp, func(shared.Event) error { onA.Add(1); return nil }))
	require.NoError(t, b.Subscribe(shared.EventLevelUp, func(e shared.Event) error {
		assert.Equal(t, "u", e.AggregateID())
		onB.Add(1)
		return nil
	}))

	require.NoError(t, a.Publish(levelUp("u")))

	assert.Eventually(t, func() bool { return onB.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), onA.Load())
}
