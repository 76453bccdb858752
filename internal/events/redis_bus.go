package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/neoalexandria/backend/internal/platform/logger"
)

// redisBus mirrors a local Bus across processes: emits are published to a
// Redis channel and remote emits are replayed into the local bus. Single
// process deployments use NewBus directly; this wrapper exists for running
// API and worker as separate processes against one library.
type redisBus struct {
	log     *logger.Logger
	local   Bus
	rdb     *goredis.Client
	channel string
	id      string
	cancel  context.CancelFunc
}

type wireEvent struct {
	Origin  string  `json:"origin"`
	Name    string  `json:"name"`
	Payload Payload `json:"payload"`
}

func NewRedisBus(log *logger.Logger, local Bus) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if local == nil {
		return nil, fmt.Errorf("local bus required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(os.Getenv("REDIS_EVENTS_CHANNEL"))
	if ch == "" {
		ch = "events"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &redisBus{
		log:     log.With("component", "RedisEventBus"),
		local:   local,
		rdb:     rdb,
		channel: ch,
		id:      uuid.NewString(),
		cancel:  cancel,
	}
	if err := b.startForwarder(ctx); err != nil {
		cancel()
		_ = rdb.Close()
		return nil, err
	}
	return b, nil
}

func (b *redisBus) startForwarder(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	// Confirms the subscription actually started.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				b.replay(ctx, []byte(m.Payload))
			}
		}
	}()
	return nil
}

// replay feeds a subscription message into the local bus. Pub/sub echoes
// publications back to the publishing client, and Emit already delivered
// locally, so self-originated messages are dropped.
func (b *redisBus) replay(ctx context.Context, raw []byte) {
	var ev wireEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		b.log.Warn("bad redis event payload", "error", err)
		return
	}
	if ev.Origin == b.id {
		return
	}
	b.local.Emit(ctx, ev.Name, ev.Payload)
}

func (b *redisBus) Subscribe(name string, priority int, h Handler) {
	b.local.Subscribe(name, priority, h)
}

func (b *redisBus) SubscribeAsync(name string, h Handler) {
	b.local.SubscribeAsync(name, h)
}

func (b *redisBus) Emit(ctx context.Context, name string, payload Payload) {
	b.local.Emit(ctx, name, payload)
	raw, err := json.Marshal(wireEvent{Origin: b.id, Name: name, Payload: payload})
	if err != nil {
		b.log.Warn("event not mirrorable to redis", "event", name, "error", err)
		return
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		b.log.Warn("redis event publish failed", "event", name, "error", err)
	}
}

func (b *redisBus) Close() {
	b.cancel()
	_ = b.rdb.Close()
	b.local.Close()
}
