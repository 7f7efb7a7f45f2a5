package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/gradebridge-backend/internal/platform/logger"
)

// Event is what gets published on the notification channel after a batch or sweep finishes.
type Event struct {
	Type      string         `json:"type"`
	BatchID   string         `json:"batch_id,omitempty"`
	Pass      string         `json:"pass,omitempty"`
	Counts    map[string]int `json:"counts,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

const (
	EventImportCompleted = "import.completed"
	EventSweepCompleted  = "sweep.completed"
)

type Bus interface {
	Publish(ctx context.Context, ev Event) error
	StartForwarder(ctx context.Context, onEvent func(ev Event)) error
	// TryLock takes key for ttl when nobody else holds it. The returned release is a no-op once
	// the lock has expired or been taken over.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
	Close() error
}

type bus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

// NewBus connects to addr and pings it. An empty channel defaults to "gradebridge".
func NewBus(log *logger.Logger, addr, channel string) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = "gradebridge"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &bus{
		log:     log.With("client", "RedisBus"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

func (b *bus) Publish(ctx context.Context, ev Event) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis bus not initialized")
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *bus) StartForwarder(ctx context.Context, onEvent func(ev Event)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis bus not initialized")
	}
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)
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
				var ev Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					b.log.Warn("bad redis event payload", "error", err)
					continue
				}
				onEvent(ev)
			}
		}
	}()

	return nil
}

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (b *bus) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if b == nil || b.rdb == nil {
		return func() {}, false, fmt.Errorf("redis bus not initialized")
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	token := uuid.NewString()
	ok, err := b.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return func() {}, false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if !ok {
		return func() {}, false, nil
	}
	release := func() {
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, b.rdb, []string{key}, token).Err(); err != nil {
			b.log.Warn("redis lock release failed", "key", key, "error", err)
		}
	}
	return release, true, nil
}

func (b *bus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
