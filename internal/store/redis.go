package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/maklermate/maklermate-api/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultRedisChannel carries change announcements between instances
const DefaultRedisChannel = "maklermate:changes"

// changeMessage is published after every write
type changeMessage struct {
	Key     string `json:"key"`
	Origin  string `json:"origin"`
	Deleted bool   `json:"deleted,omitempty"`
}

// RedisBackend stores values as plain Redis strings and announces writes on
// a pub/sub channel
type RedisBackend struct {
	client  *redis.Client
	channel string
	origin  string
	logger  *zap.Logger

	notifier *notifier

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisBackend wraps an existing client
func NewRedisBackend(client *redis.Client, channel string, logger *zap.Logger) *RedisBackend {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisBackend{
		client:   client,
		channel:  channel,
		origin:   uuid.NewString(),
		logger:   logger,
		notifier: newNotifier(),
	}
}

// Get reads key
func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := b.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return val, true, nil
}

// Set writes key and publishes the change
func (b *RedisBackend) Set(ctx context.Context, key string, value []byte) error {
	if err := b.client.Set(ctx, key, value, 0).Err(); err != nil {
		return mapRedisError(fmt.Errorf("failed to write %s: %w", key, err))
	}
	return b.publish(ctx, changeMessage{Key: key, Origin: b.origin})
}

// Delete removes key and publishes the change when something was removed
func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	n, err := b.client.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	if n == 0 {
		return nil
	}
	return b.publish(ctx, changeMessage{Key: key, Origin: b.origin, Deleted: true})
}

// Keys scans the keyspace for prefix
func (b *RedisBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := b.client.Scan(ctx, 0, escapeGlob(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}
	return filterKeys(keys, prefix), nil
}

func escapeGlob(s string) string {
	return strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`).Replace(s)
}

func (b *RedisBackend) publish(ctx context.Context, msg changeMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish change for %s: %w", msg.Key, err)
	}
	return nil
}

// Watch subscribes to the change channel the first time it is called
func (b *RedisBackend) Watch(ctx context.Context, fn func(Change)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub == nil {
		ps := b.client.Subscribe(ctx, b.channel)
		// Wait for the subscription so that writes issued after Watch returns are seen
		if _, err := ps.Receive(ctx); err != nil {
			ps.Close()
			return nil, fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
		}
		b.pubsub = ps
		b.done = make(chan struct{})
		go b.loop(ps, b.done)
	}
	return b.notifier.add(fn), nil
}

func (b *RedisBackend) loop(ps *redis.PubSub, done chan<- struct{}) {
	defer close(done)
	for m := range ps.Channel() {
		var msg changeMessage
		if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
			b.logger.Warn("ignoring malformed change message", zap.String("channel", m.Channel), zap.Error(err))
			continue
		}
		if msg.Origin == b.origin {
			continue
		}
		if msg.Deleted {
			b.notifier.notify(Change{Key: msg.Key, Deleted: true})
			continue
		}
		value, ok, err := b.Get(context.Background(), msg.Key)
		if err != nil {
			b.logger.Warn("failed to fetch changed key", zap.String("key", msg.Key), zap.Error(err))
			continue
		}
		if !ok {
			b.notifier.notify(Change{Key: msg.Key, Deleted: true})
			continue
		}
		b.notifier.notify(Change{Key: msg.Key, Value: value})
	}
}

// Close ends the subscription. The client is owned by the caller.
func (b *RedisBackend) Close() error {
	b.mu.Lock()
	ps, done := b.pubsub, b.done
	b.pubsub, b.done = nil, nil
	b.mu.Unlock()
	if ps == nil {
		return nil
	}
	err := ps.Close()
	<-done
	return err
}

func mapRedisError(err error) error {
	if strings.Contains(err.Error(), "OOM") {
		return fmt.Errorf("%w: %v", domain.ErrQuotaExceeded, err)
	}
	return err
}
