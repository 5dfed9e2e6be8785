package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// RedisBroker fans events out over Redis pub/sub so watchers connected to
// any replica see turns processed by another.
type RedisBroker struct {
	client *redis.Client
	prefix string
	closed atomic.Bool
}

// NewRedisBroker constructs a pub/sub broker.
func NewRedisBroker(addr, password, prefix string) *RedisBroker {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "scripturechat:feed"
	}
	return &RedisBroker{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		prefix: prefix,
	}
}

// Publish sends event on the session channel.
func (b *RedisBroker) Publish(ctx context.Context, event Event) error {
	if b.closed.Load() {
		return ErrClosed
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode feed event: %w", err)
	}
	return b.client.Publish(ctx, b.channel(event.SessionID), payload).Err()
}

// Subscribe returns once the subscription is confirmed by Redis, so events
// published after it returns are never missed.
func (b *RedisBroker) Subscribe(ctx context.Context, sessionID string) (<-chan Event, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	pubsub := b.client.Subscribe(ctx, b.channel(sessionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe feed: %w", err)
	}
	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					slog.Warn("feed event decode failed", "channel", msg.Channel, "err", err)
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close releases the Redis client.
func (b *RedisBroker) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.client.Close()
}

func (b *RedisBroker) channel(sessionID string) string {
	return b.prefix + ":" + sessionID
}
