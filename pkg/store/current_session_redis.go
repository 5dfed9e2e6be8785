package store

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisCurrentSessionStore maps users to their active session in Redis so
// every chat replica agrees on it.
type RedisCurrentSessionStore struct {
	client *redis.Client
	prefix string
}

// NewRedisCurrentSessionStore constructs a Redis-backed current-session store.
func NewRedisCurrentSessionStore(addr, password string) *RedisCurrentSessionStore {
	return &RedisCurrentSessionStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		prefix: "scripturechat:current-session:",
	}
}

// CurrentSession returns the active session of userID, if any.
func (s *RedisCurrentSessionStore) CurrentSession(ctx context.Context, userID string) (string, bool, error) {
	id, err := s.client.Get(ctx, s.key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	id = strings.TrimSpace(id)
	return id, id != "", nil
}

// SetCurrentSession replaces the active session of userID.
func (s *RedisCurrentSessionStore) SetCurrentSession(ctx context.Context, userID, sessionID string) error {
	return s.client.Set(ctx, s.key(userID), sessionID, 0).Err()
}

func (s *RedisCurrentSessionStore) key(userID string) string {
	return s.prefix + userID
}

// Close releases the Redis client.
func (s *RedisCurrentSessionStore) Close() error {
	return s.client.Close()
}
