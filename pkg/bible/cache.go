package bible

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCacheTTL     = 24 * time.Hour
	defaultFetchTimeout = 10 * time.Second
)

// CachedLookup serves found passages from Redis before asking the upstream
// service. Misses and failures are never cached, so a transient outage does
// not pin a reference as "not scripture".
type CachedLookup struct {
	next         Lookuper
	client       *redis.Client
	prefix       string
	ttl          time.Duration
	fetchTimeout time.Duration
	group        singleflight.Group
}

// CacheConfig configures a CachedLookup.
type CacheConfig struct {
	Addr     string
	Password string
	Prefix   string
	TTL      time.Duration
	// FetchTimeout bounds an upstream fetch shared by concurrent callers.
	FetchTimeout time.Duration
}

// NewCachedLookup wraps next with a Redis cache.
func NewCachedLookup(next Lookuper, cfg CacheConfig) (*CachedLookup, error) {
	if next == nil {
		return nil, errors.New("cached lookup requires an upstream lookuper")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("verse cache redis addr required")
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = "scripturechat:verse"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}
	return &CachedLookup{
		next:         next,
		client:       redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		prefix:       prefix,
		ttl:          ttl,
		fetchTimeout: fetchTimeout,
	}, nil
}

// Lookup implements Lookuper. Concurrent lookups of one passage share a
// single upstream fetch that outlives any one caller's cancellation; each
// caller still returns as soon as its own ctx is done.
func (c *CachedLookup) Lookup(ctx context.Context, passage string) (Passage, error) {
	key := c.key(passage)
	if cached, ok := c.read(ctx, key); ok {
		return cached, nil
	}
	ch := c.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		found, err := c.next.Lookup(fetchCtx, passage)
		if err != nil {
			return Passage{}, err
		}
		c.write(fetchCtx, key, found)
		return found, nil
	})
	select {
	case <-ctx.Done():
		return Passage{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Passage{}, res.Err
		}
		return res.Val.(Passage), nil
	}
}

// Close releases the Redis client.
func (c *CachedLookup) Close() error {
	return c.client.Close()
}

func (c *CachedLookup) read(ctx context.Context, key string) (Passage, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("verse cache read failed", "key", key, "err", err)
		}
		return Passage{}, false
	}
	var p Passage
	if err := json.Unmarshal(data, &p); err != nil || len(p.Verses) == 0 {
		return Passage{}, false
	}
	return p, true
}

func (c *CachedLookup) write(ctx context.Context, key string, p Passage) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		slog.Warn("verse cache write failed", "key", key, "err", err)
	}
}

func (c *CachedLookup) key(passage string) string {
	return fmt.Sprintf("%s:%s", c.prefix, strings.ToLower(strings.Join(strings.Fields(passage), " ")))
}
