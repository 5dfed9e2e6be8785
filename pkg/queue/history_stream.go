package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"scripturechat/internal/util"
	"scripturechat/pkg/domain"
)

const maxBackoff = 30 * time.Second

// Handler persists one history entry. A returned error schedules a retry.
type Handler func(context.Context, domain.HistoryEntry) error

// HistoryStreamConfig configures a HistoryStream. Zero values pick defaults.
type HistoryStreamConfig struct {
	Addr     string
	Password string
	Stream   string
	Group    string
	Consumer string

	MaxAttempts  int
	Block        time.Duration
	ClaimIdle    time.Duration
	RetryBackoff time.Duration
	MaxLen       int64
	BatchSize    int64
}

func (c *HistoryStreamConfig) applyDefaults() {
	c.Group = firstNonBlank(c.Group, "history")
	c.Consumer = firstNonBlank(c.Consumer, util.NewID())
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Block <= 0 {
		c.Block = 5 * time.Second
	}
	if c.ClaimIdle <= 0 {
		c.ClaimIdle = 30 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxLen <= 0 {
		c.MaxLen = 10000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
}

// HistoryStream is the search-history log on a Redis stream. Turns record
// raw queries with RecordQuery; Run drains them through a consumer group.
// Entries that exhaust their attempts move to "<stream>:dead".
type HistoryStream struct {
	client *redis.Client
	cfg    HistoryStreamConfig
}

// NewHistoryStream validates cfg and opens the Redis client.
func NewHistoryStream(cfg HistoryStreamConfig) (*HistoryStream, error) {
	cfg.Addr = strings.TrimSpace(cfg.Addr)
	cfg.Stream = strings.TrimSpace(cfg.Stream)
	if cfg.Addr == "" {
		return nil, errors.New("redis addr required")
	}
	if cfg.Stream == "" {
		return nil, errors.New("history stream name required")
	}
	cfg.applyDefaults()
	return &HistoryStream{
		client: redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password}),
		cfg:    cfg,
	}, nil
}

// RecordQuery appends entry to the stream, filling in a missing ID and
// timestamp.
func (s *HistoryStream) RecordQuery(ctx context.Context, entry domain.HistoryEntry) error {
	if strings.TrimSpace(entry.UserID) == "" {
		return errors.New("history entry userId required")
	}
	if entry.ID == "" {
		entry.ID = util.NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	values, err := encodeEntry(entry, 0)
	if err != nil {
		return err
	}
	return s.add(ctx, s.client, s.cfg.Stream, values)
}

// Run consumes with workers goroutines until ctx is done.
func (s *HistoryStream) Run(ctx context.Context, workers int, handle Handler) error {
	if workers <= 0 {
		workers = 1
	}
	if err := s.ensureGroup(ctx); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		consumer := fmt.Sprintf("%s-%d", s.cfg.Consumer, i)
		g.Go(func() error {
			s.consume(gctx, consumer, handle)
			return nil
		})
	}
	return g.Wait()
}

// Close releases the Redis client.
func (s *HistoryStream) Close() error {
	return s.client.Close()
}

func (s *HistoryStream) deadLetterStream() string {
	return s.cfg.Stream + ":dead"
}

func (s *HistoryStream) ensureGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.cfg.Stream, s.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", s.cfg.Group, err)
	}
	return nil
}

func (s *HistoryStream) consume(ctx context.Context, consumer string, handle Handler) {
	log := slog.With("stream", s.cfg.Stream, "consumer", consumer)
	for ctx.Err() == nil {
		batch, err := s.next(ctx, consumer)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("history stream read failed", "err", err)
			sleep(ctx, s.cfg.RetryBackoff)
			continue
		}
		for _, msg := range batch {
			s.process(ctx, log, msg, handle)
		}
	}
}

// next prefers entries abandoned by dead consumers over new ones.
func (s *HistoryStream) next(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	claimed, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.cfg.Stream,
		Group:    s.cfg.Group,
		Consumer: consumer,
		MinIdle:  s.cfg.ClaimIdle,
		Start:    "0-0",
		Count:    s.cfg.BatchSize,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	if len(claimed) > 0 {
		return claimed, nil
	}

	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.cfg.Group,
		Consumer: consumer,
		Streams:  []string{s.cfg.Stream, ">"},
		Count:    s.cfg.BatchSize,
		Block:    s.cfg.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []redis.XMessage
	for _, st := range streams {
		out = append(out, st.Messages...)
	}
	return out, nil
}

func (s *HistoryStream) process(ctx context.Context, log *slog.Logger, msg redis.XMessage, handle Handler) {
	entry, attempt, err := decodeEntry(msg.Values)
	if err != nil {
		log.Warn("history stream dropped malformed message", "msg_id", msg.ID, "err", err)
		s.settle(ctx, msg.ID, "", nil)
		return
	}
	attempt++
	handleErr := handle(ctx, entry)
	switch {
	case handleErr == nil:
		s.settle(ctx, msg.ID, "", nil)
	case attempt >= s.cfg.MaxAttempts:
		log.Error("history entry dead-lettered", "entry_id", entry.ID, "user_id", entry.UserID, "attempts", attempt, "err", handleErr)
		values, _ := encodeEntry(entry, attempt)
		values["error"] = handleErr.Error()
		s.settle(ctx, msg.ID, s.deadLetterStream(), values)
	default:
		log.Warn("history entry retry", "entry_id", entry.ID, "attempt", attempt, "err", handleErr)
		if !sleep(ctx, backoff(s.cfg.RetryBackoff, attempt)) {
			return
		}
		values, _ := encodeEntry(entry, attempt)
		s.settle(ctx, msg.ID, s.cfg.Stream, values)
	}
}

// settle acknowledges and deletes msgID, first re-adding values to target
// when one is given. All steps run in one transaction so a failure leaves
// the original message pending for a later claim.
func (s *HistoryStream) settle(ctx context.Context, msgID, target string, values map[string]any) error {
	pipe := s.client.TxPipeline()
	if target != "" {
		if err := s.add(ctx, pipe, target, values); err != nil {
			return err
		}
	}
	pipe.XAck(ctx, s.cfg.Stream, s.cfg.Group, msgID)
	pipe.XDel(ctx, s.cfg.Stream, msgID)
	_, err := pipe.Exec(ctx)
	if err != nil {
		slog.Warn("history stream settle failed", "msg_id", msgID, "err", err)
	}
	return err
}

func (s *HistoryStream) add(ctx context.Context, c redis.Cmdable, stream string, values map[string]any) error {
	return c.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: s.cfg.MaxLen,
		Approx: true,
		Values: values,
	}).Err()
}

func encodeEntry(entry domain.HistoryEntry, attempt int) (map[string]any, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encode history entry: %w", err)
	}
	return map[string]any{"entry": string(payload), "attempt": strconv.Itoa(attempt)}, nil
}

func decodeEntry(values map[string]any) (domain.HistoryEntry, int, error) {
	var entry domain.HistoryEntry
	raw, _ := values["entry"].(string)
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return entry, 0, fmt.Errorf("decode history entry: %w", err)
	}
	if entry.ID == "" || entry.UserID == "" {
		return entry, 0, errors.New("history entry missing id or user")
	}
	attempt, _ := strconv.Atoi(fmt.Sprint(values["attempt"]))
	return entry, attempt, nil
}

func backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}

// sleep waits d and reports whether ctx is still live.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func firstNonBlank(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
