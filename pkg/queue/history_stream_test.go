package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"scripturechat/pkg/domain"
)

func newTestStream(t *testing.T, cfg HistoryStreamConfig) *HistoryStream {
	t.Helper()
	srv := miniredis.RunT(t)
	cfg.Addr = srv.Addr()
	if cfg.Stream == "" {
		cfg.Stream = "test:history"
	}
	if cfg.Block == 0 {
		cfg.Block = 20 * time.Millisecond
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Millisecond
	}
	s, err := NewHistoryStream(cfg)
	if err != nil {
		t.Fatalf("new history stream: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// runStream runs s until the test ends and waits for Run to return.
func runStream(t *testing.T, s *HistoryStream, handle Handler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, 1, handle) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("run did not stop")
		}
	})
}

func TestHistoryStreamRetriesThenDelivers(t *testing.T) {
	s := newTestStream(t, HistoryStreamConfig{})
	ctx := context.Background()
	if err := s.RecordQuery(ctx, domain.HistoryEntry{UserID: "u1", Text: "John 3:16"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	var (
		mu        sync.Mutex
		calls     int
		delivered = make(chan domain.HistoryEntry, 1)
	)
	runStream(t, s, func(ctx context.Context, entry domain.HistoryEntry) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return errors.New("db down")
		}
		delivered <- entry
		return nil
	})

	select {
	case entry := <-delivered:
		if entry.UserID != "u1" || entry.Text != "John 3:16" || entry.ID == "" || entry.CreatedAt.IsZero() {
			t.Fatalf("entry = %+v", entry)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("entry never delivered")
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestHistoryStreamDeadLettersExhaustedEntries(t *testing.T) {
	s := newTestStream(t, HistoryStreamConfig{MaxAttempts: 2})
	ctx := context.Background()
	if err := s.RecordQuery(ctx, domain.HistoryEntry{ID: "h1", UserID: "u1", Text: "Psalm 23"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	runStream(t, s, func(context.Context, domain.HistoryEntry) error {
		return errors.New("constraint violation")
	})

	deadline := time.Now().Add(5 * time.Second)
	for {
		msgs, err := s.client.XRange(ctx, s.deadLetterStream(), "-", "+").Result()
		if err != nil {
			t.Fatalf("xrange: %v", err)
		}
		if len(msgs) == 1 {
			entry, attempt, err := decodeEntry(msgs[0].Values)
			if err != nil || entry.ID != "h1" || attempt != 2 {
				t.Fatalf("dead letter = %+v attempt=%d err=%v", entry, attempt, err)
			}
			if msgs[0].Values["error"] != "constraint violation" {
				t.Fatalf("dead letter error = %v", msgs[0].Values["error"])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("entry never dead-lettered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSettleFailureKeepsMessagePending(t *testing.T) {
	s := newTestStream(t, HistoryStreamConfig{Group: "g", Consumer: "c1"})
	ctx := context.Background()
	if err := s.ensureGroup(ctx); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	entry := domain.HistoryEntry{ID: "h1", UserID: "u1", Text: "Psalm 23", CreatedAt: time.Now().UTC()}
	if err := s.RecordQuery(ctx, entry); err != nil {
		t.Fatalf("record: %v", err)
	}
	batch, err := s.next(ctx, "c1")
	if err != nil || len(batch) != 1 {
		t.Fatalf("next = %d messages, err %v", len(batch), err)
	}
	values, err := encodeEntry(entry, 1)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if err := s.settle(canceled, batch[0].ID, s.cfg.Stream, values); err == nil {
		t.Fatal("expected settle to fail on canceled context")
	}
	pending, err := s.client.XPending(ctx, s.cfg.Stream, s.cfg.Group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 1 {
		t.Fatalf("pending = %d, want original message kept", pending.Count)
	}

	if err := s.settle(ctx, batch[0].ID, s.cfg.Stream, values); err != nil {
		t.Fatalf("settle: %v", err)
	}
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.cfg.Group,
		Consumer: "c2",
		Streams:  []string{s.cfg.Stream, ">"},
		Count:    1,
		Block:    -1,
	}).Result()
	if err != nil || len(streams) != 1 || len(streams[0].Messages) != 1 {
		t.Fatalf("requeued read = %+v err=%v", streams, err)
	}
	got, attempt, err := decodeEntry(streams[0].Messages[0].Values)
	if err != nil || got.ID != "h1" || attempt != 1 {
		t.Fatalf("requeued = %+v attempt=%d err=%v", got, attempt, err)
	}
}

func TestDecodeEntryRejectsMalformed(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
	}{
		{"missing payload", map[string]any{"attempt": "0"}},
		{"not json", map[string]any{"entry": "{", "attempt": "0"}},
		{"anonymous", map[string]any{"entry": `{"id":"h1","text":"x"}`}},
	}
	for _, tc := range tests {
		if _, _, err := decodeEntry(tc.values); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{4, 8 * time.Second},
		{10, maxBackoff},
	}
	for _, tc := range tests {
		if got := backoff(time.Second, tc.attempt); got != tc.want {
			t.Fatalf("backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestRecordQueryRejectsAnonymousEntries(t *testing.T) {
	s := newTestStream(t, HistoryStreamConfig{})
	if err := s.RecordQuery(context.Background(), domain.HistoryEntry{Text: "x"}); err == nil {
		t.Fatal("expected error for missing user id")
	}
}

func TestNewHistoryStreamValidates(t *testing.T) {
	if _, err := NewHistoryStream(HistoryStreamConfig{Stream: "s"}); err == nil {
		t.Fatal("expected addr error")
	}
	if _, err := NewHistoryStream(HistoryStreamConfig{Addr: "localhost:6379"}); err == nil {
		t.Fatal("expected stream error")
	}
}
