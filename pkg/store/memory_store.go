package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"scripturechat/pkg/domain"
)

// MemoryStore keeps sessions, transcripts and history in process memory.
// It also implements CurrentSessionStore.
type MemoryStore struct {
	mu       sync.RWMutex
	seq      int64
	sessions map[string]domain.Session
	messages map[string][]domain.ChatMessage // sessionID -> transcript
	ids      map[string]struct{}
	history  map[string][]domain.HistoryEntry
	current  map[string]string // userID -> sessionID
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]domain.Session),
		messages: make(map[string][]domain.ChatMessage),
		ids:      make(map[string]struct{}),
		history:  make(map[string][]domain.HistoryEntry),
		current:  make(map[string]string),
	}
}

func (s *MemoryStore) CreateSession(ctx context.Context, session domain.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetSession(ctx context.Context, id string) (domain.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok, nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	if strings.TrimSpace(msg.SessionID) == "" {
		return domain.ChatMessage{}, ErrMissingSession
	}
	if err := ctx.Err(); err != nil {
		return domain.ChatMessage{}, err
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.IsBot() && msg.Results == nil {
		msg.Results = []domain.ScriptureResult{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.ids[msg.ID]; dup {
		return domain.ChatMessage{}, fmt.Errorf("%w: %s", ErrDuplicateMessage, msg.ID)
	}
	s.ids[msg.ID] = struct{}{}
	s.seq++
	msg.Seq = s.seq
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], msg)
	return msg, nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	s.mu.RLock()
	msgs := make([]domain.ChatMessage, len(s.messages[sessionID]))
	copy(msgs, s.messages[sessionID])
	s.mu.RUnlock()
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].Seq < msgs[j].Seq
	})
	return msgs, nil
}

func (s *MemoryStore) AppendHistory(ctx context.Context, entry domain.HistoryEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.history[entry.UserID] = append(s.history[entry.UserID], entry)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListHistory(ctx context.Context, userID string, limit int) ([]domain.HistoryEntry, error) {
	s.mu.RLock()
	entries := s.history[userID]
	out := make([]domain.HistoryEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit = historyLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) DeleteHistory(ctx context.Context, userID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.history[userID]
	for i, entry := range entries {
		if entry.ID == id {
			s.history[userID] = append(entries[:i:i], entries[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) CurrentSession(ctx context.Context, userID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.current[userID]
	return id, ok, nil
}

func (s *MemoryStore) SetCurrentSession(ctx context.Context, userID, sessionID string) error {
	s.mu.Lock()
	s.current[userID] = sessionID
	s.mu.Unlock()
	return nil
}
