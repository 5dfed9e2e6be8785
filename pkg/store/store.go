package store

import (
	"context"
	"errors"

	"scripturechat/pkg/domain"
)

var (
	// ErrMissingSession is returned when a message is appended without a session id.
	ErrMissingSession = errors.New("message has no session id")
	// ErrDuplicateMessage is returned when a message id is already stored.
	ErrDuplicateMessage = errors.New("message id already exists")
)

// Store defines persistence operations for sessions, transcripts, and the
// search-history log.
type Store interface {
	// sessions
	CreateSession(ctx context.Context, session domain.Session) error
	GetSession(ctx context.Context, id string) (domain.Session, bool, error)

	// transcripts
	// AppendMessage assigns Seq and CreatedAt and returns the stored message.
	// Message ids are unique across all sessions; a reused id yields
	// ErrDuplicateMessage.
	AppendMessage(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error)
	// ListMessages returns a session transcript ordered by (CreatedAt, Seq).
	ListMessages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error)

	// history
	AppendHistory(ctx context.Context, entry domain.HistoryEntry) error
	ListHistory(ctx context.Context, userID string, limit int) ([]domain.HistoryEntry, error)
	DeleteHistory(ctx context.Context, userID, id string) (bool, error)
}

// CurrentSessionStore tracks which session each user is currently writing to.
type CurrentSessionStore interface {
	CurrentSession(ctx context.Context, userID string) (string, bool, error)
	SetCurrentSession(ctx context.Context, userID, sessionID string) error
}

const defaultHistoryLimit = 50

func historyLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	return limit
}
