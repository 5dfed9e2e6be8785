package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"scripturechat/internal/util"
	"scripturechat/pkg/domain"
	"scripturechat/pkg/storage"
	"scripturechat/pkg/transcript"
)

// CurrentSession returns the user's active session, creating one on first use.
func (a *App) CurrentSession(ctx context.Context, userID string) (domain.Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Session{}, ErrUserRequired
	}
	id, ok, err := a.sessions.CurrentSession(ctx, userID)
	if err != nil {
		return domain.Session{}, fmt.Errorf("current session: %w", err)
	}
	if ok {
		session, found, err := a.store.GetSession(ctx, id)
		if err != nil {
			return domain.Session{}, err
		}
		if found && session.UserID == userID {
			return session, nil
		}
	}
	return a.startSession(ctx, userID)
}

// NewSession abandons the current transcript and starts a fresh one. The
// abandoned transcript is archived when an object store is configured.
func (a *App) NewSession(ctx context.Context, userID string) (domain.Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Session{}, ErrUserRequired
	}
	previous, hadPrevious, err := a.sessions.CurrentSession(ctx, userID)
	if err != nil {
		return domain.Session{}, fmt.Errorf("current session: %w", err)
	}
	session, err := a.startSession(ctx, userID)
	if err != nil {
		return domain.Session{}, err
	}
	if hadPrevious && a.archive != nil {
		if _, _, err := a.ArchiveSession(ctx, userID, previous); err != nil {
			slog.Warn("archive previous session failed", "user_id", userID, "session_id", previous, "err", err)
		}
	}
	return session, nil
}

func (a *App) startSession(ctx context.Context, userID string) (domain.Session, error) {
	now := a.now()
	session := domain.Session{ID: util.NewSessionID(now), UserID: userID, CreatedAt: now}
	if err := a.store.CreateSession(ctx, session); err != nil {
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	if err := a.sessions.SetCurrentSession(ctx, userID, session.ID); err != nil {
		return domain.Session{}, fmt.Errorf("set current session: %w", err)
	}
	slog.Info("session started", "user_id", userID, "session_id", session.ID)
	return session, nil
}

func (a *App) authorizeSession(ctx context.Context, userID, sessionID string) (domain.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.Session{}, ErrUserRequired
	}
	session, ok, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if !ok {
		return domain.Session{}, ErrSessionNotFound
	}
	if session.UserID != userID {
		return domain.Session{}, ErrSessionForbidden
	}
	return session, nil
}

// ListMessages returns the ordered transcript of a session owned by userID.
func (a *App) ListMessages(ctx context.Context, userID, sessionID string) ([]domain.ChatMessage, error) {
	if _, err := a.authorizeSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return a.store.ListMessages(ctx, sessionID)
}

// Watch streams transcript snapshots and status lines for a session until
// ctx is done.
func (a *App) Watch(ctx context.Context, userID, sessionID string) (<-chan transcript.Update, error) {
	if _, err := a.authorizeSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return transcript.Watch(ctx, a.store, a.feed, sessionID)
}

// ListHistory returns the user's most recent queries, newest first.
func (a *App) ListHistory(ctx context.Context, userID string, limit int) ([]domain.HistoryEntry, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUserRequired
	}
	return a.store.ListHistory(ctx, userID, limit)
}

// DeleteHistory removes one of the user's history entries.
func (a *App) DeleteHistory(ctx context.Context, userID, id string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrUserRequired
	}
	ok, err := a.store.DeleteHistory(ctx, userID, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrHistoryNotFound
	}
	return nil
}

// PersistHistory writes a queued history entry to the store.
func (a *App) PersistHistory(ctx context.Context, entry domain.HistoryEntry) error {
	return a.store.AppendHistory(ctx, entry)
}

// Search returns verse hits for a free-text query. Failures yield an empty
// slice.
func (a *App) Search(ctx context.Context, query string) []domain.VerseHit {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.VerseHit{}
	}
	ctx, cancel := context.WithTimeout(ctx, a.lookupTimeout)
	defer cancel()
	hits, err := a.searcher.Search(ctx, query)
	if err != nil {
		slog.Warn("verse search failed", "query", query, "err", err)
		return []domain.VerseHit{}
	}
	if hits == nil {
		hits = []domain.VerseHit{}
	}
	return hits
}

type archivedTranscript struct {
	Session  domain.Session       `json:"session"`
	Messages []domain.ChatMessage `json:"messages"`
}

// ArchiveSession uploads the session transcript as JSON and returns its object
// key with a presigned download URL.
func (a *App) ArchiveSession(ctx context.Context, userID, sessionID string) (string, string, error) {
	if a.archive == nil {
		return "", "", ErrArchiveDisabled
	}
	session, err := a.authorizeSession(ctx, userID, sessionID)
	if err != nil {
		return "", "", err
	}
	msgs, err := a.store.ListMessages(ctx, sessionID)
	if err != nil {
		return "", "", err
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	body, err := json.Marshal(archivedTranscript{Session: session, Messages: msgs})
	if err != nil {
		return "", "", fmt.Errorf("encode transcript: %w", err)
	}
	key := storage.TranscriptKey(userID, sessionID)
	if err := a.archive.PutTranscript(ctx, key, body); err != nil {
		return "", "", fmt.Errorf("upload transcript: %w", err)
	}
	url, err := a.archive.PresignGet(ctx, key, a.archiveURLExpiry)
	if err != nil {
		return key, "", fmt.Errorf("presign transcript: %w", err)
	}
	return key, url, nil
}
