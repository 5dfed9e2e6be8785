package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"scripturechat/pkg/domain"
	"scripturechat/pkg/transcript"
)

// fakeChat is a minimal stand-in for the chat service.
type fakeChat struct {
	mu       sync.Mutex
	sessions int
	messages map[string][]domain.ChatMessage
	requests []*http.Request
	streams  map[string]chan transcript.Update
	done     chan struct{}
	// sendStatus, when set, fails every message post with that status.
	sendStatus int
}

func newFakeChat(t *testing.T) (*fakeChat, *httptest.Server) {
	t.Helper()
	f := &fakeChat{
		messages: map[string][]domain.ChatMessage{},
		streams:  map[string]chan transcript.Update{},
		done:     make(chan struct{}),
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(func() {
		close(f.done)
		srv.Close()
	})
	return f, srv
}

func (f *fakeChat) stream(sessionID string) chan transcript.Update {
	ch, ok := f.streams[sessionID]
	if !ok {
		ch = make(chan transcript.Update, 16)
		f.streams[sessionID] = ch
	}
	return ch
}

func (f *fakeChat) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.Clone(context.Background()))
	f.mu.Unlock()

	if r.Header.Get("X-User-Id") == "" && r.Header.Get("Authorization") == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	path := r.URL.Path
	switch {
	case path == "/sessions/current":
		writeJSON(w, http.StatusOK, domain.Session{ID: "s1", UserID: "u1"})
	case path == "/sessions" && r.Method == http.MethodPost:
		f.mu.Lock()
		f.sessions++
		id := "s" + string(rune('1'+f.sessions))
		f.mu.Unlock()
		writeJSON(w, http.StatusCreated, domain.Session{ID: id, UserID: "u1"})
	case path == "/sessions/forbidden/messages", path == "/sessions/forbidden/stream":
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "session belongs to another user"})
	case strings.HasSuffix(path, "/messages") && r.Method == http.MethodPost:
		f.send(w, r, strings.TrimSuffix(strings.TrimPrefix(path, "/sessions/"), "/messages"))
	case strings.HasSuffix(path, "/messages"):
		sessionID := strings.TrimSuffix(strings.TrimPrefix(path, "/sessions/"), "/messages")
		f.mu.Lock()
		msgs := append([]domain.ChatMessage(nil), f.messages[sessionID]...)
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"sessionId": sessionID, "messages": msgs})
	case strings.HasSuffix(path, "/stream"):
		f.serveStream(w, r, strings.TrimSuffix(strings.TrimPrefix(path, "/sessions/"), "/stream"))
	case path == "/history":
		writeJSON(w, http.StatusOK, map[string]any{"entries": []domain.HistoryEntry{{ID: "h1", UserID: "u1", Text: "John 3:16"}}})
	case strings.HasPrefix(path, "/history/"):
		if strings.TrimPrefix(path, "/history/") != "h1" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "history entry not found"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case path == "/search":
		writeJSON(w, http.StatusOK, map[string]any{"results": []domain.VerseHit{{Reference: "John 3:16", Text: "For God so loved the world"}}})
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

func (f *fakeChat) send(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	f.mu.Lock()
	status := f.sendStatus
	f.mu.Unlock()
	if status != 0 {
		writeJSON(w, status, map[string]string{"error": http.StatusText(status)})
		return
	}
	user := domain.NewUserTurn(sessionID, req.Message)
	if req.ID != "" {
		user.ID = req.ID
	}
	bot := domain.NewReplyTurn(sessionID, "Faith is trust in God.")

	f.mu.Lock()
	f.messages[sessionID] = append(f.messages[sessionID], user, bot)
	snapshot := append([]domain.ChatMessage(nil), f.messages[sessionID]...)
	ch := f.stream(sessionID)
	f.mu.Unlock()

	ch <- transcript.Update{Kind: transcript.UpdateStatus, SessionID: sessionID, Status: "Thinking..."}
	ch <- transcript.Update{Kind: transcript.UpdateSnapshot, SessionID: sessionID, Messages: snapshot}
	ch <- transcript.Update{Kind: transcript.UpdateStatus, SessionID: sessionID}
	writeJSON(w, http.StatusOK, TurnResult{SessionID: sessionID, UserTurn: user, BotTurn: bot, Route: "fallback"})
}

func (f *fakeChat) serveStream(w http.ResponseWriter, r *http.Request, sessionID string) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	f.mu.Lock()
	initial := append([]domain.ChatMessage(nil), f.messages[sessionID]...)
	ch := f.stream(sessionID)
	f.mu.Unlock()

	if err := conn.WriteJSON(transcript.Update{Kind: transcript.UpdateSnapshot, SessionID: sessionID, Messages: initial}); err != nil {
		return
	}
	for {
		select {
		case u := <-ch:
			if err := conn.WriteJSON(u); err != nil {
				return
			}
		case <-f.done:
			return
		}
	}
}

func (f *fakeChat) lastRequest() *http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func TestSendMessageCarriesIDAndToken(t *testing.T) {
	f, srv := newFakeChat(t)
	client := NewClient(srv.URL+"/", WithToken("tok"))

	out, err := client.SendMessage(context.Background(), "s1", "local-1", "What is faith?")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if out.UserTurn.ID != "local-1" || out.BotTurn.Text != "Faith is trust in God." || out.Route != "fallback" {
		t.Fatalf("result = %+v", out)
	}
	if out.BotTurn.Error != nil {
		t.Fatalf("bot error = %q", *out.BotTurn.Error)
	}
	if got := f.lastRequest().Header.Get("Authorization"); got != "Bearer tok" {
		t.Fatalf("authorization = %q", got)
	}
}

func TestClientReturnsAPIError(t *testing.T) {
	_, srv := newFakeChat(t)

	_, err := NewClient(srv.URL).CurrentSession(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized || apiErr.Message != "unauthorized" {
		t.Fatalf("err = %v, want 401 APIError", err)
	}

	client := NewClient(srv.URL, WithUserID("u1"))
	if _, err := client.ListMessages(context.Background(), "forbidden"); !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden {
		t.Fatalf("err = %v, want 403 APIError", err)
	}
	if err := client.DeleteHistory(context.Background(), "missing"); !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("err = %v, want 404 APIError", err)
	}
}

func TestHistoryAndSearch(t *testing.T) {
	f, srv := newFakeChat(t)
	client := NewClient(srv.URL, WithUserID("u1"))
	ctx := context.Background()

	entries, err := client.ListHistory(ctx, 5)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 1 || entries[0].Text != "John 3:16" {
		t.Fatalf("entries = %+v", entries)
	}
	if got := f.lastRequest().URL.Query().Get("limit"); got != "5" {
		t.Fatalf("limit = %q", got)
	}
	if err := client.DeleteHistory(ctx, "h1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	hits, err := client.Search(ctx, "loved the world")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].Reference != "John 3:16" {
		t.Fatalf("hits = %+v", hits)
	}
	if got := f.lastRequest().URL.Query().Get("q"); got != "loved the world" {
		t.Fatalf("q = %q", got)
	}
}

func TestWatchDeliversUpdates(t *testing.T) {
	_, srv := newFakeChat(t)
	client := NewClient(srv.URL, WithUserID("u1"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, err := client.Watch(ctx, "s1")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	select {
	case u := <-updates:
		if u.Kind != transcript.UpdateSnapshot || u.SessionID != "s1" || len(u.Messages) != 0 {
			t.Fatalf("first update = %+v", u)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	cancel()
	select {
	case _, ok := <-updates:
		if ok {
			for range updates {
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close after cancel")
	}
}

func TestWatchRejected(t *testing.T) {
	_, srv := newFakeChat(t)
	client := NewClient(srv.URL, WithUserID("u1"))

	_, err := client.Watch(context.Background(), "forbidden")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden {
		t.Fatalf("err = %v, want 403 APIError", err)
	}
}

func TestStreamURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"http://localhost:8080", "ws://localhost:8080/sessions/s1/stream"},
		{"https://chat.example.com/api", "wss://chat.example.com/api/sessions/s1/stream"},
	}
	for _, tc := range cases {
		got, err := NewClient(tc.base).streamURL("s1")
		if err != nil {
			t.Fatalf("streamURL(%q): %v", tc.base, err)
		}
		if got != tc.want {
			t.Fatalf("streamURL(%q) = %q, want %q", tc.base, got, tc.want)
		}
	}
}
