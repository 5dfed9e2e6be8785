package chatclient

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"scripturechat/pkg/domain"
)

func waitFor(t *testing.T, conv *Conversation, cond func([]domain.ChatMessage) bool) []domain.ChatMessage {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		msgs := conv.Messages()
		if cond(msgs) {
			return msgs
		}
		select {
		case <-conv.Changed():
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatalf("condition not met, messages = %+v", msgs)
		}
	}
}

func TestConversationReconcilesPendingTurn(t *testing.T) {
	_, srv := newFakeChat(t)
	conv := NewConversation(NewClient(srv.URL, WithUserID("u1")))
	defer conv.Close()
	ctx := context.Background()

	session, err := conv.Start(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if session.ID != "s1" || conv.SessionID() != "s1" {
		t.Fatalf("session = %+v, bound = %q", session, conv.SessionID())
	}

	out, err := conv.Send(ctx, "What is faith?")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	msgs := waitFor(t, conv, func(msgs []domain.ChatMessage) bool {
		return len(msgs) == 2 && msgs[1].IsBot()
	})
	if msgs[0].ID != out.UserTurn.ID || !msgs[0].IsUser() {
		t.Fatalf("user turn = %+v, want id %q", msgs[0], out.UserTurn.ID)
	}
	if msgs[1].Text != "Faith is trust in God." {
		t.Fatalf("bot turn = %+v", msgs[1])
	}
}

func TestConversationNewSessionResetsView(t *testing.T) {
	_, srv := newFakeChat(t)
	conv := NewConversation(NewClient(srv.URL, WithUserID("u1")))
	defer conv.Close()
	ctx := context.Background()

	if _, err := conv.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := conv.Send(ctx, "What is faith?"); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitFor(t, conv, func(msgs []domain.ChatMessage) bool { return len(msgs) == 2 })

	session, err := conv.NewSession(ctx)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if session.ID == "s1" || conv.SessionID() != session.ID {
		t.Fatalf("session = %+v, bound = %q", session, conv.SessionID())
	}
	if msgs := conv.Messages(); len(msgs) != 0 {
		t.Fatalf("messages after reset = %+v", msgs)
	}
	if conv.Status() != "" {
		t.Fatalf("status after reset = %q", conv.Status())
	}
}

func TestConversationFailedSendWithdrawsPendingTurn(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"forbidden", http.StatusForbidden},
		{"server error", http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fake, srv := newFakeChat(t)
			conv := NewConversation(NewClient(srv.URL, WithUserID("u1")))
			defer conv.Close()
			ctx := context.Background()
			if _, err := conv.Start(ctx); err != nil {
				t.Fatalf("start: %v", err)
			}
			fake.mu.Lock()
			fake.sendStatus = tc.status
			fake.mu.Unlock()

			_, err := conv.Send(ctx, "What is faith?")
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.Status != tc.status {
				t.Fatalf("err = %v, want status %d", err, tc.status)
			}
			if msgs := conv.Messages(); len(msgs) != 0 {
				t.Fatalf("messages after failed send = %+v", msgs)
			}

			fake.mu.Lock()
			fake.sendStatus = 0
			fake.mu.Unlock()
			if _, err := conv.Send(ctx, "What is grace?"); err != nil {
				t.Fatalf("retry send: %v", err)
			}
			msgs := waitFor(t, conv, func(msgs []domain.ChatMessage) bool { return len(msgs) == 2 && msgs[1].IsBot() })
			if msgs[0].Text != "What is grace?" {
				t.Fatalf("user turn = %+v", msgs[0])
			}
		})
	}
}
