// Package transcript provides the read side of a chat session: a live
// subscription that yields ordered snapshots, and a client view that merges
// those snapshots with provisional local entries.
package transcript

import (
	"context"
	"fmt"
	"log/slog"

	"scripturechat/pkg/domain"
	"scripturechat/pkg/feed"
)

// UpdateKind tags an Update.
type UpdateKind string

const (
	UpdateSnapshot UpdateKind = "snapshot"
	UpdateStatus   UpdateKind = "status"
)

// Update is one item of a watch stream. Snapshots carry the full ordered
// transcript; status updates carry the transient status line.
type Update struct {
	Kind      UpdateKind           `json:"kind"`
	SessionID string               `json:"sessionId"`
	Messages  []domain.ChatMessage `json:"messages,omitempty"`
	Status    string               `json:"status,omitempty"`
}

// Lister reads a session transcript in order.
type Lister interface {
	ListMessages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error)
}

// Watch subscribes to the session feed, emits the current transcript, then a
// fresh snapshot after every append. Identical consecutive snapshots are
// suppressed. The channel closes when ctx is done.
func Watch(ctx context.Context, lister Lister, broker feed.Broker, sessionID string) (<-chan Update, error) {
	events, err := broker.Subscribe(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	initial, err := lister.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list transcript: %w", err)
	}

	out := make(chan Update, 16)
	go func() {
		defer close(out)
		last := initial
		if !send(ctx, out, Update{Kind: UpdateSnapshot, SessionID: sessionID, Messages: initial}) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				switch ev.Type {
				case feed.EventStatus:
					if !send(ctx, out, Update{Kind: UpdateStatus, SessionID: sessionID, Status: ev.Status}) {
						return
					}
				case feed.EventAppended:
					msgs, err := lister.ListMessages(ctx, sessionID)
					if err != nil {
						if ctx.Err() != nil {
							return
						}
						slog.Warn("transcript refresh failed", "session_id", sessionID, "err", err)
						continue
					}
					if sameSnapshot(last, msgs) {
						continue
					}
					last = msgs
					if !send(ctx, out, Update{Kind: UpdateSnapshot, SessionID: sessionID, Messages: msgs}) {
						return
					}
				}
			}
		}
	}()
	return out, nil
}

func send(ctx context.Context, out chan<- Update, u Update) bool {
	select {
	case out <- u:
		return true
	case <-ctx.Done():
		return false
	}
}

func sameSnapshot(a, b []domain.ChatMessage) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Seq != b[i].Seq {
			return false
		}
	}
	return true
}
