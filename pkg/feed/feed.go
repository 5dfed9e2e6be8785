// Package feed carries per-session change notifications from the turn
// orchestrator to live transcript watchers.
package feed

import (
	"context"
	"errors"
)

// EventType tags a feed event.
type EventType string

const (
	// EventAppended means a message was written to the session transcript.
	EventAppended EventType = "appended"
	// EventStatus carries the transient status line of a running turn.
	// An empty Status clears it.
	EventStatus EventType = "status"
)

// ErrClosed is returned by a broker after Close.
var ErrClosed = errors.New("feed broker is closed")

// Event is one notification on a session feed.
type Event struct {
	SessionID string    `json:"sessionId"`
	Type      EventType `json:"type"`
	MessageID string    `json:"messageId,omitempty"`
	Status    string    `json:"status,omitempty"`
}

// Broker fans session events out to subscribers.
type Broker interface {
	Publish(ctx context.Context, event Event) error
	// Subscribe returns a channel of events for sessionID. The channel is
	// closed once ctx is done or the broker is closed.
	Subscribe(ctx context.Context, sessionID string) (<-chan Event, error)
	Close() error
}

// Appended builds an appended event.
func Appended(sessionID, messageID string) Event {
	return Event{SessionID: sessionID, Type: EventAppended, MessageID: messageID}
}

// Status builds a status event.
func Status(sessionID, status string) Event {
	return Event{SessionID: sessionID, Type: EventStatus, Status: status}
}
