package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageKind tags the two variants of a transcript entry.
type MessageKind string

const (
	KindUser MessageKind = "user"
	KindBot  MessageKind = "bot"
)

// ScriptureResult is a looked-up passage ready for display.
// ID and Reference are equal by construction.
type ScriptureResult struct {
	ID        string `json:"id"`
	Reference string `json:"reference"`
	Content   string `json:"content"`
}

// ChatMessage is one transcript entry. A user turn only carries Text; a bot
// turn carries Results plus any of Text, Commentary and Error.
type ChatMessage struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"sessionId"`
	Kind       MessageKind       `json:"type"`
	Text       string            `json:"text,omitempty"`
	Results    []ScriptureResult `json:"results,omitempty"`
	Error      *string           `json:"error,omitempty"`
	Commentary string            `json:"commentary,omitempty"`
	Seq        int64             `json:"seq,omitempty"`
	CreatedAt  time.Time         `json:"timestamp"`
}

// IsUser reports whether the message is a user turn.
func (m ChatMessage) IsUser() bool { return m.Kind == KindUser }

// IsBot reports whether the message is a bot turn.
func (m ChatMessage) IsBot() bool { return m.Kind == KindBot }

// Failed reports whether a bot turn is degraded.
func (m ChatMessage) Failed() bool { return m.Error != nil && *m.Error != "" }

// MarshalJSON writes the variant-specific shape: user turns omit the bot
// fields, bot turns always carry results and an explicit error (null on success).
func (m ChatMessage) MarshalJSON() ([]byte, error) {
	if m.Kind == KindUser {
		return json.Marshal(struct {
			ID        string      `json:"id"`
			SessionID string      `json:"sessionId"`
			Kind      MessageKind `json:"type"`
			Text      string      `json:"text"`
			Seq       int64       `json:"seq,omitempty"`
			CreatedAt time.Time   `json:"timestamp"`
		}{m.ID, m.SessionID, m.Kind, m.Text, m.Seq, m.CreatedAt})
	}
	results := m.Results
	if results == nil {
		results = []ScriptureResult{}
	}
	return json.Marshal(struct {
		ID         string            `json:"id"`
		SessionID  string            `json:"sessionId"`
		Kind       MessageKind       `json:"type"`
		Results    []ScriptureResult `json:"results"`
		Text       string            `json:"text,omitempty"`
		Error      *string           `json:"error"`
		Commentary string            `json:"commentary,omitempty"`
		Seq        int64             `json:"seq,omitempty"`
		CreatedAt  time.Time         `json:"timestamp"`
	}{m.ID, m.SessionID, m.Kind, results, m.Text, m.Error, m.Commentary, m.Seq, m.CreatedAt})
}

// NewUserTurn builds a user turn with a fresh ID.
func NewUserTurn(sessionID, text string) ChatMessage {
	return ChatMessage{
		ID:        NewMessageID(),
		SessionID: sessionID,
		Kind:      KindUser,
		Text:      text,
	}
}

// NewScriptureTurn builds the bot turn for a found passage.
func NewScriptureTurn(sessionID string, result ScriptureResult, commentary string) ChatMessage {
	return ChatMessage{
		ID:         NewMessageID(),
		SessionID:  sessionID,
		Kind:       KindBot,
		Results:    []ScriptureResult{result},
		Commentary: commentary,
	}
}

// NewReplyTurn builds the bot turn for a conversational reply.
func NewReplyTurn(sessionID, text string) ChatMessage {
	return ChatMessage{
		ID:        NewMessageID(),
		SessionID: sessionID,
		Kind:      KindBot,
		Results:   []ScriptureResult{},
		Text:      text,
	}
}

// NewErrorTurn builds a failed bot turn. Error turns never carry results.
func NewErrorTurn(sessionID, errMsg string) ChatMessage {
	return ChatMessage{
		ID:        NewMessageID(),
		SessionID: sessionID,
		Kind:      KindBot,
		Results:   []ScriptureResult{},
		Error:     &errMsg,
	}
}

// NewMessageID returns a random message identifier.
func NewMessageID() string {
	return uuid.NewString()
}

// Session bounds one transcript.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// HistoryEntry records a raw query submitted by a user.
type HistoryEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"timestamp"`
}

// User identifies the caller of a request.
type User struct {
	ID string `json:"id"`
}

// Verse is a single numbered verse of a passage.
type Verse struct {
	Number int    `json:"verse"`
	Text   string `json:"text"`
}

// VerseHit is one verse returned by a search.
type VerseHit struct {
	Reference string `json:"reference"`
	Text      string `json:"text"`
}
