package ai

import (
	"context"
	"errors"
)

// Conversation roles, named after the Gemini wire format.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// ErrEmptyResponse is returned when the provider answered successfully but
// without any usable text.
var ErrEmptyResponse = errors.New("empty response from model")

// Turn is one role-tagged entry of a multi-turn context.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// TextGenerator generates text from a system prompt and user prompt.
// All LLM providers (Gemini, GenAI SDK, Ollama, OpenAI-compatible) implement this interface.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ChatGenerator continues an ordered, role-tagged conversation.
type ChatGenerator interface {
	GenerateChat(ctx context.Context, systemPrompt string, turns []Turn) (string, error)
}

// Generator is implemented by every provider in this package.
type Generator interface {
	TextGenerator
	ChatGenerator
}
