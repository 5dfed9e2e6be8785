package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"scripturechat/pkg/ai"
	"scripturechat/pkg/domain"
)

const (
	// StatusThinking is published while a conversational reply is generated.
	StatusThinking = "Thinking..."

	fallbackNoContent = "Sorry, I couldn't process that."
)

type fallbackGenerator struct {
	gen     ai.ChatGenerator
	timeout time.Duration
}

// Generate never fails: upstream problems come back as readable text.
func (f fallbackGenerator) Generate(ctx context.Context, history []domain.ChatMessage, message string) string {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	text, err := f.gen.GenerateChat(ctx, "", BuildContext(history, message))
	switch {
	case errors.Is(err, ai.ErrEmptyResponse):
		return fallbackNoContent
	case err != nil:
		slog.Warn("conversational generation failed", "err", err)
		return "There was an error connecting to the AI service: " + err.Error()
	case strings.TrimSpace(text) == "":
		return fallbackNoContent
	}
	return text
}
