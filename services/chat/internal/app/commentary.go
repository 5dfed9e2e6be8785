package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"scripturechat/pkg/ai"
)

const commentaryNoContent = "No AI-generated commentary received or unexpected format."

// CommentaryPrompt builds the single-turn commentary request. The persona
// clause is added only for a matched commentator.
func CommentaryPrompt(verseText string, res Resolution) string {
	prompt := fmt.Sprintf("Provide a theological commentary on the following Bible verse: \"%s\"", verseText)
	if res.Outcome == OutcomeMatched {
		prompt += fmt.Sprintf("\n\nFocus on the perspective or style of theologian/pastor: %s.", res.Name)
	}
	return prompt
}

type commentaryGenerator struct {
	gen     ai.TextGenerator
	timeout time.Duration
}

// Generate never fails: upstream problems come back as readable text.
func (c commentaryGenerator) Generate(ctx context.Context, verseText string, res Resolution) string {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	text, err := c.gen.GenerateText(ctx, "", CommentaryPrompt(verseText, res))
	switch {
	case errors.Is(err, ai.ErrEmptyResponse):
		return commentaryNoContent
	case err != nil:
		slog.Warn("commentary generation failed", "err", err)
		return "Failed to generate commentary: " + err.Error()
	case strings.TrimSpace(text) == "":
		return commentaryNoContent
	}
	return text
}
