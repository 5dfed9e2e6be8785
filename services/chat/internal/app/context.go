package app

import (
	"strings"

	"scripturechat/pkg/ai"
	"scripturechat/pkg/bible"
	"scripturechat/pkg/domain"
)

// BuildContext turns a prior transcript plus the new message into the
// role-tagged context of a conversational request. Only the first scripture
// result of a bot turn is folded in; entries with no text are dropped.
func BuildContext(history []domain.ChatMessage, message string) []ai.Turn {
	turns := make([]ai.Turn, 0, len(history)+1)
	for _, msg := range history {
		var turn ai.Turn
		if msg.IsUser() {
			turn = ai.Turn{Role: ai.RoleUser, Text: msg.Text}
		} else {
			turn = ai.Turn{Role: ai.RoleModel, Text: botContextText(msg)}
		}
		if turn.Text == "" {
			continue
		}
		turns = append(turns, turn)
	}
	return append(turns, ai.Turn{Role: ai.RoleUser, Text: message})
}

func botContextText(msg domain.ChatMessage) string {
	var sb strings.Builder
	if len(msg.Results) > 0 {
		first := msg.Results[0]
		sb.WriteString(first.Reference)
		sb.WriteString("\n")
		sb.WriteString(bible.StripMarkup(first.Content))
		sb.WriteString("\n")
	}
	if msg.Commentary != "" {
		sb.WriteString("Commentary: ")
		sb.WriteString(msg.Commentary)
		sb.WriteString("\n")
	}
	sb.WriteString(msg.Text)
	return strings.TrimSpace(sb.String())
}
