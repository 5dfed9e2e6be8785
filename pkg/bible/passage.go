package bible

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"scripturechat/pkg/domain"
)

// Passage is a found reference with its ordered verses.
type Passage struct {
	Reference string         `json:"reference"`
	Verses    []domain.Verse `json:"verses"`
}

// VerseText joins the verse texts with single spaces for prompt building.
func (p Passage) VerseText() string {
	texts := make([]string, 0, len(p.Verses))
	for _, v := range p.Verses {
		texts = append(texts, strings.TrimSpace(v.Text))
	}
	return strings.Join(texts, " ")
}

// Result renders the passage for display. The reference doubles as the ID.
func (p Passage) Result() domain.ScriptureResult {
	return domain.ScriptureResult{
		ID:        p.Reference,
		Reference: p.Reference,
		Content:   FormatContent(p.Verses),
	}
}

// FormatContent renders each verse as a numbered paragraph.
func FormatContent(verses []domain.Verse) string {
	var sb strings.Builder
	for _, v := range verses {
		fmt.Fprintf(&sb, "<p><strong>%d</strong> %s</p>", v.Number, html.EscapeString(strings.TrimSpace(v.Text)))
	}
	return sb.String()
}

// StripMarkup returns the plain text of content produced by FormatContent.
// Tags and the <strong> verse-number labels are dropped; entities are decoded.
func StripMarkup(content string) string {
	z := html.NewTokenizer(strings.NewReader(content))
	var sb strings.Builder
	depth := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return sb.String()
		case html.StartTagToken:
			if name, _ := z.TagName(); string(name) == "strong" {
				depth++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "strong" && depth > 0 {
				depth--
			}
		case html.TextToken:
			if depth == 0 {
				sb.Write(z.Text())
			}
		}
	}
}
