package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"scripturechat/pkg/bible"
	"scripturechat/pkg/domain"
)

// renderMessage writes one transcript entry as plain text.
func renderMessage(w io.Writer, m domain.ChatMessage) {
	if m.IsUser() {
		fmt.Fprintf(w, "> %s\n", m.Text)
		return
	}
	if m.Failed() {
		fmt.Fprintf(w, "Error: %s\n", *m.Error)
		return
	}
	for _, r := range m.Results {
		fmt.Fprintf(w, "%s\n  %s\n", r.Reference, strings.TrimSpace(bible.StripMarkup(r.Content)))
	}
	if m.Commentary != "" {
		fmt.Fprintf(w, "Commentary: %s\n", m.Commentary)
	}
	if m.Text != "" {
		fmt.Fprintln(w, m.Text)
	}
}

func renderTranscript(w io.Writer, msgs []domain.ChatMessage, status string) {
	for _, m := range msgs {
		renderMessage(w, m)
	}
	if status != "" {
		fmt.Fprintf(w, "... %s\n", status)
	}
}

func renderHistory(w io.Writer, entries []domain.HistoryEntry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tQUERY")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.ID, e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Text)
	}
	return tw.Flush()
}

func renderHits(w io.Writer, hits []domain.VerseHit) {
	if len(hits) == 0 {
		fmt.Fprintln(w, "No verses found.")
		return
	}
	for _, h := range hits {
		fmt.Fprintf(w, "%s  %s\n", h.Reference, h.Text)
	}
}
