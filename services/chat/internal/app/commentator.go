package app

import (
	"fmt"
	"strings"
)

// DefaultCommentators is the roster used when none is configured.
var DefaultCommentators = []string{
	"Charles Spurgeon",
	"Martin Luther King Jr.",
	"C.S. Lewis",
	"Sam Shamoun",
}

// Outcome of resolving a commentator name.
type Outcome string

const (
	OutcomeMatched  Outcome = "matched"
	OutcomeRejected Outcome = "rejected"
	OutcomeAbsent   Outcome = "absent"
)

// Roster is the immutable allow-list of commentator display names.
type Roster struct {
	names []string
}

// NewRoster trims names and drops blanks and case-insensitive duplicates,
// keeping the first spelling.
func NewRoster(names []string) Roster {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	return Roster{names: out}
}

// Names returns the roster in order.
func (r Roster) Names() []string {
	return append([]string(nil), r.names...)
}

// Resolve matches raw against the roster after trimming, ignoring case.
func (r Roster) Resolve(raw string) Resolution {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Resolution{Outcome: OutcomeAbsent}
	}
	for _, name := range r.names {
		if strings.EqualFold(name, raw) {
			return Resolution{Outcome: OutcomeMatched, Name: name, Raw: raw}
		}
	}
	return Resolution{Outcome: OutcomeRejected, Raw: raw}
}

// Resolution is the result of Roster.Resolve. Name is set only when matched.
type Resolution struct {
	Outcome Outcome
	Name    string
	Raw     string
}

// Advisory is the status line shown while commentary is generated.
func (r Resolution) Advisory() string {
	switch r.Outcome {
	case OutcomeMatched:
		return fmt.Sprintf("Generating commentary in the style of %s...", r.Name)
	case OutcomeRejected:
		return fmt.Sprintf("\"%s\" is not an allowed theologian. Generating a general theological commentary instead.", r.Raw)
	default:
		return "Generating general theological commentary..."
	}
}
