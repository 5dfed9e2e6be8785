package app

import "strings"

const commentatorMarker = " by "

// Splitter separates a message into a passage candidate and an optional
// commentator name.
type Splitter interface {
	Split(message string) (passage, commentator string)
}

// LastBySplitter splits on the last case-insensitive " by ". Topical
// passages that contain "by" themselves are split too.
type LastBySplitter struct{}

func (LastBySplitter) Split(message string) (string, string) {
	idx := lastMarker(message)
	if idx < 0 {
		return strings.TrimSpace(message), ""
	}
	return strings.TrimSpace(message[:idx]), strings.TrimSpace(message[idx+len(commentatorMarker):])
}

// KnownNameSplitter only splits when the tail names a rostered commentator.
type KnownNameSplitter struct {
	Roster Roster
}

func (s KnownNameSplitter) Split(message string) (string, string) {
	passage, commentator := LastBySplitter{}.Split(message)
	if commentator == "" {
		return passage, ""
	}
	if res := s.Roster.Resolve(commentator); res.Outcome != OutcomeMatched {
		return strings.TrimSpace(message), ""
	}
	return passage, commentator
}

// NewSplitter returns the splitter for a config mode.
func NewSplitter(mode string, roster Roster) Splitter {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "known-name":
		return KnownNameSplitter{Roster: roster}
	default:
		return LastBySplitter{}
	}
}

func lastMarker(message string) int {
	for i := len(message) - len(commentatorMarker); i >= 0; i-- {
		if strings.EqualFold(message[i:i+len(commentatorMarker)], commentatorMarker) {
			return i
		}
	}
	return -1
}
