package app

import "testing"

func TestLastBySplitter(t *testing.T) {
	cases := []struct {
		in          string
		passage     string
		commentator string
	}{
		{"John 3:16", "John 3:16", ""},
		{"  John 3:16  ", "John 3:16", ""},
		{"Romans 8:28 by Charles Spurgeon", "Romans 8:28", "Charles Spurgeon"},
		{"Romans 8:28  BY   c.s. lewis ", "Romans 8:28", "c.s. lewis"},
		{"saved by grace by Sam Shamoun", "saved by grace", "Sam Shamoun"},
		{"the baby in the manger by night", "the baby in the manger", "night"},
		{"John 3:16 by ", "John 3:16", ""},
		{"Standby", "Standby", ""},
		{"", "", ""},
	}
	for _, tc := range cases {
		passage, commentator := LastBySplitter{}.Split(tc.in)
		if passage != tc.passage || commentator != tc.commentator {
			t.Fatalf("Split(%q) = (%q, %q), want (%q, %q)", tc.in, passage, commentator, tc.passage, tc.commentator)
		}
	}
}

func TestKnownNameSplitter(t *testing.T) {
	splitter := KnownNameSplitter{Roster: NewRoster(DefaultCommentators)}
	cases := []struct {
		in          string
		passage     string
		commentator string
	}{
		{"Romans 8:28 by charles spurgeon", "Romans 8:28", "charles spurgeon"},
		{"the baby in the manger by night", "the baby in the manger by night", ""},
		{"  Psalm 23  ", "Psalm 23", ""},
	}
	for _, tc := range cases {
		passage, commentator := splitter.Split(tc.in)
		if passage != tc.passage || commentator != tc.commentator {
			t.Fatalf("Split(%q) = (%q, %q), want (%q, %q)", tc.in, passage, commentator, tc.passage, tc.commentator)
		}
	}
}

func TestNewSplitterModes(t *testing.T) {
	roster := NewRoster(DefaultCommentators)
	if _, ok := NewSplitter("", roster).(LastBySplitter); !ok {
		t.Fatalf("default mode should be last-by")
	}
	if _, ok := NewSplitter(" Known-Name ", roster).(KnownNameSplitter); !ok {
		t.Fatalf("known-name mode not selected")
	}
}
