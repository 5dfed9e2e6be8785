package app

import "testing"

func TestRosterResolve(t *testing.T) {
	roster := NewRoster(DefaultCommentators)
	cases := []struct {
		raw     string
		outcome Outcome
		name    string
	}{
		{"Charles Spurgeon", OutcomeMatched, "Charles Spurgeon"},
		{"charles spurgeon ", OutcomeMatched, "Charles Spurgeon"},
		{"  C.S. LEWIS", OutcomeMatched, "C.S. Lewis"},
		{"John Calvin", OutcomeRejected, ""},
		{"Spurgeon", OutcomeRejected, ""},
		{"", OutcomeAbsent, ""},
		{"   ", OutcomeAbsent, ""},
	}
	for _, tc := range cases {
		res := roster.Resolve(tc.raw)
		if res.Outcome != tc.outcome || res.Name != tc.name {
			t.Fatalf("Resolve(%q) = %+v, want outcome=%s name=%q", tc.raw, res, tc.outcome, tc.name)
		}
	}
}

func TestResolutionAdvisory(t *testing.T) {
	roster := NewRoster(DefaultCommentators)
	cases := map[string]string{
		"charles spurgeon": "Generating commentary in the style of Charles Spurgeon...",
		"John Calvin":      "\"John Calvin\" is not an allowed theologian. Generating a general theological commentary instead.",
		"":                 "Generating general theological commentary...",
	}
	for raw, want := range cases {
		if got := roster.Resolve(raw).Advisory(); got != want {
			t.Fatalf("Advisory(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestNewRosterTrimsAndDedups(t *testing.T) {
	roster := NewRoster([]string{" Charles Spurgeon ", "", "charles spurgeon", "C.S. Lewis"})
	names := roster.Names()
	if len(names) != 2 || names[0] != "Charles Spurgeon" || names[1] != "C.S. Lewis" {
		t.Fatalf("names = %v", names)
	}
	names[0] = "mutated"
	if roster.Names()[0] != "Charles Spurgeon" {
		t.Fatalf("Names should return a copy")
	}
}
