package util

import (
	"regexp"
	"testing"
	"time"
)

func TestNewSessionIDShape(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	pattern := regexp.MustCompile(`^session_1700000000123_[0-9a-z]{7}$`)
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		id := NewSessionID(now)
		if !pattern.MatchString(id) {
			t.Fatalf("unexpected session id %q", id)
		}
		seen[id] = struct{}{}
	}
	if len(seen) < 45 {
		t.Fatalf("session ids should be random, got %d distinct of 50", len(seen))
	}
}

func TestNewIDIsHex(t *testing.T) {
	if id := NewID(); !regexp.MustCompile(`^[0-9a-f]{24}$`).MatchString(id) {
		t.Fatalf("unexpected id %q", id)
	}
}
