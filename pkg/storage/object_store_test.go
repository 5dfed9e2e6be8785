package storage

import (
	"context"
	"testing"
)

func TestTranscriptKey(t *testing.T) {
	tests := []struct {
		user, session, want string
	}{
		{"u1", "session_1700000000000_abc1234", "transcripts/u1/session_1700000000000_abc1234.json"},
		{"a/b", "s 1", "transcripts/a%2Fb/s%201.json"},
	}
	for _, tc := range tests {
		if got := TranscriptKey(tc.user, tc.session); got != tc.want {
			t.Fatalf("TranscriptKey(%q, %q) = %q, want %q", tc.user, tc.session, got, tc.want)
		}
	}
}

func TestDownloadParams(t *testing.T) {
	params := downloadParams(TranscriptKey("u1", "s 1"))
	if got := params.Get("response-content-disposition"); got != `attachment; filename="s 1.json"` {
		t.Fatalf("content disposition = %q", got)
	}
	if got := params.Get("response-content-type"); got != "application/json" {
		t.Fatalf("content type = %q", got)
	}
}

func TestNewMinioArchiveRequiresBucket(t *testing.T) {
	if _, err := NewMinioArchive(context.Background(), MinioConfig{Endpoint: "127.0.0.1:9000"}); err == nil {
		t.Fatal("expected error without bucket")
	}
}
