package util

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitLoggerWritesServiceFile(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	dir := filepath.Join(t.TempDir(), "logs")
	logger, cleanup := InitLogger("debug", "chat", "", dir)
	if cleanup == nil {
		t.Fatalf("expected cleanup when logs dir is set")
	}
	logger.Debug("hello", "k", "v")
	cleanup()

	data, err := os.ReadFile(filepath.Join(dir, "chat.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, `"msg":"hello"`) || !strings.Contains(line, `"service":"chat"`) {
		t.Fatalf("unexpected log line: %s", line)
	}
}

func TestInitLoggerWithoutDir(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	if _, cleanup := InitLogger("info", "chat"); cleanup != nil {
		t.Fatalf("expected nil cleanup without logs dir")
	}
}

func TestLoggerFromContext(t *testing.T) {
	if LoggerFromContext(context.Background()) != slog.Default() {
		t.Fatalf("expected default logger")
	}
	custom := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := ContextWithLogger(context.Background(), custom)
	if LoggerFromContext(ctx) != custom {
		t.Fatalf("expected stored logger")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
