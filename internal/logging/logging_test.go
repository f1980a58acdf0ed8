package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSetupQuietWritesDailyFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := SetupQuiet("debug", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Debug("hello", "k", "v")

	path := filepath.Join(dir, "mapsmith-"+time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected log file: %v", err)
	}
	if !strings.Contains(string(data), "msg=hello k=v") {
		t.Errorf("expected log line, got %q", data)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("%q: expected %v, got %v", in, want, got)
		}
	}
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.Local)
	for _, name := range []string{
		"mapsmith-2026-01-01.log",
		"mapsmith-2026-03-30.log",
		"mapsmith-garbage.log",
		"other-2020-01-01.log",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := Prune(dir, 30, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 file removed, got %d", removed)
	}
	if _, err := os.Stat(filepath.Join(dir, "mapsmith-2026-01-01.log")); !os.IsNotExist(err) {
		t.Error("expected old log to be removed")
	}
	if _, err := os.Stat(filepath.Join(dir, "mapsmith-2026-03-30.log")); err != nil {
		t.Error("expected recent log to be kept")
	}

	if n, err := Prune(filepath.Join(dir, "missing"), 30, now); err != nil || n != 0 {
		t.Errorf("expected missing directory to be ignored, got %d %v", n, err)
	}
}
