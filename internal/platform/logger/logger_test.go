package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWritesJSONAboveLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn", "json")
	log.Info("dropped")
	log.Warn("kept", "prison_id", "MDI")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["msg"] != "kept" || entry["service"] != "locationcore" || entry["prison_id"] != "MDI" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestTextFormatAndLevels(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "debug", "TEXT").Debug("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Fatalf("expected text output, got %q", buf.String())
	}
	if ParseLevel("nonsense") != slog.LevelInfo || ParseLevel("ERROR") != slog.LevelError {
		t.Fatal("unexpected level mapping")
	}
}
