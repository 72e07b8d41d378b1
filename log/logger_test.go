package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestLogger_RunContextFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(RunContext{RunID: "run-1", Target: "127.0.0.1:25566"}, &buf, zapcore.DebugLevel)

	l.Info("state transition", map[string]any{"from": "login", "to": "configuration"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if entry["run_id"] != "run-1" {
		t.Errorf("run_id = %v", entry["run_id"])
	}
	if entry["target"] != "127.0.0.1:25566" {
		t.Errorf("target = %v", entry["target"])
	}
	if entry["level"] != "info" || entry["message"] != "state transition" {
		t.Errorf("entry = %v", entry)
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["to"] != "configuration" {
		t.Errorf("fields = %v", entry["fields"])
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(RunContext{RunID: "run-2"}, &buf, zapcore.WarnLevel)

	l.Debug("hidden", nil)
	l.Info("hidden", nil)
	l.Warn("shown", nil)
	l.Sugar().Errorf("shown %d", 2)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %s", len(lines), buf.String())
	}
	if strings.Contains(buf.String(), `"target"`) {
		t.Error("empty target should be omitted")
	}
}

func TestParseLevel(t *testing.T) {
	if _, err := ParseLevel("warn"); err != nil {
		t.Errorf("ParseLevel(warn): %v", err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
