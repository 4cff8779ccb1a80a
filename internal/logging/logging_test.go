package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_DefaultsToJSONForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "", "info")

	logger.Info("relay ready", "port", "8080")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if record["msg"] != "relay ready" {
		t.Errorf("msg = %v, want relay ready", record["msg"])
	}
	if record["port"] != "8080" {
		t.Errorf("port = %v, want 8080", record["port"])
	}
}

func TestNew_PrettyFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, FormatPretty, "info")

	logger.Warn("upstream slow", "elapsed", "3s")

	out := buf.String()
	if !strings.Contains(out, "upstream slow") || !strings.Contains(out, "elapsed=3s") {
		t.Errorf("unexpected pretty output: %q", out)
	}
	if strings.Contains(out, "\033[") {
		t.Errorf("colors should be disabled when not writing to a terminal: %q", out)
	}
}

func TestNew_TextFormatRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, FormatText, "warn")

	logger.Info("hidden")
	logger.Error("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "msg=shown") {
		t.Errorf("expected error line in text format: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
