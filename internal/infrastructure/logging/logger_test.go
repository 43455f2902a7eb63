package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/nerrad567/gray-twin/internal/infrastructure/config"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output %q is not one JSON entry: %v", buf.String(), err)
	}
	return entry
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"Warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseLevel(tt.in); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestComponent_DefaultAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "0.3.1", &buf)

	log.Component("gateway").Info("command queued", "provider", "sensor1")
	entry := decodeLine(t, &buf)

	want := map[string]string{
		"service":   "graytwin",
		"version":   "0.3.1",
		"component": "gateway",
		"msg":       "command queued",
		"provider":  "sensor1",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %q", k, entry[k], v)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(config.LoggingConfig{Level: "warn", Format: "json"}, "t", &buf)

	log.Info("dropped")
	log.Debug("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info/debug written at warn level: %q", buf.String())
	}

	log.Warn("kept")
	if entry := decodeLine(t, &buf); entry["msg"] != "kept" {
		t.Errorf("msg = %v", entry["msg"])
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(config.LoggingConfig{Level: "debug", Format: "TEXT"}, "1.2.3", &buf)

	log.Debug("pull failed", "provider", "meter")

	out := buf.String()
	for _, want := range []string{"level=DEBUG", "service=graytwin", "version=1.2.3", "provider=meter"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(config.LoggingConfig{Format: "json"}, "t", &buf)

	log.Info("connecting", "broker", "mqtt://hub", "mqtt_password", "hunter2", "Token", "abc")
	entry := decodeLine(t, &buf)

	if entry["mqtt_password"] != redacted || entry["Token"] != redacted {
		t.Errorf("secrets not redacted: %v", entry)
	}
	if entry["broker"] != "mqtt://hub" {
		t.Errorf("broker = %v, want untouched", entry["broker"])
	}
	if strings.Contains(buf.String(), "hunter2") {
		t.Error("password leaked into output")
	}
}

func TestWith_DoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewWithWriter(config.LoggingConfig{Format: "json"}, "t", &buf)
	_ = parent.With("session", "s-1")

	parent.Info("plain")
	if entry := decodeLine(t, &buf); entry["session"] != nil {
		t.Errorf("parent gained child attribute: %v", entry)
	}
}

func TestDefaultAndDiscard(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default() = nil")
	}
	// Must not panic or write anywhere.
	Discard().Component("x").Error("ignored", "k", "v")
}
