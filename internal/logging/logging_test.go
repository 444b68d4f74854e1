package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"cloudpico-station/internal/config"
)

func TestNewLogger_JSONInRelease(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{AppEnv: "prod", LogLevel: slog.LevelInfo, StationID: "roof"}
	logger := newLogger(&buf, cfg, "1.2.0", "station")

	logger.Debug("hidden")
	logger.Info("started", "interval", "1s")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	want := map[string]string{
		"msg": "started", "app": "station", "station": "roof",
		"version": "1.2.0", "env": "prod", "interval": "1s",
	}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("%s = %v, want %q", k, rec[k], v)
		}
	}
}

func TestNewLogger_TextInDev(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{AppEnv: "dev", LogLevel: slog.LevelDebug, StationID: "roof"}
	newLogger(&buf, cfg, "dev", "station").Debug("sampled")

	out := buf.String()
	if !strings.Contains(out, "sampled") || !strings.Contains(out, "roof") {
		t.Errorf("unexpected dev output %q", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("dev output looks like JSON: %q", out)
	}
}
