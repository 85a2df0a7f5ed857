// Package config_test provides tests for configuration loading.
package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vectorquant/strategy-engine/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr() != "localhost:8080" {
		t.Errorf("addr = %s, want localhost:8080", cfg.Server.Addr())
	}
	if cfg.Monitor.PollInterval != 5*time.Second {
		t.Errorf("poll interval = %s, want 5s", cfg.Monitor.PollInterval)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level = %s, want info", cfg.Log.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	contents := []byte(`
server:
  host: 0.0.0.0
  port: 9000
monitor:
  poll_interval: 1s
log:
  level: debug
`)
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr() != "0.0.0.0:9000" {
		t.Errorf("addr = %s, want 0.0.0.0:9000", cfg.Server.Addr())
	}
	if cfg.Monitor.PollInterval != time.Second {
		t.Errorf("poll interval = %s, want 1s", cfg.Monitor.PollInterval)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %s, want debug", cfg.Log.Level)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	write := func(contents string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "engine.yaml")
		if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		return path
	}

	if _, err := config.Load(write("server:\n  port: 99999\n")); err == nil {
		t.Error("out-of-range port should be rejected")
	}
	if _, err := config.Load(write("log:\n  level: verbose\n")); err == nil {
		t.Error("unknown log level should be rejected")
	}
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing config file should be reported")
	}
}
