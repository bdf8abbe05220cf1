package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Backend.BaseURL != "http://localhost:7860" {
		t.Errorf("BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v", cfg.Backend.Timeout)
	}
	if !cfg.Backend.Discovery {
		t.Error("discovery should default on")
	}
	if cfg.Routing.LongFormThreshold != 500 {
		t.Errorf("LongFormThreshold = %d", cfg.Routing.LongFormThreshold)
	}
	if cfg.Session.Store != "memory" {
		t.Errorf("Session.Store = %q", cfg.Session.Store)
	}
	if cfg.Logger.Level != "info" {
		t.Errorf("Logger.Level = %q", cfg.Logger.Level)
	}
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.BaseURL != "http://localhost:7860" {
		t.Errorf("expected defaults, got %q", cfg.Backend.BaseURL)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
backend:
  base_url: "http://langflow:7860"
  api_key: "test-key"
  rate_limit: 2
targets:
  - key: research
    remote_id: "uuid-1"
    display_name: "Research"
    keywords: [paper, study]
routing:
  default_target: research
session:
  store: memory
logger:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.BaseURL != "http://langflow:7860" {
		t.Errorf("BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.RateLimit != 2 {
		t.Errorf("RateLimit = %v", cfg.Backend.RateLimit)
	}
	if len(cfg.Targets) != 1 || cfg.Targets[0].Key != "research" {
		t.Errorf("Targets = %+v", cfg.Targets)
	}
	if len(cfg.Targets[0].Keywords) != 2 {
		t.Errorf("Keywords = %v", cfg.Targets[0].Keywords)
	}
	if cfg.Routing.DefaultTarget != "research" {
		t.Errorf("DefaultTarget = %q", cfg.Routing.DefaultTarget)
	}
}

func TestLoadRejectsWorldReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("backend:\n  base_url: http://x\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected permission error for 0644 config")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FLOWRELAY_BACKEND_BASE_URL", "http://other:9999")
	t.Setenv("FLOWRELAY_BACKEND_TIMEOUT", "90s")
	t.Setenv("FLOWRELAY_BACKEND_RATE_LIMIT", "0.5")
	t.Setenv("FLOWRELAY_ROUTING_DEFAULT_TARGET", "docs")
	t.Setenv("FLOWRELAY_SESSION_TTL", "1h")
	t.Setenv("FLOWRELAY_LOGGER_LEVEL", "debug")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.Backend.BaseURL != "http://other:9999" {
		t.Errorf("BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout != 90*time.Second {
		t.Errorf("Timeout = %v", cfg.Backend.Timeout)
	}
	if cfg.Backend.RateLimit != 0.5 {
		t.Errorf("RateLimit = %v", cfg.Backend.RateLimit)
	}
	if cfg.Routing.DefaultTarget != "docs" {
		t.Errorf("DefaultTarget = %q", cfg.Routing.DefaultTarget)
	}
	if cfg.Session.TTL != time.Hour {
		t.Errorf("Session.TTL = %v", cfg.Session.TTL)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q", cfg.Logger.Level)
	}
}

func TestSlackTokenEnvEnablesChannel(t *testing.T) {
	t.Setenv("FLOWRELAY_SLACK_BOT_TOKEN", "xoxb-1")
	t.Setenv("FLOWRELAY_SLACK_APP_TOKEN", "xapp-1")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	if !cfg.Channels.Slack.Enabled {
		t.Error("slack channel not enabled by token env")
	}
}
