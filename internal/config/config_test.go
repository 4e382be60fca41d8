package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ParsesRecognizedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlText := `
telegram:
  bot_token: "abc123"
tmux:
  width: 200
whitelist_keys:
  - user_id: 42
    access_key: "k"
command_policy:
  max_length: 500
  blocked_patterns: ["rm -rf /"]
auth:
  max_failures: 3
`
	if err := os.WriteFile(path, []byte(yamlText), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.BotToken != "abc123" {
		t.Fatalf("unexpected bot token: %q", cfg.Telegram.BotToken)
	}
	if cfg.Tmux.Width != 200 || cfg.Tmux.Height != 36 {
		t.Fatalf("unexpected tmux geometry: %+v", cfg.Tmux)
	}
	if len(cfg.WhitelistKeys) != 1 || cfg.WhitelistKeys[0].UserID != 42 {
		t.Fatalf("unexpected whitelist: %+v", cfg.WhitelistKeys)
	}
	if cfg.CommandPolicy.MaxLength != 500 {
		t.Fatalf("unexpected max_length: %d", cfg.CommandPolicy.MaxLength)
	}
	if cfg.AuthConfig.MaxFailures != 3 || cfg.AuthConfig.FailureWindowSeconds != 300 {
		t.Fatalf("unexpected auth defaults: %+v", cfg.AuthConfig)
	}
}

func TestLoadPromptRules_ToleratesMissingFile(t *testing.T) {
	rules, err := LoadPromptRules(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadPromptRules: %v", err)
	}
	if rules.Enabled {
		t.Fatalf("expected disabled default on missing file")
	}
}

func TestParseExpiresAt(t *testing.T) {
	ts, err := ParseExpiresAt("2026-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("ParseExpiresAt: %v", err)
	}
	if ts == nil || ts.Year() != 2026 {
		t.Fatalf("unexpected parse result: %+v", ts)
	}
	if ts2, err := ParseExpiresAt(""); err != nil || ts2 != nil {
		t.Fatalf("expected nil for empty string, got %v, %v", ts2, err)
	}
}
