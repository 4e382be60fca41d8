// Package config loads the single YAML configuration document read once at
// startup and threaded through every component's constructor.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Telegram holds the chat transport's connection settings.
type Telegram struct {
	BotToken   string `yaml:"bot_token"`
	UseWebhook bool   `yaml:"use_webhook"`
	WebhookURL string `yaml:"webhook_url"`
	ListenHost string `yaml:"listen_host"`
	ListenPort int    `yaml:"listen_port"`
}

// Tmux holds the terminal driver's fixed pane geometry.
type Tmux struct {
	Width      int `yaml:"width"`
	Height     int `yaml:"height"`
	Scrollback int `yaml:"scrollback"`
}

// Paths holds the durable-store file locations.
type Paths struct {
	StatePath          string `yaml:"state_path"`
	TagRegistryPath    string `yaml:"tag_registry_path"`
	PromptRulesPath    string `yaml:"prompt_rules_path"`
	WhitelistStatePath string `yaml:"whitelist_state_path"`
	AuditLogPath       string `yaml:"audit_log_path"`
	EditRootPath       string `yaml:"edit_root_path"`
}

// WhitelistKey is one admin-configured whitelist seed entry.
type WhitelistKey struct {
	UserID    int64  `yaml:"user_id"`
	AccessKey string `yaml:"access_key"`
	ServerIP  string `yaml:"server_ip,omitempty"`
	ExpiresAt string `yaml:"expires_at,omitempty"` // RFC3339, optional
	Admin     bool   `yaml:"admin,omitempty"`
}

// CommandPolicy holds the Command Policy's compile-time settings.
type CommandPolicy struct {
	MaxLength        int      `yaml:"max_length"`
	BlockedPatterns  []string `yaml:"blocked_patterns"`
	AllowedPatterns  []string `yaml:"allowed_patterns"`
	RequireAllowlist bool     `yaml:"require_allowlist"`
}

// Auth holds the Auth Manager's lockout settings.
type Auth struct {
	LockoutSeconds       int `yaml:"lockout_seconds"`
	MaxFailures          int `yaml:"max_failures"`
	FailureWindowSeconds int `yaml:"failure_window_seconds"`
}

// PromptRuleSpec is one configured rule, pre-compile.
type PromptRuleSpec struct {
	ID                string   `yaml:"id"`
	Type              string   `yaml:"type"` // "regex" | "keyword"
	Pattern           string   `yaml:"pattern,omitempty"`
	Keywords          []string `yaml:"keywords,omitempty"`
	CaseSensitive     bool     `yaml:"case_sensitive,omitempty"`
	IncrementalOutput bool     `yaml:"incremental_output"`
	Buttons           []struct {
		Label  string `yaml:"label"`
		Action string `yaml:"action"`
	} `yaml:"buttons,omitempty"`
}

// PromptRules is the top-level prompt-rule document (global enable switch
// plus the ordered rule list, loaded from Paths.PromptRulesPath).
type PromptRules struct {
	Enabled        bool             `yaml:"enabled"`
	DefaultSilence bool             `yaml:"default_silence"`
	Rules          []PromptRuleSpec `yaml:"rules"`
}

// Config is the whole recognized configuration surface.
type Config struct {
	Telegram      Telegram        `yaml:"telegram"`
	Tmux          Tmux            `yaml:"tmux"`
	Paths         Paths           `yaml:"paths"`
	WhitelistKeys []WhitelistKey  `yaml:"whitelist_keys"`
	CommandPolicy CommandPolicy   `yaml:"command_policy"`
	AuthConfig    Auth            `yaml:"auth"`
}

// Load parses the YAML file at path into a Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Tmux.Width == 0 {
		cfg.Tmux.Width = 120
	}
	if cfg.Tmux.Height == 0 {
		cfg.Tmux.Height = 36
	}
	if cfg.Tmux.Scrollback == 0 {
		cfg.Tmux.Scrollback = 2000
	}
	if cfg.AuthConfig.MaxFailures == 0 {
		cfg.AuthConfig.MaxFailures = 5
	}
	if cfg.AuthConfig.FailureWindowSeconds == 0 {
		cfg.AuthConfig.FailureWindowSeconds = 300
	}
	if cfg.AuthConfig.LockoutSeconds == 0 {
		cfg.AuthConfig.LockoutSeconds = 900
	}
	if cfg.CommandPolicy.MaxLength == 0 {
		cfg.CommandPolicy.MaxLength = 4096
	}
	if cfg.Paths.StatePath == "" {
		cfg.Paths.StatePath = "data/userstate.json"
	}
	if cfg.Paths.TagRegistryPath == "" {
		cfg.Paths.TagRegistryPath = "data/tags.json"
	}
	if cfg.Paths.PromptRulesPath == "" {
		cfg.Paths.PromptRulesPath = "data/prompt_rules.yaml"
	}
	if cfg.Paths.WhitelistStatePath == "" {
		cfg.Paths.WhitelistStatePath = "data/whitelist.json"
	}
	if cfg.Paths.AuditLogPath == "" {
		cfg.Paths.AuditLogPath = "data/audit.log"
	}
	if cfg.Paths.EditRootPath == "" {
		cfg.Paths.EditRootPath = "."
	}
}

// LoadPromptRules parses the separate prompt-rules document.
func LoadPromptRules(path string) (*PromptRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &PromptRules{Enabled: false}, nil
		}
		return nil, fmt.Errorf("config: read prompt rules: %w", err)
	}
	var rules PromptRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("config: parse prompt rules: %w", err)
	}
	return &rules, nil
}

// ParseExpiresAt parses an optional RFC3339 expiry, returning nil if empty.
func ParseExpiresAt(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("config: parse expires_at: %w", err)
	}
	return &t, nil
}
