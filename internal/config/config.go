// Package config implements the L0 config store: layered defaults plus user
// overrides deep-merged, atomic write-back, and change-event subscribers.
package config

import (
	"sync"

	"github.com/haasonsaas/sentineld/pkg/model"
)

// ProviderConfig names a concrete provider+model bound to a role.
type ProviderConfig struct {
	Kind          string `yaml:"kind"` // "anthropic" | "openai"
	Model         string `yaml:"model"`
	CredentialKey string `yaml:"credential_key"`
	BaseURL       string `yaml:"base_url,omitempty"`
}

// LLMConfig maps logical roles to providers (spec §4.1's role→provider registry).
type LLMConfig struct {
	Roles map[string]ProviderConfig `yaml:"roles"`
}

// SessionConfig governs the session engine's defaults (spec §4.3).
type SessionConfig struct {
	MaxToolRounds            int     `yaml:"max_tool_rounds"`
	MaxMessagesBeforeCompact int     `yaml:"max_messages_before_compact"`
	KeepRecentMessages       int     `yaml:"keep_recent_messages"`
	DailyLimitUsd            float64 `yaml:"daily_limit_usd"`
	WarnThresholdUsd         float64 `yaml:"warn_threshold_usd"`
}

// HeartbeatConfig governs the heartbeat pipeline (spec §4.7, §4.10).
type HeartbeatConfig struct {
	IntervalSeconds   int    `yaml:"interval_seconds"`
	InboxDir          string `yaml:"inbox_dir"`
	IdleHourStart     int    `yaml:"idle_hour_start"`
	IdleHourEnd       int    `yaml:"idle_hour_end"`
	IdleAfterMinutes  int    `yaml:"idle_after_minutes"`
	GitHubCLIPath     string `yaml:"github_cli_path"`
}

// CronJobConfig is one configured cron job entry.
type CronJobConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"`
	Prompt   string `yaml:"prompt"`
	Enabled  bool   `yaml:"enabled"`
	Timezone string `yaml:"timezone,omitempty"`
	WakeMode string `yaml:"wake_mode,omitempty"`
	Role     string `yaml:"role,omitempty"`
}

// CronConfig governs the cron scheduler (spec §4.8).
type CronConfig struct {
	Jobs []CronJobConfig `yaml:"jobs"`
}

// ChannelConfig is one configured channel poller.
type ChannelConfig struct {
	Kind      string   `yaml:"kind"` // "telegram" | "slack"
	Token     string   `yaml:"token"`
	AppToken  string   `yaml:"app_token,omitempty"` // slack Socket Mode app-level token
	Allowlist []string `yaml:"allowlist"`
}

// ServerConfig governs the HTTP panel bind address (spec §4.10 step 3, loopback-only).
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// PanelPassphrase, when set, requires POST /api/login before any other
	// route responds; empty leaves the loopback panel unauthenticated (its
	// default, pre-existing posture).
	PanelPassphrase string `yaml:"panel_passphrase,omitempty"`
}

// WorkspaceConfig names the per-user data directory (spec §6 persisted state layout).
type WorkspaceConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig governs the ambient logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config aggregates every sub-config, decoded via strict YAML/JSON5.
type Config struct {
	Server    ServerConfig      `yaml:"server"`
	Workspace WorkspaceConfig   `yaml:"workspace"`
	LLM       LLMConfig         `yaml:"llm"`
	Session   SessionConfig     `yaml:"session"`
	Heartbeat HeartbeatConfig   `yaml:"heartbeat"`
	Cron      CronConfig        `yaml:"cron"`
	Channels  []ChannelConfig   `yaml:"channels"`
	Logging   LoggingConfig     `yaml:"logging"`
}

// Default returns the built-in baseline config, merged under any user overrides.
func Default() Config {
	return Config{
		Server:    ServerConfig{Host: "127.0.0.1", Port: 8787},
		Workspace: WorkspaceConfig{Path: ".sentineld"},
		LLM: LLMConfig{Roles: map[string]ProviderConfig{
			string(model.RoleDefault): {Kind: "anthropic", Model: "claude-sonnet-4-20250514", CredentialKey: "anthropic"},
			string(model.RoleQuick):   {Kind: "anthropic", Model: "claude-3-5-haiku-20241022", CredentialKey: "anthropic"},
			string(model.RoleRouter):  {Kind: "anthropic", Model: "claude-3-5-haiku-20241022", CredentialKey: "anthropic"},
		}},
		Session: SessionConfig{
			MaxToolRounds:            model.DefaultMaxToolRounds,
			MaxMessagesBeforeCompact: 30,
			KeepRecentMessages:       10,
			DailyLimitUsd:            10.0,
			WarnThresholdUsd:         8.0,
		},
		Heartbeat: HeartbeatConfig{
			IntervalSeconds:  15 * 60,
			InboxDir:         "inbox",
			IdleHourStart:    9,
			IdleHourEnd:      21,
			IdleAfterMinutes: 120,
			GitHubCLIPath:    "gh",
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Store holds the live config and notifies subscribers on change (spec §2 L0 Config store).
type Store struct {
	mu   sync.RWMutex
	cfg  Config
	subs []chan Config
}

// NewStore wraps an initial config value.
func NewStore(cfg Config) *Store {
	return &Store{cfg: cfg}
}

// Get returns the current config snapshot.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Set replaces the live config and notifies subscribers (spec §5 "Config: write-through").
func (s *Store) Set(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	subs := append([]chan Config(nil), s.subs...)
	s.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- cfg:
		default:
		}
	}
}

// Subscribe returns a channel that receives every future Set call's config.
func (s *Store) Subscribe() <-chan Config {
	ch := make(chan Config, 1)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}
