// Package config loads and persists the gateway configuration: a JSON
// file under ~/.blendgate, BLENDGATE_* environment overrides on top, and
// the workspace directory layout every component shares.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Config is the full gateway configuration. Zero values for required
// numeric fields are replaced with defaults on load.
type Config struct {
	Workspace string          `json:"workspace,omitempty" env:"BLENDGATE_WORKSPACE"`
	Channels  ChannelsConfig  `json:"channels"`
	Execution ExecutionConfig `json:"execution"`
	Store     StoreConfig     `json:"store"`
	Archive   ArchiveConfig   `json:"archive"`
	Script    ScriptConfig    `json:"script"`
	Logging   LoggingConfig   `json:"logging"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// ChannelsConfig groups the three transport fronts.
type ChannelsConfig struct {
	HTTP      HTTPConfig      `json:"http"`
	WebSocket WebSocketConfig `json:"websocket"`
	FileWatch FileWatchConfig `json:"filewatch"`
}

type HTTPConfig struct {
	Enabled        bool     `json:"enabled" env:"BLENDGATE_HTTP_ENABLED"`
	Host           string   `json:"host,omitempty" env:"BLENDGATE_HTTP_HOST"`
	Port           int      `json:"port" env:"BLENDGATE_HTTP_PORT"`
	AllowedRemotes []string `json:"allowed_remotes,omitempty" env:"BLENDGATE_HTTP_ALLOWED" envSeparator:","`
}

type WebSocketConfig struct {
	Enabled bool   `json:"enabled" env:"BLENDGATE_WS_ENABLED"`
	Host    string `json:"host,omitempty" env:"BLENDGATE_WS_HOST"`
	Port    int    `json:"port" env:"BLENDGATE_WS_PORT"`
}

type FileWatchConfig struct {
	Enabled bool `json:"enabled" env:"BLENDGATE_WATCH_ENABLED"`
	// Dir overrides the default remote_commands directory under the
	// workspace.
	Dir            string `json:"dir,omitempty" env:"BLENDGATE_WATCH_DIR"`
	PollIntervalMS int    `json:"poll_interval_ms" env:"BLENDGATE_WATCH_POLL_MS"`
}

type ExecutionConfig struct {
	CommandTimeoutSec int `json:"command_timeout_sec" env:"BLENDGATE_COMMAND_TIMEOUT_SEC"`
	// Render and script runs get their own, longer budgets.
	RenderTimeoutSec  int  `json:"render_timeout_sec" env:"BLENDGATE_RENDER_TIMEOUT_SEC"`
	ScriptTimeoutSec  int  `json:"script_timeout_sec" env:"BLENDGATE_SCRIPT_TIMEOUT_SEC"`
	RollbackOnFailure bool `json:"rollback_on_failure" env:"BLENDGATE_ROLLBACK_ON_FAILURE"`
}

type StoreConfig struct {
	TTLMinutes int `json:"ttl_minutes" env:"BLENDGATE_STORE_TTL_MINUTES"`
	Capacity   int `json:"capacity" env:"BLENDGATE_STORE_CAPACITY"`
}

type ArchiveConfig struct {
	Enabled bool `json:"enabled" env:"BLENDGATE_ARCHIVE_ENABLED"`
	// Path overrides the default archive/batches.db under the workspace.
	Path string `json:"path,omitempty" env:"BLENDGATE_ARCHIVE_PATH"`
}

type ScriptConfig struct {
	AllowFull  bool `json:"allow_full" env:"BLENDGATE_ALLOW_FULL_SCRIPTS"`
	StepBudget int  `json:"step_budget" env:"BLENDGATE_SCRIPT_STEP_BUDGET"`
}

type LoggingConfig struct {
	Level string `json:"level" env:"BLENDGATE_LOG_LEVEL"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `json:"otlp_endpoint,omitempty" env:"BLENDGATE_OTLP_ENDPOINT"`
}

// DefaultConfig returns the configuration a fresh install runs with: all
// three channels on, localhost binds, one hour of batch history.
func DefaultConfig() *Config {
	return &Config{
		Channels: ChannelsConfig{
			HTTP: HTTPConfig{
				Enabled: true,
				Host:    "localhost",
				Port:    8080,
			},
			WebSocket: WebSocketConfig{
				Enabled: true,
				Host:    "localhost",
				Port:    8081,
			},
			FileWatch: FileWatchConfig{
				Enabled:        true,
				PollIntervalMS: 1000,
			},
		},
		Execution: ExecutionConfig{
			CommandTimeoutSec: 30,
			RenderTimeoutSec:  300,
			ScriptTimeoutSec:  60,
			RollbackOnFailure: false,
		},
		Store: StoreConfig{
			TTLMinutes: 60,
			Capacity:   256,
		},
		Archive: ArchiveConfig{
			Enabled: true,
		},
		Script: ScriptConfig{
			AllowFull:  false,
			StepBudget: 1_000_000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the config file location: BLENDGATE_CONFIG when set,
// otherwise ~/.blendgate/config.json.
func DefaultPath() string {
	if p := os.Getenv("BLENDGATE_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".blendgate", "config.json")
}

// LoadConfig reads the file at path, falling back to defaults when the
// file does not exist, then applies BLENDGATE_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Fresh install: defaults plus env.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env overrides: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

// SaveConfig writes the config atomically: temp file in the same
// directory, then rename.
func SaveConfig(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// normalize replaces unusable zero values with defaults so a sparse user
// file still yields a runnable config.
func (c *Config) normalize() {
	def := DefaultConfig()
	if c.Workspace == "" {
		c.Workspace = defaultWorkspace()
	}
	if c.Channels.HTTP.Port <= 0 {
		c.Channels.HTTP.Port = def.Channels.HTTP.Port
	}
	if c.Channels.WebSocket.Port <= 0 {
		c.Channels.WebSocket.Port = def.Channels.WebSocket.Port
	}
	if c.Channels.FileWatch.PollIntervalMS <= 0 {
		c.Channels.FileWatch.PollIntervalMS = def.Channels.FileWatch.PollIntervalMS
	}
	if c.Execution.CommandTimeoutSec <= 0 {
		c.Execution.CommandTimeoutSec = def.Execution.CommandTimeoutSec
	}
	if c.Execution.RenderTimeoutSec <= 0 {
		c.Execution.RenderTimeoutSec = def.Execution.RenderTimeoutSec
	}
	if c.Execution.ScriptTimeoutSec <= 0 {
		c.Execution.ScriptTimeoutSec = def.Execution.ScriptTimeoutSec
	}
	if c.Store.TTLMinutes <= 0 {
		c.Store.TTLMinutes = def.Store.TTLMinutes
	}
	if c.Store.Capacity <= 0 {
		c.Store.Capacity = def.Store.Capacity
	}
	if c.Script.StepBudget <= 0 {
		c.Script.StepBudget = def.Script.StepBudget
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
}

func defaultWorkspace() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "workspace"
	}
	return filepath.Join(home, ".blendgate", "workspace")
}

// WatchDir is the directory the file watcher polls.
func (c *Config) WatchDir() string {
	if c.Channels.FileWatch.Dir != "" {
		return c.Channels.FileWatch.Dir
	}
	return filepath.Join(c.Workspace, "remote_commands")
}

// TemplatesDir holds user template overrides.
func (c *Config) TemplatesDir() string {
	return filepath.Join(c.Workspace, "templates")
}

// AuditDir holds the JSONL audit logs.
func (c *Config) AuditDir() string {
	return filepath.Join(c.Workspace, "audit")
}

// ArchivePath is the sqlite batch archive location.
func (c *Config) ArchivePath() string {
	if c.Archive.Path != "" {
		return c.Archive.Path
	}
	return filepath.Join(c.Workspace, "archive", "batches.db")
}

// StatsPath is the persisted gateway counters file.
func (c *Config) StatsPath() string {
	return filepath.Join(c.Workspace, "stats.json")
}

// RenderOutputDir anchors relative render output paths.
func (c *Config) RenderOutputDir() string {
	return filepath.Join(c.Workspace, "render_output")
}

// EnsureWorkspace creates the workspace directory tree.
func (c *Config) EnsureWorkspace() error {
	dirs := []string{
		c.Workspace,
		c.WatchDir(),
		c.TemplatesDir(),
		c.AuditDir(),
		filepath.Dir(c.ArchivePath()),
		c.RenderOutputDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create workspace dir %s: %w", dir, err)
		}
	}
	return nil
}
