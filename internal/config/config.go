// Package config handles hangview configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tOgg1/hangview/internal/models"
)

// ReapplyMode controls what applying the already-active protocol stage does.
type ReapplyMode string

const (
	// ReapplyReset re-runs the stage rules, clearing transient pane overrides.
	ReapplyReset ReapplyMode = "reset"
	// ReapplyKeep leaves the current grid untouched.
	ReapplyKeep ReapplyMode = "keep"
)

// Config is the root configuration structure for hangview.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Database settings
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Protocol definition settings
	Protocols ProtocolsConfig `yaml:"protocols" mapstructure:"protocols"`

	// Grid defaults
	Grid GridConfig `yaml:"grid" mapstructure:"grid"`

	// Engine behavior
	Engine EngineConfig `yaml:"engine" mapstructure:"engine"`

	// Metrics settings
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`

	// TUI settings
	TUI TUIConfig `yaml:"tui" mapstructure:"tui"`
}

// GlobalConfig contains global settings.
type GlobalConfig struct {
	// DataDir is where hangview stores its data (default: ~/.local/share/hangview).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config files are stored (default: ~/.config/hangview).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`

	// BusyTimeout is how long to wait for a locked database (milliseconds).
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// ProtocolsConfig controls where hanging protocol definitions come from.
type ProtocolsConfig struct {
	// Dir holds *.yaml protocol definitions.
	Dir string `yaml:"dir" mapstructure:"dir"`

	// Watch reloads definitions when files in Dir change.
	Watch bool `yaml:"watch" mapstructure:"watch"`

	// DefaultProtocol is the baseline protocol toggles fall back to.
	DefaultProtocol string `yaml:"default_protocol" mapstructure:"default_protocol"`
}

// GridConfig contains grid defaults.
type GridConfig struct {
	// IDStart is the first pane counter value.
	IDStart int `yaml:"id_start" mapstructure:"id_start"`

	// IDWrap is the modulus the pane counter wraps at.
	IDWrap int `yaml:"id_wrap" mapstructure:"id_wrap"`
}

// EngineConfig contains protocol engine settings.
type EngineConfig struct {
	// ReapplyMode is reset or keep.
	ReapplyMode ReapplyMode `yaml:"reapply_mode" mapstructure:"reapply_mode"`

	// PersistMemory stores stage navigation memory in the database.
	PersistMemory bool `yaml:"persist_memory" mapstructure:"persist_memory"`

	// HistoryLimit caps the protocol history kept in the database; 0 disables it.
	HistoryLimit int `yaml:"history_limit" mapstructure:"history_limit"`
}

// MetricsConfig contains metrics settings.
type MetricsConfig struct {
	// Enabled registers prometheus collectors.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// ListenAddr serves /metrics when set, e.g. "127.0.0.1:9464".
	ListenAddr string `yaml:"listen_addr" mapstructure:"listen_addr"`
}

// TUIConfig contains TUI settings.
type TUIConfig struct {
	// Theme is the color theme (default, high-contrast).
	Theme string `yaml:"theme" mapstructure:"theme"`

	// ShowPaneIDs renders pane identities in each cell.
	ShowPaneIDs bool `yaml:"show_pane_ids" mapstructure:"show_pane_ids"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(homeDir, ".local", "share", "hangview"),
			ConfigDir: filepath.Join(homeDir, ".config", "hangview"),
		},
		Database: DatabaseConfig{
			Path:          "", // Will be set to DataDir/hangview.db
			BusyTimeoutMs: 5000,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "console",
			EnableCaller: false,
		},
		Protocols: ProtocolsConfig{
			Dir:             "",
			Watch:           false,
			DefaultProtocol: models.DefaultProtocolID,
		},
		Grid: GridConfig{
			IDStart: 5000,
			IDWrap:  100000,
		},
		Engine: EngineConfig{
			ReapplyMode:   ReapplyReset,
			PersistMemory: false,
			HistoryLimit:  1000,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
		TUI: TUIConfig{
			Theme:       "default",
			ShowPaneIDs: true,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs models.Problems

	if c.Database.BusyTimeoutMs < 0 {
		errs.Addf("database.busy_timeout_ms", "must not be negative")
	}
	if c.Grid.IDStart < 0 {
		errs.Addf("grid.id_start", "must not be negative")
	}
	if c.Grid.IDWrap <= c.Grid.IDStart {
		errs.Addf("grid.id_wrap", "must be greater than id_start (%d)", c.Grid.IDStart)
	}
	switch c.Engine.ReapplyMode {
	case ReapplyReset, ReapplyKeep:
	default:
		errs.Addf("engine.reapply_mode", "must be one of reset, keep (got %q)", c.Engine.ReapplyMode)
	}
	if c.Engine.HistoryLimit < 0 {
		errs.Addf("engine.history_limit", "must not be negative")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		errs.Addf("logging.format", "must be one of console, json (got %q)", c.Logging.Format)
	}
	if c.Protocols.DefaultProtocol == "" {
		errs.Addf("protocols.default_protocol", "is required")
	}

	return errs.Err()
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Global.DataDir,
		c.Global.ConfigDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// DatabasePath returns the full database path.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Global.DataDir, "hangview.db")
}

// UsesDatabase reports whether any feature needs the SQLite database.
func (c *Config) UsesDatabase() bool {
	return c.Engine.PersistMemory || c.Engine.HistoryLimit > 0
}

// ProtocolsDir returns the directory protocol definitions are read from.
func (c *Config) ProtocolsDir() string {
	if c.Protocols.Dir != "" {
		return c.Protocols.Dir
	}
	return filepath.Join(c.Global.ConfigDir, "protocols")
}
