// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for taca.
//
// Supports TOML configuration with sensible defaults, environment
// variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - path given with --config
//   - ~/.taca/config.toml
//   - Built-in defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/taca/internal/util"
	"github.com/jeranaias/taca/internal/version"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete taca configuration.
type Config struct {
	// General settings
	Version string `toml:"version"`

	// LogFile receives a copy of all log output ("" = stderr only)
	LogFile string `toml:"log_file"`

	// Monitor configuration (run discovery)
	Monitor MonitorConfig `toml:"monitor"`

	// Transfer configuration (rsync to storage)
	Transfer TransferConfig `toml:"transfer"`

	// Cleanup configuration (aged-run removal)
	Cleanup CleanupConfig `toml:"cleanup"`

	// StatusDB configuration (run status store)
	StatusDB StatusDBConfig `toml:"statusdb"`

	// Mail configuration (failure notifications)
	Mail MailConfig `toml:"mail"`

	// Gate configuration (release version-bump check)
	Gate GateConfig `toml:"gate"`

	// Server configuration (status HTTP API)
	Server ServerConfig `toml:"server"`
}

// MonitorConfig controls run discovery.
type MonitorConfig struct {
	// DataDirs are the directories scanned for run folders
	DataDirs []string `toml:"data_dirs"`
	// ExcludeDirs are folder names under DataDirs that are never treated as runs
	ExcludeDirs []string `toml:"exclude_dirs"`
	// ScanIntervalSecs is the daemon scan interval in seconds
	ScanIntervalSecs int `toml:"scan_interval_secs"`
	// Watch enables filesystem-event driven discovery (polling fallback otherwise)
	Watch bool `toml:"watch"`
	// MaxConcurrent limits simultaneous transfers/processing tasks
	MaxConcurrent int `toml:"max_concurrent"`
	// TaskTimeoutMins bounds each background task (0 = no timeout)
	TaskTimeoutMins int `toml:"task_timeout_mins"`
}

// TransferConfig controls the rsync step.
type TransferConfig struct {
	// Destination is the rsync destination for finished runs
	// (local path or host:path)
	Destination string `toml:"destination"`
	// ArchiveDir is where local copies are moved after a final sync
	ArchiveDir string `toml:"archive_dir"`
	// TransferLog records each completed transfer (tab-separated)
	TransferLog string `toml:"transfer_log"`
	// RsyncOptions are extra flags handed to rsync
	RsyncOptions []string `toml:"rsync_options"`
	// Checksum algorithm for post-transfer verification: "sha256", "sha1", "md5"
	Checksum string `toml:"checksum"`
}

// CleanupConfig controls aged-run removal.
type CleanupConfig struct {
	// MaxDays is the default age threshold for cleanup in days
	MaxDays int `toml:"max_days"`
}

// StatusDBConfig locates the run status database.
type StatusDBConfig struct {
	// Path of the SQLite database file ("" = ~/.taca/status.db)
	Path string `toml:"path"`
}

// MailConfig controls failure notifications.
type MailConfig struct {
	// Host is the SMTP host ("localhost:25" style)
	Host string `toml:"host"`
	// From is the sender address
	From string `toml:"from"`
	// To is the notification recipient; empty disables mail
	To string `toml:"to"`
}

// GateConfig holds release-gate defaults.
type GateConfig struct {
	// Marker is the repository-relative version-marker file path
	Marker string `toml:"marker"`
}

// ServerConfig controls the status HTTP API.
type ServerConfig struct {
	// Port for the localhost status server
	Port int `toml:"port"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: version.Version,
		LogFile: "",

		Monitor: MonitorConfig{
			DataDirs:         nil,
			ExcludeDirs:      []string{"nosync", "lost+found"},
			ScanIntervalSecs: 300,
			Watch:            true,
			MaxConcurrent:    2,
			TaskTimeoutMins:  720, // rsync of a full flowcell can take hours
		},

		Transfer: TransferConfig{
			Destination:  "",
			ArchiveDir:   "",
			TransferLog:  "",
			RsyncOptions: []string{"--archive", "--chmod=Dg+s,g+rw"},
			Checksum:     "sha256",
		},

		Cleanup: CleanupConfig{
			MaxDays: 14,
		},

		StatusDB: StatusDBConfig{
			Path: "",
		},

		Mail: MailConfig{
			Host: "localhost:25",
			From: "taca@localhost",
			To:   "",
		},

		Gate: GateConfig{
			Marker: version.MarkerPath,
		},

		Server: ServerConfig{
			Port: 8890,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the taca configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".taca"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// StatusDBPath resolves the status database location, falling back to
// the config directory when unset.
func (c *Config) StatusDBPath() (string, error) {
	if c.StatusDB.Path != "" {
		return c.StatusDB.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "status.db"), nil
}

// LogDir returns the directory for external command log files: next to the
// configured log file, or ~/.taca/logs otherwise ("" when no home exists).
func (c *Config) LogDir() string {
	if c.LogFile != "" {
		return filepath.Dir(c.LogFile)
	}
	dir, err := ConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "logs")
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load loads configuration from the default config file, applies
// environment overrides, and validates the result. A missing config
// file is not an error: defaults plus environment apply.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific TOML file.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, statErr := os.Stat(path); statErr == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to the default config file atomically.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	var sb strings.Builder
	enc := toml.NewEncoder(&sb)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return util.AtomicWriteFile(path, []byte(sb.String()), 0600)
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies TACA_* environment variables on top of the
// loaded configuration. Only a deliberate subset is exposed: the knobs
// a cron entry or CI job plausibly needs to vary per invocation.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("TACA_DATA_DIRS"); v != "" {
		c.Monitor.DataDirs = splitList(v)
	}
	if v := os.Getenv("TACA_TRANSFER_DEST"); v != "" {
		c.Transfer.Destination = v
	}
	if v := os.Getenv("TACA_ARCHIVE_DIR"); v != "" {
		c.Transfer.ArchiveDir = v
	}
	if v := os.Getenv("TACA_STATUSDB"); v != "" {
		c.StatusDB.Path = v
	}
	if v := os.Getenv("TACA_MAIL_TO"); v != "" {
		c.Mail.To = v
	}
	if v := os.Getenv("TACA_LOG_FILE"); v != "" {
		c.LogFile = v
	}
	if v := os.Getenv("TACA_GATE_MARKER"); v != "" {
		c.Gate.Marker = v
	}
	if v := os.Getenv("TACA_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// splitList splits a colon- or comma-separated list.
func splitList(v string) []string {
	sep := ","
	if strings.Contains(v, ":") && !strings.Contains(v, ",") {
		sep = ":"
	}
	var out []string
	for _, part := range strings.Split(v, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the configuration for values that would misbehave at
// runtime. Zero values that have safe fallbacks are normalized here
// rather than rejected.
func (c *Config) Validate() error {
	if c.Monitor.ScanIntervalSecs <= 0 {
		c.Monitor.ScanIntervalSecs = 300
	}
	if c.Monitor.MaxConcurrent <= 0 {
		c.Monitor.MaxConcurrent = 2
	}
	if c.Monitor.TaskTimeoutMins < 0 {
		return fmt.Errorf("monitor.task_timeout_mins must not be negative (got %d)", c.Monitor.TaskTimeoutMins)
	}

	for _, dir := range c.Monitor.DataDirs {
		if !filepath.IsAbs(dir) {
			return fmt.Errorf("monitor.data_dirs entries must be absolute paths (got %q)", dir)
		}
	}

	switch c.Transfer.Checksum {
	case "", "sha256", "sha1", "md5":
	default:
		return fmt.Errorf("transfer.checksum must be sha256, sha1 or md5 (got %q)", c.Transfer.Checksum)
	}
	if c.Transfer.Checksum == "" {
		c.Transfer.Checksum = "sha256"
	}

	if c.Cleanup.MaxDays < 0 {
		return fmt.Errorf("cleanup.max_days must not be negative (got %d)", c.Cleanup.MaxDays)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range (got %d)", c.Server.Port)
	}

	if c.Gate.Marker == "" {
		c.Gate.Marker = version.MarkerPath
	}

	return nil
}
