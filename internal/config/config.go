// Package config provides unified configuration loading for metrosim.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DirName is the per-user and per-project state directory.
const DirName = ".metrosim"

// MetrosimConfig contains all metrosim configuration settings.
type MetrosimConfig struct {
	// Database locates the relational store.
	Database DatabaseConfig `json:"database" yaml:"database"`

	// Documents controls where simulator documents are kept.
	Documents DocumentsConfig `json:"documents" yaml:"documents"`

	// Logging contains settings for operational and job logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Server configures the HTTP job API.
	Server ServerConfig `json:"server" yaml:"server"`

	// Jobs bounds background job execution.
	Jobs JobsConfig `json:"jobs" yaml:"jobs"`

	// Backup controls dataset snapshots and their retention.
	Backup BackupConfig `json:"backup" yaml:"backup"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	// Path is the SQLite file. Empty means <root>/.metrosim/metrosim.db.
	// Supports ${VAR} syntax.
	Path string `json:"path" yaml:"path"`
}

// DocumentsConfig configures the document store.
type DocumentsConfig struct {
	// Dir is the document root. Empty means <root>/.metrosim/documents.
	// Supports ${VAR} syntax.
	Dir string `json:"dir" yaml:"dir"`

	// Compress writes input documents as .json.gz.
	Compress bool `json:"compress" yaml:"compress"`
}

// LoggingConfig configures metrosim's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables job event logging to .metrosim/jobs.jsonl.
	Level string `json:"level" yaml:"level"`
}

// ServerConfig configures `metrosim serve`.
type ServerConfig struct {
	// Address is the listen address, e.g. "127.0.0.1:8080".
	Address string `json:"address" yaml:"address"`
}

// JobsConfig configures the job runner.
type JobsConfig struct {
	// Timeout caps a single job. Zero means no limit.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Retention is how long finished jobs stay visible. Zero keeps them
	// until MaxFinished evicts them.
	Retention time.Duration `json:"retention" yaml:"retention"`

	// MaxFinished caps how many finished jobs are kept. Zero means no cap.
	MaxFinished int `json:"max_finished" yaml:"max_finished"`
}

// BackupConfig configures `metrosim backup`.
type BackupConfig struct {
	// Dir holds snapshots. Empty means <root>/.metrosim/backups.
	// Supports ${VAR} syntax.
	Dir string `json:"dir" yaml:"dir"`

	// MaxCount keeps at most this many snapshots. Zero disables the limit.
	MaxCount int `json:"max_count" yaml:"max_count"`

	// MaxAge keeps snapshots younger than this, e.g. "30d" or "2w".
	MaxAge string `json:"max_age,omitempty" yaml:"max_age,omitempty"`

	// MaxTotalSize caps the snapshot directory, e.g. "500MB".
	MaxTotalSize string `json:"max_total_size,omitempty" yaml:"max_total_size,omitempty"`
}

// Default returns a MetrosimConfig with sensible defaults.
func Default() *MetrosimConfig {
	return &MetrosimConfig{
		Logging: LoggingConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Address: "127.0.0.1:8080",
		},
		Jobs: JobsConfig{
			Timeout:     30 * time.Minute,
			Retention:   time.Hour,
			MaxFinished: 500,
		},
		Backup: BackupConfig{
			MaxCount: 10,
		},
	}
}

// Load loads configuration from path, or from ~/.metrosim/config.yaml when
// path is empty, then applies environment variable overrides and validates.
// Order: defaults -> config file -> environment variables
func Load(path string) (*MetrosimConfig, error) {
	config := Default()

	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			candidate := filepath.Join(homeDir, DirName, "config.yaml")
			if _, statErr := os.Stat(candidate); statErr == nil {
				path = candidate
			}
		}
	}

	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		config = fileConfig
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*MetrosimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Database.Path = expandEnvVars(config.Database.Path)
	config.Documents.Dir = expandEnvVars(config.Documents.Dir)
	config.Backup.Dir = expandEnvVars(config.Backup.Dir)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *MetrosimConfig) Validate() error {
	if c.Jobs.Timeout < 0 {
		return fmt.Errorf("jobs.timeout must be non-negative, got %v", c.Jobs.Timeout)
	}
	if c.Jobs.Retention < 0 {
		return fmt.Errorf("jobs.retention must be non-negative, got %v", c.Jobs.Retention)
	}
	if c.Jobs.MaxFinished < 0 {
		return fmt.Errorf("jobs.max_finished must be non-negative, got %d", c.Jobs.MaxFinished)
	}

	if c.Backup.MaxCount < 0 {
		return fmt.Errorf("backup.max_count must be non-negative, got %d", c.Backup.MaxCount)
	}

	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// DatabasePath returns the configured database path, defaulting under root.
func (c *MetrosimConfig) DatabasePath(root string) string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(root, DirName, "metrosim.db")
}

// DocumentsDir returns the configured document root, defaulting under root.
func (c *MetrosimConfig) DocumentsDir(root string) string {
	if c.Documents.Dir != "" {
		return c.Documents.Dir
	}
	return filepath.Join(root, DirName, "documents")
}

// BackupDir returns the configured snapshot directory, defaulting under root.
func (c *MetrosimConfig) BackupDir(root string) string {
	if c.Backup.Dir != "" {
		return c.Backup.Dir
	}
	return filepath.Join(root, DirName, "backups")
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *MetrosimConfig) {
	if v := os.Getenv("METROSIM_DB_PATH"); v != "" {
		config.Database.Path = v
	}

	if v := os.Getenv("METROSIM_DOCUMENTS_DIR"); v != "" {
		config.Documents.Dir = v
	}

	if v := os.Getenv("METROSIM_COMPRESS"); v != "" {
		config.Documents.Compress = v == "true" || v == "1"
	}

	if v := os.Getenv("METROSIM_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("METROSIM_SERVER_ADDRESS"); v != "" {
		config.Server.Address = v
	}

	if v := os.Getenv("METROSIM_BACKUP_DIR"); v != "" {
		config.Backup.Dir = v
	}

	if v := os.Getenv("METROSIM_JOB_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Jobs.Timeout = d
		}
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
