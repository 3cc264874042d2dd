package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault(t *testing.T) {
	config := Default()

	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "127.0.0.1:8080", config.Server.Address)
	assert.Equal(t, 30*time.Minute, config.Jobs.Timeout)
	assert.Equal(t, time.Hour, config.Jobs.Retention)
	assert.Equal(t, 500, config.Jobs.MaxFinished)
	assert.False(t, config.Documents.Compress)
	assert.Empty(t, config.Database.Path, "paths default under the project root")
	assert.Empty(t, config.Documents.Dir, "paths default under the project root")
}

func TestLoadFromFile(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: /var/lib/metrosim/main.db
documents:
  dir: /var/lib/metrosim/docs
  compress: true
server:
  address: 0.0.0.0:9000
jobs:
  timeout: 90s
  retention: 10m
  max_finished: 20
`)

	config, err := LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/metrosim/main.db", config.Database.Path)
	assert.Equal(t, "/var/lib/metrosim/docs", config.Documents.Dir)
	assert.True(t, config.Documents.Compress)
	assert.Equal(t, "0.0.0.0:9000", config.Server.Address)
	assert.Equal(t, 90*time.Second, config.Jobs.Timeout)
	assert.Equal(t, 10*time.Minute, config.Jobs.Retention)
	assert.Equal(t, 20, config.Jobs.MaxFinished)
	// Sections absent from the file keep their defaults.
	assert.Equal(t, "info", config.Logging.Level)
}

func TestLoadFromFile_EnvExpansion(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: ${METROSIM_TEST_DATA}/metrosim.db
`)
	t.Setenv("METROSIM_TEST_DATA", "/data")

	config, err := LoadFromFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, "/data/metrosim.db", config.Database.Path)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("METROSIM_DB_PATH", "/tmp/env.db")
	t.Setenv("METROSIM_DOCUMENTS_DIR", "/tmp/docs")
	t.Setenv("METROSIM_COMPRESS", "1")
	t.Setenv("METROSIM_LOG_LEVEL", "debug")
	t.Setenv("METROSIM_SERVER_ADDRESS", ":7000")
	t.Setenv("METROSIM_JOB_TIMEOUT", "5m")

	config := Default()
	applyEnvOverrides(config)

	assert.Equal(t, "/tmp/env.db", config.Database.Path)
	assert.Equal(t, "/tmp/docs", config.Documents.Dir)
	assert.True(t, config.Documents.Compress)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, ":7000", config.Server.Address)
	assert.Equal(t, 5*time.Minute, config.Jobs.Timeout)
}

func TestEnvOverrides_BadTimeoutIgnored(t *testing.T) {
	t.Setenv("METROSIM_JOB_TIMEOUT", "soon")

	config := Default()
	applyEnvOverrides(config)

	assert.Equal(t, 30*time.Minute, config.Jobs.Timeout, "default timeout survives")
}

func TestLoad_ExplicitPath(t *testing.T) {
	t.Setenv("METROSIM_LOG_LEVEL", "")
	configPath := writeConfig(t, "logging:\n  level: trace\n")

	config, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "trace", config.Logging.Level)
}

func TestLoad_ValidatesResult(t *testing.T) {
	configPath := writeConfig(t, "jobs:\n  timeout: -1s\n")

	_, err := Load(configPath)
	assert.Error(t, err, "negative timeout fails validation")
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("METROSIM_LOG_LEVEL", "")

	config, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", config.Logging.Level)
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*MetrosimConfig)
	}{
		{"negative timeout", func(c *MetrosimConfig) { c.Jobs.Timeout = -time.Second }},
		{"negative job retention", func(c *MetrosimConfig) { c.Jobs.Retention = -time.Minute }},
		{"negative finished job cap", func(c *MetrosimConfig) { c.Jobs.MaxFinished = -1 }},
		{"empty address", func(c *MetrosimConfig) { c.Server.Address = "" }},
		{"unknown log level", func(c *MetrosimConfig) { c.Logging.Level = "verbose" }},
		{"negative backup count", func(c *MetrosimConfig) { c.Backup.MaxCount = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestValidate_ValidLogLevels(t *testing.T) {
	for _, level := range []string{"", "info", "debug", "trace"} {
		t.Run(level, func(t *testing.T) {
			config := Default()
			config.Logging.Level = level
			assert.NoError(t, config.Validate())
		})
	}
}

func TestDefaultPaths(t *testing.T) {
	config := Default()
	root := filepath.Join("srv", "project")

	assert.Equal(t, filepath.Join(root, DirName, "metrosim.db"), config.DatabasePath(root))
	assert.Equal(t, filepath.Join(root, DirName, "documents"), config.DocumentsDir(root))

	// Explicit paths win over defaults.
	config.Database.Path = "/x.db"
	config.Documents.Dir = "/docs"
	assert.Equal(t, "/x.db", config.DatabasePath(root))
	assert.Equal(t, "/docs", config.DocumentsDir(root))
}

func TestLoadFromFile_NotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, "server:\n  address: [invalid yaml\n"))
	assert.Error(t, err)
}

func TestBackupConfig(t *testing.T) {
	assert.Equal(t, 10, Default().Backup.MaxCount)

	t.Setenv("SNAP_ROOT", "/var/snapshots")
	path := writeConfig(t, "backup:\n  dir: ${SNAP_ROOT}/metrosim\n  max_count: 3\n  max_age: 2w\n  max_total_size: 100MB\n")

	config, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, BackupConfig{
		Dir:          "/var/snapshots/metrosim",
		MaxCount:     3,
		MaxAge:       "2w",
		MaxTotalSize: "100MB",
	}, config.Backup)
	assert.Equal(t, "/var/snapshots/metrosim", config.BackupDir("/root"))

	assert.Equal(t, filepath.Join("proj", DirName, "backups"), Default().BackupDir("proj"))
}
