package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	fs.String("config", "", "")
	fs.String("id", "", "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", newFlags(t))
	require.NoError(t, err)

	assert.Equal(t, &Config{
		Output:    "json",
		Workers:   1,
		CacheSize: 1024,
		Log:       LogConfig{Level: "warn", Format: "text"},
	}, cfg)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeConfig(t, dir, "kql-extract.yaml", `
output: yaml
workers: 2
cache_size: 10
catalog: tables.yaml
log:
  level: info
extract:
  timeout: 2s
  normalize_join_kinds: true
`)

	t.Run("file over defaults", func(t *testing.T) {
		cfg, err := Load("", newFlags(t))
		require.NoError(t, err)
		assert.Equal(t, "kql-extract.yaml", cfg.FileUsed)
		assert.Equal(t, "yaml", cfg.Output)
		assert.Equal(t, 2, cfg.Workers)
		assert.Equal(t, 10, cfg.CacheSize)
		assert.Equal(t, "tables.yaml", cfg.Catalog)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, "text", cfg.Log.Format)
		assert.Equal(t, 2*time.Second, cfg.Extract.Timeout)
		assert.True(t, cfg.Extract.NormalizeJoinKinds)
	})

	t.Run("env over file", func(t *testing.T) {
		t.Setenv("KQL_EXTRACT_WORKERS", "3")
		t.Setenv("KQL_EXTRACT_LOG_LEVEL", "debug")
		t.Setenv("KQL_EXTRACT_EXTRACT_TIMEOUT", "5s")

		cfg, err := Load("", newFlags(t))
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.Workers)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, 5*time.Second, cfg.Extract.Timeout)
		assert.Equal(t, "yaml", cfg.Output)
	})

	t.Run("flags over env", func(t *testing.T) {
		t.Setenv("KQL_EXTRACT_WORKERS", "3")
		t.Setenv("KQL_EXTRACT_OUTPUT", "yaml")

		cfg, err := Load("", newFlags(t, "--workers", "8", "-o", "json", "--log-format", "json", "--timeout", "1s", "--id", "ignored"))
		require.NoError(t, err)
		assert.Equal(t, 8, cfg.Workers)
		assert.Equal(t, "json", cfg.Output)
		assert.Equal(t, "json", cfg.Log.Format)
		assert.Equal(t, time.Second, cfg.Extract.Timeout)
		// unset flags keep lower layers
		assert.Equal(t, 10, cfg.CacheSize)
	})
}

func TestLoadExplicitFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeConfig(t, dir, "kql-extract.yaml", "workers: 2\n")
	other := writeConfig(t, dir, "other.yaml", "workers: 6\n")

	cfg, err := Load(other, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Workers)
	assert.Equal(t, other, cfg.FileUsed)

	_, err = Load(filepath.Join(dir, "missing.yaml"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		errSubstr string
	}{
		{name: "unknown output", args: []string{"-o", "xml"}, errSubstr: `unknown output format "xml"`},
		{name: "zero workers", args: []string{"-w", "0"}, errSubstr: "workers must be at least 1"},
		{name: "negative cache", args: []string{"--cache-size=-1"}, errSubstr: "cache_size must not be negative"},
		{name: "bad level", args: []string{"--log-level", "loud"}, errSubstr: `invalid log level "loud"`},
		{name: "bad format", args: []string{"--log-format", "xml"}, errSubstr: `unknown log format "xml"`},
	}

	t.Chdir(t.TempDir())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("", newFlags(t, tt.args...))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "cache_size", envKey("KQL_EXTRACT_CACHE_SIZE"))
	assert.Equal(t, "log.format", envKey("KQL_EXTRACT_LOG_FORMAT"))
	assert.Equal(t, "extract.normalize_join_kinds", envKey("KQL_EXTRACT_EXTRACT_NORMALIZE_JOIN_KINDS"))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "info", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Error("extraction failed", "id", "7")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"extraction failed","id":"7"`)

	_, err = LogConfig{Level: "info", Format: "xml"}.NewLogger(&buf)
	assert.Error(t, err)
}
