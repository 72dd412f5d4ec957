// Package config loads kql-extract settings from defaults, a YAML file,
// KQL_EXTRACT_* environment variables and command line flags.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/nnaka2992/kql-extract/internal/output"
)

// Config holds all settings
type Config struct {
	Output    string        `koanf:"output"`
	Input     string        `koanf:"input"`
	Workers   int           `koanf:"workers"`
	CacheSize int           `koanf:"cache_size"`
	Catalog   string        `koanf:"catalog"`
	Log       LogConfig     `koanf:"log"`
	Extract   ExtractConfig `koanf:"extract"`

	// FileUsed is the config file that was read, if any
	FileUsed string `koanf:"-"`
}

// LogConfig configures the stderr logger
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ExtractConfig configures per-query extraction
type ExtractConfig struct {
	Timeout            time.Duration `koanf:"timeout"`
	NormalizeJoinKinds bool          `koanf:"normalize_join_kinds"`
}

// Default values
const (
	DefaultOutput    = output.FormatJSON
	DefaultWorkers   = 1
	DefaultCacheSize = 1024
	DefaultLogLevel  = "warn"
	DefaultLogFormat = "text"
)

var logFormats = []string{"text", "json"}

// Validate checks if the configuration is usable
func (c *Config) Validate() error {
	if !slices.Contains(output.Formats, c.Output) {
		return fmt.Errorf("unknown output format %q (want one of %s)", c.Output, strings.Join(output.Formats, ", "))
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must not be negative, got %d", c.CacheSize)
	}
	if c.Extract.Timeout < 0 {
		return fmt.Errorf("extract.timeout must not be negative, got %s", c.Extract.Timeout)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		return fmt.Errorf("unknown log format %q (want text or json)", c.Log.Format)
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// NewLogger builds the logger described by c, writing to w
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	switch c.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (want text or json)", c.Format)
	}
}
