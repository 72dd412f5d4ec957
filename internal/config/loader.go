package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable the loader reads
const EnvPrefix = "KQL_EXTRACT_"

// defaultFiles are tried in the working directory when no file is named
var defaultFiles = []string{"kql-extract.yaml", "kql-extract.yml"}

// flagKeys maps flags whose names do not follow the kebab to snake rule
var flagKeys = map[string]string{
	"log-level":            "log.level",
	"log-format":           "log.format",
	"timeout":              "extract.timeout",
	"normalize-join-kinds": "extract.normalize_join_kinds",
}

// ignoredFlags are command flags that are not configuration
var ignoredFlags = map[string]bool{
	"config":  true,
	"id":      true,
	"help":    true,
	"version": true,
}

// sections are the nested key groups. An env var naming one of them gets
// its first underscore turned into the key delimiter.
var sections = []string{"log", "extract"}

// findConfigFile finds the config file to use.
// Priority: explicit path > kql-extract.yaml > kql-extract.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range defaultFiles {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// envKey transforms KQL_EXTRACT_LOG_LEVEL -> log.level
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range sections {
		if rest, ok := strings.CutPrefix(key, section+"_"); ok {
			return section + "." + rest
		}
	}
	return key
}

// flagKey transforms a flag name into its config key
func flagKey(name string) string {
	if key, ok := flagKeys[name]; ok {
		return key
	}
	return strings.ReplaceAll(name, "-", "_")
}

// Load reads configuration.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"output":                       DefaultOutput,
		"input":                        "",
		"workers":                      DefaultWorkers,
		"cache_size":                   DefaultCacheSize,
		"catalog":                      "",
		"log.level":                    DefaultLogLevel,
		"log.format":                   DefaultLogFormat,
		"extract.timeout":              "0s",
		"extract.normalize_join_kinds": false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	fileUsed := findConfigFile(cfgFile)
	if fileUsed != "" {
		if err := k.Load(file.Provider(fileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", fileUsed, err)
		}
	}

	// 3. Environment
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags that were explicitly set
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed || ignoredFlags[f.Name] {
				return "", nil
			}
			return flagKey(f.Name), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.FileUsed = fileUsed

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
