package config

import (
	"strings"

	"github.com/spf13/pflag"

	"github.com/nnaka2992/kql-extract/internal/output"
)

// RegisterFlags adds the configuration flags to fs. Only flags the user
// sets override lower layers, so the defaults shown here are for help
// text.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("output", "o", DefaultOutput, "Output format ("+strings.Join(output.Formats, ", ")+")")
	fs.StringP("input", "i", "", "Read records from file instead of stdin")
	fs.IntP("workers", "w", DefaultWorkers, "Number of records extracted concurrently")
	fs.Int("cache-size", DefaultCacheSize, "Number of results memoized by query text (0 disables)")
	fs.String("catalog", "", "YAML file listing known tables")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	fs.String("log-format", DefaultLogFormat, "Log format (text, json)")
	fs.Duration("timeout", 0, "Per-query extraction timeout (0 disables)")
	fs.Bool("normalize-join-kinds", false, "Map join kind aliases to canonical names")
}
