// Package output serializes extraction results.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/nnaka2992/kql-extract/internal/extractor"
)

// Supported formats
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Formats lists the accepted --output values
var Formats = []string{FormatJSON, FormatYAML}

// Writer writes one result at a time
type Writer interface {
	Write(result *extractor.Result) error
	Close() error
}

// NewWriter creates a writer for the named format
func NewWriter(format string, w io.Writer) (Writer, error) {
	switch format {
	case FormatJSON:
		return &jsonWriter{encoder: json.NewEncoder(w)}, nil
	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		return &yamlWriter{encoder: encoder}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// jsonWriter emits one compact JSON object per line
type jsonWriter struct {
	encoder *json.Encoder
}

func (w *jsonWriter) Write(result *extractor.Result) error {
	if err := w.encoder.Encode(result); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}

func (w *jsonWriter) Close() error { return nil }

// yamlWriter emits one document per result, separated by ---
type yamlWriter struct {
	encoder *yaml.Encoder
}

func (w *yamlWriter) Write(result *extractor.Result) error {
	if err := w.encoder.Encode(result); err != nil {
		return fmt.Errorf("encoding YAML: %w", err)
	}
	return nil
}

func (w *yamlWriter) Close() error {
	return w.encoder.Close()
}
