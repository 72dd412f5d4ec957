// Package stream runs extraction over line-framed input: one
// "<id>,<base64 query text>" record per line.
package stream

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nnaka2992/kql-extract/internal/extractor"
)

// Record is one framed input line
type Record struct {
	// Line is the 1-based input line number
	Line    int
	ID      string
	Payload string
}

// ParseLine splits a line into id and payload. ok is false when the line
// does not split into exactly two comma-separated fields.
func ParseLine(lineNo int, line string) (rec Record, ok bool) {
	line = strings.TrimSuffix(line, "\r")
	parts := strings.Split(line, ",")
	if len(parts) != 2 {
		return Record{}, false
	}
	return Record{Line: lineNo, ID: parts[0], Payload: parts[1]}, true
}

// DecodeError is returned when a payload is not base64 encoded UTF-8
type DecodeError struct {
	ID   string
	Line int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("line %d: cannot decode query %q: %v", e.Line, e.ID, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// errInvalidUTF8 is wrapped by DecodeError for payloads that decode to
// invalid text
var errInvalidUTF8 = errors.New("payload is not valid UTF-8")

// Decode turns a record into a query
func Decode(rec Record) (extractor.Query, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(rec.Payload))
	if err != nil {
		return extractor.Query{}, &DecodeError{ID: rec.ID, Line: rec.Line, Err: err}
	}
	if !utf8.Valid(raw) {
		return extractor.Query{}, &DecodeError{ID: rec.ID, Line: rec.Line, Err: errInvalidUTF8}
	}
	return extractor.Query{ID: rec.ID, Text: string(raw)}, nil
}
