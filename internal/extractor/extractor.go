// Package extractor pulls structural metadata out of parsed KQL queries:
// function calls, referenced tables, pipeline operators, and the tables
// joined, looked up or unioned in.
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nnaka2992/kql-extract/internal/parser"
)

// Query is one unit of work: a caller-chosen id and the query text
type Query struct {
	ID   string
	Text string
}

// State is a step of the per-query extraction state machine
type State int

const (
	StateParsing State = iota
	StateSyntaxError
	StateWalking
	StateDone
	StateRuntimeError
)

func (s State) String() string {
	switch s {
	case StateParsing:
		return "parsing"
	case StateSyntaxError:
		return "syntax_error"
	case StateWalking:
		return "walking"
	case StateDone:
		return "done"
	case StateRuntimeError:
		return "runtime_error"
	default:
		return "unknown"
	}
}

// SyntaxError is returned when the parser reports diagnostics. No result is
// produced for the query.
type SyntaxError struct {
	ID          string
	Diagnostics []*parser.Diagnostic
}

func (e *SyntaxError) Error() string {
	msgs := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		msgs[i] = d.Error()
	}
	return fmt.Sprintf("syntax error in query %q: %s", e.ID, strings.Join(msgs, "; "))
}

// RuntimeError is returned when the walk fails or times out
type RuntimeError struct {
	ID  string
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("extraction failed for query %q: %v", e.ID, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// Options configures an Extractor
type Options struct {
	// Logger receives debug traces of state transitions. Nil discards.
	Logger *slog.Logger

	// Catalog lists known tables. Nil is the empty catalog.
	Catalog parser.Catalog

	// Timeout bounds a single extraction. Zero means no limit.
	Timeout time.Duration

	// NormalizeJoinKinds lowercases join kind labels and resolves aliases
	// such as anti to leftanti.
	NormalizeJoinKinds bool
}

// Extractor runs the parse and walk for each query. It holds no per-query
// state and is safe for concurrent use.
type Extractor struct {
	parser   parser.Parser
	logger   *slog.Logger
	timeout  time.Duration
	registry *joinKindRegistry
}

// New creates an extractor
func New(opts Options) *Extractor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	e := &Extractor{
		parser:  parser.NewParser(opts.Catalog),
		logger:  logger,
		timeout: opts.Timeout,
	}
	if opts.NormalizeJoinKinds {
		e.registry = newJoinKindRegistry()
	}
	return e
}

// Extract parses q and walks its tree. It returns a *SyntaxError when the
// text does not parse and a *RuntimeError when the walk fails or the
// context ends first.
func (e *Extractor) Extract(ctx context.Context, q Query) (*Result, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	if err := ctx.Err(); err != nil {
		return nil, &RuntimeError{ID: q.ID, Err: err}
	}

	// Background contexts cannot end, so run inline
	if ctx.Done() == nil {
		return e.extract(q)
	}

	type outcome struct {
		result *Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := e.extract(q)
		done <- outcome{result, err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		e.transition(q.ID, StateRuntimeError, "err", ctx.Err())
		return nil, &RuntimeError{ID: q.ID, Err: ctx.Err()}
	}
}

// extract runs the state machine for one query. A panic in any state is
// returned as a RuntimeError.
func (e *Extractor) extract(q Query) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &RuntimeError{ID: q.ID, Err: fmt.Errorf("panic during extraction: %v", r)}
			result = nil
			e.transition(q.ID, StateRuntimeError, "err", err)
		}
	}()

	e.transition(q.ID, StateParsing)
	parsed := e.parser.ParseQuery(q.Text)
	if parsed.HasErrors() {
		e.transition(q.ID, StateSyntaxError, "diagnostics", len(parsed.Diagnostics))
		return nil, &SyntaxError{ID: q.ID, Diagnostics: parsed.Diagnostics}
	}

	e.transition(q.ID, StateWalking)
	result, err = e.walk(q.ID, parsed.Root)
	if err != nil {
		e.transition(q.ID, StateRuntimeError, "err", err)
		return nil, &RuntimeError{ID: q.ID, Err: err}
	}

	e.transition(q.ID, StateDone)
	return result, nil
}

// walk classifies every node of root. A panic in the walk is returned as
// an error.
func (e *Extractor) walk(id string, root parser.Node) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("panic during walk: %v", r)
		}
	}()

	result = NewResult(id)
	c := newClassifier(result, e.registry, e.logger)
	Walk(root, c.visit)
	if c.err != nil {
		return nil, c.err
	}
	return result, nil
}

func (e *Extractor) transition(id string, state State, attrs ...any) {
	e.logger.Debug("extraction state", append([]any{"id", id, "state", state.String()}, attrs...)...)
}
