package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nnaka2992/kql-extract/internal/parser"
	"github.com/nnaka2992/kql-extract/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExtractor(t *testing.T, opts Options) *Extractor {
	t.Helper()
	opts.Logger = testutil.NewTestLogger(t)
	return New(opts)
}

func extract(t *testing.T, text string) *Result {
	t.Helper()
	result, err := newTestExtractor(t, Options{}).Extract(context.Background(), Query{ID: "q1", Text: text})
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

// assertWellFormed checks that no set holds an empty string
func assertWellFormed(t *testing.T, r *Result) {
	t.Helper()
	for _, set := range []StringSet{r.FunctionCalls, r.Operators, r.Tables} {
		assert.False(t, set.Has(""))
	}
	for kind, targets := range r.Joins {
		assert.NotEmpty(t, kind)
		assert.False(t, targets.Has(""))
	}
}

func TestExtractJoins(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		joins map[string][]string
	}{
		{
			name:  "default join kind",
			text:  "T1 | join T2 on Key",
			joins: map[string][]string{"inner": {"T2"}},
		},
		{
			name:  "explicit join kind",
			text:  "T1 | join kind=leftsemi T2 on Key",
			joins: map[string][]string{"leftsemi": {"T2"}},
		},
		{
			name:  "join kind kept verbatim",
			text:  "T1 | join kind=LeftAnti T2 on Key",
			joins: map[string][]string{"LeftAnti": {"T2"}},
		},
		{
			name:  "parenthesized target",
			text:  "T1 | join kind=rightouter (T2) on Key",
			joins: map[string][]string{"rightouter": {"T2"}},
		},
		{
			name:  "subquery target",
			text:  "T1 | join (T2 | where a == 1) on Key",
			joins: map[string][]string{"inner": {"(...)"}},
		},
		{
			name:  "lookup",
			text:  "T1 | lookup T2 on Key",
			joins: map[string][]string{"leftouter": {"T2"}},
		},
		{
			name:  "lookup ignores kind",
			text:  "T1 | lookup kind=inner (T2 | project Key) on Key",
			joins: map[string][]string{"leftouter": {"(...)"}},
		},
		{
			name:  "union of names",
			text:  "union T1, T2, T3",
			joins: map[string][]string{"union": {"T1", "T2", "T3"}},
		},
		{
			name:  "union skips non-names",
			text:  "union T1, (T2), (T3 | take 1), T4*",
			joins: map[string][]string{"union": {"T1"}},
		},
		{
			name:  "union without names keeps an empty set",
			text:  "union Security*",
			joins: map[string][]string{"union": {}},
		},
		{
			name: "targets accumulate per kind",
			text: "T1 | join T2 on a | join T3 on b | join kind=inner T2 on c",
			joins: map[string][]string{"inner": {"T2", "T3"}},
		},
		{
			name:  "bracketed target",
			text:  "T1 | join ['Sign In'] on a",
			joins: map[string][]string{"inner": {"Sign In"}},
		},
		{
			name:  "join inside a let",
			text:  "let j = T1 | lookup T2 on a; j | union T3",
			joins: map[string][]string{"leftouter": {"T2"}},
		},
		{
			name:  "union stage is not a join",
			text:  "SecurityEvent | union SigninLogs",
			joins: map[string][]string{},
		},
		{
			name:  "leading union inside a join target",
			text:  "T1 | join (union T2, T3) on a",
			joins: map[string][]string{"inner": {"(...)"}, "union": {"T2", "T3"}},
		},
		{
			name:  "join in a subquery",
			text:  "T1 | where a in (T2 | join kind=leftanti T3 on a | project a)",
			joins: map[string][]string{"leftanti": {"T3"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extract(t, tt.text)
			assertWellFormed(t, result)

			got := make(map[string][]string, len(result.Joins))
			for kind, targets := range result.Joins {
				got[kind] = targets.Sorted()
			}
			assert.Equal(t, tt.joins, got)
		})
	}
}

func TestExtractCategories(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		functions []string
		tables    []string
		operators []string
	}{
		{
			name:      "pipeline",
			text:      "SecurityEvent | where TimeGenerated > ago(1d) | summarize count() by bin(TimeGenerated, 1h) | project-away Extra",
			functions: []string{"ago", "bin", "count"},
			tables:    []string{"SecurityEvent"},
			operators: []string{"project-away", "summarize", "where"},
		},
		{
			name:      "join operands are tables, not operators",
			text:      "T1 | join T2 on Key",
			functions: []string{},
			tables:    []string{"T1", "T2"},
			operators: []string{},
		},
		{
			name:      "union in pipe position is only an operator",
			text:      "T1 | union T2",
			functions: []string{},
			tables:    []string{"T1", "T2"},
			operators: []string{"union"},
		},
		{
			name:      "leading operators are not pipeline stages",
			text:      "print x = strlen('a')",
			functions: []string{"strlen"},
			tables:    []string{},
			operators: []string{},
		},
		{
			name:      "let bound tables",
			text:      "let recent = Events | where Time > ago(1h); recent | take 5",
			functions: []string{"ago"},
			tables:    []string{"Events", "recent"},
			operators: []string{"take", "where"},
		},
		{
			name:      "scalar let is not a table",
			text:      "let limit_ = 5; T | take limit_",
			functions: []string{},
			tables:    []string{"T"},
			operators: []string{"take"},
		},
		{
			name:      "implicit subqueries",
			text:      "T | fork (where a == 1) (take 10)",
			functions: []string{},
			tables:    []string{"T"},
			operators: []string{"fork", "take", "where"},
		},
		{
			name:      "user function call",
			text:      "let f = (n:long) { n + 1 }; T | extend y = f(x)",
			functions: []string{"f"},
			tables:    []string{"T"},
			operators: []string{"extend"},
		},
		{
			name:      "cross cluster reference",
			text:      `cluster("c").database("d").SigninLogs | count`,
			functions: []string{"cluster", "database"},
			tables:    []string{"SigninLogs"},
			operators: []string{"count"},
		},
		{
			name:      "duplicates collapse",
			text:      "T | where isnotempty(a) | where isnotempty(b)",
			functions: []string{"isnotempty"},
			tables:    []string{"T"},
			operators: []string{"where"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extract(t, tt.text)
			assertWellFormed(t, result)
			assert.Equal(t, "q1", result.ID)
			assert.Equal(t, tt.functions, result.FunctionCalls.Sorted())
			assert.Equal(t, tt.tables, result.Tables.Sorted())
			assert.Equal(t, tt.operators, result.Operators.Sorted())
		})
	}
}

func TestExtractUnionStage(t *testing.T) {
	result := extract(t, "SecurityEvent | union SigninLogs")
	assert.Equal(t, []string{"union"}, result.Operators.Sorted())
	assert.Empty(t, result.Joins)
	assert.Equal(t, []string{"SecurityEvent", "SigninLogs"}, result.Tables.Sorted())
}

func TestExtractSyntaxError(t *testing.T) {
	e := newTestExtractor(t, Options{})

	result, err := e.Extract(context.Background(), Query{ID: "bad", Text: "T | where a == 'abc"})
	require.Error(t, err)
	assert.Nil(t, result)

	var syntaxErr *SyntaxError
	require.True(t, errors.As(err, &syntaxErr))
	assert.Equal(t, "bad", syntaxErr.ID)
	require.NotEmpty(t, syntaxErr.Diagnostics)
	assert.Equal(t, "Unterminated string literal.", syntaxErr.Diagnostics[0].Message)
	assert.Contains(t, err.Error(), "[15..19]: Unterminated string literal.")
}

func TestExtractIdempotent(t *testing.T) {
	e := newTestExtractor(t, Options{})
	q := Query{ID: "same", Text: "T1 | join kind=leftouter (T2 | where x > 1) on a | union T3, T4 | summarize make_set(a) by b"}

	first, err := e.Extract(context.Background(), q)
	require.NoError(t, err)
	second, err := e.Extract(context.Background(), q)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestExtractCatalog(t *testing.T) {
	e := newTestExtractor(t, Options{Catalog: parser.NewTableSet("Watchlist")})

	result, err := e.Extract(context.Background(), Query{ID: "c", Text: "T | where a == Watchlist"})
	require.NoError(t, err)
	assert.Equal(t, []string{"T", "Watchlist"}, result.Tables.Sorted())
}

func TestExtractSetOperandTables(t *testing.T) {
	for _, text := range []string{
		"T | where a in (U | project a)",
		"T | where a in (U)",
		"T | where a !in (U)",
	} {
		t.Run(text, func(t *testing.T) {
			result := extract(t, text)
			assert.Equal(t, []string{"T", "U"}, result.Tables.Sorted())
		})
	}
}

func TestExtractNormalizeJoinKinds(t *testing.T) {
	e := newTestExtractor(t, Options{NormalizeJoinKinds: true})

	result, err := e.Extract(context.Background(), Query{
		ID:   "n",
		Text: "T1 | join kind=LeftAnti T2 on a | join kind=anti T3 on a | join kind=Weird T4 on a | join T5 on a",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"T2", "T3"}, result.Joins["leftanti"].Sorted())
	assert.Equal(t, []string{"T4"}, result.Joins["weird"].Sorted())
	assert.Equal(t, []string{"T5"}, result.Joins["inner"].Sorted())
	assert.Len(t, result.Joins, 3)
}

func TestExtractCanceledContext(t *testing.T) {
	e := newTestExtractor(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := e.Extract(ctx, Query{ID: "c", Text: "T | count"})
	assert.Nil(t, result)

	var runtimeErr *RuntimeError
	require.True(t, errors.As(err, &runtimeErr))
	assert.Equal(t, "c", runtimeErr.ID)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractWithTimeout(t *testing.T) {
	e := newTestExtractor(t, Options{Timeout: time.Minute})

	result, err := e.Extract(context.Background(), Query{ID: "t", Text: "T | count"})
	require.NoError(t, err)
	assert.Equal(t, []string{"count"}, result.Operators.Sorted())
}

// fakeNode lets tests build trees the parser never produces
type fakeNode struct {
	kind     parser.Kind
	children []parser.Child
	panics   bool
}

func (n *fakeNode) Kind() parser.Kind        { return n.kind }
func (n *fakeNode) Span() parser.Span        { return parser.Span{Start: 0, End: 1} }
func (n *fakeNode) Text() string             { return "x" }
func (n *fakeNode) FirstToken() parser.Token { return parser.Token{Type: parser.IDENT, Literal: "x"} }
func (n *fakeNode) Children() []parser.Child {
	if n.panics {
		panic("broken tree")
	}
	return n.children
}

func TestWalkRuntimeErrors(t *testing.T) {
	e := newTestExtractor(t, Options{})

	t.Run("malformed node", func(t *testing.T) {
		root := &fakeNode{kind: parser.KindQuery, children: []parser.Child{
			{Role: parser.RoleStatement, Node: &fakeNode{kind: parser.KindFunctionCall}},
		}}
		result, err := e.walk("m", root)
		assert.Nil(t, result)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "malformed FunctionCall node")
	})

	t.Run("panic is recovered", func(t *testing.T) {
		result, err := e.walk("p", &fakeNode{kind: parser.KindQuery, panics: true})
		assert.Nil(t, result)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broken tree")
	})

	t.Run("operator in pipe position", func(t *testing.T) {
		root := &fakeNode{kind: parser.KindQuery, children: []parser.Child{
			{Role: parser.RoleOperator, Node: &fakeNode{kind: parser.KindOperator}},
		}}
		result, err := e.walk("o", root)
		require.NoError(t, err)
		assert.Equal(t, []string{"x"}, result.Operators.Sorted())
	})
}

// panickingParser stands in for a parser that fails on some input
type panickingParser struct{}

func (panickingParser) ParseQuery(string) *parser.ParseResult {
	panic("parser state corrupted")
}

func TestExtractRecoversParserPanic(t *testing.T) {
	e := newTestExtractor(t, Options{})
	e.parser = panickingParser{}

	cancelable, cancel := context.WithCancel(context.Background())
	defer cancel()

	for name, ctx := range map[string]context.Context{
		"inline":    context.Background(),
		"goroutine": cancelable,
	} {
		t.Run(name, func(t *testing.T) {
			result, err := e.Extract(ctx, Query{ID: "boom", Text: "T"})
			assert.Nil(t, result)

			var runtimeErr *RuntimeError
			require.ErrorAs(t, err, &runtimeErr)
			assert.Equal(t, "boom", runtimeErr.ID)
			assert.Contains(t, err.Error(), "panic during extraction: parser state corrupted")
		})
	}
}

func TestRuntimeErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := error(&RuntimeError{ID: "r", Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, `extraction failed for query "r": boom`, err.Error())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "parsing", StateParsing.String())
	assert.Equal(t, "syntax_error", StateSyntaxError.String())
	assert.Equal(t, "walking", StateWalking.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "runtime_error", StateRuntimeError.String())
	assert.Equal(t, "unknown", State(99).String())
}
