// Package parser parses KQL query text into a typed syntax tree.
//
// The grammar is a recursive descent parser with Pratt-style expression
// parsing, covering the statements and tabular operators that appear in
// detection and hunting rule bases:
//
//	query      → statement (';' statement)* [';']
//	statement  → 'let' name '=' (function_decl | pipe)
//	           | 'set' name ['=' expr]
//	           | 'declare' 'query_parameters' '(' params ')'
//	           | pipe
//	pipe       → head ('|' operator)*
//	head       → leading_operator | expr
//	operator   → join | lookup | union | generic_operator
//
// After parsing, a binder resolves every name reference to a symbol kind
// (table, scalar, function) using the supplied Catalog.
package parser

import "bytes"

// Constants for parser operations
const (
	// bomSize is the size of UTF-8 BOM in bytes
	bomSize = 3
)

// utf8BOM represents the UTF-8 byte order mark
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseResult represents the result of parsing and binding KQL text
type ParseResult struct {
	// Text is the query text after BOM removal
	Text string

	// Root is the syntax tree. It is always non-nil, even when
	// Diagnostics reports syntax errors.
	Root *Query

	// Diagnostics lists syntax errors in source order
	Diagnostics []*Diagnostic
}

// HasErrors reports whether any syntax diagnostic was produced
func (r *ParseResult) HasErrors() bool {
	return len(r.Diagnostics) > 0
}

// Parser interface defines the contract for KQL parsing operations
type Parser interface {
	// ParseQuery parses and binds query text
	ParseQuery(text string) *ParseResult
}

// parser implements the Parser interface
type parser struct {
	catalog Catalog
}

// NewParser creates a new parser bound to catalog. A nil catalog is the
// empty catalog.
func NewParser(catalog Catalog) Parser {
	if catalog == nil {
		catalog = EmptyCatalog()
	}
	return &parser{catalog: catalog}
}

// ParseQuery parses query text and binds its names
func (p *parser) ParseQuery(text string) *ParseResult {
	// Clean the input
	text = cleanQuery(text)

	qp := newQueryParser(text)
	root := qp.parseQuery(EOF)

	diagnostics := mergeDiagnostics(qp.lexer.Diagnostics(), qp.diagnostics)
	newBinder(p.catalog).bindQuery(root)

	return &ParseResult{
		Text:        text,
		Root:        root,
		Diagnostics: diagnostics,
	}
}

// cleanQuery removes the BOM from query text
func cleanQuery(text string) string {
	return string(stripBOM([]byte(text)))
}

// stripBOM removes the UTF-8 BOM if present
func stripBOM(content []byte) []byte {
	if len(content) >= bomSize && bytes.HasPrefix(content, utf8BOM) {
		return content[bomSize:]
	}
	return content
}

// mergeDiagnostics interleaves lexer and parser diagnostics by position
func mergeDiagnostics(lexed, parsed []*Diagnostic) []*Diagnostic {
	out := make([]*Diagnostic, 0, len(lexed)+len(parsed))
	i, j := 0, 0
	for i < len(lexed) && j < len(parsed) {
		if lexed[i].Start <= parsed[j].Start {
			out = append(out, lexed[i])
			i++
		} else {
			out = append(out, parsed[j])
			j++
		}
	}
	out = append(out, lexed[i:]...)
	return append(out, parsed[j:]...)
}
