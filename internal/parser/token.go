package parser

import "fmt"

// TokenType identifies the lexical class of a token
type TokenType int

const (
	EOF TokenType = iota
	ILLEGAL

	// Literals
	IDENT   // names, keywords, $left/$right, dashed operator words
	NEGWORD // negated word operators: !contains, !has, !in~ ...
	NUMBER  // integers, reals and timespans (1d, 5m)
	STRING  // every string literal form
	LITERAL // typed literals: datetime(...), dynamic(...), guid(...)

	// Punctuation and operators
	PIPE      // |
	COMMA     // ,
	SEMICOLON // ;
	LPAREN    // (
	RPAREN    // )
	LBRACKET  // [
	RBRACKET  // ]
	LBRACE    // {
	RBRACE    // }
	DOT       // .
	DOTDOT    // ..
	COLON     // :
	ASSIGN    // =
	EQ        // ==
	NE        // != or <>
	TILDEEQ   // =~
	NOTTILDE  // !~
	LT        // <
	GT        // >
	LE        // <=
	GE        // >=
	PLUS      // +
	MINUS     // -
	STAR      // *
	SLASH     // /
	PERCENT   // %
	ARROW     // =>
)

var tokenNames = map[TokenType]string{
	EOF:       "end of input",
	ILLEGAL:   "illegal",
	IDENT:     "identifier",
	NEGWORD:   "operator",
	NUMBER:    "number",
	STRING:    "string",
	LITERAL:   "literal",
	PIPE:      "|",
	COMMA:     ",",
	SEMICOLON: ";",
	LPAREN:    "(",
	RPAREN:    ")",
	LBRACKET:  "[",
	RBRACKET:  "]",
	LBRACE:    "{",
	RBRACE:    "}",
	DOT:       ".",
	DOTDOT:    "..",
	COLON:     ":",
	ASSIGN:    "=",
	EQ:        "==",
	NE:        "!=",
	TILDEEQ:   "=~",
	NOTTILDE:  "!~",
	LT:        "<",
	GT:        ">",
	LE:        "<=",
	GE:        ">=",
	PLUS:      "+",
	MINUS:     "-",
	STAR:      "*",
	SLASH:     "/",
	PERCENT:   "%",
	ARROW:     "=>",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Position is a location in the query text
type Position struct {
	Offset int // byte offset, 0-based
	Line   int // 1-based
	Column int // 1-based
}

// Token is a single lexical token
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
	End     int // byte offset one past the last character
}

// Is reports whether the token is an identifier spelled exactly word
func (t Token) Is(word string) bool {
	return t.Type == IDENT && t.Literal == word
}

// typedLiteralWords start a literal whose parenthesized body is kept verbatim
var typedLiteralWords = map[string]bool{
	"datetime": true, "timespan": true, "time": true, "date": true,
	"guid": true, "uuid": true, "uniqueid": true, "dynamic": true,
	"bool": true, "boolean": true, "int": true, "long": true,
	"real": true, "double": true, "decimal": true, "typeof": true,
}

// dashedWords are operator and function names spelled with a dash
var dashedWords = map[string]bool{
	"project-away":    true,
	"project-keep":    true,
	"project-rename":  true,
	"project-reorder": true,
	"project-smart":   true,
	"mv-expand":       true,
	"mv-apply":        true,
	"make-series":     true,
	"make-graph":      true,
	"parse-where":     true,
	"parse-kv":        true,
	"top-nested":      true,
	"top-hitters":     true,
	"sample-distinct": true,
	"graph-match":     true,
	"graph-merge":     true,
	"assert-schema":   true,
}
