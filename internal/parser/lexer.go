package parser

import (
	"fmt"
	"strings"
)

// Lexer tokenizes KQL input.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current char under examination
	line    int  // current line number (1-based)
	col     int  // current column number (1-based)

	diagnostics []*Diagnostic
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
		col:   0,
	}
	l.readChar()
	return l
}

// Diagnostics returns the lexical problems found so far.
func (l *Lexer) Diagnostics() []*Diagnostic {
	return l.diagnostics
}

// readChar advances to the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	if l.readPos >= len(l.input) {
		l.ch = 0 // ASCII NUL = EOF
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
	l.col++
}

// peekChar returns the next character without advancing.
func (l *Lexer) peekChar() byte {
	return l.peekCharAt(0)
}

// peekCharAt returns the character n places after the next one.
func (l *Lexer) peekCharAt(n int) byte {
	if l.readPos+n >= len(l.input) {
		return 0
	}
	return l.input[l.readPos+n]
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// currentPos returns the current position.
func (l *Lexer) currentPos() Position {
	return Position{
		Offset: l.pos,
		Line:   l.line,
		Column: l.col,
	}
}

func (l *Lexer) addDiagnostic(start Position, end int, msg string) {
	l.diagnostics = append(l.diagnostics, &Diagnostic{
		Start:   start.Offset,
		End:     end,
		Line:    start.Line,
		Column:  start.Column,
		Message: msg,
	})
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	pos := l.currentPos()
	if l.atEOF() {
		return Token{Type: EOF, Pos: pos, End: pos.Offset}
	}

	switch l.ch {
	case '|':
		return l.single(PIPE, pos)
	case ',':
		return l.single(COMMA, pos)
	case ';':
		return l.single(SEMICOLON, pos)
	case '(':
		return l.single(LPAREN, pos)
	case ')':
		return l.single(RPAREN, pos)
	case '[':
		return l.single(LBRACKET, pos)
	case ']':
		return l.single(RBRACKET, pos)
	case '{':
		return l.single(LBRACE, pos)
	case '}':
		return l.single(RBRACE, pos)
	case ':':
		return l.single(COLON, pos)
	case '+':
		return l.single(PLUS, pos)
	case '-':
		return l.single(MINUS, pos)
	case '*':
		return l.single(STAR, pos)
	case '/':
		return l.single(SLASH, pos)
	case '%':
		return l.single(PERCENT, pos)
	case '.':
		if l.peekChar() == '.' {
			return l.double(DOTDOT, pos)
		}
		if isDigit(l.peekChar()) {
			return l.readNumber(pos)
		}
		return l.single(DOT, pos)
	case '=':
		switch l.peekChar() {
		case '=':
			return l.double(EQ, pos)
		case '~':
			return l.double(TILDEEQ, pos)
		case '>':
			return l.double(ARROW, pos)
		}
		return l.single(ASSIGN, pos)
	case '<':
		switch l.peekChar() {
		case '=':
			return l.double(LE, pos)
		case '>':
			return l.double(NE, pos)
		}
		return l.single(LT, pos)
	case '>':
		if l.peekChar() == '=' {
			return l.double(GE, pos)
		}
		return l.single(GT, pos)
	case '!':
		switch {
		case l.peekChar() == '=':
			return l.double(NE, pos)
		case l.peekChar() == '~':
			return l.double(NOTTILDE, pos)
		case isLetter(l.peekChar()):
			l.readChar()
			word := l.readWord()
			if word == "in" && l.ch == '~' {
				l.readChar()
				word += "~"
			}
			return Token{Type: NEGWORD, Literal: "!" + word, Pos: pos, End: l.pos}
		}
		return l.illegal(pos)
	case '\'', '"':
		return l.readString(pos)
	case '`':
		if strings.HasPrefix(l.input[l.pos:], "```") {
			return l.readMultilineString(pos)
		}
		return l.illegal(pos)
	case '@':
		if q := l.peekChar(); q == '\'' || q == '"' {
			l.readChar()
			return l.readVerbatimString(pos)
		}
		return l.illegal(pos)
	}

	switch {
	case (l.ch == 'h' || l.ch == 'H') && l.startsObfuscatedString():
		l.readChar()
		if l.ch == '@' {
			l.readChar()
			return l.readVerbatimString(pos)
		}
		return l.readString(pos)
	case isLetter(l.ch) || l.ch == '_' || l.ch == '$':
		return l.readIdentifier(pos)
	case isDigit(l.ch):
		return l.readNumber(pos)
	}
	return l.illegal(pos)
}

func (l *Lexer) single(t TokenType, pos Position) Token {
	lit := string(l.ch)
	l.readChar()
	return Token{Type: t, Literal: lit, Pos: pos, End: l.pos}
}

func (l *Lexer) double(t TokenType, pos Position) Token {
	lit := l.input[l.pos : l.pos+2]
	l.readChar()
	l.readChar()
	return Token{Type: t, Literal: lit, Pos: pos, End: l.pos}
}

func (l *Lexer) illegal(pos Position) Token {
	ch := l.ch
	l.readChar()
	l.addDiagnostic(pos, l.pos, fmt.Sprintf(msgUnexpectedChar, ch))
	return Token{Type: ILLEGAL, Literal: string(ch), Pos: pos, End: l.pos}
}

// skipWhitespaceAndComments skips spaces and // line comments.
func (l *Lexer) skipWhitespaceAndComments() {
	for !l.atEOF() {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r':
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			for !l.atEOF() && l.ch != '\n' {
				l.readChar()
			}
		default:
			return
		}
	}
}

// startsObfuscatedString reports whether h/H prefixes a string literal.
func (l *Lexer) startsObfuscatedString() bool {
	next := l.peekChar()
	if next == '\'' || next == '"' {
		return true
	}
	return next == '@' && (l.peekCharAt(1) == '\'' || l.peekCharAt(1) == '"')
}

// readWord reads letters, digits and underscores.
func (l *Lexer) readWord() string {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	return l.input[start:l.pos]
}

// readIdentifier reads a name, a dashed operator word, or a typed literal.
func (l *Lexer) readIdentifier(pos Position) Token {
	start := l.pos
	if l.ch == '$' {
		l.readChar()
	}
	l.readWord()
	word := l.input[start:l.pos]

	if l.ch == '-' && isLetter(l.peekChar()) {
		if dashed := l.peekDashedWord(word); dashed != "" {
			for l.pos < start+len(dashed) {
				l.readChar()
			}
			return Token{Type: IDENT, Literal: dashed, Pos: pos, End: l.pos}
		}
	}

	if word == "in" && l.ch == '~' {
		l.readChar()
		return Token{Type: IDENT, Literal: "in~", Pos: pos, End: l.pos}
	}

	if typedLiteralWords[word] && l.nextNonSpace() == '(' {
		return l.readTypedLiteral(pos, start)
	}

	return Token{Type: IDENT, Literal: word, Pos: pos, End: l.pos}
}

// peekDashedWord returns word-suffix if it forms a known dashed word.
func (l *Lexer) peekDashedWord(word string) string {
	i := l.pos + 1
	for i < len(l.input) && (isLetter(l.input[i]) || isDigit(l.input[i]) || l.input[i] == '_') {
		i++
	}
	candidate := word + "-" + l.input[l.pos+1:i]
	if dashedWords[candidate] {
		return candidate
	}
	return ""
}

// nextNonSpace returns the next non-blank character at or after the current one.
func (l *Lexer) nextNonSpace() byte {
	for i := l.pos; i < len(l.input); i++ {
		switch l.input[i] {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			return l.input[i]
		}
	}
	return 0
}

// readTypedLiteral reads name(...) verbatim, balancing parentheses.
func (l *Lexer) readTypedLiteral(pos Position, start int) Token {
	for l.ch != '(' {
		l.readChar()
	}
	depth := 0
	for !l.atEOF() {
		switch l.ch {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				l.readChar()
				return Token{Type: LITERAL, Literal: l.input[start:l.pos], Pos: pos, End: l.pos}
			}
		case '\'', '"':
			if !l.skipQuoted() {
				l.addDiagnostic(pos, l.pos, msgUnterminatedString)
				return Token{Type: LITERAL, Literal: l.input[start:l.pos], Pos: pos, End: l.pos}
			}
			continue
		}
		l.readChar()
	}
	l.addDiagnostic(pos, l.pos, msgUnterminatedLiteral)
	return Token{Type: LITERAL, Literal: l.input[start:l.pos], Pos: pos, End: l.pos}
}

// skipQuoted skips a quoted run inside a typed literal, returning false at EOF.
func (l *Lexer) skipQuoted() bool {
	quote := l.ch
	l.readChar()
	for !l.atEOF() {
		switch l.ch {
		case '\\':
			l.readChar()
		case quote:
			l.readChar()
			return true
		}
		l.readChar()
	}
	return false
}

// readString reads a '...' or "..." literal with backslash escapes.
func (l *Lexer) readString(pos Position) Token {
	start := pos.Offset
	quote := l.ch
	l.readChar()
	for {
		switch {
		case l.atEOF() || l.ch == '\n':
			l.addDiagnostic(pos, l.pos, msgUnterminatedString)
			return Token{Type: STRING, Literal: l.input[start:l.pos], Pos: pos, End: l.pos}
		case l.ch == '\\':
			l.readChar()
			if !l.atEOF() && l.ch != '\n' {
				l.readChar()
			}
		case l.ch == quote:
			l.readChar()
			return Token{Type: STRING, Literal: l.input[start:l.pos], Pos: pos, End: l.pos}
		default:
			l.readChar()
		}
	}
}

// readVerbatimString reads @'...' where a doubled quote escapes itself.
func (l *Lexer) readVerbatimString(pos Position) Token {
	start := pos.Offset
	quote := l.ch
	l.readChar()
	for {
		switch {
		case l.atEOF() || l.ch == '\n':
			l.addDiagnostic(pos, l.pos, msgUnterminatedString)
			return Token{Type: STRING, Literal: l.input[start:l.pos], Pos: pos, End: l.pos}
		case l.ch == quote && l.peekChar() == quote:
			l.readChar()
			l.readChar()
		case l.ch == quote:
			l.readChar()
			return Token{Type: STRING, Literal: l.input[start:l.pos], Pos: pos, End: l.pos}
		default:
			l.readChar()
		}
	}
}

// readMultilineString reads a ```...``` block.
func (l *Lexer) readMultilineString(pos Position) Token {
	start := pos.Offset
	for i := 0; i < 3; i++ {
		l.readChar()
	}
	for !l.atEOF() {
		if strings.HasPrefix(l.input[l.pos:], "```") {
			for i := 0; i < 3; i++ {
				l.readChar()
			}
			return Token{Type: STRING, Literal: l.input[start:l.pos], Pos: pos, End: l.pos}
		}
		l.readChar()
	}
	l.addDiagnostic(pos, l.pos, msgUnterminatedString)
	return Token{Type: STRING, Literal: l.input[start:l.pos], Pos: pos, End: l.pos}
}

// readNumber reads integers, reals, hex and timespan literals such as 1.5h.
func (l *Lexer) readNumber(pos Position) Token {
	start := pos.Offset
	if l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X') {
		l.readChar()
		l.readChar()
		for isHexDigit(l.ch) {
			l.readChar()
		}
		return Token{Type: NUMBER, Literal: l.input[start:l.pos], Pos: pos, End: l.pos}
	}

	for isDigit(l.ch) {
		l.readChar()
	}
	// A '.' followed by another '.' is a range separator, not a fraction
	if l.ch == '.' && l.peekChar() != '.' {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if (l.ch == 'e' || l.ch == 'E') && (isDigit(l.peekChar()) ||
		((l.peekChar() == '+' || l.peekChar() == '-') && isDigit(l.peekCharAt(1)))) {
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	// timespan unit suffix: 1d, 10ms, 2microseconds
	for isLetter(l.ch) {
		l.readChar()
	}
	return Token{Type: NUMBER, Literal: l.input[start:l.pos], Pos: pos, End: l.pos}
}

// Tokenize returns every token up to and including EOF.
func (l *Lexer) Tokenize() []Token {
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens
		}
	}
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch >= 0x80
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}
