package parser

import "fmt"

// queryParser holds the token window for one parse.
type queryParser struct {
	lexer   *Lexer
	text    string
	token   Token // current token
	peek    Token // lookahead token
	peek2   Token // second lookahead token
	prevEnd int   // end offset of the last consumed token

	// depth counts nested expressions, operators and blocks
	depth   int
	tooDeep bool

	diagnostics []*Diagnostic
}

// maxNestingDepth bounds recursion so deeply nested input fails with a
// diagnostic instead of exhausting the stack
const maxNestingDepth = 1000

func newQueryParser(text string) *queryParser {
	p := &queryParser{
		lexer: NewLexer(text),
		text:  text,
	}
	// Read three tokens to initialize current, peek, and peek2
	p.nextToken()
	p.nextToken()
	p.nextToken()
	p.prevEnd = 0
	return p
}

// ---------- Token Helpers ----------

// nextToken advances to the next token.
func (p *queryParser) nextToken() {
	p.prevEnd = p.token.End
	p.token = p.peek
	p.peek = p.peek2
	p.peek2 = p.lexer.NextToken()
}

// check returns true if the current token is of the given type.
func (p *queryParser) check(t TokenType) bool {
	return p.token.Type == t
}

// match consumes the current token if it matches and returns true.
func (p *queryParser) match(t TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	return false
}

// expect consumes the current token if it matches, otherwise adds a diagnostic.
func (p *queryParser) expect(t TokenType) bool {
	if p.match(t) {
		return true
	}
	p.errorf(msgExpectedToken, t)
	return false
}

// enter descends one nesting level. It reports false, recording a single
// diagnostic per query, once maxNestingDepth is exceeded. Every call must
// be paired with leave.
func (p *queryParser) enter() bool {
	p.depth++
	if p.depth <= maxNestingDepth {
		return true
	}
	if !p.tooDeep {
		p.tooDeep = true
		p.errorf(msgNestingTooDeep, maxNestingDepth)
	}
	return false
}

func (p *queryParser) leave() {
	p.depth--
}

// errorf records a diagnostic at the current token.
func (p *queryParser) errorf(format string, args ...any) {
	end := p.token.End
	if end <= p.token.Pos.Offset {
		end = p.token.Pos.Offset
	}
	p.diagnostics = append(p.diagnostics, &Diagnostic{
		Start:   p.token.Pos.Offset,
		End:     end,
		Line:    p.token.Pos.Line,
		Column:  p.token.Pos.Column,
		Message: fmt.Sprintf(format, args...),
	})
}

// makeBase builds the shared node fields from first up to the last consumed token.
func (p *queryParser) makeBase(first Token) base {
	start := first.Pos.Offset
	end := p.prevEnd
	if end < start {
		end = start
	}
	return base{
		span:  Span{Start: start, End: end},
		text:  p.text[start:end],
		first: first,
	}
}

// synchronize skips to the end of the current statement after an error.
func (p *queryParser) synchronize(stop TokenType) {
	depth := 0
	for !p.check(EOF) {
		switch p.token.Type {
		case SEMICOLON:
			if depth == 0 {
				return
			}
		case LBRACE:
			depth++
		case RBRACE:
			if depth == 0 && stop == RBRACE {
				return
			}
			depth--
		}
		p.nextToken()
	}
}

// ---------- Statements ----------

// parseQuery parses statements until EOF or the stop token.
func (p *queryParser) parseQuery(stop TokenType) *Query {
	first := p.token
	q := &Query{}
	ok := p.enter()
	defer p.leave()
	if !ok {
		p.synchronize(stop)
		q.base = p.makeBase(first)
		return q
	}
	for !p.check(EOF) && !p.check(stop) {
		if p.match(SEMICOLON) {
			continue
		}

		errs := len(p.diagnostics)
		if stmt := p.parseStatement(); stmt != nil {
			q.Statements = append(q.Statements, stmt)
		}
		if len(p.diagnostics) > errs {
			p.synchronize(stop)
			continue
		}

		if !p.check(SEMICOLON) && !p.check(EOF) && !p.check(stop) {
			p.errorf(msgUnexpectedToken, p.token.Literal)
			p.synchronize(stop)
		}
	}
	q.base = p.makeBase(first)
	return q
}

// parseStatement parses one statement.
func (p *queryParser) parseStatement() Node {
	switch {
	case p.token.Is("let") && p.startsName(p.peek):
		return p.parseLetStatement()
	case p.token.Is("set") && p.peek.Type == IDENT:
		return p.parseSetStatement()
	case p.token.Is("declare") && p.peek.Is("query_parameters"):
		return p.parseDeclareStatement()
	case p.token.Is("alias") && p.peek.Is("database"):
		return p.parseAliasStatement()
	}

	first := p.token
	expr := p.parsePipeExpression()
	if expr == nil {
		return nil
	}
	stmt := &ExpressionStatement{Expr: expr}
	stmt.base = p.makeBase(first)
	return stmt
}

// startsName reports whether tok can begin a declared name.
func (p *queryParser) startsName(tok Token) bool {
	return tok.Type == IDENT || tok.Type == LBRACKET
}

// parseLetStatement parses let Name = Value.
func (p *queryParser) parseLetStatement() Node {
	first := p.token
	p.nextToken() // let

	name := p.parseNameDeclaration()
	if name == nil {
		return nil
	}
	if !p.expect(ASSIGN) {
		return nil
	}

	var value Node
	if p.startsFunctionDeclaration() {
		value = p.parseFunctionDeclaration()
	} else {
		value = p.parsePipeExpression()
	}
	if value == nil {
		return nil
	}

	stmt := &LetStatement{Name: name, Value: value}
	stmt.base = p.makeBase(first)
	return stmt
}

// startsFunctionDeclaration looks ahead for (name: ...) or () { or view (.
func (p *queryParser) startsFunctionDeclaration() bool {
	if p.token.Is("view") && p.peek.Type == LPAREN {
		return true
	}
	if !p.check(LPAREN) {
		return false
	}
	switch {
	case p.peek.Type == RPAREN && p.peek2.Type == LBRACE:
		return true
	case p.peek.Type == IDENT && p.peek2.Type == COLON:
		return true
	}
	return false
}

// parseFunctionDeclaration parses [view] (params) { body }.
func (p *queryParser) parseFunctionDeclaration() Node {
	first := p.token
	decl := &FunctionDeclaration{}
	if p.token.Is("view") {
		decl.View = true
		p.nextToken()
	}

	params, ok := p.parseParameterList()
	if !ok {
		return nil
	}
	decl.Params = params

	if !p.expect(LBRACE) {
		return nil
	}
	decl.Body = p.parseQuery(RBRACE)
	if !p.expect(RBRACE) {
		return nil
	}

	decl.base = p.makeBase(first)
	return decl
}

// parseParameterList parses (name:type [= default], ...).
func (p *queryParser) parseParameterList() ([]*Parameter, bool) {
	if !p.expect(LPAREN) {
		return nil, false
	}

	var params []*Parameter
	for !p.check(RPAREN) {
		param := p.parseParameter()
		if param == nil {
			return nil, false
		}
		params = append(params, param)
		if !p.match(COMMA) {
			break
		}
	}

	if !p.expect(RPAREN) {
		return nil, false
	}
	return params, true
}

// parseParameter parses name:type or name:(schema), with an optional default.
func (p *queryParser) parseParameter() *Parameter {
	first := p.token
	if !p.check(IDENT) {
		p.errorf(msgExpectedToken, IDENT)
		return nil
	}
	param := &Parameter{Name: p.token.Literal}
	p.nextToken()

	if !p.expect(COLON) {
		return nil
	}

	if p.check(LPAREN) {
		start := p.token.Pos.Offset
		if !p.skipBalanced(LPAREN, RPAREN) {
			return nil
		}
		param.Type = p.text[start:p.prevEnd]
		param.Tabular = true
	} else {
		typ, ok := p.parseTypeName()
		if !ok {
			return nil
		}
		param.Type = typ
	}

	if p.match(ASSIGN) {
		param.Default = p.parseExpression()
		if param.Default == nil {
			return nil
		}
	}

	param.base = p.makeBase(first)
	return param
}

// parseTypeName parses a scalar type name such as string or datetime.
func (p *queryParser) parseTypeName() (string, bool) {
	if p.check(IDENT) {
		name := p.token.Literal
		p.nextToken()
		return name, true
	}
	p.errorf(msgExpectedToken, "type name")
	return "", false
}

// skipBalanced consumes open ... close, honoring nesting.
func (p *queryParser) skipBalanced(open, close TokenType) bool {
	if !p.expect(open) {
		return false
	}
	depth := 1
	for depth > 0 {
		switch p.token.Type {
		case EOF:
			p.errorf(msgExpectedToken, close)
			return false
		case open:
			depth++
		case close:
			depth--
		}
		p.nextToken()
	}
	return true
}

// parseSetStatement parses set name [= value].
func (p *queryParser) parseSetStatement() Node {
	first := p.token
	p.nextToken() // set

	stmt := &SetStatement{Keyword: "set", Name: p.token.Literal}
	p.nextToken()
	// option names may be dotted: set query_results_cache_max_age = ...
	for p.check(DOT) && p.peek.Type == IDENT {
		p.nextToken()
		stmt.Name += "." + p.token.Literal
		p.nextToken()
	}

	if p.match(ASSIGN) {
		stmt.Value = p.parseExpression()
		if stmt.Value == nil {
			return nil
		}
	}

	stmt.base = p.makeBase(first)
	return stmt
}

// parseDeclareStatement parses declare query_parameters(...).
func (p *queryParser) parseDeclareStatement() Node {
	first := p.token
	p.nextToken() // declare
	p.nextToken() // query_parameters

	params, ok := p.parseParameterList()
	if !ok {
		return nil
	}

	stmt := &SetStatement{Keyword: "declare", Name: "query_parameters", Params: params}
	stmt.base = p.makeBase(first)
	return stmt
}

// parseAliasStatement parses alias database Name = expr.
func (p *queryParser) parseAliasStatement() Node {
	first := p.token
	p.nextToken() // alias
	p.nextToken() // database

	name := p.parseNameDeclaration()
	if name == nil || !p.expect(ASSIGN) {
		return nil
	}

	value := p.parseExpression()
	if value == nil {
		return nil
	}

	stmt := &SetStatement{Keyword: "alias", Name: name.Name, Value: value}
	stmt.base = p.makeBase(first)
	return stmt
}

// parseNameDeclaration parses Name or ['Name'].
func (p *queryParser) parseNameDeclaration() *NameDeclaration {
	first := p.token
	var name string
	switch {
	case p.check(IDENT):
		name = p.token.Literal
		p.nextToken()
	case p.check(LBRACKET) && p.peek.Type == STRING && p.peek2.Type == RBRACKET:
		p.nextToken()
		name = unquoteString(p.token.Literal)
		p.nextToken()
		p.nextToken()
	default:
		p.errorf(msgExpectedToken, "name")
		return nil
	}

	decl := &NameDeclaration{Name: name}
	decl.base = p.makeBase(first)
	return decl
}
