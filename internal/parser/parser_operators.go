package parser

// pipeOperators lists the operator keywords accepted after '|'
var pipeOperators = map[string]bool{
	"as": true, "assert-schema": true, "consume": true, "count": true,
	"distinct": true, "evaluate": true, "extend": true, "facet": true,
	"filter": true, "fork": true, "getschema": true, "graph-match": true,
	"graph-merge": true, "invoke": true, "join": true, "limit": true,
	"lookup": true, "make-graph": true, "make-series": true, "mv-apply": true,
	"mv-expand": true, "order": true, "parse": true, "parse-kv": true,
	"parse-where": true, "partition": true, "project": true,
	"project-away": true, "project-keep": true, "project-rename": true,
	"project-reorder": true, "project-smart": true, "reduce": true,
	"render": true, "sample": true, "sample-distinct": true, "scan": true,
	"search": true, "serialize": true, "sort": true, "summarize": true,
	"take": true, "top": true, "top-hitters": true, "top-nested": true,
	"union": true, "where": true,
}

// clauseWords separate the parts of an operator body (summarize ... by ...)
var clauseWords = map[string]bool{
	"by": true, "on": true, "with": true, "asc": true, "desc": true,
	"nulls": true, "first": true, "last": true, "to": true, "of": true,
	"from": true, "step": true, "limit": true,
}

// bodyRequired lists operators that are incomplete without arguments
var bodyRequired = map[string]bool{
	"where": true, "filter": true, "extend": true, "project": true,
	"project-away": true, "project-keep": true, "project-rename": true,
	"project-reorder": true, "take": true, "limit": true, "top": true,
	"sort": true, "order": true, "mv-expand": true, "mv-apply": true,
	"parse": true, "parse-where": true, "summarize": true, "distinct": true,
}

// operatorParams lists the named parameters each operator accepts besides
// hint.*; join and lookup accept any name=value before their right side.
var operatorParams = map[string]map[string]bool{
	"union":       {"kind": true, "withsource": true, "isfuzzy": true},
	"mv-expand":   {"kind": true, "bagexpansion": true, "with_itemindex": true},
	"mv-apply":    {"with_itemindex": true},
	"parse":       {"kind": true, "flags": true},
	"parse-where": {"kind": true, "flags": true},
	"parse-kv":    {"kind": true, "pair_delimiter": true, "kv_delimiter": true, "quote": true, "escape": true, "greedy": true},
	"make-series": {"kind": true},
	"search":      {"kind": true},
	"find":        {"withsource": true},
	"reduce":      {"kind": true, "characters": true, "threshold": true},
	"scan":        {"with_match_id": true, "declare": true},
	"summarize":   {},
	"distinct":    {},
	"partition":   {},
	"evaluate":    {},
	"as":          {},
	"facet":       {},
	"top-nested":  {},
}

// parsePipeExpression parses head ('|' operator)*.
func (p *queryParser) parsePipeExpression() Node {
	first := p.token

	var expr Node
	if p.startsLeadingOperator() {
		expr = p.parseLeadingOperator()
	} else {
		expr = p.parseExpression()
	}
	if expr == nil {
		return nil
	}

	for p.check(PIPE) {
		p.nextToken()
		op := p.parsePipeOperator()
		if op == nil {
			return nil
		}
		pipe := &PipeExpression{Expr: expr, Operator: op}
		pipe.base = p.makeBase(first)
		expr = pipe
	}
	return expr
}

// startsLeadingOperator reports whether the current token begins a tabular
// operator that needs no input: union, print, range, datatable ...
func (p *queryParser) startsLeadingOperator() bool {
	if !p.check(IDENT) {
		return false
	}
	switch p.token.Literal {
	case "union", "print", "evaluate":
		return true
	case "search", "find":
		return p.peek.Type != PIPE && p.peek.Type != SEMICOLON && p.peek.Type != EOF
	case "datatable", "externaldata":
		return p.peek.Type == LPAREN
	case "range":
		return p.peek.Type == IDENT
	}
	return false
}

func (p *queryParser) parseLeadingOperator() Node {
	if p.token.Is("union") {
		return p.parseUnion()
	}
	return p.parseOperator()
}

// parsePipeOperator parses the operator after a '|'.
func (p *queryParser) parsePipeOperator() Node {
	ok := p.enter()
	defer p.leave()
	if !ok {
		return nil
	}

	if !p.check(IDENT) {
		p.errorf(msgExpectedOperator)
		return nil
	}

	switch p.token.Literal {
	case "join":
		return p.parseJoin()
	case "lookup":
		return p.parseLookup()
	case "union":
		return p.parseUnion()
	}

	if !pipeOperators[p.token.Literal] {
		p.errorf(msgUnknownOperator, p.token.Literal)
		return nil
	}
	return p.parseOperator()
}

// isParamStart reports whether a name=value parameter for op starts here.
func (p *queryParser) isParamStart(op string) bool {
	if p.token.Is("hint") && p.peek.Type == DOT {
		return true
	}
	if p.token.Type != IDENT || p.peek.Type != ASSIGN {
		return false
	}
	if op == "join" || op == "lookup" {
		return true
	}
	return operatorParams[op][p.token.Literal]
}

// parseParams parses the leading name=value parameters of op.
func (p *queryParser) parseParams(op string) ([]*NamedParameter, bool) {
	var params []*NamedParameter
	for p.isParamStart(op) {
		param := p.parseNamedParameter()
		if param == nil {
			return nil, false
		}
		params = append(params, param)
	}
	return params, true
}

// parseNamedParameter parses name[.name]* = value. The value is a single
// token so that join kind=leftouter (T) is not read as a call.
func (p *queryParser) parseNamedParameter() *NamedParameter {
	first := p.token
	name := p.token.Literal
	p.nextToken()
	for p.check(DOT) && p.peek.Type == IDENT {
		p.nextToken()
		name += "." + p.token.Literal
		p.nextToken()
	}
	if !p.expect(ASSIGN) {
		return nil
	}

	value := p.parseParamValue()
	if value == nil {
		return nil
	}

	param := &NamedParameter{Name: name, Expr: value}
	param.base = p.makeBase(first)
	return param
}

func (p *queryParser) parseParamValue() Node {
	first := p.token
	switch p.token.Type {
	case IDENT:
		p.nextToken()
		if first.Literal == "true" || first.Literal == "false" {
			lit := &Literal{Token: first}
			lit.base = p.makeBase(first)
			return lit
		}
		ref := &NameReference{Name: first.Literal}
		ref.base = p.makeBase(first)
		return ref
	case NUMBER, STRING, LITERAL:
		p.nextToken()
		lit := &Literal{Token: first}
		lit.base = p.makeBase(first)
		return lit
	case MINUS:
		if p.peek.Type == NUMBER {
			p.nextToken() // -
			num := p.token
			p.nextToken()
			lit := &Literal{Token: num}
			lit.base = p.makeBase(num)
			un := &Unary{Op: "-", Expr: lit}
			un.base = p.makeBase(first)
			return un
		}
	}
	p.errorf(msgExpectedExpression)
	return nil
}

// parseJoin parses join [params] Right [on conditions].
func (p *queryParser) parseJoin() Node {
	first := p.token
	p.nextToken() // join

	params, ok := p.parseParams("join")
	if !ok {
		return nil
	}
	right := p.parseExpression()
	if right == nil {
		return nil
	}
	conditions, ok := p.parseJoinConditions()
	if !ok {
		return nil
	}

	op := &JoinOperator{Params: params, Right: right, Conditions: conditions}
	op.base = p.makeBase(first)
	return op
}

// parseLookup parses lookup [params] Right on conditions.
func (p *queryParser) parseLookup() Node {
	first := p.token
	p.nextToken() // lookup

	params, ok := p.parseParams("lookup")
	if !ok {
		return nil
	}
	right := p.parseExpression()
	if right == nil {
		return nil
	}
	conditions, ok := p.parseJoinConditions()
	if !ok {
		return nil
	}

	op := &LookupOperator{Params: params, Right: right, Conditions: conditions}
	op.base = p.makeBase(first)
	return op
}

func (p *queryParser) parseJoinConditions() ([]Node, bool) {
	if !p.token.Is("on") {
		return nil, true
	}
	p.nextToken()
	conditions := p.parseExpressionList()
	if conditions == nil {
		return nil, false
	}
	return conditions, true
}

// parseUnion parses union [params] operand (',' operand)*.
func (p *queryParser) parseUnion() Node {
	first := p.token
	p.nextToken() // union

	params, ok := p.parseParams("union")
	if !ok {
		return nil
	}

	var operands []Node
	for {
		operand := p.parseExpression()
		if operand == nil {
			return nil
		}
		operands = append(operands, operand)
		if !p.match(COMMA) {
			break
		}
	}

	op := &UnionOperator{Params: params, Operands: operands}
	op.base = p.makeBase(first)
	return op
}

// parseOperator parses every operator without a dedicated node type. The
// body is read as a flat sequence of expressions, with clause words such as
// by, on and with consumed between them.
func (p *queryParser) parseOperator() Node {
	first := p.token
	keyword := p.token.Literal
	p.nextToken()

	op := &Operator{Keyword: keyword}
	params, ok := p.parseParams(keyword)
	if !ok {
		return nil
	}
	op.Params = params

	switch keyword {
	case "datatable", "externaldata":
		if !p.parseSchemaAndRows(op) {
			return nil
		}
	case "search", "find":
		if p.token.Is("in") && p.peek.Type == LPAREN {
			p.nextToken()
			sources := p.parsePrimary()
			if sources == nil {
				return nil
			}
			op.Sources = unwrapSources(sources)
		}
	}

	for !p.atOperatorEnd() {
		if p.match(COMMA) {
			continue
		}
		if p.isClauseWord() {
			p.nextToken()
			continue
		}

		var arg Node
		if p.check(LBRACE) {
			arg = p.parseBlock()
		} else if p.startsImplicitSubquery() {
			arg = p.parseImplicitSubquery()
		} else {
			arg = p.parseOperatorArg()
		}
		if arg == nil {
			return nil
		}
		op.Args = append(op.Args, arg)
	}

	if len(op.Args) == 0 && bodyRequired[keyword] {
		p.errorf(msgExpectedExpression)
		return nil
	}

	op.base = p.makeBase(first)
	return op
}

// unwrapSources flattens the (T1, T2) list of a search/find in clause.
func unwrapSources(n Node) []Node {
	switch v := n.(type) {
	case *List:
		return v.Items
	case *Parenthesized:
		return []Node{v.Expr}
	}
	return []Node{n}
}

// atOperatorEnd reports whether the operator body has ended.
func (p *queryParser) atOperatorEnd() bool {
	switch p.token.Type {
	case EOF, PIPE, SEMICOLON, RPAREN, RBRACE, RBRACKET:
		return true
	}
	return false
}

// isClauseWord reports whether the current token is a body separator
// rather than the start of an expression.
func (p *queryParser) isClauseWord() bool {
	if p.token.Type != IDENT || !clauseWords[p.token.Literal] {
		return false
	}
	switch p.peek.Type {
	case ASSIGN, DOT, LBRACKET:
		return false
	case LPAREN:
		// first(x) and last(x) are aggregates, on (...) and with (...) are clauses
		return p.token.Literal != "first" && p.token.Literal != "last"
	}
	return true
}

// startsImplicitSubquery detects ( operator ... ) bodies of fork, facet,
// partition and mv-apply, which have no source expression of their own.
func (p *queryParser) startsImplicitSubquery() bool {
	if !p.check(LPAREN) || p.peek.Type != IDENT || !pipeOperators[p.peek.Literal] {
		return false
	}
	switch p.peek2.Type {
	case IDENT, NUMBER, STRING, LITERAL, LPAREN, STAR, MINUS, LBRACKET, PIPE:
		return true
	}
	return false
}

// parseImplicitSubquery parses ( operator ('|' operator)* ).
func (p *queryParser) parseImplicitSubquery() Node {
	first := p.token
	p.nextToken() // (

	opFirst := p.token
	op := p.parsePipeOperator()
	if op == nil {
		return nil
	}
	head := &PipeExpression{Operator: op}
	head.base = p.makeBase(opFirst)

	var expr Node = head
	for p.check(PIPE) {
		p.nextToken()
		next := p.parsePipeOperator()
		if next == nil {
			return nil
		}
		pipe := &PipeExpression{Expr: expr, Operator: next}
		pipe.base = p.makeBase(opFirst)
		expr = pipe
	}

	if !p.expect(RPAREN) {
		return nil
	}
	paren := &Parenthesized{Expr: expr}
	paren.base = p.makeBase(first)
	return paren
}

// parseBlock parses the { subquery } body of partition and similar operators.
func (p *queryParser) parseBlock() Node {
	p.nextToken() // {
	q := p.parseQuery(RBRACE)
	if !p.expect(RBRACE) {
		return nil
	}
	return q
}

// parseOperatorArg parses one body element, including Name:type columns.
func (p *queryParser) parseOperatorArg() Node {
	first := p.token
	expr := p.parseNamedOrExpression()
	if expr == nil {
		return nil
	}
	if !p.check(COLON) {
		return expr
	}

	p.nextToken() // :
	typ, ok := p.parseTypeName()
	if !ok {
		return nil
	}
	col := &TypedColumn{Name: asDeclaration(expr), Type: typ}
	col.base = p.makeBase(first)
	return col
}

// parseSchemaAndRows parses the (col:type, ...) [rows] body of datatable and
// externaldata.
func (p *queryParser) parseSchemaAndRows(op *Operator) bool {
	schemaFirst := p.token
	if !p.expect(LPAREN) {
		return false
	}
	schema := &List{}
	for !p.check(RPAREN) {
		col := p.parseOperatorArg()
		if col == nil {
			return false
		}
		schema.Items = append(schema.Items, col)
		if !p.match(COMMA) {
			break
		}
	}
	if !p.expect(RPAREN) {
		return false
	}
	schema.base = p.makeBase(schemaFirst)

	rowsFirst := p.token
	if !p.expect(LBRACKET) {
		return false
	}
	rows := &List{}
	for !p.check(RBRACKET) {
		item := p.parseExpression()
		if item == nil {
			return false
		}
		rows.Items = append(rows.Items, item)
		if !p.match(COMMA) {
			break
		}
	}
	if !p.expect(RBRACKET) {
		return false
	}
	rows.base = p.makeBase(rowsFirst)

	op.Args = append(op.Args, schema, rows)
	return true
}

// asDeclaration turns a parsed name reference into the name it declares.
func asDeclaration(n Node) Node {
	ref, ok := n.(*NameReference)
	if !ok {
		return n
	}
	return &NameDeclaration{base: ref.base, Name: ref.Name}
}
