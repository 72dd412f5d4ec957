package parser

import "strings"

// Operator precedence levels, lowest first
const (
	precLowest = iota
	precOr
	precAnd
	precCompare
	precAdd
	precMul
)

// stringOperators are the word operators that compare strings
var stringOperators = map[string]bool{
	"contains": true, "contains_cs": true,
	"has": true, "has_cs": true, "has_any": true, "has_all": true,
	"hasprefix": true, "hasprefix_cs": true,
	"hassuffix": true, "hassuffix_cs": true,
	"startswith": true, "startswith_cs": true,
	"endswith": true, "endswith_cs": true,
	"like": true, "notlike": true, "likecs": true, "notlikecs": true,
	"in": true, "in~": true, "matches": true, "between": true,
}

// infixPrecedence returns the binding power of the current token as an
// infix operator, or precLowest when it is not one.
func (p *queryParser) infixPrecedence() int {
	switch p.token.Type {
	case EQ, NE, LT, GT, LE, GE, TILDEEQ, NOTTILDE, NEGWORD:
		return precCompare
	case PLUS, MINUS:
		return precAdd
	case STAR, SLASH, PERCENT:
		return precMul
	case IDENT:
		switch p.token.Literal {
		case "or":
			return precOr
		case "and":
			return precAnd
		}
		if stringOperators[p.token.Literal] {
			return precCompare
		}
	}
	return precLowest
}

// parseExpression parses a scalar or tabular expression without pipes.
func (p *queryParser) parseExpression() Node {
	return p.parseBinary(precLowest)
}

// parseExpressionList parses expr (',' expr)*.
func (p *queryParser) parseExpressionList() []Node {
	var items []Node
	for {
		item := p.parseExpression()
		if item == nil {
			return nil
		}
		items = append(items, item)
		if !p.match(COMMA) {
			return items
		}
	}
}

// parseNamedOrExpression parses expr or name = expr.
func (p *queryParser) parseNamedOrExpression() Node {
	first := p.token
	expr := p.parseExpression()
	if expr == nil {
		return nil
	}
	if !p.check(ASSIGN) {
		return expr
	}

	names, ok := declaredNames(expr)
	if !ok {
		p.errorf(msgUnexpectedToken, p.token.Literal)
		return nil
	}
	p.nextToken() // =

	value := p.parseExpression()
	if value == nil {
		return nil
	}

	named := &NamedExpression{Names: names, Expr: value}
	named.base = p.makeBase(first)
	return named
}

// declaredNames converts the left side of name = expr into declarations.
func declaredNames(n Node) ([]*NameDeclaration, bool) {
	switch v := n.(type) {
	case *NameReference:
		return []*NameDeclaration{{base: v.base, Name: v.Name}}, true
	case *Parenthesized:
		return declaredNames(v.Expr)
	case *List:
		var names []*NameDeclaration
		for _, item := range v.Items {
			ref, ok := item.(*NameReference)
			if !ok {
				return nil, false
			}
			names = append(names, &NameDeclaration{base: ref.base, Name: ref.Name})
		}
		return names, true
	}
	return nil, false
}

// parseParenItem parses an element inside parentheses, where pipes,
// named expressions and a bare * are allowed.
func (p *queryParser) parseParenItem() Node {
	if p.startsImplicitSubquery() {
		return p.parseImplicitSubquery()
	}

	first := p.token
	var expr Node
	if p.startsLeadingOperator() {
		expr = p.parseLeadingOperator()
	} else {
		expr = p.parseNamedOrExpression()
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

// parseBinary is the precedence climbing loop.
func (p *queryParser) parseBinary(minPrec int) Node {
	first := p.token
	left := p.parseUnary()
	if left == nil {
		return nil
	}

	for {
		prec := p.infixPrecedence()
		if prec == precLowest || prec <= minPrec {
			return left
		}
		// a trailing * is a parse pattern wildcard, not a product
		if p.check(STAR) && !startsOperand(p.peek) {
			return left
		}

		op := p.token
		opText := op.Literal
		if op.Type != IDENT && op.Type != NEGWORD {
			opText = p.text[op.Pos.Offset:op.End]
		}

		if opText == "between" || opText == "!between" {
			left = p.parseBetween(first, left, opText)
			if left == nil {
				return nil
			}
			continue
		}

		p.nextToken()
		if opText == "matches" {
			if !p.token.Is("regex") {
				p.errorf(msgExpectedToken, "regex")
				return nil
			}
			p.nextToken()
			opText = "matches regex"
		}

		right := p.parseBinary(prec)
		if right == nil {
			return nil
		}

		bin := &Binary{Op: opText, Left: left, Right: right}
		bin.base = p.makeBase(first)
		left = bin
	}
}

// startsOperand reports whether tok can begin the right side of a binary
// expression.
func startsOperand(tok Token) bool {
	switch tok.Type {
	case IDENT, NUMBER, STRING, LITERAL, LPAREN, LBRACKET, MINUS, PLUS:
		return true
	}
	return false
}

// parseBetween parses Expr between (Low .. High).
func (p *queryParser) parseBetween(first Token, expr Node, op string) Node {
	p.nextToken() // between
	if !p.expect(LPAREN) {
		return nil
	}
	low := p.parseExpression()
	if low == nil || !p.expect(DOTDOT) {
		return nil
	}
	high := p.parseExpression()
	if high == nil || !p.expect(RPAREN) {
		return nil
	}

	n := &Between{Op: op, Expr: expr, Low: low, High: high}
	n.base = p.makeBase(first)
	return n
}

// parseUnary parses prefix operators.
func (p *queryParser) parseUnary() Node {
	ok := p.enter()
	defer p.leave()
	if !ok {
		return nil
	}

	first := p.token
	switch {
	case p.check(MINUS), p.check(PLUS):
		op := p.token.Literal
		p.nextToken()
		expr := p.parseUnary()
		if expr == nil {
			return nil
		}
		un := &Unary{Op: op, Expr: expr}
		un.base = p.makeBase(first)
		return un
	}
	return p.parsePostfix()
}

// parsePostfix parses a primary followed by .name, .call() and [index].
func (p *queryParser) parsePostfix() Node {
	first := p.token
	expr := p.parsePrimary()
	if expr == nil {
		return nil
	}

	for {
		switch {
		case p.check(DOT) && (p.peek.Type == IDENT || p.peek.Type == LBRACKET):
			p.nextToken() // .
			selector := p.parseSelector()
			if selector == nil {
				return nil
			}
			path := &Path{Expr: expr, Selector: selector}
			path.base = p.makeBase(first)
			expr = path
		case p.check(LBRACKET) && p.token.Pos.Offset == p.prevEnd:
			p.nextToken() // [
			index := p.parseExpression()
			if index == nil || !p.expect(RBRACKET) {
				return nil
			}
			access := &ElementAccess{Expr: expr, Index: index}
			access.base = p.makeBase(first)
			expr = access
		default:
			return expr
		}
	}
}

// parseSelector parses the part after a dot: name, call(...) or ['name'].
func (p *queryParser) parseSelector() Node {
	if p.check(LBRACKET) {
		return p.parseBracketName()
	}
	if p.peek.Type == LPAREN {
		return p.parseCall()
	}
	first := p.token
	ref := &NameReference{Name: p.token.Literal}
	p.nextToken()
	ref.base = p.makeBase(first)
	return ref
}

// parsePrimary parses literals, names, calls and parenthesized expressions.
func (p *queryParser) parsePrimary() Node {
	first := p.token
	switch p.token.Type {
	case NUMBER, LITERAL:
		p.nextToken()
		lit := &Literal{Token: first}
		lit.base = p.makeBase(first)
		return lit

	case STRING:
		p.nextToken()
		// adjacent string literals concatenate
		for p.check(STRING) {
			p.nextToken()
		}
		lit := &Literal{Token: first}
		lit.base = p.makeBase(first)
		return lit

	case IDENT:
		switch {
		case first.Literal == "true" || first.Literal == "false":
			p.nextToken()
			lit := &Literal{Token: first}
			lit.base = p.makeBase(first)
			return lit
		case p.peek.Type == LPAREN && p.startsCall():
			return p.parseCall()
		case p.startsWildcard():
			return p.parseWildcard()
		}
		p.nextToken()
		ref := &NameReference{Name: first.Literal}
		ref.base = p.makeBase(first)
		return ref

	case LBRACKET:
		if p.peek.Type == STRING && p.peek2.Type == RBRACKET {
			return p.parseBracketName()
		}
		return p.parseBracketList()

	case LPAREN:
		return p.parseParenthesized()

	case STAR:
		p.nextToken()
		star := &Star{}
		star.base = p.makeBase(first)
		return star
	}

	p.errorf(msgExpectedExpression)
	return nil
}

// startsCall tells name(...) apart from a name followed by an implicit
// subquery, as in partition by Col (top 3 by x).
func (p *queryParser) startsCall() bool {
	if p.peek.Pos.Offset == p.token.End {
		return true
	}
	return !(p.peek2.Type == IDENT && pipeOperators[p.peek2.Literal])
}

// parseCall parses name(args).
func (p *queryParser) parseCall() Node {
	first := p.token
	call := &FunctionCall{Name: p.token.Literal}
	p.nextToken() // name
	p.nextToken() // (

	for !p.check(RPAREN) {
		arg := p.parseParenItem()
		if arg == nil {
			return nil
		}
		call.Args = append(call.Args, arg)
		if !p.match(COMMA) {
			break
		}
	}
	if !p.expect(RPAREN) {
		return nil
	}

	call.base = p.makeBase(first)
	return call
}

// startsWildcard reports whether the name is followed by an adjacent * that
// is not a multiplication, as in Event* but not x*2.
func (p *queryParser) startsWildcard() bool {
	if p.peek.Type != STAR || p.peek.Pos.Offset != p.token.End {
		return false
	}
	switch p.peek2.Type {
	case NUMBER, LITERAL, LPAREN:
		return false
	case IDENT:
		return p.peek2.Pos.Offset == p.peek.End
	}
	return true
}

// parseWildcard parses a name pattern such as Event*.
func (p *queryParser) parseWildcard() Node {
	first := p.token
	pattern := p.token.Literal
	p.nextToken()
	for (p.check(STAR) || p.check(IDENT)) && p.token.Pos.Offset == p.prevEnd {
		pattern += p.token.Literal
		p.nextToken()
	}
	w := &WildcardName{Pattern: pattern}
	w.base = p.makeBase(first)
	return w
}

// parseBracketName parses ['name'].
func (p *queryParser) parseBracketName() Node {
	first := p.token
	p.nextToken() // [
	name := unquoteString(p.token.Literal)
	p.nextToken()
	if !p.expect(RBRACKET) {
		return nil
	}
	ref := &NameReference{Name: name}
	ref.base = p.makeBase(first)
	return ref
}

// parseBracketList parses [a, b, ...].
func (p *queryParser) parseBracketList() Node {
	first := p.token
	p.nextToken() // [
	list := &List{}
	for !p.check(RBRACKET) {
		item := p.parseExpression()
		if item == nil {
			return nil
		}
		list.Items = append(list.Items, item)
		if !p.match(COMMA) {
			break
		}
	}
	if !p.expect(RBRACKET) {
		return nil
	}
	list.base = p.makeBase(first)
	return list
}

// parseParenthesized parses (item) or (item, item, ...).
func (p *queryParser) parseParenthesized() Node {
	first := p.token
	p.nextToken() // (

	var items []Node
	for !p.check(RPAREN) {
		item := p.parseParenItem()
		if item == nil {
			return nil
		}
		items = append(items, item)
		if !p.match(COMMA) {
			break
		}
	}
	if !p.expect(RPAREN) {
		return nil
	}

	if len(items) == 1 {
		paren := &Parenthesized{Expr: items[0]}
		paren.base = p.makeBase(first)
		return paren
	}
	list := &List{Items: items}
	list.base = p.makeBase(first)
	return list
}

// unquoteString returns the value of a string literal token.
func unquoteString(lit string) string {
	if len(lit) > 0 && (lit[0] == 'h' || lit[0] == 'H') {
		lit = lit[1:]
	}

	switch {
	case strings.HasPrefix(lit, "```"):
		return strings.TrimSuffix(lit[3:], "```")
	case strings.HasPrefix(lit, "@"):
		if len(lit) < 2 {
			return ""
		}
		quote := lit[1:2]
		body := strings.TrimSuffix(lit[2:], quote)
		return strings.ReplaceAll(body, quote+quote, quote)
	case len(lit) == 0:
		return ""
	}

	quote := lit[0]
	body := lit[1:]
	if len(body) > 0 && body[len(body)-1] == quote {
		body = body[:len(body)-1]
	}

	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' || i+1 >= len(body) {
			b.WriteByte(c)
			continue
		}
		i++
		switch body[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		default:
			b.WriteByte(body[i])
		}
	}
	return b.String()
}
