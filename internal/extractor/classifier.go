package extractor

import (
	"fmt"
	"log/slog"

	"github.com/nnaka2992/kql-extract/internal/parser"
)

// Join kind labels and the target recorded when a join side has no name
const (
	joinKindDefault = "inner"
	joinKindLookup  = "leftouter"
	joinKindUnion   = "union"

	unresolvedTarget = "(...)"
)

// classifier accumulates one query's metadata while the tree is walked
type classifier struct {
	result *Result
	// registry is nil unless join kinds are normalized
	registry *joinKindRegistry
	logger   *slog.Logger
	// err is the first malformed node met during the walk
	err error
}

func newClassifier(result *Result, registry *joinKindRegistry, logger *slog.Logger) *classifier {
	return &classifier{result: result, registry: registry, logger: logger}
}

// visit applies the classification rules to one node in priority order:
// function calls, table references, pipeline operators, then unions that
// are not pipeline stages.
func (c *classifier) visit(node parser.Node, role parser.Role) {
	switch {
	case node.Kind() == parser.KindFunctionCall:
		c.visitFunctionCall(node)
	case node.Kind() == parser.KindNameReference:
		c.visitNameReference(node)
	case role == parser.RoleOperator:
		c.visitOperator(node)
	case node.Kind() == parser.KindUnionOperator:
		c.visitUnion(node)
	}
}

func (c *classifier) visitFunctionCall(node parser.Node) {
	call, ok := node.(*parser.FunctionCall)
	if !ok {
		c.malformed(node)
		return
	}
	c.result.FunctionCalls.Add(call.SimpleName())
}

func (c *classifier) visitNameReference(node parser.Node) {
	ref, ok := node.(*parser.NameReference)
	if !ok {
		c.malformed(node)
		return
	}
	if ref.Symbol() == parser.SymbolTable {
		c.result.Tables.Add(ref.SimpleName())
	}
}

func (c *classifier) visitOperator(node parser.Node) {
	switch node.Kind() {
	case parser.KindJoinOperator:
		join, ok := node.(*parser.JoinOperator)
		if !ok {
			c.malformed(node)
			return
		}
		kind := joinKindDefault
		if param := join.Param("kind"); param != nil && param.Expr != nil {
			kind = c.joinKind(param.Expr.Text())
		}
		c.result.addJoin(kind, joinTargets(join.Right))

	case parser.KindLookupOperator:
		lookup, ok := node.(*parser.LookupOperator)
		if !ok {
			c.malformed(node)
			return
		}
		c.result.addJoin(joinKindLookup, joinTargets(lookup.Right))

	default:
		c.result.Operators.Add(node.FirstToken().Literal)
	}
}

func (c *classifier) visitUnion(node parser.Node) {
	union, ok := node.(*parser.UnionOperator)
	if !ok {
		c.malformed(node)
		return
	}
	targets := NewStringSet()
	for _, operand := range union.Operands {
		if ref, ok := operand.(*parser.NameReference); ok {
			targets.Add(ref.SimpleName())
		}
	}
	// an empty set is kept as is
	c.result.addJoin(joinKindUnion, targets)
}

// joinTargets resolves the right side of a join or lookup: a bare name, or
// a parenthesized bare name. Anything else is the placeholder target.
func joinTargets(right parser.Node) StringSet {
	targets := NewStringSet()
	switch r := right.(type) {
	case *parser.NameReference:
		targets.Add(r.SimpleName())
	case *parser.Parenthesized:
		if ref, ok := r.Expr.(*parser.NameReference); ok {
			targets.Add(ref.SimpleName())
		}
	}
	if len(targets) == 0 {
		targets.Add(unresolvedTarget)
	}
	return targets
}

// joinKind returns the label for a kind= parameter value
func (c *classifier) joinKind(text string) string {
	if c.registry == nil {
		return text
	}
	kind, known := c.registry.normalize(text)
	if !known {
		c.logger.Debug("unknown join kind", "kind", text)
	}
	return kind
}

func (c *classifier) malformed(node parser.Node) {
	if c.err == nil {
		c.err = fmt.Errorf("malformed %s node at [%d..%d]", node.Kind(), node.Span().Start, node.Span().End)
	}
}
