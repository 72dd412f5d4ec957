package parser

// Kind tags every syntax node
type Kind int

const (
	KindQuery Kind = iota
	KindLetStatement
	KindSetStatement
	KindExpressionStatement
	KindFunctionDeclaration
	KindParameter
	KindPipeExpression
	KindParenthesized
	KindNameReference
	KindNameDeclaration
	KindWildcardName
	KindFunctionCall
	KindLiteral
	KindBinary
	KindUnary
	KindBetween
	KindPath
	KindElementAccess
	KindNamedExpression
	KindNamedParameter
	KindList
	KindStar
	KindTypedColumn
	KindJoinOperator
	KindLookupOperator
	KindUnionOperator
	KindOperator
)

var kindNames = [...]string{
	KindQuery:               "Query",
	KindLetStatement:        "LetStatement",
	KindSetStatement:        "SetStatement",
	KindExpressionStatement: "ExpressionStatement",
	KindFunctionDeclaration: "FunctionDeclaration",
	KindParameter:           "Parameter",
	KindPipeExpression:      "PipeExpression",
	KindParenthesized:       "Parenthesized",
	KindNameReference:       "NameReference",
	KindNameDeclaration:     "NameDeclaration",
	KindWildcardName:        "WildcardName",
	KindFunctionCall:        "FunctionCall",
	KindLiteral:             "Literal",
	KindBinary:              "Binary",
	KindUnary:               "Unary",
	KindBetween:             "Between",
	KindPath:                "Path",
	KindElementAccess:       "ElementAccess",
	KindNamedExpression:     "NamedExpression",
	KindNamedParameter:      "NamedParameter",
	KindList:                "List",
	KindStar:                "Star",
	KindTypedColumn:         "TypedColumn",
	KindJoinOperator:        "JoinOperator",
	KindLookupOperator:      "LookupOperator",
	KindUnionOperator:       "UnionOperator",
	KindOperator:            "Operator",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "Unknown"
}

// Role labels the slot a node occupies in its parent
type Role int

const (
	RoleNone Role = iota
	RoleStatement
	RoleValue
	RoleExpression
	RoleOperator
	RoleOperand
	RoleArgument
	RoleParameter
	RoleBody
	RoleLeft
	RoleRight
	RoleCondition
	RoleName
	RoleSelector
	RoleIndex
	RoleLow
	RoleHigh
	RoleElement
)

var roleNames = [...]string{
	RoleNone:       "None",
	RoleStatement:  "Statement",
	RoleValue:      "Value",
	RoleExpression: "Expression",
	RoleOperator:   "Operator",
	RoleOperand:    "Operand",
	RoleArgument:   "Argument",
	RoleParameter:  "Parameter",
	RoleBody:       "Body",
	RoleLeft:       "Left",
	RoleRight:      "Right",
	RoleCondition:  "Condition",
	RoleName:       "Name",
	RoleSelector:   "Selector",
	RoleIndex:      "Index",
	RoleLow:        "Low",
	RoleHigh:       "High",
	RoleElement:    "Element",
}

func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return "Unknown"
}

// Symbol is what a name reference resolved to during binding
type Symbol int

const (
	SymbolUnknown Symbol = iota
	SymbolTable
	SymbolScalar
	SymbolFunction
)

func (s Symbol) String() string {
	switch s {
	case SymbolTable:
		return "table"
	case SymbolScalar:
		return "scalar"
	case SymbolFunction:
		return "function"
	default:
		return "unknown"
	}
}

// Span is a half-open byte range of the query text
type Span struct {
	Start int
	End   int
}

// Child is a node together with the slot it fills in its parent
type Child struct {
	Role Role
	Node Node
}

// Node is implemented by every syntax node. Nodes are immutable once the
// parser returns them.
type Node interface {
	Kind() Kind
	Span() Span
	// Text is the source text the node was parsed from
	Text() string
	// FirstToken is the first lexical token of the node
	FirstToken() Token
	// Children lists structural children in source order
	Children() []Child
}

// base carries the fields every node shares
type base struct {
	span  Span
	text  string
	first Token
}

func (b *base) Span() Span        { return b.span }
func (b *base) Text() string      { return b.text }
func (b *base) FirstToken() Token { return b.first }

// appendChild skips nil slots so optional parts never reach a visitor
func appendChild(children []Child, role Role, n Node) []Child {
	if n == nil || isNilNode(n) {
		return children
	}
	return append(children, Child{Role: role, Node: n})
}

func appendChildren[T Node](children []Child, role Role, nodes []T) []Child {
	for _, n := range nodes {
		children = appendChild(children, role, n)
	}
	return children
}

// isNilNode catches typed nil pointers stored in a Node interface
func isNilNode(n Node) bool {
	switch v := n.(type) {
	case *Query:
		return v == nil
	case *FunctionDeclaration:
		return v == nil
	case *NamedParameter:
		return v == nil
	case *NameDeclaration:
		return v == nil
	case *PipeExpression:
		return v == nil
	}
	return false
}

// ---------- Statements ----------

// Query is the root node: statements separated by ';'
type Query struct {
	base
	Statements []Node
}

func (n *Query) Kind() Kind { return KindQuery }
func (n *Query) Children() []Child {
	return appendChildren(nil, RoleStatement, n.Statements)
}

// LetStatement binds a name: let Name = Value
type LetStatement struct {
	base
	Name  *NameDeclaration
	Value Node
}

func (n *LetStatement) Kind() Kind { return KindLetStatement }
func (n *LetStatement) Children() []Child {
	return appendChild(appendChild(nil, RoleName, n.Name), RoleValue, n.Value)
}

// SetStatement covers set, declare and alias directives
type SetStatement struct {
	base
	Keyword string
	Name    string
	Params  []*Parameter
	Value   Node
}

func (n *SetStatement) Kind() Kind { return KindSetStatement }
func (n *SetStatement) Children() []Child {
	return appendChild(appendChildren(nil, RoleParameter, n.Params), RoleValue, n.Value)
}

// ExpressionStatement is a query body statement
type ExpressionStatement struct {
	base
	Expr Node
}

func (n *ExpressionStatement) Kind() Kind { return KindExpressionStatement }
func (n *ExpressionStatement) Children() []Child {
	return appendChild(nil, RoleExpression, n.Expr)
}

// FunctionDeclaration is a user function body: (params) { body }
type FunctionDeclaration struct {
	base
	View   bool
	Params []*Parameter
	Body   *Query
}

func (n *FunctionDeclaration) Kind() Kind { return KindFunctionDeclaration }
func (n *FunctionDeclaration) Children() []Child {
	return appendChild(appendChildren(nil, RoleParameter, n.Params), RoleBody, n.Body)
}

// Parameter is a declared function or query parameter
type Parameter struct {
	base
	Name    string
	Type    string
	Tabular bool
	Default Node
}

func (n *Parameter) Kind() Kind { return KindParameter }
func (n *Parameter) Children() []Child {
	return appendChild(nil, RoleValue, n.Default)
}

// ---------- Expressions ----------

// PipeExpression is Expr | Operator. Expr is nil for a subquery that starts
// directly with an operator, as in fork (where x) or partition bodies.
type PipeExpression struct {
	base
	Expr     Node
	Operator Node
}

func (n *PipeExpression) Kind() Kind { return KindPipeExpression }
func (n *PipeExpression) Children() []Child {
	return appendChild(appendChild(nil, RoleExpression, n.Expr), RoleOperator, n.Operator)
}

// Parenthesized is ( Expr )
type Parenthesized struct {
	base
	Expr Node
}

func (n *Parenthesized) Kind() Kind { return KindParenthesized }
func (n *Parenthesized) Children() []Child {
	return appendChild(nil, RoleExpression, n.Expr)
}

// NameReference is a use of a name; the binder fills in its symbol
type NameReference struct {
	base
	Name   string
	symbol Symbol
}

func (n *NameReference) Kind() Kind        { return KindNameReference }
func (n *NameReference) Children() []Child { return nil }

// SimpleName returns the referenced name without brackets or quotes
func (n *NameReference) SimpleName() string { return n.Name }

// Symbol returns what the name resolved to
func (n *NameReference) Symbol() Symbol { return n.symbol }

// NameDeclaration introduces a name (let targets, extend columns, as)
type NameDeclaration struct {
	base
	Name string
}

func (n *NameDeclaration) Kind() Kind        { return KindNameDeclaration }
func (n *NameDeclaration) Children() []Child { return nil }

// WildcardName is a name pattern such as Security*
type WildcardName struct {
	base
	Pattern string
}

func (n *WildcardName) Kind() Kind        { return KindWildcardName }
func (n *WildcardName) Children() []Child { return nil }

// FunctionCall is Name(Args)
type FunctionCall struct {
	base
	Name string
	Args []Node
}

func (n *FunctionCall) Kind() Kind { return KindFunctionCall }
func (n *FunctionCall) Children() []Child {
	return appendChildren(nil, RoleArgument, n.Args)
}

// SimpleName returns the called function's name
func (n *FunctionCall) SimpleName() string { return n.Name }

// Literal is a number, string, boolean or typed literal
type Literal struct {
	base
	Token Token
}

func (n *Literal) Kind() Kind        { return KindLiteral }
func (n *Literal) Children() []Child { return nil }

// Binary is Left Op Right
type Binary struct {
	base
	Op    string
	Left  Node
	Right Node
}

func (n *Binary) Kind() Kind { return KindBinary }
func (n *Binary) Children() []Child {
	return appendChild(appendChild(nil, RoleLeft, n.Left), RoleRight, n.Right)
}

// Unary is Op Expr
type Unary struct {
	base
	Op   string
	Expr Node
}

func (n *Unary) Kind() Kind { return KindUnary }
func (n *Unary) Children() []Child {
	return appendChild(nil, RoleExpression, n.Expr)
}

// Between is Expr [!]between (Low .. High)
type Between struct {
	base
	Op   string
	Expr Node
	Low  Node
	High Node
}

func (n *Between) Kind() Kind { return KindBetween }
func (n *Between) Children() []Child {
	c := appendChild(nil, RoleExpression, n.Expr)
	c = appendChild(c, RoleLow, n.Low)
	return appendChild(c, RoleHigh, n.High)
}

// Path is Expr.Selector
type Path struct {
	base
	Expr     Node
	Selector Node
}

func (n *Path) Kind() Kind { return KindPath }
func (n *Path) Children() []Child {
	return appendChild(appendChild(nil, RoleExpression, n.Expr), RoleSelector, n.Selector)
}

// ElementAccess is Expr[Index]
type ElementAccess struct {
	base
	Expr  Node
	Index Node
}

func (n *ElementAccess) Kind() Kind { return KindElementAccess }
func (n *ElementAccess) Children() []Child {
	return appendChild(appendChild(nil, RoleExpression, n.Expr), RoleIndex, n.Index)
}

// NamedExpression is Name = Expr, or (A, B) = Expr
type NamedExpression struct {
	base
	Names []*NameDeclaration
	Expr  Node
}

func (n *NamedExpression) Kind() Kind { return KindNamedExpression }
func (n *NamedExpression) Children() []Child {
	return appendChild(appendChildren(nil, RoleName, n.Names), RoleValue, n.Expr)
}

// NamedParameter is an operator parameter such as kind=leftsemi
type NamedParameter struct {
	base
	Name string
	Expr Node
}

func (n *NamedParameter) Kind() Kind { return KindNamedParameter }
func (n *NamedParameter) Children() []Child {
	return appendChild(nil, RoleValue, n.Expr)
}

// List is a parenthesized or bracketed sequence: (a, b), [1, 2]
type List struct {
	base
	Items []Node
}

func (n *List) Kind() Kind { return KindList }
func (n *List) Children() []Child {
	return appendChildren(nil, RoleElement, n.Items)
}

// Star is a bare * (all columns, any value)
type Star struct {
	base
}

func (n *Star) Kind() Kind        { return KindStar }
func (n *Star) Children() []Child { return nil }

// TypedColumn is Name:type as written in parse patterns and schemas
type TypedColumn struct {
	base
	Name Node
	Type string
}

func (n *TypedColumn) Kind() Kind { return KindTypedColumn }
func (n *TypedColumn) Children() []Child {
	return appendChild(nil, RoleName, n.Name)
}

// ---------- Query operators ----------

// JoinOperator is join [params] Right on Conditions
type JoinOperator struct {
	base
	Params     []*NamedParameter
	Right      Node
	Conditions []Node
}

func (n *JoinOperator) Kind() Kind { return KindJoinOperator }
func (n *JoinOperator) Children() []Child {
	c := appendChildren(nil, RoleParameter, n.Params)
	c = appendChild(c, RoleRight, n.Right)
	return appendChildren(c, RoleCondition, n.Conditions)
}

// Param returns the named parameter called name, or nil
func (n *JoinOperator) Param(name string) *NamedParameter {
	return findParam(n.Params, name)
}

// LookupOperator is lookup [params] Right on Conditions
type LookupOperator struct {
	base
	Params     []*NamedParameter
	Right      Node
	Conditions []Node
}

func (n *LookupOperator) Kind() Kind { return KindLookupOperator }
func (n *LookupOperator) Children() []Child {
	c := appendChildren(nil, RoleParameter, n.Params)
	c = appendChild(c, RoleRight, n.Right)
	return appendChildren(c, RoleCondition, n.Conditions)
}

// Param returns the named parameter called name, or nil
func (n *LookupOperator) Param(name string) *NamedParameter {
	return findParam(n.Params, name)
}

// UnionOperator is union [params] Operands
type UnionOperator struct {
	base
	Params   []*NamedParameter
	Operands []Node
}

func (n *UnionOperator) Kind() Kind { return KindUnionOperator }
func (n *UnionOperator) Children() []Child {
	return appendChildren(appendChildren(nil, RoleParameter, n.Params), RoleOperand, n.Operands)
}

// Operator is any other query operator: where, project, summarize ...
type Operator struct {
	base
	Keyword string
	Params  []*NamedParameter
	// Sources holds the tables named by search/find "in (...)" clauses
	Sources []Node
	Args    []Node
}

func (n *Operator) Kind() Kind { return KindOperator }
func (n *Operator) Children() []Child {
	c := appendChildren(nil, RoleParameter, n.Params)
	c = appendChildren(c, RoleOperand, n.Sources)
	return appendChildren(c, RoleArgument, n.Args)
}

func findParam(params []*NamedParameter, name string) *NamedParameter {
	for _, p := range params {
		if p.Name == name {
			return p
		}
	}
	return nil
}
