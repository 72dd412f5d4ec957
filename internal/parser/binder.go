package parser

// tabularFunctions take tabular arguments
var tabularFunctions = map[string]bool{
	"materialize": true,
	"toscalar":    true,
}

// setOperators test membership in a list or a single column table
var setOperators = map[string]bool{
	"in":      true,
	"!in":     true,
	"in~":     true,
	"!in~":    true,
	"has_any": true,
	"has_all": true,
}

// tableFunctions return a table
var tableFunctions = map[string]bool{
	"materialize":       true,
	"table":             true,
	"external_table":    true,
	"materialized_view": true,
	"cluster":           true,
	"database":          true,
}

// binding is what a let statement or parameter declared
type binding struct {
	symbol Symbol
	// tabular is set for functions whose body ends in a tabular expression
	tabular bool
	// params marks which function parameters take a table
	params []bool
}

type scope map[string]binding

// binder resolves the symbol of every NameReference in a tree.
//
// Names bound by let, function parameters or declare query_parameters take
// their declared kind. Other names are tables when the catalog knows them or
// when they appear where only a table can stand: the head of a pipe, the
// right side of join and lookup, union operands and statement bodies.
// Anything else is left unknown.
type binder struct {
	catalog Catalog
	scopes  []scope
}

func newBinder(catalog Catalog) *binder {
	if catalog == nil {
		catalog = EmptyCatalog()
	}
	return &binder{catalog: catalog, scopes: []scope{{}}}
}

func (b *binder) push() { b.scopes = append(b.scopes, scope{}) }
func (b *binder) pop()  { b.scopes = b.scopes[:len(b.scopes)-1] }

func (b *binder) declare(name string, bd binding) {
	b.scopes[len(b.scopes)-1][name] = bd
}

func (b *binder) lookup(name string) (binding, bool) {
	for i := len(b.scopes) - 1; i >= 0; i-- {
		if bd, ok := b.scopes[i][name]; ok {
			return bd, true
		}
	}
	return binding{}, false
}

// bindQuery binds every statement of q in order.
func (b *binder) bindQuery(q *Query) {
	if q == nil {
		return
	}
	for _, stmt := range q.Statements {
		b.bindStatement(stmt)
	}
}

func (b *binder) bindStatement(stmt Node) {
	switch s := stmt.(type) {
	case *LetStatement:
		b.bindLet(s)
	case *SetStatement:
		b.declareParams(s.Params)
		b.bind(s.Value, false)
	case *ExpressionStatement:
		b.bind(s.Expr, true)
	}
}

func (b *binder) bindLet(s *LetStatement) {
	if s.Name == nil {
		return
	}
	if decl, ok := s.Value.(*FunctionDeclaration); ok {
		tabular := b.bindFunction(decl)
		params := make([]bool, len(decl.Params))
		for i, p := range decl.Params {
			params[i] = p.Tabular
		}
		b.declare(s.Name.Name, binding{symbol: SymbolFunction, tabular: tabular, params: params})
		return
	}

	b.bind(s.Value, true)
	b.declare(s.Name.Name, binding{symbol: b.valueSymbol(s.Value)})
}

// bindFunction binds a function body in its own scope and reports whether
// the body produces a table.
func (b *binder) bindFunction(decl *FunctionDeclaration) bool {
	b.push()
	defer b.pop()

	b.declareParams(decl.Params)
	for _, p := range decl.Params {
		b.bind(p.Default, false)
	}
	b.bindQuery(decl.Body)

	if decl.Body == nil || len(decl.Body.Statements) == 0 {
		return false
	}
	last, ok := decl.Body.Statements[len(decl.Body.Statements)-1].(*ExpressionStatement)
	return ok && b.valueSymbol(last.Expr) == SymbolTable
}

func (b *binder) declareParams(params []*Parameter) {
	for _, p := range params {
		sym := SymbolScalar
		if p.Tabular {
			sym = SymbolTable
		}
		b.declare(p.Name, binding{symbol: sym})
	}
}

// bind walks n. tabular is set when n stands where a table is expected.
func (b *binder) bind(n Node, tabular bool) {
	if n == nil || isNilNode(n) {
		return
	}

	switch v := n.(type) {
	case *NameReference:
		v.symbol = b.resolve(v.Name, tabular)

	case *Query:
		b.push()
		b.bindQuery(v)
		b.pop()

	case *PipeExpression:
		b.bind(v.Expr, true)
		b.bind(v.Operator, false)

	case *Parenthesized:
		b.bind(v.Expr, tabular)

	case *List:
		for _, item := range v.Items {
			b.bind(item, tabular)
		}

	case *Path:
		b.bind(v.Expr, false)
		if ref, ok := v.Selector.(*NameReference); ok {
			// members are only resolved where a table is expected, as in
			// database('db').Table
			if tabular {
				ref.symbol = SymbolTable
			}
			return
		}
		b.bind(v.Selector, false)

	case *FunctionCall:
		fn, _ := b.lookup(v.Name)
		for i, arg := range v.Args {
			argTabular := tabularFunctions[v.Name]
			if fn.symbol == SymbolFunction && i < len(fn.params) {
				argTabular = fn.params[i]
			}
			b.bind(arg, argTabular)
		}

	case *JoinOperator:
		b.bind(v.Right, true)
		b.bindAll(v.Conditions, false)

	case *LookupOperator:
		b.bind(v.Right, true)
		b.bindAll(v.Conditions, false)

	case *UnionOperator:
		b.bindAll(v.Operands, true)

	case *Operator:
		b.bindAll(v.Sources, true)
		b.bindAll(v.Args, false)

	case *FunctionDeclaration:
		b.bindFunction(v)

	case *Binary:
		b.bind(v.Left, false)
		// a single parenthesized operand of a set membership test is a
		// one column table, as in x !in (Allowed)
		_, single := v.Right.(*Parenthesized)
		b.bind(v.Right, single && setOperators[v.Op])

	case *NamedParameter:
		// parameter values are option words, not references

	default:
		for _, c := range n.Children() {
			b.bind(c.Node, false)
		}
	}
}

func (b *binder) bindAll(nodes []Node, tabular bool) {
	for _, n := range nodes {
		b.bind(n, tabular)
	}
}

// resolve picks the symbol for a reference to name.
func (b *binder) resolve(name string, tabular bool) Symbol {
	if bd, ok := b.lookup(name); ok {
		return bd.symbol
	}
	if b.catalog.HasTable(name) || tabular {
		return SymbolTable
	}
	return SymbolUnknown
}

// valueSymbol is the kind a let statement gives its name for value.
func (b *binder) valueSymbol(value Node) Symbol {
	switch v := value.(type) {
	case *PipeExpression, *UnionOperator, *Operator:
		return SymbolTable
	case *Parenthesized:
		return b.valueSymbol(v.Expr)
	case *NameReference:
		if v.symbol == SymbolUnknown {
			return SymbolScalar
		}
		return v.symbol
	case *Path:
		if ref, ok := v.Selector.(*NameReference); ok && ref.symbol == SymbolTable {
			return SymbolTable
		}
	case *FunctionCall:
		if tableFunctions[v.Name] {
			return SymbolTable
		}
		if bd, ok := b.lookup(v.Name); ok && bd.symbol == SymbolFunction && bd.tabular {
			return SymbolTable
		}
	case *FunctionDeclaration:
		return SymbolFunction
	}
	return SymbolScalar
}
