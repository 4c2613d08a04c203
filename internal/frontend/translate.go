package frontend

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"slices"

	gocfg "golang.org/x/tools/go/cfg"

	"github.com/gnolang/flowsym/internal/analysis/cfg"
	"github.com/gnolang/flowsym/internal/analysis/semantic"
)

// Member names used for element access and pointer indirection.
const (
	IndexMember = "[]"
	DerefMember = "*"
)

// shared is the state common to a function and its literals.
type shared struct {
	info    *types.Info
	model   *semantic.GoModel
	symbols map[types.Object]cfg.Symbol

	// tag switch case values; their blocks branch without a condition
	caseValues map[ast.Expr]bool
	ranges     map[ast.Expr]*ast.RangeStmt
	rangeVars  map[ast.Expr]bool
	// locals whose address is taken; they never carry facts
	escaped map[types.Object]bool

	lambdas int
}

type translator struct {
	*shared
	name string
	b    *cfg.Builder
}

// BuildFunc translates a function body into a graph. Function literals
// become nested graphs whose captured symbols are the enclosing locals they
// reference.
func BuildFunc(name string, body *ast.BlockStmt, info *types.Info, model *semantic.GoModel) (*cfg.Graph, error) {
	if model == nil {
		model = semantic.NewGoModel(info)
	}
	t := &translator{
		shared: &shared{
			info:       info,
			model:      model,
			symbols:    make(map[types.Object]cfg.Symbol),
			caseValues: make(map[ast.Expr]bool),
			ranges:     make(map[ast.Expr]*ast.RangeStmt),
			rangeVars:  make(map[ast.Expr]bool),
			escaped:    make(map[types.Object]bool),
		},
		name: name,
		b:    cfg.NewBuilder(name),
	}
	t.scan(body)
	return t.graph(body)
}

func (t *translator) scan(body *ast.BlockStmt) {
	ast.Inspect(body, func(n ast.Node) bool {
		switch s := n.(type) {
		case *ast.SwitchStmt:
			if s.Tag == nil {
				return true
			}
			for _, clause := range s.Body.List {
				for _, v := range clause.(*ast.CaseClause).List {
					t.caseValues[v] = true
				}
			}
		case *ast.UnaryExpr:
			if id, ok := ast.Unparen(s.X).(*ast.Ident); ok && s.Op == token.AND {
				if v, ok := t.local(id); ok {
					t.escaped[v] = true
				}
			}
		case *ast.RangeStmt:
			t.ranges[s.X] = s
			if s.Key != nil {
				t.rangeVars[s.Key] = true
			}
			if s.Value != nil {
				t.rangeVars[s.Value] = true
			}
		}
		return true
	})
}

func (t *translator) graph(body *ast.BlockStmt) (*cfg.Graph, error) {
	g := gocfg.New(body, t.mayReturn)

	blocks := make(map[*gocfg.Block]*cfg.Block, len(g.Blocks))
	for _, gb := range g.Blocks {
		if gb.Live {
			blocks[gb] = t.b.Block()
		}
	}
	if len(g.Blocks) == 0 {
		t.b.Edge(t.b.Entry(), t.b.Exit(), cfg.Regular)
		return t.b.Build()
	}
	t.b.Edge(t.b.Entry(), blocks[g.Blocks[0]], cfg.Regular)

	for _, gb := range g.Blocks {
		blk := blocks[gb]
		if blk == nil {
			continue
		}
		nodes := gb.Nodes
		cond := t.condition(gb)
		if cond != nil {
			nodes = nodes[:len(nodes)-1]
		}
		if rs, ok := gb.Stmt.(*ast.RangeStmt); ok && gb.Kind == gocfg.KindRangeLoop {
			t.b.Add(blk, t.iteration(rs)...)
		}
		for _, n := range nodes {
			t.b.Add(blk, t.node(n)...)
		}

		switch {
		case cond != nil:
			t.b.SetCondition(blk, t.expr(cond))
			t.b.Branch(blk, blocks[gb.Succs[0]], blocks[gb.Succs[1]])
		case len(gb.Succs) == 0:
			t.b.Edge(blk, t.b.Exit(), cfg.Regular)
		default:
			for _, succ := range gb.Succs {
				t.b.Edge(blk, blocks[succ], cfg.Regular)
			}
		}
	}
	return t.b.Build()
}

// condition returns the boolean expression deciding between the two
// successors of gb, if any.
func (t *translator) condition(gb *gocfg.Block) ast.Expr {
	if len(gb.Succs) != 2 || len(gb.Nodes) == 0 {
		return nil
	}
	expr, ok := gb.Nodes[len(gb.Nodes)-1].(ast.Expr)
	if !ok || t.caseValues[expr] || t.rangeVars[expr] {
		return nil
	}
	if _, ok := t.ranges[expr]; ok {
		return nil
	}
	return expr
}

// mayReturn reports false for calls that never return.
func (t *translator) mayReturn(call *ast.CallExpr) bool {
	switch fun := ast.Unparen(call.Fun).(type) {
	case *ast.Ident:
		if b, ok := t.info.Uses[fun].(*types.Builtin); ok && b.Name() == "panic" {
			return false
		}
	case *ast.SelectorExpr:
		fn, ok := t.info.Uses[fun.Sel].(*types.Func)
		if !ok || fn.Pkg() == nil {
			return true
		}
		switch fn.Pkg().Path() + "." + fn.Name() {
		case "os.Exit", "log.Fatal", "log.Fatalf", "log.Fatalln", "runtime.Goexit":
			return false
		}
	}
	return true
}

func (t *translator) at(op *cfg.Operation, n ast.Node) *cfg.Operation {
	op.Syntax = n
	if n != nil {
		op.Pos = n.Pos()
	}
	return op
}

// other builds an opaque operation, dropping missing children.
func (t *translator) other(n ast.Node, children ...*cfg.Operation) *cfg.Operation {
	kept := slices.DeleteFunc(children, func(c *cfg.Operation) bool { return c == nil })
	return t.at(t.b.Other(kept...), n)
}

func (t *translator) node(n ast.Node) []*cfg.Operation {
	switch n := n.(type) {
	case ast.Expr:
		if rs, ok := t.ranges[n]; ok {
			return []*cfg.Operation{t.at(t.b.Range(t.expr(n)), rs)}
		}
		if t.rangeVars[n] {
			// assigned at the loop header
			return nil
		}
		return []*cfg.Operation{t.expr(n)}
	case *ast.ExprStmt:
		return []*cfg.Operation{t.expr(n.X)}
	case *ast.AssignStmt:
		return t.assign(n)
	case *ast.IncDecStmt:
		return []*cfg.Operation{t.store(n.X, t.other(n, t.expr(n.X)), n)}
	case *ast.ValueSpec:
		// go/cfg splits var declarations into one node per spec
		return t.valueSpec(n)
	case *ast.ReturnStmt:
		return []*cfg.Operation{t.ret(n)}
	case *ast.GoStmt:
		return []*cfg.Operation{t.other(n, t.expr(n.Call))}
	case *ast.DeferStmt:
		return []*cfg.Operation{t.other(n, t.deferred(n.Call)...)}
	case *ast.SendStmt:
		return []*cfg.Operation{t.other(n, t.expr(n.Chan), t.expr(n.Value))}
	case *ast.EmptyStmt:
		return nil
	default:
		return []*cfg.Operation{t.other(n)}
	}
}

// iteration assigns fresh values to the variables of a range loop.
func (t *translator) iteration(rs *ast.RangeStmt) []*cfg.Operation {
	var ops []*cfg.Operation
	for _, v := range []ast.Expr{rs.Key, rs.Value} {
		if v != nil {
			ops = append(ops, t.store(v, nil, rs))
		}
	}
	return ops
}

// deferred evaluates the operands of a deferred call without running it.
func (t *translator) deferred(call *ast.CallExpr) []*cfg.Operation {
	var ops []*cfg.Operation
	switch fun := ast.Unparen(call.Fun).(type) {
	case *ast.FuncLit:
		ops = append(ops, t.lambda(fun))
	case *ast.SelectorExpr:
		if sel, ok := t.info.Selections[fun]; ok && sel.Kind() == types.MethodVal {
			ops = append(ops, t.expr(fun.X))
		}
	}
	for _, arg := range call.Args {
		ops = append(ops, t.expr(arg))
	}
	return ops
}

func (t *translator) assign(s *ast.AssignStmt) []*cfg.Operation {
	var ops []*cfg.Operation
	if len(s.Lhs) != len(s.Rhs) {
		// v, ok := f() and friends
		ops = append(ops, t.expr(s.Rhs[0]))
		for _, lhs := range s.Lhs {
			ops = append(ops, t.store(lhs, nil, s))
		}
		return ops
	}
	for i, lhs := range s.Lhs {
		value := t.expr(s.Rhs[i])
		if s.Tok != token.ASSIGN && s.Tok != token.DEFINE {
			value = t.other(s, t.expr(lhs), value)
		}
		ops = append(ops, t.store(lhs, value, s))
	}
	return ops
}

func (t *translator) valueSpec(vs *ast.ValueSpec) []*cfg.Operation {
	var ops []*cfg.Operation
	switch {
	case len(vs.Values) == len(vs.Names):
		for i, name := range vs.Names {
			ops = append(ops, t.store(name, t.expr(vs.Values[i]), vs))
		}
	case len(vs.Values) == 0:
		for _, name := range vs.Names {
			ops = append(ops, t.store(name, t.zero(name), vs))
		}
	default:
		ops = append(ops, t.expr(vs.Values[0]))
		for _, name := range vs.Names {
			ops = append(ops, t.store(name, nil, vs))
		}
	}
	return ops
}

// zero is the zero value of the variable declared by name, when it matters.
func (t *translator) zero(name *ast.Ident) *cfg.Operation {
	obj := t.info.ObjectOf(name)
	if obj == nil || !semantic.Describe(obj.Type()).Is(semantic.Nullable) {
		return nil
	}
	return t.at(t.b.Null(), name)
}

func (t *translator) ret(s *ast.ReturnStmt) *cfg.Operation {
	switch len(s.Results) {
	case 0:
		return t.at(t.b.Return(nil), s)
	case 1:
		return t.at(t.b.Return(t.expr(s.Results[0])), s)
	}
	results := make([]*cfg.Operation, 0, len(s.Results))
	for _, r := range s.Results {
		results = append(results, t.expr(r))
	}
	return t.at(t.b.Return(t.other(s, results...)), s)
}

// store writes value into lhs. A nil value stores an unknown value.
func (t *translator) store(lhs ast.Expr, value *cfg.Operation, at ast.Node) *cfg.Operation {
	switch x := ast.Unparen(lhs).(type) {
	case *ast.Ident:
		if x.Name == "_" {
			return t.other(at, value)
		}
		if v, ok := t.local(x); ok {
			if t.escaped[v] && value != nil {
				value = t.other(at, value)
			}
			return t.at(t.b.Assign(t.symbol(v), value), at)
		}
		return t.other(at, value)
	case *ast.SelectorExpr:
		return t.other(at, t.expr(x), value)
	case *ast.IndexExpr:
		if isMap(t.info.TypeOf(x.X)) {
			args := []*cfg.Operation{t.expr(x.Index)}
			if value != nil {
				args = append(args, value)
			}
			return t.at(t.b.Invoke(t.expr(x.X), "Set", args...), at)
		}
		return t.other(at, t.expr(x), value)
	case *ast.StarExpr:
		return t.other(at, t.expr(x), value)
	default:
		return t.other(at, value)
	}
}

func (t *translator) expr(e ast.Expr) *cfg.Operation {
	switch e := ast.Unparen(e).(type) {
	case *ast.Ident:
		return t.ident(e)
	case *ast.BasicLit:
		if tv, ok := t.info.Types[e]; ok && tv.Value != nil {
			return t.at(t.b.Literal(tv.Value), e)
		}
		return t.other(e)
	case *ast.SelectorExpr:
		if sel, ok := t.info.Selections[e]; ok && sel.Kind() != types.MethodExpr {
			return t.at(t.b.Member(t.expr(e.X), e.Sel.Name), e)
		}
		if tv, ok := t.info.Types[e]; ok && tv.Value != nil {
			return t.at(t.b.Literal(tv.Value), e)
		}
		return t.other(e)
	case *ast.CallExpr:
		return t.call(e)
	case *ast.StarExpr:
		return t.at(t.b.Member(t.expr(e.X), DerefMember), e)
	case *ast.IndexExpr:
		switch typ := t.info.TypeOf(e.X); {
		case isMap(typ):
			return t.other(e, t.expr(e.X), t.expr(e.Index))
		case isIndexable(typ):
			op := t.b.Member(t.expr(e.X), IndexMember)
			op.Children = []*cfg.Operation{t.expr(e.Index)}
			return t.at(op, e)
		}
		return t.other(e)
	case *ast.SliceExpr:
		return t.other(e, t.expr(e.X))
	case *ast.UnaryExpr:
		switch e.Op {
		case token.NOT:
			return t.at(t.b.Not(t.expr(e.X)), e)
		case token.AND:
			if lit, ok := ast.Unparen(e.X).(*ast.CompositeLit); ok {
				return t.at(t.b.New(t.typeName(e), t.elements(lit)...), e)
			}
			return t.at(t.b.New(t.typeName(e), t.expr(e.X)), e)
		}
		return t.other(e, t.expr(e.X))
	case *ast.BinaryExpr:
		if tv, ok := t.info.Types[e]; ok && tv.Value != nil {
			return t.at(t.b.Literal(tv.Value), e)
		}
		left, right := t.expr(e.X), t.expr(e.Y)
		switch e.Op {
		case token.EQL:
			return t.at(t.b.Eq(left, right), e)
		case token.NEQ:
			return t.at(t.b.NotEq(left, right), e)
		}
		return t.at(t.b.Binary(cfg.OperatorOther, left, right), e)
	case *ast.CompositeLit:
		return t.at(t.b.New(t.typeName(e), t.elements(e)...), e)
	case *ast.FuncLit:
		return t.lambda(e)
	case *ast.KeyValueExpr:
		return t.expr(e.Value)
	case *ast.TypeAssertExpr:
		return t.other(e, t.expr(e.X))
	default:
		return t.other(e)
	}
}

func (t *translator) ident(e *ast.Ident) *cfg.Operation {
	switch obj := t.info.ObjectOf(e).(type) {
	case *types.Nil:
		return t.at(t.b.Null(), e)
	case *types.Const:
		return t.at(t.b.Literal(obj.Val()), e)
	case *types.Var:
		if v, ok := t.local(e); ok {
			return t.at(t.b.Ref(t.symbol(v)), e)
		}
	}
	return t.other(e)
}

func (t *translator) elements(lit *ast.CompositeLit) []*cfg.Operation {
	ops := make([]*cfg.Operation, 0, len(lit.Elts))
	for _, elt := range lit.Elts {
		ops = append(ops, t.expr(elt))
	}
	return ops
}

func (t *translator) args(call *ast.CallExpr) []*cfg.Operation {
	ops := make([]*cfg.Operation, 0, len(call.Args))
	for _, arg := range call.Args {
		ops = append(ops, t.expr(arg))
	}
	return ops
}

func (t *translator) call(e *ast.CallExpr) *cfg.Operation {
	fun := ast.Unparen(e.Fun)
	if tv, ok := t.info.Types[fun]; ok && tv.IsType() && len(e.Args) == 1 {
		return t.at(t.b.Convert(t.expr(e.Args[0])), e)
	}
	if tv, ok := t.info.Types[e]; ok && tv.Value != nil {
		return t.at(t.b.Literal(tv.Value), e)
	}

	switch f := fun.(type) {
	case *ast.Ident:
		if b, ok := t.info.Uses[f].(*types.Builtin); ok {
			return t.builtin(b.Name(), e)
		}
		return t.at(t.b.Invoke(nil, f.Name, t.args(e)...), e)
	case *ast.SelectorExpr:
		if sel, ok := t.info.Selections[f]; ok && sel.Kind() == types.MethodVal {
			return t.at(t.b.Invoke(t.expr(f.X), f.Sel.Name, t.args(e)...), e)
		}
		if _, ok := t.info.Selections[f]; !ok {
			// package-qualified function
			return t.at(t.b.Invoke(nil, f.Sel.Name, t.args(e)...), e)
		}
	}
	// calls through function values
	callee := t.expr(fun)
	return t.at(t.b.Invoke(nil, "func", append([]*cfg.Operation{callee}, t.args(e)...)...), e)
}

func (t *translator) builtin(name string, e *ast.CallExpr) *cfg.Operation {
	switch name {
	case "panic":
		return t.at(t.b.Throw(t.expr(e.Args[0])), e)
	case "new":
		return t.at(t.b.New(t.typeName(e)), e)
	case "make":
		typ := t.info.TypeOf(e)
		if _, isSlice := typ.Underlying().(*types.Slice); !isSlice || len(e.Args) < 2 {
			return t.at(t.b.New(t.typeName(e)), e)
		}
		if tv, ok := t.info.Types[e.Args[1]]; ok && tv.Value != nil && tv.Value.ExactString() == "0" {
			return t.at(t.b.New(t.typeName(e)), e)
		}
		sizes := make([]*cfg.Operation, 0, len(e.Args)-1)
		for _, arg := range e.Args[1:] {
			sizes = append(sizes, t.expr(arg))
		}
		return t.at(t.b.New(t.typeName(e), sizes...), e)
	}
	return t.at(t.b.Invoke(nil, name, t.args(e)...), e)
}

func (t *translator) lambda(lit *ast.FuncLit) *cfg.Operation {
	t.lambdas++
	name := fmt.Sprintf("%s.func%d", t.name, t.lambdas)
	nested := &translator{shared: t.shared, name: name, b: t.b.NestedBuilder(name)}
	nested.b.Capture(t.captures(lit)...)

	g, err := nested.graph(lit.Body)
	if err != nil {
		return t.other(lit)
	}
	return t.at(t.b.Lambda(g), lit)
}

// captures lists the enclosing locals lit refers to.
func (t *translator) captures(lit *ast.FuncLit) []cfg.Symbol {
	seen := make(map[cfg.Symbol]bool)
	var syms []cfg.Symbol
	ast.Inspect(lit.Body, func(n ast.Node) bool {
		id, ok := n.(*ast.Ident)
		if !ok {
			return true
		}
		v, ok := t.local(id)
		if !ok || (v.Pos() >= lit.Pos() && v.Pos() < lit.End()) {
			return true
		}
		sym := t.symbol(v)
		if !seen[sym] {
			seen[sym] = true
			syms = append(syms, sym)
		}
		return true
	})
	slices.SortFunc(syms, func(a, b cfg.Symbol) int { return a.ID - b.ID })
	return syms
}

// local returns the function-local variable id refers to.
func (t *translator) local(id *ast.Ident) (*types.Var, bool) {
	v, ok := t.info.ObjectOf(id).(*types.Var)
	if !ok || v.IsField() || v.Pkg() == nil || v.Parent() == nil {
		return nil, false
	}
	if v.Parent() == v.Pkg().Scope() || v.Parent() == types.Universe {
		return nil, false
	}
	return v, true
}

func (t *translator) symbol(v *types.Var) cfg.Symbol {
	if sym, ok := t.symbols[v]; ok {
		return sym
	}
	sym := t.b.Symbol(v.Name())
	t.symbols[v] = sym
	t.model.Bind(sym, v)
	return sym
}

func (t *translator) typeName(e ast.Expr) string {
	if typ := t.info.TypeOf(e); typ != nil {
		return typ.String()
	}
	return types.ExprString(e)
}

func isMap(t types.Type) bool {
	if t == nil {
		return false
	}
	_, ok := t.Underlying().(*types.Map)
	return ok
}

func isIndexable(t types.Type) bool {
	if t == nil {
		return false
	}
	switch u := t.Underlying().(type) {
	case *types.Slice, *types.Array, *types.Basic:
		return true
	case *types.Pointer:
		_, ok := u.Elem().Underlying().(*types.Array)
		return ok
	}
	return false
}
