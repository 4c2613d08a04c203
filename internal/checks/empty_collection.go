package checks

import (
	"slices"

	"github.com/gnolang/flowsym/internal/analysis/cfg"
	"github.com/gnolang/flowsym/internal/analysis/lattice"
	"github.com/gnolang/flowsym/internal/analysis/semantic"
	"github.com/gnolang/flowsym/internal/analysis/symbolic"
)

var (
	addMethods = map[string]bool{
		"Add": true, "AddRange": true, "Append": true, "Push": true, "PushBack": true,
		"PushFront": true, "Insert": true, "Enqueue": true, "Set": true, "Put": true,
		"Store": true, "Write": true,
	}
	clearMethods = map[string]bool{
		"Clear": true, "Reset": true,
	}
	removeMethods = map[string]bool{
		"Remove": true, "RemoveAt": true, "Delete": true, "Pop": true, "Dequeue": true,
	}
	// methods that are fine on an empty collection
	harmlessMethods = map[string]bool{
		"Len": true, "Count": true, "Cap": true, "String": true, "IsEmpty": true,
	}
)

// IndexMember is the member name front ends use for element access.
const IndexMember = "[]"

// EmptyCollection reports element accesses and iterations over collections
// that are empty on every explored path.
//
// Constructing a collection without elements yields Empty, adding elements
// yields NotEmpty, clearing yields Empty again and removing forgets the
// fact. A verdict is only issued when exploration completed within budget.
type EmptyCollection struct {
	symbolic.BaseCheck

	accesses map[int]*cfg.Operation
	graphs   map[int]*cfg.Graph
	empty    map[int]bool
	nonEmpty map[int]bool
}

func NewEmptyCollection() symbolic.Check {
	return &EmptyCollection{}
}

func (*EmptyCollection) Name() string { return EmptyCollectionName }

func (c *EmptyCollection) ShouldExecute(proc *symbolic.ProcedureContext) bool {
	c.accesses = make(map[int]*cfg.Operation)
	c.graphs = make(map[int]*cfg.Graph)
	c.empty = make(map[int]bool)
	c.nonEmpty = make(map[int]bool)
	return notGenerated(proc)
}

func (c *EmptyCollection) PreProcess(ctx *symbolic.SymbolicContext) *symbolic.ProgramState {
	op := ctx.Operation
	if !isAccess(op) {
		return ctx.State
	}
	if sym, ok := cfg.ReferencedSymbol(op.Instance); ok && ctx.IsCaptured(sym) {
		return ctx.State
	}
	if c.accesses == nil {
		c.ShouldExecute(ctx.Procedure)
	}

	c.accesses[op.ID] = op
	c.graphs[op.ID] = ctx.Graph
	if ctx.ValueOf(op.Instance).HasConstraint(lattice.Empty) {
		c.empty[op.ID] = true
	} else {
		c.nonEmpty[op.ID] = true
	}
	return ctx.State
}

func (c *EmptyCollection) PostProcess(ctx *symbolic.SymbolicContext) *symbolic.ProgramState {
	op := ctx.Operation
	s := ctx.State

	switch op.Kind {
	case cfg.OpObjectCreation:
		if !ctx.TypeOf(op).Is(semantic.Collection) {
			return s
		}
		if len(op.Children) == 0 {
			return replace(s, op, lattice.Empty)
		}
		return replace(s, op, lattice.NotEmpty)

	case cfg.OpInvocation:
		if op.Instance == nil {
			if op.Member == "append" && len(op.Children) > 1 {
				return replace(s, op, lattice.NotEmpty)
			}
			return s
		}
		if !isCollection(ctx, op.Instance) {
			return s
		}
		switch {
		case addMethods[op.Member]:
			return replace(s, op.Instance, lattice.NotEmpty)
		case clearMethods[op.Member]:
			return replace(s, op.Instance, lattice.Empty)
		case removeMethods[op.Member]:
			v := ctx.ValueOf(op.Instance).WithoutConstraint(lattice.Collection)
			return s.SetOperationValue(op.Instance, v)
		}
	}
	return s
}

func (c *EmptyCollection) ExecutionCompleted(done *symbolic.CompletionContext) {
	if done.BudgetExceeded {
		return
	}
	ids := make([]int, 0, len(c.accesses))
	for id := range c.accesses {
		if c.empty[id] && !c.nonEmpty[id] {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	for _, id := range ids {
		op := c.accesses[id]
		done.ReportIn(c.graphs[id], op, "%s is always empty here", op.Instance)
	}
}

func isAccess(op *cfg.Operation) bool {
	if op.Instance == nil {
		return false
	}
	switch op.Kind {
	case cfg.OpRange:
		return true
	case cfg.OpMemberAccess:
		return op.Member == IndexMember
	case cfg.OpInvocation:
		return !addMethods[op.Member] && !clearMethods[op.Member] && !harmlessMethods[op.Member]
	default:
		return false
	}
}

func isCollection(ctx *symbolic.SymbolicContext, op *cfg.Operation) bool {
	if ctx.TypeOf(op).Is(semantic.Collection) {
		return true
	}
	_, ok := symbolic.ConstraintOf[lattice.CollectionConstraint](ctx.ValueOf(op))
	return ok
}

func replace(s *symbolic.ProgramState, op *cfg.Operation, c lattice.Constraint) *symbolic.ProgramState {
	v, _ := s.Get(op)
	return s.SetOperationValue(op, v.Replace(c))
}
