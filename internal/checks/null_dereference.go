package checks

import (
	"github.com/gnolang/flowsym/internal/analysis/cfg"
	"github.com/gnolang/flowsym/internal/analysis/lattice"
	"github.com/gnolang/flowsym/internal/analysis/symbolic"
)

// NullDereference reports field accesses and method calls on values known
// to be nil on the path being explored.
type NullDereference struct {
	symbolic.BaseCheck
}

func NewNullDereference() symbolic.Check {
	return &NullDereference{}
}

func (*NullDereference) Name() string { return NullDereferenceName }

func (*NullDereference) ShouldExecute(proc *symbolic.ProcedureContext) bool {
	return notGenerated(proc)
}

func (*NullDereference) PreProcess(ctx *symbolic.SymbolicContext) *symbolic.ProgramState {
	op := ctx.Operation
	if op.Kind != cfg.OpMemberAccess && op.Kind != cfg.OpInvocation {
		return ctx.State
	}
	if op.Instance == nil {
		return ctx.State
	}
	// a nested function may have assigned it
	if sym, ok := cfg.ReferencedSymbol(op.Instance); ok && ctx.IsCaptured(sym) {
		return ctx.State
	}

	if ctx.ValueOf(op.Instance).HasConstraint(lattice.Null) {
		if op.Kind == cfg.OpInvocation {
			ctx.Report("%s is nil when calling %s", op.Instance, op.Member)
		} else {
			ctx.Report("%s is nil when accessing %s", op.Instance, op.Member)
		}
	}
	return ctx.State
}
