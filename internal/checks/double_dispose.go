package checks

import (
	"github.com/gnolang/flowsym/internal/analysis/cfg"
	"github.com/gnolang/flowsym/internal/analysis/lattice"
	"github.com/gnolang/flowsym/internal/analysis/semantic"
	"github.com/gnolang/flowsym/internal/analysis/symbolic"
)

// DoubleDispose reports resources released twice on the same path.
//
// The first Close/Dispose call moves the receiver to Disposed; a later call
// on a value still carrying Disposed is reported.
type DoubleDispose struct {
	symbolic.BaseCheck
}

func NewDoubleDispose() symbolic.Check {
	return &DoubleDispose{}
}

func (*DoubleDispose) Name() string { return DoubleDisposeName }

func (*DoubleDispose) ShouldExecute(proc *symbolic.ProcedureContext) bool {
	return notGenerated(proc)
}

func (*DoubleDispose) PreProcess(ctx *symbolic.SymbolicContext) *symbolic.ProgramState {
	op := ctx.Operation
	if op.Kind != cfg.OpInvocation || op.Instance == nil || !semantic.IsDisposeMethod(op.Member) {
		return ctx.State
	}
	if sym, ok := cfg.ReferencedSymbol(op.Instance); ok && ctx.IsCaptured(sym) {
		return ctx.State
	}

	v := ctx.ValueOf(op.Instance)
	if v.HasConstraint(lattice.Disposed) {
		ctx.Report("%s is closed more than once", op.Instance)
		return ctx.State
	}
	return ctx.State.SetOperationValue(op.Instance, v.Replace(lattice.Disposed))
}
