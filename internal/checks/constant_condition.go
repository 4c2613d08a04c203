package checks

import (
	"slices"

	"github.com/gnolang/flowsym/internal/analysis/cfg"
	"github.com/gnolang/flowsym/internal/analysis/lattice"
	"github.com/gnolang/flowsym/internal/analysis/symbolic"
)

type outcome uint8

const (
	seenTrue outcome = 1 << iota
	seenFalse
	seenUnknown
)

// ConstantCondition reports branch conditions that evaluated to the same
// value on every explored path.
type ConstantCondition struct {
	symbolic.BaseCheck

	conds    map[int]*cfg.Operation
	graphs   map[int]*cfg.Graph
	outcomes map[int]outcome
}

func NewConstantCondition() symbolic.Check {
	return &ConstantCondition{}
}

func (*ConstantCondition) Name() string { return ConstantConditionName }

// ShouldExecute skips procedures without any branch.
func (c *ConstantCondition) ShouldExecute(proc *symbolic.ProcedureContext) bool {
	c.conds = make(map[int]*cfg.Operation)
	c.graphs = make(map[int]*cfg.Graph)
	c.outcomes = make(map[int]outcome)
	if proc != nil && proc.Complexity == 1 {
		return false
	}
	return notGenerated(proc)
}

func (c *ConstantCondition) PostProcess(ctx *symbolic.SymbolicContext) *symbolic.ProgramState {
	if !ctx.IsCondition() {
		return ctx.State
	}
	op := ctx.Operation
	// literal conditions are written on purpose
	if u := cfg.Unwrap(op); u.Kind == cfg.OpLiteral {
		return ctx.State
	}
	if c.conds == nil {
		c.ShouldExecute(ctx.Procedure)
	}

	c.conds[op.ID] = op
	c.graphs[op.ID] = ctx.Graph
	b, ok := symbolic.ConstraintOf[lattice.BoolConstraint](ctx.ValueOf(op))
	switch {
	case !ok:
		c.outcomes[op.ID] |= seenUnknown
	case b == lattice.True:
		c.outcomes[op.ID] |= seenTrue
	default:
		c.outcomes[op.ID] |= seenFalse
	}
	return ctx.State
}

func (c *ConstantCondition) ExecutionCompleted(done *symbolic.CompletionContext) {
	if done.BudgetExceeded {
		return
	}
	ids := make([]int, 0, len(c.conds))
	for id := range c.conds {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		cond := c.conds[id]
		switch c.outcomes[id] {
		case seenTrue:
			done.ReportIn(c.graphs[id], cond, "condition %s is always true", cond)
		case seenFalse:
			done.ReportIn(c.graphs[id], cond, "condition %s is always false", cond)
		}
	}
}
