package symbolic

import (
	"fmt"
	"go/token"

	"github.com/gnolang/flowsym/internal/analysis/cfg"
	"github.com/gnolang/flowsym/internal/analysis/semantic"
)

// ProcedureContext describes the procedure about to be explored.
type ProcedureContext struct {
	Name     string
	Filename string
	// Generated is set for files carrying a "Code generated ... DO NOT EDIT." header.
	Generated bool
	// Complexity is the cyclomatic complexity of the procedure, 0 when unknown.
	Complexity int
	Semantics  semantic.Model
}

// Check observes a single shared traversal of a procedure.
//
// Hooks receive the current state and return the state to continue with.
// Returning nil marks the path infeasible. A check is shared by every path
// of a run, so any state it keeps must not depend on exploration order.
type Check interface {
	Name() string
	// ShouldExecute runs once per procedure before exploration starts.
	ShouldExecute(proc *ProcedureContext) bool
	// PreProcess runs before the operation's own effect is applied.
	PreProcess(ctx *SymbolicContext) *ProgramState
	// PostProcess runs after the operation's own effect is applied.
	PostProcess(ctx *SymbolicContext) *ProgramState
	// ExecutionCompleted runs once after every path has been explored.
	ExecutionCompleted(done *CompletionContext)
}

// BaseCheck provides pass-through hooks. Embed it and override what you need.
type BaseCheck struct{}

func (BaseCheck) ShouldExecute(*ProcedureContext) bool { return true }

func (BaseCheck) PreProcess(ctx *SymbolicContext) *ProgramState { return ctx.State }

func (BaseCheck) PostProcess(ctx *SymbolicContext) *ProgramState { return ctx.State }

func (BaseCheck) ExecutionCompleted(*CompletionContext) {}

// SymbolicContext is handed to every hook invocation. It is only valid for
// the duration of the call.
type SymbolicContext struct {
	Operation *cfg.Operation
	Block     *cfg.Block
	Graph     *cfg.Graph
	State     *ProgramState
	Semantics semantic.Model
	Procedure *ProcedureContext

	rule     string
	reporter *reporter
}

// Report raises a diagnostic on the current operation.
func (c *SymbolicContext) Report(format string, args ...any) {
	c.ReportAt(c.Operation, format, args...)
}

// ReportAt raises a diagnostic on op.
func (c *SymbolicContext) ReportAt(op *cfg.Operation, format string, args ...any) {
	c.reporter.report(c.rule, c.Graph, op, fmt.Sprintf(format, args...))
}

// ValueOf returns the value of op in the current state.
func (c *SymbolicContext) ValueOf(op *cfg.Operation) *SymbolicValue {
	v, _ := c.State.Get(op)
	return v
}

// TypeOf resolves the type of op, Unknown without a semantic model.
func (c *SymbolicContext) TypeOf(op *cfg.Operation) semantic.Type {
	if c.Semantics == nil {
		return semantic.Unknown
	}
	return c.Semantics.TypeOf(op)
}

// IsCaptured reports whether sym is shared with a nested function.
func (c *SymbolicContext) IsCaptured(sym cfg.Symbol) bool {
	return c.State.IsCaptured(sym)
}

// Captured returns the symbols shared with nested functions.
func (c *SymbolicContext) Captured() []cfg.Symbol {
	return c.State.CapturedSymbols()
}

// IsCondition reports whether the current operation is the branch condition
// of its block.
func (c *SymbolicContext) IsCondition() bool {
	return c.Block != nil && c.Block.Condition == c.Operation
}

// CompletionContext is handed to ExecutionCompleted.
type CompletionContext struct {
	// BudgetExceeded is set when exploration was truncated. Checks whose
	// verdict relies on having seen every path should stay silent.
	BudgetExceeded bool
	ReturnStates   []*ProgramState
	Procedure      *ProcedureContext

	rule     string
	reporter *reporter
}

// Report raises a diagnostic on op without naming its graph.
func (c *CompletionContext) Report(op *cfg.Operation, format string, args ...any) {
	c.ReportIn(nil, op, format, args...)
}

// ReportIn raises a diagnostic on op, which belongs to g. Checks keep the
// SymbolicContext.Graph of the operations they report late.
func (c *CompletionContext) ReportIn(g *cfg.Graph, op *cfg.Operation, format string, args ...any) {
	c.reporter.report(c.rule, g, op, fmt.Sprintf(format, args...))
}

// Diagnostic is a finding raised by a check.
type Diagnostic struct {
	Rule      string
	Message   string
	Operation *cfg.Operation
	// Graph is the graph the operation belongs to when known.
	Graph *cfg.Graph
	Pos   token.Pos
}

type reportKey struct {
	op   int
	rule string
}

// reporter keeps the first diagnostic per (operation, rule).
type reporter struct {
	seen  map[reportKey]struct{}
	diags []Diagnostic
}

func newReporter() *reporter {
	return &reporter{seen: make(map[reportKey]struct{})}
}

func (r *reporter) report(rule string, g *cfg.Graph, op *cfg.Operation, msg string) {
	key := reportKey{rule: rule, op: -1}
	var pos token.Pos
	if op != nil {
		key.op = op.ID
		pos = op.Pos
	}
	if _, dup := r.seen[key]; dup {
		return
	}
	r.seen[key] = struct{}{}
	r.diags = append(r.diags, Diagnostic{
		Rule:      rule,
		Message:   msg,
		Operation: op,
		Graph:     g,
		Pos:       pos,
	})
}
