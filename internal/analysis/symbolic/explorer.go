package symbolic

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/gnolang/flowsym/internal/analysis/cfg"
	"github.com/gnolang/flowsym/internal/analysis/lattice"
	"github.com/gnolang/flowsym/internal/analysis/semantic"
)

var (
	// ErrNilGraph is returned when Run is called without a graph.
	ErrNilGraph = errors.New("nil control flow graph")
	// ErrNoEntry is returned for a graph without an entry block.
	ErrNoEntry = errors.New("control flow graph has no entry block")
)

// Options bounds an exploration.
type Options struct {
	// MaxSteps is the total number of block visits allowed in one run,
	// nested functions included.
	MaxSteps int
	// MaxBlockVisits is how many times a single path may enter the same block.
	MaxBlockVisits int
	// LoopUnrollBound is how many times a path may enter a block before its
	// next arrival there is merged with the last state recorded for the block.
	// Paths that have not looped are never merged.
	LoopUnrollBound int
	// ExploreNested enables exploration of anonymous functions.
	ExploreNested bool
}

// DefaultOptions returns the budgets used by the command line tool.
func DefaultOptions() Options {
	return Options{
		MaxSteps:        2000,
		MaxBlockVisits:  8,
		LoopUnrollBound: 2,
		ExploreNested:   true,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxSteps <= 0 {
		o.MaxSteps = d.MaxSteps
	}
	if o.MaxBlockVisits <= 0 {
		o.MaxBlockVisits = d.MaxBlockVisits
	}
	if o.LoopUnrollBound <= 0 {
		o.LoopUnrollBound = d.LoopUnrollBound
	}
	return o
}

// ExplorationResult is what one Run produced.
type ExplorationResult struct {
	// ReturnStates are the states that reached the exit of the procedure.
	ReturnStates []*ProgramState
	// BudgetExceeded is set when any path was truncated.
	BudgetExceeded bool
	Diagnostics    []Diagnostic
	// Steps is the number of block visits performed.
	Steps int
	// NestedGraphs is the number of anonymous functions explored.
	NestedGraphs int
}

// Explorer walks control flow graphs and lets checks observe every
// operation. An Explorer may be reused for several procedures but must not
// run them concurrently: its checks are shared.
type Explorer struct {
	opts   Options
	logger *zap.Logger
	checks []Check
}

// NewExplorer returns an explorer without checks. A nil logger discards
// output.
func NewExplorer(opts Options, logger *zap.Logger) *Explorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Explorer{opts: opts.withDefaults(), logger: logger}
}

// AddCheck registers c for every subsequent run. Checks observe operations
// in registration order.
func (e *Explorer) AddCheck(c Check) {
	e.checks = append(e.checks, c)
}

// Checks returns the registered checks.
func (e *Explorer) Checks() []Check {
	return slices.Clone(e.checks)
}

type activeCheck struct {
	Check
	faulted bool
}

type node struct {
	block *cfg.Block
	state *ProgramState
}

// run holds everything owned by a single Run call.
type run struct {
	opts      Options
	logger    *zap.Logger
	proc      *ProcedureContext
	semantics semantic.Model
	checks    []*activeCheck
	reporter  *reporter

	steps          int
	budgetExceeded bool
	returns        []*ProgramState

	nested     []*cfg.Graph
	nestedSeen map[*cfg.Graph]bool
	lambdas    map[*cfg.Operation]*cfg.Graph
}

// Run explores g. It returns an error only for a nil graph, a graph without
// an entry block, or a cancelled context; in the latter case no
// diagnostics are returned.
func (e *Explorer) Run(ctx context.Context, g *cfg.Graph, proc *ProcedureContext) (*ExplorationResult, error) {
	if g == nil {
		return nil, ErrNilGraph
	}
	if g.Entry() == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoEntry, g.Name)
	}
	if proc == nil {
		proc = &ProcedureContext{Name: g.Name}
	}

	r := &run{
		opts:       e.opts,
		logger:     e.logger.With(zap.String("procedure", proc.Name)),
		proc:       proc,
		semantics:  proc.Semantics,
		reporter:   newReporter(),
		nestedSeen: make(map[*cfg.Graph]bool),
		lambdas:    make(map[*cfg.Operation]*cfg.Graph),
	}
	for _, c := range e.checks {
		if r.shouldExecute(c) {
			r.checks = append(r.checks, &activeCheck{Check: c})
		}
	}

	if err := r.explore(ctx, g, Empty(), true); err != nil {
		return nil, err
	}
	for i := 0; i < len(r.nested); i++ {
		nested := r.nested[i]
		if err := r.explore(ctx, nested, Empty().WithCaptured(nested.Captured...), false); err != nil {
			return nil, err
		}
	}

	for _, c := range r.checks {
		if c.faulted {
			continue
		}
		r.completed(c)
	}

	diags := r.reporter.diags
	slices.SortStableFunc(diags, func(a, b Diagnostic) int {
		return cmp.Or(
			cmp.Compare(a.Pos, b.Pos),
			cmp.Compare(a.Rule, b.Rule),
			cmp.Compare(opID(a.Operation), opID(b.Operation)),
		)
	})

	return &ExplorationResult{
		ReturnStates:   r.returns,
		BudgetExceeded: r.budgetExceeded,
		Diagnostics:    diags,
		Steps:          r.steps,
		NestedGraphs:   len(r.nested),
	}, nil
}

func opID(op *cfg.Operation) int {
	if op == nil {
		return -1
	}
	return op.ID
}

func (r *run) shouldExecute(c Check) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("check failed in ShouldExecute",
				zap.String("check", c.Name()),
				zap.Any("panic", rec))
			ok = false
		}
	}()
	return c.ShouldExecute(r.proc)
}

func (r *run) completed(c *activeCheck) {
	defer func() {
		if rec := recover(); rec != nil {
			c.faulted = true
			r.logger.Error("check failed in ExecutionCompleted",
				zap.String("check", c.Name()),
				zap.Any("panic", rec))
		}
	}()
	c.ExecutionCompleted(&CompletionContext{
		BudgetExceeded: r.budgetExceeded,
		ReturnStates:   r.returns,
		Procedure:      r.proc,
		rule:           c.Name(),
		reporter:       r.reporter,
	})
}

// explore runs the worklist over one graph.
func (r *run) explore(ctx context.Context, g *cfg.Graph, initial *ProgramState, root bool) error {
	guard := newExplosionGuard()
	last := make(map[int]*ProgramState)

	entry := g.Entry()
	guard.Record(entry, initial)
	queue := []node{{block: entry, state: initial}}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.steps >= r.opts.MaxSteps {
			r.budgetExceeded = true
			r.logger.Debug("step budget exhausted",
				zap.String("graph", g.Name),
				zap.Int("pending", len(queue)))
			return nil
		}

		n := queue[0]
		queue = queue[1:]
		r.steps++

		state := r.visit(g, n.block, n.state.WithVisit(n.block.Index))
		if state == nil {
			continue
		}
		if n.block.Kind == cfg.BlockExit || len(n.block.Succs) == 0 {
			if root {
				r.returns = append(r.returns, state)
			}
			continue
		}

		for _, next := range r.successors(n.block, state) {
			to := next.block
			s := next.state
			if s.VisitCount(to.Index) >= r.opts.MaxBlockVisits {
				r.budgetExceeded = true
				r.logger.Debug("block visit budget exhausted",
					zap.String("graph", g.Name),
					zap.Stringer("block", to))
				continue
			}
			if to.Kind != cfg.BlockExit && s.VisitCount(to.Index) >= r.opts.LoopUnrollBound {
				if prev := last[to.Index]; prev != nil {
					s = Merge(prev, s)
				}
			}
			if guard.Seen(to, s) {
				continue
			}
			guard.Record(to, s)
			last[to.Index] = s
			queue = append(queue, node{block: to, state: s})
		}
	}
	return nil
}

// visit replays the operations of blk and its condition.
func (r *run) visit(g *cfg.Graph, blk *cfg.Block, s *ProgramState) *ProgramState {
	for _, root := range blk.Operations {
		for _, op := range cfg.ExecutionOrder(root) {
			if s = r.execute(g, blk, op, s); s == nil {
				return nil
			}
		}
	}
	if blk.Condition != nil {
		for _, op := range cfg.ExecutionOrder(blk.Condition) {
			if s = r.execute(g, blk, op, s); s == nil {
				return nil
			}
		}
	}
	return s
}

// execute runs Pre hooks, the transfer function and Post hooks for op.
func (r *run) execute(g *cfg.Graph, blk *cfg.Block, op *cfg.Operation, s *ProgramState) *ProgramState {
	ctx := &SymbolicContext{
		Operation: op,
		Block:     blk,
		Graph:     g,
		Semantics: r.semantics,
		Procedure: r.proc,
		reporter:  r.reporter,
	}
	for _, c := range r.checks {
		if s = r.hook(c, ctx, s, true); s == nil {
			return nil
		}
	}
	if s = r.transfer(g, op, s); s == nil {
		return nil
	}
	for _, c := range r.checks {
		if s = r.hook(c, ctx, s, false); s == nil {
			return nil
		}
	}
	return s
}

// hook invokes one check. A panicking check is disabled and the state it
// was given is passed on unchanged.
func (r *run) hook(c *activeCheck, ctx *SymbolicContext, s *ProgramState, pre bool) (out *ProgramState) {
	if c.faulted {
		return s
	}
	defer func() {
		if rec := recover(); rec != nil {
			c.faulted = true
			r.logger.Error("check failed, disabled for this procedure",
				zap.String("check", c.Name()),
				zap.Any("panic", rec),
				zap.Stringer("operation", ctx.Operation))
			out = s
		}
	}()
	ctx.State = s
	ctx.rule = c.Name()
	if pre {
		return c.PreProcess(ctx)
	}
	return c.PostProcess(ctx)
}

// successors computes the feasible outgoing states of blk in edge order.
func (r *run) successors(blk *cfg.Block, s *ProgramState) []node {
	edges := blk.Succs
	if blk.Throws() {
		var exc []*cfg.Edge
		for _, e := range edges {
			if e.Kind == cfg.Exception {
				exc = append(exc, e)
			}
		}
		if len(exc) > 0 {
			edges = exc
		}
	}

	out := make([]node, 0, len(edges))
	for _, e := range edges {
		next := s
		switch e.Kind {
		case cfg.Then:
			next = learn(next, blk.Condition, true)
		case cfg.Else:
			next = learn(next, blk.Condition, false)
		case cfg.Exception:
			if !blk.Throws() {
				next = next.Push(ValueOf(lattice.NotNull))
			}
			if e.To.Region.Kind == cfg.RegionCatch {
				next, _ = next.Pop()
			}
		}
		if next == nil {
			continue
		}
		out = append(out, node{block: e.To, state: next.ResetOperations()})
	}
	return out
}

// scheduleNested resolves the graph of a lambda and queues it for
// exploration once. Resolution failures are logged and the lambda is
// treated as opaque.
func (r *run) scheduleNested(g *cfg.Graph, op *cfg.Operation) *cfg.Graph {
	if nested, ok := r.lambdas[op]; ok {
		return nested
	}
	nested, err := g.Nested(op)
	if err != nil {
		r.logger.Warn("skipping nested function",
			zap.String("graph", g.Name),
			zap.Stringer("operation", op),
			zap.Error(err))
		r.lambdas[op] = nil
		return nil
	}
	r.lambdas[op] = nested
	if r.opts.ExploreNested && nested != nil && !r.nestedSeen[nested] {
		r.nestedSeen[nested] = true
		r.nested = append(r.nested, nested)
	}
	return nested
}
