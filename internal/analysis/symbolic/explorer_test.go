package symbolic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gnolang/flowsym/internal/analysis/cfg"
	"github.com/gnolang/flowsym/internal/analysis/lattice"
)

// nullProbe reports member accesses on values known to be null.
type nullProbe struct{ BaseCheck }

func (nullProbe) Name() string { return "null-probe" }

func (nullProbe) PreProcess(ctx *SymbolicContext) *ProgramState {
	op := ctx.Operation
	if op.Kind == cfg.OpMemberAccess && ctx.ValueOf(op.Instance).HasConstraint(lattice.Null) {
		ctx.Report("%s is null", op.Instance)
	}
	return ctx.State
}

// recorder remembers what it was shown.
type recorder struct {
	BaseCheck
	skip      bool
	pre       map[int]int
	states    map[int][]*ProgramState
	completed []*CompletionContext
}

func newRecorder() *recorder {
	return &recorder{pre: make(map[int]int), states: make(map[int][]*ProgramState)}
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) ShouldExecute(*ProcedureContext) bool { return !r.skip }

func (r *recorder) PreProcess(ctx *SymbolicContext) *ProgramState {
	r.pre[ctx.Operation.ID]++
	r.states[ctx.Operation.ID] = append(r.states[ctx.Operation.ID], ctx.State)
	return ctx.State
}

func (r *recorder) ExecutionCompleted(done *CompletionContext) {
	r.completed = append(r.completed, done)
}

type panicking struct {
	BaseCheck
	calls int
}

func (p *panicking) Name() string { return "panicking" }

func (p *panicking) PreProcess(*SymbolicContext) *ProgramState {
	p.calls++
	panic("boom")
}

func runExplorer(t *testing.T, g *cfg.Graph, opts Options, checks ...Check) *ExplorationResult {
	t.Helper()
	ex := NewExplorer(opts, nil)
	for _, c := range checks {
		ex.AddCheck(c)
	}
	res, err := ex.Run(context.Background(), g, &ProcedureContext{Name: g.Name})
	require.NoError(t, err)
	return res
}

// x is a parameter: if x == null { x.A } else { x.B }
func TestBranchLearning(t *testing.T) {
	t.Parallel()

	b := cfg.NewBuilder("branch")
	x := b.Symbol("x")
	cond := b.Block()
	then := b.Block()
	els := b.Block()
	b.Edge(b.Entry(), cond, cfg.Regular)
	b.SetCondition(cond, b.Eq(b.Ref(x), b.Null()))
	b.Branch(cond, then, els)
	memberA := b.Member(b.Ref(x), "A")
	memberB := b.Member(b.Ref(x), "B")
	b.Add(then, memberA)
	b.Add(els, memberB)
	b.Edge(then, b.Exit(), cfg.Regular)
	b.Edge(els, b.Exit(), cfg.Regular)
	g := b.MustBuild()

	rec := newRecorder()
	res := runExplorer(t, g, DefaultOptions(), rec, nullProbe{})

	require.Len(t, rec.states[memberA.ID], 1)
	require.Len(t, rec.states[memberB.ID], 1)
	assert.True(t, rec.states[memberA.ID][0].SymbolValue(x).HasConstraint(lattice.Null))
	assert.True(t, rec.states[memberB.ID][0].SymbolValue(x).HasConstraint(lattice.NotNull))

	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, memberA, res.Diagnostics[0].Operation)
	assert.Equal(t, "x is null", res.Diagnostics[0].Message)
	// then path dies on the dereference
	assert.Len(t, res.ReturnStates, 1)
	assert.False(t, res.BudgetExceeded)
}

func TestNullCheckScenario(t *testing.T) {
	t.Parallel()

	t.Run("guarded", func(t *testing.T) {
		t.Parallel()

		b := cfg.NewBuilder("guarded")
		x := b.Symbol("x")
		assign := b.Block()
		then := b.Block()
		els := b.Block()
		b.Edge(b.Entry(), assign, cfg.Regular)
		b.Add(assign, b.Assign(x, b.Null()))
		b.SetCondition(assign, b.Eq(b.Ref(x), b.Null()))
		b.Branch(assign, then, els)
		b.Add(then, b.Return(nil))
		member := b.Member(b.Ref(x), "Member")
		b.Add(els, member)
		b.Edge(then, b.Exit(), cfg.Regular)
		b.Edge(els, b.Exit(), cfg.Regular)

		rec := newRecorder()
		res := runExplorer(t, b.MustBuild(), DefaultOptions(), nullProbe{}, rec)
		assert.Empty(t, res.Diagnostics)
		assert.Zero(t, rec.pre[member.ID], "else branch is infeasible")
		assert.Len(t, res.ReturnStates, 1)
	})

	t.Run("unconditional", func(t *testing.T) {
		t.Parallel()

		b := cfg.NewBuilder("unconditional")
		x := b.Symbol("x")
		blk := b.Block()
		member := b.Member(b.Ref(x), "Member")
		b.Add(blk, b.Assign(x, b.Null()), member)
		b.Edge(b.Entry(), blk, cfg.Regular)
		b.Edge(blk, b.Exit(), cfg.Regular)

		res := runExplorer(t, b.MustBuild(), DefaultOptions(), nullProbe{})
		require.Len(t, res.Diagnostics, 1)
		assert.Equal(t, member, res.Diagnostics[0].Operation)
		assert.Equal(t, "null-probe", res.Diagnostics[0].Rule)
	})
}

// diamond builds entry -> cond -> (then|else) -> join -> exit where both
// arms leave the state alone.
func diamond(t *testing.T) (*cfg.Graph, *cfg.Operation) {
	t.Helper()

	b := cfg.NewBuilder("diamond")
	cond := b.Block()
	then := b.Block()
	els := b.Block()
	join := b.Block()
	b.Edge(b.Entry(), cond, cfg.Regular)
	b.SetCondition(cond, b.Invoke(nil, "flag"))
	b.Branch(cond, then, els)
	b.Add(then, b.Invoke(nil, "left"))
	b.Add(els, b.Invoke(nil, "right"))
	b.Edge(then, join, cfg.Regular)
	b.Edge(els, join, cfg.Regular)
	probe := b.Invoke(nil, "probe")
	b.Add(join, probe)
	b.Edge(join, b.Exit(), cfg.Regular)
	return b.MustBuild(), probe
}

func TestDedupSkipsHooks(t *testing.T) {
	t.Parallel()

	g, probe := diamond(t)
	rec := newRecorder()
	res := runExplorer(t, g, DefaultOptions(), rec)

	assert.Equal(t, 1, rec.pre[probe.ID], "equal states reaching the join are explored once")
	assert.Len(t, res.ReturnStates, 1)
	require.Len(t, rec.completed, 1)
	assert.False(t, rec.completed[0].BudgetExceeded)
}

// loop builds
//
//	for more() { if x == null { x = new T() } else { x = null } }
func loop(t *testing.T) *cfg.Graph {
	t.Helper()

	b := cfg.NewBuilder("loop")
	x := b.Symbol("x")
	header := b.Block()
	test := b.Block()
	create := b.Block()
	clear := b.Block()
	b.Edge(b.Entry(), header, cfg.Regular)
	b.SetCondition(header, b.Invoke(nil, "more"))
	b.Branch(header, test, b.Exit())
	b.SetCondition(test, b.Eq(b.Ref(x), b.Null()))
	b.Branch(test, create, clear)
	b.Add(create, b.Assign(x, b.New("T")))
	b.Add(clear, b.Assign(x, b.Null()))
	b.Edge(create, header, cfg.Regular)
	b.Edge(clear, header, cfg.Regular)
	return b.MustBuild()
}

func TestLoopTerminates(t *testing.T) {
	t.Parallel()

	res := runExplorer(t, loop(t), DefaultOptions())
	assert.False(t, res.BudgetExceeded)
	assert.NotEmpty(t, res.ReturnStates)
	assert.Less(t, res.Steps, DefaultOptions().MaxSteps)
}

// growingLoop builds
//
//	for more() { throw new Err() }
//
// where the throw has no handler and falls back to the loop header, so every
// iteration leaves one more value on the stack.
func growingLoop(t *testing.T) (*cfg.Graph, *cfg.Operation) {
	t.Helper()

	b := cfg.NewBuilder("growing")
	header := b.Block()
	body := b.Block()
	more := b.Invoke(nil, "more")
	b.Edge(b.Entry(), header, cfg.Regular)
	b.SetCondition(header, more)
	b.Branch(header, body, b.Exit())
	b.Add(body, b.Throw(b.New("Err")))
	b.Edge(body, header, cfg.Regular)
	return b.MustBuild(), more
}

func TestBudgets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts Options
	}{
		{"block visits", Options{MaxBlockVisits: 2, LoopUnrollBound: 100}},
		{"steps", Options{MaxSteps: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g, _ := growingLoop(t)
			rec := newRecorder()
			res := runExplorer(t, g, tt.opts, rec)
			assert.True(t, res.BudgetExceeded)
			require.Len(t, rec.completed, 1)
			assert.True(t, rec.completed[0].BudgetExceeded)
		})
	}
}

func TestLoopMergesAtUnrollBound(t *testing.T) {
	t.Parallel()

	stackDepths := func(states []*ProgramState) []int {
		var out []int
		for _, s := range states {
			out = append(out, s.StackDepth())
		}
		return out
	}

	tests := []struct {
		name     string
		opts     Options
		want     []int
		exceeded bool
	}{
		{"bound 1", Options{LoopUnrollBound: 1}, []int{0}, false},
		{"bound 2", Options{LoopUnrollBound: 2}, []int{0, 1}, false},
		{"bound 3", Options{LoopUnrollBound: 3}, []int{0, 1, 2}, false},
		{"unbounded", Options{LoopUnrollBound: 100, MaxBlockVisits: 4}, []int{0, 1, 2, 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g, more := growingLoop(t)
			rec := newRecorder()
			res := runExplorer(t, g, tt.opts, rec)
			assert.Equal(t, tt.want, stackDepths(rec.states[more.ID]))
			assert.Equal(t, tt.exceeded, res.BudgetExceeded)
		})
	}
}

// x = null; if f1 { x = new T() } else if f2 { x = new T(); y = new T() } else { g() }; x.A
func TestAcyclicJoinKeepsStatesApart(t *testing.T) {
	t.Parallel()

	b := cfg.NewBuilder("join")
	x := b.Symbol("x")
	y := b.Symbol("y")
	first := b.Block()
	second := b.Block()
	created := b.Block()
	both := b.Block()
	untouched := b.Block()
	join := b.Block()
	b.Edge(b.Entry(), first, cfg.Regular)
	b.Add(first, b.Assign(x, b.Null()))
	b.SetCondition(first, b.Invoke(nil, "f1"))
	b.Branch(first, created, second)
	b.SetCondition(second, b.Invoke(nil, "f2"))
	b.Branch(second, both, untouched)
	b.Add(created, b.Assign(x, b.New("T")))
	b.Add(both, b.Assign(x, b.New("T")), b.Assign(y, b.New("T")))
	b.Add(untouched, b.Invoke(nil, "g"))
	b.Edge(created, join, cfg.Regular)
	b.Edge(both, join, cfg.Regular)
	b.Edge(untouched, join, cfg.Regular)
	member := b.Member(b.Ref(x), "A")
	b.Add(join, member)
	b.Edge(join, b.Exit(), cfg.Regular)
	g := b.MustBuild()

	for _, bound := range []int{1, 2, 100} {
		rec := newRecorder()
		res := runExplorer(t, g, Options{LoopUnrollBound: bound}, rec, nullProbe{})

		var seen []string
		for _, s := range rec.states[member.ID] {
			seen = append(seen, s.String())
		}
		assert.Len(t, seen, 3, "bound %d: %v", bound, seen)
		require.Len(t, res.Diagnostics, 1, "bound %d", bound)
		assert.Equal(t, "x is null", res.Diagnostics[0].Message)
	}
}

func TestDeterminism(t *testing.T) {
	t.Parallel()

	build := func() *cfg.Graph {
		b := cfg.NewBuilder("determinism")
		x := b.Symbol("x")
		y := b.Symbol("y")
		cond := b.Block()
		left := b.Block()
		right := b.Block()
		b.Edge(b.Entry(), cond, cfg.Regular)
		b.SetCondition(cond, b.Invoke(nil, "flag"))
		b.Branch(cond, left, right)
		b.Add(left, b.Assign(x, b.Null()), b.Member(b.Ref(x), "A"))
		b.Add(right, b.Assign(y, b.Null()), b.Member(b.Ref(y), "B"), b.Member(b.Ref(x), "C"))
		b.Edge(left, b.Exit(), cfg.Regular)
		b.Edge(right, b.Exit(), cfg.Regular)
		return b.MustBuild()
	}

	g := build()
	first := runExplorer(t, g, DefaultOptions(), nullProbe{})
	second := runExplorer(t, g, DefaultOptions(), nullProbe{})
	require.Len(t, first.Diagnostics, 2)
	assert.Equal(t, first.Diagnostics, second.Diagnostics)
	assert.Equal(t, "x is null", first.Diagnostics[0].Message)
	assert.Equal(t, "y is null", first.Diagnostics[1].Message)
}

func TestCheckFaultIsolation(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	ex := NewExplorer(DefaultOptions(), zap.New(core))
	bad := &panicking{}
	ex.AddCheck(bad)
	ex.AddCheck(nullProbe{})

	b := cfg.NewBuilder("fault")
	x := b.Symbol("x")
	blk := b.Block()
	b.Add(blk, b.Assign(x, b.Null()), b.Member(b.Ref(x), "A"))
	b.Edge(b.Entry(), blk, cfg.Regular)
	b.Edge(blk, b.Exit(), cfg.Regular)

	res, err := ex.Run(context.Background(), b.MustBuild(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, bad.calls, "a faulting check is disabled")
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, "null-probe", res.Diagnostics[0].Rule)

	entries := logs.FilterField(zap.String("check", "panicking")).All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "disabled")
}

func TestShouldExecute(t *testing.T) {
	t.Parallel()

	g, _ := diamond(t)
	rec := newRecorder()
	rec.skip = true
	runExplorer(t, g, DefaultOptions(), rec)
	assert.Empty(t, rec.pre)
	assert.Empty(t, rec.completed)
}

func TestRunErrors(t *testing.T) {
	t.Parallel()

	ex := NewExplorer(DefaultOptions(), nil)

	_, err := ex.Run(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNilGraph)

	_, err = ex.Run(context.Background(), &cfg.Graph{Name: "empty"}, nil)
	assert.ErrorIs(t, err, ErrNoEntry)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ex.AddCheck(nullProbe{})
	g, _ := diamond(t)
	res, err := ex.Run(ctx, g, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

func TestNestedGraphs(t *testing.T) {
	t.Parallel()

	b := cfg.NewBuilder("outer")
	x := b.Symbol("x")

	inner := b.NestedBuilder("outer.func1")
	body := inner.Block()
	innerMember := inner.Member(inner.Ref(x), "Len")
	inner.Add(body, innerMember)
	inner.Edge(inner.Entry(), body, cfg.Regular)
	inner.Edge(body, inner.Exit(), cfg.Regular)
	inner.Capture(x)
	nested := inner.MustBuild()

	blk := b.Block()
	afterCall := b.Member(b.Ref(x), "Len")
	b.Add(blk,
		b.Assign(x, b.Null()),
		b.Lambda(nested),
		b.Invoke(nil, "run"),
		afterCall,
		b.Lambda(nil),
	)
	b.Edge(b.Entry(), blk, cfg.Regular)
	b.Edge(blk, b.Exit(), cfg.Regular)

	rec := newRecorder()
	res := runExplorer(t, b.MustBuild(), DefaultOptions(), nullProbe{}, rec)

	assert.Equal(t, 1, res.NestedGraphs)
	assert.Equal(t, 1, rec.pre[innerMember.ID])
	require.Len(t, rec.states[innerMember.ID], 1)
	assert.True(t, rec.states[innerMember.ID][0].IsCaptured(x))
	assert.Empty(t, res.Diagnostics, "captured values are forgotten after invocations")
	assert.Len(t, res.ReturnStates, 1, "nested exits are not procedure returns")
}

func TestExceptionFlow(t *testing.T) {
	t.Parallel()

	b := cfg.NewBuilder("exceptions")
	try := b.Block()
	throw := b.Block()
	catch := b.Block()
	b.SetRegion(try, cfg.RegionTry, 0)
	b.SetRegion(throw, cfg.RegionTry, 0)
	b.SetRegion(catch, cfg.RegionCatch, 0)

	b.Edge(b.Entry(), try, cfg.Regular)
	b.Add(try, b.Invoke(nil, "mayFail"))
	b.Edge(try, throw, cfg.Regular)
	b.Edge(try, catch, cfg.Exception)
	b.Add(throw, b.Throw(b.New("Err")))
	b.Edge(throw, b.Exit(), cfg.Regular)
	b.Edge(throw, catch, cfg.Exception)
	handled := b.Invoke(nil, "handled")
	b.Add(catch, handled)
	b.Edge(catch, b.Exit(), cfg.Regular)

	rec := newRecorder()
	res := runExplorer(t, b.MustBuild(), DefaultOptions(), rec)

	require.NotEmpty(t, rec.states[handled.ID])
	for _, s := range rec.states[handled.ID] {
		assert.Zero(t, s.StackDepth(), "entering a catch handler consumes the exception")
	}
	// the throw block only follows its exception edge
	for _, s := range res.ReturnStates {
		assert.Zero(t, s.StackDepth())
	}
}

func TestUnhandledThrowReachesExit(t *testing.T) {
	t.Parallel()

	b := cfg.NewBuilder("unhandled")
	blk := b.Block()
	b.Add(blk, b.Throw(b.New("Err")))
	b.Edge(b.Entry(), blk, cfg.Regular)
	b.Edge(blk, b.Exit(), cfg.Regular)

	res := runExplorer(t, b.MustBuild(), DefaultOptions())
	require.Len(t, res.ReturnStates, 1)
	assert.Equal(t, 1, res.ReturnStates[0].StackDepth())
	assert.True(t, res.ReturnStates[0].Peek().HasConstraint(lattice.NotNull))
}

func TestConstantConditionPrunes(t *testing.T) {
	t.Parallel()

	b := cfg.NewBuilder("constant")
	flag := b.Symbol("flag")
	cond := b.Block()
	then := b.Block()
	els := b.Block()
	b.Edge(b.Entry(), cond, cfg.Regular)
	b.Add(cond, b.Assign(flag, b.Bool(true)))
	b.SetCondition(cond, b.Not(b.Ref(flag)))
	b.Branch(cond, then, els)
	dead := b.Invoke(nil, "dead")
	live := b.Invoke(nil, "live")
	b.Add(then, dead)
	b.Add(els, live)
	b.Edge(then, b.Exit(), cfg.Regular)
	b.Edge(els, b.Exit(), cfg.Regular)

	rec := newRecorder()
	runExplorer(t, b.MustBuild(), DefaultOptions(), rec)
	assert.Zero(t, rec.pre[dead.ID])
	assert.Equal(t, 1, rec.pre[live.ID])
}
