package symbolic

import (
	"maps"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/gnolang/flowsym/internal/analysis/cfg"
	"github.com/gnolang/flowsym/internal/analysis/lattice"
)

// ProgramState is an immutable snapshot of everything known at one point of
// an exploration path. Every mutator returns a new state and leaves the
// receiver untouched, so states can be shared between worklist branches.
//
// A nil *ProgramState is the Bottom state: the path is infeasible. Mutators
// return nil on contradiction and propagate nil receivers.
type ProgramState struct {
	symbols  map[cfg.Symbol]*SymbolicValue
	ops      map[int]*SymbolicValue // keyed by operation ID
	stack    []*SymbolicValue
	captured map[cfg.Symbol]struct{}
	visits   map[int]int // keyed by block index

	// fingerprint cache, see Fingerprint
	fp    atomic.Uint64
	hasFP atomic.Bool
}

// Empty returns the state a procedure starts with.
func Empty() *ProgramState {
	return &ProgramState{}
}

// clone copies the header; maps are shared until the caller replaces the one
// it modifies.
func (s *ProgramState) clone() *ProgramState {
	return &ProgramState{
		symbols:  s.symbols,
		ops:      s.ops,
		stack:    s.stack,
		captured: s.captured,
		visits:   s.visits,
	}
}

// SymbolValue returns the value bound to sym, or nil when unknown.
func (s *ProgramState) SymbolValue(sym cfg.Symbol) *SymbolicValue {
	if s == nil {
		return nil
	}
	return s.symbols[sym]
}

// OperationValue returns the value produced by op, or nil when unknown.
func (s *ProgramState) OperationValue(op *cfg.Operation) *SymbolicValue {
	if s == nil || op == nil {
		return nil
	}
	return s.ops[op.ID]
}

// Get returns the value of op, falling back to the symbol op reads.
func (s *ProgramState) Get(op *cfg.Operation) (*SymbolicValue, bool) {
	if v := s.OperationValue(op); v != nil {
		return v, true
	}
	if sym, ok := trackedSymbol(op); ok {
		v := s.SymbolValue(sym)
		return v, v != nil
	}
	return nil, false
}

// SetSymbolValue binds v to sym. A nil v forgets the symbol.
func (s *ProgramState) SetSymbolValue(sym cfg.Symbol, v *SymbolicValue) *ProgramState {
	if s == nil {
		return nil
	}
	if cur, ok := s.symbols[sym]; ok && cur == v {
		return s
	}
	out := s.clone()
	out.symbols = maps.Clone(s.symbols)
	if out.symbols == nil {
		out.symbols = make(map[cfg.Symbol]*SymbolicValue)
	}
	if v == nil {
		delete(out.symbols, sym)
	} else {
		out.symbols[sym] = v
	}
	return out
}

// SetOperationValue binds v to op. When op reads or assigns a local symbol
// (through conversions) the symbol is updated too.
func (s *ProgramState) SetOperationValue(op *cfg.Operation, v *SymbolicValue) *ProgramState {
	if s == nil {
		return nil
	}
	out := s.clone()
	out.ops = maps.Clone(s.ops)
	if out.ops == nil {
		out.ops = make(map[int]*SymbolicValue)
	}
	if v == nil {
		delete(out.ops, op.ID)
	} else {
		out.ops[op.ID] = v
	}
	if sym, ok := trackedSymbol(op); ok {
		return out.SetSymbolValue(sym, v)
	}
	return out
}

// SetSymbolConstraint attaches c to sym's value. It returns nil when c
// contradicts what is already known.
func (s *ProgramState) SetSymbolConstraint(sym cfg.Symbol, c lattice.Constraint) *ProgramState {
	if s == nil {
		return nil
	}
	v, ok := s.SymbolValue(sym).WithConstraint(c)
	if !ok {
		return nil
	}
	return s.SetSymbolValue(sym, v)
}

// SetOperationConstraint attaches c to op's value (and to the symbol op
// reads). It returns nil when c contradicts what is already known.
func (s *ProgramState) SetOperationConstraint(op *cfg.Operation, c lattice.Constraint) *ProgramState {
	if s == nil {
		return nil
	}
	cur, _ := s.Get(op)
	v, ok := cur.WithConstraint(c)
	if !ok {
		return nil
	}
	return s.SetOperationValue(op, v)
}

// trackedSymbol returns the symbol whose value is also op's value.
func trackedSymbol(op *cfg.Operation) (cfg.Symbol, bool) {
	op = cfg.Unwrap(op)
	if op == nil {
		return cfg.Symbol{}, false
	}
	switch op.Kind {
	case cfg.OpLocalRef, cfg.OpAssign:
		return op.Symbol, true
	default:
		return cfg.Symbol{}, false
	}
}

// ResetOperations forgets every operation value. The explorer calls it at
// block boundaries so that states reaching a join only differ by what is
// stored in symbols.
func (s *ProgramState) ResetOperations() *ProgramState {
	if s == nil || len(s.ops) == 0 {
		return s
	}
	out := s.clone()
	out.ops = nil
	return out
}

// Push pushes an in-flight value.
func (s *ProgramState) Push(v *SymbolicValue) *ProgramState {
	if s == nil {
		return nil
	}
	out := s.clone()
	out.stack = append(slices.Clip(s.stack), v)
	return out
}

// Pop removes the top of the stack. Popping an empty stack returns the
// state unchanged and a nil value.
func (s *ProgramState) Pop() (*ProgramState, *SymbolicValue) {
	if s == nil || len(s.stack) == 0 {
		return s, nil
	}
	out := s.clone()
	top := s.stack[len(s.stack)-1]
	out.stack = slices.Clip(s.stack[:len(s.stack)-1])
	return out, top
}

// Peek returns the top of the stack or nil.
func (s *ProgramState) Peek() *SymbolicValue {
	if s == nil || len(s.stack) == 0 {
		return nil
	}
	return s.stack[len(s.stack)-1]
}

// StackDepth returns the number of in-flight values.
func (s *ProgramState) StackDepth() int {
	if s == nil {
		return 0
	}
	return len(s.stack)
}

// WithCaptured marks symbols as captured by a nested function.
func (s *ProgramState) WithCaptured(syms ...cfg.Symbol) *ProgramState {
	if s == nil {
		return nil
	}
	missing := false
	for _, sym := range syms {
		if _, ok := s.captured[sym]; !ok {
			missing = true
			break
		}
	}
	if !missing {
		return s
	}
	out := s.clone()
	out.captured = maps.Clone(s.captured)
	if out.captured == nil {
		out.captured = make(map[cfg.Symbol]struct{}, len(syms))
	}
	for _, sym := range syms {
		out.captured[sym] = struct{}{}
	}
	return out
}

// IsCaptured reports whether sym is captured by a nested function.
func (s *ProgramState) IsCaptured(sym cfg.Symbol) bool {
	if s == nil {
		return false
	}
	_, ok := s.captured[sym]
	return ok
}

// CapturedSymbols returns the captured symbols sorted by ID.
func (s *ProgramState) CapturedSymbols() []cfg.Symbol {
	if s == nil {
		return nil
	}
	out := make([]cfg.Symbol, 0, len(s.captured))
	for sym := range s.captured {
		out = append(out, sym)
	}
	sortSymbols(out)
	return out
}

// ResetCaptured forgets the values of captured symbols: a nested function
// may have run and changed them.
func (s *ProgramState) ResetCaptured() *ProgramState {
	if s == nil {
		return nil
	}
	out := s
	for sym := range s.captured {
		if _, ok := out.symbols[sym]; ok {
			out = out.SetSymbolValue(sym, nil)
		}
	}
	return out
}

// WithVisit increments the visit counter of block.
func (s *ProgramState) WithVisit(block int) *ProgramState {
	if s == nil {
		return nil
	}
	out := s.clone()
	out.visits = maps.Clone(s.visits)
	if out.visits == nil {
		out.visits = make(map[int]int)
	}
	out.visits[block]++
	if s.hasFP.Load() {
		out.fp.Store(s.fp.Load())
		out.hasFP.Store(true)
	}
	return out
}

// VisitCount returns how many times the path leading to s entered block.
func (s *ProgramState) VisitCount(block int) int {
	if s == nil {
		return 0
	}
	return s.visits[block]
}

// Symbols returns the bound symbols sorted by ID.
func (s *ProgramState) Symbols() []cfg.Symbol {
	if s == nil {
		return nil
	}
	out := make([]cfg.Symbol, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	sortSymbols(out)
	return out
}

func sortSymbols(syms []cfg.Symbol) {
	slices.SortFunc(syms, func(a, b cfg.Symbol) int {
		if a.ID != b.ID {
			return a.ID - b.ID
		}
		return strings.Compare(a.Name, b.Name)
	})
}

func sortedOpIDs(ops map[int]*SymbolicValue) []int {
	ids := make([]int, 0, len(ops))
	for id := range ops {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Equal reports structural equality of symbol and operation bindings and of
// the stack. Captured symbols and visit counters are bookkeeping and do not
// take part.
func (s *ProgramState) Equal(other *ProgramState) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s == other {
		return true
	}
	if len(s.symbols) != len(other.symbols) || len(s.ops) != len(other.ops) || len(s.stack) != len(other.stack) {
		return false
	}
	for sym, v := range s.symbols {
		ov, ok := other.symbols[sym]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	for id, v := range s.ops {
		ov, ok := other.ops[id]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	for i := range s.stack {
		if !s.stack[i].Equal(other.stack[i]) {
			return false
		}
	}
	return true
}

func (s *ProgramState) String() string {
	if s == nil {
		return "Bottom"
	}
	var b strings.Builder
	b.WriteString("State{")
	first := true
	sep := func() {
		if !first {
			b.WriteString(", ")
		}
		first = false
	}
	for _, sym := range s.Symbols() {
		sep()
		b.WriteString(sym.Name + ": " + s.symbols[sym].String())
	}
	for _, id := range sortedOpIDs(s.ops) {
		sep()
		b.WriteString("op" + itoa(id) + ": " + s.ops[id].String())
	}
	if len(s.stack) > 0 {
		sep()
		b.WriteString("stack: [")
		for i, v := range s.stack {
			if i > 0 {
				b.WriteString(" ")
			}
			b.WriteString(v.String())
		}
		b.WriteString("]")
	}
	b.WriteString("}")
	return b.String()
}
