package symbolic

import (
	"github.com/gnolang/flowsym/internal/analysis/cfg"
	"github.com/gnolang/flowsym/internal/analysis/lattice"
)

// Merge joins two states reaching the same block. Facts survive only when
// both sides agree on them; a symbol or operation known on one side only is
// dropped. Merging with Bottom (nil) returns the other state.
//
// The result is never more precise than either input.
func Merge(a, b *ProgramState) *ProgramState {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a == b || a.Equal(b) && sameBookkeeping(a, b) {
		return a
	}

	out := &ProgramState{}
	for sym, av := range a.symbols {
		bv, ok := b.symbols[sym]
		if !ok {
			continue
		}
		if out.symbols == nil {
			out.symbols = make(map[cfg.Symbol]*SymbolicValue)
		}
		out.symbols[sym] = meetValues(av, bv)
	}
	for id, av := range a.ops {
		bv, ok := b.ops[id]
		if !ok {
			continue
		}
		if out.ops == nil {
			out.ops = make(map[int]*SymbolicValue)
		}
		out.ops[id] = meetValues(av, bv)
	}

	depth := min(len(a.stack), len(b.stack))
	if depth > 0 {
		out.stack = make([]*SymbolicValue, depth)
		for i := range depth {
			out.stack[i] = meetValues(a.stack[i], b.stack[i])
		}
	}

	if len(a.captured)+len(b.captured) > 0 {
		out.captured = make(map[cfg.Symbol]struct{}, len(a.captured)+len(b.captured))
		for sym := range a.captured {
			out.captured[sym] = struct{}{}
		}
		for sym := range b.captured {
			out.captured[sym] = struct{}{}
		}
	}

	if len(a.visits)+len(b.visits) > 0 {
		out.visits = make(map[int]int, len(a.visits))
		for blk, n := range a.visits {
			out.visits[blk] = n
		}
		for blk, n := range b.visits {
			out.visits[blk] = max(out.visits[blk], n)
		}
	}
	return out
}

func meetValues(a, b *SymbolicValue) *SymbolicValue {
	if a == b {
		return a
	}
	set := lattice.Meet(a.Constraints(), b.Constraints())
	if set == a.Constraints() {
		return a
	}
	return &SymbolicValue{constraints: set}
}

func sameBookkeeping(a, b *ProgramState) bool {
	if len(a.captured) != len(b.captured) || len(a.visits) != len(b.visits) {
		return false
	}
	for sym := range a.captured {
		if _, ok := b.captured[sym]; !ok {
			return false
		}
	}
	for blk, n := range a.visits {
		if b.visits[blk] != n {
			return false
		}
	}
	return true
}

// LessOrEqual reports whether a carries at least the facts of b, so that
// anything proven from b also holds from a. Bottom is below everything.
func LessOrEqual(a, b *ProgramState) bool {
	if a == nil {
		return true
	}
	if b == nil {
		return false
	}
	for sym, bv := range b.symbols {
		if !lattice.Subset(bv.Constraints(), a.symbols[sym].Constraints()) {
			return false
		}
	}
	return true
}
