package symbolic

import (
	"go/constant"
	"go/token"

	"github.com/gnolang/flowsym/internal/analysis/cfg"
	"github.com/gnolang/flowsym/internal/analysis/lattice"
	"github.com/gnolang/flowsym/internal/analysis/semantic"
)

// transfer applies the intrinsic effect of op.
func (r *run) transfer(g *cfg.Graph, op *cfg.Operation, s *ProgramState) *ProgramState {
	switch op.Kind {
	case cfg.OpLiteral:
		return s.SetOperationValue(op, literalValue(op))

	case cfg.OpLocalRef:
		v := s.SymbolValue(op.Symbol)
		if v == nil {
			v = r.freshValue(r.symbolType(op.Symbol))
		}
		return s.SetOperationValue(op, v)

	case cfg.OpAssign:
		var v *SymbolicValue
		if value := op.Operand(); value != nil {
			v, _ = s.Get(value)
		}
		if v == nil {
			v = r.freshValue(r.symbolType(op.Symbol))
		}
		return s.SetOperationValue(op, v)

	case cfg.OpConversion:
		v, _ := s.Get(op.Operand())
		if v == nil {
			v = r.freshValue(r.typeOf(op))
		}
		return s.SetOperationValue(op, v)

	case cfg.OpMemberAccess:
		if op.Instance != nil {
			if s = s.SetOperationConstraint(op.Instance, lattice.NotNull); s == nil {
				return nil
			}
		}
		return s.SetOperationValue(op, r.freshValue(r.typeOf(op)))

	case cfg.OpInvocation:
		if op.Instance != nil {
			if s = s.SetOperationConstraint(op.Instance, lattice.NotNull); s == nil {
				return nil
			}
		}
		// the callee may run a nested function that writes captured variables
		s = s.ResetCaptured()
		return s.SetOperationValue(op, r.freshValue(r.typeOf(op)))

	case cfg.OpObjectCreation:
		v := ValueOf(lattice.NotNull)
		if r.typeOf(op).Is(semantic.Disposable) {
			v = v.Replace(lattice.NotDisposed)
		}
		return s.SetOperationValue(op, v)

	case cfg.OpBinary:
		v := NewValue()
		if op.Operator == cfg.Equal || op.Operator == cfg.NotEqual {
			if eq, known := r.foldEquality(op, s); known {
				v = ValueOf(lattice.BoolOf(eq == (op.Operator == cfg.Equal)))
			}
		}
		return s.SetOperationValue(op, v)

	case cfg.OpUnary:
		v := NewValue()
		if op.Operator == cfg.Not {
			operand, _ := s.Get(op.Operand())
			if b, ok := ConstraintOf[lattice.BoolConstraint](operand); ok {
				v = ValueOf(b.Opposite())
			}
		}
		return s.SetOperationValue(op, v)

	case cfg.OpIsNull:
		v := NewValue()
		operand, _ := s.Get(op.Operand())
		if c, ok := ConstraintOf[lattice.ObjectConstraint](operand); ok {
			v = ValueOf(lattice.BoolOf(c == lattice.Null))
		}
		return s.SetOperationValue(op, v)

	case cfg.OpLambda:
		if nested := r.scheduleNested(g, op); nested != nil {
			s = s.WithCaptured(nested.Captured...)
		}
		return s.SetOperationValue(op, ValueOf(lattice.NotNull))

	case cfg.OpThrow:
		exc, _ := s.Get(op.Operand())
		if exc == nil {
			exc = NewValue()
		}
		if exc, _ = exc.WithConstraint(lattice.NotNull); exc == nil {
			// throwing a value known to be null still raises
			exc = ValueOf(lattice.NotNull)
		}
		return s.Push(exc)

	case cfg.OpRange, cfg.OpReturn:
		return s

	default:
		return s.SetOperationValue(op, NewValue())
	}
}

func literalValue(op *cfg.Operation) *SymbolicValue {
	if op.Value == nil {
		return ValueOf(lattice.Null)
	}
	if op.Value.Kind() == constant.Bool {
		return ValueOf(lattice.NotNull, lattice.BoolOf(constant.BoolVal(op.Value)))
	}
	return ValueOf(lattice.NotNull)
}

func (r *run) typeOf(op *cfg.Operation) semantic.Type {
	if r.semantics == nil {
		return semantic.Unknown
	}
	return r.semantics.TypeOf(op)
}

func (r *run) symbolType(sym cfg.Symbol) semantic.Type {
	if r.semantics == nil {
		return semantic.Unknown
	}
	return r.semantics.SymbolType(sym)
}

// freshValue returns an unconstrained value, NotNull when the type is known
// not to admit null.
func (r *run) freshValue(t semantic.Type) *SymbolicValue {
	if t.Name != "" && !t.Is(semantic.Nullable) {
		return ValueOf(lattice.NotNull)
	}
	return NewValue()
}

func (r *run) constantOf(op *cfg.Operation) (constant.Value, bool) {
	if u := cfg.Unwrap(op); u != nil && u.Kind == cfg.OpLiteral && u.Value != nil {
		return u.Value, true
	}
	if r.semantics == nil {
		return nil, false
	}
	return r.semantics.ConstantValue(op)
}

// foldEquality decides left == right when the operands are known.
func (r *run) foldEquality(op *cfg.Operation, s *ProgramState) (equal, known bool) {
	lv, _ := s.Get(op.Left())
	rv, _ := s.Get(op.Right())

	lo, lok := ConstraintOf[lattice.ObjectConstraint](lv)
	ro, rok := ConstraintOf[lattice.ObjectConstraint](rv)
	if lok && rok {
		switch {
		case lo == lattice.Null && ro == lattice.Null:
			return true, true
		case lo != ro:
			return false, true
		}
	}

	lb, lok := ConstraintOf[lattice.BoolConstraint](lv)
	rb, rok := ConstraintOf[lattice.BoolConstraint](rv)
	if lok && rok {
		return lb == rb, true
	}

	lc, lok := r.constantOf(op.Left())
	rc, rok := r.constantOf(op.Right())
	if lok && rok && sameKind(lc, rc) {
		return constant.Compare(lc, token.EQL, rc), true
	}
	return false, false
}

func sameKind(a, b constant.Value) bool {
	numeric := func(k constant.Kind) bool {
		return k == constant.Int || k == constant.Float || k == constant.Complex
	}
	ka, kb := a.Kind(), b.Kind()
	if ka == constant.Unknown || kb == constant.Unknown {
		return false
	}
	return ka == kb || numeric(ka) && numeric(kb)
}

// learn narrows s assuming cond evaluated to truth. It returns nil when the
// assumption contradicts s.
func learn(s *ProgramState, cond *cfg.Operation, truth bool) *ProgramState {
	if s == nil || cond == nil {
		return s
	}
	if s = s.SetOperationConstraint(cond, lattice.BoolOf(truth)); s == nil {
		return nil
	}

	op := cfg.Unwrap(cond)
	switch op.Kind {
	case cfg.OpUnary:
		if op.Operator == cfg.Not {
			return learn(s, op.Operand(), !truth)
		}

	case cfg.OpIsNull:
		return learnNull(s, op.Operand(), truth)

	case cfg.OpBinary:
		if op.Operator != cfg.Equal && op.Operator != cfg.NotEqual {
			return s
		}
		equal := truth == (op.Operator == cfg.Equal)
		left, right := op.Left(), op.Right()
		switch {
		case cfg.Unwrap(right).IsNullLiteral():
			return learnNull(s, left, equal)
		case cfg.Unwrap(left).IsNullLiteral():
			return learnNull(s, right, equal)
		}
		if b, ok := boolOperand(s, right); ok {
			return learn(s, left, b == equal)
		}
		if b, ok := boolOperand(s, left); ok {
			return learn(s, right, b == equal)
		}
	}
	return s
}

func learnNull(s *ProgramState, op *cfg.Operation, isNull bool) *ProgramState {
	if isNull {
		return s.SetOperationConstraint(op, lattice.Null)
	}
	return s.SetOperationConstraint(op, lattice.NotNull)
}

// boolOperand returns the truth value of op when it is a boolean literal.
func boolOperand(s *ProgramState, op *cfg.Operation) (bool, bool) {
	u := cfg.Unwrap(op)
	if u == nil || u.Kind != cfg.OpLiteral {
		return false, false
	}
	v, _ := s.Get(u)
	b, ok := ConstraintOf[lattice.BoolConstraint](v)
	return b == lattice.True, ok
}
