package symbolic

import (
	"github.com/gnolang/flowsym/internal/analysis/lattice"
)

// SymbolicValue stands for the runtime value held by a storage location or
// produced by an operation. Values are immutable; a nil *SymbolicValue is an
// unknown, unconstrained value.
type SymbolicValue struct {
	constraints lattice.Set
}

// NewValue allocates a fresh, unconstrained value.
func NewValue() *SymbolicValue {
	return &SymbolicValue{}
}

// ValueOf returns a fresh value carrying cs. Conflicting constraints of the
// same family keep the last one.
func ValueOf(cs ...lattice.Constraint) *SymbolicValue {
	v := NewValue()
	for _, c := range cs {
		v = v.Replace(c)
	}
	return v
}

// WithConstraint returns a value carrying c in addition to v's constraints.
// The result is false when v already carries a different constraint of the
// same family.
func (v *SymbolicValue) WithConstraint(c lattice.Constraint) (*SymbolicValue, bool) {
	set, ok := v.Constraints().With(c)
	if !ok {
		return nil, false
	}
	if v != nil && set == v.constraints {
		return v, true
	}
	return &SymbolicValue{constraints: set}, true
}

// WithoutConstraint drops the constraint of family f.
func (v *SymbolicValue) WithoutConstraint(f lattice.Family) *SymbolicValue {
	if _, ok := v.Constraint(f); !ok {
		return v
	}
	return &SymbolicValue{constraints: v.constraints.Without(f)}
}

// Replace overwrites the family of c. It models state transitions such as
// disposing a resource, which are not contradictions.
func (v *SymbolicValue) Replace(c lattice.Constraint) *SymbolicValue {
	if v.HasConstraint(c) {
		return v
	}
	return &SymbolicValue{constraints: v.Constraints().Replace(c)}
}

func (v *SymbolicValue) HasConstraint(c lattice.Constraint) bool {
	return v.Constraints().Has(c)
}

func (v *SymbolicValue) Constraint(f lattice.Family) (lattice.Constraint, bool) {
	return v.Constraints().Get(f)
}

// Constraints returns the attached constraints.
func (v *SymbolicValue) Constraints() lattice.Set {
	if v == nil {
		return lattice.Set{}
	}
	return v.constraints
}

// Equal is structural: values carrying the same constraints are equal.
func (v *SymbolicValue) Equal(other *SymbolicValue) bool {
	return v.Constraints() == other.Constraints()
}

func (v *SymbolicValue) String() string {
	if v == nil {
		return "?"
	}
	return "SV" + v.constraints.String()
}

// ConstraintOf returns the constraint of T's family, typed.
//
//	if c, ok := ConstraintOf[lattice.ObjectConstraint](v); ok && c == lattice.Null { ... }
func ConstraintOf[T lattice.Constraint](v *SymbolicValue) (T, bool) {
	var zero T
	c, ok := v.Constraint(zero.Family())
	if !ok {
		return zero, false
	}
	typed, ok := c.(T)
	return typed, ok
}

// HasFamily reports whether v carries any constraint of T's family.
func HasFamily[T lattice.Constraint](v *SymbolicValue) bool {
	_, ok := ConstraintOf[T](v)
	return ok
}
