package lattice

// Family identifies a closed group of mutually exclusive constraints.
// Constraints from different families are independent and may coexist on
// the same value.
type Family int

const (
	Object Family = iota
	Bool
	Disposable
	Collection

	// FamilyCount is the number of known families.
	FamilyCount
)

func (f Family) String() string {
	switch f {
	case Object:
		return "Object"
	case Bool:
		return "Bool"
	case Disposable:
		return "Disposable"
	case Collection:
		return "Collection"
	default:
		return "Unknown"
	}
}

// Constraint is a fact attached to a symbolic value.
// The set of implementations is closed to this package.
type Constraint interface {
	Family() Family
	// Opposite returns the other member of the family.
	Opposite() Constraint
	String() string
	sealed()
}

// ObjectConstraint models nullability.
type ObjectConstraint int

const (
	Null ObjectConstraint = iota
	NotNull
)

func (ObjectConstraint) Family() Family { return Object }
func (ObjectConstraint) sealed()        {}

func (c ObjectConstraint) Opposite() Constraint {
	switch c {
	case Null:
		return NotNull
	case NotNull:
		return Null
	default:
		panic("unknown object constraint")
	}
}

func (c ObjectConstraint) String() string {
	switch c {
	case Null:
		return "Null"
	case NotNull:
		return "NotNull"
	default:
		return "Unknown"
	}
}

// BoolConstraint models a known boolean outcome.
type BoolConstraint int

const (
	True BoolConstraint = iota
	False
)

// BoolOf returns the constraint for a concrete boolean.
func BoolOf(b bool) BoolConstraint {
	if b {
		return True
	}
	return False
}

func (BoolConstraint) Family() Family { return Bool }
func (BoolConstraint) sealed()        {}

func (c BoolConstraint) Opposite() Constraint {
	switch c {
	case True:
		return False
	case False:
		return True
	default:
		panic("unknown bool constraint")
	}
}

func (c BoolConstraint) String() string {
	switch c {
	case True:
		return "True"
	case False:
		return "False"
	default:
		return "Unknown"
	}
}

// DisposableConstraint tracks whether a resource was released.
type DisposableConstraint int

const (
	Disposed DisposableConstraint = iota
	NotDisposed
)

func (DisposableConstraint) Family() Family { return Disposable }
func (DisposableConstraint) sealed()        {}

func (c DisposableConstraint) Opposite() Constraint {
	switch c {
	case Disposed:
		return NotDisposed
	case NotDisposed:
		return Disposed
	default:
		panic("unknown disposable constraint")
	}
}

func (c DisposableConstraint) String() string {
	switch c {
	case Disposed:
		return "Disposed"
	case NotDisposed:
		return "NotDisposed"
	default:
		return "Unknown"
	}
}

// CollectionConstraint tracks collection emptiness.
type CollectionConstraint int

const (
	Empty CollectionConstraint = iota
	NotEmpty
)

func (CollectionConstraint) Family() Family { return Collection }
func (CollectionConstraint) sealed()        {}

func (c CollectionConstraint) Opposite() Constraint {
	switch c {
	case Empty:
		return NotEmpty
	case NotEmpty:
		return Empty
	default:
		panic("unknown collection constraint")
	}
}

func (c CollectionConstraint) String() string {
	switch c {
	case Empty:
		return "Empty"
	case NotEmpty:
		return "NotEmpty"
	default:
		return "Unknown"
	}
}

// Set holds at most one constraint per family. The zero value is the
// unconstrained set. Set is comparable with ==.
type Set [FamilyCount]Constraint

// Get returns the constraint of the given family, if any.
func (s Set) Get(f Family) (Constraint, bool) {
	c := s[f]
	return c, c != nil
}

// Has reports whether c is present.
func (s Set) Has(c Constraint) bool {
	return c != nil && s[c.Family()] == c
}

// Conflicts reports whether adding c would contradict an existing fact.
func (s Set) Conflicts(c Constraint) bool {
	cur := s[c.Family()]
	return cur != nil && cur != c
}

// With returns s with c attached. The second result is false when c
// conflicts with a constraint of the same family.
func (s Set) With(c Constraint) (Set, bool) {
	if s.Conflicts(c) {
		return s, false
	}
	s[c.Family()] = c
	return s, true
}

// Without returns s with the family cleared.
func (s Set) Without(f Family) Set {
	s[f] = nil
	return s
}

// Replace overwrites the family of c regardless of its previous content.
func (s Set) Replace(c Constraint) Set {
	s[c.Family()] = c
	return s
}

// IsEmpty reports whether no constraint is attached.
func (s Set) IsEmpty() bool {
	return s == Set{}
}

// Meet keeps only the facts both sets agree on. It is the join of the
// state lattice: precision can only be lost, never gained.
func Meet(a, b Set) Set {
	var out Set
	for f := Family(0); f < FamilyCount; f++ {
		if a[f] != nil && a[f] == b[f] {
			out[f] = a[f]
		}
	}
	return out
}

// Subset reports whether every constraint of a is also in b.
func Subset(a, b Set) bool {
	for f := Family(0); f < FamilyCount; f++ {
		if a[f] != nil && a[f] != b[f] {
			return false
		}
	}
	return true
}

// Constraints returns the attached constraints in family order.
func (s Set) Constraints() []Constraint {
	var out []Constraint
	for _, c := range s {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

func (s Set) String() string {
	out := "{"
	first := true
	for _, c := range s {
		if c == nil {
			continue
		}
		if !first {
			out += ", "
		}
		out += c.String()
		first = false
	}
	return out + "}"
}
