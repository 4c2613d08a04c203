// Package semantic defines the read-only semantic query service the engine
// and its checks consult: declared types, call targets and constant folding.
package semantic

import (
	"go/constant"

	"github.com/gnolang/flowsym/internal/analysis/cfg"
)

// Trait is a property of a type relevant to the built-in checks.
type Trait uint8

const (
	// Nullable types admit a null value.
	Nullable Trait = 1 << iota
	// Disposable types own a resource released by Dispose/Close.
	Disposable
	// Collection types hold elements.
	Collection
)

// Type is the resolved type of an operation or symbol.
type Type struct {
	Name   string
	Traits Trait
}

func (t Type) Is(trait Trait) bool { return t.Traits&trait != 0 }

// Unknown is returned when no type information is available.
var Unknown = Type{}

// Member is the target of a member access or invocation.
type Member struct {
	Name     string
	Receiver Type
}

// Model answers semantic queries. Implementations must be safe for
// concurrent reads.
type Model interface {
	TypeOf(op *cfg.Operation) Type
	SymbolType(sym cfg.Symbol) Type
	TargetMember(op *cfg.Operation) (Member, bool)
	ConstantValue(op *cfg.Operation) (constant.Value, bool)
}

// Table is a static Model populated up front. It is what tests and
// programmatic front ends use.
type Table struct {
	ops     map[int]Type
	symbols map[cfg.Symbol]Type
	names   map[string]Type
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		ops:     make(map[int]Type),
		symbols: make(map[cfg.Symbol]Type),
		names:   make(map[string]Type),
	}
}

// SetOperation records the type of op.
func (t *Table) SetOperation(op *cfg.Operation, typ Type) *Table {
	t.ops[op.ID] = typ
	return t
}

// SetSymbol records the declared type of sym.
func (t *Table) SetSymbol(sym cfg.Symbol, typ Type) *Table {
	t.symbols[sym] = typ
	return t
}

// SetTypeName records the type created by object creations of that name.
func (t *Table) SetTypeName(typ Type) *Table {
	t.names[typ.Name] = typ
	return t
}

func (t *Table) TypeOf(op *cfg.Operation) Type {
	if op == nil {
		return Unknown
	}
	if typ, ok := t.ops[op.ID]; ok {
		return typ
	}
	switch op.Kind {
	case cfg.OpLocalRef, cfg.OpAssign:
		return t.SymbolType(op.Symbol)
	case cfg.OpConversion:
		return t.TypeOf(op.Operand())
	case cfg.OpObjectCreation:
		if typ, ok := t.names[op.Member]; ok {
			return typ
		}
		return Type{Name: op.Member}
	}
	return Unknown
}

func (t *Table) SymbolType(sym cfg.Symbol) Type {
	return t.symbols[sym]
}

func (t *Table) TargetMember(op *cfg.Operation) (Member, bool) {
	if op == nil || (op.Kind != cfg.OpMemberAccess && op.Kind != cfg.OpInvocation) {
		return Member{}, false
	}
	var recv Type
	if op.Instance != nil {
		recv = t.TypeOf(op.Instance)
	}
	return Member{Name: op.Member, Receiver: recv}, true
}

func (t *Table) ConstantValue(op *cfg.Operation) (constant.Value, bool) {
	op = cfg.Unwrap(op)
	if op == nil || op.Kind != cfg.OpLiteral || op.Value == nil {
		return nil, false
	}
	return op.Value, true
}
