package cfg

import (
	"errors"
	"fmt"
	"go/ast"
	"go/constant"
	"go/token"
	"strings"
)

var (
	// ErrMalformedGraph is returned when a graph violates the block/edge contract.
	ErrMalformedGraph = errors.New("malformed graph")
	// ErrNoNestedGraph is returned when an operation has no nested graph attached.
	ErrNoNestedGraph = errors.New("no nested graph")
)

// Symbol identifies a local variable or parameter within one procedure.
// IDs are unique per procedure and give symbols a stable order.
type Symbol struct {
	Name string
	ID   int
}

func (s Symbol) IsZero() bool { return s == Symbol{} }

func (s Symbol) String() string {
	return fmt.Sprintf("%s#%d", s.Name, s.ID)
}

// OpKind is the closed set of operation shapes the engine understands.
type OpKind int

const (
	OpOther OpKind = iota
	OpLiteral
	OpLocalRef
	OpAssign
	OpConversion
	OpMemberAccess
	OpInvocation
	OpObjectCreation
	OpBinary
	OpUnary
	OpIsNull
	OpLambda
	OpRange
	OpReturn
	OpThrow
)

func (k OpKind) String() string {
	switch k {
	case OpOther:
		return "Other"
	case OpLiteral:
		return "Literal"
	case OpLocalRef:
		return "LocalRef"
	case OpAssign:
		return "Assign"
	case OpConversion:
		return "Conversion"
	case OpMemberAccess:
		return "MemberAccess"
	case OpInvocation:
		return "Invocation"
	case OpObjectCreation:
		return "ObjectCreation"
	case OpBinary:
		return "Binary"
	case OpUnary:
		return "Unary"
	case OpIsNull:
		return "IsNull"
	case OpLambda:
		return "Lambda"
	case OpRange:
		return "Range"
	case OpReturn:
		return "Return"
	case OpThrow:
		return "Throw"
	default:
		return "Unknown"
	}
}

// Operator qualifies binary and unary operations.
type Operator int

const (
	OperatorNone Operator = iota
	Equal
	NotEqual
	Not
	OperatorOther
)

func (o Operator) String() string {
	switch o {
	case Equal:
		return "=="
	case NotEqual:
		return "!="
	case Not:
		return "!"
	case OperatorOther:
		return "op"
	default:
		return ""
	}
}

// Operation is one atomic step of program behavior.
//
// Instance is the receiver of member accesses, invocations and range
// operations (nil for static calls). Children hold the remaining operands:
// the assigned value, call arguments, binary operands, the converted,
// returned or thrown value.
type Operation struct {
	ID       int
	Kind     OpKind
	Symbol   Symbol
	Member   string
	Operator Operator
	Value    constant.Value // Literal only; nil is the null literal
	Instance *Operation
	Children []*Operation
	Nested   int // Lambda only: index into Graph.NestedGraphs
	Syntax   ast.Node
	Pos      token.Pos
}

// Operand returns the first child or nil.
func (op *Operation) Operand() *Operation {
	if op == nil || len(op.Children) == 0 {
		return nil
	}
	return op.Children[0]
}

func (op *Operation) Left() *Operation { return op.Operand() }

func (op *Operation) Right() *Operation {
	if op == nil || len(op.Children) < 2 {
		return nil
	}
	return op.Children[1]
}

// IsNullLiteral reports whether op is the literal null.
func (op *Operation) IsNullLiteral() bool {
	return op != nil && op.Kind == OpLiteral && op.Value == nil
}

// Unwrap strips conversions.
func Unwrap(op *Operation) *Operation {
	for op != nil && op.Kind == OpConversion {
		op = op.Operand()
	}
	return op
}

// ReferencedSymbol returns the local symbol read by op, looking through
// conversions.
func ReferencedSymbol(op *Operation) (Symbol, bool) {
	op = Unwrap(op)
	if op == nil || op.Kind != OpLocalRef {
		return Symbol{}, false
	}
	return op.Symbol, true
}

func (op *Operation) String() string {
	if op == nil {
		return "<nil>"
	}
	switch op.Kind {
	case OpLiteral:
		if op.Value == nil {
			return "null"
		}
		return op.Value.ExactString()
	case OpLocalRef:
		return op.Symbol.Name
	case OpAssign:
		if v := op.Operand(); v != nil {
			return op.Symbol.Name + " = " + v.String()
		}
		return op.Symbol.Name + " = ?"
	case OpConversion:
		return "conv(" + op.Operand().String() + ")"
	case OpMemberAccess:
		return op.Instance.String() + "." + op.Member
	case OpInvocation:
		prefix := op.Member
		if op.Instance != nil {
			prefix = op.Instance.String() + "." + op.Member
		}
		return prefix + "(" + joinOps(op.Children) + ")"
	case OpObjectCreation:
		return "new " + op.Member + "(" + joinOps(op.Children) + ")"
	case OpBinary:
		return op.Left().String() + " " + op.Operator.String() + " " + op.Right().String()
	case OpUnary:
		return op.Operator.String() + op.Operand().String()
	case OpIsNull:
		return op.Operand().String() + " is null"
	case OpLambda:
		return fmt.Sprintf("func#%d", op.Nested)
	case OpRange:
		return "range " + op.Instance.String()
	case OpReturn:
		if v := op.Operand(); v != nil {
			return "return " + v.String()
		}
		return "return"
	case OpThrow:
		return "throw " + op.Operand().String()
	default:
		return "other(" + joinOps(op.Children) + ")"
	}
}

func joinOps(ops []*Operation) string {
	parts := make([]string, 0, len(ops))
	for _, op := range ops {
		parts = append(parts, op.String())
	}
	return strings.Join(parts, ", ")
}

// ExecutionOrder flattens an operation tree so that every operand comes
// before the operation consuming it. Nested graphs are not entered.
func ExecutionOrder(root *Operation) []*Operation {
	var out []*Operation
	var visit func(op *Operation)
	visit = func(op *Operation) {
		if op == nil {
			return
		}
		visit(op.Instance)
		for _, c := range op.Children {
			visit(c)
		}
		out = append(out, op)
	}
	visit(root)
	return out
}

// BranchKind tags an edge with its branch semantics.
type BranchKind int

const (
	Regular BranchKind = iota
	Then
	Else
	Exception
)

func (k BranchKind) String() string {
	switch k {
	case Regular:
		return "regular"
	case Then:
		return "then"
	case Else:
		return "else"
	case Exception:
		return "exception"
	default:
		return "unknown"
	}
}

// RegionKind is the kind of enclosing exception-handling region.
type RegionKind int

const (
	RegionNone RegionKind = iota
	RegionTry
	RegionCatch
	RegionFinally
)

func (k RegionKind) String() string {
	switch k {
	case RegionTry:
		return "try"
	case RegionCatch:
		return "catch"
	case RegionFinally:
		return "finally"
	default:
		return "none"
	}
}

// Region describes the innermost region enclosing a block.
type Region struct {
	Kind  RegionKind
	Index int
}

// BlockKind distinguishes the synthetic entry and exit blocks.
type BlockKind int

const (
	BlockBody BlockKind = iota
	BlockEntry
	BlockExit
)

// Edge is a directed control transfer.
type Edge struct {
	From *Block
	To   *Block
	Kind BranchKind
}

// Block is a basic block.
type Block struct {
	Index      int
	Kind       BlockKind
	Operations []*Operation
	Condition  *Operation
	Succs      []*Edge
	Preds      []*Edge
	Region     Region
}

// Throws reports whether the block ends with a throw operation.
func (b *Block) Throws() bool {
	if len(b.Operations) == 0 {
		return false
	}
	return b.Operations[len(b.Operations)-1].Kind == OpThrow
}

func (b *Block) String() string {
	switch b.Kind {
	case BlockEntry:
		return "ENTRY"
	case BlockExit:
		return "EXIT"
	default:
		return fmt.Sprintf("B%d", b.Index)
	}
}

// Graph is an immutable control flow graph of one procedure.
// Blocks are in document order: the entry block first, the exit block last.
type Graph struct {
	Name         string
	Blocks       []*Block
	Captured     []Symbol
	NestedGraphs []*Graph

	// Resolve, when set, builds nested graphs lazily.
	Resolve func(op *Operation) (*Graph, error)
}

// Entry returns the entry block.
func (g *Graph) Entry() *Block {
	if g == nil || len(g.Blocks) == 0 {
		return nil
	}
	return g.Blocks[0]
}

// Exit returns the exit block.
func (g *Graph) Exit() *Block {
	if g == nil || len(g.Blocks) == 0 {
		return nil
	}
	last := g.Blocks[len(g.Blocks)-1]
	if last.Kind != BlockExit {
		return nil
	}
	return last
}

// Nested returns the graph of an anonymous or local function.
func (g *Graph) Nested(op *Operation) (*Graph, error) {
	if op == nil || op.Kind != OpLambda {
		return nil, ErrNoNestedGraph
	}
	if g.Resolve != nil {
		return g.Resolve(op)
	}
	if op.Nested < 0 || op.Nested >= len(g.NestedGraphs) || g.NestedGraphs[op.Nested] == nil {
		return nil, fmt.Errorf("%w: lambda %d in %s", ErrNoNestedGraph, op.ID, g.Name)
	}
	return g.NestedGraphs[op.Nested], nil
}

// Operations returns every operation of the graph in execution order,
// block by block.
func (g *Graph) Operations() []*Operation {
	var out []*Operation
	for _, b := range g.Blocks {
		for _, op := range b.Operations {
			out = append(out, ExecutionOrder(op)...)
		}
		if b.Condition != nil {
			out = append(out, ExecutionOrder(b.Condition)...)
		}
	}
	return out
}
