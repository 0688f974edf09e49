// Package cfg defines the control-flow-graph language consumed by the
// abstract-interpretation engine: typed variables, statements over
// scalars, booleans, pointers and arrays, basic blocks and the graph
// connecting them.
//
// Values of this language are deliberately simpler than the source IR:
// all operands of a statement are variables or constants, control flow
// is expressed purely through block edges, and memory is visible only
// through explicit array and pointer statements.
package cfg

import (
	"fmt"
	"math/big"
)

// Kind is the coarse class of a variable's type.
type Kind uint8

const (
	BoolKind Kind = iota
	IntKind
	PointerKind
	ArrayKind
)

func (k Kind) String() string {
	switch k {
	case BoolKind:
		return "bool"
	case IntKind:
		return "int"
	case PointerKind:
		return "ptr"
	case ArrayKind:
		return "arr"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Type is a variable type. Width is in bits and meaningful for integers
// and integer arrays; zero means unknown. Elem is meaningful only when
// Kind is ArrayKind.
type Type struct {
	Kind  Kind
	Width int
	Elem  Kind
}

func BoolType() Type          { return Type{Kind: BoolKind, Width: 1} }
func IntType(width int) Type  { return Type{Kind: IntKind, Width: width} }
func PointerType() Type       { return Type{Kind: PointerKind} }
func BoolArrayType() Type     { return Type{Kind: ArrayKind, Elem: BoolKind, Width: 1} }
func IntArrayType(w int) Type { return Type{Kind: ArrayKind, Elem: IntKind, Width: w} }
func PtrArrayType() Type      { return Type{Kind: ArrayKind, Elem: PointerKind} }

func (t Type) IsArray() bool { return t.Kind == ArrayKind }

func (t Type) String() string {
	switch t.Kind {
	case BoolKind:
		return "bool"
	case IntKind:
		return fmt.Sprintf("int%d", t.Width)
	case PointerKind:
		return "ptr"
	case ArrayKind:
		switch t.Elem {
		case BoolKind:
			return "arr(bool)"
		case IntKind:
			return fmt.Sprintf("arr(int%d)", t.Width)
		default:
			return "arr(ptr)"
		}
	default:
		return fmt.Sprintf("Type(%d)", uint8(t.Kind))
	}
}

// Var is a typed name. Vars are value types; two Vars are the same
// variable iff both the name and the type are equal. They are minted by
// the translation's variable factory and never renamed.
type Var struct {
	Name string
	Type Type
}

func (v Var) String() string { return v.Name }

// IsZero reports whether v is the zero Var, used as "no variable".
func (v Var) IsZero() bool { return v == Var{} }

func bigStr(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}
