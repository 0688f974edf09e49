package cfg

import (
	"fmt"
	"strings"
)

// SourceLoc is an optional source position carried by assertion
// statements for reporting.
type SourceLoc struct {
	File string
	Line int
	Col  int
}

func (l SourceLoc) IsZero() bool { return l == SourceLoc{} }

func (l SourceLoc) String() string {
	if l.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Col)
}

// Stmt is a statement in a basic block. Statements are created by the
// translation and read by the engine; they are never mutated after
// being appended to a block.
type Stmt interface {
	fmt.Stringer
	stmt()
}

// ArithOp is a scalar binary operation.
type ArithOp uint8

const (
	Add ArithOp = iota
	Sub
	Mul
	SDiv
	UDiv
	SRem
	URem
	Shl
	LShr
	AShr
	And
	Or
	Xor
)

var arithOpNames = [...]string{
	Add: "+", Sub: "-", Mul: "*", SDiv: "/s", UDiv: "/u",
	SRem: "%s", URem: "%u", Shl: "<<", LShr: ">>u", AShr: ">>s",
	And: "&", Or: "|", Xor: "^",
}

func (op ArithOp) String() string { return arithOpNames[op] }

// BoolOp is a boolean binary operation.
type BoolOp uint8

const (
	BoolAnd BoolOp = iota
	BoolOr
	BoolXor
)

var boolOpNames = [...]string{BoolAnd: "and", BoolOr: "or", BoolXor: "xor"}

func (op BoolOp) String() string { return boolOpNames[op] }

// Scalar statements.

// Assign is dst := src for an integer expression src.
type Assign struct {
	Dst Var
	Src Expr
}

// BinStmt is dst := x op y over integers. Y may be a variable or a
// constant; the translation never emits constant-constant pairs.
type BinStmt struct {
	Op   ArithOp
	Dst  Var
	X    Var
	Y    Expr
}

// Extend widens Src into Dst, sign- or zero-extending.
type Extend struct {
	Signed   bool
	Src, Dst Var
}

// Truncate narrows Src into Dst.
type Truncate struct {
	Src, Dst Var
}

// Select is dst := cond ? then : els over integers.
type Select struct {
	Dst        Var
	Cond       Constraint
	Then, Else Expr
}

// Boolean statements.

// BoolAssignCst is dst := cst for a linear constraint cst.
type BoolAssignCst struct {
	Dst Var
	Cst Constraint
}

// BoolAssignVar is dst := src or dst := not src.
type BoolAssignVar struct {
	Dst, Src Var
	Negate   bool
}

// BoolBinStmt is dst := x op y over booleans.
type BoolBinStmt struct {
	Op   BoolOp
	Dst  Var
	X, Y Var
}

// BoolSelect is dst := cond ? then : els over booleans.
type BoolSelect struct {
	Dst, Cond, Then, Else Var
}

// Pointer statements.

// PtrAssign is dst := src + offset.
type PtrAssign struct {
	Dst, Src Var
	Offset   Expr
}

// PtrNull is dst := null.
type PtrNull struct {
	Dst Var
}

// PtrNew binds dst to a fresh memory object identified by ObjectID.
type PtrNew struct {
	Dst      Var
	ObjectID int
}

// PtrLoad is dst := *src for a pointer-valued cell.
type PtrLoad struct {
	Dst, Src Var
}

// PtrStore is *dst := val for a pointer-valued cell.
type PtrStore struct {
	Dst, Val Var
}

// PtrAssume restricts control flow by a pointer constraint.
type PtrAssume struct {
	Cst PtrConstraint
}

// Array statements.

// ArrayInit initializes arr[lo..hi] to val with the given element size
// in bytes. Emitted at most once per region and function.
type ArrayInit struct {
	Arr      Var
	Lo, Hi   Expr
	Val      Expr
	ElemSize int64
}

// ArrayLoad is dst := arr[idx].
type ArrayLoad struct {
	Dst, Arr, Idx Var
	ElemSize      int64
}

// ArrayStore is arr[idx] := val. Strong marks stores the engine may
// treat as unconditional overwrites.
type ArrayStore struct {
	Arr, Idx Var
	Val      Expr
	ElemSize int64
	Strong   bool
}

// ArrayAssign copies one whole array into another.
type ArrayAssign struct {
	Dst, Src Var
}

// Control statements.

// Havoc forgets everything about a variable.
type Havoc struct {
	V Var
}

// Assume restricts control flow by a linear constraint.
type Assume struct {
	Cst Constraint
}

// BoolAssume restricts control flow by a boolean variable, optionally
// negated.
type BoolAssume struct {
	V      Var
	Negate bool
}

// Assert asks the engine to prove a linear constraint.
type Assert struct {
	Cst Constraint
	Loc SourceLoc
}

// BoolAssert asks the engine to prove a boolean variable.
type BoolAssert struct {
	V   Var
	Loc SourceLoc
}

// Unreachable marks the block as not contributing to reachability.
type Unreachable struct{}

// Call is an interprocedural call site. Inputs are the normalized
// actual arguments followed by the callee's threaded regions; Outputs
// the return variable followed by modified and new regions.
type Call struct {
	Callee  string
	Outputs []Var
	Inputs  []Var
}

// Return yields the function's return variable.
type Return struct {
	V Var
}

func (Assign) stmt()        {}
func (BinStmt) stmt()       {}
func (Extend) stmt()        {}
func (Truncate) stmt()      {}
func (Select) stmt()        {}
func (BoolAssignCst) stmt() {}
func (BoolAssignVar) stmt() {}
func (BoolBinStmt) stmt()   {}
func (BoolSelect) stmt()    {}
func (PtrAssign) stmt()     {}
func (PtrNull) stmt()       {}
func (PtrNew) stmt()        {}
func (PtrLoad) stmt()       {}
func (PtrStore) stmt()      {}
func (PtrAssume) stmt()     {}
func (ArrayInit) stmt()     {}
func (ArrayLoad) stmt()     {}
func (ArrayStore) stmt()    {}
func (ArrayAssign) stmt()   {}
func (Havoc) stmt()         {}
func (Assume) stmt()        {}
func (BoolAssume) stmt()    {}
func (Assert) stmt()        {}
func (BoolAssert) stmt()    {}
func (Unreachable) stmt()   {}
func (Call) stmt()          {}
func (Return) stmt()        {}

func (s Assign) String() string  { return fmt.Sprintf("%s := %s", s.Dst, s.Src) }
func (s BinStmt) String() string { return fmt.Sprintf("%s := %s %s %s", s.Dst, s.X, s.Op, s.Y) }

func (s Extend) String() string {
	if s.Signed {
		return fmt.Sprintf("%s := sext %s", s.Dst, s.Src)
	}
	return fmt.Sprintf("%s := zext %s", s.Dst, s.Src)
}

func (s Truncate) String() string { return fmt.Sprintf("%s := trunc %s", s.Dst, s.Src) }

func (s Select) String() string {
	return fmt.Sprintf("%s := select(%s, %s, %s)", s.Dst, s.Cond, s.Then, s.Else)
}

func (s BoolAssignCst) String() string { return fmt.Sprintf("%s := (%s)", s.Dst, s.Cst) }

func (s BoolAssignVar) String() string {
	if s.Negate {
		return fmt.Sprintf("%s := not %s", s.Dst, s.Src)
	}
	return fmt.Sprintf("%s := %s", s.Dst, s.Src)
}

func (s BoolBinStmt) String() string {
	return fmt.Sprintf("%s := %s %s %s", s.Dst, s.X, s.Op, s.Y)
}

func (s BoolSelect) String() string {
	return fmt.Sprintf("%s := select(%s, %s, %s)", s.Dst, s.Cond, s.Then, s.Else)
}

func (s PtrAssign) String() string { return fmt.Sprintf("%s := %s + %s", s.Dst, s.Src, s.Offset) }
func (s PtrNull) String() string   { return fmt.Sprintf("%s := null", s.Dst) }
func (s PtrNew) String() string    { return fmt.Sprintf("%s := new_object(%d)", s.Dst, s.ObjectID) }
func (s PtrLoad) String() string   { return fmt.Sprintf("%s := load %s", s.Dst, s.Src) }
func (s PtrStore) String() string  { return fmt.Sprintf("store %s, %s", s.Dst, s.Val) }
func (s PtrAssume) String() string { return fmt.Sprintf("ptr_assume(%s)", s.Cst) }

func (s ArrayInit) String() string {
	return fmt.Sprintf("%s[%s..%s] := %s /*sz=%d*/", s.Arr, s.Lo, s.Hi, s.Val, s.ElemSize)
}

func (s ArrayLoad) String() string {
	return fmt.Sprintf("%s := %s[%s]", s.Dst, s.Arr, s.Idx)
}

func (s ArrayStore) String() string {
	kind := "weak"
	if s.Strong {
		kind = "strong"
	}
	return fmt.Sprintf("%s[%s] := %s /*%s*/", s.Arr, s.Idx, s.Val, kind)
}

func (s ArrayAssign) String() string { return fmt.Sprintf("%s := %s", s.Dst, s.Src) }

func (s Havoc) String() string  { return fmt.Sprintf("havoc(%s)", s.V) }
func (s Assume) String() string { return fmt.Sprintf("assume(%s)", s.Cst) }

func (s BoolAssume) String() string {
	if s.Negate {
		return fmt.Sprintf("assume(not %s)", s.V)
	}
	return fmt.Sprintf("assume(%s)", s.V)
}

func (s Assert) String() string {
	if s.Loc.IsZero() {
		return fmt.Sprintf("assert(%s)", s.Cst)
	}
	return fmt.Sprintf("assert(%s) // %s", s.Cst, s.Loc)
}

func (s BoolAssert) String() string {
	if s.Loc.IsZero() {
		return fmt.Sprintf("assert(%s)", s.V)
	}
	return fmt.Sprintf("assert(%s) // %s", s.V, s.Loc)
}

func (Unreachable) String() string { return "unreachable" }

func (s Call) String() string {
	outs := make([]string, len(s.Outputs))
	for i, v := range s.Outputs {
		outs[i] = v.Name
	}
	ins := make([]string, len(s.Inputs))
	for i, v := range s.Inputs {
		ins[i] = v.Name
	}
	return fmt.Sprintf("(%s) := call %s(%s)",
		strings.Join(outs, ", "), s.Callee, strings.Join(ins, ", "))
}

func (s Return) String() string { return fmt.Sprintf("return %s", s.V) }
