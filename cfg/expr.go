package cfg

import (
	"fmt"
	"math/big"
)

// Expr is a linear term c*x + k. Either part may be absent: a plain
// variable has c == 1 and k == 0, a constant has no variable at all.
// Exprs are immutable; the arithmetic helpers return new values.
type Expr struct {
	x    Var
	hasX bool
	coef *big.Int // nil means 1
	k    *big.Int // nil means 0
}

// VarExpr returns the expression 1*x + 0.
func VarExpr(x Var) Expr { return Expr{x: x, hasX: true} }

// ConstExpr returns a constant expression.
func ConstExpr(k *big.Int) Expr { return Expr{k: new(big.Int).Set(k)} }

// Int64Expr returns a constant expression for a small constant.
func Int64Expr(k int64) Expr { return Expr{k: big.NewInt(k)} }

// IsConst reports whether the expression has no variable part.
func (e Expr) IsConst() bool { return !e.hasX }

// Const returns the constant part k.
func (e Expr) Const() *big.Int {
	if e.k == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(e.k)
}

// Term returns the variable and coefficient of the linear part. ok is
// false for constant expressions.
func (e Expr) Term() (x Var, coef *big.Int, ok bool) {
	if !e.hasX {
		return Var{}, nil, false
	}
	if e.coef == nil {
		return e.x, big.NewInt(1), true
	}
	return e.x, new(big.Int).Set(e.coef), true
}

// Vr returns the variable of a 1*x + 0 expression. ok is false if the
// expression is not a plain variable.
func (e Expr) Vr() (Var, bool) {
	if !e.hasX || !e.isUnitCoef() || !e.isZeroConst() {
		return Var{}, false
	}
	return e.x, true
}

func (e Expr) isUnitCoef() bool  { return e.coef == nil || e.coef.Cmp(big.NewInt(1)) == 0 }
func (e Expr) isZeroConst() bool { return e.k == nil || e.k.Sign() == 0 }

// Add returns e + n.
func (e Expr) Add(n int64) Expr { return e.AddBig(big.NewInt(n)) }

// AddBig returns e + n.
func (e Expr) AddBig(n *big.Int) Expr {
	out := e
	out.k = new(big.Int).Add(e.Const(), n)
	return out
}

// Mul returns e scaled by n. The expression must not combine a variable
// part with a nonzero constant; multiplication is only used to scale an
// index by an element size.
func (e Expr) Mul(n *big.Int) Expr {
	if e.hasX {
		_, coef, _ := e.Term()
		return Expr{x: e.x, hasX: true, coef: coef.Mul(coef, n), k: new(big.Int).Mul(e.Const(), n)}
	}
	return Expr{k: new(big.Int).Mul(e.Const(), n)}
}

// Equal reports structural equality.
func (e Expr) Equal(o Expr) bool {
	if e.hasX != o.hasX {
		return false
	}
	if e.hasX {
		if e.x != o.x {
			return false
		}
		ec, oc := e, o
		_, c1, _ := ec.Term()
		_, c2, _ := oc.Term()
		if c1.Cmp(c2) != 0 {
			return false
		}
	}
	return e.Const().Cmp(o.Const()) == 0
}

func (e Expr) String() string {
	if !e.hasX {
		return bigStr(e.k)
	}
	s := e.x.Name
	if !e.isUnitCoef() {
		s = e.coef.String() + "*" + s
	}
	if !e.isZeroConst() {
		if e.k.Sign() < 0 {
			return s + e.k.String()
		}
		return s + "+" + e.k.String()
	}
	return s
}

// Pred is a comparison predicate in canonical form: after lowering, a
// constraint is always one of L == R, L != R, L <= R.
type Pred uint8

const (
	Eq Pred = iota
	Ne
	Le
)

func (p Pred) String() string {
	switch p {
	case Eq:
		return "=="
	case Ne:
		return "!="
	case Le:
		return "<="
	default:
		return fmt.Sprintf("Pred(%d)", uint8(p))
	}
}

// Constraint is a linear constraint L pred R. Unsigned marks constraints
// derived from unsigned comparisons; the engine interprets the operand
// bit patterns accordingly.
type Constraint struct {
	Pred     Pred
	L, R     Expr
	Unsigned bool
}

// True and False are the tautological and unsatisfiable constraints.
func True() Constraint  { return Constraint{Pred: Eq, L: Int64Expr(0), R: Int64Expr(0)} }
func False() Constraint { return Constraint{Pred: Eq, L: Int64Expr(0), R: Int64Expr(1)} }

// IsTrue and IsFalse evaluate constraints between constants; both are
// false when a variable is involved.
func (c Constraint) IsTrue() bool {
	if !c.L.IsConst() || !c.R.IsConst() {
		return false
	}
	cmp := c.L.Const().Cmp(c.R.Const())
	switch c.Pred {
	case Eq:
		return cmp == 0
	case Ne:
		return cmp != 0
	default:
		return cmp <= 0
	}
}

func (c Constraint) IsFalse() bool {
	return (c.L.IsConst() && c.R.IsConst()) && !c.IsTrue()
}

// Negate returns the exact logical negation. Negating twice yields a
// constraint Equal to the original.
func (c Constraint) Negate() Constraint {
	switch c.Pred {
	case Eq:
		return Constraint{Pred: Ne, L: c.L, R: c.R, Unsigned: c.Unsigned}
	case Ne:
		return Constraint{Pred: Eq, L: c.L, R: c.R, Unsigned: c.Unsigned}
	case Le:
		// not(L <= R)  <=>  R+1 <= L
		return Constraint{Pred: Le, L: c.R.Add(1), R: c.L, Unsigned: c.Unsigned}
	default:
		panic(fmt.Sprintf("unhandled predicate %v", c.Pred))
	}
}

// Equal reports semantic equality up to moving the constant parts: for
// example x+1 <= y and x <= y-1 are Equal.
func (c Constraint) Equal(o Constraint) bool {
	if c.Pred != o.Pred || c.Unsigned != o.Unsigned {
		return false
	}
	sameTerm := func(a, b Expr) bool {
		xa, ca, oka := a.Term()
		xb, cb, okb := b.Term()
		if oka != okb {
			return false
		}
		return !oka || (xa == xb && ca.Cmp(cb) == 0)
	}
	// compare k(R) - k(L)
	d1 := new(big.Int).Sub(c.R.Const(), c.L.Const())
	d2 := new(big.Int).Sub(o.R.Const(), o.L.Const())
	if sameTerm(c.L, o.L) && sameTerm(c.R, o.R) && d1.Cmp(d2) == 0 {
		return true
	}
	if c.Pred == Ne || c.Pred == Eq {
		// symmetric predicates also match with the sides flipped
		return sameTerm(c.L, o.R) && sameTerm(c.R, o.L) &&
			d1.Cmp(new(big.Int).Neg(d2)) == 0
	}
	return false
}

func (c Constraint) String() string {
	s := fmt.Sprintf("%s %s %s", c.L, c.Pred, c.R)
	if c.Unsigned {
		s += " /*unsigned*/"
	}
	return s
}

// PtrPred is a pointer constraint predicate.
type PtrPred uint8

const (
	PtrEq PtrPred = iota
	PtrNe
	PtrEqNull
	PtrNeNull
	PtrTrue
	PtrFalse
)

// PtrConstraint is an (dis)equality between pointer variables or
// between a pointer variable and null. X is unused for PtrTrue and
// PtrFalse; Y only for the two-variable forms.
type PtrConstraint struct {
	Pred PtrPred
	X, Y Var
}

func PtrConstraintTrue() PtrConstraint      { return PtrConstraint{Pred: PtrTrue} }
func PtrConstraintFalse() PtrConstraint     { return PtrConstraint{Pred: PtrFalse} }
func PtrEqualNull(x Var) PtrConstraint      { return PtrConstraint{Pred: PtrEqNull, X: x} }
func PtrNotEqualNull(x Var) PtrConstraint   { return PtrConstraint{Pred: PtrNeNull, X: x} }
func PtrEqual(x, y Var) PtrConstraint       { return PtrConstraint{Pred: PtrEq, X: x, Y: y} }
func PtrNotEqual(x, y Var) PtrConstraint    { return PtrConstraint{Pred: PtrNe, X: x, Y: y} }

func (c PtrConstraint) String() string {
	switch c.Pred {
	case PtrEq:
		return fmt.Sprintf("%s == %s", c.X, c.Y)
	case PtrNe:
		return fmt.Sprintf("%s != %s", c.X, c.Y)
	case PtrEqNull:
		return fmt.Sprintf("%s == null", c.X)
	case PtrNeNull:
		return fmt.Sprintf("%s != null", c.X)
	case PtrTrue:
		return "true"
	case PtrFalse:
		return "false"
	default:
		panic(fmt.Sprintf("unhandled pointer predicate %d", uint8(c.Pred)))
	}
}
