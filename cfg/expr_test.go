package cfg

import (
	"math/big"
	"testing"
)

func TestExprArithmetic(t *testing.T) {
	x := Var{Name: "x", Type: IntType(32)}
	e := VarExpr(x).Mul(big.NewInt(4)).Add(3)
	xx, coef, ok := e.Term()
	if !ok || xx != x || coef.Int64() != 4 {
		t.Errorf("got term %v*%v, want 4*x", coef, xx)
	}
	if e.Const().Int64() != 3 {
		t.Errorf("got constant %v, want 3", e.Const())
	}
	if e.IsConst() {
		t.Error("4x+3 reported as constant")
	}
	if got := Int64Expr(7).Add(-7); !got.IsConst() || got.Const().Sign() != 0 {
		t.Errorf("7 + -7 = %v, want 0", got)
	}
}

func TestConstraintNegate(t *testing.T) {
	x := Var{Name: "x", Type: IntType(8)}
	y := Var{Name: "y", Type: IntType(8)}
	tests := []Constraint{
		{Pred: Eq, L: VarExpr(x), R: VarExpr(y)},
		{Pred: Ne, L: VarExpr(x), R: Int64Expr(0)},
		{Pred: Le, L: VarExpr(x), R: Int64Expr(9)},
		{Pred: Le, L: VarExpr(x).Add(1), R: VarExpr(y), Unsigned: true},
	}
	for _, c := range tests {
		n := c.Negate()
		if n.Equal(c) {
			t.Errorf("%v equals its own negation %v", c, n)
		}
		if !n.Negate().Equal(c) {
			t.Errorf("double negation of %v gives %v", c, n.Negate())
		}
		if n.Unsigned != c.Unsigned {
			t.Errorf("negation of %v dropped the unsigned flag", c)
		}
	}
}

func TestConstraintNegateLe(t *testing.T) {
	x := Var{Name: "x", Type: IntType(8)}
	c := Constraint{Pred: Le, L: VarExpr(x), R: Int64Expr(9)}
	n := c.Negate()
	// not(x <= 9) is 10 <= x
	if n.Pred != Le || n.L.Const().Int64() != 10 {
		t.Errorf("negation of x <= 9 is %v, want 10 <= x", n)
	}
	if v, ok := n.R.Vr(); !ok || v != x {
		t.Errorf("negation of x <= 9 is %v, want 10 <= x", n)
	}
}

func TestConstraintEqualNormalizes(t *testing.T) {
	x := Var{Name: "x", Type: IntType(32)}
	y := Var{Name: "y", Type: IntType(32)}
	a := Constraint{Pred: Le, L: VarExpr(x).Add(1), R: VarExpr(y)}
	b := Constraint{Pred: Le, L: VarExpr(x), R: VarExpr(y).Add(-1)}
	if !a.Equal(b) {
		t.Errorf("%v and %v should be Equal", a, b)
	}
	if a.Equal(Constraint{Pred: Le, L: VarExpr(x), R: VarExpr(y)}) {
		t.Errorf("%v equals x <= y", a)
	}

	// symmetric predicates match with sides flipped
	c := Constraint{Pred: Eq, L: VarExpr(x), R: VarExpr(y).Add(2)}
	d := Constraint{Pred: Eq, L: VarExpr(y).Add(2), R: VarExpr(x)}
	if !c.Equal(d) {
		t.Errorf("%v and %v should be Equal", c, d)
	}
}

func TestTrueFalse(t *testing.T) {
	if !True().IsTrue() || True().IsFalse() {
		t.Error("True() misclassified")
	}
	if !False().IsFalse() || False().IsTrue() {
		t.Error("False() misclassified")
	}
	if !True().Negate().IsFalse() {
		t.Errorf("negation of true is %v", True().Negate())
	}
}
