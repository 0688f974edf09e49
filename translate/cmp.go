package translate

import (
	"go/token"

	"golang.org/x/tools/go/ssa"

	"github.com/limpet-analysis/limpet/cfg"
)

func isComparison(op token.Token) bool {
	switch op {
	case token.EQL, token.NEQ, token.LSS, token.LEQ, token.GTR, token.GEQ:
		return true
	}
	return false
}

// cmpConstraint lowers an integer comparison to a linear constraint.
// The predicate is normalized first so only EQ, NE, LT and LE remain;
// strict less-than becomes L <= R-1 so the engine sees closed bounds.
func cmpConstraint(op token.Token, l, r Lit, unsigned, negated bool) cfg.Constraint {
	// normalize: a > b is b < a, a >= b is b <= a
	switch op {
	case token.GTR:
		op, l, r = token.LSS, r, l
	case token.GEQ:
		op, l, r = token.LEQ, r, l
	}
	var c cfg.Constraint
	switch op {
	case token.EQL:
		c = cfg.Constraint{Pred: cfg.Eq, L: l.Expr(), R: r.Expr(), Unsigned: unsigned}
	case token.NEQ:
		c = cfg.Constraint{Pred: cfg.Ne, L: l.Expr(), R: r.Expr(), Unsigned: unsigned}
	case token.LSS:
		c = cfg.Constraint{Pred: cfg.Le, L: l.Expr(), R: r.Expr().Add(-1), Unsigned: unsigned}
	case token.LEQ:
		c = cfg.Constraint{Pred: cfg.Le, L: l.Expr(), R: r.Expr(), Unsigned: unsigned}
	default:
		fatalf("cmpConstraint: unexpected operator %v", op)
	}
	if negated {
		return c.Negate()
	}
	return c
}

// ptrCmpConstraint lowers a pointer comparison for use in an assume.
// Returns false when an operand is untracked.
func ptrCmpConstraint(op token.Token, l, r Lit, negated bool) (cfg.PtrConstraint, bool) {
	eq := op == token.EQL
	if negated {
		eq = !eq
	}
	switch {
	case l.IsNull() && r.IsNull():
		if eq {
			return cfg.PtrConstraintTrue(), true
		}
		return cfg.PtrConstraintFalse(), true
	case l.IsNull():
		if !r.IsVar() {
			return cfg.PtrConstraint{}, false
		}
		if eq {
			return cfg.PtrEqualNull(r.Var()), true
		}
		return cfg.PtrNotEqualNull(r.Var()), true
	case r.IsNull():
		if !l.IsVar() {
			return cfg.PtrConstraint{}, false
		}
		if eq {
			return cfg.PtrEqualNull(l.Var()), true
		}
		return cfg.PtrNotEqualNull(l.Var()), true
	default:
		if !l.IsVar() || !r.IsVar() {
			return cfg.PtrConstraint{}, false
		}
		if eq {
			return cfg.PtrEqual(l.Var(), r.Var()), true
		}
		return cfg.PtrNotEqual(l.Var(), r.Var()), true
	}
}

// cmp lowers a comparison instruction to a boolean assignment.
func (t *instrTranslator) cmp(bb *cfg.Block, instr *ssa.BinOp) {
	dst, ok := t.lf.classify(instr)
	if !ok {
		return
	}
	xt := instr.X.Type()
	switch {
	case isBool(xt):
		t.boolCmp(bb, instr, dst.Var())
	case isInteger(xt):
		xl, okx := t.lf.classify(instr.X)
		yl, oky := t.lf.classify(instr.Y)
		if !okx || !oky {
			t.havocVar(bb, dst.Var())
			return
		}
		cst := cmpConstraint(instr.Op, xl, yl, isUnsigned(xt), false)
		bb.Append(cfg.BoolAssignCst{Dst: dst.Var(), Cst: cst})
	default:
		// Pointer comparisons only matter as branch conditions, where
		// the edge lowering derives a pointer assume; as a value the
		// result is unconstrained.
		t.havocVar(bb, dst.Var())
	}
}

// boolCmp lowers == and != between booleans, folding constant operands
// so no spurious temporaries appear.
func (t *instrTranslator) boolCmp(bb *cfg.Block, instr *ssa.BinOp, dst cfg.Var) {
	xl, okx := t.lf.classify(instr.X)
	yl, oky := t.lf.classify(instr.Y)
	if !okx || !oky {
		t.havocVar(bb, dst)
		return
	}
	eq := instr.Op == token.EQL
	switch {
	case !xl.IsVar() && !yl.IsVar():
		res := xl.BoolVal() == yl.BoolVal()
		if !eq {
			res = !res
		}
		bb.Append(cfg.BoolAssignCst{Dst: dst, Cst: boolConstraint(res)})
	case !xl.IsVar():
		t.boolCmpConst(bb, dst, yl.Var(), xl.BoolVal(), eq)
	case !yl.IsVar():
		t.boolCmpConst(bb, dst, xl.Var(), yl.BoolVal(), eq)
	default:
		if eq {
			tmp := t.lf.vfac.freshBool()
			bb.Append(cfg.BoolBinStmt{Op: cfg.BoolXor, Dst: tmp, X: xl.Var(), Y: yl.Var()})
			bb.Append(cfg.BoolAssignVar{Dst: dst, Src: tmp, Negate: true})
		} else {
			bb.Append(cfg.BoolBinStmt{Op: cfg.BoolXor, Dst: dst, X: xl.Var(), Y: yl.Var()})
		}
	}
}

func (t *instrTranslator) boolCmpConst(bb *cfg.Block, dst, v cfg.Var, c, eq bool) {
	// v == true is v; v == false is not v; != flips
	bb.Append(cfg.BoolAssignVar{Dst: dst, Src: v, Negate: c != eq})
}

func boolConstraint(b bool) cfg.Constraint {
	if b {
		return cfg.True()
	}
	return cfg.False()
}
