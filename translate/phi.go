package translate

import (
	"golang.org/x/tools/go/ssa"

	"github.com/limpet-analysis/limpet/cfg"
)

// elimPhis lowers the phi nodes heading succ for the edge pred→succ
// into assignments appended to bb, which is pred's block or the edge
// block spliced onto that edge.
//
// Phi assignments are simultaneous: a phi whose incoming value is
// another phi of the same block must read that phi's pre-join value.
// The first pass snapshots such values into temporaries; the second
// assigns every phi from its snapshot or directly from the incoming
// value. Sequentializing in one pass would let earlier assignments
// clobber values later ones still need.
func (t *instrTranslator) elimPhis(bb *cfg.Block, pred, succ *ssa.BasicBlock) {
	predIdx := -1
	for i, p := range succ.Preds {
		if p == pred {
			predIdx = i
			break
		}
	}
	if predIdx < 0 {
		return
	}

	snapshots := map[ssa.Value]cfg.Var{}
	for _, instr := range succ.Instrs {
		phi, ok := instr.(*ssa.Phi)
		if !ok {
			break // phis head the block
		}
		in := phi.Edges[predIdx]
		inPhi, ok := in.(*ssa.Phi)
		if !ok || inPhi.Block() != succ {
			continue
		}
		if _, done := snapshots[in]; done {
			continue
		}
		l, ok := t.lf.classify(in)
		if !ok || !l.IsVar() {
			continue
		}
		tmp := t.vfac().freshFrom(l.Var())
		t.assignVar(bb, tmp, l.Var())
		snapshots[in] = tmp
	}

	for _, instr := range succ.Instrs {
		phi, ok := instr.(*ssa.Phi)
		if !ok {
			break
		}
		dst, ok := t.lf.classify(phi)
		if !ok {
			continue
		}
		in := phi.Edges[predIdx]
		if tmp, snapped := snapshots[in]; snapped {
			t.assignVar(bb, dst.Var(), tmp)
			continue
		}
		l, ok := t.lf.classify(in)
		if !ok {
			t.havocVar(bb, dst.Var())
			continue
		}
		t.assignLit(bb, dst.Var(), l)
	}
}

// assignVar emits the class-appropriate variable-to-variable copy.
func (t *instrTranslator) assignVar(bb *cfg.Block, dst, src cfg.Var) {
	switch dst.Type.Kind {
	case cfg.BoolKind:
		bb.Append(cfg.BoolAssignVar{Dst: dst, Src: src})
	case cfg.IntKind:
		bb.Append(cfg.Assign{Dst: dst, Src: cfg.VarExpr(src)})
	case cfg.PointerKind:
		bb.Append(cfg.PtrAssign{Dst: dst, Src: src, Offset: cfg.Int64Expr(0)})
	default:
		bb.Append(cfg.ArrayAssign{Dst: dst, Src: src})
	}
}

// assignLit assigns a literal of any class to dst.
func (t *instrTranslator) assignLit(bb *cfg.Block, dst cfg.Var, l Lit) {
	if l.IsVar() {
		t.assignVar(bb, dst, l.Var())
		return
	}
	switch {
	case l.IsBool():
		bb.Append(cfg.BoolAssignCst{Dst: dst, Cst: boolConstraint(l.BoolVal())})
	case l.IsInt():
		bb.Append(cfg.Assign{Dst: dst, Src: l.Expr()})
	default:
		bb.Append(cfg.PtrNull{Dst: dst})
	}
}
