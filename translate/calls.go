package translate

import (
	"golang.org/x/tools/go/ssa"

	"github.com/limpet-analysis/limpet/cfg"
	"github.com/limpet-analysis/limpet/heap"
)

// call lowers a call instruction. Verifier intrinsics become
// assert/assume statements, allocators mint fresh objects, and general
// calls either thread regions through a call statement or havoc their
// effects, depending on configuration and what is known about the
// callee.
func (t *instrTranslator) call(bb *cfg.Block, instr *ssa.Call) {
	common := instr.Common()
	if builtin, ok := common.Value.(*ssa.Builtin); ok {
		t.builtinCall(bb, instr, builtin)
		return
	}
	callee := common.StaticCallee()
	if callee != nil {
		name := callee.String()
		if t.params.IsVerifierCall(name) {
			t.verifierCall(bb, instr, name)
			return
		}
		if t.params.IsAllocator(name) {
			if dst, ok := t.lf.classify(instr); ok && dst.IsPtr() {
				*t.objectID++
				bb.Append(cfg.PtrNew{Dst: dst.Var(), ObjectID: *t.objectID})
			}
			return
		}
	}
	if !t.params.Interprocedural || callee == nil || len(callee.Blocks) == 0 ||
		callee.Signature.Variadic() {
		t.havocCallEffects(bb, instr)
		return
	}
	t.callSite(bb, instr, callee)
}

// havocCallEffects is the non-interprocedural treatment of a call: the
// result and every region the callee may write become unconstrained.
func (t *instrTranslator) havocCallEffects(bb *cfg.Block, instr *ssa.Call) {
	t.havocValue(bb, instr)
	if !t.params.TrackMemory() {
		return
	}
	for _, r := range t.rb.heap.ModifiedRegionsOfCall(instr) {
		if r.Kind() != heap.Bool && r.Kind() != heap.Int {
			continue
		}
		bb.Append(cfg.Havoc{V: t.regionUseVar(r)})
	}
}

// asyncCall treats deferred and spawned calls by their memory effects
// only; their control flow is not modeled.
func (t *instrTranslator) asyncCall(bb *cfg.Block, common *ssa.CallCommon) {
	if !t.params.TrackMemory() {
		return
	}
	callee := common.StaticCallee()
	if callee == nil {
		return
	}
	for _, r := range t.rb.heap.ModifiedRegions(callee) {
		if r.Kind() != heap.Bool && r.Kind() != heap.Int {
			continue
		}
		bb.Append(cfg.Havoc{V: t.regionUseVar(r)})
	}
}

// callSite emits an interprocedural call statement. Inputs are the
// normalized actuals followed by the callee's read-only and modified
// regions; outputs are the return variable followed by fresh
// incarnations of the modified regions and the newly created regions.
// After the call each fresh incarnation is copied back onto the
// persistent region variable, which stays the canonical one.
func (t *instrTranslator) callSite(bb *cfg.Block, instr *ssa.Call, callee *ssa.Function) {
	common := instr.Common()

	var inputs []cfg.Var
	for _, arg := range common.Args {
		inputs = append(inputs, t.normalizeParam(bb, arg))
	}

	onlyreads := t.rb.heap.OnlyReadRegionsOfCall(instr)
	news := t.rb.heap.NewRegionsOfCall(instr)
	mods := filterModified(t.rb.heap.ModifiedRegionsOfCall(instr), news)

	var outputs []cfg.Var
	if ret := t.returnVar(bb, instr, callee); !ret.IsZero() {
		outputs = append(outputs, ret)
	}

	if t.params.TrackMemory() {
		for _, r := range onlyreads {
			inputs = append(inputs, t.regionUseVar(r))
		}
		type rebind struct {
			persistent, fresh cfg.Var
		}
		var rebinds []rebind
		for _, r := range mods {
			cur := t.regionUseVar(r)
			out := t.vfac().freshFrom(cur)
			inputs = append(inputs, cur)
			outputs = append(outputs, out)
			rebinds = append(rebinds, rebind{persistent: cur, fresh: out})
		}
		for _, r := range news {
			outputs = append(outputs, t.regionUseVar(r))
		}
		bb.Append(cfg.Call{Callee: callee.String(), Outputs: outputs, Inputs: inputs})
		for _, cp := range rebinds {
			bb.Append(copyStmt(cp.persistent, cp.fresh))
		}
		return
	}
	bb.Append(cfg.Call{Callee: callee.String(), Outputs: outputs, Inputs: inputs})
}

// returnVar picks the call's result variable. A callee with a nonvoid
// signature keeps its arity even when the caller discards the result:
// the output slot is filled with a fresh placeholder.
func (t *instrTranslator) returnVar(bb *cfg.Block, instr *ssa.Call, callee *ssa.Function) cfg.Var {
	results := callee.Signature.Results()
	if results.Len() == 0 {
		return cfg.Var{}
	}
	if l, ok := t.lf.classify(instr); ok && l.IsVar() {
		return l.Var()
	}
	if v, ok := t.lf.freshVarFor(instr); ok {
		return v
	}
	return cfg.Var{}
}

// normalizeParam turns an actual argument into a variable, materializing
// constants and havocking untracked values into fresh placeholders.
func (t *instrTranslator) normalizeParam(bb *cfg.Block, arg ssa.Value) cfg.Var {
	l, ok := t.lf.classify(arg)
	if !ok {
		v, okv := t.lf.freshVarFor(arg)
		if !okv {
			v = t.vfac().freshInt(64)
		}
		bb.Append(cfg.Havoc{V: v})
		return v
	}
	if l.IsVar() {
		return l.Var()
	}
	switch {
	case l.IsBool():
		v := t.vfac().freshBool()
		bb.Append(cfg.BoolAssignCst{Dst: v, Cst: boolConstraint(l.BoolVal())})
		return v
	case l.IsInt():
		v, _ := t.lf.freshVarFor(arg)
		bb.Append(cfg.Assign{Dst: v, Src: l.Expr()})
		return v
	default:
		v := t.vfac().freshPointer()
		bb.Append(cfg.PtrNull{Dst: v})
		return v
	}
}

// builtinCall models the few builtins with consequences for the array
// model; the rest havoc their result.
func (t *instrTranslator) builtinCall(bb *cfg.Block, instr *ssa.Call, builtin *ssa.Builtin) {
	switch builtin.Name() {
	case "copy":
		t.copyBuiltin(bb, instr)
	case "print", "println":
		// no effect on tracked state
	default:
		t.havocValue(bb, instr)
	}
}

// copyBuiltin lowers copy(dst, src) over scalar slices to a whole-array
// assignment between the two regions.
func (t *instrTranslator) copyBuiltin(bb *cfg.Block, instr *ssa.Call) {
	t.havocValue(bb, instr) // the returned element count
	if !t.params.TrackMemory() {
		return
	}
	args := instr.Common().Args
	dst := t.rb.regionOf(t.fn, args[0])
	src := t.rb.regionOf(t.fn, args[1])
	if dst.IsUnknown() {
		return
	}
	if src.IsUnknown() || dst.Kind() != src.Kind() ||
		t.rb.singleton(dst) != nil || t.rb.singleton(src) != nil {
		bb.Append(cfg.Havoc{V: t.regionUseVar(dst)})
		return
	}
	t.initialized[dst.ID()] = true
	bb.Append(cfg.ArrayAssign{Dst: t.vfac().regionVar(dst), Src: t.vfac().regionVar(src)})
	t.record(bb, instr)
}

// verifierCall lowers the verifier intrinsics.
func (t *instrTranslator) verifierCall(bb *cfg.Block, instr *ssa.Call, name string) {
	args := instr.Common().Args
	switch {
	case t.params.IsAssert(name):
		t.assertion(bb, instr, unwrapConvert(args[0]))
	case t.params.IsAssume(name):
		t.assumption(bb, unwrapConvert(args[0]), false)
	case t.params.IsAssumeNot(name):
		t.assumption(bb, unwrapConvert(args[0]), true)
	case t.params.IsError(name):
		bb.Append(cfg.Assert{Cst: cfg.False(), Loc: t.sourceLoc(instr)})
	case t.params.IsFail(name):
		t.sawFail = true
	case t.params.IsZeroInit(name):
		t.initIntrinsic(bb, instr, args[0], Lit{class: intLit, intVal: bigZero})
	case t.params.IsIntInit(name):
		val, ok := t.lf.classify(unwrapConvert(args[1]))
		if !ok || !val.IsInt() {
			return
		}
		t.initIntrinsic(bb, instr, args[0], val)
	}
}

// assertion lowers an assert intrinsic. A single-use comparison operand
// is re-derived as a linear constraint so the engine checks the
// relation directly rather than a boolean flag.
func (t *instrTranslator) assertion(bb *cfg.Block, instr *ssa.Call, cond ssa.Value) {
	loc := t.sourceLoc(instr)
	l, ok := t.lf.classify(cond)
	if !ok || !l.IsBool() {
		return
	}
	if !l.IsVar() {
		if l.BoolVal() {
			return
		}
		bb.Append(cfg.Assert{Cst: cfg.False(), Loc: loc})
		return
	}
	if cst, ok := t.condConstraint(cond, false); ok {
		bb.Append(cfg.Assert{Cst: cst, Loc: loc})
		return
	}
	bb.Append(cfg.BoolAssert{V: l.Var(), Loc: loc})
}

// assumption lowers assume and assume-not intrinsics.
func (t *instrTranslator) assumption(bb *cfg.Block, cond ssa.Value, negate bool) {
	l, ok := t.lf.classify(cond)
	if !ok || !l.IsBool() {
		return
	}
	if !l.IsVar() {
		if l.BoolVal() != negate {
			return // assuming a truth constrains nothing
		}
		bb.Append(cfg.Assume{Cst: cfg.False()})
		return
	}
	if cst, ok := t.condConstraint(cond, negate); ok {
		bb.Append(cfg.Assume{Cst: cst})
		return
	}
	bb.Append(cfg.BoolAssume{V: l.Var(), Negate: negate})
}

// condConstraint re-derives a linear constraint from a condition that
// is a single-use integer comparison.
func (t *instrTranslator) condConstraint(cond ssa.Value, negate bool) (cfg.Constraint, bool) {
	cmp, ok := cond.(*ssa.BinOp)
	if !ok || !isComparison(cmp.Op) || !isInteger(cmp.X.Type()) {
		return cfg.Constraint{}, false
	}
	if refs := cond.Referrers(); refs != nil && len(*refs) > 1 {
		// shared conditions keep their boolean variable
		return cfg.Constraint{}, false
	}
	xl, okx := t.lf.classify(cmp.X)
	yl, oky := t.lf.classify(cmp.Y)
	if !okx || !oky {
		return cfg.Constraint{}, false
	}
	return cmpConstraint(cmp.Op, xl, yl, isUnsigned(cmp.X.Type()), negate), true
}

// initIntrinsic lowers the zero/int initializer intrinsics that declare
// a region's base case.
func (t *instrTranslator) initIntrinsic(bb *cfg.Block, instr *ssa.Call, ptr ssa.Value, val Lit) {
	if !t.params.TrackMemory() {
		return
	}
	r := t.rb.regionOf(t.fn, ptr)
	if r.IsUnknown() {
		return
	}
	if s := t.rb.singleton(r); s != nil {
		t.storeSingleton(bb, t.rb.singletonVar(s), val)
		return
	}
	if t.initialized[r.ID()] {
		return
	}
	t.initialized[r.ID()] = true
	size := t.sizes.Sizeof(pointee(ptr))
	elemSize := int64(r.Width()+7) / 8
	hi := size - elemSize
	if hi < 0 {
		hi = 0
	}
	bb.Append(cfg.ArrayInit{
		Arr:      t.vfac().regionVar(r),
		Lo:       cfg.Int64Expr(0),
		Hi:       cfg.Int64Expr(hi),
		Val:      boolOrIntExpr(val),
		ElemSize: elemSize,
	})
	t.record(bb, instr)
}
