package translate

import (
	"go/token"
	"go/types"
	"math/big"

	"github.com/go-logr/logr"
	"golang.org/x/tools/go/ssa"

	"github.com/limpet-analysis/limpet/cfg"
	"github.com/limpet-analysis/limpet/config"
	"github.com/limpet-analysis/limpet/heap"
)

// StmtRef identifies one emitted statement by its position.
type StmtRef struct {
	Block *cfg.Block
	Index int
}

// instrTranslator lowers one function's instructions. All per-function
// caches live here; a fresh translator is built for every function and
// discarded once its graph is finalized.
type instrTranslator struct {
	params *config.Params
	sizes  types.Sizes
	fset   *token.FileSet
	log    logr.Logger
	lf     *litFactory
	rb     *regionBinder
	fn     *ssa.Function

	// regions that already received their array base case
	initialized map[int]bool
	// the one unconstrained index variable shared by all smashed
	// array accesses of this function
	arrayIdx cfg.Var
	// array statements back to their source instruction
	revMap map[StmtRef]ssa.Instruction
	// per-module object counter for fresh pointer objects
	objectID *int

	sawFail bool
}

func (t *instrTranslator) vfac() *varFactory { return t.lf.vfac }

func (t *instrTranslator) sharedIndex() cfg.Var {
	if t.arrayIdx.IsZero() {
		t.arrayIdx = t.vfac().freshInt(64)
	}
	return t.arrayIdx
}

// havocVar emits a havoc unless useless havocs are configured away.
func (t *instrTranslator) havocVar(bb *cfg.Block, v cfg.Var) {
	if t.params.IncludeUselessHavoc {
		bb.Append(cfg.Havoc{V: v})
	}
}

// havocValue havocs the variable standing for a source value, when it
// is tracked at all.
func (t *instrTranslator) havocValue(bb *cfg.Block, v ssa.Value) {
	if l, ok := t.lf.classify(v); ok && l.IsVar() {
		t.havocVar(bb, l.Var())
	}
}

// record maps the last statement of bb back to its source instruction.
// Only array statements are recorded, and simplification disables the
// map because it moves statements around.
func (t *instrTranslator) record(bb *cfg.Block, instr ssa.Instruction) {
	if t.params.Simplify {
		return
	}
	t.revMap[StmtRef{Block: bb, Index: bb.Len() - 1}] = instr
}

// regionUseVar returns the variable a region is read and written
// through: the promoted scalar for singletons, the persistent array
// variable otherwise.
func (t *instrTranslator) regionUseVar(r heap.Region) cfg.Var {
	if s := t.rb.singleton(r); s != nil {
		return t.rb.singletonVar(s)
	}
	return t.vfac().regionVar(r)
}

func (t *instrTranslator) sourceLoc(instr ssa.Instruction) cfg.SourceLoc {
	if t.fset == nil || instr.Pos() == token.NoPos {
		return cfg.SourceLoc{}
	}
	p := t.fset.Position(instr.Pos())
	return cfg.SourceLoc{File: p.Filename, Line: p.Line, Col: p.Column}
}

// translate dispatches one instruction. Control flow (If, Jump,
// Return), phis, and panics are owned by the graph builder.
func (t *instrTranslator) translate(bb *cfg.Block, instr ssa.Instruction) {
	switch instr := instr.(type) {
	case *ssa.BinOp:
		switch instr.Op {
		case token.EQL, token.NEQ, token.LSS, token.LEQ, token.GTR, token.GEQ:
			t.cmp(bb, instr)
		default:
			t.arith(bb, instr)
		}
	case *ssa.UnOp:
		t.unOp(bb, instr)
	case *ssa.Store:
		t.store(bb, instr)
	case *ssa.Alloc:
		t.alloc(bb, instr)
	case *ssa.IndexAddr:
		t.indexAddr(bb, instr)
	case *ssa.FieldAddr:
		t.fieldAddr(bb, instr)
	case *ssa.Slice:
		t.slice(bb, instr)
	case *ssa.Convert:
		t.convert(bb, instr)
	case *ssa.ChangeType:
		t.changeType(bb, instr)
	case *ssa.Call:
		t.call(bb, instr)
	case *ssa.Defer:
		t.asyncCall(bb, instr.Common())
	case *ssa.Go:
		t.asyncCall(bb, instr.Common())
	case *ssa.Phi, *ssa.If, *ssa.Jump, *ssa.Return, *ssa.Panic:
		// handled by the graph builder
	case *ssa.RunDefers, *ssa.DebugRef:
		// nothing to model
	default:
		t.fallback(bb, instr)
	}
}

// fallback is the universal catch-all: anything unmodeled becomes a
// havoc of its result. It never fails.
func (t *instrTranslator) fallback(bb *cfg.Block, instr ssa.Instruction) {
	v, ok := instr.(ssa.Value)
	if !ok {
		return
	}
	if l, ok := t.lf.classify(v); ok && l.IsVar() {
		t.log.V(1).Info("skipped instruction", "func", t.fn.String(), "instr", instr.String())
		t.havocVar(bb, l.Var())
	}
}

// arith lowers integer arithmetic, bitwise and shift operations.
func (t *instrTranslator) arith(bb *cfg.Block, instr *ssa.BinOp) {
	dst, ok := t.lf.classify(instr)
	if !ok {
		return
	}
	if !isInteger(instr.X.Type()) {
		t.havocVar(bb, dst.Var())
		return
	}
	op, ok := arithOp(instr.Op, isUnsigned(instr.X.Type()))
	if !ok {
		t.log.V(1).Info("unsupported arithmetic operator", "func", t.fn.String(), "op", instr.Op.String())
		t.havocVar(bb, dst.Var())
		return
	}
	xl, okx := t.lf.classify(instr.X)
	yl, oky := t.lf.classify(instr.Y)
	if !okx || !oky {
		t.havocVar(bb, dst.Var())
		return
	}
	// the statement language has no constant-constant operations
	x := t.materializeInt(bb, xl, instr.X.Type())
	bb.Append(cfg.BinStmt{Op: op, Dst: dst.Var(), X: x, Y: yl.Expr()})
}

func arithOp(op token.Token, unsigned bool) (cfg.ArithOp, bool) {
	switch op {
	case token.ADD:
		return cfg.Add, true
	case token.SUB:
		return cfg.Sub, true
	case token.MUL:
		return cfg.Mul, true
	case token.QUO:
		if unsigned {
			return cfg.UDiv, true
		}
		return cfg.SDiv, true
	case token.REM:
		if unsigned {
			return cfg.URem, true
		}
		return cfg.SRem, true
	case token.SHL:
		return cfg.Shl, true
	case token.SHR:
		if unsigned {
			return cfg.LShr, true
		}
		return cfg.AShr, true
	case token.AND:
		return cfg.And, true
	case token.OR:
		return cfg.Or, true
	case token.XOR:
		return cfg.Xor, true
	default:
		// AND_NOT has no counterpart
		return 0, false
	}
}

// materializeInt turns an integer literal into a variable, minting a
// temporary for constants.
func (t *instrTranslator) materializeInt(bb *cfg.Block, l Lit, typ types.Type) cfg.Var {
	if l.IsVar() {
		return l.Var()
	}
	v := t.vfac().freshInt(typeWidth(t.sizes, typ))
	bb.Append(cfg.Assign{Dst: v, Src: l.Expr()})
	return v
}

func (t *instrTranslator) unOp(bb *cfg.Block, instr *ssa.UnOp) {
	if instr.Op == token.MUL {
		t.load(bb, instr)
		return
	}
	dst, ok := t.lf.classify(instr)
	if !ok {
		return
	}
	switch instr.Op {
	case token.SUB:
		if xl, ok := t.lf.classify(instr.X); ok && xl.IsInt() {
			bb.Append(cfg.Assign{Dst: dst.Var(), Src: xl.Expr().Mul(big.NewInt(-1))})
			return
		}
	case token.NOT:
		if xl, ok := t.lf.classify(instr.X); ok && xl.IsBool() {
			if xl.IsVar() {
				bb.Append(cfg.BoolAssignVar{Dst: dst.Var(), Src: xl.Var(), Negate: true})
			} else {
				bb.Append(cfg.BoolAssignCst{Dst: dst.Var(), Cst: boolConstraint(!xl.BoolVal())})
			}
			return
		}
	}
	// ^x and channel receives are not modeled
	t.havocVar(bb, dst.Var())
}

// load lowers *x. Precedence: array or promoted scalar when memory is
// tracked and the cell is scalar, then pointer load, then havoc.
func (t *instrTranslator) load(bb *cfg.Block, instr *ssa.UnOp) {
	dst, ok := t.lf.classify(instr)
	if !ok {
		return
	}
	ptr, okp := t.lf.classify(instr.X)
	if okp && ptr.IsNull() {
		t.log.V(1).Info("skipped load through null pointer", "func", t.fn.String())
		t.havocVar(bb, dst.Var())
		return
	}
	if t.params.TrackMemory() && (dst.IsBool() || dst.IsInt()) {
		r := t.rb.regionOf(t.fn, instr.X)
		if r.IsUnknown() {
			t.havocVar(bb, dst.Var())
			return
		}
		if s := t.rb.singleton(r); s != nil {
			sv := t.rb.singletonVar(s)
			if dst.IsBool() {
				bb.Append(cfg.BoolAssignVar{Dst: dst.Var(), Src: sv})
			} else {
				bb.Append(cfg.Assign{Dst: dst.Var(), Src: cfg.VarExpr(sv)})
			}
			return
		}
		if r.Kind() == heap.Int && r.Width() != dst.Var().Type.Width {
			// mismatched cell and destination widths read as if
			// sign-extended; flagged, not fixed
			t.log.V(1).Info("array load width mismatch", "func", t.fn.String(), "region", r.ID())
		}
		bb.Append(cfg.ArrayLoad{Dst: dst.Var(), Arr: t.vfac().regionVar(r), Idx: t.sharedIndex(), ElemSize: int64(r.Width()+7) / 8})
		t.record(bb, instr)
		return
	}
	if dst.IsPtr() && t.params.TrackPointers() {
		if okp && ptr.IsVar() {
			bb.Append(cfg.PtrLoad{Dst: dst.Var(), Src: ptr.Var()})
			return
		}
	}
	t.havocVar(bb, dst.Var())
}

// store lowers *addr = val. Stores to singleton regions become scalar
// assignments; everything else smashes into the region array with the
// shared unconstrained index.
func (t *instrTranslator) store(bb *cfg.Block, instr *ssa.Store) {
	addr, oka := t.lf.classify(instr.Addr)
	if oka && addr.IsNull() {
		t.log.V(1).Info("skipped store through null pointer", "func", t.fn.String())
		return
	}
	vt := instr.Val.Type()
	if t.params.TrackMemory() && (isBool(vt) || isInteger(vt)) {
		r := t.rb.regionOf(t.fn, instr.Addr)
		if r.IsUnknown() {
			return
		}
		vl, okv := t.lf.classify(instr.Val)
		if !okv {
			// an unknown value may land anywhere in the region; this
			// havoc is load-bearing, not a useless one
			bb.Append(cfg.Havoc{V: t.regionUseVar(r)})
			return
		}
		if s := t.rb.singleton(r); s != nil {
			t.storeSingleton(bb, t.rb.singletonVar(s), vl)
			return
		}
		first := !t.initialized[r.ID()]
		t.initialized[r.ID()] = true
		strong := first && instr.Block() == t.fn.Blocks[0]
		bb.Append(cfg.ArrayStore{
			Arr:      t.vfac().regionVar(r),
			Idx:      t.sharedIndex(),
			Val:      boolOrIntExpr(vl),
			ElemSize: int64(r.Width()+7) / 8,
			Strong:   strong,
		})
		t.record(bb, instr)
		return
	}
	if isPointer(vt) && t.params.TrackPointers() {
		if !oka || !addr.IsVar() {
			return
		}
		vl, okv := t.lf.classify(instr.Val)
		if !okv {
			return
		}
		val := vl.Var()
		if vl.IsNull() {
			val = t.vfac().freshPointer()
			bb.Append(cfg.PtrNull{Dst: val})
		}
		bb.Append(cfg.PtrStore{Dst: addr.Var(), Val: val})
	}
}

func (t *instrTranslator) storeSingleton(bb *cfg.Block, scalar cfg.Var, vl Lit) {
	switch {
	case vl.IsBool() && vl.IsVar():
		bb.Append(cfg.BoolAssignVar{Dst: scalar, Src: vl.Var()})
	case vl.IsBool():
		bb.Append(cfg.BoolAssignCst{Dst: scalar, Cst: boolConstraint(vl.BoolVal())})
	default:
		bb.Append(cfg.Assign{Dst: scalar, Src: vl.Expr()})
	}
}

// boolOrIntExpr renders a scalar literal as an array cell value,
// encoding booleans as 0/1.
func boolOrIntExpr(l Lit) cfg.Expr {
	if l.IsBool() {
		if l.IsVar() {
			return cfg.VarExpr(l.Var())
		}
		if l.BoolVal() {
			return cfg.Int64Expr(1)
		}
		return cfg.Int64Expr(0)
	}
	return l.Expr()
}

// alloc introduces a fresh pointer object and, when configured, the
// array base case for the region backing the allocation.
func (t *instrTranslator) alloc(bb *cfg.Block, instr *ssa.Alloc) {
	if dst, ok := t.lf.classify(instr); ok && dst.IsPtr() {
		*t.objectID++
		bb.Append(cfg.PtrNew{Dst: dst.Var(), ObjectID: *t.objectID})
	}
	if !t.params.ArrayInit() {
		return
	}
	r := t.rb.regionOf(t.fn, instr)
	if r.IsUnknown() || t.rb.singleton(r) != nil || t.initialized[r.ID()] {
		return
	}
	elem := instr.Type().Underlying().(*types.Pointer).Elem()
	if _, ok := elem.Underlying().(*types.Array); !ok && !t.params.AggressiveArrayInit() {
		// only whole scalar arrays get a cheap, certain base case
		return
	}
	t.initialized[r.ID()] = true
	size := t.sizes.Sizeof(elem)
	elemSize := int64(r.Width()+7) / 8
	bb.Append(cfg.ArrayInit{
		Arr:      t.vfac().regionVar(r),
		Lo:       cfg.Int64Expr(0),
		Hi:       cfg.Int64Expr(size - elemSize),
		Val:      cfg.Int64Expr(0),
		ElemSize: elemSize,
	})
	t.record(bb, instr)
}

// indexAddr lowers &a[i] into pointer arithmetic: a constant index
// folds into one offset, a dynamic one multiplies by the element size.
func (t *instrTranslator) indexAddr(bb *cfg.Block, instr *ssa.IndexAddr) {
	if !t.params.TrackPointers() {
		return
	}
	dst, ok := t.lf.classify(instr)
	if !ok {
		return
	}
	base, okb := t.lf.classify(instr.X)
	if !okb || !base.IsVar() {
		t.havocVar(bb, dst.Var())
		return
	}
	if r := t.rb.regionOf(t.fn, instr.X); t.rb.singleton(r) != nil {
		// singletons live as scalars; there is nothing to index into
		return
	}
	elemSize := t.sizes.Sizeof(pointee(instr))
	idx, oki := t.lf.classify(instr.Index)
	if !oki {
		t.havocVar(bb, dst.Var())
		return
	}
	off := idx.Expr().Mul(big.NewInt(elemSize))
	bb.Append(cfg.PtrAssign{Dst: dst.Var(), Src: base.Var(), Offset: off})
}

func (t *instrTranslator) fieldAddr(bb *cfg.Block, instr *ssa.FieldAddr) {
	if !t.params.TrackPointers() {
		return
	}
	dst, ok := t.lf.classify(instr)
	if !ok {
		return
	}
	base, okb := t.lf.classify(instr.X)
	if !okb || !base.IsVar() {
		t.havocVar(bb, dst.Var())
		return
	}
	st := instr.X.Type().Underlying().(*types.Pointer).Elem().Underlying().(*types.Struct)
	fields := make([]*types.Var, st.NumFields())
	for i := 0; i < st.NumFields(); i++ {
		fields[i] = st.Field(i)
	}
	off := t.sizes.Offsetsof(fields)[instr.Field]
	bb.Append(cfg.PtrAssign{Dst: dst.Var(), Src: base.Var(), Offset: cfg.Int64Expr(off)})
}

// slice aliases the base pointer, offset by the low bound when present.
func (t *instrTranslator) slice(bb *cfg.Block, instr *ssa.Slice) {
	if !t.params.TrackPointers() {
		return
	}
	dst, ok := t.lf.classify(instr)
	if !ok {
		return
	}
	base, okb := t.lf.classify(instr.X)
	if !okb || !base.IsVar() {
		t.havocVar(bb, dst.Var())
		return
	}
	off := cfg.Int64Expr(0)
	if instr.Low != nil {
		low, okl := t.lf.classify(instr.Low)
		if !okl {
			t.havocVar(bb, dst.Var())
			return
		}
		elemSize := t.sizes.Sizeof(pointee(instr))
		off = low.Expr().Mul(big.NewInt(elemSize))
	}
	bb.Append(cfg.PtrAssign{Dst: dst.Var(), Src: base.Var(), Offset: off})
}

// convert lowers representation changes. Integer width changes become
// extend/truncate; a widening conversion consumed only by branch or
// verifier conditions is skipped, since the narrow value already
// carries the information.
func (t *instrTranslator) convert(bb *cfg.Block, instr *ssa.Convert) {
	dst, ok := t.lf.classify(instr)
	if !ok {
		return
	}
	src, dstT := instr.X.Type(), instr.Type()
	switch {
	case isInteger(src) && isInteger(dstT):
		sw, dw := typeWidth(t.sizes, src), typeWidth(t.sizes, dstT)
		if dw > sw && t.feedsOnlyConditions(instr) {
			return
		}
		xl, okx := t.lf.classify(instr.X)
		if !okx {
			t.havocVar(bb, dst.Var())
			return
		}
		x := t.materializeInt(bb, xl, src)
		switch {
		case dw > sw:
			bb.Append(cfg.Extend{Signed: !isUnsigned(src), Src: x, Dst: dst.Var()})
		case dw < sw:
			bb.Append(cfg.Truncate{Src: x, Dst: dst.Var()})
		default:
			bb.Append(cfg.Assign{Dst: dst.Var(), Src: cfg.VarExpr(x)})
		}
	case isPointer(src) && isPointer(dstT):
		if xl, okx := t.lf.classify(instr.X); okx && xl.IsVar() {
			bb.Append(cfg.PtrAssign{Dst: dst.Var(), Src: xl.Var(), Offset: cfg.Int64Expr(0)})
			return
		}
		t.havocVar(bb, dst.Var())
	default:
		// pointer/integer and float conversions are not modeled
		t.havocVar(bb, dst.Var())
	}
}

func (t *instrTranslator) changeType(bb *cfg.Block, instr *ssa.ChangeType) {
	dst, ok := t.lf.classify(instr)
	if !ok {
		return
	}
	xl, okx := t.lf.classify(instr.X)
	if !okx {
		t.havocVar(bb, dst.Var())
		return
	}
	switch {
	case dst.IsBool() && xl.IsVar():
		bb.Append(cfg.BoolAssignVar{Dst: dst.Var(), Src: xl.Var()})
	case dst.IsBool():
		bb.Append(cfg.BoolAssignCst{Dst: dst.Var(), Cst: boolConstraint(xl.BoolVal())})
	case dst.IsInt():
		bb.Append(cfg.Assign{Dst: dst.Var(), Src: xl.Expr()})
	case dst.IsPtr() && xl.IsVar():
		bb.Append(cfg.PtrAssign{Dst: dst.Var(), Src: xl.Var(), Offset: cfg.Int64Expr(0)})
	case dst.IsPtr() && xl.IsNull():
		bb.Append(cfg.PtrNull{Dst: dst.Var()})
	default:
		t.havocVar(bb, dst.Var())
	}
}

// feedsOnlyConditions reports whether every use of v is a branch
// condition or a verifier intrinsic argument.
func (t *instrTranslator) feedsOnlyConditions(v ssa.Value) bool {
	refs := v.Referrers()
	if refs == nil || len(*refs) == 0 {
		return false
	}
	for _, r := range *refs {
		switch r := r.(type) {
		case *ssa.If:
		case *ssa.Call:
			callee := r.Common().StaticCallee()
			if callee == nil || !t.params.IsVerifierCall(callee.String()) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// unwrapConvert looks through a widening conversion whose translation
// was skipped.
func unwrapConvert(v ssa.Value) ssa.Value {
	if c, ok := v.(*ssa.Convert); ok {
		return c.X
	}
	return v
}
