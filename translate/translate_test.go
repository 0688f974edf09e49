package translate

import (
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"math/big"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/limpet-analysis/limpet/cfg"
	"github.com/limpet-analysis/limpet/config"
	"github.com/limpet-analysis/limpet/heap"
)

func buildSSA(t *testing.T, src string) *ssa.Package {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "p.go", src, 0)
	if err != nil {
		t.Fatal(err)
	}
	pkg := types.NewPackage("p", "")
	spkg, _, err := ssautil.BuildPackage(
		&types.Config{Importer: importer.Default()}, fset, pkg, []*ast.File{f}, ssa.SanityCheckFunctions)
	if err != nil {
		t.Fatal(err)
	}
	spkg.Prog.Build()
	return spkg
}

func newTestManager(pkg *ssa.Package, params config.Params) *Manager {
	sizes := types.SizesFor("gc", "amd64")
	return NewManager(params, heap.NewAllocSites(pkg.Prog, sizes), sizes, pkg.Prog.Fset, logr.Discard())
}

func mustCFG(t *testing.T, m *Manager, fn *ssa.Function) *cfg.Graph {
	t.Helper()
	g, err := m.CFG(fn)
	if err != nil {
		t.Fatalf("CFG(%s): %v", fn, err)
	}
	return g
}

func allStmts(g *cfg.Graph) []cfg.Stmt {
	var out []cfg.Stmt
	for _, b := range g.Blocks() {
		out = append(out, b.Stmts...)
	}
	return out
}

func TestBranchEdgeAssumes(t *testing.T) {
	pkg := buildSSA(t, `
package p

func f(x int8) int8 {
	for x < 10 {
		x++
	}
	return x
}
`)
	m := newTestManager(pkg, config.Default())
	g := mustCFG(t, m, pkg.Func("f"))

	type found struct {
		cst   cfg.Constraint
		block cfg.Label
	}
	var assumes []found
	for _, b := range g.Blocks() {
		for _, s := range b.Stmts {
			if a, ok := s.(cfg.Assume); ok {
				assumes = append(assumes, found{a.Cst, b.Label})
			}
		}
	}
	if len(assumes) != 2 {
		t.Fatalf("got %d assumes, want 2:\n%s", len(assumes), g)
	}
	for _, a := range assumes {
		if !strings.HasPrefix(a.block.Name, "__@") {
			t.Errorf("assume placed in %s, want a synthetic edge block", a.block)
		}
		if a.cst.Unsigned {
			t.Errorf("assume %s marked unsigned for a signed comparison", a.cst)
		}
	}
	// one arm constrains x <= 9, the other 10 <= x
	taken, fall := assumes[0].cst, assumes[1].cst
	if taken.L.IsConst() {
		taken, fall = fall, taken
	}
	x, _, ok := taken.L.Term()
	if !ok {
		t.Fatalf("taken-arm assume %s has no variable on the left", taken)
	}
	if !taken.Equal(cfg.Constraint{Pred: cfg.Le, L: cfg.VarExpr(x), R: cfg.Int64Expr(9)}) {
		t.Errorf("taken-arm assume %s, want %s <= 9", taken, x)
	}
	if !fall.Equal(cfg.Constraint{Pred: cfg.Le, L: cfg.Int64Expr(10), R: cfg.VarExpr(x)}) {
		t.Errorf("fall-through assume %s, want 10 <= %s", fall, x)
	}
	if !taken.Negate().Equal(fall) {
		t.Errorf("edge assumes %s and %s are not mutual negations", taken, fall)
	}

	// the comparison is also a value; its boolean variable gets the
	// same constraint
	var cstAssigns []cfg.BoolAssignCst
	for _, s := range allStmts(g) {
		if a, ok := s.(cfg.BoolAssignCst); ok {
			cstAssigns = append(cstAssigns, a)
		}
	}
	if len(cstAssigns) != 1 || !cstAssigns[0].Cst.Equal(taken) {
		t.Errorf("comparison value not lowered as %s: %v", taken, cstAssigns)
	}
}

func TestPhiElimSwapsInParallel(t *testing.T) {
	pkg := buildSSA(t, `
package p

func swap(n int) int {
	a, b := 0, 1
	for i := 0; i < n; i++ {
		a, b = b, a
	}
	return a
}
`)
	m := newTestManager(pkg, config.Default())
	g := mustCFG(t, m, pkg.Func("swap"))

	// Simulate each block's scalar copies symbolically. The back-edge
	// block must realize a genuine exchange: two variables each ending
	// up with the other's initial value.
	swapped := false
	for _, b := range g.Blocks() {
		env := map[string]string{}
		valueOf := func(name string) string {
			if v, ok := env[name]; ok {
				return v
			}
			return "init:" + name
		}
		for _, s := range b.Stmts {
			a, ok := s.(cfg.Assign)
			if !ok {
				continue
			}
			src, ok := a.Src.Vr()
			if !ok {
				continue
			}
			env[a.Dst.Name] = valueOf(src.Name)
		}
		for u, uv := range env {
			for v, vv := range env {
				if u != v && uv == "init:"+v && vv == "init:"+u {
					swapped = true
				}
			}
		}
	}
	if !swapped {
		t.Fatalf("no block realizes the parallel swap:\n%s", g)
	}
}

func TestStoreStrength(t *testing.T) {
	pkg := buildSSA(t, `
package p

var g int32
var arr [4]int64

func f(i int) {
	g = 1
	arr[i] = 2
	arr[i] = 3
}

func h(c bool, i int) {
	if c {
		arr[i] = 4
	}
}
`)
	m := newTestManager(pkg, config.Default())

	gf := mustCFG(t, m, pkg.Func("f"))
	var stores []cfg.ArrayStore
	sawScalar := false
	for _, s := range allStmts(gf) {
		switch s := s.(type) {
		case cfg.ArrayStore:
			stores = append(stores, s)
		case cfg.Assign:
			if s.Dst.Name == "p.g" && s.Src.IsConst() && s.Src.Const().Int64() == 1 {
				sawScalar = true
			}
		}
	}
	if !sawScalar {
		t.Errorf("store to the singleton global was not lowered to a scalar assignment:\n%s", gf)
	}
	if len(stores) != 2 {
		t.Fatalf("got %d array stores, want 2:\n%s", len(stores), gf)
	}
	if !stores[0].Strong {
		t.Errorf("first store to a region in the entry block should be strong: %s", stores[0])
	}
	if stores[1].Strong {
		t.Errorf("second store to the same region must be weak: %s", stores[1])
	}
	if stores[0].Arr != stores[1].Arr {
		t.Errorf("stores target different region variables: %s vs %s", stores[0].Arr, stores[1].Arr)
	}
	if stores[0].Idx != stores[1].Idx {
		t.Errorf("stores use different index variables: %s vs %s", stores[0].Idx, stores[1].Idx)
	}
	if stores[0].ElemSize != 8 {
		t.Errorf("element size = %d, want 8", stores[0].ElemSize)
	}

	gh := mustCFG(t, m, pkg.Func("h"))
	for _, s := range allStmts(gh) {
		if st, ok := s.(cfg.ArrayStore); ok && st.Strong {
			t.Errorf("store outside the entry block must be weak: %s", st)
		}
	}
}

func TestCallThreadsRegions(t *testing.T) {
	pkg := buildSSA(t, `
package p

var m [4]int64

func callee(x int64) int64 {
	m[0] = x
	q := new(int64)
	*q = x
	return *q
}

func caller(x int64) int64 {
	return callee(x) + m[1]
}
`)
	m := newTestManager(pkg, config.Default())
	g := mustCFG(t, m, pkg.Func("caller"))

	var call cfg.Call
	var after cfg.Stmt
	for _, b := range g.Blocks() {
		for i, s := range b.Stmts {
			if c, ok := s.(cfg.Call); ok {
				call = c
				if i+1 < len(b.Stmts) {
					after = b.Stmts[i+1]
				}
			}
		}
	}
	if call.Callee != "p.callee" {
		t.Fatalf("no call to p.callee found:\n%s", g)
	}
	if len(call.Inputs) != 2 {
		t.Fatalf("call inputs = %v, want actual + modified region", call.Inputs)
	}
	if call.Inputs[0].Name != "x" {
		t.Errorf("first input = %s, want the actual argument x", call.Inputs[0])
	}
	persistent := call.Inputs[1]
	if !persistent.Type.IsArray() || !strings.HasPrefix(persistent.Name, "@reg_") {
		t.Errorf("second input = %s, want the persistent region array", persistent)
	}
	if len(call.Outputs) != 3 {
		t.Fatalf("call outputs = %v, want return + fresh region + new region", call.Outputs)
	}
	if call.Outputs[0].Type.Kind != cfg.IntKind {
		t.Errorf("first output = %s, want the integer return value", call.Outputs[0])
	}
	fresh := call.Outputs[1]
	if fresh.Type != persistent.Type {
		t.Errorf("fresh incarnation %s typed %s, want %s", fresh, fresh.Type, persistent.Type)
	}
	if fresh == persistent {
		t.Errorf("modified region output %s must be a fresh variable", fresh)
	}
	if created := call.Outputs[2]; !created.Type.IsArray() || !strings.HasPrefix(created.Name, "@reg_") {
		t.Errorf("third output = %s, want the created region's persistent variable", created)
	}
	// the fresh incarnation is copied back right after the call
	cp, ok := after.(cfg.ArrayAssign)
	if !ok || cp.Dst != persistent || cp.Src != fresh {
		t.Errorf("statement after call = %v, want %s := %s", after, persistent, fresh)
	}
}

func TestFuncDeclThreadsRegions(t *testing.T) {
	pkg := buildSSA(t, `
package p

var m [4]int64

func callee(x int64) int64 {
	m[0] = x
	q := new(int64)
	*q = x
	return *q
}
`)
	m := newTestManager(pkg, config.Default())
	g := mustCFG(t, m, pkg.Func("callee"))

	decl := g.Decl()
	if decl == nil {
		t.Fatal("interprocedural translation produced no declaration")
	}
	if decl.Name != "p.callee" {
		t.Errorf("decl name = %q", decl.Name)
	}
	if len(decl.Inputs) != 2 || decl.Inputs[0].Name != "x" {
		t.Fatalf("inputs = %v, want [x, region incarnation]", decl.Inputs)
	}
	in := decl.Inputs[1]
	if !in.Type.IsArray() || strings.HasPrefix(in.Name, "@reg_") {
		t.Errorf("modified region input %s must be a fresh incarnation, not the persistent variable", in)
	}
	if len(decl.Outputs) != 3 {
		t.Fatalf("outputs = %v, want [return, modified region, new region]", decl.Outputs)
	}
	var retStmt *cfg.Return
	for _, s := range allStmts(g) {
		if r, ok := s.(cfg.Return); ok {
			retStmt = &r
		}
	}
	if retStmt == nil || decl.Outputs[0] != retStmt.V {
		t.Errorf("first output %s does not match the returned variable", decl.Outputs[0])
	}
	if v := decl.Outputs[1]; !strings.HasPrefix(v.Name, "@reg_") {
		t.Errorf("modified region output = %s, want the persistent variable", v)
	}
	if v := decl.Outputs[2]; !strings.HasPrefix(v.Name, "@reg_") {
		t.Errorf("new region output = %s, want the persistent variable", v)
	}
	seen := map[cfg.Var]bool{}
	for _, v := range decl.Inputs {
		seen[v] = true
	}
	for _, v := range decl.Outputs {
		if seen[v] {
			t.Errorf("variable %s appears in both inputs and outputs", v)
		}
	}
	// the entry block copies the input incarnation onto the persistent
	// variable before anything else
	entry := g.Block(g.Entry())
	if entry.Len() == 0 {
		t.Fatal("empty entry block")
	}
	cp, ok := entry.Stmts[0].(cfg.ArrayAssign)
	if !ok || cp.Dst != decl.Outputs[1] || cp.Src != in {
		t.Errorf("entry starts with %v, want %s := %s", entry.Stmts[0], decl.Outputs[1], in)
	}
}

func TestVerifierIntrinsics(t *testing.T) {
	pkg := buildSSA(t, `
package p

func Assume(bool)
func Assert(bool)

func f(x int) {
	Assume(x > 0)
	Assert(x < 100)
}

func g1() { Assume(true) }
func g2() { Assume(false) }
`)
	params := config.Default()
	params.Intrinsics.Assume = []string{"p.Assume"}
	params.Intrinsics.Assert = []string{"p.Assert"}
	m := newTestManager(pkg, params)

	g := mustCFG(t, m, pkg.Func("f"))
	var assumes []cfg.Assume
	var asserts []cfg.Assert
	for _, s := range allStmts(g) {
		switch s := s.(type) {
		case cfg.Assume:
			assumes = append(assumes, s)
		case cfg.Assert:
			asserts = append(asserts, s)
		}
	}
	if len(assumes) != 1 {
		t.Fatalf("got %d assumes, want 1:\n%s", len(assumes), g)
	}
	x, _, _ := assumes[0].Cst.R.Term()
	if !assumes[0].Cst.Equal(cfg.Constraint{Pred: cfg.Le, L: cfg.Int64Expr(1), R: cfg.VarExpr(x)}) {
		t.Errorf("assume %s, want 1 <= %s", assumes[0].Cst, x)
	}
	if len(asserts) != 1 {
		t.Fatalf("got %d asserts, want 1:\n%s", len(asserts), g)
	}
	if !asserts[0].Cst.Equal(cfg.Constraint{Pred: cfg.Le, L: cfg.VarExpr(x), R: cfg.Int64Expr(99)}) {
		t.Errorf("assert %s, want %s <= 99", asserts[0].Cst, x)
	}
	if asserts[0].Loc.Line == 0 {
		t.Errorf("assert carries no source location")
	}

	for _, s := range allStmts(mustCFG(t, m, pkg.Func("g1"))) {
		if _, ok := s.(cfg.Assume); ok {
			t.Errorf("assuming a tautology emitted %s", s)
		}
	}
	var falseAssumes int
	for _, s := range allStmts(mustCFG(t, m, pkg.Func("g2"))) {
		if a, ok := s.(cfg.Assume); ok && a.Cst.IsFalse() {
			falseAssumes++
		}
	}
	if falseAssumes != 1 {
		t.Errorf("assuming a contradiction emitted %d false assumes, want 1", falseAssumes)
	}
}

func TestFailMarksMainExit(t *testing.T) {
	pkg := buildSSA(t, `
package p

func Fail()

func main() {
	Fail()
}
`)
	params := config.Default()
	params.Intrinsics.Fail = []string{"p.Fail"}
	m := newTestManager(pkg, params)
	g := mustCFG(t, m, pkg.Func("main"))

	exit, ok := g.Exit()
	if !ok {
		t.Fatalf("no exit block:\n%s", g)
	}
	stmts := g.Block(exit).Stmts
	if len(stmts) == 0 {
		t.Fatalf("empty exit block:\n%s", g)
	}
	a, ok := stmts[len(stmts)-1].(cfg.Assert)
	if !ok || !a.Cst.IsFalse() {
		t.Errorf("exit ends with %v, want assert(false)", stmts[len(stmts)-1])
	}
}

func TestExitDiscovery(t *testing.T) {
	pkg := buildSSA(t, `
package p

func spin() { for {} }

func boom() { panic("x") }
`)
	m := newTestManager(pkg, config.Default())

	g := mustCFG(t, m, pkg.Func("spin"))
	exit, ok := g.Exit()
	if !ok {
		t.Fatalf("no exit for the infinite loop:\n%s", g)
	}
	if exit == g.Entry() {
		t.Errorf("exit should be the self-looping block, not the entry")
	}
	if succs := g.Succs(exit); len(succs) != 1 || succs[0] != exit {
		t.Errorf("exit successors = %v, want only itself", succs)
	}

	g = mustCFG(t, m, pkg.Func("boom"))
	exit, ok = g.Exit()
	if !ok {
		t.Fatalf("no exit for the panicking function:\n%s", g)
	}
	found := false
	for _, s := range g.Block(exit).Stmts {
		if _, ok := s.(cfg.Unreachable); ok {
			found = true
		}
	}
	if !found {
		t.Errorf("exit block of a panicking function carries no unreachable marker:\n%s", g)
	}
}

func TestUnreachableSinksReachExit(t *testing.T) {
	pkg := buildSSA(t, `
package p

func f(c bool) int {
	if c {
		panic("no")
	}
	return 1
}
`)
	m := newTestManager(pkg, config.Default())
	g := mustCFG(t, m, pkg.Func("f"))

	exit, ok := g.Exit()
	if !ok {
		t.Fatalf("no exit:\n%s", g)
	}
	var sink cfg.Label
	for _, b := range g.Blocks() {
		for _, s := range b.Stmts {
			if _, ok := s.(cfg.Unreachable); ok {
				sink = b.Label
			}
		}
	}
	if sink == exit || sink == (cfg.Label{}) {
		t.Fatalf("no separate unreachable sink found:\n%s", g)
	}
	wired := false
	for _, s := range g.Succs(sink) {
		if s == exit {
			wired = true
		}
	}
	if !wired {
		t.Errorf("unreachable sink %s is not wired to the exit %s", sink, exit)
	}

	// both arms of the branch constrain the condition variable
	var assumes []cfg.BoolAssume
	for _, s := range allStmts(g) {
		if a, ok := s.(cfg.BoolAssume); ok {
			assumes = append(assumes, a)
		}
	}
	if len(assumes) != 2 || assumes[0].V != assumes[1].V || assumes[0].Negate == assumes[1].Negate {
		t.Errorf("branch condition assumes = %v, want one positive and one negated", assumes)
	}
}

func TestReverseStatementMap(t *testing.T) {
	const src = `
package p

var data [8]int64

func w(i int, v int64) { data[i] = v }
`
	pkg := buildSSA(t, src)
	fn := pkg.Func("w")

	m := newTestManager(pkg, config.Default())
	g := mustCFG(t, m, fn)
	var ref StmtRef
	for _, b := range g.Blocks() {
		for i, s := range b.Stmts {
			if _, ok := s.(cfg.ArrayStore); ok {
				ref = StmtRef{Block: b, Index: i}
			}
		}
	}
	if ref.Block == nil {
		t.Fatalf("no array store emitted:\n%s", g)
	}
	instr, ok := m.InstructionFor(fn, ref)
	if !ok {
		t.Fatal("array store has no reverse mapping")
	}
	if _, isStore := instr.(*ssa.Store); !isStore {
		t.Errorf("reverse map points at %T, want *ssa.Store", instr)
	}

	// simplification invalidates statement positions, so the map is off
	params := config.Default()
	params.Simplify = true
	pkg2 := buildSSA(t, src)
	fn2 := pkg2.Func("w")
	m2 := newTestManager(pkg2, params)
	g2 := mustCFG(t, m2, fn2)
	for _, b := range g2.Blocks() {
		for i := range b.Stmts {
			if _, ok := m2.InstructionFor(fn2, StmtRef{Block: b, Index: i}); ok {
				t.Fatal("reverse map populated despite simplification")
			}
		}
	}
}

func TestManagerMemoizes(t *testing.T) {
	pkg := buildSSA(t, `
package p

func f() int { return 1 }
`)
	m := newTestManager(pkg, config.Default())
	g1 := mustCFG(t, m, pkg.Func("f"))
	g2 := mustCFG(t, m, pkg.Func("f"))
	if g1 != g2 {
		t.Error("repeated requests built distinct graphs")
	}
}

func TestTranslationIsDeterministic(t *testing.T) {
	const src = `
package p

var m [4]int64

func callee(x int64) int64 {
	m[0] = x
	q := new(int64)
	*q = x
	return *q
}

func caller(x int64) int64 {
	return callee(x) + m[1]
}
`
	render := func() map[string]string {
		pkg := buildSSA(t, src)
		m := newTestManager(pkg, config.Default())
		out := map[string]string{}
		for _, name := range []string{"callee", "caller"} {
			out[name] = mustCFG(t, m, pkg.Func(name)).String()
		}
		return out
	}
	a, b := render(), render()
	for name := range a {
		if a[name] != b[name] {
			t.Errorf("two translations of %s differ:\n%s\n----\n%s", name, a[name], b[name])
		}
	}
}

// overlapHeap is a broken abstraction that reports the same region as
// both read-only and newly created, which no valid declaration can
// express.
type overlapHeap struct{ r heap.Region }

func (h overlapHeap) Region(*ssa.Function, ssa.Value) heap.Region   { return heap.Region{} }
func (h overlapHeap) OnlyReadRegions(*ssa.Function) []heap.Region   { return []heap.Region{h.r} }
func (h overlapHeap) ModifiedRegions(*ssa.Function) []heap.Region   { return nil }
func (h overlapHeap) NewRegions(*ssa.Function) []heap.Region        { return []heap.Region{h.r} }
func (h overlapHeap) OnlyReadRegionsOfCall(*ssa.Call) []heap.Region { return nil }
func (h overlapHeap) ModifiedRegionsOfCall(*ssa.Call) []heap.Region { return nil }
func (h overlapHeap) NewRegionsOfCall(*ssa.Call) []heap.Region      { return nil }

func TestDeclDisjointnessIsFatal(t *testing.T) {
	pkg := buildSSA(t, `
package p

func f() {}
`)
	sizes := types.SizesFor("gc", "amd64")
	h := overlapHeap{r: heap.NewRegion(7, heap.Int, 64)}
	m := NewManager(config.Default(), h, sizes, pkg.Prog.Fset, logr.Discard())

	_, err := m.CFG(pkg.Func("f"))
	if err == nil {
		t.Fatal("overlapping input and output regions did not fail the build")
	}
	if !strings.Contains(err.Error(), "intersect") {
		t.Errorf("error = %q, want mention of the intersection", err)
	}
	if _, again := m.CFG(pkg.Func("f")); again == nil || again.Error() != err.Error() {
		t.Errorf("memoized rebuild returned a different result: %v", again)
	}
}

func TestCmpConstraintNegation(t *testing.T) {
	x := Lit{class: intLit, isVar: true, v: cfg.Var{Name: "x", Type: cfg.IntType(64)}}
	five := Lit{class: intLit, intVal: big.NewInt(5)}
	ops := []token.Token{token.EQL, token.NEQ, token.LSS, token.LEQ, token.GTR, token.GEQ}
	for _, op := range ops {
		plain := cmpConstraint(op, x, five, false, false)
		negated := cmpConstraint(op, x, five, false, true)
		if !plain.Negate().Equal(negated) {
			t.Errorf("%s: negated form %s is not the negation of %s", op, negated, plain)
		}
	}
}

func TestInitIntrinsics(t *testing.T) {
	pkg := buildSSA(t, `
package p

var data [8]int64
var tab [4]int64

func ZeroInit(p *[8]int64)
func IntInit(p *[4]int64, v int64)

func setup() {
	ZeroInit(&data)
	IntInit(&tab, 5)
}
`)
	params := config.Default()
	params.Intrinsics.ZeroInit = []string{"p.ZeroInit"}
	params.Intrinsics.IntInit = []string{"p.IntInit"}
	m := newTestManager(pkg, params)
	g := mustCFG(t, m, pkg.Func("setup"))

	var inits []cfg.ArrayInit
	for _, s := range allStmts(g) {
		if in, ok := s.(cfg.ArrayInit); ok {
			inits = append(inits, in)
		}
	}
	if len(inits) != 2 {
		t.Fatalf("got %d array initializations, want 2:\n%s", len(inits), g)
	}
	for _, in := range inits {
		if !in.Lo.IsConst() || in.Lo.Const().Int64() != 0 {
			t.Errorf("init %s starts at %s, want 0", in, in.Lo)
		}
		if in.ElemSize != 8 {
			t.Errorf("init %s element size = %d, want 8", in, in.ElemSize)
		}
		if !in.Hi.IsConst() || !in.Val.IsConst() {
			t.Fatalf("init %s has non-constant bound or value", in)
		}
		switch in.Hi.Const().Int64() {
		case 56: // 8 cells of 8 bytes
			if in.Val.Const().Int64() != 0 {
				t.Errorf("zero initializer wrote %s, want 0", in.Val)
			}
		case 24: // 4 cells of 8 bytes
			if in.Val.Const().Int64() != 5 {
				t.Errorf("int initializer wrote %s, want 5", in.Val)
			}
		default:
			t.Errorf("init %s has unexpected upper bound %s", in, in.Hi)
		}
	}
	if inits[0].Arr == inits[1].Arr {
		t.Errorf("both initializers target %s, want distinct regions", inits[0].Arr)
	}
}

func TestCopyBuiltinAssignsRegions(t *testing.T) {
	pkg := buildSSA(t, `
package p

func f(n int64) int64 {
	var a [4]int64
	var b [4]int64
	b[0] = n
	copy(a[:], b[:])
	return a[1]
}
`)
	m := newTestManager(pkg, config.Default())
	g := mustCFG(t, m, pkg.Func("f"))

	var assigns []cfg.ArrayAssign
	for _, s := range allStmts(g) {
		if a, ok := s.(cfg.ArrayAssign); ok {
			assigns = append(assigns, a)
		}
	}
	if len(assigns) != 1 {
		t.Fatalf("got %d array assignments, want 1:\n%s", len(assigns), g)
	}
	cp := assigns[0]
	if !strings.HasPrefix(cp.Dst.Name, "@reg_") || !strings.HasPrefix(cp.Src.Name, "@reg_") {
		t.Errorf("copy lowered to %s := %s, want region variables on both sides", cp.Dst, cp.Src)
	}
	if cp.Dst == cp.Src {
		t.Errorf("copy assigns region %s to itself", cp.Dst)
	}
}

func TestBoolSingletonStore(t *testing.T) {
	pkg := buildSSA(t, `
package p

var flag bool

func set() { flag = true }

func get() bool { return flag }
`)
	m := newTestManager(pkg, config.Default())
	g := mustCFG(t, m, pkg.Func("set"))

	var sets []cfg.BoolAssignCst
	for _, s := range allStmts(g) {
		if a, ok := s.(cfg.BoolAssignCst); ok && a.Dst.Name == "p.flag" {
			sets = append(sets, a)
		}
	}
	if len(sets) != 1 {
		t.Fatalf("got %d boolean assignments to the singleton, want 1:\n%s", len(sets), g)
	}
	if sets[0].Dst.Type.Kind != cfg.BoolKind {
		t.Errorf("singleton variable typed %s, want bool", sets[0].Dst.Type)
	}
	if !sets[0].Cst.IsTrue() {
		t.Errorf("stored constraint %s, want true", sets[0].Cst)
	}
}

func TestUntrackedParamKeepsArity(t *testing.T) {
	pkg := buildSSA(t, `
package p

func callee(f float64, x int64) int64 {
	return x
}

func caller(x int64) int64 {
	return callee(1.0, x)
}
`)
	m := newTestManager(pkg, config.Default())
	gcaller := mustCFG(t, m, pkg.Func("caller"))
	gcallee := mustCFG(t, m, pkg.Func("callee"))

	decl := gcallee.Decl()
	if decl == nil {
		t.Fatal("interprocedural translation produced no declaration")
	}
	var call cfg.Call
	for _, s := range allStmts(gcaller) {
		if c, ok := s.(cfg.Call); ok && c.Callee == "p.callee" {
			call = c
		}
	}
	if call.Callee == "" {
		t.Fatalf("no call to p.callee found:\n%s", gcaller)
	}
	if len(call.Inputs) != len(decl.Inputs) {
		t.Fatalf("call arity %d != declaration arity %d; call inputs %v, decl inputs %v",
			len(call.Inputs), len(decl.Inputs), call.Inputs, decl.Inputs)
	}
	if decl.Inputs[1].Name != "x" {
		t.Errorf("second declared input = %s, want the tracked formal x", decl.Inputs[1])
	}
	ph := decl.Inputs[0]
	if !strings.HasPrefix(ph.Name, "@v") || ph.Type.Kind != cfg.IntKind {
		t.Errorf("untracked formal declared as %s typed %s, want a fresh integer placeholder", ph, ph.Type)
	}
}

func TestUnclassifiableStoreHavocsRegion(t *testing.T) {
	pkg := buildSSA(t, `
package p

var arr [4]uint64

func f(i int) { arr[i] = 1 << 63 }
`)
	params := config.Default()
	params.EnableBignums = false
	params.IncludeUselessHavoc = false
	m := newTestManager(pkg, params)
	g := mustCFG(t, m, pkg.Func("f"))

	havocked := false
	for _, s := range allStmts(g) {
		switch s := s.(type) {
		case cfg.ArrayStore:
			t.Errorf("store of an unclassifiable value emitted %s", s)
		case cfg.Havoc:
			if s.V.Type.IsArray() {
				havocked = true
			}
		}
	}
	if !havocked {
		t.Errorf("store of an unclassifiable value left the region constrained:\n%s", g)
	}
}
