package heap

import (
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"testing"

	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
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

var testSizes = types.SizesFor("gc", "amd64")

const heapSrc = `
package p

var g int32
var arr [4]int32
var escaped int32

func setG(v int32)          { g = v }
func getG() int32           { return g }
func setArr(i int, v int32) { arr[i] = v }
func leak() *int32          { return &escaped }

func mk() *int32 {
	q := new(int32)
	*q = 1
	return q
}

func caller() int32 {
	q := mk()
	return *q + g
}
`

func regionIDs(rs []Region) []int {
	ids := make([]int, len(rs))
	for i, r := range rs {
		ids[i] = r.ID()
	}
	return ids
}

func containsRegion(rs []Region, id int) bool {
	for _, r := range rs {
		if r.ID() == id {
			return true
		}
	}
	return false
}

func TestGlobalRegions(t *testing.T) {
	pkg := buildSSA(t, heapSrc)
	h := NewAllocSites(pkg.Prog, testSizes)

	g := pkg.Members["g"].(*ssa.Global)
	setG := pkg.Func("setG")
	rg := h.Region(setG, g)
	if rg.IsUnknown() {
		t.Fatal("region of g is unknown")
	}
	if rg.Kind() != Int || rg.Width() != 32 {
		t.Errorf("region of g = %v, want int region of width 32", rg)
	}
	if rg.Singleton() != g {
		t.Error("g is a scalar global with direct uses only; its region should be a singleton")
	}

	arr := pkg.Members["arr"].(*ssa.Global)
	ra := h.Region(setG, arr)
	if ra.Kind() != Int || ra.Width() != 32 {
		t.Errorf("region of arr = %v, want int region of width 32", ra)
	}
	if ra.Singleton() != nil {
		t.Error("array global must not be a singleton")
	}

	escaped := pkg.Members["escaped"].(*ssa.Global)
	re := h.Region(setG, escaped)
	if re.Singleton() != nil {
		t.Error("a global whose address escapes must not be a singleton")
	}
}

func TestRegionThroughIndexAddr(t *testing.T) {
	pkg := buildSSA(t, heapSrc)
	h := NewAllocSites(pkg.Prog, testSizes)

	setArr := pkg.Func("setArr")
	arr := pkg.Members["arr"].(*ssa.Global)
	want := h.Region(setArr, arr)

	var store *ssa.Store
	for _, b := range setArr.Blocks {
		for _, instr := range b.Instrs {
			if s, ok := instr.(*ssa.Store); ok {
				store = s
			}
		}
	}
	if store == nil {
		t.Fatal("no store in setArr")
	}
	got := h.Region(setArr, store.Addr)
	if got.ID() != want.ID() {
		t.Errorf("store address resolves to region %v, want %v", got, want)
	}
}

func TestFunctionSummaries(t *testing.T) {
	pkg := buildSSA(t, heapSrc)
	h := NewAllocSites(pkg.Prog, testSizes)

	g := pkg.Members["g"].(*ssa.Global)
	gid := h.Region(pkg.Func("setG"), g).ID()

	if mods := h.ModifiedRegions(pkg.Func("setG")); !containsRegion(mods, gid) {
		t.Errorf("setG modified regions %v missing g's region %d", regionIDs(mods), gid)
	}
	if reads := h.OnlyReadRegions(pkg.Func("getG")); !containsRegion(reads, gid) {
		t.Errorf("getG read-only regions %v missing g's region %d", regionIDs(reads), gid)
	}
	if reads := h.OnlyReadRegions(pkg.Func("setG")); containsRegion(reads, gid) {
		t.Error("a written region appeared in the read-only set")
	}

	mk := pkg.Func("mk")
	news := h.NewRegions(mk)
	if len(news) != 1 {
		t.Fatalf("mk creates %d regions, want 1", len(news))
	}
	if !containsRegion(h.ModifiedRegions(mk), news[0].ID()) {
		t.Error("mk writes its allocation; the new region must also be modified")
	}

	// created regions become modified, not new, from the caller
	caller := pkg.Func("caller")
	if containsRegion(h.NewRegions(caller), news[0].ID()) {
		t.Error("callee's new region leaked into caller's new set")
	}
	if !containsRegion(h.ModifiedRegions(caller), news[0].ID()) {
		t.Error("callee's new region missing from caller's modified set")
	}
	if !containsRegion(h.OnlyReadRegions(caller), gid) {
		t.Errorf("caller read-only regions %v missing g's region %d", regionIDs(h.OnlyReadRegions(caller)), gid)
	}
}

func TestSummariesAreOrdered(t *testing.T) {
	pkg := buildSSA(t, heapSrc)
	h := NewAllocSites(pkg.Prog, testSizes)
	for _, fn := range []string{"setG", "caller", "mk"} {
		mods := h.ModifiedRegions(pkg.Func(fn))
		for i := 1; i < len(mods); i++ {
			if mods[i-1].ID() >= mods[i].ID() {
				t.Errorf("%s modified regions not strictly ordered: %v", fn, regionIDs(mods))
			}
		}
	}
}
