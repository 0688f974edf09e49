package translate

import (
	"go/types"

	"golang.org/x/tools/go/ssa"

	"github.com/limpet-analysis/limpet/cfg"
	"github.com/limpet-analysis/limpet/heap"
)

// declare attaches the interprocedural function declaration: inputs are
// the tracked formal parameters followed by read-only and modified
// regions, outputs are the return variable followed by modified and new
// regions. Modified regions get a fresh input incarnation copied onto
// the persistent variable at entry, so the persistent variable is the
// one that accumulates writes and is declared as the output.
func (b *Builder) declare(g *cfg.Graph, t *instrTranslator) {
	entry := g.Block(g.Entry())
	var entryStmts []cfg.Stmt

	ret := b.retVal
	if ret.IsZero() {
		// a function that never returns still declares its result so
		// call arity matches
		if results := b.fn.Signature.Results(); results.Len() == 1 {
			if v, ok := t.varForType(results.At(0).Type()); ok {
				ret = v
			}
		}
	}

	var inputs []cfg.Var
	for _, p := range b.fn.Params {
		l, ok := t.lf.classify(p)
		if !ok {
			// an untracked formal still takes an input slot, matching
			// the placeholder normalizeParam passes at every call site
			in, okv := t.lf.freshVarFor(p)
			if !okv {
				in = t.vfac().freshInt(64)
			}
			inputs = append(inputs, in)
			continue
		}
		v := l.Var()
		if v == ret {
			// a parameter may not collide with the return variable;
			// declare a renamed input and copy it over at entry
			in := t.vfac().freshFrom(v)
			entryStmts = append(entryStmts, copyStmt(v, in))
			inputs = append(inputs, in)
			continue
		}
		inputs = append(inputs, v)
	}

	var outputs []cfg.Var
	if !ret.IsZero() {
		outputs = append(outputs, ret)
	}

	if b.params.TrackMemory() {
		news := b.heap.NewRegions(b.fn)
		mods := filterModified(b.heap.ModifiedRegions(b.fn), news)
		for _, r := range b.heap.OnlyReadRegions(b.fn) {
			if regionTracked(r) {
				inputs = append(inputs, t.regionUseVar(r))
			}
		}
		for _, r := range mods {
			if !regionTracked(r) {
				continue
			}
			persistent := t.regionUseVar(r)
			in := t.vfac().freshFrom(persistent)
			entryStmts = append(entryStmts, copyStmt(persistent, in))
			inputs = append(inputs, in)
			outputs = append(outputs, persistent)
		}
		for _, r := range news {
			if regionTracked(r) {
				outputs = append(outputs, t.regionUseVar(r))
			}
		}
	}

	// Prepend keeps order when walked backwards.
	for i := len(entryStmts) - 1; i >= 0; i-- {
		entry.Prepend(entryStmts[i])
	}
	shiftEntryRefs(t, entry, len(entryStmts))

	seen := map[cfg.Var]bool{}
	for _, v := range inputs {
		seen[v] = true
	}
	for _, v := range outputs {
		if seen[v] {
			fatalf("declaration input and output sets intersect at %s", v.Name)
		}
	}

	g.SetDecl(&cfg.FuncDecl{Name: b.fn.String(), Inputs: inputs, Outputs: outputs})
}

// shiftEntryRefs moves recorded reverse-map references after n
// statements were prepended to the entry block; their indexes point at
// the wrong statements otherwise.
func shiftEntryRefs(t *instrTranslator, entry *cfg.Block, n int) {
	if n == 0 {
		return
	}
	type moved struct {
		ref   StmtRef
		instr ssa.Instruction
	}
	var ms []moved
	for ref, instr := range t.revMap {
		if ref.Block == entry {
			ms = append(ms, moved{ref, instr})
		}
	}
	for _, m := range ms {
		delete(t.revMap, m.ref)
	}
	for _, m := range ms {
		t.revMap[StmtRef{Block: entry, Index: m.ref.Index + n}] = m.instr
	}
}

func regionTracked(r heap.Region) bool {
	return r.Kind() == heap.Bool || r.Kind() == heap.Int
}

// copyStmt emits dst := src with the statement variant matching the
// variable class.
func copyStmt(dst, src cfg.Var) cfg.Stmt {
	switch {
	case dst.Type.IsArray():
		return cfg.ArrayAssign{Dst: dst, Src: src}
	case dst.Type.Kind == cfg.BoolKind:
		return cfg.BoolAssignVar{Dst: dst, Src: src}
	case dst.Type.Kind == cfg.PointerKind:
		return cfg.PtrAssign{Dst: dst, Src: src, Offset: cfg.Int64Expr(0)}
	default:
		return cfg.Assign{Dst: dst, Src: cfg.VarExpr(src)}
	}
}

// varForType mints a variable for a declared result type.
func (t *instrTranslator) varForType(typ types.Type) (cfg.Var, bool) {
	switch {
	case isBool(typ):
		return t.vfac().freshBool(), true
	case isInteger(typ):
		return t.vfac().freshInt(typeWidth(t.sizes, typ)), true
	case isPointer(typ):
		if !t.params.TrackPointers() {
			return cfg.Var{}, false
		}
		return t.vfac().freshPointer(), true
	}
	return cfg.Var{}, false
}
