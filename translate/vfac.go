package translate

import (
	"fmt"

	"github.com/limpet-analysis/limpet/cfg"
	"github.com/limpet-analysis/limpet/heap"
)

// varFactory mints variables. One factory serves the whole module so
// that identifiers are never reused across functions; translation is
// single-threaded, so no locking.
type varFactory struct {
	next    int
	regions map[int]cfg.Var
}

func newVarFactory() *varFactory {
	return &varFactory{regions: map[int]cfg.Var{}}
}

func (f *varFactory) fresh(t cfg.Type) cfg.Var {
	f.next++
	return cfg.Var{Name: fmt.Sprintf("@v%d", f.next), Type: t}
}

func (f *varFactory) freshBool() cfg.Var         { return f.fresh(cfg.BoolType()) }
func (f *varFactory) freshInt(width int) cfg.Var { return f.fresh(cfg.IntType(width)) }
func (f *varFactory) freshPointer() cfg.Var      { return f.fresh(cfg.PointerType()) }

// freshFrom mints a new variable of the same type as v.
func (f *varFactory) freshFrom(v cfg.Var) cfg.Var { return f.fresh(v.Type) }

// regionVar returns the persistent variable standing for a region's
// array. The same region always maps to the same variable, module-wide.
func (f *varFactory) regionVar(r heap.Region) cfg.Var {
	if v, ok := f.regions[r.ID()]; ok {
		return v
	}
	var t cfg.Type
	switch r.Kind() {
	case heap.Bool:
		t = cfg.BoolArrayType()
	case heap.Int:
		t = cfg.IntArrayType(r.Width())
	case heap.Ptr:
		t = cfg.PtrArrayType()
	default:
		panic(fmt.Sprintf("region variable for unknown region %v", r))
	}
	v := cfg.Var{Name: fmt.Sprintf("@reg_%d", r.ID()), Type: t}
	f.regions[r.ID()] = v
	return v
}
