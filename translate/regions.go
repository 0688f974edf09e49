package translate

import (
	"golang.org/x/tools/go/ssa"

	"github.com/limpet-analysis/limpet/cfg"
	"github.com/limpet-analysis/limpet/config"
	"github.com/limpet-analysis/limpet/heap"
)

// regionBinder restricts the heap abstraction's answers to the regions
// the array model can express and resolves region variables.
type regionBinder struct {
	params *config.Params
	heap   heap.Abstraction
	lf     *litFactory
	vfac   *varFactory
}

// regionOf maps a pointer value to its region, restricted to boolean
// and integer element kinds. Pointer-typed regions are excluded from
// the array model; memory holding pointers goes through pointer
// load/store statements instead.
func (rb *regionBinder) regionOf(fn *ssa.Function, ptr ssa.Value) heap.Region {
	r := rb.heap.Region(fn, ptr)
	if r.Kind() != heap.Bool && r.Kind() != heap.Int {
		return heap.Region{}
	}
	return r
}

// singleton returns the unique scalar a region aliases, when singleton
// lowering is enabled.
func (rb *regionBinder) singleton(r heap.Region) ssa.Value {
	if !rb.params.LowerSingletonAliases {
		return nil
	}
	return r.Singleton()
}

// singletonVar returns the scalar variable a singleton region is
// promoted to.
func (rb *regionBinder) singletonVar(v ssa.Value) cfg.Var {
	elem := pointee(v)
	switch {
	case isBool(elem):
		return cfg.Var{Name: valueName(v), Type: cfg.BoolType()}
	case isInteger(elem):
		return cfg.Var{Name: valueName(v), Type: cfg.IntType(typeWidth(rb.lf.sizes, elem))}
	default:
		fatalf("singleton %v is not a scalar", v)
		return cfg.Var{}
	}
}

// filterModified drops from mods every region also listed in news.
// Freshly created regions have no prior value and therefore no input
// incarnation.
func filterModified(mods, news []heap.Region) []heap.Region {
	isNew := map[int]bool{}
	for _, r := range news {
		isNew[r.ID()] = true
	}
	out := make([]heap.Region, 0, len(mods))
	for _, r := range mods {
		if !isNew[r.ID()] {
			out = append(out, r)
		}
	}
	return out
}
