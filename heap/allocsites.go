package heap

import (
	"go/token"
	"go/types"
	"sort"

	"golang.org/x/exp/typeparams"
	"golang.org/x/tools/go/ssa"
)

// AllocSites is the built-in abstraction. It assigns one region per
// allocation site (globals and local allocs), resolves pointers by
// walking address computations back to their site, and summarizes
// read/modified/new regions per function with a fixed point over
// static call edges.
//
// It is deliberately field-insensitive: every cell reachable from one
// site shares the site's region. Pointers whose base cannot be
// resolved, phi-merged pointers included, map to the unknown region.
type AllocSites struct {
	sizes   types.Sizes
	regions map[ssa.Value]Region

	read     map[*ssa.Function][]Region
	modified map[*ssa.Function][]Region
	created  map[*ssa.Function][]Region
}

var _ Abstraction = (*AllocSites)(nil)

// NewAllocSites builds the abstraction for all functions of prog.
func NewAllocSites(prog *ssa.Program, sizes types.Sizes) *AllocSites {
	h := &AllocSites{
		sizes:    sizes,
		regions:  map[ssa.Value]Region{},
		read:     map[*ssa.Function][]Region{},
		modified: map[*ssa.Function][]Region{},
		created:  map[*ssa.Function][]Region{},
	}

	pkgs := prog.AllPackages()
	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].Pkg.Path() < pkgs[j].Pkg.Path() })

	var fns []*ssa.Function
	var globals []*ssa.Global
	for _, pkg := range pkgs {
		names := make([]string, 0, len(pkg.Members))
		for name := range pkg.Members {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			switch m := pkg.Members[name].(type) {
			case *ssa.Global:
				globals = append(globals, m)
			case *ssa.Function:
				fns = append(fns, m)
			}
		}
	}

	escapes := globalEscapes(fns)
	id := 1
	for _, g := range globals {
		h.regions[g] = h.siteRegion(id, g, g.Type(), !escapes[g])
		id++
	}
	for _, fn := range fns {
		for _, b := range fn.Blocks {
			for _, instr := range b.Instrs {
				if a, ok := instr.(*ssa.Alloc); ok {
					h.regions[a] = h.siteRegion(id, nil, a.Type(), false)
					id++
				}
			}
		}
	}

	h.summarize(fns)
	return h
}

// siteRegion classifies the cells behind a site of pointer type t.
func (h *AllocSites) siteRegion(id int, singleton ssa.Value, t types.Type, isSingleton bool) Region {
	elem := t.Underlying().(*types.Pointer).Elem()
	kind, width := h.cellKind(elem)
	_, scalar := elem.Underlying().(*types.Basic)
	if isSingleton && scalar && kind != Unknown {
		return NewSingletonRegion(id, kind, width, singleton)
	}
	return NewRegion(id, kind, width)
}

// cellKind maps an element type to the kind of cell the region holds,
// looking through arrays and slices.
func (h *AllocSites) cellKind(t types.Type) (RegionKind, int) {
	switch t := t.Underlying().(type) {
	case *types.Basic:
		switch {
		case t.Info()&types.IsBoolean != 0:
			return Bool, 1
		case t.Info()&types.IsInteger != 0:
			return Int, int(h.sizes.Sizeof(t)) * 8
		}
	case *types.Pointer:
		return Ptr, 0
	case *types.Array:
		return h.cellKind(t.Elem())
	case *types.Slice:
		return h.cellKind(t.Elem())
	}
	return Unknown, 0
}

// globalEscapes reports, per global, whether its address is used for
// anything other than a direct load or store. Globals do not track
// their referrers, so this scans every instruction's operands.
func globalEscapes(fns []*ssa.Function) map[*ssa.Global]bool {
	escapes := map[*ssa.Global]bool{}
	for _, fn := range fns {
		for _, b := range fn.Blocks {
			for _, instr := range b.Instrs {
				for _, op := range instr.Operands(nil) {
					g, ok := (*op).(*ssa.Global)
					if !ok {
						continue
					}
					switch instr := instr.(type) {
					case *ssa.UnOp:
						if instr.Op != token.MUL {
							escapes[g] = true
						}
					case *ssa.Store:
						if instr.Addr != g || instr.Val == g {
							escapes[g] = true
						}
					default:
						escapes[g] = true
					}
				}
			}
		}
	}
	return escapes
}

// Region resolves ptr to its allocation-site region by walking address
// computations backwards.
func (h *AllocSites) Region(fn *ssa.Function, ptr ssa.Value) Region {
	for {
		if r, ok := h.regions[ptr]; ok {
			return r
		}
		switch v := ptr.(type) {
		case *ssa.FieldAddr:
			ptr = v.X
		case *ssa.IndexAddr:
			ptr = v.X
		case *ssa.Slice:
			ptr = v.X
		case *ssa.Convert:
			if !isPointerLike(v.X.Type()) {
				return Region{}
			}
			ptr = v.X
		case *ssa.ChangeType:
			ptr = v.X
		default:
			return Region{}
		}
	}
}

func isPointerLike(t types.Type) bool {
	if typeparams.IsTypeParam(t) {
		return false
	}
	switch t.Underlying().(type) {
	case *types.Pointer, *types.Slice:
		return true
	}
	return false
}

// summarize computes per-function read, modified and new region sets,
// closing them over static call edges until stable.
func (h *AllocSites) summarize(fns []*ssa.Function) {
	read := map[*ssa.Function]map[int]Region{}
	mod := map[*ssa.Function]map[int]Region{}
	created := map[*ssa.Function]map[int]Region{}
	calls := map[*ssa.Function][]*ssa.Function{}

	for _, fn := range fns {
		read[fn] = map[int]Region{}
		mod[fn] = map[int]Region{}
		created[fn] = map[int]Region{}
		for _, b := range fn.Blocks {
			for _, instr := range b.Instrs {
				switch instr := instr.(type) {
				case *ssa.UnOp:
					if instr.Op == token.MUL {
						if r := h.Region(fn, instr.X); !r.IsUnknown() {
							read[fn][r.ID()] = r
						}
					}
				case *ssa.Store:
					if r := h.Region(fn, instr.Addr); !r.IsUnknown() {
						mod[fn][r.ID()] = r
					}
				case *ssa.Alloc:
					if r := h.Region(fn, instr); !r.IsUnknown() {
						created[fn][r.ID()] = r
					}
				case *ssa.Call:
					if callee := instr.Common().StaticCallee(); callee != nil {
						calls[fn] = append(calls[fn], callee)
					}
				}
			}
		}
	}

	for changed := true; changed; {
		changed = false
		for _, fn := range fns {
			for _, callee := range calls[fn] {
				for id, r := range read[callee] {
					if _, ok := read[fn][id]; !ok {
						read[fn][id] = r
						changed = true
					}
				}
				for id, r := range mod[callee] {
					if _, ok := mod[fn][id]; !ok {
						mod[fn][id] = r
						changed = true
					}
				}
				// Regions a callee creates are modified, not new, from
				// the caller's point of view.
				for id, r := range created[callee] {
					if _, ok := mod[fn][id]; !ok {
						mod[fn][id] = r
						changed = true
					}
				}
			}
		}
	}

	for _, fn := range fns {
		h.read[fn] = sortRegions(read[fn])
		h.modified[fn] = sortRegions(mod[fn])
		h.created[fn] = sortRegions(created[fn])
	}
}

func sortRegions(m map[int]Region) []Region {
	out := make([]Region, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// OnlyReadRegions returns the regions fn reads but never writes.
func (h *AllocSites) OnlyReadRegions(fn *ssa.Function) []Region {
	written := map[int]bool{}
	for _, r := range h.modified[fn] {
		written[r.ID()] = true
	}
	var out []Region
	for _, r := range h.read[fn] {
		if !written[r.ID()] {
			out = append(out, r)
		}
	}
	return out
}

// ModifiedRegions returns the regions fn may write, directly or through
// callees.
func (h *AllocSites) ModifiedRegions(fn *ssa.Function) []Region {
	return h.modified[fn]
}

// NewRegions returns the regions allocated inside fn itself.
func (h *AllocSites) NewRegions(fn *ssa.Function) []Region {
	return h.created[fn]
}

// OnlyReadRegionsOfCall returns the callee's read-only regions for a
// call with a static callee, and nothing otherwise.
func (h *AllocSites) OnlyReadRegionsOfCall(call *ssa.Call) []Region {
	if callee := call.Common().StaticCallee(); callee != nil {
		return h.OnlyReadRegions(callee)
	}
	return nil
}

// ModifiedRegionsOfCall returns the callee's modified regions for a
// call with a static callee, and nothing otherwise.
func (h *AllocSites) ModifiedRegionsOfCall(call *ssa.Call) []Region {
	if callee := call.Common().StaticCallee(); callee != nil {
		return h.ModifiedRegions(callee)
	}
	return nil
}

// NewRegionsOfCall returns the callee's new regions for a call with a
// static callee, and nothing otherwise.
func (h *AllocSites) NewRegionsOfCall(call *ssa.Call) []Region {
	if callee := call.Common().StaticCallee(); callee != nil {
		return h.NewRegions(callee)
	}
	return nil
}
