// Package heap partitions memory into regions for the translation. A
// region stands for a set of memory cells that the analysis treats as
// one array; the translation maps loads and stores through regions
// instead of raw pointers.
//
// The package ships one built-in abstraction, AllocSites, which assigns
// one region per allocation site. Users with a real pointer analysis
// can plug in their own Abstraction.
package heap

import (
	"fmt"

	"golang.org/x/tools/go/ssa"
)

// RegionKind classifies the cells a region may hold. Regions of unknown
// kind exist but the translation does not emit array statements for
// them.
type RegionKind uint8

const (
	Unknown RegionKind = iota
	Int
	Bool
	Ptr
)

func (k RegionKind) String() string {
	switch k {
	case Unknown:
		return "unknown"
	case Int:
		return "int"
	case Bool:
		return "bool"
	case Ptr:
		return "ptr"
	default:
		panic(fmt.Sprintf("unhandled region kind %d", k))
	}
}

// Region is a set of memory cells. The zero value is the unknown
// region, which tracks nothing.
type Region struct {
	id        int
	kind      RegionKind
	width     int
	singleton ssa.Value
}

// NewRegion returns a region with the given identity and contents.
// Width is the cell width in bits and only meaningful for Int regions.
func NewRegion(id int, kind RegionKind, width int) Region {
	return Region{id: id, kind: kind, width: width}
}

// NewSingletonRegion returns a region known to contain exactly one
// cell, the one named by v.
func NewSingletonRegion(id int, kind RegionKind, width int, v ssa.Value) Region {
	return Region{id: id, kind: kind, width: width, singleton: v}
}

// IsUnknown reports whether r is the unknown region.
func (r Region) IsUnknown() bool { return r.kind == Unknown && r.id == 0 }

// ID returns the region identity, unique within one abstraction.
func (r Region) ID() int { return r.id }

// Kind returns the kind of cell the region holds.
func (r Region) Kind() RegionKind { return r.kind }

// Width returns the cell width in bits for Int regions.
func (r Region) Width() int { return r.width }

// Singleton returns the single cell of the region, or nil when the
// region may cover several cells.
func (r Region) Singleton() ssa.Value { return r.singleton }

func (r Region) String() string {
	if r.IsUnknown() {
		return "region(?)"
	}
	return fmt.Sprintf("region(%d,%s)", r.id, r.kind)
}

// Abstraction answers region queries about a program. All slice results
// must be duplicate-free and in a deterministic order; the translation
// relies on that to produce stable output.
type Abstraction interface {
	// Region maps a pointer value used inside fn to its region. The
	// unknown region means the value is untracked.
	Region(fn *ssa.Function, ptr ssa.Value) Region

	// OnlyReadRegions returns the regions fn reads but never writes.
	OnlyReadRegions(fn *ssa.Function) []Region
	// ModifiedRegions returns the regions fn may write.
	ModifiedRegions(fn *ssa.Function) []Region
	// NewRegions returns the regions created by fn, i.e. those that do
	// not exist before it is called.
	NewRegions(fn *ssa.Function) []Region

	// The call-site variants answer the same questions about one call.
	OnlyReadRegionsOfCall(call *ssa.Call) []Region
	ModifiedRegionsOfCall(call *ssa.Call) []Region
	NewRegionsOfCall(call *ssa.Call) []Region
}
