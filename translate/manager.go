// Package translate lowers SSA-form functions into the analysis graph
// language of package cfg. The translation is deliberately lossy:
// anything it cannot model precisely becomes a havoc, so the produced
// graph is always sound for what it does model.
package translate

import (
	"go/token"
	"go/types"

	"github.com/go-logr/logr"
	"golang.org/x/tools/go/ssa"

	"github.com/limpet-analysis/limpet/cfg"
	"github.com/limpet-analysis/limpet/config"
	"github.com/limpet-analysis/limpet/heap"
)

// Manager builds and memoizes one graph per function. Variable names
// are drawn from a single module-wide factory, so identifiers never
// repeat across functions. Translation is single-threaded; the manager
// is not safe for concurrent use.
type Manager struct {
	params config.Params
	heap   heap.Abstraction
	sizes  types.Sizes
	fset   *token.FileSet
	log    logr.Logger

	vfac     *varFactory
	objectID int
	builders map[*ssa.Function]*Builder
}

// NewManager returns a manager for one module's functions. The heap
// abstraction and sizes must describe the same program the functions
// come from.
func NewManager(params config.Params, h heap.Abstraction, sizes types.Sizes,
	fset *token.FileSet, log logr.Logger) *Manager {
	return &Manager{
		params:   params,
		heap:     h,
		sizes:    sizes,
		fset:     fset,
		log:      log,
		vfac:     newVarFactory(),
		builders: map[*ssa.Function]*Builder{},
	}
}

// CFG returns the graph for fn, building it on first request.
func (m *Manager) CFG(fn *ssa.Function) (*cfg.Graph, error) {
	return m.builder(fn).Build()
}

func (m *Manager) builder(fn *ssa.Function) *Builder {
	b, ok := m.builders[fn]
	if !ok {
		b = newBuilder(&m.params, m.heap, m.sizes, m.fset, m.log, m.vfac, &m.objectID, fn)
		m.builders[fn] = b
	}
	return b
}

// InstructionFor resolves an array statement of fn's graph back to the
// instruction it lowers. The map is empty when simplification is on.
func (m *Manager) InstructionFor(fn *ssa.Function, ref StmtRef) (ssa.Instruction, bool) {
	b, ok := m.builders[fn]
	if !ok {
		return nil, false
	}
	return b.InstructionFor(ref)
}
