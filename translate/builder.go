package translate

import (
	"fmt"
	"go/constant"
	"go/token"
	"go/types"

	"github.com/go-logr/logr"
	"golang.org/x/tools/go/ssa"

	"github.com/limpet-analysis/limpet/cfg"
	"github.com/limpet-analysis/limpet/config"
	"github.com/limpet-analysis/limpet/heap"
)

// Builder translates one source function into a graph. Builders are
// created by a Manager and build lazily, exactly once.
type Builder struct {
	params *config.Params
	sizes  types.Sizes
	fset   *token.FileSet
	log    logr.Logger
	heap   heap.Abstraction
	vfac   *varFactory
	fn     *ssa.Function

	objectID *int

	built  bool
	graph  *cfg.Graph
	err    error
	revMap map[StmtRef]ssa.Instruction

	labels map[*ssa.BasicBlock]cfg.Label
	edgeID int

	retBlock *cfg.Block
	retVal   cfg.Var
}

func newBuilder(params *config.Params, h heap.Abstraction, sizes types.Sizes,
	fset *token.FileSet, log logr.Logger, vfac *varFactory, objectID *int,
	fn *ssa.Function) *Builder {
	return &Builder{
		params:   params,
		sizes:    sizes,
		fset:     fset,
		log:      log,
		heap:     h,
		vfac:     vfac,
		objectID: objectID,
		fn:       fn,
		revMap:   map[StmtRef]ssa.Instruction{},
		labels:   map[*ssa.BasicBlock]cfg.Label{},
	}
}

// Build translates the function. The graph is built once; later calls
// return the memoized result. All fatal translation failures surface as
// an error, never as a panic.
func (b *Builder) Build() (g *cfg.Graph, err error) {
	if b.built {
		return b.graph, b.err
	}
	b.built = true
	defer func() {
		if r := recover(); r != nil {
			f, ok := r.(fatalError)
			if !ok {
				panic(r)
			}
			b.err = fmt.Errorf("translating %s: %s", b.fn.String(), f.msg)
			b.graph, g, err = nil, nil, b.err
		}
	}()
	b.graph = b.build()
	return b.graph, nil
}

// InstructionFor resolves an emitted array statement back to its
// source instruction. Empty when simplification rewrote the graph.
func (b *Builder) InstructionFor(ref StmtRef) (ssa.Instruction, bool) {
	instr, ok := b.revMap[ref]
	return instr, ok
}

func (b *Builder) build() *cfg.Graph {
	if len(b.fn.Blocks) == 0 {
		fatalf("function has no body")
	}
	b.checkNames()

	lf := newLitFactory(b.params, b.sizes, b.vfac)
	t := &instrTranslator{
		params:      b.params,
		sizes:       b.sizes,
		fset:        b.fset,
		log:         b.log,
		lf:          lf,
		rb:          &regionBinder{params: b.params, heap: b.heap, lf: lf, vfac: b.vfac},
		fn:          b.fn,
		initialized: map[int]bool{},
		revMap:      b.revMap,
		objectID:    b.objectID,
	}

	for _, src := range b.fn.Blocks {
		b.labels[src] = cfg.Label{Name: blockName(src), ID: src.Index}
	}
	g := cfg.New(b.labels[b.fn.Blocks[0]])
	for _, src := range b.fn.Blocks[1:] {
		g.AddBlock(b.labels[src])
	}

	for _, src := range b.fn.Blocks {
		bb := g.Block(b.labels[src])
		for _, instr := range src.Instrs {
			t.translate(bb, instr)
		}
		b.terminator(g, t, bb, src)
	}

	b.discoverExit(g)

	if t.sawFail && b.fn.Name() == "main" && b.retBlock != nil {
		// a fail intrinsic makes the program's exit an error state
		b.retBlock.Append(cfg.Assert{Cst: cfg.False()})
	}

	if b.params.Interprocedural {
		b.declare(g, t)
	}
	if b.params.Simplify {
		g.Simplify()
	}
	return g
}

// checkNames enforces the precondition that every defined value has a
// name. The SSA construction names registers itself, so a violation
// means the input was assembled by hand, skipping that pass.
func (b *Builder) checkNames() {
	for _, p := range b.fn.Params {
		if p.Name() == "" {
			fatalf("parameter without a name; run the naming pass first")
		}
	}
	for _, blk := range b.fn.Blocks {
		for _, instr := range blk.Instrs {
			if v, ok := instr.(ssa.Value); ok && v.Name() == "" {
				fatalf("value without a name; run the naming pass first")
			}
		}
	}
}

func blockName(b *ssa.BasicBlock) string {
	if b.Comment != "" {
		return fmt.Sprintf("%s.%d", b.Comment, b.Index)
	}
	return fmt.Sprintf("bb.%d", b.Index)
}

// terminator wires the block's outgoing edges and runs phi elimination
// once per successor, inserting assignments into the edge block when
// one was materialized.
func (b *Builder) terminator(g *cfg.Graph, t *instrTranslator, bb *cfg.Block, src *ssa.BasicBlock) {
	switch term := src.Instrs[len(src.Instrs)-1].(type) {
	case *ssa.Return:
		if b.retBlock != nil {
			fatalf("more than one return block; exit canonicalization is a precondition")
		}
		b.retBlock = bb
		g.SetExit(bb.Label)
		if b.params.Interprocedural && len(term.Results) == 1 {
			if _, ok := t.lf.classify(term.Results[0]); ok {
				v := t.normalizeParam(bb, term.Results[0])
				bb.Append(cfg.Return{V: v})
				b.retVal = v
			}
		}
	case *ssa.If:
		if len(src.Succs) == 2 && src.Succs[0] == src.Succs[1] {
			// both arms land in the same block; no condition to assume
			g.AddEdge(bb.Label, b.labels[src.Succs[0]])
			t.elimPhis(bb, src, src.Succs[0])
			return
		}
		for i, dst := range src.Succs {
			edge := b.execEdge(g, t, bb, src, dst, i == 1, term.Cond)
			t.elimPhis(edge, src, dst)
		}
	case *ssa.Jump:
		dst := src.Succs[0]
		g.AddEdge(bb.Label, b.labels[dst])
		t.elimPhis(bb, src, dst)
	case *ssa.Panic:
		bb.Append(cfg.Unreachable{})
	default:
		// conservative fallback: plain edges to every successor
		for _, dst := range src.Succs {
			g.AddEdge(bb.Label, b.labels[dst])
			t.elimPhis(bb, src, dst)
		}
	}
}

// execEdge materializes the synthetic block on a conditional edge and
// populates it with the assume derived from the branch condition.
// Returns the edge block, which is also the phi insertion point.
func (b *Builder) execEdge(g *cfg.Graph, t *instrTranslator, bb *cfg.Block,
	src, dst *ssa.BasicBlock, negated bool, cond ssa.Value) *cfg.Block {
	b.edgeID++
	mid := cfg.Label{
		Name: fmt.Sprintf("__@%s_to_%s", blockName(src), blockName(dst)),
		ID:   len(b.fn.Blocks) + b.edgeID,
	}
	edge := g.InsertBetween(bb.Label, b.labels[dst], mid)

	if c, ok := cond.(*ssa.Const); ok {
		// a constant condition makes one arm dead
		if boolConst(c) == negated {
			edge.Append(cfg.Unreachable{})
		}
		return edge
	}

	lowerAsBool := false
	if cmp, ok := cond.(*ssa.BinOp); ok && isComparison(cmp.Op) {
		xt := cmp.X.Type()
		switch {
		case isBool(xt):
			lowerAsBool = true
		case isInteger(xt):
			xl, okx := t.lf.classify(cmp.X)
			yl, oky := t.lf.classify(cmp.Y)
			if okx && oky {
				edge.Append(cfg.Assume{Cst: cmpConstraint(cmp.Op, xl, yl, isUnsigned(xt), negated)})
			}
		case isPointer(xt) && t.params.TrackPointers():
			xl, okx := t.lf.classify(cmp.X)
			yl, oky := t.lf.classify(cmp.Y)
			if okx && oky {
				if pcst, okc := ptrCmpConstraint(cmp.Op, xl, yl, negated); okc {
					edge.Append(cfg.PtrAssume{Cst: pcst})
				}
			}
		}
		if refs := cond.Referrers(); refs != nil && len(*refs) >= 2 {
			// the comparison is also used as a value; constrain the
			// boolean variable too so both views agree
			lowerAsBool = true
		}
	} else {
		lowerAsBool = true
	}

	if lowerAsBool {
		if l, ok := t.lf.classify(cond); ok && l.IsVar() && l.IsBool() {
			edge.Append(cfg.BoolAssume{V: l.Var(), Negate: negated})
		}
	}
	return edge
}

func boolConst(c *ssa.Const) bool {
	return c.Value != nil && constant.BoolVal(c.Value)
}

// discoverExit finalizes the exit label. The return block wins; failing
// that, an entry-rooted self-loop, then the unique unreachable block,
// then the first successor-less block. With an exit in hand, every
// unreachable sink is wired forward to it so backward analyses can
// reach those blocks.
func (b *Builder) discoverExit(g *cfg.Graph) {
	if _, ok := g.Exit(); !ok {
		b.fallbackExit(g)
	}
	exit, ok := g.Exit()
	if !ok {
		return
	}
	for _, blk := range g.Blocks() {
		if blk.Label == exit || len(g.Succs(blk.Label)) > 0 {
			continue
		}
		for _, s := range blk.Stmts {
			if _, isUnreachable := s.(cfg.Unreachable); isUnreachable {
				g.AddEdge(blk.Label, exit)
				break
			}
		}
	}
}

func (b *Builder) fallbackExit(g *cfg.Graph) {
	// entry: goto loop; loop: goto loop
	entry := g.Entry()
	if succs := g.Succs(entry); len(succs) == 1 {
		loop := succs[0]
		if next := g.Succs(loop); len(next) == 1 && next[0] == loop {
			g.SetExit(loop)
			return
		}
	}
	// the unique block holding an unreachable statement
	var unreach []cfg.Label
	for _, blk := range g.Blocks() {
		for _, s := range blk.Stmts {
			if _, ok := s.(cfg.Unreachable); ok {
				unreach = append(unreach, blk.Label)
				break
			}
		}
	}
	if len(unreach) == 1 {
		g.SetExit(unreach[0])
		return
	}
	// last resort: the first block without successors
	for _, blk := range g.Blocks() {
		if len(g.Succs(blk.Label)) == 0 {
			g.SetExit(blk.Label)
			return
		}
	}
}
