package cfg

import (
	"fmt"
	"sort"
	"strings"
)

// Label identifies a basic block. Labels come in two flavors: one per
// source block, and one per source edge for the synthetic blocks that
// host branch assumptions. Both are plain comparable values; the ID is
// unique within one graph.
type Label struct {
	Name string
	ID   int
}

func (l Label) String() string { return l.Name }

// Block is an ordered sequence of statements with a unique label.
type Block struct {
	Label Label
	Stmts []Stmt
}

// Append adds a statement at the end of the block.
func (b *Block) Append(s Stmt) { b.Stmts = append(b.Stmts, s) }

// Prepend inserts a statement at the front of the block. Used for the
// region input copies that must precede the function body.
func (b *Block) Prepend(s Stmt) {
	b.Stmts = append([]Stmt{s}, b.Stmts...)
}

// Len returns the number of statements.
func (b *Block) Len() int { return len(b.Stmts) }

// FuncDecl is the function declaration record attached to a graph when
// translating interprocedurally. Inputs and Outputs never share a
// variable.
type FuncDecl struct {
	Name    string
	Inputs  []Var
	Outputs []Var
}

func (d *FuncDecl) String() string {
	ins := make([]string, len(d.Inputs))
	for i, v := range d.Inputs {
		ins[i] = fmt.Sprintf("%s:%s", v.Name, v.Type)
	}
	outs := make([]string, len(d.Outputs))
	for i, v := range d.Outputs {
		outs[i] = fmt.Sprintf("%s:%s", v.Name, v.Type)
	}
	return fmt.Sprintf("%s(%s) -> (%s)", d.Name, strings.Join(ins, ", "), strings.Join(outs, ", "))
}

// Graph is the produced control-flow graph. Blocks live in an arena
// indexed by label; adjacency is stored as index-based lists, never as
// pointers between blocks.
type Graph struct {
	entry   Label
	exit    Label
	hasExit bool
	decl    *FuncDecl

	blocks []*Block
	index  map[Label]int
	succs  [][]int
	preds  [][]int
}

// New returns a graph whose entry block is created and labeled entry.
func New(entry Label) *Graph {
	g := &Graph{index: map[Label]int{}}
	g.entry = entry
	g.AddBlock(entry)
	return g
}

// AddBlock creates an empty block for l. Adding the same label twice is
// an internal error.
func (g *Graph) AddBlock(l Label) *Block {
	if _, ok := g.index[l]; ok {
		panic(fmt.Sprintf("duplicate block label %v", l))
	}
	b := &Block{Label: l}
	g.index[l] = len(g.blocks)
	g.blocks = append(g.blocks, b)
	g.succs = append(g.succs, nil)
	g.preds = append(g.preds, nil)
	return b
}

// Block returns the block labeled l, or nil.
func (g *Graph) Block(l Label) *Block {
	i, ok := g.index[l]
	if !ok {
		return nil
	}
	return g.blocks[i]
}

// Blocks returns all blocks in insertion order.
func (g *Graph) Blocks() []*Block { return g.blocks }

func (g *Graph) idx(l Label) int {
	i, ok := g.index[l]
	if !ok {
		panic(fmt.Sprintf("unknown block label %v", l))
	}
	return i
}

// AddEdge connects src to dst. Duplicate edges are not added.
func (g *Graph) AddEdge(src, dst Label) {
	si, di := g.idx(src), g.idx(dst)
	for _, s := range g.succs[si] {
		if s == di {
			return
		}
	}
	g.succs[si] = append(g.succs[si], di)
	g.preds[di] = append(g.preds[di], si)
}

// RemoveEdge disconnects src from dst if the edge exists.
func (g *Graph) RemoveEdge(src, dst Label) {
	si, di := g.idx(src), g.idx(dst)
	g.succs[si] = removeIndex(g.succs[si], di)
	g.preds[di] = removeIndex(g.preds[di], si)
}

func removeIndex(xs []int, x int) []int {
	for i, v := range xs {
		if v == x {
			return append(xs[:i], xs[i+1:]...)
		}
	}
	return xs
}

// InsertBetween creates a block labeled mid and splices it into the
// src→dst edge, so that src→mid→dst.
func (g *Graph) InsertBetween(src, dst, mid Label) *Block {
	b := g.AddBlock(mid)
	g.RemoveEdge(src, dst)
	g.AddEdge(src, mid)
	g.AddEdge(mid, dst)
	return b
}

// Succs returns the successor labels of l in edge insertion order.
func (g *Graph) Succs(l Label) []Label {
	out := make([]Label, 0, len(g.succs[g.idx(l)]))
	for _, i := range g.succs[g.idx(l)] {
		out = append(out, g.blocks[i].Label)
	}
	return out
}

// Preds returns the predecessor labels of l.
func (g *Graph) Preds(l Label) []Label {
	out := make([]Label, 0, len(g.preds[g.idx(l)]))
	for _, i := range g.preds[g.idx(l)] {
		out = append(out, g.blocks[i].Label)
	}
	return out
}

// Entry returns the entry label.
func (g *Graph) Entry() Label { return g.entry }

// SetExit marks l as the exit block.
func (g *Graph) SetExit(l Label) {
	g.idx(l) // must exist
	g.exit = l
	g.hasExit = true
}

// Exit returns the exit label, if one was discovered.
func (g *Graph) Exit() (Label, bool) { return g.exit, g.hasExit }

// SetDecl attaches the function declaration record.
func (g *Graph) SetDecl(d *FuncDecl) { g.decl = d }

// Decl returns the function declaration record, or nil.
func (g *Graph) Decl() *FuncDecl { return g.decl }

// Simplify removes havoc statements of variables no other statement
// mentions and then removes empty forwarding blocks. It is a one-time
// pass run before the graph is handed out; it invalidates statement
// positions, which is why the reverse statement map is disabled when
// simplification is on.
func (g *Graph) Simplify() {
	g.removeDeadHavocs()
	g.removeEmptyBlocks()
}

func (g *Graph) removeDeadHavocs() {
	used := map[Var]bool{}
	for _, b := range g.blocks {
		for _, s := range b.Stmts {
			if _, ok := s.(Havoc); ok {
				continue
			}
			for _, v := range stmtVars(s) {
				used[v] = true
			}
		}
	}
	for _, b := range g.blocks {
		kept := b.Stmts[:0]
		for _, s := range b.Stmts {
			if h, ok := s.(Havoc); ok && !used[h.V] {
				continue
			}
			kept = append(kept, s)
		}
		b.Stmts = kept
	}
}

// removeEmptyBlocks drops statement-less blocks with a unique successor,
// rewiring every predecessor to that successor. Entry and exit blocks
// are kept even when empty.
func (g *Graph) removeEmptyBlocks() {
	for {
		removed := false
		for i, b := range g.blocks {
			if b == nil || len(b.Stmts) > 0 {
				continue
			}
			if b.Label == g.entry || (g.hasExit && b.Label == g.exit) {
				continue
			}
			if len(g.succs[i]) != 1 {
				continue
			}
			succ := g.succs[i][0]
			if succ == i {
				continue
			}
			for _, p := range append([]int(nil), g.preds[i]...) {
				g.RemoveEdge(g.blocks[p].Label, b.Label)
				g.AddEdge(g.blocks[p].Label, g.blocks[succ].Label)
			}
			g.RemoveEdge(b.Label, g.blocks[succ].Label)
			delete(g.index, b.Label)
			g.blocks[i] = nil
			removed = true
		}
		if !removed {
			break
		}
	}
	g.compact()
}

func (g *Graph) compact() {
	remap := make([]int, len(g.blocks))
	var blocks []*Block
	for i, b := range g.blocks {
		if b == nil {
			remap[i] = -1
			continue
		}
		remap[i] = len(blocks)
		blocks = append(blocks, b)
	}
	succs := make([][]int, len(blocks))
	preds := make([][]int, len(blocks))
	for i, b := range g.blocks {
		if b == nil {
			continue
		}
		ni := remap[i]
		for _, s := range g.succs[i] {
			if remap[s] >= 0 {
				succs[ni] = append(succs[ni], remap[s])
			}
		}
		for _, p := range g.preds[i] {
			if remap[p] >= 0 {
				preds[ni] = append(preds[ni], remap[p])
			}
		}
	}
	g.blocks = blocks
	g.succs = succs
	g.preds = preds
	g.index = make(map[Label]int, len(blocks))
	for i, b := range blocks {
		g.index[b.Label] = i
	}
}

// stmtVars returns every variable a statement mentions, including
// definitions. Used only by simplification.
func stmtVars(s Stmt) []Var {
	add := func(out []Var, es ...Expr) []Var {
		for _, e := range es {
			if x, _, ok := e.Term(); ok {
				out = append(out, x)
			}
		}
		return out
	}
	switch s := s.(type) {
	case Assign:
		return add([]Var{s.Dst}, s.Src)
	case BinStmt:
		return add([]Var{s.Dst, s.X}, s.Y)
	case Extend:
		return []Var{s.Src, s.Dst}
	case Truncate:
		return []Var{s.Src, s.Dst}
	case Select:
		return add([]Var{s.Dst}, s.Cond.L, s.Cond.R, s.Then, s.Else)
	case BoolAssignCst:
		return add([]Var{s.Dst}, s.Cst.L, s.Cst.R)
	case BoolAssignVar:
		return []Var{s.Dst, s.Src}
	case BoolBinStmt:
		return []Var{s.Dst, s.X, s.Y}
	case BoolSelect:
		return []Var{s.Dst, s.Cond, s.Then, s.Else}
	case PtrAssign:
		return add([]Var{s.Dst, s.Src}, s.Offset)
	case PtrNull:
		return []Var{s.Dst}
	case PtrNew:
		return []Var{s.Dst}
	case PtrLoad:
		return []Var{s.Dst, s.Src}
	case PtrStore:
		return []Var{s.Dst, s.Val}
	case PtrAssume:
		return []Var{s.Cst.X, s.Cst.Y}
	case ArrayInit:
		return add([]Var{s.Arr}, s.Lo, s.Hi, s.Val)
	case ArrayLoad:
		return []Var{s.Dst, s.Arr, s.Idx}
	case ArrayStore:
		return add([]Var{s.Arr, s.Idx}, s.Val)
	case ArrayAssign:
		return []Var{s.Dst, s.Src}
	case Havoc:
		return []Var{s.V}
	case Assume:
		return add(nil, s.Cst.L, s.Cst.R)
	case BoolAssume:
		return []Var{s.V}
	case Assert:
		return add(nil, s.Cst.L, s.Cst.R)
	case BoolAssert:
		return []Var{s.V}
	case Unreachable:
		return nil
	case Call:
		out := append([]Var(nil), s.Outputs...)
		return append(out, s.Inputs...)
	case Return:
		return []Var{s.V}
	default:
		panic(fmt.Sprintf("unhandled statement %T", s))
	}
}

// Fprint renders the graph; String is the same rendering as a string.
// The output is deterministic and used by tests to compare structures.
func (g *Graph) String() string {
	var sb strings.Builder
	if g.decl != nil {
		fmt.Fprintf(&sb, "declare %s\n", g.decl)
	}
	fmt.Fprintf(&sb, "entry: %s\n", g.entry)
	if g.hasExit {
		fmt.Fprintf(&sb, "exit: %s\n", g.exit)
	}
	for _, b := range g.blocks {
		fmt.Fprintf(&sb, "%s:\n", b.Label)
		for _, s := range b.Stmts {
			fmt.Fprintf(&sb, "  %s\n", s)
		}
		succs := g.Succs(b.Label)
		if len(succs) > 0 {
			names := make([]string, len(succs))
			for i, l := range succs {
				names[i] = l.Name
			}
			sort.Strings(names)
			fmt.Fprintf(&sb, "  --> %s\n", strings.Join(names, ", "))
		}
	}
	return sb.String()
}
