package cfg

import (
	"fmt"
	"io"
	"strings"
)

// WriteDot renders the graph in Graphviz dot form, one node per block
// listing its statements. Entry and exit blocks are drawn with a double
// border. The output is deterministic.
func (g *Graph) WriteDot(w io.Writer, name string) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "digraph \"%s\" {\n", dotEscape(name))
	sb.WriteString("  node [shape=box, fontname=monospace];\n")
	if g.decl != nil {
		fmt.Fprintf(&sb, "  label=\"%s\";\n", dotEscape(g.decl.String()))
	}
	for _, b := range g.blocks {
		lines := []string{b.Label.Name + ":"}
		for _, s := range b.Stmts {
			lines = append(lines, "  "+s.String())
		}
		for i, l := range lines {
			lines[i] = dotEscape(l)
		}
		attrs := fmt.Sprintf("label=\"%s\\l\"", strings.Join(lines, `\l`))
		if b.Label == g.entry || (g.hasExit && b.Label == g.exit) {
			attrs += ", peripheries=2"
		}
		fmt.Fprintf(&sb, "  \"%s\" [%s];\n", dotEscape(b.Label.Name), attrs)
	}
	for _, b := range g.blocks {
		for _, succ := range g.Succs(b.Label) {
			fmt.Fprintf(&sb, "  \"%s\" -> \"%s\";\n",
				dotEscape(b.Label.Name), dotEscape(succ.Name))
		}
	}
	sb.WriteString("}\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

func dotEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
