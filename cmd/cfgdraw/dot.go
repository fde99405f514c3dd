package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"

	"github.com/jflow-project/jflow/core/cfg"
	"github.com/jflow-project/jflow/core/instruction"
)

// buildDOT renders one node per instruction. Conditional edges carry their
// branch, exception edges are dashed and, when deps is set, control
// dependences are drawn as dotted edges from the deciding branch. With
// blocks set, the nodes of each basic block are boxed in a cluster.
func buildDOT(g *cfg.Graph, title string, deps, blocks bool) []byte {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	fmt.Fprintln(w, "digraph CFG {")
	fmt.Fprintln(w, "  node [shape=box, fontname=\"monospace\"];")
	if title != "" {
		fmt.Fprintf(w, "  labelloc=\"t\";\n  label=\"%s\";\n", escapeDOT(title))
	}

	// Nodes
	indent := "  "
	for order, ins := range g.Instructions() {
		if blocks {
			if b := g.BlockOf(order); b.First == order {
				fmt.Fprintf(w, "  subgraph cluster_b%d {\n    label=\"block %d\";\n", b.Index, b.Index)
				indent = "    "
			}
		}
		label := fmt.Sprintf("%d: %s", order, ins.Label())
		if ins.Line() != instruction.UnknownLine {
			label += fmt.Sprintf("\nline %d", ins.Line())
		}
		attrs := []string{fmt.Sprintf("label=\"%s\"", escapeDOT(label))}
		if g.IsHandlerEntry(order) {
			attrs = append(attrs, "peripheries=2")
		}
		if !g.IsReachable(order) {
			attrs = append(attrs, "style=dashed", "color=gray", "fontcolor=gray")
		}
		fmt.Fprintf(w, "%sn%d [%s];\n", indent, order, strings.Join(attrs, ", "))
		if blocks && g.BlockOf(order).Last == order {
			fmt.Fprintln(w, "  }")
			indent = "  "
		}
	}
	// Edges
	for _, e := range g.Edges() {
		var attrs []string
		switch {
		case e.Kind == cfg.Exception:
			attrs = append(attrs, "style=dashed", "color=red")
			if e.CatchType != "" {
				attrs = append(attrs, fmt.Sprintf("label=\"%s\"", escapeDOT(e.CatchType)))
			}
		case e.Branch != cfg.NoBranch:
			attrs = append(attrs, fmt.Sprintf("label=\"%s\"", e.Branch))
		case e.Kind == cfg.SwitchDefault:
			attrs = append(attrs, "label=\"default\"")
		}
		if len(attrs) == 0 {
			fmt.Fprintf(w, "  n%d -> n%d;\n", e.From, e.To)
		} else {
			fmt.Fprintf(w, "  n%d -> n%d [%s];\n", e.From, e.To, strings.Join(attrs, ", "))
		}
	}
	if deps {
		for order := 0; order < g.Len(); order++ {
			for _, d := range g.ControlDependences(order) {
				attrs := "style=dotted, color=blue, constraint=false"
				if d.Branch != cfg.NoBranch {
					attrs += fmt.Sprintf(", label=\"%s\"", d.Branch)
				}
				fmt.Fprintf(w, "  n%d -> n%d [%s];\n", d.On, order, attrs)
			}
		}
	}
	fmt.Fprintln(w, "}")
	w.Flush()
	return buf.Bytes()
}

func escapeDOT(s string) string {
	// Keep backslash sequences (like \n) intact so Graphviz can interpret them.
	// Only escape double-quotes and convert literal newlines to \n.
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// renderSVG pipes the graph through graphviz.
func renderSVG(dot []byte) ([]byte, error) {
	if _, err := exec.LookPath("dot"); err != nil {
		return nil, errors.New("dot not found in PATH; install graphviz or choose --format=dot")
	}
	var svg bytes.Buffer
	cmd := exec.Command("dot", "-Tsvg")
	cmd.Stdin = bytes.NewReader(dot)
	cmd.Stdout = &svg
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, errors.Wrap(err, "dot render")
	}
	return svg.Bytes(), nil
}
