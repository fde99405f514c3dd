// Package cfg builds the control-flow graph of a resolved method body: one
// node per instruction, edges for fall-through, jumps, switch cases and
// exception handlers.
package cfg

import (
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"github.com/willf/bitset"
	"golang.org/x/exp/slices"

	"github.com/jflow-project/jflow/core/failure"
	"github.com/jflow-project/jflow/core/instruction"
)

// EdgeKind classifies how control reaches the destination of an edge.
type EdgeKind int

const (
	FallThrough EdgeKind = iota
	Jump
	SwitchCase
	SwitchDefault
	Exception
)

func (k EdgeKind) String() string {
	switch k {
	case FallThrough:
		return "fall-through"
	case Jump:
		return "jump"
	case SwitchCase:
		return "switch-case"
	case SwitchDefault:
		return "switch-default"
	case Exception:
		return "exception"
	}
	return fmt.Sprintf("EdgeKind(%d)", int(k))
}

// Branch labels the edges leaving a conditional jump.
type Branch int

const (
	NoBranch Branch = iota
	True
	False
)

func (b Branch) String() string {
	switch b {
	case True:
		return "T"
	case False:
		return "F"
	}
	return ""
}

// Edge is a directed control-flow edge between instruction orders.
type Edge struct {
	From   int
	To     int
	Kind   EdgeKind
	Branch Branch
	// CatchType is the caught class of exception edges, empty for any.
	CatchType string
}

func (e Edge) String() string {
	s := fmt.Sprintf("%d -> %d (%v", e.From, e.To, e.Kind)
	if e.Branch != NoBranch {
		s += " " + e.Branch.String()
	}
	return s + ")"
}

// Graph is the control-flow graph of one method. It is immutable once built
// and safe for concurrent readers.
type Graph struct {
	Method instruction.MethodID

	instrs   []instruction.Instruction
	out      [][]Edge
	in       [][]Edge
	handlers []instruction.TryCatch
	reached  *bitset.BitSet

	pdomOnce sync.Once
	pdom     *postDominators

	blocksOnce sync.Once
	blocks     *blockView
}

// Build assembles the graph. When table is non-empty, every instruction
// covered by a try range gets an exception edge to the handler in addition
// to its normal successors.
func Build(instrs []instruction.Instruction, table []instruction.TryCatch) (*Graph, error) {
	n := len(instrs)
	if n == 0 {
		return nil, errors.Wrap(failure.ErrMalformed, "method has no instructions")
	}
	g := &Graph{
		Method:   instrs[0].Method(),
		instrs:   instrs,
		out:      make([][]Edge, n),
		in:       make([][]Edge, n),
		handlers: slices.Clone(table),
	}
	for i, tc := range table {
		if tc.Start < 0 || tc.End > n || tc.Start >= tc.End {
			return nil, errors.Wrapf(failure.ErrMalformed, "try range %d covers [%d,%d) outside [0,%d)", i, tc.Start, tc.End, n)
		}
		if tc.Handler < 0 || tc.Handler >= n {
			return nil, errors.Wrapf(failure.ErrMalformed, "try range %d has handler %d outside [0,%d)", i, tc.Handler, n)
		}
	}
	for order, ins := range instrs {
		if ins.Order() != order {
			return nil, failure.Malformed(order, "instruction claims order %d", ins.Order())
		}
		if err := g.addNormalEdges(ins); err != nil {
			return nil, err
		}
		for _, tc := range table {
			if tc.Covers(order) {
				g.addEdge(Edge{From: order, To: tc.Handler, Kind: Exception, CatchType: tc.Type})
			}
		}
	}
	g.reached = g.reachable()
	return g, nil
}

func (g *Graph) addNormalEdges(ins instruction.Instruction) error {
	order := ins.Order()
	for _, s := range ins.Successors() {
		if s < 0 || s >= len(g.instrs) {
			if s == len(g.instrs) {
				return failure.Malformed(order, "%s falls off the end of the method", ins.Label())
			}
			return failure.Malformed(order, "successor %d out of range [0,%d)", s, len(g.instrs))
		}
	}
	switch ins := ins.(type) {
	case *instruction.Jump:
		if ins.Conditional() {
			g.addEdge(Edge{From: order, To: order + 1, Kind: FallThrough, Branch: False})
			g.addEdge(Edge{From: order, To: ins.Destination().Order(), Kind: Jump, Branch: True})
		} else {
			g.addEdge(Edge{From: order, To: ins.Destination().Order(), Kind: Jump})
		}
	case *instruction.Switch:
		for _, d := range ins.Destinations() {
			g.addEdge(Edge{From: order, To: d.Order(), Kind: SwitchCase})
		}
		g.addEdge(Edge{From: order, To: ins.Default().Order(), Kind: SwitchDefault})
	case *instruction.Ret:
		for _, s := range ins.Successors() {
			g.addEdge(Edge{From: order, To: s, Kind: Jump})
		}
	default:
		for _, s := range ins.Successors() {
			g.addEdge(Edge{From: order, To: s, Kind: FallThrough})
		}
	}
	return nil
}

// addEdge records e unless an edge with the same endpoints and kind exists.
func (g *Graph) addEdge(e Edge) {
	for _, o := range g.out[e.From] {
		if o.To == e.To && o.Kind == e.Kind {
			return
		}
	}
	g.out[e.From] = append(g.out[e.From], e)
	g.in[e.To] = append(g.in[e.To], e)
}

func (g *Graph) reachable() *bitset.BitSet {
	seen := bitset.New(uint(len(g.instrs)))
	work := []int{0}
	seen.Set(0)
	for len(work) > 0 {
		n := work[len(work)-1]
		work = work[:len(work)-1]
		for _, e := range g.out[n] {
			if !seen.Test(uint(e.To)) {
				seen.Set(uint(e.To))
				work = append(work, e.To)
			}
		}
	}
	return seen
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.instrs) }

// Entry returns the order execution starts at.
func (g *Graph) Entry() int { return 0 }

// Instruction returns the node at order.
func (g *Graph) Instruction(order int) instruction.Instruction { return g.instrs[order] }

// Instructions returns every node in order.
func (g *Graph) Instructions() []instruction.Instruction { return g.instrs }

// Handlers returns the exception table the graph was built with.
func (g *Graph) Handlers() []instruction.TryCatch { return g.handlers }

// OutEdges returns the edges leaving order.
func (g *Graph) OutEdges(order int) []Edge { return g.out[order] }

// InEdges returns the edges entering order.
func (g *Graph) InEdges(order int) []Edge { return g.in[order] }

// Edges returns every edge, grouped by source order.
func (g *Graph) Edges() []Edge {
	var all []Edge
	for _, es := range g.out {
		all = append(all, es...)
	}
	return all
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, es := range g.out {
		n += len(es)
	}
	return n
}

// Successors returns the distinct destinations of the edges leaving order.
func (g *Graph) Successors(order int) []int {
	return distinct(g.out[order], func(e Edge) int { return e.To })
}

// Predecessors returns the distinct sources of the edges entering order.
func (g *Graph) Predecessors(order int) []int {
	return distinct(g.in[order], func(e Edge) int { return e.From })
}

func distinct(es []Edge, end func(Edge) int) []int {
	out := make([]int, 0, len(es))
	for _, e := range es {
		if !slices.Contains(out, end(e)) {
			out = append(out, end(e))
		}
	}
	return out
}

// HandlerEntries returns the distinct handler orders, ascending.
func (g *Graph) HandlerEntries() []int {
	set := mapset.NewThreadUnsafeSet[int]()
	for _, tc := range g.handlers {
		set.Add(tc.Handler)
	}
	out := set.ToSlice()
	slices.Sort(out)
	return out
}

// IsHandlerEntry reports whether order starts an exception handler.
func (g *Graph) IsHandlerEntry(order int) bool {
	for _, tc := range g.handlers {
		if tc.Handler == order {
			return true
		}
	}
	return false
}

// Exits returns the instructions that leave the method.
func (g *Graph) Exits() []int {
	var out []int
	for _, ins := range g.instrs {
		if instruction.IsExit(ins) {
			out = append(out, ins.Order())
		}
	}
	return out
}

// IsReachable reports whether order can execute, following every edge from
// the entry.
func (g *Graph) IsReachable(order int) bool { return g.reached.Test(uint(order)) }

// Unreachable returns the orders that can never execute.
func (g *Graph) Unreachable() mapset.Set[int] {
	set := mapset.NewThreadUnsafeSet[int]()
	for i := range g.instrs {
		if !g.reached.Test(uint(i)) {
			set.Add(i)
		}
	}
	return set
}
