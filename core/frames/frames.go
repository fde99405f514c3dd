// Package frames computes the operand stack at every instruction of a method
// by forward fixed-point propagation of lattice types over the control-flow
// graph.
package frames

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/willf/bitset"

	"github.com/jflow-project/jflow/core/cfg"
	"github.com/jflow-project/jflow/core/failure"
	"github.com/jflow-project/jflow/core/instruction"
	"github.com/jflow-project/jflow/core/lattice"
	"github.com/jflow-project/jflow/core/variables"
	"github.com/jflow-project/jflow/metrics"
)

// DefaultMaxIterations bounds instruction visits to this many per instruction.
const DefaultMaxIterations = 64

var iterationsMeter = metrics.NewRegisteredMeter("frames/iterations", nil)

// Slot is one entry of the operand stack. Sources holds the orders of the
// instructions that may have pushed the value; it is empty for the exception
// object a handler starts with.
type Slot struct {
	Type    lattice.Set
	Sources *bitset.BitSet
}

func (s Slot) String() string {
	return s.Type.String()
}

// Frame is the stack state around one instruction, bottom entry first.
type Frame struct {
	Input  []Slot
	Output []Slot
	// Operands are the consumed entries after narrowing each to what the
	// instruction accepts, deepest first.
	Operands []lattice.Set
}

// Types returns the types of a stack, bottom first.
func Types(stack []Slot) []lattice.Set {
	out := make([]lattice.Set, len(stack))
	for i, s := range stack {
		out[i] = s.Type
	}
	return out
}

// Format renders a stack as "[{INT} {OBJECT}]".
func Format(stack []Slot) string {
	parts := make([]string, len(stack))
	for i, s := range stack {
		parts[i] = s.Type.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Options tune a propagation run.
type Options struct {
	// Variables types local loads and stores. May be nil.
	Variables *variables.Table
	// MaxIterations caps visits at this multiple of the instruction count.
	// Zero selects DefaultMaxIterations.
	MaxIterations int
}

// Result holds the stabilised frames of one method.
type Result struct {
	frames     []*Frame
	demand     []lattice.Set
	Iterations int
}

// Len returns the number of instructions covered.
func (r *Result) Len() int { return len(r.frames) }

// Frame returns the frame at order, false when the instruction is
// unreachable.
func (r *Result) Frame(order int) (*Frame, bool) {
	if order < 0 || order >= len(r.frames) || r.frames[order] == nil {
		return nil, false
	}
	return r.frames[order], true
}

// Frames returns every frame, nil for unreachable instructions.
func (r *Result) Frames() []*Frame { return r.frames }

// Pushed returns the type of the value pushed at order, Void when the
// instruction pushes nothing or is unreachable.
func (r *Result) Pushed(order int) lattice.Set {
	f, ok := r.Frame(order)
	if !ok {
		return lattice.Void
	}
	for i := len(f.Output) - 1; i >= 0; i-- {
		if f.Output[i].Sources.Test(uint(order)) {
			return f.Output[i].Type
		}
	}
	return lattice.Void
}

// Demand returns the intersection of what every consumer of the value pushed
// at order narrowed it to. It is Empty when nothing consumes the value.
func (r *Result) Demand(order int) lattice.Set {
	if order < 0 || order >= len(r.demand) {
		return lattice.Empty
	}
	return r.demand[order]
}

type engine struct {
	g     *cfg.Graph
	vars  *variables.Table
	n     int
	in    [][]Slot
	limit int
}

// Propagate runs the fixed point from the entry, with an empty stack, and
// from every handler entry, with the caught exception on the stack.
func Propagate(g *cfg.Graph, opts Options) (*Result, error) {
	n := g.Len()
	e := &engine{
		g:    g,
		vars: opts.Variables,
		n:    n,
		in:   make([][]Slot, n),
	}
	mult := opts.MaxIterations
	if mult <= 0 {
		mult = DefaultMaxIterations
	}
	e.limit = mult * n

	var (
		worklist   []int
		inWorklist = bitset.New(uint(n))
	)
	enqueue := func(order int) {
		if !inWorklist.Test(uint(order)) {
			worklist = append(worklist, order)
			inWorklist.Set(uint(order))
		}
	}
	if _, err := e.merge(g.Entry(), []Slot{}); err != nil {
		return nil, err
	}
	enqueue(g.Entry())
	for _, h := range g.HandlerEntries() {
		if _, err := e.merge(h, e.handlerFrame()); err != nil {
			return nil, err
		}
		enqueue(h)
	}

	iterations := 0
	for len(worklist) > 0 {
		curr := worklist[0]
		worklist = worklist[1:]
		inWorklist.Clear(uint(curr))

		iterations++
		if iterations > e.limit {
			return nil, failure.At(curr, failure.ErrLattice, "no fixed point after %d visits", e.limit)
		}
		ins := g.Instruction(curr)
		out, _, err := e.transfer(ins, e.in[curr])
		if err != nil {
			return nil, err
		}
		if DebugLogsEnabled {
			traceVisit("Frame visit", "method", g.Method, "order", curr, "op", ins.Opcode(), "in", Format(e.in[curr]), "out", Format(out))
		}

		for _, edge := range g.OutEdges(curr) {
			next := out
			if edge.Kind == cfg.Exception {
				next = e.handlerFrame()
			}
			changed, err := e.merge(edge.To, next)
			if err != nil {
				return nil, err
			}
			if changed {
				enqueue(edge.To)
			}
		}
	}
	iterationsMeter.Mark(int64(iterations))

	res := &Result{
		frames:     make([]*Frame, n),
		demand:     make([]lattice.Set, n),
		Iterations: iterations,
	}
	for order := 0; order < n; order++ {
		if e.in[order] == nil {
			if g.IsReachable(order) {
				debugWarn("Reachable instruction without frame", "method", g.Method, "order", order)
			}
			continue
		}
		ins := g.Instruction(order)
		out, operands, err := e.transfer(ins, e.in[order])
		if err != nil {
			return nil, err
		}
		res.frames[order] = &Frame{Input: e.in[order], Output: out, Operands: operands}
	}
	res.computeDemand(g)
	return res, nil
}

func (e *engine) handlerFrame() []Slot {
	return []Slot{{Type: lattice.Object, Sources: bitset.New(uint(e.n))}}
}

// merge folds incoming into the frame recorded at order and reports whether
// the recorded frame changed.
func (e *engine) merge(order int, incoming []Slot) (bool, error) {
	cur := e.in[order]
	if cur == nil {
		cp := make([]Slot, len(incoming))
		for i, s := range incoming {
			cp[i] = Slot{Type: s.Type, Sources: s.Sources.Clone()}
		}
		e.in[order] = cp
		return true, nil
	}
	if len(cur) != len(incoming) {
		return false, failure.At(order, failure.ErrLattice, "stack height mismatch at join: %d and %d", len(cur), len(incoming))
	}
	changed := false
	for i := range cur {
		t, err := lattice.Merge(cur[i].Type, incoming[i].Type)
		if err != nil {
			return false, failure.Wrap(order, errors.Wrapf(err, "stack entry %d", i))
		}
		if t != cur[i].Type {
			cur[i].Type = t
			changed = true
		}
		if u := cur[i].Sources.Union(incoming[i].Sources); u.Count() != cur[i].Sources.Count() {
			cur[i].Sources = u
			changed = true
		}
	}
	return changed, nil
}

// transfer applies one instruction to the stack it starts with and returns
// the resulting stack together with the narrowed operands.
func (e *engine) transfer(ins instruction.Instruction, in []Slot) ([]Slot, []lattice.Set, error) {
	order := ins.Order()
	if op, ok := ins.(*instruction.StackOp); ok {
		return e.shuffle(op, in)
	}
	consumed := ins.ConsumedFromStack()
	if st, ok := ins.(*instruction.Store); ok && e.vars != nil {
		l, live, err := e.vars.StoredTypeAt(st.Slot, order)
		if err != nil {
			return nil, nil, err
		}
		if live {
			want, err := lattice.Merge(consumed[0], l.Category())
			if err != nil {
				return nil, nil, failure.Wrap(order, errors.Wrapf(err, "%s into variable %s", ins.Label(), l.Name))
			}
			consumed = []lattice.Set{want}
		}
	}
	if len(in) < len(consumed) {
		return nil, nil, failure.At(order, failure.ErrLattice, "stack underflow: %s needs %d values, %d present", ins.Label(), len(consumed), len(in))
	}
	base := len(in) - len(consumed)
	operands := make([]lattice.Set, len(consumed))
	for k, want := range consumed {
		t, err := lattice.Merge(in[base+k].Type, want)
		if err != nil {
			return nil, nil, failure.Wrap(order, errors.Wrapf(err, "operand %d of %s", k, ins.Label()))
		}
		operands[k] = t
	}
	out := make([]Slot, base, base+1)
	copy(out, in[:base])

	pushed := ins.PushedToStack()
	if pushed.IsVoid() {
		return out, operands, nil
	}
	if ld, ok := ins.(*instruction.Load); ok && e.vars != nil {
		declared, err := e.vars.TypeAt(ld.Slot, order, pushed)
		if err != nil {
			return nil, nil, err
		}
		t, err := lattice.Merge(declared, pushed)
		if err != nil {
			return nil, nil, failure.Wrap(order, errors.Wrapf(err, "%s of variable typed %v", ins.Label(), declared))
		}
		pushed = t
	}
	src := bitset.New(uint(e.n)).Set(uint(order))
	return append(out, Slot{Type: pushed, Sources: src}), operands, nil
}

func (e *engine) shuffle(op *instruction.StackOp, in []Slot) ([]Slot, []lattice.Set, error) {
	widths := make([]int, len(in))
	for i, s := range in {
		widths[i] = s.Type.Width()
	}
	pop, push, err := op.Shuffle(widths)
	if err != nil {
		return nil, nil, failure.Wrap(op.Order(), err)
	}
	if pop > len(in) {
		return nil, nil, failure.At(op.Order(), failure.ErrLattice, "stack underflow: %s needs %d values, %d present", op.Label(), pop, len(in))
	}
	base := len(in) - pop
	popped := in[base:]
	operands := make([]lattice.Set, pop)
	for k, s := range popped {
		operands[k] = s.Type
	}
	out := make([]Slot, base, base+len(push))
	copy(out, in[:base])
	for _, idx := range push {
		out = append(out, popped[idx])
	}
	return out, operands, nil
}

// computeDemand intersects, for every pushing instruction, the narrowed
// operand types of all the instructions that consume its value. Stack
// manipulation moves values without using them and is not a consumer.
func (r *Result) computeDemand(g *cfg.Graph) {
	for i := range r.demand {
		r.demand[i] = lattice.Empty
	}
	seen := bitset.New(uint(len(r.frames)))
	for order, f := range r.frames {
		if f == nil {
			continue
		}
		if _, ok := g.Instruction(order).(*instruction.StackOp); ok {
			continue
		}
		base := len(f.Input) - len(f.Operands)
		for k, t := range f.Operands {
			srcs := f.Input[base+k].Sources
			for s, ok := srcs.NextSet(0); ok; s, ok = srcs.NextSet(s + 1) {
				if seen.Test(s) {
					r.demand[s] = r.demand[s].Intersect(t)
				} else {
					r.demand[s] = t
					seen.Set(s)
				}
			}
		}
	}
}

// Dump renders every frame one per line, for debugging.
func (r *Result) Dump(g *cfg.Graph) string {
	var b strings.Builder
	for order, f := range r.frames {
		label := g.Instruction(order).Label()
		if f == nil {
			fmt.Fprintf(&b, "%4d %-28s unreachable\n", order, label)
			continue
		}
		fmt.Fprintf(&b, "%4d %-28s %s -> %s\n", order, label, Format(f.Input), Format(f.Output))
	}
	return b.String()
}
