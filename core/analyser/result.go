package analyser

import (
	"github.com/jflow-project/jflow/core/cfg"
	"github.com/jflow-project/jflow/core/frames"
	"github.com/jflow-project/jflow/core/instruction"
	"github.com/jflow-project/jflow/core/lattice"
	"github.com/jflow-project/jflow/core/variables"
)

// Result is the immutable analysis of one method.
type Result struct {
	ID           instruction.MethodID
	Static       bool
	Instructions []instruction.Instruction
	Graph        *cfg.Graph
	Variables    *variables.Table
	Frames       *frames.Result
	// HasJumps is set when the body holds any jump or switch.
	HasJumps bool
}

// Len returns the number of instructions.
func (r *Result) Len() int { return len(r.Instructions) }

// IsBooleanOperand reports whether operand index of the instruction at order,
// counted from the deepest consumed entry, is exactly boolean.
func (r *Result) IsBooleanOperand(order, index int) bool {
	f, ok := r.Frames.Frame(order)
	if !ok || index < 0 || index >= len(f.Operands) {
		return false
	}
	return f.Operands[index].IsBoolean()
}

// ProducesBoolean reports whether every instruction consuming the value
// pushed at order needs it to be exactly boolean.
func (r *Result) ProducesBoolean(order int) bool {
	return r.Frames.Demand(order).IsBoolean()
}

// BooleanProducers returns the orders for which ProducesBoolean holds.
func (r *Result) BooleanProducers() []int {
	var out []int
	for order := range r.Instructions {
		if r.ProducesBoolean(order) {
			out = append(out, order)
		}
	}
	return out
}

// WritesBoolean reports whether the instruction at order stores into a
// variable declared boolean.
func (r *Result) WritesBoolean(order int) (bool, error) {
	if order < 0 || order >= len(r.Instructions) {
		return false, nil
	}
	st, ok := r.Instructions[order].(*instruction.Store)
	if !ok {
		return false, nil
	}
	l, live, err := r.Variables.StoredTypeAt(st.Slot, order)
	if err != nil || !live {
		return false, err
	}
	return l.Category().IsBoolean(), nil
}

// LoadTypes returns the type pushed by every reachable local load, by order.
func (r *Result) LoadTypes() map[int]lattice.Set {
	out := make(map[int]lattice.Set)
	for order, ins := range r.Instructions {
		if _, ok := ins.(*instruction.Load); !ok {
			continue
		}
		if _, ok := r.Frames.Frame(order); ok {
			out[order] = r.Frames.Pushed(order)
		}
	}
	return out
}
