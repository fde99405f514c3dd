package instruction

import (
	"github.com/jflow-project/jflow/core/failure"
	"github.com/jflow-project/jflow/core/lattice"
	"github.com/jflow-project/jflow/core/opcodes"
)

// StackOp is one of POP, POP2, DUP, DUP_X1, DUP_X2, DUP2, DUP2_X1, DUP2_X2 and
// SWAP. These rearrange entries without looking at their types, and several
// have forms that depend on whether the top entries are long or double.
type StackOp struct{ plain }

var narrowWords = map[opcodes.Opcode]int{
	opcodes.POP:     1,
	opcodes.POP2:    2,
	opcodes.DUP:     1,
	opcodes.DUP_X1:  2,
	opcodes.DUP_X2:  3,
	opcodes.DUP2:    2,
	opcodes.DUP2_X1: 3,
	opcodes.DUP2_X2: 4,
	opcodes.SWAP:    2,
}

// ConsumedFromStack describes the form in which every entry is one word wide.
func (s *StackOp) ConsumedFromStack() []lattice.Set {
	out := make([]lattice.Set, narrowWords[s.op])
	for i := range out {
		out[i] = lattice.Any.Minus(lattice.Wide)
	}
	return out
}

func (s *StackOp) PushedToStack() lattice.Set { return lattice.Void }

// Shuffle selects the form matching the widths of the topmost entries, given
// deepest first, and returns how many entries it pops together with the
// popped indices to push back, deepest first. Index 0 is the deepest popped
// entry.
func (s *StackOp) Shuffle(widths []int) (pop int, push []int, err error) {
	// w(1) is the width of the top entry, w(2) the one below and so on.
	w := func(k int) int {
		if k > len(widths) {
			return 0
		}
		return widths[len(widths)-k]
	}
	narrow := func(ks ...int) bool {
		for _, k := range ks {
			if w(k) != 1 {
				return false
			}
		}
		return true
	}
	switch s.op {
	case opcodes.POP:
		if narrow(1) {
			return 1, nil, nil
		}
	case opcodes.POP2:
		if w(1) == 2 {
			return 1, nil, nil
		}
		if narrow(1, 2) {
			return 2, nil, nil
		}
	case opcodes.DUP:
		if narrow(1) {
			return 1, []int{0, 0}, nil
		}
	case opcodes.DUP_X1:
		if narrow(1, 2) {
			return 2, []int{1, 0, 1}, nil
		}
	case opcodes.DUP_X2:
		if narrow(1, 2, 3) {
			return 3, []int{2, 0, 1, 2}, nil
		}
		if narrow(1) && w(2) == 2 {
			return 2, []int{1, 0, 1}, nil
		}
	case opcodes.DUP2:
		if w(1) == 2 {
			return 1, []int{0, 0}, nil
		}
		if narrow(1, 2) {
			return 2, []int{0, 1, 0, 1}, nil
		}
	case opcodes.DUP2_X1:
		if narrow(1, 2, 3) {
			return 3, []int{1, 2, 0, 1, 2}, nil
		}
		if w(1) == 2 && narrow(2) {
			return 2, []int{1, 0, 1}, nil
		}
	case opcodes.DUP2_X2:
		switch {
		case narrow(1, 2, 3, 4):
			return 4, []int{2, 3, 0, 1, 2, 3}, nil
		case w(1) == 2 && narrow(2, 3):
			return 3, []int{2, 0, 1, 2}, nil
		case narrow(1, 2) && w(3) == 2:
			return 3, []int{1, 2, 0, 1, 2}, nil
		case w(1) == 2 && w(2) == 2:
			return 2, []int{1, 0, 1}, nil
		}
	case opcodes.SWAP:
		if narrow(1, 2) {
			return 2, []int{1, 0}, nil
		}
	}
	return 0, nil, failure.At(s.order, failure.ErrLattice, "%v does not apply to stack entries of widths %v", s.op, widths)
}
