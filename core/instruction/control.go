package instruction

import (
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/jflow-project/jflow/core/lattice"
	"github.com/jflow-project/jflow/core/opcodes"
)

// Jump is a resolved conditional jump, GOTO or subroutine call.
type Jump struct {
	base
	dest Instruction
}

// Destination returns the instruction jumped to.
func (j *Jump) Destination() Instruction { return j.dest }

// Conditional reports whether execution may also fall through.
func (j *Jump) Conditional() bool { return j.op.IsConditional() }

// Subroutine reports whether the jump is JSR or JSR_W.
func (j *Jump) Subroutine() bool { return j.op.IsSubroutineCall() }

func (j *Jump) ConsumedFromStack() []lattice.Set { return jumpOperands(j.op) }

// PushedToStack is the return address for subroutine calls.
func (j *Jump) PushedToStack() lattice.Set {
	if j.Subroutine() {
		return lattice.Address
	}
	return lattice.Void
}

func (j *Jump) ReadsVariables() mapset.Set[int]  { return slots() }
func (j *Jump) WritesVariables() mapset.Set[int] { return slots() }

// Successors yields the fall-through order before the destination for
// conditionals, and the destination alone otherwise.
func (j *Jump) Successors() []int {
	if j.Conditional() {
		return []int{j.order + 1, j.dest.Order()}
	}
	return []int{j.dest.Order()}
}

func (j *Jump) Label() string {
	return fmt.Sprintf("%v -> %d", j.op, j.dest.Order())
}

func jumpOperands(op opcodes.Opcode) []lattice.Set {
	switch {
	case op == opcodes.IFNULL || op == opcodes.IFNONNULL:
		return []lattice.Set{lattice.Reference}
	case op >= opcodes.IFEQ && op <= opcodes.IFLE:
		return []lattice.Set{lattice.IntegerLike}
	case op >= opcodes.IF_ICMPEQ && op <= opcodes.IF_ICMPLE:
		return []lattice.Set{lattice.IntegerLike, lattice.IntegerLike}
	case op == opcodes.IF_ACMPEQ || op == opcodes.IF_ACMPNE:
		return []lattice.Set{lattice.Reference, lattice.Reference}
	}
	return nil
}

// Switch is a resolved TABLESWITCH or LOOKUPSWITCH. Keys and destinations
// are parallel.
type Switch struct {
	base
	Keys []int

	dflt  Instruction
	dests []Instruction
}

// Default returns the default destination.
func (s *Switch) Default() Instruction { return s.dflt }

// Destinations returns the case destinations, one per key.
func (s *Switch) Destinations() []Instruction { return s.dests }

// Range returns the key range of a table switch.
func (s *Switch) Range() (min, max int) {
	if len(s.Keys) == 0 {
		return 0, -1
	}
	return s.Keys[0], s.Keys[len(s.Keys)-1]
}

func (s *Switch) ConsumedFromStack() []lattice.Set { return []lattice.Set{lattice.IntegerLike} }
func (s *Switch) PushedToStack() lattice.Set       { return lattice.Void }
func (s *Switch) ReadsVariables() mapset.Set[int]  { return slots() }
func (s *Switch) WritesVariables() mapset.Set[int] { return slots() }

// Successors is the union of the case destinations and the default, in first
// occurrence order.
func (s *Switch) Successors() []int {
	seen := make(map[int]bool, len(s.dests)+1)
	out := make([]int, 0, len(s.dests)+1)
	for _, d := range append(append([]Instruction{}, s.dests...), s.dflt) {
		if !seen[d.Order()] {
			seen[d.Order()] = true
			out = append(out, d.Order())
		}
	}
	return out
}

func (s *Switch) Label() string {
	var b strings.Builder
	b.WriteString(s.op.String())
	for i, k := range s.Keys {
		fmt.Fprintf(&b, " %d:%d", k, s.dests[i].Order())
	}
	fmt.Fprintf(&b, " default:%d", s.dflt.Order())
	return b.String()
}

// Ret returns from a subroutine to one of the instructions following its
// call sites.
type Ret struct {
	base
	Slot int

	targets []Instruction
}

// Targets returns the possible return points.
func (r *Ret) Targets() []Instruction { return r.targets }

func (r *Ret) ConsumedFromStack() []lattice.Set { return nil }
func (r *Ret) PushedToStack() lattice.Set       { return lattice.Void }
func (r *Ret) ReadsVariables() mapset.Set[int]  { return slots(r.Slot) }
func (r *Ret) WritesVariables() mapset.Set[int] { return slots() }

func (r *Ret) Successors() []int {
	out := make([]int, len(r.targets))
	for i, t := range r.targets {
		out[i] = t.Order()
	}
	return out
}

func (r *Ret) Label() string { return fmt.Sprintf("RET %d", r.Slot) }
