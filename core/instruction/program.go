package instruction

import (
	"github.com/pkg/errors"

	"github.com/jflow-project/jflow/core/descriptor"
	"github.com/jflow-project/jflow/core/failure"
)

// ErrUnresolved is wrapped when control flow is requested from an element
// that is still a placeholder.
var ErrUnresolved = errors.Wrap(failure.ErrMalformed, "unresolved placeholder")

// TryCatch is one exception table entry in instruction orders. Start is
// inclusive and End exclusive. An empty Type catches everything.
type TryCatch struct {
	Start   int
	End     int
	Handler int
	Type    string
}

// Covers reports whether order lies in the protected range.
func (tc TryCatch) Covers(order int) bool {
	return order >= tc.Start && order < tc.End
}

// Program is the first-pass element stream of one method.
type Program struct {
	ID     MethodID
	Static bool
	Method *descriptor.Method

	elems    []Element
	resolved []Instruction
}

// Len returns the number of elements.
func (p *Program) Len() int { return len(p.elems) }

// Elements returns the first-pass stream.
func (p *Program) Elements() []Element { return p.elems }

// Placeholders returns the elements that still need resolution.
func (p *Program) Placeholders() []Placeholder {
	var out []Placeholder
	for _, e := range p.elems {
		if ph, ok := e.(Placeholder); ok && !ph.Resolved() {
			out = append(out, ph)
		}
	}
	return out
}

// HasJumps reports whether the method contains a jump or switch.
func (p *Program) HasJumps() bool {
	for _, e := range p.elems {
		if op := e.Opcode(); op.IsJump() || op.IsSwitch() {
			return true
		}
	}
	return false
}

// SubroutineReturns lists the orders following every JSR, which are the
// return points of every RET in the method.
func (p *Program) SubroutineReturns() []int {
	var out []int
	for _, e := range p.elems {
		if e.Opcode().IsSubroutineCall() {
			out = append(out, e.Order()+1)
		}
	}
	return out
}

// lookup returns the final instruction at order, which may be the not yet
// resolved output of a placeholder.
func (p *Program) lookup(order int) (Instruction, error) {
	if order < 0 || order >= len(p.elems) {
		return nil, errors.Wrapf(failure.ErrMalformed, "destination %d out of range [0,%d)", order, len(p.elems))
	}
	switch e := p.elems[order].(type) {
	case Instruction:
		return e, nil
	case Placeholder:
		return e.final(), nil
	}
	return nil, errors.Wrapf(failure.ErrMalformed, "unknown element at %d", order)
}

// Resolve runs the second pass: RET placeholders without targets receive the
// subroutine return points, then every placeholder is resolved exactly once.
func (p *Program) Resolve() ([]Instruction, error) {
	if p.resolved != nil {
		return nil, errors.Wrapf(failure.ErrMalformed, "%v already resolved", p.ID)
	}
	returns := p.SubroutineReturns()
	for _, ph := range p.Placeholders() {
		if ret, ok := ph.(*RetPlaceholder); ok && len(ret.targets) == 0 {
			if err := ret.SetTargets(returns); err != nil {
				return nil, err
			}
		}
		if _, err := ph.Resolve(p.lookup); err != nil {
			return nil, err
		}
	}
	return p.Instructions()
}

// Instructions returns the resolved stream. It fails while any placeholder
// is unresolved.
func (p *Program) Instructions() ([]Instruction, error) {
	if p.resolved != nil {
		return p.resolved, nil
	}
	out := make([]Instruction, len(p.elems))
	for i, e := range p.elems {
		switch e := e.(type) {
		case Instruction:
			out[i] = e
		case Placeholder:
			if !e.Resolved() {
				return nil, failure.Wrap(e.Order(), errors.Wrapf(ErrUnresolved, "%s", e.Label()))
			}
			out[i] = e.final()
		}
	}
	p.resolved = out
	return out, nil
}

// SuccessorsOf returns the successors of any element. Placeholders only have
// successors once resolved.
func SuccessorsOf(e Element) ([]int, error) {
	switch e := e.(type) {
	case Instruction:
		return e.Successors(), nil
	case Placeholder:
		if e.Resolved() {
			return e.final().Successors(), nil
		}
		return nil, failure.Wrap(e.Order(), errors.Wrapf(ErrUnresolved, "%s", e.Label()))
	}
	return nil, errors.Errorf("unknown element %T", e)
}

// SuccessorsWithHandlers adds the handlers of every try range covering ins to
// its normal successors.
func SuccessorsWithHandlers(ins Instruction, table []TryCatch) []int {
	out := ins.Successors()
	seen := make(map[int]bool, len(out)+len(table))
	for _, s := range out {
		seen[s] = true
	}
	for _, tc := range table {
		if tc.Covers(ins.Order()) && !seen[tc.Handler] {
			seen[tc.Handler] = true
			out = append(out, tc.Handler)
		}
	}
	return out
}
