package instruction

import (
	"fmt"
	"strings"

	"github.com/jflow-project/jflow/core/failure"
)

// Lookup returns the final instruction at an order of the method being
// resolved.
type Lookup func(order int) (Instruction, error)

// Placeholder is a first-pass jump, switch or RET. It carries raw target
// orders and becomes an Instruction through Resolve, which may be called once.
type Placeholder interface {
	Element

	// Targets lists the raw destination orders, default last for switches.
	Targets() []int
	Resolved() bool
	// Resolve looks the destinations up and returns the final instruction.
	Resolve(lookup Lookup) (Instruction, error)

	// final is the instruction Resolve will return. Other placeholders may
	// reference it before it is resolved.
	final() Instruction
}

type placeholder struct {
	base
	resolved bool
}

func (p *placeholder) Resolved() bool { return p.resolved }

// begin marks the placeholder resolved, failing if it already was.
func (p *placeholder) begin() error {
	if p.resolved {
		return failure.Malformed(p.order, "%v placeholder resolved twice", p.op)
	}
	p.resolved = true
	return nil
}

func (p *placeholder) resolveAll(lookup Lookup, targets []int) ([]Instruction, error) {
	out := make([]Instruction, len(targets))
	for i, t := range targets {
		ins, err := lookup(t)
		if err != nil {
			return nil, failure.Wrap(p.order, err)
		}
		out[i] = ins
	}
	return out, nil
}

// JumpPlaceholder is an unresolved Jump.
type JumpPlaceholder struct {
	placeholder
	target int
	out    *Jump
}

func newJumpPlaceholder(b base, target int) *JumpPlaceholder {
	return &JumpPlaceholder{
		placeholder: placeholder{base: b},
		target:      target,
		out:         &Jump{base: b},
	}
}

func (p *JumpPlaceholder) Targets() []int     { return []int{p.target} }
func (p *JumpPlaceholder) final() Instruction { return p.out }
func (p *JumpPlaceholder) Label() string      { return fmt.Sprintf("%v -> %d?", p.op, p.target) }

func (p *JumpPlaceholder) Resolve(lookup Lookup) (Instruction, error) {
	if err := p.begin(); err != nil {
		return nil, err
	}
	dest, err := p.resolveAll(lookup, p.Targets())
	if err != nil {
		return nil, err
	}
	p.out.dest = dest[0]
	return p.out, nil
}

// SwitchPlaceholder is an unresolved Switch.
type SwitchPlaceholder struct {
	placeholder
	keys    []int
	targets []int
	dflt    int
	out     *Switch
}

// newTableSwitchPlaceholder checks that exactly max-min+1 targets are given.
func newTableSwitchPlaceholder(b base, min, max, dflt int, targets []int) (*SwitchPlaceholder, error) {
	if max < min {
		return nil, failure.Malformed(b.order, "table switch range [%d,%d] is empty", min, max)
	}
	if want := max - min + 1; len(targets) != want {
		return nil, failure.Malformed(b.order, "table switch [%d,%d] needs %d destinations, got %d", min, max, want, len(targets))
	}
	keys := make([]int, len(targets))
	for i := range keys {
		keys[i] = min + i
	}
	return newSwitchPlaceholder(b, keys, dflt, targets), nil
}

// newLookupSwitchPlaceholder checks that keys and targets pair up and that
// keys are strictly increasing.
func newLookupSwitchPlaceholder(b base, keys []int, dflt int, targets []int) (*SwitchPlaceholder, error) {
	if len(keys) != len(targets) {
		return nil, failure.Malformed(b.order, "lookup switch has %d keys but %d destinations", len(keys), len(targets))
	}
	for i := 1; i < len(keys); i++ {
		if keys[i] <= keys[i-1] {
			return nil, failure.Malformed(b.order, "lookup switch keys not strictly increasing at %d", keys[i])
		}
	}
	return newSwitchPlaceholder(b, append([]int{}, keys...), dflt, targets), nil
}

func newSwitchPlaceholder(b base, keys []int, dflt int, targets []int) *SwitchPlaceholder {
	return &SwitchPlaceholder{
		placeholder: placeholder{base: b},
		keys:        keys,
		targets:     append([]int{}, targets...),
		dflt:        dflt,
		out:         &Switch{base: b, Keys: keys},
	}
}

func (p *SwitchPlaceholder) Targets() []int {
	return append(append([]int{}, p.targets...), p.dflt)
}
func (p *SwitchPlaceholder) final() Instruction { return p.out }

func (p *SwitchPlaceholder) Label() string {
	var b strings.Builder
	b.WriteString(p.op.String())
	for i, k := range p.keys {
		fmt.Fprintf(&b, " %d:%d?", k, p.targets[i])
	}
	fmt.Fprintf(&b, " default:%d?", p.dflt)
	return b.String()
}

func (p *SwitchPlaceholder) Resolve(lookup Lookup) (Instruction, error) {
	if err := p.begin(); err != nil {
		return nil, err
	}
	if len(p.keys) != len(p.targets) {
		return nil, failure.Malformed(p.order, "switch has %d keys but %d destinations", len(p.keys), len(p.targets))
	}
	all, err := p.resolveAll(lookup, p.Targets())
	if err != nil {
		return nil, err
	}
	p.out.dests = all[:len(all)-1]
	p.out.dflt = all[len(all)-1]
	return p.out, nil
}

// RetPlaceholder is an unresolved Ret. Its targets are not encoded in the
// instruction and have to be supplied with SetTargets before resolution.
type RetPlaceholder struct {
	placeholder
	slot    int
	targets []int
	out     *Ret
}

func newRetPlaceholder(b base, slot int) *RetPlaceholder {
	return &RetPlaceholder{
		placeholder: placeholder{base: b},
		slot:        slot,
		out:         &Ret{base: b, Slot: slot},
	}
}

// SetTargets supplies the possible return points.
func (p *RetPlaceholder) SetTargets(orders []int) error {
	if p.resolved {
		return failure.Malformed(p.order, "RET targets supplied after resolution")
	}
	p.targets = append([]int{}, orders...)
	return nil
}

func (p *RetPlaceholder) Targets() []int     { return append([]int{}, p.targets...) }
func (p *RetPlaceholder) final() Instruction { return p.out }
func (p *RetPlaceholder) Label() string      { return fmt.Sprintf("RET %d", p.slot) }

func (p *RetPlaceholder) Resolve(lookup Lookup) (Instruction, error) {
	if err := p.begin(); err != nil {
		return nil, err
	}
	if len(p.targets) == 0 {
		return nil, failure.Malformed(p.order, "RET resolved without return targets")
	}
	targets, err := p.resolveAll(lookup, p.targets)
	if err != nil {
		return nil, err
	}
	p.out.targets = targets
	return p.out, nil
}
