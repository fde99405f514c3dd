// Package variables tracks which declared variable occupies each local slot
// over the lifetime of a method. Slots are reused by unrelated variables, so
// every slot maps to a list of intervals in instruction orders.
package variables

import (
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/jflow-project/jflow/core/descriptor"
	"github.com/jflow-project/jflow/core/failure"
	"github.com/jflow-project/jflow/core/lattice"
)

// Declaration is one entry of the local variable debug table. Start and End
// are inclusive instruction orders.
type Declaration struct {
	Slot      int
	Name      string
	Desc      string
	Signature string
	Start     int
	End       int
}

// Lifetime is the interval during which a declared variable occupies a slot.
type Lifetime struct {
	Slot  int
	Name  string
	Desc  string
	Start int
	End   int
}

// Category returns the lattice category of the declared type.
func (l Lifetime) Category() lattice.Set { return descriptor.Category(l.Desc) }

// IsAliveAt reports whether the variable holds the slot at order. With
// inclusive set, the instruction at order itself counts. Otherwise the
// question is whether the variable was live just before the instruction,
// that is at the previous order.
func (l Lifetime) IsAliveAt(order int, inclusive bool) bool {
	if !inclusive {
		order--
	}
	return order >= l.Start && order <= l.End
}

func (l Lifetime) String() string {
	return fmt.Sprintf("slot %d %s %s [%d,%d]", l.Slot, l.Name, l.Desc, l.Start, l.End)
}

// overlaps reports whether two intervals share an order.
func (l Lifetime) overlaps(o Lifetime) bool {
	return l.Start <= o.End && o.Start <= l.End
}

// Table holds the lifetimes of every slot of one method together with the
// parameter layout used when no lifetime covers a slot.
type Table struct {
	lifetimes map[int][]Lifetime
	params    []lattice.Set
	overlaps  []int
}

// New builds the table from declarations. size is the instruction count of
// the method; declarations reaching past it are malformed. m may be nil when
// the descriptor is unknown.
func New(decls []Declaration, m *descriptor.Method, static bool, size int) (*Table, error) {
	t := &Table{lifetimes: make(map[int][]Lifetime)}
	if m != nil {
		t.params = m.SpacedParams(static)
	}
	for _, d := range decls {
		if d.Slot < 0 {
			return nil, errors.Wrapf(failure.ErrMalformed, "variable %s has negative slot %d", d.Name, d.Slot)
		}
		if d.Start < 0 || d.End < d.Start || d.End >= size {
			return nil, errors.Wrapf(failure.ErrMalformed, "variable %s in slot %d has range [%d,%d] outside [0,%d)", d.Name, d.Slot, d.Start, d.End, size)
		}
		if err := descriptor.ValidateField(d.Desc); err != nil {
			return nil, errors.Wrapf(failure.ErrMalformed, "variable %s: %v", d.Name, err)
		}
		l := Lifetime{Slot: d.Slot, Name: d.Name, Desc: d.Desc, Start: d.Start, End: d.End}
		if !slices.Contains(t.lifetimes[d.Slot], l) {
			t.lifetimes[d.Slot] = append(t.lifetimes[d.Slot], l)
		}
	}
	for slot, ls := range t.lifetimes {
		slices.SortFunc(ls, func(a, b Lifetime) int { return a.Start - b.Start })
		for i := 1; i < len(ls); i++ {
			if ls[i-1].overlaps(ls[i]) {
				t.overlaps = append(t.overlaps, slot)
				break
			}
		}
	}
	slices.Sort(t.overlaps)
	return t, nil
}

// Slots returns the slots that have at least one lifetime, ascending.
func (t *Table) Slots() []int {
	slots := maps.Keys(t.lifetimes)
	slices.Sort(slots)
	return slots
}

// Lifetimes returns the intervals of a slot ordered by start.
func (t *Table) Lifetimes(slot int) []Lifetime {
	return slices.Clone(t.lifetimes[slot])
}

// Overlapping returns the slots whose declared intervals overlap. Queries on
// those slots fail where more than one interval is live.
func (t *Table) Overlapping() []int { return slices.Clone(t.overlaps) }

// LiveAt returns the lifetime holding slot at order. More than one live
// lifetime is an ambiguous-typing error.
func (t *Table) LiveAt(slot, order int, inclusive bool) (Lifetime, bool, error) {
	var (
		found Lifetime
		n     int
	)
	for _, l := range t.lifetimes[slot] {
		if l.IsAliveAt(order, inclusive) {
			found = l
			n++
		}
	}
	switch {
	case n > 1:
		return Lifetime{}, false, failure.At(order, failure.ErrAmbiguous, "%d variables live in slot %d", n, slot)
	case n == 0:
		return Lifetime{}, false, nil
	}
	return found, true, nil
}

// ParamCategory returns the category of the parameter occupying slot on
// method entry, the receiver included.
func (t *Table) ParamCategory(slot int) (lattice.Set, bool) {
	if slot < 0 || slot >= len(t.params) || t.params[slot].IsEmpty() {
		return lattice.Empty, false
	}
	return t.params[slot], true
}

// TypeAt types slot at order: the declared type of the live variable if
// there is one, then the parameter declared for the slot, then fallback.
func (t *Table) TypeAt(slot, order int, fallback lattice.Set) (lattice.Set, error) {
	l, ok, err := t.LiveAt(slot, order, true)
	if err != nil {
		return lattice.Empty, err
	}
	if ok {
		return l.Category(), nil
	}
	if c, ok := t.ParamCategory(slot); ok {
		return c, nil
	}
	return fallback, nil
}

// StoredTypeAt types the variable written by a store at order. Compilers
// open the variable's range after the store, so the instruction that follows
// is checked first.
func (t *Table) StoredTypeAt(slot, order int) (Lifetime, bool, error) {
	l, ok, err := t.LiveAt(slot, order+1, true)
	if err != nil || ok {
		return l, ok, err
	}
	return t.LiveAt(slot, order, true)
}
