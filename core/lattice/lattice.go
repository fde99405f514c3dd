// Package lattice implements the finite set-valued abstraction of the value
// categories a stack entry or local slot may hold.
package lattice

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/jflow-project/jflow/core/failure"
)

// Set is a set of value categories. The zero value is the empty set. Sets are
// plain values, so every operation returns a fresh set.
type Set uint16

// Single categories.
const (
	Int Set = 1 << iota
	Float
	Long
	Double
	Object
	Array
	Boolean
	Char
	Short
	Byte
	Address
	Void
)

// Common groupings.
const (
	Empty       Set = 0
	IntegerLike     = Int | Boolean | Char | Short | Byte
	Reference       = Object | Array
	Numeric         = IntegerLike | Float | Long | Double
	Wide            = Long | Double
	Any             = Numeric | Reference | Address
)

var names = []struct {
	c    Set
	name string
}{
	{Int, "INT"},
	{Float, "FLOAT"},
	{Long, "LONG"},
	{Double, "DOUBLE"},
	{Object, "OBJECT"},
	{Array, "ARRAY"},
	{Boolean, "BOOLEAN"},
	{Char, "CHAR"},
	{Short, "SHORT"},
	{Byte, "BYTE"},
	{Address, "ADDRESS"},
	{Void, "VOID"},
}

// Of builds a set from the given categories.
func Of(cs ...Set) Set {
	var s Set
	for _, c := range cs {
		s |= c
	}
	return s
}

func (s Set) Union(o Set) Set     { return s | o }
func (s Set) Intersect(o Set) Set { return s & o }
func (s Set) Minus(o Set) Set     { return s &^ o }
func (s Set) IsEmpty() bool       { return s == Empty }
func (s Set) Equals(o Set) bool   { return s == o }

// Contains reports whether every category of o is in s.
func (s Set) Contains(o Set) bool { return s&o == o }

// Overlaps reports whether s and o share at least one category.
func (s Set) Overlaps(o Set) bool { return s&o != 0 }

// SubsetOf reports whether s is non-empty and every category of s is in o.
func (s Set) SubsetOf(o Set) bool { return s != 0 && s&^o == 0 }

// IsVoid reports whether s denotes the absence of a value.
func (s Set) IsVoid() bool { return s == Void }

// IsBoolean reports whether s is exactly the boolean category. Sets that
// merely admit a boolean are not boolean.
func (s Set) IsBoolean() bool { return s == Boolean }

// Size returns the number of categories in s.
func (s Set) Size() int {
	n := 0
	for v := s; v != 0; v &= v - 1 {
		n++
	}
	return n
}

// Categories returns the single-category members of s in declaration order.
func (s Set) Categories() []Set {
	var out []Set
	for _, n := range names {
		if s&n.c != 0 {
			out = append(out, n.c)
		}
	}
	return out
}

// Width returns the number of JVM stack words a value of s occupies: 2 for
// long and double, 0 for void and 1 otherwise.
func (s Set) Width() int {
	switch {
	case s == Empty || s == Void:
		return 0
	case s.SubsetOf(Wide):
		return 2
	}
	return 1
}

func (s Set) String() string {
	switch s {
	case Empty:
		return "{}"
	case IntegerLike:
		return "{INTEGER_LIKE}"
	case Reference:
		return "{REFERENCE}"
	}
	parts := make([]string, 0, 4)
	for _, n := range names {
		if s&n.c != 0 {
			parts = append(parts, n.name)
		}
	}
	return "{" + strings.Join(parts, "|") + "}"
}

// Parse returns the single category with the given name.
func Parse(name string) (Set, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	switch name {
	case "INTEGER_LIKE":
		return IntegerLike, true
	case "REFERENCE":
		return Reference, true
	}
	for _, n := range names {
		if n.name == name {
			return n.c, true
		}
	}
	return Empty, false
}

// ErrEmptyMerge is wrapped by Merge when the inputs cannot be reconciled.
var ErrEmptyMerge = errors.Wrap(failure.ErrLattice, "empty intersection")

// Merge combines two sets meeting at a join point. The result is their
// intersection. Two disjoint integer-like sets collapse to the non-boolean
// integer-like categories they span, and two disjoint reference sets collapse
// to Object. Any other empty intersection is an error.
func Merge(a, b Set) (Set, error) {
	if m := a & b; m != Empty {
		return m, nil
	}
	switch {
	case a.SubsetOf(IntegerLike) && b.SubsetOf(IntegerLike):
		if m := (a | b).Minus(Boolean); m != Empty {
			return m, nil
		}
		return Int, nil
	case a.SubsetOf(Reference) && b.SubsetOf(Reference):
		return Object, nil
	}
	return Empty, errors.Wrapf(ErrEmptyMerge, "%v and %v", a, b)
}
