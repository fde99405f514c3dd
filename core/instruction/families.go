package instruction

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/jflow-project/jflow/core/descriptor"
	"github.com/jflow-project/jflow/core/lattice"
	"github.com/jflow-project/jflow/core/opcodes"
)

// Nop does nothing.
type Nop struct{ plain }

func (n *Nop) ConsumedFromStack() []lattice.Set { return nil }
func (n *Nop) PushedToStack() lattice.Set       { return lattice.Void }

// Load pushes the value of a local slot. The pushed type is the opcode's
// category; the frame engine narrows it with the variable table.
type Load struct {
	plain
	Slot int
}

func (l *Load) ConsumedFromStack() []lattice.Set { return nil }
func (l *Load) PushedToStack() lattice.Set       { return localCategory(l.op) }
func (l *Load) ReadsVariables() mapset.Set[int]  { return slots(l.Slot) }
func (l *Load) Label() string                    { return fmt.Sprintf("%v %d", l.op, l.Slot) }

// Store pops a value into a local slot.
type Store struct {
	plain
	Slot int
}

func (s *Store) ConsumedFromStack() []lattice.Set {
	c := localCategory(s.op)
	if s.op == opcodes.ASTORE {
		// Subroutines keep their return address in a local.
		c = c.Union(lattice.Address)
	}
	return []lattice.Set{c}
}
func (s *Store) PushedToStack() lattice.Set       { return lattice.Void }
func (s *Store) WritesVariables() mapset.Set[int] { return slots(s.Slot) }
func (s *Store) Label() string                    { return fmt.Sprintf("%v %d", s.op, s.Slot) }

// localCategory maps the explicit-slot load and store opcodes onto the
// category they move.
func localCategory(op opcodes.Opcode) lattice.Set {
	switch op {
	case opcodes.ILOAD, opcodes.ISTORE:
		return lattice.IntegerLike
	case opcodes.LLOAD, opcodes.LSTORE:
		return lattice.Long
	case opcodes.FLOAD, opcodes.FSTORE:
		return lattice.Float
	case opcodes.DLOAD, opcodes.DSTORE:
		return lattice.Double
	}
	return lattice.Reference
}

// Iinc increments an int local in place.
type Iinc struct {
	plain
	Slot  int
	Delta int
}

func (i *Iinc) ConsumedFromStack() []lattice.Set { return nil }
func (i *Iinc) PushedToStack() lattice.Set       { return lattice.Void }
func (i *Iinc) ReadsVariables() mapset.Set[int]  { return slots(i.Slot) }
func (i *Iinc) WritesVariables() mapset.Set[int] { return slots(i.Slot) }
func (i *Iinc) Label() string                    { return fmt.Sprintf("IINC %d %d", i.Slot, i.Delta) }

// ArrayLoad reads an element of an array.
type ArrayLoad struct {
	plain
	Element lattice.Set
}

func (a *ArrayLoad) ConsumedFromStack() []lattice.Set {
	return []lattice.Set{lattice.Array, lattice.IntegerLike}
}
func (a *ArrayLoad) PushedToStack() lattice.Set { return a.Element }

// ArrayStore writes an element of an array.
type ArrayStore struct {
	plain
	Element lattice.Set
}

func (a *ArrayStore) ConsumedFromStack() []lattice.Set {
	return []lattice.Set{lattice.Array, lattice.IntegerLike, a.Element}
}
func (a *ArrayStore) PushedToStack() lattice.Set { return lattice.Void }

// arrayElement maps the array access opcodes onto their element category.
func arrayElement(op opcodes.Opcode) lattice.Set {
	switch op {
	case opcodes.IALOAD, opcodes.IASTORE:
		return lattice.Int
	case opcodes.LALOAD, opcodes.LASTORE:
		return lattice.Long
	case opcodes.FALOAD, opcodes.FASTORE:
		return lattice.Float
	case opcodes.DALOAD, opcodes.DASTORE:
		return lattice.Double
	case opcodes.AALOAD, opcodes.AASTORE:
		return lattice.Reference
	case opcodes.BALOAD, opcodes.BASTORE:
		return lattice.Of(lattice.Byte, lattice.Boolean)
	case opcodes.CALOAD, opcodes.CASTORE:
		return lattice.Char
	}
	return lattice.Short
}

// BinaryOp is an arithmetic or bitwise operation on two operands of the same
// category.
type BinaryOp struct {
	plain
	Operation string
	Category  lattice.Set
}

func (b *BinaryOp) ConsumedFromStack() []lattice.Set {
	return []lattice.Set{b.Category, b.Category}
}
func (b *BinaryOp) PushedToStack() lattice.Set { return b.Category }

// Shift shifts an int or long by an int distance.
type Shift struct {
	plain
	Category lattice.Set
}

func (s *Shift) ConsumedFromStack() []lattice.Set {
	return []lattice.Set{s.Category, lattice.IntegerLike}
}
func (s *Shift) PushedToStack() lattice.Set { return s.Category }

// Negate negates a numeric value.
type Negate struct {
	plain
	Category lattice.Set
}

func (n *Negate) ConsumedFromStack() []lattice.Set { return []lattice.Set{n.Category} }
func (n *Negate) PushedToStack() lattice.Set       { return n.Category }

// Convert is a primitive conversion such as I2L.
type Convert struct {
	plain
	From lattice.Set
	To   lattice.Set
}

func (c *Convert) ConsumedFromStack() []lattice.Set { return []lattice.Set{c.From} }
func (c *Convert) PushedToStack() lattice.Set       { return c.To }

// Compare compares two long, float or double values and pushes -1, 0 or 1.
type Compare struct {
	plain
	Category lattice.Set
}

func (c *Compare) ConsumedFromStack() []lattice.Set {
	return []lattice.Set{c.Category, c.Category}
}
func (c *Compare) PushedToStack() lattice.Set { return lattice.Int }

// Return leaves the method, consuming a value of the declared return type.
type Return struct {
	plain
	Category lattice.Set
}

func (r *Return) ConsumedFromStack() []lattice.Set {
	if r.Category == lattice.Void {
		return nil
	}
	return []lattice.Set{r.Category}
}
func (r *Return) PushedToStack() lattice.Set { return lattice.Void }

// Throw raises the exception on top of the stack.
type Throw struct{ plain }

func (t *Throw) ConsumedFromStack() []lattice.Set { return []lattice.Set{lattice.Object} }
func (t *Throw) PushedToStack() lattice.Set       { return lattice.Void }

// Monitor enters or exits the monitor of an object.
type Monitor struct{ plain }

func (m *Monitor) ConsumedFromStack() []lattice.Set { return []lattice.Set{lattice.Reference} }
func (m *Monitor) PushedToStack() lattice.Set       { return lattice.Void }

// ArrayLength pushes the length of an array.
type ArrayLength struct{ plain }

func (a *ArrayLength) ConsumedFromStack() []lattice.Set { return []lattice.Set{lattice.Array} }
func (a *ArrayLength) PushedToStack() lattice.Set       { return lattice.Int }

// NewObject allocates an uninitialized instance of Type.
type NewObject struct {
	plain
	Type string
}

func (n *NewObject) ConsumedFromStack() []lattice.Set { return nil }
func (n *NewObject) PushedToStack() lattice.Set       { return lattice.Object }
func (n *NewObject) Label() string                    { return "NEW " + n.Type }

// NewArray allocates an array with Dims dimension counts taken from the
// stack. Type is the element descriptor for NEWARRAY and ANEWARRAY and the
// array descriptor for MULTIANEWARRAY.
type NewArray struct {
	plain
	Type string
	Dims int
}

func (n *NewArray) ConsumedFromStack() []lattice.Set {
	out := make([]lattice.Set, n.Dims)
	for i := range out {
		out[i] = lattice.IntegerLike
	}
	return out
}
func (n *NewArray) PushedToStack() lattice.Set { return lattice.Array }
func (n *NewArray) Label() string              { return fmt.Sprintf("%v %s", n.op, n.Type) }

// TypeCheck is CHECKCAST or INSTANCEOF.
type TypeCheck struct {
	plain
	Type string
}

func (c *TypeCheck) ConsumedFromStack() []lattice.Set { return []lattice.Set{lattice.Reference} }
func (c *TypeCheck) PushedToStack() lattice.Set {
	if c.op == opcodes.INSTANCEOF {
		return lattice.Of(lattice.Int, lattice.Boolean)
	}
	return descriptor.OwnerCategory(c.Type)
}
func (c *TypeCheck) Label() string { return fmt.Sprintf("%v %s", c.op, c.Type) }

// Field reads or writes a static or instance field.
type Field struct {
	plain
	Owner string
	Name  string
	Desc  string
}

func (f *Field) ConsumedFromStack() []lattice.Set {
	value := descriptor.Category(f.Desc)
	switch f.op {
	case opcodes.PUTSTATIC:
		return []lattice.Set{value}
	case opcodes.GETFIELD:
		return []lattice.Set{lattice.Object}
	case opcodes.PUTFIELD:
		return []lattice.Set{lattice.Object, value}
	}
	return nil
}

func (f *Field) PushedToStack() lattice.Set {
	if f.op == opcodes.GETSTATIC || f.op == opcodes.GETFIELD {
		return descriptor.Category(f.Desc)
	}
	return lattice.Void
}
func (f *Field) Label() string { return fmt.Sprintf("%v %s.%s %s", f.op, f.Owner, f.Name, f.Desc) }

// Invoke calls a method. For INVOKEDYNAMIC, Owner is empty and Desc is the
// call site descriptor.
type Invoke struct {
	plain
	Owner string
	Name  string
	Desc  string

	method *descriptor.Method
}

// HasReceiver reports whether the call consumes a receiver below its
// arguments.
func (i *Invoke) HasReceiver() bool {
	return i.op != opcodes.INVOKESTATIC && i.op != opcodes.INVOKEDYNAMIC
}

func (i *Invoke) ConsumedFromStack() []lattice.Set {
	params := i.method.ParamCategories()
	if !i.HasReceiver() {
		return params
	}
	return append([]lattice.Set{descriptor.OwnerCategory(i.Owner)}, params...)
}

func (i *Invoke) PushedToStack() lattice.Set { return i.method.ReturnCategory() }

func (i *Invoke) Label() string {
	if i.op == opcodes.INVOKEDYNAMIC {
		return fmt.Sprintf("%v %s %s", i.op, i.Name, i.Desc)
	}
	return fmt.Sprintf("%v %s.%s %s", i.op, i.Owner, i.Name, i.Desc)
}
