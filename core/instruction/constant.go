package instruction

import (
	"fmt"
	"strings"

	"github.com/jflow-project/jflow/core/descriptor"
	"github.com/jflow-project/jflow/core/failure"
	"github.com/jflow-project/jflow/core/lattice"
	"github.com/jflow-project/jflow/core/opcodes"
)

// ConstKind is the kind of a pushed literal.
type ConstKind int

const (
	ConstNull ConstKind = iota
	ConstInt
	ConstLong
	ConstFloat
	ConstDouble
	ConstString
	ConstClass
	ConstMethodType
	ConstMethodHandle
	ConstDynamic
)

var constKindNames = [...]string{
	ConstNull:         "null",
	ConstInt:          "int",
	ConstLong:         "long",
	ConstFloat:        "float",
	ConstDouble:       "double",
	ConstString:       "string",
	ConstClass:        "class",
	ConstMethodType:   "methodtype",
	ConstMethodHandle: "methodhandle",
	ConstDynamic:      "dynamic",
}

func (k ConstKind) String() string {
	if int(k) < len(constKindNames) {
		return constKindNames[k]
	}
	return fmt.Sprintf("ConstKind(%d)", int(k))
}

// ParseConstKind returns the kind with the given name.
func ParseConstKind(name string) (ConstKind, bool) {
	for k, n := range constKindNames {
		if n == name {
			return ConstKind(k), true
		}
	}
	return 0, false
}

// wide reports whether the kind is pushed by LDC2_W.
func (k ConstKind) wide() bool { return k == ConstLong || k == ConstDouble }

// Const is a literal pushed by LDC, LDC_W or LDC2_W. Desc is only used by
// dynamically computed constants and holds their field descriptor.
type Const struct {
	Kind  ConstKind
	Value interface{}
	Desc  string
}

// Constant pushes a literal.
type Constant struct {
	plain
	Kind  ConstKind
	Value interface{}

	category lattice.Set
}

func (c *Constant) ConsumedFromStack() []lattice.Set { return nil }
func (c *Constant) PushedToStack() lattice.Set       { return c.category }

func (c *Constant) Label() string {
	switch c.op {
	case opcodes.BIPUSH, opcodes.SIPUSH, opcodes.LDC, opcodes.LDC_W, opcodes.LDC2_W:
		return fmt.Sprintf("%v %v", c.op, c.Value)
	}
	return c.op.String()
}

// intCategory is the type of an int literal. Only 0 and 1 can stand for a
// boolean.
func intCategory(v int64) lattice.Set {
	if v == 0 || v == 1 {
		return lattice.IntegerLike
	}
	return lattice.IntegerLike.Minus(lattice.Boolean)
}

// literalRange bounds the literals each short constant encoding can hold.
var literalRange = map[opcodes.Opcode][2]int64{
	opcodes.ICONST_M1: {-1, 5},
	opcodes.LCONST_0:  {0, 1},
	opcodes.FCONST_0:  {0, 2},
	opcodes.DCONST_0:  {0, 1},
	opcodes.BIPUSH:    {-128, 127},
	opcodes.SIPUSH:    {-32768, 32767},
}

// checkLiteral validates v against the range of the encoding family starting
// at first.
func checkLiteral(order int, first opcodes.Opcode, v int64) error {
	r := literalRange[first]
	if v < r[0] || v > r[1] {
		name := first.String()
		if first != opcodes.BIPUSH && first != opcodes.SIPUSH {
			name = name[:strings.LastIndexByte(name, '_')+1] + "*"
		}
		return failure.Malformed(order, "literal %d out of range [%d,%d] for %s", v, r[0], r[1], name)
	}
	return nil
}

// shortConstant builds the instruction for one of the ICONST_M1 ... DCONST_1
// opcodes.
func shortConstant(b base) *Constant {
	c := &Constant{plain: plain{b}}
	switch op := b.op; {
	case op == opcodes.ACONST_NULL:
		c.Kind, c.category = ConstNull, lattice.Reference
	case op >= opcodes.ICONST_M1 && op <= opcodes.ICONST_5:
		v := int64(op) - int64(opcodes.ICONST_0)
		c.Kind, c.Value, c.category = ConstInt, v, intCategory(v)
	case op <= opcodes.LCONST_1:
		c.Kind, c.Value, c.category = ConstLong, int64(op-opcodes.LCONST_0), lattice.Long
	case op <= opcodes.FCONST_2:
		c.Kind, c.Value, c.category = ConstFloat, float64(op-opcodes.FCONST_0), lattice.Float
	default:
		c.Kind, c.Value, c.category = ConstDouble, float64(op-opcodes.DCONST_0), lattice.Double
	}
	return c
}

// pushConstant builds BIPUSH or SIPUSH.
func pushConstant(b base, v int64) (*Constant, error) {
	if err := checkLiteral(b.order, b.op, v); err != nil {
		return nil, err
	}
	return &Constant{plain: plain{b}, Kind: ConstInt, Value: v, category: lattice.IntegerLike.Minus(lattice.Boolean)}, nil
}

// ldcConstant builds LDC, LDC_W or LDC2_W. Long and double literals need the
// wide form, every other kind the narrow ones.
func ldcConstant(b base, k Const) (*Constant, error) {
	if k.Kind != ConstDynamic && k.Kind.wide() != (b.op == opcodes.LDC2_W) {
		return nil, failure.Malformed(b.order, "%v cannot load a %v constant", b.op, k.Kind)
	}
	c := &Constant{plain: plain{b}, Kind: k.Kind, Value: k.Value}
	switch k.Kind {
	case ConstInt:
		c.category = lattice.IntegerLike.Minus(lattice.Boolean)
	case ConstLong:
		c.category = lattice.Long
	case ConstFloat:
		c.category = lattice.Float
	case ConstDouble:
		c.category = lattice.Double
	case ConstString, ConstClass, ConstMethodType, ConstMethodHandle:
		c.category = lattice.Object
	case ConstDynamic:
		c.category = descriptor.Category(k.Desc)
		if c.category.IsEmpty() || c.category == lattice.Void {
			return nil, failure.Malformed(b.order, "dynamic constant with descriptor %q", k.Desc)
		}
		if (c.category.Width() == 2) != (b.op == opcodes.LDC2_W) {
			return nil, failure.Malformed(b.order, "%v cannot load a dynamic constant of type %s", b.op, k.Desc)
		}
	default:
		return nil, failure.Malformed(b.order, "%v cannot load a %v constant", b.op, k.Kind)
	}
	return c, nil
}
