package instruction

import (
	"github.com/jflow-project/jflow/core/descriptor"
	"github.com/jflow-project/jflow/core/failure"
	"github.com/jflow-project/jflow/core/lattice"
	"github.com/jflow-project/jflow/core/opcodes"
)

// Builder performs the first pass over a method body. The reader feeds it
// instructions strictly in program order; every call appends exactly one
// element whose order is its position. Jumps, switches and RET become
// placeholders.
type Builder struct {
	prog  *Program
	id    *MethodID
	cache *descriptor.Cache
	line  int
}

// NewBuilder starts a method. cache may be nil.
func NewBuilder(id MethodID, static bool, cache *descriptor.Cache) (*Builder, error) {
	var (
		m   *descriptor.Method
		err error
	)
	if cache != nil {
		m, err = cache.Method(id.Desc)
	} else {
		m, err = descriptor.ParseMethod(id.Desc)
	}
	if err != nil {
		return nil, failure.Wrap(failure.NoOrder, err)
	}
	b := &Builder{
		prog:  &Program{ID: id, Static: static, Method: m},
		cache: cache,
		line:  UnknownLine,
	}
	b.id = &b.prog.ID
	return b, nil
}

// Program returns the elements built so far.
func (b *Builder) Program() *Program { return b.prog }

// Line sets the source line of the instructions that follow.
func (b *Builder) Line(line int) { b.line = line }

func (b *Builder) next(op opcodes.Opcode) base {
	return base{method: b.id, order: len(b.prog.elems), op: op, line: b.line}
}

func (b *Builder) add(e Element) {
	b.prog.elems = append(b.prog.elems, e)
}

func (b *Builder) unexpected(op opcodes.Opcode, form string) error {
	return failure.Malformed(len(b.prog.elems), "%v is not a %s instruction", op, form)
}

func (b *Builder) method(desc string) (*descriptor.Method, error) {
	if b.cache != nil {
		return b.cache.Method(desc)
	}
	return descriptor.ParseMethod(desc)
}

// Insn appends an instruction without operands. Short local forms such as
// ILOAD_1 are accepted and expanded.
func (b *Builder) Insn(op opcodes.Opcode) error {
	if slot, ok := op.ImplicitSlot(); ok {
		return b.Var(op.Generic(), slot)
	}
	nb := b.next(op)
	p := plain{nb}
	switch {
	case op == opcodes.NOP:
		b.add(&Nop{p})
	case op >= opcodes.ACONST_NULL && op <= opcodes.DCONST_1:
		b.add(shortConstant(nb))
	case op.IsArrayLoad():
		b.add(&ArrayLoad{plain: p, Element: arrayElement(op)})
	case op.IsArrayStore():
		b.add(&ArrayStore{plain: p, Element: arrayElement(op)})
	case op >= opcodes.POP && op <= opcodes.SWAP:
		b.add(&StackOp{p})
	case op >= opcodes.IADD && op <= opcodes.DREM:
		b.add(&BinaryOp{plain: p, Operation: arithNames[(op-opcodes.IADD)/4], Category: numeric[(op-opcodes.IADD)%4]})
	case op >= opcodes.INEG && op <= opcodes.DNEG:
		b.add(&Negate{plain: p, Category: numeric[op-opcodes.INEG]})
	case op >= opcodes.ISHL && op <= opcodes.LUSHR:
		b.add(&Shift{plain: p, Category: numeric[(op-opcodes.ISHL)%2]})
	case op >= opcodes.IAND && op <= opcodes.LXOR:
		b.add(&BinaryOp{plain: p, Operation: bitwiseNames[(op-opcodes.IAND)/2], Category: numeric[(op-opcodes.IAND)%2]})
	case op >= opcodes.I2L && op <= opcodes.I2S:
		c := conversions[op]
		b.add(&Convert{plain: p, From: c[0], To: c[1]})
	case op == opcodes.LCMP:
		b.add(&Compare{plain: p, Category: lattice.Long})
	case op == opcodes.FCMPL || op == opcodes.FCMPG:
		b.add(&Compare{plain: p, Category: lattice.Float})
	case op == opcodes.DCMPL || op == opcodes.DCMPG:
		b.add(&Compare{plain: p, Category: lattice.Double})
	case op.IsReturn():
		ret, err := b.returnCategory(op)
		if err != nil {
			return err
		}
		b.add(&Return{plain: p, Category: ret})
	case op == opcodes.ARRAYLENGTH:
		b.add(&ArrayLength{p})
	case op == opcodes.ATHROW:
		b.add(&Throw{p})
	case op == opcodes.MONITORENTER || op == opcodes.MONITOREXIT:
		b.add(&Monitor{p})
	default:
		return b.unexpected(op, "zero-operand")
	}
	return nil
}

var (
	arithNames   = [...]string{"add", "sub", "mul", "div", "rem"}
	bitwiseNames = [...]string{"and", "or", "xor"}
	numeric      = [...]lattice.Set{lattice.IntegerLike, lattice.Long, lattice.Float, lattice.Double}

	conversions = map[opcodes.Opcode][2]lattice.Set{
		opcodes.I2L: {lattice.IntegerLike, lattice.Long},
		opcodes.I2F: {lattice.IntegerLike, lattice.Float},
		opcodes.I2D: {lattice.IntegerLike, lattice.Double},
		opcodes.L2I: {lattice.Long, lattice.Int},
		opcodes.L2F: {lattice.Long, lattice.Float},
		opcodes.L2D: {lattice.Long, lattice.Double},
		opcodes.F2I: {lattice.Float, lattice.Int},
		opcodes.F2L: {lattice.Float, lattice.Long},
		opcodes.F2D: {lattice.Float, lattice.Double},
		opcodes.D2I: {lattice.Double, lattice.Int},
		opcodes.D2L: {lattice.Double, lattice.Long},
		opcodes.D2F: {lattice.Double, lattice.Float},
		opcodes.I2B: {lattice.IntegerLike, lattice.Byte},
		opcodes.I2C: {lattice.IntegerLike, lattice.Char},
		opcodes.I2S: {lattice.IntegerLike, lattice.Short},
	}
)

// returnCategory checks a return opcode against the method descriptor.
func (b *Builder) returnCategory(op opcodes.Opcode) (lattice.Set, error) {
	ret := b.prog.Method.ReturnCategory()
	var ok bool
	switch op {
	case opcodes.IRETURN:
		ok = ret.SubsetOf(lattice.IntegerLike)
	case opcodes.LRETURN:
		ok = ret == lattice.Long
	case opcodes.FRETURN:
		ok = ret == lattice.Float
	case opcodes.DRETURN:
		ok = ret == lattice.Double
	case opcodes.ARETURN:
		ok = ret.SubsetOf(lattice.Reference)
	case opcodes.RETURN:
		ok = ret == lattice.Void
	}
	if !ok {
		return lattice.Empty, failure.Malformed(len(b.prog.elems), "%v in method returning %s", op, b.prog.Method.Return)
	}
	return ret, nil
}

// Iconst appends the ICONST_* encoding of v.
func (b *Builder) Iconst(v int) error {
	if err := checkLiteral(len(b.prog.elems), opcodes.ICONST_M1, int64(v)); err != nil {
		return err
	}
	return b.Insn(opcodes.Opcode(int(opcodes.ICONST_0) + v))
}

// Lconst appends the LCONST_* encoding of v.
func (b *Builder) Lconst(v int) error {
	if err := checkLiteral(len(b.prog.elems), opcodes.LCONST_0, int64(v)); err != nil {
		return err
	}
	return b.Insn(opcodes.LCONST_0 + opcodes.Opcode(v))
}

// Fconst appends the FCONST_* encoding of v.
func (b *Builder) Fconst(v int) error {
	if err := checkLiteral(len(b.prog.elems), opcodes.FCONST_0, int64(v)); err != nil {
		return err
	}
	return b.Insn(opcodes.FCONST_0 + opcodes.Opcode(v))
}

// Dconst appends the DCONST_* encoding of v.
func (b *Builder) Dconst(v int) error {
	if err := checkLiteral(len(b.prog.elems), opcodes.DCONST_0, int64(v)); err != nil {
		return err
	}
	return b.Insn(opcodes.DCONST_0 + opcodes.Opcode(v))
}

var arrayTypes = map[int]string{4: "Z", 5: "C", 6: "F", 7: "D", 8: "B", 9: "S", 10: "I", 11: "J"}

// Int appends BIPUSH, SIPUSH or NEWARRAY with its immediate operand.
func (b *Builder) Int(op opcodes.Opcode, v int) error {
	nb := b.next(op)
	switch op {
	case opcodes.BIPUSH, opcodes.SIPUSH:
		c, err := pushConstant(nb, int64(v))
		if err != nil {
			return err
		}
		b.add(c)
	case opcodes.NEWARRAY:
		elem, ok := arrayTypes[v]
		if !ok {
			return failure.Malformed(nb.order, "NEWARRAY with unknown element type %d", v)
		}
		b.add(&NewArray{plain: plain{nb}, Type: elem, Dims: 1})
	default:
		return b.unexpected(op, "int operand")
	}
	return nil
}

// Var appends a local load, store or RET.
func (b *Builder) Var(op opcodes.Opcode, slot int) error {
	nb := b.next(op)
	if slot < 0 || slot > 0xffff {
		return failure.Malformed(nb.order, "%v with slot %d", op, slot)
	}
	switch {
	case op >= opcodes.ILOAD && op <= opcodes.ALOAD:
		b.add(&Load{plain: plain{nb}, Slot: slot})
	case op >= opcodes.ISTORE && op <= opcodes.ASTORE:
		b.add(&Store{plain: plain{nb}, Slot: slot})
	case op == opcodes.RET:
		b.add(newRetPlaceholder(nb, slot))
	default:
		return b.unexpected(op, "local variable")
	}
	return nil
}

// Iinc appends IINC.
func (b *Builder) Iinc(slot, delta int) error {
	nb := b.next(opcodes.IINC)
	if slot < 0 || slot > 0xffff {
		return failure.Malformed(nb.order, "IINC with slot %d", slot)
	}
	b.add(&Iinc{plain: plain{nb}, Slot: slot, Delta: delta})
	return nil
}

// Type appends NEW, ANEWARRAY, CHECKCAST or INSTANCEOF. typ is an internal
// class name, or an array descriptor.
func (b *Builder) Type(op opcodes.Opcode, typ string) error {
	nb := b.next(op)
	if typ == "" {
		return failure.Malformed(nb.order, "%v without a type", op)
	}
	p := plain{nb}
	switch op {
	case opcodes.NEW:
		b.add(&NewObject{plain: p, Type: typ})
	case opcodes.ANEWARRAY:
		b.add(&NewArray{plain: p, Type: typ, Dims: 1})
	case opcodes.CHECKCAST, opcodes.INSTANCEOF:
		b.add(&TypeCheck{plain: p, Type: typ})
	default:
		return b.unexpected(op, "type")
	}
	return nil
}

// MultiANewArray appends MULTIANEWARRAY.
func (b *Builder) MultiANewArray(desc string, dims int) error {
	nb := b.next(opcodes.MULTIANEWARRAY)
	if err := descriptor.ValidateField(desc); err != nil {
		return failure.Wrap(nb.order, err)
	}
	depth := 0
	for depth < len(desc) && desc[depth] == '[' {
		depth++
	}
	if dims < 1 || dims > depth {
		return failure.Malformed(nb.order, "MULTIANEWARRAY %s with %d dimensions", desc, dims)
	}
	b.add(&NewArray{plain: plain{nb}, Type: desc, Dims: dims})
	return nil
}

// Field appends a field access.
func (b *Builder) Field(op opcodes.Opcode, owner, name, desc string) error {
	nb := b.next(op)
	if !op.IsField() {
		return b.unexpected(op, "field")
	}
	if err := descriptor.ValidateField(desc); err != nil {
		return failure.Wrap(nb.order, err)
	}
	b.add(&Field{plain: plain{nb}, Owner: owner, Name: name, Desc: desc})
	return nil
}

// Invoke appends a method invocation. owner is ignored for INVOKEDYNAMIC,
// whose desc is the call site descriptor.
func (b *Builder) Invoke(op opcodes.Opcode, owner, name, desc string) error {
	nb := b.next(op)
	if !op.IsInvoke() {
		return b.unexpected(op, "method")
	}
	m, err := b.method(desc)
	if err != nil {
		return failure.Wrap(nb.order, err)
	}
	if op == opcodes.INVOKEDYNAMIC {
		owner = ""
	}
	b.add(&Invoke{plain: plain{nb}, Owner: owner, Name: name, Desc: desc, method: m})
	return nil
}

// Ldc appends LDC, LDC_W or LDC2_W.
func (b *Builder) Ldc(op opcodes.Opcode, c Const) error {
	nb := b.next(op)
	if op != opcodes.LDC && op != opcodes.LDC_W && op != opcodes.LDC2_W {
		return b.unexpected(op, "constant pool load")
	}
	ins, err := ldcConstant(nb, c)
	if err != nil {
		return err
	}
	b.add(ins)
	return nil
}

// Jump appends a jump placeholder targeting the given order.
func (b *Builder) Jump(op opcodes.Opcode, target int) error {
	if !op.IsJump() {
		return b.unexpected(op, "jump")
	}
	b.add(newJumpPlaceholder(b.next(op), target))
	return nil
}

// TableSwitch appends a table switch placeholder over keys [min,max].
func (b *Builder) TableSwitch(min, max, dflt int, targets []int) error {
	ph, err := newTableSwitchPlaceholder(b.next(opcodes.TABLESWITCH), min, max, dflt, targets)
	if err != nil {
		return err
	}
	b.add(ph)
	return nil
}

// LookupSwitch appends a lookup switch placeholder.
func (b *Builder) LookupSwitch(dflt int, keys, targets []int) error {
	ph, err := newLookupSwitchPlaceholder(b.next(opcodes.LOOKUPSWITCH), keys, dflt, targets)
	if err != nil {
		return err
	}
	b.add(ph)
	return nil
}
