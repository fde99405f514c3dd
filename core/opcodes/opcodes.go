// Package opcodes lists the JVM instruction set and classifies opcodes by the
// way they affect the operand stack and control flow.
package opcodes

import (
	"fmt"
	"strings"
)

// Opcode is a JVM instruction opcode.
type Opcode byte

// 0x00 range - constants.
const (
	NOP         Opcode = 0x00
	ACONST_NULL Opcode = 0x01
	ICONST_M1   Opcode = 0x02
	ICONST_0    Opcode = 0x03
	ICONST_1    Opcode = 0x04
	ICONST_2    Opcode = 0x05
	ICONST_3    Opcode = 0x06
	ICONST_4    Opcode = 0x07
	ICONST_5    Opcode = 0x08
	LCONST_0    Opcode = 0x09
	LCONST_1    Opcode = 0x0a
	FCONST_0    Opcode = 0x0b
	FCONST_1    Opcode = 0x0c
	FCONST_2    Opcode = 0x0d
	DCONST_0    Opcode = 0x0e
	DCONST_1    Opcode = 0x0f
	BIPUSH      Opcode = 0x10
	SIPUSH      Opcode = 0x11
	LDC         Opcode = 0x12
	LDC_W       Opcode = 0x13
	LDC2_W      Opcode = 0x14
)

// 0x15 range - loads.
const (
	ILOAD   Opcode = 0x15
	LLOAD   Opcode = 0x16
	FLOAD   Opcode = 0x17
	DLOAD   Opcode = 0x18
	ALOAD   Opcode = 0x19
	ILOAD_0 Opcode = 0x1a
	ILOAD_1 Opcode = 0x1b
	ILOAD_2 Opcode = 0x1c
	ILOAD_3 Opcode = 0x1d
	LLOAD_0 Opcode = 0x1e
	LLOAD_1 Opcode = 0x1f
	LLOAD_2 Opcode = 0x20
	LLOAD_3 Opcode = 0x21
	FLOAD_0 Opcode = 0x22
	FLOAD_1 Opcode = 0x23
	FLOAD_2 Opcode = 0x24
	FLOAD_3 Opcode = 0x25
	DLOAD_0 Opcode = 0x26
	DLOAD_1 Opcode = 0x27
	DLOAD_2 Opcode = 0x28
	DLOAD_3 Opcode = 0x29
	ALOAD_0 Opcode = 0x2a
	ALOAD_1 Opcode = 0x2b
	ALOAD_2 Opcode = 0x2c
	ALOAD_3 Opcode = 0x2d
	IALOAD  Opcode = 0x2e
	LALOAD  Opcode = 0x2f
	FALOAD  Opcode = 0x30
	DALOAD  Opcode = 0x31
	AALOAD  Opcode = 0x32
	BALOAD  Opcode = 0x33
	CALOAD  Opcode = 0x34
	SALOAD  Opcode = 0x35
)

// 0x36 range - stores.
const (
	ISTORE   Opcode = 0x36
	LSTORE   Opcode = 0x37
	FSTORE   Opcode = 0x38
	DSTORE   Opcode = 0x39
	ASTORE   Opcode = 0x3a
	ISTORE_0 Opcode = 0x3b
	ISTORE_1 Opcode = 0x3c
	ISTORE_2 Opcode = 0x3d
	ISTORE_3 Opcode = 0x3e
	LSTORE_0 Opcode = 0x3f
	LSTORE_1 Opcode = 0x40
	LSTORE_2 Opcode = 0x41
	LSTORE_3 Opcode = 0x42
	FSTORE_0 Opcode = 0x43
	FSTORE_1 Opcode = 0x44
	FSTORE_2 Opcode = 0x45
	FSTORE_3 Opcode = 0x46
	DSTORE_0 Opcode = 0x47
	DSTORE_1 Opcode = 0x48
	DSTORE_2 Opcode = 0x49
	DSTORE_3 Opcode = 0x4a
	ASTORE_0 Opcode = 0x4b
	ASTORE_1 Opcode = 0x4c
	ASTORE_2 Opcode = 0x4d
	ASTORE_3 Opcode = 0x4e
	IASTORE  Opcode = 0x4f
	LASTORE  Opcode = 0x50
	FASTORE  Opcode = 0x51
	DASTORE  Opcode = 0x52
	AASTORE  Opcode = 0x53
	BASTORE  Opcode = 0x54
	CASTORE  Opcode = 0x55
	SASTORE  Opcode = 0x56
)

// 0x57 range - stack manipulation.
const (
	POP     Opcode = 0x57
	POP2    Opcode = 0x58
	DUP     Opcode = 0x59
	DUP_X1  Opcode = 0x5a
	DUP_X2  Opcode = 0x5b
	DUP2    Opcode = 0x5c
	DUP2_X1 Opcode = 0x5d
	DUP2_X2 Opcode = 0x5e
	SWAP    Opcode = 0x5f
)

// 0x60 range - arithmetic.
const (
	IADD  Opcode = 0x60
	LADD  Opcode = 0x61
	FADD  Opcode = 0x62
	DADD  Opcode = 0x63
	ISUB  Opcode = 0x64
	LSUB  Opcode = 0x65
	FSUB  Opcode = 0x66
	DSUB  Opcode = 0x67
	IMUL  Opcode = 0x68
	LMUL  Opcode = 0x69
	FMUL  Opcode = 0x6a
	DMUL  Opcode = 0x6b
	IDIV  Opcode = 0x6c
	LDIV  Opcode = 0x6d
	FDIV  Opcode = 0x6e
	DDIV  Opcode = 0x6f
	IREM  Opcode = 0x70
	LREM  Opcode = 0x71
	FREM  Opcode = 0x72
	DREM  Opcode = 0x73
	INEG  Opcode = 0x74
	LNEG  Opcode = 0x75
	FNEG  Opcode = 0x76
	DNEG  Opcode = 0x77
	ISHL  Opcode = 0x78
	LSHL  Opcode = 0x79
	ISHR  Opcode = 0x7a
	LSHR  Opcode = 0x7b
	IUSHR Opcode = 0x7c
	LUSHR Opcode = 0x7d
	IAND  Opcode = 0x7e
	LAND  Opcode = 0x7f
	IOR   Opcode = 0x80
	LOR   Opcode = 0x81
	IXOR  Opcode = 0x82
	LXOR  Opcode = 0x83
	IINC  Opcode = 0x84
)

// 0x85 range - conversions.
const (
	I2L Opcode = 0x85
	I2F Opcode = 0x86
	I2D Opcode = 0x87
	L2I Opcode = 0x88
	L2F Opcode = 0x89
	L2D Opcode = 0x8a
	F2I Opcode = 0x8b
	F2L Opcode = 0x8c
	F2D Opcode = 0x8d
	D2I Opcode = 0x8e
	D2L Opcode = 0x8f
	D2F Opcode = 0x90
	I2B Opcode = 0x91
	I2C Opcode = 0x92
	I2S Opcode = 0x93
)

// 0x94 range - comparisons and jumps.
const (
	LCMP         Opcode = 0x94
	FCMPL        Opcode = 0x95
	FCMPG        Opcode = 0x96
	DCMPL        Opcode = 0x97
	DCMPG        Opcode = 0x98
	IFEQ         Opcode = 0x99
	IFNE         Opcode = 0x9a
	IFLT         Opcode = 0x9b
	IFGE         Opcode = 0x9c
	IFGT         Opcode = 0x9d
	IFLE         Opcode = 0x9e
	IF_ICMPEQ    Opcode = 0x9f
	IF_ICMPNE    Opcode = 0xa0
	IF_ICMPLT    Opcode = 0xa1
	IF_ICMPGE    Opcode = 0xa2
	IF_ICMPGT    Opcode = 0xa3
	IF_ICMPLE    Opcode = 0xa4
	IF_ACMPEQ    Opcode = 0xa5
	IF_ACMPNE    Opcode = 0xa6
	GOTO         Opcode = 0xa7
	JSR          Opcode = 0xa8
	RET          Opcode = 0xa9
	TABLESWITCH  Opcode = 0xaa
	LOOKUPSWITCH Opcode = 0xab
)

// 0xac range - returns.
const (
	IRETURN Opcode = 0xac
	LRETURN Opcode = 0xad
	FRETURN Opcode = 0xae
	DRETURN Opcode = 0xaf
	ARETURN Opcode = 0xb0
	RETURN  Opcode = 0xb1
)

// 0xb2 range - references.
const (
	GETSTATIC       Opcode = 0xb2
	PUTSTATIC       Opcode = 0xb3
	GETFIELD        Opcode = 0xb4
	PUTFIELD        Opcode = 0xb5
	INVOKEVIRTUAL   Opcode = 0xb6
	INVOKESPECIAL   Opcode = 0xb7
	INVOKESTATIC    Opcode = 0xb8
	INVOKEINTERFACE Opcode = 0xb9
	INVOKEDYNAMIC   Opcode = 0xba
	NEW             Opcode = 0xbb
	NEWARRAY        Opcode = 0xbc
	ANEWARRAY       Opcode = 0xbd
	ARRAYLENGTH     Opcode = 0xbe
	ATHROW          Opcode = 0xbf
	CHECKCAST       Opcode = 0xc0
	INSTANCEOF      Opcode = 0xc1
	MONITORENTER    Opcode = 0xc2
	MONITOREXIT     Opcode = 0xc3
)

// 0xc4 range - extended.
const (
	WIDE           Opcode = 0xc4
	MULTIANEWARRAY Opcode = 0xc5
	IFNULL         Opcode = 0xc6
	IFNONNULL      Opcode = 0xc7
	GOTO_W         Opcode = 0xc8
	JSR_W          Opcode = 0xc9
)

var opcodeNames = [...]string{
	NOP:             "NOP",
	ACONST_NULL:     "ACONST_NULL",
	ICONST_M1:       "ICONST_M1",
	ICONST_0:        "ICONST_0",
	ICONST_1:        "ICONST_1",
	ICONST_2:        "ICONST_2",
	ICONST_3:        "ICONST_3",
	ICONST_4:        "ICONST_4",
	ICONST_5:        "ICONST_5",
	LCONST_0:        "LCONST_0",
	LCONST_1:        "LCONST_1",
	FCONST_0:        "FCONST_0",
	FCONST_1:        "FCONST_1",
	FCONST_2:        "FCONST_2",
	DCONST_0:        "DCONST_0",
	DCONST_1:        "DCONST_1",
	BIPUSH:          "BIPUSH",
	SIPUSH:          "SIPUSH",
	LDC:             "LDC",
	LDC_W:           "LDC_W",
	LDC2_W:          "LDC2_W",
	ILOAD:           "ILOAD",
	LLOAD:           "LLOAD",
	FLOAD:           "FLOAD",
	DLOAD:           "DLOAD",
	ALOAD:           "ALOAD",
	ILOAD_0:         "ILOAD_0",
	ILOAD_1:         "ILOAD_1",
	ILOAD_2:         "ILOAD_2",
	ILOAD_3:         "ILOAD_3",
	LLOAD_0:         "LLOAD_0",
	LLOAD_1:         "LLOAD_1",
	LLOAD_2:         "LLOAD_2",
	LLOAD_3:         "LLOAD_3",
	FLOAD_0:         "FLOAD_0",
	FLOAD_1:         "FLOAD_1",
	FLOAD_2:         "FLOAD_2",
	FLOAD_3:         "FLOAD_3",
	DLOAD_0:         "DLOAD_0",
	DLOAD_1:         "DLOAD_1",
	DLOAD_2:         "DLOAD_2",
	DLOAD_3:         "DLOAD_3",
	ALOAD_0:         "ALOAD_0",
	ALOAD_1:         "ALOAD_1",
	ALOAD_2:         "ALOAD_2",
	ALOAD_3:         "ALOAD_3",
	IALOAD:          "IALOAD",
	LALOAD:          "LALOAD",
	FALOAD:          "FALOAD",
	DALOAD:          "DALOAD",
	AALOAD:          "AALOAD",
	BALOAD:          "BALOAD",
	CALOAD:          "CALOAD",
	SALOAD:          "SALOAD",
	ISTORE:          "ISTORE",
	LSTORE:          "LSTORE",
	FSTORE:          "FSTORE",
	DSTORE:          "DSTORE",
	ASTORE:          "ASTORE",
	ISTORE_0:        "ISTORE_0",
	ISTORE_1:        "ISTORE_1",
	ISTORE_2:        "ISTORE_2",
	ISTORE_3:        "ISTORE_3",
	LSTORE_0:        "LSTORE_0",
	LSTORE_1:        "LSTORE_1",
	LSTORE_2:        "LSTORE_2",
	LSTORE_3:        "LSTORE_3",
	FSTORE_0:        "FSTORE_0",
	FSTORE_1:        "FSTORE_1",
	FSTORE_2:        "FSTORE_2",
	FSTORE_3:        "FSTORE_3",
	DSTORE_0:        "DSTORE_0",
	DSTORE_1:        "DSTORE_1",
	DSTORE_2:        "DSTORE_2",
	DSTORE_3:        "DSTORE_3",
	ASTORE_0:        "ASTORE_0",
	ASTORE_1:        "ASTORE_1",
	ASTORE_2:        "ASTORE_2",
	ASTORE_3:        "ASTORE_3",
	IASTORE:         "IASTORE",
	LASTORE:         "LASTORE",
	FASTORE:         "FASTORE",
	DASTORE:         "DASTORE",
	AASTORE:         "AASTORE",
	BASTORE:         "BASTORE",
	CASTORE:         "CASTORE",
	SASTORE:         "SASTORE",
	POP:             "POP",
	POP2:            "POP2",
	DUP:             "DUP",
	DUP_X1:          "DUP_X1",
	DUP_X2:          "DUP_X2",
	DUP2:            "DUP2",
	DUP2_X1:         "DUP2_X1",
	DUP2_X2:         "DUP2_X2",
	SWAP:            "SWAP",
	IADD:            "IADD",
	LADD:            "LADD",
	FADD:            "FADD",
	DADD:            "DADD",
	ISUB:            "ISUB",
	LSUB:            "LSUB",
	FSUB:            "FSUB",
	DSUB:            "DSUB",
	IMUL:            "IMUL",
	LMUL:            "LMUL",
	FMUL:            "FMUL",
	DMUL:            "DMUL",
	IDIV:            "IDIV",
	LDIV:            "LDIV",
	FDIV:            "FDIV",
	DDIV:            "DDIV",
	IREM:            "IREM",
	LREM:            "LREM",
	FREM:            "FREM",
	DREM:            "DREM",
	INEG:            "INEG",
	LNEG:            "LNEG",
	FNEG:            "FNEG",
	DNEG:            "DNEG",
	ISHL:            "ISHL",
	LSHL:            "LSHL",
	ISHR:            "ISHR",
	LSHR:            "LSHR",
	IUSHR:           "IUSHR",
	LUSHR:           "LUSHR",
	IAND:            "IAND",
	LAND:            "LAND",
	IOR:             "IOR",
	LOR:             "LOR",
	IXOR:            "IXOR",
	LXOR:            "LXOR",
	IINC:            "IINC",
	I2L:             "I2L",
	I2F:             "I2F",
	I2D:             "I2D",
	L2I:             "L2I",
	L2F:             "L2F",
	L2D:             "L2D",
	F2I:             "F2I",
	F2L:             "F2L",
	F2D:             "F2D",
	D2I:             "D2I",
	D2L:             "D2L",
	D2F:             "D2F",
	I2B:             "I2B",
	I2C:             "I2C",
	I2S:             "I2S",
	LCMP:            "LCMP",
	FCMPL:           "FCMPL",
	FCMPG:           "FCMPG",
	DCMPL:           "DCMPL",
	DCMPG:           "DCMPG",
	IFEQ:            "IFEQ",
	IFNE:            "IFNE",
	IFLT:            "IFLT",
	IFGE:            "IFGE",
	IFGT:            "IFGT",
	IFLE:            "IFLE",
	IF_ICMPEQ:       "IF_ICMPEQ",
	IF_ICMPNE:       "IF_ICMPNE",
	IF_ICMPLT:       "IF_ICMPLT",
	IF_ICMPGE:       "IF_ICMPGE",
	IF_ICMPGT:       "IF_ICMPGT",
	IF_ICMPLE:       "IF_ICMPLE",
	IF_ACMPEQ:       "IF_ACMPEQ",
	IF_ACMPNE:       "IF_ACMPNE",
	GOTO:            "GOTO",
	JSR:             "JSR",
	RET:             "RET",
	TABLESWITCH:     "TABLESWITCH",
	LOOKUPSWITCH:    "LOOKUPSWITCH",
	IRETURN:         "IRETURN",
	LRETURN:         "LRETURN",
	FRETURN:         "FRETURN",
	DRETURN:         "DRETURN",
	ARETURN:         "ARETURN",
	RETURN:          "RETURN",
	GETSTATIC:       "GETSTATIC",
	PUTSTATIC:       "PUTSTATIC",
	GETFIELD:        "GETFIELD",
	PUTFIELD:        "PUTFIELD",
	INVOKEVIRTUAL:   "INVOKEVIRTUAL",
	INVOKESPECIAL:   "INVOKESPECIAL",
	INVOKESTATIC:    "INVOKESTATIC",
	INVOKEINTERFACE: "INVOKEINTERFACE",
	INVOKEDYNAMIC:   "INVOKEDYNAMIC",
	NEW:             "NEW",
	NEWARRAY:        "NEWARRAY",
	ANEWARRAY:       "ANEWARRAY",
	ARRAYLENGTH:     "ARRAYLENGTH",
	ATHROW:          "ATHROW",
	CHECKCAST:       "CHECKCAST",
	INSTANCEOF:      "INSTANCEOF",
	MONITORENTER:    "MONITORENTER",
	MONITOREXIT:     "MONITOREXIT",
	WIDE:            "WIDE",
	MULTIANEWARRAY:  "MULTIANEWARRAY",
	IFNULL:          "IFNULL",
	IFNONNULL:       "IFNONNULL",
	GOTO_W:          "GOTO_W",
	JSR_W:           "JSR_W",
}

var byName map[string]Opcode

func init() {
	byName = make(map[string]Opcode, len(opcodeNames))
	for op, name := range opcodeNames {
		byName[name] = Opcode(op)
	}
}

// String returns the mnemonic of the opcode.
func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return fmt.Sprintf("opcode 0x%x not defined", int(op))
}

// Defined reports whether op is a JVM opcode.
func (op Opcode) Defined() bool { return int(op) < len(opcodeNames) }

// Lookup returns the opcode with the given mnemonic, case-insensitively.
func Lookup(name string) (Opcode, bool) {
	op, ok := byName[strings.ToUpper(strings.TrimSpace(name))]
	return op, ok
}

// IsConditional reports whether op is a conditional branch.
func (op Opcode) IsConditional() bool {
	return (op >= IFEQ && op <= IF_ACMPNE) || op == IFNULL || op == IFNONNULL
}

// IsUnaryConditional reports whether op is a conditional branch testing a
// single operand.
func (op Opcode) IsUnaryConditional() bool {
	return (op >= IFEQ && op <= IFLE) || op == IFNULL || op == IFNONNULL
}

// IsJump reports whether op transfers control to a single encoded target.
func (op Opcode) IsJump() bool {
	return op.IsConditional() || op == GOTO || op == GOTO_W || op == JSR || op == JSR_W
}

// IsSubroutineCall reports whether op is JSR or JSR_W.
func (op Opcode) IsSubroutineCall() bool { return op == JSR || op == JSR_W }

// IsSwitch reports whether op is a table or lookup switch.
func (op Opcode) IsSwitch() bool { return op == TABLESWITCH || op == LOOKUPSWITCH }

// IsReturn reports whether op returns from the method.
func (op Opcode) IsReturn() bool { return op >= IRETURN && op <= RETURN }

// IsInvoke reports whether op invokes a method.
func (op Opcode) IsInvoke() bool { return op >= INVOKEVIRTUAL && op <= INVOKEDYNAMIC }

// IsLoad reports whether op loads a local variable.
func (op Opcode) IsLoad() bool { return op >= ILOAD && op <= ALOAD_3 }

// IsStore reports whether op stores a local variable.
func (op Opcode) IsStore() bool { return op >= ISTORE && op <= ASTORE_3 }

// IsArrayLoad reports whether op reads an array element.
func (op Opcode) IsArrayLoad() bool { return op >= IALOAD && op <= SALOAD }

// IsArrayStore reports whether op writes an array element.
func (op Opcode) IsArrayStore() bool { return op >= IASTORE && op <= SASTORE }

// IsField reports whether op reads or writes a field.
func (op Opcode) IsField() bool { return op >= GETSTATIC && op <= PUTFIELD }

// EndsFlow reports whether control never falls through op to the next
// instruction.
func (op Opcode) EndsFlow() bool {
	switch op {
	case GOTO, GOTO_W, RET, TABLESWITCH, LOOKUPSWITCH, ATHROW:
		return true
	}
	return op.IsReturn()
}

// ImplicitSlot returns the local slot encoded in the short forms such as
// ILOAD_2 or ASTORE_0.
func (op Opcode) ImplicitSlot() (int, bool) {
	switch {
	case op >= ILOAD_0 && op <= ALOAD_3:
		return int(op-ILOAD_0) % 4, true
	case op >= ISTORE_0 && op <= ASTORE_3:
		return int(op-ISTORE_0) % 4, true
	}
	return 0, false
}

// Generic maps the short load/store forms to their explicit-slot opcode, for
// example ILOAD_2 to ILOAD. Other opcodes are returned unchanged.
func (op Opcode) Generic() Opcode {
	switch {
	case op >= ILOAD_0 && op <= ALOAD_3:
		return ILOAD + Opcode(int(op-ILOAD_0)/4)
	case op >= ISTORE_0 && op <= ASTORE_3:
		return ISTORE + Opcode(int(op-ISTORE_0)/4)
	}
	return op
}
