package instruction

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jflow-project/jflow/core/failure"
	"github.com/jflow-project/jflow/core/lattice"
	"github.com/jflow-project/jflow/core/opcodes"
)

func newBuilder(t *testing.T, desc string, static bool) *Builder {
	t.Helper()
	b, err := NewBuilder(MethodID{Class: "demo/Foo", Name: "m", Desc: desc}, static, nil)
	require.NoError(t, err)
	return b
}

func last(b *Builder) Element {
	elems := b.Program().Elements()
	return elems[len(elems)-1]
}

func TestStackEffects(t *testing.T) {
	b := newBuilder(t, "(IJ)Z", false)
	tests := []struct {
		emit     func() error
		consumed []lattice.Set
		pushed   lattice.Set
	}{
		{func() error { return b.Insn(opcodes.NOP) }, nil, lattice.Void},
		{func() error { return b.Insn(opcodes.ICONST_1) }, nil, lattice.IntegerLike},
		{func() error { return b.Insn(opcodes.ICONST_3) }, nil, lattice.IntegerLike.Minus(lattice.Boolean)},
		{func() error { return b.Insn(opcodes.ACONST_NULL) }, nil, lattice.Reference},
		{func() error { return b.Int(opcodes.BIPUSH, 100) }, nil, lattice.IntegerLike.Minus(lattice.Boolean)},
		{func() error { return b.Insn(opcodes.ILOAD_1) }, nil, lattice.IntegerLike},
		{func() error { return b.Var(opcodes.LLOAD, 2) }, nil, lattice.Long},
		{func() error { return b.Var(opcodes.ASTORE, 4) }, []lattice.Set{lattice.Reference | lattice.Address}, lattice.Void},
		{func() error { return b.Iinc(1, 2) }, nil, lattice.Void},
		{func() error { return b.Insn(opcodes.BALOAD) }, []lattice.Set{lattice.Array, lattice.IntegerLike}, lattice.Byte | lattice.Boolean},
		{func() error { return b.Insn(opcodes.LASTORE) }, []lattice.Set{lattice.Array, lattice.IntegerLike, lattice.Long}, lattice.Void},
		{func() error { return b.Insn(opcodes.DMUL) }, []lattice.Set{lattice.Double, lattice.Double}, lattice.Double},
		{func() error { return b.Insn(opcodes.IXOR) }, []lattice.Set{lattice.IntegerLike, lattice.IntegerLike}, lattice.IntegerLike},
		{func() error { return b.Insn(opcodes.LSHL) }, []lattice.Set{lattice.Long, lattice.IntegerLike}, lattice.Long},
		{func() error { return b.Insn(opcodes.FNEG) }, []lattice.Set{lattice.Float}, lattice.Float},
		{func() error { return b.Insn(opcodes.L2I) }, []lattice.Set{lattice.Long}, lattice.Int},
		{func() error { return b.Insn(opcodes.I2C) }, []lattice.Set{lattice.IntegerLike}, lattice.Char},
		{func() error { return b.Insn(opcodes.DCMPG) }, []lattice.Set{lattice.Double, lattice.Double}, lattice.Int},
		{func() error { return b.Insn(opcodes.ARRAYLENGTH) }, []lattice.Set{lattice.Array}, lattice.Int},
		{func() error { return b.Insn(opcodes.MONITORENTER) }, []lattice.Set{lattice.Reference}, lattice.Void},
		{func() error { return b.Type(opcodes.NEW, "java/lang/Object") }, nil, lattice.Object},
		{func() error { return b.Type(opcodes.CHECKCAST, "[I") }, []lattice.Set{lattice.Reference}, lattice.Array},
		{func() error { return b.Type(opcodes.INSTANCEOF, "java/lang/String") }, []lattice.Set{lattice.Reference}, lattice.Int | lattice.Boolean},
		{func() error { return b.Int(opcodes.NEWARRAY, 10) }, []lattice.Set{lattice.IntegerLike}, lattice.Array},
		{func() error { return b.MultiANewArray("[[[I", 2) }, []lattice.Set{lattice.IntegerLike, lattice.IntegerLike}, lattice.Array},
		{func() error { return b.Field(opcodes.GETSTATIC, "demo/Foo", "f", "Z") }, nil, lattice.Boolean},
		{func() error { return b.Field(opcodes.PUTFIELD, "demo/Foo", "g", "J") }, []lattice.Set{lattice.Object, lattice.Long}, lattice.Void},
		{func() error { return b.Invoke(opcodes.INVOKEVIRTUAL, "demo/Foo", "h", "(ILjava/lang/String;)V") },
			[]lattice.Set{lattice.Object, lattice.Int, lattice.Object}, lattice.Void},
		{func() error { return b.Invoke(opcodes.INVOKESTATIC, "demo/Foo", "k", "(D)Z") }, []lattice.Set{lattice.Double}, lattice.Boolean},
		{func() error { return b.Invoke(opcodes.INVOKEDYNAMIC, "ignored", "run", "(J)Ljava/lang/Runnable;") }, []lattice.Set{lattice.Long}, lattice.Object},
		{func() error { return b.Ldc(opcodes.LDC2_W, Const{Kind: ConstDouble, Value: 2.5}) }, nil, lattice.Double},
		{func() error { return b.Ldc(opcodes.LDC, Const{Kind: ConstString, Value: "s"}) }, nil, lattice.Object},
		{func() error { return b.Insn(opcodes.IRETURN) }, []lattice.Set{lattice.Boolean}, lattice.Void},
		{func() error { return b.Insn(opcodes.ATHROW) }, []lattice.Set{lattice.Object}, lattice.Void},
	}
	for i, tt := range tests {
		require.NoError(t, tt.emit(), "case %d", i)
		ins, ok := last(b).(Instruction)
		require.True(t, ok, "case %d", i)
		assert.Equal(t, i, ins.Order())
		assert.Equal(t, tt.consumed, ins.ConsumedFromStack(), "case %d: %s", i, ins.Label())
		assert.Equal(t, tt.pushed, ins.PushedToStack(), "case %d: %s", i, ins.Label())
	}
}

func TestVariablesTouched(t *testing.T) {
	b := newBuilder(t, "()V", true)
	require.NoError(t, b.Insn(opcodes.ALOAD_2))
	require.NoError(t, b.Var(opcodes.ISTORE, 5))
	require.NoError(t, b.Iinc(3, -1))
	require.NoError(t, b.Insn(opcodes.IADD))

	ins, err := b.Program().Instructions()
	require.NoError(t, err)
	assert.True(t, ins[0].ReadsVariables().Contains(2))
	assert.Equal(t, 0, ins[0].WritesVariables().Cardinality())
	assert.True(t, ins[1].WritesVariables().Contains(5))
	assert.True(t, ins[2].ReadsVariables().Contains(3))
	assert.True(t, ins[2].WritesVariables().Contains(3))
	assert.Equal(t, 0, ins[3].ReadsVariables().Cardinality())
	assert.Equal(t, opcodes.ALOAD, ins[0].Opcode())
}

func TestLiteralRanges(t *testing.T) {
	b := newBuilder(t, "()V", true)
	require.NoError(t, b.Iconst(-1))
	require.NoError(t, b.Iconst(5))
	require.NoError(t, b.Fconst(2))
	require.NoError(t, b.Int(opcodes.SIPUSH, -32768))

	for _, emit := range []func() error{
		func() error { return b.Iconst(6) },
		func() error { return b.Lconst(2) },
		func() error { return b.Fconst(3) },
		func() error { return b.Dconst(-1) },
		func() error { return b.Int(opcodes.BIPUSH, 128) },
		func() error { return b.Int(opcodes.SIPUSH, 40000) },
	} {
		err := emit()
		require.Error(t, err)
		assert.True(t, errors.Is(err, failure.ErrMalformed))
		assert.Equal(t, 4, failure.OrderOf(err))
	}
	assert.Equal(t, 4, b.Program().Len())

	ins, err := b.Program().Instructions()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), ins[0].(*Constant).Value)
	assert.Equal(t, opcodes.ICONST_5, ins[1].Opcode())
}

func TestLdcForms(t *testing.T) {
	b := newBuilder(t, "()V", true)
	require.Error(t, b.Ldc(opcodes.LDC, Const{Kind: ConstLong, Value: int64(1)}))
	require.Error(t, b.Ldc(opcodes.LDC2_W, Const{Kind: ConstInt, Value: int64(1)}))
	require.Error(t, b.Ldc(opcodes.LDC, Const{Kind: ConstNull}))
	require.NoError(t, b.Ldc(opcodes.LDC2_W, Const{Kind: ConstDynamic, Desc: "J"}))
	require.Error(t, b.Ldc(opcodes.LDC, Const{Kind: ConstDynamic, Desc: "D"}))
	require.NoError(t, b.Ldc(opcodes.LDC_W, Const{Kind: ConstDynamic, Desc: "Ljava/lang/Object;"}))
}

func TestReturnMustMatchDescriptor(t *testing.T) {
	b := newBuilder(t, "()J", true)
	err := b.Insn(opcodes.IRETURN)
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrMalformed))
	require.NoError(t, b.Insn(opcodes.LRETURN))
}

func TestUnexpectedForms(t *testing.T) {
	b := newBuilder(t, "()V", true)
	assert.Error(t, b.Insn(opcodes.GOTO))
	assert.Error(t, b.Var(opcodes.IADD, 1))
	assert.Error(t, b.Var(opcodes.ILOAD, -1))
	assert.Error(t, b.Jump(opcodes.IADD, 0))
	assert.Error(t, b.Field(opcodes.INVOKESTATIC, "a", "b", "I"))
	assert.Error(t, b.Field(opcodes.GETSTATIC, "a", "b", "Q"))
	assert.Error(t, b.Invoke(opcodes.INVOKESTATIC, "a", "b", "(I"))
	assert.Error(t, b.Int(opcodes.NEWARRAY, 3))
	assert.Error(t, b.MultiANewArray("[I", 2))
	assert.Error(t, b.Type(opcodes.NEW, ""))
	assert.Equal(t, 0, b.Program().Len())
}

func TestStackOpShuffle(t *testing.T) {
	b := newBuilder(t, "()V", true)
	ops := []opcodes.Opcode{opcodes.POP2, opcodes.DUP_X2, opcodes.DUP2_X2, opcodes.SWAP}
	for _, op := range ops {
		require.NoError(t, b.Insn(op))
	}
	ins, err := b.Program().Instructions()
	require.NoError(t, err)

	pop2 := ins[0].(*StackOp)
	n, push, err := pop2.Shuffle([]int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, push)
	n, _, err = pop2.Shuffle([]int{1, 1})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, _, err = pop2.Shuffle([]int{2, 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrLattice))
	assert.Len(t, pop2.ConsumedFromStack(), 2)

	dupx2 := ins[1].(*StackOp)
	n, push, err = dupx2.Shuffle([]int{2, 1})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int{1, 0, 1}, push)

	dup2x2 := ins[2].(*StackOp)
	n, push, err = dup2x2.Shuffle([]int{2, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{1, 2, 0, 1, 2}, push)

	swap := ins[3].(*StackOp)
	_, _, err = swap.Shuffle([]int{1})
	require.Error(t, err)
	assert.Equal(t, lattice.Void, swap.PushedToStack())
}
