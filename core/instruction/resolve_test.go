package instruction_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jflow-project/jflow/core/failure"
	"github.com/jflow-project/jflow/core/instruction"
	"github.com/jflow-project/jflow/core/opcodes"
)

func builder(t *testing.T, desc string) *instruction.Builder {
	t.Helper()
	b, err := instruction.NewBuilder(instruction.MethodID{Class: "demo/Bar", Name: "run", Desc: desc}, true, nil)
	require.NoError(t, err)
	return b
}

// max(x, y): if (x > y) return y; else return x;
func maxProgram(t *testing.T) *instruction.Program {
	b := builder(t, "(II)I")
	require.NoError(t, b.Insn(opcodes.ILOAD_0))
	require.NoError(t, b.Insn(opcodes.ILOAD_1))
	require.NoError(t, b.Jump(opcodes.IF_ICMPLE, 5))
	require.NoError(t, b.Insn(opcodes.ILOAD_1))
	require.NoError(t, b.Insn(opcodes.IRETURN))
	require.NoError(t, b.Insn(opcodes.ILOAD_0))
	require.NoError(t, b.Insn(opcodes.IRETURN))
	return b.Program()
}

func TestResolveJump(t *testing.T) {
	prog := maxProgram(t)
	require.Len(t, prog.Placeholders(), 1)
	assert.True(t, prog.HasJumps())

	_, err := prog.Instructions()
	require.Error(t, err)
	assert.True(t, errors.Is(err, instruction.ErrUnresolved))
	assert.True(t, errors.Is(err, failure.ErrMalformed))
	assert.Equal(t, 2, failure.OrderOf(err))

	_, err = instruction.SuccessorsOf(prog.Elements()[2])
	require.Error(t, err)
	assert.True(t, errors.Is(err, instruction.ErrUnresolved))

	ins, err := prog.Resolve()
	require.NoError(t, err)
	require.Len(t, ins, 7)
	jump, ok := ins[2].(*instruction.Jump)
	require.True(t, ok)
	assert.True(t, jump.Conditional())
	assert.Equal(t, []int{3, 5}, jump.Successors())
	assert.Same(t, ins[5], jump.Destination())
	assert.Equal(t, "IF_ICMPLE -> 5", jump.Label())

	succ, err := instruction.SuccessorsOf(prog.Elements()[2])
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5}, succ)
	assert.Empty(t, ins[4].Successors())
	assert.Equal(t, []int{1}, ins[0].Successors())
	assert.Empty(t, prog.Placeholders())

	_, err = prog.Resolve()
	require.Error(t, err)
}

func TestResolveTwice(t *testing.T) {
	prog := maxProgram(t)
	ph := prog.Placeholders()[0]
	lookup := func(order int) (instruction.Instruction, error) {
		return prog.Elements()[order].(instruction.Instruction), nil
	}
	_, err := ph.Resolve(lookup)
	require.NoError(t, err)
	_, err = ph.Resolve(lookup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrMalformed))
}

func TestJumpOutOfRange(t *testing.T) {
	b := builder(t, "()V")
	require.NoError(t, b.Jump(opcodes.GOTO, 9))
	_, err := b.Program().Resolve()
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrMalformed))
	assert.Equal(t, 0, failure.OrderOf(err))
}

func TestJumpToJump(t *testing.T) {
	b := builder(t, "()V")
	require.NoError(t, b.Jump(opcodes.GOTO, 1))
	require.NoError(t, b.Jump(opcodes.GOTO, 0))
	ins, err := b.Program().Resolve()
	require.NoError(t, err)
	assert.Same(t, ins[1], ins[0].(*instruction.Jump).Destination())
	assert.Same(t, ins[0], ins[1].(*instruction.Jump).Destination())
}

func TestTableSwitchCardinality(t *testing.T) {
	b := builder(t, "(I)V")
	require.NoError(t, b.Insn(opcodes.ILOAD_0))
	err := b.TableSwitch(0, 2, 4, []int{2, 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrMalformed))
	assert.Equal(t, 1, failure.OrderOf(err))

	require.NoError(t, b.TableSwitch(0, 2, 4, []int{2, 3, 3}))
	require.NoError(t, b.Insn(opcodes.RETURN))
	require.NoError(t, b.Insn(opcodes.RETURN))
	require.NoError(t, b.Insn(opcodes.RETURN))

	ins, err := b.Program().Resolve()
	require.NoError(t, err)
	sw := ins[1].(*instruction.Switch)
	assert.Equal(t, []int{0, 1, 2}, sw.Keys)
	min, max := sw.Range()
	assert.Equal(t, 0, min)
	assert.Equal(t, 2, max)
	assert.Len(t, sw.Destinations(), 3)
	assert.Equal(t, 4, sw.Default().Order())
	assert.Equal(t, []int{2, 3, 4}, sw.Successors())
	assert.Equal(t, "TABLESWITCH 0:2 1:3 2:3 default:4", sw.Label())
}

func TestLookupSwitchCardinality(t *testing.T) {
	b := builder(t, "(I)V")
	require.NoError(t, b.Insn(opcodes.ILOAD_0))
	require.Error(t, b.LookupSwitch(2, []int{1, 10}, []int{2}))
	require.Error(t, b.LookupSwitch(2, []int{10, 1}, []int{2, 2}))
	require.NoError(t, b.LookupSwitch(2, []int{-5, 10}, []int{2, 2}))
	require.NoError(t, b.Insn(opcodes.RETURN))
	ins, err := b.Program().Resolve()
	require.NoError(t, err)
	assert.Equal(t, []int{2}, ins[1].Successors())
}

func TestRetTargetsFromSubroutineCalls(t *testing.T) {
	b := builder(t, "()V")
	require.NoError(t, b.Jump(opcodes.JSR, 4))   // 0
	require.NoError(t, b.Insn(opcodes.NOP))      // 1
	require.NoError(t, b.Jump(opcodes.JSR, 4))   // 2
	require.NoError(t, b.Insn(opcodes.RETURN))   // 3
	require.NoError(t, b.Var(opcodes.ASTORE, 0)) // 4
	require.NoError(t, b.Var(opcodes.RET, 0))    // 5

	prog := b.Program()
	assert.Equal(t, []int{1, 3}, prog.SubroutineReturns())
	ins, err := prog.Resolve()
	require.NoError(t, err)
	ret := ins[5].(*instruction.Ret)
	assert.Equal(t, []int{1, 3}, ret.Successors())
	assert.True(t, ret.ReadsVariables().Contains(0))
	jsr := ins[0].(*instruction.Jump)
	assert.True(t, jsr.Subroutine())
	assert.Equal(t, []int{4}, jsr.Successors())
}

func TestRetWithoutTargets(t *testing.T) {
	b := builder(t, "()V")
	require.NoError(t, b.Var(opcodes.RET, 1))
	_, err := b.Program().Resolve()
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrMalformed))
	assert.Contains(t, err.Error(), "without return targets")
}

func TestRetExplicitTargets(t *testing.T) {
	b := builder(t, "()V")
	require.NoError(t, b.Insn(opcodes.RETURN))
	require.NoError(t, b.Var(opcodes.RET, 1))
	ret := b.Program().Placeholders()[0].(*instruction.RetPlaceholder)
	require.NoError(t, ret.SetTargets([]int{0}))
	assert.Equal(t, []int{0}, ret.Targets())
	ins, err := b.Program().Resolve()
	require.NoError(t, err)
	assert.Equal(t, []int{0}, ins[1].Successors())
	assert.Error(t, ret.SetTargets([]int{1}))
}

func TestSuccessorsWithHandlers(t *testing.T) {
	prog := maxProgram(t)
	ins, err := prog.Resolve()
	require.NoError(t, err)
	table := []instruction.TryCatch{
		{Start: 0, End: 3, Handler: 6},
		{Start: 2, End: 4, Handler: 5, Type: "java/lang/RuntimeException"},
	}
	assert.Equal(t, []int{1, 6}, instruction.SuccessorsWithHandlers(ins[0], table))
	assert.Equal(t, []int{3, 5, 6}, instruction.SuccessorsWithHandlers(ins[2], table))
	assert.Equal(t, []int{5}, instruction.SuccessorsWithHandlers(ins[3], table)[1:])
	assert.Equal(t, []int{}, append([]int{}, instruction.SuccessorsWithHandlers(ins[6], table)...))
}
