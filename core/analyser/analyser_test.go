package analyser_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jflow-project/jflow/core/analyser"
	"github.com/jflow-project/jflow/core/failure"
	"github.com/jflow-project/jflow/core/instruction"
	"github.com/jflow-project/jflow/core/lattice"
	"github.com/jflow-project/jflow/core/opcodes"
	"github.com/jflow-project/jflow/core/variables"
)

func id(name, desc string) instruction.MethodID {
	return instruction.MethodID{Class: "demo/Flags", Name: name, Desc: desc}
}

func body(ops ...opcodes.Opcode) func(*instruction.Builder) error {
	return func(b *instruction.Builder) error {
		for _, op := range ops {
			if err := b.Insn(op); err != nil {
				return err
			}
		}
		return nil
	}
}

func newAnalyser(t *testing.T, mutate func(*analyser.Config)) *analyser.Analyser {
	t.Helper()
	config := analyser.Defaults
	if mutate != nil {
		mutate(&config)
	}
	a, err := analyser.New(config)
	require.NoError(t, err)
	return a
}

// boolean isZero(int x) { return x == 0 ? true : false; }
var isZero = analyser.Method{
	ID:     id("isZero", "(I)Z"),
	Static: true,
	Emit: func(b *instruction.Builder) error {
		for _, step := range []func() error{
			func() error { return b.Insn(opcodes.ILOAD_0) },
			func() error { return b.Jump(opcodes.IFEQ, 4) },
			func() error { return b.Insn(opcodes.ICONST_0) },
			func() error { return b.Jump(opcodes.GOTO, 5) },
			func() error { return b.Insn(opcodes.ICONST_1) },
			func() error { return b.Insn(opcodes.IRETURN) },
		} {
			if err := step(); err != nil {
				return err
			}
		}
		return nil
	},
}

func TestAnalyseBooleanMethod(t *testing.T) {
	a := newAnalyser(t, nil)
	res, events, err := a.Analyse(isZero)
	require.Nil(t, err)
	require.NotNil(t, res)

	assert.True(t, res.HasJumps)
	assert.Equal(t, 6, res.Len())
	assert.Equal(t, 6, res.Graph.EdgeCount())
	assert.True(t, res.IsBooleanOperand(5, 0))
	assert.False(t, res.IsBooleanOperand(1, 0))
	assert.False(t, res.IsBooleanOperand(5, 1))
	assert.Equal(t, []int{2, 4}, res.BooleanProducers())
	assert.False(t, res.ProducesBoolean(0))

	require.Len(t, events, 2)
	assert.Equal(t, analyser.MethodStarted, events[0].Kind)
	assert.Equal(t, analyser.MethodFinished, events[1].Kind)
	assert.True(t, events[1].Success)
	assert.Equal(t, res.Frames.Iterations, events[1].Iterations)
}

// Slot 1 holds an int over orders 0-5 and a String over orders 6-10.
var reusedSlot = analyser.Method{
	ID:     id("reuse", "()V"),
	Static: true,
	Emit: body(
		opcodes.ICONST_1, opcodes.ISTORE_1, opcodes.NOP, opcodes.ILOAD_1, opcodes.POP, opcodes.NOP,
		opcodes.ACONST_NULL, opcodes.ASTORE_1, opcodes.ALOAD_1, opcodes.POP, opcodes.RETURN,
	),
	Locals: []variables.Declaration{
		{Slot: 1, Name: "count", Desc: "I", Start: 0, End: 5},
		{Slot: 1, Name: "name", Desc: "Ljava/lang/String;", Start: 6, End: 10},
	},
}

func TestReusedSlot(t *testing.T) {
	a := newAnalyser(t, nil)
	res, _, err := a.Analyse(reusedSlot)
	require.Nil(t, err)

	assert.False(t, res.HasJumps)
	lifetimes := res.Variables.Lifetimes(1)
	require.Len(t, lifetimes, 2)
	assert.Less(t, lifetimes[0].End, lifetimes[1].Start)

	loads := res.LoadTypes()
	require.Len(t, loads, 2)
	assert.True(t, loads[3].SubsetOf(lattice.IntegerLike))
	assert.True(t, loads[8].SubsetOf(lattice.Reference))

	ok, werr := res.WritesBoolean(1)
	require.NoError(t, werr)
	assert.False(t, ok)
}

func TestWritesBoolean(t *testing.T) {
	m := analyser.Method{
		ID:     id("flag", "()V"),
		Static: true,
		Emit:   body(opcodes.ICONST_1, opcodes.ISTORE_0, opcodes.ILOAD_0, opcodes.POP, opcodes.RETURN),
		Locals: []variables.Declaration{{Slot: 0, Name: "done", Desc: "Z", Start: 2, End: 4}},
	}
	res, _, err := newAnalyser(t, nil).Analyse(m)
	require.Nil(t, err)

	ok, werr := res.WritesBoolean(1)
	require.NoError(t, werr)
	assert.True(t, ok)
	ok, werr = res.WritesBoolean(0)
	require.NoError(t, werr)
	assert.False(t, ok)
	assert.True(t, res.ProducesBoolean(0))
	assert.True(t, res.IsBooleanOperand(1, 0))
}

func TestErrorsAreAttributed(t *testing.T) {
	tests := []struct {
		name  string
		m     analyser.Method
		kind  error
		order int
	}{
		{
			name:  "underflow",
			m:     analyser.Method{ID: id("underflow", "()V"), Static: true, Emit: body(opcodes.IADD, opcodes.RETURN)},
			kind:  failure.ErrLattice,
			order: 0,
		},
		{
			name: "long/reference join",
			m: analyser.Method{ID: id("join", "(I)V"), Static: true, Emit: func(b *instruction.Builder) error {
				_ = b.Insn(opcodes.ILOAD_0)
				_ = b.Jump(opcodes.IFEQ, 4)
				_ = b.Lconst(0)
				_ = b.Jump(opcodes.GOTO, 5)
				_ = b.Insn(opcodes.ACONST_NULL)
				return b.Insn(opcodes.RETURN)
			}},
			kind:  failure.ErrLattice,
			order: 5,
		},
		{
			name: "jump out of range",
			m: analyser.Method{ID: id("range", "()V"), Static: true, Emit: func(b *instruction.Builder) error {
				_ = b.Jump(opcodes.GOTO, 7)
				return b.Insn(opcodes.RETURN)
			}},
			kind:  failure.ErrMalformed,
			order: 0,
		},
		{
			name: "two variables live",
			m: analyser.Method{
				ID:     id("ambiguous", "()V"),
				Static: true,
				Emit:   body(opcodes.ICONST_0, opcodes.ISTORE_1, opcodes.ILOAD_1, opcodes.POP, opcodes.RETURN),
				Locals: []variables.Declaration{
					{Slot: 1, Name: "a", Desc: "I", Start: 0, End: 4},
					{Slot: 1, Name: "b", Desc: "Z", Start: 2, End: 4},
				},
			},
			kind:  failure.ErrAmbiguous,
			order: 2,
		},
		{
			name:  "falls off the end",
			m:     analyser.Method{ID: id("fall", "()V"), Static: true, Emit: body(opcodes.NOP)},
			kind:  failure.ErrMalformed,
			order: 0,
		},
	}
	a := newAnalyser(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, events, err := a.Analyse(tt.m)
			require.NotNil(t, err)
			assert.Nil(t, res)
			assert.Equal(t, tt.m.ID, err.Method)
			assert.Equal(t, tt.kind, err.Kind)
			assert.Equal(t, tt.order, err.Order)
			assert.True(t, errors.Is(err, tt.kind))
			assert.Contains(t, err.Error(), tt.m.ID.String())

			require.Len(t, events, 3)
			assert.Equal(t, analyser.MethodFailed, events[1].Kind)
			assert.Same(t, err, events[1].Err)
			assert.False(t, events[2].Success)
			assert.Zero(t, events[2].Iterations)
		})
	}
}

func TestBadDescriptorHasNoOrder(t *testing.T) {
	_, _, err := newAnalyser(t, nil).Analyse(analyser.Method{ID: id("bad", "(Q)V"), Emit: body(opcodes.RETURN)})
	require.NotNil(t, err)
	assert.Equal(t, failure.NoOrder, err.Order)
	assert.Equal(t, failure.ErrMalformed, err.Kind)
	assert.True(t, strings.HasPrefix(err.Error(), "demo/Flags.bad(Q)V: "), err.Error())
}

func TestStrictUnreachable(t *testing.T) {
	m := analyser.Method{ID: id("dead", "()V"), Static: true, Emit: body(opcodes.RETURN, opcodes.NOP, opcodes.RETURN)}

	res, _, err := newAnalyser(t, nil).Analyse(m)
	require.Nil(t, err)
	assert.ElementsMatch(t, []int{1, 2}, res.Graph.Unreachable().ToSlice())

	_, _, err = newAnalyser(t, func(c *analyser.Config) { c.Strict = true }).Analyse(m)
	require.NotNil(t, err)
	assert.Equal(t, failure.ErrMalformed, err.Kind)
	assert.Equal(t, 1, err.Order)
}

func TestExceptionEdgesSwitch(t *testing.T) {
	m := analyser.Method{
		ID:       id("guarded", "()V"),
		Static:   true,
		Emit:     body(opcodes.NOP, opcodes.RETURN, opcodes.ASTORE_0, opcodes.RETURN),
		Handlers: []instruction.TryCatch{{Start: 0, End: 1, Handler: 2}},
	}
	res, _, err := newAnalyser(t, nil).Analyse(m)
	require.Nil(t, err)
	assert.True(t, res.Graph.IsReachable(2))

	res, _, err = newAnalyser(t, func(c *analyser.Config) { c.ExceptionEdges = false }).Analyse(m)
	require.Nil(t, err)
	assert.False(t, res.Graph.IsReachable(2))
}

func TestAnalyseAll(t *testing.T) {
	var methods []analyser.Method
	for i := 0; i < 12; i++ {
		m := isZero
		m.ID = id(fmt.Sprintf("isZero%d", i), "(I)Z")
		methods = append(methods, m)
	}
	methods[5] = analyser.Method{ID: id("broken", "()V"), Static: true, Emit: body(opcodes.IADD, opcodes.RETURN)}

	for _, workers := range []int{0, 1, 4} {
		a := newAnalyser(t, func(c *analyser.Config) { c.Workers = workers })
		outcomes := a.AnalyseAll(methods)
		require.Len(t, outcomes, len(methods))

		var (
			stats  analyser.Stats
			events []analyser.Event
		)
		for i, o := range outcomes {
			events = append(events, o.Events...)
			if i == 5 {
				require.NotNil(t, o.Err)
				assert.Nil(t, o.Result)
				continue
			}
			require.Nil(t, o.Err, "method %d", i)
			assert.Equal(t, methods[i].ID, o.Result.ID)
		}
		stats.Fold(events)
		assert.Equal(t, 12, stats.Started)
		assert.Equal(t, 11, stats.Succeeded)
		assert.Equal(t, 1, stats.Failed)
		assert.Equal(t, 1, stats.Lattice)
		assert.Zero(t, stats.Malformed)
	}
	assert.Empty(t, newAnalyser(t, nil).AnalyseAll(nil))
}

func TestNewFillsLimits(t *testing.T) {
	a, err := analyser.New(analyser.Config{})
	require.NoError(t, err)
	assert.Equal(t, analyser.Defaults.DescriptorCache, a.Config().DescriptorCache)
	assert.Equal(t, analyser.Defaults.MaxIterations, a.Config().MaxIterations)
	assert.False(t, a.Config().ExceptionEdges)

	a, err = analyser.New(analyser.Defaults)
	require.NoError(t, err)
	assert.True(t, a.Config().ExceptionEdges)
}

func TestPanickingReader(t *testing.T) {
	methods := []analyser.Method{isZero, isZero, isZero, isZero}
	methods[1] = analyser.Method{ID: id("explode", "()V"), Static: true, Emit: func(*instruction.Builder) error {
		panic("truncated class file")
	}}
	for i := range methods {
		if i != 1 {
			methods[i].ID = id(fmt.Sprintf("isZero%d", i), "(I)Z")
		}
	}
	for _, workers := range []int{1, 2} {
		outcomes := newAnalyser(t, func(c *analyser.Config) { c.Workers = workers }).AnalyseAll(methods)
		require.Len(t, outcomes, len(methods))
		for i, o := range outcomes {
			assert.True(t, (o.Result == nil) != (o.Err == nil), "method %d", i)
		}
		err := outcomes[1].Err
		require.NotNil(t, err)
		assert.Equal(t, failure.ErrMalformed, err.Kind)
		assert.Equal(t, failure.NoOrder, err.Order)
		assert.Contains(t, err.Error(), "truncated class file")
		require.NotNil(t, outcomes[3].Result)
		assert.Equal(t, methods[3].ID, outcomes[3].Result.ID)
	}
}
