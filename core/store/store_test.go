package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jflow-project/jflow/core/analyser"
	"github.com/jflow-project/jflow/core/instruction"
	"github.com/jflow-project/jflow/core/lattice"
	"github.com/jflow-project/jflow/core/opcodes"
	"github.com/jflow-project/jflow/core/variables"
)

func flagMethod(class, name, desc string) analyser.Method {
	return analyser.Method{
		ID:     instruction.MethodID{Class: class, Name: name, Desc: "()V"},
		Static: true,
		Emit: func(b *instruction.Builder) error {
			for _, op := range []opcodes.Opcode{opcodes.ICONST_1, opcodes.ISTORE_0, opcodes.ILOAD_0, opcodes.POP, opcodes.RETURN} {
				if err := b.Insn(op); err != nil {
					return err
				}
			}
			return nil
		},
		Locals: []variables.Declaration{{Slot: 0, Name: "v", Desc: desc, Start: 2, End: 4}},
	}
}

func analyse(t *testing.T, m analyser.Method) *analyser.Result {
	t.Helper()
	a, err := analyser.New(analyser.Defaults)
	require.NoError(t, err)
	res, _, aerr := a.Analyse(m)
	require.Nil(t, aerr)
	return res
}

func TestPutGet(t *testing.T) {
	s := New()
	res := analyse(t, flagMethod("demo/A", "run", "Z"))
	assert.Empty(t, s.Put(res))

	got, ok := s.Get(res.ID)
	require.True(t, ok)
	assert.Same(t, res, got)
	assert.Equal(t, 1, s.Len())

	_, ok = s.Get(instruction.MethodID{Class: "demo/A", Name: "run", Desc: "(I)V"})
	assert.False(t, ok)
}

func TestReplaceReportsLoadTypeChanges(t *testing.T) {
	s := New()
	first := analyse(t, flagMethod("demo/A", "run", "Z"))
	second := analyse(t, flagMethod("demo/A", "run", "I"))
	require.Equal(t, lattice.Boolean, first.LoadTypes()[2])

	s.Put(first)
	events := s.Put(second)
	require.Len(t, events, 1)
	assert.Equal(t, analyser.Event{
		Kind:   analyser.LoadTypeChanged,
		Method: second.ID,
		Order:  2,
		Old:    lattice.Boolean,
		New:    lattice.Int,
	}, events[0])

	got, _ := s.Get(second.ID)
	assert.Same(t, second, got)
	assert.Equal(t, 1, s.Len())
	assert.Empty(t, s.Put(analyse(t, flagMethod("demo/A", "run", "I"))))

	var stats analyser.Stats
	stats.Fold(events)
	assert.Equal(t, 1, stats.LoadTypeChanges)
}

func TestByClassAndFacets(t *testing.T) {
	s := New()
	for _, c := range []string{"demo/B", "demo/A"} {
		for _, n := range []string{"zeta", "alpha"} {
			s.Put(analyse(t, flagMethod(c, n, "Z")))
		}
	}
	assert.Equal(t, []string{"demo/A", "demo/B"}, s.Classes())

	var names []string
	for _, res := range s.ByClass("demo/B") {
		names = append(names, res.ID.Class+"."+res.ID.Name)
	}
	assert.Equal(t, []string{"demo/B.alpha", "demo/B.zeta"}, names)
	assert.Nil(t, s.ByClass("demo/C"))

	alphas := s.Filter(func(r *analyser.Result) bool { return r.ID.Name == "alpha" })
	require.Len(t, alphas, 2)
	assert.Equal(t, "demo/A", alphas[0].ID.Class)

	graphs := s.CFGs()
	tables := s.VariableTables()
	assert.Len(t, graphs, 4)
	assert.Len(t, tables, 4)
	for id, g := range graphs {
		res, _ := s.Get(id)
		assert.Same(t, res.Graph, g)
		assert.Same(t, res.Variables, tables[id])
	}

	gone := instruction.MethodID{Class: "demo/B", Name: "zeta", Desc: "()V"}
	assert.True(t, s.Delete(gone))
	assert.False(t, s.Delete(gone))
	assert.Len(t, s.ByClass("demo/B"), 1)
	assert.True(t, s.Delete(instruction.MethodID{Class: "demo/B", Name: "alpha", Desc: "()V"}))
	assert.Equal(t, []string{"demo/A"}, s.Classes())
}

func TestConcurrentPut(t *testing.T) {
	a, err := analyser.New(analyser.Defaults)
	require.NoError(t, err)

	var methods []analyser.Method
	for i := 0; i < 40; i++ {
		methods = append(methods, flagMethod(fmt.Sprintf("demo/C%d", i%4), fmt.Sprintf("m%d", i), "Z"))
	}
	s := New()
	var wg sync.WaitGroup
	for _, o := range a.AnalyseAll(methods) {
		require.Nil(t, o.Err)
		wg.Add(1)
		go func(res *analyser.Result) {
			defer wg.Done()
			s.Put(res)
		}(o.Result)
	}
	wg.Wait()
	assert.Equal(t, 40, s.Len())
	assert.Len(t, s.ByClass("demo/C3"), 10)
}
