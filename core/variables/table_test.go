package variables

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jflow-project/jflow/core/descriptor"
	"github.com/jflow-project/jflow/core/failure"
	"github.com/jflow-project/jflow/core/lattice"
)

func method(t *testing.T, desc string) *descriptor.Method {
	t.Helper()
	m, err := descriptor.ParseMethod(desc)
	require.NoError(t, err)
	return m
}

func TestSlotReuse(t *testing.T) {
	decls := []Declaration{
		{Slot: 1, Name: "n", Desc: "I", Start: 0, End: 5},
		{Slot: 1, Name: "s", Desc: "Ljava/lang/String;", Start: 6, End: 10},
	}
	table, err := New(decls, method(t, "()V"), true, 11)
	require.NoError(t, err)

	lifetimes := table.Lifetimes(1)
	require.Len(t, lifetimes, 2)
	assert.Equal(t, "n", lifetimes[0].Name)
	assert.Equal(t, "s", lifetimes[1].Name)
	assert.Empty(t, table.Overlapping())

	at3, err := table.TypeAt(1, 3, lattice.IntegerLike)
	require.NoError(t, err)
	assert.True(t, at3.SubsetOf(lattice.IntegerLike))

	at8, err := table.TypeAt(1, 8, lattice.Reference)
	require.NoError(t, err)
	assert.True(t, at8.SubsetOf(lattice.Reference))
}

func TestLifetimeBoundaries(t *testing.T) {
	decls := []Declaration{
		{Slot: 0, Name: "a", Desc: "J", Start: 2, End: 4},
		{Slot: 2, Name: "b", Desc: "Z", Start: 0, End: 0},
		{Slot: 2, Name: "c", Desc: "[I", Start: 1, End: 7},
		{Slot: 3, Name: "d", Desc: "D", Start: 5, End: 9},
	}
	table, err := New(decls, nil, true, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 3}, table.Slots())

	for _, slot := range table.Slots() {
		for _, l := range table.Lifetimes(slot) {
			assert.True(t, l.IsAliveAt(l.Start, true), l.String())
			assert.True(t, l.IsAliveAt(l.End, true), l.String())
			assert.False(t, l.IsAliveAt(l.End+1, true), l.String())
			assert.False(t, l.IsAliveAt(l.Start-1, true), l.String())
			assert.False(t, l.IsAliveAt(l.Start, false), l.String())
			assert.True(t, l.IsAliveAt(l.End+1, false), l.String())
		}
	}
}

func TestParameterFallback(t *testing.T) {
	table, err := New(nil, method(t, "(JZLjava/lang/String;)V"), false, 4)
	require.NoError(t, err)

	tests := []struct {
		slot int
		want lattice.Set
	}{
		{0, lattice.Object},
		{1, lattice.Long},
		{2, lattice.IntegerLike},
		{3, lattice.Boolean},
		{4, lattice.Object},
		{5, lattice.Float},
	}
	fallback := map[int]lattice.Set{2: lattice.IntegerLike, 5: lattice.Float}
	for _, tt := range tests {
		fb, ok := fallback[tt.slot]
		if !ok {
			fb = lattice.Any
		}
		got, err := table.TypeAt(tt.slot, 0, fb)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "slot %d", tt.slot)
	}
}

func TestOverlapIsAmbiguous(t *testing.T) {
	decls := []Declaration{
		{Slot: 1, Name: "x", Desc: "I", Start: 0, End: 4},
		{Slot: 1, Name: "y", Desc: "Z", Start: 3, End: 6},
		{Slot: 1, Name: "x", Desc: "I", Start: 0, End: 4},
	}
	table, err := New(decls, nil, true, 7)
	require.NoError(t, err)
	assert.Len(t, table.Lifetimes(1), 2)
	assert.Equal(t, []int{1}, table.Overlapping())

	_, err = table.TypeAt(1, 1, lattice.IntegerLike)
	require.NoError(t, err)

	_, err = table.TypeAt(1, 3, lattice.IntegerLike)
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrAmbiguous))
	assert.Equal(t, 3, failure.OrderOf(err))

	got, err := table.TypeAt(1, 6, lattice.IntegerLike)
	require.NoError(t, err)
	assert.Equal(t, lattice.Boolean, got)
}

func TestStoredTypeAt(t *testing.T) {
	decls := []Declaration{{Slot: 2, Name: "flag", Desc: "Z", Start: 4, End: 8}}
	table, err := New(decls, nil, true, 9)
	require.NoError(t, err)

	l, ok, err := table.StoredTypeAt(2, 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, lattice.Boolean, l.Category())

	_, ok, err = table.StoredTypeAt(2, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidDeclarations(t *testing.T) {
	for _, d := range []Declaration{
		{Slot: -1, Name: "a", Desc: "I", Start: 0, End: 1},
		{Slot: 0, Name: "a", Desc: "I", Start: 3, End: 1},
		{Slot: 0, Name: "a", Desc: "I", Start: 0, End: 5},
		{Slot: 0, Name: "a", Desc: "X", Start: 0, End: 1},
	} {
		_, err := New([]Declaration{d}, nil, true, 5)
		require.Error(t, err)
		assert.True(t, errors.Is(err, failure.ErrMalformed))
	}
}
