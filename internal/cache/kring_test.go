package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKRing_EvictsOldest(t *testing.T) {
	k := NewKRing[int](3)
	k.Append("a", 1)
	k.Append("b", 2)
	k.Append("c", 3)

	// lookups do not protect a key from eviction
	_, ok := k.Get("a")
	require.True(t, ok)

	k.Append("d", 4)
	require.Equal(t, 3, k.Len())

	_, ok = k.Get("a")
	require.False(t, ok)
	v, ok := k.Get("d")
	require.True(t, ok)
	require.Equal(t, 4, v)
}

func TestKRing_ReplaceMovesToNewest(t *testing.T) {
	k := NewKRing[string](2)
	k.Append("a", "x")
	k.Append("b", "y")
	k.Append("a", "z")
	k.Append("c", "w")

	_, ok := k.Get("b")
	require.False(t, ok)
	v, ok := k.Get("a")
	require.True(t, ok)
	require.Equal(t, "z", v)
	require.Equal(t, 2, k.Len())
}

func TestKRing_ClearAndDisabled(t *testing.T) {
	k := NewKRing[int](2)
	k.Append("a", 1)
	k.Clear()
	require.Equal(t, 0, k.Len())
	_, ok := k.Get("a")
	require.False(t, ok)

	off := NewKRing[int](0)
	off.Append("a", 1)
	require.Equal(t, 0, off.Len())
}
