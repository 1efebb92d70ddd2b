package regalloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRangeTreeOverlapLookup(t *testing.T) {
	tree := newRangeTree()
	mk := func(from, to ProgPoint) CodeRange { return CodeRange{From: from, To: to} }

	tree.Insert(rangeEntry{CodeRange: mk(0, 4), Owner: 1})
	tree.Insert(rangeEntry{CodeRange: mk(8, 12), Owner: 2})
	tree.Insert(rangeEntry{CodeRange: mk(20, 21), Owner: 3})
	require.Equal(t, 3, tree.Len())

	// Overlap acts as equality for Get.
	got, ok := tree.Get(mk(2, 3))
	require.True(t, ok)
	require.Equal(t, LiveRangeIndex(1), got.Owner)
	got, ok = tree.Get(mk(11, 30))
	require.True(t, ok)

	// Abutting is not overlapping.
	_, ok = tree.Get(mk(4, 8))
	require.False(t, ok)
	require.False(t, tree.Has(mk(12, 20)))
	require.True(t, tree.Has(mk(3, 9)))
}

func TestRangeTreeOverlapsCollects(t *testing.T) {
	tree := newRangeTree()
	mk := func(from, to ProgPoint) CodeRange { return CodeRange{From: from, To: to} }
	tree.Insert(rangeEntry{CodeRange: mk(0, 4), Owner: 1})
	tree.Insert(rangeEntry{CodeRange: mk(6, 8), Owner: 2})
	tree.Insert(rangeEntry{CodeRange: mk(10, 14), Owner: 3})

	var buf []rangeEntry
	buf = tree.Overlaps(mk(3, 11), buf)
	require.Len(t, buf, 3)
	// Ascending CodeRange order.
	require.Equal(t, LiveRangeIndex(1), buf[0].Owner)
	require.Equal(t, LiveRangeIndex(2), buf[1].Owner)
	require.Equal(t, LiveRangeIndex(3), buf[2].Owner)

	buf = tree.Overlaps(mk(4, 6), buf)
	require.Empty(t, buf)
}

func TestRangeTreeRemove(t *testing.T) {
	tree := newRangeTree()
	cr := CodeRange{From: 5, To: 9}
	tree.Insert(rangeEntry{CodeRange: cr, Owner: 7})

	removed, ok := tree.Remove(cr)
	require.True(t, ok)
	require.Equal(t, LiveRangeIndex(7), removed.Owner)
	require.Equal(t, 0, tree.Len())
	_, ok = tree.Remove(cr)
	require.False(t, ok)
}
