package regalloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProgPointPacking(t *testing.T) {
	p := MakeProgPoint(7, After)
	require.Equal(t, 7, p.InstIndex())
	require.Equal(t, After, p.Slot())
	require.Equal(t, MakeProgPoint(7, Before), p.Before())
	require.Equal(t, MakeProgPoint(8, Before), p.Next())

	b := MakeProgPoint(7, Before)
	require.True(t, b < p)
	require.Equal(t, p, b.Succ())
	require.Equal(t, b, p.Pred())
	require.Equal(t, MakeProgPoint(8, Before), p.Succ())
}

func TestCodeRangeRelations(t *testing.T) {
	mk := func(from, to ProgPoint) CodeRange { return CodeRange{From: from, To: to} }
	a := mk(2, 6)
	require.Equal(t, 4, a.Len())
	require.False(t, a.IsEmpty())
	require.True(t, a.Contains(2))
	require.True(t, a.Contains(5))
	require.False(t, a.Contains(6))

	require.True(t, a.Overlaps(mk(5, 9)))
	require.True(t, a.Overlaps(mk(0, 3)))
	require.True(t, a.Overlaps(mk(3, 4)))
	// Half-open ranges that merely abut do not overlap.
	require.False(t, a.Overlaps(mk(6, 9)))
	require.False(t, a.Overlaps(mk(0, 2)))
	require.True(t, mk(4, 4).IsEmpty())
}
