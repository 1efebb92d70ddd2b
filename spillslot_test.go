package regalloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLayoutSpillSlotsAlignsToSize(t *testing.T) {
	e := &Env{}
	e.spillSlots = []SpillSlotData{
		{SizeUnits: 1},
		{SizeUnits: 4},
		{SizeUnits: 1},
		{SizeUnits: 2},
	}
	total := e.layoutSpillSlots()

	require.Equal(t, 0, e.spillSlots[0].Offset)
	require.Equal(t, 4, e.spillSlots[1].Offset, "rounded up to its own size")
	require.Equal(t, 8, e.spillSlots[2].Offset)
	require.Equal(t, 10, e.spillSlots[3].Offset)
	require.Equal(t, 12, total)
}

func TestSpillSlotGroupReuse(t *testing.T) {
	// Two values whose lifetimes do not overlap share one stack slot; a
	// third that overlaps both needs its own.
	v0, v1, v2 := VReg(0), VReg(1), VReg(2)
	b0 := newMockBlock(0,
		newMockInstr().ops(defAny(v2)),
		newMockInstr().ops(defAny(v0)),
		newMockInstr().ops(useAny(v0)),
		newMockInstr().ops(defAny(v1)),
		newMockInstr().ops(useAny(v1)),
		newMockInstr().ops(useAny(v2)),
		newMockInstr().asRet(),
	).entry()
	f := newMockFunction(3, b0)

	// No registers at all: every bundle spills.
	out, err := Allocate(f, testMachineEnv(0), DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 2, out.NumSpillSlots)

	// v0 and v1 share a slot; v2 does not share with either.
	s0 := out.InstAllocs[1][0]
	s1 := out.InstAllocs[3][0]
	s2 := out.InstAllocs[0][0]
	require.True(t, s0.IsStack())
	require.True(t, s1.IsStack())
	require.True(t, s2.IsStack())
	require.Equal(t, s0.Slot, s1.Slot)
	require.NotEqual(t, s0.Slot, s2.Slot)
}

func TestSpillSlotMultiUnitNaming(t *testing.T) {
	v0 := VReg(0)
	build := func() *mockFunction {
		b0 := newMockBlock(0,
			newMockInstr().ops(defAny(v0)),
			newMockInstr().ops(useAny(v0)),
			newMockInstr().asRet(),
		).entry()
		f := newMockFunction(1, b0)
		f.slotSizes[RegClassInt] = 2
		return f
	}

	f := build()
	out, err := Allocate(f, testMachineEnv(0), DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 2, out.NumSpillSlots)
	require.Equal(t, SpillSlotIndex(0), out.InstAllocs[0][0].Slot)

	f = build()
	f.namedByLast = true
	out, err = Allocate(f, testMachineEnv(0), DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, SpillSlotIndex(1), out.InstAllocs[0][0].Slot)
}
