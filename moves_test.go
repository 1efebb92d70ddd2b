package regalloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHalfMoveKeyPacking(t *testing.T) {
	hm := halfMove{key: halfMoveKey(13, 7, VReg(42), halfMoveDest)}
	require.Equal(t, 13, hm.fromBlock())
	require.Equal(t, 7, hm.toBlock())
	require.Equal(t, halfMoveDest, hm.kind())

	// The source sorts immediately before its destinations.
	src := halfMoveKey(13, 7, VReg(42), halfMoveSource)
	require.Less(t, src, hm.key)
	// Different edges never interleave.
	require.Less(t, hm.key, halfMoveKey(13, 8, VReg(0), halfMoveSource))
}

func TestSerializeParallelChain(t *testing.T) {
	e := &Env{menv: testMachineEnv(4)}
	p0, p1, p2 := AllocReg(intReg(0)), AllocReg(intReg(1)), AllocReg(intReg(2))
	pt := MakeProgPoint(3, Before)

	e.serializeParallelGroup([]pendingMove{
		{Point: pt, Prio: PriorityRegular, From: p0, To: p1, Class: RegClassInt},
		{Point: pt, Prio: PriorityRegular, From: p1, To: p2, Class: RegClassInt},
	})

	require.Len(t, e.edits, 2)
	// p1 must be saved into p2 before p0 overwrites it.
	require.Equal(t, p1, e.edits[0].MoveFrom)
	require.Equal(t, p2, e.edits[0].MoveTo)
	require.Equal(t, p0, e.edits[1].MoveFrom)
	require.Equal(t, p1, e.edits[1].MoveTo)
}

func TestSerializeParallelCycleUsesScratch(t *testing.T) {
	e := &Env{menv: testMachineEnv(4)}
	p0, p1 := AllocReg(intReg(0)), AllocReg(intReg(1))
	scratch := AllocReg(e.menv.ScratchByClass[RegClassInt])
	pt := MakeProgPoint(5, After)

	e.serializeParallelGroup([]pendingMove{
		{Point: pt, Prio: PriorityOutEdgeMoves, From: p0, To: p1, Class: RegClassInt},
		{Point: pt, Prio: PriorityOutEdgeMoves, From: p1, To: p0, Class: RegClassInt},
	})

	require.Len(t, e.edits, 3)
	require.Equal(t, p0, e.edits[0].MoveFrom)
	require.Equal(t, scratch, e.edits[0].MoveTo)
	require.Equal(t, p1, e.edits[1].MoveFrom)
	require.Equal(t, p0, e.edits[1].MoveTo)
	require.Equal(t, scratch, e.edits[2].MoveFrom)
	require.Equal(t, p1, e.edits[2].MoveTo)
}

func TestSerializeParallelDropsNoopsAndDups(t *testing.T) {
	e := &Env{menv: testMachineEnv(4)}
	p0, p1 := AllocReg(intReg(0)), AllocReg(intReg(1))
	pt := MakeProgPoint(1, Before)

	e.serializeParallelGroup([]pendingMove{
		{Point: pt, Prio: PriorityRegular, From: p0, To: p0, Class: RegClassInt},
		{Point: pt, Prio: PriorityRegular, From: p0, To: p1, Class: RegClassInt},
		{Point: pt, Prio: PriorityRegular, From: p0, To: p1, Class: RegClassInt},
	})

	require.Len(t, e.edits, 1)
	require.Equal(t, p0, e.edits[0].MoveFrom)
	require.Equal(t, p1, e.edits[0].MoveTo)
	require.Equal(t, 1, e.stats.NumMoves)
}

func TestEdgeMovePlacement(t *testing.T) {
	v0 := VReg(0)
	// Diamond with a pre-split join edge: b0 -> {b1, b2}, b1 -> b3,
	// b2 -> b3. Edges out of b0 place at the destinations (single-pred);
	// edges into b3 place at the sources (single-succ).
	b0 := newMockBlock(0,
		newMockInstr().ops(defReg(v0)),
		newMockInstr().asBranch(),
	).entry()
	b1 := newMockBlock(1, newMockInstr().asBranch())
	b2 := newMockBlock(2, newMockInstr().asBranch())
	b3 := newMockBlock(3,
		newMockInstr().ops(useReg(v0)),
		newMockInstr().asRet(),
	)
	b1.addPred(b0)
	b2.addPred(b0)
	b3.addPred(b1)
	b3.addPred(b2)
	f := newMockFunction(1, b0, b1, b2, b3)

	e := newEnv(f, testMachineEnv(2), DefaultOptions())
	require.NoError(t, e.computeLiveness())

	pt, prio, err := e.edgeMovePlacement(0, 1)
	require.NoError(t, err)
	require.Equal(t, MakeProgPoint(2, Before), pt)
	require.Equal(t, PriorityInEdgeMoves, prio)

	pt, prio, err = e.edgeMovePlacement(1, 3)
	require.NoError(t, err)
	require.Equal(t, MakeProgPoint(2, After), pt)
	require.Equal(t, PriorityOutEdgeMoves, prio)
}

func TestEditOrderingAcrossPriorities(t *testing.T) {
	// A spilled value crossing a call plus a fixed-demand pair at the same
	// call produces edits at mixed priorities; the stream must come out
	// sorted by (point, priority).
	v0, v1 := VReg(0), VReg(1)
	r2, r3 := intReg(2), intReg(3)
	b0 := newMockBlock(0,
		newMockInstr().ops(defReg(v0)),
		newMockInstr().ops(defReg(v1)),
		newMockInstr().ops(useFixed(v1, r2), useFixed(v1, r3)).asCall(intReg(0), intReg(1)),
		newMockInstr().ops(useReg(v0), useReg(v1)),
		newMockInstr().asRet(),
	).entry()
	f := newMockFunction(2, b0)

	out, err := Allocate(f, testMachineEnv(4), DefaultOptions())
	require.NoError(t, err)

	for k := 1; k < len(out.Edits); k++ {
		prev, cur := out.Edits[k-1], out.Edits[k]
		require.True(t, prev.Point < cur.Point ||
			(prev.Point == cur.Point && prev.Priority <= cur.Priority))
	}
}
