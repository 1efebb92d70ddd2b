package regalloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func vregRangeCount(e *Env, v VReg) int {
	n := 0
	for r := e.vreg(v).RangesHead; r != LiveRangeInvalid; r = e.range_(r).NextInReg {
		n++
	}
	return n
}

func TestLivenessCrossBlock(t *testing.T) {
	v0 := VReg(0)
	b0 := newMockBlock(0,
		newMockInstr().ops(defReg(v0)),
		newMockInstr().asBranch(),
	).entry()
	b1 := newMockBlock(1,
		newMockInstr().ops(useReg(v0)),
		newMockInstr().asRet(),
	)
	b1.addPred(b0)
	f := newMockFunction(1, b0, b1)

	e := newEnv(f, testMachineEnv(2), DefaultOptions())
	require.NoError(t, e.computeLiveness())

	require.True(t, e.blockLiveIn[1].has(0))
	require.False(t, e.blockLiveIn[0].has(0))
	require.True(t, e.blockLiveOut[0].has(0))

	// One per-block range each, not yet coalesced.
	require.Equal(t, 2, vregRangeCount(e, v0))

	vd := e.vreg(v0)
	require.True(t, vd.Def.Present)
	require.Equal(t, MakeProgPoint(0, After), vd.Def.Point)
}

func TestLivenessLoopFixpoint(t *testing.T) {
	// v0 defined in the preheader, used only in the loop body: the backward
	// fixpoint must carry it around the backedge so it is live into the
	// header from both predecessors.
	v0 := VReg(0)
	b0 := newMockBlock(0,
		newMockInstr().ops(defReg(v0)),
		newMockInstr().asBranch(),
	).entry()
	b1 := newMockBlock(1,
		newMockInstr().ops(useReg(v0)),
		newMockInstr().asBranch(),
	)
	b2 := newMockBlock(2,
		newMockInstr().asBranch(),
	)
	b3 := newMockBlock(3,
		newMockInstr().asRet(),
	)
	b1.addPred(b0)
	b2.addPred(b1)
	b3.addPred(b1)
	b1.addPred(b2)
	f := newMockFunction(1, b0, b1, b2, b3)

	e := newEnv(f, testMachineEnv(2), DefaultOptions())
	require.NoError(t, e.computeLiveness())

	require.True(t, e.blockLiveIn[1].has(0))
	require.True(t, e.blockLiveIn[2].has(0), "live around the backedge")
	require.True(t, e.blockLiveOut[2].has(0))
	require.False(t, e.blockLiveIn[3].has(0))
}

func TestLivenessBranchUseExtendsToExit(t *testing.T) {
	v0, v1 := VReg(0), VReg(1)
	b0 := newMockBlock(0,
		newMockInstr().ops(defReg(v0)),
		newMockInstr().ops(useAny(v0)).asBranch(),
	).entry()
	b1 := newMockBlock(1,
		newMockInstr().ops(useReg(v1)).asRet(),
	).blockParam(v1)
	b1.addPred(b0)
	f := newMockFunction(2, b0, b1)

	e := newEnv(f, testMachineEnv(2), DefaultOptions())
	require.NoError(t, e.computeLiveness())

	// The branch argument is live through the block exit point.
	r := e.range_(e.vreg(v0).RangesHead)
	require.True(t, r.CodeRange.Contains(MakeProgPoint(1, After)))

	// Blockparam plumbing recorded for the edge.
	require.Len(t, e.blockParamOuts, 1)
	require.Equal(t, blockParamOut{FromVReg: v0, FromBlock: 0, ToBlock: 1, ToVReg: v1}, e.blockParamOuts[0])
	require.Len(t, e.blockParamIns, 1)
	require.Equal(t, blockParamIn{ToVReg: v1, ToBlock: 1, FromBlock: 0}, e.blockParamIns[0])

	// The parameter's def sits at its block's entry.
	vd := e.vreg(v1)
	require.True(t, vd.Def.Present)
	require.Equal(t, MakeProgPoint(2, Before), vd.Def.Point)
	require.Equal(t, 1, vd.BlockParamOf)
}

func TestLivenessMultiFixedCleanup(t *testing.T) {
	v0 := VReg(0)
	r0, r1 := intReg(0), intReg(1)
	b0 := newMockBlock(0,
		newMockInstr().ops(defReg(v0)),
		newMockInstr().ops(useFixed(v0, r0), useFixed(v0, r1)),
		newMockInstr().asRet(),
	).entry()
	f := newMockFunction(1, b0)

	e := newEnv(f, testMachineEnv(4), DefaultOptions())
	require.NoError(t, e.computeLiveness())

	require.Len(t, e.multiFixedFixups, 1)
	fx := e.multiFixedFixups[0]
	require.Equal(t, MakeProgPoint(1, Before), fx.Point)
	require.Equal(t, r0, fx.FromPReg)
	require.Equal(t, r1, fx.ToPReg)

	// The second slot was demoted to a plain Reg policy.
	require.True(t, e.isDemoted(1, 1))
	require.False(t, e.isDemoted(1, 0))
	r := e.range_(e.vreg(v0).RangesHead)
	var policies []OperandPolicyKind
	for u := r.UseHead; u != UseInvalid; u = e.use(u).Next {
		policies = append(policies, e.use(u).Operand.PolicyKind())
	}
	require.Equal(t, []OperandPolicyKind{PolicyFixedReg, PolicyReg}, policies)

	// The demoted preg is reserved across the instruction.
	require.True(t, e.pregData(r1).Occupancy.Has(CodeRange{
		From: MakeProgPoint(1, Before), To: MakeProgPoint(2, Before),
	}))
}

func TestLivenessReusePromotion(t *testing.T) {
	v0, v1, v2 := VReg(0), VReg(1), VReg(2)
	b0 := newMockBlock(0,
		newMockInstr().ops(defReg(v0)),
		newMockInstr().ops(defReg(v1)),
		newMockInstr().ops(useReg(v0), useReg(v1), defReuse(v2, 0)),
		newMockInstr().asRet(),
	).entry()
	f := newMockFunction(3, b0)

	e := newEnv(f, testMachineEnv(4), DefaultOptions())
	require.NoError(t, e.computeLiveness())

	findUseAt := func(v VReg, inst int) ProgPoint {
		for r := e.vreg(v).RangesHead; r != LiveRangeInvalid; r = e.range_(r).NextInReg {
			for u := e.range_(r).UseHead; u != UseInvalid; u = e.use(u).Next {
				if e.use(u).Point.InstIndex() == inst {
					return e.use(u).Point
				}
			}
		}
		t.Fatalf("no use of %s at instruction %d", v, inst)
		return ProgPointInvalid
	}

	// The reused input keeps its Before position; the other input is
	// promoted to After so it interferes with the reusing def.
	require.Equal(t, MakeProgPoint(2, Before), findUseAt(v0, 2))
	require.Equal(t, MakeProgPoint(2, After), findUseAt(v1, 2))
}
