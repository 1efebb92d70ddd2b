package regalloc

import "sort"

// blockParamIn records that vreg ToVReg, a parameter of block ToBlock, must
// receive its value along the edge from FromBlock. Discovered once per
// (block, predecessor) during liveness and consumed by moves.go when
// building the half-move set for block-entry edges.
type blockParamIn struct {
	ToVReg    VReg
	ToBlock   int
	FromBlock int
}

// blockParamOut records that, along the edge from FromBlock to ToBlock, the
// branch's argument vreg FromVReg feeds the successor's parameter ToVReg.
// Discovered once per terminating branch; bundle.go's blockparam merge uses
// it to coalesce FromVReg and ToVReg into one bundle when they don't
// otherwise conflict, and moves.go falls back to an explicit move when they
// don't merge.
type blockParamOut struct {
	FromVReg  VReg
	FromBlock int
	ToBlock   int
	ToVReg    VReg
}

// multiFixedFixup is a single (point, from, to) register-to-register copy
// recorded by the multi-fixed cleanup pass: when two operands of the
// same vreg at the same ProgPoint both demand distinct fixed pregs, only the
// first keeps its FixedReg policy and the rest are demoted to Reg, with the
// demoted preg's value produced/consumed via this copy instead.
type multiFixedFixup struct {
	Point    ProgPoint
	FromPReg PReg
	ToPReg   PReg
	Class    RegClass
}

// reserveClobber marks preg p as unavailable across instruction inst's
// execution, as if a fixed-use/def pair bracketed it. It does not touch
// clobberInsts; liveness.go appends each clobbering instruction there itself
// so split.go can treat it as a natural split boundary.
func (e *Env) reserveClobber(p PReg, inst int) {
	cr := CodeRange{From: MakeProgPoint(inst, Before), To: MakeProgPoint(inst+1, Before)}
	pd := e.pregData(p)
	pd.Occupancy.Insert(rangeEntry{CodeRange: cr, Owner: LiveRangeInvalid, Fixed: true})
}

// sortedClobberInsts returns clobberInsts sorted ascending with duplicates
// removed, memoizing the result (an instruction that clobbers many pregs
// otherwise appears once per clobbered register).
func (e *Env) sortedClobberInsts() []int {
	if e.clobberInstsSorted {
		return e.clobberInsts
	}
	insts := append([]int(nil), e.clobberInsts...)
	sort.Ints(insts)
	out := insts[:0]
	for i, v := range insts {
		if i == 0 || v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	e.clobberInsts = out
	e.clobberInstsSorted = true
	return e.clobberInsts
}
