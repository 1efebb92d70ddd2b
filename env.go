package regalloc

// Env is the allocator's working state for one Function: every arena, the
// physical-register and spill-slot occupancy maps, and the accumulating
// output. One Env is built, driven through the pipeline in alloc.go, and
// discarded. Nothing about it is safe for concurrent use; the allocator is
// single-threaded per invocation by design.
type Env struct {
	f    Function
	menv *MachineEnv
	opts Options

	vregs []vRegData

	// blocksByID maps a block ID back to its Block, built once from
	// f.Blocks() since several passes (liveness, hot-code detection) need
	// random access by ID rather than iteration order.
	blocksByID []Block

	ranges    Pool[LiveRange]
	uses      Pool[useRecord]
	bundles   Pool[LiveBundle]
	spillSets Pool[SpillSet]

	// pregs[class] is indexed by PReg.Num(); sized to cover every register
	// number mentioned in menv.RegsByClass or menv.ScratchByClass for that
	// class.
	pregs [NumRegClasses][]pRegData

	spillSlots []SpillSlotData

	hotCode *rangeTree

	blockLiveIn  []bitset
	blockLiveOut []bitset

	// blockParamIns/blockParamOuts record the cross-block parameter
	// plumbing discovered during liveness, consumed by bundle.go's
	// blockparam merge and moves.go's half-move scheme.
	blockParamIns  []blockParamIn
	blockParamOuts []blockParamOut

	// clobberInsts lists, once per instruction that clobbers any preg,
	// the instruction index; used by split.go's clobber-split category.
	// Populated during liveness, sorted+deduped before first use.
	clobberInsts       []int
	clobberInstsSorted bool

	// multiFixedFixups is the (point, from, to) copy list the multi-fixed
	// cleanup pass records; replayed as MultiFixedReg moves by moves.go.
	multiFixedFixups []multiFixedFixup

	// demotedOperands marks (inst, slot) pairs whose FixedReg policy was
	// rewritten to Reg by the multi-fixed cleanup; output validation must
	// not hold them to the policy the Function still reports.
	demotedOperands map[uint64]struct{}

	// spilledBundles accumulates bundles whose computed requirement was
	// Any; retried once, after the main queue drains, by spillslot.go's
	// try-allocating-regs-for-spilled-bundles pass.
	spilledBundles []LiveBundleIndex

	queue bundleQueue

	edits      []Edit
	instAllocs [][]Allocation

	stats Stats
}

// Options controls optional allocator behavior.
type Options struct {
	// Validate, if true, runs the post-allocation invariant checks and
	// returns an ErrInternal RegAllocError if any fails, instead of
	// relying solely on the ValidationEnabled build-time const. Defaults to
	// ValidationEnabled's value when left unset by callers using
	// DefaultOptions.
	Validate bool
}

// DefaultOptions mirrors the debug-const defaults (debug.go).
func DefaultOptions() Options {
	return Options{Validate: ValidationEnabled}
}

func newEnv(f Function, menv *MachineEnv, opts Options) *Env {
	e := &Env{
		f:          f,
		menv:       menv,
		opts:       opts,
		vregs:      make([]vRegData, f.NumVRegs()),
		ranges:     NewPool[LiveRange](),
		uses:       NewPool[useRecord](),
		bundles:    NewPool[LiveBundle](),
		spillSets:  NewPool[SpillSet](),
		hotCode:    newRangeTree(),
		instAllocs: make([][]Allocation, f.NumInsts()),
		queue:      newBundleQueue(),
	}
	for c := RegClass(0); c < NumRegClasses; c++ {
		maxNum := -1
		for _, r := range menv.RegsByClass[c] {
			if n := int(r.Num()); n > maxNum {
				maxNum = n
			}
		}
		if s := menv.ScratchByClass[c]; s.Valid() && s.Class() == c {
			if n := int(s.Num()); n > maxNum {
				maxNum = n
			}
		}
		if maxNum < 0 {
			continue
		}
		pd := make([]pRegData, maxNum+1)
		for i := range pd {
			pd[i].Occupancy = newRangeTree()
		}
		e.pregs[c] = pd
	}
	for i := range e.vregs {
		e.vregs[i].RangesHead = LiveRangeInvalid
		e.vregs[i].BlockParamOf = -1
	}
	for i := range e.instAllocs {
		e.instAllocs[i] = make([]Allocation, len(f.InstOperands(i)))
	}
	blocks := f.Blocks()
	e.blocksByID = make([]Block, len(blocks))
	for _, b := range blocks {
		e.blocksByID[b.ID()] = b
	}
	return e
}

func (e *Env) markDemoted(inst, slot int) {
	if e.demotedOperands == nil {
		e.demotedOperands = map[uint64]struct{}{}
	}
	e.demotedOperands[uint64(inst)<<32|uint64(uint32(slot))] = struct{}{}
}

func (e *Env) isDemoted(inst, slot int) bool {
	_, ok := e.demotedOperands[uint64(inst)<<32|uint64(uint32(slot))]
	return ok
}

func (e *Env) pregData(p PReg) *pRegData {
	return &e.pregs[p.Class()][p.Num()]
}

func (e *Env) vreg(v VReg) *vRegData { return &e.vregs[v] }

func (e *Env) range_(idx LiveRangeIndex) *LiveRange { return e.ranges.At(int(idx)) }
func (e *Env) use(idx UseIndex) *useRecord          { return e.uses.At(int(idx)) }
func (e *Env) bundle(idx LiveBundleIndex) *LiveBundle {
	return e.bundles.At(int(idx))
}
func (e *Env) spillSet(idx SpillSetIndex) *SpillSet { return e.spillSets.At(int(idx)) }

func (e *Env) newLiveRange(v VReg, cr CodeRange) LiveRangeIndex {
	idx := LiveRangeIndex(e.ranges.Allocate())
	r := e.range_(idx)
	*r = LiveRange{
		CodeRange:    cr,
		VReg:         v,
		Bundle:       LiveBundleInvalid,
		UseHead:      UseInvalid,
		UseTail:      UseInvalid,
		NextInBundle: LiveRangeInvalid,
		NextInReg:    LiveRangeInvalid,
	}
	return idx
}

func (e *Env) newBundle() LiveBundleIndex {
	idx := LiveBundleIndex(e.bundles.Allocate())
	b := e.bundle(idx)
	*b = LiveBundle{
		RangesHead: LiveRangeInvalid,
		SpillSet:   SpillSetInvalid,
		Alloc:      AllocationNoneVal,
	}
	return idx
}

func (e *Env) newSpillSet(class RegClass, slotCap uint32) SpillSetIndex {
	idx := SpillSetIndex(e.spillSets.Allocate())
	s := e.spillSet(idx)
	*s = SpillSet{Class: class, SlotCap: slotCap, Slot: SpillSlotInvalid, RegHint: PRegInvalid}
	return idx
}

// addUse inserts a use into range idx's use list, keeping the list in
// ascending ProgPoint order. The reverse instruction scan in liveness.go
// discovers most uses in descending order, so the prepend fast path below
// covers the common case.
func (e *Env) addUse(idx LiveRangeIndex, op Operand, point ProgPoint, slot int) {
	u := UseIndex(e.uses.Allocate())
	*e.use(u) = useRecord{Operand: op, Point: point, Slot: slot, Next: UseInvalid}

	r := e.range_(idx)
	if r.UseHead == UseInvalid {
		r.UseHead, r.UseTail = u, u
		return
	}
	if point >= e.use(r.UseTail).Point {
		e.use(r.UseTail).Next = u
		r.UseTail = u
		return
	}
	// Out-of-order insert: linear scan, placing equal points after any
	// already-present equal points so same-instruction uses keep operand
	// order. Simplicity wins over an intrusive doubly-linked list here;
	// this path is only taken within one instruction's operands.
	if point < e.use(r.UseHead).Point {
		e.use(u).Next = r.UseHead
		r.UseHead = u
		return
	}
	prev := r.UseHead
	for e.use(prev).Next != UseInvalid && e.use(e.use(prev).Next).Point <= point {
		prev = e.use(prev).Next
	}
	e.use(u).Next = e.use(prev).Next
	e.use(prev).Next = u
	if e.use(u).Next == UseInvalid {
		r.UseTail = u
	}
}
