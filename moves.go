package regalloc

import "sort"

// Move insertion and resolution. After every bundle has an
// Allocation, this pass writes the per-operand results into InstAllocs and
// produces the edit stream: moves at intra-block range boundaries (spills and
// reloads), moves on control-flow edges (including block-parameter
// transfers, found via the half-move scheme), the multi-fixed and
// reused-input fixup copies, and the block-parameter metadata records. All
// moves landing on one (point, priority) slot are semantically parallel and
// are serialized with the class scratch register before being emitted.

// halfMoveSource/halfMoveDest tag the two ends of a logical edge move. A
// Source is emitted while walking the range that covers a block's exit, a
// Dest while walking the range that covers a block's entry; sorting the
// combined list by key brings each Source together with its Dests.
const (
	halfMoveSource = 0
	halfMoveDest   = 1
)

const (
	halfMoveFromShift = 43
	halfMoveToShift   = 22
	halfMoveVRegShift = 1
	halfMoveFieldMask = 1<<21 - 1
)

// halfMove is one end of an edge move: the sortable key packs
// (from_block, to_block, to_vreg, kind) so that one sort groups each edge's
// source with its destinations, and kind's placement in the low bit puts the
// Source first within its group.
type halfMove struct {
	key   uint64
	alloc Allocation
	class RegClass
}

func halfMoveKey(fromBlock, toBlock int, toVReg VReg, kind int) uint64 {
	return uint64(fromBlock)<<halfMoveFromShift |
		uint64(toBlock)<<halfMoveToShift |
		uint64(toVReg)<<halfMoveVRegShift |
		uint64(kind)
}

func (h halfMove) fromBlock() int { return int(h.key >> halfMoveFromShift & halfMoveFieldMask) }
func (h halfMove) toBlock() int   { return int(h.key >> halfMoveToShift & halfMoveFieldMask) }
func (h halfMove) kind() int      { return int(h.key & 1) }

// pendingMove is a not-yet-serialized move; all pendingMoves sharing
// (Point, Prio) execute in parallel.
type pendingMove struct {
	Point    ProgPoint
	Prio     EditPriority
	From, To Allocation
	Class    RegClass
}

// insertMoves is the top of the pass; it assumes every bundle has been
// allocated (register or spill slot).
func (e *Env) insertMoves() error {
	e.applyAllocations()

	cfg := e.buildCFGIndex()

	// Block parameters crossing a critical edge can never be reconciled:
	// there is no program point on the edge to place the transfer at. Fail
	// before doing any work, whether or not the allocations happen to
	// coincide.
	for _, bp := range e.blockParamOuts {
		if _, _, err := e.edgeMovePlacement(bp.FromBlock, bp.ToBlock); err != nil {
			return err
		}
	}

	var pending []pendingMove
	pending = e.insertBoundaryMoves(cfg, pending)
	var err error
	pending, err = e.insertEdgeMoves(cfg, pending)
	if err != nil {
		return err
	}
	pending = e.insertMultiFixedMoves(pending)
	pending = e.insertReuseMoves(pending)

	e.emitBlockParamEdits(cfg)
	e.resolvePendingMoves(pending)

	sort.SliceStable(e.edits, func(i, j int) bool {
		a, b := &e.edits[i], &e.edits[j]
		if a.Point != b.Point {
			return a.Point < b.Point
		}
		return a.Priority < b.Priority
	})
	return nil
}

// applyAllocations resolves every bundle to its final Allocation (spilled
// bundles adopt their spill set's slot) and writes each range's def and use
// operands into InstAllocs.
func (e *Env) applyAllocations() {
	nb := e.bundles.Len()
	for i := 0; i < nb; i++ {
		b := e.bundle(LiveBundleIndex(i))
		if b.RangesHead == LiveRangeInvalid || b.Alloc.IsReg() {
			continue
		}
		if b.SpillSet != SpillSetInvalid {
			if slot := e.spillSet(b.SpillSet).Slot; slot != SpillSlotInvalid {
				b.Alloc = AllocStack(slot)
			}
		}
	}

	nr := e.ranges.Len()
	for i := 0; i < nr; i++ {
		r := e.range_(LiveRangeIndex(i))
		if r.Bundle == LiveBundleInvalid {
			continue
		}
		a := e.bundle(r.Bundle).Alloc
		if r.Def.Present && r.Def.Slot >= 0 {
			e.instAllocs[r.Def.Point.InstIndex()][r.Def.Slot] = a
		}
		for u := r.UseHead; u != UseInvalid; u = e.use(u).Next {
			rec := e.use(u)
			e.instAllocs[rec.Point.InstIndex()][rec.Slot] = a
		}
	}
}

// cfgIndex is the per-pass CFG lookup state: block entry/exit points, an
// instruction-to-block map, and the blockparam plumbing grouped by block.
// Blocks are assumed to cover contiguous, ascending instruction index ranges
// in block ID order (the same layout the ProgPoint numbering itself implies).
type cfgIndex struct {
	entry, exit []ProgPoint
	instBlock   []int
	isEntry     map[ProgPoint]int
	outsByBlock map[int][]blockParamOut
	insByBlock  map[int][]blockParamIn
}

func (e *Env) buildCFGIndex() *cfgIndex {
	f := e.f
	nb := len(e.blocksByID)
	cfg := &cfgIndex{
		entry:       make([]ProgPoint, nb),
		exit:        make([]ProgPoint, nb),
		instBlock:   make([]int, f.NumInsts()),
		isEntry:     make(map[ProgPoint]int, nb),
		outsByBlock: map[int][]blockParamOut{},
		insByBlock:  map[int][]blockParamIn{},
	}
	for id, b := range e.blocksByID {
		en, ex := blockEntryExit(f, b)
		cfg.entry[id], cfg.exit[id] = en, ex
		cfg.isEntry[en] = id
		first, last := f.BlockInsns(b)
		for i := first; i <= last; i++ {
			cfg.instBlock[i] = id
		}
	}
	for _, bp := range e.blockParamOuts {
		cfg.outsByBlock[bp.FromBlock] = append(cfg.outsByBlock[bp.FromBlock], bp)
	}
	for _, bp := range e.blockParamIns {
		cfg.insByBlock[bp.ToBlock] = append(cfg.insByBlock[bp.ToBlock], bp)
	}
	return cfg
}

func (c *cfgIndex) blockOf(p ProgPoint) int {
	i := p.InstIndex()
	if i >= len(c.instBlock) {
		i = len(c.instBlock) - 1
	}
	return c.instBlock[i]
}

// rangeAlloc returns the final Allocation of the bundle owning r.
func (e *Env) rangeAlloc(r *LiveRange) Allocation {
	if r.Bundle == LiveBundleInvalid {
		return AllocationNoneVal
	}
	return e.bundle(r.Bundle).Alloc
}

// allocOfVRegAt returns v's Allocation at program point p (the allocation of
// whichever of v's ranges contains p).
func (e *Env) allocOfVRegAt(v VReg, p ProgPoint) Allocation {
	for idx := e.vreg(v).RangesHead; idx != LiveRangeInvalid; idx = e.range_(idx).NextInReg {
		r := e.range_(idx)
		if r.CodeRange.Contains(p) {
			return e.rangeAlloc(r)
		}
	}
	return AllocationNoneVal
}

// insertBoundaryMoves handles the intra-block, intra-vreg case: two
// consecutive ranges of one vreg whose allocations differ get a move at the
// exact boundary, unless the later range starts at a block entry (an edge
// move's job) or at the vreg's def (the def writes the value there itself).
func (e *Env) insertBoundaryMoves(cfg *cfgIndex, pending []pendingMove) []pendingMove {
	for v := 0; v < len(e.vregs); v++ {
		vd := &e.vregs[v]
		prev := vd.RangesHead
		if prev == LiveRangeInvalid {
			continue
		}
		for cur := e.range_(prev).NextInReg; cur != LiveRangeInvalid; cur = e.range_(cur).NextInReg {
			pr, cr := e.range_(prev), e.range_(cur)
			boundary := cr.CodeRange.From
			if pr.CodeRange.To == boundary {
				if _, isEntry := cfg.isEntry[boundary]; !isEntry &&
					!(vd.Def.Present && vd.Def.Point == boundary) {
					from, to := e.rangeAlloc(pr), e.rangeAlloc(cr)
					if from != to {
						pending = append(pending, pendingMove{
							Point: boundary, Prio: PriorityRegular,
							From: from, To: to, Class: vd.Class,
						})
					}
				}
			}
			prev = cur
		}
	}
	return pending
}

// insertEdgeMoves implements the half-move scheme. For each vreg range, every
// block exit the range covers emits Source halves toward successors the
// range does not reach (plus blockparam argument halves), and every block
// entry it covers emits Dest halves from predecessors the range does not
// reach (plus blockparam parameter halves). Sorting the combined list joins
// each Source with its Dests; each mismatched pair becomes a move placed on
// the non-critical end of the edge.
func (e *Env) insertEdgeMoves(cfg *cfgIndex, pending []pendingMove) ([]pendingMove, error) {
	f := e.f
	var hms []halfMove

	for v := 0; v < len(e.vregs); v++ {
		vd := &e.vregs[v]
		for idx := vd.RangesHead; idx != LiveRangeInvalid; idx = e.range_(idx).NextInReg {
			r := e.range_(idx)
			a := e.rangeAlloc(r)
			firstB := cfg.blockOf(r.CodeRange.From)
			lastB := cfg.blockOf(r.CodeRange.To.Pred())
			for bid := firstB; bid <= lastB; bid++ {
				if r.CodeRange.Contains(cfg.exit[bid]) {
					blk := e.blocksByID[bid]
					for _, s := range f.BlockSuccs(blk) {
						sid := s.ID()
						if !r.CodeRange.Contains(cfg.entry[sid]) && e.blockLiveIn[sid].has(uint32(v)) {
							hms = append(hms, halfMove{
								key:   halfMoveKey(bid, sid, VReg(v), halfMoveSource),
								alloc: a, class: vd.Class,
							})
						}
					}
					for _, bp := range cfg.outsByBlock[bid] {
						if bp.FromVReg == VReg(v) {
							hms = append(hms, halfMove{
								key:   halfMoveKey(bid, bp.ToBlock, bp.ToVReg, halfMoveSource),
								alloc: a, class: vd.Class,
							})
						}
					}
				}
				if r.CodeRange.Contains(cfg.entry[bid]) {
					if vd.BlockParamOf == bid {
						for _, bp := range cfg.insByBlock[bid] {
							if bp.ToVReg == VReg(v) {
								hms = append(hms, halfMove{
									key:   halfMoveKey(bp.FromBlock, bid, VReg(v), halfMoveDest),
									alloc: a, class: vd.Class,
								})
							}
						}
					} else if !(vd.Def.Present && cfg.blockOf(vd.Def.Point) == bid) {
						blk := e.blocksByID[bid]
						for _, p := range f.BlockPreds(blk) {
							pid := p.ID()
							if !r.CodeRange.Contains(cfg.exit[pid]) {
								hms = append(hms, halfMove{
									key:   halfMoveKey(pid, bid, VReg(v), halfMoveDest),
									alloc: a, class: vd.Class,
								})
							}
						}
					}
				}
			}
		}
	}

	sort.Slice(hms, func(i, j int) bool { return hms[i].key < hms[j].key })

	for i := 0; i < len(hms); {
		j := i
		group := hms[i].key >> 1
		for j < len(hms) && hms[j].key>>1 == group {
			j++
		}
		if hms[i].kind() == halfMoveSource {
			src := hms[i]
			for _, dst := range hms[i+1 : j] {
				if dst.alloc == src.alloc {
					continue
				}
				point, prio, err := e.edgeMovePlacement(src.fromBlock(), src.toBlock())
				if err != nil {
					return nil, err
				}
				pending = append(pending, pendingMove{
					Point: point, Prio: prio,
					From: src.alloc, To: dst.alloc, Class: src.class,
				})
			}
		}
		i = j
	}
	return pending, nil
}

// edgeMovePlacement decides where moves for the edge go: after the source's
// terminator when the destination is a join, before the destination's first
// instruction when it is not, and nowhere (a critical edge) when both ends
// are shared.
func (e *Env) edgeMovePlacement(from, to int) (ProgPoint, EditPriority, error) {
	f := e.f
	fb, tb := e.blocksByID[from], e.blocksByID[to]
	_, fLast := f.BlockInsns(fb)
	tFirst, _ := f.BlockInsns(tb)

	fromOuts := len(f.BlockSuccs(fb))
	if fLast >= 0 && f.IsRet(fLast) {
		fromOuts++
	}
	toIns := len(f.BlockPreds(tb))
	if tb.Entry() {
		toIns++
	}

	switch {
	case toIns > 1 && fromOuts <= 1:
		return MakeProgPoint(fLast, After), PriorityOutEdgeMoves, nil
	case toIns <= 1:
		return MakeProgPoint(tFirst, Before), PriorityInEdgeMoves, nil
	default:
		return ProgPointInvalid, 0, newCriticalEdgeError(fb, tb)
	}
}

// insertMultiFixedMoves replays the copies recorded by the multi-fixed
// cleanup: at each recorded point the value sits in the preg the surviving
// FixedReg constraint demanded, and the demoted constraints' pregs receive
// copies.
func (e *Env) insertMultiFixedMoves(pending []pendingMove) []pendingMove {
	for _, fx := range e.multiFixedFixups {
		pending = append(pending, pendingMove{
			Point: fx.Point, Prio: PriorityMultiFixedReg,
			From: AllocReg(fx.FromPReg), To: AllocReg(fx.ToPReg), Class: fx.Class,
		})
	}
	return pending
}

// insertReuseMoves handles Reuse defs whose input operand landed elsewhere:
// a copy input→output just before the instruction, after which the input
// slot's reported allocation is rewritten to the output's so the instruction
// sees the single shared register its constraint promises.
func (e *Env) insertReuseMoves(pending []pendingMove) []pendingMove {
	f := e.f
	for i := 0; i < f.NumInsts(); i++ {
		ops := f.InstOperands(i)
		for slot, op := range ops {
			if op.Kind() != OperandDef || op.PolicyKind() != PolicyReuse {
				continue
			}
			in := op.ReuseIdx()
			if in < 0 || in >= len(ops) {
				continue
			}
			outAlloc := e.instAllocs[i][slot]
			inAlloc := e.instAllocs[i][in]
			if outAlloc == inAlloc {
				continue
			}
			pending = append(pending, pendingMove{
				Point: MakeProgPoint(i, Before), Prio: PriorityReusedInput,
				From: inAlloc, To: outAlloc, Class: op.Class(),
			})
			e.instAllocs[i][in] = outAlloc
		}
	}
	return pending
}

// emitBlockParamEdits records, at each block entry with parameters, the
// parameter vregs and their entry allocations (for a downstream checker's
// benefit; these are metadata, not moves).
func (e *Env) emitBlockParamEdits(cfg *cfgIndex) {
	for id, b := range e.blocksByID {
		params := e.f.BlockParams(b)
		if len(params) == 0 {
			continue
		}
		allocs := make([]Allocation, len(params))
		for i, v := range params {
			allocs[i] = e.allocOfVRegAt(v, cfg.entry[id])
		}
		e.edits = append(e.edits, Edit{
			Point:            cfg.entry[id],
			Priority:         PriorityBlockParam,
			Kind:             EditBlockParams,
			BlockParamVRegs:  append([]VReg(nil), params...),
			BlockParamAllocs: allocs,
		})
	}
}

// resolvePendingMoves groups the pending moves by (point, priority),
// serializes each parallel group with the class scratch register, and
// appends the resulting Move edits.
func (e *Env) resolvePendingMoves(pending []pendingMove) {
	sort.SliceStable(pending, func(i, j int) bool {
		a, b := &pending[i], &pending[j]
		if a.Point != b.Point {
			return a.Point < b.Point
		}
		return a.Prio < b.Prio
	})

	for i := 0; i < len(pending); {
		j := i
		for j < len(pending) && pending[j].Point == pending[i].Point && pending[j].Prio == pending[i].Prio {
			j++
		}
		e.serializeParallelGroup(pending[i:j])
		i = j
	}
}

// serializeParallelGroup turns one parallel move group into an equivalent
// serial sequence. Moves whose destination no remaining move still reads are
// emitted first; when only cycles remain, one participant's source is parked
// in the class scratch register to break the cycle. A group never contains
// two moves writing the same destination, so the loop always terminates.
func (e *Env) serializeParallelGroup(group []pendingMove) {
	var work []pendingMove
	seen := map[pendingMove]struct{}{}
	for _, m := range group {
		if m.From == m.To {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		work = append(work, m)
	}

	emit := func(m pendingMove) {
		e.edits = append(e.edits, Edit{
			Point: m.Point, Priority: m.Prio, Kind: EditMove,
			MoveFrom: m.From, MoveTo: m.To, MoveClass: m.Class,
		})
		e.stats.NumMoves++
		if m.From.IsStack() && m.To.IsReg() {
			e.stats.NumReloads++
		}
		if m.From.IsReg() && m.To.IsStack() {
			e.stats.NumSpillStores++
		}
	}

	for len(work) > 0 {
		emitted := false
		for i, m := range work {
			blocked := false
			for j, o := range work {
				if j != i && o.From == m.To {
					blocked = true
					break
				}
			}
			if !blocked {
				emit(m)
				work = append(work[:i], work[i+1:]...)
				emitted = true
				break
			}
		}
		if emitted {
			continue
		}
		// Every remaining move's destination is still read: a cycle. Park
		// one source in the scratch register and retarget its move.
		m := work[0]
		scratch := AllocReg(e.menv.ScratchByClass[m.Class])
		emit(pendingMove{Point: m.Point, Prio: m.Prio, From: m.From, To: scratch, Class: m.Class})
		work[0].From = scratch
	}
}
