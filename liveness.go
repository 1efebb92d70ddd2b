package regalloc

// Liveness analysis. Three passes:
//
//  1. A standard backward worklist dataflow computes the exact live-in/
//     live-out vreg set of every block, including across loop back-edges
//     (the textbook iterate-to-fixpoint formulation from the ssabook
//     liveness chapter doc.go cites).
//  2. A single per-block reverse instruction walk turns those live sets
//     into concrete LiveRanges, Uses, and Defs, one LiveRange per (vreg,
//     block) rather than attempting maximal cross-block coalescing;
//     bundle.go's initial one-bundle-per-vreg pass coalesces abutting
//     pieces back together, so the simplification costs nothing but a few
//     transient small LiveRanges. The same walk records clobbers, promotes
//     reused-input and branch-argument use positions, and records
//     blockparam ins/outs.
//  3. A cleanup pass demotes duplicate same-point FixedReg constraints on
//     one vreg to plain Reg plus a recorded fixup copy.
func (e *Env) computeLiveness() error {
	f := e.f
	blocks := f.Blocks()
	nb := len(blocks)

	use := make([]bitset, nb)
	def := make([]bitset, nb)
	e.blockLiveIn = make([]bitset, nb)
	e.blockLiveOut = make([]bitset, nb)

	// Seed block-parameter defs and blockparam_ins once, up front: params
	// are defined at block entry, before any instruction, and every
	// predecessor edge owes them a value.
	for _, b := range blocks {
		id := b.ID()
		preds := f.BlockPreds(b)
		first, _ := f.BlockInsns(b)
		for idx, v := range f.BlockParams(b) {
			def[id].set(uint32(v))
			vd := e.vreg(v)
			vd.Def = defInfo{Present: true, Point: MakeProgPoint(first, Before), Slot: -1}
			vd.BlockParamOf = id
			vd.BlockParamIdx = idx
			for _, p := range preds {
				e.blockParamIns = append(e.blockParamIns, blockParamIn{ToVReg: v, ToBlock: id, FromBlock: p.ID()})
			}
		}
	}

	for _, b := range blocks {
		id := b.ID()
		first, last := f.BlockInsns(b)
		for i := first; i <= last; i++ {
			for _, op := range f.InstOperands(i) {
				v := uint32(op.VReg())
				if op.Kind() == OperandUse {
					if !def[id].has(v) {
						use[id].set(v)
					}
				} else {
					def[id].set(v)
				}
			}
		}
	}

	// Backward worklist fixpoint over liveIn/liveOut.
	queued := make([]bool, nb)
	queue := make([]int, 0, nb)
	for i := nb - 1; i >= 0; i-- {
		queue = append(queue, i)
		queued[i] = true
	}
	var tmp bitset
	for len(queue) > 0 {
		id := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		queued[id] = false
		b := e.blocksByID[id]

		tmp.reset()
		for _, s := range f.BlockSuccs(b) {
			tmp.unionInto(&e.blockLiveIn[s.ID()])
		}
		if !tmp.equal(&e.blockLiveOut[id]) {
			e.blockLiveOut[id].copyFrom(&tmp)
		}

		var newIn bitset
		newIn.copyFrom(&e.blockLiveOut[id])
		newIn.subtract(&def[id])
		newIn.unionInto(&use[id])

		if !newIn.equal(&e.blockLiveIn[id]) {
			e.blockLiveIn[id].copyFrom(&newIn)
			for _, p := range f.BlockPreds(b) {
				if !queued[p.ID()] {
					queue = append(queue, p.ID())
					queued[p.ID()] = true
				}
			}
		}
	}

	for _, b := range blocks {
		e.buildBlockRanges(b)
	}

	e.multiFixedCleanup()
	return nil
}

func blockEntryExit(f Function, b Block) (entry, exit ProgPoint) {
	first, last := f.BlockInsns(b)
	if last < first {
		return MakeProgPoint(first, Before), MakeProgPoint(first, Before)
	}
	return MakeProgPoint(first, Before), MakeProgPoint(last, After)
}

// buildBlockRanges performs the reverse instruction walk for one block,
// producing LiveRanges rooted at vregs[v].RangesHead.
func (e *Env) buildBlockRanges(b Block) {
	f := e.f
	id := b.ID()
	first, last := f.BlockInsns(b)
	entry, exit := blockEntryExit(f, b)

	open := make(map[VReg]LiveRangeIndex)
	e.blockLiveOut[id].scan(func(v uint32) {
		// A live-out vreg is live through the exit point itself, so the
		// tentative range is [entry, exit+1).
		idx := e.newLiveRange(VReg(v), CodeRange{From: ProgPointInvalid, To: exit.Succ()})
		open[VReg(v)] = idx
	})

	closeAt := func(v VReg, at ProgPoint) LiveRangeIndex {
		idx, ok := open[v]
		if !ok {
			return LiveRangeInvalid
		}
		r := e.range_(idx)
		r.CodeRange.From = at
		delete(open, v)
		e.prependVRegRange(v, idx)
		return idx
	}
	openAt := func(v VReg, to ProgPoint) LiveRangeIndex {
		if idx, ok := open[v]; ok {
			return idx
		}
		idx := e.newLiveRange(v, CodeRange{From: ProgPointInvalid, To: to})
		open[v] = idx
		return idx
	}

	if last >= first {
		for i := last; i >= first; i-- {
			ops := f.InstOperands(i)

			for _, clob := range f.InstClobbers(i) {
				e.reserveClobber(clob, i)
			}
			if len(f.InstClobbers(i)) > 0 {
				e.clobberInsts = append(e.clobberInsts, i)
			}

			// A Def with PolicyReuse pins one Use operand (by index) to
			// share the def's allocation; every other Use at this
			// instruction must be promoted to the After position so it
			// still interferes with that def and can never be handed the
			// same register.
			reuseIdx := -1
			for _, op := range ops {
				if op.Kind() == OperandDef && op.PolicyKind() == PolicyReuse {
					reuseIdx = op.ReuseIdx()
				}
			}

			isBranch := i == last && f.IsBranch(i)
			if isBranch {
				e.recordBlockParamOuts(b, ops)
			}

			for slot, op := range ops {
				v := op.VReg()
				if op.Kind() != OperandDef {
					continue
				}
				vd := e.vreg(v)
				vd.Class = op.Class()
				pt := defPoint(i, op)
				vd.Def = defInfo{Present: true, Operand: op, Point: pt, Slot: slot}
				idx, wasOpen := open[v]
				if !wasOpen {
					// Dead def: materialize a one-point range so it
					// still receives an allocation.
					idx = e.newLiveRange(v, CodeRange{From: pt, To: pt.Succ()})
				} else {
					r := e.range_(idx)
					r.CodeRange.From = pt
					delete(open, v)
				}
				r := e.range_(idx)
				r.Def = vd.Def
				if op.PolicyKind() == PolicyFixedReg {
					r.Flags = r.Flags.withFixedUseCount(r.Flags.fixedUseCount() + 1).withFixed(true)
				}
				e.prependVRegRange(v, idx)
			}
			for slot, op := range ops {
				v := op.VReg()
				if op.Kind() != OperandUse {
					continue
				}
				e.vreg(v).Class = op.Class()
				pt := useBasePoint(i, op)
				switch {
				case isBranch:
					pt = exit
				case reuseIdx >= 0 && slot != reuseIdx:
					pt = MakeProgPoint(i, After)
				}
				idx := openAt(v, pt.Succ())
				e.addUse(idx, op, pt, slot)
				if op.PolicyKind() == PolicyFixedReg {
					r := e.range_(idx)
					r.Flags = r.Flags.withFixedUseCount(r.Flags.fixedUseCount() + 1).withFixed(true)
				}
			}
		}
	}

	for v := range open {
		closeAt(v, entry)
	}

	// Block parameters are defined exactly at entry; the range that now
	// spans entry (if the param is live) is that definition's range. A
	// dead parameter never became live and needs a trivial one-point
	// range of its own so it still receives an allocation.
	for _, v := range f.BlockParams(b) {
		vd := e.vreg(v)
		if vd.RangesHead != LiveRangeInvalid {
			if r := e.range_(vd.RangesHead); r.VReg == v && r.CodeRange.Contains(entry) {
				r.Def = vd.Def
				continue
			}
		}
		idx := e.newLiveRange(v, CodeRange{From: entry, To: entry.Succ()})
		e.range_(idx).Def = vd.Def
		e.prependVRegRange(v, idx)
	}
}

// recordBlockParamOuts records, for a block-terminating branch, the
// (from_vreg, to_vreg) pairing fed to each successor's block parameters. The
// branch's trailing operands are assumed laid out as one contiguous Use
// group per successor, in successor order (see Function.IsBranch).
func (e *Env) recordBlockParamOuts(b Block, ops []Operand) {
	f := e.f
	succs := f.BlockSuccs(b)
	total := 0
	for _, s := range succs {
		total += len(f.BlockParams(s))
	}
	if total == 0 || total > len(ops) {
		return
	}
	cursor := len(ops) - total
	for _, s := range succs {
		for _, toV := range f.BlockParams(s) {
			fromOp := ops[cursor]
			e.blockParamOuts = append(e.blockParamOuts, blockParamOut{
				FromVReg:  fromOp.VReg(),
				FromBlock: b.ID(),
				ToBlock:   s.ID(),
				ToVReg:    toV,
			})
			cursor++
		}
	}
}

// prependVRegRange links idx onto vreg v's range list. Blocks are visited in
// an order independent of ID here, but within buildBlockRanges itself ranges
// for one vreg within one block are always discovered in descending
// CodeRange order, so a simple head-prepend keeps each vreg's list
// contiguous per block; bundle.go re-sorts defensively before trusting
// adjacency.
func (e *Env) prependVRegRange(v VReg, idx LiveRangeIndex) {
	vd := e.vreg(v)
	e.range_(idx).NextInReg = vd.RangesHead
	vd.RangesHead = idx
}

// defPoint resolves a Def operand's nominal position: Before and Both both
// mean "visible starting just before the instruction executes", After means
// "visible only once the instruction has retired".
func defPoint(i int, op Operand) ProgPoint {
	if op.Pos() == OperandAfter {
		return MakeProgPoint(i, After)
	}
	return MakeProgPoint(i, Before)
}

// useBasePoint resolves a Use operand's nominal position before any
// reuse/branch promotion: Before means "consumed before the instruction
// executes", Both and After both mean "consumed only once it has
// executed".
func useBasePoint(i int, op Operand) ProgPoint {
	if op.Pos() == OperandBefore {
		return MakeProgPoint(i, Before)
	}
	return MakeProgPoint(i, After)
}

// multiFixedCleanup demotes duplicate same-point FixedReg constraints on a
// single vreg's live range to plain Reg, recording a copy fixup for each
// demotion and reserving the demoted preg as an extra clobber at that
// point. Two operands of the same vreg can
// legitimately demand distinct fixed pregs at the same ProgPoint (e.g. two
// uses of one vreg as different fixed-register call arguments), and only one
// of them can be satisfied directly.
func (e *Env) multiFixedCleanup() {
	for v := 0; v < len(e.vregs); v++ {
		vd := &e.vregs[v]
		for idx := vd.RangesHead; idx != LiveRangeInvalid; idx = e.range_(idx).NextInReg {
			e.multiFixedCleanupRange(idx)
		}
	}
}

func (e *Env) multiFixedCleanupRange(idx LiveRangeIndex) {
	r := e.range_(idx)

	var lastPoint ProgPoint = ProgPointInvalid
	var firstPReg PReg
	seen := false

	check := func(point ProgPoint, op Operand, slot int, set func(Operand)) {
		if point != lastPoint {
			lastPoint = point
			seen = false
		}
		if op.PolicyKind() != PolicyFixedReg {
			return
		}
		preg := op.FixedReg()
		if !seen {
			seen = true
			firstPReg = preg
			return
		}
		if preg == firstPReg {
			// Two operands agreeing on one preg are both satisfiable
			// directly; only divergent demands need the rewrite.
			return
		}
		e.multiFixedFixups = append(e.multiFixedFixups, multiFixedFixup{Point: point, FromPReg: firstPReg, ToPReg: preg, Class: op.Class()})
		set(MakeOperand(op.VReg(), op.Class(), op.Kind(), op.Pos(), PolicyReg))
		e.markDemoted(point.InstIndex(), slot)
		e.reserveClobber(preg, point.InstIndex())
	}

	if r.Def.Present {
		check(r.Def.Point, r.Def.Operand, r.Def.Slot, func(o Operand) { r.Def.Operand = o })
	}
	for u := r.UseHead; u != UseInvalid; u = e.use(u).Next {
		rec := e.use(u)
		check(rec.Point, rec.Operand, rec.Slot, func(o Operand) { rec.Operand = o })
	}
}
