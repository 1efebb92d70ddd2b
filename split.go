package regalloc

import "sort"

// Splitting. When a bundle can't be placed even after eviction, it's broken
// into smaller bundles sharing the parent's SpillSet, each requeued
// independently. For a multi-range bundle the cut lands on an existing
// chain boundary; once a bundle is down to one physical LiveRange, the
// range itself is carved up at a tiered list of candidate points: a
// hot/cold boundary (so the cold part can spill without touching a loop),
// clobber sites (the code after a call naturally wants a fresh placement
// anyway), and finally around every def and use, yielding minimal bundles
// that cannot be split further.

// splitAndRequeueBundle breaks idx into smaller bundles and pushes them all
// back onto the queue, sharing idx's SpillSet so every piece that spills
// still uses one stack slot.
func (e *Env) splitAndRequeueBundle(idx LiveBundleIndex) error {
	b := e.bundle(idx)

	var ranges []LiveRangeIndex
	ranges = e.bundleRanges(idx, ranges)
	if len(ranges) == 0 {
		return nil
	}

	e.stats.NumSplits++

	if len(ranges) == 1 {
		return e.splitSingleRange(idx, ranges[0])
	}

	k := e.chooseSplitIndex(ranges)

	newIdx := e.newSplitSibling(b)
	nb := e.bundle(newIdx)

	e.range_(ranges[k-1]).NextInBundle = LiveRangeInvalid
	nb.RangesHead = ranges[k]
	for _, r := range ranges[k:] {
		e.range_(r).Bundle = newIdx
	}
	b.RangesHead = ranges[0]

	e.recomputeBundleProperties(idx)
	e.recomputeBundleProperties(newIdx)
	e.queue.push(e, idx)
	e.queue.push(e, newIdx)
	return nil
}

// newSplitSibling creates an empty bundle inheriting b's class and spill set.
func (e *Env) newSplitSibling(b *LiveBundle) LiveBundleIndex {
	newIdx := e.newBundle()
	nb := e.bundle(newIdx)
	nb.Class = b.Class
	nb.SpillSet = b.SpillSet
	if b.SpillSet != SpillSetInvalid {
		e.spillSet(b.SpillSet).Bundles = append(e.spillSet(b.SpillSet).Bundles, newIdx)
	}
	return newIdx
}

// chooseSplitIndex picks the boundary k (1 <= k < len(ranges)) at which to
// cut a multi-range bundle's chain in two, trying each tier in turn.
func (e *Env) chooseSplitIndex(ranges []LiveRangeIndex) int {
	// Tier 1: hot/cold boundary.
	for k := 1; k < len(ranges); k++ {
		prevHot := e.isHot(e.range_(ranges[k-1]).CodeRange)
		curHot := e.isHot(e.range_(ranges[k]).CodeRange)
		if prevHot != curHot {
			return k
		}
	}
	// Tier 2: clobber boundary. A range that starts exactly where some
	// instruction clobbers registers is a natural place to re-decide the
	// allocation anyway.
	clobbers := e.sortedClobberInsts()
	for k := 1; k < len(ranges); k++ {
		inst := e.range_(ranges[k]).CodeRange.From.InstIndex()
		if containsInt(clobbers, inst) {
			return k
		}
	}
	// Tier 3: plain chain boundary, peeling off the first range. Lacking a
	// specific conflicting sub-range to target, this is the simplest
	// "before/after" cut: isolating the earliest piece lets the remainder
	// retry with one fewer constraint.
	return 1
}

func containsInt(sorted []int, v int) bool {
	lo, hi := 0, len(sorted)
	for lo < hi {
		mid := (lo + hi) / 2
		if sorted[mid] < v {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo < len(sorted) && sorted[lo] == v
}

// splitPointsFor produces the sorted, deduplicated split candidates strictly
// inside r's code range, using the first non-empty tier.
func (e *Env) splitPointsFor(r *LiveRange) []ProgPoint {
	cr := r.CodeRange
	var points []ProgPoint
	add := func(p ProgPoint) {
		if cr.From < p && p < cr.To {
			points = append(points, p)
		}
	}

	// Tier 1: hot/cold transitions.
	var scratch []rangeEntry
	for _, hot := range e.hotCode.Overlaps(cr, scratch) {
		if cr.From < hot.CodeRange.From {
			add(hot.CodeRange.From)
		}
		if cr.To > hot.CodeRange.To {
			add(hot.CodeRange.To)
		}
	}

	// Tier 2: clobber sites strictly inside the span.
	if len(points) == 0 {
		for _, inst := range e.sortedClobberInsts() {
			add(MakeProgPoint(inst, Before))
		}
	}

	// Tier 3: around every def and use, yielding minimal pieces.
	if len(points) == 0 {
		around := func(p ProgPoint) {
			add(p.Before())
			add(p.After().Succ())
		}
		if r.Def.Present {
			around(r.Def.Point)
		}
		for u := r.UseHead; u != UseInvalid; u = e.use(u).Next {
			around(e.use(u).Point)
		}
	}

	if len(points) == 0 {
		return nil
	}
	sort.Slice(points, func(i, j int) bool { return points[i] < points[j] })
	out := points[:0]
	for i, p := range points {
		if i == 0 || p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	return out
}

// splitSingleRange carves the bundle's one remaining LiveRange at every
// candidate point in a single left-to-right pass: the current piece's To
// shrinks to the split point, a trailing sibling range takes the remainder,
// uses with points at or past the split migrate to the sibling, the def
// transfers if its position is past the split, and each sibling lands in a
// fresh bundle inheriting the parent's spill set.
func (e *Env) splitSingleRange(idx LiveBundleIndex, rIdx LiveRangeIndex) error {
	b := e.bundle(idx)
	points := e.splitPointsFor(e.range_(rIdx))
	if len(points) == 0 {
		// Nothing to cut around; the bundle goes to the spill path and
		// either finds a register in the second-chance pass or takes a
		// stack slot.
		e.spilledBundles = append(e.spilledBundles, idx)
		return nil
	}

	requeue := []LiveBundleIndex{idx}
	cur := rIdx
	for _, p := range points {
		head := e.range_(cur)
		if p <= head.CodeRange.From || p >= head.CodeRange.To {
			continue
		}
		tailIdx := e.newLiveRange(head.VReg, CodeRange{From: p, To: head.CodeRange.To})
		tail := e.range_(tailIdx)
		head.CodeRange.To = p

		e.migrateUses(head, tail, p)
		if head.Def.Present && head.Def.Point >= p {
			tail.Def = head.Def
			head.Def = defInfo{}
		}
		e.refreshRangeFixedFlags(head)
		e.refreshRangeFixedFlags(tail)

		// Splice tail into the vreg's chain right after head.
		tail.NextInReg = head.NextInReg
		head.NextInReg = tailIdx

		newIdx := e.newSplitSibling(b)
		tail.Bundle = newIdx
		tail.NextInBundle = LiveRangeInvalid
		e.bundle(newIdx).RangesHead = tailIdx
		requeue = append(requeue, newIdx)

		cur = tailIdx
	}

	for _, bi := range requeue {
		e.recomputeBundleProperties(bi)
		e.queue.push(e, bi)
	}
	return nil
}

// migrateUses moves every use of head with a point at or past p onto tail,
// preserving ascending order on both lists.
func (e *Env) migrateUses(head, tail *LiveRange, p ProgPoint) {
	u := head.UseHead
	head.UseHead, head.UseTail = UseInvalid, UseInvalid
	for u != UseInvalid {
		next := e.use(u).Next
		e.use(u).Next = UseInvalid
		dst := head
		if e.use(u).Point >= p {
			dst = tail
		}
		if dst.UseHead == UseInvalid {
			dst.UseHead = u
		} else {
			e.use(dst.UseTail).Next = u
		}
		dst.UseTail = u
		u = next
	}
}

// refreshRangeFixedFlags recomputes the fixed-use count and Fixed bit after
// a use/def migration.
func (e *Env) refreshRangeFixedFlags(r *LiveRange) {
	n := 0
	if r.Def.Present && r.Def.Operand.PolicyKind() == PolicyFixedReg {
		n++
	}
	for u := r.UseHead; u != UseInvalid; u = e.use(u).Next {
		if e.use(u).Operand.PolicyKind() == PolicyFixedReg {
			n++
		}
	}
	r.Flags = r.Flags.withFixedUseCount(n).withFixed(n > 0)
}
