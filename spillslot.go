package regalloc

// Spill-slot packing. Every SpillSet that ends up needing stack space gets
// one group of contiguous, size-matching slot units, reusing an existing
// group via a short probe-and-rotate scan before growing the stack frame:
// the same overlap-keyed-tree idiom overlap_map.go already uses for
// physical registers, applied here to stack offsets instead.

// spillProbeLimit bounds how many existing slot groups of a matching size
// are probed before giving up and growing the frame; kept small since almost
// every group either fits immediately or not at all. Like the 200-range
// merge cap, it protects total allocation time and never affects correctness.
const spillProbeLimit = 10

type spillSizeKey struct {
	size  uint32
	class RegClass
}

// retrySpilledBundles gives every bundle the main queue pushed to
// e.spilledBundles one more chance at a free register now that allocation
// pressure from the rest of the function has settled. No eviction and no
// further splitting happen here; a bundle that still can't find room simply
// spills.
func (e *Env) retrySpilledBundles() {
	pending := e.spilledBundles
	e.spilledBundles = nil
	for _, idx := range pending {
		b := e.bundle(idx)
		if b.RangesHead == LiveRangeInvalid || b.Alloc.IsReg() {
			continue
		}
		req := requirement{Kind: reqReg}
		if computed := e.computeRequirement(idx); computed.Kind == reqFixed {
			req = computed
		}
		for _, p := range e.candidatesFor(b.Class, req, b.SpillSet) {
			conflicts, fixedConflict := e.candidateConflicts(idx, p)
			if !fixedConflict && len(conflicts) == 0 {
				e.assignBundleToPReg(idx, p)
				break
			}
		}
		if !b.Alloc.IsReg() {
			e.stats.NumSpilledBundles++
		}
	}
}

// allocateSpillSlots assigns stack storage to every SpillSet containing at
// least one bundle that never found a register, then lays out the resulting
// slots at contiguous, size-aligned offsets.
func (e *Env) allocateSpillSlots() int {
	groups := map[spillSizeKey][][]int{}

	n := e.spillSets.Len()
	for i := 0; i < n; i++ {
		idx := SpillSetIndex(i)
		ss := e.spillSet(idx)
		if len(ss.Bundles) == 0 || !e.spillSetNeedsSlot(idx) {
			continue
		}
		key := spillSizeKey{size: ss.SlotCap, class: ss.Class}
		groups[key] = e.allocateSpillsetToGroup(idx, key, groups[key])
	}

	return e.layoutSpillSlots()
}

// spillSetNeedsSlot reports whether any bundle sharing ss failed to land in
// a register; such a set needs stack space to hold the spilled value (and,
// conservatively, reserves it across every bundle in the set, including
// ones that did get a register, so an unrelated spill set's value can
// never alias it while either is live).
func (e *Env) spillSetNeedsSlot(idx SpillSetIndex) bool {
	for _, bidx := range e.spillSet(idx).Bundles {
		if !e.bundle(bidx).Alloc.IsReg() {
			return true
		}
	}
	return false
}

// allocateSpillsetToGroup finds or creates a slot group of the right size
// for ss, commits ss to it, and returns the (possibly grown) group list for
// this size/class bucket.
func (e *Env) allocateSpillsetToGroup(idx SpillSetIndex, key spillSizeKey, groups [][]int) [][]int {
	if len(groups) > 0 {
		probes := len(groups)
		if probes > spillProbeLimit {
			probes = spillProbeLimit
		}
		start := int(idx) % len(groups)
		for p := 0; p < probes; p++ {
			g := groups[(start+p)%len(groups)]
			if e.spillGroupCanFit(g, idx) {
				e.commitSpillSetToGroup(idx, g)
				return groups
			}
		}
	}
	g := e.newSpillSlotGroup(key.size, key.class)
	e.commitSpillSetToGroup(idx, g)
	return append(groups, g)
}

// spillGroupCanFit reports whether every sub-slot of g is free across every
// range of every bundle in ss.
func (e *Env) spillGroupCanFit(g []int, idx SpillSetIndex) bool {
	for _, bidx := range e.spillSet(idx).Bundles {
		for r := e.bundle(bidx).RangesHead; r != LiveRangeInvalid; r = e.range_(r).NextInBundle {
			cr := e.range_(r).CodeRange
			for _, slot := range g {
				if e.spillSlots[slot].Occupancy.Has(cr) {
					return false
				}
			}
		}
	}
	return true
}

// commitSpillSetToGroup reserves every range of every bundle in ss across
// all of g's sub-slots and records ss's identity slot (first or last
// sub-slot per Function.MultiSpillslotNamedByLastSlot).
func (e *Env) commitSpillSetToGroup(idx SpillSetIndex, g []int) {
	ss := e.spillSet(idx)
	identity := g[0]
	if e.f.MultiSpillslotNamedByLastSlot() {
		identity = g[len(g)-1]
	}
	ss.Slot = SpillSlotIndex(identity)

	for _, bidx := range ss.Bundles {
		for r := e.bundle(bidx).RangesHead; r != LiveRangeInvalid; r = e.range_(r).NextInBundle {
			cr := e.range_(r).CodeRange
			for _, slot := range g {
				e.spillSlots[slot].Occupancy.Insert(rangeEntry{CodeRange: cr, Owner: r})
			}
		}
	}
}

// newSpillSlotGroup appends `size` contiguous one-unit SpillSlotData entries
// (one per slot unit a multi-unit value needs) to e.spillSlots and returns
// their indices. A size-1 value therefore gets a trivial one-entry group.
func (e *Env) newSpillSlotGroup(size uint32, class RegClass) []int {
	units := int(size)
	if units < 1 {
		units = 1
	}
	g := make([]int, units)
	for i := 0; i < units; i++ {
		e.spillSlots = append(e.spillSlots, SpillSlotData{Occupancy: newRangeTree(), SizeUnits: 1, Class: class})
		g[i] = len(e.spillSlots) - 1
	}
	return g
}

// layoutSpillSlots assigns each slot unit a contiguous, self-aligned offset,
// counted in slot units (every SpillSlotSize is a power of two per api.go's contract, so a
// simple bump allocator that rounds up to each slot's own size keeps every
// slot naturally aligned) and returns the resulting frame size in slot
// units.
func (e *Env) layoutSpillSlots() int {
	offset := 0
	for i := range e.spillSlots {
		sd := &e.spillSlots[i]
		align := int(sd.SizeUnits)
		if align < 1 {
			align = 1
		}
		if rem := offset % align; rem != 0 {
			offset += align - rem
		}
		sd.Offset = offset
		offset += align
	}
	return offset
}
