package regalloc

import "fmt"

// Priority-queue-driven backtracking allocation: pop the highest-priority
// bundle, try to place it in a free register, evict strictly-lighter
// occupants when none is free, and split the bundle into smaller pieces
// when eviction cannot help either.

// requirementKind classifies the allocation constraint a bundle's operands
// collectively impose, forming a small lattice: Any <= Reg <= Fixed, with
// two incompatible Fixed demands collapsing to Conflict.
type requirementKind uint8

const (
	reqAny requirementKind = iota
	reqReg
	reqFixed
	reqConflict
)

type requirement struct {
	Kind requirementKind
	Preg PReg
}

func requirementFromPolicy(pol OperandPolicyKind, preg PReg) requirement {
	switch pol {
	case PolicyFixedReg:
		return requirement{Kind: reqFixed, Preg: preg}
	case PolicyReg, PolicyReuse:
		return requirement{Kind: reqReg}
	default:
		return requirement{Kind: reqAny}
	}
}

// merge combines two requirements per the lattice: Any yields to anything,
// two equal Fixed demands agree, two different Fixed demands conflict, and
// Reg dominates Any but not Fixed.
func (r requirement) merge(o requirement) requirement {
	switch {
	case r.Kind == reqConflict || o.Kind == reqConflict:
		return requirement{Kind: reqConflict}
	case r.Kind == reqAny:
		return o
	case o.Kind == reqAny:
		return r
	case r.Kind == reqFixed && o.Kind == reqFixed:
		if r.Preg == o.Preg {
			return r
		}
		return requirement{Kind: reqConflict}
	case r.Kind == reqFixed:
		return r
	case o.Kind == reqFixed:
		return o
	default:
		return requirement{Kind: reqReg}
	}
}

// computeRequirement merges the policy of every def and use across a
// bundle's ranges.
func (e *Env) computeRequirement(idx LiveBundleIndex) requirement {
	req := requirement{Kind: reqAny}
	for r := e.bundle(idx).RangesHead; r != LiveRangeInvalid; r = e.range_(r).NextInBundle {
		rng := e.range_(r)
		if rng.Def.Present {
			req = req.merge(requirementFromOperand(rng.Def.Operand))
		}
		for u := rng.UseHead; u != UseInvalid; u = e.use(u).Next {
			req = req.merge(requirementFromOperand(e.use(u).Operand))
		}
	}
	return req
}

func requirementFromOperand(op Operand) requirement {
	var preg PReg
	if op.PolicyKind() == PolicyFixedReg {
		preg = op.FixedReg()
	}
	return requirementFromPolicy(op.PolicyKind(), preg)
}

// spillWeightForPolicy is the per-operand contribution to a bundle's overall
// spill weight: a register-constrained operand costs twice as much to spill
// as an unconstrained one, since spilling it also forces a reload the Any
// operand would never have needed.
func spillWeightForPolicy(pol OperandPolicyKind) uint32 {
	switch pol {
	case PolicyReg, PolicyFixedReg, PolicyReuse:
		return 2000
	default:
		return 1000
	}
}

const (
	spillWeightMinimalFixed    = 2_000_000
	spillWeightMinimalNonFixed = 1_000_000
	defSpillWeight             = 2000
)

// recomputeBundleProperties recomputes Priority, Minimal, Fixed, and
// SpillWeight from a bundle's current range chain; called once before it
// first enters the queue and again after every split.
func (e *Env) recomputeBundleProperties(idx LiveBundleIndex) {
	b := e.bundle(idx)
	var priority int
	var usesWeight uint32
	var numDefs, numRanges int
	spansOneInst := true
	fixed := false

	for r := b.RangesHead; r != LiveRangeInvalid; r = e.range_(r).NextInBundle {
		rng := e.range_(r)
		numRanges++
		priority += rng.CodeRange.Len()
		if rng.CodeRange.To.Pred().InstIndex() != rng.CodeRange.From.InstIndex() {
			spansOneInst = false
		}
		if rng.Flags.fixed() {
			fixed = true
		}
		var rangeWeight uint32
		for u := rng.UseHead; u != UseInvalid; u = e.use(u).Next {
			rangeWeight += spillWeightForPolicy(e.use(u).Operand.PolicyKind())
		}
		rng.UsesSpillWeight = rangeWeight
		usesWeight += rangeWeight
		if rng.Def.Present {
			numDefs++
		}
	}
	// A bundle is minimal iff it is a single range covering at most one
	// instruction's program points; such a bundle cannot be split further.
	minimal := numRanges == 1 && spansOneInst
	if priority < 1 {
		priority = 1
	}

	b.Priority = priority
	b.Minimal = minimal
	b.Fixed = fixed
	for r := b.RangesHead; r != LiveRangeInvalid; r = e.range_(r).NextInBundle {
		rng := e.range_(r)
		rng.Flags = rng.Flags.withMinimal(minimal)
	}

	switch {
	case minimal && fixed:
		b.SpillWeight = spillWeightMinimalFixed
	case minimal && !fixed:
		b.SpillWeight = spillWeightMinimalNonFixed
	default:
		b.SpillWeight = (usesWeight + defSpillWeight*uint32(numDefs)) / uint32(priority)
	}
}

// queueBundles assigns every still-live bundle (one per vreg, post-merge) a
// SpillSet and its initial priority, then pushes it onto the work queue.
func (e *Env) queueBundles() {
	n := e.bundles.Len()
	for i := 0; i < n; i++ {
		idx := LiveBundleIndex(i)
		b := e.bundle(idx)
		if b.RangesHead == LiveRangeInvalid {
			continue // merged away into another bundle
		}
		if b.SpillSet == SpillSetInvalid {
			ss := e.newSpillSet(b.Class, e.f.SpillSlotSize(b.Class))
			b.SpillSet = ss
			e.spillSet(ss).Bundles = append(e.spillSet(ss).Bundles, idx)
		}
		e.recomputeBundleProperties(idx)
		e.queue.push(e, idx)
	}
}

// candidatesFor returns the physical registers to probe for a bundle with
// the given requirement, in probe order. A Fixed requirement probes only its
// one demanded register. Otherwise probing starts from the bundle's
// spill-set RegHint if one has been recorded, falling back to a
// spillset-index-derived rotation so that different bundles don't all
// hammer the same first register in menv.RegsByClass.
func (e *Env) candidatesFor(class RegClass, req requirement, ss SpillSetIndex) []PReg {
	if req.Kind == reqFixed {
		return []PReg{req.Preg}
	}
	regs := e.menv.RegsByClass[class]
	if len(regs) == 0 {
		return nil
	}
	start := 0
	if ss != SpillSetInvalid {
		start = int(ss) % len(regs)
		if hint := e.spillSet(ss).RegHint; hint.Valid() {
			for i, r := range regs {
				if r == hint {
					start = i
					break
				}
			}
		}
	}
	out := make([]PReg, len(regs))
	for i := range regs {
		out[i] = regs[(start+i)%len(regs)]
	}
	return out
}

// candidateConflicts collects, for a candidate register p, every bundle
// whose ranges overlap idx's ranges in p's occupancy map, plus whether any
// overlap is a permanent (clobber/multi-fixed) reservation rather than an
// evictable bundle.
func (e *Env) candidateConflicts(idx LiveBundleIndex, p PReg) (map[LiveBundleIndex]bool, bool) {
	pd := e.pregData(p)
	conflicts := map[LiveBundleIndex]bool{}
	fixedConflict := false
	var buf []rangeEntry
	for r := e.bundle(idx).RangesHead; r != LiveRangeInvalid; r = e.range_(r).NextInBundle {
		buf = pd.Occupancy.Overlaps(e.range_(r).CodeRange, buf)
		for _, ent := range buf {
			if ent.Fixed {
				fixedConflict = true
				continue
			}
			conflicts[e.range_(ent.Owner).Bundle] = true
		}
	}
	return conflicts, fixedConflict
}

// assignBundleToPReg commits idx to physical register p: every range is
// inserted into p's occupancy map, and the bundle's spill set records p as
// the hint future split children (and retries) should try first.
func (e *Env) assignBundleToPReg(idx LiveBundleIndex, p PReg) {
	b := e.bundle(idx)
	pd := e.pregData(p)
	for r := b.RangesHead; r != LiveRangeInvalid; r = e.range_(r).NextInBundle {
		pd.Occupancy.Insert(rangeEntry{CodeRange: e.range_(r).CodeRange, Owner: r})
	}
	b.Alloc = AllocReg(p)
	if b.SpillSet != SpillSetInvalid {
		e.spillSet(b.SpillSet).RegHint = p
	}
}

// evictBundle removes idx from its current physical register and requeues
// it for another attempt.
func (e *Env) evictBundle(idx LiveBundleIndex) {
	b := e.bundle(idx)
	if !b.Alloc.IsReg() {
		return
	}
	pd := e.pregData(b.Alloc.Reg)
	for r := b.RangesHead; r != LiveRangeInvalid; r = e.range_(r).NextInBundle {
		pd.Occupancy.Remove(e.range_(r).CodeRange)
	}
	b.Alloc = AllocationNoneVal
	e.stats.NumEvictions++
	e.queue.push(e, idx)
}

// processBundle is the core of the backtracking loop: try a free register,
// then try evicting lower-weight occupants, then split and requeue smaller
// pieces, in that order.
func (e *Env) processBundle(idx LiveBundleIndex) error {
	b := e.bundle(idx)
	if b.RangesHead == LiveRangeInvalid {
		return nil
	}

	req := e.computeRequirement(idx)
	if LoggingEnabled {
		fmt.Printf("regalloc: process %s req=%d\n", e.dumpBundle(idx), req.Kind)
	}
	if req.Kind == reqAny {
		e.spilledBundles = append(e.spilledBundles, idx)
		return nil
	}
	if req.Kind == reqConflict {
		return e.splitAndRequeueBundle(idx)
	}

	candidates := e.candidatesFor(b.Class, req, b.SpillSet)

	for _, p := range candidates {
		conflicts, fixedConflict := e.candidateConflicts(idx, p)
		if !fixedConflict && len(conflicts) == 0 {
			e.assignBundleToPReg(idx, p)
			return nil
		}
	}

	// Eviction: among candidates where every conflicting bundle is both
	// unpinned and strictly lower weight than this one, prefer the
	// candidate whose worst conflicting bundle is cheapest to evict, and
	// evict every bundle in that candidate's conflict set at once rather
	// than stopping at the first.
	bestP := PRegInvalid
	var bestSet map[LiveBundleIndex]bool
	var bestMax uint32
	for _, p := range candidates {
		conflicts, fixedConflict := e.candidateConflicts(idx, p)
		if fixedConflict || len(conflicts) == 0 {
			continue
		}
		ok := true
		var max uint32
		for c := range conflicts {
			cb := e.bundle(c)
			if cb.Fixed || cb.SpillWeight >= b.SpillWeight {
				ok = false
				break
			}
			if cb.SpillWeight > max {
				max = cb.SpillWeight
			}
		}
		if !ok {
			continue
		}
		if bestP == PRegInvalid || max < bestMax {
			bestP, bestSet, bestMax = p, conflicts, max
		}
	}
	if bestP != PRegInvalid {
		for c := range bestSet {
			e.evictBundle(c)
		}
		e.assignBundleToPReg(idx, bestP)
		return nil
	}

	if b.Minimal {
		// A minimal bundle has the highest possible spill weight, so every
		// evictable conflict was already evicted above; what remains is a
		// fixed reservation or another minimal bundle, and neither can
		// yield. The input's constraints are unsatisfiable.
		return newUnsatisfiableError(e.dumpBundle(idx),
			"minimal bundle cannot be placed in any register of class %s", b.Class)
	}

	return e.splitAndRequeueBundle(idx)
}

func (e *Env) dumpBundle(idx LiveBundleIndex) string {
	b := e.bundle(idx)
	s := fmt.Sprintf("bundle %d class=%s spillweight=%d minimal=%v fixed=%v ranges=[", idx, b.Class, b.SpillWeight, b.Minimal, b.Fixed)
	for r := b.RangesHead; r != LiveRangeInvalid; r = e.range_(r).NextInBundle {
		s += e.range_(r).CodeRange.String() + " "
	}
	return s + "]"
}
