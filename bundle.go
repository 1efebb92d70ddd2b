package regalloc

import "sort"

// Bundle merging. Every vreg starts with one bundle holding its whole range
// chain; three coalescing passes then try to fuse bundles that would
// otherwise force an avoidable move: reused-input defs, plain register
// moves, and block-parameter edges.

// mergeScanCap bounds the pairwise overlap scan mergeBundles performs; two
// bundles whose product of range counts exceeds it are left unmerged rather
// than paying for an expensive scan that, empirically, almost never finds a
// legal merge anyway once bundles have grown this large.
const mergeScanCap = 200

// coalesceLimit caps the total number of abutting-range coalesces performed
// while building the initial per-vreg bundles. Exceeding it only degrades
// allocation quality (more, smaller ranges), never correctness.
const coalesceLimit = 100_000

// bundleOfVReg returns the bundle currently holding vreg v's ranges. Valid
// only before any split.go work begins; splitting can give one vreg ranges
// split across several bundles, at which point callers must instead consult
// the specific LiveRange they care about.
func (e *Env) bundleOfVReg(v VReg) LiveBundleIndex {
	head := e.vreg(v).RangesHead
	if head == LiveRangeInvalid {
		return LiveBundleInvalid
	}
	return e.range_(head).Bundle
}

func (e *Env) bundleRanges(idx LiveBundleIndex, out []LiveRangeIndex) []LiveRangeIndex {
	out = out[:0]
	for r := e.bundle(idx).RangesHead; r != LiveRangeInvalid; r = e.range_(r).NextInBundle {
		out = append(out, r)
	}
	return out
}

// mergeBundles tries to fuse bundle from into bundle to, moving every range
// of from onto to's chain. It fails (returns false, no state changed) if the
// two bundles are of different classes or any pair of their ranges overlaps.
func (e *Env) mergeBundles(from, to LiveBundleIndex) bool {
	if from == LiveBundleInvalid || to == LiveBundleInvalid {
		return false
	}
	if from == to {
		return true
	}
	bf, bt := e.bundle(from), e.bundle(to)
	if bf.Class != bt.Class {
		return false
	}
	if bf.RangesHead == LiveRangeInvalid {
		return true
	}

	var fromRanges, toRanges []LiveRangeIndex
	fromRanges = e.bundleRanges(from, fromRanges)
	toRanges = e.bundleRanges(to, toRanges)
	if len(fromRanges)*len(toRanges) > mergeScanCap {
		return false
	}
	for _, fi := range fromRanges {
		fcr := e.range_(fi).CodeRange
		for _, ti := range toRanges {
			if fcr.Overlaps(e.range_(ti).CodeRange) {
				return false
			}
		}
	}

	bt.RangesHead = e.mergeSortedRangeChains(fromRanges, toRanges)
	for idx := bt.RangesHead; idx != LiveRangeInvalid; idx = e.range_(idx).NextInBundle {
		e.range_(idx).Bundle = to
	}
	bf.RangesHead = LiveRangeInvalid
	return true
}

// mergeSortedRangeChains merges two ascending-by-From range lists (supplied
// as slices, already in order since they were walked off existing ascending
// chains) into one ascending NextInBundle chain, returning its head.
func (e *Env) mergeSortedRangeChains(a, b []LiveRangeIndex) LiveRangeIndex {
	i, j := 0, 0
	head, tail := LiveRangeInvalid, LiveRangeInvalid
	push := func(idx LiveRangeIndex) {
		if head == LiveRangeInvalid {
			head = idx
		} else {
			e.range_(tail).NextInBundle = idx
		}
		tail = idx
	}
	for i < len(a) && j < len(b) {
		if e.range_(a[i]).CodeRange.From <= e.range_(b[j]).CodeRange.From {
			push(a[i])
			i++
		} else {
			push(b[j])
			j++
		}
	}
	for ; i < len(a); i++ {
		push(a[i])
	}
	for ; j < len(b); j++ {
		push(b[j])
	}
	if tail != LiveRangeInvalid {
		e.range_(tail).NextInBundle = LiveRangeInvalid
	}
	return head
}

// createVRegBundles gives every vreg with at least one live range its own
// bundle, holding the vreg's whole range chain sorted ascending by From (the
// chain as discovered by liveness.go is only locally ordered per block, so
// it's re-sorted here rather than trusted, as vRegData.RangesHead's comment
// in entities.go notes). Abutting or overlapping ranges of the same vreg are coalesced
// into one, so a vreg live straight through several consecutive blocks ends
// up with a single range spanning all of them. Both the vreg's NextInReg
// chain and the bundle's NextInBundle chain are rebuilt ascending, which
// every later pass (split, moves) relies on.
func (e *Env) createVRegBundles() {
	coalesces := 0
	for v := 0; v < len(e.vregs); v++ {
		vd := &e.vregs[v]
		if vd.RangesHead == LiveRangeInvalid {
			continue
		}
		var ranges []LiveRangeIndex
		for r := vd.RangesHead; r != LiveRangeInvalid; r = e.range_(r).NextInReg {
			ranges = append(ranges, r)
		}
		sort.Slice(ranges, func(i, j int) bool {
			return e.range_(ranges[i]).CodeRange.From < e.range_(ranges[j]).CodeRange.From
		})

		merged := ranges[:0]
		for _, r := range ranges {
			if len(merged) > 0 && coalesces < coalesceLimit {
				prev := e.range_(merged[len(merged)-1])
				cur := e.range_(r)
				if prev.CodeRange.To >= cur.CodeRange.From {
					coalesces++
					e.absorbRange(prev, cur)
					continue
				}
			}
			merged = append(merged, r)
		}

		idx := e.newBundle()
		b := e.bundle(idx)
		b.Class = vd.Class
		head, tail := LiveRangeInvalid, LiveRangeInvalid
		for _, r := range merged {
			rng := e.range_(r)
			rng.Bundle = idx
			rng.NextInBundle = LiveRangeInvalid
			rng.NextInReg = LiveRangeInvalid
			if head == LiveRangeInvalid {
				head = r
			} else {
				e.range_(tail).NextInBundle = r
				e.range_(tail).NextInReg = r
			}
			tail = r
		}
		b.RangesHead = head
		vd.RangesHead = head
	}
}

// absorbRange folds cur (which abuts or overlaps prev on the right) into
// prev: the code range extends, cur's uses append onto prev's ascending use
// list, and cur's def (if any) transfers. cur is dead afterwards, detached
// from every chain.
func (e *Env) absorbRange(prev, cur *LiveRange) {
	if cur.CodeRange.To > prev.CodeRange.To {
		prev.CodeRange.To = cur.CodeRange.To
	}
	if cur.UseHead != UseInvalid {
		if prev.UseTail == UseInvalid {
			prev.UseHead = cur.UseHead
		} else {
			e.use(prev.UseTail).Next = cur.UseHead
		}
		prev.UseTail = cur.UseTail
	}
	if cur.Def.Present {
		prev.Def = cur.Def
	}
	prev.Flags = prev.Flags.
		withFixedUseCount(prev.Flags.fixedUseCount() + cur.Flags.fixedUseCount()).
		withFixed(prev.Flags.fixed() || cur.Flags.fixed())
	cur.Bundle = LiveBundleInvalid
	cur.UseHead, cur.UseTail = UseInvalid, UseInvalid
	cur.Def = defInfo{}
	cur.NextInReg, cur.NextInBundle = LiveRangeInvalid, LiveRangeInvalid
}

// mergeVRegBundles runs the three coalescing passes after createVRegBundles
// has given every vreg its own starting bundle.
func (e *Env) mergeVRegBundles() {
	e.createVRegBundles()
	e.mergeReusedInputs()
	e.mergeMoves()
	e.mergeBlockParams()
}

// mergeReusedInputs merges a Reuse def's bundle with the bundle of the input
// operand it's pinned to share an allocation with: they'll be forced
// together at register-assignment time regardless, so merging them up front
// avoids a move the allocator would otherwise have to insert and then
// immediately optimize away.
func (e *Env) mergeReusedInputs() {
	f := e.f
	for v := 0; v < len(e.vregs); v++ {
		vd := &e.vregs[v]
		if !vd.Def.Present || vd.Def.Operand.PolicyKind() != PolicyReuse {
			continue
		}
		inst := vd.Def.Point.InstIndex()
		ops := f.InstOperands(inst)
		reuseIdx := vd.Def.Operand.ReuseIdx()
		if reuseIdx < 0 || reuseIdx >= len(ops) {
			continue
		}
		inputV := ops[reuseIdx].VReg()
		defBundle := e.bundleOfVReg(VReg(v))
		inputBundle := e.bundleOfVReg(inputV)
		e.mergeBundles(inputBundle, defBundle)
	}
}

// mergeMoves merges the bundles on either side of every pure register move
// instruction, the textbook coalescing opportunity.
func (e *Env) mergeMoves() {
	f := e.f
	for i := 0; i < f.NumInsts(); i++ {
		src, dst, ok := f.IsMove(i)
		if !ok {
			continue
		}
		e.mergeBundles(e.bundleOfVReg(src), e.bundleOfVReg(dst))
	}
}

// mergeBlockParams merges the bundle of each branch argument vreg with the
// bundle of the successor's corresponding block parameter, using the
// blockparam_outs discovered during liveness.
func (e *Env) mergeBlockParams() {
	for _, bp := range e.blockParamOuts {
		e.mergeBundles(e.bundleOfVReg(bp.FromVReg), e.bundleOfVReg(bp.ToVReg))
	}
}
