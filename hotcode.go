package regalloc

// hotcode.go detects loop bodies: a single forward block walk finds
// back-edges (a successor whose ID is <= the current block's ID, since
// block IDs are a reverse-postorder numbering per api.go) and records their
// target loop bodies in an overlap-keyed rangeTree. split.go consults this
// map to bias split-candidate choices away from hot (loop) code: don't put
// a spill inside a loop when it can land outside one instead.
func (e *Env) computeHotCode() {
	f := e.f
	for _, b := range f.Blocks() {
		for _, s := range f.BlockSuccs(b) {
			if s.ID() > b.ID() {
				continue
			}
			// Back-edge b -> s: s is a loop header, and the loop body is
			// approximately every block whose ID falls in [s.ID(), b.ID()]
			// (valid for the reducible, single-entry loops a reverse
			// postorder numbering guarantees).
			lo, _ := f.BlockInsns(e.blocksByID[s.ID()])
			_, hi := f.BlockInsns(e.blocksByID[b.ID()])
			if hi < lo {
				continue
			}
			cr := CodeRange{From: MakeProgPoint(lo, Before), To: MakeProgPoint(hi, After).Next()}
			e.markHot(cr)
		}
	}
}

// markHot inserts cr into the hot-code map, merging with any existing
// overlapping hot region so the tree keeps holding pairwise-disjoint entries
// (required by the overlap-keyed tree invariant).
func (e *Env) markHot(cr CodeRange) {
	var scratch []rangeEntry
	overlaps := e.hotCode.Overlaps(cr, scratch)
	merged := cr
	for _, o := range overlaps {
		e.hotCode.Remove(o.CodeRange)
		if o.CodeRange.From < merged.From {
			merged.From = o.CodeRange.From
		}
		if o.CodeRange.To > merged.To {
			merged.To = o.CodeRange.To
		}
	}
	e.hotCode.Insert(rangeEntry{CodeRange: merged, Owner: LiveRangeInvalid, Fixed: true})
}

// isHot reports whether cr overlaps any known loop body.
func (e *Env) isHot(cr CodeRange) bool {
	return e.hotCode.Has(cr)
}
