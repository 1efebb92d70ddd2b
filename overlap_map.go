package regalloc

import "github.com/google/btree"

// This file implements the allocator's central data-structure trick: an
// ordered map keyed by CodeRange where two keys compare equal iff their
// ranges overlap, so a lookup directly answers "does anything overlap this
// range?". Built on github.com/google/btree's generic BTreeG[T]; the overlap
// semantics come entirely from the Less function below, not from anything
// btree itself knows about ranges.
//
// Invariant: no two entries stored in the same tree
// ever pairwise-overlap. Under that invariant, Less(a, b) = a.To <= b.From
// is a valid strict weak ordering: incomparable (neither Less(a,b) nor
// Less(b,a)) exactly when a and b overlap, which btree's Get/ReplaceOrInsert
// treat as "equal". Ascending traversal order therefore coincides with
// ascending CodeRange.From order.

// rangeEntry is one occupant of a rangeTree. Owner is a LiveRangeIndex for
// normal occupants; Fixed marks a permanent reservation (e.g. a clobber or
// a fixed-register constraint) that owns no LiveRange and can never be
// evicted.
type rangeEntry struct {
	CodeRange CodeRange
	Owner     LiveRangeIndex
	Fixed     bool
}

func rangeLess(a, b rangeEntry) bool {
	return a.CodeRange.To <= b.CodeRange.From
}

// rangeTree is an overlap-keyed ordered set of rangeEntry, used for PReg
// occupancy maps, SpillSlot occupancy maps, and the hot-code map (hotcode.go).
type rangeTree struct {
	t *btree.BTreeG[rangeEntry]
}

// btreeDegree is unrelated to allocation quality; 16 is a reasonable fanout
// for the small (tens-to-low-thousands of entries) trees this package builds
// per function.
const btreeDegree = 16

func newRangeTree() *rangeTree {
	return &rangeTree{t: btree.NewG(btreeDegree, rangeLess)}
}

// Len returns the number of entries.
func (t *rangeTree) Len() int { return t.t.Len() }

// Get returns some entry overlapping cr, if any. When multiple entries
// overlap cr (possible when cr itself spans several disjoint occupants),
// which one is unspecified; use Overlaps to collect all of them.
func (t *rangeTree) Get(cr CodeRange) (rangeEntry, bool) {
	return t.t.Get(rangeEntry{CodeRange: cr})
}

// Has reports whether any entry overlaps cr.
func (t *rangeTree) Has(cr CodeRange) bool {
	_, ok := t.Get(cr)
	return ok
}

// Insert adds e. The caller must have already established that no existing
// entry overlaps e.CodeRange (normally by calling Overlaps first); Insert
// itself does not re-check, to keep the common allocate-time path cheap.
func (t *rangeTree) Insert(e rangeEntry) {
	t.t.ReplaceOrInsert(e)
}

// Remove deletes the entry whose CodeRange is exactly cr (not merely
// overlapping), returning it.
func (t *rangeTree) Remove(cr CodeRange) (rangeEntry, bool) {
	if got, ok := t.t.Get(rangeEntry{CodeRange: cr}); !ok || got.CodeRange != cr {
		return rangeEntry{}, false
	}
	return t.t.Delete(rangeEntry{CodeRange: cr})
}

// Overlaps appends every entry overlapping cr to out (which it first
// truncates to length 0), in ascending CodeRange order, and returns it.
func (t *rangeTree) Overlaps(cr CodeRange, out []rangeEntry) []rangeEntry {
	out = out[:0]
	pivot := rangeEntry{CodeRange: CodeRange{From: cr.From, To: cr.From}}
	t.t.AscendGreaterOrEqual(pivot, func(e rangeEntry) bool {
		if e.CodeRange.From >= cr.To {
			return false
		}
		if e.CodeRange.Overlaps(cr) {
			out = append(out, e)
		}
		return true
	})
	return out
}

// Ascend visits every entry in ascending CodeRange order.
func (t *rangeTree) Ascend(fn func(rangeEntry) bool) {
	t.t.Ascend(func(e rangeEntry) bool { return fn(e) })
}
