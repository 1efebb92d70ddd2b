package regalloc

import "container/heap"

// bundleQueue is the priority queue of pending LiveBundleIndex values driving
// the process-bundle loop, ordered by descending LiveBundle Priority
// (computed once per bundle by recomputeBundleProperties and cached, since
// re-deriving it on every pop would mean re-walking the bundle's whole range
// chain).
type bundleQueue struct {
	items bundleHeap
}

func newBundleQueue() bundleQueue {
	return bundleQueue{items: bundleHeap{}}
}

// push adds idx to the queue, keyed by its bundle's current Priority; callers
// must have already set LiveBundle.Priority (recomputeBundleProperties).
func (q *bundleQueue) push(e *Env, idx LiveBundleIndex) {
	heap.Push(&q.items, queueItem{idx: idx, prio: e.bundle(idx).Priority})
}

// pop removes and returns the highest-priority bundle, or (LiveBundleInvalid,
// false) if the queue is empty.
func (q *bundleQueue) pop() (LiveBundleIndex, bool) {
	if len(q.items) == 0 {
		return LiveBundleInvalid, false
	}
	it := heap.Pop(&q.items).(queueItem)
	return it.idx, true
}

func (q *bundleQueue) empty() bool { return len(q.items) == 0 }

type queueItem struct {
	idx  LiveBundleIndex
	prio int
}

// bundleHeap implements container/heap.Interface as a max-heap on prio.
type bundleHeap []queueItem

func (h bundleHeap) Len() int            { return len(h) }
func (h bundleHeap) Less(i, j int) bool  { return h[i].prio > h[j].prio }
func (h bundleHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *bundleHeap) Push(x interface{}) { *h = append(*h, x.(queueItem)) }
func (h *bundleHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
