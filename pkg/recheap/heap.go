// Package recheap implements RecordHeap: a min-heap of flow records
// ordered by end time, used to publish records in strict end-time
// order when the generator pipeline's heap-reinsert policy is on.
package recheap

import "container/heap"

// Record is anything orderable by an end time in milliseconds. Callers
// embed their own record type or wrap it to satisfy this.
type Record interface {
	EndTimeMillis() int64
}

// Heap is a min-heap over Record, ordered by EndTimeMillis. Tie-break
// among equal end times is arbitrary but stable within a single run.
type Heap[R Record] struct {
	items impl[R]
}

// New creates an empty heap with the given initial capacity hint.
func New[R Record](capacityHint int) *Heap[R] {
	h := &Heap[R]{items: make(impl[R], 0, capacityHint)}
	heap.Init(&h.items)
	return h
}

// Insert pushes r onto the heap.
func (h *Heap[R]) Insert(r R) {
	heap.Push(&h.items, r)
}

// Peek returns the minimum end-time record without removing it.
func (h *Heap[R]) Peek() (R, bool) {
	if len(h.items) == 0 {
		var zero R
		return zero, false
	}
	return h.items[0], true
}

// Pop removes and returns the minimum end-time record.
func (h *Heap[R]) Pop() (R, bool) {
	if len(h.items) == 0 {
		var zero R
		return zero, false
	}
	return heap.Pop(&h.items).(R), true
}

// Count reports the number of records currently in the heap.
func (h *Heap[R]) Count() int { return len(h.items) }

// Capacity reports the current backing slice capacity. The heap grows
// by Go's normal append-growth factor on overflow; shrink-on-demand is
// not implemented.
func (h *Heap[R]) Capacity() int { return cap(h.items) }

// impl adapts []R to container/heap.Interface.
type impl[R Record] []R

func (im impl[R]) Len() int { return len(im) }
func (im impl[R]) Less(i, j int) bool {
	return im[i].EndTimeMillis() < im[j].EndTimeMillis()
}
func (im impl[R]) Swap(i, j int) { im[i], im[j] = im[j], im[i] }

func (im *impl[R]) Push(x any) {
	*im = append(*im, x.(R))
}

func (im *impl[R]) Pop() any {
	old := *im
	n := len(old)
	item := old[n-1]
	*im = old[:n-1]
	return item
}
