package race

import "container/heap"

// activeInterval is a session whose interval is still open during the sweep.
type activeInterval struct {
	end   uint64
	order int // position in start order
}

// EndHeap is a min-heap of active intervals with deterministic ordering.
// Ordering: end point → start order.
type EndHeap struct {
	items []activeInterval
}

// NewEndHeap creates an empty heap.
func NewEndHeap() *EndHeap {
	h := &EndHeap{
		items: make([]activeInterval, 0),
	}
	heap.Init(h)
	return h
}

// Len implements heap.Interface
func (h *EndHeap) Len() int {
	return len(h.items)
}

// Less implements heap.Interface
func (h *EndHeap) Less(i, j int) bool {
	if h.items[i].end != h.items[j].end {
		return h.items[i].end < h.items[j].end
	}
	return h.items[i].order < h.items[j].order
}

// Swap implements heap.Interface
func (h *EndHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
}

// Push implements heap.Interface
func (h *EndHeap) Push(x interface{}) {
	h.items = append(h.items, x.(activeInterval))
}

// Pop implements heap.Interface
func (h *EndHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[0 : n-1]
	return item
}

// Open adds an interval to the active set.
func (h *EndHeap) Open(end uint64, order int) {
	heap.Push(h, activeInterval{end: end, order: order})
}

// CloseBefore removes every active interval that ends strictly before t.
// Intervals ending exactly at t stay active: touching intervals overlap.
func (h *EndHeap) CloseBefore(t uint64) {
	for h.Len() > 0 && h.items[0].end < t {
		heap.Pop(h)
	}
}

// Active returns the start-order positions of the active intervals, in heap
// order.
func (h *EndHeap) Active() []int {
	out := make([]int, len(h.items))
	for i, it := range h.items {
		out[i] = it.order
	}
	return out
}
