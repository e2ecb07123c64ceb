// Package waitheap implements the intrusive min-heap, keyed by deadline, that
// a dispatcher uses to hold tasks that are waiting for a future deadline.
// Each element tracks its own index so the dispatcher can adjust or remove an
// arbitrary element in O(log n) without a linear scan — the same shape as
// ethereum-go-ethereum's common/prque priority queue (a container/heap
// wrapper with a back-index field), reimplemented directly against the
// deadline/heap_index contract in spec.md §3.4.
package waitheap

import "container/heap"

// Item is anything that can sit in the waiting heap. Implementations
// (task.Task, iocore.IOTask) store their own deadline and heap index and
// expose them here; the heap never copies or boxes the item.
type Item interface {
	Deadline() int64
	SetHeapIndex(i int)
	HeapIndex() int
}

// Heap is a min-heap over Item ordered by Deadline, ascending.
type Heap[T Item] struct {
	h innerHeap[T]
}

// New constructs an empty waiting heap.
func New[T Item]() *Heap[T] {
	return &Heap[T]{}
}

// Len reports the number of waiting items.
func (w *Heap[T]) Len() int { return len(w.h) }

// Push inserts item, which must not already be in any heap (HeapIndex() must
// be -1).
func (w *Heap[T]) Push(item T) {
	heap.Push(&w.h, item)
}

// Peek returns the item with the smallest deadline without removing it, or
// the zero value and false if the heap is empty.
func (w *Heap[T]) Peek() (item T, ok bool) {
	if len(w.h) == 0 {
		return item, false
	}
	return w.h[0], true
}

// Pop removes and returns the item with the smallest deadline.
func (w *Heap[T]) Pop() (item T, ok bool) {
	if len(w.h) == 0 {
		return item, false
	}
	return heap.Pop(&w.h).(T), true
}

// Remove removes item from the heap using its stored index. It is a no-op if
// item's HeapIndex is -1 (not currently in this heap).
func (w *Heap[T]) Remove(item T) {
	idx := item.HeapIndex()
	if idx < 0 || idx >= len(w.h) {
		return
	}
	heap.Remove(&w.h, idx)
}

// Fix re-establishes heap order for item after its deadline changed in place
// (e.g. AdjustDeadline lowering it). It is a no-op if item isn't currently in
// this heap.
func (w *Heap[T]) Fix(item T) {
	idx := item.HeapIndex()
	if idx < 0 || idx >= len(w.h) {
		return
	}
	heap.Fix(&w.h, idx)
}

// innerHeap adapts []T to container/heap.Interface.
type innerHeap[T Item] []T

func (h innerHeap[T]) Len() int { return len(h) }

func (h innerHeap[T]) Less(i, j int) bool { return h[i].Deadline() < h[j].Deadline() }

func (h innerHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].SetHeapIndex(i)
	h[j].SetHeapIndex(j)
}

func (h *innerHeap[T]) Push(x any) {
	item := x.(T)
	item.SetHeapIndex(len(*h))
	*h = append(*h, item)
}

func (h *innerHeap[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	item.SetHeapIndex(-1)
	*h = old[:n-1]
	return item
}
