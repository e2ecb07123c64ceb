// Package queue implements the intrusive queues shared by the scheduler and
// iocore dispatchers: a lock-light multi-producer/single-consumer front queue
// that producers push into from any goroutine, and a mutex/condvar ready FIFO
// that the dispatcher hands off to workers.
package queue

import "sync/atomic"

// Front is a lock-free multi-producer, single-consumer stack used as a
// staging area: producers Push atomically; the single consumer (the
// dispatcher goroutine) calls DrainReversed once per tick to atomically swap
// out everything pushed since the last drain, in FIFO order.
//
// It is a Treiber stack under the hood (CAS push), which gives multi-producer
// safety for free; DrainReversed reverses the singly linked chain on the way
// out so callers observe push order rather than LIFO order.
type Front[T any] struct {
	head atomic.Pointer[node[T]]
}

type node[T any] struct {
	val  T
	next *node[T]
}

// NewFront constructs an empty front queue.
func NewFront[T any]() *Front[T] {
	return &Front[T]{}
}

// Push adds val to the queue. Safe for concurrent use by any number of
// producers, including the same goroutine that is also draining.
func (f *Front[T]) Push(val T) {
	n := &node[T]{val: val}
	for {
		old := f.head.Load()
		n.next = old
		if f.head.CompareAndSwap(old, n) {
			return
		}
	}
}

// DrainReversed atomically takes everything pushed so far and returns it as a
// slice in push order (oldest first). It is safe to call concurrently with
// Push, but must only ever be called from one goroutine (the dispatcher) at a
// time — that single-consumer discipline is what lets this avoid a full MPMC
// queue's bookkeeping.
func (f *Front[T]) DrainReversed() []T {
	old := f.head.Swap(nil)
	if old == nil {
		return nil
	}

	// old is in LIFO (most-recently-pushed-first) order; reverse it so the
	// caller sees push order, matching spec.md's front-queue FIFO contract.
	var rev *node[T]
	for n := old; n != nil; {
		next := n.next
		n.next = rev
		rev = n
		n = next
	}

	out := make([]T, 0, 8)
	for n := rev; n != nil; n = n.next {
		out = append(out, n.val)
	}
	return out
}

// Empty reports whether the queue currently has nothing staged. This is a
// snapshot only: a concurrent Push may land immediately after the check
// returns true.
func (f *Front[T]) Empty() bool {
	return f.head.Load() == nil
}
