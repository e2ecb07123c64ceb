package objpool

import "sync"

// NewDynamic is an unbounded pool backed directly by sync.Pool, adapted
// verbatim from the teacher's pool/dynamic.go. It is the default strategy:
// the GC may reclaim idle values under memory pressure, which is the right
// tradeoff for event objects whose live count tracks the (unbounded) number
// of attached sockets.
func NewDynamic(newFn NewFn) Pool {
	return &sync.Pool{New: func() any { return newFn() }}
}
