package iocore

import "github.com/ygrebnov/asyncio/iocore/backend"

// IOEvent is the opaque per-operation handle spec.md §3.3 describes: it
// carries at most one of {empty, byte-count, error}, plus a "locked" flag
// meaning an operation is outstanding on it. IOEvents are built only for
// completion backends, filled from the completion Wait reports; readiness
// backends' Recv/Send/Accept results come back as return values instead.
//
// The dispatcher takes each IOEvent from Config.EventPool (internal/objpool);
// iocore itself never puts one back into the pool.
type IOEvent struct {
	// Op is the operation this event represents.
	Op backend.Op

	// Locked reports whether an operation is outstanding. Events are only
	// built from completions Wait already reported, and no iocore code path
	// sets Locked to true.
	Locked bool

	// N is the byte count of a completed operation. Zero while Locked.
	N int

	// Err is the operation's error, if any. Only meaningful when !Locked.
	Err error

	// next links this event into whichever intrusive list currently owns it
	// (pending/ready event lists, the completion-ring's to-submit list).
	next *IOEvent

	// task is a back-pointer slot for the owning IOTask; no iocore code path
	// sets it, and Reset clears it.
	task *IOTask
}

// Reset returns the event to empty+unlocked, per spec.md §3.3's Reset()
// invariant, so it is safe to hand back to the pool.
func (e *IOEvent) Reset() {
	e.Op = 0
	e.Locked = false
	e.N = 0
	e.Err = nil
	e.next = nil
	e.task = nil
}

func newIOEvent() any { return &IOEvent{} }
