package iocore

import (
	"context"
	"fmt"
)

// runWorker implements spec.md §4.2's worker half: dequeue one ready IOTask
// at a time, flush its accumulated events, and call into its subscriber. A
// panicking subscriber is recovered rather than crashing the worker
// goroutine, mirroring scheduler.runOne's discipline.
func (c *Core) runWorker(ctx context.Context) {
	for {
		t, ok := c.ready.Pop()
		if !ok {
			return
		}

		c.readyDepth.Add(-1)
		c.runOne(t)

		select {
		case <-ctx.Done():
		default:
		}
	}
}

func (c *Core) runOne(t *IOTask) {
	defer func() {
		if r := recover(); r != nil {
			_ = fmt.Errorf("iocore: subscriber OnEvent panicked: %v", r)
		}
	}()

	if t.finalDispatch {
		t.finalDispatch = false
		sub := t.subscriber
		t.subscriber = nil // release the strong reference, per spec.md §4.2 step 3
		if sub != nil {
			sub.OnEvent(t, Events{Closed: true, Completions: t.stealPending()})
		}
		return
	}

	// Event flushing (spec.md §4.2): steal completion events, reset the
	// deadline for this dispatch, then hand control to the subscriber.
	events := Events{
		Readable:    t.LastReadable(),
		Writable:    t.LastWritable(),
		Completions: t.stealPending(),
	}
	t.SetDeadline(Inf)
	t.SetAwaitingEvent(false)

	sub := t.subscriber
	c.eventsDispatched.Add(1)
	if sub != nil {
		sub.OnEvent(t, events)
	}

	// A new op the subscriber issued that locked (EWOULDBLOCK, or a
	// completion-ring submission still pending) has already set
	// t.SetAwaitingEvent(true) inside Core.submit; re-post so classify routes
	// it to the waiting heap or leaves it ready per its deadline.
	//
	// This must be a CAS, not an observe-then-store: a concurrent PostClose
	// can win RequestClose's own CAS (IOReady -> IOClosing) while the
	// subscriber runs, and an unconditional SetStatus(IOPending)
	// would silently clobber that IOClosing back to IOPending, permanently
	// dropping the close (closeGuard is one-shot, so no later PostClose call
	// would ever re-request it).
	if t.CAS(IOReady, IOPending) {
		_ = c.postEntry(t)
	}
}
