package iocore

import "github.com/ygrebnov/asyncio/iocore/backend"

// Recv submits a receive operation against t's socket. Callers (subscribers,
// from within OnEvent) get spec.md §4.2's three-outcome contract back: ok
// false means the event carries an error and never reached the kernel; ok
// true with locked true means the operation is in flight and events will
// arrive on the next dispatch; ok true with locked false means it already
// completed synchronously, with n bytes available now.
func (c *Core) Recv(t *IOTask, buf []byte) (ok bool, locked bool, n int, err error) {
	return c.submit(t, backend.OpRecv, buf)
}

// Send submits a send operation, same contract as Recv.
func (c *Core) Send(t *IOTask, buf []byte) (ok bool, locked bool, n int, err error) {
	return c.submit(t, backend.OpSend, buf)
}

// Accept submits an accept operation. Per spec.md §4.2 "Accept specifics", a
// non-critical transient condition (peer reset or was routed away before
// accept() completed it) surfaces as ok==true, locked==false, newFD==0 with
// no new connection — the subscriber must call t.Reschedule() to retry
// without starving other tasks, rather than looping here. Otherwise newFD
// carries the newly accepted socket's fd.
func (c *Core) Accept(t *IOTask) (ok bool, locked bool, newFD int, err error) {
	return c.submit(t, backend.OpAccept, nil)
}

// Connect submits a connect completion check; the caller is expected to
// have already issued the non-blocking connect(2) itself.
func (c *Core) Connect(t *IOTask) (ok bool, locked bool, err error) {
	ok, locked, _, err = c.submit(t, backend.OpConnect, nil)
	return ok, locked, err
}

// submit is the shared tri-state plumbing for Recv/Send/Accept/Connect: it
// calls the backend, then — only for completion backends (Completes() ==
// true) — tracks the in-flight submission count spec.md §4.2 "Per-task
// operation accounting" requires. Readiness backends never have genuine
// in-flight state (SubmitOp always runs synchronously), so they never touch
// operationCount.
func (c *Core) submit(t *IOTask, op backend.Op, buf []byte) (ok bool, locked bool, n int, err error) {
	ok, n, err = c.be.SubmitOp(t.handle, op, buf)
	if !ok {
		return false, false, 0, err
	}

	if op == backend.OpAccept && n < 0 {
		// Non-critical accept condition reported by the backend (spec.md
		// §4.2 "Accept specifics"): no connection was produced and nothing
		// is in flight. Surfaces to the caller as the documented third
		// outcome — ok, not locked, n==0 — so the subscriber knows to
		// Reschedule rather than treat this as either a completion or a
		// fatal error. Counted for observability only: spec.md §4.2 requires
		// retrying "without delay", so nothing here paces or throttles it.
		c.acceptRetries.Add(1)
		return true, false, 0, nil
	}

	locked = n == 0 && op != backend.OpConnect
	if locked {
		t.SetAwaitingEvent(true)
		switch op {
		case backend.OpRecv, backend.OpAccept:
			t.inLocked = true
			t.SetLastReadable(false)
		case backend.OpSend:
			t.outLocked = true
			t.SetLastWritable(false)
		}
		if c.be.Completes() {
			t.incOperation()
			c.operationsInFlight.Add(1)
		}
	} else {
		switch op {
		case backend.OpRecv, backend.OpAccept:
			t.SetLastReadable(true)
		case backend.OpSend:
			t.SetLastWritable(true)
		}
	}
	return ok, locked, n, nil
}

// Cancel submits an OpCancel for t to the backend. None of this module's
// backends cancels an outstanding operation for it: epoll and kqueue return
// at once, and io_uring submits a NOP. Used internally by the close
// protocol, and exported so a subscriber may issue the same submission
// without closing the task outright.
func (c *Core) Cancel(t *IOTask) error {
	_, _, err := c.be.SubmitOp(t.handle, backend.OpCancel, nil)
	return err
}
