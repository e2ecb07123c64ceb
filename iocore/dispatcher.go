package iocore

import (
	"context"

	"github.com/ygrebnov/asyncio/internal/clock"
	"github.com/ygrebnov/asyncio/iocore/backend"
)

// runDispatcher is the one dispatcher goroutine per Core. It owns the front
// queue drain, the waiting heap, and the backend's kernel wait call, per
// spec.md §4.2. It exits once ctx is canceled, after performing the shutdown
// drain described in spec.md §4.1 "Shutdown" (IOCore reuses the same
// contract: drain once, run what's queued, stop).
func (c *Core) runDispatcher(ctx context.Context) {
	scratch := make([]backend.Completion, 0, 64)

	for {
		select {
		case <-ctx.Done():
			c.shutdownDrain()
			return
		default:
		}

		completions, err := c.be.Wait(c.sleepTimeout(), scratch[:0])
		if err == nil {
			for _, comp := range completions {
				t, ok := c.taskFor(comp.Handle)
				if !ok {
					continue
				}
				c.applyCompletion(t, comp)
			}
		}

		now := clock.NowMillis()
		drained := c.front.DrainReversed()
		for _, t := range drained {
			c.classify(t, now)
		}
		c.expireHeap(now)

		if len(drained) > 0 || len(completions) > 0 {
			c.cfg.Logger.Debug().
				Int("drained", len(drained)).
				Int("completions", len(completions)).
				Int64("now_ms", now).
				Msg("iocore tick")
		}
	}
}

// classify implements the front-queue-drain half of spec.md §4.2's
// dispatcher algorithm, mirroring scheduler's classify: a task entering the
// front queue (AttachSocket's first post, PostClose, PostWakeup, or a
// worker's re-post after OnEvent) goes straight to the ready queue unless it
// is awaiting a future kernel event/deadline, in which case it waits in the
// heap until applyCompletion or expireHeap promotes it.
func (c *Core) classify(t *IOTask, now int64) {
	c.heap.Remove(t)

	if t.Status() == IOClosing {
		c.tryFinalizeClose(t)
		return
	}

	if t.Deadline() <= now || !t.IsAwaitingEvent() {
		t.SetStatus(IOReady)
		t.SetInQueues(false)
		if c.ready.Push(t) {
			c.readyDepth.Add(1)
		}
		return
	}

	t.SetInQueues(true)
	c.heap.Push(t)
}

// applyCompletion folds one kernel completion/readiness edge into its task
// (spec.md §4.2's translation step) and promotes the task out of WAITING if
// it was parked there, regardless of deadline — a genuine kernel event
// always takes priority over a timer.
func (c *Core) applyCompletion(t *IOTask, comp backend.Completion) {
	if comp.Readable || comp.Writable {
		if comp.Readable {
			t.SetLastReadable(true)
			t.inLocked = false
		}
		if comp.Writable {
			t.SetLastWritable(true)
			t.outLocked = false
		}
	} else {
		e, _ := c.cfg.EventPool.Get().(*IOEvent)
		if e == nil {
			e = &IOEvent{}
		}
		e.Reset()
		e.Op = comp.Op
		e.N = comp.N
		e.Err = comp.Err
		t.pushPending(e)
		t.decOperation()
		c.operationsInFlight.Add(-1)
	}

	if t.Status() == IOClosing {
		c.heap.Remove(t)
		c.tryFinalizeClose(t)
		return
	}

	c.heap.Remove(t)
	for {
		cur := t.Status()
		if cur == IOReady || cur == IOClosed {
			return
		}
		if t.CAS(cur, IOReady) {
			t.SetInQueues(false)
			if c.ready.Push(t) {
				c.readyDepth.Add(1)
			}
			return
		}
	}
}

// tryFinalizeClose implements spec.md §4.2's close-protocol steps 2-3. It
// reports whether the task was finalized (pushed to the ready queue for its
// terminal dispatch); false means operations are still outstanding and the
// cancel-fd event has been submitted (if it hadn't been already).
func (c *Core) tryFinalizeClose(t *IOTask) bool {
	if t.OperationCount() > 0 {
		if !t.cancelSubmitted && t.handle != nil {
			t.cancelSubmitted = true
			_, _ = c.be.SubmitOp(t.handle, backend.OpCancel, nil)
		}
		return false
	}

	if t.handle != nil {
		_ = c.be.DeregisterSocket(t.handle)
		c.forgetHandle(t.handle)
	}
	_ = closeSocket(t.socket)

	t.setClosed(true)
	t.finalDispatch = true
	t.SetStatus(IOClosed)
	t.SetInQueues(false)
	if c.ready.Push(t) {
		c.readyDepth.Add(1)
	}
	return true
}

// expireHeap implements spec.md §4.1 step 2 for IOCore's heap: pop every
// task whose deadline has elapsed, mark it expired, and move it to ready.
func (c *Core) expireHeap(now int64) {
	for {
		top, ok := c.heap.Peek()
		if !ok || top.Deadline() > now {
			return
		}
		t, _ := c.heap.Pop()
		t.SetExpired(true)
		t.SetStatus(IOReady)
		t.SetInQueues(false)
		if c.ready.Push(t) {
			c.readyDepth.Add(1)
		}
	}
}

// shutdownDrain implements spec.md §4.1 "Shutdown" for IOCore: drain
// whatever is left in the front queue and the waiting heap exactly once,
// push it all to ready, then close the ready queue.
func (c *Core) shutdownDrain() {
	for _, t := range c.front.DrainReversed() {
		t.SetStatus(IOReady)
		c.ready.Push(t)
	}
	for {
		t, ok := c.heap.Pop()
		if !ok {
			break
		}
		t.SetStatus(IOReady)
		c.ready.Push(t)
	}
	c.ready.Close()
}
