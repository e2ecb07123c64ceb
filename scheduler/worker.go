package scheduler

import (
	"context"
	"fmt"

	"github.com/ygrebnov/asyncio/task"
)

// runWorker implements spec.md §4.1 "Worker algorithm": dequeue one ready
// task at a time, run its callback, and let the callback's own mutations
// (re-post, wait, signal, delete) decide what happens next. A panicking
// callback is recovered and discarded rather than crashing the worker
// goroutine (no count or error is recorded for it), mirroring the teacher's
// worker.execute recover discipline.
func (s *Scheduler) runWorker(ctx context.Context) {
	for {
		t, ok := s.ready.Pop()
		if !ok {
			return // ready queue closed and drained: shutdown complete
		}

		s.readyDepth.Add(-1)
		s.runOne(t)

		select {
		case <-ctx.Done():
			// Keep draining ready.Pop until it reports ok==false: the
			// dispatcher's shutdown drain may still be feeding it, and the
			// shutdown contract requires every queued task run exactly once.
		default:
		}
	}
}

func (s *Scheduler) runOne(t *task.Task) {
	defer func() {
		if r := recover(); r != nil {
			_ = fmt.Errorf("scheduler: task callback panicked: %v", r)
		}
	}()

	t.SetStatus(task.InExec)
	t.SetWaiting(false)
	t.SetDeadline(task.Inf) // deadlines merge only within one dispatch
	cb := t.Callback()
	s.tasksDispatched.Add(1)
	if cb != nil {
		cb(t)
	}

	// Honor a PostWakeup that arrived while this callback was running: if the
	// callback left the task IN_EXEC (didn't re-post or delete it itself),
	// the wakeup guarantees one more execution.
	if t.TakeWakeupRequested() && t.Status() == task.InExec {
		t.SetStatus(task.Pending)
		_ = s.post(t, false)
	}
}
