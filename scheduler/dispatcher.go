package scheduler

import (
	"context"
	"time"

	"github.com/ygrebnov/asyncio/internal/clock"
	"github.com/ygrebnov/asyncio/task"
)

// runDispatcher is the one dispatcher goroutine per Scheduler. It owns the
// front queue drain, the waiting heap, and timer sleep, per spec.md §4.1
// "Dispatcher algorithm". It exits once ctx is canceled, after performing the
// shutdown drain described in spec.md §4.1 "Shutdown".
func (s *Scheduler) runDispatcher(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.shutdownDrain()
			return
		default:
		}

		s.tick()

		timeout := s.sleepDuration()
		select {
		case <-ctx.Done():
			s.shutdownDrain()
			return
		case <-s.wake:
		case <-time.After(timeout):
		}
	}
}

// tick runs one dispatcher pass: drain the front queue, classify each task
// into ready-now or waiting, then expire anything in the heap whose deadline
// has elapsed.
func (s *Scheduler) tick() {
	now := clock.NowMillis()

	drained := s.front.DrainReversed()
	for _, t := range drained {
		s.classify(t, now)
	}

	s.expireHeap(now)

	if len(drained) > 0 {
		s.cfg.Logger.Debug().Int("drained", len(drained)).Int64("now_ms", now).Msg("scheduler tick")
	}
}

// classify implements spec.md §4.1 step 1: a freshly-drained task goes
// straight to the ready queue if it has no effective wait, is already due, or
// was signaled since being posted; otherwise it waits in the heap.
func (s *Scheduler) classify(t *task.Task, now int64) {
	// A task re-entering the front queue (re-post, PostWakeup) may still be
	// sitting in the heap from a previous classify; only the dispatcher
	// touches the heap, so this is race-free.
	s.heap.Remove(t)

	if t.Deadline() <= now || (!t.IsWaiting() && t.Deadline() == task.Inf) || t.PeekSignaled() || t.TakeWakeupRequested() {
		t.SetStatus(task.Ready)
		if s.ready.Push(t) {
			s.readyDepth.Add(1)
		}
		return
	}
	t.SetStatus(task.InWaiting)
	s.heap.Push(t)
}

// expireHeap implements spec.md §4.1 step 2: pop every task whose deadline
// has elapsed, mark it expired, and move it to the ready queue.
func (s *Scheduler) expireHeap(now int64) {
	for {
		top, ok := s.heap.Peek()
		if !ok || top.Deadline() > now {
			return
		}
		t, _ := s.heap.Pop()
		t.SetExpired(true)
		t.SetStatus(task.Ready)
		s.tasksExpired.Add(1)
		if s.ready.Push(t) {
			s.readyDepth.Add(1)
		}
	}
}

// sleepDuration computes how long the dispatcher may sleep before it must
// look at the heap again: until the nearest deadline, or indefinitely (capped
// to a poll interval) if the heap is empty.
func (s *Scheduler) sleepDuration() time.Duration {
	top, ok := s.heap.Peek()
	if !ok {
		return time.Hour
	}
	return clock.DurationUntil(top.Deadline())
}

// shutdownDrain implements spec.md §4.1 "Shutdown": drain whatever is left in
// the front queue and the waiting heap exactly once, push it all to the ready
// queue, then close the ready queue so workers finish their final pass and
// exit instead of blocking forever.
func (s *Scheduler) shutdownDrain() {
	for _, t := range s.front.DrainReversed() {
		t.SetStatus(task.Ready)
		s.ready.Push(t)
	}
	for {
		t, ok := s.heap.Pop()
		if !ok {
			break
		}
		t.SetStatus(task.Ready)
		s.ready.Push(t)
	}
	s.ready.Close()
}
