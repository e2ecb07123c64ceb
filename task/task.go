// Package task implements the Task type TaskScheduler dispatches: a unit of
// deferred work carrying a replaceable callback, an atomic lifecycle status,
// a mutable deadline, and the wait/signal flags spec.md §3.1 describes.
//
// Ownership follows spec.md §3.1 exactly: a posted Task is owned by the
// scheduler until its callback decides to re-post it, put it to wait, or
// release it by returning without further action; the scheduler itself never
// deletes a Task.
package task

import (
	"math"
	"sync/atomic"
)

// Inf is the deadline value meaning "no deadline".
const Inf int64 = math.MaxInt64

// Status is the Task lifecycle state, transitioned with explicit
// acquire/release ordering per spec.md §3.1.
type Status int32

const (
	Pending Status = iota
	InFrontQueue
	InWaiting
	Ready
	InExec
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case InFrontQueue:
		return "IN_FRONT_QUEUE"
	case InWaiting:
		return "IN_WAITING"
	case Ready:
		return "READY"
	case InExec:
		return "IN_EXEC"
	default:
		return "UNKNOWN"
	}
}

// Callback is the function a worker invokes for a dispatched Task. It may
// mutate the Task (deadline, wait flag, callback itself), post it again, or
// delete it — see spec.md §6.2 for the full legal/illegal action list.
type Callback func(t *Task)

// Task is a single unit of deferred work. Non-atomic fields are guarded by
// the single-writer discipline spec.md §3.2 describes for IOTask and §3.1
// implies for Task: whoever currently "owns" the task by virtue of its
// status (the scheduler while queued, the executing worker while IN_EXEC) is
// the only goroutine allowed to touch them.
type Task struct {
	status atomic.Int32

	callback Callback

	deadline int64 // owned by dispatcher while queued, by worker while IN_EXEC
	isExpired bool  // single-writer; cleared lazily per spec.md §9 Open Question
	isSignaled atomic.Bool
	isWaiting bool // single-writer; cleared every dispatch

	wakeupRequested atomic.Bool // consumed by the dispatcher on next classify

	heapIndex int // -1 when not in the waiting heap

	id   any
	name string
}

// New constructs a Task with the given callback and no deadline.
func New(cb Callback) *Task {
	t := &Task{
		callback:  cb,
		deadline:  Inf,
		heapIndex: -1,
	}
	t.status.Store(int32(Pending))
	return t
}

// WithID attaches a debug-correlation id (SPEC_FULL.md §3.1 expansion) and
// returns the Task for chaining.
func (t *Task) WithID(id any) *Task { t.id = id; return t }

// WithName attaches a debug name and returns the Task for chaining.
func (t *Task) WithName(name string) *Task { t.name = name; return t }

// ID returns the debug-correlation id, if any.
func (t *Task) ID() (any, bool) { return t.id, t.id != nil }

// Name returns the debug name, if any.
func (t *Task) Name() string { return t.name }

// Status returns the current lifecycle status.
func (t *Task) Status() Status { return Status(t.status.Load()) }

// CAS attempts to transition status from 'from' to 'to'. It reports whether
// the transition succeeded.
func (t *Task) CAS(from, to Status) bool {
	return t.status.CompareAndSwap(int32(from), int32(to))
}

// SetStatus unconditionally publishes a new status. Only the current owner
// (scheduler or executing worker, per the discipline above) may call this.
func (t *Task) SetStatus(s Status) { t.status.Store(int32(s)) }

// Callback returns the current callback.
func (t *Task) Callback() Callback { return t.callback }

// SetCallback replaces the callback. Legal at any time per spec.md §6.2,
// though in practice only the task itself (from within its own callback)
// does this.
func (t *Task) SetCallback(cb Callback) { t.callback = cb }

// Deadline returns the absolute monotonic-millisecond deadline, or Inf.
func (t *Task) Deadline() int64 { return t.deadline }

// SetDeadline sets the deadline, replacing any previous value unconditionally.
// Only legal from the worker executing the task, or from the dispatcher while
// merging a freshly posted task (spec.md §4.1 "Timer semantics").
func (t *Task) SetDeadline(d int64) { t.deadline = d }

// AdjustDeadline lowers (never raises) the deadline, per spec.md §4.1
// "AdjustDeadline(d) can also lower but not raise."
func (t *Task) AdjustDeadline(d int64) {
	if d < t.deadline {
		t.deadline = d
	}
}

// MergeDeadline keeps the earliest of the current and incoming deadline,
// implementing the additive-minimum contract for Post/PostDelay/PostDeadline
// (spec.md §4.1 "Deadlines are additive-minimum").
func (t *Task) MergeDeadline(d int64) {
	if d < t.deadline {
		t.deadline = d
	}
}

// Reschedule sets the deadline to immediate (0), per spec.md §4.1.
func (t *Task) Reschedule() { t.deadline = 0 }

// IsExpired reports whether the task was dispatched because its deadline
// elapsed. Per spec.md §9's documented (ambiguous) convention, this clears
// lazily: it is only reset the next time a dispatch explicitly calls
// ClearExpired, not automatically on every dispatch entry. See
// DESIGN.md "Open Question decisions" for why this implementation keeps that
// convention instead of the cleaner alternative.
func (t *Task) IsExpired() bool { return t.isExpired }

// SetExpired marks the task as dispatched-due-to-deadline. Called only by the
// dispatcher while it owns the task (front queue drain / heap expiry).
func (t *Task) SetExpired(v bool) { t.isExpired = v }

// ClearExpired is the explicit, opt-in reset a worker may call; the contract
// never calls this automatically (see IsExpired's doc comment).
func (t *Task) ClearExpired() { t.isExpired = false }

// IsWaiting reports whether the task requested "do not reschedule
// automatically" via PostWait. Cleared every dispatch per spec.md §3.1.
func (t *Task) IsWaiting() bool { return t.isWaiting }

// SetWaiting sets or clears the wait flag. Single-writer: only the current
// owner may call this.
func (t *Task) SetWaiting(v bool) { t.isWaiting = v }

// PostSignal sets the signaled flag. Safe from any goroutine (spec.md §3.1:
// "set by any thread via PostSignal").
func (t *Task) PostSignal() { t.isSignaled.Store(true) }

// ReceiveSignal consumes (clears) the signaled flag and reports whether it
// was set, implementing spec.md §8 invariant 4: two posts before one receive
// collapse into one.
func (t *Task) ReceiveSignal() bool { return t.isSignaled.Swap(false) }

// PeekSignaled reports the signaled flag without clearing it.
func (t *Task) PeekSignaled() bool { return t.isSignaled.Load() }

// RequestWakeup records an explicit PostWakeup per spec.md §4.1's
// "PostWakeup() (on task)" entry: PENDING/WAITING -> READY unconditionally,
// with no signal involved. Safe from any goroutine.
func (t *Task) RequestWakeup() { t.wakeupRequested.Store(true) }

// TakeWakeupRequested consumes (clears) the wakeup request and reports
// whether one was pending.
func (t *Task) TakeWakeupRequested() bool { return t.wakeupRequested.Swap(false) }

// --- waitheap.Item ---
//
// Deadline (above) plus these two methods implement internal/waitheap.Item.

func (t *Task) SetHeapIndex(i int) { t.heapIndex = i }
func (t *Task) HeapIndex() int     { return t.heapIndex }
