// Package iocore implements the async socket-I/O engine: a dispatcher plus M
// I/O workers multiplexing IOTasks over one of four kernel backends (epoll,
// kqueue, IOCP, io_uring), per spec.md §1/§4.2. Its shape mirrors package
// scheduler's dispatcher/worker/front-queue/waiting-heap architecture,
// generalized from a plain callback to a Subscriber fed normalized kernel
// events.
package iocore

import (
	"math"
	"sync/atomic"

	"github.com/ygrebnov/asyncio/iocore/backend"
	"github.com/ygrebnov/asyncio/resolver"
)

// Inf is the deadline value meaning "no deadline", matching task.Inf.
const Inf int64 = math.MaxInt64

// IOStatus is the IOTask lifecycle state, per spec.md §4.3's state diagram.
type IOStatus int32

const (
	IOPending IOStatus = iota
	IOWaiting
	IOReady
	IOClosing
	IOClosed
)

func (s IOStatus) String() string {
	switch s {
	case IOPending:
		return "PENDING"
	case IOWaiting:
		return "WAITING"
	case IOReady:
		return "READY"
	case IOClosing:
		return "CLOSING"
	case IOClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// InvalidSocket is the sentinel "no socket attached" value.
const InvalidSocket = -1

// IOTask is a unit of socket-attached deferred work: spec.md §3.2's richer
// Task, attached to at most one socket and one subscriber. Non-atomic fields
// follow the single-owner discipline spec.md §3.2 describes: while the task
// sits in scheduler queues (IsInQueues), only the Core's dispatcher touches
// them; while a worker holds it (status READY, about to run or running),
// only that worker does.
type IOTask struct {
	status atomic.Int32

	closeGuard atomic.Bool

	socket     int
	handle     backend.Handle // nil until AttachSocket
	subscriber Subscriber     // set exactly once per lifecycle

	deadline   int64 // single-owner; INF by default
	isClosed   bool  // single-owner
	isInQueues bool  // single-owner
	isExpired  bool  // single-owner; lazy-clear, same convention as task.Task

	// awaitingEvent mirrors task.Task.isWaiting for sockets: set by a worker
	// when OnEvent has issued an operation that locked (EWOULDBLOCK, or a
	// completion-ring submission still in flight) and the task should not be
	// rescheduled again until a genuine kernel event or deadline arrives.
	// Cleared every dispatch, same single-owner discipline.
	awaitingEvent bool

	// lastReadable/lastWritable track "last known direction ready" for
	// edge-triggered readiness backends (spec.md §4.2 "Edge-triggered
	// readiness handling"): a successful op re-sets the flag ("level
	// propagated"); EWOULDBLOCK clears it and records the awaited direction
	// via inLocked/outLocked below.
	lastReadable, lastWritable bool
	inLocked, outLocked        bool

	// pendingEvents is the intrusive event list completion backends
	// (io_uring, IOCP) use to hand the worker everything that completed since
	// its last dispatch (spec.md §4.2 "Event flushing"); stealPending hands
	// it to the worker as a slice. readyEvents is not read or written by any
	// code path. Both stay nil for readiness backends, which instead rely on
	// lastReadable/lastWritable above.
	pendingEvents *IOEvent
	readyEvents   *IOEvent

	// operationCount is the number of in-flight submissions for completion
	// backends (spec.md §4.2 "Per-task operation accounting"): incremented
	// by the worker on every send/recv/connect/accept, decremented on every
	// observed completion (success or error — see DESIGN.md Open Question
	// decision #2). Close cannot finalize while it is non-zero.
	operationCount atomic.Int64

	// cancelEvent is pre-allocated by NewIOTask. The close protocol's cancel
	// submission does not use it: tryFinalizeClose submits OpCancel with a
	// nil buffer.
	cancelEvent *IOEvent

	// cancelSubmitted guards against submitting the cancel-fd event more
	// than once while CLOSING with operations still outstanding.
	cancelSubmitted bool

	// finalDispatch marks the one ready-queue entry that must deliver the
	// terminal OnEvent(Closed: true) call and then release the subscriber
	// reference, per spec.md §4.2 "Per-task close protocol" step 3.
	finalDispatch bool

	heapIndex int

	id any

	// resolverHint stashes a pending DNS lookup issued before this task has a
	// socket to attach to (spec.md §3.2 expansion): connection-setup helpers
	// outside the dispatch path write and read it; the dispatcher and workers
	// never touch it.
	resolverHint *resolver.Request
}

// NewIOTask constructs an IOTask with no socket and no subscriber attached
// yet; call AttachSocket before posting it to a Core.
func NewIOTask() *IOTask {
	t := &IOTask{
		socket:      InvalidSocket,
		deadline:    Inf,
		heapIndex:   -1,
		cancelEvent: &IOEvent{},
	}
	t.status.Store(int32(IOPending))
	return t
}

// WithID attaches a debug-correlation id and returns the IOTask for chaining.
func (t *IOTask) WithID(id any) *IOTask { t.id = id; return t }

// ID returns the debug-correlation id, if any.
func (t *IOTask) ID() (any, bool) { return t.id, t.id != nil }

// Status returns the current lifecycle status.
func (t *IOTask) Status() IOStatus { return IOStatus(t.status.Load()) }

// CAS attempts to transition status from 'from' to 'to' with the
// acquire/release semantics spec.md §4.3 requires ("explicit acquire on
// observe and release on publish" — Go's atomic CAS already provides this).
func (t *IOTask) CAS(from, to IOStatus) bool {
	return t.status.CompareAndSwap(int32(from), int32(to))
}

// SetStatus unconditionally publishes a new status. Only the current owner
// may call this.
func (t *IOTask) SetStatus(s IOStatus) { t.status.Store(int32(s)) }

// Socket returns the attached platform socket handle, or InvalidSocket.
func (t *IOTask) Socket() int { return t.socket }

// Handle returns the backend registration handle, or nil before
// AttachSocket.
func (t *IOTask) Handle() backend.Handle { return t.handle }

// attachSocket binds fd, its backend handle and subscriber to this task by
// overwriting the three fields. It does no other reset: any other state left
// from a previous binding stays as it was.
func (t *IOTask) attachSocket(fd int, h backend.Handle, sub Subscriber) {
	t.socket = fd
	t.handle = h
	t.subscriber = sub
}

// Subscriber returns the attached subscriber, or nil before AttachSocket.
func (t *IOTask) Subscriber() Subscriber { return t.subscriber }

// SetResolverHint stashes a pending DNS lookup for a connection-setup helper
// to collect once the socket it resolves for exists. The core never reads or
// clears this itself.
func (t *IOTask) SetResolverHint(r *resolver.Request) { t.resolverHint = r }

// ResolverHint returns the stashed lookup request, or nil.
func (t *IOTask) ResolverHint() *resolver.Request { return t.resolverHint }

// Deadline returns the absolute monotonic-millisecond deadline, or Inf.
func (t *IOTask) Deadline() int64 { return t.deadline }

// SetDeadline sets the deadline, replacing any previous value unconditionally.
func (t *IOTask) SetDeadline(d int64) { t.deadline = d }

// Reschedule sets the deadline to immediate (0) — used by the subscriber
// after Accept's transient "invalid socket + empty event" outcome (spec.md
// §4.2 "Accept specifics") so the core retries without starving other tasks.
func (t *IOTask) Reschedule() { t.deadline = 0 }

// IsExpired reports whether the task was dispatched because its deadline
// elapsed, with the same lazy-clear convention as task.Task.IsExpired.
func (t *IOTask) IsExpired() bool { return t.isExpired }

// SetExpired is called only by the dispatcher while it owns the task.
func (t *IOTask) SetExpired(v bool) { t.isExpired = v }

// IsAwaitingEvent reports the awaitingEvent flag (see field doc comment).
func (t *IOTask) IsAwaitingEvent() bool { return t.awaitingEvent }

// SetAwaitingEvent sets or clears the awaitingEvent flag. Single-writer:
// only the current owner may call this.
func (t *IOTask) SetAwaitingEvent(v bool) { t.awaitingEvent = v }

// IsInQueues reports whether the Core's queues currently own this task.
func (t *IOTask) IsInQueues() bool { return t.isInQueues }

// SetInQueues is called only by the dispatcher.
func (t *IOTask) SetInQueues(v bool) { t.isInQueues = v }

// IsClosed reports the single-owner "closed" flag (distinct from Status ==
// IOClosed, which is the atomically-published lifecycle state consumers
// observe; IsClosed additionally records that finalization has begun from
// the dispatcher's perspective).
func (t *IOTask) IsClosed() bool { return t.isClosed }

func (t *IOTask) setClosed(v bool) { t.isClosed = v }

// RequestClose implements PostClose: first-wins, idempotent, safe from any
// goroutine (spec.md §4.2 "Per-task close protocol" step 1, "Post contracts"
// - "PostClose is idempotent via close_guard"). It reports whether this call
// was the one that won the race.
func (t *IOTask) RequestClose() bool {
	if !t.closeGuard.CompareAndSwap(false, true) {
		return false
	}
	// Any status is a legal source for close, including a task that hasn't
	// been dispatched yet; a CAS loop tolerates losing to the dispatcher's
	// own concurrent transition (e.g. IOPending -> IOReady) by retrying
	// against the freshly observed status.
	for {
		cur := t.Status()
		if cur == IOClosing || cur == IOClosed {
			return true
		}
		if t.CAS(cur, IOClosing) {
			return true
		}
	}
}

// OperationCount returns the current in-flight submission count (completion
// backends only; always 0 for readiness backends, which have no true
// in-flight state).
func (t *IOTask) OperationCount() int64 { return t.operationCount.Load() }

// incOperation records one submitted operation.
func (t *IOTask) incOperation() { t.operationCount.Add(1) }

// decOperation records one observed completion (success or error alike, per
// DESIGN.md Open Question decision #2).
func (t *IOTask) decOperation() int64 { return t.operationCount.Add(-1) }

// LastReadable/LastWritable expose the edge-triggered "level propagated"
// flags (spec.md §4.2 "Edge-triggered readiness handling"), read/written only
// by the worker currently owning the task.
func (t *IOTask) LastReadable() bool   { return t.lastReadable }
func (t *IOTask) SetLastReadable(v bool) { t.lastReadable = v }
func (t *IOTask) LastWritable() bool   { return t.lastWritable }
func (t *IOTask) SetLastWritable(v bool) { t.lastWritable = v }

// stealPending returns the task's pending completion events as a slice
// (newest first) and clears the pending list, standing in for the "steals
// pending_events into ready_events" step of spec.md §4.2 "Event flushing". It is
// non-atomic: the caller must hold IN_EXEC-equivalent ownership (the
// dispatcher excluded from writing while the worker runs this task).
func (t *IOTask) stealPending() []*IOEvent {
	var out []*IOEvent
	for e := t.pendingEvents; e != nil; {
		next := e.next
		e.next = nil
		out = append(out, e)
		e = next
	}
	t.pendingEvents = nil
	return out
}

// pushPending prepends e to the task's pending completion-event list. Called
// by the dispatcher when a Wait() completion arrives for this task;
// readiness edges set lastReadable/lastWritable instead.
func (t *IOTask) pushPending(e *IOEvent) {
	e.next = t.pendingEvents
	t.pendingEvents = e
}

// --- waitheap.Item ---

func (t *IOTask) SetHeapIndex(i int) { t.heapIndex = i }
func (t *IOTask) HeapIndex() int     { return t.heapIndex }
