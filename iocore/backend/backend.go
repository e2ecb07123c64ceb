// Package backend defines the platform primitive set IOCore requires from a
// kernel I/O multiplexing strategy, per spec.md §6.3. The core contains no
// platform ifdef logic outside these five primitives; each concrete backend
// (epoll, kqueue, iocp, ioring) implements Backend and nothing else is
// platform-specific in iocore itself.
package backend

import (
	"time"
)

// Op identifies the kind of operation submitted against a registered socket.
type Op int

const (
	OpRecv Op = iota
	OpSend
	OpConnect
	OpAccept
	OpCancel
)

// Handle is an opaque per-socket registration token a backend hands back from
// RegisterSocket and expects in every later call for that socket.
type Handle any

// Completion is one (task handle, event) pair reported by Wait: either a
// completion-backend finished operation or a readiness edge, normalized to
// the same shape so the core's dispatcher never branches on backend kind.
type Completion struct {
	Handle Handle
	// Readable/Writable are set by readiness backends to report which
	// directions became ready; completion backends leave both false and
	// instead set Op/N/Err.
	Readable bool
	Writable bool
	// Op/N/Err carry a completion backend's operation outcome. N is the byte
	// count (success) or 0 on error; Err is the OS error, if any.
	Op  Op
	N   int
	Err error
}

// Backend is the platform primitive set spec.md §6.3 requires.
type Backend interface {
	// Name identifies the concrete strategy ("epoll", "kqueue", "iocp",
	// "io_uring") for diagnostics and metric attribution — a Core running
	// the io_uring backend via WithIORingBackend and one running the
	// platform default should be distinguishable in an operator's metrics
	// backend without needing separate namespaces.
	Name() string

	// CreateEventSource allocates the kernel object (epoll/kqueue fd,
	// completion port, io_uring instance) this backend polls.
	CreateEventSource() error

	// DestroyEventSource releases it. Safe to call once, after Wait has
	// returned for the last time.
	DestroyEventSource() error

	// RegisterSocket associates fd with the event source in edge-triggered
	// mode (readiness backends) or by association (completion backends), and
	// returns a Handle to use in subsequent calls.
	RegisterSocket(fd int) (Handle, error)

	// DeregisterSocket removes fd's registration. Called during close.
	DeregisterSocket(h Handle) error

	// SubmitOp submits a send/recv/connect/accept (or cancel) operation
	// against the given handle. buf is the operation's working buffer, if
	// any (nil for accept/connect/cancel). It implements spec.md §4.2's
	// three-outcome contract: ok==false means the operation never reached
	// the kernel; ok==true with n==0 means the operation is in flight (a
	// readiness backend reported EWOULDBLOCK, or a completion backend only
	// queued the submission — its result arrives later via Wait); ok==true
	// with n>0 (or n==0 with a recv at EOF) means the operation already
	// completed synchronously and n is the byte count.
	//
	// OpAccept has a fourth wrinkle, spec.md §4.2 "Accept specifics": a
	// non-critical accept failure (a peer reset or was routed away before
	// accept() actually completed it) is not an in-flight wait and not a
	// fatal error — the backend reports it as ok==true, n==-1, so Core can
	// surface it to the caller as "no connection, not locked, retry on the
	// next dispatch" instead of either alternative.
	SubmitOp(h Handle, op Op, buf []byte) (ok bool, n int, err error)

	// Wait blocks in the kernel wait call for up to timeout, appending
	// completions to out, and returns the slice (possibly empty on timeout).
	// timeout < 0 means wait indefinitely until Interrupt is called.
	Wait(timeout time.Duration, out []Completion) ([]Completion, error)

	// Interrupt wakes a goroutine blocked in Wait so it can re-check the
	// front queue, per spec.md §6.3 "interrupt_wait()".
	Interrupt() error

	// Completes reports whether this backend reports operation outcomes
	// asynchronously via Wait (true: iocp, ioring) or only ever reports
	// readiness edges, with operations run synchronously by the caller
	// (false: epoll, kqueue). IOCore uses this to decide whether a locked
	// SubmitOp result needs per-task in-flight accounting (spec.md §4.2
	// "Per-task operation accounting" applies to completion backends only).
	Completes() bool
}

// Factory constructs a Backend instance for one Core.
type Factory func() (Backend, error)
