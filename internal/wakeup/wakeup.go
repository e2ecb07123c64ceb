// Package wakeup implements the interrupt_wait() primitive required by
// spec.md §6.3 item 5 for the two readiness-based backends (epoll, kqueue):
// a file descriptor that can be registered alongside sockets in the same
// kernel event source and signaled from any goroutine to break the dispatcher
// out of a blocking wait call so it can drain the front queue.
//
// Completion-based backends (iocp, ioring) don't need this: IOCP's
// PostQueuedCompletionStatus and io_uring's submission queue already provide
// a way to interrupt a blocked wait from another thread.
package wakeup

// Source is a cross-process-boundary-free wakeup signal backed by a single
// file descriptor suitable for registration with epoll/kqueue.
type Source interface {
	// FD returns the descriptor to register for readability.
	FD() int

	// Signal makes FD become (or stay) readable. Safe for concurrent use and
	// safe to call repeatedly before the dispatcher drains — multiple
	// signals before a drain coalesce into one readiness edge.
	Signal() error

	// Drain clears the readability edge after the dispatcher has woken up
	// and is about to re-enter the kernel wait call.
	Drain() error

	// Close releases the underlying descriptor(s).
	Close() error
}
