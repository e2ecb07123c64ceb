//go:build linux

package iocore

import (
	"github.com/ygrebnov/asyncio/iocore/backend"
	"github.com/ygrebnov/asyncio/iocore/backend/epoll"
	"github.com/ygrebnov/asyncio/iocore/backend/ioring"
)

// defaultBackendFactory constructs the platform's native backend: epoll on
// linux. io_uring is available but not the default — spec.md §6.3 lists it
// as one of four equally-valid strategies, and epoll is the one every
// pre-5.1 kernel and every container runtime in practice supports; callers
// that want io_uring opt in explicitly via WithIORingBackend.
func defaultBackendFactory() (backend.Backend, error) {
	return epoll.New(), nil
}

// WithIORingBackend selects the io_uring completion-ring backend instead of
// the default epoll readiness backend. entries sizes the submission/
// completion rings; 0 selects a sensible default. Core calls
// CreateEventSource on whatever Factory returns, so this stays a plain
// constructor like defaultBackendFactory.
func WithIORingBackend(entries uint32) Option {
	return WithBackend(func() (backend.Backend, error) {
		return ioring.New(entries), nil
	})
}
