//go:build darwin || freebsd || netbsd || openbsd || dragonfly

// Package kqueue implements the BSD/macOS readiness-based edge-triggered
// Backend, one of the four kernel strategies spec.md §1/§6.3 requires.
// Grounded on joeycumines-go-utilpkg's eventloop.FastPoller for Darwin
// (Kqueue/Kevent registration and the preallocated event buffer shape),
// adapted to report a normalized []backend.Completion slice instead of
// dispatching callbacks inline, matching the epoll backend's contract.
package kqueue

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ygrebnov/asyncio/internal/wakeup"
	"github.com/ygrebnov/asyncio/iocore/backend"
)

const maxEvents = 256

type conn struct {
	fd int
}

// Backend is the kqueue-based readiness backend.
type Backend struct {
	kq int

	wake wakeup.Source

	mu   sync.RWMutex
	byFD map[int]*conn

	buf [maxEvents]unix.Kevent_t
}

// New constructs an uninitialized kqueue Backend; call CreateEventSource
// before use.
func New() *Backend {
	return &Backend{byFD: make(map[int]*conn)}
}

// Name identifies this backend for diagnostics and metric attribution.
func (b *Backend) Name() string { return "kqueue" }

func (b *Backend) CreateEventSource() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return fmt.Errorf("kqueue: create: %w", err)
	}
	unix.CloseOnExec(kq)
	b.kq = kq

	w, err := wakeup.New()
	if err != nil {
		_ = unix.Close(b.kq)
		return fmt.Errorf("kqueue: wakeup source: %w", err)
	}
	b.wake = w

	ev := []unix.Kevent_t{{
		Ident:  uint64(w.FD()),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}}
	if _, err := unix.Kevent(b.kq, ev, nil, nil); err != nil {
		_ = w.Close()
		_ = unix.Close(b.kq)
		return fmt.Errorf("kqueue: register wakeup fd: %w", err)
	}
	return nil
}

func (b *Backend) DestroyEventSource() error {
	if b.wake != nil {
		_ = b.wake.Close()
	}
	return unix.Close(b.kq)
}

func (b *Backend) RegisterSocket(fd int) (backend.Handle, error) {
	c := &conn{fd: fd}

	b.mu.Lock()
	b.byFD[fd] = c
	b.mu.Unlock()

	kevents := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE | unix.EV_CLEAR},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_ENABLE | unix.EV_CLEAR},
	}
	if _, err := unix.Kevent(b.kq, kevents, nil, nil); err != nil {
		b.mu.Lock()
		delete(b.byFD, fd)
		b.mu.Unlock()
		return nil, fmt.Errorf("kqueue: register fd %d: %w", fd, err)
	}
	return c, nil
}

func (b *Backend) DeregisterSocket(h backend.Handle) error {
	c := h.(*conn)
	b.mu.Lock()
	delete(b.byFD, c.fd)
	b.mu.Unlock()

	kevents := []unix.Kevent_t{
		{Ident: uint64(c.fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(c.fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	_, err := unix.Kevent(b.kq, kevents, nil, nil)
	return err
}

// SubmitOp mirrors the epoll backend: readiness backends run the syscall
// directly and report the tri-state contract of spec.md §4.2.
func (b *Backend) SubmitOp(h backend.Handle, op backend.Op, buf []byte) (bool, int, error) {
	c := h.(*conn)

	switch op {
	case backend.OpRecv:
		n, err := unix.Read(c.fd, buf)
		return classify(n, err)
	case backend.OpSend:
		n, err := unix.Write(c.fd, buf)
		return classify(n, err)
	case backend.OpConnect:
		return true, 0, nil
	case backend.OpAccept:
		nfd, _, err := unix.Accept(c.fd)
		if err != nil {
			if err == unix.EAGAIN {
				return true, 0, nil
			}
			if !isAcceptErrorCritical(err) {
				// Peer reset before accept() ran: no connection, not in
				// flight, caller must Reschedule.
				return true, -1, nil
			}
			return false, 0, err
		}
		if err := unix.SetNonblock(nfd, true); err != nil {
			_ = unix.Close(nfd)
			return false, 0, err
		}
		return true, nfd, nil
	case backend.OpCancel:
		return true, 0, nil
	default:
		return false, 0, fmt.Errorf("kqueue: unknown op %d", op)
	}
}

func classify(n int, err error) (bool, int, error) {
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return true, 0, nil
		}
		return false, 0, err
	}
	return true, n, nil
}

func (b *Backend) Wait(timeout time.Duration, out []backend.Completion) ([]backend.Completion, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}

	n, err := unix.Kevent(b.kq, nil, b.buf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return out, nil
		}
		return out, fmt.Errorf("kqueue: wait: %w", err)
	}

	for i := 0; i < n; i++ {
		kev := b.buf[i]
		fd := int(kev.Ident)
		if b.wake != nil && fd == b.wake.FD() {
			_ = b.wake.Drain()
			continue
		}

		b.mu.RLock()
		c, ok := b.byFD[fd]
		b.mu.RUnlock()
		if !ok {
			continue
		}

		comp := backend.Completion{Handle: c}
		switch kev.Filter {
		case unix.EVFILT_READ:
			comp.Readable = true
		case unix.EVFILT_WRITE:
			comp.Writable = true
		}
		if kev.Flags&unix.EV_EOF != 0 {
			comp.Readable = true
		}
		out = append(out, comp)
	}
	return out, nil
}

func (b *Backend) Interrupt() error {
	if b.wake == nil {
		return nil
	}
	return b.wake.Signal()
}

// Completes reports false: kqueue is a readiness backend, operations run
// synchronously in SubmitOp.
func (b *Backend) Completes() bool { return false }

// isAcceptErrorCritical reports whether an accept() error indicates a real
// listener-level problem versus a connection aborted before accept() could
// complete it. Narrower than the Linux set: Apple's accept() does not
// forward most backlog errors at all, so only ECONNABORTED/EINTR are
// expected here. Mirrors the Apple branch of the original implementation's
// SocketIsAcceptErrorCritical (src/mg/net/Socket_Unix.cpp).
func isAcceptErrorCritical(err error) bool {
	switch err {
	case unix.ECONNABORTED, unix.EINTR:
		return false
	default:
		return true
	}
}
