//go:build linux

// Package epoll implements the Linux readiness-based edge-triggered Backend,
// one of the four kernel strategies spec.md §1/§6.3 requires. The
// registration/wait shape is grounded on joeycumines-go-utilpkg's
// eventloop.FastPoller (EpollCreate1/EpollCtl/EpollWait over a preallocated
// event buffer); unlike that poller, which dispatches callbacks inline, this
// backend reports a normalized []backend.Completion slice so iocore's
// dispatcher (shared with TaskScheduler's shape) stays backend-agnostic.
package epoll

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ygrebnov/asyncio/internal/wakeup"
	"github.com/ygrebnov/asyncio/iocore/backend"
)

const maxEvents = 256

// conn is the Handle returned by RegisterSocket.
type conn struct {
	fd int
}

// Backend is the epoll-based readiness backend.
type Backend struct {
	epfd int

	wake wakeup.Source

	mu sync.RWMutex
	// byFD maps the raw epoll-reported fd back to its conn, so Wait can
	// build Handles without an extra syscall.
	byFD map[int32]*conn

	buf [maxEvents]unix.EpollEvent
}

// New constructs an uninitialized epoll Backend; call CreateEventSource
// before use.
func New() *Backend {
	return &Backend{byFD: make(map[int32]*conn)}
}

// Name identifies this backend for diagnostics and metric attribution.
func (b *Backend) Name() string { return "epoll" }

func (b *Backend) CreateEventSource() error {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return fmt.Errorf("epoll: create: %w", err)
	}
	b.epfd = fd

	w, err := wakeup.New()
	if err != nil {
		_ = unix.Close(b.epfd)
		return fmt.Errorf("epoll: wakeup source: %w", err)
	}
	b.wake = w

	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(w.FD())}
	if err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, w.FD(), ev); err != nil {
		_ = w.Close()
		_ = unix.Close(b.epfd)
		return fmt.Errorf("epoll: register wakeup fd: %w", err)
	}
	return nil
}

func (b *Backend) DestroyEventSource() error {
	if b.wake != nil {
		_ = b.wake.Close()
	}
	return unix.Close(b.epfd)
}

func (b *Backend) RegisterSocket(fd int) (backend.Handle, error) {
	c := &conn{fd: fd}

	b.mu.Lock()
	b.byFD[int32(fd)] = c
	b.mu.Unlock()

	// Edge-triggered per spec.md §4.2 "Kernel registration"; EPOLLRDHUP lets
	// a peer-closed connection surface as a readable edge instead of silence.
	ev := &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLET | unix.EPOLLRDHUP,
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		b.mu.Lock()
		delete(b.byFD, int32(fd))
		b.mu.Unlock()
		return nil, fmt.Errorf("epoll: register fd %d: %w", fd, err)
	}
	return c, nil
}

func (b *Backend) DeregisterSocket(h backend.Handle) error {
	c := h.(*conn)
	b.mu.Lock()
	delete(b.byFD, int32(c.fd))
	b.mu.Unlock()
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, c.fd, nil)
}

// SubmitOp performs the non-blocking syscall directly: readiness backends
// have no true in-flight state, only "would block, wait for the next edge".
// Per spec.md §4.2's I/O operation tri-state contract: a hard error returns
// ok==false; EWOULDBLOCK returns ok==true with n==0 (caller interprets this
// as "locked, wait for readiness"); anything else returns ok==true with the
// byte count.
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
		// Connect completion is reported as a writable edge; nothing to
		// submit here beyond what the caller already did via unix.Connect
		// when the socket was created non-blocking.
		return true, 0, nil
	case backend.OpAccept:
		nfd, _, err := unix.Accept4(c.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN {
				return true, 0, nil
			}
			if !isAcceptErrorCritical(err) {
				// Peer reset or was routed away before accept() ran: no
				// connection, not in flight, caller must Reschedule.
				return true, -1, nil
			}
			return false, 0, err
		}
		return true, nfd, nil // n carries the new fd for OpAccept
	case backend.OpCancel:
		return true, 0, nil
	default:
		return false, 0, fmt.Errorf("epoll: unknown op %d", op)
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
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}

	n, err := unix.EpollWait(b.epfd, b.buf[:], ms)
	if err != nil {
		if err == unix.EINTR {
			return out, nil
		}
		return out, fmt.Errorf("epoll: wait: %w", err)
	}

	for i := 0; i < n; i++ {
		ev := b.buf[i]
		if b.wake != nil && int(ev.Fd) == b.wake.FD() {
			_ = b.wake.Drain()
			continue
		}

		b.mu.RLock()
		c, ok := b.byFD[ev.Fd]
		b.mu.RUnlock()
		if !ok {
			continue
		}

		out = append(out, backend.Completion{
			Handle:   c,
			Readable: ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0,
			Writable: ev.Events&(unix.EPOLLOUT|unix.EPOLLHUP|unix.EPOLLERR) != 0,
		})
	}
	return out, nil
}

func (b *Backend) Interrupt() error {
	if b.wake == nil {
		return nil
	}
	return b.wake.Signal()
}

// Completes reports false: epoll is a readiness backend, operations run
// synchronously in SubmitOp.
func (b *Backend) Completes() bool { return false }

// isAcceptErrorCritical reports whether an accept4() error indicates a real
// listener-level problem versus a connection that was reset, routed away, or
// otherwise aborted before accept() could complete it — which is routine and
// must not be treated as fatal. Mirrors the Linux branch of the original
// implementation's SocketIsAcceptErrorCritical (src/mg/net/Socket_Unix.cpp).
func isAcceptErrorCritical(err error) bool {
	switch err {
	case unix.ENETDOWN, unix.EPROTO, unix.ENOPROTOOPT, unix.EHOSTDOWN,
		unix.ENONET, unix.EHOSTUNREACH, unix.EOPNOTSUPP, unix.ENETUNREACH,
		unix.ECONNABORTED, unix.EINTR:
		return false
	default:
		return true
	}
}
