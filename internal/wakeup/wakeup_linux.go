//go:build linux

package wakeup

import (
	"encoding/binary"
	"golang.org/x/sys/unix"
)

// eventfdSource implements Source over Linux's eventfd(2), the standard way
// to fold a cross-goroutine signal into an epoll set.
type eventfdSource struct {
	fd int
}

// New constructs the platform wakeup primitive — eventfd on Linux.
func New() (Source, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &eventfdSource{fd: fd}, nil
}

func (e *eventfdSource) FD() int { return e.fd }

func (e *eventfdSource) Signal() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(e.fd, buf[:])
	if err == unix.EAGAIN {
		// Counter already non-zero; wakeup is already pending.
		return nil
	}
	return err
}

func (e *eventfdSource) Drain() error {
	var buf [8]byte
	for {
		_, err := unix.Read(e.fd, buf[:])
		if err == unix.EAGAIN {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (e *eventfdSource) Close() error {
	return unix.Close(e.fd)
}
