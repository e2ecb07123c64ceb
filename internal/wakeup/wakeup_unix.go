//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package wakeup

import "golang.org/x/sys/unix"

// pipeSource implements Source via the classic self-pipe trick: a
// non-blocking pipe registered for readability, written to from Signal.
// BSD/macOS kqueue has no built-in eventfd equivalent, so this is the
// idiomatic portable fallback.
type pipeSource struct {
	r, w int
}

// New constructs the platform wakeup primitive — a self-pipe on BSD/macOS.
func New() (Source, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, err
	}
	return &pipeSource{r: fds[0], w: fds[1]}, nil
}

func (p *pipeSource) FD() int { return p.r }

func (p *pipeSource) Signal() error {
	_, err := unix.Write(p.w, []byte{0})
	if err == unix.EAGAIN {
		// Pipe buffer already has a pending byte; one readiness edge suffices.
		return nil
	}
	return err
}

func (p *pipeSource) Drain() error {
	var buf [64]byte
	for {
		_, err := unix.Read(p.r, buf[:])
		if err == unix.EAGAIN {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (p *pipeSource) Close() error {
	err1 := unix.Close(p.r)
	err2 := unix.Close(p.w)
	if err1 != nil {
		return err1
	}
	return err2
}
