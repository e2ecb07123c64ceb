package task

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// drive runs cb as many times as needed until it stops re-posting, simulating
// what a scheduler dispatcher would do with hooks that just record calls.
func driveUntilDone(t *testing.T, tk *Task, cb Callback, postCh chan struct{}, waitCh chan struct{}) {
	t.Helper()
	for i := 0; i < 1000; i++ {
		cb(tk)
		select {
		case <-postCh:
			continue
		case <-waitCh:
			continue
		default:
			return
		}
	}
	t.Fatal("coroutine never settled")
}

func TestCoroutine_YieldThenExitDelete(t *testing.T) {
	var steps []string

	postCh := make(chan struct{}, 16)
	hooks := Hooks{
		Post: func(*Task) {
			steps = append(steps, "post")
			postCh <- struct{}{}
		},
	}

	tk := New(nil)
	cb := StartCoroutine(tk, func(c *Coroutine) {
		steps = append(steps, "before-yield")
		c.Yield()
		steps = append(steps, "after-yield")
		c.ExitDelete()
		steps = append(steps, "unreachable")
	}, hooks)

	driveUntilDone(t, tk, cb, postCh, nil)

	require.Equal(t, []string{"before-yield", "post", "after-yield"}, steps)
}

func TestCoroutine_ReceiveSignalOnWakeup(t *testing.T) {
	waitCh := make(chan struct{}, 16)
	var gotSignal bool

	hooks := Hooks{
		PostWait: func(*Task) { waitCh <- struct{}{} },
	}

	tk := New(nil)
	cb := StartCoroutine(tk, func(c *Coroutine) {
		gotSignal = c.ReceiveSignal()
		c.ExitDelete()
	}, hooks)

	// First dispatch: starts the coroutine, which suspends on ReceiveSignal.
	cb(tk)
	require.True(t, tk.IsWaiting())

	// Simulate the scheduler waking it via PostSignal before the next dispatch.
	tk.PostSignal()

	// Second dispatch: resumes the coroutine past ReceiveSignal.
	cb(tk)

	require.True(t, gotSignal)
}

func TestCoroutine_ReceiveSignalOnDeadline(t *testing.T) {
	hooks := Hooks{PostWait: func(*Task) {}}

	var gotSignal bool
	tk := New(nil)
	cb := StartCoroutine(tk, func(c *Coroutine) {
		gotSignal = c.ReceiveSignal()
		c.ExitDelete()
	}, hooks)

	cb(tk)
	tk.SetExpired(true) // simulate dispatcher expiring the deadline

	cb(tk)

	require.False(t, gotSignal)
}

func TestCoroutine_ExitSendSignal(t *testing.T) {
	sig := NewSignal()
	tk := New(nil)
	cb := StartCoroutine(tk, func(c *Coroutine) {
		c.ExitSendSignal(sig)
	}, Hooks{})

	cb(tk)

	select {
	case <-sig.Done():
	default:
		t.Fatal("signal not fired after ExitSendSignal")
	}
}

func TestCoroutine_ExitExec(t *testing.T) {
	var execdWith *Task
	tk := New(nil)
	cb := StartCoroutine(tk, func(c *Coroutine) {
		c.ExitExec(func(t *Task) { execdWith = t })
	}, Hooks{})

	cb(tk)

	require.Same(t, tk, execdWith)
}

func TestCoroutine_ImplicitExitOnPlainReturn(t *testing.T) {
	ran := false
	tk := New(nil)
	cb := StartCoroutine(tk, func(c *Coroutine) {
		ran = true
		// no Async* call: body just returns.
	}, Hooks{})

	cb(tk)

	require.True(t, ran)
}
