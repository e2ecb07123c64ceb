package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ygrebnov/asyncio/task"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := New(nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(1))
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

// Scenario 1: simple dispatch.
func TestScheduler_SimpleDispatch(t *testing.T) {
	s := newTestScheduler(t)

	var got atomic.Int32
	done := make(chan struct{})
	tk := task.New(func(*task.Task) {
		got.Store(1)
		close(done)
	})
	require.NoError(t, s.Post(tk))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
	require.EqualValues(t, 1, got.Load())
}

// Scenario 2: three-step chain — a task re-posts itself twice from its own
// callback; the counter must land on 3, and under a single worker the
// re-posts must run in the order they were issued.
func TestScheduler_ThreeStepChain(t *testing.T) {
	s := newTestScheduler(t)

	var counter atomic.Int32
	done := make(chan struct{})

	var cb task.Callback
	cb = func(tk *task.Task) {
		n := counter.Add(1)
		switch n {
		case 1, 2:
			tk.SetCallback(cb)
			require.NoError(t, s.Post(tk))
		case 3:
			close(done)
		}
	}

	tk := task.New(cb)
	require.NoError(t, s.Post(tk))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("chain never completed")
	}
	require.EqualValues(t, 3, counter.Load())
}

// Scenario 3: delay respected.
func TestScheduler_DelayRespected(t *testing.T) {
	s := newTestScheduler(t)

	t0 := time.Now()
	done := make(chan time.Time, 1)
	tk := task.New(func(*task.Task) { done <- time.Now() })
	require.NoError(t, s.PostDelay(tk, 20))

	select {
	case when := <-done:
		require.GreaterOrEqual(t, when.Sub(t0), 20*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("delayed task never ran")
	}
}

// Scenario 4: signal wakes waiter.
func TestScheduler_SignalWakesWaiter(t *testing.T) {
	s := newTestScheduler(t)

	var sawSignal, sawExpired atomic.Bool
	done := make(chan struct{})

	tk := task.New(func(tt *task.Task) {
		sawSignal.Store(tt.ReceiveSignal())
		sawExpired.Store(tt.IsExpired())
		close(done)
	})

	require.NoError(t, s.PostWait(tk))
	// Give the dispatcher a moment to observe the wait and park it, then
	// signal from this goroutine (a different thread than the worker).
	time.Sleep(10 * time.Millisecond)
	tk.PostSignal()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("signaled waiter never ran")
	}
	require.True(t, sawSignal.Load())
	require.False(t, sawExpired.Load())
}

// Scenario 5: wakeup without signal.
func TestScheduler_WakeupWithoutSignal(t *testing.T) {
	s := newTestScheduler(t)

	var sawSignal, sawExpired atomic.Bool
	done := make(chan struct{})

	tk := task.New(func(tt *task.Task) {
		sawSignal.Store(tt.ReceiveSignal())
		sawExpired.Store(tt.IsExpired())
		close(done)
	})

	require.NoError(t, s.PostWait(tk))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, s.PostWakeup(tk))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("woken waiter never ran")
	}
	require.False(t, sawSignal.Load())
	require.False(t, sawExpired.Load())
}

func TestScheduler_CloseDrainsPendingTasksOnce(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(2))

	var wg sync.WaitGroup
	const n = 20
	var ran atomic.Int32
	wg.Add(n)
	for i := 0; i < n; i++ {
		tk := task.New(func(*task.Task) {
			ran.Add(1)
			wg.Done()
		})
		require.NoError(t, s.Post(tk))
	}
	wg.Wait()

	require.NoError(t, s.Close())
	require.EqualValues(t, n, ran.Load())

	// Posting after Close is rejected.
	require.ErrorIs(t, s.Post(task.New(func(*task.Task) {})), ErrClosed)
}

func TestScheduler_StartTwiceFails(t *testing.T) {
	s := newTestScheduler(t)
	require.ErrorIs(t, s.Start(1), ErrAlreadyStarted)
}
