package task

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTask_StatusCAS(t *testing.T) {
	tk := New(func(*Task) {})
	require.Equal(t, Pending, tk.Status())

	require.True(t, tk.CAS(Pending, InFrontQueue))
	require.Equal(t, InFrontQueue, tk.Status())

	// CAS from the wrong state fails and leaves status untouched.
	require.False(t, tk.CAS(Pending, Ready))
	require.Equal(t, InFrontQueue, tk.Status())
}

func TestTask_DeadlineIsAdditiveMinimum(t *testing.T) {
	tk := New(func(*Task) {})
	tk.SetDeadline(100)
	tk.MergeDeadline(50)
	require.EqualValues(t, 50, tk.Deadline())

	// Merging a later deadline must not raise the effective deadline.
	tk.MergeDeadline(200)
	require.EqualValues(t, 50, tk.Deadline())
}

func TestTask_AdjustDeadlineNeverRaises(t *testing.T) {
	tk := New(func(*Task) {})
	tk.SetDeadline(100)
	tk.AdjustDeadline(200)
	require.EqualValues(t, 100, tk.Deadline())

	tk.AdjustDeadline(10)
	require.EqualValues(t, 10, tk.Deadline())
}

func TestTask_SignalCollapsesToOne(t *testing.T) {
	tk := New(func(*Task) {})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tk.PostSignal()
		}()
	}
	wg.Wait()

	require.True(t, tk.ReceiveSignal())
	// A second receive without an intervening signal observes nothing.
	require.False(t, tk.ReceiveSignal())
}

func TestTask_ExpiredClearsLazily(t *testing.T) {
	tk := New(func(*Task) {})
	tk.SetExpired(true)
	require.True(t, tk.IsExpired())
	// A second dispatch that doesn't explicitly clear still observes it set,
	// matching the documented lazy-clear convention (DESIGN.md Open Question).
	require.True(t, tk.IsExpired())
	tk.ClearExpired()
	require.False(t, tk.IsExpired())
}

func TestTask_HeapIndexDefaultsToMinusOne(t *testing.T) {
	tk := New(func(*Task) {})
	require.Equal(t, -1, tk.HeapIndex())
	tk.SetHeapIndex(3)
	require.Equal(t, 3, tk.HeapIndex())
}
