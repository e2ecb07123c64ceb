package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ygrebnov/asyncio/task"
)

func TestScheduler_PostOneShot(t *testing.T) {
	s := newTestScheduler(t)

	done := make(chan int, 1)
	require.NoError(t, s.PostOneShot(func(*task.Task) { done <- 42 }))

	require.Equal(t, 42, <-done)
}

func TestMap_PreservesInputOrder(t *testing.T) {
	s := newTestScheduler(t)

	items := []int{5, 4, 3, 2, 1}
	results, err := Map(context.Background(), s, items, func(_ context.Context, n int) (int, error) {
		return n * n, nil
	})
	require.NoError(t, err)
	require.Equal(t, []int{25, 16, 9, 4, 1}, results)
}

func TestForEach_JoinsErrors(t *testing.T) {
	s := newTestScheduler(t)

	boom := errors.New("boom")
	err := ForEach(context.Background(), s, []int{1, 2, 3}, func(_ context.Context, n int) error {
		if n == 2 {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)
}

func TestRunAll_Empty(t *testing.T) {
	s := newTestScheduler(t)
	results, err := RunAll[int](context.Background(), s, nil)
	require.NoError(t, err)
	require.Nil(t, results)
}
