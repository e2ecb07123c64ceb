package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/ygrebnov/asyncio/task"
)

// RunAll submits one Task per fn, waits for all of them to run exactly once,
// and returns their results in input order. Adapted from the teacher's
// RunAll/reorderer pair (run_all.go, reorderer.go, preserve_order.go): because
// every fn here runs exactly once as a scheduler Task rather than streaming
// through a completion channel, order preservation only needs one slot per
// input index instead of the teacher's out-of-order completion buffer.
func RunAll[R any](ctx context.Context, s *Scheduler, fns []func(context.Context) (R, error)) ([]R, error) {
	if len(fns) == 0 {
		return nil, nil
	}

	results := make([]R, len(fns))
	errs := make([]error, len(fns))

	var wg sync.WaitGroup
	wg.Add(len(fns))

	for i, fn := range fns {
		i, fn := i, fn
		t := task.New(func(*task.Task) {
			defer wg.Done()
			r, err := fn(ctx)
			results[i] = r
			errs[i] = err
		})
		if err := s.Post(t); err != nil {
			wg.Done()
			errs[i] = err
		}
	}

	wg.Wait()
	return results, errors.Join(errs...)
}

// Map fans items out through fn using RunAll and returns their results in
// input order, adapted from the teacher's map.go.
func Map[T, R any](ctx context.Context, s *Scheduler, items []T, fn func(context.Context, T) (R, error)) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}
	fns := make([]func(context.Context) (R, error), len(items))
	for i := range items {
		item := items[i]
		fns[i] = func(c context.Context) (R, error) { return fn(c, item) }
	}
	return RunAll(ctx, s, fns)
}

// ForEach applies fn to each item concurrently via the scheduler and returns
// the joined error, adapted from the teacher's foreach.go.
func ForEach[T any](ctx context.Context, s *Scheduler, items []T, fn func(context.Context, T) error) error {
	if len(items) == 0 {
		return nil
	}
	fns := make([]func(context.Context) (struct{}, error), len(items))
	for i := range items {
		item := items[i]
		fns[i] = func(c context.Context) (struct{}, error) { return struct{}{}, fn(c, item) }
	}
	_, err := RunAll(ctx, s, fns)
	return err
}
