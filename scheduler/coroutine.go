package scheduler

import "github.com/ygrebnov/asyncio/task"

// PostCoroutine builds a Task whose callback drives body as a coroutine
// (task.StartCoroutine), wires its suspensions back into this Scheduler via
// task.Hooks, and posts it. It returns the Task so the caller can attach an
// id/name or a deadline before the first dispatch.
func (s *Scheduler) PostCoroutine(body func(c *task.Coroutine)) (*task.Task, error) {
	t := task.New(nil)
	t.SetCallback(task.StartCoroutine(t, body, task.Hooks{
		Post:     func(tt *task.Task) { _ = s.Post(tt) },
		PostWait: func(tt *task.Task) { _ = s.PostWait(tt) },
	}))
	if err := s.Post(t); err != nil {
		return nil, err
	}
	return t, nil
}
