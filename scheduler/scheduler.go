package scheduler

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ygrebnov/asyncio/internal/clock"
	"github.com/ygrebnov/asyncio/internal/queue"
	"github.com/ygrebnov/asyncio/internal/waitheap"
	"github.com/ygrebnov/asyncio/metrics"
	"github.com/ygrebnov/asyncio/task"
)

// Scheduler dispatches Tasks posted from any goroutine to a pool of worker
// goroutines, honoring deadlines, wait flags and signals per spec.md §4.1.
// One dispatcher goroutine owns timing and routing; ThreadCount worker
// goroutines run callbacks.
type Scheduler struct {
	cfg Config

	front *queue.Front[*task.Task]
	ready *queue.Ready[*task.Task]
	heap  *waitheap.Heap[*task.Task] // dispatcher-goroutine-owned only

	wake chan struct{} // 1-buffered: poke the dispatcher out of its sleep

	startOnce sync.Once
	started   atomic.Bool
	closing   atomic.Bool
	closeOnce sync.Once

	eg     *errgroup.Group
	cancel context.CancelFunc
	stopped chan struct{}

	tasksPosted     metrics.Counter
	tasksDispatched metrics.Counter
	tasksExpired    metrics.Counter
	readyDepth      metrics.UpDownCounter
}

// New creates a new Scheduler.
//
// Deprecated: this Config-based constructor will be deprecated in a future
// release. Prefer NewOptions(opts...), the functional-options constructor.
func New(cfg *Config) (*Scheduler, error) {
	if cfg == nil {
		c := defaultConfig()
		cfg = &c
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	s := &Scheduler{
		cfg:     *cfg,
		front:   queue.NewFront[*task.Task](),
		ready:   queue.NewReady[*task.Task](),
		heap:    waitheap.New[*task.Task](),
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}

	mp := cfg.MetricsProvider
	s.tasksPosted = mp.Counter(cfg.Name+".tasks.posted", metrics.WithDescription("tasks accepted via Post*"))
	s.tasksDispatched = mp.Counter(cfg.Name+".tasks.dispatched", metrics.WithDescription("task callbacks invoked"))
	s.tasksExpired = mp.Counter(cfg.Name+".tasks.expired", metrics.WithDescription("tasks dispatched due to deadline"))
	s.readyDepth = mp.UpDownCounter(cfg.Name+".ready.depth", metrics.WithDescription("ready queue depth"))

	return s, nil
}

// Start launches the dispatcher and n worker goroutines. Start may be called
// only once; subsequent calls return ErrAlreadyStarted.
func (s *Scheduler) Start(n uint) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if n == 0 {
		n = s.cfg.ThreadCount
	}
	if n == 0 {
		n = uint(runtime.GOMAXPROCS(0))
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	eg, egCtx := errgroup.WithContext(ctx)
	s.eg = eg

	eg.Go(func() error {
		s.runDispatcher(egCtx)
		return nil
	})
	for i := uint(0); i < n; i++ {
		eg.Go(func() error {
			s.runWorker(egCtx)
			return nil
		})
	}

	return nil
}

// Post queues task for dispatch. The task's deadline (if previously set via
// Set*) is honored as-is; a fresh task with no deadline runs as soon as the
// dispatcher observes it.
func (s *Scheduler) Post(t *task.Task) error {
	return s.post(t, false)
}

// PostDelay merges a relative deadline (now + delayMs) into t, additive-
// minimum per spec.md §4.1, then posts it.
func (s *Scheduler) PostDelay(t *task.Task, delayMs int64) error {
	t.MergeDeadline(clock.NowMillis() + delayMs)
	return s.post(t, false)
}

// PostDeadline merges an absolute deadline into t, additive-minimum, then
// posts it.
func (s *Scheduler) PostDeadline(t *task.Task, deadlineMillis int64) error {
	t.MergeDeadline(deadlineMillis)
	return s.post(t, false)
}

// PostWait queues t with is_waiting=true: its callback will not run again on
// mere rescheduling, only on an explicit wakeup, signal, or deadline.
func (s *Scheduler) PostWait(t *task.Task) error {
	t.SetWaiting(true)
	return s.post(t, false)
}

// PostOneShot wraps cb in a transient Task that runs once and then deletes
// itself.
func (s *Scheduler) PostOneShot(cb task.Callback) error {
	if cb == nil {
		return ErrNilCallback
	}
	var t *task.Task
	t = task.New(func(tk *task.Task) {
		cb(tk)
		tk.SetStatus(task.Pending) // released; dispatcher/worker touch it no further
	})
	return s.post(t, true)
}

// PostWakeup implements spec.md §4.1's per-task PostWakeup: transitions a
// PENDING or WAITING task straight to READY with no signal involved. If t is
// already READY it is already guaranteed to run again; if t is IN_EXEC the
// request is recorded and honored as one more execution once the current one
// finishes (see runOne). PostWakeup on a task the scheduler has already
// released is a harmless no-op.
func (s *Scheduler) PostWakeup(t *task.Task) error {
	if t == nil {
		return ErrNilTask
	}

	switch t.Status() {
	case task.Ready:
		return nil
	case task.InExec:
		t.RequestWakeup()
		return nil
	default:
		t.RequestWakeup()
		return s.post(t, false)
	}
}

func (s *Scheduler) post(t *task.Task, oneShot bool) error {
	if t == nil {
		return ErrNilTask
	}
	if s.closing.Load() {
		return ErrClosed
	}

	if _, ok := t.ID(); !ok {
		t.WithID(uuid.NewString())
	}

	s.front.Push(t)
	s.tasksPosted.Add(1)

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close drains the front queue once and runs every ready-queue task to
// completion once more (no new waits honored), then joins the dispatcher and
// worker goroutines. Close is idempotent and safe for concurrent callers.
func (s *Scheduler) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		if !s.started.Load() {
			close(s.stopped)
			return
		}
		select {
		case s.wake <- struct{}{}:
		default:
		}
		if s.cancel != nil {
			s.cancel()
		}
		_ = s.eg.Wait() // dispatcher closes the ready queue during its shutdown drain
		close(s.stopped)
	})
	return nil
}

// Stopped returns a channel closed once Close has fully drained the
// scheduler.
func (s *Scheduler) Stopped() <-chan struct{} { return s.stopped }
