package iocore

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ygrebnov/asyncio/internal/clock"
	"github.com/ygrebnov/asyncio/internal/queue"
	"github.com/ygrebnov/asyncio/internal/waitheap"
	"github.com/ygrebnov/asyncio/iocore/backend"
	"github.com/ygrebnov/asyncio/metrics"
)

// Core runs one dispatcher goroutine plus ThreadCount I/O worker goroutines
// multiplexing IOTasks over a single kernel backend, per spec.md §4.2. Its
// shape mirrors package scheduler's Scheduler: a lock-free front queue feeds
// the dispatcher, a waiting heap holds tasks pending a future deadline, and a
// mutex/condvar ready queue hands work to workers. The dispatcher additionally
// blocks in the backend's kernel wait call instead of a plain timer, and
// completions/readiness edges (not just Post* calls) can move a task to
// READY directly.
type Core struct {
	cfg Config

	be backend.Backend

	front *queue.Front[*IOTask]
	ready *queue.Ready[*IOTask]
	heap  *waitheap.Heap[*IOTask] // dispatcher-goroutine-owned only

	mu        sync.RWMutex
	byHandle  map[backend.Handle]*IOTask

	startOnce sync.Once
	started   atomic.Bool
	closing   atomic.Bool
	closeOnce sync.Once

	eg      *errgroup.Group
	cancel  context.CancelFunc
	stopped chan struct{}

	socketsAttached   metrics.Counter
	eventsDispatched  metrics.Counter
	acceptRetries     metrics.Counter
	readyDepth        metrics.UpDownCounter
	operationsInFlight metrics.UpDownCounter
}

// New creates a new Core. The backend's kernel event source is created here
// so AttachSocket can register sockets before Start is called.
//
// Deprecated: this Config-based constructor will be deprecated in a future
// release. Prefer NewOptions(opts...), the functional-options constructor.
func New(cfg *Config) (*Core, error) {
	if cfg == nil {
		c := defaultConfig()
		cfg = &c
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	be, err := cfg.Backend()
	if err != nil {
		return nil, err
	}
	if err := be.CreateEventSource(); err != nil {
		return nil, err
	}

	c := &Core{
		cfg:      *cfg,
		be:       be,
		front:    queue.NewFront[*IOTask](),
		ready:    queue.NewReady[*IOTask](),
		heap:     waitheap.New[*IOTask](),
		byHandle: make(map[backend.Handle]*IOTask),
		stopped:  make(chan struct{}),
	}

	mp := cfg.MetricsProvider
	backendAttr := metrics.BackendAttribute(be.Name())
	c.socketsAttached = mp.Counter(cfg.Name+".sockets.attached", metrics.WithDescription("sockets registered with the backend"), backendAttr)
	c.eventsDispatched = mp.Counter(cfg.Name+".events.dispatched", metrics.WithDescription("OnEvent invocations"), backendAttr)
	c.acceptRetries = mp.Counter(cfg.Name+".accept.retries", metrics.WithDescription("transient accept retries"), backendAttr)
	c.readyDepth = mp.UpDownCounter(cfg.Name+".ready.depth", metrics.WithDescription("ready queue depth"), backendAttr)
	c.operationsInFlight = mp.UpDownCounter(cfg.Name+".operations.inflight", metrics.WithDescription("submitted, uncompleted operations"), backendAttr)

	return c, nil
}

// Start launches the dispatcher and n I/O worker goroutines. Start may be
// called only once; subsequent calls return ErrAlreadyStarted.
func (c *Core) Start(n uint) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if n == 0 {
		n = c.cfg.ThreadCount
	}
	if n == 0 {
		n = uint(runtime.GOMAXPROCS(0))
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	eg, egCtx := errgroup.WithContext(ctx)
	c.eg = eg

	eg.Go(func() error {
		c.runDispatcher(egCtx)
		return nil
	})
	for i := uint(0); i < n; i++ {
		eg.Go(func() error {
			c.runWorker(egCtx)
			return nil
		})
	}

	return nil
}

// AttachSocket registers fd with the backend in edge-triggered mode
// (readiness backends) or by association (completion backends) and binds
// sub as the task's subscriber for its entire lifecycle, per spec.md §4.2
// "Kernel registration" and §3.2's "subscriber set exactly once".
func (c *Core) AttachSocket(fd int, sub Subscriber) (*IOTask, error) {
	if sub == nil {
		return nil, ErrNilSubscriber
	}
	if fd < 0 {
		return nil, ErrInvalidSocket
	}
	if c.closing.Load() {
		return nil, ErrClosed
	}

	h, err := c.be.RegisterSocket(fd)
	if err != nil {
		return nil, err
	}

	t := NewIOTask().WithID(uuid.NewString())
	t.attachSocket(fd, h, sub)

	c.mu.Lock()
	c.byHandle[h] = t
	c.mu.Unlock()

	c.socketsAttached.Add(1)
	c.postEntry(t)
	return t, nil
}

// PostClose implements spec.md §4.2's per-task close protocol step 1: any
// goroutine may call this; the first caller wins, and the dispatcher
// observes CLOSING on its next tick and begins draining outstanding
// operations.
func (c *Core) PostClose(t *IOTask) error {
	if t == nil {
		return ErrNilTask
	}
	if !t.RequestClose() {
		return nil // already requested
	}
	return c.postEntry(t)
}

// PostWakeup implements spec.md §4.2 "Post contracts": transitions a
// PENDING/WAITING task to READY via a CAS loop that tolerates a concurrent
// close (observing CLOSING/CLOSED is a no-op).
func (c *Core) PostWakeup(t *IOTask) error {
	if t == nil {
		return ErrNilTask
	}
	for {
		cur := t.Status()
		switch cur {
		case IOReady, IOClosing, IOClosed:
			return nil
		default:
			if t.CAS(cur, IOReady) {
				return c.postEntry(t)
			}
		}
	}
}

// postEntry pushes t to the front queue and wakes the dispatcher out of its
// kernel wait, if it's currently blocked there.
func (c *Core) postEntry(t *IOTask) error {
	if c.closing.Load() {
		return ErrClosed
	}
	c.front.Push(t)
	_ = c.be.Interrupt()
	return nil
}

// Close drains the front queue once and runs every ready-queue task to
// completion once more, then joins the dispatcher and worker goroutines.
// Close is idempotent and safe for concurrent callers.
func (c *Core) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		if !c.started.Load() {
			_ = c.be.DestroyEventSource()
			close(c.stopped)
			return
		}
		_ = c.be.Interrupt()
		if c.cancel != nil {
			c.cancel()
		}
		_ = c.eg.Wait() // dispatcher closes the ready queue during its shutdown drain
		_ = c.be.DestroyEventSource()
		close(c.stopped)
	})
	return nil
}

// Stopped returns a channel closed once Close has fully drained the Core.
func (c *Core) Stopped() <-chan struct{} { return c.stopped }

// taskFor resolves a backend.Handle back to its IOTask.
func (c *Core) taskFor(h backend.Handle) (*IOTask, bool) {
	c.mu.RLock()
	t, ok := c.byHandle[h]
	c.mu.RUnlock()
	return t, ok
}

// forgetHandle removes h's task mapping, called once a task reaches CLOSED.
func (c *Core) forgetHandle(h backend.Handle) {
	c.mu.Lock()
	delete(c.byHandle, h)
	c.mu.Unlock()
}

// sleepTimeout computes how long the dispatcher's next backend.Wait call may
// block: until the nearest heap deadline, capped so Close's Interrupt is
// never starved for too long.
func (c *Core) sleepTimeout() time.Duration {
	top, ok := c.heap.Peek()
	if !ok {
		return time.Hour
	}
	if d := clock.DurationUntil(top.Deadline()); d < time.Hour {
		return d
	}
	return time.Hour
}
