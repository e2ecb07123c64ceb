package task

import "runtime"

// Coroutine drives a stackless-coroutine-shaped Task body. Go has no native
// stackless coroutine primitive, so this implements the contract spec.md §9
// explicitly allows ("implementers may model them as state machines or as
// OS-independent generators"): the body runs in a dedicated goroutine that
// parks on a channel at every suspension point, and is resumed synchronously
// from within the Task's ordinary Callback — so from the scheduler's point of
// view a coroutine Task is indistinguishable from any other Task whose
// Callback runs to completion once per dispatch. Only one goroutine is ever
// runnable at a time (either the driving worker, blocked in <-suspend, or the
// coroutine body, blocked in <-resume), which preserves "one worker runs one
// callback to completion, then picks another."
type Coroutine struct {
	t         *Task
	resume    chan struct{}
	suspend   chan suspendMsg
	frameDone chan struct{}
}

// Task returns the Task this coroutine drives, so the body can mutate
// deadline/wait state before suspending.
func (c *Coroutine) Task() *Task { return c.t }

type suspendKind int

const (
	suspendYield suspendKind = iota
	suspendReceiveSignal
	suspendExitDelete
	suspendExitSendSignal
	suspendExitExec
)

type suspendMsg struct {
	kind suspendKind
	sig  *Signal
	fn   func(*Task)
}

// Yield suspends; the coroutine resumes on the next scheduler dispatch,
// honoring whatever deadline/wait/signal state the body set on Task() before
// calling Yield (spec.md §4.1 "Coroutine integration").
func (c *Coroutine) Yield() {
	c.suspend <- suspendMsg{kind: suspendYield}
	<-c.resume
}

// ReceiveSignal suspends until PostSignal or PostWakeup is observed, or the
// task's deadline elapses; it returns true on signal, false on deadline.
// The body must not also call SetWaiting/SetDeadline itself for this
// suspension — ReceiveSignal configures the task's wait state on its behalf.
func (c *Coroutine) ReceiveSignal() bool {
	c.t.SetWaiting(true)
	c.suspend <- suspendMsg{kind: suspendReceiveSignal}
	<-c.resume
	if c.t.IsExpired() {
		return false
	}
	return c.t.ReceiveSignal()
}

// ExitDelete resumes into a trampoline that tears down the coroutine frame
// and releases the task (the driving Callback does not re-post it). No code
// may follow this call — it never returns.
func (c *Coroutine) ExitDelete() {
	c.suspend <- suspendMsg{kind: suspendExitDelete}
	runtime.Goexit()
}

// ExitSendSignal resumes into a trampoline that, after the coroutine frame is
// destroyed, fires sig. No code may follow this call — it never returns.
func (c *Coroutine) ExitSendSignal(sig *Signal) {
	c.suspend <- suspendMsg{kind: suspendExitSendSignal, sig: sig}
	runtime.Goexit()
}

// ExitExec resumes into a trampoline that, after the coroutine frame is
// destroyed, invokes fn(task). No code may follow this call — it never
// returns.
func (c *Coroutine) ExitExec(fn func(t *Task)) {
	c.suspend <- suspendMsg{kind: suspendExitExec, fn: fn}
	runtime.Goexit()
}

// Hooks lets the scheduler package wire coroutine suspension back into its
// own Post/PostWait without task importing scheduler (which would be a
// dependency cycle, since scheduler already imports task).
type Hooks struct {
	// Post re-enters the task into the scheduler for immediate dispatch,
	// called when the body suspends via Yield.
	Post func(*Task)

	// PostWait re-enters the task as a waiter, called when the body
	// suspends via ReceiveSignal.
	PostWait func(*Task)
}

// StartCoroutine builds the Callback that drives body as a coroutine and
// wires its suspensions through hooks. Install it with t.SetCallback before
// the task's first Post.
func StartCoroutine(t *Task, body func(c *Coroutine), hooks Hooks) Callback {
	c := &Coroutine{
		t:         t,
		resume:    make(chan struct{}),
		suspend:   make(chan suspendMsg),
		frameDone: make(chan struct{}),
	}

	started := false

	return func(tt *Task) {
		if !started {
			started = true
			go func() {
				defer close(c.frameDone)
				body(c)
				// Body returned without an explicit Exit* call: treat it as
				// an implicit AsyncExitDelete.
				c.suspend <- suspendMsg{kind: suspendExitDelete}
			}()
		} else {
			c.resume <- struct{}{}
		}

		msg := <-c.suspend
		switch msg.kind {
		case suspendYield:
			if hooks.Post != nil {
				hooks.Post(tt)
			}
		case suspendReceiveSignal:
			if hooks.PostWait != nil {
				hooks.PostWait(tt)
			}
		case suspendExitDelete:
			<-c.frameDone
		case suspendExitSendSignal:
			<-c.frameDone
			if msg.sig != nil {
				msg.sig.Fire()
			}
		case suspendExitExec:
			<-c.frameDone
			if msg.fn != nil {
				msg.fn(tt)
			}
		}
	}
}
