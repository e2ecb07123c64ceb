// Package tagerr implements a correlation-tagged error; no other package in
// this module imports it. It is a Fatal I/O or Programmer error (spec.md §7) wrapped with the
// id of the task/IOTask that produced it, so a consumer can errors.As it back
// out. Adapted from the teacher repository's error_tagging.go
// (TaskMetaError/taskTaggedError/ExtractTaskID), generalized from
// task-index-in-a-batch to "any task or IOTask id" since TaskScheduler and
// IOCore tasks are not part of a batch the way the teacher's Map/RunAll
// inputs are.
package tagerr

import (
	"errors"
	"fmt"
)

// Tagged exposes correlation metadata for a failure originating from a Task
// or IOTask.
type Tagged interface {
	error
	Unwrap() error
	ID() (any, bool)
}

type tagged struct {
	err error
	id  any
}

// Wrap attaches id to err, returning nil if err is nil.
func Wrap(err error, id any) error {
	if err == nil {
		return nil
	}
	return &tagged{err: err, id: id}
}

func (e *tagged) Error() string { return e.err.Error() }
func (e *tagged) Unwrap() error { return e.err }

func (e *tagged) ID() (any, bool) {
	if e.id == nil {
		return nil, false
	}
	return e.id, true
}

func (e *tagged) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "task(id=%v): %+v", e.id, e.err)
			return
		}
		fallthrough
	case 's':
		_, _ = fmt.Fprint(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// ExtractID returns the id attached to err, if any Tagged is present in its
// chain.
func ExtractID(err error) (any, bool) {
	var t Tagged
	if errors.As(err, &t) {
		return t.ID()
	}
	return nil, false
}
