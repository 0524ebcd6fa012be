// Package flowerr defines the runtime-wide error kinds shared by every
// FlowCoro-Go component, grounded on the teacher's eventloop/errors.go
// (sentinel + wrapper errors supporting errors.Is/errors.As, an
// AggregateError-style multi-error).
package flowerr

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors, one per error kind (tag, not type).
var (
	// ErrCancelled: cooperative cancellation was requested and observed at a
	// suspension point.
	ErrCancelled = errors.New("flowcoro: cancelled")

	// ErrTimedOut specializes ErrCancelled with a deadline cause.
	ErrTimedOut = errors.New("flowcoro: timed out")

	// ErrAllocationFailure: the slab pool is at its configured cap.
	ErrAllocationFailure = errors.New("flowcoro: allocation failure")

	// ErrShutdown: enqueue/await was attempted after the runtime stopped.
	ErrShutdown = errors.New("flowcoro: runtime shutdown")

	// ErrInvalidArgument: e.g. deallocating a foreign pointer.
	ErrInvalidArgument = errors.New("flowcoro: invalid argument")

	// ErrLogicViolation: e.g. sync_wait called from the manager's own driving
	// goroutine.
	ErrLogicViolation = errors.New("flowcoro: logic violation")
)

// TaskError wraps a panic recovered from a running coroutine body (the
// Go analogue of the spec's "user-exception" kind, captured via the
// promise's exception slot rather than propagated across goroutine
// boundaries).
type TaskError struct {
	// Cause is the recovered value if it was an error, or nil otherwise.
	Cause error
	// Panic holds the raw recovered value when it was not an error.
	Panic any
}

func (e *TaskError) Error() string {
	if e.Cause != nil {
		return "task panicked: " + e.Cause.Error()
	}
	return fmt.Sprintf("task panicked: %v", e.Panic)
}

func (e *TaskError) Unwrap() error { return e.Cause }

// NewTaskError builds a TaskError from a recovered panic value.
func NewTaskError(recovered any) *TaskError {
	if err, ok := recovered.(error); ok {
		return &TaskError{Cause: err}
	}
	return &TaskError{Panic: recovered}
}

// SettledError aggregates the per-task errors from when_all_settled /
// when_all, mirroring the teacher's AggregateError.
type SettledError struct {
	Errors []error
}

func (e *SettledError) Error() string {
	if len(e.Errors) == 0 {
		return "flowcoro: no errors"
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("flowcoro: %d task(s) failed: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap enables errors.Is/errors.As to search every contained error.
func (e *SettledError) Unwrap() []error { return e.Errors }

// Is reports true for any *SettledError target, matching the teacher's
// AggregateError.Is convention.
func (e *SettledError) Is(target error) bool {
	var other *SettledError
	return errors.As(target, &other)
}
