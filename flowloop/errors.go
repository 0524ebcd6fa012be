package flowloop

import "errors"

// Sentinel errors for Manager operations, checked with errors.Is per the
// specification's §7 error-kind taxonomy.
var (
	// ErrAlreadyRunning is returned by Run when the Manager is already running.
	ErrAlreadyRunning = errors.New("flowloop: manager is already running")

	// ErrTerminated is returned when operations are attempted on a Manager
	// that has completed shutdown.
	ErrTerminated = errors.New("flowloop: manager has terminated")

	// ErrNotRunning reports that a manager is not running. Manager's own
	// methods do not return it: ScheduleResume/ScheduleAfter accept work
	// before Run has been called and fail only with ErrTerminated.
	ErrNotRunning = errors.New("flowloop: manager is not running")

	// ErrReentrantRun is returned if Run is called from the Manager's own
	// driving goroutine.
	ErrReentrantRun = errors.New("flowloop: cannot call Run from within the manager's own goroutine")
)
