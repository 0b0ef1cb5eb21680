package supervisor

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyStarted is returned by Start when this supervisor already owns a validator
	ErrAlreadyStarted = errors.New("amman was already started")

	// ErrAlreadyRunningExternally is returned by Start when the relay reports a
	// validator this supervisor did not spawn. See AlreadyRunningError.
	ErrAlreadyRunningExternally = errors.New("amman already running on this machine")

	// ErrNotRunning is returned by Kill when nothing is known to be running
	ErrNotRunning = errors.New("amman is not running and thus cannot be killed")

	// ErrStartTimeout is returned when a spawned validator did not become ready in time
	ErrStartTimeout = errors.New("amman did not become ready in time")

	// ErrExitedEarly is returned when the spawned process exited before it was ready. See ExitError.
	ErrExitedEarly = errors.New("amman exited before becoming ready")
)

// AlreadyRunningError carries the pid of a validator started by someone else.
type AlreadyRunningError struct {
	Pid int
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("amman already running on this machine with pid %d, please kill it first and then continue", e.Pid)
}

func (e *AlreadyRunningError) Is(target error) bool {
	return target == ErrAlreadyRunningExternally
}

// ExitError describes a spawned process that exited on its own.
type ExitError struct {
	Pid  int
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("amman process %d exited before becoming ready (exit code %d): %v", e.Pid, e.Code, e.Err)
	}
	return fmt.Sprintf("amman process %d exited before becoming ready (exit code %d)", e.Pid, e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func (e *ExitError) Is(target error) bool {
	return target == ErrExitedEarly
}
