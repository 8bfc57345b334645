package process

import (
	"errors"
	"fmt"
)

var (
	// ErrLaunch is matched by every LaunchError.
	ErrLaunch = errors.New("process launch failed")

	// ErrRestartExhausted is recorded when a restart policy gives up or the
	// restart window closes before a replacement became healthy.
	ErrRestartExhausted = errors.New("restart attempts exhausted")
)

// LaunchError reports that the OS could not start a command.
type LaunchError struct {
	Path  string
	Cause error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("can't start native application %s: %v", e.Path, e.Cause)
}

func (e *LaunchError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrLaunch.
func (e *LaunchError) Is(target error) bool {
	return target == ErrLaunch
}
