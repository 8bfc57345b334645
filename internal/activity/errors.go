package activity

import (
	"errors"
	"fmt"
)

// Error codes for lifecycle requests.
const (
	ErrCodeIllegalTransition = "ILLEGAL_TRANSITION"
	ErrCodeStartupFailed     = "STARTUP_FAILED"
	ErrCodeShutdownFailed    = "SHUTDOWN_FAILED"
	ErrCodeHookFailed        = "HOOK_FAILED"
)

// ErrIllegalTransition is matched by every rejected goal request.
var ErrIllegalTransition = errors.New("illegal transition")

// Error is a lifecycle failure with a code.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IllegalTransitionError reports a goal that cannot be applied in the
// activity's current state.
type IllegalTransitionError struct {
	Goal  Goal
	State State
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot %s activity in state %s", e.Goal.Name(), e.State)
}

// Is reports whether target is ErrIllegalTransition.
func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}
