package component

import (
	"errors"
	"fmt"
)

// Error codes for collection operations.
const (
	ErrCodeDuplicate         = "DUPLICATE_COMPONENT"
	ErrCodeAlreadyConfigured = "ALREADY_CONFIGURED"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeConfigureFailed   = "CONFIGURE_FAILED"
	ErrCodeStartFailed       = "START_FAILED"
	ErrCodeNotFound          = "NOT_FOUND"
)

// ErrComponentFailure is matched by errors raised from a component's own
// Configure or Start.
var ErrComponentFailure = errors.New("component failure")

// Error is a collection failure. Component is empty when the failure is not
// tied to one component.
type Error struct {
	Code      string
	Component string
	Message   string
	Cause     error
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

// Is reports whether target is ErrComponentFailure and the error came from
// a component.
func (e *Error) Is(target error) bool {
	return target == ErrComponentFailure && (e.Code == ErrCodeConfigureFailed || e.Code == ErrCodeStartFailed)
}

func newError(code, component, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Component: component,
		Message:   message,
		Cause:     cause,
	}
}
