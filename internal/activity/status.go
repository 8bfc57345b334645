package activity

import (
	"errors"
	"strings"
)

// Status is the canonical report of an activity's lifecycle position.
type Status struct {
	State       State
	Description string
	Cause       error
}

// NewStatus builds a status. An empty description falls back to the
// state's message key.
func NewStatus(state State, description string, cause error) Status {
	if description == "" {
		description = state.Description()
	}
	return Status{State: state, Description: description, Cause: cause}
}

// Err returns the underlying cause, or nil.
func (s Status) Err() error {
	return s.Cause
}

// Equal reports whether two statuses have the same state, description and
// cause identity.
func (s Status) Equal(other Status) bool {
	return s.State == other.State &&
		s.Description == other.Description &&
		errors.Is(s.Cause, other.Cause) && errors.Is(other.Cause, s.Cause)
}

// CombinedDetail renders the description followed by one line per error in
// the cause chain. Joined errors are expanded depth first.
func (s Status) CombinedDetail() string {
	var b strings.Builder
	b.WriteString(s.Description)
	if s.Cause != nil {
		writeCause(&b, s.Cause, 1)
	}
	return b.String()
}

func (s Status) String() string {
	if s.Cause != nil {
		return s.State.String() + ": " + s.Description + ": " + s.Cause.Error()
	}
	return s.State.String() + ": " + s.Description
}

func writeCause(b *strings.Builder, err error, depth int) {
	for err != nil {
		b.WriteByte('\n')
		b.WriteString(strings.Repeat("  ", depth-1))
		b.WriteString("caused by: ")
		b.WriteString(err.Error())

		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				writeCause(b, inner, depth+1)
			}
			return
		case interface{ Unwrap() error }:
			err = u.Unwrap()
			depth++
		default:
			return
		}
	}
}
