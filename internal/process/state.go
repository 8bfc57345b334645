package process

import "time"

// State represents the current state of a supervised process.
type State string

// Supervisor states.
const (
	StateNotStarted    State = "not_started"
	StateRunning       State = "running"
	StateRestarting    State = "restarting"     // exited, replacement in progress
	StateExited        State = "exited"         // exited cleanly, no restart
	StateCrashed       State = "crashed"        // exited non-zero, no restart
	StateAbandoned     State = "abandoned"      // restart policy gave up
	StateStartupFailed State = "startup_failed" // first launch failed
	StateShutdown      State = "shutdown"
)

// IsAlive reports whether a supervisor in this state reports itself as
// running.
func (s State) IsAlive() bool {
	return s == StateRunning || s == StateRestarting
}

// Info contains information about a supervised process.
type Info struct {
	Name         string
	State        State
	PID          int
	StartedAt    time.Time
	RestartCount int
	LastExitCode int
	LastError    error
}
