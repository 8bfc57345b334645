package activity

import (
	"fmt"
	"strings"
)

// State is the lifecycle state of an activity.
type State int

// Activity states.
const (
	StateUnknown State = iota
	StateDoesNotExist
	StateDeployAttempt
	StateDeployFailure
	StateReady
	StateStartupAttempt
	StateStartupFailure
	StateRunning
	StateActivateAttempt
	StateActivateFailure
	StateActive
	StateDeactivateAttempt
	StateDeactivateFailure
	StateShutdownAttempt
	StateShutdownFailure
	StateCrashed
	StateDeleteAttempt

	numStates
)

// facets holds the three orthogonal properties of a state.
type facets struct {
	name         string
	running      bool
	err          bool
	transitional bool
}

var stateTable = [numStates]facets{
	StateUnknown:           {name: "unknown"},
	StateDoesNotExist:      {name: "does_not_exist"},
	StateDeployAttempt:     {name: "deploy_attempt", transitional: true},
	StateDeployFailure:     {name: "deploy_failure", err: true},
	StateReady:             {name: "ready"},
	StateStartupAttempt:    {name: "startup_attempt", transitional: true},
	StateStartupFailure:    {name: "startup_failure", err: true},
	StateRunning:           {name: "running", running: true},
	StateActivateAttempt:   {name: "activate_attempt", running: true, transitional: true},
	StateActivateFailure:   {name: "activate_failure", running: true, err: true},
	StateActive:            {name: "active", running: true},
	StateDeactivateAttempt: {name: "deactivate_attempt", running: true, transitional: true},
	StateDeactivateFailure: {name: "deactivate_failure", running: true, err: true},
	StateShutdownAttempt:   {name: "shutdown_attempt", running: true, transitional: true},
	StateShutdownFailure:   {name: "shutdown_failure", err: true},
	StateCrashed:           {name: "crashed", err: true},
	StateDeleteAttempt:     {name: "delete_attempt", transitional: true},
}

// attemptOutcomes maps each transitional state to its target and failure.
var attemptOutcomes = map[State][2]State{
	StateDeployAttempt:     {StateReady, StateDeployFailure},
	StateStartupAttempt:    {StateRunning, StateStartupFailure},
	StateActivateAttempt:   {StateActive, StateActivateFailure},
	StateDeactivateAttempt: {StateRunning, StateDeactivateFailure},
	StateShutdownAttempt:   {StateReady, StateShutdownFailure},
	StateDeleteAttempt:     {StateDoesNotExist, StateUnknown},
}

func (s State) facets() facets {
	if s < 0 || s >= numStates {
		return stateTable[StateUnknown]
	}
	return stateTable[s]
}

// String returns the snake_case name of the state.
func (s State) String() string {
	return s.facets().name
}

// Description returns the message key used when reporting the state.
func (s State) Description() string {
	return "space.activity.state." + strings.ReplaceAll(s.String(), "_", ".")
}

// IsRunning reports whether the activity is considered live in this state.
func (s State) IsRunning() bool {
	return s.facets().running
}

// IsError reports whether the state represents a failure.
func (s State) IsError() bool {
	return s.facets().err
}

// IsTransitional reports whether the activity is mid-operation and will not
// remain in this state.
func (s State) IsTransitional() bool {
	return s.facets().transitional
}

// Target returns the state a transitional state resolves to on success.
// Stable states return themselves.
func (s State) Target() State {
	if o, ok := attemptOutcomes[s]; ok {
		return o[0]
	}
	return s
}

// Failure returns the state a transitional state resolves to on failure.
// Stable states return themselves.
func (s State) Failure() State {
	if o, ok := attemptOutcomes[s]; ok {
		return o[1]
	}
	return s
}

// AllStates returns every defined state in declaration order.
func AllStates() []State {
	states := make([]State, 0, numStates)
	for s := StateUnknown; s < numStates; s++ {
		states = append(states, s)
	}
	return states
}

// ParseState converts a state name as returned by String back to a State.
func ParseState(name string) (State, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for s := StateUnknown; s < numStates; s++ {
		if stateTable[s].name == normalized {
			return s, nil
		}
	}
	return StateUnknown, fmt.Errorf("unknown activity state %q", name)
}
