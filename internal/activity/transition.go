package activity

import "strings"

// TransitionResult is the outcome of evaluating a goal against a state.
type TransitionResult int

// Transition results.
const (
	// Illegal means the request must be rejected without side effects.
	Illegal TransitionResult = iota
	// NoOp means the activity is already where the goal would take it.
	NoOp
	// OK means the goal's effect must run.
	OK
)

func (r TransitionResult) String() string {
	switch r {
	case Illegal:
		return "illegal"
	case NoOp:
		return "noop"
	case OK:
		return "ok"
	default:
		return "unknown"
	}
}

// Control is the set of operations a goal's effect drives. The effect only
// requests work; the implementation reports the resulting state itself.
type Control interface {
	Startup() error
	ForceShutdown() error
	Activate() error
	Deactivate() error
	Shutdown() error
}

// Goal is a named lifecycle intent. Goals are process-wide values and hold no
// mutable state.
type Goal struct {
	name        string
	description string
	canApply    func(State) TransitionResult
	effect      func(State, Control) error
}

// Name returns the goal's short name.
func (g Goal) Name() string { return g.name }

// Description returns the goal's message key.
func (g Goal) Description() string { return g.description }

func (g Goal) String() string { return g.name }

// Evaluate decides whether the goal may be applied in the given state.
func (g Goal) Evaluate(state State) TransitionResult {
	if g.canApply == nil {
		return Illegal
	}
	return g.canApply(state)
}

// Attempt evaluates the goal and, only when the result is OK, runs its
// effect against ctl. Errors from the effect are returned unchanged.
func (g Goal) Attempt(state State, ctl Control) (TransitionResult, error) {
	result := g.Evaluate(state)
	if result != OK {
		return result, nil
	}
	return result, g.effect(state, ctl)
}

// Evaluate is shorthand for goal.Evaluate(state).
func Evaluate(goal Goal, state State) TransitionResult {
	return goal.Evaluate(state)
}

// The four lifecycle goals.
var (
	Startup = Goal{
		name:        "startup",
		description: "space.activity.state.transition.startup",
		canApply: func(s State) TransitionResult {
			switch {
			case s.IsRunning():
				return NoOp
			case s == StateReady, s == StateStartupFailure, s == StateShutdownFailure, s == StateCrashed:
				return OK
			default:
				return Illegal
			}
		},
		effect: func(s State, ctl Control) error {
			if s == StateShutdownFailure {
				if err := ctl.ForceShutdown(); err != nil {
					return err
				}
			}
			return ctl.Startup()
		},
	}

	Activate = Goal{
		name:        "activate",
		description: "space.activity.state.transition.activate",
		canApply: func(s State) TransitionResult {
			switch s {
			case StateRunning, StateActivateFailure:
				return OK
			case StateActive:
				return NoOp
			default:
				return Illegal
			}
		},
		effect: func(_ State, ctl Control) error {
			return ctl.Activate()
		},
	}

	Deactivate = Goal{
		name:        "deactivate",
		description: "space.activity.state.transition.deactivate",
		canApply: func(s State) TransitionResult {
			switch s {
			case StateActive, StateActivateFailure, StateDeactivateFailure:
				return OK
			case StateRunning:
				return NoOp
			default:
				return Illegal
			}
		},
		effect: func(_ State, ctl Control) error {
			return ctl.Deactivate()
		},
	}

	Shutdown = Goal{
		name:        "shutdown",
		description: "space.activity.state.transition.shutdown",
		canApply: func(s State) TransitionResult {
			switch s {
			case StateReady:
				return NoOp
			case StateDeployAttempt, StateDeployFailure, StateDoesNotExist, StateUnknown:
				return Illegal
			default:
				return OK
			}
		},
		effect: func(_ State, ctl Control) error {
			return ctl.Shutdown()
		},
	}
)

// Goals returns the four lifecycle goals.
func Goals() []Goal {
	return []Goal{Startup, Activate, Deactivate, Shutdown}
}

// GoalByName looks a goal up by name, ignoring case.
func GoalByName(name string) (Goal, bool) {
	for _, g := range Goals() {
		if strings.EqualFold(g.name, strings.TrimSpace(name)) {
			return g, true
		}
	}
	return Goal{}, false
}
