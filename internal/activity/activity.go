package activity

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/liveactivity/internal/component"
	"github.com/smazurov/liveactivity/internal/config"
	"github.com/smazurov/liveactivity/internal/events"
	"github.com/smazurov/liveactivity/internal/logging"
	"github.com/smazurov/liveactivity/internal/metrics"
)

// Status descriptions set by the host itself.
const (
	DescriptionShutdownFailures     = "Failures during shutdown"
	DescriptionComponentNotRunning  = "Activity component not running"
	DescriptionForcedShutdownFailed = "Forced shutdown failed"
)

// ForcedShutdownPolicy decides what Startup does when the cleanup of an
// earlier failed shutdown also fails.
type ForcedShutdownPolicy int

// Forced shutdown policies.
const (
	// ForcedShutdownIgnore logs the failure and starts anyway.
	ForcedShutdownIgnore ForcedShutdownPolicy = iota
	// ForcedShutdownAbort fails the startup request and leaves the activity
	// in StateShutdownFailure.
	ForcedShutdownAbort
)

// Hook runs when the activity is activated or deactivated.
type Hook func() error

// Clock supplies status timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Option configures a LiveActivity.
type Option func(*LiveActivity)

// WithUUID sets the activity's identifier. Defaults to a random UUID.
func WithUUID(id string) Option {
	return func(a *LiveActivity) { a.id = id }
}

// WithLogger sets the activity's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *LiveActivity) { a.logger = logger }
}

// WithEventBus publishes status changes and component errors to bus.
func WithEventBus(bus *events.Bus) Option {
	return func(a *LiveActivity) { a.bus = bus }
}

// WithClock sets the clock used for status timestamps.
func WithClock(clock Clock) Option {
	return func(a *LiveActivity) { a.clock = clock }
}

// WithConfig sets the configuration handed to the components on startup.
func WithConfig(cfg config.Provider) Option {
	return func(a *LiveActivity) { a.cfg = cfg }
}

// WithActivateHook sets the hook run by the activate goal.
func WithActivateHook(h Hook) Option {
	return func(a *LiveActivity) { a.onActivate = h }
}

// WithDeactivateHook sets the hook run by the deactivate goal.
func WithDeactivateHook(h Hook) Option {
	return func(a *LiveActivity) { a.onDeactivate = h }
}

// WithForcedShutdownPolicy sets the forced shutdown policy.
func WithForcedShutdownPolicy(p ForcedShutdownPolicy) Option {
	return func(a *LiveActivity) { a.forced = p }
}

// LiveActivity hosts one activity: it owns the component collection, applies
// lifecycle goals to it and publishes the resulting status.
//
// Goal requests are serialized; Status may be read from any goroutine.
type LiveActivity struct {
	id           string
	name         string
	components   *component.Collection
	cfg          config.Provider
	logger       *slog.Logger
	bus          *events.Bus
	clock        Clock
	onActivate   Hook
	onDeactivate Hook
	forced       ForcedShutdownPolicy

	reqMu sync.Mutex

	mu     sync.RWMutex
	status Status
	since  time.Time
}

// New creates an activity in StateReady. The activity becomes the error
// sink of components.
func New(name string, components *component.Collection, opts ...Option) *LiveActivity {
	a := &LiveActivity{
		name:       name,
		components: components,
		logger:     logging.GetLogger("activity"),
		clock:      systemClock{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.id == "" {
		a.id = uuid.NewString()
	}
	if a.cfg == nil {
		a.cfg = config.Map{}
	}
	a.logger = a.logger.With("activity", name, "uuid", a.id)

	a.status = NewStatus(StateReady, "", nil)
	a.since = a.clock.Now()
	metrics.SetActivityState(a.name, int(StateReady))

	components.SetErrorSink(a)
	return a
}

// ID returns the activity's UUID.
func (a *LiveActivity) ID() string { return a.id }

// Name returns the activity's name.
func (a *LiveActivity) Name() string { return a.name }

// Components returns the activity's component collection.
func (a *LiveActivity) Components() *component.Collection { return a.components }

// Status returns the current status.
func (a *LiveActivity) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Since returns when the current status was set.
func (a *LiveActivity) Since() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.since
}

// Request applies goal to the activity. An Illegal result is returned with
// an *IllegalTransitionError; NoOp does nothing. For OK results the returned
// error is the effect's failure, if any, and the status has already been
// updated to reflect it.
func (a *LiveActivity) Request(goal Goal) (TransitionResult, error) {
	a.reqMu.Lock()
	defer a.reqMu.Unlock()

	state := a.Status().State
	result, err := goal.Attempt(state, lifecycle{a})
	metrics.RecordTransition(goal.Name(), result.String())

	switch result {
	case Illegal:
		a.logger.Warn("Rejected lifecycle request", "goal", goal.Name(), "state", state)
		return result, &IllegalTransitionError{Goal: goal, State: state}
	case NoOp:
		a.logger.Debug("Lifecycle request already satisfied", "goal", goal.Name(), "state", state)
	default:
		if err != nil {
			a.logger.Error("Lifecycle request failed", "goal", goal.Name(), "error", err)
		}
	}
	return result, err
}

// CheckHealth verifies that a running activity still has every component
// running. If not, the remaining components are stopped and the activity is
// marked crashed. It returns false only when it marked the activity crashed.
// A check that would wait on an in-flight request is skipped.
func (a *LiveActivity) CheckHealth() bool {
	if !a.reqMu.TryLock() {
		return true
	}
	defer a.reqMu.Unlock()

	state := a.Status().State
	if !state.IsRunning() || state.IsTransitional() {
		return true
	}
	if a.components.AllRunning() {
		return true
	}

	a.logger.Error("Activity component not running, shutting activity down")
	if !a.components.StopAll() {
		a.logger.Warn("Not every component stopped cleanly after crash")
	}
	a.setStatus(StateCrashed, DescriptionComponentNotRunning, nil)
	return false
}

// Close clears the components and drops the activity's metrics. It does
// not shut anything down.
func (a *LiveActivity) Close() {
	a.components.Clear()
	metrics.DeleteActivity(a.name)
}

// OnComponentError implements component.ErrorSink.
func (a *LiveActivity) OnComponentError(c component.Component, message string, cause error) {
	a.logger.Error(message, "component", c.Name(), "error", cause)
	if a.bus == nil {
		return
	}
	ev := events.ComponentError{
		ActivityID: a.id,
		Component:  c.Name(),
		Message:    message,
		Timestamp:  a.clock.Now().Format(time.RFC3339),
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	a.bus.Publish(ev)
}

func (a *LiveActivity) setStatus(state State, description string, cause error) {
	next := NewStatus(state, description, cause)
	now := a.clock.Now()

	a.mu.Lock()
	prev := a.status
	a.status = next
	a.since = now
	a.mu.Unlock()

	if prev.Equal(next) {
		return
	}

	a.logger.Info("Activity status changed", "from", prev.State, "to", state, "description", next.Description)
	metrics.SetActivityState(a.name, int(state))

	if a.bus != nil {
		a.bus.Publish(events.ActivityStatusChanged{
			ActivityID:   a.id,
			ActivityName: a.name,
			OldState:     prev.State.String(),
			NewState:     state.String(),
			Description:  next.Description,
			Detail:       next.CombinedDetail(),
			Timestamp:    now.Format(time.RFC3339),
		})
	}
}

// lifecycle is the Control the goals drive. It is only used while the
// request lock is held.
type lifecycle struct {
	a *LiveActivity
}

func (l lifecycle) Startup() error {
	a := l.a
	a.setStatus(StateStartupAttempt, "", nil)

	if !a.components.IsConfigured() {
		if err := a.components.ConfigureAll(a.cfg); err != nil {
			a.setStatus(StateStartupFailure, "", err)
			return newError(ErrCodeStartupFailed, "activity configuration failed", err)
		}
	}
	if err := a.components.StartAll(); err != nil {
		a.setStatus(StateStartupFailure, "", err)
		return newError(ErrCodeStartupFailed, "activity startup failed", err)
	}

	a.setStatus(StateRunning, "", nil)
	return nil
}

func (l lifecycle) ForceShutdown() error {
	a := l.a
	a.logger.Warn("Forcing shutdown of components left over from a failed shutdown")
	if a.components.StopAll() {
		return nil
	}

	if a.forced == ForcedShutdownAbort {
		err := errors.New("components still failing to stop")
		a.setStatus(StateShutdownFailure, DescriptionForcedShutdownFailed, err)
		return newError(ErrCodeShutdownFailed, "forced shutdown failed", err)
	}
	a.logger.Warn("Forced shutdown failed, starting up anyway")
	return nil
}

func (l lifecycle) Activate() error {
	a := l.a
	a.setStatus(StateActivateAttempt, "", nil)
	if a.onActivate != nil {
		if err := a.onActivate(); err != nil {
			a.setStatus(StateActivateFailure, "", err)
			return newError(ErrCodeHookFailed, "activate hook failed", err)
		}
	}
	a.setStatus(StateActive, "", nil)
	return nil
}

func (l lifecycle) Deactivate() error {
	a := l.a
	a.setStatus(StateDeactivateAttempt, "", nil)
	if a.onDeactivate != nil {
		if err := a.onDeactivate(); err != nil {
			a.setStatus(StateDeactivateFailure, "", err)
			return newError(ErrCodeHookFailed, "deactivate hook failed", err)
		}
	}
	a.setStatus(StateRunning, "", nil)
	return nil
}

func (l lifecycle) Shutdown() error {
	a := l.a
	a.setStatus(StateShutdownAttempt, "", nil)
	if !a.components.StopAll() {
		err := errors.New("one or more components failed to stop")
		a.setStatus(StateShutdownFailure, DescriptionShutdownFailures, err)
		return newError(ErrCodeShutdownFailed, DescriptionShutdownFailures, err)
	}
	a.setStatus(StateReady, "", nil)
	return nil
}
