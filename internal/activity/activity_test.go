package activity

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/liveactivity/internal/component"
	"github.com/smazurov/liveactivity/internal/config"
	"github.com/smazurov/liveactivity/internal/events"
)

type testComponent struct {
	mu         sync.Mutex
	name       string
	deps       []string
	running    bool
	starts     int
	stops      int
	configures int
	startErr   error
	stopErr    error
}

func (c *testComponent) Name() string           { return c.name }
func (c *testComponent) Dependencies() []string { return c.deps }

func (c *testComponent) Configure(config.Provider) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configures++
	return nil
}

func (c *testComponent) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts++
	if c.startErr != nil {
		return c.startErr
	}
	c.running = true
	return nil
}

func (c *testComponent) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	c.running = false
	return c.stopErr
}

func (c *testComponent) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *testComponent) setRunning(v bool) {
	c.mu.Lock()
	c.running = v
	c.mu.Unlock()
}

func (c *testComponent) setStopErr(err error) {
	c.mu.Lock()
	c.stopErr = err
	c.mu.Unlock()
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestActivity(t *testing.T, opts []Option, comps ...component.Component) *LiveActivity {
	t.Helper()
	c := component.NewCollection()
	c.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	for _, comp := range comps {
		require.NoError(t, c.Add(comp))
	}
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithUUID("test-uuid"),
	}, opts...)
	return New("test", c, opts...)
}

func TestNewActivity(t *testing.T) {
	a := newTestActivity(t, nil)
	assert.Equal(t, StateReady, a.Status().State)
	assert.Equal(t, "test-uuid", a.ID())
	assert.Equal(t, "test", a.Name())

	generated := New("other", component.NewCollection())
	assert.Len(t, generated.ID(), 36)
}

func TestLifecycleHappyPath(t *testing.T) {
	web := &testComponent{name: "web"}
	router := &testComponent{name: "router", deps: []string{"web"}}
	activated, deactivated := 0, 0

	a := newTestActivity(t, []Option{
		WithActivateHook(func() error { activated++; return nil }),
		WithDeactivateHook(func() error { deactivated++; return nil }),
	}, router, web)

	result, err := a.Request(Startup)
	require.NoError(t, err)
	assert.Equal(t, OK, result)
	assert.Equal(t, StateRunning, a.Status().State)
	assert.Equal(t, []string{"web", "router"}, a.Components().Order())
	assert.True(t, web.IsRunning())
	assert.True(t, router.IsRunning())

	result, err = a.Request(Startup)
	require.NoError(t, err)
	assert.Equal(t, NoOp, result)
	assert.Equal(t, 1, web.starts)

	_, err = a.Request(Activate)
	require.NoError(t, err)
	assert.Equal(t, StateActive, a.Status().State)
	assert.Equal(t, 1, activated)

	result, _ = a.Request(Activate)
	assert.Equal(t, NoOp, result)
	assert.Equal(t, 1, activated)

	_, err = a.Request(Deactivate)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, a.Status().State)
	assert.Equal(t, 1, deactivated)

	_, err = a.Request(Shutdown)
	require.NoError(t, err)
	assert.Equal(t, StateReady, a.Status().State)
	assert.False(t, web.IsRunning())

	result, err = a.Request(Shutdown)
	require.NoError(t, err)
	assert.Equal(t, NoOp, result)

	// Restarting reuses the configured order.
	_, err = a.Request(Startup)
	require.NoError(t, err)
	assert.Equal(t, 2, web.starts)
	assert.Equal(t, 1, web.configures)
}

func TestIllegalRequest(t *testing.T) {
	a := newTestActivity(t, nil, &testComponent{name: "web"})

	result, err := a.Request(Activate)
	assert.Equal(t, Illegal, result)
	require.ErrorIs(t, err, ErrIllegalTransition)

	var ite *IllegalTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, StateReady, ite.State)
	assert.Equal(t, "cannot activate activity in state ready", err.Error())
	assert.Equal(t, StateReady, a.Status().State, "illegal request must not change state")
}

func TestStartupFailure(t *testing.T) {
	boom := errors.New("port in use")
	web := &testComponent{name: "web"}
	api := &testComponent{name: "api", deps: []string{"web"}, startErr: boom}

	a := newTestActivity(t, nil, web, api)

	result, err := a.Request(Startup)
	assert.Equal(t, OK, result)
	require.ErrorIs(t, err, boom)

	var aerr *Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, ErrCodeStartupFailed, aerr.Code)

	status := a.Status()
	assert.Equal(t, StateStartupFailure, status.State)
	assert.True(t, status.State.IsError())
	assert.ErrorIs(t, status.Err(), boom)
	assert.Contains(t, status.CombinedDetail(), "port in use")

	assert.Equal(t, 1, web.stops, "started component rolled back")
	assert.Equal(t, 1, api.stops, "failing component stopped")

	// Startup may be retried from StartupFailure.
	api.startErr = nil
	_, err = a.Request(Startup)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, a.Status().State)
}

func TestStartupCycle(t *testing.T) {
	a := newTestActivity(t, nil,
		&testComponent{name: "a", deps: []string{"b"}},
		&testComponent{name: "b", deps: []string{"a"}},
	)

	_, err := a.Request(Startup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency cycle")
	assert.Equal(t, StateStartupFailure, a.Status().State)
}

func TestShutdownFailure(t *testing.T) {
	web := &testComponent{name: "web"}
	api := &testComponent{name: "api"}
	a := newTestActivity(t, nil, web, api)

	_, err := a.Request(Startup)
	require.NoError(t, err)

	web.setStopErr(errors.New("stuck"))
	_, err = a.Request(Shutdown)
	require.Error(t, err)

	status := a.Status()
	assert.Equal(t, StateShutdownFailure, status.State)
	assert.Equal(t, DescriptionShutdownFailures, status.Description)
	assert.Equal(t, 1, api.stops, "shutdown continues past a failing component")
}

func TestStartupAfterShutdownFailureIgnoresForcedFailure(t *testing.T) {
	web := &testComponent{name: "web"}
	a := newTestActivity(t, nil, web)

	_, err := a.Request(Startup)
	require.NoError(t, err)
	web.setStopErr(errors.New("stuck"))
	_, _ = a.Request(Shutdown)
	require.Equal(t, StateShutdownFailure, a.Status().State)

	result, err := a.Request(Startup)
	require.NoError(t, err)
	assert.Equal(t, OK, result)
	assert.Equal(t, StateRunning, a.Status().State)
	assert.Equal(t, 2, web.stops, "forced shutdown attempted before startup")
	assert.Equal(t, 2, web.starts)
}

func TestStartupAfterShutdownFailureAbortPolicy(t *testing.T) {
	web := &testComponent{name: "web"}
	a := newTestActivity(t, []Option{WithForcedShutdownPolicy(ForcedShutdownAbort)}, web)

	_, err := a.Request(Startup)
	require.NoError(t, err)
	web.setStopErr(errors.New("stuck"))
	_, _ = a.Request(Shutdown)

	_, err = a.Request(Startup)
	var aerr *Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, ErrCodeShutdownFailed, aerr.Code)
	assert.Equal(t, StateShutdownFailure, a.Status().State)
	assert.Equal(t, 1, web.starts, "startup must not run")

	// Once the component stops cleanly the forced shutdown succeeds.
	web.setStopErr(nil)
	_, err = a.Request(Startup)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, a.Status().State)
}

func TestActivateHookFailure(t *testing.T) {
	boom := errors.New("display unavailable")
	a := newTestActivity(t, []Option{
		WithActivateHook(func() error { return boom }),
	}, &testComponent{name: "web"})

	_, err := a.Request(Startup)
	require.NoError(t, err)

	_, err = a.Request(Activate)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StateActivateFailure, a.Status().State)
	assert.True(t, a.Status().State.IsRunning())

	// Deactivate is allowed from ActivateFailure.
	result, err := a.Request(Deactivate)
	require.NoError(t, err)
	assert.Equal(t, OK, result)
	assert.Equal(t, StateRunning, a.Status().State)
}

func TestCheckHealth(t *testing.T) {
	web := &testComponent{name: "web"}
	api := &testComponent{name: "api"}
	a := newTestActivity(t, nil, web, api)

	assert.True(t, a.CheckHealth(), "not running activities are healthy")

	_, err := a.Request(Startup)
	require.NoError(t, err)
	assert.True(t, a.CheckHealth())

	api.setRunning(false)
	assert.False(t, a.CheckHealth())

	status := a.Status()
	assert.Equal(t, StateCrashed, status.State)
	assert.Equal(t, DescriptionComponentNotRunning, status.Description)
	assert.False(t, web.IsRunning(), "remaining components stopped")

	// Crashed activities can be started again.
	_, err = a.Request(Startup)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, a.Status().State)
}

func TestStatusEvents(t *testing.T) {
	bus := events.New()
	changes := make(chan events.ActivityStatusChanged, 16)
	unsub := bus.Subscribe(func(e events.ActivityStatusChanged) { changes <- e })
	defer unsub()

	now := time.Date(2025, 1, 27, 10, 30, 0, 0, time.UTC)
	a := newTestActivity(t, []Option{WithEventBus(bus), WithClock(fixedClock{now})}, &testComponent{name: "web"})

	_, err := a.Request(Startup)
	require.NoError(t, err)
	assert.Equal(t, now, a.Since())

	var got []string
	for len(got) < 2 {
		select {
		case e := <-changes:
			assert.Equal(t, "test-uuid", e.ActivityID)
			assert.Equal(t, "2025-01-27T10:30:00Z", e.Timestamp)
			got = append(got, e.OldState+"->"+e.NewState)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for status events, got %v", got)
		}
	}
	assert.Equal(t, []string{"ready->startup_attempt", "startup_attempt->running"}, got)
}

func TestComponentErrorEvents(t *testing.T) {
	bus := events.New()
	errs := make(chan events.ComponentError, 4)
	unsub := bus.Subscribe(func(e events.ComponentError) { errs <- e })
	defer unsub()

	api := &testComponent{name: "api"}
	a := newTestActivity(t, []Option{WithEventBus(bus)}, api)
	_, err := a.Request(Startup)
	require.NoError(t, err)

	api.setRunning(false)
	a.CheckHealth()

	select {
	case e := <-errs:
		assert.Equal(t, "api", e.Component)
		assert.Equal(t, DescriptionComponentNotRunning, e.Message)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for component error event")
	}
}

func TestClose(t *testing.T) {
	a := newTestActivity(t, nil, &testComponent{name: "web"})
	a.Close()
	assert.Equal(t, 0, a.Components().Len())
}
