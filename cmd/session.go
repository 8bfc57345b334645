package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/smazurov/liveactivity/internal/activity"
	"github.com/smazurov/liveactivity/internal/definition"
	"github.com/smazurov/liveactivity/internal/events"
	"github.com/smazurov/liveactivity/internal/process"
)

// host holds what outlives a single definition: the event bus, the
// process group and the launcher.
type host struct {
	bus      *events.Bus
	group    *process.Group
	launcher process.Launcher
	logger   *slog.Logger
}

// onProcessState publishes supervisor state changes on the bus.
func (rt *host) onProcessState(name string, oldState, newState process.State, err error) {
	ev := events.ProcessStateChanged{
		Process:   name,
		OldState:  string(oldState),
		NewState:  string(newState),
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	rt.bus.Publish(ev)
}

// session is one activity built from one definition, with its watchdog.
type session struct {
	def      *definition.Definition
	asm      *definition.Assembly
	watchdog *activity.Watchdog
	logger   *slog.Logger
}

// startSession builds def, requests Startup (and Activate when asked) and
// starts the health watchdog. On failure everything started is torn down.
func startSession(ctx context.Context, rt *host, def *definition.Definition, schedule string, activate bool) (*session, error) {
	asm, err := definition.Build(def, &definition.BuildOptions{
		Launcher:      rt.launcher,
		Group:         rt.group,
		OnStateChange: rt.onProcessState,
		Bus:           rt.bus,
	})
	if err != nil {
		return nil, err
	}

	if schedule == "" {
		schedule = def.Schedule()
	}
	watchdog, err := activity.NewWatchdog(schedule, asm.Activity, rt.logger)
	if err != nil {
		asm.Activity.Close()
		return nil, err
	}

	s := &session{def: def, asm: asm, watchdog: watchdog, logger: rt.logger.With("activity", def.Name)}

	if _, err := asm.Activity.Request(activity.Startup); err != nil {
		s.close()
		return nil, fmt.Errorf("start activity %s: %w", def.Name, err)
	}
	if activate {
		if _, err := asm.Activity.Request(activity.Activate); err != nil {
			s.stop()
			return nil, fmt.Errorf("activate activity %s: %w", def.Name, err)
		}
	}

	if err := watchdog.Start(ctx); err != nil {
		s.stop()
		return nil, err
	}

	s.logger.Info("Activity started", "order", asm.Components.Order(), "health_schedule", schedule)
	return s, nil
}

// status returns the activity's current status.
func (s *session) status() activity.Status {
	return s.asm.Activity.Status()
}

// healthy reports whether the activity is running without error.
func (s *session) healthy() bool {
	st := s.status().State
	return st.IsRunning() && !st.IsError()
}

// stop shuts the activity down and releases it.
func (s *session) stop() error {
	s.watchdog.Stop()

	var err error
	if _, reqErr := s.asm.Activity.Request(activity.Shutdown); reqErr != nil {
		var illegal *activity.IllegalTransitionError
		if !errors.As(reqErr, &illegal) {
			err = reqErr
		}
	}
	s.close()

	if err != nil {
		s.logger.Error("Activity did not shut down cleanly", "error", err)
		return err
	}
	s.logger.Info("Activity stopped")
	return nil
}

func (s *session) close() {
	s.asm.Activity.Close()
}
