package process

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/liveactivity/internal/metrics"
)

// StateChangeCallback is called after a supervisor changes state. It is
// never called with the supervisor's lock held.
type StateChangeCallback func(name string, oldState, newState State, err error)

// SupervisorOptions configures a new Supervisor.
type SupervisorOptions struct {
	// Launcher starts the process and its replacements (required).
	Launcher Launcher

	// Policy decides whether and how an exited process is replaced.
	// Nil disables restarts.
	Policy RestartPolicy

	// MaxRestartDuration bounds one restart attempt.
	// Zero means DefaultMaxRestartDuration.
	MaxRestartDuration time.Duration

	// Clock defaults to the system clock.
	Clock Clock

	// OnStateChange is called when the supervisor's state changes (optional).
	OnStateChange StateChangeCallback

	// Logger for supervisor operations. If nil, uses slog.Default().
	Logger *slog.Logger
}

// restartAttempt exists only while an exited process is being replaced.
type restartAttempt struct {
	began       time.Time
	restarter   Restarter
	replacement Handle
	launchedAt  time.Time
	nextLaunch  time.Time
}

type stateChange struct {
	from, to State
	err      error
}

// Supervisor owns one native process. Exit detection is poll driven:
// IsRunning inspects the process without blocking and advances any restart
// attempt. All handle and attempt bookkeeping happens under one lock per
// supervisor.
type Supervisor struct {
	name   string
	cmd    Command
	opts   SupervisorOptions
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	current   Handle
	startedAt time.Time
	restarts  int
	lastExit  int
	lastErr   error
	attempt   *restartAttempt
	pending   []stateChange
}

// NewSupervisor creates a supervisor for cmd. Nothing is launched until
// Start.
func NewSupervisor(name string, cmd Command, opts *SupervisorOptions) *Supervisor {
	if opts == nil || opts.Launcher == nil {
		panic("SupervisorOptions with Launcher is required")
	}

	o := *opts
	if o.MaxRestartDuration <= 0 {
		o.MaxRestartDuration = DefaultMaxRestartDuration
	}
	if o.Clock == nil {
		o.Clock = SystemClock()
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Supervisor{
		name:   name,
		cmd:    cmd,
		opts:   o,
		logger: logger.With("process", name),
		state:  StateNotStarted,
	}
}

// Name returns the supervisor's name.
func (s *Supervisor) Name() string {
	return s.name
}

// Command returns the supervised command line.
func (s *Supervisor) Command() Command {
	return s.cmd
}

// Start launches the process. A launch failure is returned as a
// *LaunchError and no restart is attempted. Starting a supervisor that has
// already been started logs a warning and does nothing.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	err := s.start()
	changes := s.drainChanges()
	s.mu.Unlock()

	s.notify(changes)
	return err
}

func (s *Supervisor) start() error {
	if s.state != StateNotStarted {
		s.logger.Warn("Attempting to start a process supervisor that was already started", "state", s.state)
		return nil
	}

	s.logger.Info("Native application starting up", "command", s.cmd.String())

	h, err := s.opts.Launcher.Launch(s.cmd)
	if err != nil {
		var launchErr *LaunchError
		if !errors.As(err, &launchErr) {
			err = &LaunchError{Path: s.cmd.Path, Cause: err}
		}
		s.lastErr = err
		s.setState(StateStartupFailed, err)
		metrics.RecordProcessLaunch(s.name, "failed")
		return err
	}

	s.current = h
	s.startedAt = s.opts.Clock.Now()
	s.setState(StateRunning, nil)
	metrics.RecordProcessLaunch(s.name, "started")
	return nil
}

// IsRunning reports whether the process is alive. It never blocks on the
// process. After an exit with a restart policy it keeps reporting true
// while a replacement is being brought up, and false once the policy gives
// up or the restart window closes.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	running := s.poll()
	changes := s.drainChanges()
	s.mu.Unlock()

	s.notify(changes)
	return running
}

func (s *Supervisor) poll() bool {
	if !s.state.IsAlive() {
		return false
	}

	now := s.opts.Clock.Now()

	if s.attempt == nil {
		exited, code := s.current.Exited()
		if !exited {
			return true
		}
		s.lastExit = code

		if s.opts.Policy == nil {
			if code == 0 {
				s.logger.Info("Native application exited, no restart configured", "exit_code", code)
				s.setState(StateExited, nil)
			} else {
				err := fmt.Errorf("process exited with code %d", code)
				s.lastErr = err
				s.logger.Error("Native application crashed, no restart configured", "exit_code", code)
				s.setState(StateCrashed, err)
			}
			return false
		}

		s.logger.Warn("Native application exited, restarting", "exit_code", code)
		s.attempt = &restartAttempt{
			began:      now,
			restarter:  s.opts.Policy.NewRestarter(),
			nextLaunch: now,
		}
		s.setState(StateRestarting, nil)
	}

	return s.advanceRestart(now)
}

// advanceRestart moves the open restart attempt forward by one step.
func (s *Supervisor) advanceRestart(now time.Time) bool {
	a := s.attempt
	elapsed := now.Sub(a.began)

	if a.replacement != nil {
		if exited, code := a.replacement.Exited(); exited {
			s.lastExit = code
			a.replacement = nil
			a.nextLaunch = now.Add(a.restarter.RetryDelay())
			s.logger.Warn("Replacement process exited", "exit_code", code, "next_launch_in", a.nextLaunch.Sub(now))
		} else if a.restarter.IsReplacementHealthy(now.Sub(a.launchedAt)) {
			s.current = a.replacement
			s.startedAt = a.launchedAt
			s.restarts++
			s.attempt = nil
			s.logger.Info("Native application restarted", "pid", s.current.Pid(), "restarts", s.restarts)
			s.setState(StateRunning, nil)
			metrics.RecordProcessRestart(s.name, "success")
			return true
		}
	}

	if elapsed > s.opts.MaxRestartDuration {
		s.killReplacement()
		s.abandon(fmt.Errorf("%w: no healthy replacement within %s", ErrRestartExhausted, s.opts.MaxRestartDuration))
		return false
	}

	if a.replacement != nil || now.Before(a.nextLaunch) {
		return true
	}

	if !a.restarter.ShouldContinueRetrying(elapsed) {
		s.abandon(fmt.Errorf("%w: restart policy gave up", ErrRestartExhausted))
		return false
	}

	a.restarter.AttemptRestart()
	h, err := s.opts.Launcher.Launch(s.cmd)
	if err != nil {
		s.lastErr = err
		a.nextLaunch = now.Add(a.restarter.RetryDelay())
		s.logger.Warn("Failed to launch replacement process", "error", err)
		return true
	}

	a.replacement = h
	a.launchedAt = now
	return true
}

func (s *Supervisor) abandon(err error) {
	s.attempt = nil
	s.lastErr = err
	s.logger.Error("Native application will not be restarted", "error", err, "last_exit_code", s.lastExit)
	s.setState(StateAbandoned, err)
	metrics.RecordProcessRestart(s.name, "abandoned")
}

func (s *Supervisor) killReplacement() {
	if s.attempt == nil || s.attempt.replacement == nil {
		return
	}
	if err := s.attempt.replacement.Kill(); err != nil {
		s.logger.Warn("Failed to kill replacement process", "error", err)
	}
	s.attempt.replacement = nil
}

// Shutdown cancels any restart attempt and kills the current process. It is
// safe to call before Start and more than once.
func (s *Supervisor) Shutdown() error {
	s.mu.Lock()
	err := s.shutdown()
	changes := s.drainChanges()
	s.mu.Unlock()

	s.notify(changes)
	return err
}

func (s *Supervisor) shutdown() error {
	if s.state == StateNotStarted || s.state == StateShutdown {
		s.logger.Debug("Shutting down a process supervisor which is not started or already shut down")
		return nil
	}

	var errs []error
	if s.attempt != nil {
		if r := s.attempt.replacement; r != nil {
			if err := r.Kill(); err != nil {
				errs = append(errs, err)
			}
		}
		s.attempt = nil
	}

	if s.current != nil {
		if exited, _ := s.current.Exited(); !exited {
			s.logger.Info("Killing native application", "pid", s.current.Pid())
			if err := s.current.Kill(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	err := errors.Join(errs...)
	s.setState(StateShutdown, err)
	return err
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info returns a snapshot of the supervisor.
func (s *Supervisor) Info() *Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := &Info{
		Name:         s.name,
		State:        s.state,
		StartedAt:    s.startedAt,
		RestartCount: s.restarts,
		LastExitCode: s.lastExit,
		LastError:    s.lastErr,
	}
	if s.current != nil && s.state == StateRunning {
		info.PID = s.current.Pid()
	}
	return info
}

// setState must hold lock.
func (s *Supervisor) setState(next State, err error) {
	if next == s.state {
		return
	}
	s.pending = append(s.pending, stateChange{from: s.state, to: next, err: err})
	s.state = next
}

// drainChanges must hold lock.
func (s *Supervisor) drainChanges() []stateChange {
	changes := s.pending
	s.pending = nil
	return changes
}

func (s *Supervisor) notify(changes []stateChange) {
	for _, c := range changes {
		s.logger.Debug("Process state changed", "from", c.from, "to", c.to)
		if s.opts.OnStateChange != nil {
			s.opts.OnStateChange(s.name, c.from, c.to, c.err)
		}
	}
}
