package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultHealthInterval is how often a Watchdog checks an activity.
const DefaultHealthInterval = 5 * time.Second

// ErrInvalidSchedule is returned when a watchdog schedule cannot be parsed.
var ErrInvalidSchedule = errors.New("invalid watchdog schedule")

// HealthChecker is implemented by LiveActivity.
type HealthChecker interface {
	CheckHealth() bool
}

// Watchdog periodically checks an activity's health on a cron schedule.
type Watchdog struct {
	spec     string
	schedule cron.Schedule
	target   HealthChecker
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// EverySpec returns the schedule spec for a fixed interval.
func EverySpec(interval time.Duration) string {
	return "@every " + interval.String()
}

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses spec, either a five field cron expression or a
// descriptor such as "@every 5s". Schedules that never fire, such as
// "0 0 30 2 *", are rejected.
func ParseSchedule(spec string) (cron.Schedule, error) {
	schedule, err := scheduleParser.Parse(spec)
	if err != nil {
		return nil, errors.Join(ErrInvalidSchedule, err)
	}
	if schedule.Next(time.Now()).IsZero() {
		return nil, fmt.Errorf("%w: %q never fires", ErrInvalidSchedule, spec)
	}
	return schedule, nil
}

// NewWatchdog creates a watchdog checking target on the schedule in spec.
func NewWatchdog(spec string, target HealthChecker, logger *slog.Logger) (*Watchdog, error) {
	schedule, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Watchdog{
		spec:     spec,
		schedule: schedule,
		target:   target,
		logger:   logger,
	}, nil
}

// Start checks the target on schedule until Stop or ctx is cancelled.
func (w *Watchdog) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return fmt.Errorf("watchdog already started")
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.loop(ctx, w.done)

	w.logger.Info("Watchdog started", "schedule", w.spec)
	return nil
}

// Stop ends the check loop and waits for it to exit.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// NextRun returns the next scheduled check from now.
func (w *Watchdog) NextRun() time.Time {
	return w.schedule.Next(time.Now())
}

// Check runs one health check immediately.
func (w *Watchdog) Check() bool {
	healthy := w.target.CheckHealth()
	if !healthy {
		w.logger.Warn("Health check failed")
	}
	return healthy
}

func (w *Watchdog) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		next := w.schedule.Next(time.Now())
		if next.IsZero() {
			w.logger.Warn("Watchdog schedule has no further runs", "schedule", w.spec)
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			w.logger.Debug("Watchdog shutting down")
			return
		case <-timer.C:
			w.Check()
		}
	}
}
