package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultSampleInterval is how often a Group polls each supervisor.
const DefaultSampleInterval = 500 * time.Millisecond

// RemovedCallback is called when a Group drops a supervisor that stopped
// running.
type RemovedCallback func(s *Supervisor)

// GroupOptions configures a new Group.
type GroupOptions struct {
	// SampleInterval between polls of each supervisor.
	// Zero means DefaultSampleInterval.
	SampleInterval time.Duration

	// OnRemoved is called when a sampled supervisor stops running (optional).
	OnRemoved RemovedCallback

	// Logger for group operations. If nil, uses slog.Default().
	Logger *slog.Logger
}

// member tracks one sampled supervisor within the group.
type member struct {
	sup    *Supervisor
	cancel context.CancelFunc
	done   chan struct{}
}

// Group samples a set of supervisors, each from its own goroutine, so that
// exit detection and restarts proceed without a caller polling. Supervisors
// share no state; the group only holds membership.
type Group struct {
	opts    GroupOptions
	logger  *slog.Logger
	mu      sync.Mutex
	members map[string]*member
	order   []string
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewGroup creates an empty group.
func NewGroup(opts *GroupOptions) *Group {
	var o GroupOptions
	if opts != nil {
		o = *opts
	}
	if o.SampleInterval <= 0 {
		o.SampleInterval = DefaultSampleInterval
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Group{
		opts:    o,
		logger:  logger,
		members: make(map[string]*member),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add registers a supervisor. If the group has been started the supervisor
// is sampled right away; it is expected to have been started by its owner.
func (g *Group) Add(s *Supervisor) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.members[s.Name()]; exists {
		return fmt.Errorf("process %s already in group", s.Name())
	}

	m := &member{sup: s}
	g.members[s.Name()] = m
	g.order = append(g.order, s.Name())

	if g.started {
		g.sample(m)
	}
	return nil
}

// Start starts every supervisor that has not been started and begins
// sampling. Launch failures are joined into the returned error; failed
// supervisors are removed from the group.
func (g *Group) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.started {
		return nil
	}
	g.started = true

	var errs []error
	for _, name := range append([]string(nil), g.order...) {
		m := g.members[name]
		if m.sup.State() == StateNotStarted {
			if err := m.sup.Start(); err != nil {
				errs = append(errs, fmt.Errorf("start %s: %w", name, err))
				g.removeLocked(name)
				continue
			}
		}
		g.sample(m)
	}

	g.logger.Info("Process group started", "count", len(g.members), "sample_interval", g.opts.SampleInterval)
	return errors.Join(errs...)
}

// sample starts the polling goroutine for m (must hold lock).
func (g *Group) sample(m *member) {
	ctx, cancel := context.WithCancel(g.ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer close(m.done)
		g.runSampler(ctx, m)
	}()
}

func (g *Group) runSampler(ctx context.Context, m *member) {
	ticker := time.NewTicker(g.opts.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.sup.IsRunning() {
				continue
			}

			g.logger.Info("Process no longer running, removing from group",
				"process", m.sup.Name(), "state", m.sup.State())

			g.mu.Lock()
			removed := g.members[m.sup.Name()] == m
			if removed {
				g.removeLocked(m.sup.Name())
			}
			g.mu.Unlock()

			if removed && g.opts.OnRemoved != nil {
				g.opts.OnRemoved(m.sup)
			}
			return
		}
	}
}

// Remove stops sampling the named supervisor without shutting it down.
func (g *Group) Remove(name string) {
	g.mu.Lock()
	m := g.removeLocked(name)
	g.mu.Unlock()

	if m != nil && m.cancel != nil {
		m.cancel()
		<-m.done
	}
}

// removeLocked must hold lock.
func (g *Group) removeLocked(name string) *member {
	m, ok := g.members[name]
	if !ok {
		return nil
	}
	delete(g.members, name)
	for i, n := range g.order {
		if n == name {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return m
}

// Get returns the named supervisor.
func (g *Group) Get(name string) (*Supervisor, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.members[name]
	if !ok {
		return nil, false
	}
	return m.sup, true
}

// Names returns member names in the order they were added.
func (g *Group) Names() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.order...)
}

// Len returns the number of members.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}

// Shutdown stops sampling and shuts every member down.
func (g *Group) Shutdown() error {
	g.logger.Info("Shutting down process group")
	g.cancel()
	g.wg.Wait()

	g.mu.Lock()
	members := make([]*member, 0, len(g.order))
	for _, name := range g.order {
		members = append(members, g.members[name])
	}
	g.members = make(map[string]*member)
	g.order = nil
	g.mu.Unlock()

	var errs []error
	for _, m := range members {
		if err := m.sup.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", m.sup.Name(), err))
		}
	}

	g.logger.Info("Process group stopped")
	return errors.Join(errs...)
}
