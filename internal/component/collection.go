package component

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/smazurov/liveactivity/internal/config"
	"github.com/smazurov/liveactivity/internal/depgraph"
	"github.com/smazurov/liveactivity/internal/logging"
	"github.com/smazurov/liveactivity/internal/metrics"
)

// Collection holds the components of one activity.
//
// Lifecycle calls (ConfigureAll, StartAll, StopAll) must not run
// concurrently with each other; the owner serializes them. Membership
// queries are safe from any goroutine.
type Collection struct {
	mu         sync.RWMutex
	logger     *slog.Logger
	sink       ErrorSink
	added      []Component
	byName     map[string]Component
	configured []Component
}

// NewCollection creates an empty collection.
func NewCollection() *Collection {
	return &Collection{
		logger: logging.GetLogger("components"),
		byName: make(map[string]Component),
	}
}

// SetErrorSink sets the receiver for failures that are logged rather than
// returned.
func (c *Collection) SetErrorSink(sink ErrorSink) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

// SetLogger replaces the collection's logger.
func (c *Collection) SetLogger(logger *slog.Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

// Add registers a component. Names must be unique.
func (c *Collection) Add(comp Component) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := comp.Name()
	if _, exists := c.byName[name]; exists {
		return newError(ErrCodeDuplicate, name, fmt.Sprintf("component %s already registered", name), nil)
	}
	c.byName[name] = comp
	c.added = append(c.added, comp)
	return nil
}

// ConfigureAll resolves the dependency order and configures every component
// in it. The resolved order is used by every later operation. A dependency
// cycle fails before any component is configured.
func (c *Collection) ConfigureAll(cfg config.Provider) error {
	c.mu.Lock()
	if c.configured != nil {
		c.mu.Unlock()
		return newError(ErrCodeAlreadyConfigured, "", "components already configured", nil)
	}
	added := append([]Component(nil), c.added...)
	c.mu.Unlock()

	r := depgraph.NewResolver[Component](depgraph.WithEdgeObserver(func(e depgraph.Edge) {
		c.log().Debug("Dependency edge", "from", e.From, "to", e.To, "kind", e.Kind)
	}))
	for _, comp := range added {
		r.AddNode(comp.Name(), comp)
	}
	for _, comp := range added {
		r.AddDependencies(comp.Name(), comp.Dependencies()...)
	}

	ordered, err := r.Resolve()
	if err != nil {
		return fmt.Errorf("resolve component order: %w", err)
	}

	for _, comp := range ordered {
		c.log().Debug("Configuring component", "component", comp.Name())
		if err := comp.Configure(cfg); err != nil {
			metrics.RecordComponentFailure(comp.Name(), "configure")
			return newError(ErrCodeConfigureFailed, comp.Name(), fmt.Sprintf("component %s failed to configure", comp.Name()), err)
		}
	}

	c.mu.Lock()
	c.configured = ordered
	c.mu.Unlock()

	c.log().Info("Components configured", "order", names(ordered))
	return nil
}

// StartAll starts every configured component in dependency order. If one
// fails, every component started before it and the failing component itself
// are stopped, in start order, and the start error is returned wrapped in an
// *Error. Rollback failures go to the error sink.
func (c *Collection) StartAll() error {
	comps, err := c.requireConfigured()
	if err != nil {
		return err
	}

	started := make([]Component, 0, len(comps))
	for _, comp := range comps {
		c.log().Info("Starting component", "component", comp.Name())
		if err := comp.Start(); err != nil {
			c.log().Error("Component failed to start, rolling back", "component", comp.Name(), "error", err)
			metrics.RecordComponentFailure(comp.Name(), "start")
			c.rollback(append(started, comp))
			return newError(ErrCodeStartFailed, comp.Name(), fmt.Sprintf("component %s failed to start", comp.Name()), err)
		}
		started = append(started, comp)
	}

	c.log().Info("All components started", "count", len(started))
	return nil
}

func (c *Collection) rollback(comps []Component) {
	for _, comp := range comps {
		if err := comp.Stop(); err != nil {
			metrics.RecordComponentFailure(comp.Name(), "rollback")
			c.report(comp, "Error while cleaning up failed startup", err)
		}
	}
}

// StopAll stops every configured component in dependency order. It never
// stops early and reports whether every Stop succeeded.
func (c *Collection) StopAll() bool {
	comps := c.Configured()

	ok := true
	for _, comp := range comps {
		if err := comp.Stop(); err != nil {
			ok = false
			metrics.RecordComponentFailure(comp.Name(), "stop")
			c.report(comp, "Error during component shutdown", err)
		}
	}
	return ok
}

// AllRunning reports whether every configured component is running. Each
// component that is not running is reported to the error sink.
func (c *Collection) AllRunning() bool {
	running := true
	for _, comp := range c.Configured() {
		if !comp.IsRunning() {
			running = false
			c.report(comp, "Activity component not running", nil)
		}
	}
	return running
}

// Clear forgets every component.
func (c *Collection) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.added = nil
	c.configured = nil
	c.byName = make(map[string]Component)
}

// StopAndClear stops every component and then clears the collection.
func (c *Collection) StopAndClear() bool {
	ok := c.StopAll()
	c.Clear()
	return ok
}

// Get returns the named component.
func (c *Collection) Get(name string) (Component, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	comp, ok := c.byName[name]
	return comp, ok
}

// Required returns the named component or an *Error.
func (c *Collection) Required(name string) (Component, error) {
	if comp, ok := c.Get(name); ok {
		return comp, nil
	}
	return nil, newError(ErrCodeNotFound, name, fmt.Sprintf("no component named %s", name), nil)
}

// IsConfigured reports whether ConfigureAll has succeeded.
func (c *Collection) IsConfigured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.configured != nil
}

// Configured returns the components in resolved order, or nil before
// ConfigureAll.
func (c *Collection) Configured() []Component {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Component(nil), c.configured...)
}

// Order returns the names of the configured components in resolved order.
func (c *Collection) Order() []string {
	return names(c.Configured())
}

// Len returns the number of registered components.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.added)
}

func (c *Collection) requireConfigured() ([]Component, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.configured == nil {
		return nil, newError(ErrCodeNotConfigured, "", "components have not been configured", nil)
	}
	return append([]Component(nil), c.configured...), nil
}

func (c *Collection) report(comp Component, message string, cause error) {
	c.mu.RLock()
	sink := c.sink
	c.mu.RUnlock()

	if cause != nil {
		c.log().Error(message, "component", comp.Name(), "error", cause)
	} else {
		c.log().Warn(message, "component", comp.Name())
	}
	if sink != nil {
		sink.OnComponentError(comp, message, cause)
	}
}

func (c *Collection) log() *slog.Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

func names(comps []Component) []string {
	out := make([]string, len(comps))
	for i, comp := range comps {
		out[i] = comp.Name()
	}
	return out
}
