package component

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/smazurov/liveactivity/internal/config"
	"github.com/smazurov/liveactivity/internal/logging"
	"github.com/smazurov/liveactivity/internal/process"
)

// Keys read from a native component's configuration section.
const (
	KeyRestart            = "restart"
	KeyRestartMaxDuration = "restart.maxDuration"
)

// NativeOptions configures a NativeComponent.
type NativeOptions struct {
	// Dependencies of the component within its collection.
	Dependencies []string

	// Launcher starts the native process. If nil, an ExecLauncher is used.
	Launcher process.Launcher

	// Builder turns the component's configuration section into a command.
	// If nil, uses the builder for the running OS.
	Builder process.CommandBuilder

	// Group, if set, samples the supervisor in the background.
	Group *process.Group

	// Clock for the supervisor. If nil, uses the system clock.
	Clock process.Clock

	// OnStateChange is passed to every supervisor the component creates.
	OnStateChange process.StateChangeCallback

	// Logger for component operations. If nil, uses the "process" logger.
	Logger *slog.Logger
}

// NativeComponent runs one native executable under a process.Supervisor.
// Its configuration lives under a key prefix, for example
// "encoder.executablePath" and "encoder.restart.policy".
type NativeComponent struct {
	name   string
	prefix string
	opts   NativeOptions
	logger *slog.Logger

	mu          sync.Mutex
	configured  bool
	cmd         process.Command
	policy      process.RestartPolicy
	maxDuration time.Duration
	sup         *process.Supervisor
}

// NewNativeComponent creates a component reading its configuration under
// prefix. An empty prefix reads top level keys.
func NewNativeComponent(name, prefix string, opts *NativeOptions) *NativeComponent {
	var o NativeOptions
	if opts != nil {
		o = *opts
	}
	logger := o.Logger
	if logger == nil {
		logger = logging.GetLogger("process")
	}
	if o.Launcher == nil {
		o.Launcher = process.NewExecLauncher(logger)
	}
	if o.Builder == nil {
		o.Builder = process.BuilderFor(runtime.GOOS)
	}

	return &NativeComponent{
		name:   name,
		prefix: prefix,
		opts:   o,
		logger: logger.With("component", name),
	}
}

// Name implements Component.
func (n *NativeComponent) Name() string {
	return n.name
}

// Dependencies implements Component.
func (n *NativeComponent) Dependencies() []string {
	return append([]string(nil), n.opts.Dependencies...)
}

// Configure builds the command line and restart policy. Keys missing under
// the component prefix are inherited from the activity wide keys; only
// prefixed keys become flags.
func (n *NativeComponent) Configure(cfg config.Provider) error {
	section := config.Scoped(cfg, n.prefix)

	cmd, err := n.opts.Builder(section)
	if err != nil {
		return fmt.Errorf("build command for %s: %w", n.name, err)
	}
	policy, err := process.PolicyFromConfig(config.Sub(section, KeyRestart))
	if err != nil {
		return fmt.Errorf("restart policy for %s: %w", n.name, err)
	}
	maxDuration, err := section.GetDuration(KeyRestartMaxDuration, process.DefaultMaxRestartDuration)
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.cmd = cmd
	n.policy = policy
	n.maxDuration = maxDuration
	n.configured = true

	n.logger.Debug("Native component configured", "command", cmd.String(), "restart", policy != nil)
	return nil
}

// Command returns the configured command line.
func (n *NativeComponent) Command() process.Command {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cmd
}

// Start launches the executable under a new supervisor.
func (n *NativeComponent) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.configured {
		return fmt.Errorf("native component %s started before it was configured", n.name)
	}
	if n.sup != nil && n.sup.State().IsAlive() {
		n.logger.Warn("Native component already running")
		return nil
	}

	sup := process.NewSupervisor(n.name, n.cmd, &process.SupervisorOptions{
		Launcher:           n.opts.Launcher,
		Policy:             n.policy,
		MaxRestartDuration: n.maxDuration,
		Clock:              n.opts.Clock,
		OnStateChange:      n.opts.OnStateChange,
		Logger:             n.logger,
	})
	n.sup = sup

	if err := sup.Start(); err != nil {
		return err
	}
	if n.opts.Group != nil {
		n.opts.Group.Remove(n.name)
		if err := n.opts.Group.Add(sup); err != nil {
			n.logger.Warn("Failed to add supervisor to process group", "error", err)
		}
	}
	return nil
}

// Stop shuts the supervisor down. Stopping a component that never started
// is a no-op.
func (n *NativeComponent) Stop() error {
	n.mu.Lock()
	sup := n.sup
	n.mu.Unlock()

	if sup == nil {
		return nil
	}
	if n.opts.Group != nil {
		n.opts.Group.Remove(n.name)
	}
	return sup.Shutdown()
}

// IsRunning polls the supervisor.
func (n *NativeComponent) IsRunning() bool {
	n.mu.Lock()
	sup := n.sup
	n.mu.Unlock()
	return sup != nil && sup.IsRunning()
}

// Info returns the supervisor snapshot, or nil before the first Start.
func (n *NativeComponent) Info() *process.Info {
	n.mu.Lock()
	sup := n.sup
	n.mu.Unlock()
	if sup == nil {
		return nil
	}
	return sup.Info()
}
