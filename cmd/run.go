package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/liveactivity/internal/config"
	"github.com/smazurov/liveactivity/internal/definition"
	"github.com/smazurov/liveactivity/internal/events"
	"github.com/smazurov/liveactivity/internal/logging"
	"github.com/smazurov/liveactivity/internal/metrics/exporters"
	"github.com/smazurov/liveactivity/internal/process"
	"github.com/smazurov/liveactivity/internal/systemd"
)

// RunOptions for the run command. Flags win over LIVEACTIVITY_* env vars,
// which win over the [run] table of the options file.
type RunOptions struct {
	Config         string
	Definition     string        `toml:"run.definition" env:"DEFINITION"`
	Watch          bool          `toml:"run.watch" env:"WATCH"`
	Activate       bool          `toml:"run.activate" env:"ACTIVATE"`
	MetricsAddr    string        `toml:"run.metrics_addr" env:"METRICS_ADDR"`
	HealthSchedule string        `toml:"run.health_schedule" env:"HEALTH_SCHEDULE"`
	SampleInterval time.Duration `toml:"run.sample_interval" env:"SAMPLE_INTERVAL"`
	GracePeriod    time.Duration `toml:"run.grace_period" env:"GRACE_PERIOD"`
}

// CreateRunCmd creates the run command.
func CreateRunCmd() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an activity until interrupted",
		Long: `Loads an activity definition, starts its components in dependency order and ` +
			`keeps them supervised until SIGINT or SIGTERM. SIGHUP reloads the definition.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			opts.Config, _ = c.Flags().GetString("config")
			if err := config.LoadConfig(opts, c); err != nil {
				return err
			}
			if opts.Definition == "" {
				return errors.New("an activity definition is required (--definition)")
			}

			ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runActivity(ctx, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.Definition, "definition", "d", "", "Activity definition file (TOML or YAML)")
	flags.BoolVar(&opts.Watch, "watch", false, "Restart the activity when the definition file changes")
	flags.BoolVar(&opts.Activate, "activate", false, "Activate the activity after startup")
	flags.StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flags.StringVar(&opts.HealthSchedule, "health-schedule", "", "Health check schedule, overrides the definition")
	flags.DurationVar(&opts.SampleInterval, "sample-interval", process.DefaultSampleInterval, "How often supervised processes are polled")
	flags.DurationVar(&opts.GracePeriod, "grace-period", 0, "Time between SIGINT and SIGKILL when stopping a process")

	return cmd
}

func runActivity(ctx context.Context, opts *RunOptions) error {
	logger := logging.GetLogger("main")
	processLogger := logging.GetLogger("process")

	launcher := process.NewExecLauncher(processLogger)
	launcher.GracePeriod = opts.GracePeriod

	group := process.NewGroup(&process.GroupOptions{
		SampleInterval: opts.SampleInterval,
		Logger:         processLogger,
		OnRemoved: func(s *process.Supervisor) {
			processLogger.Warn("Process left supervision", "process", s.Name(), "state", s.State())
		},
	})
	if err := group.Start(); err != nil {
		return err
	}
	defer func() {
		if err := group.Shutdown(); err != nil {
			logger.Warn("Process group shutdown reported errors", "error", err)
		}
	}()

	rt := &host{
		bus:      events.New(),
		group:    group,
		launcher: launcher,
		logger:   logging.GetLogger("activity"),
	}

	notifier := systemd.NewNotifier(logger)
	unsubscribe := rt.bus.Subscribe(func(ev events.ActivityStatusChanged) {
		notifier.Status(fmt.Sprintf("%s: %s", ev.ActivityName, ev.NewState))
	})
	defer unsubscribe()

	if opts.MetricsAddr != "" {
		srv := exporters.NewServer(opts.MetricsAddr)
		go func() {
			logger.Info("Serving metrics", "addr", opts.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	def, err := definition.Load(opts.Definition)
	if err != nil {
		return err
	}
	first, err := startSession(ctx, rt, def, opts.HealthSchedule, opts.Activate)
	if err != nil {
		return err
	}
	var current atomic.Pointer[session]
	current.Store(first)
	defer func() {
		notifier.Stopping()
		if s := current.Swap(nil); s != nil {
			_ = s.stop()
		}
	}()

	notifier.Ready(first.status().String())
	go notifier.Watchdog(ctx, func() bool {
		s := current.Load()
		return s != nil && s.healthy()
	})

	reloads := make(chan *definition.Definition, 1)
	watcher := config.NewWatcher(opts.Definition, definition.Load, logging.GetLogger("config"),
		config.WithErrorHandler[*definition.Definition](func(err error) {
			logger.Error("Activity definition rejected, keeping the running activity", "error", err)
		}))
	watcher.OnReload(func(d *definition.Definition) {
		// Only the newest definition matters.
		select {
		case <-reloads:
		default:
		}
		reloads <- d
	})
	if opts.Watch {
		if err := watcher.Start(); err != nil {
			return fmt.Errorf("watch %s: %w", opts.Definition, err)
		}
		defer func() { _ = watcher.Stop() }()
	}

	hangup := make(chan os.Signal, 1)
	signal.Notify(hangup, syscall.SIGHUP)
	defer signal.Stop(hangup)

	failures := make(chan any, 16)
	defer events.SubscribeToChannel[events.ComponentError](rt.bus, failures)()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down")
			return nil

		case <-hangup:
			logger.Info("Reloading activity definition", "path", opts.Definition)
			reloadModuleLevels(opts.Config)
			watcher.Reload()

		case ev := <-failures:
			if f, ok := ev.(events.ComponentError); ok {
				logger.Warn("Component failure", "component", f.Component, "message", f.Message, "error", f.Error)
				notifier.Status(fmt.Sprintf("%s: %s", f.Component, f.Message))
			}

		case next := <-reloads:
			notifier.Reloading()
			if s := current.Swap(nil); s != nil {
				_ = s.stop()
			}
			s, startErr := startSession(ctx, rt, next, opts.HealthSchedule, opts.Activate)
			if startErr != nil {
				logger.Error("Failed to start reloaded activity", "error", startErr)
				notifier.Status("reload failed: " + startErr.Error())
				continue
			}
			current.Store(s)
			notifier.Ready(s.status().String())
		}
	}
}

// reloadModuleLevels applies the per-module levels of the options file to
// loggers that are already running.
func reloadModuleLevels(path string) {
	for module, level := range config.LoadLoggingConfig(path).Modules {
		if !logging.SetModuleLevel(module, level) {
			logging.GetLogger("config").Warn("Ignoring unknown log level", "module", module, "level", level)
		}
	}
}
