package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/smazurov/liveactivity/cmd"
	"github.com/smazurov/liveactivity/internal/config"
	"github.com/smazurov/liveactivity/internal/logging"
	"github.com/smazurov/liveactivity/internal/version"
)

// Options shared by every command - flat structure with toml mapping.
// Per-module levels and the journal identifier come from the [logging]
// table only.
type Options struct {
	Config string

	LoggingLevel  string `toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat string `toml:"logging.format" env:"LOGGING_FORMAT"`
}

func newRootCmd() *cobra.Command {
	opts := &Options{}

	root := &cobra.Command{
		Use:           "liveactivity",
		Short:         "Run and supervise live activities",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			if err := config.LoadConfig(opts, c); err != nil {
				return err
			}

			loggingConfig := config.LoadLoggingConfig(opts.Config)
			loggingConfig.Level = opts.LoggingLevel
			loggingConfig.Format = opts.LoggingFormat
			logging.Initialize(loggingConfig)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.Config, "config", "c", "liveactivity.toml", "Path to configuration file")
	flags.StringVar(&opts.LoggingLevel, "logging-level", "info", "Global logging level (debug, info, warn, error)")
	flags.StringVar(&opts.LoggingFormat, "logging-format", "text", "Logging format (text, json)")

	root.AddCommand(
		cmd.CreateRunCmd(),
		cmd.CreateOrderCmd(),
		cmd.CreateCheckCmd(),
		cmd.CreateVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logging.GetLogger("main").Error("Command failed", "error", err)
		os.Exit(1)
	}
}
