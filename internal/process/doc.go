// Package process supervises native OS processes.
//
// The package offers three levels of abstraction:
//
// Launcher starts a Command and returns a Handle:
//   - ExecLauncher wraps os/exec and runs each child in its own process group
//   - Output streaming with pluggable log parsing
//   - Exit detection by polling, with signal deaths reported as 128+signal
//
// Supervisor owns one process and its restarts:
//   - IsRunning polls without blocking and drives the RestartPolicy
//   - A restart attempt is bounded by MaxRestartDuration (10s by default)
//   - A healthy replacement is swapped in for the original handle
//   - Shutdown is idempotent and kills both the process and any replacement
//
// Group samples many supervisors, one goroutine each, and drops members
// that stop running.
//
// Command lines are built from configuration by a CommandBuilder chosen once
// per platform:
//
//	build := process.BuilderFor(runtime.GOOS)
//	cmd, err := build(config.Map{
//	    "executablePath":        "/opt/viewer/bin/viewer",
//	    "executableFlags":       `--fullscreen --title "Main Wall"`,
//	    "executableEnvironment": "DISPLAY=:0 DEBUG",
//	})
//	sup := process.NewSupervisor("viewer", cmd, &process.SupervisorOptions{
//	    Launcher: process.NewExecLauncher(logger),
//	    Policy:   process.LimitedRetry{Retries: 3, SuccessUptime: time.Second},
//	})
//	if err := sup.Start(); err != nil {
//	    return err
//	}
//	defer sup.Shutdown()
package process
