package process

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/smazurov/liveactivity/internal/logging"
)

// OutputHandler receives output lines from the subprocess.
type OutputHandler interface {
	HandleLine(source, line string)
}

// LogParser parses a log line and returns the log level and message.
// Used to extract structured log info from process output.
type LogParser func(line string) (level, msg string)

// Handle is a live OS process.
type Handle interface {
	Pid() int
	// Exited reports without blocking whether the process has exited, and
	// with what code. Death by signal is reported as 128+signal.
	Exited() (bool, int)
	// Kill forcibly terminates the process. Killing an exited process is
	// not an error.
	Kill() error
}

// Launcher starts processes.
type Launcher interface {
	Launch(cmd Command) (Handle, error)
}

// ExecLauncher launches commands with os/exec. Each child runs in its own
// process group so Kill reaches its descendants.
type ExecLauncher struct {
	Logger logging.Logger
	// OutputLogger receives the child's stdout and stderr (nil = Logger).
	OutputLogger logging.Logger
	// LogParser extracts log levels from child output (nil = info).
	LogParser LogParser
	Output    OutputHandler
	// GracePeriod is how long Kill waits after SIGINT before SIGKILL.
	// Zero kills immediately.
	GracePeriod time.Duration
	// KillTimeout bounds the wait for the child to be reaped after SIGKILL.
	KillTimeout time.Duration
}

// NewExecLauncher creates a launcher logging to logger.
func NewExecLauncher(logger logging.Logger) *ExecLauncher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecLauncher{
		Logger:      logger,
		KillTimeout: 5 * time.Second,
	}
}

// Launch starts cmd and returns immediately.
func (l *ExecLauncher) Launch(cmd Command) (Handle, error) {
	if cmd.Path == "" {
		return nil, &LaunchError{Path: cmd.Path, Cause: errors.New("empty command")}
	}

	c := exec.Command(cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	if cmd.CleanEnv || len(cmd.Env) > 0 {
		c.Env = cmd.Environ(os.Environ())
	}
	c.SysProcAttr = newSysProcAttr()

	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, &LaunchError{Path: cmd.Path, Cause: err}
	}
	stderr, stderrW, err := os.Pipe()
	if err != nil {
		_ = stdout.Close()
		_ = stdoutW.Close()
		return nil, &LaunchError{Path: cmd.Path, Cause: err}
	}
	// Plain files: Wait returns when the child exits, even if a
	// descendant still holds the pipes.
	c.Stdout = stdoutW
	c.Stderr = stderrW

	startErr := c.Start()
	_ = stdoutW.Close()
	_ = stderrW.Close()
	if startErr != nil {
		_ = stdout.Close()
		_ = stderr.Close()
		l.Logger.Error("Failed to start process", "error", startErr, "command", cmd.String())
		return nil, &LaunchError{Path: cmd.Path, Cause: startErr}
	}

	l.Logger.Info("Process started", "pid", c.Process.Pid, "command", cmd.String(), "dir", cmd.Dir)

	h := &execHandle{
		cmd:         c,
		done:        make(chan struct{}),
		logger:      l.Logger,
		gracePeriod: l.GracePeriod,
		killTimeout: l.KillTimeout,
	}

	go l.streamOutput(stdout, "stdout")
	go l.streamOutput(stderr, "stderr")
	go func() {
		h.exitCode = exitCodeFromError(c.Wait())
		close(h.done)
	}()

	return h, nil
}

// streamOutput forwards child output to the output handler and logger
// until every writer has closed the pipe, then closes it.
func (l *ExecLauncher) streamOutput(reader io.ReadCloser, source string) {
	defer reader.Close()
	scanner := bufio.NewScanner(reader)

	logger := l.OutputLogger
	if logger == nil {
		logger = l.Logger
	}

	for scanner.Scan() {
		line := scanner.Text()

		if l.Output != nil {
			l.Output.HandleLine(source, line)
		}

		level, msg := "info", line
		if l.LogParser != nil {
			level, msg = l.LogParser(line)
		}

		switch level {
		case "fatal", "error":
			logger.Error(msg, "source", source)
		case "warning", "warn":
			logger.Warn(msg, "source", source)
		case "debug", "trace":
			logger.Debug(msg, "source", source)
		default:
			logger.Info(msg, "source", source)
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		l.Logger.Warn("Error reading output", "source", source, "error", err)
	}
}

type execHandle struct {
	cmd         *exec.Cmd
	done        chan struct{}
	exitCode    int // written before done is closed
	logger      logging.Logger
	gracePeriod time.Duration
	killTimeout time.Duration
}

func (h *execHandle) Pid() int {
	return h.cmd.Process.Pid
}

func (h *execHandle) Exited() (bool, int) {
	select {
	case <-h.done:
		return true, h.exitCode
	default:
		return false, 0
	}
}

func (h *execHandle) Kill() error {
	if exited, _ := h.Exited(); exited {
		return nil
	}

	if h.gracePeriod > 0 {
		h.logger.Info("Sending SIGINT to process", "pid", h.Pid())
		if err := interruptGroup(h.cmd.Process); err != nil {
			h.logger.Warn("Failed to send SIGINT", "error", err)
		}
		select {
		case <-h.done:
			return nil
		case <-time.After(h.gracePeriod):
			h.logger.Warn("Graceful shutdown timeout, forcing kill", "timeout", h.gracePeriod)
		}
	}

	if err := killGroup(h.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		if exited, _ := h.Exited(); !exited {
			return err
		}
	}

	if h.killTimeout <= 0 {
		return nil
	}
	select {
	case <-h.done:
	case <-time.After(h.killTimeout):
		h.logger.Error("Process did not exit after kill signal", "pid", h.Pid())
	}
	return nil
}

// exitCodeFromError extracts the exit code from a Wait error.
// Returns 0 for nil, 128+signal for signalled processes, the exit code
// for other ExitErrors, or 1 for anything else.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code, ok := signalExitCode(exitErr.ProcessState); ok {
			return code
		}
		return exitErr.ExitCode()
	}
	return 1
}
