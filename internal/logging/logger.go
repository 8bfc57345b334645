package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// DefaultIdentifier is the journal SYSLOG_IDENTIFIER used when none is
// configured.
const DefaultIdentifier = "liveactivity"

// Logger is a duck-typed interface satisfied by *slog.Logger.
// Use this interface instead of *slog.Logger to decouple from the concrete type.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var (
	moduleLoggers   = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	moduleFormats   = make(map[string]string)
	globalConfig    Config
	globalLevelVar  = &slog.LevelVar{} // default level
	isInitialized   bool
	mutex           sync.RWMutex
)

// Config represents logging configuration.
type Config struct {
	Level      string            `toml:"level" yaml:"level"`
	Format     string            `toml:"format" yaml:"format"`
	Identifier string            `toml:"identifier" yaml:"identifier"`
	Modules    map[string]string `toml:"modules" yaml:"modules"`
}

// Initialize sets up the logging system. Loggers handed out earlier keep
// working; their levels follow the new configuration.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	if config.Format == "" {
		config.Format = "text"
	}
	if config.Identifier == "" {
		config.Identifier = DefaultIdentifier
	}
	globalConfig = config
	isInitialized = true

	globalLevelVar.Set(levelFor(config, ""))

	for module, levelVar := range moduleLevelVars {
		levelVar.Set(levelFor(config, module))

		// Loggers created with another format need a new handler chain.
		if moduleFormats[module] != config.Format {
			moduleLoggers[module] = newModuleLogger(module, config, levelVar)
			moduleFormats[module] = config.Format
		}
	}

	slog.SetDefault(slog.New(createHandler(config, globalLevelVar)))
}

// GetLogger returns a logger for the specified module, creating it if needed.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	if logger, exists := moduleLoggers[module]; exists {
		mutex.RUnlock()
		return logger
	}
	mutex.RUnlock()

	mutex.Lock()
	defer mutex.Unlock()

	// Double-check in case another goroutine created it
	if logger, exists := moduleLoggers[module]; exists {
		return logger
	}

	config := globalConfig
	if !isInitialized {
		config = Config{Format: "text", Identifier: DefaultIdentifier}
	}

	// Each module gets its own LevelVar so Initialize can change it later
	levelVar := &slog.LevelVar{}
	levelVar.Set(levelFor(config, module))

	logger := newModuleLogger(module, config, levelVar)
	moduleLoggers[module] = logger
	moduleLevelVars[module] = levelVar
	moduleFormats[module] = config.Format
	return logger
}

// SetModuleLevel changes one module's level at runtime. Unknown level names
// are ignored and reported as false.
func SetModuleLevel(module, level string) bool {
	parsed := parseLevel(level)
	if parsed == nil {
		return false
	}
	GetLogger(module)

	mutex.Lock()
	defer mutex.Unlock()
	moduleLevelVars[module].Set(*parsed)
	return true
}

func newModuleLogger(module string, config Config, level slog.Leveler) *slog.Logger {
	return slog.New(createHandler(config, level)).With("module", module)
}

// levelFor resolves the level of a module, or the global level for "".
func levelFor(config Config, module string) slog.Level {
	level := slog.LevelInfo
	if parsed := parseLevel(config.Level); parsed != nil {
		level = *parsed
	}
	if module == "" {
		return level
	}
	if levelStr, exists := config.Modules[module]; exists {
		if parsed := parseLevel(levelStr); parsed != nil {
			level = *parsed
		}
	}
	return level
}

// createHandler creates a slog handler for the configured format writing to
// stdout and, when available, the systemd journal.
// Level can be slog.Level or *slog.LevelVar for dynamic level changes.
func createHandler(config Config, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdoutHandler slog.Handler
	if config.Format == "json" {
		stdoutHandler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdoutHandler = slog.NewTextHandler(os.Stdout, opts)
	}

	var handlers []slog.Handler
	if isStdoutAvailable() {
		handlers = append(handlers, stdoutHandler)
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level, config.Identifier))
	}

	switch len(handlers) {
	case 0:
		return stdoutHandler // Fallback
	case 1:
		return handlers[0]
	default:
		return NewMultiHandler(handlers...)
	}
}

// isStdoutAvailable checks if stdout is connected to a terminal, pipe, socket, or file.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	// Available if terminal, pipe, socket, or regular file (not /dev/null which is ModeDevice)
	return (mode&os.ModeCharDevice) != 0 || (mode&os.ModeNamedPipe) != 0 || (mode&os.ModeSocket) != 0 || mode.IsRegular()
}

// parseLevel converts string level to slog.Level.
func parseLevel(level string) *slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		l := slog.LevelDebug
		return &l
	case "info":
		l := slog.LevelInfo
		return &l
	case "warn", "warning":
		l := slog.LevelWarn
		return &l
	case "error":
		l := slog.LevelError
		return &l
	default:
		return nil
	}
}
