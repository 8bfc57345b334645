package process

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/smazurov/liveactivity/internal/config"
)

// Configuration keys read by the command builders.
const (
	KeyExecutablePath        = "executablePath"
	KeyExecutableFlags       = "executableFlags"
	KeyExecutableEnvironment = "executableEnvironment"

	// Keys under this prefix configure the supervisor and are never turned
	// into command line flags.
	restartKeyPrefix = "restart."
)

// Command is a fully built command line.
type Command struct {
	Path string
	Args []string
	// Env modifies the inherited environment. A nil value removes the
	// variable.
	Env map[string]*string
	Dir string
	// CleanEnv starts from an empty environment instead of the parent's.
	CleanEnv bool
}

// String renders the command line for logging.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quoteArg(c.Path))
	for _, a := range c.Args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}

// Environ applies Env to base and returns the result in KEY=VALUE form,
// sorted by key.
func (c Command) Environ(base []string) []string {
	vars := make(map[string]string)
	if !c.CleanEnv {
		for _, kv := range base {
			if k, v, ok := strings.Cut(kv, "="); ok {
				vars[k] = v
			}
		}
	}
	for k, v := range c.Env {
		if v == nil {
			delete(vars, k)
			continue
		}
		vars[k] = *v
	}

	env := make([]string, 0, len(vars))
	for k, v := range vars {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

func quoteArg(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\"'") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

// CommandBuilder builds a command line from configuration.
type CommandBuilder func(cfg config.Provider) (Command, error)

// BuilderFor returns the command builder for an operating system, as named
// by runtime.GOOS.
func BuilderFor(goos string) CommandBuilder {
	p := platform{goos: goos}
	if goos == "windows" {
		p.exeSuffix = ".exe"
	}
	return p.build
}

type platform struct {
	goos      string
	exeSuffix string
}

// build reads executablePath (required), executableFlags and
// executableEnvironment. An OS specific variant such as
// "executablePath.linux" wins over the plain key. Every other key becomes a
// "--key=value" flag, in key order.
func (p platform) build(cfg config.Provider) (Command, error) {
	path, err := p.lookupRequired(cfg, KeyExecutablePath)
	if err != nil {
		return Command{}, err
	}
	if p.exeSuffix != "" && filepath.Ext(path) == "" {
		path += p.exeSuffix
	}
	if strings.ContainsRune(path, '/') || strings.ContainsRune(path, filepath.Separator) {
		if abs, absErr := filepath.Abs(path); absErr == nil {
			path = abs
		}
	}

	cmd := Command{Path: path}
	if filepath.IsAbs(path) {
		cmd.Dir = filepath.Dir(path)
	}

	if flags, ok := p.lookup(cfg, KeyExecutableFlags); ok {
		args, parseErr := parseCommand(flags)
		if parseErr != nil {
			return Command{}, &config.InvalidValueError{Key: KeyExecutableFlags, Value: flags, Cause: parseErr}
		}
		cmd.Args = append(cmd.Args, args...)
	}

	if vars, ok := p.lookup(cfg, KeyExecutableEnvironment); ok {
		env, parseErr := parseEnvironment(vars)
		if parseErr != nil {
			return Command{}, &config.InvalidValueError{Key: KeyExecutableEnvironment, Value: vars, Cause: parseErr}
		}
		cmd.Env = env
	}

	for _, key := range cfg.Keys() {
		if isReservedKey(key) {
			continue
		}
		value, _ := cfg.Get(key)
		if value == "" {
			cmd.Args = append(cmd.Args, "--"+key)
			continue
		}
		cmd.Args = append(cmd.Args, "--"+key+"="+value)
	}

	return cmd, nil
}

func (p platform) lookup(cfg config.Provider, key string) (string, bool) {
	if v, ok := cfg.Get(key + "." + p.goos); ok {
		return v, true
	}
	return cfg.Get(key)
}

func (p platform) lookupRequired(cfg config.Provider, key string) (string, error) {
	if v, ok := p.lookup(cfg, key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), nil
	}
	return cfg.Required(key)
}

func isReservedKey(key string) bool {
	if strings.HasPrefix(key, restartKeyPrefix) {
		return true
	}
	for _, reserved := range []string{KeyExecutablePath, KeyExecutableFlags, KeyExecutableEnvironment} {
		if key == reserved || strings.HasPrefix(key, reserved+".") {
			return true
		}
	}
	return false
}

// parseCommand splits a flag string into arguments.
// Handles quoted strings and backslash escaping.
func parseCommand(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuote := false
	inToken := false
	quoteChar := rune(0)

	runes := []rune(strings.TrimSpace(command))

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'':
			switch {
			case !inQuote:
				inQuote = true
				inToken = true
				quoteChar = r
			case r == quoteChar:
				inQuote = false
				quoteChar = 0
			default:
				current.WriteRune(r)
			}
		case unicode.IsSpace(r) && !inQuote:
			if inToken {
				args = append(args, current.String())
				current.Reset()
				inToken = false
			}
		case r == '\\' && i+1 < len(runes):
			i++
			current.WriteRune(runes[i])
			inToken = true
		default:
			current.WriteRune(r)
			inToken = true
		}
	}

	if inQuote {
		return nil, fmt.Errorf("unclosed quote in command")
	}
	if inToken {
		args = append(args, current.String())
	}

	return args, nil
}

// parseEnvironment reads "A=1 B=two\ words C". A name without "=" removes
// the variable from the child's environment.
func parseEnvironment(vars string) (map[string]*string, error) {
	tokens, err := parseCommand(vars)
	if err != nil {
		return nil, err
	}

	env := make(map[string]*string, len(tokens))
	for _, tok := range tokens {
		name, value, hasValue := strings.Cut(tok, "=")
		if name == "" {
			return nil, fmt.Errorf("environment entry %q has no name", tok)
		}
		if !hasValue {
			env[name] = nil
			continue
		}
		env[name] = &value
	}
	return env, nil
}
