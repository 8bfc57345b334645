// Package component manages the pluggable parts of an activity. A Collection
// orders its components by their declared dependencies, starts them with
// rollback on failure and stops them without giving up on the first error.
package component

import "github.com/smazurov/liveactivity/internal/config"

// Component is one managed part of an activity.
type Component interface {
	// Name identifies the component within its collection.
	Name() string
	// Dependencies names the components that must be configured and
	// started before this one.
	Dependencies() []string
	Configure(cfg config.Provider) error
	Start() error
	Stop() error
	IsRunning() bool
}

// ErrorSink receives component failures that are not returned to a caller,
// such as rollback and shutdown errors.
type ErrorSink interface {
	OnComponentError(c Component, message string, cause error)
}

// ErrorSinkFunc adapts a function to ErrorSink.
type ErrorSinkFunc func(c Component, message string, cause error)

// OnComponentError implements ErrorSink.
func (f ErrorSinkFunc) OnComponentError(c Component, message string, cause error) {
	f(c, message, cause)
}
