package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers
// Usage: bus.Publish(ActivityStatusChanged{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case ActivityStatusChanged:
		event.Publish(b.dispatcher, e)
	case ComponentError:
		event.Publish(b.dispatcher, e)
	case ProcessStateChanged:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler type determines which events it receives.
// Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e ComponentError) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(ActivityStatusChanged):
		return event.Subscribe(b.dispatcher, h)
	case func(ComponentError):
		return event.Subscribe(b.dispatcher, h)
	case func(ProcessStateChanged):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Return a no-op function if handler type is not recognized
		return func() {}
	}
}
