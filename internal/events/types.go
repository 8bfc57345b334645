package events

// Event type constants for kelindar/event.
const (
	TypeActivityStatusChanged uint32 = iota + 1
	TypeComponentError
	TypeProcessStateChanged
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ActivityStatusChanged is published whenever an activity's status changes.
type ActivityStatusChanged struct {
	ActivityID   string `json:"activity_id"`
	ActivityName string `json:"activity_name"`
	OldState     string `json:"old_state"`
	NewState     string `json:"new_state"`
	Description  string `json:"description"`
	Detail       string `json:"detail,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// Type returns the event type identifier for ActivityStatusChanged.
func (e ActivityStatusChanged) Type() uint32 { return TypeActivityStatusChanged }

// ComponentError reports a component failure that was handled rather than
// returned, such as a failed stop during rollback.
type ComponentError struct {
	ActivityID string `json:"activity_id"`
	Component  string `json:"component"`
	Message    string `json:"message"`
	Error      string `json:"error,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// Type returns the event type identifier for ComponentError.
func (e ComponentError) Type() uint32 { return TypeComponentError }

// ProcessStateChanged is published by supervised native processes.
type ProcessStateChanged struct {
	Process   string `json:"process"`
	OldState  string `json:"old_state"`
	NewState  string `json:"new_state"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for ProcessStateChanged.
func (e ProcessStateChanged) Type() uint32 { return TypeProcessStateChanged }
