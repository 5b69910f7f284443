package session

// Event represents a registry lifecycle event.
// Minimal and stable: name + model/session ids and optional fields via
// key/values.
type Event struct {
	Name      string
	ModelID   string
	SessionID int64
	Fields    map[string]any
}

// Lifecycle event names published by the registry.
const (
	EventModelLoaded      = "model_loaded"
	EventModelUnloaded    = "model_unloaded"
	EventSessionStarted   = "session_started"
	EventSessionCompleted = "session_completed"
	EventSessionCancelled = "session_cancelled"
)

// EventPublisher receives events from the registry. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
