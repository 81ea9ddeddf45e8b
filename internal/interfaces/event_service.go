package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	// EventRunProgress carries one progress report of the worker (message, current, total)
	EventRunProgress EventType = "run_progress"
	// EventRunState is published when a run starts, waits for login, stops or finishes
	EventRunState EventType = "run_state"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe registers handler and returns a function that removes it
	Subscribe(eventType EventType, handler EventHandler) (func(), error)

	// Publish delivers the event to all subscribers without blocking the publisher
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
