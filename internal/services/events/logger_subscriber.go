package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/hugorneri/RPA-DCTFWEB/internal/interfaces"
)

// Fielder is implemented by payloads that expose structured log fields
type Fielder interface {
	LogFields() map[string]string
}

// NewLoggerSubscriber creates an event handler that logs every event it receives
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		logEvent := logger.Debug().
			Str("event_type", string(event.Type))

		if payload, ok := event.Payload.(Fielder); ok {
			for k, v := range payload.LogFields() {
				if v != "" {
					logEvent = logEvent.Str(k, v)
				}
			}
		}

		logEvent.Msg("Event published")
		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to all run event types.
// The returned function removes every subscription.
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) (func(), error) {
	subscriber := NewLoggerSubscriber(logger)

	eventTypes := []interfaces.EventType{
		interfaces.EventRunState,
		interfaces.EventRunProgress,
	}

	var unsubscribes []func()
	unsubscribeAll := func() {
		for _, u := range unsubscribes {
			u()
		}
	}

	for _, eventType := range eventTypes {
		unsubscribe, err := eventService.Subscribe(eventType, subscriber)
		if err != nil {
			unsubscribeAll()
			return nil, fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
		unsubscribes = append(unsubscribes, unsubscribe)
	}

	logger.Debug().
		Int("event_type_count", len(eventTypes)).
		Msg("Logger subscribed to run events")

	return unsubscribeAll, nil
}
