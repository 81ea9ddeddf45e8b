package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/hugorneri/RPA-DCTFWEB/internal/interfaces"
)

type subscription struct {
	id      uint64
	handler interfaces.EventHandler
}

// Service implements EventService interface with pub/sub pattern
type Service struct {
	subscribers map[interfaces.EventType][]subscription
	nextID      uint64
	mu          sync.RWMutex
	wg          sync.WaitGroup
	logger      arbor.ILogger
}

// NewService creates a new event service
func NewService(logger arbor.ILogger) interfaces.EventService {
	return &Service{
		subscribers: make(map[interfaces.EventType][]subscription),
		logger:      logger,
	}
}

// Subscribe registers a handler for an event type
func (s *Service) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) (func(), error) {
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.subscribers[eventType] = append(s.subscribers[eventType], subscription{id: id, handler: handler})

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", len(s.subscribers[eventType])).
		Msg("Event handler subscribed")

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(eventType, id) })
	}, nil
}

func (s *Service) unsubscribe(eventType interfaces.EventType, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := s.subscribers[eventType]
	for i, sub := range subs {
		if sub.id == id {
			s.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

func (s *Service) handlers(eventType interfaces.EventType) []interfaces.EventHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := s.subscribers[eventType]
	handlers := make([]interfaces.EventHandler, len(subs))
	for i, sub := range subs {
		handlers[i] = sub.handler
	}
	return handlers
}

// Publish hands the event to every subscriber on its own goroutine
func (s *Service) Publish(ctx context.Context, event interfaces.Event) error {
	for _, handler := range s.handlers(event.Type) {
		s.wg.Add(1)
		go func(h interfaces.EventHandler) {
			defer s.wg.Done()
			if err := h(ctx, event); err != nil {
				s.logger.Error().
					Err(err).
					Str("event_type", string(event.Type)).
					Msg("Event handler failed")
			}
		}(handler)
	}
	return nil
}

// PublishSync sends an event to all subscribers and waits for them
func (s *Service) PublishSync(ctx context.Context, event interfaces.Event) error {
	handlers := s.handlers(event.Type)
	if len(handlers) == 0 {
		return nil
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, handler := range handlers {
		wg.Add(1)
		go func(h interfaces.EventHandler) {
			defer wg.Done()
			if err := h(ctx, event); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(handler)
	}
	wg.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("event handlers failed for %s: %w", event.Type, errors.Join(errs...))
	}
	return nil
}

// Close drops every subscriber and waits for in-flight asynchronous handlers
func (s *Service) Close() error {
	s.mu.Lock()
	s.subscribers = make(map[interfaces.EventType][]subscription)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Debug().Msg("Event service closed")
	return nil
}
