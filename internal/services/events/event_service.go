package events

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/extracta/internal/common"
	"github.com/ternarybob/extracta/internal/interfaces"
)

// DefaultQueueSize is the number of asynchronous events buffered before Publish drops
const DefaultQueueSize = 512

// ErrClosed is returned by Publish after Close
var ErrClosed = errors.New("event service closed")

type envelope struct {
	ctx   context.Context
	event interfaces.Event
}

// Service is an in-process event bus. Asynchronous events are delivered by a single
// dispatcher goroutine in publish order, so a job's completed event never overtakes
// its progress events.
type Service struct {
	subscribers map[interfaces.EventType][]interfaces.EventHandler
	mu          sync.RWMutex
	logger      arbor.ILogger

	queue     chan envelope
	closed    bool
	done      chan struct{}
	published atomic.Int64
	dropped   atomic.Int64
}

// NewService creates a new event service
func NewService(logger arbor.ILogger) interfaces.EventService {
	return newService(logger, DefaultQueueSize)
}

func newService(logger arbor.ILogger, queueSize int) *Service {
	s := &Service{
		subscribers: make(map[interfaces.EventType][]interfaces.EventHandler),
		logger:      logger,
		queue:       make(chan envelope, queueSize),
		done:        make(chan struct{}),
	}
	common.SafeGo(logger, "event-dispatcher", s.dispatch)
	return s
}

// Subscribe registers a handler for an event type
func (s *Service) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers[eventType] = append(s.subscribers[eventType], handler)

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", len(s.subscribers[eventType])).
		Msg("Event handler subscribed")

	return nil
}

// Unsubscribe removes a handler from an event type
func (s *Service) Unsubscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := reflect.ValueOf(handler).Pointer()
	handlers := s.subscribers[eventType]
	for i, h := range handlers {
		if reflect.ValueOf(h).Pointer() == target {
			s.subscribers[eventType] = append(handlers[:i:i], handlers[i+1:]...)
			return nil
		}
	}

	return fmt.Errorf("handler not found for event type: %s", eventType)
}

// Publish queues event for ordered asynchronous delivery. A full queue drops the
// event with a warning rather than blocking the extraction pipeline.
func (s *Service) Publish(ctx context.Context, event interfaces.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	select {
	case s.queue <- envelope{ctx: context.WithoutCancel(ctx), event: event}:
		s.published.Add(1)
		return nil
	default:
		dropped := s.dropped.Add(1)
		s.logger.Warn().
			Str("event_type", string(event.Type)).
			Int64("dropped_total", dropped).
			Msg("Event queue full, dropping event")
		return nil
	}
}

// PublishSync delivers event to every subscriber on the calling goroutine, in
// subscription order, and reports how many handlers failed
func (s *Service) PublishSync(ctx context.Context, event interfaces.Event) error {
	failed := s.deliver(ctx, event)
	if failed > 0 {
		return fmt.Errorf("event handlers failed: %d errors", failed)
	}
	return nil
}

// Stats returns the number of queued and dropped asynchronous events
func (s *Service) Stats() (published, dropped int64) {
	return s.published.Load(), s.dropped.Load()
}

// Close stops accepting events and waits for queued ones to be delivered
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done

	s.mu.Lock()
	s.subscribers = make(map[interfaces.EventType][]interfaces.EventHandler)
	s.mu.Unlock()

	published, dropped := s.Stats()
	s.logger.Info().
		Int64("published", published).
		Int64("dropped", dropped).
		Msg("Event service closed")

	return nil
}

func (s *Service) dispatch() {
	defer close(s.done)
	for env := range s.queue {
		s.deliver(env.ctx, env.event)
	}
}

func (s *Service) deliver(ctx context.Context, event interfaces.Event) int {
	s.mu.RLock()
	handlers := append([]interfaces.EventHandler(nil), s.subscribers[event.Type]...)
	s.mu.RUnlock()

	failed := 0
	for _, h := range handlers {
		if err := common.RunSafely(s.logger, "event:"+string(event.Type), func() error { return h(ctx, event) }); err != nil {
			failed++
			s.logger.Error().
				Err(err).
				Str("event_type", string(event.Type)).
				Msg("Event handler failed")
		}
	}
	return failed
}
