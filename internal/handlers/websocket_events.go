package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/extracta/internal/common"
	"github.com/ternarybob/extracta/internal/interfaces"
	"golang.org/x/time/rate"
)

// EventSubscriber bridges event bus events to WebSocket broadcasts
type EventSubscriber struct {
	handler       *WebSocketHandler
	eventService  interfaces.EventService
	logger        arbor.ILogger
	allowedEvents map[string]bool // Whitelist of events to broadcast (empty = allow all)
	interval      time.Duration   // Minimum spacing of progress events per job (0 = no throttling)

	mu         sync.Mutex
	throttlers map[string]*rate.Limiter // keyed by job id
}

// NewEventSubscriber creates an event subscriber and subscribes it to every event type.
// Config drives the event whitelist and progress throttling.
func NewEventSubscriber(handler *WebSocketHandler, eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *EventSubscriber {
	s := &EventSubscriber{
		handler:       handler,
		eventService:  eventService,
		logger:        logger,
		allowedEvents: make(map[string]bool),
		throttlers:    make(map[string]*rate.Limiter),
	}

	if config != nil {
		for _, eventType := range config.AllowedEvents {
			s.allowedEvents[eventType] = true
		}
		if config.Throttle != "" {
			if duration, err := time.ParseDuration(config.Throttle); err == nil {
				s.interval = duration
				logger.Debug().
					Str("interval", config.Throttle).
					Msg("Throttling extraction progress events")
			} else {
				logger.Warn().
					Err(err).
					Str("interval", config.Throttle).
					Msg("Failed to parse websocket throttle interval - throttling disabled")
			}
		}
	}

	if eventService == nil {
		logger.Warn().Msg("EventSubscriber created with nil eventService - subscriptions will be skipped")
		return s
	}

	s.SubscribeAll()
	return s
}

// SubscribeAll registers the broadcast handler for every published event type
func (s *EventSubscriber) SubscribeAll() {
	for _, eventType := range interfaces.AllEventTypes {
		if err := s.eventService.Subscribe(eventType, s.handleEvent); err != nil {
			s.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to subscribe to event")
		}
	}
	s.logger.Debug().Int("event_types", len(interfaces.AllEventTypes)).Msg("EventSubscriber registered for all events")
}

func (s *EventSubscriber) handleEvent(ctx context.Context, event interfaces.Event) error {
	if !s.shouldBroadcastEvent(event) {
		return nil
	}
	s.handler.Broadcast(WSMessage{
		Type:    string(event.Type),
		Payload: event.Payload,
	})
	return nil
}

// shouldBroadcastEvent checks the whitelist, then throttles progress events per job.
// Lifecycle transitions are never throttled and release the job's limiter.
func (s *EventSubscriber) shouldBroadcastEvent(event interfaces.Event) bool {
	eventType := string(event.Type)
	if len(s.allowedEvents) > 0 && !s.allowedEvents[eventType] {
		return false
	}

	payload, ok := event.Payload.(interfaces.ExtractionEvent)
	if !ok || s.interval <= 0 {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch event.Type {
	case interfaces.EventExtractionProgress:
		limiter, exists := s.throttlers[payload.JobID]
		if !exists {
			limiter = rate.NewLimiter(rate.Every(s.interval), 1)
			s.throttlers[payload.JobID] = limiter
		}
		if !limiter.Allow() {
			s.logger.Debug().
				Str("event_type", eventType).
				Str("job_id", payload.JobID).
				Msg("Event throttled - rate limit exceeded")
			return false
		}
	case interfaces.EventExtractionCompleted, interfaces.EventExtractionFailed:
		delete(s.throttlers, payload.JobID)
	}
	return true
}
