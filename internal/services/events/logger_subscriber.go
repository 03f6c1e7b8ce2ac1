package events

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/extracta/internal/interfaces"
)

// NewLoggerSubscriber creates an event handler that logs all events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		logEvent := logger.Debug().
			Str("event_type", string(event.Type))

		switch payload := event.Payload.(type) {
		case interfaces.ExtractionEvent:
			logEvent = logEvent.
				Str("job_id", payload.JobID).
				Str("document_id", payload.DocumentID).
				Str("workflow_id", payload.WorkflowID).
				Str("status", payload.Status).
				Int64("attempt", payload.Attempt)
			if payload.Stage != "" {
				logEvent = logEvent.Str("stage", payload.Stage)
			}
		case interfaces.CountEvent:
			logEvent = logEvent.Int("count", payload.Count)
		}

		logEvent.Msg("Event published")
		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to all known event types
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)
	for _, eventType := range interfaces.AllEventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return err
		}
	}
	return nil
}
