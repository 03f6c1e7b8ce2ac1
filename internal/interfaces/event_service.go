package interfaces

import (
	"context"
	"time"
)

// EventType represents different event types in the system
type EventType string

const (
	// EventExtractionStarted is published when a start request claims a fresh attempt
	EventExtractionStarted EventType = "extraction_started"

	// EventExtractionProgress is published as the pipeline moves between stages
	EventExtractionProgress EventType = "extraction_progress"

	// EventExtractionCompleted is published when results are stored
	EventExtractionCompleted EventType = "extraction_completed"

	// EventExtractionFailed is published when an attempt fails, is cancelled or is swept
	EventExtractionFailed EventType = "extraction_failed"

	// EventFieldCatalogueSynced is published after the catalogue is stored locally
	EventFieldCatalogueSynced EventType = "field_catalogue_synced"

	// EventWorkflowsReloaded is published after workflow files are (re)loaded
	EventWorkflowsReloaded EventType = "workflows_reloaded"
)

// AllEventTypes lists every published event type
var AllEventTypes = []EventType{
	EventExtractionStarted,
	EventExtractionProgress,
	EventExtractionCompleted,
	EventExtractionFailed,
	EventFieldCatalogueSynced,
	EventWorkflowsReloaded,
}

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// ExtractionEvent is the payload of the extraction_* events
type ExtractionEvent struct {
	JobID      string    `json:"job_id"`
	DocumentID string    `json:"document_id"`
	WorkflowID string    `json:"workflow_id"`
	Status     string    `json:"status"`
	Stage      string    `json:"stage,omitempty"`
	Message    string    `json:"message,omitempty"`
	Attempt    int64     `json:"attempt"`
	Timestamp  time.Time `json:"timestamp"`
}

// CountEvent is the payload of catalogue and workflow events
type CountEvent struct {
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Unsubscribe from an event type
	Unsubscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
