package extraction

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is returned when a start request is missing an id or the document path
	ErrInvalidRequest = errors.New("invalid extraction request")

	// ErrNotStarted is returned when no extraction exists for the (document, workflow) pair
	ErrNotStarted = errors.New("extraction not started")

	// ErrShuttingDown is returned by Start once Shutdown has begun
	ErrShuttingDown = errors.New("extraction service is shutting down")

	// ErrProviderUnavailable is returned by Start when no provider credentials are configured
	ErrProviderUnavailable = errors.New("extraction provider is not configured")
)

// ConfigurationError means the workflow yielded no usable field ids
type ConfigurationError struct {
	WorkflowID string
	Total      int
	Rejected   []string
	Err        error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid fields configuration in workflow %s: %v", e.WorkflowID, e.Err)
	}
	if e.Total == 0 {
		return fmt.Sprintf("workflow %s has no fields configured", e.WorkflowID)
	}
	return fmt.Sprintf("no valid field ids found in workflow %s: all %d fields were invalid or missing fieldId", e.WorkflowID, e.Total)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
