package zuva

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingToken is returned by NewClient when neither a token nor a token source is configured
	ErrMissingToken = errors.New("zuva: api token is required")

	// ErrInvalidRegion is returned for a region other than us or eu
	ErrInvalidRegion = errors.New("zuva: invalid region")
)

// Pipeline stages reported by PipelineTimeoutError
const (
	StageUpload = "upload"
	StageSubmit = "submit"
	StagePoll   = "poll"
)

// AuthenticationError means the provider rejected the credentials. Terminal.
type AuthenticationError struct {
	Op      string
	Message string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("zuva authentication failed (%s): %s", e.Op, e.Message)
}

// ValidationError means the request was malformed, either locally or per a provider 400.
// Code and Message are the provider's own values when it supplied them.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("zuva validation error [%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("zuva validation error: %s", e.Message)
}

// NotFoundError means the provider does not know one of the referenced ids
type NotFoundError struct {
	Op      string
	Message string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("zuva %s: not found: %s", e.Op, e.Message)
}

// TransientNetworkError wraps a connection-level or timeout failure. Retried by RetryPolicy.
type TransientNetworkError struct {
	Op  string
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("zuva %s: network error: %v", e.Op, e.Err)
}

func (e *TransientNetworkError) Unwrap() error {
	return e.Err
}

// PipelineTimeoutError reports which stage exhausted its budget
type PipelineTimeoutError struct {
	Stage string
	After time.Duration
}

func (e *PipelineTimeoutError) Error() string {
	switch e.Stage {
	case StageUpload:
		return fmt.Sprintf("file upload timeout after %s", e.After)
	case StageSubmit:
		return fmt.Sprintf("extraction request timeout after %s", e.After)
	case StagePoll:
		return fmt.Sprintf("extraction did not complete within %s", e.After)
	}
	return fmt.Sprintf("%s timeout after %s", e.Stage, e.After)
}

// ProviderFailureError means the provider marked the extraction request failed
type ProviderFailureError struct {
	RequestID string
	Message   string
}

func (e *ProviderFailureError) Error() string {
	return fmt.Sprintf("zuva extraction failed: %s", e.Message)
}

// APIError is any other unexpected HTTP status
type APIError struct {
	Op         string
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zuva %s failed with status %d: %s (endpoint: %s)", e.Op, e.StatusCode, e.Message, e.Endpoint)
}

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool {
	var netErr *TransientNetworkError
	return errors.As(err, &netErr)
}

// IsTerminal reports whether err can never succeed on retry or further polling
func IsTerminal(err error) bool {
	var (
		authErr  *AuthenticationError
		valErr   *ValidationError
		nfErr    *NotFoundError
		failErr  *ProviderFailureError
		timedOut *PipelineTimeoutError
	)
	return errors.As(err, &authErr) ||
		errors.As(err, &valErr) ||
		errors.As(err, &nfErr) ||
		errors.As(err, &failErr) ||
		errors.As(err, &timedOut)
}
