// -----------------------------------------------------------------------
// Extraction Job - one provider extraction per (document, workflow) pair
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of an ExtractionJob
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusComplete   JobStatus = "complete"
	JobStatusFailed     JobStatus = "failed"
)

// IsActive reports whether a pipeline may still be writing to the job
func (s JobStatus) IsActive() bool {
	return s == JobStatusPending || s == JobStatusProcessing
}

// IsTerminal reports whether the job reached complete or failed
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed
}

// Valid reports whether s is one of the four known states
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusComplete, JobStatusFailed:
		return true
	}
	return false
}

// ExtractionJob tracks one extraction attempt for a (document, workflow) pair.
//
// Attempt is an optimistic concurrency token: every pipeline run captures the
// value it was started with and all of its writes are rejected once Attempt has
// moved on (retry or cancel).
type ExtractionJob struct {
	ID           string `json:"id"`
	DocumentID   string `json:"document_id"`
	WorkflowID   string `json:"workflow_id"`
	DocumentPath string `json:"document_path,omitempty"`

	FieldIDs          []string `json:"field_ids,omitempty"`
	ProviderFileID    string   `json:"provider_file_id,omitempty"`
	ProviderRequestID string   `json:"provider_request_id,omitempty"`

	Status         JobStatus                  `json:"status"`
	Results        map[string][]Extraction    `json:"results,omitempty"`
	AnswerMetadata map[string]*AnswerMetadata `json:"answer_metadata,omitempty"`
	ErrorMessage   string                     `json:"error_message,omitempty"`

	Attempt int64 `json:"attempt"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// PairKey returns the unique key of the job's (document, workflow) pair
func (j *ExtractionJob) PairKey() string {
	return PairKey(j.DocumentID, j.WorkflowID)
}

// PairKey builds the unique store key for a (document, workflow) pair
func PairKey(documentID, workflowID string) string {
	return fmt.Sprintf("%s\x00%s", documentID, workflowID)
}

// ResetForRetry prepares a failed job for a new attempt.
// ProviderFileID survives so a retry can resume from the uploaded file.
func (j *ExtractionJob) ResetForRetry(now time.Time) {
	j.Status = JobStatusPending
	j.Attempt++
	j.ProviderRequestID = ""
	j.Results = nil
	j.AnswerMetadata = nil
	j.ErrorMessage = ""
	j.StartedAt = nil
	j.CompletedAt = nil
	j.UpdatedAt = now
}

// MarkFailed moves the job to failed with the given message
func (j *ExtractionJob) MarkFailed(message string, now time.Time) {
	j.Status = JobStatusFailed
	j.ErrorMessage = message
	j.Results = nil
	j.AnswerMetadata = nil
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Extraction is one located occurrence of a field value in a document
type Extraction struct {
	Text        string          `json:"text"`
	Page        *int            `json:"page"`
	BoundingBox *BoundingBox    `json:"bbox"`
	Confidence  *float64        `json:"confidence"`
	Spans       json.RawMessage `json:"spans,omitempty"`
}

// BoundingBox is ordered left, bottom, right, top in PDF coordinates
type BoundingBox [4]float64

func (b BoundingBox) Left() float64   { return b[0] }
func (b BoundingBox) Bottom() float64 { return b[1] }
func (b BoundingBox) Right() float64  { return b[2] }
func (b BoundingBox) Top() float64    { return b[3] }

// Answer is one option chosen by the provider's classifier
type Answer struct {
	Option string `json:"option"`
	Value  string `json:"value"`
}

// AnswerMetadata describes a classification (answer-type) field result
type AnswerMetadata struct {
	FieldName     string            `json:"field_name"`
	Answers       []Answer          `json:"answers"`
	HasAnswers    bool              `json:"has_answers"`
	AnswerOptions map[string]string `json:"answer_options,omitempty"`
}
