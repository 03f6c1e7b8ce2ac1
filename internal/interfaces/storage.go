// -----------------------------------------------------------------------
// Storage interfaces - extraction records, workflows, field catalogue
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/extracta/internal/models"
)

var (
	// ErrJobNotFound is returned when no extraction job matches the lookup
	ErrJobNotFound = errors.New("extraction job not found")

	// ErrStaleAttempt is returned when a write carries an attempt token that has been superseded
	ErrStaleAttempt = errors.New("extraction attempt superseded")

	// ErrWorkflowNotFound is returned when no workflow matches the id
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrFieldNotFound is returned when no catalogue entry matches the field id
	ErrFieldNotFound = errors.New("field not found")
)

// ClaimResult reports the outcome of ExtractionStorage.Claim
type ClaimResult struct {
	Job *models.ExtractionJob

	// Claimed is true when the caller owns a fresh attempt (job created or reset from failed)
	Claimed bool

	// Created is true when no job existed for the pair before the claim
	Created bool
}

// ExtractionStorage persists extraction jobs keyed by id and unique per (document, workflow)
type ExtractionStorage interface {
	// Get returns the job by id or ErrJobNotFound
	Get(ctx context.Context, jobID string) (*models.ExtractionJob, error)

	// GetByKey returns the job for the pair or ErrJobNotFound
	GetByKey(ctx context.Context, documentID, workflowID string) (*models.ExtractionJob, error)

	// Claim atomically inserts a pending job when the pair has none, resets a failed
	// job to pending with a new attempt, or returns an active/complete job untouched.
	// template supplies DocumentPath and FieldIDs for the new attempt.
	Claim(ctx context.Context, template *models.ExtractionJob) (*ClaimResult, error)

	// Update applies mutate to the job only while its attempt equals attempt.
	// Returns ErrStaleAttempt when the attempt has moved on.
	Update(ctx context.Context, jobID string, attempt int64, mutate func(job *models.ExtractionJob) error) (*models.ExtractionJob, error)

	// Cancel fails an active job with message and bumps its attempt.
	// Returns false when the job is absent or not active.
	Cancel(ctx context.Context, documentID, workflowID, message string) (*models.ExtractionJob, bool, error)

	// ListByDocument returns every job of a document, newest first
	ListByDocument(ctx context.Context, documentID string) ([]*models.ExtractionJob, error)

	// ListByStatus returns jobs in status last updated before the cutoff (zero cutoff = any)
	ListByStatus(ctx context.Context, status models.JobStatus, updatedBefore time.Time) ([]*models.ExtractionJob, error)

	// DeleteByDocument removes every job of a document and returns the count
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
}

// WorkflowStorage persists workflow definitions
type WorkflowStorage interface {
	Get(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	List(ctx context.Context) ([]*models.Workflow, error)
	Delete(ctx context.Context, id string) error
}

// FieldStorage persists the locally synced provider field catalogue
type FieldStorage interface {
	Get(ctx context.Context, fieldID string) (*models.FieldDefinition, error)
	List(ctx context.Context) ([]*models.FieldDefinition, error)
	SaveAll(ctx context.Context, fields []models.FieldDefinition) (int, error)
}

// StorageManager aggregates the storages behind one backend
type StorageManager interface {
	ExtractionStorage() ExtractionStorage
	WorkflowStorage() WorkflowStorage
	FieldStorage() FieldStorage
	Close() error
}
