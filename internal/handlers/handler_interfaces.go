package handlers

import (
	"context"

	"github.com/ternarybob/extracta/internal/models"
	"github.com/ternarybob/extracta/internal/services/extraction"
	"github.com/ternarybob/extracta/internal/services/fields"
	"github.com/ternarybob/extracta/internal/services/scheduler"
)

// ExtractionService defines the extraction operations exposed over HTTP.
type ExtractionService interface {
	Start(ctx context.Context, documentID, workflowID, documentPath string) (*models.ExtractionJob, error)
	GetStatus(ctx context.Context, documentID, workflowID string) (*extraction.StatusSummary, error)
	GetResults(ctx context.Context, documentID, workflowID string) (*extraction.ResultsView, bool, error)
	ListForDocument(ctx context.Context, documentID string) ([]*extraction.ResultsView, error)
	Cancel(ctx context.Context, documentID, workflowID string) (bool, error)
	DeleteForDocument(ctx context.Context, documentID string) (int, error)
	Running() int
}

// ReportRenderer renders a results view as a PDF document.
type ReportRenderer interface {
	Render(view *extraction.ResultsView, order []string) ([]byte, error)
}

// WorkflowService defines workflow definition management.
type WorkflowService interface {
	Save(ctx context.Context, workflow *models.Workflow) error
	Get(ctx context.Context, id string) (*models.Workflow, error)
	List(ctx context.Context) ([]*models.Workflow, error)
	Delete(ctx context.Context, id string) error
}

// FieldCatalogue defines read access to the synced field catalogue.
type FieldCatalogue interface {
	List(ctx context.Context, refresh bool, filter fields.Filter) ([]*models.FieldDefinition, error)
	Get(ctx context.Context, fieldID string) (*models.FieldDefinition, error)
}

// SchedulerStatus reports background task state.
type SchedulerStatus interface {
	IsRunning() bool
	GetAllJobStatuses() []*scheduler.JobStatus
	TriggerJob(name string) error
}
