package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/extracta/internal/interfaces"
	"github.com/ternarybob/extracta/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// WorkflowStorage implements the WorkflowStorage interface for Badger
type WorkflowStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewWorkflowStorage creates a new WorkflowStorage instance
func NewWorkflowStorage(db *BadgerDB, logger arbor.ILogger) interfaces.WorkflowStorage {
	return &WorkflowStorage{
		db:     db,
		logger: logger,
	}
}

func (s *WorkflowStorage) Get(ctx context.Context, id string) (*models.Workflow, error) {
	var workflow models.Workflow
	if err := s.db.Store().Get(id, &workflow); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrWorkflowNotFound, id)
		}
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return &workflow, nil
}

func (s *WorkflowStorage) Save(ctx context.Context, workflow *models.Workflow) error {
	if workflow.ID == "" {
		return fmt.Errorf("workflow ID is required")
	}

	now := time.Now().UTC()
	var existing models.Workflow
	if err := s.db.Store().Get(workflow.ID, &existing); err == nil && workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = existing.CreatedAt
	}
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}
	workflow.UpdatedAt = now

	if err := s.db.Store().Upsert(workflow.ID, workflow); err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}
	return nil
}

func (s *WorkflowStorage) List(ctx context.Context) ([]*models.Workflow, error) {
	var workflows []models.Workflow
	if err := s.db.Store().Find(&workflows, badgerhold.Where("ID").Ne("").SortBy("ID")); err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	result := make([]*models.Workflow, len(workflows))
	for i := range workflows {
		result[i] = &workflows[i]
	}
	return result, nil
}

func (s *WorkflowStorage) Delete(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Workflow{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	return nil
}
