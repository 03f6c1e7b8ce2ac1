package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/extracta/internal/interfaces"
	"github.com/ternarybob/extracta/internal/models"
)

// WorkflowStorage implements the WorkflowStorage interface for PostgreSQL
type WorkflowStorage struct {
	db     *DB
	logger arbor.ILogger
}

// NewWorkflowStorage creates a new WorkflowStorage instance
func NewWorkflowStorage(db *DB, logger arbor.ILogger) interfaces.WorkflowStorage {
	return &WorkflowStorage{db: db, logger: logger}
}

func (s *WorkflowStorage) Get(ctx context.Context, id string) (*models.Workflow, error) {
	var data []byte
	err := s.db.pool.QueryRow(ctx, `SELECT data FROM workflows WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrWorkflowNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	var workflow models.Workflow
	if err := json.Unmarshal(data, &workflow); err != nil {
		return nil, fmt.Errorf("failed to decode workflow: %w", err)
	}
	return &workflow, nil
}

func (s *WorkflowStorage) Save(ctx context.Context, workflow *models.Workflow) error {
	if workflow.ID == "" {
		return fmt.Errorf("workflow ID is required")
	}

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		var created time.Time
		if err := s.db.pool.QueryRow(ctx, `SELECT created_at FROM workflows WHERE id = $1`, workflow.ID).Scan(&created); err == nil {
			workflow.CreatedAt = created
		} else {
			workflow.CreatedAt = now
		}
	}
	workflow.UpdatedAt = now

	data, err := json.Marshal(workflow)
	if err != nil {
		return fmt.Errorf("failed to encode workflow: %w", err)
	}

	_, err = s.db.pool.Exec(ctx, `
		INSERT INTO workflows (id, created_at, updated_at, data) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET updated_at = EXCLUDED.updated_at, data = EXCLUDED.data`,
		workflow.ID, workflow.CreatedAt, workflow.UpdatedAt, data)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}
	return nil
}

func (s *WorkflowStorage) List(ctx context.Context) ([]*models.Workflow, error) {
	rows, err := s.db.pool.Query(ctx, `SELECT data FROM workflows ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	workflows := []*models.Workflow{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to read workflow: %w", err)
		}
		var workflow models.Workflow
		if err := json.Unmarshal(data, &workflow); err != nil {
			return nil, fmt.Errorf("failed to decode workflow: %w", err)
		}
		workflows = append(workflows, &workflow)
	}
	return workflows, rows.Err()
}

func (s *WorkflowStorage) Delete(ctx context.Context, id string) error {
	if _, err := s.db.pool.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	return nil
}
