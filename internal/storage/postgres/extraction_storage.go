package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/extracta/internal/common"
	"github.com/ternarybob/extracta/internal/interfaces"
	"github.com/ternarybob/extracta/internal/models"
)

// errClaimRace means a concurrent claim inserted the pair between our select and insert
var errClaimRace = errors.New("concurrent claim")

const maxClaimRetries = 3

// ExtractionStorage implements the ExtractionStorage interface for PostgreSQL
type ExtractionStorage struct {
	db     *DB
	logger arbor.ILogger
	now    func() time.Time
}

// NewExtractionStorage creates a new ExtractionStorage instance
func NewExtractionStorage(db *DB, logger arbor.ILogger) interfaces.ExtractionStorage {
	return &ExtractionStorage{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func scanJob(row pgx.Row) (*models.ExtractionJob, error) {
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, interfaces.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to read extraction job: %w", err)
	}

	var job models.ExtractionJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode extraction job: %w", err)
	}
	return &job, nil
}

func collectJobs(rows pgx.Rows) ([]*models.ExtractionJob, error) {
	defer rows.Close()

	jobs := []*models.ExtractionJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list extraction jobs: %w", err)
	}
	return jobs, nil
}

func (s *ExtractionStorage) Get(ctx context.Context, jobID string) (*models.ExtractionJob, error) {
	return scanJob(s.db.pool.QueryRow(ctx, `SELECT data FROM extraction_jobs WHERE id = $1`, jobID))
}

func (s *ExtractionStorage) GetByKey(ctx context.Context, documentID, workflowID string) (*models.ExtractionJob, error) {
	return scanJob(s.db.pool.QueryRow(ctx,
		`SELECT data FROM extraction_jobs WHERE document_id = $1 AND workflow_id = $2`,
		documentID, workflowID))
}

func insertJob(ctx context.Context, tx pgx.Tx, job *models.ExtractionJob) (bool, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("failed to encode extraction job: %w", err)
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO extraction_jobs (id, document_id, workflow_id, status, attempt, created_at, updated_at, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (document_id, workflow_id) DO NOTHING`,
		job.ID, job.DocumentID, job.WorkflowID, string(job.Status), job.Attempt, job.CreatedAt, job.UpdatedAt, data)
	if err != nil {
		return false, fmt.Errorf("failed to insert extraction job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func saveJob(ctx context.Context, tx pgx.Tx, job *models.ExtractionJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode extraction job: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE extraction_jobs SET status = $2, attempt = $3, updated_at = $4, data = $5
		WHERE id = $1`,
		job.ID, string(job.Status), job.Attempt, job.UpdatedAt, data)
	if err != nil {
		return fmt.Errorf("failed to update extraction job: %w", err)
	}
	return nil
}

func (s *ExtractionStorage) Claim(ctx context.Context, template *models.ExtractionJob) (*interfaces.ClaimResult, error) {
	if template.DocumentID == "" || template.WorkflowID == "" {
		return nil, fmt.Errorf("document id and workflow id are required")
	}

	for i := 0; i < maxClaimRetries; i++ {
		result, err := s.claimOnce(ctx, template)
		if errors.Is(err, errClaimRace) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if result.Claimed {
			s.logger.Debug().
				Str("job_id", result.Job.ID).
				Int64("attempt", result.Job.Attempt).
				Bool("created", result.Created).
				Msg("Extraction job claimed")
		}
		return result, nil
	}
	return nil, fmt.Errorf("failed to claim extraction job after %d attempts", maxClaimRetries)
}

func (s *ExtractionStorage) claimOnce(ctx context.Context, template *models.ExtractionJob) (*interfaces.ClaimResult, error) {
	var result *interfaces.ClaimResult
	err := pgx.BeginFunc(ctx, s.db.pool, func(tx pgx.Tx) error {
		now := s.now()

		existing, err := scanJob(tx.QueryRow(ctx,
			`SELECT data FROM extraction_jobs WHERE document_id = $1 AND workflow_id = $2 FOR UPDATE`,
			template.DocumentID, template.WorkflowID))

		switch {
		case errors.Is(err, interfaces.ErrJobNotFound):
			job := &models.ExtractionJob{
				ID:           template.ID,
				DocumentID:   template.DocumentID,
				WorkflowID:   template.WorkflowID,
				DocumentPath: template.DocumentPath,
				FieldIDs:     template.FieldIDs,
				Status:       models.JobStatusPending,
				Attempt:      1,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if job.ID == "" {
				job.ID = common.NewExtractionID()
			}
			inserted, err := insertJob(ctx, tx, job)
			if err != nil {
				return err
			}
			if !inserted {
				return errClaimRace
			}
			result = &interfaces.ClaimResult{Job: job, Claimed: true, Created: true}

		case err != nil:
			return err

		case existing.Status == models.JobStatusFailed:
			if template.DocumentPath != "" && template.DocumentPath != existing.DocumentPath {
				existing.DocumentPath = template.DocumentPath
				existing.ProviderFileID = ""
			}
			existing.FieldIDs = template.FieldIDs
			existing.ResetForRetry(now)
			if err := saveJob(ctx, tx, existing); err != nil {
				return err
			}
			result = &interfaces.ClaimResult{Job: existing, Claimed: true}

		default:
			result = &interfaces.ClaimResult{Job: existing}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *ExtractionStorage) Update(ctx context.Context, jobID string, attempt int64, mutate func(job *models.ExtractionJob) error) (*models.ExtractionJob, error) {
	var updated *models.ExtractionJob
	err := pgx.BeginFunc(ctx, s.db.pool, func(tx pgx.Tx) error {
		job, err := scanJob(tx.QueryRow(ctx, `SELECT data FROM extraction_jobs WHERE id = $1 FOR UPDATE`, jobID))
		if err != nil {
			return err
		}
		if job.Attempt != attempt {
			return interfaces.ErrStaleAttempt
		}
		if err := mutate(job); err != nil {
			return err
		}
		job.UpdatedAt = s.now()
		if err := saveJob(ctx, tx, job); err != nil {
			return err
		}
		updated = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *ExtractionStorage) Cancel(ctx context.Context, documentID, workflowID, message string) (*models.ExtractionJob, bool, error) {
	var (
		job       *models.ExtractionJob
		cancelled bool
	)
	err := pgx.BeginFunc(ctx, s.db.pool, func(tx pgx.Tx) error {
		var err error
		job, err = scanJob(tx.QueryRow(ctx,
			`SELECT data FROM extraction_jobs WHERE document_id = $1 AND workflow_id = $2 FOR UPDATE`,
			documentID, workflowID))
		if errors.Is(err, interfaces.ErrJobNotFound) {
			job = nil
			return nil
		}
		if err != nil {
			return err
		}
		if !job.Status.IsActive() {
			return nil
		}

		job.MarkFailed(message, s.now())
		job.Attempt++
		if err := saveJob(ctx, tx, job); err != nil {
			return err
		}
		cancelled = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return job, cancelled, nil
}

func (s *ExtractionStorage) ListByDocument(ctx context.Context, documentID string) ([]*models.ExtractionJob, error) {
	rows, err := s.db.pool.Query(ctx,
		`SELECT data FROM extraction_jobs WHERE document_id = $1 ORDER BY created_at DESC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list extraction jobs: %w", err)
	}
	return collectJobs(rows)
}

func (s *ExtractionStorage) ListByStatus(ctx context.Context, status models.JobStatus, updatedBefore time.Time) ([]*models.ExtractionJob, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if updatedBefore.IsZero() {
		rows, err = s.db.pool.Query(ctx,
			`SELECT data FROM extraction_jobs WHERE status = $1 ORDER BY updated_at`, string(status))
	} else {
		rows, err = s.db.pool.Query(ctx,
			`SELECT data FROM extraction_jobs WHERE status = $1 AND updated_at < $2 ORDER BY updated_at`,
			string(status), updatedBefore)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list extraction jobs by status: %w", err)
	}
	return collectJobs(rows)
}

func (s *ExtractionStorage) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	tag, err := s.db.pool.Exec(ctx, `DELETE FROM extraction_jobs WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete extraction jobs: %w", err)
	}
	deleted := int(tag.RowsAffected())
	if deleted > 0 {
		s.logger.Info().Str("document_id", documentID).Int("deleted", deleted).Msg("Extraction jobs deleted")
	}
	return deleted, nil
}
