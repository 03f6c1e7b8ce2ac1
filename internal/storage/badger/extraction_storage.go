package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/extracta/internal/common"
	"github.com/ternarybob/extracta/internal/interfaces"
	"github.com/ternarybob/extracta/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// extractionKey maps a (document, workflow) pair onto its job id.
// It is stored under models.PairKey and enforces one job per pair.
type extractionKey struct {
	JobID string
}

// ExtractionStorage implements the ExtractionStorage interface for Badger
type ExtractionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	now    func() time.Time
}

// NewExtractionStorage creates a new ExtractionStorage instance
func NewExtractionStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ExtractionStorage {
	return &ExtractionStorage{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *ExtractionStorage) Get(ctx context.Context, jobID string) (*models.ExtractionJob, error) {
	var job models.ExtractionJob
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get extraction job: %w", err)
	}
	return &job, nil
}

func (s *ExtractionStorage) GetByKey(ctx context.Context, documentID, workflowID string) (*models.ExtractionJob, error) {
	var job *models.ExtractionJob
	err := s.db.Store().Badger().View(func(tx *badger.Txn) error {
		var err error
		job, err = s.txGetByKey(tx, documentID, workflowID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *ExtractionStorage) txGetByKey(tx *badger.Txn, documentID, workflowID string) (*models.ExtractionJob, error) {
	var key extractionKey
	if err := s.db.Store().TxGet(tx, models.PairKey(documentID, workflowID), &key); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get extraction key: %w", err)
	}

	var job models.ExtractionJob
	if err := s.db.Store().TxGet(tx, key.JobID, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get extraction job: %w", err)
	}
	return &job, nil
}

func (s *ExtractionStorage) Claim(ctx context.Context, template *models.ExtractionJob) (*interfaces.ClaimResult, error) {
	if template.DocumentID == "" || template.WorkflowID == "" {
		return nil, fmt.Errorf("document id and workflow id are required")
	}

	var result *interfaces.ClaimResult
	err := s.db.Update(func(tx *badger.Txn) error {
		now := s.now()

		existing, err := s.txGetByKey(tx, template.DocumentID, template.WorkflowID)
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
			if err := s.db.Store().TxInsert(tx, job.ID, job); err != nil {
				return fmt.Errorf("failed to insert extraction job: %w", err)
			}
			if err := s.db.Store().TxUpsert(tx, job.PairKey(), &extractionKey{JobID: job.ID}); err != nil {
				return fmt.Errorf("failed to insert extraction key: %w", err)
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
			if err := s.db.Store().TxUpdate(tx, existing.ID, existing); err != nil {
				return fmt.Errorf("failed to reset extraction job: %w", err)
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

	if result.Claimed {
		s.logger.Debug().
			Str("job_id", result.Job.ID).
			Str("document_id", result.Job.DocumentID).
			Str("workflow_id", result.Job.WorkflowID).
			Int64("attempt", result.Job.Attempt).
			Bool("created", result.Created).
			Msg("Extraction job claimed")
	}
	return result, nil
}

func (s *ExtractionStorage) Update(ctx context.Context, jobID string, attempt int64, mutate func(job *models.ExtractionJob) error) (*models.ExtractionJob, error) {
	var updated *models.ExtractionJob
	err := s.db.Update(func(tx *badger.Txn) error {
		var job models.ExtractionJob
		if err := s.db.Store().TxGet(tx, jobID, &job); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return interfaces.ErrJobNotFound
			}
			return fmt.Errorf("failed to get extraction job: %w", err)
		}
		if job.Attempt != attempt {
			return interfaces.ErrStaleAttempt
		}

		if err := mutate(&job); err != nil {
			return err
		}
		job.UpdatedAt = s.now()

		if err := s.db.Store().TxUpdate(tx, jobID, &job); err != nil {
			return fmt.Errorf("failed to update extraction job: %w", err)
		}
		updated = &job
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
	err := s.db.Update(func(tx *badger.Txn) error {
		cancelled = false

		var err error
		job, err = s.txGetByKey(tx, documentID, workflowID)
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
		if err := s.db.Store().TxUpdate(tx, job.ID, job); err != nil {
			return fmt.Errorf("failed to cancel extraction job: %w", err)
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
	var jobs []models.ExtractionJob
	query := badgerhold.Where("DocumentID").Eq(documentID).SortBy("CreatedAt").Reverse()
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list extraction jobs: %w", err)
	}
	return toPointers(jobs), nil
}

func (s *ExtractionStorage) ListByStatus(ctx context.Context, status models.JobStatus, updatedBefore time.Time) ([]*models.ExtractionJob, error) {
	query := badgerhold.Where("Status").Eq(status)
	if !updatedBefore.IsZero() {
		query = query.And("UpdatedAt").Lt(updatedBefore)
	}

	var jobs []models.ExtractionJob
	if err := s.db.Store().Find(&jobs, query.SortBy("UpdatedAt")); err != nil {
		return nil, fmt.Errorf("failed to list extraction jobs by status: %w", err)
	}
	return toPointers(jobs), nil
}

func (s *ExtractionStorage) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	var deleted int
	err := s.db.Update(func(tx *badger.Txn) error {
		deleted = 0

		var jobs []models.ExtractionJob
		if err := s.db.Store().TxFind(tx, &jobs, badgerhold.Where("DocumentID").Eq(documentID)); err != nil {
			return fmt.Errorf("failed to find extraction jobs: %w", err)
		}
		for i := range jobs {
			if err := s.db.Store().TxDelete(tx, jobs[i].PairKey(), &extractionKey{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
				return fmt.Errorf("failed to delete extraction key: %w", err)
			}
			if err := s.db.Store().TxDelete(tx, jobs[i].ID, &models.ExtractionJob{}); err != nil {
				return fmt.Errorf("failed to delete extraction job: %w", err)
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		s.logger.Info().Str("document_id", documentID).Int("deleted", deleted).Msg("Extraction jobs deleted")
	}
	return deleted, nil
}

func toPointers(jobs []models.ExtractionJob) []*models.ExtractionJob {
	result := make([]*models.ExtractionJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result
}
