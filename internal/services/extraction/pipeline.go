package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/extracta/internal/common"
	"github.com/ternarybob/extracta/internal/documents"
	"github.com/ternarybob/extracta/internal/interfaces"
	"github.com/ternarybob/extracta/internal/models"
	"github.com/ternarybob/extracta/internal/zuva"
)

// Pipeline stages reported on progress events
const (
	stageUpload  = "upload"
	stageSubmit  = "submit"
	stagePoll    = "poll"
	stageResults = "results"
)

// runPipeline drives one attempt to complete or failed. A cancelled ctx means the
// attempt was cancelled or abandoned and nothing further is written.
func (s *Service) runPipeline(ctx context.Context, job *models.ExtractionJob) {
	err := common.RunSafely(s.logger, "extraction:"+job.ID, func() error {
		return s.execute(ctx, job)
	})
	if err == nil {
		return
	}

	if errors.Is(err, interfaces.ErrStaleAttempt) {
		s.logger.Debug().Str("job_id", job.ID).Int64("attempt", job.Attempt).Msg("Extraction attempt superseded, stopping")
		return
	}
	if ctx.Err() != nil {
		s.logger.Info().Str("job_id", job.ID).Int64("attempt", job.Attempt).Msg("Extraction pipeline stopped")
		return
	}

	s.fail(job, err)
}

func (s *Service) execute(ctx context.Context, job *models.ExtractionJob) error {
	store := context.WithoutCancel(ctx)
	attempt := job.Attempt

	startedAt := s.now()
	current, err := s.jobs.Update(store, job.ID, attempt, func(j *models.ExtractionJob) error {
		j.Status = models.JobStatusProcessing
		j.StartedAt = &startedAt
		return nil
	})
	if err != nil {
		return err
	}

	fileID := ""
	if s.config.ReuseUploadedFile && current.ProviderFileID != "" {
		fileID = current.ProviderFileID
		s.logger.Info().Str("job_id", job.ID).Str("file_id", fileID).Msg("Reusing uploaded file")
	} else {
		s.publish(interfaces.EventExtractionProgress, current, stageUpload, "uploading document")
		err := s.withBudget(ctx, zuva.StageUpload, s.config.UploadTimeout, func(ctx context.Context) error {
			var err error
			fileID, err = s.provider.Upload(ctx, documents.Name(current.DocumentPath), zuva.Opener(s.documents.Open(current.DocumentPath)))
			return err
		})
		if err != nil {
			return err
		}
		if current, err = s.jobs.Update(store, job.ID, attempt, func(j *models.ExtractionJob) error {
			j.ProviderFileID = fileID
			return nil
		}); err != nil {
			return err
		}
	}

	s.publish(interfaces.EventExtractionProgress, current, stageSubmit, "requesting field extraction")
	var requestID string
	err = s.withBudget(ctx, zuva.StageSubmit, s.config.SubmitTimeout, func(ctx context.Context) error {
		var err error
		requestID, err = s.provider.Submit(ctx, []string{fileID}, current.FieldIDs)
		return err
	})
	if err != nil {
		return err
	}
	if current, err = s.jobs.Update(store, job.ID, attempt, func(j *models.ExtractionJob) error {
		j.ProviderRequestID = requestID
		return nil
	}); err != nil {
		return err
	}

	s.publish(interfaces.EventExtractionProgress, current, stagePoll, "waiting for extraction to complete")
	err = s.withBudget(ctx, zuva.StagePoll, s.config.MaxWait, func(ctx context.Context) error {
		_, err := s.provider.WaitForCompletion(ctx, requestID, s.config.MaxWait, s.config.PollInterval)
		return err
	})
	if err != nil {
		return err
	}

	s.publish(interfaces.EventExtractionProgress, current, stageResults, "retrieving results")
	raw, err := s.provider.FetchResults(ctx, requestID)
	if err != nil {
		return err
	}
	parsed, err := zuva.Parse(raw)
	if err != nil {
		return err
	}
	s.enrichAnswerOptions(ctx, parsed.AnswerMetadata)

	completedAt := s.now()
	current, err = s.jobs.Update(store, job.ID, attempt, func(j *models.ExtractionJob) error {
		j.Status = models.JobStatusComplete
		j.Results = parsed.Results
		j.AnswerMetadata = parsed.AnswerMetadata
		j.ErrorMessage = ""
		j.CompletedAt = &completedAt
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Int("fields", len(parsed.Results)).
		Int("answer_fields", len(parsed.AnswerMetadata)).
		Dur("duration", completedAt.Sub(startedAt)).
		Msg("Extraction complete")
	s.publish(interfaces.EventExtractionCompleted, current, "", "")
	return nil
}

// withBudget runs fn under its own deadline and reports a deadline hit as the stage timing out
func (s *Service) withBudget(ctx context.Context, stage string, budget time.Duration, fn func(ctx context.Context) error) error {
	if budget <= 0 {
		return fn(ctx)
	}
	stageCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	err := fn(stageCtx)
	if err != nil && ctx.Err() == nil && errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
		return &zuva.PipelineTimeoutError{Stage: stage, After: budget}
	}
	return err
}

// fail records err on the attempt; writes for a superseded attempt are dropped
func (s *Service) fail(job *models.ExtractionJob, err error) {
	message := failureMessage(err)

	updated, updateErr := s.jobs.Update(context.Background(), job.ID, job.Attempt, func(j *models.ExtractionJob) error {
		j.MarkFailed(message, s.now())
		return nil
	})
	if errors.Is(updateErr, interfaces.ErrStaleAttempt) {
		return
	}
	if updateErr != nil {
		s.logger.Error().Err(updateErr).Str("job_id", job.ID).Msg("Failed to record extraction failure")
		return
	}

	s.logger.Error().
		Err(err).
		Str("job_id", job.ID).
		Str("document_id", job.DocumentID).
		Str("workflow_id", job.WorkflowID).
		Msg("Extraction failed")
	s.publish(interfaces.EventExtractionFailed, updated, "", message)
}

func failureMessage(err error) string {
	if isProviderError(err) {
		return fmt.Sprintf("provider error: %v", err)
	}
	return fmt.Sprintf("extraction processing error: %v", err)
}

func isProviderError(err error) bool {
	var apiErr *zuva.APIError
	return zuva.IsTerminal(err) || zuva.IsTransient(err) || errors.As(err, &apiErr)
}
