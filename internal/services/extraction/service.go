// Package extraction orchestrates provider extractions: one job per
// (document, workflow) pair, a background pipeline per attempt, and the
// enriched results view served to callers.
package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/extracta/internal/common"
	"github.com/ternarybob/extracta/internal/documents"
	"github.com/ternarybob/extracta/internal/interfaces"
	"github.com/ternarybob/extracta/internal/models"
	"github.com/ternarybob/extracta/internal/zuva"
)

const (
	cancelledMessage = "cancelled by user"
	abandonedMessage = "abandoned: service restarted"
	shutdownMessage  = "service shutting down"
)

// Provider is the subset of the extraction provider client the pipeline drives
type Provider interface {
	Upload(ctx context.Context, name string, open zuva.Opener) (string, error)
	Submit(ctx context.Context, fileIDs, fieldIDs []string) (string, error)
	WaitForCompletion(ctx context.Context, requestID string, maxWait, pollInterval time.Duration) (*zuva.StatusResponse, error)
	FetchResults(ctx context.Context, requestID string) (json.RawMessage, error)
	FetchFieldCatalogue(ctx context.Context, forceRefresh bool) ([]models.FieldDefinition, error)
}

// DocumentSource checks and opens documents by path
type DocumentSource interface {
	Stat(ctx context.Context, path string) (*documents.Info, error)
	Open(path string) documents.Opener
}

// Config holds the pipeline stage budgets
type Config struct {
	UploadTimeout     time.Duration
	SubmitTimeout     time.Duration
	MaxWait           time.Duration
	PollInterval      time.Duration
	ReuseUploadedFile bool
}

// NewConfig converts the extraction section of the service configuration
func NewConfig(c common.ExtractionConfig) Config {
	return Config{
		UploadTimeout:     common.ParseDuration(c.UploadTimeout, 60*time.Second),
		SubmitTimeout:     common.ParseDuration(c.SubmitTimeout, 30*time.Second),
		MaxWait:           common.ParseDuration(c.MaxWait, zuva.DefaultMaxWait),
		PollInterval:      common.ParseDuration(c.PollInterval, zuva.DefaultPollInterval),
		ReuseUploadedFile: c.ReuseUploadedFile,
	}
}

// StatusSummary is the externally visible state of one extraction job
type StatusSummary struct {
	JobID             string           `json:"id"`
	DocumentID        string           `json:"document_id"`
	WorkflowID        string           `json:"workflow_id"`
	Status            models.JobStatus `json:"status"`
	ErrorMessage      string           `json:"error_message,omitempty"`
	ProviderFileID    string           `json:"provider_file_id,omitempty"`
	ProviderRequestID string           `json:"provider_request_id,omitempty"`
	Attempt           int64            `json:"attempt"`
	FieldCount        int              `json:"field_count"`
	Running           bool             `json:"running"`
	CreatedAt         time.Time        `json:"created_at"`
	StartedAt         *time.Time       `json:"started_at,omitempty"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// Service manages extraction jobs and their background pipelines
type Service struct {
	jobs      interfaces.ExtractionStorage
	workflows interfaces.WorkflowStorage
	fields    interfaces.FieldStorage
	provider  Provider
	documents DocumentSource
	events    interfaces.EventService
	config    Config
	logger    arbor.ILogger

	tasks *taskRegistry
	now   func() time.Time
	newID func() string
}

// NewService creates the extraction orchestrator. events may be nil, as may
// provider, in which case Start reports ErrProviderUnavailable.
func NewService(
	storage interfaces.StorageManager,
	provider Provider,
	docs DocumentSource,
	events interfaces.EventService,
	config Config,
	logger arbor.ILogger,
) *Service {
	return &Service{
		jobs:      storage.ExtractionStorage(),
		workflows: storage.WorkflowStorage(),
		fields:    storage.FieldStorage(),
		provider:  provider,
		documents: docs,
		events:    events,
		config:    config,
		logger:    logger,
		tasks:     newTaskRegistry(),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     common.NewExtractionID,
	}
}

// Start claims the (document, workflow) pair and launches a pipeline when a new
// attempt was claimed. An existing pending, processing or complete job is returned
// unchanged. Start never waits for the provider.
func (s *Service) Start(ctx context.Context, documentID, workflowID, documentPath string) (*models.ExtractionJob, error) {
	if s.tasks.isClosed() {
		return nil, ErrShuttingDown
	}
	if s.provider == nil {
		return nil, ErrProviderUnavailable
	}

	documentID = strings.TrimSpace(documentID)
	workflowID = strings.TrimSpace(workflowID)
	documentPath = strings.TrimSpace(documentPath)
	switch {
	case documentID == "":
		return nil, fmt.Errorf("%w: document id is required", ErrInvalidRequest)
	case workflowID == "":
		return nil, fmt.Errorf("%w: workflow id is required", ErrInvalidRequest)
	case documentPath == "":
		return nil, fmt.Errorf("%w: document path is required", ErrInvalidRequest)
	}

	info, err := s.documents.Stat(ctx, documentPath)
	if err != nil {
		return nil, err
	}

	workflow, err := s.workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	fieldIDs, rejected, err := ResolveFieldIDs(workflow.Fields)
	if err != nil {
		return nil, &ConfigurationError{WorkflowID: workflowID, Err: err}
	}
	if len(rejected) > 0 {
		s.logger.Warn().
			Str("workflow_id", workflowID).
			Int("rejected", len(rejected)).
			Str("invalid_ids", zuva.SummarizeIDs(rejected, 5)).
			Msg("Dropping field ids that are not valid UUIDs")
	}
	if len(fieldIDs) == 0 {
		return nil, &ConfigurationError{WorkflowID: workflowID, Total: len(rejected), Rejected: rejected}
	}

	claim, err := s.jobs.Claim(ctx, &models.ExtractionJob{
		ID:           s.newID(),
		DocumentID:   documentID,
		WorkflowID:   workflowID,
		DocumentPath: info.Path,
		FieldIDs:     fieldIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim extraction: %w", err)
	}

	job := claim.Job
	if !claim.Claimed {
		s.logger.Debug().
			Str("job_id", job.ID).
			Str("status", string(job.Status)).
			Msg("Extraction already exists, not starting")
		return job, nil
	}

	if err := s.launch(job); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("document_id", documentID).
		Str("workflow_id", workflowID).
		Int("fields", len(fieldIDs)).
		Int64("attempt", job.Attempt).
		Msg("Extraction started")
	s.publish(interfaces.EventExtractionStarted, job, "", "")

	return job, nil
}

// launch registers the attempt and runs its pipeline in the background
func (s *Service) launch(job *models.ExtractionJob) error {
	ctx, cancel := context.WithCancel(context.Background())
	t, ok := s.tasks.add(job.ID, job.Attempt, cancel)
	if !ok {
		cancel()
		if _, err := s.jobs.Update(context.Background(), job.ID, job.Attempt, func(j *models.ExtractionJob) error {
			j.MarkFailed(shutdownMessage, s.now())
			return nil
		}); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to release claimed extraction")
		}
		return ErrShuttingDown
	}

	snapshot := *job
	common.SafeGo(s.logger, "extraction:"+job.ID, func() {
		defer s.tasks.finish(t)
		s.runPipeline(ctx, &snapshot)
	})
	return nil
}

// GetStatus returns the job summary for the pair or ErrNotStarted
func (s *Service) GetStatus(ctx context.Context, documentID, workflowID string) (*StatusSummary, error) {
	job, err := s.getJob(ctx, documentID, workflowID)
	if err != nil {
		return nil, err
	}
	return s.summarize(job), nil
}

func (s *Service) summarize(job *models.ExtractionJob) *StatusSummary {
	return &StatusSummary{
		JobID:             job.ID,
		DocumentID:        job.DocumentID,
		WorkflowID:        job.WorkflowID,
		Status:            job.Status,
		ErrorMessage:      job.ErrorMessage,
		ProviderFileID:    job.ProviderFileID,
		ProviderRequestID: job.ProviderRequestID,
		Attempt:           job.Attempt,
		FieldCount:        len(job.FieldIDs),
		Running:           s.tasks.active(job.ID),
		CreatedAt:         job.CreatedAt,
		StartedAt:         job.StartedAt,
		CompletedAt:       job.CompletedAt,
		UpdatedAt:         job.UpdatedAt,
	}
}

// GetResults returns the enriched results view. ok is false, with a view carrying
// only the job state, until the job is complete.
func (s *Service) GetResults(ctx context.Context, documentID, workflowID string) (*ResultsView, bool, error) {
	job, err := s.getJob(ctx, documentID, workflowID)
	if err != nil {
		return nil, false, err
	}

	catalogue := s.localCatalogue(ctx)
	view := s.buildView(ctx, job, catalogue)
	return view, job.Status == models.JobStatusComplete, nil
}

// ListForDocument returns a view per workflow extracted for the document, newest first
func (s *Service) ListForDocument(ctx context.Context, documentID string) ([]*ResultsView, error) {
	jobs, err := s.jobs.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	views := make([]*ResultsView, 0, len(jobs))
	if len(jobs) == 0 {
		return views, nil
	}

	catalogue := s.localCatalogue(ctx)
	for _, job := range jobs {
		views = append(views, s.buildView(ctx, job, catalogue))
	}
	return views, nil
}

// Cancel fails a pending or processing job and stops its local pipeline.
// Returns false when the job is absent, complete or already failed.
func (s *Service) Cancel(ctx context.Context, documentID, workflowID string) (bool, error) {
	job, cancelled, err := s.jobs.Cancel(ctx, documentID, workflowID, cancelledMessage)
	if err != nil {
		return false, fmt.Errorf("failed to cancel extraction: %w", err)
	}
	if !cancelled {
		return false, nil
	}

	s.tasks.cancel(job.ID)

	s.logger.Info().
		Str("job_id", job.ID).
		Str("document_id", documentID).
		Str("workflow_id", workflowID).
		Msg("Extraction cancelled")
	s.publish(interfaces.EventExtractionFailed, job, "", cancelledMessage)

	return true, nil
}

// Shutdown rejects new starts and waits for running pipelines until ctx expires.
// Pipelines still running then are cancelled and left for SweepStale.
func (s *Service) Shutdown(ctx context.Context) error {
	s.tasks.close()

	running := s.tasks.count()
	if running > 0 {
		s.logger.Info().Int("running", running).Msg("Waiting for extraction pipelines to finish")
	}

	if err := s.tasks.wait(ctx); err != nil {
		s.logger.Warn().
			Err(err).
			Int("abandoned", s.tasks.count()).
			Msg("Extraction pipelines abandoned at shutdown")
		return err
	}
	return nil
}

// SweepStale fails pending and processing jobs that no pipeline in this process
// owns and that have not been written for olderThan. Returns the number failed.
func (s *Service) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)
	swept := 0

	for _, status := range []models.JobStatus{models.JobStatusPending, models.JobStatusProcessing} {
		jobs, err := s.jobs.ListByStatus(ctx, status, cutoff)
		if err != nil {
			return swept, fmt.Errorf("failed to list %s extractions: %w", status, err)
		}

		for _, job := range jobs {
			if s.tasks.active(job.ID) {
				continue
			}
			updated, err := s.jobs.Update(ctx, job.ID, job.Attempt, func(j *models.ExtractionJob) error {
				if !j.Status.IsActive() {
					return errNothingToDo
				}
				j.MarkFailed(abandonedMessage, s.now())
				return nil
			})
			if errors.Is(err, interfaces.ErrStaleAttempt) || errors.Is(err, errNothingToDo) {
				continue
			}
			if err != nil {
				return swept, fmt.Errorf("failed to sweep extraction %s: %w", job.ID, err)
			}
			swept++
			s.publish(interfaces.EventExtractionFailed, updated, "", abandonedMessage)
		}
	}

	if swept > 0 {
		s.logger.Warn().Int("swept", swept).Dur("older_than", olderThan).Msg("Stale extractions marked failed")
	}
	return swept, nil
}

// DeleteForDocument stops any running pipeline of the document and removes its jobs
func (s *Service) DeleteForDocument(ctx context.Context, documentID string) (int, error) {
	jobs, err := s.jobs.ListByDocument(ctx, documentID)
	if err != nil {
		return 0, err
	}
	for _, job := range jobs {
		s.tasks.cancel(job.ID)
	}
	return s.jobs.DeleteByDocument(ctx, documentID)
}

// Running returns the number of pipelines owned by this process
func (s *Service) Running() int {
	return s.tasks.count()
}

var errNothingToDo = errors.New("nothing to do")

func (s *Service) getJob(ctx context.Context, documentID, workflowID string) (*models.ExtractionJob, error) {
	job, err := s.jobs.GetByKey(ctx, documentID, workflowID)
	if errors.Is(err, interfaces.ErrJobNotFound) {
		return nil, ErrNotStarted
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Service) publish(eventType interfaces.EventType, job *models.ExtractionJob, stage, message string) {
	if s.events == nil || job == nil {
		return
	}
	event := interfaces.Event{
		Type: eventType,
		Payload: interfaces.ExtractionEvent{
			JobID:      job.ID,
			DocumentID: job.DocumentID,
			WorkflowID: job.WorkflowID,
			Status:     string(job.Status),
			Stage:      stage,
			Message:    message,
			Attempt:    job.Attempt,
			Timestamp:  s.now(),
		},
	}
	if err := s.events.Publish(context.Background(), event); err != nil {
		s.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish extraction event")
	}
}
