// Package workflows manages workflow definitions: files on disk, the API, and
// the workflow store the extraction service reads from.
package workflows

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/extracta/internal/common"
	"github.com/ternarybob/extracta/internal/interfaces"
	"github.com/ternarybob/extracta/internal/models"
	"github.com/ternarybob/extracta/internal/services/extraction"
)

// SourceAPI marks workflows created through the HTTP API
const SourceAPI = "api"

// ErrInvalidWorkflow is returned when a definition fails validation
var ErrInvalidWorkflow = errors.New("invalid workflow")

const reloadDebounce = 250 * time.Millisecond

// Service loads, validates and stores workflow definitions
type Service struct {
	storage  interfaces.WorkflowStorage
	events   interfaces.EventService
	validate *validator.Validate
	logger   arbor.ILogger
	dir      string

	reloadMu sync.Mutex
}

// NewService creates a workflow service reading definition files from dir. events may be nil.
func NewService(storage interfaces.WorkflowStorage, events interfaces.EventService, dir string, logger arbor.ILogger) *Service {
	return &Service{
		storage:  storage,
		events:   events,
		validate: validator.New(),
		logger:   logger,
		dir:      dir,
	}
}

// Validate checks required attributes and that the fields configuration has a known shape
func (s *Service) Validate(workflow *models.Workflow) error {
	if err := s.validate.Struct(workflow); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWorkflow, err)
	}
	if _, _, err := extraction.ResolveFieldIDs(workflow.Fields); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWorkflow, err)
	}
	return nil
}

// Save validates and stores a workflow
func (s *Service) Save(ctx context.Context, workflow *models.Workflow) error {
	workflow.ID = strings.TrimSpace(workflow.ID)
	if workflow.Source == "" {
		workflow.Source = SourceAPI
	}
	if err := s.Validate(workflow); err != nil {
		return err
	}

	ids, rejected, _ := extraction.ResolveFieldIDs(workflow.Fields)
	if len(rejected) > 0 || len(ids) == 0 {
		s.logger.Warn().
			Str("workflow_id", workflow.ID).
			Int("valid", len(ids)).
			Int("rejected", len(rejected)).
			Msg("Workflow has field ids that will not be extracted")
	}

	return s.storage.Save(ctx, workflow)
}

func (s *Service) Get(ctx context.Context, id string) (*models.Workflow, error) {
	return s.storage.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*models.Workflow, error) {
	return s.storage.List(ctx)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.storage.Delete(ctx, id)
}

// LoadDir stores every definition file in the workflow directory and removes
// stored workflows whose file is gone. A missing directory is not an error.
func (s *Service) LoadDir(ctx context.Context) (int, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	if s.dir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		s.logger.Debug().Str("path", s.dir).Msg("Workflow directory not found, skipping file loading")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read workflow directory: %w", err)
	}

	loaded := make(map[string]bool)
	skipped := 0
	for _, entry := range entries {
		if entry.IsDir() || !SupportedExtension(entry.Name()) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		workflow, err := ParseFile(path)
		if err == nil {
			err = s.Save(ctx, workflow)
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to load workflow file")
			skipped++
			continue
		}
		loaded[workflow.ID] = true

		s.logger.Debug().
			Str("workflow_id", workflow.ID).
			Str("file", entry.Name()).
			Msg("Loaded workflow from file")
	}

	removed, err := s.removeOrphans(ctx, loaded)
	if err != nil {
		return len(loaded), err
	}

	s.logger.Info().
		Int("loaded", len(loaded)).
		Int("skipped", skipped).
		Int("removed", removed).
		Msg("Finished loading workflow files")

	if s.events != nil {
		event := interfaces.Event{
			Type:    interfaces.EventWorkflowsReloaded,
			Payload: interfaces.CountEvent{Count: len(loaded), Timestamp: time.Now().UTC()},
		}
		if err := s.events.Publish(ctx, event); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to publish workflow reload event")
		}
	}

	return len(loaded), nil
}

// removeOrphans deletes file-backed workflows from this directory that were not loaded
func (s *Service) removeOrphans(ctx context.Context, loaded map[string]bool) (int, error) {
	stored, err := s.storage.List(ctx)
	if err != nil {
		return 0, err
	}

	dir := filepath.Clean(s.dir)
	removed := 0
	for _, workflow := range stored {
		if workflow.Source == "" || workflow.Source == SourceAPI || loaded[workflow.ID] {
			continue
		}
		if filepath.Dir(filepath.Clean(workflow.Source)) != dir {
			continue
		}
		if err := s.storage.Delete(ctx, workflow.ID); err != nil && !errors.Is(err, interfaces.ErrWorkflowNotFound) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Watch reloads the workflow directory whenever a definition file changes,
// until ctx is done
func (s *Service) Watch(ctx context.Context) error {
	if s.dir == "" {
		return fmt.Errorf("no workflow directory configured")
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create workflow directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}

	s.logger.Info().Str("path", s.dir).Msg("Watching workflow directory")

	common.SafeGo(s.logger, "workflows:watch", func() {
		defer watcher.Close()

		var timer *time.Timer
		reload := make(chan struct{}, 1)
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !SupportedExtension(event.Name) {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(reloadDebounce, func() {
					select {
					case reload <- struct{}{}:
					default:
					}
				})
			case <-reload:
				if _, err := s.LoadDir(ctx); err != nil {
					s.logger.Error().Err(err).Msg("Workflow reload failed")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn().Err(err).Msg("Workflow watcher error")
			}
		}
	})

	return nil
}
