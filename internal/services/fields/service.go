// Package fields keeps the local copy of the provider field catalogue.
package fields

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/extracta/internal/interfaces"
	"github.com/ternarybob/extracta/internal/models"
)

// CatalogueSource fetches the provider's field catalogue
type CatalogueSource interface {
	FetchFieldCatalogue(ctx context.Context, forceRefresh bool) ([]models.FieldDefinition, error)
}

// Service syncs and serves the field catalogue
type Service struct {
	source  CatalogueSource
	storage interfaces.FieldStorage
	events  interfaces.EventService
	logger  arbor.ILogger
}

// NewService creates a field catalogue service. source may be nil when no
// provider credentials are configured; events may be nil.
func NewService(source CatalogueSource, storage interfaces.FieldStorage, events interfaces.EventService, logger arbor.ILogger) *Service {
	return &Service{
		source:  source,
		storage: storage,
		events:  events,
		logger:  logger,
	}
}

// Sync fetches the full catalogue from the provider and stores it locally
func (s *Service) Sync(ctx context.Context) (int, error) {
	if s.source == nil {
		return 0, fmt.Errorf("field catalogue sync requires provider credentials")
	}

	start := time.Now()
	catalogue, err := s.source.FetchFieldCatalogue(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch field catalogue: %w", err)
	}

	saved, err := s.storage.SaveAll(ctx, catalogue)
	if err != nil {
		return saved, fmt.Errorf("failed to store field catalogue: %w", err)
	}

	s.logger.Info().
		Int("fields", saved).
		Dur("duration", time.Since(start)).
		Msg("Field catalogue synced")

	if s.events != nil {
		event := interfaces.Event{
			Type:    interfaces.EventFieldCatalogueSynced,
			Payload: interfaces.CountEvent{Count: saved, Timestamp: time.Now().UTC()},
		}
		if err := s.events.Publish(ctx, event); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to publish catalogue sync event")
		}
	}

	return saved, nil
}

// Filter narrows a catalogue listing
type Filter struct {
	Query          string
	Classification *bool
}

// List returns the stored catalogue sorted by name, syncing first when refresh is set
func (s *Service) List(ctx context.Context, refresh bool, filter Filter) ([]*models.FieldDefinition, error) {
	if refresh {
		if _, err := s.Sync(ctx); err != nil {
			return nil, err
		}
	}

	fields, err := s.storage.List(ctx)
	if err != nil {
		return nil, err
	}

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	out := make([]*models.FieldDefinition, 0, len(fields))
	for _, field := range fields {
		if filter.Classification != nil && field.IsClassification() != *filter.Classification {
			continue
		}
		if query != "" && !matches(field, query) {
			continue
		}
		out = append(out, field)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].FieldID < out[j].FieldID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Get returns one stored field
func (s *Service) Get(ctx context.Context, fieldID string) (*models.FieldDefinition, error) {
	return s.storage.Get(ctx, fieldID)
}

func matches(field *models.FieldDefinition, query string) bool {
	if strings.Contains(strings.ToLower(field.Name), query) ||
		strings.Contains(strings.ToLower(field.Description), query) ||
		strings.EqualFold(field.FieldID, query) {
		return true
	}
	for _, tag := range field.Tags {
		if strings.EqualFold(tag, query) {
			return true
		}
	}
	return false
}
