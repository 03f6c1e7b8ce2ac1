package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/extracta/internal/interfaces"
	"github.com/ternarybob/extracta/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// FieldStorage implements the FieldStorage interface for Badger
type FieldStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewFieldStorage creates a new FieldStorage instance
func NewFieldStorage(db *BadgerDB, logger arbor.ILogger) interfaces.FieldStorage {
	return &FieldStorage{
		db:     db,
		logger: logger,
	}
}

func (s *FieldStorage) Get(ctx context.Context, fieldID string) (*models.FieldDefinition, error) {
	var field models.FieldDefinition
	if err := s.db.Store().Get(fieldID, &field); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrFieldNotFound
		}
		return nil, fmt.Errorf("failed to get field: %w", err)
	}
	return &field, nil
}

func (s *FieldStorage) List(ctx context.Context) ([]*models.FieldDefinition, error) {
	var fields []models.FieldDefinition
	if err := s.db.Store().Find(&fields, badgerhold.Where("FieldID").Ne("").SortBy("Name")); err != nil {
		return nil, fmt.Errorf("failed to list fields: %w", err)
	}

	result := make([]*models.FieldDefinition, len(fields))
	for i := range fields {
		result[i] = &fields[i]
	}
	return result, nil
}

// SaveAll upserts the catalogue in batches; entries without a field id are skipped
func (s *FieldStorage) SaveAll(ctx context.Context, fields []models.FieldDefinition) (int, error) {
	const batchSize = 500

	now := time.Now().UTC()
	saved := 0
	for start := 0; start < len(fields); start += batchSize {
		if err := ctx.Err(); err != nil {
			return saved, err
		}

		end := start + batchSize
		if end > len(fields) {
			end = len(fields)
		}

		batchSaved := 0
		err := s.db.Update(func(tx *badger.Txn) error {
			batchSaved = 0
			for i := start; i < end; i++ {
				field := fields[i]
				if field.FieldID == "" {
					continue
				}
				field.SyncedAt = now
				if err := s.db.Store().TxUpsert(tx, field.FieldID, &field); err != nil {
					return fmt.Errorf("failed to save field %s: %w", field.FieldID, err)
				}
				batchSaved++
			}
			return nil
		})
		if err != nil {
			return saved, err
		}
		saved += batchSaved
	}

	s.logger.Debug().Int("saved", saved).Msg("Field catalogue stored")
	return saved, nil
}
