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

// FieldStorage implements the FieldStorage interface for PostgreSQL
type FieldStorage struct {
	db     *DB
	logger arbor.ILogger
}

// NewFieldStorage creates a new FieldStorage instance
func NewFieldStorage(db *DB, logger arbor.ILogger) interfaces.FieldStorage {
	return &FieldStorage{db: db, logger: logger}
}

func decodeField(data []byte) (*models.FieldDefinition, error) {
	var field models.FieldDefinition
	if err := json.Unmarshal(data, &field); err != nil {
		return nil, fmt.Errorf("failed to decode field: %w", err)
	}
	return &field, nil
}

func (s *FieldStorage) Get(ctx context.Context, fieldID string) (*models.FieldDefinition, error) {
	var data []byte
	err := s.db.pool.QueryRow(ctx, `SELECT data FROM fields WHERE field_id = $1`, fieldID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, interfaces.ErrFieldNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get field: %w", err)
	}
	return decodeField(data)
}

func (s *FieldStorage) List(ctx context.Context) ([]*models.FieldDefinition, error) {
	rows, err := s.db.pool.Query(ctx, `SELECT data FROM fields ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list fields: %w", err)
	}
	defer rows.Close()

	fields := []*models.FieldDefinition{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to read field: %w", err)
		}
		field, err := decodeField(data)
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}
	return fields, rows.Err()
}

// SaveAll upserts the catalogue with a single batch round trip
func (s *FieldStorage) SaveAll(ctx context.Context, fields []models.FieldDefinition) (int, error) {
	now := time.Now().UTC()

	batch := &pgx.Batch{}
	for i := range fields {
		field := fields[i]
		if field.FieldID == "" {
			continue
		}
		field.SyncedAt = now
		data, err := json.Marshal(field)
		if err != nil {
			return 0, fmt.Errorf("failed to encode field %s: %w", field.FieldID, err)
		}
		batch.Queue(`
			INSERT INTO fields (field_id, name, synced_at, data) VALUES ($1, $2, $3, $4)
			ON CONFLICT (field_id) DO UPDATE SET name = EXCLUDED.name, synced_at = EXCLUDED.synced_at, data = EXCLUDED.data`,
			field.FieldID, field.Name, field.SyncedAt, data)
	}
	if batch.Len() == 0 {
		return 0, nil
	}

	results := s.db.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return i, fmt.Errorf("failed to save field catalogue: %w", err)
		}
	}

	s.logger.Debug().Int("saved", batch.Len()).Msg("Field catalogue stored")
	return batch.Len(), nil
}
