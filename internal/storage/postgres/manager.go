package postgres

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/extracta/internal/common"
	"github.com/ternarybob/extracta/internal/interfaces"
)

// Manager implements the StorageManager interface for PostgreSQL
type Manager struct {
	db         *DB
	extraction interfaces.ExtractionStorage
	workflow   interfaces.WorkflowStorage
	field      interfaces.FieldStorage
	logger     arbor.ILogger
}

// NewManager creates a new PostgreSQL storage manager
func NewManager(ctx context.Context, logger arbor.ILogger, config *common.PostgresConfig) (interfaces.StorageManager, error) {
	db, err := NewDB(ctx, logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:         db,
		extraction: NewExtractionStorage(db, logger),
		workflow:   NewWorkflowStorage(db, logger),
		field:      NewFieldStorage(db, logger),
		logger:     logger,
	}

	logger.Info().Msg("Postgres storage manager initialized")
	return manager, nil
}

func (m *Manager) ExtractionStorage() interfaces.ExtractionStorage {
	return m.extraction
}

func (m *Manager) WorkflowStorage() interfaces.WorkflowStorage {
	return m.workflow
}

func (m *Manager) FieldStorage() interfaces.FieldStorage {
	return m.field
}

func (m *Manager) Close() error {
	m.logger.Debug().Msg("Closing Postgres storage")
	return m.db.Close()
}
