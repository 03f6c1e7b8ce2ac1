package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/extracta/internal/common"
	"github.com/ternarybob/extracta/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db         *BadgerDB
	extraction interfaces.ExtractionStorage
	workflow   interfaces.WorkflowStorage
	field      interfaces.FieldStorage
	logger     arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
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

	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

// ExtractionStorage returns the extraction job storage
func (m *Manager) ExtractionStorage() interfaces.ExtractionStorage {
	return m.extraction
}

// WorkflowStorage returns the workflow storage
func (m *Manager) WorkflowStorage() interfaces.WorkflowStorage {
	return m.workflow
}

// FieldStorage returns the field catalogue storage
func (m *Manager) FieldStorage() interfaces.FieldStorage {
	return m.field
}

// CollectGarbage compacts the value log. The app schedules it when the active
// manager provides it.
func (m *Manager) CollectGarbage() (int, error) {
	rewritten, err := m.db.CollectGarbage()
	if err != nil {
		return rewritten, err
	}
	m.logger.Debug().Int("files_rewritten", rewritten).Msg("Badger value log compacted")
	return rewritten, nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	m.logger.Debug().Msg("Closing Badger storage")
	return m.db.Close()
}
