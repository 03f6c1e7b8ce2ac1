package postgres

import (
	"context"
	"fmt"
)

// Jobs keep their full record in data; the remaining columns exist for lookups
// and for the (document_id, workflow_id) uniqueness constraint.
const schema = `
CREATE TABLE IF NOT EXISTS extraction_jobs (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	workflow_id TEXT NOT NULL,
	status      TEXT NOT NULL,
	attempt     BIGINT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	data        JSONB NOT NULL,
	UNIQUE (document_id, workflow_id)
);

CREATE INDEX IF NOT EXISTS idx_extraction_jobs_status ON extraction_jobs (status, updated_at);

CREATE TABLE IF NOT EXISTS workflows (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	data       JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS fields (
	field_id  TEXT PRIMARY KEY,
	name      TEXT NOT NULL,
	synced_at TIMESTAMPTZ NOT NULL,
	data      JSONB NOT NULL
);
`

func (d *DB) migrate(ctx context.Context) error {
	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
