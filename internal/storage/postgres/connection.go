package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/extracta/internal/common"
)

const dialTimeout = 10 * time.Second

// DB wraps the pgx connection pool
type DB struct {
	pool   *pgxpool.Pool
	logger arbor.ILogger
}

// NewDB opens a pool against config.DSN and applies the schema
func NewDB(ctx context.Context, logger arbor.ILogger, config *common.PostgresConfig) (*DB, error) {
	pc, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	if config.MaxConns > 0 {
		pc.MaxConns = config.MaxConns
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "extracta"

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	db := &DB{pool: pool, logger: logger}
	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Debug().Str("host", pc.ConnConfig.Host).Str("database", pc.ConnConfig.Database).Msg("Postgres connection established")
	return db, nil
}

// Pool returns the underlying pgx pool
func (d *DB) Pool() *pgxpool.Pool {
	return d.pool
}

// Close closes the pool
func (d *DB) Close() error {
	d.pool.Close()
	return nil
}
