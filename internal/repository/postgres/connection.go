package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryConfig holds configuration for repository implementations
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Logger *slog.Logger
}

// TableNames holds dynamically prefixed table names
type TableNames struct {
	Folders string
	History string
}

// NewTableNames creates table names with the given prefix
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Folders: fmt.Sprintf("%sfolders", prefix),
		History: fmt.Sprintf("%shistory", prefix),
	}
}

// CreateConnectionPool creates a pgx connection pool.
//
// A pooler in transaction mode (port 6543, e.g. Supabase/PgBouncer) cannot keep
// prepared statements, so on that port the pool switches to
// QueryExecModeCacheDescribe. That mode still uses the extended protocol, which
// JSONB parameters need. An explicit default_query_exec_mode in the URL wins.
//
// Table prefixes are interpolated into SQL before it reaches the server, so
// each prefix simply gets its own cached statements.
func CreateConnectionPool(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	if maxConns <= 0 {
		maxConns = 25
	}
	config.MaxConns = maxConns
	config.MinConns = min(5, maxConns)

	if config.ConnConfig.Port == 6543 && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
		slog.Debug("auto-configured cache_describe mode for PgBouncer compatibility", "port", 6543)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
