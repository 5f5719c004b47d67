// Package repository selects and opens a storage backend.
package repository

import (
	"context"
	"fmt"
	"log/slog"

	"bilinote/internal/config"
	"bilinote/internal/domain/repositories"
	"bilinote/internal/repository/postgres"
	"bilinote/internal/repository/sqlite"
)

// Store bundles the repositories of one open backend
type Store struct {
	Backend   string
	Folders   repositories.FolderRepository
	History   repositories.HistoryRepository
	TxManager repositories.TransactionManager

	Ping  func(ctx context.Context) error
	Close func()

	// Reset drops every table and re-runs migrations
	Reset func(ctx context.Context) error
}

// Open connects to Postgres when DATABASE_URL is a postgres URL and to a
// SQLite file otherwise, applying migrations in both cases.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if cfg.UsePostgres() {
		return openPostgres(ctx, cfg, logger)
	}
	return openSQLite(ctx, cfg, logger)
}

func openPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	tables := postgres.NewTableNames(cfg.TablePrefix)
	if err := postgres.Migrate(ctx, pool, tables); err != nil {
		pool.Close()
		return nil, err
	}

	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}

	logger.Info("database connected",
		"backend", "postgres",
		"max_conns", cfg.DBMaxConns,
	)

	return &Store{
		Backend:   "postgres",
		Folders:   postgres.NewFolderRepository(repoConfig),
		History:   postgres.NewHistoryRepository(repoConfig),
		TxManager: postgres.NewTransactionManager(pool, logger),
		Ping:      pool.Ping,
		Close:     pool.Close,
		Reset: func(ctx context.Context) error {
			if err := postgres.DropAll(ctx, pool, tables); err != nil {
				return err
			}
			return postgres.Migrate(ctx, pool, tables)
		},
	}, nil
}

func openSQLite(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	tables := sqlite.NewTableNames(cfg.TablePrefix)
	db, err := sqlite.Open(ctx, cfg.DatabaseURL, tables)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	logger.Info("database connected",
		"backend", "sqlite",
		"path", cfg.DatabaseURL,
	)

	return &Store{
		Backend:   "sqlite",
		Folders:   sqlite.NewFolderRepository(db, tables),
		History:   sqlite.NewHistoryRepository(db, tables, logger),
		TxManager: sqlite.NewTransactionManager(db, logger),
		Ping:      db.PingContext,
		Close:     func() { db.Close() },
		Reset: func(ctx context.Context) error {
			if err := sqlite.DropAll(ctx, db, tables); err != nil {
				return err
			}
			return sqlite.Migrate(ctx, db, tables)
		},
	}, nil
}
