package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"bilinote/internal/domain"
	"bilinote/internal/domain/repositories"
)

// TransactionManager implements repositories.TransactionManager on *sql.DB
type TransactionManager struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTransactionManager creates a new transaction manager
func NewTransactionManager(db *sql.DB, logger *slog.Logger) repositories.TransactionManager {
	return &TransactionManager{db: db, logger: logger}
}

// ExecTx executes fn within a transaction, reusing one already in ctx
func (tm *TransactionManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	return withTx(ctx, tm.db, tm.logger, fn)
}

func withTx(ctx context.Context, db *sql.DB, logger *slog.Logger, fn repositories.TxFn) error {
	if GetTx(ctx) != nil {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewStorageError("begin transaction", err)
	}

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) && logger != nil {
			logger.Warn("rollback failed", "error", err)
		}
	}()

	if err := fn(SetTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return domain.NewStorageError("commit transaction", err)
	}

	return nil
}
