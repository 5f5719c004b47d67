package sqlite

import (
	"context"
	"database/sql"
)

// DBTX is implemented by both *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txContextKey string

const txKey txContextKey = "sqlite_tx"

// SetTx stores a transaction in the context
func SetTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey, tx)
}

// GetTx retrieves a transaction from the context, nil if absent
func GetTx(ctx context.Context) *sql.Tx {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	if !ok {
		return nil
	}
	return tx
}

// GetExecutor returns the transaction in ctx, or db when there is none
func GetExecutor(ctx context.Context, db *sql.DB) DBTX {
	if tx := GetTx(ctx); tx != nil {
		return tx
	}
	return db
}
