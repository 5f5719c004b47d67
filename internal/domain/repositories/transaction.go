package repositories

import "context"

// TxFn is a function that runs within a transaction
type TxFn func(ctx context.Context) error

// TransactionManager handles database transactions.
// Repositories called with the ctx passed to fn join the transaction.
type TransactionManager interface {
	// ExecTx executes a function within a transaction. If fn returns an
	// error, or the commit fails, every write made through ctx is rolled back.
	ExecTx(ctx context.Context, fn TxFn) error
}
