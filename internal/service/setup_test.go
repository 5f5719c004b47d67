package service

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"bilinote/internal/domain/repositories"
	"bilinote/internal/domain/services"
	"bilinote/internal/repository/sqlite"
)

// testEnv wires every service against a fresh SQLite file
type testEnv struct {
	folderRepo  repositories.FolderRepository
	historyRepo repositories.HistoryRepository
	txManager   repositories.TransactionManager
	validator   *FolderRefValidator
	logger      *slog.Logger

	folders     services.FolderService
	history     services.HistoryService
	association services.AssociationService
	upsert      services.UpsertService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	tables := sqlite.NewTableNames("test_")
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "notes.db"), tables)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	env := &testEnv{
		folderRepo:  sqlite.NewFolderRepository(db, tables),
		historyRepo: sqlite.NewHistoryRepository(db, tables, logger),
		txManager:   sqlite.NewTransactionManager(db, logger),
		logger:      logger,
	}
	env.validator = NewFolderRefValidator(env.folderRepo)
	env.wire()
	return env
}

// wire (re)builds the services from the current repositories
func (e *testEnv) wire() {
	e.association = NewAssociationService(e.historyRepo, e.txManager, e.validator, e.logger)
	e.folders = NewFolderService(e.folderRepo, e.association, e.txManager, e.validator, e.logger)
	e.history = NewHistoryService(e.historyRepo, e.txManager, e.validator, e.logger)
	e.upsert = NewUpsertService(e.historyRepo, e.txManager, e.validator, 3, e.logger)
}

func (e *testEnv) mustFolder(t *testing.T, id, name string, parent *string) {
	t.Helper()
	_, err := e.folders.CreateFolder(context.Background(), &services.CreateFolderRequest{ID: id, Name: name, ParentID: parent})
	require.NoError(t, err)
}

func (e *testEnv) mustUpsert(t *testing.T, payload string) *services.UpsertResult {
	t.Helper()
	result, err := e.upsert.Upsert(context.Background(), []byte(payload))
	require.NoError(t, err)
	return result
}

func strPtr(s string) *string { return &s }
