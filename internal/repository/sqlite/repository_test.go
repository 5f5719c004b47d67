package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bilinote/internal/domain"
	"bilinote/internal/domain/models"
)

type testStore struct {
	folders *FolderRepository
	history *HistoryRepository
	tx      *TransactionManager
}

func setupTestDB(t *testing.T) *testStore {
	t.Helper()
	ctx := context.Background()
	tables := NewTableNames("test_")

	db, err := Open(ctx, filepath.Join(t.TempDir(), "notes.db"), tables)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &testStore{
		folders: NewFolderRepository(db, tables).(*FolderRepository),
		history: NewHistoryRepository(db, tables, nil).(*HistoryRepository),
		tx:      NewTransactionManager(db, nil).(*TransactionManager),
	}
}

func strPtr(s string) *string { return &s }

func newFolder(id, name string, parent *string, at time.Time) *models.Folder {
	return &models.Folder{ID: id, Name: name, ParentID: parent, IsExpanded: true, CreatedAt: at, UpdatedAt: at}
}

func TestMigrateRecordsSchemaVersion(t *testing.T) {
	ctx := context.Background()
	tables := NewTableNames("")
	path := filepath.Join(t.TempDir(), "v.db")

	db, err := Open(ctx, path, tables)
	require.NoError(t, err)
	defer db.Close()

	version, err := GetSchemaVersion(ctx, db, tables)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)

	// Re-running is a no-op
	require.NoError(t, Migrate(ctx, db, tables))

	other, err := GetSchemaVersion(ctx, db, NewTableNames("never_"))
	require.NoError(t, err)
	assert.Zero(t, other)
}

func TestPrefixesShareOneFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")
	now := time.Now()

	devTables := NewTableNames("dev_")
	db, err := Open(ctx, path, devTables)
	require.NoError(t, err)
	require.NoError(t, NewFolderRepository(db, devTables).Create(ctx, newFolder("d1", "Dev", nil, now)))
	require.NoError(t, db.Close())

	testTables := NewTableNames("test_")
	db, err = Open(ctx, path, testTables)
	require.NoError(t, err)
	defer db.Close()

	testFolders := NewFolderRepository(db, testTables)
	folders, err := testFolders.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, folders)

	require.NoError(t, testFolders.Create(ctx, newFolder("t1", "Test", nil, now)))
	_, err = NewHistoryRepository(db, testTables, nil).List(ctx, 10, 0)
	require.NoError(t, err)

	// Dropping one prefix leaves the other alone
	require.NoError(t, DropAll(ctx, db, testTables))
	require.NoError(t, Migrate(ctx, db, testTables))

	folders, err = testFolders.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, folders)

	devFolders, err := NewFolderRepository(db, devTables).ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, devFolders, 1)
	assert.Equal(t, "d1", devFolders[0].ID)

	version, err := GetSchemaVersion(ctx, db, devTables)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestFolderCreateAndGet(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.folders.Create(ctx, newFolder("a", "Alpha", nil, now)))

	got, err := s.folders.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", got.Name)
	assert.Nil(t, got.ParentID)
	assert.True(t, got.IsExpanded)
	assert.True(t, got.CreatedAt.Equal(now))

	_, err = s.folders.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFolderCreateErrors(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.folders.Create(ctx, newFolder("a", "Alpha", nil, now)))

	t.Run("DuplicateID", func(t *testing.T) {
		err := s.folders.Create(ctx, newFolder("a", "Again", nil, now))
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("MissingParent", func(t *testing.T) {
		err := s.folders.Create(ctx, newFolder("b", "Orphan", strPtr("nope"), now))
		assert.ErrorIs(t, err, domain.ErrInvalidReference)
	})
}

func TestFolderListOrder(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, s.folders.Create(ctx, newFolder("late", "Late", nil, base.Add(2*time.Second))))
	require.NoError(t, s.folders.Create(ctx, newFolder("early", "Early", nil, base)))

	folders, err := s.folders.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, folders, 2)
	assert.Equal(t, "early", folders[0].ID)
	assert.Equal(t, "late", folders[1].ID)
}

func TestFolderUpdate(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.folders.Create(ctx, newFolder("p", "Parent", nil, now)))
	require.NoError(t, s.folders.Create(ctx, newFolder("c", "Child", nil, now)))

	later := now.Add(time.Minute)
	got, err := s.folders.Update(ctx, "c", models.FolderUpdate{
		ParentID:   models.Set("p"),
		IsExpanded: models.Set(false),
	}, later)
	require.NoError(t, err)
	assert.Equal(t, "Child", got.Name)
	require.NotNil(t, got.ParentID)
	assert.Equal(t, "p", *got.ParentID)
	assert.False(t, got.IsExpanded)
	assert.True(t, got.UpdatedAt.Equal(later))

	// Explicit null clears the parent
	got, err = s.folders.Update(ctx, "c", models.FolderUpdate{ParentID: models.Null[string]()}, later)
	require.NoError(t, err)
	assert.Nil(t, got.ParentID)

	_, err = s.folders.Update(ctx, "missing", models.FolderUpdate{Name: models.Set("x")}, later)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.folders.Update(ctx, "c", models.FolderUpdate{ParentID: models.Set("ghost")}, later)
	assert.ErrorIs(t, err, domain.ErrInvalidReference)
}

func TestCollectSubtreeAndDelete(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.folders.Create(ctx, newFolder("a", "A", nil, now)))
	require.NoError(t, s.folders.Create(ctx, newFolder("b", "B", strPtr("a"), now)))
	require.NoError(t, s.folders.Create(ctx, newFolder("c", "C", strPtr("b"), now)))
	require.NoError(t, s.folders.Create(ctx, newFolder("d", "D", nil, now)))

	ids, err := s.folders.CollectSubtree(ctx, "a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids)

	ids, err = s.folders.CollectSubtree(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, ids)

	n, err := s.folders.DeleteByIDs(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	remaining, err := s.folders.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "d", remaining[0].ID)
}

func TestCollectSubtreeTerminatesOnCycle(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.folders.Create(ctx, newFolder("a", "A", nil, now)))
	require.NoError(t, s.folders.Create(ctx, newFolder("b", "B", strPtr("a"), now)))
	// Force a cycle below the service layer
	_, err := s.folders.Update(ctx, "a", models.FolderUpdate{ParentID: models.Set("b")}, now)
	require.NoError(t, err)

	ids, err := s.folders.CollectSubtree(ctx, "a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func newHistory(taskID string, at time.Time) *models.History {
	return &models.History{
		TaskID:    taskID,
		Status:    models.StatusSuccess,
		Platform:  "bilibili",
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestHistoryCreateAndGet(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	h := newHistory("t1", now)
	h.Title = strPtr("Video")
	duration := 125
	h.Duration = &duration
	h.RawInfo = json.RawMessage(`{"views":10}`)
	h.MarkdownVersions = json.RawMessage(`[{"content":"# hi"}]`)
	require.NoError(t, s.history.Create(ctx, h))
	assert.NotZero(t, h.ID)

	got, err := s.history.GetByTaskID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Video", *got.Title)
	assert.Equal(t, 125, *got.Duration)
	assert.JSONEq(t, `{"views":10}`, string(got.RawInfo))
	assert.JSONEq(t, `[{"content":"# hi"}]`, string(got.MarkdownVersions))
	assert.Nil(t, got.TranscriptRaw)
	assert.Nil(t, got.FolderID)

	err = s.history.Create(ctx, newHistory("t1", now))
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.False(t, domain.IsRetryable(err))

	_, err = s.history.GetByTaskID(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHistoryListOrderAndPaging(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	base := time.Now()

	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, s.history.Create(ctx, newHistory(id, base.Add(time.Duration(i)*time.Second))))
	}

	all, err := s.history.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "new", all[0].TaskID)
	assert.Equal(t, "old", all[2].TaskID)

	page, err := s.history.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "mid", page[0].TaskID)
}

func TestHistoryListByVideo(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	a := newHistory("a", now)
	a.VideoID = strPtr("BV1")
	b := newHistory("b", now.Add(time.Second))
	b.VideoID = strPtr("BV1")
	c := newHistory("c", now)
	c.VideoID = strPtr("BV1")
	c.Platform = "youtube"
	for _, h := range []*models.History{a, b, c} {
		require.NoError(t, s.history.Create(ctx, h))
	}

	rows, err := s.history.ListByVideo(ctx, "BV1", "bilibili")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[0].TaskID)
}

func TestHistoryUpdate(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	h := newHistory("t1", now)
	h.Title = strPtr("Before")
	require.NoError(t, s.history.Create(ctx, h))

	later := now.Add(time.Minute)
	got, err := s.history.Update(ctx, "t1", models.HistoryUpdate{
		MarkdownContent: models.Set("# notes"),
		FormData:        models.Set(json.RawMessage(`{"style":"brief"}`)),
	}, later)
	require.NoError(t, err)
	assert.Equal(t, "Before", *got.Title)
	assert.Equal(t, "# notes", *got.MarkdownContent)
	assert.JSONEq(t, `{"style":"brief"}`, string(got.FormData))
	assert.True(t, got.UpdatedAt.Equal(later))
	assert.True(t, got.CreatedAt.Equal(now))

	_, err = s.history.Update(ctx, "t1", models.HistoryUpdate{FolderID: models.Set("ghost")}, later)
	assert.ErrorIs(t, err, domain.ErrInvalidReference)

	_, err = s.history.Update(ctx, "nope", models.HistoryUpdate{Title: models.Set("x")}, later)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHistoryUpsert(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	update := models.HistoryUpdate{
		Status:   models.Set(models.StatusRunning),
		Platform: models.Set("bilibili"),
		Title:    models.Set("First"),
	}
	base := &models.History{TaskID: "t1"}
	update.ApplyTo(base)

	stored, inserted, err := s.history.Upsert(ctx, base, update, now)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, models.StatusRunning, stored.Status)

	// Second pass touches status only; title survives
	second := models.HistoryUpdate{Status: models.Set(models.StatusSuccess)}
	base = &models.History{TaskID: "t1", Status: models.StatusSuccess}
	later := now.Add(time.Minute)
	stored, inserted, err = s.history.Upsert(ctx, base, second, later)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, models.StatusSuccess, stored.Status)
	assert.Equal(t, "bilibili", stored.Platform)
	assert.Equal(t, "First", *stored.Title)
	assert.True(t, stored.CreatedAt.Equal(now))
	assert.True(t, stored.UpdatedAt.Equal(later))
}

func TestDetachFoldersAndCascade(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.folders.Create(ctx, newFolder("f", "F", nil, now)))
	h := newHistory("t1", now)
	h.FolderID = strPtr("f")
	require.NoError(t, s.history.Create(ctx, h))
	require.NoError(t, s.history.Create(ctx, newHistory("t2", now)))

	n, err := s.history.DetachFolders(ctx, []string{"f"}, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.history.GetByTaskID(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, got.FolderID)

	// ON DELETE SET NULL covers rows filed after detach
	_, err = s.history.Update(ctx, "t2", models.HistoryUpdate{FolderID: models.Set("f")}, now)
	require.NoError(t, err)
	_, err = s.folders.DeleteByIDs(ctx, []string{"f"})
	require.NoError(t, err)

	got, err = s.history.GetByTaskID(ctx, "t2")
	require.NoError(t, err)
	assert.Nil(t, got.FolderID)
}

func TestTransactionRollback(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()
	boom := errors.New("boom")

	err := s.tx.ExecTx(ctx, func(txCtx context.Context) error {
		if err := s.folders.Create(txCtx, newFolder("a", "A", nil, now)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.folders.GetByID(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.tx.ExecTx(ctx, func(txCtx context.Context) error {
		return s.folders.Create(txCtx, newFolder("a", "A", nil, now))
	}))
	_, err = s.folders.GetByID(ctx, "a")
	assert.NoError(t, err)
}
