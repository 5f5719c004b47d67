package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bilinote/internal/domain"
	"bilinote/internal/domain/models"
	"bilinote/internal/domain/repositories"
)

const folderColumns = `id, name, parent_id, is_expanded, created_at, updated_at`

// FolderRepository implements repositories.FolderRepository on SQLite
type FolderRepository struct {
	db     *sql.DB
	tables *TableNames
}

// NewFolderRepository creates a new folder repository
func NewFolderRepository(db *sql.DB, tables *TableNames) repositories.FolderRepository {
	return &FolderRepository{db: db, tables: tables}
}

// Create inserts a new folder
func (r *FolderRepository) Create(ctx context.Context, folder *models.Folder) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, name, parent_id, is_expanded, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.tables.Folders)

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		folder.ID,
		folder.Name,
		folder.ParentID,
		folder.IsExpanded,
		toNanos(folder.CreatedAt),
		toNanos(folder.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("folder %q already exists", folder.ID),
				ResourceType: "folder",
				ResourceID:   folder.ID,
			}
		}
		if isForeignKeyError(err) {
			return &domain.InvalidReferenceError{Field: "parent_id", ResourceID: deref(folder.ParentID)}
		}
		return domain.NewStorageError("create folder", err)
	}

	// Reflect what was stored: nanosecond precision survives the round trip
	folder.CreatedAt = fromNanos(toNanos(folder.CreatedAt))
	folder.UpdatedAt = fromNanos(toNanos(folder.UpdatedAt))

	return nil
}

// GetByID retrieves a folder by ID
func (r *FolderRepository) GetByID(ctx context.Context, id string) (*models.Folder, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, folderColumns, r.tables.Folders)

	folder, err := scanFolder(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("folder %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.NewStorageError("get folder", err)
	}

	return folder, nil
}

// ListAll returns every folder, oldest first
func (r *FolderRepository) ListAll(ctx context.Context) ([]models.Folder, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		ORDER BY created_at ASC, id ASC
	`, folderColumns, r.tables.Folders)

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, domain.NewStorageError("list folders", err)
	}
	defer rows.Close()

	folders := []models.Folder{}
	for rows.Next() {
		folder, err := scanFolder(rows)
		if err != nil {
			return nil, domain.NewStorageError("scan folder", err)
		}
		folders = append(folders, *folder)
	}

	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("iterate folders", err)
	}

	return folders, nil
}

// Update applies the touched columns of update and refreshes updated_at
func (r *FolderRepository) Update(ctx context.Context, id string, update models.FolderUpdate, now time.Time) (*models.Folder, error) {
	sets := []string{}
	args := []any{}

	if update.Name.Present {
		sets = append(sets, "name = ?")
		args = append(args, update.Name.Ptr())
	}
	if update.ParentID.Present {
		sets = append(sets, "parent_id = ?")
		args = append(args, update.ParentID.Ptr())
	}
	if update.IsExpanded.Present {
		sets = append(sets, "is_expanded = ?")
		args = append(args, update.IsExpanded.Ptr())
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, toNanos(now), id)

	query := fmt.Sprintf(`
		UPDATE %s SET %s
		WHERE id = ?
		RETURNING %s
	`, r.tables.Folders, strings.Join(sets, ", "), folderColumns)

	folder, err := scanFolder(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("folder %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		if isForeignKeyError(err) {
			return nil, &domain.InvalidReferenceError{Field: "parent_id", ResourceID: deref(update.ParentID.Ptr())}
		}
		return nil, domain.NewStorageError("update folder", err)
	}

	return folder, nil
}

// CollectSubtree returns id plus every descendant id in one query.
// UNION deduplicates, so a corrupted cyclic tree still terminates.
func (r *FolderRepository) CollectSubtree(ctx context.Context, id string) ([]string, error) {
	query := fmt.Sprintf(`
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM %[1]s WHERE id = ?
			UNION
			SELECT f.id FROM %[1]s f JOIN subtree s ON f.parent_id = s.id
		)
		SELECT id FROM subtree
	`, r.tables.Folders)

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, id)
	if err != nil {
		return nil, domain.NewStorageError("collect subtree", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var folderID string
		if err := rows.Scan(&folderID); err != nil {
			return nil, domain.NewStorageError("collect subtree", err)
		}
		ids = append(ids, folderID)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("collect subtree", err)
	}

	return ids, nil
}

// DeleteByIDs deletes all listed folders in one statement
func (r *FolderRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders, args := inList(ids)
	query := fmt.Sprintf(`DELETE FROM %s WHERE id IN (%s)`, r.tables.Folders, placeholders)

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		if isForeignKeyError(err) {
			return 0, fmt.Errorf("folder still referenced: %w", domain.ErrConflict)
		}
		return 0, domain.NewStorageError("delete folders", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, domain.NewStorageError("delete folders", err)
	}
	return n, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFolder(row rowScanner) (*models.Folder, error) {
	var folder models.Folder
	var createdAt, updatedAt int64
	err := row.Scan(
		&folder.ID,
		&folder.Name,
		&folder.ParentID,
		&folder.IsExpanded,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	folder.CreatedAt = fromNanos(createdAt)
	folder.UpdatedAt = fromNanos(updatedAt)
	return &folder, nil
}

func inList(values []string) (string, []any) {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", "), args
}

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
