package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bilinote/internal/domain"
	"bilinote/internal/domain/models"
	"bilinote/internal/domain/repositories"
)

const folderColumns = `id, name, parent_id, is_expanded, created_at, updated_at`

// PostgresFolderRepository implements the FolderRepository interface
type PostgresFolderRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewFolderRepository creates a new folder repository
func NewFolderRepository(config *RepositoryConfig) repositories.FolderRepository {
	return &PostgresFolderRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// Create creates a new folder
func (r *PostgresFolderRepository) Create(ctx context.Context, folder *models.Folder) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, name, parent_id, is_expanded, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, r.tables.Folders)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		folder.ID,
		folder.Name,
		folder.ParentID,
		folder.IsExpanded,
		folder.CreatedAt,
		folder.UpdatedAt,
	).Scan(&folder.CreatedAt, &folder.UpdatedAt)

	if err != nil {
		if IsPgDuplicateError(err) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("folder %q already exists", folder.ID),
				ResourceType: "folder",
				ResourceID:   folder.ID,
			}
		}
		if IsPgForeignKeyError(err) {
			return &domain.InvalidReferenceError{Field: "parent_id", ResourceID: deref(folder.ParentID)}
		}
		return domain.NewStorageError("create folder", err)
	}

	return nil
}

// GetByID retrieves a folder by ID
func (r *PostgresFolderRepository) GetByID(ctx context.Context, id string) (*models.Folder, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, folderColumns, r.tables.Folders)

	executor := GetExecutor(ctx, r.pool)
	folder, err := scanFolder(executor.QueryRow(ctx, query, id))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("folder %s: %w", id, domain.ErrNotFound)
		}
		return nil, domain.NewStorageError("get folder", err)
	}

	return folder, nil
}

// ListAll returns every folder, oldest first
func (r *PostgresFolderRepository) ListAll(ctx context.Context) ([]models.Folder, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		ORDER BY created_at ASC, id ASC
	`, folderColumns, r.tables.Folders)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query)
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
func (r *PostgresFolderRepository) Update(ctx context.Context, id string, update models.FolderUpdate, now time.Time) (*models.Folder, error) {
	sets := []string{}
	args := []interface{}{}

	if update.Name.Present {
		args = append(args, update.Name.Ptr())
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if update.ParentID.Present {
		args = append(args, update.ParentID.Ptr())
		sets = append(sets, fmt.Sprintf("parent_id = $%d", len(args)))
	}
	if update.IsExpanded.Present {
		args = append(args, update.IsExpanded.Ptr())
		sets = append(sets, fmt.Sprintf("is_expanded = $%d", len(args)))
	}

	args = append(args, now)
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)

	query := fmt.Sprintf(`
		UPDATE %s
		SET %s
		WHERE id = $%d
		RETURNING %s
	`, r.tables.Folders, strings.Join(sets, ", "), len(args), folderColumns)

	executor := GetExecutor(ctx, r.pool)
	folder, err := scanFolder(executor.QueryRow(ctx, query, args...))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("folder %s: %w", id, domain.ErrNotFound)
		}
		if IsPgForeignKeyError(err) {
			return nil, &domain.InvalidReferenceError{Field: "parent_id", ResourceID: deref(update.ParentID.Ptr())}
		}
		return nil, domain.NewStorageError("update folder", err)
	}

	return folder, nil
}

// CollectSubtree returns id plus every descendant id using a recursive CTE.
// UNION (not UNION ALL) deduplicates, so a corrupted cyclic tree still terminates.
func (r *PostgresFolderRepository) CollectSubtree(ctx context.Context, id string) ([]string, error) {
	query := fmt.Sprintf(`
		WITH RECURSIVE subtree AS (
			SELECT id FROM %[1]s WHERE id = $1
			UNION
			SELECT f.id
			FROM %[1]s f
			JOIN subtree s ON f.parent_id = s.id
		)
		SELECT id FROM subtree
	`, r.tables.Folders)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, id)
	if err != nil {
		return nil, domain.NewStorageError("collect subtree", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, domain.NewStorageError("collect subtree", err)
	}

	return ids, nil
}

// DeleteByIDs deletes the listed folders in a single statement
func (r *PostgresFolderRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, r.tables.Folders)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, ids)
	if err != nil {
		if IsPgForeignKeyError(err) {
			return 0, fmt.Errorf("folder still referenced (%s): %w", pgConstraint(err), domain.ErrConflict)
		}
		return 0, domain.NewStorageError("delete folders", err)
	}

	return result.RowsAffected(), nil
}

func scanFolder(row pgx.Row) (*models.Folder, error) {
	var folder models.Folder
	err := row.Scan(
		&folder.ID,
		&folder.Name,
		&folder.ParentID,
		&folder.IsExpanded,
		&folder.CreatedAt,
		&folder.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &folder, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
