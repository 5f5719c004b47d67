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

const historyColumns = `id, task_id, status, platform, folder_id,
	title, cover_url, duration, file_path, video_id, raw_info,
	transcript_full_text, transcript_language, transcript_raw, transcript_segments,
	markdown_content, markdown_versions, form_data,
	created_at, updated_at`

// insertColumns excludes the surrogate id
const historyInsertColumns = `task_id, status, platform, folder_id,
	title, cover_url, duration, file_path, video_id, raw_info,
	transcript_full_text, transcript_language, transcript_raw, transcript_segments,
	markdown_content, markdown_versions, form_data,
	created_at, updated_at`

const historyInsertValues = `$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
	$11, $12, $13, $14, $15, $16, $17, $18, $19`

// PostgresHistoryRepository implements the HistoryRepository interface
type PostgresHistoryRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(config *RepositoryConfig) repositories.HistoryRepository {
	return &PostgresHistoryRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// Create inserts a history row
func (r *PostgresHistoryRepository) Create(ctx context.Context, history *models.History) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (%s)
		RETURNING id, created_at, updated_at
	`, r.tables.History, historyInsertColumns, historyInsertValues)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, insertArgs(history)...).
		Scan(&history.ID, &history.CreatedAt, &history.UpdatedAt)

	if err != nil {
		return r.mapWriteError("create history", history.TaskID, history.FolderID, err, false)
	}

	return nil
}

// GetByTaskID retrieves a row by task id
func (r *PostgresHistoryRepository) GetByTaskID(ctx context.Context, taskID string) (*models.History, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE task_id = $1`, historyColumns, r.tables.History)

	executor := GetExecutor(ctx, r.pool)
	history, err := scanHistory(executor.QueryRow(ctx, query, taskID))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("history %s: %w", taskID, domain.ErrNotFound)
		}
		return nil, domain.NewStorageError("get history", err)
	}

	return history, nil
}

// List returns rows newest first
func (r *PostgresHistoryRepository) List(ctx context.Context, limit, offset int) ([]models.History, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, historyColumns, r.tables.History)

	return r.queryMany(ctx, "list history", query, limit, offset)
}

// ListByVideo returns rows for one video and platform, newest first
func (r *PostgresHistoryRepository) ListByVideo(ctx context.Context, videoID, platform string) ([]models.History, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE video_id = $1 AND platform = $2
		ORDER BY created_at DESC, id DESC
	`, historyColumns, r.tables.History)

	return r.queryMany(ctx, "list history by video", query, videoID, platform)
}

// Update applies the touched columns and refreshes updated_at
func (r *PostgresHistoryRepository) Update(ctx context.Context, taskID string, update models.HistoryUpdate, now time.Time) (*models.History, error) {
	sets := []string{}
	args := []interface{}{}

	for _, col := range update.Columns() {
		args = append(args, col.Value)
		sets = append(sets, fmt.Sprintf("%s = $%d", col.Name, len(args)))
	}

	args = append(args, now)
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, taskID)

	query := fmt.Sprintf(`
		UPDATE %s
		SET %s
		WHERE task_id = $%d
		RETURNING %s
	`, r.tables.History, strings.Join(sets, ", "), len(args), historyColumns)

	executor := GetExecutor(ctx, r.pool)
	history, err := scanHistory(executor.QueryRow(ctx, query, args...))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("history %s: %w", taskID, domain.ErrNotFound)
		}
		return nil, r.mapWriteError("update history", taskID, update.FolderID.Ptr(), err, false)
	}

	return history, nil
}

// Upsert inserts history or, on task_id conflict, applies update to the
// existing row in the same statement. (xmax = 0) is true only for rows
// this statement inserted.
func (r *PostgresHistoryRepository) Upsert(ctx context.Context, history *models.History, update models.HistoryUpdate, now time.Time) (*models.History, bool, error) {
	history.CreatedAt = now
	history.UpdatedAt = now

	sets := []string{}
	for _, col := range update.Columns() {
		sets = append(sets, fmt.Sprintf("%[1]s = EXCLUDED.%[1]s", col.Name))
	}
	sets = append(sets, "updated_at = EXCLUDED.updated_at")

	query := fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s)
		VALUES (%[3]s)
		ON CONFLICT (task_id) DO UPDATE
		SET %[4]s
		RETURNING %[5]s, (xmax = 0) AS inserted
	`, r.tables.History, historyInsertColumns, historyInsertValues, strings.Join(sets, ", "), historyColumns)

	executor := GetExecutor(ctx, r.pool)

	var inserted bool
	stored, err := scanHistoryWith(executor.QueryRow(ctx, query, insertArgs(history)...), &inserted)
	if err != nil {
		return nil, false, r.mapWriteError("upsert history", history.TaskID, history.FolderID, err, true)
	}

	return stored, inserted, nil
}

// Delete removes a row by task id
func (r *PostgresHistoryRepository) Delete(ctx context.Context, taskID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE task_id = $1`, r.tables.History)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, taskID)
	if err != nil {
		return domain.NewStorageError("delete history", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("history %s: %w", taskID, domain.ErrNotFound)
	}

	return nil
}

// DetachFolders moves every row filed under folderIDs back to the root
func (r *PostgresHistoryRepository) DetachFolders(ctx context.Context, folderIDs []string, now time.Time) (int64, error) {
	if len(folderIDs) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET folder_id = NULL, updated_at = $1
		WHERE folder_id = ANY($2)
	`, r.tables.History)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, now, folderIDs)
	if err != nil {
		return 0, domain.NewStorageError("detach history", err)
	}

	return result.RowsAffected(), nil
}

func (r *PostgresHistoryRepository) queryMany(ctx context.Context, op, query string, args ...interface{}) ([]models.History, error) {
	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.NewStorageError(op, err)
	}
	defer rows.Close()

	histories := []models.History{}
	for rows.Next() {
		history, err := scanHistory(rows)
		if err != nil {
			return nil, domain.NewStorageError(op, err)
		}
		histories = append(histories, *history)
	}

	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError(op, err)
	}

	return histories, nil
}

// mapWriteError turns constraint violations into domain errors. A unique
// violation during upsert can only come from a racing writer, so it is
// reported as retryable.
func (r *PostgresHistoryRepository) mapWriteError(op, taskID string, folderID *string, err error, upsert bool) error {
	if IsPgDuplicateError(err) {
		return &domain.ConflictError{
			Message:      fmt.Sprintf("history %q already exists", taskID),
			ResourceType: "history",
			ResourceID:   taskID,
			Retryable:    upsert,
		}
	}
	if IsPgForeignKeyError(err) {
		return &domain.InvalidReferenceError{Field: "folder_id", ResourceID: deref(folderID)}
	}
	return domain.NewStorageError(op, err)
}

func insertArgs(h *models.History) []interface{} {
	return []interface{}{
		h.TaskID,
		h.Status,
		h.Platform,
		h.FolderID,
		h.Title,
		h.CoverURL,
		h.Duration,
		h.FilePath,
		h.VideoID,
		[]byte(h.RawInfo),
		h.TranscriptFullText,
		h.TranscriptLanguage,
		[]byte(h.TranscriptRaw),
		[]byte(h.TranscriptSegments),
		h.MarkdownContent,
		[]byte(h.MarkdownVersions),
		[]byte(h.FormData),
		h.CreatedAt,
		h.UpdatedAt,
	}
}

func scanHistory(row pgx.Row) (*models.History, error) {
	return scanHistoryWith(row)
}

// scanHistoryWith scans historyColumns followed by any extra destinations
func scanHistoryWith(row pgx.Row, extra ...interface{}) (*models.History, error) {
	var h models.History
	dest := []interface{}{
		&h.ID,
		&h.TaskID,
		&h.Status,
		&h.Platform,
		&h.FolderID,
		&h.Title,
		&h.CoverURL,
		&h.Duration,
		&h.FilePath,
		&h.VideoID,
		(*[]byte)(&h.RawInfo),
		&h.TranscriptFullText,
		&h.TranscriptLanguage,
		(*[]byte)(&h.TranscriptRaw),
		(*[]byte)(&h.TranscriptSegments),
		&h.MarkdownContent,
		(*[]byte)(&h.MarkdownVersions),
		(*[]byte)(&h.FormData),
		&h.CreatedAt,
		&h.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &h, nil
}
