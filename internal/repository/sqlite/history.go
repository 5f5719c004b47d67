package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bilinote/internal/domain"
	"bilinote/internal/domain/models"
	"bilinote/internal/domain/repositories"
)

const historyColumns = `id, task_id, status, platform, folder_id,
	title, cover_url, duration, file_path, video_id, raw_info,
	transcript_full_text, transcript_language, transcript_raw, transcript_segments,
	markdown_content, markdown_versions, form_data,
	created_at, updated_at`

const historyInsertColumns = `task_id, status, platform, folder_id,
	title, cover_url, duration, file_path, video_id, raw_info,
	transcript_full_text, transcript_language, transcript_raw, transcript_segments,
	markdown_content, markdown_versions, form_data,
	created_at, updated_at`

const historyInsertValues = `?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?`

// HistoryRepository implements repositories.HistoryRepository on SQLite
type HistoryRepository struct {
	db     *sql.DB
	tables *TableNames
	logger *slog.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, tables *TableNames, logger *slog.Logger) repositories.HistoryRepository {
	return &HistoryRepository{db: db, tables: tables, logger: logger}
}

// Create inserts a history row
func (r *HistoryRepository) Create(ctx context.Context, history *models.History) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (%s)
		RETURNING id
	`, r.tables.History, historyInsertColumns, historyInsertValues)

	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, insertArgs(history)...).Scan(&history.ID)
	if err != nil {
		return mapHistoryWriteError("create history", history.TaskID, history.FolderID, err, false)
	}

	history.CreatedAt = fromNanos(toNanos(history.CreatedAt))
	history.UpdatedAt = fromNanos(toNanos(history.UpdatedAt))
	return nil
}

// GetByTaskID retrieves a row by task id
func (r *HistoryRepository) GetByTaskID(ctx context.Context, taskID string) (*models.History, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE task_id = ?`, historyColumns, r.tables.History)

	history, err := scanHistory(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, taskID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("history %s: %w", taskID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.NewStorageError("get history", err)
	}

	return history, nil
}

// List returns rows newest first
func (r *HistoryRepository) List(ctx context.Context, limit, offset int) ([]models.History, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, historyColumns, r.tables.History)

	return r.queryMany(ctx, "list history", query, limit, offset)
}

// ListByVideo returns rows for one video and platform, newest first
func (r *HistoryRepository) ListByVideo(ctx context.Context, videoID, platform string) ([]models.History, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE video_id = ? AND platform = ?
		ORDER BY created_at DESC, id DESC
	`, historyColumns, r.tables.History)

	return r.queryMany(ctx, "list history by video", query, videoID, platform)
}

// Update applies the touched columns and refreshes updated_at
func (r *HistoryRepository) Update(ctx context.Context, taskID string, update models.HistoryUpdate, now time.Time) (*models.History, error) {
	sets := []string{}
	args := []any{}

	for _, col := range update.Columns() {
		sets = append(sets, col.Name+" = ?")
		args = append(args, columnArg(col.Value))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, toNanos(now), taskID)

	query := fmt.Sprintf(`
		UPDATE %s SET %s
		WHERE task_id = ?
		RETURNING %s
	`, r.tables.History, strings.Join(sets, ", "), historyColumns)

	history, err := scanHistory(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("history %s: %w", taskID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, mapHistoryWriteError("update history", taskID, update.FolderID.Ptr(), err, false)
	}

	return history, nil
}

// Upsert inserts history or, on task_id conflict, applies update to the
// existing row. The existence probe and the write share one IMMEDIATE
// transaction, so no other writer can slip in between them.
func (r *HistoryRepository) Upsert(ctx context.Context, history *models.History, update models.HistoryUpdate, now time.Time) (*models.History, bool, error) {
	history.CreatedAt = now
	history.UpdatedAt = now

	sets := []string{}
	for _, col := range update.Columns() {
		sets = append(sets, fmt.Sprintf("%[1]s = excluded.%[1]s", col.Name))
	}
	sets = append(sets, "updated_at = excluded.updated_at")

	query := fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s)
		VALUES (%[3]s)
		ON CONFLICT(task_id) DO UPDATE SET %[4]s
		RETURNING %[5]s
	`, r.tables.History, historyInsertColumns, historyInsertValues, strings.Join(sets, ", "), historyColumns)

	var stored *models.History
	var inserted bool

	err := withTx(ctx, r.db, r.logger, func(txCtx context.Context) error {
		executor := GetExecutor(txCtx, r.db)

		var exists int
		probe := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE task_id = ?`, r.tables.History)
		if err := executor.QueryRowContext(txCtx, probe, history.TaskID).Scan(&exists); err != nil {
			return domain.NewStorageError("probe history", err)
		}

		row, err := scanHistory(executor.QueryRowContext(txCtx, query, insertArgs(history)...))
		if err != nil {
			return mapHistoryWriteError("upsert history", history.TaskID, history.FolderID, err, true)
		}

		stored = row
		inserted = exists == 0
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return stored, inserted, nil
}

// Delete removes a row by task id
func (r *HistoryRepository) Delete(ctx context.Context, taskID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE task_id = ?`, r.tables.History)

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, taskID)
	if err != nil {
		return domain.NewStorageError("delete history", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return domain.NewStorageError("delete history", err)
	}
	if n == 0 {
		return fmt.Errorf("history %s: %w", taskID, domain.ErrNotFound)
	}

	return nil
}

// DetachFolders moves every row filed under folderIDs back to the root
func (r *HistoryRepository) DetachFolders(ctx context.Context, folderIDs []string, now time.Time) (int64, error) {
	if len(folderIDs) == 0 {
		return 0, nil
	}

	placeholders, inArgs := inList(folderIDs)
	query := fmt.Sprintf(`
		UPDATE %s
		SET folder_id = NULL, updated_at = ?
		WHERE folder_id IN (%s)
	`, r.tables.History, placeholders)

	args := append([]any{toNanos(now)}, inArgs...)
	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, domain.NewStorageError("detach history", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, domain.NewStorageError("detach history", err)
	}
	return n, nil
}

func (r *HistoryRepository) queryMany(ctx context.Context, op, query string, args ...any) ([]models.History, error) {
	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
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

// mapHistoryWriteError turns constraint violations into domain errors.
// A unique violation during upsert is reported as retryable.
func mapHistoryWriteError(op, taskID string, folderID *string, err error, upsert bool) error {
	if isUniqueConstraintError(err) {
		return &domain.ConflictError{
			Message:      fmt.Sprintf("history %q already exists", taskID),
			ResourceType: "history",
			ResourceID:   taskID,
			Retryable:    upsert,
		}
	}
	if isForeignKeyError(err) {
		return &domain.InvalidReferenceError{Field: "folder_id", ResourceID: deref(folderID)}
	}
	return domain.NewStorageError(op, err)
}

func insertArgs(h *models.History) []any {
	return []any{
		h.TaskID,
		h.Status,
		h.Platform,
		h.FolderID,
		h.Title,
		h.CoverURL,
		h.Duration,
		h.FilePath,
		h.VideoID,
		jsonArg(h.RawInfo),
		h.TranscriptFullText,
		h.TranscriptLanguage,
		jsonArg(h.TranscriptRaw),
		jsonArg(h.TranscriptSegments),
		h.MarkdownContent,
		jsonArg(h.MarkdownVersions),
		jsonArg(h.FormData),
		toNanos(h.CreatedAt),
		toNanos(h.UpdatedAt),
	}
}

// jsonArg stores JSON as TEXT so the column stays readable with the sqlite3 shell
func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func columnArg(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func scanHistory(row rowScanner) (*models.History, error) {
	var h models.History
	var createdAt, updatedAt int64
	err := row.Scan(
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
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	h.CreatedAt = fromNanos(createdAt)
	h.UpdatedAt = fromNanos(updatedAt)
	return &h, nil
}
