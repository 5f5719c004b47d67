package repositories

import (
	"context"
	"time"

	"bilinote/internal/domain/models"
)

// HistoryRepository defines data access operations for history rows
type HistoryRepository interface {
	// Create inserts a row. A duplicate task_id returns a ConflictError.
	Create(ctx context.Context, history *models.History) error

	// GetByTaskID retrieves a row by its external task id
	GetByTaskID(ctx context.Context, taskID string) (*models.History, error)

	// List returns rows newest-created first
	List(ctx context.Context, limit, offset int) ([]models.History, error)

	// ListByVideo returns rows for one source video, newest-created first
	ListByVideo(ctx context.Context, videoID, platform string) ([]models.History, error)

	// Update applies the touched columns and refreshes updated_at
	Update(ctx context.Context, taskID string, update models.HistoryUpdate, now time.Time) (*models.History, error)

	// Upsert inserts history, or when task_id exists applies update to the
	// stored row instead. Reports whether a row was inserted.
	Upsert(ctx context.Context, history *models.History, update models.HistoryUpdate, now time.Time) (*models.History, bool, error)

	// Delete removes a row by task id
	Delete(ctx context.Context, taskID string) error

	// DetachFolders sets folder_id to NULL on every row filed under folderIDs
	DetachFolders(ctx context.Context, folderIDs []string, now time.Time) (int64, error)
}
