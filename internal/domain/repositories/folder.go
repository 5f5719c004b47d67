package repositories

import (
	"context"
	"time"

	"bilinote/internal/domain/models"
)

// FolderRepository defines data access operations for folders
type FolderRepository interface {
	// Create inserts a folder. A duplicate id returns a ConflictError.
	Create(ctx context.Context, folder *models.Folder) error

	// GetByID retrieves a folder by ID
	GetByID(ctx context.Context, id string) (*models.Folder, error)

	// ListAll returns every folder ordered by created_at ascending
	ListAll(ctx context.Context) ([]models.Folder, error)

	// Update applies the touched columns and refreshes updated_at.
	// Returns the stored row after the update.
	Update(ctx context.Context, id string, update models.FolderUpdate, now time.Time) (*models.Folder, error)

	// CollectSubtree returns id and all of its descendants' ids in one round trip
	CollectSubtree(ctx context.Context, id string) ([]string, error)

	// DeleteByIDs deletes all listed folders in one statement and returns the count
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}
