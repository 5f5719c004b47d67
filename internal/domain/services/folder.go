package services

import (
	"context"

	"bilinote/internal/domain/models"
)

// FolderService handles folder business logic
type FolderService interface {
	// CreateFolder creates a new folder, verifying its parent exists
	CreateFolder(ctx context.Context, req *CreateFolderRequest) (*models.Folder, error)

	// GetFolder retrieves a folder by id
	GetFolder(ctx context.Context, id string) (*models.Folder, error)

	// ListFolders returns every folder, oldest first
	ListFolders(ctx context.Context) ([]models.Folder, error)

	// GetTree returns the folder forest built from ListFolders
	GetTree(ctx context.Context) ([]*models.FolderTreeNode, error)

	// UpdateFolder applies a sparse update. A parent_id change is validated
	// like MoveFolder.
	UpdateFolder(ctx context.Context, id string, req *UpdateFolderRequest) (*models.Folder, error)

	// DeleteFolder deletes the folder and all descendants, detaching their
	// history rows, in one transaction
	DeleteFolder(ctx context.Context, id string) (*DeleteFolderResult, error)

	// MoveFolder re-parents a folder. nil moves it to the root.
	MoveFolder(ctx context.Context, id string, newParentID *string) (*models.Folder, error)
}

// CreateFolderRequest represents a folder creation request
type CreateFolderRequest struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	ParentID   *string `json:"parent_id,omitempty"` // null for root folders
	IsExpanded *bool   `json:"is_expanded,omitempty"`
}

// UpdateFolderRequest is a sparse folder update. Null values are ignored.
type UpdateFolderRequest struct {
	Name       models.Field[string] `json:"name"`
	ParentID   models.Field[string] `json:"parent_id"`
	IsExpanded models.Field[bool]   `json:"is_expanded"`
}

// MoveFolderRequest re-parents a folder; null or omitted parent_id means root
type MoveFolderRequest struct {
	ParentID *string `json:"parent_id"`
}

// DeleteFolderResult reports what a cascading delete touched
type DeleteFolderResult struct {
	DeletedFolders  int64 `json:"deleted_folders"`
	DetachedHistory int64 `json:"detached_history"`
}
