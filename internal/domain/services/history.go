package services

import (
	"context"
	"encoding/json"

	"bilinote/internal/domain/models"
)

// HistoryService handles history CRUD
type HistoryService interface {
	// CreateHistory inserts a new row. Duplicate task_id is a Conflict.
	CreateHistory(ctx context.Context, input *HistoryInput) (*models.History, error)

	// GetHistory retrieves a row by task id
	GetHistory(ctx context.Context, taskID string) (*models.History, error)

	// ListHistory returns one page, newest first
	ListHistory(ctx context.Context, req *ListHistoryRequest) (*HistoryPage, error)

	// ListByVideo returns every row for a video on a platform, newest first
	ListByVideo(ctx context.Context, videoID, platform string) ([]models.History, error)

	// UpdateHistory applies a sparse update to an existing row
	UpdateHistory(ctx context.Context, taskID string, fields models.HistoryUpdate) (*models.History, error)

	// DeleteHistory removes a row
	DeleteHistory(ctx context.Context, taskID string) error
}

// AssociationService owns operations spanning folders and history
type AssociationService interface {
	// MoveHistoryToFolder files a history row under folderID, or at the root when nil
	MoveHistoryToFolder(ctx context.Context, taskID string, folderID *string) (*models.History, error)

	// DetachFolders moves every history row filed under folderIDs to the root
	DetachFolders(ctx context.Context, folderIDs []string) (int64, error)
}

// UpsertService reconciles partial payloads into stored history rows
type UpsertService interface {
	// Normalize maps a flat or task-shaped payload onto history columns.
	// TaskID is empty when the payload carries no identity.
	Normalize(raw json.RawMessage) (*HistoryInput, error)

	// Upsert normalizes raw and inserts or sparse-merges it
	Upsert(ctx context.Context, raw json.RawMessage) (*UpsertResult, error)

	// UpsertInput is Upsert for an already normalized payload
	UpsertInput(ctx context.Context, input *HistoryInput) (*UpsertResult, error)

	// Import creates a row from raw; an existing task_id is a Conflict
	Import(ctx context.Context, raw json.RawMessage) (*models.History, error)

	// ImportBatch imports each payload independently, skipping existing
	// task ids, and reports one outcome per item
	ImportBatch(ctx context.Context, items []json.RawMessage) (*ImportBatchResult, error)

	// ImportBatchWith is ImportBatch with defaults for missing fields
	ImportBatchWith(ctx context.Context, items []json.RawMessage, opts ImportOptions) (*ImportBatchResult, error)
}

// HistoryInput is a normalized history payload
type HistoryInput struct {
	TaskID string
	Fields models.HistoryUpdate
}

// ListHistoryRequest pages through history. Zero Limit means the default page size.
type ListHistoryRequest struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// HistoryPage is one page of history rows
type HistoryPage struct {
	Items  []models.History `json:"items"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// MoveHistoryRequest files a history row under a folder (null = root)
type MoveHistoryRequest struct {
	TaskID   string  `json:"task_id"`
	FolderID *string `json:"folder_id"`
}

// UpsertResult is the stored row plus whether it was newly created
type UpsertResult struct {
	History *models.History `json:"history"`
	Created bool            `json:"created"`
}

// Import outcomes
const (
	ImportCreated = "created"
	ImportSkipped = "skipped"
	ImportFailed  = "failed"
)

// ImportOptions fills fields an imported payload left out. Browser task
// exports often carry neither status nor platform. Empty means no default.
type ImportOptions struct {
	DefaultStatus   string
	DefaultPlatform string
}

// ImportItemResult is the outcome of one batch item
type ImportItemResult struct {
	Index   int    `json:"index"`
	TaskID  string `json:"task_id,omitempty"`
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
}

// ImportBatchResult summarizes a batch import
type ImportBatchResult struct {
	Created int                `json:"created"`
	Skipped int                `json:"skipped"`
	Failed  int                `json:"failed"`
	Items   []ImportItemResult `json:"items"`
}
