package service

import (
	"context"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"bilinote/internal/config"
	"bilinote/internal/domain/models"
	"bilinote/internal/domain/repositories"
	"bilinote/internal/domain/services"
)

type historyService struct {
	historyRepo repositories.HistoryRepository
	txManager   repositories.TransactionManager
	validator   *FolderRefValidator
	logger      *slog.Logger
}

// NewHistoryService creates a new history service
func NewHistoryService(
	historyRepo repositories.HistoryRepository,
	txManager repositories.TransactionManager,
	validator *FolderRefValidator,
	logger *slog.Logger,
) services.HistoryService {
	return &historyService{
		historyRepo: historyRepo,
		txManager:   txManager,
		validator:   validator,
		logger:      logger,
	}
}

// CreateHistory inserts a new row built from the normalized input
func (s *historyService) CreateHistory(ctx context.Context, input *services.HistoryInput) (*models.History, error) {
	history, err := createHistory(ctx, s.historyRepo, s.txManager, s.validator, input)
	if err != nil {
		return nil, err
	}

	s.logger.Info("history created",
		"task_id", history.TaskID,
		"status", history.Status,
		"folder_id", history.FolderID,
	)

	return history, nil
}

// GetHistory retrieves a row by task id
func (s *historyService) GetHistory(ctx context.Context, taskID string) (*models.History, error) {
	return s.historyRepo.GetByTaskID(ctx, taskID)
}

// ListHistory returns one page, newest first
func (s *historyService) ListHistory(ctx context.Context, req *services.ListHistoryRequest) (*services.HistoryPage, error) {
	err := validation.ValidateStruct(req,
		validation.Field(&req.Limit, validation.Min(0), validation.Max(config.MaxHistoryPageSize)),
		validation.Field(&req.Offset, validation.Min(0)),
	)
	if err != nil {
		return nil, validationError(err)
	}

	limit := req.Limit
	if limit == 0 {
		limit = config.DefaultHistoryPageSize
	}

	items, err := s.historyRepo.List(ctx, limit, req.Offset)
	if err != nil {
		return nil, err
	}

	return &services.HistoryPage{Items: items, Limit: limit, Offset: req.Offset}, nil
}

// ListByVideo returns every row for one video on one platform
func (s *historyService) ListByVideo(ctx context.Context, videoID, platform string) ([]models.History, error) {
	err := validation.Errors{
		"video_id": validation.Validate(videoID, validation.Required),
		"platform": validation.Validate(platform, validation.Required),
	}.Filter()
	if err != nil {
		return nil, validationError(err)
	}

	return s.historyRepo.ListByVideo(ctx, videoID, platform)
}

// UpdateHistory applies a sparse update. Nulls are ignored, so this path
// cannot clear a column.
func (s *historyService) UpdateHistory(ctx context.Context, taskID string, fields models.HistoryUpdate) (*models.History, error) {
	fields = fields.Sparse()
	if err := validateFieldValues(fields); err != nil {
		return nil, validationError(err)
	}

	var history *models.History
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if err := s.validator.ValidateFolder(txCtx, "folder_id", fields.FolderID.Ptr()); err != nil {
			return err
		}

		var err error
		history, err = s.historyRepo.Update(txCtx, taskID, fields, time.Now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("history updated",
		"task_id", taskID,
		"columns", len(fields.Columns()),
	)

	return history, nil
}

// DeleteHistory removes a row
func (s *historyService) DeleteHistory(ctx context.Context, taskID string) error {
	if err := s.historyRepo.Delete(ctx, taskID); err != nil {
		return err
	}

	s.logger.Info("history deleted", "task_id", taskID)
	return nil
}

// createHistory validates input and inserts it inside one transaction.
// Shared by CreateHistory and the import paths.
func createHistory(
	ctx context.Context,
	historyRepo repositories.HistoryRepository,
	txManager repositories.TransactionManager,
	validator *FolderRefValidator,
	input *services.HistoryInput,
) (*models.History, error) {
	fields := input.Fields.Sparse()
	normalized := &services.HistoryInput{TaskID: input.TaskID, Fields: fields}
	if err := validateHistoryInput(normalized, true); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	history := &models.History{TaskID: input.TaskID, CreatedAt: now, UpdatedAt: now}
	fields.ApplyTo(history)

	err := txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if err := validator.ValidateFolder(txCtx, "folder_id", history.FolderID); err != nil {
			return err
		}
		return historyRepo.Create(txCtx, history)
	})
	if err != nil {
		return nil, err
	}

	return history, nil
}
