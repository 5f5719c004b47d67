package service

import (
	"context"
	"log/slog"
	"time"

	"bilinote/internal/domain/models"
	"bilinote/internal/domain/repositories"
	"bilinote/internal/domain/services"
)

// associationService keeps the folder and history stores unaware of each other
type associationService struct {
	historyRepo repositories.HistoryRepository
	txManager   repositories.TransactionManager
	validator   *FolderRefValidator
	logger      *slog.Logger
}

// NewAssociationService creates a new association service
func NewAssociationService(
	historyRepo repositories.HistoryRepository,
	txManager repositories.TransactionManager,
	validator *FolderRefValidator,
	logger *slog.Logger,
) services.AssociationService {
	return &associationService{
		historyRepo: historyRepo,
		txManager:   txManager,
		validator:   validator,
		logger:      logger,
	}
}

// MoveHistoryToFolder files taskID under folderID. nil or "" files it at the root.
func (s *associationService) MoveHistoryToFolder(ctx context.Context, taskID string, folderID *string) (*models.History, error) {
	target := models.Null[string]()
	if folderID != nil && *folderID != "" {
		target = models.Set(*folderID)
	}

	var history *models.History
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if _, err := s.historyRepo.GetByTaskID(txCtx, taskID); err != nil {
			return err
		}

		if err := s.validator.ValidateFolder(txCtx, "folder_id", target.Ptr()); err != nil {
			return err
		}

		var err error
		history, err = s.historyRepo.Update(txCtx, taskID, models.HistoryUpdate{FolderID: target}, time.Now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("history moved",
		"task_id", taskID,
		"folder_id", history.FolderID,
	)

	return history, nil
}

// DetachFolders moves every row filed under folderIDs to the root. It joins
// the caller's transaction when ctx carries one.
func (s *associationService) DetachFolders(ctx context.Context, folderIDs []string) (int64, error) {
	var detached int64
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		var err error
		detached, err = s.historyRepo.DetachFolders(txCtx, folderIDs, time.Now().UTC())
		return err
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debug("history detached", "folders", len(folderIDs), "rows", detached)
	return detached, nil
}
