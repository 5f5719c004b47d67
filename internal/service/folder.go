package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"bilinote/internal/config"
	"bilinote/internal/domain"
	"bilinote/internal/domain/models"
	"bilinote/internal/domain/repositories"
	"bilinote/internal/domain/services"
)

type folderService struct {
	folderRepo  repositories.FolderRepository
	association services.AssociationService
	txManager   repositories.TransactionManager
	validator   *FolderRefValidator
	logger      *slog.Logger
}

// NewFolderService creates a new folder service
func NewFolderService(
	folderRepo repositories.FolderRepository,
	association services.AssociationService,
	txManager repositories.TransactionManager,
	validator *FolderRefValidator,
	logger *slog.Logger,
) services.FolderService {
	return &folderService{
		folderRepo:  folderRepo,
		association: association,
		txManager:   txManager,
		validator:   validator,
		logger:      logger,
	}
}

// CreateFolder creates a new folder
func (s *folderService) CreateFolder(ctx context.Context, req *services.CreateFolderRequest) (*models.Folder, error) {
	if err := s.validateCreateRequest(req); err != nil {
		return nil, validationError(err)
	}

	// Empty parent means root, same as null
	if req.ParentID != nil && *req.ParentID == "" {
		req.ParentID = nil
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	isExpanded := true
	if req.IsExpanded != nil {
		isExpanded = *req.IsExpanded
	}

	now := time.Now().UTC()
	folder := &models.Folder{
		ID:         id,
		Name:       req.Name,
		ParentID:   req.ParentID,
		IsExpanded: isExpanded,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if err := s.validator.ValidateFolder(txCtx, "parent_id", folder.ParentID); err != nil {
			return err
		}
		return s.folderRepo.Create(txCtx, folder)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("folder created",
		"id", folder.ID,
		"name", folder.Name,
		"parent_id", folder.ParentID,
	)

	return folder, nil
}

// GetFolder retrieves a folder by id
func (s *folderService) GetFolder(ctx context.Context, id string) (*models.Folder, error) {
	return s.folderRepo.GetByID(ctx, id)
}

// ListFolders returns every folder, oldest first
func (s *folderService) ListFolders(ctx context.Context) ([]models.Folder, error) {
	return s.folderRepo.ListAll(ctx)
}

// GetTree nests ListFolders into a forest
func (s *folderService) GetTree(ctx context.Context) ([]*models.FolderTreeNode, error) {
	folders, err := s.folderRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return models.BuildFolderTree(folders), nil
}

// UpdateFolder applies a sparse update; explicit nulls are ignored
func (s *folderService) UpdateFolder(ctx context.Context, id string, req *services.UpdateFolderRequest) (*models.Folder, error) {
	update := models.FolderUpdate{
		Name:       req.Name,
		ParentID:   req.ParentID,
		IsExpanded: req.IsExpanded,
	}.Sparse()

	if update.Name.Present {
		if err := validateFolderName(&update.Name.Value); err != nil {
			return nil, validationError(fmt.Errorf("name: %w", err))
		}
	}

	// An empty parent_id asks for the root; null would be ignored here
	if update.ParentID.Present && update.ParentID.Value == "" {
		update.ParentID = models.Null[string]()
	}

	var folder *models.Folder
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if _, err := s.folderRepo.GetByID(txCtx, id); err != nil {
			return err
		}

		if update.ParentID.HasValue() {
			if err := s.validateNewParent(txCtx, id, update.ParentID.Value); err != nil {
				return err
			}
		}

		var err error
		folder, err = s.folderRepo.Update(txCtx, id, update, time.Now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("folder updated",
		"id", folder.ID,
		"name", folder.Name,
		"parent_id", folder.ParentID,
		"is_expanded", folder.IsExpanded,
	)

	return folder, nil
}

// DeleteFolder deletes the folder and its descendants. History rows filed
// anywhere in the subtree are detached, never deleted.
func (s *folderService) DeleteFolder(ctx context.Context, id string) (*services.DeleteFolderResult, error) {
	result := &services.DeleteFolderResult{}

	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		ids, err := s.folderRepo.CollectSubtree(txCtx, id)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return fmt.Errorf("folder %s: %w", id, domain.ErrNotFound)
		}

		s.logger.Debug("deleting folder subtree", "id", id, "folders", len(ids))

		detached, err := s.association.DetachFolders(txCtx, ids)
		if err != nil {
			return err
		}

		deleted, err := s.folderRepo.DeleteByIDs(txCtx, ids)
		if err != nil {
			return err
		}

		result.DetachedHistory = detached
		result.DeletedFolders = deleted
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("folder deleted",
		"id", id,
		"deleted_folders", result.DeletedFolders,
		"detached_history", result.DetachedHistory,
	)

	return result, nil
}

// MoveFolder re-parents a folder; nil or "" moves it to the root
func (s *folderService) MoveFolder(ctx context.Context, id string, newParentID *string) (*models.Folder, error) {
	parent := models.Null[string]()
	if newParentID != nil && *newParentID != "" {
		parent = models.Set(*newParentID)
	}

	var folder *models.Folder
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if _, err := s.folderRepo.GetByID(txCtx, id); err != nil {
			return err
		}

		if parent.HasValue() {
			if err := s.validateNewParent(txCtx, id, parent.Value); err != nil {
				return err
			}
		}

		var err error
		folder, err = s.folderRepo.Update(txCtx, id, models.FolderUpdate{ParentID: parent}, time.Now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("folder moved",
		"id", folder.ID,
		"parent_id", folder.ParentID,
	)

	return folder, nil
}

// validateNewParent checks that newParentID exists and is neither folderID
// nor one of its descendants
func (s *folderService) validateNewParent(ctx context.Context, folderID, newParentID string) error {
	parentID := newParentID
	if err := s.validator.ValidateFolder(ctx, "parent_id", &parentID); err != nil {
		return err
	}
	return s.validateNoCircularReference(ctx, folderID, newParentID)
}

// validateNoCircularReference walks the ancestor chain of newParentID and
// rejects the move if it reaches folderID
func (s *folderService) validateNoCircularReference(ctx context.Context, folderID, newParentID string) error {
	if folderID == newParentID {
		s.logger.Warn("rejected move", "id", folderID, "parent_id", newParentID, "reason", "self")
		return fmt.Errorf("%w: cannot move folder to be its own parent", domain.ErrValidation)
	}

	currentID := newParentID
	for depth := 0; depth < config.MaxFolderDepth; depth++ {
		current, err := s.folderRepo.GetByID(ctx, currentID)
		if err != nil {
			return err
		}

		if current.ParentID == nil {
			return nil
		}

		if *current.ParentID == folderID {
			s.logger.Warn("rejected move", "id", folderID, "parent_id", newParentID, "reason", "descendant")
			return fmt.Errorf("%w: cannot move folder to be a child of its own descendant", domain.ErrValidation)
		}

		currentID = *current.ParentID
	}

	return fmt.Errorf("%w: folder tree deeper than %d levels", domain.ErrValidation, config.MaxFolderDepth)
}

func (s *folderService) validateCreateRequest(req *services.CreateFolderRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.ID, validation.Length(0, config.MaxFolderIDLength)),
		validation.Field(&req.Name,
			validation.Required,
			validation.RuneLength(1, config.MaxFolderNameLength),
		),
	)
}
