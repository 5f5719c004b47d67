package service

import (
	"log/slog"

	"bilinote/internal/config"
	"bilinote/internal/domain/repositories"
	"bilinote/internal/domain/services"
)

// Services holds every note service
type Services struct {
	Folders     services.FolderService
	History     services.HistoryService
	Association services.AssociationService
	Upsert      services.UpsertService
}

// SetupServices wires the services over one set of repositories
func SetupServices(
	folderRepo repositories.FolderRepository,
	historyRepo repositories.HistoryRepository,
	txManager repositories.TransactionManager,
	cfg *config.Config,
	logger *slog.Logger,
) *Services {
	validator := NewFolderRefValidator(folderRepo)

	association := NewAssociationService(historyRepo, txManager, validator, logger)

	return &Services{
		Folders:     NewFolderService(folderRepo, association, txManager, validator, logger),
		History:     NewHistoryService(historyRepo, txManager, validator, logger),
		Association: association,
		Upsert:      NewUpsertService(historyRepo, txManager, validator, cfg.UpsertMaxRetries, logger),
	}
}
