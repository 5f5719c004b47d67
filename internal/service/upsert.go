package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bilinote/internal/config"
	"bilinote/internal/domain"
	"bilinote/internal/domain/models"
	"bilinote/internal/domain/repositories"
	"bilinote/internal/domain/services"
)

type upsertService struct {
	historyRepo repositories.HistoryRepository
	txManager   repositories.TransactionManager
	validator   *FolderRefValidator
	maxRetries  int
	logger      *slog.Logger
}

// NewUpsertService creates the history reconciler. maxRetries bounds how
// often a retryable conflict is replayed before it is returned.
func NewUpsertService(
	historyRepo repositories.HistoryRepository,
	txManager repositories.TransactionManager,
	validator *FolderRefValidator,
	maxRetries int,
	logger *slog.Logger,
) services.UpsertService {
	return &upsertService{
		historyRepo: historyRepo,
		txManager:   txManager,
		validator:   validator,
		maxRetries:  maxRetries,
		logger:      logger,
	}
}

// Normalize maps raw onto history columns without touching storage
func (s *upsertService) Normalize(raw json.RawMessage) (*services.HistoryInput, error) {
	return normalizePayload(raw)
}

// Upsert normalizes raw, then inserts or sparse-merges it
func (s *upsertService) Upsert(ctx context.Context, raw json.RawMessage) (*services.UpsertResult, error) {
	input, err := normalizePayload(raw)
	if err != nil {
		return nil, err
	}
	return s.UpsertInput(ctx, input)
}

// UpsertInput inserts input when its task_id is new, otherwise applies its
// non-null fields to the stored row. task_id itself is never rewritten.
func (s *upsertService) UpsertInput(ctx context.Context, input *services.HistoryInput) (*services.UpsertResult, error) {
	fields := input.Fields.Sparse()
	normalized := &services.HistoryInput{TaskID: input.TaskID, Fields: fields}
	if err := validateHistoryInput(normalized, false); err != nil {
		return nil, err
	}

	var result *services.UpsertResult
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		result, err = s.upsertOnce(ctx, normalized)
		if err == nil || !domain.IsRetryable(err) {
			break
		}
		s.logger.Warn("upsert conflict, retrying",
			"task_id", input.TaskID,
			"attempt", attempt+1,
			"error", err,
		)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("history upserted",
		"task_id", result.History.TaskID,
		"created", result.Created,
		"columns", len(fields.Columns()),
	)

	return result, nil
}

func (s *upsertService) upsertOnce(ctx context.Context, input *services.HistoryInput) (*services.UpsertResult, error) {
	var result *services.UpsertResult

	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		_, err := s.historyRepo.GetByTaskID(txCtx, input.TaskID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			// A new row needs its required columns from this payload
			if err := validateHistoryInput(input, true); err != nil {
				return err
			}
		case err != nil:
			return err
		}

		if err := s.validator.ValidateFolder(txCtx, "folder_id", input.Fields.FolderID.Ptr()); err != nil {
			return err
		}

		base := &models.History{TaskID: input.TaskID}
		input.Fields.ApplyTo(base)

		stored, inserted, err := s.historyRepo.Upsert(txCtx, base, input.Fields, time.Now().UTC())
		if err != nil {
			return err
		}

		result = &services.UpsertResult{History: stored, Created: inserted}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Import creates a row from raw. Unlike Upsert, an existing task_id is a Conflict.
func (s *upsertService) Import(ctx context.Context, raw json.RawMessage) (*models.History, error) {
	input, err := normalizePayload(raw)
	if err != nil {
		return nil, err
	}

	history, err := createHistory(ctx, s.historyRepo, s.txManager, s.validator, input)
	if err != nil {
		return nil, err
	}

	s.logger.Info("history imported", "task_id", history.TaskID)
	return history, nil
}

// ImportBatch imports each item in its own transaction. Existing task ids
// are skipped; a failing item never undoes the ones before it.
func (s *upsertService) ImportBatch(ctx context.Context, items []json.RawMessage) (*services.ImportBatchResult, error) {
	return s.ImportBatchWith(ctx, items, services.ImportOptions{})
}

func (s *upsertService) ImportBatchWith(ctx context.Context, items []json.RawMessage, opts services.ImportOptions) (*services.ImportBatchResult, error) {
	if len(items) > config.MaxImportBatchSize {
		return nil, fmt.Errorf("%w: batch of %d exceeds limit of %d", domain.ErrValidation, len(items), config.MaxImportBatchSize)
	}

	result := &services.ImportBatchResult{Items: make([]services.ImportItemResult, 0, len(items))}

	for i, raw := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		item := s.importOne(ctx, raw, opts)
		item.Index = i

		switch item.Outcome {
		case services.ImportCreated:
			result.Created++
		case services.ImportSkipped:
			result.Skipped++
		default:
			result.Failed++
		}
		result.Items = append(result.Items, item)
	}

	s.logger.Info("history batch imported",
		"items", len(items),
		"created", result.Created,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)

	return result, nil
}

func (s *upsertService) importOne(ctx context.Context, raw json.RawMessage, opts services.ImportOptions) services.ImportItemResult {
	input, err := normalizePayload(raw)
	if err != nil {
		return services.ImportItemResult{Outcome: services.ImportFailed, Reason: err.Error()}
	}
	applyImportDefaults(input, opts)

	item := services.ImportItemResult{TaskID: input.TaskID}

	_, err = s.historyRepo.GetByTaskID(ctx, input.TaskID)
	switch {
	case err == nil:
		item.Outcome = services.ImportSkipped
		item.Reason = "already exists"
		return item
	case !errors.Is(err, domain.ErrNotFound):
		item.Outcome = services.ImportFailed
		item.Reason = err.Error()
		return item
	}

	if _, err := createHistory(ctx, s.historyRepo, s.txManager, s.validator, input); err != nil {
		// Lost a race with another writer: the row exists now
		if errors.Is(err, domain.ErrConflict) {
			item.Outcome = services.ImportSkipped
			item.Reason = "already exists"
			return item
		}
		item.Outcome = services.ImportFailed
		item.Reason = err.Error()
		return item
	}

	item.Outcome = services.ImportCreated
	return item
}

// applyImportDefaults fills status and platform when the payload left them
// absent or null. An explicit value, even an invalid one, is kept.
func applyImportDefaults(input *services.HistoryInput, opts services.ImportOptions) {
	if opts.DefaultStatus != "" && !input.Fields.Status.HasValue() {
		input.Fields.Status = models.Set(opts.DefaultStatus)
	}
	if opts.DefaultPlatform != "" && !input.Fields.Platform.HasValue() {
		input.Fields.Platform = models.Set(opts.DefaultPlatform)
	}
}
