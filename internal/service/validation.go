package service

import (
	"context"
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"bilinote/internal/config"
	"bilinote/internal/domain"
	"bilinote/internal/domain/models"
	"bilinote/internal/domain/repositories"
	"bilinote/internal/domain/services"
)

// FolderRefValidator checks that folder references point at stored folders
type FolderRefValidator struct {
	folderRepo repositories.FolderRepository
}

// NewFolderRefValidator creates a new folder reference validator
func NewFolderRefValidator(folderRepo repositories.FolderRepository) *FolderRefValidator {
	return &FolderRefValidator{folderRepo: folderRepo}
}

// ValidateFolder ensures folderID exists. nil (the root) is always valid.
// A missing folder is reported as an InvalidReferenceError on field.
func (v *FolderRefValidator) ValidateFolder(ctx context.Context, field string, folderID *string) error {
	if folderID == nil {
		return nil
	}

	_, err := v.folderRepo.GetByID(ctx, *folderID)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.InvalidReferenceError{Field: field, ResourceID: *folderID}
	}
	if err != nil {
		return fmt.Errorf("invalid folder: %w", err)
	}
	return nil
}

func validationError(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrValidation, err)
}

func validateFolderName(name *string) error {
	return validation.Validate(name,
		validation.Required,
		validation.RuneLength(1, config.MaxFolderNameLength),
	)
}

// validateHistoryInput checks identity, plus the columns a new row cannot
// do without when creating is true
func validateHistoryInput(input *services.HistoryInput, creating bool) error {
	err := validation.ValidateStruct(input,
		validation.Field(&input.TaskID, validation.Required, validation.Length(1, config.MaxTaskIDLength)),
	)
	if err != nil {
		return validationError(err)
	}

	if err := validateFieldValues(input.Fields); err != nil {
		return validationError(err)
	}

	if creating {
		err := validation.Errors{
			"status":   validation.Validate(input.Fields.Status.Value, validation.Required),
			"platform": validation.Validate(input.Fields.Platform.Value, validation.Required),
		}.Filter()
		if err != nil {
			return validationError(err)
		}
	}

	return nil
}

// validateFieldValues rejects touched values that could never be stored
func validateFieldValues(fields models.HistoryUpdate) error {
	errs := validation.Errors{}
	if fields.Status.HasValue() {
		errs["status"] = validation.Validate(fields.Status.Value, validation.Required)
	}
	if fields.Platform.HasValue() {
		errs["platform"] = validation.Validate(fields.Platform.Value, validation.Required)
	}
	if fields.Duration.HasValue() {
		errs["duration"] = validation.Validate(fields.Duration.Value, validation.Min(0))
	}
	return errs.Filter()
}
