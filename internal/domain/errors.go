package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
type HTTPError interface {
	error
	StatusCode() int
}

// Domain error types implementing HTTPError interface
type (
	// NotFoundError indicates a resource was not found
	NotFoundError struct {
		Message string
	}

	// ValidationError indicates invalid input
	ValidationError struct {
		Message string
	}
)

func (e *NotFoundError) Error() string   { return e.Message }
func (e *ValidationError) Error() string { return e.Message }

func (e *NotFoundError) StatusCode() int   { return http.StatusNotFound }
func (e *ValidationError) StatusCode() int { return http.StatusBadRequest }

func (e *NotFoundError) Is(target error) bool   { return target == ErrNotFound }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("already exists")
	ErrValidation       = errors.New("validation failed")
	ErrInvalidReference = errors.New("invalid reference")
	ErrStorage          = errors.New("storage failure")
)

// ConflictError represents a resource conflict with details about the existing resource.
// Retryable is set when the conflict came from a racing writer rather than a
// duplicate create, so the caller may repeat the operation.
type ConflictError struct {
	Message      string
	ResourceType string // folder, history
	ResourceID   string
	Retryable    bool
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) StatusCode() int { return http.StatusConflict }

// Is allows errors.Is() to match against ErrConflict
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// InvalidReferenceError reports a parent_id or folder_id pointing at a folder
// that does not exist. It matches both ErrInvalidReference and ErrNotFound so
// callers written against either kind keep working.
type InvalidReferenceError struct {
	Field      string // parent_id, folder_id
	ResourceID string
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("%s %q references a folder that does not exist", e.Field, e.ResourceID)
}

func (e *InvalidReferenceError) StatusCode() int { return http.StatusNotFound }

func (e *InvalidReferenceError) Is(target error) bool {
	return target == ErrInvalidReference || target == ErrNotFound
}

// StorageError wraps a transport or engine failure. The surrounding
// transaction has always been rolled back by the time a caller sees it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) StatusCode() int { return http.StatusInternalServerError }

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// NewStorageError wraps err unless it already carries a domain kind.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomainError(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsDomainError reports whether err already has a distinguishable kind.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidReference) ||
		errors.Is(err, ErrStorage)
}

// IsRetryable reports whether err is a conflict the caller may retry.
func IsRetryable(err error) bool {
	var conflictErr *ConflictError
	return errors.As(err, &conflictErr) && conflictErr.Retryable
}
