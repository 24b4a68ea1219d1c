package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for matching with errors.Is.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("invalid input")
	ErrSync       = errors.New("sync failed")
)

// NotFoundError identifies which resource was missing (or invisible to the
// caller — message access deliberately reuses this instead of Forbidden).
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NewNotFound(resource string) error {
	return &NotFoundError{Resource: resource}
}

// ForbiddenError carries the permission the caller lacked.
type ForbiddenError struct {
	Requires string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: requires %s", e.Requires)
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

func NewForbidden(requires string) error {
	return &ForbiddenError{Requires: requires}
}

// ValidationError is reported before any write happens.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidation(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// SyncError wraps failures while talking to an external provider or
// processing its payload. Always logged before being returned.
type SyncError struct {
	Integration string
	Err         error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("integration %s: %v", e.Integration, e.Err)
}

func (e *SyncError) Unwrap() error { return ErrSync }

func NewSyncError(integration string, err error) error {
	return &SyncError{Integration: integration, Err: err}
}
