package models

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks against the typed errors below.
var (
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrConsolidation  = errors.New("consolidation error")
	ErrRefresh        = errors.New("refresh error")
	ErrRefreshTimeout = errors.New("refresh timed out")
)

// ValidationError reports a malformed record. Row is 1-based within a batch
// and 0 for single-record operations.
type ValidationError struct {
	Field   string
	Row     int
	Message string
}

func (e *ValidationError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("row %d: invalid %s: %s", e.Row, e.Field, e.Message)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotFoundError reports a missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ConsolidationError reports a merge that could not be performed.
type ConsolidationError struct {
	Ticker  string
	Account string
	Reason  string
}

func (e *ConsolidationError) Error() string {
	return fmt.Sprintf("cannot consolidate %s in %q: %s", e.Ticker, e.Account, e.Reason)
}

func (e *ConsolidationError) Is(target error) bool {
	return target == ErrConsolidation
}

// RefreshError wraps a failed or timed-out refresh job.
type RefreshError struct {
	Cause error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("price refresh failed: %v", e.Cause)
}

func (e *RefreshError) Unwrap() error {
	return e.Cause
}

func (e *RefreshError) Is(target error) bool {
	return target == ErrRefresh
}

// NewRefreshTimeout wraps a deadline error so that both ErrRefresh and
// ErrRefreshTimeout match.
func NewRefreshTimeout(cause error) *RefreshError {
	return &RefreshError{Cause: fmt.Errorf("%w: %w", ErrRefreshTimeout, cause)}
}
