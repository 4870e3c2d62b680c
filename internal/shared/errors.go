package shared

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates resource not found.
var ErrNotFound = errors.New("not found")

// ValidationError reports malformed caller input attributed to a field.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Message)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// StateError reports an illegal lifecycle transition.
type StateError struct {
	Entity  string
	Action  string
	Current string
	Detail  string
}

func (e *StateError) Error() string {
	msg := fmt.Sprintf("state: cannot %s %s in status %s", e.Action, e.Entity, e.Current)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// InsufficientAvailabilityError aborts a completion that would drive
// availability below allocation or below zero. All figures are included so
// the caller can see exactly why the movement was refused.
type InsufficientAvailabilityError struct {
	IntakeID  string
	ItemIndex int // positional item for transfers, -1 for adjustments
	Recorded  int64
	Available int64
	Allocated int64
	Requested int64
}

func (e *InsufficientAvailabilityError) Error() string {
	if e.ItemIndex >= 0 {
		return fmt.Sprintf("insufficient availability: item %d: recorded=%d available=%d allocated=%d requested=%d",
			e.ItemIndex, e.Recorded, e.Available, e.Allocated, e.Requested)
	}
	return fmt.Sprintf("insufficient availability: intake %s: recorded=%d available=%d allocated=%d requested=%d",
		e.IntakeID, e.Recorded, e.Available, e.Allocated, e.Requested)
}

// ConcurrencyError marks a completion that lost a race against a concurrent
// writer. The operation is safe to retry.
type ConcurrencyError struct {
	Op string
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("concurrency: %s lost update race, retry", e.Op)
}

// NotFoundError reports a missing entity or one outside the caller's tenant.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// IsRetryable reports whether err is a retryable concurrency failure.
func IsRetryable(err error) bool {
	var ce *ConcurrencyError
	return errors.As(err, &ce)
}
