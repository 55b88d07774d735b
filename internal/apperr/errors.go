// Package apperr holds the error kinds shared by every ledger component.
// Components declare their own sentinels and wrap these kinds, so callers can
// check either the precise error or its kind with errors.Is.
package apperr

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	// ErrConflict marks a request that is well formed but not allowed in the current state
	ErrConflict = errors.New("state conflict")
)

// ValidationError describes input rejected before any state change
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Reason)
	}
	return fmt.Sprintf("validation error: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// IsID reports whether id has the canonical uuid form every primary key uses.
// Lookups treat anything else as an unknown id.
func IsID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFound builds a sentinel that matches ErrNotFound
func NotFound(what string) error {
	return fmt.Errorf("%s %w", what, ErrNotFound)
}

// Conflict builds a sentinel that matches ErrConflict
func Conflict(msg string) error {
	return &kindError{msg: msg, kind: ErrConflict}
}

type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Is(target error) bool { return target == e.kind }
