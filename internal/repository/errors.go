// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow handlers to distinguish between
// different failure scenarios.
package repository

import (
	"errors"
	"fmt"
	"strings"
)

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not take part in. Handlers translate it into 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write collides with existing state.
// Handlers translate it into 409.
var ErrConflict = errors.New("conflict")

// ErrNotFound matches every NotFoundError through errors.Is.
var ErrNotFound = errors.New("not found")

// NotFoundCode is the error code clients use to tell "no row" apart from a
// failed query.
const NotFoundCode = "PGRST116"

// NotFoundError reports a single-row lookup that matched nothing.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found", e.Resource) }

// ErrorCode returns NotFoundCode.
func (e *NotFoundError) ErrorCode() string { return NotFoundCode }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func notFound(resource string) error { return &NotFoundError{Resource: resource} }

// isDuplicate recognises unique-key violations from MySQL (1062) and SQLite.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "1062") || strings.Contains(msg, "UNIQUE constraint failed")
}
