// Package apperror defines the domain error vocabulary shared by every layer.
//
// SENTINELS + WRAPPER:
// Repositories and services never return HTTP status codes. They return one of
// the sentinel errors below, usually wrapped in an *AppError that carries a
// human-readable message (and, for validation, the offending field).
//
// Handlers translate with errors.Is:
//
//	ErrValidation   → 400
//	ErrUnauthorized → 401
//	ErrForbidden    → 403
//	ErrNotFound     → 404
//	ErrConflict     → 409
//	ErrUnavailable  → 503
//
// Anything else is an unexpected failure and becomes a 500 with a generic message.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnavailable marks a dependency outside this process (TTS, video,
	// payments, AI) that is failing or whose circuit breaker is open.
	ErrUnavailable = errors.New("unavailable")
)

// AppError pairs a sentinel with a message that is safe to show to clients.
type AppError struct {
	Err     error  // sentinel, used by errors.Is
	Message string // safe to return to the client
	Field   string // set for validation failures
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Conflictf builds a conflict with a caller-supplied message, for cases where
// "resource conflict with id" reads badly (e.g. a quest completed twice).
func Conflictf(format string, args ...any) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf(format, args...),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized means the caller is not authenticated at all.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// Unavailable reports a failing external dependency. The underlying cause is
// deliberately not part of the message; callers log it separately.
func Unavailable(dependency string) *AppError {
	return &AppError{
		Err:     ErrUnavailable,
		Message: fmt.Sprintf("%s is temporarily unavailable", dependency),
	}
}
