// Package apperr defines the domain error taxonomy shared by all engines.
// Mutating operations surface these typed errors; read paths (lists, stats,
// reports) return zero-valued results for unknown ids instead.
package apperr

import "errors"

// NotFoundError marks a required entity that does not exist.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ConflictError marks a duplicate mutation or an illegal state transition.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// UnauthorizedError marks an owner-only action attempted by a non-owner.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string { return e.Message }

// ValidationError marks malformed or out-of-range input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NotFound returns a NotFoundError with the given message.
func NotFound(msg string) error { return &NotFoundError{Message: msg} }

// Conflict returns a ConflictError with the given message.
func Conflict(msg string) error { return &ConflictError{Message: msg} }

// Unauthorized returns an UnauthorizedError with the given message.
func Unauthorized(msg string) error { return &UnauthorizedError{Message: msg} }

// Validation returns a ValidationError with the given message.
func Validation(msg string) error { return &ValidationError{Message: msg} }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}

// IsUnauthorized reports whether err is an UnauthorizedError.
func IsUnauthorized(err error) bool {
	var e *UnauthorizedError
	return errors.As(err, &e)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}
