// Package errors defines structured application errors with machine-readable
// codes. Submission-time validation failures carry codes the request layer can
// return verbatim (unsupported_module, evidence_required, ...).
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes an application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeUnsupportedModule indicates a module name absent from the registry.
	ErrCodeUnsupportedModule ErrorCode = "unsupported_module"
	// ErrCodeEvidenceRequired indicates the module needs evidence and none was given.
	ErrCodeEvidenceRequired ErrorCode = "evidence_required"
	// ErrCodeQueueUnavailable indicates the queue backend rejected a publish.
	ErrCodeQueueUnavailable ErrorCode = "queue_unavailable"
	// ErrCodeConflict indicates a state conflict, e.g. an illegal job transition.
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "internal"
)

// AppError is a structured error with a code, message and optional cause.
// It supports errors.Is / errors.As through Unwrap.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// NotFound creates a not_found error.
func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

// NotFoundf creates a not_found error with a formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// Validationf creates a validation error with a formatted message.
func Validationf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...)}
}

// UnsupportedModule creates an unsupported_module error for the given name.
func UnsupportedModule(name string) *AppError {
	return &AppError{Code: ErrCodeUnsupportedModule, Message: fmt.Sprintf("unsupported module: %s", name)}
}

// EvidenceRequired creates an evidence_required error for the given module.
func EvidenceRequired(module string) *AppError {
	return &AppError{Code: ErrCodeEvidenceRequired, Message: fmt.Sprintf("module %s requires evidence", module)}
}

// QueueUnavailable wraps a queue publish failure.
func QueueUnavailable(cause error) *AppError {
	return &AppError{Code: ErrCodeQueueUnavailable, Message: "queue backend unavailable", Cause: cause}
}

// Conflict creates a conflict error.
func Conflictf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeConflict, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected error.
func Internal(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message, Cause: cause}
}

// CodeOf extracts the ErrorCode from err, or ErrCodeInternal if err is not an
// AppError anywhere in its chain.
func CodeOf(err error) ErrorCode {
	var app *AppError
	if errors.As(err, &app) {
		return app.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
