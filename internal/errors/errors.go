// Package errors defines the coded error types returned by the document store.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode defines specific error types for the store.
type ErrorCode string

const (
	// ErrDirectoryNotFound is returned when the storage root does not exist
	ErrDirectoryNotFound ErrorCode = "DIRECTORY_NOT_FOUND"
	// ErrTableNotFound is returned when a table document does not exist
	ErrTableNotFound ErrorCode = "TABLE_NOT_FOUND"
	// ErrKeyNotFound is returned when an operation references an absent key
	ErrKeyNotFound ErrorCode = "KEY_NOT_FOUND"

	// ErrValidationFailed is returned when a value does not match the table rules
	ErrValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrTypeMismatch is returned when a value has the wrong shape for the operation
	ErrTypeMismatch ErrorCode = "TYPE_MISMATCH"
	// ErrInvalidName is returned when a table name cannot be used
	ErrInvalidName ErrorCode = "INVALID_NAME"

	// ErrStorageError is returned when a storage operation fails
	ErrStorageError ErrorCode = "STORAGE_ERROR"
)

// Error is a concrete error type with a code and optional details.
type Error struct {
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		code:    code,
		message: message,
		details: make(map[string]any),
	}
}

// WithDetails adds details to the error.
func (e *Error) WithDetails(details map[string]any) *Error {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	for k, v := range details {
		e.details[k] = v
	}
	return e
}

// WithDetail adds a single detail to the error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *Error) Wrap(err error) *Error {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// Code returns the error code.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Details returns additional error details.
func (e *Error) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *Error) Unwrap() error {
	return e.wrappedErr
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.code == e.code
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.code
	}
	return ""
}

// Predefined error constructors for common cases

// DirectoryNotFound creates an error for a missing storage root.
func DirectoryNotFound(path string) *Error {
	return New(ErrDirectoryNotFound, fmt.Sprintf("unable to find directory %s", path)).WithDetail("path", path)
}

// TableNotFound creates an error for a missing table document.
func TableNotFound(table string) *Error {
	return New(ErrTableNotFound, fmt.Sprintf("unable to find table %q", table)).WithDetail("table", table)
}

// KeyNotFound creates an error for an absent key.
func KeyNotFound(table, key string) *Error {
	return New(ErrKeyNotFound, fmt.Sprintf("unable to find key %q in table %q", key, table)).
		WithDetails(map[string]any{"table": table, "key": key})
}

// Validation creates a validation error.
func Validation(format string, args ...any) *Error {
	return New(ErrValidationFailed, fmt.Sprintf(format, args...))
}

// TypeMismatch creates an error for a value of the wrong shape.
func TypeMismatch(format string, args ...any) *Error {
	return New(ErrTypeMismatch, fmt.Sprintf(format, args...))
}

// InvalidName creates an error for an unusable table name.
func InvalidName(name, reason string) *Error {
	return New(ErrInvalidName, fmt.Sprintf("invalid table name %q: %s", name, reason)).WithDetail("table", name)
}

// Storage creates an error wrapping an I/O failure.
func Storage(message string, err error) *Error {
	return New(ErrStorageError, message).Wrap(err)
}
