// Package apperr provides standardized, code-carrying domain errors for the
// audiobook streaming core, mirroring the error taxonomy of §7.
//
// Usage:
//
//	if err != nil {
//	    return apperr.Stale("cache entry older than source")
//	}
//
//	var appErr *apperr.Error
//	if errors.As(err, &appErr) {
//	    switch appErr.Code {
//	    case apperr.CodeTooManyRequests:
//	        response.TooManyRequests(w)
//	    }
//	}
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Code is a machine-readable error classification.
type Code string

// Error codes, one per kind named in §7.
const (
	CodeNotFound         Code = "NOT_FOUND"
	CodeStale            Code = "STALE"
	CodeConflict         Code = "CONFLICT"
	CodeKeyAlreadyExists Code = "KEY_ALREADY_EXISTS"
	CodeKeyBeingAdded    Code = "KEY_BEING_ADDED"
	CodeInvalidInput     Code = "INVALID_INPUT"
	CodeInvalidKey       Code = "INVALID_KEY"
	CodeInvalidPath      Code = "INVALID_PATH"
	CodeTooManyRequests  Code = "TOO_MANY_REQUESTS"
	CodeTooManyGroups    Code = "TOO_MANY_GROUPS"
	CodeFileTooBig       Code = "FILE_TOO_BIG"
	CodeArchiveTooBig    Code = "ARCHIVE_TOO_BIG"
	CodeIgnored          Code = "IGNORED"
	CodeTransientIO      Code = "TRANSIENT_IO"
	CodeFatal            Code = "FATAL"
)

// HTTPStatus returns the HTTP status code an HTTP layer should map this code to.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeKeyAlreadyExists, CodeKeyBeingAdded:
		return http.StatusConflict
	case CodeInvalidInput, CodeInvalidKey, CodeInvalidPath:
		return http.StatusBadRequest
	case CodeTooManyRequests, CodeTooManyGroups:
		return http.StatusTooManyRequests
	case CodeFileTooBig, CodeArchiveTooBig:
		return http.StatusRequestEntityTooLarge
	case CodeIgnored:
		return http.StatusOK
	case CodeStale:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error's code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error carrying additional details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: details, cause: e.cause}
}

// WithCause returns a copy of the error wrapping an underlying cause.
func (e *Error) WithCause(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: e.Details, cause: err}
}

// Sentinel errors, matched via errors.Is.
var (
	ErrNotFound        = &Error{Code: CodeNotFound, Message: "not found"}
	ErrStale           = &Error{Code: CodeStale, Message: "stale"}
	ErrConflict        = &Error{Code: CodeConflict, Message: "conflict"}
	ErrKeyExists       = &Error{Code: CodeKeyAlreadyExists, Message: "key already exists"}
	ErrKeyBeingAdded   = &Error{Code: CodeKeyBeingAdded, Message: "key is being added"}
	ErrInvalidInput    = &Error{Code: CodeInvalidInput, Message: "invalid input"}
	ErrInvalidKey      = &Error{Code: CodeInvalidKey, Message: "invalid key"}
	ErrInvalidPath     = &Error{Code: CodeInvalidPath, Message: "invalid path"}
	ErrTooManyRequests = &Error{Code: CodeTooManyRequests, Message: "too many requests"}
	ErrTooManyGroups   = &Error{Code: CodeTooManyGroups, Message: "too many groups"}
	ErrFileTooBig      = &Error{Code: CodeFileTooBig, Message: "file too big"}
	ErrArchiveTooBig   = &Error{Code: CodeArchiveTooBig, Message: "archive too big"}
	ErrIgnored         = &Error{Code: CodeIgnored, Message: "ignored"}
)

// NotFound creates a not-found error.
func NotFound(msg string) *Error { return &Error{Code: CodeNotFound, Message: msg} }

// NotFoundf creates a not-found error with a formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Stale creates a stale-cache-entry error.
func Stale(msg string) *Error { return &Error{Code: CodeStale, Message: msg} }

// Conflict creates a generic conflict error.
func Conflict(msg string) *Error { return &Error{Code: CodeConflict, Message: msg} }

// KeyExists creates a cache/key-already-exists conflict error.
func KeyExists(msg string) *Error { return &Error{Code: CodeKeyAlreadyExists, Message: msg} }

// KeyBeingAdded creates a cache single-writer-in-flight conflict error.
func KeyBeingAdded(msg string) *Error { return &Error{Code: CodeKeyBeingAdded, Message: msg} }

// InvalidInput creates a generic invalid-input error.
func InvalidInput(msg string) *Error { return &Error{Code: CodeInvalidInput, Message: msg} }

// InvalidKey creates an invalid-cache-key error.
func InvalidKey(msg string) *Error { return &Error{Code: CodeInvalidKey, Message: msg} }

// InvalidPath creates a non-UTF-8 or malformed path error.
func InvalidPath(msg string) *Error { return &Error{Code: CodeInvalidPath, Message: msg} }

// TooManyRequests creates an admission-rejected error.
func TooManyRequests(msg string) *Error { return &Error{Code: CodeTooManyRequests, Message: msg} }

// TooManyGroups creates a position-store group-quota error.
func TooManyGroups(msg string) *Error { return &Error{Code: CodeTooManyGroups, Message: msg} }

// FileTooBig creates a transcoding-cache oversize-entry error.
func FileTooBig(msg string) *Error { return &Error{Code: CodeFileTooBig, Message: msg} }

// ArchiveTooBig creates an archive-size-cap error.
func ArchiveTooBig(msg string) *Error { return &Error{Code: CodeArchiveTooBig, Message: msg} }

// Ignored creates a not-an-error "ignored" result, e.g. a stale position write.
func Ignored(msg string) *Error { return &Error{Code: CodeIgnored, Message: msg} }

// Internal creates a transient-I/O error.
func Internal(msg string) *Error { return &Error{Code: CodeTransientIO, Message: msg} }

// Internalf creates a transient-I/O error with a formatted message.
func Internalf(format string, args ...any) *Error {
	return &Error{Code: CodeTransientIO, Message: fmt.Sprintf(format, args...)}
}

// Fatal creates a startup-aborting error (KV open failure, cache-root creation failure).
func Fatal(msg string) *Error { return &Error{Code: CodeFatal, Message: msg} }

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
