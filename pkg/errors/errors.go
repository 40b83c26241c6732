package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on Code so a Clone of a sentinel still satisfies errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Sentinels. Services Clone them with a specific message.
var (
	ErrNotFound      = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden     = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized  = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict      = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation    = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrUnprocessable = New("UNPROCESSABLE", http.StatusUnprocessableEntity, "request cannot be scheduled")
	ErrQueueFull     = New("QUEUE_FULL", http.StatusServiceUnavailable, "generation queue is full")
	ErrInternal      = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss     = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// FromError returns the first *Error in err's chain, or wraps err as an
// internal error so the cause is never sent to clients.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
