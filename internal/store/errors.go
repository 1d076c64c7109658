package store

import (
	"fmt"
	"net/http"
)

// Error is a storage failure with the HTTP status it maps to.
type Error struct {
	Code    int    // HTTP status code
	Message string // User-facing message
	Err     error  // Underlying error (optional)
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same status code, so errors built by NotFound
// and friends still satisfy errors.Is against the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// HTTPCode returns the HTTP status code associated with this error.
func (e *Error) HTTPCode() int { return e.Code }

// WithMessage returns a new error with a custom message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Message: msg, Err: e.Err}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Err: err}
}

// NotFound reports a missing row, e.g. NotFound("trainer").
func NotFound(entity string) *Error {
	return ErrNotFound.WithMessage(entity + " not found")
}

// Duplicate reports a uniqueness violation, e.g. Duplicate("user").
func Duplicate(entity string) *Error {
	return ErrAlreadyExists.WithMessage(entity + " already exists")
}

// Sentinel errors.
var (
	ErrNotFound = &Error{
		Code:    http.StatusNotFound,
		Message: "not found",
	}

	// ErrAlreadyExists covers unique keys and repeated engagements.
	ErrAlreadyExists = &Error{
		Code:    http.StatusConflict,
		Message: "already exists",
	}

	// ErrInvalidInput is a constraint the caller could have avoided, such as a dangling author.
	ErrInvalidInput = &Error{
		Code:    http.StatusBadRequest,
		Message: "invalid input",
	}
)
