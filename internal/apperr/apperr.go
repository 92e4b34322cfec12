// Package apperr defines the closed set of error kinds the auth core can
// surface. Handlers map kinds to transport status codes; the core never
// reasons about HTTP.
package apperr

import (
	"errors"
	"time"
)

// Kind classifies an error for the boundary layer.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindAuth        Kind = "auth_failure"
	KindForbidden   Kind = "forbidden"
	KindConflict    Kind = "conflict"
	KindRateLimited Kind = "rate_limited"
	KindNotFound    Kind = "not_found"
	KindInternal    Kind = "internal"
)

// Conflict discriminators used by registration.
const (
	ConflictAccountExists     = "ACCOUNT_EXISTS"
	ConflictEmailNotConfirmed = "EMAIL_NOT_CONFIRMED"
)

// Error is a domain error carrying a kind and a caller-safe message.
// The wrapped cause (if any) is for logs only and never leaves the process.
type Error struct {
	Kind    Kind
	Message string

	// ConflictType distinguishes registration conflicts; empty otherwise.
	ConflictType string
	// Email accompanies EMAIL_NOT_CONFIRMED conflicts so the client can
	// offer a resend prompt.
	Email string
	// RetryAfter is set for rate-limited errors.
	RetryAfter time.Duration

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a cause that stays internal to logs.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Validation creates a validation error.
func Validation(message string) *Error { return New(KindValidation, message) }

// Auth creates a generic authentication failure. The message must not reveal
// which credential component was wrong.
func Auth(message string) *Error { return New(KindAuth, message) }

// Forbidden creates an authorization error.
func Forbidden(message string) *Error { return New(KindForbidden, message) }

// Conflict creates a typed conflict error.
func Conflict(conflictType, message string) *Error {
	return &Error{Kind: KindConflict, ConflictType: conflictType, Message: message}
}

// NotFound creates a not-found error.
func NotFound(message string) *Error { return New(KindNotFound, message) }

// RateLimited creates a rate-limit error with retry-after information.
func RateLimited(message string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Message: message, RetryAfter: retryAfter}
}

// Internal wraps an infrastructure failure behind a generic message.
func Internal(message string, cause error) *Error {
	return Wrap(KindInternal, message, cause)
}

// KindOf extracts the kind of err, defaulting to KindInternal for errors
// that did not originate in the core.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As is a convenience wrapper around errors.As for *Error.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
