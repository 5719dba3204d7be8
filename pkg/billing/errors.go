package billing

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the billing operations wraps exactly one of them,
// so callers can branch with errors.Is.
var (
	ErrUnauthorized = errors.New("billing: unauthorized")
	ErrForbidden    = errors.New("billing: forbidden")
	ErrValidation   = errors.New("billing: validation failed")
	ErrConflict     = errors.New("billing: conflict")
	ErrNotFound     = errors.New("billing: not found")
	ErrUpstream     = errors.New("billing: upstream failure")
)

var (
	// Store and provider level errors.
	ErrRecordNotFound   = errors.New("billing record not found")
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	ErrMalformedEvent   = errors.New("malformed webhook event")
	ErrNoSessionURL     = errors.New("provider returned no session URL")
	ErrEmptyAllowList   = errors.New("price allow-list is empty")
)

// Error is a classified billing error carrying a caller-safe message.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes both the kind and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(kind error, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func unauthorizedError(format string, args ...any) error {
	return newError(ErrUnauthorized, nil, format, args...)
}

func validationError(format string, args ...any) error {
	return newError(ErrValidation, nil, format, args...)
}

func conflictError(format string, args ...any) error {
	return newError(ErrConflict, nil, format, args...)
}

func notFoundError(format string, args ...any) error {
	return newError(ErrNotFound, nil, format, args...)
}

func upstreamError(err error, format string, args ...any) error {
	return newError(ErrUpstream, err, format, args...)
}

// KindOf returns the kind sentinel of err, or nil when err is unclassified.
func KindOf(err error) error {
	for _, kind := range []error{ErrUnauthorized, ErrForbidden, ErrValidation, ErrConflict, ErrNotFound, ErrUpstream} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Message returns the caller-safe message of err.
func Message(err error) string {
	var be *Error
	if errors.As(err, &be) {
		return be.Message
	}
	return "internal error"
}
