package domain

import (
	"errors"
	"fmt"
)

// Error kinds shared by every layer. Adapters wrap backend errors with one of
// these so callers can branch with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidInput    = errors.New("invalid input")
	ErrConflict        = errors.New("conflict")
	ErrUnavailable     = errors.New("upstream unavailable")
	ErrUnauthenticated = errors.New("unauthenticated")
)

var (
	ErrSessionNotFound = NewError(ErrNotFound, "session not found")
	ErrMessageNotFound = NewError(ErrNotFound, "message not found")
	ErrUserNotFound    = NewError(ErrNotFound, "user not found")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// NewError returns an error with the given message that matches kind.
func NewError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Errorf is NewError with formatting.
func Errorf(kind error, format string, args ...any) error {
	return &kindError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

type upstreamError struct {
	op  string
	err error
}

func (e *upstreamError) Error() string   { return e.op + ": " + e.err.Error() }
func (e *upstreamError) Unwrap() []error { return []error{ErrUnavailable, e.err} }

// Unavailable marks err as an upstream failure, keeping it in the chain.
// Errors that already carry a kind are wrapped without being reclassified.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrNotFound, ErrForbidden, ErrInvalidInput, ErrConflict, ErrUnauthenticated} {
		if errors.Is(err, kind) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return &upstreamError{op: op, err: err}
}
