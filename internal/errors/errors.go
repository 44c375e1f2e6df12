package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an application error
type Kind int

const (
	ErrInternal Kind = iota
	ErrNotFound
	ErrValidation
	ErrConflict
	ErrInvalidInput
	ErrInsufficientFunds
	ErrInvalidState
	ErrStorage
	ErrUnauthorized
	ErrConnection
)

var kindNames = map[Kind]string{
	ErrInternal:          "internal",
	ErrNotFound:          "not_found",
	ErrValidation:        "validation",
	ErrConflict:          "conflict",
	ErrInvalidInput:      "invalid_input",
	ErrInsufficientFunds: "insufficient_funds",
	ErrInvalidState:      "invalid_state",
	ErrStorage:           "storage",
	ErrUnauthorized:      "unauthorized",
	ErrConnection:        "connection",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is an application-level error with a kind for classification
type Error struct {
	Kind    Kind
	Message string
	Err     error // underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NotFound(msg string) *Error {
	return &Error{Kind: ErrNotFound, Message: msg}
}

func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

func Validation(msg string) *Error {
	return &Error{Kind: ErrValidation, Message: msg}
}

func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func Conflict(msg string) *Error {
	return &Error{Kind: ErrConflict, Message: msg}
}

func Conflictf(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

func InvalidInput(msg string) *Error {
	return &Error{Kind: ErrInvalidInput, Message: msg}
}

func InvalidInputf(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func InsufficientFunds(msg string) *Error {
	return &Error{Kind: ErrInsufficientFunds, Message: msg}
}

func InsufficientFundsf(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrInsufficientFunds, Message: fmt.Sprintf(format, args...)}
}

func InvalidState(msg string) *Error {
	return &Error{Kind: ErrInvalidState, Message: msg}
}

func InvalidStatef(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrInvalidState, Message: fmt.Sprintf(format, args...)}
}

// Storage wraps a persistence failure. The caller must not have applied any state.
func Storage(err error, msg string) *Error {
	return &Error{Kind: ErrStorage, Message: msg, Err: err}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: ErrUnauthorized, Message: msg}
}

// Connection wraps a per-connection delivery failure
func Connection(err error) *Error {
	return &Error{Kind: ErrConnection, Message: "connection error", Err: err}
}

func Internal(err error) *Error {
	return &Error{Kind: ErrInternal, Message: "internal error", Err: err}
}

func Internalf(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrInternal, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with additional context
func Wrap(err error, kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or ErrInternal
func KindOf(err error) Kind {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return ErrInternal
}

// Is reports whether err carries an *Error of the given kind
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	var appErr *Error
	return stderrors.As(err, &appErr) && appErr.Kind == kind
}
