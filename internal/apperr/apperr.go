// Package apperr classifies failures so callers can tell an insufficient
// stock rejection apart from a missing entity or a storage problem without
// inspecting driver errors.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the classification of an application error
type Kind string

const (
	KindInsufficientStock       Kind = "INSUFFICIENT_STOCK"
	KindNotFound                Kind = "NOT_FOUND"
	KindInvalidTransition       Kind = "INVALID_TRANSITION"
	KindValidation              Kind = "VALIDATION"
	KindTransientConflict       Kind = "TRANSIENT_CONFLICT"
	KindTransactionsUnsupported Kind = "TRANSACTIONS_UNSUPPORTED"
	KindInternal                Kind = "INTERNAL"
)

// Error is a classified error with a user-facing message
type Error struct {
	Kind    Kind
	Message string
	Err     error
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

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works
// for every not-found error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is
var (
	ErrInsufficientStock       = &Error{Kind: KindInsufficientStock}
	ErrNotFound                = &Error{Kind: KindNotFound}
	ErrInvalidTransition       = &Error{Kind: KindInvalidTransition}
	ErrValidation              = &Error{Kind: KindValidation}
	ErrTransientConflict       = &Error{Kind: KindTransientConflict}
	ErrTransactionsUnsupported = &Error{Kind: KindTransactionsUnsupported}
)

// New creates a classified error
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func InsufficientStock(format string, args ...interface{}) *Error {
	return New(KindInsufficientStock, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

func InvalidTransition(format string, args ...interface{}) *Error {
	return New(KindInvalidTransition, format, args...)
}

func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, format, args...)
}

// KindOf returns the kind of the first classified error in the chain,
// or KindInternal when none is found.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message of the first classified error
// in the chain. Unclassified errors never leak their text.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != KindInternal {
		return appErr.Message
	}
	return "Internal server error"
}
