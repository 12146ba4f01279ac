package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for retry and boundary mapping decisions.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindDuplicate
	KindConcurrencyConflict
	KindForbidden
	KindInternal
)

// Error carries a kind, a stable machine code and an optional field name.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Field   string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a typed error without a cause.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// NewField is New with the offending input field attached.
func NewField(kind Kind, code, message, field string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Field: field}
}

// Wrap classifies an underlying error, keeping the cause for logs and
// errors.Is checks.
func Wrap(kind Kind, err error, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, cause: err}
}

// KindOf extracts the Kind from an error chain, KindUnknown if untyped.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// AsError returns the typed error in the chain, nil if absent.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsConflict(err error) bool   { return KindOf(err) == KindConcurrencyConflict }
