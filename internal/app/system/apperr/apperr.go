// Package apperr defines the error taxonomy shared by every feature
// and the JSON rendering for it.
//
// Stores return their own sentinel errors (mongo.ErrNoDocuments,
// ErrDuplicateMembership, and so on); features translate those into
// apperr values at the handler boundary so clients always see one of
// five stable kinds with a matching HTTP status:
//
//	validation → 400
//	forbidden  → 403
//	not_found  → 404
//	conflict   → 409
//	internal   → 500
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for status mapping and client handling.
type Kind string

const (
	KindValidation Kind = "validation"
	KindForbidden  Kind = "forbidden"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindInternal   Kind = "internal"
)

// Error is a classified application error. Message is safe to show to
// clients; the wrapped cause (if any) is for logs only.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NotFound builds a not_found error naming the missing thing.
func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

// Validation builds a validation error with a client-facing message.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Validationf builds a validation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Forbidden builds a forbidden error with a client-facing message.
func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

// Conflict builds a conflict error with a client-facing message.
func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// Internal wraps an unexpected error. The cause never reaches the
// client; the generic message does.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "internal server error", cause: cause}
}

// KindOf extracts the Kind from err, defaulting to internal for
// unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}
