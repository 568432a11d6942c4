package domain

import (
	"errors"
	"fmt"
)

// Kind classifies errors surfaced by upload operations.
type Kind string

const (
	KindValidation        Kind = "ValidationError"
	KindUnauthorized      Kind = "Unauthorized"
	KindForbidden         Kind = "Forbidden"
	KindNotFound          Kind = "NotFound"
	KindConflict          Kind = "Conflict"
	KindStorage           Kind = "StorageError"
	KindDatabase          Kind = "DatabaseError"
	KindInvalidTransition Kind = "InvalidTransitionError"
	KindInternal          Kind = "InternalError"
)

// Error is a classified error. Message is safe to show to clients; Err
// carries the underlying cause for logs.
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

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string, cause error) error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

func Validation(msg string) error   { return newError(KindValidation, msg, nil) }
func Unauthorized(msg string) error { return newError(KindUnauthorized, msg, nil) }
func Forbidden(msg string) error    { return newError(KindForbidden, msg, nil) }
func NotFound(msg string) error     { return newError(KindNotFound, msg, nil) }
func Conflict(msg string) error     { return newError(KindConflict, msg, nil) }

func Storage(msg string, cause error) error  { return newError(KindStorage, msg, cause) }
func Database(msg string, cause error) error { return newError(KindDatabase, msg, cause) }

// InvalidTransitionError reports a status change rejected by the transition table.
type InvalidTransitionError struct {
	From UploadStatus
	To   UploadStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// KindOf classifies err. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var te *InvalidTransitionError
	if errors.As(err, &te) {
		return KindInvalidTransition
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// MessageOf returns the client-safe message for err.
func MessageOf(err error) string {
	var te *InvalidTransitionError
	if errors.As(err, &te) {
		return te.Error()
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
