package domain

import (
	"errors"
	"fmt"
)

// ErrorKind discriminates failures at the service boundary. Handlers map
// kinds to transport status codes; internal identifiers never leak.
type ErrorKind string

const (
	KindNotFound           ErrorKind = "not_found"
	KindForbidden          ErrorKind = "forbidden"
	KindValidation         ErrorKind = "validation"
	KindPersistence        ErrorKind = "persistence"
	KindOptimizationFailed ErrorKind = "optimization_failed"
	KindExpired            ErrorKind = "expired"
	KindConflict           ErrorKind = "conflict"
)

// Error carries a kind, the resource it concerns, and a caller-safe message.
type Error struct {
	Kind     ErrorKind
	Resource string
	Message  string
	cause    error
}

func (e *Error) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Resource, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NotFoundError reports a missing model, object, parameter or project.
func NotFoundError(resource, message string) *Error {
	return &Error{Kind: KindNotFound, Resource: resource, Message: message}
}

// ForbiddenError reports a row excluded by the authorization filter.
func ForbiddenError(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// ValidationError reports malformed input.
func ValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// PersistenceError wraps a repository write failure.
func PersistenceError(message string, cause error) *Error {
	return &Error{Kind: KindPersistence, Message: message, cause: cause}
}

// OptimizationFailedError wraps a completion collaborator failure. No branch
// is created when this is returned.
func OptimizationFailedError(message string, cause error) *Error {
	return &Error{Kind: KindOptimizationFailed, Message: message, cause: cause}
}

// ExpiredError reports a share grant past its expiry.
func ExpiredError(message string) *Error {
	return &Error{Kind: KindExpired, Message: message}
}

// ConflictError reports an optimistic-concurrency revision mismatch.
func ConflictError(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// KindOf extracts the discriminated kind from an error chain. Errors outside
// the taxonomy report KindPersistence so callers never see raw internals.
func KindOf(err error) ErrorKind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return KindPersistence
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind == kind
	}
	return false
}
