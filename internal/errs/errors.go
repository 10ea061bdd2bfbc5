// Package errs provides the unified error type used across all of pgtree.
//
// Every subsystem (database session, catalog, selector, sinks, …) wraps its
// native errors into *errs.Error before returning them to callers. The CLI
// and the HTTP server use the Is* predicates to pick an exit code or status
// without importing driver-specific packages.
//
// Usage:
//
//	// In the postgres driver, wrap native errors with the query's purpose:
//	return errs.Wrap(errs.ErrKindTimeout, `list relations of schema "app"`, pgErr)
//
//	// At the boundary, check the error kind:
//	if errs.IsInvalidInput(err) {
//	    os.Exit(2)
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // no rows, no object, no bucket
	ErrKindConnectionFailed         // cannot establish or keep the session
	ErrKindTimeout                  // statement timeout, context deadline / cancellation
	ErrKindQueryFailed              // catalog query or storage operation error
	ErrKindInvalidInput             // bad selector pattern or configuration
	ErrKindPermissionDenied         // missing privilege / access denied
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all pgtree subsystems.
//
// For catalog queries Message is the conceptual purpose of the query
// (e.g. `columns of "public"."users"`), never the SQL text.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Selector reports an unusable schema selector. It is raised before any
// query executes.
func Selector(pattern string, cause error) *Error {
	return Wrap(ErrKindInvalidInput, fmt.Sprintf("invalid schema pattern %q", pattern), cause)
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a statement timeout or a
// context deadline / cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a backend operation failure.
func IsQueryFailed(err error) bool {
	return KindOf(err) == ErrKindQueryFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == ErrKindPermissionDenied
}

// IsCatalogQuery reports whether err came from a failed catalog query,
// whatever the reason (syntax, privilege, timeout).
func IsCatalogQuery(err error) bool {
	switch KindOf(err) {
	case ErrKindQueryFailed, ErrKindTimeout, ErrKindPermissionDenied:
		return true
	}
	return false
}

// KindOf extracts the ErrKind from the outermost *Error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
