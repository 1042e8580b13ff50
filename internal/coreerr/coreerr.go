// Package coreerr defines the error-kind taxonomy shared by every component
// of the conversation core. Components never return bare errors across their
// public boundary; they wrap with a Kind so handlers and callers can branch
// on behavior instead of matching strings.
package coreerr

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind int

const (
	// KindUnknown is never returned directly; it's the zero value guard
	// for errors.As on a nil *Error.
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidTransition
	KindUnauthorized
	KindForbidden
	KindValidation
	KindRateLimited
	KindTransient
	KindPermanent
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation"
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the wrapped error type every package in this module returns for
// expected failure modes.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an *Error of the given kind around cause. The returned error
// always carries kind; a *Error cause keeps its own Kind further down the
// chain, which is never discarded.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// Is reports whether the first *Error in err's chain has the given Kind.
// Kinds of *Error values wrapped further down are not consulted.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to KindPermanent for errors
// that never passed through this package (a caller forgot to wrap them).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return KindUnknown
	}
	return KindPermanent
}

func NotFound(msg string) *Error           { return New(KindNotFound, msg) }
func InvalidTransition(msg string) *Error  { return New(KindInvalidTransition, msg) }
func Unauthorized(msg string) *Error       { return New(KindUnauthorized, msg) }
func Forbidden(msg string) *Error          { return New(KindForbidden, msg) }
func Validation(msg string) *Error         { return New(KindValidation, msg) }
func RateLimited(msg string) *Error        { return New(KindRateLimited, msg) }
func Cancelled(msg string) *Error          { return New(KindCancelled, msg) }
func Transient(msg string, cause error) *Error { return Wrap(KindTransient, msg, cause) }
func Permanent(msg string, cause error) *Error { return Wrap(KindPermanent, msg, cause) }
