// Package autherr defines the error taxonomy shared by the session service and its transports.
package autherr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for transport mapping.
type Kind uint8

const (
	// KindInternal is an unexpected store or provider failure.
	KindInternal Kind = iota
	// KindValidation is missing or malformed input.
	KindValidation
	// KindConflict is a duplicate unique key.
	KindConflict
	// KindUnauthorized is bad credentials or a missing, invalid, expired or replayed token.
	KindUnauthorized
	// KindNotFound is a missing user or entity.
	KindNotFound
	// KindConfiguration is a missing required secret or setting.
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindConfiguration:
		return "configuration"
	default:
		return "internal"
	}
}

// HTTPStatus returns the HTTP status code for k.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error. Msg is safe to return to clients; Err is the optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an *Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap returns an *Error of the given kind wrapping cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Validation returns a KindValidation error.
func Validation(msg string) *Error { return New(KindValidation, msg) }

// Conflict returns a KindConflict error.
func Conflict(msg string) *Error { return New(KindConflict, msg) }

// Unauthorized returns a KindUnauthorized error.
func Unauthorized(msg string) *Error { return New(KindUnauthorized, msg) }

// NotFound returns a KindNotFound error.
func NotFound(msg string) *Error { return New(KindNotFound, msg) }

// Configuration returns a KindConfiguration error.
func Configuration(msg string) *Error { return New(KindConfiguration, msg) }

// Internal wraps cause as a KindInternal error.
func Internal(msg string, cause error) *Error { return Wrap(KindInternal, msg, cause) }

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage returns the client-facing message for err. Internal errors get a generic message.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Msg
	}
	return "internal server error"
}
