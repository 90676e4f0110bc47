// Package apperr holds the error kinds every chat operation can fail with.
package apperr

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindNotFound     Kind = "not_found"
	KindValidation   Kind = "validation_error"
	KindRateLimited  Kind = "rate_limited"
	KindConflict     Kind = "conflict"
	KindInternal     Kind = "internal"
)

// Error carries a kind, a message safe to show to clients, and an optional cause
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Unauthorized(msg string) error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Validation(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

func RateLimited(msg string) error {
	return &Error{Kind: KindRateLimited, Message: msg}
}

func Conflict(msg string) error {
	return &Error{Kind: KindConflict, Message: msg}
}

// Internal hides err behind a generic message
func Internal(err error) error {
	return &Error{Kind: KindInternal, Message: "Server error", Err: err}
}

// KindOf returns the kind of err. Errors that are not *Error are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is an *Error of kind k
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// MessageOf returns the client facing message of err
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Server error"
}

// HTTPStatus maps a kind to its response status
func HTTPStatus(k Kind) int {
	switch k {
	case KindUnauthorized:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
