// Package apperr holds the error kinds shared by every layer of the service.
// Components wrap a kind with a concrete reason; handlers map kinds to HTTP
// status codes with errors.Is.
package apperr

import (
	"errors"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrAuthentication  = errors.New("authentication failed")
	ErrUnauthenticated = errors.New("not authenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrTransport       = errors.New("identity provider unreachable")
	ErrProtocol        = errors.New("identity provider protocol violation")
	ErrConflict        = errors.New("conflict")
	ErrNotFound        = errors.New("not found")
	ErrPersistence     = errors.New("persistence error")
	ErrProcessing      = errors.New("processing failed")
)

// Error is a kind plus a human readable reason and an optional cause.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Is reports the kind so callers can use errors.Is(err, apperr.ErrConflict).
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind error, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind error, msg string, cause error) error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func Validation(msg string) error   { return New(ErrValidation, msg) }
func Conflict(msg string) error     { return New(ErrConflict, msg) }
func NotFound(msg string) error     { return New(ErrNotFound, msg) }
func Forbidden(msg string) error    { return New(ErrForbidden, msg) }
func Processing(msg string) error   { return New(ErrProcessing, msg) }
func Persistence(cause error) error { return Wrap(ErrPersistence, "storage unavailable", cause) }

// Message returns the reason attached to err without its cause chain.
func Message(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// KindOf returns the kind of the outermost *Error in the chain, falling back
// to the first known kind err matches, or nil.
func KindOf(err error) error {
	var ae *Error
	if errors.As(err, &ae) && ae.Kind != nil {
		return ae.Kind
	}
	for _, k := range []error{
		ErrValidation, ErrAuthentication, ErrUnauthenticated, ErrForbidden,
		ErrTransport, ErrProtocol, ErrConflict, ErrNotFound, ErrPersistence, ErrProcessing,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
