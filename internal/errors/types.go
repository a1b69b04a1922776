package errors

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
)

// Kind classifies errors across the core so handlers and callers can act on
// the class without inspecting messages.
type Kind int

const (
	// KindInvalidArgument - bad session id, unknown disposition action, missing required field
	KindInvalidArgument Kind = iota
	// KindNotFound - session, effort, or lock missing where required
	KindNotFound
	// KindAlreadyLocked - second acquire while a lock is held
	KindAlreadyLocked
	// KindSessionIDMismatch - non-override clear with the wrong holder id
	KindSessionIDMismatch
	// KindPreconditionFailed - operation on state that does not admit it
	KindPreconditionFailed
	// KindUpstream - model driver error (HTTP, timeout, parse)
	KindUpstream
	// KindIO - filesystem error other than not-found
	KindIO
)

// Error is the kinded error type used throughout the core.
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

// New creates a kinded error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a kinded error wrapping a cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func InvalidArgumentf(format string, args ...any) *Error {
	return New(KindInvalidArgument, format, args...)
}

func NotFoundf(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func AlreadyLockedf(format string, args ...any) *Error {
	return New(KindAlreadyLocked, format, args...)
}

func SessionIDMismatchf(format string, args ...any) *Error {
	return New(KindSessionIDMismatch, format, args...)
}

func PreconditionFailedf(format string, args ...any) *Error {
	return New(KindPreconditionFailed, format, args...)
}

func Upstreamf(err error, format string, args ...any) *Error {
	return Wrap(KindUpstream, err, format, args...)
}

// IOf wraps a filesystem error, downgrading not-exist to KindNotFound.
func IOf(err error, format string, args ...any) *Error {
	kind := KindIO
	if os.IsNotExist(err) || errors.Is(err, os.ErrNotExist) {
		kind = KindNotFound
	}
	return Wrap(kind, err, format, args...)
}

// KindOf extracts the kind of err, defaulting to KindIO for untyped errors.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return KindIO, false
}

func is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func IsInvalidArgument(err error) bool    { return is(err, KindInvalidArgument) }
func IsNotFound(err error) bool           { return is(err, KindNotFound) }
func IsAlreadyLocked(err error) bool      { return is(err, KindAlreadyLocked) }
func IsSessionIDMismatch(err error) bool  { return is(err, KindSessionIDMismatch) }
func IsPreconditionFailed(err error) bool { return is(err, KindPreconditionFailed) }
func IsUpstream(err error) bool           { return is(err, KindUpstream) }
func IsIO(err error) bool                 { return is(err, KindIO) }

// IsTransient reports whether an error is worth retrying. Upstream errors and
// raw network failures are transient; every other kinded error is a terminal
// outcome of the call.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindUpstream
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}

// HTTPStatus maps an error kind to the HTTP status the API surface reports.
func HTTPStatus(err error) int {
	kind, ok := KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyLocked, KindSessionIDMismatch:
		return http.StatusConflict
	case KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
