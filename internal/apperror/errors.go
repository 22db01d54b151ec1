package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure. Each kind carries an HTTP status and a
// category string that clients can switch on.
type Kind string

const (
	KindUnauthorized           Kind = "Unauthorized"
	KindUnreadableDocument     Kind = "UnreadableDocument"
	KindModelInvocationFailure Kind = "ModelInvocationFailure"
	KindMalformedExtraction    Kind = "MalformedExtraction"
	KindNotFound               Kind = "NotFound"
	KindConflict               Kind = "Conflict"
	KindValidationFailure      Kind = "ValidationFailure"
	KindUnavailable            Kind = "Unavailable"
	KindInternal               Kind = "Internal"
)

// HTTPStatus returns the status code a handler responds with for this kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindUnreadableDocument, KindMalformedExtraction:
		return http.StatusUnprocessableEntity
	case KindModelInvocationFailure:
		return http.StatusBadGateway
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidationFailure:
		return http.StatusBadRequest
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is the application error type. Message is safe to show to end users;
// Detail holds diagnostics such as a raw model response excerpt.
type Error struct {
	Kind    Kind
	Message string
	Detail  string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by kind, so errors.Is(err, apperror.ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// Sentinels for errors.Is checks.
var (
	ErrUnauthorized           = &Error{Kind: KindUnauthorized}
	ErrUnreadableDocument     = &Error{Kind: KindUnreadableDocument}
	ErrModelInvocationFailure = &Error{Kind: KindModelInvocationFailure}
	ErrMalformedExtraction    = &Error{Kind: KindMalformedExtraction}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrConflict               = &Error{Kind: KindConflict}
	ErrValidationFailure      = &Error{Kind: KindValidationFailure}
	ErrUnavailable            = &Error{Kind: KindUnavailable}
)

func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithDetail returns a copy of e carrying diagnostic detail.
func (e *Error) WithDetail(detail string) *Error {
	cp := *e
	cp.Detail = detail
	return &cp
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidationFailure, Message: message}
}

// From extracts the *Error in err's chain. Errors outside the taxonomy are
// reported as Internal with a generic message.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{Kind: KindInternal, Message: "internal error", Cause: err}
}

// KindOf returns the taxonomy kind of err, or KindInternal.
func KindOf(err error) Kind {
	return From(err).Kind
}
