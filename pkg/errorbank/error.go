package errorbank

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
)

// Kind enumerates supported application error categories.
type Kind string

const (
	KindBadRequest          Kind = "bad_request"
	KindUnauthorized        Kind = "unauthorized"
	KindForbidden           Kind = "forbidden"
	KindConflict            Kind = "conflict"
	KindNotFound            Kind = "not_found"
	KindUnprocessableEntity Kind = "unprocessable_entity"
	KindUnavailable         Kind = "unavailable"
	KindInternal            Kind = "internal"
)

// AppError captures rich error context shared across transports.
// Code is a stable machine-readable reason that UIs switch on; Kind only
// drives the status code.
type AppError struct {
	kind    Kind
	code    string
	message string
	details map[string]any
	cause   error
}

// Option mutates an AppError during construction.
type Option func(*AppError)

// WithCause attaches an underlying error.
func WithCause(err error) Option {
	return func(appErr *AppError) {
		appErr.cause = err
	}
}

// WithCode sets the stable reason code.
func WithCode(code string) Option {
	return func(appErr *AppError) {
		appErr.code = code
	}
}

// WithDetail adds a single named detail value.
func WithDetail(key string, value any) Option {
	return func(appErr *AppError) {
		if appErr.details == nil {
			appErr.details = make(map[string]any)
		}
		appErr.details[key] = value
	}
}

// New constructs a new AppError with the supplied kind and message.
func New(kind Kind, message string, opts ...Option) *AppError {
	if message == "" {
		message = string(kind)
	}
	appErr := &AppError{kind: kind, message: message}
	for _, opt := range opts {
		opt(appErr)
	}
	if appErr.code == "" {
		appErr.code = string(kind)
	}
	return appErr
}

// Error satisfies the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Kind returns the error category.
func (e *AppError) Kind() Kind {
	if e == nil {
		return KindInternal
	}
	return e.kind
}

// Code returns the stable reason code.
func (e *AppError) Code() string {
	if e == nil {
		return string(KindInternal)
	}
	return e.code
}

// Message returns the human-readable message.
func (e *AppError) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Details returns optional metadata about the error.
func (e *AppError) Details() map[string]any {
	if e == nil {
		return nil
	}
	return e.details
}

type statusPair struct {
	http int
	grpc codes.Code
}

var statuses = map[Kind]statusPair{
	KindBadRequest:          {http.StatusBadRequest, codes.InvalidArgument},
	KindUnauthorized:        {http.StatusUnauthorized, codes.Unauthenticated},
	KindForbidden:           {http.StatusForbidden, codes.PermissionDenied},
	KindConflict:            {http.StatusConflict, codes.AlreadyExists},
	KindNotFound:            {http.StatusNotFound, codes.NotFound},
	KindUnprocessableEntity: {http.StatusUnprocessableEntity, codes.FailedPrecondition},
	KindUnavailable:         {http.StatusServiceUnavailable, codes.Unavailable},
}

var internalStatus = statusPair{http.StatusInternalServerError, codes.Internal}

func (e *AppError) status() statusPair {
	if e == nil {
		return internalStatus
	}
	if st, ok := statuses[e.kind]; ok {
		return st
	}
	return internalStatus
}

// StatusCode resolves the HTTP status for the error kind.
func (e *AppError) StatusCode() int { return e.status().http }

// GRPCCode maps the error kind onto a gRPC status code.
func (e *AppError) GRPCCode() codes.Code { return e.status().grpc }

// BadRequest constructs a 400 error.
func BadRequest(message string, opts ...Option) *AppError {
	return New(KindBadRequest, message, opts...)
}

// Unauthorized constructs a 401 error.
func Unauthorized(message string, opts ...Option) *AppError {
	return New(KindUnauthorized, message, opts...)
}

// Forbidden constructs a 403 error.
func Forbidden(message string, opts ...Option) *AppError {
	return New(KindForbidden, message, opts...)
}

// Conflict constructs a 409 error.
func Conflict(message string, opts ...Option) *AppError {
	return New(KindConflict, message, opts...)
}

// NotFound constructs a 404 error.
func NotFound(message string, opts ...Option) *AppError {
	return New(KindNotFound, message, opts...)
}

// Unprocessable constructs a 422 error.
func Unprocessable(message string, opts ...Option) *AppError {
	return New(KindUnprocessableEntity, message, opts...)
}

// Unavailable constructs a 503 error.
func Unavailable(message string, opts ...Option) *AppError {
	return New(KindUnavailable, message, opts...)
}

// Internal constructs a generic 500 error.
func Internal(message string, opts ...Option) *AppError {
	return New(KindInternal, message, opts...)
}

// From returns an AppError for any error input, wrapping unexpected values.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("internal error", WithCause(err))
}
