package common

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorKind classifies a ServiceError by where it came from.
type ErrorKind string

const (
	// ErrorKindValidation covers malformed caller input.
	ErrorKindValidation ErrorKind = "validation"
	// ErrorKindAuth covers missing or rejected credentials.
	ErrorKindAuth ErrorKind = "auth"
	// ErrorKindUpstream covers failures fetching caller-supplied URLs.
	ErrorKindUpstream ErrorKind = "upstream"
	// ErrorKindBackend covers the reasoning/transcription backend and its output.
	ErrorKindBackend ErrorKind = "backend"
	// ErrorKindStorage covers object storage and the local database.
	ErrorKindStorage ErrorKind = "storage"
	// ErrorKindConfiguration covers missing service configuration.
	ErrorKindConfiguration ErrorKind = "configuration"
	// ErrorKindInternal is everything else.
	ErrorKindInternal ErrorKind = "internal"
)

// Envelope codes.
const (
	CodeSuccess          = "SUCCESS"
	CodeWrongInput       = "WRONG_INPUT"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeHTTPError        = "HTTP_ERROR"
	CodeRequestError     = "REQUEST_ERROR"
	CodeRateLimited      = "RATE_LIMITED"
	CodeBackendError     = "BACKEND_ERROR"
	CodeValidationError  = "VALIDATION_ERROR"
	CodeStorageError     = "STORAGE_ERROR"
	CodeNotConfigured    = "NOT_CONFIGURED"
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeInternal         = "INTERNAL_SERVER_ERROR"
)

// ServiceError is the failure half of every service result. Status is the
// value reported in the envelope; HTTPStatus, when set, overrides the status
// line of the HTTP response.
type ServiceError struct {
	Kind       ErrorKind              `json:"kind"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	Status     int                    `json:"status"`
	HTTPStatus int                    `json:"-"`
	Timestamp  time.Time              `json:"timestamp"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Cause      error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s:%s] %s: %s", e.Kind, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}

func (e *ServiceError) WithContext(key string, value interface{}) *ServiceError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func (e *ServiceError) WithCause(cause error) *ServiceError {
	e.Cause = cause
	return e
}

func (e *ServiceError) WithDetails(details string) *ServiceError {
	e.Details = details
	return e
}

// WithHTTPStatus sets the response status line independently of Status.
func (e *ServiceError) WithHTTPStatus(status int) *ServiceError {
	e.HTTPStatus = status
	return e
}

// ResponseStatus is the status the HTTP response is written with.
func (e *ServiceError) ResponseStatus() int {
	if e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	return e.Status
}

func NewError(kind ErrorKind, code string, status int, message string) *ServiceError {
	return &ServiceError{
		Kind:      kind,
		Code:      code,
		Message:   message,
		Status:    status,
		Timestamp: time.Now(),
	}
}

func NewWrongInputError(message string) *ServiceError {
	return NewError(ErrorKindValidation, CodeWrongInput, http.StatusBadRequest, message)
}

func NewUnauthorizedError(message string) *ServiceError {
	return NewError(ErrorKindAuth, CodeUnauthorized, http.StatusUnauthorized, message)
}

// NewHTTPError reports a non-2xx answer from an upstream URL. The envelope
// carries the upstream status.
func NewHTTPError(upstreamStatus int, body string) *ServiceError {
	return NewError(ErrorKindUpstream, CodeHTTPError, upstreamStatus,
		fmt.Sprintf("HTTP error: %d - %s", upstreamStatus, body))
}

func NewRequestError(err error) *ServiceError {
	return NewError(ErrorKindUpstream, CodeRequestError, http.StatusBadRequest,
		fmt.Sprintf("Request error: %v", err)).WithCause(err)
}

func NewRateLimitedError(message string) *ServiceError {
	return NewError(ErrorKindBackend, CodeRateLimited, http.StatusTooManyRequests, message)
}

func NewBackendError(message string) *ServiceError {
	return NewError(ErrorKindBackend, CodeBackendError, http.StatusInternalServerError, message)
}

// NewValidationError reports a backend response that failed the schema.
func NewValidationError(message string) *ServiceError {
	return NewError(ErrorKindBackend, CodeValidationError, http.StatusInternalServerError, message)
}

func NewStorageError(message string) *ServiceError {
	return NewError(ErrorKindStorage, CodeStorageError, http.StatusInternalServerError, message)
}

func NewNotConfiguredError(message string) *ServiceError {
	return NewError(ErrorKindConfiguration, CodeNotConfigured, http.StatusServiceUnavailable, message)
}

func NewInternalError(message string) *ServiceError {
	return NewError(ErrorKindInternal, CodeInternal, http.StatusInternalServerError, message)
}

// WrapError wraps an existing error with ServiceError context.
func WrapError(err error, kind ErrorKind, code string, status int, message string) *ServiceError {
	return NewError(kind, code, status, message).WithCause(err)
}

// AsServiceError returns the ServiceError in err's chain, or collapses err
// into INTERNAL_SERVER_ERROR carrying its message.
func AsServiceError(err error) *ServiceError {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return NewInternalError(err.Error()).WithCause(err)
}
