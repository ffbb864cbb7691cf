package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Collaboration errors
	ErrorTypeTransportUnavailable ErrorType = "TRANSPORT_UNAVAILABLE"
	ErrorTypePersistenceFailure   ErrorType = "PERSISTENCE_FAILURE"
	ErrorTypeHistoryRejected      ErrorType = "HISTORY_REJECTED"
	ErrorTypeAccessDenied         ErrorType = "ACCESS_DENIED"
	ErrorTypeMalformedPayload     ErrorType = "MALFORMED_PAYLOAD"

	// Domain errors
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
	ErrorTypeConflict   ErrorType = "CONFLICT"

	// Application errors
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
	ErrorTypeInternal     ErrorType = "INTERNAL"
	ErrorTypeTimeout      ErrorType = "TIMEOUT"
)

// AppError represents an application-specific error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	HTTPStatus int                    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithDetails adds error details
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// Constructor functions for common error types

// NewTransportUnavailableError signals that no active channel or room exists
// for an operation that requires one
func NewTransportUnavailableError(operation string) *AppError {
	return &AppError{
		Type:       ErrorTypeTransportUnavailable,
		Message:    fmt.Sprintf("no active channel for operation '%s'", operation),
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// NewPersistenceFailureError signals a rejected or failed save
func NewPersistenceFailureError(documentID string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypePersistenceFailure,
		Message:    fmt.Sprintf("failed to persist document '%s'", documentID),
		Cause:      err,
		HTTPStatus: http.StatusBadGateway,
	}
}

// NewHistoryRejectedError signals that the authority declined an undo or redo
// request. Callers treat this as benign.
func NewHistoryRejectedError(operation string) *AppError {
	return &AppError{
		Type:       ErrorTypeHistoryRejected,
		Message:    fmt.Sprintf("authority declined %s request", operation),
		HTTPStatus: http.StatusConflict,
	}
}

// NewAccessDeniedError signals a terminal revocation, removal, or deletion
func NewAccessDeniedError(reason, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeAccessDenied,
		Message:    message,
		Code:       reason,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewMalformedPayloadError signals an inbound channel payload that failed
// boundary validation
func NewMalformedPayloadError(detail string) *AppError {
	return &AppError{
		Type:       ErrorTypeMalformedPayload,
		Message:    fmt.Sprintf("malformed payload: %s", detail),
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

// NewConflictError creates a conflict error
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbiddenError creates a forbidden error
func NewForbiddenError(message string) *AppError {
	if message == "" {
		message = "forbidden"
	}
	return &AppError{
		Type:       ErrorTypeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(operation string) *AppError {
	return &AppError{
		Type:       ErrorTypeTimeout,
		Message:    fmt.Sprintf("operation '%s' timed out", operation),
		HTTPStatus: http.StatusRequestTimeout,
	}
}

// Helper functions

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from an error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == errType
}

// IsTransportUnavailable checks if an error is a transport-unavailable error
func IsTransportUnavailable(err error) bool {
	return IsType(err, ErrorTypeTransportUnavailable)
}

// IsPersistenceFailure checks if an error is a persistence failure
func IsPersistenceFailure(err error) bool {
	return IsType(err, ErrorTypePersistenceFailure)
}

// IsHistoryRejected checks if an error is a declined undo/redo
func IsHistoryRejected(err error) bool {
	return IsType(err, ErrorTypeHistoryRejected)
}

// IsAccessDenied checks if an error is a terminal access denial
func IsAccessDenied(err error) bool {
	return IsType(err, ErrorTypeAccessDenied)
}

// IsMalformedPayload checks if an error is a boundary validation failure
func IsMalformedPayload(err error) bool {
	return IsType(err, ErrorTypeMalformedPayload)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	return IsType(err, ErrorTypeConflict)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	// If it's already an AppError, add context to message
	if appErr := GetAppError(err); appErr != nil {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}

	// Otherwise create a new internal error
	return NewInternalError(message).WithCause(err)
}

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}
