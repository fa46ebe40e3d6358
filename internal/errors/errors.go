package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrTypeTransport represents failures opening or consuming an audio stream
	ErrTypeTransport ErrorType = "transport"
	// ErrTypeEncode represents a non-zero exit or signal from the encoder process
	ErrTypeEncode ErrorType = "encode"
	// ErrTypePlacement represents copy/delete failures after a successful encode
	ErrTypePlacement ErrorType = "placement"
	// ErrTypeUnavailable represents items that cannot be fetched at all (private, removed)
	ErrTypeUnavailable ErrorType = "unavailable"
	// ErrTypeNetwork represents network-related errors
	ErrTypeNetwork ErrorType = "network"
	// ErrTypeRateLimit represents rate limiting errors
	ErrTypeRateLimit ErrorType = "rate_limit"
	// ErrTypeNotFound represents resource not found errors
	ErrTypeNotFound ErrorType = "not_found"
	// ErrTypeFileSystem represents file system errors
	ErrTypeFileSystem ErrorType = "filesystem"
	// ErrTypeValidation represents validation errors
	ErrTypeValidation ErrorType = "validation"
	// ErrTypePanic represents a recovered panic
	ErrTypePanic ErrorType = "panic"
	// ErrTypeUnknown represents unknown errors
	ErrTypeUnknown ErrorType = "unknown"
)

// AppError represents an application error with context
type AppError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Retryable  bool
	Cause      error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewTransportError creates a new stream transport error
func NewTransportError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeTransport,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Retryable:  false, // no retry within a run
		Cause:      cause,
	}
}

// NewUnavailableError creates an error for items that can never be fetched
func NewUnavailableError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeUnavailable,
		Message:    message,
		StatusCode: http.StatusGone,
		Retryable:  false,
		Cause:      cause,
	}
}

// NewEncodeError creates a new encoder process error
func NewEncodeError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeEncode,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Retryable:  false,
		Cause:      cause,
	}
}

// NewPlacementError creates a new placement error
func NewPlacementError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypePlacement,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Retryable:  false,
		Cause:      cause,
	}
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeNetwork,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewRateLimitError creates a new rate limit error
func NewRateLimitError(message string, retryAfter int) *AppError {
	return &AppError{
		Type:       ErrTypeRateLimit,
		Message:    fmt.Sprintf("%s (retry after %d seconds)", message, retryAfter),
		StatusCode: http.StatusTooManyRequests,
		Retryable:  true,
		Cause:      nil,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:       ErrTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
		Retryable:  false,
		Cause:      nil,
	}
}

// NewFileSystemError creates a new file system error
func NewFileSystemError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeFileSystem,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:       ErrTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Retryable:  false,
		Cause:      nil,
	}
}

// NewPanicError wraps a recovered panic value
func NewPanicError(operation string, value interface{}) *AppError {
	return &AppError{
		Type:       ErrTypePanic,
		Message:    fmt.Sprintf("panic in %s: %v", operation, value),
		StatusCode: http.StatusInternalServerError,
		Retryable:  false,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// GetErrorType returns the error type from an error
func GetErrorType(err error) ErrorType {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrTypeUnknown
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	return GetErrorType(err) == ErrTypeRateLimit
}

// IsNetworkError checks if an error is a network error
func IsNetworkError(err error) bool {
	return GetErrorType(err) == ErrTypeNetwork
}

// IsTransportError reports whether err came from the stream layer.
// Unavailable items count as transport failures for accounting.
func IsTransportError(err error) bool {
	t := GetErrorType(err)
	return t == ErrTypeTransport || t == ErrTypeUnavailable
}

// IsEncodeError checks if an error is an encoder error
func IsEncodeError(err error) bool {
	return GetErrorType(err) == ErrTypeEncode
}

// IsPlacementError checks if an error is a placement error
func IsPlacementError(err error) bool {
	return GetErrorType(err) == ErrTypePlacement
}
