package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name: "error without cause",
			err: &AppError{
				Type:    ErrTypeEncode,
				Message: "ffmpeg exited with status 1",
			},
			expected: "encode: ffmpeg exited with status 1",
		},
		{
			name: "error with cause",
			err: &AppError{
				Type:    ErrTypeTransport,
				Message: "stream aborted",
				Cause:   fmt.Errorf("unexpected EOF"),
			},
			expected: "transport: stream aborted (caused by: unexpected EOF)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := NewPlacementError("copy failed", cause)

	if unwrapped := err.Unwrap(); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}
	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestConstructors(t *testing.T) {
	cause := fmt.Errorf("boom")
	tests := []struct {
		name       string
		err        *AppError
		wantType   ErrorType
		wantStatus int
		retryable  bool
	}{
		{"transport", NewTransportError("stream", cause), ErrTypeTransport, http.StatusBadGateway, false},
		{"unavailable", NewUnavailableError("private", cause), ErrTypeUnavailable, http.StatusGone, false},
		{"encode", NewEncodeError("ffmpeg", cause), ErrTypeEncode, http.StatusInternalServerError, false},
		{"placement", NewPlacementError("copy", cause), ErrTypePlacement, http.StatusInternalServerError, false},
		{"network", NewNetworkError("dial", cause), ErrTypeNetwork, http.StatusServiceUnavailable, true},
		{"rate limit", NewRateLimitError("quota", 10), ErrTypeRateLimit, http.StatusTooManyRequests, true},
		{"not found", NewNotFoundError("playlist"), ErrTypeNotFound, http.StatusNotFound, false},
		{"filesystem", NewFileSystemError("mkdir", cause), ErrTypeFileSystem, http.StatusInternalServerError, true},
		{"validation", NewValidationError("bad"), ErrTypeValidation, http.StatusBadRequest, false},
		{"panic", NewPanicError("job", "nil map"), ErrTypePanic, http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", tt.err.Type, tt.wantType)
			}
			if tt.err.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %v, want %v", tt.err.StatusCode, tt.wantStatus)
			}
			if tt.err.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", tt.err.Retryable, tt.retryable)
			}
		})
	}
}

func TestNewRateLimitError_Message(t *testing.T) {
	err := NewRateLimitError("quota exceeded", 60)
	want := "quota exceeded (retry after 60 seconds)"
	if err.Message != want {
		t.Errorf("Message = %q, want %q", err.Message, want)
	}
}

func TestNewPanicError_Message(t *testing.T) {
	err := NewPanicError("download job", "index out of range")
	want := "panic in download job: index out of range"
	if err.Message != want {
		t.Errorf("Message = %q, want %q", err.Message, want)
	}
}

func TestGetErrorType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"app error", NewEncodeError("x", nil), ErrTypeEncode},
		{"wrapped app error", fmt.Errorf("job 1: %w", NewPlacementError("x", nil)), ErrTypePlacement},
		{"plain error", fmt.Errorf("plain"), ErrTypeUnknown},
		{"nil", nil, ErrTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetErrorType(tt.err); got != tt.want {
				t.Errorf("GetErrorType() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network", NewNetworkError("x", nil), true},
		{"rate limit", NewRateLimitError("x", 1), true},
		{"wrapped network", fmt.Errorf("page 2: %w", NewNetworkError("x", nil)), true},
		{"transport", NewTransportError("x", nil), false},
		{"validation", NewValidationError("x"), false},
		{"plain", fmt.Errorf("plain"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPredicates(t *testing.T) {
	if !IsTransportError(NewTransportError("x", nil)) {
		t.Error("transport error should be a transport error")
	}
	if !IsTransportError(NewUnavailableError("private video", nil)) {
		t.Error("unavailable error should count as a transport error")
	}
	if IsTransportError(NewEncodeError("x", nil)) {
		t.Error("encode error is not a transport error")
	}
	if !IsEncodeError(fmt.Errorf("wrap: %w", NewEncodeError("x", nil))) {
		t.Error("wrapped encode error should match")
	}
	if !IsPlacementError(NewPlacementError("x", nil)) {
		t.Error("placement error should match")
	}
	if !IsRateLimitError(NewRateLimitError("x", 1)) {
		t.Error("rate limit error should match")
	}
	if !IsNetworkError(NewNetworkError("x", nil)) {
		t.Error("network error should match")
	}
	if IsNetworkError(fmt.Errorf("plain")) {
		t.Error("plain error is not a network error")
	}
}
