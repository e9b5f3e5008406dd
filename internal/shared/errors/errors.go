package errors

import (
	"errors"
	"fmt"
)

type ErrorCode string
type ErrorType string

const (
	ErrorTypeClient  ErrorType = "client_error"
	ErrorTypeServer  ErrorType = "server_error"
	ErrorTypeNetwork ErrorType = "network_error"

	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeBadRequest         ErrorCode = "BAD_REQUEST"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeExpiredToken       ErrorCode = "EXPIRED_TOKEN"
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeTooManyRequests    ErrorCode = "TOO_MANY_REQUESTS"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	// Attendance automation
	ErrCodeActionInProgress ErrorCode = "ACTION_IN_PROGRESS"
	ErrCodeClockInRequired  ErrorCode = "CLOCK_IN_REQUIRED"
	ErrCodeMissingPortal    ErrorCode = "PORTAL_CREDENTIALS_MISSING"
	ErrCodeVault            ErrorCode = "VAULT_ERROR"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	Details    any
	Err        error
	ErrorType  ErrorType
	StatusCode int
	Retryable  bool
	Version    string
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches on Code so module sentinels compare equal after Wrap.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) GetErrorType() ErrorType {
	return e.ErrorType
}

func determineErrorType(code ErrorCode) ErrorType {
	switch code {
	case ErrCodeBadRequest, ErrCodeUnauthorized, ErrCodeForbidden,
		ErrCodeNotFound, ErrCodeInvalidToken, ErrCodeExpiredToken,
		ErrCodeValidation, ErrCodeInvalidCredentials, ErrCodeTooManyRequests,
		ErrCodeConflict, ErrCodeActionInProgress, ErrCodeClockInRequired,
		ErrCodeMissingPortal:
		return ErrorTypeClient
	case ErrCodeServiceUnavailable, ErrCodeTimeout:
		return ErrorTypeNetwork
	default:
		return ErrorTypeServer
	}
}

func isRetryable(code ErrorCode) bool {
	switch code {
	case ErrCodeServiceUnavailable, ErrCodeTimeout, ErrCodeActionInProgress:
		return true
	default:
		return false
	}
}

func build(code ErrorCode, message string, err error, details any) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Details:   details,
		Err:       err,
		ErrorType: determineErrorType(code),
		Retryable: isRetryable(code),
		Version:   "v1",
	}
}

func New(code ErrorCode, message string) *AppError {
	return build(code, message, nil, nil)
}

// Wrap keeps err as the cause; its text never reaches the response body.
func Wrap(err error, code ErrorCode, message string) *AppError {
	return build(code, message, err, nil)
}

func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return build(code, fmt.Sprintf(format, args...), err, nil)
}

// WithDetails attaches a client-facing payload, typically per-field validation messages.
func WithDetails(code ErrorCode, message string, details any) *AppError {
	return build(code, message, nil, details)
}

func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries an AppError with the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

var (
	ErrInternal           = New(ErrCodeInternal, "Internal server error")
	ErrNotFound           = New(ErrCodeNotFound, "Resource not found")
	ErrBadRequest         = New(ErrCodeBadRequest, "Bad request")
	ErrUnauthorized       = New(ErrCodeUnauthorized, "Unauthorized")
	ErrForbidden          = New(ErrCodeForbidden, "Forbidden")
	ErrConflict           = New(ErrCodeConflict, "Resource already exists")
	ErrInvalidCredentials = New(ErrCodeInvalidCredentials, "Invalid credentials")
	ErrInvalidToken       = New(ErrCodeInvalidToken, "Invalid token")
	ErrExpiredToken       = New(ErrCodeExpiredToken, "Token expired")
	ErrTimeout            = New(ErrCodeTimeout, "Request timeout")
	ErrServiceUnavailable = New(ErrCodeServiceUnavailable, "Service unavailable")
)
