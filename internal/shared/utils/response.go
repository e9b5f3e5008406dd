package utils

import (
	"net/http"

	"github.com/akshaykankal/facto/internal/infrastructure/observability"
	"github.com/akshaykankal/facto/internal/shared/errors"
	"github.com/gin-gonic/gin"
)

const apiVersion = "v1"

type Response struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
	Version string         `json:"version"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	Type    string `json:"type"`
}

func Success(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
		Version: apiVersion,
	})
}

// Error writes the envelope for err. Errors that are not AppErrors anywhere in
// their chain are reported as INTERNAL_ERROR without leaking the cause.
func Error(c *gin.Context, err error) {
	appErr, ok := errors.AsAppError(err)
	if !ok {
		appErr = errors.Wrap(err, errors.ErrCodeInternal, "An unexpected error occurred")
	}

	traceID := c.GetString(string(observability.TraceIDKey))
	requestID := c.GetString(string(observability.RequestIDKey))

	details := appErr.Details
	if details == nil && (traceID != "" || requestID != "") {
		details = map[string]string{}
	}
	// Copy so shared sentinel errors are never mutated across requests.
	if m, ok := details.(map[string]string); ok {
		cp := make(map[string]string, len(m)+2)
		for k, v := range m {
			cp[k] = v
		}
		if traceID != "" {
			cp["trace_id"] = traceID
		}
		if requestID != "" {
			cp["request_id"] = requestID
		}
		details = cp
	}

	statusCode := appErr.StatusCode
	if statusCode == 0 {
		statusCode = HTTPStatus(appErr.Code)
	}
	c.JSON(statusCode, Response{
		Success: false,
		Error: &ErrorResponse{
			Code:    string(appErr.Code),
			Message: appErr.Message,
			Details: details,
			Type:    string(appErr.ErrorType),
		},
		Version: apiVersion,
	})
}

func HTTPStatus(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeBadRequest, errors.ErrCodeValidation, errors.ErrCodeMissingPortal:
		return http.StatusBadRequest
	case errors.ErrCodeUnauthorized, errors.ErrCodeInvalidToken, errors.ErrCodeExpiredToken, errors.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case errors.ErrCodeForbidden:
		return http.StatusForbidden
	case errors.ErrCodeConflict, errors.ErrCodeActionInProgress, errors.ErrCodeClockInRequired:
		return http.StatusConflict
	case errors.ErrCodeTooManyRequests:
		return http.StatusTooManyRequests
	case errors.ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case errors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
