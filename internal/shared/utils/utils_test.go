package utils_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/akshaykankal/facto/internal/infrastructure/observability"
	appErrors "github.com/akshaykankal/facto/internal/shared/errors"
	"github.com/akshaykankal/facto/internal/shared/utils"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponse_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	utils.Success(c, http.StatusOK, map[string]int{"usersScanned": 3})

	var response utils.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.True(t, response.Success)
	assert.Equal(t, "v1", response.Version)

	respData := response.Data.(map[string]interface{})
	assert.Equal(t, float64(3), respData["usersScanned"])
}

func TestResponse_Error(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(string(observability.RequestIDKey), "req-1")

	utils.Error(c, appErrors.New(appErrors.ErrCodeNotFound, "User not found"))

	assert.Equal(t, http.StatusNotFound, w.Code)

	var response utils.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.False(t, response.Success)
	assert.Equal(t, "NOT_FOUND", response.Error.Code)
	assert.Equal(t, "req-1", response.Error.Details.(map[string]interface{})["request_id"])
}

func TestResponse_WrappedAppError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	err := fmt.Errorf("trigger: %w", appErrors.New(appErrors.ErrCodeActionInProgress, "busy"))
	utils.Error(c, err)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestResponse_SentinelNotMutated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(string(observability.TraceIDKey), "trace-1")

	sentinel := appErrors.New(appErrors.ErrCodeUnauthorized, "Unauthorized")
	utils.Error(c, sentinel)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Nil(t, sentinel.Details)
}

func TestResponse_StandardErrorWrapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	utils.Error(c, errors.New("something crashed"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "something crashed")
}

func TestHTTPStatus(t *testing.T) {
	tests := map[appErrors.ErrorCode]int{
		appErrors.ErrCodeMissingPortal:      http.StatusBadRequest,
		appErrors.ErrCodeClockInRequired:    http.StatusConflict,
		appErrors.ErrCodeTooManyRequests:    http.StatusTooManyRequests,
		appErrors.ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
		appErrors.ErrCodeVault:              http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, utils.HTTPStatus(code), string(code))
	}
}
