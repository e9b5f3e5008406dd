package users

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/akshaykankal/facto/internal/config"
	"github.com/akshaykankal/facto/internal/infrastructure/middleware"
	"github.com/akshaykankal/facto/internal/infrastructure/observability"
	"github.com/akshaykankal/facto/internal/infrastructure/security"
	"github.com/akshaykankal/facto/internal/shared/validator"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T, deps *usersDeps) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwtService := security.NewJWTService(&config.JWTConfig{
		AccessSecret: "test_secret_key_must_be_32_bytes_long",
		AccessExpiry: time.Hour,
	})
	token, err := jwtService.GenerateAccessToken(1, "alice")
	require.NoError(t, err)

	r := gin.New()
	handler := NewHandler(deps.service, validator.New(), observability.NewAuditLogger(deps.logger))
	RegisterRoutes(r, handler, middleware.NewAuthMiddleware(jwtService))

	return r, "Bearer " + token
}

func TestHandler_GetPreferences(t *testing.T) {
	deps, cleanup := setupUserServiceHelper(t)
	defer cleanup()
	router, bearer := setupRouter(t, deps)

	t.Run("Unauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/user/preferences", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Success", func(t *testing.T) {
		deps.expectUser(1, "09:15", "E0001")

		req := httptest.NewRequest(http.MethodGet, "/api/v1/user/preferences", nil)
		req.Header.Set("Authorization", bearer)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Data PreferencesResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "09:15", resp.Data.Preferences.ClockInTime)
		assert.Equal(t, "E0001", resp.Data.PortalUsername)
		assert.NotContains(t, w.Body.String(), "aa:bb")
	})
}

func TestHandler_UpdatePreferences_Validation(t *testing.T) {
	deps, cleanup := setupUserServiceHelper(t)
	defer cleanup()
	router, bearer := setupRouter(t, deps)

	tests := []struct {
		name string
		body string
	}{
		{"bad clock", `{"clockInTime":"9:00","clockOutTime":"18:00","toleranceMinutes":15}`},
		{"tolerance too large", `{"clockInTime":"09:00","clockOutTime":"18:00","toleranceMinutes":26}`},
		{"tolerance missing", `{"clockInTime":"09:00","clockOutTime":"18:00"}`},
		{"weekday out of range", `{"clockInTime":"09:00","clockOutTime":"18:00","toleranceMinutes":15,"workingDays":[1,7]}`},
		{"repeated weekday", `{"clockInTime":"09:00","clockOutTime":"18:00","toleranceMinutes":15,"workingDays":[1,1]}`},
		{"bad leave date", `{"clockInTime":"09:00","clockOutTime":"18:00","toleranceMinutes":15,"leaveDates":["2026-13-01"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/api/v1/user/preferences", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", bearer)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
		})
	}

	assert.NoError(t, deps.mock.ExpectationsWereMet())
}

func TestHandler_UpdatePreferences_Success(t *testing.T) {
	deps, cleanup := setupUserServiceHelper(t)
	defer cleanup()
	router, bearer := setupRouter(t, deps)

	deps.expectUser(1, "09:00", "E0001")
	deps.mock.ExpectBegin()
	deps.mock.ExpectExec("UPDATE users SET\\s+clock_in_time").
		WithArgs("10:00", "19:00", 0, "[1,2,3]", "[]", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	deps.mock.ExpectCommit()
	deps.expectUser(1, "10:00", "E0001")

	body := `{"clockInTime":"10:00","clockOutTime":"19:00","toleranceMinutes":0,"workingDays":[1,2,3],"leaveDates":[]}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/user/preferences", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"clockInTime":"10:00"`)
	assert.NoError(t, deps.mock.ExpectationsWereMet())
}

func TestHandler_Logs(t *testing.T) {
	deps, cleanup := setupUserServiceHelper(t)
	defer cleanup()
	router, bearer := setupRouter(t, deps)
	now := time.Now()

	deps.mock.ExpectQuery("SELECT (.+) FROM attendance_logs").
		WithArgs(1, recentLogLimit).
		WillReturnRows(sqlmock.NewRows(logCols).
			AddRow(1, 1, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), nil, nil, "failed", "Login failed", now, now, now))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/user/logs", nil)
	req.Header.Set("Authorization", bearer)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "2026-03-02", resp.Data[0]["date"])
	assert.Equal(t, "failed", resp.Data[0]["status"])
	assert.Nil(t, resp.Data[0]["clockIn"])
	assert.Equal(t, "Login failed", resp.Data[0]["message"])
}
