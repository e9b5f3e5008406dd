package health

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePortal string

func (f fakePortal) BreakerState() string { return string(f) }

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, h)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthHandler(t *testing.T) {
	// 1. Setup mock DB and Redis
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	rdb, redisMock := redismock.NewClientMock()

	handler := NewHandler(db, rdb, fakePortal("closed"), "test")

	t.Run("Health Check - OK", func(t *testing.T) {
		mock.ExpectPing()
		redisMock.ExpectPing().SetVal("PONG")

		w := serve(handler, "/api/v1/health")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"ok"`)
		assert.Contains(t, w.Body.String(), `"database":{"status":"ok"`)
		assert.Contains(t, w.Body.String(), `"redis":"ok"`)
		assert.Contains(t, w.Body.String(), `"portal":"closed"`)
	})

	t.Run("Ready Check - DB Fail", func(t *testing.T) {
		mock.ExpectPing().WillReturnError(assert.AnError)
		redisMock.ExpectPing().SetVal("PONG")

		w := serve(handler, "/api/v1/ready")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), `"database":{"status":"error"`)
	})

	t.Run("Ready Check - Redis Fail", func(t *testing.T) {
		mock.ExpectPing()
		redisMock.ExpectPing().SetErr(assert.AnError)

		w := serve(handler, "/api/v1/ready")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), `"redis":"error"`)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestHealthHandler_WithoutRedis(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	handler := NewHandler(db, nil, fakePortal("open"), "test")

	// 1. Open portal breaker degrades health
	mock.ExpectPing()
	w := serve(handler, "/api/v1/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)
	assert.NotContains(t, w.Body.String(), `"redis"`)

	// 2. Readiness ignores the portal
	mock.ExpectPing()
	w = serve(handler, "/api/v1/ready")
	assert.Equal(t, http.StatusOK, w.Code)

	// 3. Liveness touches nothing
	w = serve(handler, "/api/v1/alive")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
