package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/akshaykankal/facto/internal/infrastructure/observability"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInMemoryRateLimiter(t *testing.T) {
	rl := NewInMemoryRateLimiter()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	ctx := context.Background()
	id := "login:10.0.0.1"
	limit := 2
	window := time.Second

	// 1. First request (Allowed)
	allowed, err := rl.Allow(ctx, id, limit, window)
	assert.NoError(t, err)
	assert.True(t, allowed)

	// 2. Second request (Allowed)
	allowed, err = rl.Allow(ctx, id, limit, window)
	assert.NoError(t, err)
	assert.True(t, allowed)

	remaining, _ := rl.GetRemaining(ctx, id, limit, window)
	assert.Equal(t, 0, remaining)

	// 3. Third request (Blocked)
	allowed, err = rl.Allow(ctx, id, limit, window)
	assert.NoError(t, err)
	assert.False(t, allowed)

	// 4. Request after the window (Allowed)
	now = now.Add(2 * time.Second)
	allowed, err = rl.Allow(ctx, id, limit, window)
	assert.NoError(t, err)
	assert.True(t, allowed)

	remaining, _ = rl.GetRemaining(ctx, id, limit, window)
	assert.Equal(t, 1, remaining)

	// 5. Idle buckets are evicted
	now = now.Add(time.Minute)
	rl.evict()
	assert.Empty(t, rl.requests)
}

func TestRedisRateLimiter_Allow(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rl := NewRedisRateLimiter(db)
	ctx := context.Background()
	id := "signup:127.0.0.1"
	key := "rl:" + id
	limit := 5
	window := time.Minute

	// Case 1: First request sets the expiry
	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectExpire(key, window).SetVal(true)
	allowed, err := rl.Allow(ctx, id, limit, window)
	assert.NoError(t, err)
	assert.True(t, allowed)
	assert.NoError(t, mock.ExpectationsWereMet())

	// Case 2: Limit exceeded
	mock.ExpectIncr(key).SetVal(int64(limit + 1))
	mock.ExpectExpire(key, window).SetVal(true)
	allowed, err = rl.Allow(ctx, id, limit, window)
	assert.NoError(t, err)
	assert.False(t, allowed)
	assert.NoError(t, mock.ExpectationsWereMet())

	// Case 3: Remaining
	mock.ExpectGet(key).SetVal("3")
	remaining, err := rl.GetRemaining(ctx, id, limit, window)
	assert.NoError(t, err)
	assert.Equal(t, 2, remaining)

	// Case 4: Redis error
	mock.ExpectIncr(key).SetErr(assert.AnError)
	allowed, err = rl.Allow(ctx, id, limit, window)
	assert.Error(t, err)
	assert.False(t, allowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRouteRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := observability.NewTestMetrics()

	r := gin.New()
	r.POST("/login", RouteRateLimitMiddleware(NewInMemoryRateLimiter(), "login", 1, time.Minute, metrics), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "TOO_MANY_REQUESTS")
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RateLimitHits.WithLabelValues("login")))
}
