package security

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/akshaykankal/facto/internal/infrastructure/observability"
	"github.com/akshaykankal/facto/internal/shared/errors"
	"github.com/akshaykankal/facto/internal/shared/utils"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type RateLimiter interface {
	Allow(ctx context.Context, identifier string, limit int, window time.Duration) (bool, error)
	Reset(ctx context.Context, identifier string) error
	GetRemaining(ctx context.Context, identifier string, limit int, window time.Duration) (int, error)
}

// InMemoryRateLimiter is a sliding-window limiter for single-instance runs.
type InMemoryRateLimiter struct {
	mu       sync.Mutex
	requests map[string]*bucketInfo
	now      func() time.Time
}

type bucketInfo struct {
	timestamps []time.Time
	resetAt    time.Time
}

func NewInMemoryRateLimiter() *InMemoryRateLimiter {
	return &InMemoryRateLimiter{
		requests: make(map[string]*bucketInfo),
		now:      time.Now,
	}
}

// Run evicts idle buckets until ctx is cancelled.
func (rl *InMemoryRateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.evict()
		}
	}
}

func (rl *InMemoryRateLimiter) evict() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, bucket := range rl.requests {
		if now.After(bucket.resetAt) {
			delete(rl.requests, key)
		}
	}
}

func (rl *InMemoryRateLimiter) Allow(ctx context.Context, identifier string, limit int, window time.Duration) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	bucket, exists := rl.requests[identifier]
	if !exists {
		rl.requests[identifier] = &bucketInfo{
			timestamps: []time.Time{now},
			resetAt:    now.Add(window),
		}
		return true, nil
	}

	valid := liveRequests(bucket.timestamps, now.Add(-window))
	if len(valid) >= limit {
		bucket.timestamps = valid
		return false, nil
	}

	bucket.timestamps = append(valid, now)
	bucket.resetAt = now.Add(window)
	return true, nil
}

func (rl *InMemoryRateLimiter) Reset(ctx context.Context, identifier string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.requests, identifier)
	return nil
}

func (rl *InMemoryRateLimiter) GetRemaining(ctx context.Context, identifier string, limit int, window time.Duration) (int, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	bucket, exists := rl.requests[identifier]
	if !exists {
		return limit, nil
	}

	return max(limit-len(liveRequests(bucket.timestamps, rl.now().Add(-window))), 0), nil
}

func liveRequests(timestamps []time.Time, windowStart time.Time) []time.Time {
	valid := make([]time.Time, 0, len(timestamps))
	for _, t := range timestamps {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}
	return valid
}

// RedisRateLimiter is a fixed-window counter shared by every instance.
type RedisRateLimiter struct {
	client redis.Cmdable
	prefix string
}

func NewRedisRateLimiter(client redis.Cmdable) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		prefix: "rl:",
	}
}

func (rl *RedisRateLimiter) Allow(ctx context.Context, identifier string, limit int, window time.Duration) (bool, error) {
	key := rl.prefix + identifier

	pipe := rl.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis pipeline failed: %w", err)
	}

	count, err := incr.Result()
	if err != nil {
		return false, fmt.Errorf("redis incr failed: %w", err)
	}

	return count <= int64(limit), nil
}

func (rl *RedisRateLimiter) Reset(ctx context.Context, identifier string) error {
	return rl.client.Del(ctx, rl.prefix+identifier).Err()
}

func (rl *RedisRateLimiter) GetRemaining(ctx context.Context, identifier string, limit int, window time.Duration) (int, error) {
	count, err := rl.client.Get(ctx, rl.prefix+identifier).Int()
	if err == redis.Nil {
		return limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get failed: %w", err)
	}

	return max(limit-count, 0), nil
}

// RouteRateLimitMiddleware limits each client IP per route. A limiter
// outage lets the request through.
func RouteRateLimitMiddleware(rl RateLimiter, route string, limit int, window time.Duration, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := route + ":" + c.ClientIP()

		allowed, err := rl.Allow(c.Request.Context(), identifier, limit, window)
		if err != nil {
			c.Next()
			return
		}

		remaining, _ := rl.GetRemaining(c.Request.Context(), identifier, limit, window)

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(window).Unix(), 10))

		if !allowed {
			if metrics != nil {
				metrics.RateLimitHits.WithLabelValues(route).Inc()
			}
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			utils.Error(c, errors.New(errors.ErrCodeTooManyRequests, "Rate limit exceeded. Please try again later."))
			c.Abort()
			return
		}

		c.Next()
	}
}
