package health

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"
	"time"

	"github.com/akshaykankal/facto/internal/shared/utils"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const checkTimeout = 2 * time.Second

// PortalStatus exposes the portal client's circuit breaker.
type PortalStatus interface {
	BreakerState() string
}

type Handler struct {
	db        *sql.DB
	redis     redis.Cmdable
	portal    PortalStatus
	version   string
	startTime time.Time
}

// NewHandler builds the probes. rdb and portal may be nil.
func NewHandler(db *sql.DB, rdb redis.Cmdable, portal PortalStatus, version string) *Handler {
	return &Handler{
		db:        db,
		redis:     rdb,
		portal:    portal,
		version:   version,
		startTime: time.Now(),
	}
}

type HealthResponse struct {
	Status   string         `json:"status"`
	Version  string         `json:"version,omitempty"`
	Uptime   string         `json:"uptime,omitempty"`
	Database DatabaseHealth `json:"database"`
	Redis    string         `json:"redis,omitempty"`
	Portal   string         `json:"portal,omitempty"`
	System   *SystemHealth  `json:"system,omitempty"`
}

type DatabaseHealth struct {
	Status          string `json:"status"`
	OpenConnections int    `json:"open_connections"`
	InUse           int    `json:"in_use"`
	Idle            int    `json:"idle"`
	MaxOpenConns    int    `json:"max_open_conns"`
}

type SystemHealth struct {
	NumGoroutine int    `json:"num_goroutine"`
	MemAllocMB   uint64 `json:"mem_alloc_mb"`
	NumCPU       int    `json:"num_cpu"`
}

// Health reports every dependency. An open portal breaker degrades the
// service but never fails the probe.
func (h *Handler) Health(c *gin.Context) {
	ctx := c.Request.Context()
	dbHealth := h.getDatabaseHealth(ctx)
	redisStatus := h.checkRedis(ctx)
	system := h.getSystemHealth()

	overallStatus := "ok"
	if dbHealth.Status != "ok" || redisStatus == "error" {
		overallStatus = "degraded"
	}

	resp := HealthResponse{
		Status:   overallStatus,
		Version:  h.version,
		Uptime:   time.Since(h.startTime).String(),
		Database: dbHealth,
		Redis:    redisStatus,
		System:   &system,
	}
	if h.portal != nil {
		resp.Portal = h.portal.BreakerState()
		if resp.Portal == "open" {
			resp.Status = "degraded"
		}
	}

	utils.Success(c, http.StatusOK, resp)
}

func (h *Handler) Ready(c *gin.Context) {
	ctx := c.Request.Context()
	dbStatus := h.checkDatabase(ctx)
	redisStatus := h.checkRedis(ctx)

	if dbStatus != "ok" || redisStatus == "error" {
		utils.Success(c, http.StatusServiceUnavailable, HealthResponse{
			Status:   "not ready",
			Database: DatabaseHealth{Status: dbStatus},
			Redis:    redisStatus,
		})
		return
	}
	utils.Success(c, http.StatusOK, HealthResponse{
		Status:   "ready",
		Database: DatabaseHealth{Status: "ok"},
		Redis:    redisStatus,
	})
}

func (h *Handler) Alive(c *gin.Context) {
	utils.Success(c, http.StatusOK, gin.H{
		"status": "alive",
	})
}

func (h *Handler) checkDatabase(ctx context.Context) string {
	dbCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := h.db.PingContext(dbCtx); err != nil {
		return "error"
	}
	return "ok"
}

// checkRedis returns "" when Redis is not configured.
func (h *Handler) checkRedis(ctx context.Context) string {
	if h.redis == nil {
		return ""
	}
	rctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := h.redis.Ping(rctx).Err(); err != nil {
		return "error"
	}
	return "ok"
}

func (h *Handler) getDatabaseHealth(ctx context.Context) DatabaseHealth {
	status := h.checkDatabase(ctx)
	stats := h.db.Stats()

	return DatabaseHealth{
		Status:          status,
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
		MaxOpenConns:    stats.MaxOpenConnections,
	}
}

func (h *Handler) getSystemHealth() SystemHealth {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemHealth{
		NumGoroutine: runtime.NumGoroutine(),
		MemAllocMB:   m.Alloc / 1024 / 1024,
		NumCPU:       runtime.NumCPU(),
	}
}
