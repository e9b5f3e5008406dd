package app

import (
	"time"

	"github.com/akshaykankal/facto/internal/infrastructure/middleware"
	"github.com/akshaykankal/facto/internal/infrastructure/observability"
	"github.com/akshaykankal/facto/internal/modules/attendance"
	"github.com/akshaykankal/facto/internal/modules/auth"
	"github.com/akshaykankal/facto/internal/modules/health"
	"github.com/akshaykankal/facto/internal/modules/users"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	requestTimeout = 60 * time.Second
	maxBodyBytes   = 64 << 10
)

func SetupRouter(container *Container) *gin.Engine {
	if container.Config.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if len(container.Config.Server.TrustedProxies) > 0 {
		_ = router.SetTrustedProxies(container.Config.Server.TrustedProxies)
	}

	router.Use(middleware.PanicRecoveryMiddleware(container.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware(observability.NewTracer("http")))
	router.Use(middleware.LoggerMiddleware(container.Logger))
	// A sweep visits every user sequentially per worker; the portal timeout
	// bounds each call, this bounds the request.
	router.Use(middleware.TimeoutMiddleware(requestTimeout))
	router.Use(middleware.NewCORSMiddleware(container.Config.CORS))
	router.Use(middleware.SecurityHeadersMiddleware(container.Config.Server.UseHTTPS))
	router.Use(middleware.BodyLimitMiddleware(maxBodyBytes))

	if container.Config.Metrics.Enabled {
		router.Use(middleware.MetricsMiddleware(container.Metrics))
	}

	health.RegisterRoutes(router, container.HealthHandler)
	auth.RegisterRoutes(router, container.AuthHandler, container.GetRateLimiter(), container.Metrics)
	users.RegisterRoutes(router, container.UsersHandler, container.AuthMiddleware)
	attendance.RegisterRoutes(router, container.AttendanceHandler, container.AuthMiddleware,
		middleware.CronSecret(container.Config.Automation.CronSecret, container.AuditLogger))

	if container.Config.Metrics.Enabled {
		router.GET("/api/v1/metrics", gin.WrapH(promhttp.HandlerFor(container.Metrics.Gatherer(), promhttp.HandlerOpts{})))
	}

	return router
}
