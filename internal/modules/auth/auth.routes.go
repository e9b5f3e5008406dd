package auth

import (
	"time"

	"github.com/akshaykankal/facto/internal/infrastructure/observability"
	"github.com/akshaykankal/facto/internal/infrastructure/security"
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(router *gin.Engine, handler *Handler, rateLimiter security.RateLimiter, metrics *observability.Metrics) {
	authGroup := router.Group("/api/v1/auth")
	{
		authGroup.POST("/signup",
			security.RouteRateLimitMiddleware(rateLimiter, "signup", 5, time.Minute, metrics),
			handler.Signup,
		)

		authGroup.POST("/login",
			security.RouteRateLimitMiddleware(rateLimiter, "login", 10, time.Minute, metrics),
			handler.Login,
		)
	}
}
