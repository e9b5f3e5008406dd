package health

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(router *gin.Engine, handler *Handler) {
	probes := router.Group("/api/v1")
	probes.GET("/health", handler.Health)
	probes.GET("/ready", handler.Ready)
	probes.GET("/alive", handler.Alive)

	// Load balancers that probe with HEAD
	probes.HEAD("/ready", handler.Ready)
	probes.HEAD("/alive", handler.Alive)
}
