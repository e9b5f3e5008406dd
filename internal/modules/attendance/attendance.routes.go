package attendance

import (
	"github.com/akshaykankal/facto/internal/infrastructure/middleware"
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(router *gin.Engine, handler *Handler, authMiddleware *middleware.AuthMiddleware, cronGuard gin.HandlerFunc) {
	attendanceGroup := router.Group("/api/v1/attendance")

	// Machine trigger (shared secret)
	attendanceGroup.GET("/check", cronGuard, handler.Check)
	attendanceGroup.POST("/check", cronGuard, handler.Check)

	// Dashboard (bearer token)
	userGroup := attendanceGroup.Group("")
	userGroup.Use(authMiddleware.Authenticate())
	{
		userGroup.POST("/mark", handler.Mark)
		userGroup.GET("/scheduler", handler.SchedulerStatus)
	}
}
