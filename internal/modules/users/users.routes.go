package users

import (
	"github.com/akshaykankal/facto/internal/infrastructure/middleware"
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(router *gin.Engine, handler *Handler, authMiddleware *middleware.AuthMiddleware) {
	userGroup := router.Group("/api/v1/user")
	userGroup.Use(authMiddleware.Authenticate())
	{
		userGroup.GET("/preferences", handler.GetPreferences)
		userGroup.PUT("/preferences", handler.UpdatePreferences)
		userGroup.GET("/logs", handler.Logs)
	}
}
