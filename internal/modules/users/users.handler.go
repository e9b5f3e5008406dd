package users

import (
	"net/http"

	"github.com/akshaykankal/facto/internal/infrastructure/middleware"
	"github.com/akshaykankal/facto/internal/infrastructure/observability"
	"github.com/akshaykankal/facto/internal/shared/errors"
	"github.com/akshaykankal/facto/internal/shared/utils"
	"github.com/akshaykankal/facto/internal/shared/validator"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	service     *UsersService
	v           *validator.Validator
	auditLogger *observability.AuditLogger
}

func NewHandler(service *UsersService, v *validator.Validator, auditLogger *observability.AuditLogger) *Handler {
	return &Handler{
		service:     service,
		v:           v,
		auditLogger: auditLogger,
	}
}

func (h *Handler) GetPreferences(c *gin.Context) {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		utils.Error(c, err)
		return
	}

	resp, err := h.service.GetPreferences(c.Request.Context(), userID)
	if err != nil {
		utils.Error(c, err)
		return
	}

	utils.Success(c, http.StatusOK, resp)
}

func (h *Handler) UpdatePreferences(c *gin.Context) {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		utils.Error(c, err)
		return
	}

	var req UpdatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, errors.Wrap(err, errors.ErrCodeBadRequest, "Invalid request body"))
		return
	}

	if err := h.v.Validate(req); err != nil {
		utils.Error(c, errors.WithDetails(errors.ErrCodeValidation, "Validation failed", validator.TranslateValidationErrors(err)))
		return
	}

	resp, credentialsChanged, err := h.service.UpdatePreferences(c.Request.Context(), userID, req)
	if err != nil {
		utils.Error(c, err)
		return
	}

	h.auditLogger.LogSecurityEvent(c.Request.Context(), observability.SecurityEvent{
		Type:      observability.AuditPreferencesUpdated,
		Action:    "update",
		UserID:    userID,
		Success:   true,
		IPAddress: c.ClientIP(),
	})
	if credentialsChanged {
		h.auditLogger.LogSecurityEvent(c.Request.Context(), observability.SecurityEvent{
			Type:      observability.AuditPortalCredentials,
			Action:    "update",
			UserID:    userID,
			Success:   true,
			IPAddress: c.ClientIP(),
		})
	}

	utils.Success(c, http.StatusOK, resp)
}

func (h *Handler) Logs(c *gin.Context) {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		utils.Error(c, err)
		return
	}

	logs, err := h.service.RecentLogs(c.Request.Context(), userID)
	if err != nil {
		utils.Error(c, err)
		return
	}

	utils.Success(c, http.StatusOK, logs)
}
