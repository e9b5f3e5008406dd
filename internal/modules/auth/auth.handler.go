package auth

import (
	"net/http"

	"github.com/akshaykankal/facto/internal/infrastructure/observability"
	"github.com/akshaykankal/facto/internal/shared/errors"
	"github.com/akshaykankal/facto/internal/shared/utils"
	"github.com/akshaykankal/facto/internal/shared/validator"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	service     *Service
	v           *validator.Validator
	auditLogger *observability.AuditLogger
	metrics     *observability.Metrics
}

func NewHandler(service *Service, v *validator.Validator, auditLogger *observability.AuditLogger, metrics *observability.Metrics) *Handler {
	return &Handler{
		service:     service,
		v:           v,
		auditLogger: auditLogger,
		metrics:     metrics,
	}
}

func (h *Handler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, errors.Wrap(err, errors.ErrCodeBadRequest, "Invalid request body"))
		return
	}

	if err := h.v.Validate(req); err != nil {
		utils.Error(c, errors.WithDetails(errors.ErrCodeValidation, "Validation failed", validator.TranslateValidationErrors(err)))
		return
	}

	resp, err := h.service.Signup(c.Request.Context(), req)
	if err != nil {
		h.auditLogger.LogSecurityEvent(c.Request.Context(), observability.SecurityEvent{
			Type:      observability.AuditSignup,
			Action:    "signup_failed",
			Resource:  req.Username,
			Success:   false,
			IPAddress: c.ClientIP(),
			Reason:    err.Error(),
		})
		utils.Error(c, err)
		return
	}

	h.auditLogger.LogSecurityEvent(c.Request.Context(), observability.SecurityEvent{
		Type:      observability.AuditSignup,
		Action:    "user_registered",
		UserID:    resp.User.ID,
		Success:   true,
		IPAddress: c.ClientIP(),
	})

	utils.Success(c, http.StatusCreated, resp)
}

func (h *Handler) Login(c *gin.Context) {
	h.recordAttempt()

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.recordFailure("invalid_request")
		utils.Error(c, errors.Wrap(err, errors.ErrCodeBadRequest, "Invalid request body"))
		return
	}

	if err := h.v.Validate(req); err != nil {
		h.recordFailure("validation_failed")
		utils.Error(c, errors.WithDetails(errors.ErrCodeValidation, "Validation failed", validator.TranslateValidationErrors(err)))
		return
	}

	resp, userID, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		reason := "invalid_credentials"
		if errors.HasCode(err, errors.ErrCodeTooManyRequests) {
			reason = "locked"
		}
		h.recordFailure(reason)
		h.auditLogger.LogSecurityEvent(c.Request.Context(), observability.SecurityEvent{
			Type:      observability.AuditLogin,
			Action:    "login_failed",
			UserID:    userID,
			Resource:  req.Username,
			Success:   false,
			IPAddress: c.ClientIP(),
			Reason:    reason,
		})
		utils.Error(c, err)
		return
	}

	h.auditLogger.LogSecurityEvent(c.Request.Context(), observability.SecurityEvent{
		Type:      observability.AuditLogin,
		Action:    "login_success",
		UserID:    userID,
		Success:   true,
		IPAddress: c.ClientIP(),
	})

	utils.Success(c, http.StatusOK, resp)
}

func (h *Handler) recordAttempt() {
	if h.metrics != nil {
		h.metrics.AuthenticationAttempts.WithLabelValues("password").Inc()
	}
}

func (h *Handler) recordFailure(reason string) {
	if h.metrics != nil {
		h.metrics.AuthenticationFailures.WithLabelValues("password", reason).Inc()
	}
}
