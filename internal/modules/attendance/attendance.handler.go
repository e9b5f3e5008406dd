package attendance

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/akshaykankal/facto/internal/infrastructure/middleware"
	"github.com/akshaykankal/facto/internal/infrastructure/observability"
	"github.com/akshaykankal/facto/internal/shared/errors"
	"github.com/akshaykankal/facto/internal/shared/utils"
	"github.com/akshaykankal/facto/internal/shared/validator"
	"github.com/gin-gonic/gin"
)

// Orchestrator is the service surface the handler needs.
type Orchestrator interface {
	Sweep(ctx context.Context) (*SweepSummary, error)
	Trigger(ctx context.Context, userID uint64, action Action) (*Outcome, error)
}

// PlannerStatus reports the continuous scheduler; nil when it is disabled.
type PlannerStatus interface {
	Running() bool
	PlannedTriggers() int
	NextFire(userID uint64, action Action) (time.Time, bool)
}

type Handler struct {
	service   Orchestrator
	planner   PlannerStatus
	validator *validator.Validator
	audit     *observability.AuditLogger
}

func NewHandler(service Orchestrator, planner PlannerStatus, validator *validator.Validator, audit *observability.AuditLogger) *Handler {
	return &Handler{
		service:   service,
		planner:   planner,
		validator: validator,
		audit:     audit,
	}
}

// Check runs a bulk sweep for the external cron.
func (h *Handler) Check(c *gin.Context) {
	// A caller that hangs up must not cut the sweep short.
	ctx := context.WithoutCancel(c.Request.Context())

	summary, err := h.service.Sweep(ctx)
	if err != nil {
		utils.Error(c, err)
		return
	}

	h.audit.LogSecurityEvent(ctx, observability.SecurityEvent{
		Type:      observability.AuditSweepTriggered,
		Action:    c.Request.Method + " " + c.FullPath(),
		Success:   true,
		IPAddress: c.ClientIP(),
	})

	utils.Success(c, http.StatusOK, SweepResponse{
		Message:          fmt.Sprintf("Checked %d users, processed %d attendance actions", summary.UsersScanned, summary.ActionsProcessed),
		UsersScanned:     summary.UsersScanned,
		ActionsProcessed: summary.ActionsProcessed,
		Timestamp:        summary.Timestamp,
		Weekday:          summary.Weekday,
	})
}

// Mark performs the caller's clock-in or clock-out right now. A portal
// failure is still a 200 with success=false.
func (h *Handler) Mark(c *gin.Context) {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		utils.Error(c, err)
		return
	}

	var req MarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, errors.Wrap(err, errors.ErrCodeBadRequest, "Invalid request body"))
		return
	}

	if err := h.validator.Validate(req); err != nil {
		utils.Error(c, errors.WithDetails(errors.ErrCodeValidation, ErrInvalidAction.Message, validator.TranslateValidationErrors(err)))
		return
	}

	action, ok := ParseAction(req.Action)
	if !ok {
		utils.Error(c, ErrInvalidAction)
		return
	}

	out, err := h.service.Trigger(c.Request.Context(), userID, action)
	if err != nil {
		utils.Error(c, err)
		return
	}

	utils.Success(c, http.StatusOK, MarkResponse{
		Success:   out.Success,
		Message:   out.Message,
		Action:    out.Action,
		Timestamp: out.At,
	})
}

// SchedulerStatus reports the planner and the caller's next planned fire times.
func (h *Handler) SchedulerStatus(c *gin.Context) {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		utils.Error(c, err)
		return
	}

	resp := SchedulerStatusResponse{}
	if h.planner != nil {
		resp.Running = h.planner.Running()
		resp.PlannedTriggers = h.planner.PlannedTriggers()
		if at, ok := h.planner.NextFire(userID, ClockIn); ok {
			resp.NextClockIn = &at
		}
		if at, ok := h.planner.NextFire(userID, ClockOut); ok {
			resp.NextClockOut = &at
		}
	}
	utils.Success(c, http.StatusOK, resp)
}
