package users

import (
	"time"

	"github.com/akshaykankal/facto/internal/infrastructure/repository"
)

type PreferencesResponse struct {
	Preferences    repository.Preferences `json:"preferences"`
	PortalUsername string                 `json:"portalUsername"`
}

// UpdatePreferencesRequest replaces the schedule wholesale. The portal
// fields are optional: empty means "keep what is stored".
type UpdatePreferencesRequest struct {
	ClockInTime      string   `json:"clockInTime" validate:"required,clock"`
	ClockOutTime     string   `json:"clockOutTime" validate:"required,clock"`
	ToleranceMinutes *int     `json:"toleranceMinutes" validate:"required,min=0,max=25"`
	WorkingDays      []int    `json:"workingDays" validate:"unique,dive,min=0,max=6"`
	LeaveDates       []string `json:"leaveDates" validate:"dive,isodate"`
	PortalUsername   string   `json:"portalUsername" validate:"omitempty,max=255"`
	PortalPassword   string   `json:"portalPassword"`
}

type LogEntry struct {
	Date     string     `json:"date"`
	ClockIn  *time.Time `json:"clockIn"`
	ClockOut *time.Time `json:"clockOut"`
	Status   string     `json:"status"`
	Message  string     `json:"message"`
}
