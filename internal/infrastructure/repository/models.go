package repository

import (
	"time"
)

type AttendanceStatus string

const (
	StatusSuccess AttendanceStatus = "success"
	StatusFailed  AttendanceStatus = "failed"
	StatusLeave   AttendanceStatus = "leave"
)

// Preferences are a user's scheduling settings. Times are "HH:MM" in the
// automation timezone; WorkingDays uses 0=Sunday..6=Saturday; LeaveDates are
// YYYY-MM-DD calendar dates.
type Preferences struct {
	ClockInTime      string   `json:"clockInTime"`
	ClockOutTime     string   `json:"clockOutTime"`
	ToleranceMinutes int      `json:"toleranceMinutes"`
	WorkingDays      []int    `json:"workingDays"`
	LeaveDates       []string `json:"leaveDates"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		ClockInTime:      "09:00",
		ClockOutTime:     "18:00",
		ToleranceMinutes: 15,
		WorkingDays:      []int{1, 2, 3, 4, 5},
		LeaveDates:       []string{},
	}
}

type User struct {
	ID             uint64
	Username       string
	PasswordHash   string
	PortalUsername string
	// PortalSecret is the vault token for the portal password, never plaintext.
	PortalSecret string
	Preferences  Preferences
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPortalCredentials reports whether the user can be automated at all.
func (u *User) HasPortalCredentials() bool {
	return u.PortalUsername != "" && u.PortalSecret != ""
}

type AttendanceLog struct {
	ID            uint64
	UserID        uint64
	LogDate       time.Time
	ClockInAt     *time.Time
	ClockOutAt    *time.Time
	Status        AttendanceStatus
	Message       string
	LastAttemptAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (l *AttendanceLog) DateKey() string {
	return l.LogDate.Format(time.DateOnly)
}

type CreateUserParams struct {
	Username       string
	PasswordHash   string
	PortalUsername string
	PortalSecret   string
	Preferences    Preferences
}

type UpdatePreferencesParams struct {
	UserID      uint64
	Preferences Preferences
}

type UpdatePortalCredentialsParams struct {
	UserID         uint64
	PortalUsername string
	PortalSecret   string
}

// RecordActionParams writes the outcome of one clock-in or clock-out attempt.
// At is set only on success; a failure leaves the action's timestamp as it was.
type RecordActionParams struct {
	UserID    uint64
	Date      string
	At        *time.Time
	Status    AttendanceStatus
	Message   string
	AttemptAt time.Time
}
