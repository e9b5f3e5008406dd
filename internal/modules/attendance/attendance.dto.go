package attendance

import "time"

type Action string

const (
	ClockIn  Action = "clock-in"
	ClockOut Action = "clock-out"
)

// ParseAction accepts the current names and the dashboard's legacy
// punchIn/punchOut spelling.
func ParseAction(s string) (Action, bool) {
	switch s {
	case "clock-in", "punchIn":
		return ClockIn, true
	case "clock-out", "punchOut":
		return ClockOut, true
	}
	return "", false
}

// Trigger labels which path asked for an action.
type Trigger string

const (
	TriggerSweep   Trigger = "sweep"
	TriggerPlanner Trigger = "planner"
	TriggerManual  Trigger = "manual"
)

// Outcome is the result of one attempted action.
type Outcome struct {
	Action  Action
	Success bool
	Message string
	At      *time.Time
}

type SweepSummary struct {
	UsersScanned     int
	ActionsProcessed int
	Timestamp        time.Time
	Weekday          int
}

type MarkRequest struct {
	Action string `json:"action" validate:"required,oneof=clock-in clock-out punchIn punchOut"`
}

type MarkResponse struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	Action    Action     `json:"action"`
	Timestamp *time.Time `json:"timestamp"`
}

type SweepResponse struct {
	Message          string    `json:"message"`
	UsersScanned     int       `json:"usersScanned"`
	ActionsProcessed int       `json:"actionsProcessed"`
	Timestamp        time.Time `json:"timestamp"`
	Weekday          int       `json:"weekday"`
}

type SchedulerStatusResponse struct {
	Running         bool       `json:"running"`
	PlannedTriggers int        `json:"plannedTriggers"`
	NextClockIn     *time.Time `json:"nextClockIn,omitempty"`
	NextClockOut    *time.Time `json:"nextClockOut,omitempty"`
}
