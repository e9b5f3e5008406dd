package attendance

import (
	"fmt"
	"slices"
	"time"

	"github.com/akshaykankal/facto/internal/infrastructure/repository"
)

const minutesPerDay = 24 * 60

// InWindow reports whether current lies in [target-tolerance, target+tolerance].
// All values are minutes since midnight. Windows that cross midnight are not
// wrapped.
func InWindow(target, tolerance, current int) bool {
	return current >= target-tolerance && current <= target+tolerance
}

// ParseClock converts "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil || len(s) != 5 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Moment is one instant seen through the automation timezone.
type Moment struct {
	Time    time.Time
	Date    string
	Weekday int
	Minute  int
}

func MomentAt(t time.Time, loc *time.Location) Moment {
	local := t.In(loc)
	return Moment{
		Time:    t,
		Date:    local.Format(time.DateOnly),
		Weekday: int(local.Weekday()),
		Minute:  local.Hour()*60 + local.Minute(),
	}
}

func IsWorkingDay(p repository.Preferences, weekday int) bool {
	return slices.Contains(p.WorkingDays, weekday)
}

func IsLeaveDay(p repository.Preferences, date string) bool {
	return slices.Contains(p.LeaveDates, date)
}

// target returns the configured time of day for action, in minutes.
func target(p repository.Preferences, action Action) (int, error) {
	if action == ClockIn {
		return ParseClock(p.ClockInTime)
	}
	return ParseClock(p.ClockOutTime)
}
