package attendance

import "github.com/akshaykankal/facto/internal/shared/errors"

var (
	ErrUserNotFound             = errors.New(errors.ErrCodeNotFound, "User not found")
	ErrInvalidAction            = errors.New(errors.ErrCodeValidation, "Invalid action. Must be clock-in or clock-out")
	ErrPortalCredentialsMissing = errors.New(errors.ErrCodeMissingPortal, "FactoHR credentials are not configured")
	ErrActionInProgress         = errors.New(errors.ErrCodeActionInProgress, "This attendance action is already being processed")
	ErrClockInRequired          = errors.New(errors.ErrCodeClockInRequired, "Clock-in must be recorded before clocking out")
)

// WrapAttendanceError hides an infrastructure failure behind a 500.
func WrapAttendanceError(err error, message string) *errors.AppError {
	return errors.Wrap(err, errors.ErrCodeInternal, message)
}
