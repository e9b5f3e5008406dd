package auth

import "github.com/akshaykankal/facto/internal/shared/errors"

var (
	ErrUsernameTaken      = errors.New(errors.ErrCodeConflict, "Username already exists")
	ErrInvalidCredentials = errors.New(errors.ErrCodeInvalidCredentials, "Invalid username or password")
	ErrLoginLocked        = errors.New(errors.ErrCodeTooManyRequests, "Too many failed login attempts. Please try again later.")
)

func WrapAuthError(err error, message string) *errors.AppError {
	return errors.Wrap(err, errors.ErrCodeInternal, message)
}
