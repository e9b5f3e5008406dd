package users

import "github.com/akshaykankal/facto/internal/shared/errors"

var ErrUserNotFound = errors.New(errors.ErrCodeNotFound, "User not found")

func WrapUserError(err error, message string) *errors.AppError {
	return errors.Wrap(err, errors.ErrCodeInternal, message)
}
