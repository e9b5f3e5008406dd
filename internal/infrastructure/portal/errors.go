package portal

import "errors"

// ErrUnavailable is returned without contacting the portal while its circuit
// breaker is open.
var ErrUnavailable = errors.New("FactoHR portal is temporarily unavailable")

// LoginError covers every failure before the session is established: the
// login page, the verification token and the credential check.
type LoginError struct {
	Message    string
	StatusCode int
	Err        error
}

func (e *LoginError) Error() string {
	return e.Message
}

func (e *LoginError) Unwrap() error {
	return e.Err
}

// Rejected reports whether the portal answered and refused the login, as
// opposed to being unreachable or failing server-side.
func (e *LoginError) Rejected() bool {
	return e.Err == nil && e.StatusCode < 500
}

// ActionError is a failed attendance submission after a successful login.
type ActionError struct {
	Message    string
	StatusCode int
	Err        error
}

func (e *ActionError) Error() string {
	return e.Message
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// countsAgainstBreaker separates portal outages from per-user outcomes.
func countsAgainstBreaker(err error) bool {
	if err == nil {
		return false
	}
	var le *LoginError
	if errors.As(err, &le) {
		return !le.Rejected()
	}
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Err != nil || ae.StatusCode >= 500
	}
	return true
}
