package security

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordLength = 72
)

var (
	letterPattern = regexp.MustCompile(`[A-Za-z]`)
	digitPattern  = regexp.MustCompile(`[0-9]`)
)

// PasswordService hashes dashboard passwords. Portal secrets never pass
// through here; they are reversible and live in the vault.
type PasswordService struct {
	cost           int
	commonPassword map[string]bool
}

func NewPasswordService(cost int) *PasswordService {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordService{
		cost: cost,
		commonPassword: map[string]bool{
			"password": true, "12345678": true, "qwerty123": true,
			"password1": true, "letmein1": true, "welcome1": true,
		},
	}
}

type PasswordValidationError struct {
	Errors []string
}

func (e *PasswordValidationError) Error() string {
	return strings.Join(e.Errors, "; ")
}

func (p *PasswordService) Validate(password string) error {
	var problems []string

	if len(password) < minPasswordLength {
		problems = append(problems, fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if len(password) > maxPasswordLength {
		problems = append(problems, fmt.Sprintf("password must not exceed %d bytes", maxPasswordLength))
	}
	if !letterPattern.MatchString(password) {
		problems = append(problems, "password must contain at least one letter")
	}
	if !digitPattern.MatchString(password) {
		problems = append(problems, "password must contain at least one digit")
	}
	if p.commonPassword[strings.ToLower(password)] {
		problems = append(problems, "password is too common")
	}

	if len(problems) > 0 {
		return &PasswordValidationError{Errors: problems}
	}
	return nil
}

func (p *PasswordService) Hash(password string) (string, error) {
	if err := p.Validate(password); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func (p *PasswordService) Compare(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}
