package auth

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/akshaykankal/facto/internal/config"
	dberrors "github.com/akshaykankal/facto/internal/infrastructure/database/errors"
	"github.com/akshaykankal/facto/internal/infrastructure/observability"
	"github.com/akshaykankal/facto/internal/infrastructure/repository"
	"github.com/akshaykankal/facto/internal/infrastructure/security"
	"github.com/akshaykankal/facto/internal/shared/errors"
	"go.uber.org/zap"
)

// UserStore is the part of the repository signup and login touch.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*repository.User, error)
	CreateUser(ctx context.Context, arg repository.CreateUserParams) (uint64, error)
}

type SecretSealer interface {
	Encrypt(secret string) (string, error)
}

// Planner is notified when a new user becomes schedulable.
type Planner interface {
	Replan(ctx context.Context, userID uint64) error
}

type Service struct {
	store     UserStore
	jwt       *security.JWTService
	passwords *security.PasswordService
	vault     SecretSealer
	attempts  security.RateLimiter
	planner   Planner
	cfg       config.SecurityConfig
	logger    *observability.Logger
}

func NewService(
	store UserStore,
	jwt *security.JWTService,
	passwords *security.PasswordService,
	vault SecretSealer,
	attempts security.RateLimiter,
	planner Planner,
	cfg config.SecurityConfig,
	logger *observability.Logger,
) *Service {
	return &Service{
		store:     store,
		jwt:       jwt,
		passwords: passwords,
		vault:     vault,
		attempts:  attempts,
		planner:   planner,
		cfg:       cfg,
		logger:    logger,
	}
}

// Signup creates the account with default preferences. The portal password
// is sealed by the vault before it reaches the store.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*AuthResponse, error) {
	_, err := s.store.GetUserByUsername(ctx, req.Username)
	if err == nil {
		return nil, ErrUsernameTaken
	}
	if !stderrors.Is(err, sql.ErrNoRows) {
		return nil, WrapAuthError(err, "Failed to check username")
	}

	hash, err := s.passwords.Hash(req.Password)
	if err != nil {
		var pwErr *security.PasswordValidationError
		if stderrors.As(err, &pwErr) {
			return nil, errors.WithDetails(errors.ErrCodeValidation, "Password does not meet requirements", pwErr.Errors)
		}
		return nil, WrapAuthError(err, "Failed to hash password")
	}

	secret, err := s.vault.Encrypt(req.PortalPassword)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeVault, "Failed to encrypt FactoHR credentials")
	}

	id, err := s.store.CreateUser(ctx, repository.CreateUserParams{
		Username:       req.Username,
		PasswordHash:   hash,
		PortalUsername: req.PortalUsername,
		PortalSecret:   secret,
		Preferences:    repository.DefaultPreferences(),
	})
	if err != nil {
		// Lost a race with a concurrent signup for the same name.
		if dberrors.IsDuplicateKey(err) {
			return nil, ErrUsernameTaken
		}
		return nil, WrapAuthError(err, "Failed to create user")
	}

	if s.planner != nil {
		if err := s.planner.Replan(ctx, id); err != nil {
			s.logger.Warn(ctx, "Failed to plan new user", zap.Uint64("user_id", id), zap.Error(err))
		}
	}

	token, err := s.jwt.GenerateAccessToken(id, req.Username)
	if err != nil {
		return nil, WrapAuthError(err, "Failed to generate token")
	}

	return &AuthResponse{
		Token: token,
		User:  UserSummary{ID: id, Username: req.Username},
	}, nil
}

// Login checks the dashboard password. Repeated failures for one username
// lock it out for LoginLockoutDuration.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, uint64, error) {
	attemptKey := "login_failures:" + req.Username
	if s.locked(ctx, attemptKey) {
		return nil, 0, ErrLoginLocked
	}

	user, err := s.store.GetUserByUsername(ctx, req.Username)
	if stderrors.Is(err, sql.ErrNoRows) {
		s.recordFailure(ctx, attemptKey)
		return nil, 0, ErrInvalidCredentials
	}
	if err != nil {
		return nil, 0, WrapAuthError(err, "Failed to find user")
	}

	if err := s.passwords.Compare(user.PasswordHash, req.Password); err != nil {
		s.recordFailure(ctx, attemptKey)
		return nil, user.ID, ErrInvalidCredentials
	}

	if s.attempts != nil {
		_ = s.attempts.Reset(ctx, attemptKey)
	}

	token, err := s.jwt.GenerateAccessToken(user.ID, user.Username)
	if err != nil {
		return nil, user.ID, WrapAuthError(err, "Failed to generate token")
	}

	prefs := user.Preferences
	return &AuthResponse{
		Token: token,
		User:  UserSummary{ID: user.ID, Username: user.Username, Preferences: &prefs},
	}, user.ID, nil
}

func (s *Service) locked(ctx context.Context, key string) bool {
	if s.attempts == nil || s.cfg.MaxLoginAttempts <= 0 {
		return false
	}
	remaining, err := s.attempts.GetRemaining(ctx, key, s.cfg.MaxLoginAttempts, s.cfg.LoginLockoutDuration)
	if err != nil {
		return false
	}
	return remaining <= 0
}

func (s *Service) recordFailure(ctx context.Context, key string) {
	if s.attempts == nil || s.cfg.MaxLoginAttempts <= 0 {
		return
	}
	if _, err := s.attempts.Allow(ctx, key, s.cfg.MaxLoginAttempts, s.cfg.LoginLockoutDuration); err != nil {
		s.logger.Warn(ctx, "Failed to record login failure", zap.Error(err))
	}
}
