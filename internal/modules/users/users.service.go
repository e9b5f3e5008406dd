package users

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/akshaykankal/facto/internal/infrastructure/observability"
	"github.com/akshaykankal/facto/internal/infrastructure/repository"
	"github.com/akshaykankal/facto/internal/shared/errors"
	"go.uber.org/zap"
)

const recentLogLimit = 30

type Store interface {
	GetUserByID(ctx context.Context, id uint64) (*repository.User, error)
	ListRecentAttendanceLogs(ctx context.Context, userID uint64, limit int) ([]*repository.AttendanceLog, error)
	WithTransaction(ctx context.Context, fn func(*repository.Queries) error) error
}

type SecretSealer interface {
	Encrypt(secret string) (string, error)
}

// Planner re-plans a user's triggers after their schedule changes.
type Planner interface {
	Replan(ctx context.Context, userID uint64) error
}

type UsersService struct {
	store   Store
	vault   SecretSealer
	planner Planner
	logger  *observability.Logger
}

func NewUsersService(store Store, vault SecretSealer, planner Planner, logger *observability.Logger) *UsersService {
	return &UsersService{
		store:   store,
		vault:   vault,
		planner: planner,
		logger:  logger,
	}
}

func (s *UsersService) GetPreferences(ctx context.Context, userID uint64) (*PreferencesResponse, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &PreferencesResponse{
		Preferences:    user.Preferences,
		PortalUsername: user.PortalUsername,
	}, nil
}

// UpdatePreferences writes the schedule and, when supplied, new portal
// credentials in one transaction. It reports whether the credentials changed.
func (s *UsersService) UpdatePreferences(ctx context.Context, userID uint64, req UpdatePreferencesRequest) (*PreferencesResponse, bool, error) {
	if _, err := s.getUser(ctx, userID); err != nil {
		return nil, false, err
	}

	prefs := repository.Preferences{
		ClockInTime:      req.ClockInTime,
		ClockOutTime:     req.ClockOutTime,
		ToleranceMinutes: *req.ToleranceMinutes,
		WorkingDays:      req.WorkingDays,
		LeaveDates:       req.LeaveDates,
	}

	var sealed string
	if req.PortalPassword != "" {
		var err error
		sealed, err = s.vault.Encrypt(req.PortalPassword)
		if err != nil {
			return nil, false, errors.Wrap(err, errors.ErrCodeVault, "Failed to encrypt FactoHR credentials")
		}
	}

	err := s.store.WithTransaction(ctx, func(q *repository.Queries) error {
		if err := q.UpdatePreferences(ctx, repository.UpdatePreferencesParams{UserID: userID, Preferences: prefs}); err != nil {
			return err
		}
		if req.PortalUsername != "" {
			if err := q.UpdatePortalUsername(ctx, userID, req.PortalUsername); err != nil {
				return err
			}
		}
		if sealed != "" {
			if err := q.UpdatePortalSecret(ctx, userID, sealed); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, WrapUserError(err, "Failed to update preferences")
	}

	if s.planner != nil {
		if err := s.planner.Replan(ctx, userID); err != nil {
			s.logger.Warn(ctx, "Failed to re-plan user after preference update", zap.Error(err))
		}
	}

	resp, err := s.GetPreferences(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return resp, req.PortalUsername != "" || sealed != "", nil
}

// RecentLogs returns the newest records first.
func (s *UsersService) RecentLogs(ctx context.Context, userID uint64) ([]LogEntry, error) {
	logs, err := s.store.ListRecentAttendanceLogs(ctx, userID, recentLogLimit)
	if err != nil {
		return nil, WrapUserError(err, "Failed to load attendance logs")
	}

	entries := make([]LogEntry, 0, len(logs))
	for _, l := range logs {
		entries = append(entries, LogEntry{
			Date:     l.DateKey(),
			ClockIn:  l.ClockInAt,
			ClockOut: l.ClockOutAt,
			Status:   string(l.Status),
			Message:  l.Message,
		})
	}
	return entries, nil
}

func (s *UsersService) getUser(ctx context.Context, userID uint64) (*repository.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, WrapUserError(err, "Failed to load user")
	}
	return user, nil
}
