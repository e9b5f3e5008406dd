package users

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/akshaykankal/facto/internal/infrastructure/database"
	"github.com/akshaykankal/facto/internal/infrastructure/observability"
	"github.com/akshaykankal/facto/internal/infrastructure/repository"
	"github.com/akshaykankal/facto/internal/infrastructure/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userCols = []string{
	"id", "username", "password_hash", "portal_username", "portal_secret",
	"clock_in_time", "clock_out_time", "tolerance_minutes", "working_days", "leave_dates",
	"created_at", "updated_at",
}

var logCols = []string{
	"id", "user_id", "log_date", "clock_in_at", "clock_out_at", "status", "message",
	"last_attempt_at", "created_at", "updated_at",
}

type replanRecorder struct{ calls []uint64 }

func (r *replanRecorder) Replan(ctx context.Context, userID uint64) error {
	r.calls = append(r.calls, userID)
	return nil
}

type sealedAs struct {
	v    *vault.Vault
	want string
}

func (a sealedAs) Match(value driver.Value) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	plain, err := a.v.Decrypt(s)
	return err == nil && plain == a.want
}

type usersDeps struct {
	service *UsersService
	mock    sqlmock.Sqlmock
	vault   *vault.Vault
	planner *replanRecorder
	logger  *observability.Logger
}

func setupUserServiceHelper(t *testing.T) (*usersDeps, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	wrapped := database.New(db, nil, time.Second, nil, nil)
	repo := repository.NewRepository(wrapped, wrapped)
	v, err := vault.New("test passphrase")
	require.NoError(t, err)
	logger, _ := observability.NewLogger("error", "console")
	planner := &replanRecorder{}

	return &usersDeps{
		service: NewUsersService(repo, v, planner, logger),
		mock:    mock,
		vault:   v,
		planner: planner,
		logger:  logger,
	}, func() { db.Close() }
}

func (d *usersDeps) expectUser(id uint64, clockIn string, portalUsername string) {
	now := time.Now()
	d.mock.ExpectQuery("SELECT (.+) FROM users WHERE id = ?").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(
			id, "alice", "hash", portalUsername, "aa:bb", clockIn, "18:00", 15,
			[]byte("[1,2,3,4,5]"), []byte("[]"), now, now,
		))
}

func intPtr(v int) *int { return &v }

func TestUsersService_GetPreferences(t *testing.T) {
	deps, cleanup := setupUserServiceHelper(t)
	defer cleanup()

	// 1. Found
	deps.expectUser(1, "09:00", "E0001")
	resp, err := deps.service.GetPreferences(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "E0001", resp.PortalUsername)
	assert.Equal(t, repository.DefaultPreferences(), resp.Preferences)

	// 2. Missing
	deps.mock.ExpectQuery("SELECT (.+) FROM users WHERE id = ?").
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows(userCols))
	_, err = deps.service.GetPreferences(context.Background(), 2)
	assert.ErrorIs(t, err, ErrUserNotFound)

	assert.NoError(t, deps.mock.ExpectationsWereMet())
}

func TestUsersService_UpdatePreferences_ScheduleOnly(t *testing.T) {
	deps, cleanup := setupUserServiceHelper(t)
	defer cleanup()

	deps.expectUser(1, "09:00", "E0001")
	deps.mock.ExpectBegin()
	deps.mock.ExpectExec("UPDATE users SET\\s+clock_in_time").
		WithArgs("08:30", "17:30", 10, "[1,2,3,4,5,6]", `["2026-03-10"]`, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	deps.mock.ExpectCommit()
	deps.expectUser(1, "08:30", "E0001")

	resp, changed, err := deps.service.UpdatePreferences(context.Background(), 1, UpdatePreferencesRequest{
		ClockInTime:      "08:30",
		ClockOutTime:     "17:30",
		ToleranceMinutes: intPtr(10),
		WorkingDays:      []int{1, 2, 3, 4, 5, 6},
		LeaveDates:       []string{"2026-03-10"},
	})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "08:30", resp.Preferences.ClockInTime)
	assert.Equal(t, []uint64{1}, deps.planner.calls)
	assert.NoError(t, deps.mock.ExpectationsWereMet())
}

func TestUsersService_UpdatePreferences_WithCredentials(t *testing.T) {
	deps, cleanup := setupUserServiceHelper(t)
	defer cleanup()

	deps.expectUser(1, "09:00", "E0001")
	deps.mock.ExpectBegin()
	deps.mock.ExpectExec("UPDATE users SET\\s+clock_in_time").
		WillReturnResult(sqlmock.NewResult(0, 1))
	deps.mock.ExpectExec("UPDATE users SET portal_username").
		WithArgs("E0099", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	deps.mock.ExpectExec("UPDATE users SET portal_secret").
		WithArgs(sealedAs{deps.vault, "new-portal-pass"}, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	deps.mock.ExpectCommit()
	deps.expectUser(1, "09:00", "E0099")

	resp, changed, err := deps.service.UpdatePreferences(context.Background(), 1, UpdatePreferencesRequest{
		ClockInTime:      "09:00",
		ClockOutTime:     "18:00",
		ToleranceMinutes: intPtr(15),
		WorkingDays:      []int{1, 2, 3, 4, 5},
		PortalUsername:   "E0099",
		PortalPassword:   "new-portal-pass",
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "E0099", resp.PortalUsername)
	assert.NoError(t, deps.mock.ExpectationsWereMet())
}

func TestUsersService_UpdatePreferences_RollsBack(t *testing.T) {
	deps, cleanup := setupUserServiceHelper(t)
	defer cleanup()

	deps.expectUser(1, "09:00", "E0001")
	deps.mock.ExpectBegin()
	deps.mock.ExpectExec("UPDATE users SET\\s+clock_in_time").
		WillReturnResult(sqlmock.NewResult(0, 1))
	deps.mock.ExpectExec("UPDATE users SET portal_username").
		WillReturnError(assert.AnError)
	deps.mock.ExpectRollback()

	_, _, err := deps.service.UpdatePreferences(context.Background(), 1, UpdatePreferencesRequest{
		ClockInTime:      "09:00",
		ClockOutTime:     "18:00",
		ToleranceMinutes: intPtr(15),
		PortalUsername:   "E0099",
	})
	require.Error(t, err)
	assert.Empty(t, deps.planner.calls)
	assert.NoError(t, deps.mock.ExpectationsWereMet())
}

func TestUsersService_RecentLogs(t *testing.T) {
	deps, cleanup := setupUserServiceHelper(t)
	defer cleanup()

	in := time.Date(2026, 3, 2, 3, 40, 0, 0, time.UTC)
	out := time.Date(2026, 3, 2, 12, 35, 0, 0, time.UTC)
	now := time.Now()

	deps.mock.ExpectQuery("SELECT (.+) FROM attendance_logs").
		WithArgs(1, recentLogLimit).
		WillReturnRows(sqlmock.NewRows(logCols).
			AddRow(2, 1, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), nil, nil, "leave", "User on leave", nil, now, now).
			AddRow(1, 1, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), in, out, "success", "Successfully marked punch out", out, now, now))

	logs, err := deps.service.RecentLogs(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	assert.Equal(t, "2026-03-03", logs[0].Date)
	assert.Equal(t, "leave", logs[0].Status)
	assert.Nil(t, logs[0].ClockIn)

	assert.Equal(t, "2026-03-02", logs[1].Date)
	require.NotNil(t, logs[1].ClockIn)
	assert.True(t, in.Equal(*logs[1].ClockIn))
	assert.True(t, out.Equal(*logs[1].ClockOut))
	assert.NoError(t, deps.mock.ExpectationsWereMet())
}
