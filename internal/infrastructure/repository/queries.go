package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/akshaykankal/facto/internal/infrastructure/database"
)

type Queries struct {
	db database.Querier
}

func New(db database.Querier) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const userColumns = `id, username, password_hash, portal_username, portal_secret,
	clock_in_time, clock_out_time, tolerance_minutes, working_days, leave_dates,
	created_at, updated_at`

const createUser = `INSERT INTO users (
	username, password_hash, portal_username, portal_secret,
	clock_in_time, clock_out_time, tolerance_minutes, working_days, leave_dates
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (uint64, error) {
	workingDays, leaveDates, err := encodeSchedule(arg.Preferences)
	if err != nil {
		return 0, err
	}
	res, err := q.db.ExecContext(ctx, createUser,
		arg.Username,
		arg.PasswordHash,
		arg.PortalUsername,
		arg.PortalSecret,
		arg.Preferences.ClockInTime,
		arg.Preferences.ClockOutTime,
		arg.Preferences.ToleranceMinutes,
		workingDays,
		leaveDates,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

const getUserByID = `SELECT ` + userColumns + ` FROM users WHERE id = ? LIMIT 1`

func (q *Queries) GetUserByID(ctx context.Context, id uint64) (*User, error) {
	return q.queryOneUser(ctx, getUserByID, id)
}

const getUserByUsername = `SELECT ` + userColumns + ` FROM users WHERE username = ? LIMIT 1`

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return q.queryOneUser(ctx, getUserByUsername, username)
}

const listSchedulableUsers = `SELECT ` + userColumns + ` FROM users
WHERE portal_username <> '' AND portal_secret <> ''
ORDER BY id`

// ListSchedulableUsers returns every user with stored portal credentials.
func (q *Queries) ListSchedulableUsers(ctx context.Context) ([]*User, error) {
	rows, err := q.db.QueryContext(ctx, listSchedulableUsers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

const updatePreferences = `UPDATE users SET
	clock_in_time = ?, clock_out_time = ?, tolerance_minutes = ?, working_days = ?, leave_dates = ?
WHERE id = ?`

func (q *Queries) UpdatePreferences(ctx context.Context, arg UpdatePreferencesParams) error {
	workingDays, leaveDates, err := encodeSchedule(arg.Preferences)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, updatePreferences,
		arg.Preferences.ClockInTime,
		arg.Preferences.ClockOutTime,
		arg.Preferences.ToleranceMinutes,
		workingDays,
		leaveDates,
		arg.UserID,
	)
	return err
}

const updatePortalUsername = `UPDATE users SET portal_username = ? WHERE id = ?`

func (q *Queries) UpdatePortalUsername(ctx context.Context, userID uint64, portalUsername string) error {
	_, err := q.db.ExecContext(ctx, updatePortalUsername, portalUsername, userID)
	return err
}

const updatePortalSecret = `UPDATE users SET portal_secret = ? WHERE id = ?`

func (q *Queries) UpdatePortalSecret(ctx context.Context, userID uint64, portalSecret string) error {
	_, err := q.db.ExecContext(ctx, updatePortalSecret, portalSecret, userID)
	return err
}

func (q *Queries) queryOneUser(ctx context.Context, query string, arg any) (*User, error) {
	rows, err := q.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, sql.ErrNoRows
	}
	return scanUser(rows)
}

func scanUser(rows *sql.Rows) (*User, error) {
	var (
		u           User
		workingDays []byte
		leaveDates  []byte
	)
	if err := rows.Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.PortalUsername,
		&u.PortalSecret,
		&u.Preferences.ClockInTime,
		&u.Preferences.ClockOutTime,
		&u.Preferences.ToleranceMinutes,
		&workingDays,
		&leaveDates,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := decodeJSONColumn(workingDays, &u.Preferences.WorkingDays); err != nil {
		return nil, fmt.Errorf("decode working_days for user %d: %w", u.ID, err)
	}
	if err := decodeJSONColumn(leaveDates, &u.Preferences.LeaveDates); err != nil {
		return nil, fmt.Errorf("decode leave_dates for user %d: %w", u.ID, err)
	}
	if u.Preferences.WorkingDays == nil {
		u.Preferences.WorkingDays = []int{}
	}
	if u.Preferences.LeaveDates == nil {
		u.Preferences.LeaveDates = []string{}
	}
	return &u, nil
}

// encodeSchedule renders the JSON columns as strings; the driver would send
// []byte as a binary literal, which MySQL refuses for JSON columns.
func encodeSchedule(p Preferences) (workingDays, leaveDates string, err error) {
	days := p.WorkingDays
	if days == nil {
		days = []int{}
	}
	dates := p.LeaveDates
	if dates == nil {
		dates = []string{}
	}
	wd, err := json.Marshal(days)
	if err != nil {
		return "", "", err
	}
	ld, err := json.Marshal(dates)
	if err != nil {
		return "", "", err
	}
	return string(wd), string(ld), nil
}

func decodeJSONColumn(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
