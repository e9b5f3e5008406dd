package repository

import (
	"context"
	"database/sql"
	"time"
)

const logColumns = `id, user_id, log_date, clock_in_at, clock_out_at, status, message,
	last_attempt_at, created_at, updated_at`

const getAttendanceLog = `SELECT ` + logColumns + ` FROM attendance_logs
WHERE user_id = ? AND log_date = ? LIMIT 1`

// GetAttendanceLog returns the record for (userID, date) or sql.ErrNoRows.
func (q *Queries) GetAttendanceLog(ctx context.Context, userID uint64, date string) (*AttendanceLog, error) {
	rows, err := q.db.QueryContext(ctx, getAttendanceLog, userID, date)
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
	return scanLog(rows)
}

const createLeaveLog = `INSERT IGNORE INTO attendance_logs (user_id, log_date, status, message)
VALUES (?, ?, 'leave', ?)`

// CreateLeaveLog inserts a leave record unless the day already has one.
func (q *Queries) CreateLeaveLog(ctx context.Context, userID uint64, date, message string) (bool, error) {
	res, err := q.db.ExecContext(ctx, createLeaveLog, userID, date, message)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// The unique (user_id, log_date) key turns both writes into an upsert of the
// day's single record. COALESCE keeps an earlier success when At is NULL.
const recordClockIn = `INSERT INTO attendance_logs (user_id, log_date, clock_in_at, status, message, last_attempt_at)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
	clock_in_at = COALESCE(VALUES(clock_in_at), clock_in_at),
	status = VALUES(status),
	message = VALUES(message),
	last_attempt_at = VALUES(last_attempt_at)`

func (q *Queries) RecordClockIn(ctx context.Context, arg RecordActionParams) error {
	_, err := q.db.ExecContext(ctx, recordClockIn, arg.UserID, arg.Date, arg.At, arg.Status, arg.Message, arg.AttemptAt)
	return err
}

const recordClockOut = `INSERT INTO attendance_logs (user_id, log_date, clock_out_at, status, message, last_attempt_at)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
	clock_out_at = COALESCE(VALUES(clock_out_at), clock_out_at),
	status = VALUES(status),
	message = VALUES(message),
	last_attempt_at = VALUES(last_attempt_at)`

func (q *Queries) RecordClockOut(ctx context.Context, arg RecordActionParams) error {
	_, err := q.db.ExecContext(ctx, recordClockOut, arg.UserID, arg.Date, arg.At, arg.Status, arg.Message, arg.AttemptAt)
	return err
}

const listRecentAttendanceLogs = `SELECT ` + logColumns + ` FROM attendance_logs
WHERE user_id = ?
ORDER BY log_date DESC
LIMIT ?`

func (q *Queries) ListRecentAttendanceLogs(ctx context.Context, userID uint64, limit int) ([]*AttendanceLog, error) {
	rows, err := q.db.QueryContext(ctx, listRecentAttendanceLogs, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]*AttendanceLog, 0, limit)
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func scanLog(rows *sql.Rows) (*AttendanceLog, error) {
	var (
		l           AttendanceLog
		clockIn     sql.NullTime
		clockOut    sql.NullTime
		lastAttempt sql.NullTime
		status      string
	)
	if err := rows.Scan(
		&l.ID,
		&l.UserID,
		&l.LogDate,
		&clockIn,
		&clockOut,
		&status,
		&l.Message,
		&lastAttempt,
		&l.CreatedAt,
		&l.UpdatedAt,
	); err != nil {
		return nil, err
	}
	l.Status = AttendanceStatus(status)
	l.ClockInAt = nullTimePtr(clockIn)
	l.ClockOutAt = nullTimePtr(clockOut)
	l.LastAttemptAt = nullTimePtr(lastAttempt)
	return &l, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
