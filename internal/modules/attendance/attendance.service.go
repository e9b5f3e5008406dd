package attendance

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/akshaykankal/facto/internal/config"
	"github.com/akshaykankal/facto/internal/infrastructure/lock"
	"github.com/akshaykankal/facto/internal/infrastructure/observability"
	"github.com/akshaykankal/facto/internal/infrastructure/portal"
	"github.com/akshaykankal/facto/internal/infrastructure/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	LeaveMessage = "User on leave"

	writeTimeout = 10 * time.Second

	// maxMessageRunes is the width of attendance_logs.message.
	maxMessageRunes = 512
)

// Store is the slice of the repository the orchestrator reads and writes.
type Store interface {
	ListSchedulableUsers(ctx context.Context) ([]*repository.User, error)
	GetUserByID(ctx context.Context, id uint64) (*repository.User, error)
	GetAttendanceLog(ctx context.Context, userID uint64, date string) (*repository.AttendanceLog, error)
	CreateLeaveLog(ctx context.Context, userID uint64, date, message string) (bool, error)
	RecordClockIn(ctx context.Context, arg repository.RecordActionParams) error
	RecordClockOut(ctx context.Context, arg repository.RecordActionParams) error
}

type SessionClient interface {
	Submit(ctx context.Context, creds portal.Credentials, dir portal.Direction) (*portal.Result, error)
}

type SecretOpener interface {
	Decrypt(token string) (string, error)
}

// Service is the attendance orchestrator: it decides per user, date and
// action whether to act, calls the portal and records the outcome on the
// day's single record.
type Service struct {
	store   Store
	session SessionClient
	vault   SecretOpener
	locker  lock.Locker
	cfg     config.AutomationConfig
	loc     *time.Location
	metrics *observability.Metrics
	logger  *observability.Logger
	audit   *observability.AuditLogger
	tracer  *observability.Tracer
	now     func() time.Time
}

func NewService(
	store Store,
	session SessionClient,
	vault SecretOpener,
	locker lock.Locker,
	cfg config.AutomationConfig,
	metrics *observability.Metrics,
	logger *observability.Logger,
	audit *observability.AuditLogger,
) *Service {
	return &Service{
		store:   store,
		session: session,
		vault:   vault,
		locker:  locker,
		cfg:     cfg,
		loc:     cfg.Location(),
		metrics: metrics,
		logger:  logger,
		audit:   audit,
		tracer:  observability.NewTracer("attendance"),
		now:     time.Now,
	}
}

// Sweep evaluates every user with portal credentials against the current
// time. One user's failure never stops the others.
func (s *Service) Sweep(ctx context.Context) (summary *SweepSummary, err error) {
	ctx = observability.WithSweepID(ctx, uuid.NewString())
	ctx, span := s.tracer.Start(ctx, "attendance.Sweep")
	defer func() { observability.EndSpan(span, err) }()

	m := MomentAt(s.now(), s.loc)

	users, err := s.store.ListSchedulableUsers(ctx)
	if err != nil {
		return nil, WrapAttendanceError(err, "Failed to load users")
	}
	if s.metrics != nil {
		s.metrics.SweepUsersScanned.Add(float64(len(users)))
	}

	var processed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.cfg.SweepConcurrency, 1))
	for _, u := range users {
		g.Go(func() error {
			processed.Add(int64(s.evaluateUser(gctx, u, m, TriggerSweep, ClockIn, ClockOut)))
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(
		attribute.Int("users", len(users)),
		attribute.Int64("processed", processed.Load()),
	)
	s.logger.Info(ctx, "Attendance sweep finished",
		zap.Int("users", len(users)),
		zap.Int64("processed", processed.Load()),
		zap.String("date", m.Date),
	)

	return &SweepSummary{
		UsersScanned:     len(users),
		ActionsProcessed: int(processed.Load()),
		Timestamp:        m.Time,
		Weekday:          m.Weekday,
	}, nil
}

// RunScheduled handles a planner fire for one user and action. The planner
// only picks the instant; every gate still applies here.
func (s *Service) RunScheduled(ctx context.Context, userID uint64, action Action) error {
	ctx = observability.WithAction(observability.WithUserID(ctx, userID), string(action))
	u, err := s.store.GetUserByID(ctx, userID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		return WrapAttendanceError(err, "Failed to load user")
	}
	if !u.HasPortalCredentials() {
		s.skip(ctx, "no_credentials")
		return nil
	}

	s.evaluateUser(ctx, u, MomentAt(s.now(), s.loc), TriggerPlanner, action)
	return nil
}

// evaluateUser applies the working-day, leave, eligibility and window gates
// to each requested action in order and returns how many were attempted.
func (s *Service) evaluateUser(ctx context.Context, u *repository.User, m Moment, trigger Trigger, actions ...Action) int {
	ctx = observability.WithUserID(ctx, u.ID)
	ctx, span := s.tracer.Start(ctx, "attendance.evaluateUser", attribute.Int64("user_id", int64(u.ID)))
	defer span.End()

	prefs := u.Preferences
	if !IsWorkingDay(prefs, m.Weekday) {
		s.skip(ctx, "not_working_day")
		return 0
	}

	if IsLeaveDay(prefs, m.Date) {
		created, err := s.store.CreateLeaveLog(ctx, u.ID, m.Date, LeaveMessage)
		if err != nil {
			s.logger.Error(ctx, "Failed to record leave day", zap.Error(err), zap.String("date", m.Date))
		} else if created {
			s.logger.Info(ctx, "Leave day recorded", zap.String("date", m.Date))
		}
		s.skip(ctx, "leave")
		return 0
	}

	attempted := 0
	for _, action := range actions {
		if s.evaluateAction(ctx, u, m, trigger, action) {
			attempted++
		}
	}
	return attempted
}

func (s *Service) evaluateAction(ctx context.Context, u *repository.User, m Moment, trigger Trigger, action Action) bool {
	ctx = observability.WithAction(ctx, string(action))
	if !s.windowOpen(ctx, u, m, action) {
		return false
	}

	rec, err := s.todayLog(ctx, u.ID, m.Date)
	if err != nil {
		s.logger.Error(ctx, "Failed to read attendance record", zap.Error(err))
		return false
	}
	if reason := s.ineligible(rec, action, m.Time); reason != "" {
		s.skip(ctx, reason)
		return false
	}

	lease, err := s.acquire(ctx, u.ID, m.Date, action)
	if stderrors.Is(err, lock.ErrNotAcquired) {
		s.skip(ctx, "locked")
		return false
	}
	if lease != nil {
		defer s.release(ctx, lease)
	}

	// Someone may have finished the action between the read and the lock.
	rec, err = s.todayLog(ctx, u.ID, m.Date)
	if err != nil {
		s.logger.Error(ctx, "Failed to re-read attendance record", zap.Error(err))
		return false
	}
	if reason := s.ineligible(rec, action, m.Time); reason != "" {
		s.skip(ctx, reason)
		return false
	}

	s.attempt(ctx, u, m.Date, action, trigger)
	return true
}

func (s *Service) windowOpen(ctx context.Context, u *repository.User, m Moment, action Action) bool {
	if (action == ClockIn && s.cfg.ForceClockIn) || (action == ClockOut && s.cfg.ForceClockOut) {
		return true
	}

	at, err := target(u.Preferences, action)
	if err != nil {
		s.logger.Warn(ctx, "Invalid schedule preference", zap.Error(err))
		return false
	}
	return InWindow(at, u.Preferences.ToleranceMinutes, m.Minute)
}

// ineligible returns why action must not be attempted given the day's
// record, or "" when it may proceed.
func (s *Service) ineligible(rec *repository.AttendanceLog, action Action, now time.Time) string {
	switch action {
	case ClockIn:
		if rec != nil && rec.ClockInAt != nil {
			return "already_recorded"
		}
	case ClockOut:
		if rec == nil || rec.ClockInAt == nil {
			return "no_clock_in"
		}
		if rec.ClockOutAt != nil {
			return "already_recorded"
		}
	}

	if rec != nil && rec.Status == repository.StatusLeave {
		return "leave"
	}

	if rec != nil && rec.Status == repository.StatusFailed && rec.LastAttemptAt != nil &&
		now.Sub(*rec.LastAttemptAt) < s.cfg.RetryCooldown {
		return "cooldown"
	}
	return ""
}

// Trigger performs a user-requested action immediately. The working-day,
// leave and window gates do not apply; a clock-out still needs the day's
// clock-in.
func (s *Service) Trigger(ctx context.Context, userID uint64, action Action) (*Outcome, error) {
	ctx = observability.WithAction(observability.WithUserID(ctx, userID), string(action))

	u, err := s.store.GetUserByID(ctx, userID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, WrapAttendanceError(err, "Failed to load user")
	}
	if !u.HasPortalCredentials() {
		return nil, ErrPortalCredentialsMissing
	}

	m := MomentAt(s.now(), s.loc)

	lease, err := s.acquire(ctx, u.ID, m.Date, action)
	if stderrors.Is(err, lock.ErrNotAcquired) {
		return nil, ErrActionInProgress
	}
	if lease != nil {
		defer s.release(ctx, lease)
	}

	if action == ClockOut {
		rec, err := s.todayLog(ctx, u.ID, m.Date)
		if err != nil {
			return nil, WrapAttendanceError(err, "Failed to read attendance record")
		}
		if rec == nil || rec.ClockInAt == nil {
			return nil, ErrClockInRequired
		}
	}

	out := s.attempt(ctx, u, m.Date, action, TriggerManual)

	s.audit.LogSecurityEvent(ctx, observability.SecurityEvent{
		Type:     observability.AuditManualTrigger,
		Action:   string(action),
		UserID:   u.ID,
		Resource: fmt.Sprintf("attendance:%s", m.Date),
		Success:  out.Success,
		Reason:   out.Message,
	})

	return out, nil
}

// attempt decrypts the portal secret, submits the action and writes the
// outcome. A failure leaves the action's timestamp untouched.
func (s *Service) attempt(ctx context.Context, u *repository.User, date string, action Action, trigger Trigger) *Outcome {
	out := &Outcome{Action: action}

	password, err := s.vault.Decrypt(u.PortalSecret)
	if err != nil {
		out.Message = "Failed to decrypt FactoHR credentials: " + err.Error()
		s.logger.Error(ctx, "Vault decrypt failed", zap.Error(err))
	} else {
		res, err := s.session.Submit(ctx, portal.Credentials{Username: u.PortalUsername, Password: password}, portal.Direction(action))
		if err != nil {
			out.Message = err.Error()
			s.logger.Warn(ctx, "Attendance action failed",
				zap.String("trigger", string(trigger)),
				zap.String("reason", err.Error()),
			)
		} else {
			at := res.CompletedAt
			out.Success = true
			out.Message = res.Message
			out.At = &at
			s.logger.Info(ctx, "Attendance action recorded",
				zap.String("trigger", string(trigger)),
			)
		}
	}

	status := repository.StatusFailed
	outcome := "failed"
	if out.Success {
		status = repository.StatusSuccess
		outcome = "success"
	}
	if s.metrics != nil {
		s.metrics.RecordAttendance(string(action), string(trigger), outcome)
	}

	// The portal has already acted; the write must not die with the caller's context.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	params := repository.RecordActionParams{
		UserID:    u.ID,
		Date:      date,
		At:        out.At,
		Status:    status,
		Message:   truncateMessage(out.Message),
		AttemptAt: s.now(),
	}
	if action == ClockIn {
		err = s.store.RecordClockIn(wctx, params)
	} else {
		err = s.store.RecordClockOut(wctx, params)
	}
	if err != nil {
		s.logger.Error(ctx, "Failed to record attendance outcome",
			zap.Error(err),
			zap.Bool("portal_success", out.Success),
		)
	}

	return out
}

// truncateMessage cuts s to the stored column width on a rune boundary.
func truncateMessage(s string) string {
	r := []rune(s)
	if len(r) <= maxMessageRunes {
		return s
	}
	return string(r[:maxMessageRunes])
}

func (s *Service) todayLog(ctx context.Context, userID uint64, date string) (*repository.AttendanceLog, error) {
	rec, err := s.store.GetAttendanceLog(ctx, userID, date)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// acquire takes the per-(user, date, action) lock. When the lock backend
// itself fails the action proceeds unlocked; the day's record still guards
// against repeats.
func (s *Service) acquire(ctx context.Context, userID uint64, date string, action Action) (lock.Lease, error) {
	if s.locker == nil {
		return nil, nil
	}
	lease, err := s.locker.Acquire(ctx, lock.AttendanceKey(userID, date, string(action)), s.cfg.LockTTL)
	if stderrors.Is(err, lock.ErrNotAcquired) {
		if s.metrics != nil {
			s.metrics.LockContention.WithLabelValues(string(action)).Inc()
		}
		return nil, err
	}
	if err != nil {
		s.logger.Warn(ctx, "Attendance lock unavailable, continuing without it", zap.Error(err))
		return nil, nil
	}
	return lease, nil
}

func (s *Service) release(ctx context.Context, lease lock.Lease) {
	if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn(ctx, "Failed to release attendance lock", zap.Error(err))
	}
}

func (s *Service) skip(ctx context.Context, reason string) {
	if s.metrics != nil {
		s.metrics.RecordSkip(reason)
	}
	s.logger.Debug(ctx, "Attendance action skipped", zap.String("reason", reason))
}
