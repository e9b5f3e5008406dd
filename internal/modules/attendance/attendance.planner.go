package attendance

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/akshaykankal/facto/internal/infrastructure/observability"
	"github.com/akshaykankal/facto/internal/infrastructure/repository"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// replanSpec re-rolls every user's jitter shortly after midnight.
const replanSpec = "5 0 * * *"

// UserSource lists the users the planner schedules.
type UserSource interface {
	ListSchedulableUsers(ctx context.Context) ([]*repository.User, error)
	GetUserByID(ctx context.Context, id uint64) (*repository.User, error)
}

// ScheduledRunner executes a planned fire.
type ScheduledRunner interface {
	RunScheduled(ctx context.Context, userID uint64, action Action) error
}

// PlanFireTime picks today's fire time for a target minute-of-day: a uniform
// offset in [-tolerance, +tolerance], wrapped into the day.
func PlanFireTime(target, tolerance int, intn func(n int) int) (hour, minute int) {
	offset := 0
	if tolerance > 0 {
		offset = intn(2*tolerance+1) - tolerance
	}
	m := ((target+offset)%minutesPerDay + minutesPerDay) % minutesPerDay
	return m / 60, m % 60
}

// Planner is the continuous-scheduler variant: one daily cron entry per user
// and action at a jittered time. It owns its trigger registry; re-planning a
// user replaces both of that user's entries.
type Planner struct {
	cron    *cron.Cron
	users   UserSource
	runner  ScheduledRunner
	metrics *observability.Metrics
	logger  *observability.Logger
	intn    func(n int) int

	mu      sync.Mutex
	entries map[string]cron.EntryID
	running bool
	baseCtx context.Context
}

func NewPlanner(users UserSource, runner ScheduledRunner, loc *time.Location, metrics *observability.Metrics, logger *observability.Logger) *Planner {
	return &Planner{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cronLogger{logger: logger})),
			cron.WithLogger(cronLogger{logger: logger}),
		),
		users:   users,
		runner:  runner,
		metrics: metrics,
		logger:  logger,
		intn:    rand.IntN,
		entries: make(map[string]cron.EntryID),
		baseCtx: context.Background(),
	}
}

func plannerKey(userID uint64, action Action) string {
	return fmt.Sprintf("%d-%s", userID, action)
}

// Start plans every user, registers the nightly re-plan and starts firing.
// Fires run on ctx, detached from any request.
func (p *Planner) Start(ctx context.Context) error {
	p.mu.Lock()
	p.baseCtx = context.WithoutCancel(ctx)
	p.mu.Unlock()

	if err := p.PlanAll(ctx); err != nil {
		return err
	}

	if _, err := p.cron.AddFunc(replanSpec, func() {
		if err := p.PlanAll(p.fireContext()); err != nil {
			p.logger.Error(context.Background(), "Nightly re-plan failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("register nightly re-plan: %w", err)
	}

	p.cron.Start()

	p.mu.Lock()
	p.running = true
	p.mu.Unlock()

	p.logger.Info(ctx, "Attendance planner started", zap.Int("triggers", p.PlannedTriggers()))
	return nil
}

// Stop halts firing and waits for running jobs.
func (p *Planner) Stop() {
	p.mu.Lock()
	wasRunning := p.running
	p.running = false
	p.mu.Unlock()

	if wasRunning {
		<-p.cron.Stop().Done()
	}
}

func (p *Planner) Running() bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Planner) PlannedTriggers() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// PlanAll re-plans every schedulable user with fresh jitter.
func (p *Planner) PlanAll(ctx context.Context) error {
	users, err := p.users.ListSchedulableUsers(ctx)
	if err != nil {
		return WrapAttendanceError(err, "Failed to load users for planning")
	}
	for _, u := range users {
		p.PlanUser(ctx, u)
	}
	return nil
}

// Replan reloads one user and replaces their triggers. It is a no-op until
// the planner has been started.
func (p *Planner) Replan(ctx context.Context, userID uint64) error {
	if p == nil || !p.Running() {
		return nil
	}
	u, err := p.users.GetUserByID(ctx, userID)
	if err != nil {
		return WrapAttendanceError(err, "Failed to load user for planning")
	}
	p.PlanUser(ctx, u)
	return nil
}

// PlanUser drops any existing triggers for u and, when u can be automated,
// registers new ones.
func (p *Planner) PlanUser(ctx context.Context, u *repository.User) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, action := range []Action{ClockIn, ClockOut} {
		key := plannerKey(u.ID, action)
		if id, ok := p.entries[key]; ok {
			p.cron.Remove(id)
			delete(p.entries, key)
		}
	}

	if u.HasPortalCredentials() {
		for _, action := range []Action{ClockIn, ClockOut} {
			p.addLocked(ctx, u, action)
		}
	}

	if p.metrics != nil {
		p.metrics.PlannedTriggers.Set(float64(len(p.entries)))
	}
}

func (p *Planner) addLocked(ctx context.Context, u *repository.User, action Action) {
	at, err := target(u.Preferences, action)
	if err != nil {
		p.logger.Warn(ctx, "Skipping plan for invalid preference",
			zap.Uint64("user_id", u.ID),
			zap.String("action", string(action)),
			zap.Error(err),
		)
		return
	}

	hour, minute := PlanFireTime(at, u.Preferences.ToleranceMinutes, p.intn)
	spec := fmt.Sprintf("%d %d * * *", minute, hour)

	userID := u.ID
	id, err := p.cron.AddFunc(spec, func() {
		if err := p.runner.RunScheduled(p.fireContext(), userID, action); err != nil {
			p.logger.Error(context.Background(), "Scheduled attendance failed",
				zap.Uint64("user_id", userID),
				zap.String("action", string(action)),
				zap.Error(err),
			)
		}
	})
	if err != nil {
		p.logger.Error(ctx, "Failed to register trigger", zap.String("spec", spec), zap.Error(err))
		return
	}

	p.entries[plannerKey(userID, action)] = id
	p.logger.Debug(ctx, "Attendance trigger planned",
		zap.Uint64("user_id", userID),
		zap.String("action", string(action)),
		zap.String("spec", spec),
	)
}

func (p *Planner) fireContext() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.baseCtx
}

// NextFire is the next scheduled instant for a user's action, if planned.
// The cron spec is evaluated in the planner's timezone, not the host's.
func (p *Planner) NextFire(userID uint64, action Action) (time.Time, bool) {
	if p == nil {
		return time.Time{}, false
	}
	p.mu.Lock()
	id, ok := p.entries[plannerKey(userID, action)]
	p.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return p.cron.Entry(id).Schedule.Next(time.Now().In(p.cron.Location())), true
}

// cronLogger routes robfig/cron's logging into zap.
type cronLogger struct {
	logger *observability.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(context.Background(), "cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(context.Background(), "cron: "+msg, append(kvFields(keysAndValues), zap.Error(err))...)
}

func kvFields(kv []any) []zap.Field {
	fields := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, zap.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
