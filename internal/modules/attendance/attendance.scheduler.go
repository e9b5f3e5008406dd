package attendance

import (
	"context"
	"time"

	"github.com/akshaykankal/facto/internal/infrastructure/observability"
	"go.uber.org/zap"
)

const sweepJobName = "attendance_sweep"

// Sweeper is what the background job drives; *Service implements it.
type Sweeper interface {
	Sweep(ctx context.Context) (*SweepSummary, error)
}

// Scheduler runs the in-process sweep so the service works without an
// external cron hitting /attendance/check.
type Scheduler struct {
	sweeper Sweeper
	logger  *observability.Logger
	metrics *observability.Metrics
}

func NewScheduler(sweeper Sweeper, logger *observability.Logger, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{sweeper: sweeper, logger: logger, metrics: metrics}
}

// StartSweepJob sweeps every interval until ctx is cancelled.
func (s *Scheduler) StartSweepJob(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()
	summary, err := s.sweeper.Sweep(ctx)
	if s.metrics != nil {
		s.metrics.RecordBackgroundJob(sweepJobName, time.Since(start), err)
	}
	if err != nil {
		s.logger.Error(ctx, "Attendance sweep job failed", zap.Error(err))
		return
	}
	if summary.ActionsProcessed > 0 {
		s.logger.Info(ctx, "Attendance sweep job completed",
			zap.Int("users", summary.UsersScanned),
			zap.Int("processed", summary.ActionsProcessed),
		)
	}
}
