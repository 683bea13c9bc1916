package scheduler

import (
	"context"
	"time"

	attemptdomain "github.com/smallbiznis/walletpay/internal/attempt/domain"
	obscontext "github.com/smallbiznis/walletpay/internal/observability/context"
	obslogger "github.com/smallbiznis/walletpay/internal/observability/logger"
	"go.uber.org/zap"
)

// jobRun tallies what one job invocation did with its batch.
type jobRun struct {
	job       string
	runID     string
	batchSize int
	startedAt time.Time

	settled int
	touched int
	skipped int
	failed  int
}

type jobRunKey struct{}

func (s *Scheduler) startRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun) {
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		batchSize: batchSize,
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	s.logger(ctx).Info("scheduler.job.start",
		zap.String("job", job),
		zap.String("run_id", run.runID),
		zap.Int("batch_size", batchSize),
	)
	return ctx, run
}

func runFromContext(ctx context.Context) *jobRun {
	run, _ := ctx.Value(jobRunKey{}).(*jobRun)
	return run
}

// observe files one attempt outcome. A nil run ignores it.
func (r *jobRun) observe(before, after *attemptdomain.Attempt, err error) {
	if r == nil {
		return
	}
	switch {
	case err != nil && benign(err):
		r.skipped++
	case err != nil:
		r.failed++
	case after != nil && after.Status != before.Status:
		r.settled++
	default:
		r.touched++
	}
}

func (s *Scheduler) finishRun(ctx context.Context, run *jobRun, err error) {
	if err != nil && run.failed == 0 {
		run.failed++
	}
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("settled_count", run.settled),
		zap.Int("unchanged_count", run.touched),
		zap.Int("skipped_count", run.skipped),
		zap.Int("error_count", run.failed),
	}
	if run.failed > 0 {
		s.logger(ctx).Warn("scheduler.job.finish", fields...)
		return
	}
	s.logger(ctx).Info("scheduler.job.finish", fields...)
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logAttemptFailure(ctx context.Context, job string, attempt *attemptdomain.Attempt, err error) {
	s.logger(ctx).Error("scheduler.attempt.process.failed",
		zap.String("job", job),
		zap.String("attempt_id", attempt.ID.String()),
		zap.String("reference", attempt.Reference),
		zap.Error(err),
	)
}

func (s *Scheduler) logAttemptSettled(ctx context.Context, job string, attempt *attemptdomain.Attempt, to attemptdomain.Status) {
	s.logger(ctx).Info("scheduler.attempt.settled",
		zap.String("job", job),
		zap.String("attempt_id", attempt.ID.String()),
		zap.String("reference", attempt.Reference),
		zap.String("from", string(attempt.Status)),
		zap.String("to", string(to)),
	)
}
