// Package scheduler runs the background jobs that settle payment attempts
// the provider never called back about.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	attemptdomain "github.com/smallbiznis/walletpay/internal/attempt/domain"
	attemptsvc "github.com/smallbiznis/walletpay/internal/attempt/service"
	"github.com/smallbiznis/walletpay/internal/clock"
	"github.com/smallbiznis/walletpay/internal/lock"
	obsmetrics "github.com/smallbiznis/walletpay/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobPollPending    = "poll_pending"
	JobSweepAbandoned = "sweep_abandoned"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Attempts interface {
	ListPending(ctx context.Context, before time.Time, limit int) ([]attemptdomain.Attempt, error)
	ListAbandoned(ctx context.Context, before time.Time, limit int) ([]attemptdomain.Attempt, error)
}

type Checkout interface {
	Poll(ctx context.Context, attempt *attemptdomain.Attempt) (*attemptdomain.Attempt, error)
	SweepAbandoned(ctx context.Context, attempt *attemptdomain.Attempt) (*attemptdomain.Attempt, error)
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Attempts Attempts
	Checkout Checkout
	GenID    *snowflake.Node
	Clock    clock.Clock
	Locker   lock.Locker                `optional:"true"`
	Metrics  *obsmetrics.PaymentMetrics `optional:"true"`
	Config   Config                     `optional:"true"`
}

type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	locker   lock.Locker
	metrics  *obsmetrics.PaymentMetrics
	attempts Attempts
	checkout Checkout
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Attempts == nil || p.Checkout == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		genID:    p.GenID,
		clock:    p.Clock,
		locker:   p.Locker,
		metrics:  p.Metrics,
		attempts: p.Attempts,
		checkout: p.Checkout,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	// Replicas share the job through the lock; whoever loses skips this round.
	if s.locker != nil {
		key := "walletpay:scheduler:" + name
		token, ok, err := s.locker.TryLock(ctx, key, timeout)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if !ok {
			s.log.Debug("scheduler.job.skipped", zap.String("job", name), zap.String("reason", "locked"))
			return nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
				s.log.Warn("release job lock failed", zap.String("job", name), zap.Error(err))
			}
		}()
	}

	ctx, run := s.startRun(ctx, name, batchSize)
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)

	err := fn(ctx)
	s.metrics.ObserveJob(name, s.clock.Now().Sub(start), err)
	s.finishRun(ctx, run, err)
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobSweepAbandoned, s.SweepAbandonedJob},
		{JobPollPending, s.PollPendingJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.BatchSize, s.cfg.JobTimeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// PollPendingJob reconciles one batch of PENDING attempts that were not touched
// for the poll delay.
func (s *Scheduler) PollPendingJob(ctx context.Context) error {
	return s.eachPending(ctx, JobPollPending, s.clock.Now().Add(-s.cfg.PollDelay), s.attempts.ListPending, s.checkout.Poll)
}

// SweepAbandonedJob cancels attempts that have been PENDING for longer than
// the abandon window, however often they were polled meanwhile.
func (s *Scheduler) SweepAbandonedJob(ctx context.Context) error {
	return s.eachPending(ctx, JobSweepAbandoned, s.clock.Now().Add(-s.cfg.AbandonAfter), s.attempts.ListAbandoned, s.checkout.SweepAbandoned)
}

type listFunc func(ctx context.Context, before time.Time, limit int) ([]attemptdomain.Attempt, error)

func (s *Scheduler) eachPending(
	ctx context.Context,
	job string,
	before time.Time,
	list listFunc,
	fn func(context.Context, *attemptdomain.Attempt) (*attemptdomain.Attempt, error),
) error {
	run := runFromContext(ctx)
	items, err := list(ctx, before, s.cfg.BatchSize)
	if err != nil {
		s.logger(ctx).Error("scheduler.attempts.list.failed", zap.String("job", job), zap.Error(err))
		return err
	}

	var jobErr error
	for i := range items {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		attempt := &items[i]
		updated, err := fn(ctx, attempt)
		run.observe(attempt, updated, err)
		switch {
		case err != nil && benign(err):
		case err != nil:
			jobErr = errors.Join(jobErr, err)
			s.logAttemptFailure(ctx, job, attempt, err)
		case updated != nil && updated.Status != attempt.Status:
			s.logAttemptSettled(ctx, job, attempt, updated.Status)
		}
	}
	return jobErr
}

// benign errors come from a callback or operator that moved the attempt first.
func benign(err error) bool {
	return errors.Is(err, attemptdomain.ErrInvalidTransition) || attemptsvc.IsCancellationConflict(err)
}
