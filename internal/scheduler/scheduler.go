package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/launchpad/internal/clock"
	eventdomain "github.com/smallbiznis/launchpad/internal/events/domain"
	obsmetrics "github.com/smallbiznis/launchpad/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/launchpad/internal/payment/domain"
	"github.com/smallbiznis/launchpad/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobDispatchEvents  = "dispatch_events"
	JobExpireCheckouts = "expire_checkouts"

	runLockKey = "scheduler:run"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// CheckoutExpirer is the slice of the payment service the sweeper needs.
type CheckoutExpirer interface {
	ExpireAbandoned(ctx context.Context, before time.Time, limit int) (int, error)
}

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Dispatcher eventdomain.Dispatcher
	Payments   paymentdomain.Service
	Locker     *ratelimit.Locker   `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
	Config     Config              `optional:"true"`
}

// Scheduler replays undelivered outbox events and closes abandoned checkouts.
// With redis configured only one replica runs a given tick.
type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	dispatcher eventdomain.Dispatcher
	checkouts  CheckoutExpirer
	locker     *ratelimit.Locker
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Dispatcher == nil || p.Payments == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		dispatcher: p.Dispatcher,
		checkouts:  p.Payments,
		locker:     p.Locker,
		obsMetrics: p.ObsMetrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context, run *jobRun) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.startJobRun(ctx, name, batchSize)
	s.logJobStart(ctx, run)

	err := fn(ctx, run)
	elapsed := s.clock.Now().Sub(start)
	if err != nil && run.errorCount == 0 {
		run.IncError()
	}
	s.logJobFinish(ctx, run)

	if err == nil {
		s.obsMetrics.RecordJobRun(ctx, name, "ok", elapsed)
		return nil
	}

	// deadline is a soft timeout; the next tick resumes the batch
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.obsMetrics.RecordJobRun(context.WithoutCancel(ctx), name, "timeout", elapsed)
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	s.obsMetrics.RecordJobRun(ctx, name, "error", elapsed)
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled job a single time.
func (s *Scheduler) RunOnce(parent context.Context) error {
	if s.locker != nil {
		token, locked, err := s.locker.TryLock(parent, runLockKey, s.cfg.RunInterval)
		if err != nil {
			s.log.Warn("scheduler lock unavailable, running unguarded", zap.Error(err))
		} else if !locked {
			s.log.Debug("scheduler tick owned by another replica")
			return nil
		} else {
			defer func() {
				if err := s.locker.Release(context.WithoutCancel(parent), runLockKey, token); err != nil {
					s.log.Warn("release scheduler lock", zap.Error(err))
				}
			}()
		}
	}

	jobs := []struct {
		Name string
		Run  func(context.Context, *jobRun) error
	}{
		{JobDispatchEvents, s.DispatchEventsJob},
		{JobExpireCheckouts, s.ExpireCheckoutsJob},
	}

	var err error
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

// DispatchEventsJob redelivers outbox events whose first dispatch did not finish.
func (s *Scheduler) DispatchEventsJob(ctx context.Context, run *jobRun) error {
	if err := s.dispatcher.DispatchPending(ctx); err != nil {
		s.logJobError(ctx, run, "scheduler.dispatch.failed", err)
		return err
	}
	return nil
}

// ExpireCheckoutsJob fails checkout attempts that have been idle past AbandonAfter.
func (s *Scheduler) ExpireCheckoutsJob(ctx context.Context, run *jobRun) error {
	before := s.clock.Now().Add(-s.cfg.AbandonAfter)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		expired, err := s.checkouts.ExpireAbandoned(ctx, before, s.cfg.BatchSize)
		run.AddProcessed(expired)
		if err != nil {
			s.logJobError(ctx, run, "scheduler.checkout.expire.failed", err)
			return err
		}
		if expired < s.cfg.BatchSize {
			return nil
		}
	}
}
