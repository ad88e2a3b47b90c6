package retention

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// skipPause keeps Run from spinning while a sweep started elsewhere holds the guard.
const skipPause = time.Second

type Status string

const (
	StatusSkipped       Status = "skipped"
	StatusNotDue        Status = "not_due"
	StatusMisconfigured Status = "misconfigured"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusCanceled      Status = "canceled"
)

type Result struct {
	Status   Status
	Deleted  int
	Err      error
	Duration time.Duration
	// NextDue is the due time after this attempt. Zero means due now.
	NextDue time.Time
}

type PolicySource interface {
	Resolve() Policy
}

type Sweeper interface {
	Execute(ctx context.Context, p Policy, prefixes []string) (int, error)
}

// Recorder receives sweep outcomes, typically for metrics.
type Recorder interface {
	ObserveSweep(status Status, deleted int, took time.Duration)
	SetNextDue(t time.Time)
}

// Notifier is told about completed, failed and misconfigured attempts.
type Notifier interface {
	NotifySweep(ctx context.Context, p Policy, r Result)
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithSleeper replaces the timer-based wait. The function must return a
// non-nil error once ctx is done.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) { s.sleep = sleep }
}

func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

func WithNotifier(n Notifier) Option {
	return func(s *Scheduler) { s.notifier = n }
}

// Scheduler runs the sweep loop. The policy is resolved again on every
// iteration so configuration changes take effect without a restart.
type Scheduler struct {
	policies PolicySource
	sweeper  Sweeper
	logger   *zap.Logger

	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	recorder Recorder
	notifier Notifier

	guard   *semaphore.Weighted
	nextDue atomic.Int64 // unix nanos, 0 = due now
}

func NewScheduler(policies PolicySource, sweeper Sweeper, logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		policies: policies,
		sweeper:  sweeper,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepCtx,
		guard:    semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NextDue returns when the next sweep is due. The zero time means immediately.
func (s *Scheduler) NextDue() time.Time {
	n := s.nextDue.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func (s *Scheduler) setNextDue(t time.Time) {
	s.nextDue.Store(t.UnixNano())
	if s.recorder != nil {
		s.recorder.SetNextDue(t)
	}
}

// Run loops until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("cache retention scheduler started")
	defer s.logger.Info("cache retention scheduler stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		p := s.policies.Resolve()
		if !p.Enabled {
			if s.sleep(ctx, DisabledPollInterval) != nil {
				return nil
			}
			continue
		}

		if due := s.NextDue(); !due.IsZero() {
			if wait := due.Sub(s.now()); wait > 0 {
				if s.sleep(ctx, min(wait, MaxWait)) != nil {
					return nil
				}
				continue
			}
		}

		switch r := s.SweepIfDue(ctx, p); r.Status {
		case StatusCanceled:
			return nil
		case StatusSkipped:
			if s.sleep(ctx, skipPause) != nil {
				return nil
			}
		}
	}
}

// SweepIfDue runs one pass when the due time has been reached and no other
// pass is in flight. It never waits for the guard.
func (s *Scheduler) SweepIfDue(ctx context.Context, p Policy) Result {
	return s.attempt(ctx, p, false)
}

// SweepNow runs one pass regardless of the due time. The single-flight
// guard still applies.
func (s *Scheduler) SweepNow(ctx context.Context, p Policy) Result {
	return s.attempt(ctx, p, true)
}

func (s *Scheduler) attempt(ctx context.Context, p Policy, force bool) Result {
	if !s.guard.TryAcquire(1) {
		return Result{Status: StatusSkipped, NextDue: s.NextDue()}
	}
	defer s.guard.Release(1)

	// Another pass may have finished between the caller's check and the acquire.
	if due := s.NextDue(); !force && !due.IsZero() && s.now().Before(due) {
		return Result{Status: StatusNotDue, NextDue: due}
	}

	log := s.logger.With(zap.String("container", p.ContainerName))

	if !p.HasIdentity() {
		next := s.now().Add(RetryOnError)
		s.setNextDue(next)
		log.Warn("cache retention skipped: connection string or container name is not configured",
			zap.Time("next_due", next))
		s.observe(StatusMisconfigured, 0, 0)
		r := Result{Status: StatusMisconfigured, Err: ErrIncompleteConfig, NextDue: next}
		s.notify(ctx, p, r)
		return r
	}

	start := s.now()
	deleted, err := s.sweeper.Execute(ctx, p, BuildPrefixes(p.ContainerRootPath))
	end := s.now()
	r := Result{Deleted: deleted, Err: err, Duration: end.Sub(start)}

	switch {
	case err != nil && (ctx.Err() != nil || errors.Is(err, context.Canceled)):
		r.Status = StatusCanceled
		r.NextDue = s.NextDue()
		log.Info("cache retention sweep canceled", zap.Int("deleted", deleted))
		s.observe(r.Status, deleted, r.Duration)
		return r

	case errors.Is(err, ErrIncompleteConfig):
		r.Status = StatusMisconfigured
		r.NextDue = end.Add(RetryOnError)
		log.Warn("cache retention skipped: connection string or container name is not configured",
			zap.Time("next_due", r.NextDue))

	case err != nil:
		r.Status = StatusFailed
		r.NextDue = end.Add(RetryOnError)
		log.Warn("cache retention sweep failed",
			zap.Int("deleted", deleted),
			zap.Time("next_due", r.NextDue),
			zap.Error(err))

	default:
		r.Status = StatusCompleted
		r.NextDue = end.Add(p.SweepInterval)
		log.Info("cache retention sweep completed",
			zap.Int("deleted", deleted),
			zap.Duration("max_age", p.MaxAge),
			zap.Bool("test_mode", p.TestMode),
			zap.Time("next_due", r.NextDue))
	}

	s.setNextDue(r.NextDue)
	s.observe(r.Status, deleted, r.Duration)
	s.notify(ctx, p, r)
	return r
}

func (s *Scheduler) notify(ctx context.Context, p Policy, r Result) {
	if s.notifier != nil {
		s.notifier.NotifySweep(ctx, p, r)
	}
}

func (s *Scheduler) observe(status Status, deleted int, took time.Duration) {
	if s.recorder != nil {
		s.recorder.ObserveSweep(status, deleted, took)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
