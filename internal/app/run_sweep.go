package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/dev-tams/cachesweep/internal/config"
	"github.com/dev-tams/cachesweep/internal/notify"
	"github.com/dev-tams/cachesweep/internal/retention"
	"github.com/dev-tams/cachesweep/internal/storage"
)

// RunSweep performs a single pass with the current settings. Unless force
// is set, nothing happens while retention is disabled.
func RunSweep(ctx context.Context, live *config.Live, open StoreOpener, logger *zap.Logger, force bool) (retention.Result, error) {
	cfg, err := live.Config()
	if err != nil {
		return retention.Result{}, err
	}
	if open == nil {
		open = storage.Open
	}

	p := retention.NewResolver(live).Resolve()
	if !p.Enabled && !force {
		logger.Info("cache retention is disabled; nothing to do (use --force to sweep anyway)")
		return retention.Result{Status: retention.StatusSkipped}, nil
	}

	dispatcher, err := notify.NewDispatcher(cfg.Notifications)
	if err != nil {
		return retention.Result{}, err
	}

	sched := retention.NewScheduler(
		fixedPolicy(p),
		retention.NewExecutor(prunableOpener(open), nil),
		logger,
		retention.WithNotifier(&sweepNotifier{dispatcher: dispatcher, logger: logger}),
	)

	r := sched.SweepNow(ctx, p)
	return r, r.Err
}

type fixedPolicy retention.Policy

func (p fixedPolicy) Resolve() retention.Policy { return retention.Policy(p) }
