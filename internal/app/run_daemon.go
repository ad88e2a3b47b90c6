package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dev-tams/cachesweep/internal/config"
	"github.com/dev-tams/cachesweep/internal/metrics"
	"github.com/dev-tams/cachesweep/internal/notify"
	"github.com/dev-tams/cachesweep/internal/retention"
	"github.com/dev-tams/cachesweep/internal/server"
	"github.com/dev-tams/cachesweep/internal/storage"
	"github.com/dev-tams/cachesweep/internal/storage/prunable"
)

type DaemonOptions struct {
	// SkipCheck starts the loop without the startup connectivity check.
	SkipCheck bool
	// Open defaults to storage.Open.
	Open     StoreOpener
	Registry prometheus.Registerer
	Gatherer prometheus.Gatherer
}

// RunDaemon runs the retention loop, the config watcher and the diagnostics
// server until ctx is canceled.
func RunDaemon(ctx context.Context, live *config.Live, logger *zap.Logger, opts DaemonOptions) error {
	cfg, err := live.Config()
	if err != nil {
		return err
	}

	open := opts.Open
	if open == nil {
		open = storage.Open
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.DefaultRegisterer
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	if !opts.SkipCheck {
		if err := RunCheck(ctx, cfg, open, logger); err != nil {
			return fmt.Errorf("startup check: %w", err)
		}
	}

	dispatcher, err := notify.NewDispatcher(cfg.Notifications)
	if err != nil {
		return err
	}

	sched := retention.NewScheduler(
		retention.NewResolver(live),
		retention.NewExecutor(prunableOpener(open), nil),
		logger.Named("retention"),
		retention.WithRecorder(metrics.NewSweepMetricsWithRegistry(opts.Registry)),
		retention.WithNotifier(&sweepNotifier{dispatcher: dispatcher, logger: logger}),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sched.Run(gctx)
	})

	g.Go(func() error {
		w := config.NewWatcher(live, logger.Named("config"), config.DefaultDebounce)
		if err := w.Watch(gctx, nil); err != nil {
			logger.Warn("config watcher stopped", zap.Error(err))
		}
		return nil
	})

	if cfg.Server.Addr != "" {
		srvOpts := server.Options{
			Addr:     cfg.Server.Addr,
			Gatherer: opts.Gatherer,
			Logger:   logger.Named("http"),
		}
		if server.SmokeTestsEnabled(cfg.Server.SmokeTests) {
			media, err := open(ctx, cfg.Storage.Media.ConnectionString, cfg.Storage.Media.ContainerName)
			if err != nil {
				return fmt.Errorf("open media storage for smoke tests: %w", err)
			}
			srvOpts.SmokeTests = true
			srvOpts.Media = media
		}
		srv := server.New(srvOpts)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	logger.Info("daemon started",
		zap.String("config", live.Path()),
		zap.String("addr", cfg.Server.Addr))

	err = g.Wait()
	logger.Info("daemon stopped")
	return err
}

func prunableOpener(open StoreOpener) retention.Opener {
	return func(ctx context.Context, connectionString, container string) (prunable.Prunable, error) {
		st, err := open(ctx, connectionString, container)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
}
