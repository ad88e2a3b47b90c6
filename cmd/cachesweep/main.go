package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/dev-tams/cachesweep/internal/app"
	"github.com/dev-tams/cachesweep/internal/config"
	"github.com/dev-tams/cachesweep/internal/logger"
	"github.com/dev-tams/cachesweep/internal/retention"
	"github.com/dev-tams/cachesweep/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cliApp := &cli.App{
		Name:  "cachesweep",
		Usage: "expire image cache objects in blob storage",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				EnvVars: []string{"CACHESWEEP_CONFIG"},
				Usage:   "path to config yaml (optional; CACHESWEEP_* env vars always apply)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override log.level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "check storage, then run the retention loop until interrupted",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "skip-check",
						Usage: "start without the startup connectivity and container check",
					},
				},
				Action: func(c *cli.Context) error {
					live, log, err := setup(c)
					if err != nil {
						return err
					}
					defer log.Sync() //nolint:errcheck

					return app.RunDaemon(c.Context, live, log, app.DaemonOptions{SkipCheck: c.Bool("skip-check")})
				},
			},
			{
				Name:  "sweep",
				Usage: "run one retention pass now",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "sweep even when retention is disabled",
					},
				},
				Action: func(c *cli.Context) error {
					live, log, err := setup(c)
					if err != nil {
						return err
					}
					defer log.Sync() //nolint:errcheck

					r, err := app.RunSweep(c.Context, live, storage.Open, log, c.Bool("force"))
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "status=%s deleted=%d\n", r.Status, r.Deleted)
					return nil
				},
			},
			{
				Name:  "check",
				Usage: "verify storage connectivity and containers",
				Action: func(c *cli.Context) error {
					live, log, err := setup(c)
					if err != nil {
						return err
					}
					defer log.Sync() //nolint:errcheck

					cfg, err := live.Config()
					if err != nil {
						return err
					}
					if err := app.RunCheck(c.Context, cfg, storage.Open, log); err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, "ok")
					return nil
				},
			},
			{
				Name:  "prefixes",
				Usage: "print the cache prefixes a sweep would list",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "root",
						Usage: "container root path (defaults to storage.cache.containerRootPath)",
					},
				},
				Action: func(c *cli.Context) error {
					root := c.String("root")
					if !c.IsSet("root") {
						live, err := config.NewLive(c.String("config"))
						if err != nil {
							return err
						}
						root = retention.NewResolver(live).Resolve().ContainerRootPath
					}
					for _, p := range retention.BuildPrefixes(root) {
						fmt.Fprintln(c.App.Writer, p)
					}
					return nil
				},
			},
		},
	}

	if err := cliApp.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) (*config.Live, *zap.Logger, error) {
	live, err := config.NewLive(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	cfg, err := live.Config()
	if err != nil {
		return nil, nil, err
	}

	logCfg := logger.FromConfig(cfg.Log)
	if lvl := c.String("log-level"); lvl != "" {
		logCfg.Level = lvl
	}
	log, err := logger.NewLogger(logCfg)
	if err != nil {
		return nil, nil, err
	}
	return live, log, nil
}
