package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dev-tams/cachesweep/internal/config"
	"github.com/dev-tams/cachesweep/internal/storage"
)

// StoreOpener opens a container handle. storage.Open in production.
type StoreOpener func(ctx context.Context, connectionString, container string) (storage.Storage, error)

type section struct {
	name   string
	cfg    config.SectionConfig
	create bool
}

// RunCheck validates both storage sections, pings every distinct account
// once and makes sure each container exists, creating it when allowed.
// Any failure is returned so startup can stop.
func RunCheck(ctx context.Context, cfg *config.Config, open StoreOpener, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		logger.Error("startup check failed", zap.Error(err))
		return err
	}

	sections := []section{
		{name: "media", cfg: cfg.Storage.Media, create: cfg.Storage.CreateIfMissing(cfg.Storage.Media)},
		{name: "cache", cfg: cfg.Storage.Cache.SectionConfig, create: cfg.Storage.CreateIfMissing(cfg.Storage.Cache.SectionConfig)},
	}

	stores := make([]storage.Storage, len(sections))
	for i, s := range sections {
		st, err := open(ctx, s.cfg.ConnectionString, s.cfg.ContainerName)
		if err != nil {
			return fmt.Errorf("section %s: open storage: %w", s.name, err)
		}
		stores[i] = st
	}

	pinged := make(map[string]bool, len(sections))
	for i, s := range sections {
		if pinged[s.cfg.ConnectionString] {
			continue
		}
		if err := stores[i].Ping(ctx); err != nil {
			logger.Error("storage connection check failed", zap.String("section", s.name), zap.Error(err))
			return fmt.Errorf("section %s: connection check: %w", s.name, err)
		}
		pinged[s.cfg.ConnectionString] = true
		logger.Info("storage connection check passed", zap.String("section", s.name))
	}

	for i, s := range sections {
		if err := ensureContainer(ctx, stores[i], s, logger); err != nil {
			logger.Error("failed to ensure container",
				zap.String("section", s.name),
				zap.String("container", s.cfg.ContainerName),
				zap.Error(err))
			return err
		}
	}
	return nil
}

func ensureContainer(ctx context.Context, st storage.Storage, s section, logger *zap.Logger) error {
	log := logger.With(zap.String("section", s.name), zap.String("container", s.cfg.ContainerName))

	if s.create {
		created, err := st.CreateContainerIfNotExists(ctx)
		if err != nil {
			return fmt.Errorf("section %s: create container %q: %w", s.name, s.cfg.ContainerName, err)
		}
		log.Info("ensured container exists", zap.Bool("created", created))
		return nil
	}

	exists, err := st.ContainerExists(ctx)
	if err != nil {
		return fmt.Errorf("section %s: check container %q: %w", s.name, s.cfg.ContainerName, err)
	}
	if !exists {
		return fmt.Errorf("section %s: container %q does not exist and createContainerIfNotExists is false", s.name, s.cfg.ContainerName)
	}
	log.Info("container exists (auto-create disabled)")
	return nil
}
