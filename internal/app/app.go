// Package app assembles the long-lived collaborators from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/MrSnakeDoc/warden/internal/cachestore"
	"github.com/MrSnakeDoc/warden/internal/channels"
	"github.com/MrSnakeDoc/warden/internal/config"
	"github.com/MrSnakeDoc/warden/internal/logger"
	"github.com/MrSnakeDoc/warden/internal/objectstore"
	"github.com/MrSnakeDoc/warden/internal/probe"
	"github.com/MrSnakeDoc/warden/internal/resolver"
	"github.com/MrSnakeDoc/warden/internal/scheduler"
	"github.com/MrSnakeDoc/warden/internal/server"
)

const channelsDBFile = "channels.db"

type App struct {
	Config    *config.Config
	Resolver  *resolver.Resolver
	Prober    *probe.Prober
	Cache     *cachestore.Store
	ChannelDB *channels.DB
	Channels  *channels.Refresher
	Scheduler *scheduler.Scheduler
}

// Build opens every store named in cfg. Callers must Close the result.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	ropts := resolver.OptionsFromConfig(cfg.Resolver)
	if cfg.ObjectStore.Dir != "" {
		fs, err := objectstore.NewFS(cfg.ObjectStore.Dir)
		if err != nil {
			return nil, fmt.Errorf("object store: %w", err)
		}
		ropts.Store = fs
	} else {
		logger.Debug("app: no object store configured")
	}
	a.Resolver = resolver.New(ropts)
	a.Prober = probe.New(nil, cfg.Resolver.UserAgent)

	cache, err := cachestore.Open(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("cache store: %w", err)
	}
	a.Cache = cache

	dbPath, err := ChannelsDBPath(cfg.Channels)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	db, err := channels.OpenDB(ctx, dbPath)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("channel store: %w", err)
	}
	a.ChannelDB = db
	a.Channels = channels.NewRefresher(db, channels.Options{
		Sources:      cfg.Channels.Sources,
		FetchTimeout: cfg.Channels.FetchTimeout,
		UserAgent:    cfg.Resolver.UserAgent,
	})

	a.Scheduler = scheduler.New(scheduler.Deps{
		Resolver: a.Resolver,
		Cache:    a.Cache,
		Channels: a.Channels,
	}, scheduler.Options{
		TaskTimeout:     cfg.Scheduler.TaskTimeout,
		MigrateOnStart:  cfg.Scheduler.MigrateOnStart,
		MigrateEveryRun: cfg.Scheduler.MigrateEveryRun,
	})

	logger.Debug("app: cache backend=%s channels db=%s", a.Cache.BackendName(), dbPath)
	return a, nil
}

// Server returns the HTTP surface over a's collaborators.
func (a *App) Server() *server.Server {
	return server.New(server.Deps{
		Resolver:    a.Resolver,
		Prober:      a.Prober,
		Maintenance: a.Scheduler,
		Cache:       a.Cache,
		Channels:    a.Channels,
	})
}

// Close waits for pending artifact writes, then closes the stores.
func (a *App) Close() error {
	if a.Resolver != nil {
		a.Resolver.Wait()
	}
	var errList []error
	if a.Cache != nil {
		errList = append(errList, a.Cache.Close())
	}
	if a.ChannelDB != nil {
		errList = append(errList, a.ChannelDB.Close())
	}
	return errors.Join(errList...)
}

// ChannelsDBPath defaults to channels.db under the state directory.
func ChannelsDBPath(c config.ChannelsConfig) (string, error) {
	if c.DBPath != "" {
		return c.DBPath, nil
	}
	dir, err := config.GetStateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, channelsDBFile), nil
}
