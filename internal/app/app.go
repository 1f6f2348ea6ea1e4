// Package app wires nexbotd together: configuration, workspace, job sources,
// the command runner, metrics and the daemon controller.
package app

import (
	"context"
	"errors"
	"sync"

	"github.com/aatumaykin/nexbotd/internal/agent"
	"github.com/aatumaykin/nexbotd/internal/config"
	"github.com/aatumaykin/nexbotd/internal/cron"
	"github.com/aatumaykin/nexbotd/internal/daemon"
	"github.com/aatumaykin/nexbotd/internal/heartbeat"
	"github.com/aatumaykin/nexbotd/internal/logger"
	"github.com/aatumaykin/nexbotd/internal/workspace"
)

// App represents the main application structure.
// It holds references to all major components and manages their lifecycle.
type App struct {
	// Configuration and core services
	configPath string
	logger     *logger.Logger
	extra      []daemon.Option

	mu        sync.RWMutex
	config    *config.Config
	storage   *cron.Storage
	heartbeat *heartbeat.Loader

	workspace *workspace.Workspace
	runner    *agent.CommandRunner
	metrics   *daemon.Metrics
	metricsSv *daemon.MetricsServer
	watcher   *daemon.FileWatcher
	daemon    *daemon.Daemon

	cancelWatch context.CancelFunc
	watchDone   chan struct{}
}

// New creates a new App. configPath may be empty when the configuration was
// not read from a file; reloads then keep the initial configuration. Extra
// daemon options are applied after the defaults.
func New(cfg *config.Config, configPath string, log *logger.Logger, opts ...daemon.Option) *App {
	if log == nil {
		log = logger.Discard()
	}
	return &App{
		config:     cfg,
		configPath: configPath,
		logger:     log,
		extra:      opts,
	}
}

// Run initializes all components unless Initialize was already called,
// starts the daemon and blocks until it stops. In a detaching parent it returns daemon.ErrDetachedParent
// immediately; the caller must exit with status 0.
func (a *App) Run(ctx context.Context) error {
	if a.daemon == nil {
		if err := a.Initialize(); err != nil {
			return err
		}
	}

	if err := a.daemon.Start(ctx); err != nil {
		if !errors.Is(err, daemon.ErrDetachedParent) {
			a.logger.Error("failed to start daemon", err)
		}
		return err
	}

	a.startAuxiliary(ctx)

	err := a.daemon.Run(ctx)
	if shutdownErr := a.Shutdown(); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}

// Daemon returns the controller once Initialize succeeded.
func (a *App) Daemon() *daemon.Daemon {
	return a.daemon
}

// Config returns the active configuration.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config
}

// LoadJobs merges the on-disk job list with heartbeat tasks. It is the
// daemon's job source and is called on start and on every reload.
func (a *App) LoadJobs() ([]cron.JobSpec, error) {
	a.mu.RLock()
	storage, hb := a.storage, a.heartbeat
	a.mu.RUnlock()

	sources := daemon.MultiSource{storage}
	if hb != nil {
		sources = append(sources, hb)
	}
	return sources.LoadJobs()
}
