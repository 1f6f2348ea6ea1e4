package app

import (
	"fmt"
	"time"

	"github.com/aatumaykin/nexbotd/internal/agent"
	"github.com/aatumaykin/nexbotd/internal/config"
	"github.com/aatumaykin/nexbotd/internal/cron"
	"github.com/aatumaykin/nexbotd/internal/daemon"
	"github.com/aatumaykin/nexbotd/internal/heartbeat"
	"github.com/aatumaykin/nexbotd/internal/logger"
	"github.com/aatumaykin/nexbotd/internal/workspace"
)

// Initialize builds every component from the configuration. It creates the
// workspace layout but starts nothing.
func (a *App) Initialize() error {
	cfg := a.Config()

	// 1. Workspace
	a.workspace = workspace.New(cfg.Workspace.Path)
	if err := a.workspace.EnsureLayout(); err != nil {
		return fmt.Errorf("failed to prepare workspace: %w", err)
	}

	// 2. Job sources
	a.setSources(cfg)

	// 3. Agent runtime
	a.runner = agent.NewCommandRunner(runnerConfig(cfg), a.logger)

	// 4. Metrics
	opts := []daemon.Option{
		daemon.WithLogger(a.logger),
		daemon.WithDispatcher(a.runner),
		daemon.WithJobSource(daemon.JobSourceFunc(a.LoadJobs)),
		daemon.WithProbes(a.runner),
		daemon.WithCounters(a.runner),
		daemon.WithReloadHook(a.reload),
	}
	if cfg.Metrics.Enabled {
		reg := daemon.NewMetricsRegistry()
		a.metrics = daemon.NewMetrics(cfg.Metrics.Namespace, reg)
		a.metricsSv = daemon.NewMetricsServer(cfg.Metrics.Listen, reg, a.logger)
		opts = append(opts, daemon.WithMetrics(a.metrics))
	}

	// 5. Daemon controller
	dcfg, err := cfg.DaemonConfig()
	if err != nil {
		return fmt.Errorf("invalid daemon configuration: %w", err)
	}
	d, err := daemon.New(dcfg, append(opts, a.extra...)...)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}
	a.daemon = d

	// 6. File watcher
	if cfg.Daemon.WatchFiles {
		a.watcher = daemon.NewFileWatcher(a.watchedFiles(cfg), d.Reload, a.logger)
	}

	return nil
}

func (a *App) setSources(cfg *config.Config) {
	storage := cron.NewStorage(cfg.Cron.JobsFile, a.logger)

	var hb *heartbeat.Loader
	if cfg.Heartbeat.Enabled {
		hb = heartbeat.NewLoader(cfg.Workspace.Path, a.logger)
	}

	a.mu.Lock()
	a.config = cfg
	a.storage = storage
	a.heartbeat = hb
	a.mu.Unlock()
}

func (a *App) watchedFiles(cfg *config.Config) []string {
	files := []string{a.configPath, cfg.Cron.JobsFile}
	if cfg.Heartbeat.Enabled {
		files = append(files, heartbeat.NewLoader(cfg.Workspace.Path, nil).Path())
	}
	return files
}

// reload runs on the daemon loop before jobs are re-read. It reopens the log
// file and picks up a changed configuration file. Settings that need a new
// process (daemon paths, health socket, metrics listener) are only logged.
func (a *App) reload() error {
	if err := a.logger.Reopen(); err != nil {
		a.logger.Error("failed to reopen log file", err)
	}

	if a.configPath == "" {
		return nil
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("reload config: %d validation errors, first: %w", len(errs), errs[0])
	}

	old := a.Config()
	if cfg.Daemon != old.Daemon || cfg.Health != old.Health || cfg.Metrics != old.Metrics {
		a.logger.Warn("daemon, health and metrics settings take effect after restart")
	}

	a.setSources(cfg)
	a.logger.Info("configuration reloaded",
		logger.Field{Key: "jobs_file", Value: cfg.Cron.JobsFile},
		logger.Field{Key: "heartbeat", Value: cfg.Heartbeat.Enabled})
	return nil
}

func runnerConfig(cfg *config.Config) agent.Config {
	return agent.Config{
		Shell:            cfg.Agent.Shell,
		WorkDir:          cfg.Agent.WorkDir,
		Timeout:          time.Duration(cfg.Agent.TimeoutSeconds) * time.Second,
		FailureThreshold: cfg.Agent.FailureThreshold,
		Cooldown:         time.Duration(cfg.Agent.CooldownSeconds) * time.Second,
		Env:              cfg.Agent.Env,
	}
}
