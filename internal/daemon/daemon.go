// Package daemon implements the nexbotd process controller: daemonization,
// single-instance enforcement, signal-driven control flow and the tick loop
// that dispatches due cron jobs to the agent runtime.
//
// All registry mutation and state transitions happen on the goroutine that
// calls Start, Run and RunOnce. Signal handlers and the public Stop, Reload
// and TriggerUserAction only set atomic flags and wake the loop.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/aatumaykin/nexbotd/internal/cron"
	"github.com/aatumaykin/nexbotd/internal/health"
	"github.com/aatumaykin/nexbotd/internal/ipc"
	"github.com/aatumaykin/nexbotd/internal/logger"
)

// JobSource supplies the externally maintained job list.
type JobSource interface {
	LoadJobs() ([]cron.JobSpec, error)
}

// JobSourceFunc adapts a function to JobSource.
type JobSourceFunc func() ([]cron.JobSpec, error)

func (f JobSourceFunc) LoadJobs() ([]cron.JobSpec, error) { return f() }

// MultiSource concatenates sources in order. One failing source fails the
// whole load, so a partial list never replaces the registry.
type MultiSource []JobSource

func (m MultiSource) LoadJobs() ([]cron.JobSpec, error) {
	var all []cron.JobSpec
	for _, src := range m {
		specs, err := src.LoadJobs()
		if err != nil {
			return nil, err
		}
		all = append(all, specs...)
	}
	return all, nil
}

// Option configures a Daemon.
type Option func(*Daemon)

func WithLogger(l *logger.Logger) Option {
	return func(d *Daemon) { d.logger = l }
}

func WithDispatcher(disp cron.Dispatcher) Option {
	return func(d *Daemon) { d.dispatcher = disp }
}

func WithJobSource(src JobSource) Option {
	return func(d *Daemon) { d.jobs = src }
}

func WithProbes(p health.Probes) Option {
	return func(d *Daemon) { d.probes = p }
}

func WithCounters(c health.CounterSource) Option {
	return func(d *Daemon) { d.counters = c }
}

func WithDetacher(dt Detacher) Option {
	return func(d *Daemon) { d.detacher = dt }
}

func WithMetrics(m *Metrics) Option {
	return func(d *Daemon) { d.metrics = m }
}

// WithClock replaces time.Now for scheduling decisions.
func WithClock(now func() time.Time) Option {
	return func(d *Daemon) { d.now = now }
}

// WithUserAction sets what SIGUSR1 does. The default logs the job table.
func WithUserAction(fn func(ctx context.Context) error) Option {
	return func(d *Daemon) { d.userAction = fn }
}

// WithReloadHook runs fn at the start of every reload, before jobs are
// re-read.
func WithReloadHook(fn func() error) Option {
	return func(d *Daemon) { d.reloadHook = fn }
}

// Daemon is the process controller.
type Daemon struct {
	cfg        Config
	logger     *logger.Logger
	dispatcher cron.Dispatcher
	jobs       JobSource
	probes     health.Probes
	counters   health.CounterSource
	detacher   Detacher
	metrics    *Metrics
	now        func() time.Time
	userAction func(ctx context.Context) error
	reloadHook func() error

	registry *cron.Registry
	model    *health.Model
	server   *ipc.HealthServer
	pidFile  *ipc.PIDFile

	state           atomic.Int32
	stopRequested   atomic.Bool
	reloadRequested atomic.Bool
	userRequested   atomic.Bool
	wake            chan struct{}

	sigCh   chan os.Signal
	sigDone chan struct{}

	pid       int
	startTime time.Time
	restart   RestartState
}

// New validates cfg and returns a daemon in StateCreated. A dispatcher is
// required.
func New(cfg Config, opts ...Option) (*Daemon, error) {
	if cfg.TickInterval == 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logger.Discard(),
		detacher: ProcessDetacher{},
		now:      time.Now,
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.dispatcher == nil {
		return nil, fmt.Errorf("%w: a job dispatcher is required", ErrConfig)
	}
	if d.userAction == nil {
		d.userAction = d.logJobs
	}

	d.registry = cron.NewRegistry(d.logger.With(logger.Field{Key: "component", Value: "cron"}))
	d.pidFile = ipc.NewPIDFile(cfg.PIDFile)
	d.state.Store(int32(StateCreated))
	return d, nil
}

// Start brings the daemon to StateRunning. In a detaching parent it returns
// ErrDetachedParent and the caller must exit with status 0.
func (d *Daemon) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !d.state.CompareAndSwap(int32(StateCreated), int32(StateDaemonizing)) {
		return fmt.Errorf("daemon already started (state %s)", d.State())
	}

	if err := d.detacher.Detach(d.cfg); err != nil {
		d.setState(StateStopped)
		if errors.Is(err, ErrDetachedParent) || errors.Is(err, ErrDaemonize) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrDaemonize, err)
	}

	d.pid = os.Getpid()
	if err := d.pidFile.Create(); err != nil {
		d.setState(StateStopped)
		return err
	}

	now := d.now()
	d.startTime = now
	d.restart = d.recordStart(now)
	d.metrics.SetRestartCount(d.restart.RestartCount)

	d.model = health.NewModel(now, d.probes, d.counters)
	d.model.SetRestartInfo(d.restart.RestartCount, d.restart.LastRestart)
	d.model.Update(now)

	if d.cfg.HealthSocket != "" {
		srv := ipc.NewHealthServer(d.cfg.HealthSocket, d.model, d.logger)
		if err := srv.Start(); err != nil {
			d.logger.Error("health server unavailable, continuing without it", err)
		} else {
			d.server = srv
		}
	}

	d.installSignals()
	d.loadJobs(now.In(d.cfg.location()))
	d.setState(StateRunning)

	d.logger.Info("daemon started",
		logger.Field{Key: "pid", Value: d.pid},
		logger.Field{Key: "restart_count", Value: d.restart.RestartCount},
		logger.Field{Key: "jobs", Value: d.registry.Len()})
	return nil
}

// Run loops RunOnce until the daemon stops. Between ticks it sleeps until
// the next tick boundary or an early wake from a signal, Stop, Reload,
// TriggerUserAction or ctx cancellation. Cancelling ctx requests a stop.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.active() {
		return ErrNotRunning
	}
	for {
		if !d.RunOnce(ctx, d.now()) {
			return nil
		}
		d.sleep(ctx)
	}
}

// RunOnce executes one tick at now and reports whether the daemon is still
// running afterwards.
func (d *Daemon) RunOnce(ctx context.Context, now time.Time) bool {
	if !d.active() {
		return false
	}
	if d.stopRequested.Load() {
		d.shutdown()
		return false
	}

	local := now.In(d.cfg.location())
	if d.reloadRequested.Swap(false) {
		d.reload(local)
	}
	if d.userRequested.Swap(false) {
		d.runUserAction(ctx)
	}

	status := d.model.Update(now)
	results := d.registry.RunPending(ctx, local, d.dispatcher)
	d.metrics.ObserveTick(results, d.registry.Len(), status.Healthy)
	return true
}

func (d *Daemon) sleep(ctx context.Context) {
	now := d.now()
	wait := now.Truncate(d.cfg.TickInterval).Add(d.cfg.TickInterval).Sub(now)
	if wait <= 0 {
		wait = d.cfg.TickInterval
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-d.wake:
	case <-ctx.Done():
		d.stopRequested.Store(true)
	}
}

// Stop requests a graceful stop. The tick in progress finishes first.
func (d *Daemon) Stop() {
	d.stopRequested.Store(true)
	d.notify()
}

// Reload requests a job reload on the next tick.
func (d *Daemon) Reload() {
	d.reloadRequested.Store(true)
	d.state.CompareAndSwap(int32(StateRunning), int32(StateReloadPending))
	d.notify()
}

// TriggerUserAction requests the user-defined action on the next tick.
func (d *Daemon) TriggerUserAction() {
	d.userRequested.Store(true)
	d.notify()
}

// Close releases everything Start acquired. It is a no-op unless the daemon
// is running and must not be called concurrently with Run.
func (d *Daemon) Close() {
	if d.active() {
		d.shutdown()
	}
}

func (d *Daemon) notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Daemon) reload(now time.Time) {
	d.state.CompareAndSwap(int32(StateRunning), int32(StateReloadPending))
	d.logger.Info("reloading configuration")

	if d.reloadHook != nil {
		if err := d.reloadHook(); err != nil {
			d.logger.Error("reload hook failed", err)
		}
	}
	d.loadJobs(now)
	d.metrics.IncReload()

	d.state.CompareAndSwap(int32(StateReloadPending), int32(StateRunning))
}

func (d *Daemon) loadJobs(now time.Time) {
	if d.jobs == nil {
		return
	}

	specs, err := d.jobs.LoadJobs()
	if err != nil {
		d.logger.Error("failed to load jobs, keeping current set", err)
		return
	}

	for _, err := range d.registry.Sync(specs, now) {
		d.logger.Warn("job rejected", logger.Field{Key: "error", Value: err.Error()})
	}
	d.logger.Info("jobs loaded", logger.Field{Key: "jobs", Value: d.registry.Len()})
}

func (d *Daemon) runUserAction(ctx context.Context) {
	d.metrics.IncUserAction()
	if err := d.userAction(ctx); err != nil {
		d.logger.Error("user action failed", err)
	}
}

func (d *Daemon) logJobs(context.Context) error {
	jobs := d.registry.List()
	d.logger.Info("job table", logger.Field{Key: "jobs", Value: len(jobs)})
	for _, j := range jobs {
		d.logger.Info("job",
			logger.Field{Key: "job_id", Value: j.ID},
			logger.Field{Key: "schedule", Value: j.Expression},
			logger.Field{Key: "enabled", Value: j.Enabled},
			logger.Field{Key: "next_run", Value: j.NextRun},
			logger.Field{Key: "run_count", Value: j.RunCount},
			logger.Field{Key: "fail_count", Value: j.FailCount})
	}
	return nil
}

func (d *Daemon) shutdown() {
	d.setState(StateStopping)
	d.logger.Info("daemon stopping")

	d.stopSignals()

	if d.server != nil {
		if err := d.server.Stop(); err != nil {
			d.logger.Error("failed to stop health server", err)
		}
		d.server = nil
	}
	if err := d.pidFile.Remove(); err != nil {
		d.logger.Error("failed to remove pid file", err)
	}
	d.recordStop(d.now())

	d.stopRequested.Store(false)
	d.setState(StateStopped)
	d.logger.Info("daemon stopped")
}

func (d *Daemon) recordStart(now time.Time) RestartState {
	if d.cfg.StateFile == "" {
		return RestartState{}.started(now, d.pid)
	}

	prev, err := LoadRestartState(d.cfg.StateFile)
	if err != nil {
		d.logger.Warn("ignoring unreadable state file", logger.Field{Key: "error", Value: err.Error()})
	}
	st := prev.started(now, d.pid)
	if err := SaveRestartState(d.cfg.StateFile, st); err != nil {
		d.logger.Error("failed to save state file", err)
	}
	return st
}

func (d *Daemon) recordStop(now time.Time) {
	if d.cfg.StateFile == "" {
		return
	}
	st := d.restart
	st.LastStop = now
	st.PID = 0
	if err := SaveRestartState(d.cfg.StateFile, st); err != nil {
		d.logger.Error("failed to save state file", err)
	}
}

func (d *Daemon) setState(s State) {
	d.state.Store(int32(s))
}

func (d *Daemon) active() bool {
	s := d.State()
	return s == StateRunning || s == StateReloadPending
}

// State returns the current lifecycle state.
func (d *Daemon) State() State {
	return State(d.state.Load())
}

// Health returns the last published health snapshot.
func (d *Daemon) Health() health.Status {
	if d.model == nil {
		return health.Status{}
	}
	return d.model.Get()
}

// Registry exposes the job registry for inspection. Mutating it outside the
// loop goroutine is not supported.
func (d *Daemon) Registry() *cron.Registry {
	return d.registry
}

// RestartState returns the bookkeeping recorded at Start.
func (d *Daemon) RestartState() RestartState {
	return d.restart
}

// PID returns the daemon process id once started.
func (d *Daemon) PID() int {
	return d.pid
}

// StartTime returns the instant Start completed detaching.
func (d *Daemon) StartTime() time.Time {
	return d.startTime
}
