// Package agent is the daemon's boundary to the agent runtime. CommandRunner
// executes a job's command through the shell and reports the counters and
// liveness flags the health model aggregates.
package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aatumaykin/nexbotd/internal/cron"
	"github.com/aatumaykin/nexbotd/internal/health"
	"github.com/aatumaykin/nexbotd/internal/logger"
)

var (
	// ErrEmptyCommand is returned for jobs without a command.
	ErrEmptyCommand = errors.New("job has no command")

	// ErrProviderUnavailable is returned while the breaker is open.
	ErrProviderUnavailable = errors.New("agent runtime unavailable")
)

const maxOutputLog = 2048

// Config configures CommandRunner.
type Config struct {
	Shell            string
	WorkDir          string
	Timeout          time.Duration
	FailureThreshold int
	Cooldown         time.Duration
	Env              []string
}

// CommandRunner implements cron.Dispatcher.
type CommandRunner struct {
	cfg     Config
	logger  *logger.Logger
	breaker *Breaker

	messages     atomic.Uint64
	calls        atomic.Uint64
	errors       atomic.Uint64
	totalLatency atomic.Int64
}

// NewCommandRunner creates a runner. Zero config values fall back to
// /bin/sh, a five minute timeout and a breaker tripping after three
// consecutive failures.
func NewCommandRunner(cfg Config, log *logger.Logger) *CommandRunner {
	if cfg.Shell == "" {
		cfg.Shell = "/bin/sh"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if log == nil {
		log = logger.Discard()
	}
	return &CommandRunner{
		cfg:     cfg,
		logger:  log.With(logger.Field{Key: "component", Value: "agent"}),
		breaker: NewBreaker(cfg.FailureThreshold, cfg.Cooldown, nil),
	}
}

// Dispatch runs job.Command and blocks until it exits or the timeout fires.
func (r *CommandRunner) Dispatch(ctx context.Context, job cron.Job) error {
	command := strings.TrimSpace(job.Command)
	if command == "" {
		return fmt.Errorf("%w: %s", ErrEmptyCommand, job.ID)
	}
	if !r.breaker.Allow() {
		return fmt.Errorf("%w: %d consecutive failures", ErrProviderUnavailable, r.breaker.Failures())
	}

	r.calls.Add(1)
	started := time.Now()
	output, err := r.run(ctx, job, command)
	r.totalLatency.Add(int64(time.Since(started)))

	if err != nil {
		r.errors.Add(1)
		r.breaker.RecordFailure()
		r.logger.Error("job command failed", err,
			logger.Field{Key: "job_id", Value: job.ID},
			logger.Field{Key: "exit_code", Value: exitCode(err)},
			logger.Field{Key: "output", Value: tail(output, maxOutputLog)})
		return err
	}

	r.messages.Add(1)
	r.breaker.RecordSuccess()
	r.logger.Info("job command succeeded",
		logger.Field{Key: "job_id", Value: job.ID},
		logger.Field{Key: "duration", Value: time.Since(started).String()})
	r.logger.Debug("job command output",
		logger.Field{Key: "job_id", Value: job.ID},
		logger.Field{Key: "output", Value: tail(output, maxOutputLog)})
	return nil
}

func (r *CommandRunner) run(ctx context.Context, job cron.Job, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.cfg.Shell, "-c", command)
	cmd.Dir = r.cfg.WorkDir
	cmd.Env = append(os.Environ(), r.cfg.Env...)
	cmd.Env = append(cmd.Env,
		"NEXBOT_JOB_ID="+job.ID,
		"NEXBOT_JOB_NAME="+job.Name)

	// Run in its own process group so a timeout kills grandchildren too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return out.String(), fmt.Errorf("command timed out after %s: %w", r.cfg.Timeout, ctx.Err())
	}
	if err != nil {
		return out.String(), fmt.Errorf("command failed: %w", err)
	}
	return out.String(), nil
}

// Counters implements health.CounterSource.
func (r *CommandRunner) Counters() health.Counters {
	c := health.Counters{
		MessagesProcessed: r.messages.Load(),
		APICalls:          r.calls.Load(),
		Errors:            r.errors.Load(),
	}
	if c.APICalls > 0 {
		c.AvgResponseTime = time.Duration(r.totalLatency.Load() / int64(c.APICalls))
	}
	return c
}

// ProviderHealthy is false while the breaker is open.
func (r *CommandRunner) ProviderHealthy() bool {
	return r.breaker.State() != BreakerOpen
}

// MemoryHealthy checks that the working directory is usable.
func (r *CommandRunner) MemoryHealthy() bool {
	if r.cfg.WorkDir == "" {
		return true
	}
	info, err := os.Stat(r.cfg.WorkDir)
	return err == nil && info.IsDir()
}

// ChannelHealthy always reports true: no chat channel is attached to the runner.
func (r *CommandRunner) ChannelHealthy() bool {
	return true
}

// BreakerState exposes the breaker for status output.
func (r *CommandRunner) BreakerState() BreakerState {
	return r.breaker.State()
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
