package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/nexbotd/internal/cron"
	"github.com/aatumaykin/nexbotd/internal/health"
)

func job(id, command string) cron.Job {
	return cron.Job{ID: id, Name: id, Command: command}
}

func TestCommandRunner_Success(t *testing.T) {
	dir := t.TempDir()
	r := NewCommandRunner(Config{WorkDir: dir}, nil)

	err := r.Dispatch(context.Background(), job("write", "echo hello > out.txt"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	c := r.Counters()
	assert.Equal(t, uint64(1), c.MessagesProcessed)
	assert.Equal(t, uint64(1), c.APICalls)
	assert.Zero(t, c.Errors)
	assert.Positive(t, c.AvgResponseTime)
}

func TestCommandRunner_JobEnvironment(t *testing.T) {
	r := NewCommandRunner(Config{Env: []string{"EXTRA=1"}}, nil)

	err := r.Dispatch(context.Background(), cron.Job{ID: "j1", Name: "daily", Command: `test "$NEXBOT_JOB_ID" = j1 && test "$NEXBOT_JOB_NAME" = daily && test "$EXTRA" = 1`})
	assert.NoError(t, err)
}

func TestCommandRunner_Failure(t *testing.T) {
	r := NewCommandRunner(Config{}, nil)

	err := r.Dispatch(context.Background(), job("fail", "echo oops; exit 3"))
	require.Error(t, err)
	assert.Equal(t, 3, exitCode(err))

	c := r.Counters()
	assert.Equal(t, uint64(1), c.APICalls)
	assert.Equal(t, uint64(1), c.Errors)
	assert.Zero(t, c.MessagesProcessed)
}

func TestCommandRunner_Timeout(t *testing.T) {
	r := NewCommandRunner(Config{Timeout: 200 * time.Millisecond}, nil)

	started := time.Now()
	err := r.Dispatch(context.Background(), job("slow", "sleep 5"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(started), 4*time.Second)
}

func TestCommandRunner_EmptyCommand(t *testing.T) {
	r := NewCommandRunner(Config{}, nil)

	err := r.Dispatch(context.Background(), job("empty", "   "))
	assert.ErrorIs(t, err, ErrEmptyCommand)
	assert.Zero(t, r.Counters().APICalls)
}

func TestCommandRunner_BreakerMarksProviderUnhealthy(t *testing.T) {
	r := NewCommandRunner(Config{FailureThreshold: 2, Cooldown: time.Hour}, nil)
	assert.True(t, r.ProviderHealthy())

	for i := 0; i < 2; i++ {
		require.Error(t, r.Dispatch(context.Background(), job("bad", "false")))
	}

	assert.False(t, r.ProviderHealthy())
	assert.Equal(t, BreakerOpen, r.BreakerState())

	err := r.Dispatch(context.Background(), job("good", "true"))
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, uint64(2), r.Counters().APICalls)
}

func TestCommandRunner_Probes(t *testing.T) {
	var _ health.Probes = (*CommandRunner)(nil)
	var _ health.CounterSource = (*CommandRunner)(nil)
	var _ cron.Dispatcher = (*CommandRunner)(nil)

	dir := t.TempDir()
	assert.True(t, NewCommandRunner(Config{WorkDir: dir}, nil).MemoryHealthy())
	assert.False(t, NewCommandRunner(Config{WorkDir: filepath.Join(dir, "missing")}, nil).MemoryHealthy())
	assert.True(t, NewCommandRunner(Config{}, nil).ChannelHealthy())
}

func TestTail(t *testing.T) {
	assert.Equal(t, "abc", tail("  abc\n", 10))
	assert.Equal(t, "...cde", tail("abcde", 3))
}
