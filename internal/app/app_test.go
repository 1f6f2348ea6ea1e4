package app

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/nexbotd/internal/config"
	"github.com/aatumaykin/nexbotd/internal/cron"
	"github.com/aatumaykin/nexbotd/internal/daemon"
	"github.com/aatumaykin/nexbotd/internal/ipc"
)

type noDetach struct{}

func (noDetach) Detach(daemon.Config) error { return nil }

const heartbeatFile = `# Heartbeat Tasks

### Nightly Report
- Schedule: "0 2 * * *"
- Command: "echo report"
`

// writeConfig writes a config file rooted at a fresh workspace and returns
// its path and the parsed configuration.
func writeConfig(t *testing.T, extra string) (string, *config.Config) {
	t.Helper()
	ws := t.TempDir()
	path := filepath.Join(ws, "config.toml")
	content := "[workspace]\npath = \"" + ws + "\"\n[cron]\ntimezone = \"UTC\"\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Empty(t, cfg.Validate())
	return path, cfg
}

func newApp(t *testing.T, path string, cfg *config.Config, opts ...daemon.Option) *App {
	t.Helper()
	a := New(cfg, path, nil, append([]daemon.Option{daemon.WithDetacher(noDetach{})}, opts...)...)
	t.Cleanup(func() { _ = a.Shutdown() })
	return a
}

func TestInitialize(t *testing.T) {
	path, cfg := writeConfig(t, "")
	a := newApp(t, path, cfg)

	require.NoError(t, a.Initialize())
	require.NotNil(t, a.Daemon())
	assert.Equal(t, daemon.StateCreated, a.Daemon().State())

	for _, dir := range []string{"run", "logs", "cron"} {
		assert.DirExists(t, filepath.Join(cfg.Workspace.Path, dir))
	}
	assert.Nil(t, a.watcher)
	assert.Nil(t, a.metricsSv)
}

func TestLoadJobs_MergesSources(t *testing.T) {
	path, cfg := writeConfig(t, "[heartbeat]\nenabled = true\n")
	a := newApp(t, path, cfg)
	require.NoError(t, a.Initialize())

	_, err := cron.NewStorage(cfg.Cron.JobsFile, nil).Upsert(cron.JobSpec{ID: "backup", Schedule: "0 3 * * *", Command: "true"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Workspace.Path, "HEARTBEAT.md"), []byte(heartbeatFile), 0644))

	specs, err := a.LoadJobs()
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "backup", specs[0].ID)
	assert.Equal(t, "heartbeat_nightly_report", specs[1].ID)
}

func TestStartDispatchesJobs(t *testing.T) {
	path, cfg := writeConfig(t, "")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := newApp(t, path, cfg, daemon.WithClock(func() time.Time { return start }))

	_, err := cron.NewStorage(cfg.Cron.JobsFile, nil).Upsert(cron.JobSpec{
		ID:       "touch",
		Schedule: "1 0 * * *",
		Command:  "echo ran > ran.txt",
	})
	require.NoError(t, err)

	require.NoError(t, a.Initialize())
	d := a.Daemon()
	require.NoError(t, d.Start(testContext(t)))
	assert.Equal(t, 1, d.Registry().Len())

	require.True(t, d.RunOnce(testContext(t), start.Add(time.Minute)))
	// Health is sampled before dispatch, so the next tick reports the run.
	require.True(t, d.RunOnce(testContext(t), start.Add(2*time.Minute)))

	data, err := os.ReadFile(filepath.Join(cfg.Workspace.Path, "ran.txt"))
	require.NoError(t, err)
	assert.Equal(t, "ran\n", string(data))

	status := d.Health()
	assert.True(t, status.Healthy)
	assert.Equal(t, uint64(1), status.MessagesProcessed)
}

func TestRun_StopsOnRequest(t *testing.T) {
	path, cfg := writeConfig(t, "")
	a := newApp(t, path, cfg)
	require.NoError(t, a.Initialize())
	d := a.Daemon()

	done := make(chan error, 1)
	go func() { done <- a.Run(testContext(t)) }()

	require.Eventually(t, func() bool { return d.State() == daemon.StateRunning }, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(testContext(t), 2*time.Second)
	defer cancel()
	status, err := ipc.QueryHealth(ctx, cfg.Health.Socket)
	require.NoError(t, err)
	assert.True(t, status.Healthy)

	d.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.NoFileExists(t, cfg.Daemon.PIDFile)
}

func TestRun_DetachedParent(t *testing.T) {
	path, cfg := writeConfig(t, "")
	a := newApp(t, path, cfg, daemon.WithDetacher(detachParent{}))

	err := a.Run(testContext(t))
	assert.ErrorIs(t, err, daemon.ErrDetachedParent)
	assert.NoFileExists(t, cfg.Daemon.PIDFile)
}

type detachParent struct{}

func (detachParent) Detach(daemon.Config) error { return daemon.ErrDetachedParent }

func TestReload_PicksUpConfigChanges(t *testing.T) {
	path, cfg := writeConfig(t, "")
	a := newApp(t, path, cfg)
	require.NoError(t, a.Initialize())
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Workspace.Path, "HEARTBEAT.md"), []byte(heartbeatFile), 0644))

	specs, err := a.LoadJobs()
	require.NoError(t, err)
	assert.Empty(t, specs)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(content, []byte("[heartbeat]\nenabled = true\n")...), 0644))

	require.NoError(t, a.reload())
	assert.True(t, a.Config().Heartbeat.Enabled)

	specs, err = a.LoadJobs()
	require.NoError(t, err)
	require.Len(t, specs, 1)
}

func TestReload_InvalidConfigKeepsCurrent(t *testing.T) {
	path, cfg := writeConfig(t, "")
	a := newApp(t, path, cfg)
	require.NoError(t, a.Initialize())

	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlevel = \"loud\"\n"), 0644))
	err := a.reload()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
	assert.Same(t, cfg, a.Config())

	require.NoError(t, os.WriteFile(path, []byte("not toml ["), 0644))
	assert.Error(t, a.reload())
	assert.Same(t, cfg, a.Config())
}

func TestReload_WithoutConfigFile(t *testing.T) {
	_, cfg := writeConfig(t, "")
	a := newApp(t, "", cfg)
	require.NoError(t, a.Initialize())
	assert.NoError(t, a.reload())
}

func TestMetricsEndpoint(t *testing.T) {
	path, cfg := writeConfig(t, "[metrics]\nenabled = true\nlisten = \"127.0.0.1:0\"\n")
	a := newApp(t, path, cfg)
	require.NoError(t, a.Initialize())
	require.NoError(t, a.Daemon().Start(testContext(t)))
	a.startAuxiliary(testContext(t))
	require.NotNil(t, a.metricsSv)

	a.Daemon().RunOnce(testContext(t), time.Now())

	resp, err := http.Get("http://" + a.metricsSv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "nexbotd_scheduler_ticks_total 1"), string(body))

	require.NoError(t, a.Shutdown())
	assert.Nil(t, a.metricsSv)
}

func TestFileWatcherTriggersReload(t *testing.T) {
	path, cfg := writeConfig(t, "[daemon]\nwatch_files = true\n")
	a := newApp(t, path, cfg)
	require.NoError(t, a.Initialize())
	require.NotNil(t, a.watcher)
	assert.Equal(t, 2, a.watcher.Files())

	d := a.Daemon()
	require.NoError(t, d.Start(testContext(t)))
	a.startAuxiliary(testContext(t))
	time.Sleep(100 * time.Millisecond)

	_, err := cron.NewStorage(cfg.Cron.JobsFile, nil).Upsert(cron.JobSpec{ID: "new", Schedule: "0 * * * *", Command: "true"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return d.State() == daemon.StateReloadPending }, 5*time.Second, 20*time.Millisecond)
	require.True(t, d.RunOnce(testContext(t), time.Now()))
	assert.Equal(t, 1, d.Registry().Len())
}
