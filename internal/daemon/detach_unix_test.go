//go:build unix

package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

const (
	markerEnv  = "NEXBOTD_TEST_DETACH_MARKER"
	workdirEnv = "NEXBOTD_TEST_DETACH_WORKDIR"
	logEnv     = "NEXBOTD_TEST_DETACH_LOG"
)

// TestDetachHelperProcess is not a real test. It runs as the process being
// daemonized by TestProcessDetacher_DoubleFork.
func TestDetachHelperProcess(t *testing.T) {
	marker := os.Getenv(markerEnv)
	if marker == "" {
		t.Skip("helper process")
	}

	cfg := Config{
		WorkingDir:    os.Getenv(workdirEnv),
		LogFile:       os.Getenv(logEnv),
		DoubleFork:    true,
		RedirectStdio: true,
		Umask:         DefaultUmask,
	}
	err := ProcessDetacher{}.Detach(cfg)
	switch {
	case errors.Is(err, ErrDetachedParent):
		os.Exit(0)
	case err != nil:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	sid, _ := unix.Getsid(0)
	cwd, _ := os.Getwd()
	content := fmt.Sprintf("%d\n%d\n%s\n%s\n", os.Getpid(), sid, cwd, os.Getenv(StageEnv))
	_ = os.WriteFile(marker+".tmp", []byte(content), 0644)
	_ = os.Rename(marker+".tmp", marker)
	fmt.Println("daemon output")
	os.Exit(0)
}

func TestProcessDetacher_DoubleFork(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "marker")
	workdir := filepath.Join(dir, "work")
	logFile := filepath.Join(dir, "logs", "daemon.log")
	require.NoError(t, os.MkdirAll(workdir, 0755))

	cmd := exec.Command(os.Args[0], "-test.run=^TestDetachHelperProcess$")
	cmd.Env = append(withoutStage(os.Environ()),
		markerEnv+"="+marker,
		workdirEnv+"="+workdir,
		logEnv+"="+logFile,
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))

	var data []byte
	require.Eventually(t, func() bool {
		data, err = os.ReadFile(marker)
		return err == nil
	}, 10*time.Second, 20*time.Millisecond)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.GreaterOrEqual(t, len(lines), 3)

	pid, err := strconv.Atoi(lines[0])
	require.NoError(t, err)
	sid, err := strconv.Atoi(lines[1])
	require.NoError(t, err)

	ourSID, err := unix.Getsid(0)
	require.NoError(t, err)

	assert.NotEqual(t, ourSID, sid, "daemon must run in its own session")
	assert.NotEqual(t, pid, sid, "daemon must not be a session leader")
	assert.NotEqual(t, cmd.Process.Pid, pid)

	want, err := filepath.EvalSymlinks(workdir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(lines[2])
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.Len(t, lines, 3, "stage variable must be cleared in the daemon")

	assert.Eventually(t, func() bool {
		logData, err := os.ReadFile(logFile)
		return err == nil && strings.Contains(string(logData), "daemon output")
	}, 5*time.Second, 20*time.Millisecond)
}

func TestProcessDetacher_UnknownStage(t *testing.T) {
	t.Setenv(StageEnv, "9")

	err := ProcessDetacher{}.Detach(Config{DoubleFork: true})
	assert.ErrorIs(t, err, ErrDaemonize)
}

func TestProcessDetacher_CommandEnv(t *testing.T) {
	p := ProcessDetacher{
		Executable: "/usr/bin/nexbotd",
		Args:       []string{"nexbotd", "start", "--config", "/etc/nexbotd.toml"},
		Env:        []string{"HOME=/root", StageEnv + "=1"},
	}

	cmd, err := p.command("2")
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/nexbotd", cmd.Path)
	assert.Equal(t, []string{"/usr/bin/nexbotd", "start", "--config", "/etc/nexbotd.toml"}, cmd.Args)
	assert.Equal(t, []string{"HOME=/root", StageEnv + "=2"}, cmd.Env)
}

func TestOpenStdioTarget(t *testing.T) {
	f, err := openStdioTarget("")
	require.NoError(t, err)
	assert.Equal(t, os.DevNull, f.Name())
	require.NoError(t, f.Close())

	path := filepath.Join(t.TempDir(), "nested", "out.log")
	f, err = openStdioTarget(path)
	require.NoError(t, err)
	_, err = f.WriteString("line\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = openStdioTarget(path)
	require.NoError(t, err)
	_, err = f.WriteString("more\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line\nmore\n", string(data))
}
