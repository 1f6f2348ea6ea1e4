package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/nexbotd/internal/health"
)

type staticSource health.Status

func (s staticSource) Get() health.Status { return health.Status(s) }

func socketPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "h.sock")
}

func startServer(t *testing.T, path string, src StatusSource) *HealthServer {
	t.Helper()
	srv := NewHealthServer(path, src, nil)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

func TestHealthServer_ServesModelSnapshot(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	model := health.NewModel(start, health.ProbeFuncs{Channel: func() bool { return false }}, nil)
	model.SetRestartInfo(3, start)
	model.Update(start.Add(time.Hour))

	path := socketPath(t)
	startServer(t, path, model)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	status, err := QueryHealth(ctx, path)
	require.NoError(t, err)
	assert.False(t, status.Healthy)
	assert.False(t, status.ChannelHealthy)
	assert.True(t, status.ProviderHealthy)
	assert.Equal(t, 3, status.RestartCount)
	assert.Equal(t, time.Hour, status.Uptime)
	assert.True(t, status.LastRestart.Equal(start))
}

func TestHealthServer_RequestLineIsOptional(t *testing.T) {
	path := socketPath(t)
	startServer(t, path, staticSource{Healthy: true, MessagesProcessed: 9})

	conn, err := net.DialTimeout("unix", path, time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var status health.Status
	require.NoError(t, json.Unmarshal(line, &status))
	assert.True(t, status.Healthy)
	assert.Equal(t, uint64(9), status.MessagesProcessed)
}

func TestHealthServer_SequentialQueries(t *testing.T) {
	path := socketPath(t)
	startServer(t, path, staticSource{Healthy: true})

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		status, err := QueryHealth(ctx, path)
		cancel()
		require.NoError(t, err)
		assert.True(t, status.Healthy)
	}
}

func TestHealthServer_LiveListenerIsBindError(t *testing.T) {
	path := socketPath(t)
	startServer(t, path, staticSource{Healthy: true})

	second := NewHealthServer(path, staticSource{}, nil)
	err := second.Start()
	assert.ErrorIs(t, err, ErrBind)

	// The first server keeps its socket.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = QueryHealth(ctx, path)
	assert.NoError(t, err)
}

func TestHealthServer_StaleSocketIsReplaced(t *testing.T) {
	path := socketPath(t)

	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	ln.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, ln.Close())

	_, err = os.Stat(path)
	require.NoError(t, err, "stale socket file should remain")

	startServer(t, path, staticSource{Healthy: true})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	status, err := QueryHealth(ctx, path)
	require.NoError(t, err)
	assert.True(t, status.Healthy)
}

func TestHealthServer_StopRemovesSocket(t *testing.T) {
	path := socketPath(t)
	srv := NewHealthServer(path, staticSource{}, nil)
	require.NoError(t, srv.Start())

	require.NoError(t, srv.Stop())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, srv.Stop())

	// Restart recreates the endpoint.
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop() })
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestQueryHealth_NoServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := QueryHealth(ctx, socketPath(t))
	assert.Error(t, err)
}

func TestQueryHealth_SilentServerTimesOut(t *testing.T) {
	path := socketPath(t)
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	held := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			held <- conn
		}
	}()
	t.Cleanup(func() {
		select {
		case conn := <-held:
			conn.Close()
		default:
		}
	})

	prev := defaultQueryTimeout
	defaultQueryTimeout = 200 * time.Millisecond
	t.Cleanup(func() { defaultQueryTimeout = prev })

	start := time.Now()
	_, err = QueryHealth(context.Background(), path)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
