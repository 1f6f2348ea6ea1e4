package daemon

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/nexbotd/internal/cron"
)

func TestMetrics_ObserveTick(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("nexbotd", reg)

	m.ObserveTick([]cron.RunResult{
		{JobID: "a", Duration: time.Second},
		{JobID: "b", Duration: 2 * time.Second, Err: fmt.Errorf("%w: exit 1", cron.ErrDispatchFailure)},
		{JobID: "c", Err: errors.New("circuit open")},
	}, 3, true)
	m.ObserveTick(nil, 3, false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ticks))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.jobsRegistered))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.healthy))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatchesTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatchesTotal.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatchesTotal.WithLabelValues("error")))
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("nexbotd", reg)

	m.IncReload()
	m.IncReload()
	m.IncUserAction()
	m.SetRestartCount(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.reloads))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.userActions))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.restarts))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTick([]cron.RunResult{{JobID: "a"}}, 1, true)
		m.IncReload()
		m.IncUserAction()
		m.SetRestartCount(1)
	})
}

func TestMetricsServer_ServesRegistry(t *testing.T) {
	reg := NewMetricsRegistry()
	m := NewMetrics("nexbotd", reg)
	m.IncReload()

	srv := NewMetricsServer("127.0.0.1:0", reg, nil)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop(testContext(t)) })

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "nexbotd_reloads_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestMetricsServer_StopBeforeStart(t *testing.T) {
	srv := NewMetricsServer("127.0.0.1:0", prometheus.NewRegistry(), nil)
	assert.NoError(t, srv.Stop(testContext(t)))
	assert.Equal(t, "127.0.0.1:0", srv.Addr())
}
