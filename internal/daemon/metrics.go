package daemon

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aatumaykin/nexbotd/internal/cron"
)

// Metrics exports scheduler activity. A nil *Metrics records nothing.
type Metrics struct {
	ticks            prometheus.Counter
	reloads          prometheus.Counter
	userActions      prometheus.Counter
	dispatchesTotal  *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	jobsRegistered   prometheus.Gauge
	healthy          prometheus.Gauge
	restarts         prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg
// (prometheus.DefaultRegisterer when nil).
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_ticks_total",
			Help:      "Number of scheduler loop iterations",
		}),
		reloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reloads_total",
			Help:      "Number of configuration reloads",
		}),
		userActions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "user_actions_total",
			Help:      "Number of user-defined actions triggered by signal",
		}),
		dispatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_dispatches_total",
				Help:      "Cron job dispatches by result",
			},
			[]string{"result"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_dispatch_duration_seconds",
				Help:      "Duration of cron job dispatches",
				Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"result"},
		),
		jobsRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_registered",
			Help:      "Number of jobs in the registry",
		}),
		healthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "healthy",
			Help:      "1 when every component reports healthy",
		}),
		restarts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "restart_count",
			Help:      "Number of daemon restarts recorded in the state file",
		}),
	}

	reg.MustRegister(
		m.ticks,
		m.reloads,
		m.userActions,
		m.dispatchesTotal,
		m.dispatchDuration,
		m.jobsRegistered,
		m.healthy,
		m.restarts,
	)
	return m
}

// ObserveTick records one loop iteration.
func (m *Metrics) ObserveTick(results []cron.RunResult, jobs int, healthy bool) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.jobsRegistered.Set(float64(jobs))
	if healthy {
		m.healthy.Set(1)
	} else {
		m.healthy.Set(0)
	}
	for _, res := range results {
		label := dispatchResult(res.Err)
		m.dispatchesTotal.WithLabelValues(label).Inc()
		m.dispatchDuration.WithLabelValues(label).Observe(res.Duration.Seconds())
	}
}

func (m *Metrics) IncReload() {
	if m != nil {
		m.reloads.Inc()
	}
}

func (m *Metrics) IncUserAction() {
	if m != nil {
		m.userActions.Inc()
	}
}

func (m *Metrics) SetRestartCount(n int) {
	if m != nil {
		m.restarts.Set(float64(n))
	}
}

func dispatchResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, cron.ErrDispatchFailure):
		return "failure"
	default:
		return "error"
	}
}
