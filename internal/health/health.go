// Package health holds the daemon's health snapshot and the model that
// rebuilds it from the agent runtime's probes and counters.
package health

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Status is a point-in-time health snapshot. It is never mutated after it
// has been published.
type Status struct {
	Healthy      bool          `json:"healthy"`
	Uptime       time.Duration `json:"uptime_ns"`
	UptimeText   string        `json:"uptime"`
	RestartCount int           `json:"restart_count"`
	LastRestart  time.Time     `json:"last_restart,omitzero"`

	ProviderHealthy bool `json:"provider_healthy"`
	MemoryHealthy   bool `json:"memory_healthy"`
	ChannelHealthy  bool `json:"channel_healthy"`

	MessagesProcessed uint64        `json:"messages_processed"`
	APICalls          uint64        `json:"api_calls"`
	Errors            uint64        `json:"errors"`
	AvgResponseTime   time.Duration `json:"avg_response_time_ns"`

	UpdatedAt time.Time `json:"updated_at"`
}

// MarshalLine encodes the status as a single JSON line terminated by '\n'.
func (s Status) MarshalLine() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Probes reports component liveness.
type Probes interface {
	ProviderHealthy() bool
	MemoryHealthy() bool
	ChannelHealthy() bool
}

// Counters are the agent runtime's activity counters.
type Counters struct {
	MessagesProcessed uint64
	APICalls          uint64
	Errors            uint64
	AvgResponseTime   time.Duration
}

// CounterSource supplies Counters.
type CounterSource interface {
	Counters() Counters
}

// ProbeFuncs adapts plain functions to Probes. A nil function reports healthy.
type ProbeFuncs struct {
	Provider func() bool
	Memory   func() bool
	Channel  func() bool
}

func (p ProbeFuncs) ProviderHealthy() bool { return call(p.Provider) }
func (p ProbeFuncs) MemoryHealthy() bool   { return call(p.Memory) }
func (p ProbeFuncs) ChannelHealthy() bool  { return call(p.Channel) }

func call(f func() bool) bool {
	if f == nil {
		return true
	}
	return f()
}

// Model aggregates probes and counters into a Status. Update is called by
// the daemon loop only; Get may be called from any goroutine.
type Model struct {
	probes   Probes
	counters CounterSource

	mu           sync.Mutex
	startTime    time.Time
	restartCount int
	lastRestart  time.Time

	current atomic.Pointer[Status]
}

// NewModel creates a model whose uptime is measured from start. Nil
// collaborators report healthy and zero counters.
func NewModel(start time.Time, probes Probes, counters CounterSource) *Model {
	if probes == nil {
		probes = ProbeFuncs{}
	}
	m := &Model{
		probes:    probes,
		counters:  counters,
		startTime: start,
	}
	m.current.Store(&Status{Healthy: true, UpdatedAt: start})
	return m
}

// StartTime returns the instant uptime is measured from.
func (m *Model) StartTime() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startTime
}

// SetRestartInfo records restart bookkeeping carried into every snapshot.
func (m *Model) SetRestartInfo(count int, last time.Time) {
	m.mu.Lock()
	m.restartCount = count
	m.lastRestart = last
	m.mu.Unlock()
}

// Update rebuilds the snapshot and publishes it atomically.
func (m *Model) Update(now time.Time) Status {
	m.mu.Lock()
	start, count, last := m.startTime, m.restartCount, m.lastRestart
	m.mu.Unlock()

	s := Status{
		ProviderHealthy: m.probes.ProviderHealthy(),
		MemoryHealthy:   m.probes.MemoryHealthy(),
		ChannelHealthy:  m.probes.ChannelHealthy(),
		RestartCount:    count,
		LastRestart:     last,
		UpdatedAt:       now,
	}
	s.Healthy = s.ProviderHealthy && s.MemoryHealthy && s.ChannelHealthy

	if uptime := now.Sub(start); uptime > 0 {
		s.Uptime = uptime
	}
	s.UptimeText = s.Uptime.Truncate(time.Second).String()

	if m.counters != nil {
		c := m.counters.Counters()
		s.MessagesProcessed = c.MessagesProcessed
		s.APICalls = c.APICalls
		s.Errors = c.Errors
		s.AvgResponseTime = c.AvgResponseTime
	}

	m.current.Store(&s)
	return s
}

// Get returns a copy of the last published snapshot.
func (m *Model) Get() Status {
	return *m.current.Load()
}
