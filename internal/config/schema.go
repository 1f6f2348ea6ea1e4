// Package config provides configuration loading and validation for nexbotd.
// It supports TOML configuration files with environment variable expansion,
// default values, and validation.
//
// Configuration structure:
//   - [workspace]: Workspace directory; other paths default under it
//   - [daemon]: PID file, state file, detaching, umask and tick interval
//   - [health]: Health socket location
//   - [cron]: Job list file and evaluation time zone
//   - [heartbeat]: HEARTBEAT.md task loading
//   - [agent]: Command runner used to dispatch jobs
//   - [metrics]: Prometheus endpoint
//   - [logging]: Logging level, format, and output
//
// Environment variables:
// Environment variables can be referenced using ${VAR} or ${VAR:default} syntax.
// For example: pid_file = "${NEXBOTD_PID_FILE:/run/nexbotd.pid}"
package config

import "path/filepath"

const (
	// RunSubdirectory holds the PID file, state file and health socket.
	RunSubdirectory = "run"
	// LogSubdirectory holds the daemon log when detached.
	LogSubdirectory = "logs"
	// CronSubdirectory is the subdirectory name for cron jobs within workspace
	CronSubdirectory = "cron"
)

// Config represents the main application configuration.
type Config struct {
	Workspace WorkspaceConfig `toml:"workspace"`
	Daemon    DaemonConfig    `toml:"daemon"`
	Health    HealthConfig    `toml:"health"`
	Cron      CronConfig      `toml:"cron"`
	Heartbeat HeartbeatConfig `toml:"heartbeat"`
	Agent     AgentConfig     `toml:"agent"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Logging   LoggingConfig   `toml:"logging"`
}

// WorkspaceConfig представляет конфигурацию workspace
type WorkspaceConfig struct {
	Path string `toml:"path"`
}

// DaemonConfig представляет конфигурацию процесса демона
type DaemonConfig struct {
	PIDFile       string `toml:"pid_file"`
	StateFile     string `toml:"state_file"`
	LogFile       string `toml:"log_file"`
	WorkingDir    string `toml:"working_dir"`
	Detach        bool   `toml:"detach"`
	RedirectStdio bool   `toml:"redirect_stdio"`
	Umask         string `toml:"umask"`
	TickSeconds   int    `toml:"tick_seconds"`
	WatchFiles    bool   `toml:"watch_files"`
}

// HealthConfig представляет конфигурацию health socket
type HealthConfig struct {
	Disabled bool   `toml:"disabled"`
	Socket   string `toml:"socket"`
}

// CronConfig представляет конфигурацию cron
type CronConfig struct {
	JobsFile string `toml:"jobs_file"`
	Timezone string `toml:"timezone"`
}

// JobsDir возвращает путь к директории для хранения cron jobs
func (c *CronConfig) JobsDir(workspacePath string) string {
	return filepath.Join(workspacePath, CronSubdirectory)
}

// HeartbeatConfig представляет конфигурацию HEARTBEAT loader
type HeartbeatConfig struct {
	Enabled bool `toml:"enabled"`
}

// AgentConfig представляет конфигурацию исполнителя задач
type AgentConfig struct {
	Shell            string   `toml:"shell"`
	WorkDir          string   `toml:"work_dir"`
	TimeoutSeconds   int      `toml:"timeout_seconds"`
	FailureThreshold int      `toml:"failure_threshold"`
	CooldownSeconds  int      `toml:"cooldown_seconds"`
	Env              []string `toml:"env"`
}

// MetricsConfig представляет конфигурацию Prometheus endpoint
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Listen    string `toml:"listen"`
	Namespace string `toml:"namespace"`
}

// LoggingConfig представляет конфигурацию логирования
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}
