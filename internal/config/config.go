package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/aatumaykin/nexbotd/internal/daemon"
)

// Load загружает конфигурацию из TOML файла
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse разбирает TOML и применяет значения по умолчанию
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := expandEnvVars(&cfg); err != nil {
		return nil, fmt.Errorf("failed to expand environment variables: %w", err)
	}

	applyPathDefaults(&cfg)

	return &cfg, nil
}

// Default возвращает конфигурацию без файла: только значения по умолчанию
func Default() *Config {
	cfg, _ := Parse(nil)
	return cfg
}

// Validate проверяет валидность конфигурации
func (c *Config) Validate() []error {
	var errors []error

	// Проверка workspace
	if c.Workspace.Path == "" {
		errors = append(errors, fmt.Errorf("workspace.path is required"))
	} else if err := validatePath(c.Workspace.Path, "workspace.path"); err != nil {
		errors = append(errors, err)
	}

	// Проверка daemon
	if c.Daemon.PIDFile == "" {
		errors = append(errors, fmt.Errorf("daemon.pid_file is required"))
	}
	if _, err := parseUmask(c.Daemon.Umask); err != nil {
		errors = append(errors, err)
	}
	if c.Daemon.TickSeconds < 1 || c.Daemon.TickSeconds > 60 {
		errors = append(errors, fmt.Errorf("daemon.tick_seconds must be between 1 and 60 (got %d)", c.Daemon.TickSeconds))
	}
	for field, path := range map[string]string{
		"daemon.pid_file":    c.Daemon.PIDFile,
		"daemon.state_file":  c.Daemon.StateFile,
		"daemon.log_file":    c.Daemon.LogFile,
		"daemon.working_dir": c.Daemon.WorkingDir,
		"health.socket":      c.Health.Socket,
		"cron.jobs_file":     c.Cron.JobsFile,
		"agent.work_dir":     c.Agent.WorkDir,
	} {
		if path == "" {
			continue
		}
		if err := validatePath(path, field); err != nil {
			errors = append(errors, err)
		}
	}

	// Проверка cron
	if _, err := c.Location(); err != nil {
		errors = append(errors, err)
	}

	// Проверка agent
	if c.Agent.TimeoutSeconds < 1 {
		errors = append(errors, fmt.Errorf("agent.timeout_seconds must be >= 1"))
	}
	if c.Agent.FailureThreshold < 1 {
		errors = append(errors, fmt.Errorf("agent.failure_threshold must be >= 1"))
	}
	if c.Agent.CooldownSeconds < 0 {
		errors = append(errors, fmt.Errorf("agent.cooldown_seconds cannot be negative"))
	}
	for _, kv := range c.Agent.Env {
		if key, _, ok := strings.Cut(kv, "="); !ok || key == "" {
			errors = append(errors, formatValidationError("agent.env", "entry must have the form KEY=VALUE", kv))
		}
	}

	// Проверка metrics
	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			errors = append(errors, fmt.Errorf("invalid metrics.listen %q: %w", c.Metrics.Listen, err))
		}
	}

	// Проверка logging config
	if c.Logging.Level == "" {
		errors = append(errors, fmt.Errorf("logging.level is required"))
	} else {
		validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
		if !validLevels[strings.ToLower(c.Logging.Level)] {
			errors = append(errors, fmt.Errorf("invalid logging.level: %s (expected: debug, info, warn, error)", c.Logging.Level))
		}
	}

	if c.Logging.Format == "" {
		errors = append(errors, fmt.Errorf("logging.format is required"))
	} else {
		validFormats := map[string]bool{"json": true, "text": true}
		if !validFormats[strings.ToLower(c.Logging.Format)] {
			errors = append(errors, fmt.Errorf("invalid logging.format: %s (expected: json, text)", c.Logging.Format))
		}
	}

	if c.Logging.Output == "" {
		errors = append(errors, fmt.Errorf("logging.output is required"))
	}

	return errors
}

// Location возвращает часовой пояс для вычисления расписаний
func (c *Config) Location() (*time.Location, error) {
	if c.Cron.Timezone == "" || strings.EqualFold(c.Cron.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Cron.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid cron.timezone %q: %w", c.Cron.Timezone, err)
	}
	return loc, nil
}

// DaemonConfig переводит секции [daemon], [health] и [cron] в daemon.Config.
// Относительные пути разрешаются от текущего каталога.
func (c *Config) DaemonConfig() (daemon.Config, error) {
	umask, err := parseUmask(c.Daemon.Umask)
	if err != nil {
		return daemon.Config{}, err
	}
	loc, err := c.Location()
	if err != nil {
		return daemon.Config{}, err
	}

	dc := daemon.Config{
		DoubleFork:    c.Daemon.Detach,
		RedirectStdio: c.Daemon.RedirectStdio,
		Umask:         umask,
		TickInterval:  time.Duration(c.Daemon.TickSeconds) * time.Second,
		Location:      loc,
	}

	targets := []struct {
		dst *string
		src string
	}{
		{&dc.PIDFile, c.Daemon.PIDFile},
		{&dc.StateFile, c.Daemon.StateFile},
		{&dc.LogFile, c.Daemon.LogFile},
		{&dc.WorkingDir, c.Daemon.WorkingDir},
	}
	if !c.Health.Disabled {
		targets = append(targets, struct {
			dst *string
			src string
		}{&dc.HealthSocket, c.Health.Socket})
	}
	for _, t := range targets {
		if t.src == "" {
			continue
		}
		abs, err := filepath.Abs(t.src)
		if err != nil {
			return daemon.Config{}, fmt.Errorf("failed to resolve %s: %w", t.src, err)
		}
		*t.dst = abs
	}

	return dc, nil
}

// Foreground отключает отсоединение от терминала и перенаправление stdio
func (c *Config) Foreground() {
	c.Daemon.Detach = false
	c.Daemon.RedirectStdio = false
}

// Helper validation functions
func validatePath(path, fieldName string) error {
	if path == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}

	if strings.HasPrefix(path, "~") {
		return nil
	}

	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("%s contains potentially dangerous path traversal sequence", fieldName)
		}
	}

	return nil
}

func parseUmask(s string) (int, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0o"), 8, 32)
	if err != nil || v > 0o777 {
		return 0, fmt.Errorf("invalid daemon.umask %q (expected octal, e.g. 022)", s)
	}
	return int(v), nil
}

// applyDefaults применяет значения по умолчанию
func applyDefaults(c *Config) {
	if c.Workspace.Path == "" {
		c.Workspace.Path = "~/.nexbot"
	}

	if c.Daemon.Umask == "" {
		c.Daemon.Umask = "022"
	}
	if c.Daemon.TickSeconds == 0 {
		c.Daemon.TickSeconds = 60
	}

	if c.Agent.Shell == "" {
		c.Agent.Shell = "/bin/sh"
	}
	if c.Agent.TimeoutSeconds == 0 {
		c.Agent.TimeoutSeconds = 300
	}
	if c.Agent.FailureThreshold == 0 {
		c.Agent.FailureThreshold = 3
	}
	if c.Agent.CooldownSeconds == 0 {
		c.Agent.CooldownSeconds = 300
	}

	if c.Metrics.Listen == "" {
		c.Metrics.Listen = "127.0.0.1:9464"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "nexbotd"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

// applyPathDefaults выводит пути из уже раскрытого workspace
func applyPathDefaults(c *Config) {
	ws := c.Workspace.Path
	runDir := filepath.Join(ws, RunSubdirectory)

	if c.Daemon.PIDFile == "" {
		c.Daemon.PIDFile = filepath.Join(runDir, "nexbotd.pid")
	}
	if c.Daemon.StateFile == "" {
		c.Daemon.StateFile = filepath.Join(runDir, "state.json")
	}
	if c.Daemon.LogFile == "" {
		c.Daemon.LogFile = filepath.Join(ws, LogSubdirectory, "nexbotd.log")
	}
	if c.Daemon.WorkingDir == "" {
		c.Daemon.WorkingDir = ws
	}
	if c.Health.Socket == "" {
		c.Health.Socket = filepath.Join(runDir, "health.sock")
	}
	if c.Cron.JobsFile == "" {
		c.Cron.JobsFile = filepath.Join(c.Cron.JobsDir(ws), "jobs.jsonl")
	}
	if c.Agent.WorkDir == "" {
		c.Agent.WorkDir = ws
	}
}

// expandEnvVars расширяет переменные окружения в конфигурации
func expandEnvVars(c *Config) error {
	paths := []*string{
		&c.Workspace.Path,
		&c.Daemon.PIDFile,
		&c.Daemon.StateFile,
		&c.Daemon.LogFile,
		&c.Daemon.WorkingDir,
		&c.Health.Socket,
		&c.Cron.JobsFile,
		&c.Agent.WorkDir,
	}
	for _, p := range paths {
		if strings.HasPrefix(*p, "${") {
			*p = expandEnv(*p)
		}
		*p = expandHome(*p)
	}

	// Значения без путей
	for _, p := range []*string{&c.Cron.Timezone, &c.Metrics.Listen, &c.Logging.Level, &c.Logging.Output} {
		if strings.HasPrefix(*p, "${") {
			*p = expandEnv(*p)
		}
	}
	c.Logging.Output = expandHome(c.Logging.Output)

	// Переменные окружения задач: KEY=${VAR}
	for i, kv := range c.Agent.Env {
		if key, value, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(value, "${") {
			c.Agent.Env[i] = key + "=" + expandEnv(value)
		}
	}

	return nil
}

// expandEnv расширяет переменную окружения формата ${VAR:default}
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") {
		return s
	}

	end := strings.Index(s, "}")
	if end == -1 {
		return s
	}

	rest := s[end+1:]
	content := s[2:end]
	if key, defaultVal, ok := strings.Cut(content, ":"); ok {
		if val := os.Getenv(key); val != "" {
			return val + rest
		}
		return defaultVal + rest
	}

	// Без значения по умолчанию
	return os.Getenv(content) + rest
}

// expandHome расширяет ~ в пути
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
