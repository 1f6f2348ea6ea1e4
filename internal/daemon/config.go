package daemon

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

var (
	// ErrConfig is returned for an invalid daemon configuration.
	ErrConfig = errors.New("invalid daemon configuration")

	// ErrDaemonize is returned when detaching from the terminal fails.
	ErrDaemonize = errors.New("daemonization failed")

	// ErrDetachedParent is returned to every process of the detach chain
	// except the final daemon. The caller must exit with status 0.
	ErrDetachedParent = errors.New("detached: parent process should exit")

	// ErrNotRunning is returned by Run before Start succeeded.
	ErrNotRunning = errors.New("daemon is not running")
)

const (
	DefaultTickInterval = time.Minute
	DefaultUmask        = 0o022
)

// Config holds the daemon process settings.
type Config struct {
	PIDFile       string
	LogFile       string
	StateFile     string
	WorkingDir    string
	RedirectStdio bool
	DoubleFork    bool
	Umask         int
	HealthSocket  string // empty disables the health server
	TickInterval  time.Duration
	Location      *time.Location // cron evaluation time zone, nil means local
}

// DefaultConfig returns a foreground configuration rooted at dir.
func DefaultConfig(dir string) Config {
	return Config{
		PIDFile:      filepath.Join(dir, "nexbotd.pid"),
		StateFile:    filepath.Join(dir, "state.json"),
		HealthSocket: filepath.Join(dir, "health.sock"),
		Umask:        DefaultUmask,
		TickInterval: DefaultTickInterval,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var problems []string

	if c.PIDFile == "" {
		problems = append(problems, "pid file path is required")
	}
	for name, path := range map[string]string{
		"pid file":      c.PIDFile,
		"log file":      c.LogFile,
		"state file":    c.StateFile,
		"working dir":   c.WorkingDir,
		"health socket": c.HealthSocket,
	} {
		if path != "" && !filepath.IsAbs(path) {
			problems = append(problems, fmt.Sprintf("%s must be an absolute path: %q", name, path))
		}
	}
	if c.TickInterval <= 0 || c.TickInterval > time.Minute {
		problems = append(problems, fmt.Sprintf("tick interval must be in (0, 1m], got %s", c.TickInterval))
	}
	if c.Umask < 0 || c.Umask > 0o777 {
		problems = append(problems, fmt.Sprintf("umask out of range: %#o", c.Umask))
	}
	// Unix socket paths are limited to 108 bytes including the terminator.
	if len(c.HealthSocket) > 107 {
		problems = append(problems, fmt.Sprintf("health socket path too long (%d bytes)", len(c.HealthSocket)))
	}

	if len(problems) == 0 {
		return nil
	}
	// Map iteration order is random; keep messages stable.
	slices.Sort(problems)
	return fmt.Errorf("%w: %s", ErrConfig, strings.Join(problems, "; "))
}

func (c Config) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}
