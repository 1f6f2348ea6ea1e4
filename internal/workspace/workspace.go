// Package workspace manages the nexbotd workspace directory.
//
// The workspace is the root directory where nexbotd keeps its data:
//   - run/: PID file, restart state and health socket
//   - logs/: daemon output when detached
//   - cron/: the job list
//   - HEARTBEAT.md: optional heartbeat tasks
//
// Example usage:
//
//	ws := workspace.New("~/.nexbot")
//	if err := ws.EnsureLayout(); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Jobs:", ws.Subpath(workspace.SubdirCron))
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	SubdirRun  = "run"
	SubdirLogs = "logs"
	SubdirCron = "cron"
)

// Layout lists the subdirectories EnsureLayout creates.
var Layout = []string{SubdirRun, SubdirLogs, SubdirCron}

// Workspace represents a nexbotd workspace with path management capabilities.
type Workspace struct {
	path     string // Expanded workspace path
	basePath string // Original path from config (may contain ~)
}

// New creates a new Workspace. The path is stored as-is in basePath and
// expanded in path.
func New(path string) *Workspace {
	return &Workspace{
		path:     expandHome(path),
		basePath: path,
	}
}

// Path returns the expanded workspace path (with ~ expanded to home directory).
func (w *Workspace) Path() string {
	return w.path
}

// BasePath returns the original path (may contain ~).
func (w *Workspace) BasePath() string {
	return w.basePath
}

// EnsureDir creates the workspace directory if it doesn't exist.
func (w *Workspace) EnsureDir() error {
	if w.path == "" {
		return fmt.Errorf("workspace path is empty")
	}
	return ensureDir(w.path, "workspace")
}

// Subpath returns a path for a workspace subdirectory.
func (w *Workspace) Subpath(name string) string {
	return filepath.Join(w.path, name)
}

// EnsureSubpath creates a subdirectory within the workspace if it doesn't exist.
func (w *Workspace) EnsureSubpath(name string) error {
	if err := w.EnsureDir(); err != nil {
		return fmt.Errorf("failed to ensure workspace: %w", err)
	}

	if name == "" {
		return fmt.Errorf("subdirectory name is empty")
	}

	return ensureDir(w.Subpath(name), "subdirectory")
}

// EnsureLayout creates the workspace and every directory in Layout.
func (w *Workspace) EnsureLayout() error {
	for _, name := range Layout {
		if err := w.EnsureSubpath(name); err != nil {
			return err
		}
	}
	return nil
}

func ensureDir(path, what string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%s path exists but is not a directory: %s", what, path)
		}
		return nil
	}

	if !os.IsNotExist(err) {
		return fmt.Errorf("failed to access %s %s: %w", what, path, err)
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create %s directory %s: %w", what, path, err)
	}

	return nil
}

// expandHome expands ~ to the user's home directory.
// If the path doesn't start with ~/, it's returned unchanged.
func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' && (len(path) == 1 || path[1] == '/') {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if len(path) == 1 {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
