package heartbeat

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aatumaykin/nexbotd/internal/cron"
	"github.com/aatumaykin/nexbotd/internal/logger"
)

// FileName is the heartbeat file looked up in the workspace.
const FileName = "HEARTBEAT.md"

// Loader loads heartbeat tasks from a workspace.
type Loader struct {
	path   string
	logger *logger.Logger
}

// NewLoader creates a Loader for <workspace>/HEARTBEAT.md.
func NewLoader(workspace string, log *logger.Logger) *Loader {
	if log == nil {
		log = logger.Discard()
	}
	return &Loader{
		path:   filepath.Join(workspace, FileName),
		logger: log,
	}
}

// Path returns the heartbeat file path.
func (l *Loader) Path() string {
	return l.path
}

// LoadJobs returns the valid tasks as job specs. A missing file yields no
// jobs; invalid tasks are logged and skipped.
func (l *Loader) LoadJobs() ([]cron.JobSpec, error) {
	content, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		l.logger.Debug("HEARTBEAT.md not found, skipping", logger.Field{Key: "path", Value: l.path})
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", l.path, err)
	}

	var specs []cron.JobSpec
	seen := make(map[string]bool)
	for _, task := range Parse(string(content)) {
		if err := Validate(task); err != nil {
			l.logger.Warn("skipping invalid heartbeat task",
				logger.Field{Key: "task_name", Value: task.Name},
				logger.Field{Key: "error", Value: err.Error()})
			continue
		}
		spec := task.Spec()
		if seen[spec.ID] {
			l.logger.Warn("skipping duplicate heartbeat task", logger.Field{Key: "task_name", Value: task.Name})
			continue
		}
		seen[spec.ID] = true
		specs = append(specs, spec)
	}

	l.logger.Info("heartbeat tasks loaded",
		logger.Field{Key: "total", Value: len(specs)},
		logger.Field{Key: "path", Value: l.path})
	return specs, nil
}
