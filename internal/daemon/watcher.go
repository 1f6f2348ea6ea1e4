package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aatumaykin/nexbotd/internal/logger"
)

// DefaultWatchDebounce coalesces editor write bursts into one reload.
const DefaultWatchDebounce = 250 * time.Millisecond

// FileWatcher calls OnChange after any of the watched files changes.
// Directories are watched rather than files so that atomic rename-based
// saves are seen.
type FileWatcher struct {
	files    map[string]struct{}
	dirs     []string
	onChange func()
	debounce time.Duration
	logger   *logger.Logger
}

// NewFileWatcher watches paths and calls onChange, usually Daemon.Reload.
// Empty paths are ignored.
func NewFileWatcher(paths []string, onChange func(), log *logger.Logger) *FileWatcher {
	if log == nil {
		log = logger.Discard()
	}
	w := &FileWatcher{
		files:    make(map[string]struct{}),
		onChange: onChange,
		debounce: DefaultWatchDebounce,
		logger:   log.With(logger.Field{Key: "component", Value: "watcher"}),
	}

	seen := make(map[string]bool)
	for _, p := range paths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = filepath.Clean(p)
		}
		w.files[abs] = struct{}{}
		dir := filepath.Dir(abs)
		if !seen[dir] {
			seen[dir] = true
			w.dirs = append(w.dirs, dir)
		}
	}
	return w
}

// SetDebounce overrides the quiet period before OnChange fires.
func (w *FileWatcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Files returns the number of watched files.
func (w *FileWatcher) Files() int {
	return len(w.files)
}

// Watch blocks until ctx is cancelled. Directories that do not exist are
// skipped with a warning.
func (w *FileWatcher) Watch(ctx context.Context) error {
	if len(w.files) == 0 {
		<-ctx.Done()
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	for _, dir := range w.dirs {
		if err := fw.Add(dir); err != nil {
			w.logger.Warn("cannot watch directory",
				logger.Field{Key: "dir", Value: dir},
				logger.Field{Key: "error", Value: err.Error()})
		}
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	schedule := func(name string) {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		w.logger.Debug("change detected", logger.Field{Key: "file", Value: name})
		timer = time.AfterFunc(w.debounce, w.onChange)
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if _, watched := w.files[filepath.Clean(ev.Name)]; !watched {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				schedule(ev.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", logger.Field{Key: "error", Value: err.Error()})
		}
	}
}
