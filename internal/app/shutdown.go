package app

import (
	"context"
	"errors"
	"time"
)

// shutdownTimeout bounds the metrics server drain.
const shutdownTimeout = 5 * time.Second

// startAuxiliary starts the components that only run in the daemon process:
// the metrics endpoint and the file watcher. Their failures are logged and
// do not stop the daemon.
func (a *App) startAuxiliary(ctx context.Context) {
	if a.metricsSv != nil {
		if err := a.metricsSv.Start(); err != nil {
			a.logger.Error("metrics server unavailable", err)
			a.metricsSv = nil
		}
	}

	if a.watcher != nil {
		watchCtx, cancel := context.WithCancel(ctx)
		a.cancelWatch = cancel
		a.watchDone = make(chan struct{})
		go func() {
			defer close(a.watchDone)
			if err := a.watcher.Watch(watchCtx); err != nil {
				a.logger.Error("file watcher stopped", err)
			}
		}()
	}
}

// Shutdown stops the auxiliary components and releases the daemon's
// resources. It is safe to call more than once.
func (a *App) Shutdown() error {
	var errs []error

	if a.cancelWatch != nil {
		a.cancelWatch()
		<-a.watchDone
		a.cancelWatch = nil
	}

	if a.metricsSv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		errs = append(errs, a.metricsSv.Stop(ctx))
		cancel()
		a.metricsSv = nil
	}

	if a.daemon != nil {
		a.daemon.Close()
	}

	a.logger.Info("Application stopped")
	return errors.Join(errs...)
}
