package daemon

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/aatumaykin/nexbotd/internal/logger"
)

// HandledSignals are the signals the daemon installs handlers for.
var HandledSignals = []os.Signal{syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP, syscall.SIGUSR1}

func (d *Daemon) installSignals() {
	d.sigCh = make(chan os.Signal, 4)
	d.sigDone = make(chan struct{})
	signal.Notify(d.sigCh, HandledSignals...)

	go func(ch <-chan os.Signal, done <-chan struct{}) {
		for {
			select {
			case sig := <-ch:
				d.handleSignal(sig)
			case <-done:
				return
			}
		}
	}(d.sigCh, d.sigDone)
}

// handleSignal only sets flags; the loop acts on them.
func (d *Daemon) handleSignal(sig os.Signal) {
	d.logger.Info("signal received", logger.Field{Key: "signal", Value: sig.String()})

	switch sig {
	case syscall.SIGTERM, syscall.SIGINT:
		d.Stop()
	case syscall.SIGHUP:
		d.Reload()
	case syscall.SIGUSR1:
		d.TriggerUserAction()
	}
}

func (d *Daemon) stopSignals() {
	if d.sigCh == nil {
		return
	}
	signal.Stop(d.sigCh)
	close(d.sigDone)
	d.sigCh, d.sigDone = nil, nil
}
