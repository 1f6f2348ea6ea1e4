package main

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/aatumaykin/nexbotd/internal/config"
	"github.com/aatumaykin/nexbotd/internal/constants"
	"github.com/aatumaykin/nexbotd/internal/ipc"
)

// errNotRunning is returned by commands that need a live daemon.
var errNotRunning = errors.New("nexbotd is not running")

var stopTimeout time.Duration

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon (SIGTERM)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return stopDaemon(cmd, cfg, stopTimeout)
	},
}

// reloadCmd represents the reload command
var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload configuration and jobs (SIGHUP)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return signalCommand(cmd, syscall.SIGHUP)
	},
}

// signalUserCmd represents the signal-user command
var signalUserCmd = &cobra.Command{
	Use:   "signal-user",
	Short: "Trigger the user-defined action (SIGUSR1), by default a job table dump to the log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return signalCommand(cmd, syscall.SIGUSR1)
	},
}

func init() {
	stopCmd.Flags().DurationVar(&stopTimeout, "timeout", 30*time.Second, "how long to wait for the daemon to exit")
}

func signalCommand(cmd *cobra.Command, sig syscall.Signal) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	pid, err := signalDaemon(cfg, sig)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), constants.MsgSignalSent, unix.SignalName(sig), pid)
	return nil
}

// runningPID returns the pid from the PID file if that process is alive.
func runningPID(cfg *config.Config) (int, error) {
	pid, err := ipc.ReadPID(cfg.Daemon.PIDFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, ipc.ErrPIDFile) {
			return 0, errNotRunning
		}
		return 0, err
	}
	if !ipc.IsRunning(pid) {
		return 0, errNotRunning
	}
	return pid, nil
}

func signalDaemon(cfg *config.Config, sig syscall.Signal) (int, error) {
	pid, err := runningPID(cfg)
	if err != nil {
		return 0, err
	}
	if err := unix.Kill(pid, sig); err != nil {
		return 0, fmt.Errorf("failed to send %s to pid %d: %w", unix.SignalName(sig), pid, err)
	}
	return pid, nil
}

func stopDaemon(cmd *cobra.Command, cfg *config.Config, timeout time.Duration) error {
	out := cmd.OutOrStdout()

	pid, err := signalDaemon(cfg, syscall.SIGTERM)
	if errors.Is(err, errNotRunning) {
		fmt.Fprint(out, constants.MsgDaemonNotRunning)
		return nil
	}
	if err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	for ipc.IsRunning(pid) {
		if time.Now().After(deadline) {
			return fmt.Errorf("nexbotd (pid %d) did not exit within %s", pid, timeout)
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Fprintf(out, constants.MsgDaemonStopped, pid)
	return nil
}
