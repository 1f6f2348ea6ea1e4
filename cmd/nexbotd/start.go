package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/nexbotd/internal/app"
	"github.com/aatumaykin/nexbotd/internal/constants"
	"github.com/aatumaykin/nexbotd/internal/daemon"
	"github.com/aatumaykin/nexbotd/internal/ipc"
	"github.com/aatumaykin/nexbotd/internal/logger"
)

var (
	startForeground bool
	startLogLevel   string
	startWait       time.Duration
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon",
	Long: `Start nexbotd. With [daemon] detach = true the process detaches from the
terminal and the command returns once the daemon wrote its PID file.
--foreground keeps it attached, for systemd and containers.`,
	Args: cobra.NoArgs,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&startForeground, "foreground", "f", false, "stay attached to the terminal")
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "override logging.level")
	startCmd.Flags().DurationVar(&startWait, "wait", 5*time.Second, "how long to wait for a detached daemon to write its PID file")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if startForeground {
		cfg.Foreground()
	}
	if startLogLevel != "" {
		cfg.Logging.Level = startLogLevel
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()
	logger.SetDefault(log)

	if os.Getenv(daemon.StageEnv) == "" {
		log.Info("Starting nexbotd",
			logger.Field{Key: "version", Value: Version},
			logger.Field{Key: "git_commit", Value: GitCommit},
			logger.Field{Key: "config", Value: path},
			logger.Field{Key: "workspace", Value: cfg.Workspace.Path},
			logger.Field{Key: "detach", Value: cfg.Daemon.Detach})
	}

	// Remember the stage before Detach clears it in the final process.
	launcher := os.Getenv(daemon.StageEnv) == ""

	err = app.New(cfg, path, log).Run(context.Background())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, daemon.ErrDetachedParent):
		if launcher {
			reportDetached(cmd, cfg.Daemon.PIDFile, startWait)
		}
		return nil
	default:
		return err
	}
}

// reportDetached waits for the daemon's PID file and prints the outcome.
func reportDetached(cmd *cobra.Command, pidFile string, wait time.Duration) {
	out := cmd.OutOrStdout()
	if pid, ok := waitForPID(pidFile, wait); ok {
		fmt.Fprintf(out, constants.MsgDaemonStarted, pid)
		return
	}
	fmt.Fprintf(out, constants.MsgDaemonStartPending, pidFile)
}

// waitForPID polls pidFile until it names a live process other than us.
func waitForPID(pidFile string, wait time.Duration) (int, bool) {
	deadline := time.Now().Add(wait)
	for {
		if pid, err := ipc.ReadPID(pidFile); err == nil && pid != os.Getpid() && ipc.IsRunning(pid) {
			return pid, true
		}
		if time.Now().After(deadline) {
			return 0, false
		}
		time.Sleep(50 * time.Millisecond)
	}
}
