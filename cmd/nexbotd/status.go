package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/nexbotd/internal/constants"
	"github.com/aatumaykin/nexbotd/internal/health"
	"github.com/aatumaykin/nexbotd/internal/ipc"
)

var (
	statusJSON    bool
	statusTimeout time.Duration
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query the daemon health socket",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the raw health snapshot")
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 2*time.Second, "socket query timeout")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Health.Disabled {
		return errors.New("health socket is disabled in [health]")
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, statusTimeout)
	defer cancel()

	status, err := ipc.QueryHealth(ctx, cfg.Health.Socket)
	if err != nil {
		if _, pidErr := runningPID(cfg); errors.Is(pidErr, errNotRunning) {
			fmt.Fprint(cmd.OutOrStdout(), constants.MsgDaemonNotRunning)
			return errNotRunning
		}
		return err
	}

	if statusJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}
	return printStatus(cmd.OutOrStdout(), status)
}

func printStatus(w io.Writer, s health.Status) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"Healthy", yesNo(s.Healthy)},
		{"Uptime", s.UptimeText},
		{"Restarts", fmt.Sprint(s.RestartCount)},
		{"Provider", yesNo(s.ProviderHealthy)},
		{"Memory", yesNo(s.MemoryHealthy)},
		{"Channel", yesNo(s.ChannelHealthy)},
		{"Messages", fmt.Sprint(s.MessagesProcessed)},
		{"API calls", fmt.Sprint(s.APICalls)},
		{"Errors", fmt.Sprint(s.Errors)},
		{"Avg response", s.AvgResponseTime.String()},
		{"Updated", s.UpdatedAt.Format(time.RFC3339)},
	}
	if !s.LastRestart.IsZero() {
		rows = append(rows, [2]string{"Last restart", s.LastRestart.Format(time.RFC3339)})
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s:\t%s\n", r[0], r[1])
	}
	return tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
