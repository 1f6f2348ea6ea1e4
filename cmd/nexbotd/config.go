package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/nexbotd/internal/constants"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Validate and inspect the nexbotd configuration.`,
}

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Load the configuration (including .env and environment expansion) and check it for errors.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if path == "" {
			path = "(built-in defaults)"
		}
		fmt.Fprintf(out, "Config:    %s\n", path)
		fmt.Fprintf(out, "Workspace: %s\n", cfg.Workspace.Path)
		fmt.Fprintf(out, "PID file:  %s\n", cfg.Daemon.PIDFile)
		fmt.Fprintf(out, "Jobs file: %s\n", cfg.Cron.JobsFile)
		fmt.Fprint(out, constants.MsgConfigValid)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}
