package main

import (
	"errors"
	"fmt"
	"io"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/nexbotd/internal/config"
	"github.com/aatumaykin/nexbotd/internal/constants"
	"github.com/aatumaykin/nexbotd/internal/cron"
)

var (
	cronAddID          string
	cronAddName        string
	cronAddDescription string
	cronAddDisabled    bool
)

var cronCmd = &cobra.Command{
	Use:   "cron",
	Short: "Manage scheduled tasks",
	Long: `Edit the on-disk job list. A running daemon is sent SIGHUP after every
change so it picks the new list up on its next tick.`,
}

var cronAddCmd = &cobra.Command{
	Use:   "add <schedule> <command>",
	Short: "Add or replace a scheduled task",
	Example: `  nexbotd cron add "30 2 * * *" "backup.sh"
  nexbotd cron add --id standup "0 9 * * 1" "echo standup"`,
	Args: cobra.ExactArgs(2),
	RunE: runCronAdd,
}

var cronListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all scheduled tasks",
	Args:  cobra.NoArgs,
	RunE:  runCronList,
}

var cronRemoveCmd = &cobra.Command{
	Use:   "remove <job-id>",
	Short: "Remove a scheduled task",
	Args:  cobra.ExactArgs(1),
	RunE:  runCronRemove,
}

var cronEnableCmd = &cobra.Command{
	Use:   "enable <job-id>",
	Short: "Enable a scheduled task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCronToggle(cmd, args[0], false)
	},
}

var cronDisableCmd = &cobra.Command{
	Use:   "disable <job-id>",
	Short: "Disable a scheduled task without removing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCronToggle(cmd, args[0], true)
	},
}

func init() {
	cronAddCmd.Flags().StringVar(&cronAddID, "id", "", "job id (generated when empty)")
	cronAddCmd.Flags().StringVar(&cronAddName, "name", "", "human readable name")
	cronAddCmd.Flags().StringVar(&cronAddDescription, "description", "", "free-form description")
	cronAddCmd.Flags().BoolVar(&cronAddDisabled, "disabled", false, "store the job disabled")

	cronCmd.AddCommand(cronAddCmd)
	cronCmd.AddCommand(cronListCmd)
	cronCmd.AddCommand(cronRemoveCmd)
	cronCmd.AddCommand(cronEnableCmd)
	cronCmd.AddCommand(cronDisableCmd)
}

func cronStorage(cmd *cobra.Command) (*config.Config, *cron.Storage, error) {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	return cfg, cron.NewStorage(cfg.Cron.JobsFile, nil), nil
}

func runCronAdd(cmd *cobra.Command, args []string) error {
	cfg, storage, err := cronStorage(cmd)
	if err != nil {
		return err
	}

	spec, err := storage.Upsert(cron.JobSpec{
		ID:          cronAddID,
		Name:        cronAddName,
		Schedule:    args[0],
		Command:     args[1],
		Description: cronAddDescription,
		Disabled:    cronAddDisabled,
	})
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), constants.MsgErrorSavingJobs, err)
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, constants.MsgJobAdded)
	printJob(out, spec, time.Now())
	if !notifyDaemon(out, cfg) {
		fmt.Fprint(out, constants.MsgJobActivateNote)
	}
	return nil
}

func runCronList(cmd *cobra.Command, args []string) error {
	_, storage, err := cronStorage(cmd)
	if err != nil {
		return err
	}

	specs, err := storage.Load()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), constants.MsgErrorLoadingJobs, err)
		return err
	}

	out := cmd.OutOrStdout()
	if len(specs) == 0 {
		fmt.Fprint(out, constants.MsgJobsNotFound)
		return nil
	}

	now := time.Now()
	fmt.Fprint(out, constants.MsgJobsListHeader)
	for _, spec := range specs {
		printJob(out, spec, now)
		fmt.Fprint(out, constants.MsgJobsListSep)
	}
	fmt.Fprintf(out, constants.MsgJobsTotal, len(specs))
	return nil
}

func runCronRemove(cmd *cobra.Command, args []string) error {
	cfg, storage, err := cronStorage(cmd)
	if err != nil {
		return err
	}

	if err := storage.Remove(args[0]); err != nil {
		return jobError(cmd, args[0], err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, constants.MsgJobRemoved, args[0])
	notifyDaemon(out, cfg)
	return nil
}

func runCronToggle(cmd *cobra.Command, id string, disabled bool) error {
	cfg, storage, err := cronStorage(cmd)
	if err != nil {
		return err
	}

	if err := storage.SetDisabled(id, disabled); err != nil {
		return jobError(cmd, id, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, constants.MsgJobToggled, id, stateWord(!disabled))
	notifyDaemon(out, cfg)
	return nil
}

func jobError(cmd *cobra.Command, id string, err error) error {
	if errors.Is(err, cron.ErrNotFound) {
		fmt.Fprintf(cmd.ErrOrStderr(), constants.MsgErrorJobNotFound, id)
		fmt.Fprint(cmd.ErrOrStderr(), constants.MsgJobNotFoundHint)
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), constants.MsgErrorSavingJobs, err)
	return err
}

func printJob(w io.Writer, spec cron.JobSpec, now time.Time) {
	fmt.Fprintf(w, constants.MsgJobID, spec.ID)
	fmt.Fprintf(w, constants.MsgJobSchedule, spec.Schedule)
	fmt.Fprintf(w, constants.MsgJobCommand, spec.Command)
	fmt.Fprintf(w, constants.MsgJobState, stateWord(!spec.Disabled))
	if spec.Disabled {
		return
	}
	fs, err := cron.Parse(spec.Schedule)
	if err != nil {
		return
	}
	if next, err := cron.NextRun(fs, now); err == nil {
		fmt.Fprintf(w, constants.MsgJobNextRun, next.Format(time.RFC3339))
	} else {
		fmt.Fprintf(w, constants.MsgJobNextRun, "never")
	}
}

func stateWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

// notifyDaemon asks a running daemon to reload and reports whether one was
// reached. No daemon is not an error.
func notifyDaemon(w io.Writer, cfg *config.Config) bool {
	pid, err := signalDaemon(cfg, syscall.SIGHUP)
	if err != nil {
		if !errors.Is(err, errNotRunning) {
			fmt.Fprintf(w, "warning: %v\n", err)
		}
		return false
	}
	fmt.Fprintf(w, constants.MsgJobReloaded, pid)
	return true
}
