package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/nexbotd/internal/config"
	"github.com/aatumaykin/nexbotd/internal/constants"
)

// configPath is shared by every subcommand through the persistent --config flag.
var configPath string

// errInvalidConfig is returned after the individual problems were printed.
var errInvalidConfig = errors.New("invalid configuration")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nexbotd",
	Short: "nexbotd - scheduling daemon for the Nexbot agent",
	Long: `nexbotd runs in the background, fires cron jobs into the agent runtime,
reports its health over a Unix socket and reacts to SIGHUP, SIGTERM and SIGUSR1.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.toml (default $"+constants.ConfigPathEnv+" or "+constants.DefaultConfigPath+")")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(signalUserCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cronCmd)
}

// resolveConfigPath returns the flag value, then $NEXBOTD_CONFIG, then
// ./config.toml if it exists. An empty result means built-in defaults.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if p := os.Getenv(constants.ConfigPathEnv); p != "" {
		return p
	}
	if _, err := os.Stat(constants.DefaultConfigPath); err == nil {
		return constants.DefaultConfigPath
	}
	return ""
}

// loadConfig loads .env, then the configuration, and validates it. Problems
// are printed to stderr one per line.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	if err := config.LoadEnvOptional(constants.DefaultEnvPath); err != nil {
		return nil, "", fmt.Errorf("failed to load %s: %w", constants.DefaultEnvPath, err)
	}

	path := resolveConfigPath()
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), constants.MsgConfigLoadError, err)
			return nil, "", err
		}
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		stderr := cmd.ErrOrStderr()
		fmt.Fprint(stderr, constants.MsgConfigValidationError)
		for _, e := range errs {
			fmt.Fprintf(stderr, constants.MsgConfigValidatePrefix, e)
		}
		return nil, "", errInvalidConfig
	}
	return cfg, path, nil
}
