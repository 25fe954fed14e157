// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tomtom215/sonograph/internal/config"
	"github.com/tomtom215/sonograph/internal/logging"
)

// Set at build time with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

var (
	configPath string

	// cfg is loaded by the root command before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "sonograph",
	Short: "Audio recording analysis pipeline",
	Long: `Sonograph stores uploaded audio recordings, runs them through a pool
of analysis workers and serves the resulting metrics and transcript
segments over a JSON API.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	// version works without a valid configuration
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sonograph %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (overrides "+config.ConfigPathEnvVar+" and the default search paths)")

	rootCmd.AddCommand(serveCmd, workerCmd, deadLetterCmd, versionCmd)
}

func loadConfig(_ *cobra.Command, _ []string) error {
	if configPath != "" {
		// Worker processes inherit the environment and load the same file.
		if err := os.Setenv(config.ConfigPathEnvVar, configPath); err != nil {
			return fmt.Errorf("set %s: %w", config.ConfigPathEnvVar, err)
		}
	}

	loaded, err := config.LoadWithKoanf()
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = loaded.Logging.Level
	logCfg.Format = loaded.Logging.Format
	logCfg.Caller = loaded.Logging.Caller
	logging.Init(logCfg)

	cfg = loaded
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logging.Error().Err(err).Msg("sonograph failed")
		os.Exit(1)
	}
}
