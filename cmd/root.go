package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kamusis/catsdogs/internal/config"
	"github.com/kamusis/catsdogs/internal/logging"
)

var (
	flagConfig   string
	flagLogLevel string

	// appConfig is loaded in PersistentPreRunE before any command runs.
	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:          "catsdogs",
	Short:        "Cats vs dogs image classification pipeline",
	SilenceUsage: true, // don't print usage on operational errors
	Long: `catsdogs splits an image dataset into stratified manifests, trains a
color-histogram linear classifier, evaluates it and serves predictions over HTTP.

Configuration is read from catsdogs.yaml, then .env, then CATSDOGS_* environment
variables; command-line flags override all of them.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = flagLogLevel
		}
		if err := logging.Init(cfg.Log.Mode, cfg.Log.Level); err != nil {
			return err
		}
		appConfig = cfg
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", config.DefaultPath, "Path to the config file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

// workDir anchors relative paths from the config.
func workDir() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("cannot determine working directory: %w", err)
	}
	return wd, nil
}

// Execute is called by main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
