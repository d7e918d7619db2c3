package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kamusis/catsdogs/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write catsdogs.yaml and create the data and artifact directories",
	Long: `Bootstrap a workspace in the current directory.

Creates catsdogs.yaml with the default settings (unless it exists or --force
is given), the data/raw, data/splits and artifacts directories, and a .env
template for the redis cache and build info.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

var flagInitForce bool

func init() {
	initCmd.Flags().BoolVar(&flagInitForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

func runInit(_ *cobra.Command, _ []string) error {
	printSection("catsdogs init")

	// ── 1. Config file ────────────────────────────────────────────────────────
	if _, err := os.Stat(flagConfig); os.IsNotExist(err) || flagInitForce {
		if err := config.Save(config.DefaultConfig(), flagConfig); err != nil {
			return err
		}
		printOK("", fmt.Sprintf("Config written: %s", flagConfig))
	} else {
		printSkip("", fmt.Sprintf("Config already exists: %s", flagConfig))
	}

	// ── 2. Directories from the effective config ──────────────────────────────
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	for _, dir := range []string{cfg.Data.RawDir, cfg.Data.SplitsDir, cfg.Train.ArtifactsDir} {
		if _, err := os.Stat(dir); err == nil {
			printSkip("", fmt.Sprintf("Directory exists: %s", dir))
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create %s: %w", dir, err)
		}
		printOK("", fmt.Sprintf("Directory created: %s", dir))
	}

	// ── 3. .env template ──────────────────────────────────────────────────────
	created, err := config.EnsureDotEnvTemplate()
	if err != nil {
		return err
	}
	if created {
		printOK("", fmt.Sprintf("Template written: %s", config.DotEnvFile))
	} else {
		printSkip("", fmt.Sprintf("%s already exists", config.DotEnvFile))
	}

	fmt.Println()
	fmt.Printf("  Next: place the dataset under %s (or the archive at %s) and run 'catsdogs split'.\n",
		cfg.Data.RawDir, cfg.Data.ZipPath)
	return nil
}
