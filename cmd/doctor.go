package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kamusis/catsdogs/internal/config"
	"github.com/kamusis/catsdogs/internal/dataset"
	"github.com/kamusis/catsdogs/internal/errs"
	"github.com/kamusis/catsdogs/internal/model"
	"github.com/kamusis/catsdogs/internal/server"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run pre-flight checks on config, dataset, splits and model",
	Long: `Check that the workspace is ready for each pipeline stage.
Run this command when something seems wrong, or before filing a bug report.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.AddCommand(doctorFixCmd)
	rootCmd.AddCommand(doctorCmd)
}

var doctorFixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Automatically fix detected issues",
	Long: `Fix detected issues in the workspace.

Currently fixes:
  - Leftovers from interrupted writes: temp bundles and .bak files in the
    model directory, staging directories in the feature cache

Run 'catsdogs doctor' first to see what will be fixed.`,
	RunE: runDoctorFix,
}

func runDoctorFix(_ *cobra.Command, _ []string) error {
	printSection("catsdogs doctor fix")

	fmt.Println("\n[ Interrupted writes ]")
	leftovers := findLeftovers(appConfig)
	if len(leftovers) == 0 {
		printOK("", "no leftover files found — nothing to fix")
		return nil
	}

	var failed int
	for _, p := range leftovers {
		if err := os.RemoveAll(p); err != nil {
			printErr("", fmt.Sprintf("cannot delete %s: %v", p, err))
			failed++
		} else {
			printOK("", fmt.Sprintf("deleted %s", p))
		}
	}

	fmt.Println()
	if failed > 0 {
		return fmt.Errorf("%d file(s) could not be deleted", failed)
	}
	fmt.Printf("  ✓  %d leftover(s) removed.\n", len(leftovers))
	return nil
}

func runDoctor(_ *cobra.Command, _ []string) error {
	allOK := true
	failD := func(format string, args ...any) {
		printErr("", fmt.Sprintf(format, args...))
		allOK = false
	}
	cfg := appConfig

	printSection("catsdogs doctor")
	fmt.Println()

	// ── Check 1: config file ──────────────────────────────────────────────────
	fmt.Println("[ " + flagConfig + " ]")
	if _, err := os.Stat(flagConfig); os.IsNotExist(err) {
		printWarn("", fmt.Sprintf("%s not found — using defaults (run 'catsdogs init' to write one)", flagConfig))
	} else {
		printOK("", "valid config")
	}
	fmt.Println()

	// ── Check 2: dataset ──────────────────────────────────────────────────────
	fmt.Println("[ Dataset ]")
	if root, err := dataset.FindRoot(cfg.Data.RawDir); err == nil {
		printOK("", fmt.Sprintf("dataset root: %s", root))
	} else if _, zipErr := os.Stat(cfg.Data.ZipPath); zipErr == nil {
		printInfo("", fmt.Sprintf("raw directory has no dataset, archive will be used: %s", cfg.Data.ZipPath))
	} else {
		failD("no dataset under %s and no archive at %s", cfg.Data.RawDir, cfg.Data.ZipPath)
	}
	fmt.Println()

	// ── Check 3: split manifests ──────────────────────────────────────────────
	fmt.Println("[ Splits ]")
	splitsOK := true
	if md, err := dataset.ReadMetadata(cfg.Data.SplitsDir); err != nil {
		printWarn("", fmt.Sprintf("%v — run 'catsdogs split'", err))
		splitsOK = false
	} else {
		printOK("", fmt.Sprintf("metadata: seed=%d source=%s", md.Seed, md.DataSource.Type))
	}
	if splitsOK {
		base, _ := workDir()
		for _, sp := range dataset.Splits {
			samples, err := dataset.ReadManifest(filepath.Join(cfg.Data.SplitsDir, dataset.ManifestName(sp)))
			if err != nil {
				failD("[%s] %v", sp, err)
				continue
			}
			missing := 0
			for _, s := range samples {
				if _, err := os.Stat(dataset.Resolve(base, s.Path)); err != nil {
					missing++
				}
			}
			switch {
			case len(samples) == 0:
				failD("[%s] manifest is empty", sp)
			case missing > 0:
				printWarn(string(sp), fmt.Sprintf("%d sample(s), %d missing on disk (run 'catsdogs split --extract' for archive sources)", len(samples), missing))
			default:
				printOK(string(sp), fmt.Sprintf("%d sample(s)", len(samples)))
			}
		}
	}
	fmt.Println()

	// ── Check 4: model bundle ─────────────────────────────────────────────────
	fmt.Println("[ Model ]")
	if b, err := model.Load(cfg.Serve.ModelPath); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			printMiss("", fmt.Sprintf("no bundle at %s — run 'catsdogs train'", cfg.Serve.ModelPath))
		} else {
			failD("%v", err)
		}
	} else {
		printOK("", fmt.Sprintf("run %s, created %s, mode %s", b.RunID, b.CreatedAt.Format(time.RFC3339), b.ProbabilityMode))
	}
	if leftovers := findLeftovers(cfg); len(leftovers) > 0 {
		for _, p := range leftovers {
			printWarn("", fmt.Sprintf("leftover from an interrupted write: %s", p))
		}
		fmt.Println("     Run 'catsdogs doctor fix' to remove them.")
		allOK = false
	}
	fmt.Println()

	// ── Check 5: redis (optional) ─────────────────────────────────────────────
	fmt.Println("[ Redis ]")
	if cfg.Redis.Addr == "" {
		printSkip("", "redis.addr not set — prediction cache disabled")
	} else {
		rc := server.NewRedisCache(cfg.Redis)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rc.Ping(ctx); err != nil {
			failD("cannot reach redis at %s: %v", cfg.Redis.Addr, err)
		} else {
			printOK("", fmt.Sprintf("redis reachable at %s", cfg.Redis.Addr))
		}
		cancel()
		_ = rc.Close()
	}
	fmt.Println()

	// ── Summary ───────────────────────────────────────────────────────────────
	fmt.Println("===================")
	if allOK {
		fmt.Println("✓  All checks passed. catsdogs is ready to use.")
	} else {
		fmt.Fprintln(os.Stderr, "✗  One or more checks failed. See details above.")
		return fmt.Errorf("doctor found issues")
	}
	return nil
}

// findLeftovers lists temp bundles, bundle backups and feature cache staging
// directories left by interrupted writes.
func findLeftovers(cfg *config.Config) []string {
	var found []string
	modelDir := filepath.Dir(cfg.Serve.ModelPath)
	if entries, err := os.ReadDir(modelDir); err == nil {
		for _, e := range entries {
			name := e.Name()
			if (strings.HasPrefix(name, ".model-") && strings.HasSuffix(name, ".tmp")) || strings.HasSuffix(name, ".bak") {
				found = append(found, filepath.Join(modelDir, name))
			}
		}
	}
	cacheDir := filepath.Join(cfg.Train.ArtifactsDir, "cache")
	if entries, err := os.ReadDir(cacheDir); err == nil {
		for _, e := range entries {
			if e.IsDir() && (strings.HasPrefix(e.Name(), ".") || strings.HasSuffix(e.Name(), ".bak")) {
				found = append(found, filepath.Join(cacheDir, e.Name()))
			}
		}
	}
	return found
}
