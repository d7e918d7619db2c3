package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kamusis/catsdogs/internal/config"
	"github.com/kamusis/catsdogs/internal/dataset"
)

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Write stratified train/val/test manifests",
	Long: `Discover labeled images under the raw directory (falling back to the
dataset archive), split each class independently with a seeded shuffle, and
write train.txt, val.txt, test.txt and metadata.json to the splits directory.

Running it twice with the same inputs produces identical files.

Example:
  catsdogs split
  catsdogs split --extract --seed 7 --train 0.7 --val 0.15 --test 0.15`,
	Args: cobra.NoArgs,
	RunE: runSplit,
}

var (
	flagRawDir    string
	flagZipPath   string
	flagSplitsDir string
	flagSplitSeed int64
	flagTrainFrac float64
	flagValFrac   float64
	flagTestFrac  float64
	flagExtract   bool
)

func init() {
	d := config.DefaultConfig().Data
	f := splitCmd.Flags()
	f.StringVar(&flagRawDir, "raw-dir", d.RawDir, "Directory holding the extracted dataset")
	f.StringVar(&flagZipPath, "zip-path", d.ZipPath, "Dataset archive used when the raw directory is empty")
	f.StringVar(&flagSplitsDir, "splits-dir", d.SplitsDir, "Output directory for manifests and metadata")
	f.Int64Var(&flagSplitSeed, "seed", d.Seed, "Shuffle seed")
	f.Float64Var(&flagTrainFrac, "train", d.Ratios.Train, "Train fraction")
	f.Float64Var(&flagValFrac, "val", d.Ratios.Val, "Validation fraction")
	f.Float64Var(&flagTestFrac, "test", d.Ratios.Test, "Test fraction")
	f.BoolVar(&flagExtract, "extract", false, "Extract the archive's images into the raw directory first")
	rootCmd.AddCommand(splitCmd)
}

func runSplit(cmd *cobra.Command, _ []string) error {
	d := appConfig.Data
	f := cmd.Flags()
	if f.Changed("raw-dir") {
		d.RawDir = flagRawDir
	}
	if f.Changed("zip-path") {
		d.ZipPath = flagZipPath
	}
	if f.Changed("splits-dir") {
		d.SplitsDir = flagSplitsDir
	}
	if f.Changed("seed") {
		d.Seed = flagSplitSeed
	}
	if f.Changed("train") {
		d.Ratios.Train = flagTrainFrac
	}
	if f.Changed("val") {
		d.Ratios.Val = flagValFrac
	}
	if f.Changed("test") {
		d.Ratios.Test = flagTestFrac
	}

	base, err := workDir()
	if err != nil {
		return err
	}
	md, err := dataset.WriteSplits(dataset.Options{
		RawDir:    d.RawDir,
		SplitsDir: d.SplitsDir,
		ZipPath:   d.ZipPath,
		BaseDir:   base,
		Seed:      d.Seed,
		Ratios:    d.Ratios,
		Extract:   flagExtract,
	})
	if err != nil {
		return err
	}

	printSection("catsdogs split")
	printInfo("", fmt.Sprintf("source: %s (%s)", md.DataSource.Path, md.DataSource.Type))
	printInfo("", fmt.Sprintf("dataset root: %s", md.DatasetRoot))
	for _, sp := range dataset.Splits {
		byClass := md.CountsByClass[string(sp)]
		printOK(string(sp), fmt.Sprintf("%d samples (cat=%d, dog=%d)",
			md.Counts[string(sp)], byClass[dataset.LabelCat], byClass[dataset.LabelDog]))
	}
	fmt.Printf("\n  Manifests written to %s\n", d.SplitsDir)
	return nil
}
