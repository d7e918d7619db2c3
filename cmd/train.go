package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kamusis/catsdogs/internal/config"
	"github.com/kamusis/catsdogs/internal/train"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the classifier and write the model bundle",
	Long: `Featurize the split manifests, fit the SGD classifier epoch by epoch and
write artifacts/model/model.bundle, the training curve and confusion matrix
figures, and a run record under artifacts/runs/<run-id>/.

Example:
  catsdogs train --epochs 12 --verbose
  catsdogs train --cache --run-name nightly`,
	Args: cobra.NoArgs,
	RunE: runTrain,
}

var (
	flagTrainSplitsDir string
	flagArtifactsDir   string
	flagEpochs         int
	flagBatchSize      int
	flagBins           int
	flagAugmentations  int
	flagTrainSeed      int64
	flagImageSize      int
	flagLoss           string
	flagAlpha          float64
	flagExperiment     string
	flagRunName        string
	flagDevice         string
	flagCache          bool
	flagVerbose        bool
)

func init() {
	d := config.DefaultConfig()
	f := trainCmd.Flags()
	f.StringVar(&flagTrainSplitsDir, "splits-dir", d.Data.SplitsDir, "Directory with the split manifests")
	f.StringVar(&flagArtifactsDir, "artifacts-dir", d.Train.ArtifactsDir, "Output directory for model, figures and runs")
	f.IntVar(&flagEpochs, "epochs", d.Train.Epochs, "Number of epochs")
	f.IntVar(&flagBatchSize, "batch-size", d.Train.BatchSize, "Rows per PartialFit batch")
	f.IntVar(&flagBins, "bins", d.Train.Bins, "Histogram bins per channel")
	f.IntVar(&flagAugmentations, "augmentations", d.Train.Augmentations, "Augmented variants per training image")
	f.Int64Var(&flagTrainSeed, "seed", d.Train.Seed, "Seed for augmentation and batch order")
	f.IntVar(&flagImageSize, "image-size", d.Train.ImageSize, "Square preprocessing size in pixels")
	f.StringVar(&flagLoss, "loss", d.Train.Loss, "Loss function (log_loss or hinge)")
	f.Float64Var(&flagAlpha, "alpha", d.Train.Alpha, "L2 regularization strength")
	f.StringVar(&flagExperiment, "experiment", d.Train.Experiment, "Experiment name recorded in the run")
	f.StringVar(&flagRunName, "run-name", "", "Run name (default baseline-<timestamp>)")
	f.StringVar(&flagDevice, "device", d.Train.Device, "Requested device (cpu, mps, cuda); training always runs on CPU")
	f.BoolVar(&flagCache, "cache", d.Train.Cache, "Reuse cached feature rows for unchanged images")
	f.BoolVarP(&flagVerbose, "verbose", "v", false, "Print per-epoch metrics")
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, _ []string) error {
	t := appConfig.Train
	splitsDir := appConfig.Data.SplitsDir
	f := cmd.Flags()
	if f.Changed("splits-dir") {
		splitsDir = flagTrainSplitsDir
	}
	if f.Changed("artifacts-dir") {
		t.ArtifactsDir = flagArtifactsDir
	}
	if f.Changed("epochs") {
		t.Epochs = flagEpochs
	}
	if f.Changed("batch-size") {
		t.BatchSize = flagBatchSize
	}
	if f.Changed("bins") {
		t.Bins = flagBins
	}
	if f.Changed("augmentations") {
		t.Augmentations = flagAugmentations
	}
	if f.Changed("seed") {
		t.Seed = flagTrainSeed
	}
	if f.Changed("image-size") {
		t.ImageSize = flagImageSize
	}
	if f.Changed("loss") {
		t.Loss = flagLoss
	}
	if f.Changed("alpha") {
		t.Alpha = flagAlpha
	}
	if f.Changed("experiment") {
		t.Experiment = flagExperiment
	}
	if f.Changed("run-name") {
		t.RunName = flagRunName
	}
	if f.Changed("device") {
		t.Device = flagDevice
	}
	if f.Changed("cache") {
		t.Cache = flagCache
	}
	switch t.Device {
	case "cpu", "mps", "cuda":
	default:
		return fmt.Errorf("unknown device %q: expected cpu, mps or cuda", t.Device)
	}
	if t.Device != "cpu" {
		printWarn("", fmt.Sprintf("requested device %q, but this classifier runs on CPU", t.Device))
	}

	base, err := workDir()
	if err != nil {
		return err
	}
	opts := train.Options{
		BaseDir:       base,
		SplitsDir:     splitsDir,
		ArtifactsDir:  t.ArtifactsDir,
		Epochs:        t.Epochs,
		BatchSize:     t.BatchSize,
		Bins:          t.Bins,
		Augmentations: t.Augmentations,
		ImageSize:     t.ImageSize,
		Seed:          t.Seed,
		Loss:          t.Loss,
		Alpha:         t.Alpha,
		Experiment:    t.Experiment,
		RunName:       t.RunName,
		Device:        t.Device,
		Cache:         t.Cache,
		Version:       version,
		GitSHA:        resolveGitSHA(),
	}
	if flagVerbose {
		opts.OnEpoch = func(epoch int, trainAcc, valAcc float64) {
			fmt.Printf("  Epoch %d/%d train_acc=%.4f val_acc=%.4f\n", epoch, t.Epochs, trainAcc, valAcc)
		}
	}

	printSection("catsdogs train")
	rep, err := train.Run(opts)
	if err != nil {
		return err
	}

	printOK("", fmt.Sprintf("run %s (%s)", rep.RunName, rep.RunID))
	printInfo("train", fmt.Sprintf("%d rows (skipped=%d, reused=%d)", rep.Train.Len(), rep.Train.Skipped, rep.Train.Reused))
	printMetrics("val", rep.Val.Metrics.Map())
	printMetrics("test", rep.Test.Metrics.Map())
	fmt.Println()
	printOK("", fmt.Sprintf("Model saved to: %s", rep.ModelPath))
	printOK("", fmt.Sprintf("Figures saved to: %s", rep.FiguresDir))
	printOK("", fmt.Sprintf("Run record: %s", rep.RunDir))
	return nil
}

// resolveGitSHA prefers GIT_SHA, then GITHUB_SHA, then the commit stamped
// at build time.
func resolveGitSHA() string {
	for _, key := range []string{"GIT_SHA", "GITHUB_SHA"} {
		if v, err := config.GetConfigValue(key); err == nil && v != "" {
			return v
		}
	}
	return commit
}
