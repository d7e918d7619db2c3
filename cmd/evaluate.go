package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kamusis/catsdogs/internal/dataset"
	"github.com/kamusis/catsdogs/internal/evaluate"
	"github.com/kamusis/catsdogs/internal/model"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score the model bundle on a split manifest",
	Long: `Load the model bundle, featurize one split with the bundle's stored
preprocessing and feature settings, and print accuracy and macro
precision/recall/F1. The confusion matrix is written to
<artifacts>/figures/confusion_matrix_<split>.png.

Example:
  catsdogs evaluate
  catsdogs evaluate --split val --model-path other/model.bundle`,
	Args: cobra.NoArgs,
	RunE: runEvaluate,
}

var (
	flagEvalSplit     string
	flagEvalModel     string
	flagEvalSplitsDir string
	flagNoFigure      bool
)

func init() {
	f := evaluateCmd.Flags()
	f.StringVar(&flagEvalSplit, "split", string(dataset.SplitTest), "Split to evaluate (train, val, test)")
	f.StringVar(&flagEvalModel, "model-path", "", "Model bundle (default serve.model_path)")
	f.StringVar(&flagEvalSplitsDir, "splits-dir", "", "Directory with the split manifests (default data.splits_dir)")
	f.BoolVar(&flagNoFigure, "no-figure", false, "Skip writing the confusion matrix figure")
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(_ *cobra.Command, _ []string) error {
	sp, err := dataset.ParseSplit(flagEvalSplit)
	if err != nil {
		return err
	}
	modelPath := flagEvalModel
	if modelPath == "" {
		modelPath = appConfig.Serve.ModelPath
	}
	splitsDir := flagEvalSplitsDir
	if splitsDir == "" {
		splitsDir = appConfig.Data.SplitsDir
	}
	base, err := workDir()
	if err != nil {
		return err
	}

	b, err := model.Load(modelPath)
	if err != nil {
		return err
	}
	samples, err := dataset.ReadManifest(filepath.Join(splitsDir, dataset.ManifestName(sp)))
	if err != nil {
		return err
	}
	opts := evaluate.ManifestOptions{BaseDir: base, Prefix: string(sp)}
	if !flagNoFigure {
		opts.FiguresDir = filepath.Join(appConfig.Train.ArtifactsDir, "figures")
	}
	res, err := evaluate.FromManifest(b, samples, opts)
	if err != nil {
		return err
	}

	printSection(fmt.Sprintf("catsdogs evaluate (%s)", sp))
	printInfo("", fmt.Sprintf("model: %s (run %s)", modelPath, b.RunID))
	printInfo("", fmt.Sprintf("samples: %d evaluated, %d skipped", res.Samples, res.Skipped))
	if res.Skipped > 0 {
		printWarn("", fmt.Sprintf("%d sample(s) could not be read or decoded", res.Skipped))
	}
	printMetrics(string(sp), res.Metrics.Map())
	printConfusion(res.Confusion, evaluate.ClassNames(b))
	if res.ConfusionPath != "" {
		fmt.Println()
		printOK("", fmt.Sprintf("Confusion matrix saved to: %s", res.ConfusionPath))
	}
	return nil
}

// printMetrics prints a metrics map in a fixed key order.
func printMetrics(name string, m map[string]float64) {
	printOK(name, fmt.Sprintf("accuracy=%.4f precision=%.4f recall=%.4f f1=%.4f",
		m["accuracy"], m["precision"], m["recall"], m["f1"]))
}

func printConfusion(cm [][]int, names []string) {
	fmt.Println("\n  Confusion matrix (rows = true, columns = predicted):")
	fmt.Printf("  %-8s", "")
	for _, n := range names {
		fmt.Printf("%8s", n)
	}
	fmt.Println()
	for i, row := range cm {
		label := fmt.Sprint(i)
		if i < len(names) {
			label = names[i]
		}
		fmt.Printf("  %-8s", label)
		for _, v := range row {
			fmt.Printf("%8d", v)
		}
		fmt.Println()
	}
}
