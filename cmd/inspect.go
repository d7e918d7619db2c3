package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kamusis/catsdogs/internal/dataset"
	"github.com/kamusis/catsdogs/internal/model"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [bundle-path]",
	Short: "Show the contents of a model bundle or the split metadata",
	Long: `Display a formatted summary of a model bundle: run, classifier, feature
and preprocessing settings, training parameters, final metrics and versions.

With --splits, show the split metadata instead.

Example:
  catsdogs inspect
  catsdogs inspect artifacts/model/model.bundle
  catsdogs inspect --splits`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInspect,
}

var flagInspectSplits bool

func init() {
	inspectCmd.Flags().BoolVar(&flagInspectSplits, "splits", false, "Show split metadata instead of the bundle")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(_ *cobra.Command, args []string) error {
	if flagInspectSplits {
		dir := appConfig.Data.SplitsDir
		if len(args) == 1 {
			dir = args[0]
		}
		md, err := dataset.ReadMetadata(dir)
		if err != nil {
			return err
		}
		printSplitMetadata(dir, md)
		return nil
	}

	path := appConfig.Serve.ModelPath
	if len(args) == 1 {
		path = args[0]
	}
	b, err := model.Load(path)
	if err != nil {
		return err
	}
	printBundle(path, b)
	return nil
}

func printBundle(path string, b *model.Bundle) {
	fmt.Printf("📦 Bundle: %s\n", path)
	fmt.Printf("Run:      %s\n", b.RunID)
	fmt.Printf("Created:  %s\n", b.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("Schema:   v%d\n", b.SchemaVersion)
	fmt.Printf("Mode:     %s\n", b.ProbabilityMode)

	fmt.Println("\nClassifier:")
	if clf, ok := b.Classifier.(*model.SGDClassifier); ok {
		fmt.Printf("  type:     SGDClassifier(%s)\n", clf.Loss)
		fmt.Printf("  alpha:    %g\n", clf.Alpha)
		fmt.Printf("  samples:  %.0f\n", clf.T-1)
	}
	fmt.Printf("  features: %d\n", b.Classifier.NumFeatures())
	names := make([]string, 0, len(b.Classifier.Classes()))
	for _, k := range b.Classifier.Classes() {
		names = append(names, fmt.Sprintf("%d=%s", k, b.IndexToClass[k]))
	}
	fmt.Printf("  classes:  %s\n", strings.Join(names, ", "))

	p := b.PreprocessConfig
	fmt.Println("\nPreprocessing:")
	fmt.Printf("  size: %dx%d  normalize: %t  dtype: %s\n", p.Width, p.Height, p.Normalize, p.DType)
	fmt.Printf("  histogram bins: %d per channel\n", b.FeatureConfig.Bins)

	t := b.TrainingConfig
	fmt.Println("\nTraining:")
	fmt.Printf("  seed=%d epochs=%d batch_size=%d augmentations=%d device=%s\n",
		t.Seed, t.Epochs, t.BatchSize, t.Augmentations, t.Device)

	if len(b.Metrics) > 0 {
		fmt.Println("\nMetrics:")
		for _, split := range sortedKeys(b.Metrics) {
			m := b.Metrics[split]
			fmt.Printf("  %-5s accuracy=%.4f precision=%.4f recall=%.4f f1=%.4f\n",
				split, m["accuracy"], m["precision"], m["recall"], m["f1"])
		}
	}
	if len(b.Versions) > 0 {
		fmt.Println("\nVersions:")
		for _, k := range sortedKeys(b.Versions) {
			fmt.Printf("  %-28s %s\n", k, b.Versions[k])
		}
	}
	if len(b.BuildInfo) > 0 {
		fmt.Println("\nBuild:")
		for _, k := range sortedKeys(b.BuildInfo) {
			fmt.Printf("  %-28s %s\n", k, b.BuildInfo[k])
		}
	}
}

func printSplitMetadata(dir string, md *dataset.Metadata) {
	fmt.Printf("🗂  Splits: %s\n", dir)
	fmt.Printf("Source:   %s (%s)\n", md.DataSource.Path, md.DataSource.Type)
	fmt.Printf("Root:     %s\n", md.DatasetRoot)
	fmt.Printf("Seed:     %d\n", md.Seed)
	fmt.Printf("Ratios:   train=%.2f val=%.2f test=%.2f\n", md.Ratios.Train, md.Ratios.Val, md.Ratios.Test)
	fmt.Println("\nCounts:")
	for _, sp := range dataset.Splits {
		byClass := md.CountsByClass[string(sp)]
		parts := make([]string, 0, len(byClass))
		for _, label := range sortedKeys(byClass) {
			parts = append(parts, fmt.Sprintf("%s=%d", label, byClass[label]))
		}
		fmt.Printf("  %-5s %6d  (%s)\n", sp, md.Counts[string(sp)], strings.Join(parts, ", "))
	}
	fmt.Printf("\nFormat:   %s\n", md.ManifestFormat)
	fmt.Printf("Labels:   %s\n", md.LabelInference)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
