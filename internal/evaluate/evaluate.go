package evaluate

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/kamusis/catsdogs/internal/dataset"
	"github.com/kamusis/catsdogs/internal/errs"
	"github.com/kamusis/catsdogs/internal/featureset"
	"github.com/kamusis/catsdogs/internal/model"
)

// Result is the outcome of one evaluation.
type Result struct {
	Metrics   Metrics
	Confusion [][]int
	// ConfusionPath is set when a figure was written.
	ConfusionPath string
	Skipped       int
	Samples       int
}

// ClassNames returns the labels of b ordered by class index.
func ClassNames(b *model.Bundle) []string {
	idx := make([]int, 0, len(b.IndexToClass))
	for i := range b.IndexToClass {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	names := make([]string, len(idx))
	for i, k := range idx {
		names[i] = b.IndexToClass[k]
	}
	return names
}

// FromFeatures predicts set.X with clf and scores it against set.Y.
func FromFeatures(clf model.Classifier, set *featureset.Set, classNames []string) (*Result, error) {
	if set == nil || set.Len() == 0 {
		return nil, fmt.Errorf("%w: nothing to evaluate", errs.ErrEmptyDataset)
	}
	pred := clf.Predict(set.X)
	return &Result{
		Metrics:   Compute(set.Y, pred),
		Confusion: Confusion(set.Y, pred, len(classNames)),
		Skipped:   set.Skipped,
		Samples:   set.Len(),
	}, nil
}

// ManifestOptions controls FromManifest.
type ManifestOptions struct {
	BaseDir string
	// FiguresDir receives confusion_matrix_<Prefix>.png when set.
	FiguresDir string
	Prefix     string
}

// FromManifest featurizes samples with the bundle's stored preprocessing and
// feature settings, then evaluates the bundle's classifier. Unusable samples
// are counted in Result.Skipped.
func FromManifest(b *model.Bundle, samples []dataset.Sample, opts ManifestOptions) (*Result, error) {
	set, err := featureset.Build(samples, featureset.Options{
		BaseDir:    opts.BaseDir,
		Preprocess: b.PreprocessConfig,
		Features:   b.FeatureConfig,
	})
	if err != nil {
		return nil, err
	}
	names := ClassNames(b)
	res, err := FromFeatures(b.Classifier, set, names)
	if err != nil {
		return nil, err
	}
	if opts.FiguresDir != "" {
		if err := res.WriteFigure(opts.FiguresDir, opts.Prefix, names); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// WriteFigure renders the confusion matrix to dir/confusion_matrix_<prefix>.png.
func (r *Result) WriteFigure(dir, prefix string, classNames []string) error {
	p := filepath.Join(dir, fmt.Sprintf("confusion_matrix_%s.png", prefix))
	if err := PlotConfusion(r.Confusion, classNames, fmt.Sprintf("Confusion Matrix (%s)", prefix), p); err != nil {
		return err
	}
	r.ConfusionPath = p
	return nil
}
