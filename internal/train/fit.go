// Package train fits the classifier over the split manifests and writes the
// model bundle, figures and run record.
package train

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/kamusis/catsdogs/internal/dataset"
	"github.com/kamusis/catsdogs/internal/errs"
	"github.com/kamusis/catsdogs/internal/evaluate"
	"github.com/kamusis/catsdogs/internal/featureset"
	"github.com/kamusis/catsdogs/internal/model"
)

// FitConfig controls Fit.
type FitConfig struct {
	Epochs    int
	BatchSize int
	Seed      int64
	Loss      string
	Alpha     float64
	// OnEpoch, when set, is called after each epoch.
	OnEpoch func(epoch int, trainAcc, valAcc float64)
}

// History is the per-epoch accuracy record.
type History struct {
	Epoch         []int     `json:"epoch"`
	TrainAccuracy []float64 `json:"train_accuracy"`
	ValAccuracy   []float64 `json:"val_accuracy"`
}

// Classes returns the class indices in ascending order.
func Classes() []int {
	out := make([]int, 0, len(dataset.ClassToIndex))
	for _, v := range dataset.ClassToIndex {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// Fit trains an SGD classifier. Each epoch visits the training rows in a
// fresh permutation drawn from a generator seeded once with cfg.Seed, in
// batches of cfg.BatchSize; the first batch fixes the class set.
func Fit(trainSet, valSet *featureset.Set, cfg FitConfig) (*model.SGDClassifier, *History, error) {
	if trainSet == nil || trainSet.Len() == 0 {
		return nil, nil, fmt.Errorf("%w: no training rows", errs.ErrEmptyDataset)
	}
	if valSet == nil || valSet.Len() == 0 {
		return nil, nil, fmt.Errorf("%w: no validation rows", errs.ErrEmptyDataset)
	}
	if cfg.Epochs <= 0 || cfg.BatchSize <= 0 {
		return nil, nil, fmt.Errorf("%w: epochs and batch size must be positive (got %d, %d)", errs.ErrConfig, cfg.Epochs, cfg.BatchSize)
	}
	clf, err := model.NewSGDClassifier(cfg.Loss, cfg.Alpha)
	if err != nil {
		return nil, nil, err
	}

	classes := Classes()
	s := uint64(cfg.Seed)
	rng := rand.New(rand.NewPCG(s, s>>1))
	n := trainSet.Len()
	h := &History{}
	first := true

	bx := make([][]float32, 0, cfg.BatchSize)
	by := make([]int, 0, cfg.BatchSize)
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		perm := rng.Perm(n)
		for start := 0; start < n; start += cfg.BatchSize {
			end := min(start+cfg.BatchSize, n)
			bx, by = bx[:0], by[:0]
			for _, i := range perm[start:end] {
				bx = append(bx, trainSet.X[i])
				by = append(by, trainSet.Y[i])
			}
			var fitClasses []int
			if first {
				fitClasses = classes
				first = false
			}
			if err := clf.PartialFit(bx, by, fitClasses); err != nil {
				return nil, nil, fmt.Errorf("epoch %d: %w", epoch, err)
			}
		}

		trainAcc := evaluate.Compute(trainSet.Y, clf.Predict(trainSet.X)).Accuracy
		valAcc := evaluate.Compute(valSet.Y, clf.Predict(valSet.X)).Accuracy
		h.Epoch = append(h.Epoch, epoch)
		h.TrainAccuracy = append(h.TrainAccuracy, trainAcc)
		h.ValAccuracy = append(h.ValAccuracy, valAcc)
		if cfg.OnEpoch != nil {
			cfg.OnEpoch(epoch, trainAcc, valAcc)
		}
	}
	return clf, h, nil
}
