package model

import (
	"fmt"
	"time"

	"github.com/kamusis/catsdogs/internal/errs"
	"github.com/kamusis/catsdogs/internal/features"
	"github.com/kamusis/catsdogs/internal/imaging"
)

// SchemaVersion is the bundle layout written by this build.
const SchemaVersion = 1

// TrainingConfig is the snapshot of training parameters kept in the bundle.
type TrainingConfig struct {
	Seed          int64   `json:"seed"`
	Epochs        int     `json:"epochs"`
	BatchSize     int     `json:"batch_size"`
	Augmentations int     `json:"augmentations_per_image"`
	FeatureBins   int     `json:"feature_bins"`
	Device        string  `json:"device"`
	Loss          string  `json:"loss"`
	Alpha         float64 `json:"alpha"`
}

// Bundle is everything inference needs: the fitted classifier plus the
// preprocessing and featurization settings used at training time. A bundle
// is never modified after it is built.
type Bundle struct {
	Classifier       Classifier
	ProbabilityMode  ProbabilityMode
	ClassToIndex     map[string]int
	IndexToClass     map[int]string
	FeatureConfig    features.Config
	PreprocessConfig imaging.PreprocessConfig
	TrainingConfig   TrainingConfig
	// Metrics maps a split name to its final metric values.
	Metrics       map[string]map[string]float64
	CreatedAt     time.Time
	RunID         string
	Versions      map[string]string
	BuildInfo     map[string]string
	SchemaVersion int
}

// InverseClasses returns index -> class for m.
func InverseClasses(m map[string]int) map[int]string {
	out := make(map[int]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// Validate checks the structural invariants of a bundle. Failures wrap
// errs.ErrBundleType.
func (b *Bundle) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil bundle", errs.ErrBundleType)
	}
	if b.SchemaVersion != SchemaVersion {
		return fmt.Errorf("%w: unsupported schema version %d", errs.ErrBundleType, b.SchemaVersion)
	}
	if b.Classifier == nil {
		return fmt.Errorf("%w: bundle has no classifier", errs.ErrBundleType)
	}
	if _, err := ParseProbabilityMode(string(b.ProbabilityMode)); err != nil {
		return err
	}
	if len(b.ClassToIndex) == 0 || len(b.ClassToIndex) != len(b.IndexToClass) {
		return fmt.Errorf("%w: class_to_index and index_to_class differ in size (%d vs %d)",
			errs.ErrBundleType, len(b.ClassToIndex), len(b.IndexToClass))
	}
	for name, idx := range b.ClassToIndex {
		if got, ok := b.IndexToClass[idx]; !ok || got != name {
			return fmt.Errorf("%w: class_to_index and index_to_class are not inverses at %q", errs.ErrBundleType, name)
		}
	}
	for i := 0; i < len(b.IndexToClass); i++ {
		if _, ok := b.IndexToClass[i]; !ok {
			return fmt.Errorf("%w: class indices are not contiguous from 0 (missing %d)", errs.ErrBundleType, i)
		}
	}
	for _, k := range b.Classifier.Classes() {
		if _, ok := b.IndexToClass[k]; !ok {
			return fmt.Errorf("%w: classifier class %d has no label", errs.ErrBundleType, k)
		}
	}
	if b.FeatureConfig.Bins <= 0 {
		return fmt.Errorf("%w: feature bins must be positive, got %d", errs.ErrBundleType, b.FeatureConfig.Bins)
	}
	if n := b.Classifier.NumFeatures(); n != 0 && n != b.FeatureConfig.Dim() {
		return fmt.Errorf("%w: classifier expects %d features but feature config yields %d",
			errs.ErrBundleType, n, b.FeatureConfig.Dim())
	}
	pc := b.PreprocessConfig
	if pc.DType != imaging.DTypeFloat32 {
		return fmt.Errorf("%w: unsupported dtype %q", errs.ErrBundleType, pc.DType)
	}
	if err := pc.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrBundleType, err)
	}
	return nil
}
