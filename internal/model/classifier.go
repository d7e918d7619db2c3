// Package model holds the linear classifier and the persisted model bundle.
package model

import (
	"errors"
	"fmt"

	"github.com/kamusis/catsdogs/internal/errs"
)

// ErrUnsupported is returned by a Classifier for an output it cannot produce.
var ErrUnsupported = errors.New("operation not supported by classifier")

// Classifier is a fitted model over fixed-length feature vectors.
type Classifier interface {
	// Classes lists the class indices in column order.
	Classes() []int
	NumFeatures() int
	Predict(X [][]float32) []int
	// PredictProba returns one row per sample, one column per class.
	PredictProba(X [][]float32) ([][]float64, error)
	// DecisionFunction returns one column for binary problems, one per
	// class otherwise.
	DecisionFunction(X [][]float32) ([][]float64, error)
}

// ProbabilityMode tells the predictor how to turn classifier output into a
// probability distribution. It is fixed when the bundle is built.
type ProbabilityMode string

const (
	NativeProbability ProbabilityMode = "native_probability"
	DecisionScore     ProbabilityMode = "decision_score"
	HardLabel         ProbabilityMode = "hard_label"
)

// ParseProbabilityMode validates a stored mode.
func ParseProbabilityMode(s string) (ProbabilityMode, error) {
	switch m := ProbabilityMode(s); m {
	case NativeProbability, DecisionScore, HardLabel:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown probability mode %q", errs.ErrBundleType, s)
}
