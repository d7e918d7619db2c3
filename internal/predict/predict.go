// Package predict runs a model bundle on a single image.
package predict

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"strconv"

	"go.uber.org/zap"

	"github.com/kamusis/catsdogs/internal/errs"
	"github.com/kamusis/catsdogs/internal/features"
	"github.com/kamusis/catsdogs/internal/imaging"
	"github.com/kamusis/catsdogs/internal/logging"
	"github.com/kamusis/catsdogs/internal/model"
)

// Result is a single prediction.
type Result struct {
	Label         string             `json:"label"`
	Probability   float64            `json:"probability"`
	Probabilities map[string]float64 `json:"probabilities"`
	// Labels lists the class labels in probability column order.
	Labels []string `json:"-"`
}

// Bytes decodes payload and predicts it.
func Bytes(b *model.Bundle, payload []byte) (*Result, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty image payload", errs.ErrEmptyPayload)
	}
	img, err := imaging.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	return Image(b, img)
}

// Path opens and predicts the image at path.
func Path(b *model.Bundle, path string) (*Result, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, err
	}
	return Image(b, img)
}

// Image preprocesses and featurizes img with the bundle's stored settings and
// returns the most probable label. Ties go to the lowest column.
func Image(b *model.Bundle, img image.Image) (*Result, error) {
	t, err := imaging.PreprocessWith(img, b.PreprocessConfig)
	if err != nil {
		return nil, err
	}
	vec, err := features.Featurize(t, b.FeatureConfig)
	if err != nil {
		return nil, err
	}
	proba, err := probabilities(b, vec)
	if err != nil {
		return nil, err
	}
	if len(proba) == 0 {
		return nil, fmt.Errorf("%w: classifier returned no probabilities", errs.ErrBundleType)
	}

	labels := resolveLabels(b, len(proba))
	res := &Result{Probabilities: make(map[string]float64, len(proba)), Labels: labels}
	best := 0
	for i, p := range proba {
		res.Probabilities[labels[i]] = p
		if p > proba[best] {
			best = i
		}
	}
	res.Label = labels[best]
	res.Probability = proba[best]
	return res, nil
}

func probabilities(b *model.Bundle, vec []float32) ([]float64, error) {
	X := [][]float32{vec}
	clf := b.Classifier
	switch b.ProbabilityMode {
	case model.NativeProbability:
		p, err := clf.PredictProba(X)
		if err != nil {
			return nil, err
		}
		return firstRow(p)
	case model.DecisionScore:
		s, err := clf.DecisionFunction(X)
		if err != nil {
			return nil, err
		}
		row, err := firstRow(s)
		if err != nil {
			return nil, err
		}
		return ScoresToProba(row), nil
	case model.HardLabel:
		pred := clf.Predict(X)
		classes := clf.Classes()
		out := make([]float64, len(classes))
		for i, k := range classes {
			if len(pred) > 0 && pred[0] == k {
				out[i] = 1
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unknown probability mode %q", errs.ErrBundleType, b.ProbabilityMode)
}

func firstRow(m [][]float64) ([]float64, error) {
	if len(m) == 0 {
		return nil, fmt.Errorf("%w: classifier returned no rows", errs.ErrBundleType)
	}
	return m[0], nil
}

// ScoresToProba maps decision scores to probabilities: a sigmoid over a
// single score column, a max-subtracted softmax otherwise.
func ScoresToProba(scores []float64) []float64 {
	if len(scores) == 1 {
		pos := 1 / (1 + math.Exp(-scores[0]))
		return []float64{1 - pos, pos}
	}
	maxScore := math.Inf(-1)
	for _, s := range scores {
		maxScore = math.Max(maxScore, s)
	}
	out := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		out[i] = math.Exp(s - maxScore)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// resolveLabels maps the classifier's classes to bundle labels. When the
// count does not match the probability columns, stringified column indices
// are used instead.
func resolveLabels(b *model.Bundle, n int) []string {
	classes := b.Classifier.Classes()
	if classes == nil {
		classes = make([]int, n)
		for i := range classes {
			classes[i] = i
		}
	}
	labels := make([]string, 0, len(classes))
	for _, k := range classes {
		if name, ok := b.IndexToClass[k]; ok {
			labels = append(labels, name)
		} else {
			labels = append(labels, strconv.Itoa(k))
		}
	}
	if len(labels) != n {
		logging.L().Warn("classifier classes do not match probability columns, using indices as labels",
			zap.Int("classes", len(labels)), zap.Int("columns", n))
		labels = make([]string, n)
		for i := range labels {
			labels[i] = strconv.Itoa(i)
		}
	}
	return labels
}
