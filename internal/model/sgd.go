package model

import (
	"fmt"
	"math"
	"slices"

	"github.com/kamusis/catsdogs/internal/errs"
)

const (
	LossLog   = "log_loss"
	LossHinge = "hinge"
)

// DefaultAlpha is the L2 regularization strength.
const DefaultAlpha = 1e-4

const maxUpdate = 1e12

// SGDClassifier is a linear model fitted by per-sample stochastic gradient
// descent with an L2 penalty and the "optimal" learning rate schedule
// eta = 1 / (alpha * (t0 + t - 1)). Binary problems keep a single weight
// vector whose positive side is Classes[1]; more classes are fitted one
// versus rest.
//
// Fields are exported so the bundle codec can persist the fitted state.
type SGDClassifier struct {
	Loss  string
	Alpha float64

	ClassList []int
	// Coef has one row for binary problems, one per class otherwise.
	Coef      [][]float64
	Intercept []float64
	// T counts samples seen across PartialFit calls, starting at 1.
	T float64
}

// NewSGDClassifier returns an unfitted classifier.
func NewSGDClassifier(loss string, alpha float64) (*SGDClassifier, error) {
	if loss != LossLog && loss != LossHinge {
		return nil, fmt.Errorf("%w: unsupported loss %q (want %s or %s)", errs.ErrConfig, loss, LossLog, LossHinge)
	}
	if alpha <= 0 {
		return nil, fmt.Errorf("%w: alpha must be positive, got %g", errs.ErrConfig, alpha)
	}
	return &SGDClassifier{Loss: loss, Alpha: alpha, T: 1}, nil
}

// Mode returns the probability mode that matches the loss.
func (c *SGDClassifier) Mode() ProbabilityMode {
	if c.Loss == LossLog {
		return NativeProbability
	}
	return DecisionScore
}

func (c *SGDClassifier) Classes() []int { return slices.Clone(c.ClassList) }

func (c *SGDClassifier) NumFeatures() int {
	if len(c.Coef) == 0 {
		return 0
	}
	return len(c.Coef[0])
}

// Fitted reports whether PartialFit has run at least once.
func (c *SGDClassifier) Fitted() bool { return len(c.Coef) > 0 }

// PartialFit runs one pass of SGD over X. The first call must pass classes,
// which fixes the class set; later calls may pass nil.
func (c *SGDClassifier) PartialFit(X [][]float32, y []int, classes []int) error {
	if len(X) != len(y) {
		return fmt.Errorf("%w: %d rows but %d labels", errs.ErrShape, len(X), len(y))
	}
	if !c.Fitted() {
		if len(sortedCopy(classes)) < 2 {
			return fmt.Errorf("%w: first PartialFit needs at least two distinct classes", errs.ErrConfig)
		}
		if len(X) == 0 {
			return fmt.Errorf("%w: first PartialFit needs samples", errs.ErrEmptyDataset)
		}
		c.init(classes, len(X[0]))
	} else if classes != nil && !slices.Equal(sortedCopy(classes), c.ClassList) {
		return fmt.Errorf("%w: classes %v differ from fitted classes %v", errs.ErrConfig, classes, c.ClassList)
	}

	col := make(map[int]int, len(c.ClassList))
	for i, k := range c.ClassList {
		col[k] = i
	}
	dim := c.NumFeatures()
	for i, row := range X {
		if len(row) != dim {
			return fmt.Errorf("%w: row %d has %d features, want %d", errs.ErrShape, i, len(row), dim)
		}
		if _, ok := col[y[i]]; !ok {
			return fmt.Errorf("%w: label %d not in classes %v", errs.ErrConfig, y[i], c.ClassList)
		}
	}

	t0 := c.optimalInit()
	for i, row := range X {
		eta := 1.0 / (c.Alpha * (t0 + c.T - 1))
		shrink := math.Max(0, 1-eta*c.Alpha)
		for r := range c.Coef {
			target := -1.0
			if c.binary() {
				if y[i] == c.ClassList[1] {
					target = 1
				}
			} else if col[y[i]] == r {
				target = 1
			}
			p := dot(c.Coef[r], row) + c.Intercept[r]
			update := -eta * c.dloss(p, target)
			update = math.Max(-maxUpdate, math.Min(maxUpdate, update))

			w := c.Coef[r]
			for j := range w {
				w[j] *= shrink
			}
			if update != 0 {
				for j, v := range row {
					w[j] += update * float64(v)
				}
				c.Intercept[r] += update
			}
		}
		c.T++
	}
	return nil
}

func (c *SGDClassifier) init(classes []int, dim int) {
	c.ClassList = sortedCopy(classes)
	rows := len(c.ClassList)
	if rows == 2 {
		rows = 1
	}
	c.Coef = make([][]float64, rows)
	for r := range c.Coef {
		c.Coef[r] = make([]float64, dim)
	}
	c.Intercept = make([]float64, rows)
	if c.T < 1 {
		c.T = 1
	}
}

func (c *SGDClassifier) binary() bool { return len(c.ClassList) == 2 }

// optimalInit returns t0 such that the first step size matches the typical
// weight scale sqrt(1/sqrt(alpha)).
func (c *SGDClassifier) optimalInit() float64 {
	typw := math.Sqrt(1.0 / math.Sqrt(c.Alpha))
	eta0 := typw / math.Max(1.0, math.Abs(c.dloss(-typw, 1.0)))
	return 1.0 / (eta0 * c.Alpha)
}

// dloss is the derivative of the loss with respect to the score p.
func (c *SGDClassifier) dloss(p, y float64) float64 {
	z := p * y
	if c.Loss == LossHinge {
		if z <= 1 {
			return -y
		}
		return 0
	}
	switch {
	case z > 18:
		return -y * math.Exp(-z)
	case z < -18:
		return -y
	}
	return -y / (math.Exp(z) + 1)
}

func (c *SGDClassifier) scores(X [][]float32) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		s := make([]float64, len(c.Coef))
		for r := range c.Coef {
			s[r] = dot(c.Coef[r], row) + c.Intercept[r]
		}
		out[i] = s
	}
	return out
}

func (c *SGDClassifier) DecisionFunction(X [][]float32) ([][]float64, error) {
	if !c.Fitted() {
		return nil, fmt.Errorf("%w: classifier is not fitted", errs.ErrBundleType)
	}
	return c.scores(X), nil
}

func (c *SGDClassifier) Predict(X [][]float32) []int {
	out := make([]int, len(X))
	if !c.Fitted() {
		return out
	}
	for i, s := range c.scores(X) {
		if c.binary() {
			if s[0] > 0 {
				out[i] = c.ClassList[1]
			} else {
				out[i] = c.ClassList[0]
			}
			continue
		}
		best := 0
		for r := 1; r < len(s); r++ {
			if s[r] > s[best] {
				best = r
			}
		}
		out[i] = c.ClassList[best]
	}
	return out
}

// PredictProba is only available for log_loss. One-vs-rest probabilities
// are normalized to sum to one.
func (c *SGDClassifier) PredictProba(X [][]float32) ([][]float64, error) {
	if c.Loss != LossLog {
		return nil, fmt.Errorf("%w: predict_proba needs %s, classifier uses %s", ErrUnsupported, LossLog, c.Loss)
	}
	if !c.Fitted() {
		return nil, fmt.Errorf("%w: classifier is not fitted", errs.ErrBundleType)
	}
	out := make([][]float64, len(X))
	for i, s := range c.scores(X) {
		if c.binary() {
			p := sigmoid(s[0])
			out[i] = []float64{1 - p, p}
			continue
		}
		row := make([]float64, len(s))
		var sum float64
		for r, v := range s {
			row[r] = sigmoid(v)
			sum += row[r]
		}
		for r := range row {
			if sum > 0 {
				row[r] /= sum
			} else {
				row[r] = 1 / float64(len(row))
			}
		}
		out[i] = row
	}
	return out, nil
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func dot(w []float64, x []float32) float64 {
	var s float64
	for j, v := range x {
		s += w[j] * float64(v)
	}
	return s
}

func sortedCopy(xs []int) []int {
	out := slices.Clone(xs)
	slices.Sort(out)
	return slices.Compact(out)
}
