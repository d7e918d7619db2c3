// Package features turns preprocessed image tensors into fixed-length vectors.
package features

import (
	"fmt"

	"github.com/kamusis/catsdogs/internal/errs"
	"github.com/kamusis/catsdogs/internal/imaging"
)

// DefaultBins is the default number of histogram bins per channel.
const DefaultBins = 8

// Config is the feature configuration stored in the model bundle.
type Config struct {
	Bins int `json:"bins"`
}

// DefaultConfig returns the default feature configuration.
func DefaultConfig() Config {
	return Config{Bins: DefaultBins}
}

// Dim returns the feature vector length for this config.
func (c Config) Dim() int {
	return 3 * c.Bins
}

// Featurize converts a preprocessed image into its feature vector.
func Featurize(t *imaging.Tensor, cfg Config) ([]float32, error) {
	return ColorHistogram(t, cfg.Bins)
}

// ColorHistogram computes a per-channel histogram over [0, 1] with bins bins,
// normalizes each channel to fractions of its pixel count and concatenates
// the channels in R, G, B order. Values outside [0, 1] are not counted; 1.0
// falls into the last bin.
func ColorHistogram(t *imaging.Tensor, bins int) ([]float32, error) {
	if bins <= 0 {
		return nil, fmt.Errorf("%w: bins must be positive, got %d", errs.ErrConfig, bins)
	}
	if t == nil || len(t.Shape) != 3 || t.Shape[2] != 3 {
		var shape []int
		if t != nil {
			shape = t.Shape
		}
		return nil, fmt.Errorf("%w: expected image array shape (H, W, 3), got %v", errs.ErrShape, shape)
	}
	pixels := t.Shape[0] * t.Shape[1]
	if t.Shape[0] < 0 || t.Shape[1] < 0 || len(t.Data) != pixels*3 {
		return nil, fmt.Errorf("%w: data length %d does not match shape %v", errs.ErrShape, len(t.Data), t.Shape)
	}

	counts := make([]int, 3*bins)
	totals := [3]int{}
	for p := 0; p < pixels; p++ {
		for c := 0; c < 3; c++ {
			v := t.Data[p*3+c]
			if v < 0 || v > 1 {
				continue
			}
			b := int(v * float32(bins))
			if b >= bins {
				b = bins - 1
			}
			counts[c*bins+b]++
			totals[c]++
		}
	}

	out := make([]float32, 3*bins)
	for c := 0; c < 3; c++ {
		if totals[c] == 0 {
			continue
		}
		for b := 0; b < bins; b++ {
			out[c*bins+b] = float32(counts[c*bins+b]) / float32(totals[c])
		}
	}
	return out, nil
}
