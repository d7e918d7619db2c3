package dataset

import (
	"fmt"
	"math"
	"math/rand/v2"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/kamusis/catsdogs/internal/errs"
)

// DefaultSeed is the default split and training seed.
const DefaultSeed = 1337

const ratioTolerance = 1e-6

// Split names one dataset partition.
type Split string

const (
	SplitTrain Split = "train"
	SplitVal   Split = "val"
	SplitTest  Split = "test"
)

// Splits lists the partitions in manifest order.
var Splits = []Split{SplitTrain, SplitVal, SplitTest}

// ParseSplit validates a split name.
func ParseSplit(s string) (Split, error) {
	for _, sp := range Splits {
		if string(sp) == s {
			return sp, nil
		}
	}
	return "", fmt.Errorf("%w: unknown split %q (want train, val or test)", errs.ErrConfig, s)
}

// Ratios holds the fraction of each class assigned to each split.
type Ratios struct {
	Train float64 `json:"train" yaml:"train" mapstructure:"train"`
	Val   float64 `json:"val" yaml:"val" mapstructure:"val"`
	Test  float64 `json:"test" yaml:"test" mapstructure:"test"`
}

// DefaultRatios returns 0.8 / 0.1 / 0.1.
func DefaultRatios() Ratios {
	return Ratios{Train: 0.8, Val: 0.1, Test: 0.1}
}

// Validate rejects negative ratios and ratios that do not sum to 1.
func (r Ratios) Validate() error {
	if r.Train < 0 || r.Val < 0 || r.Test < 0 {
		return fmt.Errorf("%w: split ratios must be non-negative, got %+v", errs.ErrConfig, r)
	}
	if math.Abs(r.Train+r.Val+r.Test-1.0) > ratioTolerance {
		return fmt.Errorf("%w: split ratios must sum to 1.0, got %+v", errs.ErrConfig, r)
	}
	return nil
}

// Sample is one labeled image.
type Sample struct {
	Path  string
	Label string
}

// NormalizePath returns p with forward slashes in Unicode NFC form, the form
// used for sorting and for manifest output.
func NormalizePath(p string) string {
	return norm.NFC.String(filepath.ToSlash(p))
}

// classSeed derives the shuffle seed for one class from the global seed.
func classSeed(seed int64, label string) uint64 {
	return xxhash.Sum64String(strconv.FormatInt(seed, 10) + ":" + label)
}

// StratifiedSplit partitions each class independently. A class's paths are
// sorted, shuffled with a generator seeded from (seed, label), then cut into
// floor(n*train), floor(n*val) and the remainder for test. Each output split
// is sorted by path.
func StratifiedSplit(byLabel map[string][]string, seed int64, r Ratios) map[Split][]Sample {
	out := map[Split][]Sample{SplitTrain: {}, SplitVal: {}, SplitTest: {}}

	labels := make([]string, 0, len(byLabel))
	for label := range byLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		paths := make([]string, len(byLabel[label]))
		for i, p := range byLabel[label] {
			paths[i] = NormalizePath(p)
		}
		sort.Strings(paths)

		s := classSeed(seed, label)
		rng := rand.New(rand.NewPCG(s, s>>1))
		rng.Shuffle(len(paths), func(i, j int) { paths[i], paths[j] = paths[j], paths[i] })

		total := len(paths)
		trainN := int(float64(total) * r.Train)
		valN := int(float64(total) * r.Val)
		if trainN+valN > total {
			valN = total - trainN
		}

		for i, p := range paths {
			sample := Sample{Path: p, Label: label}
			switch {
			case i < trainN:
				out[SplitTrain] = append(out[SplitTrain], sample)
			case i < trainN+valN:
				out[SplitVal] = append(out[SplitVal], sample)
			default:
				out[SplitTest] = append(out[SplitTest], sample)
			}
		}
	}

	for _, sp := range Splits {
		items := out[sp]
		sort.SliceStable(items, func(i, j int) bool { return items[i].Path < items[j].Path })
	}
	return out
}
