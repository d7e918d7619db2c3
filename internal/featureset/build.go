// Package featureset turns split manifests into feature matrices, skipping
// unreadable samples and optionally reusing rows from an on-disk cache.
package featureset

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kamusis/catsdogs/internal/dataset"
	"github.com/kamusis/catsdogs/internal/errs"
	"github.com/kamusis/catsdogs/internal/features"
	"github.com/kamusis/catsdogs/internal/imaging"
	"github.com/kamusis/catsdogs/internal/logging"
)

// Options controls Build.
type Options struct {
	// BaseDir resolves relative manifest paths.
	BaseDir    string
	Preprocess imaging.PreprocessConfig
	Features   features.Config
	// Augment adds Augmentations variants per image. Only for training data.
	Augment       bool
	Augmentations int
	Seed          int64
	// CacheDir enables the feature cache when set.
	CacheDir string
}

// Set is a feature matrix with integer labels.
type Set struct {
	X [][]float32
	Y []int
	// Skipped counts samples that could not be read, decoded or featurized.
	Skipped int
	// Reused counts samples whose rows came from the cache.
	Reused int
}

// Len returns the number of rows.
func (s *Set) Len() int { return len(s.Y) }

func (o Options) manifest() CacheManifest {
	augs := 0
	if o.Augment {
		augs = o.Augmentations
	}
	return CacheManifest{
		CacheVersion:  cacheVersion,
		Dim:           o.Features.Dim(),
		Bins:          o.Features.Bins,
		Width:         o.Preprocess.Width,
		Height:        o.Preprocess.Height,
		Normalize:     o.Preprocess.Normalize,
		Augment:       o.Augment,
		Augmentations: augs,
		Seed:          o.Seed,
		VectorFile:    defaultVectors,
		SamplesFile:   defaultSamples,
	}
}

// Build featurizes every sample. A sample that fails at any step is counted
// in Skipped and contributes no rows. Zero usable rows is ErrEmptyDataset.
func Build(samples []dataset.Sample, opts Options) (*Set, error) {
	if err := opts.Preprocess.Validate(); err != nil {
		return nil, err
	}
	if opts.Features.Bins <= 0 {
		return nil, fmt.Errorf("%w: bins must be positive, got %d", errs.ErrConfig, opts.Features.Bins)
	}
	log := logging.L()
	want := opts.manifest()
	dim := want.Dim

	reuse := map[int]reusable{}
	if opts.CacheDir != "" {
		reuse = loadReusable(opts.CacheDir, want)
	}

	set := &Set{}
	var (
		entries []SampleEntry
		vectors []float32
	)
	for idx, s := range samples {
		path := dataset.Resolve(opts.BaseDir, s.Path)
		label, ok := dataset.ClassToIndex[s.Label]
		if !ok {
			set.Skipped++
			log.Debug("skipping sample with unknown label", zap.String("path", s.Path), zap.String("label", s.Label))
			continue
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			set.Skipped++
			log.Debug("skipping unreadable sample", zap.String("path", path), zap.Error(err))
			continue
		}
		hash := ContentHash(raw)

		var rows [][]float32
		if r, ok := reuse[idx]; ok && r.entry.Path == s.Path && r.entry.ContentHash == hash && r.entry.Label == s.Label {
			rows = r.rows
			set.Reused++
		} else {
			rows, err = featurizeSample(raw, idx, opts)
			if err != nil {
				set.Skipped++
				log.Debug("skipping sample", zap.String("path", path), zap.Error(err))
				continue
			}
		}

		for _, row := range rows {
			set.X = append(set.X, row)
			set.Y = append(set.Y, label)
			vectors = append(vectors, row...)
		}
		entries = append(entries, SampleEntry{Index: idx, Path: s.Path, Label: s.Label, ContentHash: hash, Rows: len(rows)})
	}

	if set.Len() == 0 {
		return nil, fmt.Errorf("%w: no valid samples available after preprocessing (%d skipped)", errs.ErrEmptyDataset, set.Skipped)
	}

	if opts.CacheDir != "" {
		if err := writeCacheAtomic(opts.CacheDir, want, entries, vectors); err != nil {
			log.Warn("cannot write feature cache", zap.String("dir", opts.CacheDir), zap.Error(err))
		}
	}
	log.Debug("built feature matrix",
		zap.Int("rows", set.Len()), zap.Int("dim", dim),
		zap.Int("skipped", set.Skipped), zap.Int("reused", set.Reused))
	return set, nil
}

// featurizeSample returns the base row followed by the augmented rows.
func featurizeSample(raw []byte, idx int, opts Options) ([][]float32, error) {
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	rgb := imaging.ToRGB(img)

	row, err := featurize(rgb, opts)
	if err != nil {
		return nil, err
	}
	rows := [][]float32{row}
	if !opts.Augment {
		return rows, nil
	}
	for v := 0; v < opts.Augmentations; v++ {
		rng := imaging.AugmentRand(opts.Seed, idx, v)
		aug, err := featurize(imaging.Augment(rgb, rng), opts)
		if err != nil {
			return nil, err
		}
		rows = append(rows, aug)
	}
	return rows, nil
}

func featurize(img image.Image, opts Options) ([]float32, error) {
	t, err := imaging.PreprocessWith(img, opts.Preprocess)
	if err != nil {
		return nil, err
	}
	return features.Featurize(t, opts.Features)
}

type reusable struct {
	entry SampleEntry
	rows  [][]float32
}

func loadReusable(dir string, want CacheManifest) map[int]reusable {
	out := map[int]reusable{}
	c, err := LoadCache(dir)
	if err != nil {
		logging.L().Debug("feature cache not usable", zap.String("dir", dir), zap.Error(err))
		return out
	}
	if !c.Manifest.compatible(want) {
		logging.L().Info("feature cache parameters changed, rebuilding", zap.String("dir", dir))
		return out
	}
	offset := 0
	for _, e := range c.Samples {
		rows := make([][]float32, e.Rows)
		for r := range rows {
			start := offset + r*c.Manifest.Dim
			row := make([]float32, c.Manifest.Dim)
			copy(row, c.Vectors[start:start+c.Manifest.Dim])
			rows[r] = row
		}
		offset += e.Rows * c.Manifest.Dim
		out[e.Index] = reusable{entry: e, rows: rows}
	}
	return out
}

func writeCacheAtomic(dir string, m CacheManifest, entries []SampleEntry, vectors []float32) error {
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return err
	}
	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+"-*")
	if err != nil {
		return err
	}
	if err := WriteCache(tmp, m, entries, vectors); err != nil {
		_ = os.RemoveAll(tmp)
		return err
	}
	if err := AtomicSwap(tmp, dir); err != nil {
		_ = os.RemoveAll(tmp)
		return err
	}
	return nil
}
