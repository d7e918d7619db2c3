package train_test

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamusis/catsdogs/internal/dataset"
	"github.com/kamusis/catsdogs/internal/errs"
	"github.com/kamusis/catsdogs/internal/featureset"
	"github.com/kamusis/catsdogs/internal/model"
	"github.com/kamusis/catsdogs/internal/train"
)

func toySet() *featureset.Set {
	s := &featureset.Set{}
	for i := 0; i < 20; i++ {
		v := float32(i%5) * 0.01
		if i%2 == 0 {
			s.X = append(s.X, []float32{0.9 - v, 0.1 + v})
			s.Y = append(s.Y, 0)
		} else {
			s.X = append(s.X, []float32{0.1 + v, 0.9 - v})
			s.Y = append(s.Y, 1)
		}
	}
	return s
}

func fitConfig() train.FitConfig {
	return train.FitConfig{Epochs: 4, BatchSize: 6, Seed: 7, Loss: model.LossLog, Alpha: model.DefaultAlpha}
}

func TestFit(t *testing.T) {
	var seen []int
	cfg := fitConfig()
	cfg.OnEpoch = func(epoch int, _, _ float64) { seen = append(seen, epoch) }

	clf, h, err := train.Fit(toySet(), toySet(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, clf.Classes())
	assert.Equal(t, []int{1, 2, 3, 4}, h.Epoch)
	assert.Equal(t, h.Epoch, seen)
	assert.Len(t, h.TrainAccuracy, 4)
	assert.Len(t, h.ValAccuracy, 4)
	assert.InDelta(t, 1.0, h.ValAccuracy[3], 1e-12)
	assert.Equal(t, model.NativeProbability, clf.Mode())
}

func TestFit_Deterministic(t *testing.T) {
	a, ha, err := train.Fit(toySet(), toySet(), fitConfig())
	require.NoError(t, err)
	b, hb, err := train.Fit(toySet(), toySet(), fitConfig())
	require.NoError(t, err)
	assert.Equal(t, a.Coef, b.Coef)
	assert.Equal(t, a.Intercept, b.Intercept)
	assert.Equal(t, ha, hb)

	other := fitConfig()
	other.Seed = 8
	c, _, err := train.Fit(toySet(), toySet(), other)
	require.NoError(t, err)
	assert.NotEqual(t, a.Coef, c.Coef)
}

func TestFit_Errors(t *testing.T) {
	_, _, err := train.Fit(&featureset.Set{}, toySet(), fitConfig())
	assert.ErrorIs(t, err, errs.ErrEmptyDataset)

	_, _, err = train.Fit(toySet(), nil, fitConfig())
	assert.ErrorIs(t, err, errs.ErrEmptyDataset)

	bad := fitConfig()
	bad.BatchSize = 0
	_, _, err = train.Fit(toySet(), toySet(), bad)
	assert.ErrorIs(t, err, errs.ErrConfig)

	bad = fitConfig()
	bad.Loss = "squared"
	_, _, err = train.Fit(toySet(), toySet(), bad)
	assert.ErrorIs(t, err, errs.ErrConfig)
}

func TestPlotHistory(t *testing.T) {
	p := filepath.Join(t.TempDir(), "figures", "curve.png")
	h := &train.History{Epoch: []int{1, 2}, TrainAccuracy: []float64{0.5, 0.75}, ValAccuracy: []float64{0.4, 0.7}}
	require.NoError(t, train.PlotHistory(h, p))
	assert.FileExists(t, p)

	assert.Error(t, train.PlotHistory(&train.History{}, p))
}

func writePNG(t *testing.T, path string, c color.RGBA) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	img := image.NewRGBA(image.Rect(0, 0, 12, 12))
	for y := 0; y < 12; y++ {
		for x := 0; x < 12; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func prepareSplits(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	for i := 0; i < 6; i++ {
		d := uint8(i * 10)
		writePNG(t, filepath.Join(base, "data", "raw", "cats", "c"+string(rune('a'+i))+".png"), color.RGBA{R: 230 - d, G: 30 + d, B: 20, A: 255})
		writePNG(t, filepath.Join(base, "data", "raw", "dogs", "d"+string(rune('a'+i))+".png"), color.RGBA{R: 20, G: 30 + d, B: 230 - d, A: 255})
	}
	_, err := dataset.WriteSplits(dataset.Options{
		RawDir:    "data/raw",
		SplitsDir: "data/splits",
		BaseDir:   base,
		Seed:      1337,
		Ratios:    dataset.Ratios{Train: 0.5, Val: 0.25, Test: 0.25},
	})
	require.NoError(t, err)
	return base
}

func runOptions(base string) train.Options {
	return train.Options{
		BaseDir:       base,
		SplitsDir:     "data/splits",
		ArtifactsDir:  "artifacts",
		Epochs:        3,
		BatchSize:     4,
		Bins:          4,
		Augmentations: 1,
		ImageSize:     16,
		Seed:          1337,
		Loss:          model.LossLog,
		Alpha:         model.DefaultAlpha,
		Experiment:    "cats-vs-dogs",
		Device:        "cuda",
		Version:       "test",
		GitSHA:        "abc123",
	}
}

func TestRun(t *testing.T) {
	base := prepareSplits(t)
	opts := runOptions(base)
	opts.Cache = true

	rep, err := train.Run(opts)
	require.NoError(t, err)

	artifacts := filepath.Join(base, "artifacts")
	assert.Equal(t, filepath.Join(artifacts, "model", "model.bundle"), rep.ModelPath)
	assert.FileExists(t, filepath.Join(artifacts, "figures", "training_curve.png"))
	assert.FileExists(t, filepath.Join(artifacts, "figures", "confusion_matrix_val.png"))
	assert.FileExists(t, filepath.Join(artifacts, "figures", "confusion_matrix_test.png"))
	assert.DirExists(t, filepath.Join(artifacts, "cache", "train"))
	// 3 training images per class, each with one augmented variant.
	assert.Equal(t, 12, rep.Train.Len())
	assert.Len(t, rep.History.Epoch, 3)

	b, err := model.Load(rep.ModelPath)
	require.NoError(t, err)
	assert.Equal(t, rep.RunID, b.RunID)
	assert.Equal(t, model.NativeProbability, b.ProbabilityMode)
	assert.Equal(t, 4, b.FeatureConfig.Bins)
	assert.Equal(t, 16, b.PreprocessConfig.Width)
	assert.Equal(t, "cuda", b.TrainingConfig.Device)
	assert.Equal(t, "abc123", b.BuildInfo["git_sha"])
	assert.Equal(t, "test", b.Versions["catsdogs"])
	assert.Contains(t, b.Metrics, "val")
	assert.Contains(t, b.Metrics, "test")

	params, metrics, err := train.ReadRecord(filepath.Join(artifacts, "runs", rep.RunID))
	require.NoError(t, err)
	assert.Equal(t, 12, params.TrainSamples)
	assert.Equal(t, 2, params.ValSamples)
	assert.Equal(t, 4, params.TestSamples)
	assert.Equal(t, "16x16", params.ImageSize)
	assert.Equal(t, "SGDClassifier(log_loss)", params.ModelType)
	assert.Equal(t, dataset.SourceFilesystem, params.DataSourceType)
	assert.Equal(t, rep.RunName, params.RunName)
	assert.Equal(t, rep.Test.Metrics, metrics.Test)
	assert.Equal(t, *rep.History, metrics.History)

	// A second run replaces the bundle and reuses the cached features.
	rep2, err := train.Run(opts)
	require.NoError(t, err)
	assert.Equal(t, 6, rep2.Train.Reused)
	assert.NotEqual(t, rep.RunID, rep2.RunID)
}

func TestRun_MissingSplits(t *testing.T) {
	_, err := train.Run(runOptions(t.TempDir()))
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
