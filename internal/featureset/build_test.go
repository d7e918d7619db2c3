package featureset_test

import (
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamusis/catsdogs/internal/dataset"
	"github.com/kamusis/catsdogs/internal/errs"
	"github.com/kamusis/catsdogs/internal/features"
	"github.com/kamusis/catsdogs/internal/featureset"
	"github.com/kamusis/catsdogs/internal/imaging"
)

func writePNG(t *testing.T, path string, c color.Color) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	img := image.NewRGBA(image.Rect(0, 0, 20, 12))
	for y := 0; y < 12; y++ {
		for x := 0; x < 20; x++ {
			if x < 10 {
				img.Set(x, y, c)
			} else {
				img.Set(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 20), B: 60, A: 255})
			}
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func fixture(t *testing.T) (string, []dataset.Sample) {
	base := t.TempDir()
	writePNG(t, filepath.Join(base, "cats", "a.png"), color.RGBA{R: 250, A: 255})
	writePNG(t, filepath.Join(base, "cats", "b.png"), color.RGBA{R: 200, G: 30, A: 255})
	writePNG(t, filepath.Join(base, "dogs", "c.png"), color.RGBA{B: 250, A: 255})
	require.NoError(t, os.WriteFile(filepath.Join(base, "dogs", "broken.png"), []byte("not a png"), 0o644))
	return base, []dataset.Sample{
		{Path: "cats/a.png", Label: "cat"},
		{Path: "cats/b.png", Label: "cat"},
		{Path: "dogs/broken.png", Label: "dog"},
		{Path: "dogs/c.png", Label: "dog"},
		{Path: "dogs/missing.png", Label: "dog"},
	}
}

func opts(base string) featureset.Options {
	return featureset.Options{
		BaseDir:    base,
		Preprocess: imaging.PreprocessConfig{Width: 16, Height: 16, Normalize: true, DType: imaging.DTypeFloat32},
		Features:   features.DefaultConfig(),
		Seed:       1337,
	}
}

func TestBuild_SkipsBadSamples(t *testing.T) {
	base, samples := fixture(t)

	set, err := featureset.Build(samples, opts(base))
	require.NoError(t, err)
	assert.Equal(t, 3, set.Len())
	assert.Equal(t, 2, set.Skipped)
	assert.Equal(t, []int{0, 0, 1}, set.Y)
	for _, row := range set.X {
		require.Len(t, row, 24)
		var sum float32
		for _, v := range row[:8] {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-5)
	}
}

func TestBuild_SkipsEmptyImage(t *testing.T) {
	base, samples := fixture(t)
	f, err := os.Create(filepath.Join(base, "cats", "empty.png"))
	require.NoError(t, err)
	require.NoError(t, gif.Encode(f, image.NewPaletted(image.Rect(0, 0, 0, 0), color.Palette{color.Black}), nil))
	require.NoError(t, f.Close())

	o := opts(base)
	o.Augment = true
	o.Augmentations = 1
	set, err := featureset.Build([]dataset.Sample{samples[0], {Path: "cats/empty.png", Label: "cat"}}, o)
	require.NoError(t, err)
	assert.Equal(t, 1, set.Skipped)
	assert.Equal(t, 2, set.Len())

	_, err = featureset.Build([]dataset.Sample{{Path: "cats/empty.png", Label: "cat"}}, o)
	assert.ErrorIs(t, err, errs.ErrEmptyDataset)
}

func TestBuild_Augmentation(t *testing.T) {
	base, samples := fixture(t)
	o := opts(base)
	o.Augment = true
	o.Augmentations = 2

	set, err := featureset.Build(samples, o)
	require.NoError(t, err)
	assert.Equal(t, 9, set.Len())
	assert.Equal(t, []int{0, 0, 0, 0, 0, 0, 1, 1, 1}, set.Y)

	again, err := featureset.Build(samples, o)
	require.NoError(t, err)
	assert.Equal(t, set.X, again.X)
}

func TestBuild_Empty(t *testing.T) {
	base, _ := fixture(t)
	_, err := featureset.Build([]dataset.Sample{{Path: "dogs/broken.png", Label: "dog"}}, opts(base))
	assert.ErrorIs(t, err, errs.ErrEmptyDataset)

	_, err = featureset.Build(nil, opts(base))
	assert.ErrorIs(t, err, errs.ErrEmptyDataset)
}

func TestBuild_RejectsBadConfig(t *testing.T) {
	base, samples := fixture(t)
	o := opts(base)
	o.Features.Bins = 0
	_, err := featureset.Build(samples, o)
	assert.ErrorIs(t, err, errs.ErrConfig)
}

func TestBuild_CacheReuse(t *testing.T) {
	base, samples := fixture(t)
	o := opts(base)
	o.Augment = true
	o.Augmentations = 1
	o.CacheDir = filepath.Join(base, "cache", "train")

	first, err := featureset.Build(samples, o)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Reused)
	assert.FileExists(t, filepath.Join(o.CacheDir, "features_manifest.json"))

	second, err := featureset.Build(samples, o)
	require.NoError(t, err)
	assert.Equal(t, 3, second.Reused)
	assert.Equal(t, first.X, second.X)
	assert.Equal(t, first.Y, second.Y)

	writePNG(t, filepath.Join(base, "cats", "b.png"), color.RGBA{G: 250, A: 255})
	third, err := featureset.Build(samples, o)
	require.NoError(t, err)
	assert.Equal(t, 2, third.Reused)
	assert.NotEqual(t, first.X[2], third.X[2])

	o.Features.Bins = 4
	fourth, err := featureset.Build(samples, o)
	require.NoError(t, err)
	assert.Equal(t, 0, fourth.Reused)
	assert.Len(t, fourth.X[0], 12)
}
