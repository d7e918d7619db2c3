package features_test

import (
	"image"
	"image/color"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamusis/catsdogs/internal/errs"
	"github.com/kamusis/catsdogs/internal/features"
	"github.com/kamusis/catsdogs/internal/imaging"
)

func TestColorHistogram_ChannelsSumToOne(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	img := image.NewRGBA(image.Rect(0, 0, 37, 23))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.IntN(256))
	}
	tensor, err := imaging.Preprocess(img, 64, 64)
	require.NoError(t, err)

	for _, bins := range []int{1, 4, 8, 16} {
		vec, err := features.ColorHistogram(tensor, bins)
		require.NoError(t, err)
		require.Len(t, vec, 3*bins)
		for c := 0; c < 3; c++ {
			var sum float64
			for _, v := range vec[c*bins : (c+1)*bins] {
				sum += float64(v)
			}
			assert.InDelta(t, 1.0, sum, 1e-6, "bins=%d channel=%d", bins, c)
		}
	}
}

func TestColorHistogram_BinPlacement(t *testing.T) {
	tensor := &imaging.Tensor{
		Shape: []int{1, 2, 3},
		Data:  []float32{0, 0.5, 1, 0.24, 0.99, 1},
	}
	vec, err := features.ColorHistogram(tensor, 4)
	require.NoError(t, err)

	// R: 0 -> bin 0, 0.24 -> bin 0
	assert.Equal(t, []float32{1, 0, 0, 0}, vec[0:4])
	// G: 0.5 -> bin 2, 0.99 -> bin 3
	assert.Equal(t, []float32{0, 0, 0.5, 0.5}, vec[4:8])
	// B: 1.0 lands in the last bin
	assert.Equal(t, []float32{0, 0, 0, 1}, vec[8:12])
}

func TestColorHistogram_SolidRed(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	tensor, err := imaging.Preprocess(img, 8, 8)
	require.NoError(t, err)

	vec, err := features.Featurize(tensor, features.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, float32(1), vec[7])
	assert.Equal(t, float32(1), vec[8])
	assert.Equal(t, float32(1), vec[16])
}

func TestColorHistogram_ZeroPixels(t *testing.T) {
	vec, err := features.ColorHistogram(&imaging.Tensor{Shape: []int{0, 0, 3}}, 8)
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 24), vec)
}

func TestColorHistogram_ShapeErrors(t *testing.T) {
	cases := []*imaging.Tensor{
		nil,
		{Shape: []int{4, 4}, Data: make([]float32, 16)},
		{Shape: []int{2, 2, 4}, Data: make([]float32, 16)},
		{Shape: []int{2, 2, 3}, Data: make([]float32, 5)},
	}
	for _, tc := range cases {
		_, err := features.ColorHistogram(tc, 8)
		assert.ErrorIs(t, err, errs.ErrShape)
	}

	_, err := features.ColorHistogram(&imaging.Tensor{Shape: []int{1, 1, 3}, Data: make([]float32, 3)}, 0)
	assert.ErrorIs(t, err, errs.ErrConfig)
}
