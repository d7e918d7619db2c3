package imaging_test

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamusis/catsdogs/internal/errs"
	"github.com/kamusis/catsdogs/internal/imaging"
)

func TestPreprocess_GrayscaleShapeAndRange(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 300, 200))
	for i := range img.Pix {
		img.Pix[i] = 128
	}

	out, err := imaging.Preprocess(img, imaging.DefaultSize, imaging.DefaultSize)
	require.NoError(t, err)
	assert.Equal(t, []int{224, 224, 3}, out.Shape)
	require.Len(t, out.Data, 224*224*3)
	for _, v := range out.Data {
		if v < 0 || v > 1 {
			t.Fatalf("value %v outside [0, 1]", v)
		}
	}
	assert.InDelta(t, 128.0/255.0, out.At(100, 100, 0), 1.0/255.0)
	assert.Equal(t, out.At(10, 10, 0), out.At(10, 10, 2))
}

func TestPreprocess_DropsAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 200, 100, 50, 128
	}

	out, err := imaging.Preprocess(img, 4, 4)
	require.NoError(t, err)
	assert.InDelta(t, 200.0/255.0, out.At(0, 0, 0), 2.0/255.0)
	assert.InDelta(t, 100.0/255.0, out.At(0, 0, 1), 2.0/255.0)
	assert.InDelta(t, 50.0/255.0, out.At(0, 0, 2), 2.0/255.0)
}

func TestPreprocess_NonSquareTarget(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 40))
	out, err := imaging.Preprocess(img, 16, 8)
	require.NoError(t, err)
	assert.Equal(t, []int{8, 16, 3}, out.Shape)
}

func TestPreprocess_EmptyImage(t *testing.T) {
	for _, r := range []image.Rectangle{image.Rect(0, 0, 0, 0), image.Rect(0, 0, 5, 0), image.Rect(3, 3, 3, 9)} {
		_, err := imaging.Preprocess(image.NewRGBA(r), 4, 4)
		assert.ErrorIs(t, err, errs.ErrDecode, "bounds %v", r)
	}

	// GIF happily encodes a zero-sized frame and decodes it back.
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, image.NewPaletted(image.Rect(0, 0, 0, 0), color.Palette{color.Black}), nil))
	decoded, err := imaging.DecodeBytes(buf.Bytes())
	require.NoError(t, err)
	_, err = imaging.PreprocessWith(decoded, imaging.PreprocessConfig{Width: 4, Height: 4, Normalize: true, DType: imaging.DTypeFloat32})
	assert.ErrorIs(t, err, errs.ErrDecode)
}

func TestPreprocessWith_Unnormalized(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+3] = 255, 255
	}
	cfg := imaging.PreprocessConfig{Width: 4, Height: 4, Normalize: false, DType: imaging.DTypeFloat32}

	out, err := imaging.PreprocessWith(img, cfg)
	require.NoError(t, err)
	assert.InDelta(t, 255.0, out.At(1, 1, 0), 1e-3)
	assert.InDelta(t, 0.0, out.At(1, 1, 1), 1e-3)
}

func TestPreprocessWith_RejectsBadConfig(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))

	_, err := imaging.PreprocessWith(img, imaging.PreprocessConfig{Width: 0, Height: 4})
	assert.ErrorIs(t, err, errs.ErrConfig)

	_, err = imaging.PreprocessWith(img, imaging.PreprocessConfig{Width: 4, Height: 4, DType: "float16"})
	assert.ErrorIs(t, err, errs.ErrConfig)
}

func TestDecodeBytes(t *testing.T) {
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 3, 3))
	img.Set(1, 1, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	require.NoError(t, png.Encode(&buf, img))

	decoded, err := imaging.DecodeBytes(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 3, decoded.Bounds().Dx())

	_, err = imaging.DecodeBytes([]byte("definitely not an image"))
	assert.ErrorIs(t, err, errs.ErrDecode)
}

func TestOpen_Missing(t *testing.T) {
	_, err := imaging.Open(t.TempDir() + "/missing.png")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
