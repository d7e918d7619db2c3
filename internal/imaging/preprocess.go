package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // registers GIF for image.Decode
	_ "image/jpeg" // registers JPEG for image.Decode
	_ "image/png"  // registers PNG for image.Decode
	"io"
	"os"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"

	"github.com/kamusis/catsdogs/internal/errs"
)

// DefaultSize is the default target width and height.
const DefaultSize = 224

// DTypeFloat32 is the only numeric dtype the pipeline produces.
const DTypeFloat32 = "float32"

// Tensor is a dense row-major array. Preprocessed images have Shape [H, W, 3].
type Tensor struct {
	Shape []int
	Data  []float32
}

// At returns the value at (y, x, c) of a rank-3 tensor.
func (t *Tensor) At(y, x, c int) float32 {
	return t.Data[(y*t.Shape[1]+x)*t.Shape[2]+c]
}

// PreprocessConfig describes how images are turned into tensors. It is stored
// in the model bundle so inference reproduces training-time preprocessing.
type PreprocessConfig struct {
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Normalize bool   `json:"normalize"`
	DType     string `json:"dtype"`
}

// DefaultPreprocessConfig returns 224x224, normalized, float32.
func DefaultPreprocessConfig() PreprocessConfig {
	return PreprocessConfig{Width: DefaultSize, Height: DefaultSize, Normalize: true, DType: DTypeFloat32}
}

// Validate reports whether the config can be applied.
func (c PreprocessConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: image size must be positive, got %dx%d", errs.ErrConfig, c.Width, c.Height)
	}
	if c.DType != "" && c.DType != DTypeFloat32 {
		return fmt.Errorf("%w: unsupported dtype %q", errs.ErrConfig, c.DType)
	}
	return nil
}

// Decode reads an image in any registered format.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrDecode, err)
	}
	return img, nil
}

// DecodeBytes decodes an in-memory image.
func DecodeBytes(b []byte) (image.Image, error) {
	return Decode(bytes.NewReader(b))
}

// Open decodes the image stored at path.
func Open(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: image %s", errs.ErrNotFound, path)
		}
		return nil, fmt.Errorf("cannot open image %s: %w", path, err)
	}
	defer f.Close()
	img, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// ToRGB converts any color model to an opaque RGBA image anchored at (0, 0).
// Alpha is discarded rather than composited.
func ToRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	nrgba := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)

	out := image.NewRGBA(nrgba.Bounds())
	for i := 0; i < len(nrgba.Pix); i += 4 {
		out.Pix[i] = nrgba.Pix[i]
		out.Pix[i+1] = nrgba.Pix[i+1]
		out.Pix[i+2] = nrgba.Pix[i+2]
		out.Pix[i+3] = 0xff
	}
	return out
}

// Preprocess converts img to RGB, resizes it to width x height with bilinear
// interpolation (aspect ratio is not preserved) and scales values to [0, 1].
// An image without pixels is ErrDecode.
func Preprocess(img image.Image, width, height int) (*Tensor, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: image size must be positive, got %dx%d", errs.ErrConfig, width, height)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: image has no pixels (%dx%d)", errs.ErrDecode, b.Dx(), b.Dy())
	}
	rgb := ToRGB(img)
	resized := resize.Resize(uint(width), uint(height), rgb, resize.Bilinear)

	t := &Tensor{Shape: []int{height, width, 3}, Data: make([]float32, height*width*3)}
	rb := resized.Bounds()
	if rgba, ok := resized.(*image.RGBA); ok {
		for y := 0; y < height; y++ {
			row := rgba.Pix[rgba.PixOffset(rb.Min.X, rb.Min.Y+y):]
			for x := 0; x < width; x++ {
				i := (y*width + x) * 3
				t.Data[i] = float32(row[x*4]) / 255
				t.Data[i+1] = float32(row[x*4+1]) / 255
				t.Data[i+2] = float32(row[x*4+2]) / 255
			}
		}
		return t, nil
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.RGBAModel.Convert(resized.At(rb.Min.X+x, rb.Min.Y+y)).(color.RGBA)
			i := (y*width + x) * 3
			t.Data[i] = float32(c.R) / 255
			t.Data[i+1] = float32(c.G) / 255
			t.Data[i+2] = float32(c.B) / 255
		}
	}
	return t, nil
}

// PreprocessWith applies a stored PreprocessConfig.
func PreprocessWith(img image.Image, cfg PreprocessConfig) (*Tensor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t, err := Preprocess(img, cfg.Width, cfg.Height)
	if err != nil {
		return nil, err
	}
	if !cfg.Normalize {
		for i := range t.Data {
			t.Data[i] *= 255
		}
	}
	return t, nil
}
