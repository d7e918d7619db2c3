package imaging

import (
	"image"
	"image/color"
	"math"
	"math/rand/v2"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

const (
	maxRotationDegrees = 15.0
	minJitter          = 0.85
	maxJitter          = 1.15
)

// AugmentRand returns the generator used for one augmented variant.
// Each (sample, variant) pair gets its own seed so variants are reproducible
// regardless of how many other samples were processed.
func AugmentRand(baseSeed int64, sampleIndex, variantIndex int) *rand.Rand {
	seed := baseSeed + int64(sampleIndex)*1000 + int64(variantIndex)
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
}

// Augment synthesizes a training variant of img: a horizontal flip with
// probability 0.5, a rotation in [-15, 15] degrees, then brightness and
// contrast jitter in [0.85, 1.15]. The draws happen in that order.
func Augment(img image.Image, rng *rand.Rand) *image.RGBA {
	out := ToRGB(img)
	if rng.Float64() < 0.5 {
		out = FlipHorizontal(out)
	}
	angle := -maxRotationDegrees + 2*maxRotationDegrees*rng.Float64()
	out = Rotate(out, angle)

	brightness := minJitter + (maxJitter-minJitter)*rng.Float64()
	contrast := minJitter + (maxJitter-minJitter)*rng.Float64()
	AdjustBrightness(out, brightness)
	AdjustContrast(out, contrast)
	return out
}

// FlipHorizontal mirrors src left to right.
func FlipHorizontal(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	w := b.Dx()
	for y := 0; y < b.Dy(); y++ {
		so := src.PixOffset(b.Min.X, b.Min.Y+y)
		do := dst.PixOffset(0, y)
		for x := 0; x < w; x++ {
			copy(dst.Pix[do+(w-1-x)*4:do+(w-1-x)*4+4], src.Pix[so+x*4:so+x*4+4])
		}
	}
	return dst
}

// Rotate rotates src counter-clockwise by degrees around its center, keeping
// the canvas size. Uncovered corners are black.
func Rotate(src *image.RGBA, degrees float64) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)

	theta := degrees * math.Pi / 180
	cos, sin := math.Cos(theta), math.Sin(theta)
	cx, cy := float64(b.Dx())/2, float64(b.Dy())/2
	// s2d maps source pixel coordinates to destination coordinates (y axis down).
	s2d := f64.Aff3{
		cos, sin, cx - cos*cx - sin*cy,
		-sin, cos, cy + sin*cx - cos*cy,
	}
	draw.BiLinear.Transform(dst, s2d, src, b, draw.Over, nil)
	return dst
}

// AdjustBrightness scales every channel by factor in place (blend with black).
func AdjustBrightness(img *image.RGBA, factor float64) {
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = clamp8(float64(img.Pix[i]) * factor)
		img.Pix[i+1] = clamp8(float64(img.Pix[i+1]) * factor)
		img.Pix[i+2] = clamp8(float64(img.Pix[i+2]) * factor)
	}
}

// AdjustContrast blends each channel with the image's mean gray level in place.
func AdjustContrast(img *image.RGBA, factor float64) {
	n := len(img.Pix) / 4
	if n == 0 {
		return
	}
	var sum float64
	for i := 0; i < len(img.Pix); i += 4 {
		sum += luma(img.Pix[i], img.Pix[i+1], img.Pix[i+2])
	}
	mean := math.Floor(sum/float64(n) + 0.5)
	for i := 0; i < len(img.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			img.Pix[i+c] = clamp8(mean*(1-factor) + float64(img.Pix[i+c])*factor)
		}
	}
}

func luma(r, g, b uint8) float64 {
	return (299*float64(r) + 587*float64(g) + 114*float64(b)) / 1000
}

func clamp8(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
