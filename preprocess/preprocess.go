package preprocess

import (
	"fmt"
	"math"

	"github.com/Noofbiz/apsFeed/records"
)

// This package turns decoded uint8 images into normalized float32 images
// ready for batching: numeric widening, center crop-or-pad to a target
// height/width, then per-image mean/stddev standardization. All three steps
// are per-image and deterministic; nothing here looks at any other image in
// the dataset.

// FloatImage holds float32 pixel data with shape (Height, Width, Depth),
// same row-major layout as records.Image.
type FloatImage struct {
	Pix    []float32
	Height int
	Width  int
	Depth  int
}

// At returns the pixel value at (h, w, d).
func (im FloatImage) At(h, w, d int) float32 {
	return im.Pix[((h*im.Width)+w)*im.Depth+d]
}

// Convert widens uint8 pixels to float32 without rescaling: 0..255 stays
// 0.0..255.0.
func Convert(im records.Image) FloatImage {
	pix := make([]float32, len(im.Pix))
	for i, b := range im.Pix {
		pix[i] = float32(b)
	}
	return FloatImage{Pix: pix, Height: im.Height, Width: im.Width, Depth: im.Depth}
}

// CropOrPad resizes im to (targetH, targetW) by center-cropping dimensions
// that are too large and center zero-padding dimensions that are too small.
// The two dimensions are handled independently, so a tall narrow image can
// be cropped vertically and padded horizontally in one call. Depth is never
// altered. An exact-size input is copied through unchanged.
func CropOrPad(im FloatImage, targetH, targetW int) FloatImage {
	out := FloatImage{
		Pix:    make([]float32, targetH*targetW*im.Depth),
		Height: targetH,
		Width:  targetW,
		Depth:  im.Depth,
	}

	// Source and destination offsets per dimension. Cropping skips
	// (src-target)/2 leading rows/cols; padding leaves (target-src)/2
	// zeroed rows/cols before the copied region.
	srcH, dstH := centerOffsets(im.Height, targetH)
	srcW, dstW := centerOffsets(im.Width, targetW)
	copyH := min(im.Height, targetH)
	copyW := min(im.Width, targetW)

	for h := 0; h < copyH; h++ {
		srcRow := ((srcH+h)*im.Width + srcW) * im.Depth
		dstRow := ((dstH+h)*targetW + dstW) * im.Depth
		copy(out.Pix[dstRow:dstRow+copyW*im.Depth], im.Pix[srcRow:srcRow+copyW*im.Depth])
	}
	return out
}

func centerOffsets(src, target int) (srcOff, dstOff int) {
	if src > target {
		return (src - target) / 2, 0
	}
	return 0, (target - src) / 2
}

// Standardize subtracts the image's own pixel mean and divides by
// max(stddev, 1/sqrt(N)) where N is the pixel count. The floor keeps a
// constant image finite (it comes out all zero) rather than raising an
// error.
func Standardize(im FloatImage) FloatImage {
	n := len(im.Pix)
	if n == 0 {
		return im
	}

	var sum, sumSq float64
	for _, v := range im.Pix {
		sum += float64(v)
		sumSq += float64(v) * float64(v)
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0
	}
	stddev := math.Sqrt(variance)
	floor := 1.0 / math.Sqrt(float64(n))
	if stddev < floor {
		stddev = floor
	}

	out := FloatImage{
		Pix:    make([]float32, n),
		Height: im.Height,
		Width:  im.Width,
		Depth:  im.Depth,
	}
	for i, v := range im.Pix {
		out.Pix[i] = float32((float64(v) - mean) / stddev)
	}
	return out
}

// Process runs the full normalization chain: Convert, CropOrPad to
// (targetH, targetW), Standardize. The output shape is asserted; a mismatch
// means an internal invariant was broken and is returned as an error rather
// than silently handed downstream.
func Process(im records.Image, targetH, targetW int) (FloatImage, error) {
	if targetH <= 0 || targetW <= 0 {
		return FloatImage{}, fmt.Errorf("target size must be positive, got (%d,%d)", targetH, targetW)
	}

	out := Standardize(CropOrPad(Convert(im), targetH, targetW))

	if out.Height != targetH || out.Width != targetW || out.Depth != im.Depth ||
		len(out.Pix) != targetH*targetW*im.Depth {
		return FloatImage{}, fmt.Errorf("processed image has shape (%d,%d,%d) with %d pixels, want (%d,%d,%d)",
			out.Height, out.Width, out.Depth, len(out.Pix), targetH, targetW, im.Depth)
	}
	return out, nil
}
