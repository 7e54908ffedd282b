package metrics

import (
	"errors"
	"fmt"
	"math"

	"github.com/Noofbiz/vidpred/imgtensor"
)

var (
	// ErrShapeMismatch is returned when two images being compared differ in
	// shape.
	ErrShapeMismatch = errors.New("metrics: shape mismatch")

	// ErrInvalidOptions is returned by Options.Validate.
	ErrInvalidOptions = errors.New("metrics: invalid options")
)

// SSIM stabilisation constants.
const (
	K1 = 0.01
	K2 = 0.03
)

// MSE returns the sum of squared element differences divided by C*H*W.
func MSE(a, b *imgtensor.Buffer) (float64, error) {
	if a == nil || !a.SameShape(b) {
		return 0, fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, shapeOf(a), shapeOf(b))
	}
	return sqErr(a.Data, b.Data) / float64(a.C*a.H*a.W), nil
}

func shapeOf(b *imgtensor.Buffer) []int {
	if b == nil {
		return nil
	}
	return b.Shape()
}

func sqErr(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// PSNR returns the peak signal-to-noise ratio of two equally sized planes,
// 10*log10(DataRange^2 / mse). Identical inputs give +Inf, or opts.MaxPSNR
// when that cap is set.
func PSNR(a, b []float32, opts Options) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, fmt.Errorf("%w: %d vs %d values", ErrShapeMismatch, len(a), len(b))
	}
	mse := sqErr(a, b) / float64(len(a))
	psnr := math.Inf(1)
	if mse > 0 {
		psnr = 10 * math.Log10(opts.DataRange*opts.DataRange/mse)
	}
	if opts.MaxPSNR > 0 && psnr > opts.MaxPSNR {
		psnr = opts.MaxPSNR
	}
	return psnr, nil
}

// SSIM returns the mean structural similarity of two h x w planes.
//
// Local statistics are taken over a window centred on every pixel whose
// window fits entirely inside the image, and the SSIM map is averaged over
// those pixels. When the image is smaller than the configured window, the
// largest odd window that fits is used instead.
func SSIM(a, b []float32, h, w int, opts Options) (float64, error) {
	if h <= 0 || w <= 0 || len(a) != h*w || len(b) != h*w {
		return 0, fmt.Errorf("%w: %d and %d values for %dx%d", ErrShapeMismatch, len(a), len(b), h, w)
	}
	weights, size, covNorm, err := opts.window(h, w)
	if err != nil {
		return 0, err
	}

	c1 := (K1 * opts.DataRange) * (K1 * opts.DataRange)
	c2 := (K2 * opts.DataRange) * (K2 * opts.DataRange)
	pad := (size - 1) / 2

	var total float64
	var count int
	for y := pad; y < h-pad; y++ {
		for x := pad; x < w-pad; x++ {
			var ux, uy, uxx, uyy, uxy float64
			for ky := 0; ky < size; ky++ {
				row := (y - pad + ky) * w
				for kx := 0; kx < size; kx++ {
					wt := weights[ky*size+kx]
					i := row + x - pad + kx
					va, vb := float64(a[i]), float64(b[i])
					ux += wt * va
					uy += wt * vb
					uxx += wt * va * va
					uyy += wt * vb * vb
					uxy += wt * va * vb
				}
			}
			vx := covNorm * (uxx - ux*ux)
			vy := covNorm * (uyy - uy*uy)
			vxy := covNorm * (uxy - ux*uy)

			num := (2*ux*uy + c1) * (2*vxy + c2)
			den := (ux*ux + uy*uy + c1) * (vx + vy + c2)
			total += num / den
			count++
		}
	}
	return total / float64(count), nil
}
