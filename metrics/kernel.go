package metrics

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrInvalidKernel is returned for non-positive kernel sizes or sigmas.
var ErrInvalidKernel = errors.New("metrics: invalid kernel parameters")

// kernelRange returns the inclusive coordinate range of a size x size kernel
// grid: [floor(-size/2)+1, floor(size/2)]. Odd sizes are centred on zero.
func kernelRange(size int) (lo, hi int) {
	return -(size+1)/2 + 1, size / 2
}

func gaussianGrid(size int, sigma float64, scale float64) (*mat.Dense, error) {
	if size <= 0 || !(sigma > 0) {
		return nil, fmt.Errorf("%w: size=%d sigma=%v", ErrInvalidKernel, size, sigma)
	}
	lo, _ := kernelRange(size)
	g := mat.NewDense(size, size, nil)
	s2 := 2 * sigma * sigma
	for i := 0; i < size; i++ {
		x := float64(lo + i)
		for j := 0; j < size; j++ {
			y := float64(lo + j)
			g.Set(i, j, scale*math.Exp(-(x*x+y*y)/s2))
		}
	}
	return g, nil
}

// Gaussian2 returns the size x size Gaussian density
// 1/(2*pi*sigma^2) * exp(-(x^2+y^2)/(2*sigma^2)) sampled on integer offsets.
// The result is not normalised to sum to one.
func Gaussian2(size int, sigma float64) (*mat.Dense, error) {
	return gaussianGrid(size, sigma, 1/(2*math.Pi*sigma*sigma))
}

// FSpecialGauss returns a size x size Gaussian weighting kernel normalised to
// sum to one.
func FSpecialGauss(size int, sigma float64) (*mat.Dense, error) {
	g, err := gaussianGrid(size, sigma, 1)
	if err != nil {
		return nil, err
	}
	g.Scale(1/floats.Sum(g.RawMatrix().Data), g)
	return g, nil
}
