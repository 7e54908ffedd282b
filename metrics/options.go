package metrics

import "fmt"

// Window selects how SSIM weights pixels inside the local window.
type Window int

const (
	// Uniform weights every pixel equally.
	Uniform Window = iota

	// Gaussian weights pixels with FSpecialGauss(size, Sigma).
	Gaussian
)

func (w Window) String() string {
	switch w {
	case Uniform:
		return "uniform"
	case Gaussian:
		return "gaussian"
	default:
		return fmt.Sprintf("Window(%d)", int(w))
	}
}

// ParseWindow maps "uniform" or "gaussian" to a Window.
func ParseWindow(s string) (Window, error) {
	switch s {
	case "uniform", "":
		return Uniform, nil
	case "gaussian":
		return Gaussian, nil
	default:
		return 0, fmt.Errorf("%w: unknown window %q", ErrInvalidOptions, s)
	}
}

// Default window sizes. The Gaussian default covers 3.5 sigma on each side of
// the centre for sigma = 1.5.
const (
	DefaultUniformWindow  = 7
	DefaultGaussianWindow = 11
	DefaultSigma          = 1.5
)

// Options configures SSIM/PSNR evaluation.
type Options struct {
	// DataRange is the distance between the minimum and maximum possible
	// pixel values. It scales the SSIM constants and the PSNR peak and is
	// never inferred from the data.
	DataRange float64

	// Window selects uniform or Gaussian SSIM weighting.
	Window Window

	// WindowSize is the odd side length of the SSIM window. Zero selects the
	// default for Window.
	WindowSize int

	// Sigma is the Gaussian window standard deviation.
	Sigma float64

	// MaxPSNR caps PSNR when positive. Zero leaves identical images at +Inf.
	MaxPSNR float64

	// Workers evaluates samples concurrently when > 1.
	Workers int
}

// DefaultOptions returns options for images normalised to [0, 1].
func DefaultOptions() Options {
	return Options{
		DataRange: 1,
		Window:    Uniform,
		Sigma:     DefaultSigma,
	}
}

// Validate reports the first invalid field.
func (o Options) Validate() error {
	switch {
	case !(o.DataRange > 0):
		return fmt.Errorf("%w: data range must be positive, got %v", ErrInvalidOptions, o.DataRange)
	case o.WindowSize < 0 || (o.WindowSize > 0 && o.WindowSize%2 == 0):
		return fmt.Errorf("%w: window size must be odd, got %d", ErrInvalidOptions, o.WindowSize)
	case o.Window == Gaussian && !(o.Sigma > 0):
		return fmt.Errorf("%w: gaussian sigma must be positive, got %v", ErrInvalidOptions, o.Sigma)
	case o.Window != Uniform && o.Window != Gaussian:
		return fmt.Errorf("%w: %v", ErrInvalidOptions, o.Window)
	case o.MaxPSNR < 0:
		return fmt.Errorf("%w: max psnr must not be negative, got %v", ErrInvalidOptions, o.MaxPSNR)
	case o.Workers < 0:
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidOptions, o.Workers)
	}
	return nil
}

// window returns the flattened weights, the effective window size and the
// covariance normalisation for an h x w image.
func (o Options) window(h, w int) (weights []float64, size int, covNorm float64, err error) {
	if err := o.Validate(); err != nil {
		return nil, 0, 0, err
	}
	size = o.WindowSize
	if size == 0 {
		size = DefaultUniformWindow
		if o.Window == Gaussian {
			size = DefaultGaussianWindow
		}
	}
	if fit := min(h, w); size > fit {
		size = fit
		if size%2 == 0 {
			size--
		}
	}

	// Both windows use the sample covariance, NP/(NP-1) over NP window
	// pixels, as skimage does by default.
	np := size * size
	covNorm = 1
	if np > 1 {
		covNorm = float64(np) / float64(np-1)
	}

	if o.Window == Gaussian {
		g, err := FSpecialGauss(size, o.Sigma)
		if err != nil {
			return nil, 0, 0, err
		}
		return g.RawMatrix().Data, size, covNorm, nil
	}

	weights = make([]float64, np)
	for i := range weights {
		weights[i] = 1 / float64(np)
	}
	return weights, size, covNorm, nil
}
