package metrics

import (
	"math"
	"math/rand"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/Noofbiz/vidpred/imgtensor"
)

func filled(t *testing.T, c, h, w int, v float32) *imgtensor.Buffer {
	t.Helper()
	b, err := imgtensor.Filled(c, h, w, v)
	require.NoError(t, err)
	return b
}

func noisy(t *testing.T, rng *rand.Rand, c, h, w int) *imgtensor.Buffer {
	t.Helper()
	b, err := imgtensor.New(c, h, w)
	require.NoError(t, err)
	for i := range b.Data {
		b.Data[i] = rng.Float32()
	}
	return b
}

// randomSequence returns steps x samples random buffers.
func randomSequence(t *testing.T, seed int64, steps, samples, c, h, w int) [][]*imgtensor.Buffer {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	seq := make([][]*imgtensor.Buffer, steps)
	for s := range seq {
		seq[s] = make([]*imgtensor.Buffer, samples)
		for i := range seq[s] {
			seq[s][i] = noisy(t, rng, c, h, w)
		}
	}
	return seq
}

func cloneSequence(seq [][]*imgtensor.Buffer) [][]*imgtensor.Buffer {
	out := make([][]*imgtensor.Buffer, len(seq))
	for s := range seq {
		out[s] = make([]*imgtensor.Buffer, len(seq[s]))
		for i, b := range seq[s] {
			out[s][i] = b.Clone()
		}
	}
	return out
}

func TestGaussianKernels(t *testing.T) {
	g, err := FSpecialGauss(5, 1.5)
	require.NoError(t, err)
	r, c := g.Dims()
	require.Equal(t, 5, r)
	require.Equal(t, 5, c)
	assert.InDelta(t, 1.0, floats.Sum(g.RawMatrix().Data), 1e-12)
	// peak at the centre, symmetric
	assert.Equal(t, mat.Max(g), g.At(2, 2))
	assert.InDelta(t, g.At(0, 1), g.At(1, 0), 1e-15)
	assert.InDelta(t, g.At(0, 0), g.At(4, 4), 1e-15)

	d, err := Gaussian2(5, 1.5)
	require.NoError(t, err)
	assert.InDelta(t, 1/(2*math.Pi*1.5*1.5), d.At(2, 2), 1e-12)
	assert.InDelta(t, d.At(2, 2)*math.Exp(-1/(2*1.5*1.5)), d.At(2, 3), 1e-12)

	// even sizes follow the same [-size/2+1, size/2] grid, so the peak sits at index 1
	e, err := Gaussian2(4, 1)
	require.NoError(t, err)
	assert.Equal(t, mat.Max(e), e.At(1, 1))
	lo, hi := kernelRange(4)
	assert.Equal(t, -1, lo)
	assert.Equal(t, 2, hi)

	for _, bad := range []struct {
		size  int
		sigma float64
	}{{0, 1}, {-3, 1}, {3, 0}, {3, -1}, {3, math.NaN()}} {
		_, err := Gaussian2(bad.size, bad.sigma)
		assert.ErrorIs(t, err, ErrInvalidKernel)
		_, err = FSpecialGauss(bad.size, bad.sigma)
		assert.ErrorIs(t, err, ErrInvalidKernel)
	}
}

func TestPSNR(t *testing.T) {
	opts := DefaultOptions()
	a := []float32{0, 0, 0, 0}
	b := []float32{0.1, 0.1, 0.1, 0.1}

	p, err := PSNR(a, b, opts)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, p, 1e-5)

	same, err := PSNR(a, a, opts)
	require.NoError(t, err)
	assert.True(t, math.IsInf(same, 1))

	opts.MaxPSNR = 100
	capped, err := PSNR(a, a, opts)
	require.NoError(t, err)
	assert.Equal(t, 100.0, capped)

	// data range scales the peak
	opts = DefaultOptions()
	opts.DataRange = 255
	p255, err := PSNR(a, b, opts)
	require.NoError(t, err)
	assert.InDelta(t, 20+20*math.Log10(255), p255, 1e-4)

	_, err = PSNR(a, b[:3], DefaultOptions())
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestSSIM(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	img := noisy(t, rng, 1, 16, 16)

	for _, w := range []Window{Uniform, Gaussian} {
		opts := DefaultOptions()
		opts.Window = w
		s, err := SSIM(img.Data, img.Data, 16, 16, opts)
		require.NoError(t, err, w)
		assert.InDelta(t, 1.0, s, 1e-12, w)

		other := noisy(t, rng, 1, 16, 16)
		s2, err := SSIM(img.Data, other.Data, 16, 16, opts)
		require.NoError(t, err, w)
		assert.Less(t, s2, 0.5, w)
	}

	// constant images: SSIM reduces to C1 / (mu^2 + C1)
	zeros := make([]float32, 16)
	tenth := make([]float32, 16)
	for i := range tenth {
		tenth[i] = 0.1
	}
	s, err := SSIM(zeros, tenth, 4, 4, DefaultOptions())
	require.NoError(t, err)
	c1 := K1 * K1
	assert.InDelta(t, c1/(0.01+c1), s, 1e-6)

	_, err = SSIM(zeros, tenth, 4, 5, DefaultOptions())
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = SSIM(zeros, tenth, 4, 4, Options{})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

// ramps returns two fixed, non-trivial 9x8 planes.
func ramps() (a, b []float32) {
	a = make([]float32, 9*8)
	b = make([]float32, 9*8)
	for i := range a {
		a[i] = float32((i*37)%17) / 16
		b[i] = float32((i*11+3)%13) / 12
	}
	return a, b
}

func TestSSIMKnownValues(t *testing.T) {
	a, b := ramps()
	tests := []struct {
		window Window
		want   float64
	}{
		// 7x7 window in both cases; the Gaussian one shrinks from 11
		{Uniform, 0.136612508728},
		{Gaussian, 0.051109316958},
	}
	for _, tc := range tests {
		t.Run(tc.window.String(), func(t *testing.T) {
			opts := DefaultOptions()
			opts.Window = tc.window
			got, err := SSIM(a, b, 9, 8, opts)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-6)
		})
	}
}

func TestSSIMWindowShrinksForSmallImages(t *testing.T) {
	opts := DefaultOptions()
	weights, size, covNorm, err := opts.window(4, 6)
	require.NoError(t, err)
	assert.Equal(t, 3, size)
	assert.Len(t, weights, 9)
	assert.InDelta(t, 9.0/8.0, covNorm, 1e-12)

	_, size, covNorm, err = opts.window(1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, size)
	assert.Equal(t, 1.0, covNorm)

	opts.Window = Gaussian
	weights, size, covNorm, err = opts.window(32, 32)
	require.NoError(t, err)
	assert.Equal(t, DefaultGaussianWindow, size)
	assert.InDelta(t, 121.0/120.0, covNorm, 1e-12)
	assert.InDelta(t, 1.0, floats.Sum(weights), 1e-12)
}

func TestOptionsValidate(t *testing.T) {
	require.NoError(t, DefaultOptions().Validate())

	bad := []func(*Options){
		func(o *Options) { o.DataRange = 0 },
		func(o *Options) { o.DataRange = math.NaN() },
		func(o *Options) { o.WindowSize = 4 },
		func(o *Options) { o.WindowSize = -1 },
		func(o *Options) { o.Window = Gaussian; o.Sigma = 0 },
		func(o *Options) { o.Window = Window(9) },
		func(o *Options) { o.MaxPSNR = -1 },
		func(o *Options) { o.Workers = -2 },
	}
	for i, mutate := range bad {
		o := DefaultOptions()
		mutate(&o)
		assert.ErrorIs(t, o.Validate(), ErrInvalidOptions, "case %d", i)
	}

	w, err := ParseWindow("gaussian")
	require.NoError(t, err)
	assert.Equal(t, Gaussian, w)
	assert.Equal(t, "gaussian", w.String())
	_, err = ParseWindow("box")
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestEvaluateIdenticalSequences(t *testing.T) {
	gt := randomSequence(t, 1, 3, 2, 3, 8, 8)
	pred := cloneSequence(gt)

	res, err := Evaluate(gt, pred, DefaultOptions())
	require.NoError(t, err)

	samples, steps := res.Dims()
	require.Equal(t, 2, samples)
	require.Equal(t, 3, steps)
	for i := 0; i < samples; i++ {
		for s := 0; s < steps; s++ {
			assert.Equal(t, 0.0, res.MSE.At(i, s))
			assert.InDelta(t, 1.0, res.SSIM.At(i, s), 1e-12)
			assert.True(t, math.IsInf(res.PSNR.At(i, s), 1))
		}
	}
}

func TestEvaluateScenario(t *testing.T) {
	// one timestep, two single-channel 4x4 samples: zeros vs a constant offset
	gt := [][]*imgtensor.Buffer{{filled(t, 1, 4, 4, 0), filled(t, 1, 4, 4, 0)}}
	small := [][]*imgtensor.Buffer{{filled(t, 1, 4, 4, 0.1), filled(t, 1, 4, 4, 0.1)}}
	large := [][]*imgtensor.Buffer{{filled(t, 1, 4, 4, 0.3), filled(t, 1, 4, 4, 0.3)}}

	res, err := Evaluate(gt, small, DefaultOptions())
	require.NoError(t, err)
	resLarge, err := Evaluate(gt, large, DefaultOptions())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		assert.InDelta(t, 0.01, res.MSE.At(i, 0), 1e-6)
		assert.Less(t, res.SSIM.At(i, 0), 1.0)
		p := res.PSNR.At(i, 0)
		assert.False(t, math.IsInf(p, 0))
		assert.Positive(t, p)
		assert.Less(t, resLarge.PSNR.At(i, 0), p)
	}
}

func TestEvaluateMSESymmetric(t *testing.T) {
	gt := randomSequence(t, 2, 4, 3, 1, 6, 6)
	pred := randomSequence(t, 3, 4, 3, 1, 6, 6)

	fwd, err := Evaluate(gt, pred, DefaultOptions())
	require.NoError(t, err)
	rev, err := Evaluate(pred, gt, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, mat.Equal(fwd.MSE, rev.MSE))
}

func TestEvaluateAveragesChannels(t *testing.T) {
	// channel 0 identical, channel 1 differs: PSNR is the channel mean
	gt := filled(t, 2, 4, 4, 0)
	pred := filled(t, 2, 4, 4, 0)
	for i := range pred.Channel(1) {
		pred.Channel(1)[i] = 0.1
	}
	opts := DefaultOptions()
	opts.MaxPSNR = 60

	res, err := Evaluate([][]*imgtensor.Buffer{{gt}}, [][]*imgtensor.Buffer{{pred}}, opts)
	require.NoError(t, err)
	assert.InDelta(t, (60.0+20.0)/2, res.PSNR.At(0, 0), 1e-4)
	assert.InDelta(t, 0.01/2, res.MSE.At(0, 0), 1e-7)
}

func TestEvaluateParallelMatchesSequential(t *testing.T) {
	gt := randomSequence(t, 4, 3, 9, 3, 10, 10)
	pred := randomSequence(t, 5, 3, 9, 3, 10, 10)

	seq, err := Evaluate(gt, pred, DefaultOptions())
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Workers = 4
	par, err := Evaluate(gt, pred, opts)
	require.NoError(t, err)

	assert.True(t, mat.Equal(seq.MSE, par.MSE))
	assert.True(t, mat.Equal(seq.SSIM, par.SSIM))
	assert.True(t, mat.Equal(seq.PSNR, par.PSNR))
}

func TestEvaluatePreconditions(t *testing.T) {
	a := filled(t, 1, 4, 4, 0)
	b := filled(t, 1, 4, 5, 0)
	rgb := filled(t, 3, 4, 4, 0)

	tests := []struct {
		name     string
		gt, pred [][]*imgtensor.Buffer
		want     error
	}{
		{"empty", nil, nil, ErrEmptySequence},
		{"empty batch", [][]*imgtensor.Buffer{{}}, [][]*imgtensor.Buffer{{}}, ErrEmptySequence},
		{"length", [][]*imgtensor.Buffer{{a}, {a}}, [][]*imgtensor.Buffer{{a}}, ErrLengthMismatch},
		{"pred batch", [][]*imgtensor.Buffer{{a, a}}, [][]*imgtensor.Buffer{{a}}, ErrBatchMismatch},
		{"later batch", [][]*imgtensor.Buffer{{a}, {a, a}}, [][]*imgtensor.Buffer{{a}, {a, a}}, ErrBatchMismatch},
		{"spatial shape", [][]*imgtensor.Buffer{{a}}, [][]*imgtensor.Buffer{{b}}, ErrShapeMismatch},
		{"channels", [][]*imgtensor.Buffer{{a}}, [][]*imgtensor.Buffer{{rgb}}, ErrShapeMismatch},
		{"nil sample", [][]*imgtensor.Buffer{{nil}}, [][]*imgtensor.Buffer{{a}}, ErrShapeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Evaluate(tt.gt, tt.pred, DefaultOptions())
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, res)
		})
	}
}

func TestEvaluateTensors(t *testing.T) {
	flat := make([]float32, 2*1*4*4)
	gt := []*tensors.Tensor{tensors.FromFlatDataAndDimensions(flat, 2, 1, 4, 4)}

	offset := make([]float32, len(flat))
	for i := range offset {
		offset[i] = 0.1
	}
	pred := []*tensors.Tensor{tensors.FromFlatDataAndDimensions(offset, 2, 1, 4, 4)}

	res, err := EvaluateTensors(gt, pred, DefaultOptions())
	require.NoError(t, err)
	assert.InDelta(t, 0.01, res.MSE.At(1, 0), 1e-6)

	_, err = EvaluateTensors(gt, nil, DefaultOptions())
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, err = EvaluateTensors(gt, []*tensors.Tensor{tensors.FromFlatDataAndDimensions(flat, 2, 16)}, DefaultOptions())
	assert.ErrorIs(t, err, imgtensor.ErrInvalidShape)
}

func TestMeanPerTimestep(t *testing.T) {
	res := &Result{
		MSE:  mat.NewDense(2, 2, []float64{1, 2, 3, 4}),
		SSIM: mat.NewDense(2, 2, []float64{0.5, 1, 0.7, 1}),
		PSNR: mat.NewDense(2, 2, []float64{10, 20, 30, 40}),
	}
	mse, ssim, psnr := res.MeanPerTimestep()
	assert.Equal(t, []float64{2, 3}, mse)
	assert.InDeltaSlice(t, []float64{0.6, 1}, ssim, 1e-12)
	assert.Equal(t, []float64{20, 30}, psnr)
}

func TestResultConcat(t *testing.T) {
	a := &Result{
		MSE:  mat.NewDense(1, 2, []float64{1, 2}),
		SSIM: mat.NewDense(1, 2, []float64{0.5, 0.6}),
		PSNR: mat.NewDense(1, 2, []float64{10, 11}),
	}
	b := &Result{
		MSE:  mat.NewDense(2, 2, []float64{3, 4, 5, 6}),
		SSIM: mat.NewDense(2, 2, []float64{0.7, 0.8, 0.9, 1}),
		PSNR: mat.NewDense(2, 2, []float64{12, 13, 14, 15}),
	}
	out, err := a.Concat(b)
	require.NoError(t, err)
	samples, steps := out.Dims()
	assert.Equal(t, 3, samples)
	assert.Equal(t, 2, steps)
	assert.Equal(t, 5.0, out.MSE.At(2, 0))
	assert.Equal(t, 0.5, out.SSIM.At(0, 0))

	var acc *Result
	acc, err = acc.Concat(a)
	require.NoError(t, err)
	assert.True(t, mat.Equal(acc.PSNR, a.PSNR))
	acc.PSNR.Set(0, 0, 99)
	assert.Equal(t, 10.0, a.PSNR.At(0, 0))

	short := &Result{MSE: mat.NewDense(1, 1, nil), SSIM: mat.NewDense(1, 1, nil), PSNR: mat.NewDense(1, 1, nil)}
	_, err = a.Concat(short)
	assert.ErrorIs(t, err, ErrLengthMismatch)
}
