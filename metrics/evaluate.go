// Package metrics compares predicted frame sequences against ground truth
// with MSE, SSIM and PSNR.
package metrics

import (
	"errors"
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/Noofbiz/vidpred/imgtensor"
)

var (
	// ErrEmptySequence is returned when there are no timesteps or no samples.
	ErrEmptySequence = errors.New("metrics: empty sequence")

	// ErrLengthMismatch is returned when ground truth and prediction have a
	// different number of timesteps.
	ErrLengthMismatch = errors.New("metrics: sequence length mismatch")

	// ErrBatchMismatch is returned when a timestep holds a different number
	// of samples than the first ground-truth timestep.
	ErrBatchMismatch = errors.New("metrics: batch size mismatch")
)

// Result holds per-sample, per-timestep scores. Every matrix has one row per
// sample and one column per timestep.
type Result struct {
	MSE  *mat.Dense
	SSIM *mat.Dense
	PSNR *mat.Dense
}

// Dims returns the number of samples and timesteps.
func (r *Result) Dims() (samples, timesteps int) {
	return r.MSE.Dims()
}

// MeanPerTimestep averages every metric over samples, returning one value per
// timestep.
func (r *Result) MeanPerTimestep() (mse, ssim, psnr []float64) {
	_, steps := r.Dims()
	mse = make([]float64, steps)
	ssim = make([]float64, steps)
	psnr = make([]float64, steps)
	for t := 0; t < steps; t++ {
		mse[t] = stat.Mean(mat.Col(nil, t, r.MSE), nil)
		ssim[t] = stat.Mean(mat.Col(nil, t, r.SSIM), nil)
		psnr[t] = stat.Mean(mat.Col(nil, t, r.PSNR), nil)
	}
	return mse, ssim, psnr
}

// Concat returns a new result holding the samples of r followed by those of
// o. Both must cover the same number of timesteps. A nil r returns a copy
// of o.
func (r *Result) Concat(o *Result) (*Result, error) {
	if r == nil {
		r, o = o, nil
	}
	if r == nil {
		return nil, ErrEmptySequence
	}
	if o == nil {
		return &Result{
			MSE:  mat.DenseCopyOf(r.MSE),
			SSIM: mat.DenseCopyOf(r.SSIM),
			PSNR: mat.DenseCopyOf(r.PSNR),
		}, nil
	}
	_, steps := r.Dims()
	if _, other := o.Dims(); other != steps {
		return nil, fmt.Errorf("%w: cannot concatenate %d and %d timesteps", ErrLengthMismatch, steps, other)
	}
	out := &Result{MSE: &mat.Dense{}, SSIM: &mat.Dense{}, PSNR: &mat.Dense{}}
	out.MSE.Stack(r.MSE, o.MSE)
	out.SSIM.Stack(r.SSIM, o.SSIM)
	out.PSNR.Stack(r.PSNR, o.PSNR)
	return out, nil
}

// Evaluate scores pred against gt. Both are indexed [timestep][sample].
//
// For every cell, MSE is computed over the whole image while SSIM and PSNR are
// computed per channel (in channel order) and averaged over the channel
// count. Inputs are checked completely before any score is computed, so a
// malformed input never produces a partial result.
func Evaluate(gt, pred [][]*imgtensor.Buffer, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	samples, err := checkSequences(gt, pred)
	if err != nil {
		return nil, err
	}

	steps := len(gt)
	res := &Result{
		MSE:  mat.NewDense(samples, steps, nil),
		SSIM: mat.NewDense(samples, steps, nil),
		PSNR: mat.NewDense(samples, steps, nil),
	}

	evalSample := func(i int) error {
		for t := 0; t < steps; t++ {
			if err := res.evalCell(i, t, gt[t][i], pred[t][i], opts); err != nil {
				return fmt.Errorf("sample %d timestep %d: %w", i, t, err)
			}
		}
		return nil
	}

	if opts.Workers <= 1 {
		for i := 0; i < samples; i++ {
			if err := evalSample(i); err != nil {
				return nil, err
			}
		}
		return res, nil
	}

	// each goroutine owns one matrix row, so cells are never shared
	var g errgroup.Group
	g.SetLimit(opts.Workers)
	for i := 0; i < samples; i++ {
		g.Go(func() error { return evalSample(i) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Result) evalCell(i, t int, a, b *imgtensor.Buffer, opts Options) error {
	mse, err := MSE(a, b)
	if err != nil {
		return err
	}
	var ssimSum, psnrSum float64
	for c := 0; c < a.C; c++ {
		s, err := SSIM(a.Channel(c), b.Channel(c), a.H, a.W, opts)
		if err != nil {
			return fmt.Errorf("channel %d: %w", c, err)
		}
		p, err := PSNR(a.Channel(c), b.Channel(c), opts)
		if err != nil {
			return fmt.Errorf("channel %d: %w", c, err)
		}
		ssimSum += s
		psnrSum += p
	}
	r.MSE.Set(i, t, mse)
	r.SSIM.Set(i, t, ssimSum/float64(a.C))
	r.PSNR.Set(i, t, psnrSum/float64(a.C))
	return nil
}

// checkSequences validates lengths and shapes and returns the batch size.
func checkSequences(gt, pred [][]*imgtensor.Buffer) (int, error) {
	if len(gt) == 0 {
		return 0, ErrEmptySequence
	}
	if len(gt) != len(pred) {
		return 0, fmt.Errorf("%w: ground truth has %d timesteps, prediction has %d", ErrLengthMismatch, len(gt), len(pred))
	}
	samples := len(gt[0])
	if samples == 0 {
		return 0, ErrEmptySequence
	}
	for t := range gt {
		if len(gt[t]) != samples || len(pred[t]) != samples {
			return 0, fmt.Errorf("%w: timestep %d has %d ground-truth and %d predicted samples, want %d",
				ErrBatchMismatch, t, len(gt[t]), len(pred[t]), samples)
		}
		for i := range gt[t] {
			a, b := gt[t][i], pred[t][i]
			if a == nil || !a.SameShape(b) {
				return 0, fmt.Errorf("%w: timestep %d sample %d: %v vs %v", ErrShapeMismatch, t, i, shapeOf(a), shapeOf(b))
			}
		}
	}
	return samples, nil
}

// EvaluateTensors is Evaluate over one [B, C, H, W] tensor per timestep.
func EvaluateTensors(gt, pred []*tensors.Tensor, opts Options) (*Result, error) {
	if len(gt) != len(pred) {
		return nil, fmt.Errorf("%w: ground truth has %d timesteps, prediction has %d", ErrLengthMismatch, len(gt), len(pred))
	}
	gtBufs, err := splitAll(gt)
	if err != nil {
		return nil, fmt.Errorf("ground truth: %w", err)
	}
	predBufs, err := splitAll(pred)
	if err != nil {
		return nil, fmt.Errorf("prediction: %w", err)
	}
	return Evaluate(gtBufs, predBufs, opts)
}

func splitAll(seq []*tensors.Tensor) ([][]*imgtensor.Buffer, error) {
	out := make([][]*imgtensor.Buffer, len(seq))
	for t, x := range seq {
		batch, err := imgtensor.SplitBatch(x)
		if err != nil {
			return nil, fmt.Errorf("timestep %d: %w", t, err)
		}
		out[t] = batch
	}
	return out, nil
}
