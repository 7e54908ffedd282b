// Command vpeval scores predicted video frames against ground truth.
//
// With -gt and -pred it compares two directories of sequences (one
// sub-directory per sample, frames sorted by name). Without them it loads the
// test split of -dataset and scores the copy-last-frame baseline, which
// repeats the last conditioning frame for every future timestep.
//
// Results are written as a CSV table, per-timestep SSIM/PSNR plots and a
// captioned comparison GIF of the first sample.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/Noofbiz/vidpred/config"
	"github.com/Noofbiz/vidpred/datasets"
	"github.com/Noofbiz/vidpred/export"
	"github.com/Noofbiz/vidpred/imgtensor"
	"github.com/Noofbiz/vidpred/metrics"
	"github.com/Noofbiz/vidpred/report"
)

// sample keeps the first evaluated sample around for the GIF.
type sample struct {
	gt, pred []*imgtensor.Buffer
}

func main() {
	configPath := flag.String("config", "", "path to JSON configuration file (optional); flags override it")
	printEffectiveConfig := flag.Bool("print-effective-config", false, "print the effective (JSON+CLI merged) configuration and exit")
	showProgress := flag.Bool("progress", true, "print evaluation progress")
	flags := config.RegisterFlags(flag.CommandLine)
	flag.Parse()

	cfg, err := flags.Resolve(*configPath)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if *printEffectiveConfig {
		data, err := cfg.JSON()
		if err != nil {
			log.Fatalf("failed to encode configuration: %v", err)
		}
		fmt.Println(string(data))
		return
	}

	opts, err := cfg.MetricOptions()
	if err != nil {
		log.Fatalf("invalid metric options: %v", err)
	}

	var progress io.Writer = io.Discard
	if *showProgress {
		progress = os.Stderr
	}

	var (
		res   *metrics.Result
		first *sample
	)
	if cfg.Eval.GroundTruth != "" || cfg.Eval.Predicted != "" {
		log.Printf("Comparing %s against %s (%d frames)", cfg.Eval.Predicted, cfg.Eval.GroundTruth, cfg.Eval.Frames)
		res, first, err = evaluateDirs(cfg, opts, progress)
	} else {
		log.Printf("Scoring copy-last-frame baseline on %s (%s)", cfg.Dataset.Name, cfg.Dataset.DataRoot)
		res, first, err = evaluateBaseline(cfg, opts, progress)
	}
	if err != nil {
		log.Fatalf("evaluation failed: %v", err)
	}

	samples, steps := res.Dims()
	log.Printf("Evaluated %d samples over %d timesteps", samples, steps)
	mse, ssim, psnr := res.MeanPerTimestep()
	for t := range mse {
		log.Printf("  t=%-3d mse=%.5f ssim=%.4f psnr=%.2f", t, mse[t], ssim[t], psnr[t])
	}

	if cfg.Output.CSV != "" {
		path := filepath.Join(cfg.Output.Dir, cfg.Output.CSV)
		if err := report.SaveCSV(path, res); err != nil {
			log.Fatalf("failed to write CSV: %v", err)
		}
		log.Printf("Scores written to %s", path)
	}
	if cfg.Output.Plot {
		paths, err := report.PlotCurves(cfg.Output.Dir, res)
		if err != nil {
			log.Fatalf("failed to generate plots: %v", err)
		}
		log.Printf("Plots written to %v", paths)
	}
	if cfg.Output.GIF != "" && first != nil {
		path := filepath.Join(cfg.Output.Dir, cfg.Output.GIF)
		if err := saveComparisonGIF(path, first, cfg.GIFOptions()); err != nil {
			log.Fatalf("failed to write GIF: %v", err)
		}
	}
}

// evaluateDirs scores the first Frames frames of every predicted sequence
// against the ground-truth sequence with the same directory name.
func evaluateDirs(cfg config.Config, opts metrics.Options, progress io.Writer) (*metrics.Result, *sample, error) {
	if cfg.Eval.GroundTruth == "" || cfg.Eval.Predicted == "" {
		return nil, nil, errors.New("both -gt and -pred are required")
	}
	gtDS, err := datasets.NewSequenceDataset(cfg.Eval.GroundTruth, cfg.Eval.Frames, cfg.Dataset.ImageSize, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("ground truth: %w", err)
	}
	predDS, err := datasets.NewSequenceDataset(cfg.Eval.Predicted, cfg.Eval.Frames, cfg.Dataset.ImageSize, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("predictions: %w", err)
	}
	gtStarts, predStarts, err := pairSequences(gtDS, predDS)
	if err != nil {
		return nil, nil, err
	}

	var (
		res   *metrics.Result
		first *sample
	)
	for lo := 0; lo < len(gtStarts); lo += cfg.Eval.BatchSize {
		hi := min(lo+cfg.Eval.BatchSize, len(gtStarts))
		gt, err := readSteps(gtDS, gtStarts[lo:hi])
		if err != nil {
			return nil, nil, fmt.Errorf("ground truth: %w", err)
		}
		pred, err := readSteps(predDS, predStarts[lo:hi])
		if err != nil {
			return nil, nil, fmt.Errorf("predictions: %w", err)
		}
		if res, first, err = accumulate(res, first, gt, pred, opts); err != nil {
			return nil, nil, err
		}
		reportProgress(progress, hi, len(gtStarts), lo > 0)
	}
	return res, first, nil
}

// errUnmatchedSequence is returned when a sequence directory exists on only
// one side of the comparison.
var errUnmatchedSequence = errors.New("sequence missing on one side")

// pairSequences matches ground-truth and predicted sequences by directory
// name and returns the first-window example index of each pair, ordered by
// ground-truth name.
func pairSequences(gtDS, predDS *datasets.SequenceDataset) (gtStarts, predStarts []int, err error) {
	predByName := map[string]int{}
	predAll := predDS.SequenceStarts()
	for i, name := range predDS.SequenceNames() {
		predByName[name] = predAll[i]
	}

	gtAll := gtDS.SequenceStarts()
	for i, name := range gtDS.SequenceNames() {
		p, ok := predByName[name]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %q has no prediction in %s", errUnmatchedSequence, name, predDS.Root)
		}
		delete(predByName, name)
		gtStarts = append(gtStarts, gtAll[i])
		predStarts = append(predStarts, p)
	}
	for _, name := range predDS.SequenceNames() {
		if _, extra := predByName[name]; extra {
			return nil, nil, fmt.Errorf("%w: %q has no ground truth in %s", errUnmatchedSequence, name, gtDS.Root)
		}
	}
	return gtStarts, predStarts, nil
}

// readSteps loads the given examples as one [B, C, H, W] tensor per timestep.
func readSteps(ds *datasets.SequenceDataset, indices []int) ([]*tensors.Tensor, error) {
	batch, err := ds.Batch(indices)
	if err != nil {
		return nil, err
	}
	return datasets.NormalizeSequence(batch)
}

// evaluateBaseline scores the copy-last-frame predictor on the test split.
func evaluateBaseline(cfg config.Config, opts metrics.Options, progress io.Writer) (*metrics.Result, *sample, error) {
	dsOpts := cfg.DatasetOptions()
	if dsOpts.NPast < 1 || dsOpts.NFuture < 1 {
		return nil, nil, fmt.Errorf("%w: baseline needs n_past >= 1 and n_future >= 1", datasets.ErrInvalidOptions)
	}
	_, test, err := datasets.Load(dsOpts)
	if err != nil {
		return nil, nil, err
	}
	if sd, ok := test.(*datasets.SequenceDataset); ok {
		sd.BatchSize = cfg.Eval.BatchSize
	}

	var (
		res   *metrics.Result
		first *sample
		done  int
	)
	for {
		_, steps, _, err := test.Yield()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		gt, pred := copyLastBaseline(steps, dsOpts.NPast)
		if res, first, err = accumulate(res, first, gt, pred, opts); err != nil {
			return nil, nil, err
		}
		reportProgress(progress, done+steps[0].Shape().Dimensions[0], test.Len(), done > 0)
		done += steps[0].Shape().Dimensions[0]
	}
	if res == nil {
		return nil, nil, metrics.ErrEmptySequence
	}
	return res, first, nil
}

// copyLastBaseline splits steps into the future ground truth and a prediction
// that repeats the last of the nPast conditioning frames.
func copyLastBaseline(steps []*tensors.Tensor, nPast int) (gt, pred []*tensors.Tensor) {
	gt = steps[nPast:]
	pred = make([]*tensors.Tensor, len(gt))
	for i := range pred {
		pred[i] = steps[nPast-1]
	}
	return gt, pred
}

// accumulate evaluates one batch, appends it to res and records the first
// sample seen.
func accumulate(res *metrics.Result, first *sample, gt, pred []*tensors.Tensor, opts metrics.Options) (*metrics.Result, *sample, error) {
	batch, err := metrics.EvaluateTensors(gt, pred, opts)
	if err != nil {
		return nil, nil, err
	}
	if res, err = res.Concat(batch); err != nil {
		return nil, nil, err
	}
	if first == nil {
		first = &sample{}
		for t := range gt {
			g, err := imgtensor.SplitBatch(gt[t])
			if err != nil {
				return nil, nil, err
			}
			p, err := imgtensor.SplitBatch(pred[t])
			if err != nil {
				return nil, nil, err
			}
			first.gt = append(first.gt, g[0])
			first.pred = append(first.pred, p[0])
		}
	}
	return res, first, nil
}

// saveComparisonGIF writes one frame per timestep showing ground truth next
// to the prediction.
func saveComparisonGIF(path string, s *sample, opts export.GIFOptions) error {
	frames := make([][]*imgtensor.Buffer, len(s.gt))
	text := make([][]string, len(s.gt))
	for t := range s.gt {
		frames[t] = []*imgtensor.Buffer{s.gt[t], s.pred[t]}
		text[t] = []string{fmt.Sprintf("gt t=%d", t), fmt.Sprintf("pred t=%d", t)}
	}
	return export.SaveGIFWithText(path, frames, text, opts)
}

func reportProgress(w io.Writer, done, total int, redraw bool) {
	if redraw {
		clearProgressbar(w)
	}
	fmt.Fprintf(w, "evaluated %d/%d samples\n\n", done, total)
}

// clearProgressbar moves the cursor back over the previous progress output
// and erases that line.
func clearProgressbar(w io.Writer) {
	// up two lines, erase the line, then up two lines again
	fmt.Fprint(w, "\033[2A\n")
	fmt.Fprint(w, "\033[2K\n")
	fmt.Fprint(w, "\033[2A\n")
}
