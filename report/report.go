// Package report writes evaluation results as CSV tables and per-timestep
// curve plots.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Noofbiz/vidpred/metrics"
)

// ErrEmptyResult is returned for a nil or zero-sized result.
var ErrEmptyResult = errors.New("report: empty result")

// Header is the first CSV row written by WriteCSV.
var Header = []string{"sample", "timestep", "mse", "ssim", "psnr"}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 8, 64)
}

// WriteCSV writes one row per (sample, timestep) cell, samples outermost.
// Infinite PSNR values are written as "+Inf".
func WriteCSV(w io.Writer, res *metrics.Result) error {
	if res == nil || res.MSE == nil {
		return ErrEmptyResult
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	samples, steps := res.Dims()
	for i := 0; i < samples; i++ {
		for t := 0; t < steps; t++ {
			row := []string{
				strconv.Itoa(i),
				strconv.Itoa(t),
				formatFloat(res.MSE.At(i, t)),
				formatFloat(res.SSIM.At(i, t)),
				formatFloat(res.PSNR.At(i, t)),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes res to path, creating parent directories.
func SaveCSV(path string, res *metrics.Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// finiteXYs returns (t, v) points, dropping non-finite values which the
// plotter rejects.
func finiteXYs(vs []float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(vs))
	for t, v := range vs {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(t), Y: v})
	}
	return pts
}

// PlotCurves writes ssim.png and psnr.png into outDir, each showing the
// sample mean of the metric at every timestep. It returns the written paths.
func PlotCurves(outDir string, res *metrics.Result) ([]string, error) {
	if res == nil || res.MSE == nil {
		return nil, ErrEmptyResult
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, err
	}
	_, ssim, psnr := res.MeanPerTimestep()

	curves := []struct {
		file, title, label string
		values             []float64
		color              color.RGBA
	}{
		{"ssim.png", "Mean SSIM per timestep", "SSIM", ssim, color.RGBA{R: 20, G: 80, B: 200, A: 255}},
		{"psnr.png", "Mean PSNR per timestep", "PSNR (dB)", psnr, color.RGBA{R: 200, G: 30, B: 30, A: 255}},
	}

	var paths []string
	for _, c := range curves {
		p := plot.New()
		p.Title.Text = c.title
		p.X.Label.Text = "timestep"
		p.Y.Label.Text = c.label
		p.Add(plotter.NewGrid())

		pts := finiteXYs(c.values)
		if len(pts) > 0 {
			line, points, err := plotter.NewLinePoints(pts)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", c.file, err)
			}
			line.Color = c.color
			line.Width = vg.Points(1.5)
			points.Color = c.color
			points.Radius = vg.Points(2.5)
			p.Add(line, points)
		}

		path := filepath.Join(outDir, c.file)
		if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
