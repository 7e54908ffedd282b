// Package config holds the settings of the evaluation command. Settings come
// from built-in defaults, then an optional JSON file, then command-line flags
// the user set explicitly.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/Noofbiz/vidpred/datasets"
	"github.com/Noofbiz/vidpred/export"
	"github.com/Noofbiz/vidpred/metrics"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid")

// Dataset selects the frames to load.
type Dataset struct {
	Name          string `json:"name"`
	DataRoot      string `json:"data_root"`
	NPast         int    `json:"n_past"`
	NFuture       int    `json:"n_future"`
	ImageSize     int    `json:"image_width"`
	SkipFactor    int    `json:"skip_factor"`
	NumCandidates int    `json:"num_cand"`
}

// Eval points at ground-truth and predicted frame directories. Each holds
// one sub-directory per sample whose sorted frames are its timesteps.
type Eval struct {
	GroundTruth string `json:"ground_truth"`
	Predicted   string `json:"predicted"`
	Frames      int    `json:"frames"`
	BatchSize   int    `json:"batch_size"`
}

// Metrics mirrors metrics.Options with a textual window name.
type Metrics struct {
	DataRange  float64 `json:"data_range"`
	Window     string  `json:"window"`
	WindowSize int     `json:"window_size"`
	Sigma      float64 `json:"sigma"`
	MaxPSNR    float64 `json:"max_psnr"`
	Workers    int     `json:"workers"`
}

// Output controls what gets written and where.
type Output struct {
	Dir      string  `json:"dir"`
	CSV      string  `json:"csv"`
	GIF      string  `json:"gif"`
	GIFDelay float64 `json:"gif_delay"`
	GIFScale int     `json:"gif_scale"`
	Plot     bool    `json:"plot"`
}

// Config is the merged configuration.
type Config struct {
	Dataset Dataset `json:"dataset"`
	Eval    Eval    `json:"eval"`
	Metrics Metrics `json:"metrics"`
	Output  Output  `json:"output"`
}

// Default returns the built-in configuration.
func Default() Config {
	m := metrics.DefaultOptions()
	return Config{
		Dataset: Dataset{
			Name:       "gaz_pose",
			DataRoot:   "data",
			NPast:      2,
			NFuture:    10,
			ImageSize:  64,
			SkipFactor: 1,
		},
		Eval: Eval{
			Frames:    10,
			BatchSize: 16,
		},
		Metrics: Metrics{
			DataRange: m.DataRange,
			Window:    m.Window.String(),
			Sigma:     m.Sigma,
		},
		Output: Output{
			Dir:      "output",
			CSV:      "scores.csv",
			GIF:      "compare.gif",
			GIFDelay: export.DefaultFrameDelay,
			GIFScale: 1,
			Plot:     true,
		},
	}
}

// Load reads a JSON file on top of the defaults. Fields missing from the file
// keep their default value; unknown fields are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields that can be checked without touching disk.
func (c Config) Validate() error {
	if c.Eval.Frames <= 0 {
		return fmt.Errorf("%w: eval.frames must be positive, got %d", ErrInvalid, c.Eval.Frames)
	}
	if c.Eval.BatchSize <= 0 {
		return fmt.Errorf("%w: eval.batch_size must be positive, got %d", ErrInvalid, c.Eval.BatchSize)
	}
	if c.Output.GIFScale < 0 {
		return fmt.Errorf("%w: output.gif_scale must not be negative", ErrInvalid)
	}
	if _, err := c.MetricOptions(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// MetricOptions converts the metrics section.
func (c Config) MetricOptions() (metrics.Options, error) {
	w, err := metrics.ParseWindow(c.Metrics.Window)
	if err != nil {
		return metrics.Options{}, err
	}
	opts := metrics.Options{
		DataRange:  c.Metrics.DataRange,
		Window:     w,
		WindowSize: c.Metrics.WindowSize,
		Sigma:      c.Metrics.Sigma,
		MaxPSNR:    c.Metrics.MaxPSNR,
		Workers:    c.Metrics.Workers,
	}
	return opts, opts.Validate()
}

// DatasetOptions converts the dataset section.
func (c Config) DatasetOptions() datasets.Options {
	return datasets.Options{
		Name:          c.Dataset.Name,
		DataRoot:      c.Dataset.DataRoot,
		NPast:         c.Dataset.NPast,
		NFuture:       c.Dataset.NFuture,
		ImageSize:     c.Dataset.ImageSize,
		SkipFactor:    c.Dataset.SkipFactor,
		NumCandidates: c.Dataset.NumCandidates,
	}
}

// GIFOptions converts the GIF output settings.
func (c Config) GIFOptions() export.GIFOptions {
	return export.GIFOptions{Delay: c.Output.GIFDelay, Scale: c.Output.GIFScale}
}

// JSON returns the indented configuration, as printed by
// -print-effective-config.
func (c Config) JSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Flags binds command-line flags to a Config. Only flags the user set are
// applied by Merge.
type Flags struct {
	fs     *flag.FlagSet
	values Config
	apply  map[string]func(dst, src *Config)
}

// RegisterFlags defines every flag on fs with the built-in defaults.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs, values: Default(), apply: map[string]func(dst, src *Config){}}
	v := &f.values

	f.stringVar("dataset", &v.Dataset.Name, "dataset name (gaz_pose, gaz_value, lab_pose, lab_value)",
		func(d, s *Config) { d.Dataset.Name = s.Dataset.Name })
	f.stringVar("data-root", &v.Dataset.DataRoot, "directory holding every dataset",
		func(d, s *Config) { d.Dataset.DataRoot = s.Dataset.DataRoot })
	f.intVar("n-past", &v.Dataset.NPast, "number of conditioning frames",
		func(d, s *Config) { d.Dataset.NPast = s.Dataset.NPast })
	f.intVar("n-future", &v.Dataset.NFuture, "number of predicted frames",
		func(d, s *Config) { d.Dataset.NFuture = s.Dataset.NFuture })
	f.intVar("image-width", &v.Dataset.ImageSize, "square frame side after resizing (0 keeps native size)",
		func(d, s *Config) { d.Dataset.ImageSize = s.Dataset.ImageSize })
	f.intVar("skip-factor", &v.Dataset.SkipFactor, "keep every n-th frame",
		func(d, s *Config) { d.Dataset.SkipFactor = s.Dataset.SkipFactor })
	f.intVar("num-cand", &v.Dataset.NumCandidates, "candidate futures for value datasets",
		func(d, s *Config) { d.Dataset.NumCandidates = s.Dataset.NumCandidates })

	f.stringVar("gt", &v.Eval.GroundTruth, "directory of ground-truth sequences",
		func(d, s *Config) { d.Eval.GroundTruth = s.Eval.GroundTruth })
	f.stringVar("pred", &v.Eval.Predicted, "directory of predicted sequences",
		func(d, s *Config) { d.Eval.Predicted = s.Eval.Predicted })
	f.intVar("frames", &v.Eval.Frames, "timesteps evaluated per sample",
		func(d, s *Config) { d.Eval.Frames = s.Eval.Frames })
	f.intVar("batch-size", &v.Eval.BatchSize, "samples read per batch",
		func(d, s *Config) { d.Eval.BatchSize = s.Eval.BatchSize })

	fs.Float64Var(&v.Metrics.DataRange, "data-range", v.Metrics.DataRange, "pixel value range used by SSIM and PSNR")
	f.apply["data-range"] = func(d, s *Config) { d.Metrics.DataRange = s.Metrics.DataRange }
	f.stringVar("window", &v.Metrics.Window, "SSIM window: uniform or gaussian",
		func(d, s *Config) { d.Metrics.Window = s.Metrics.Window })
	f.intVar("window-size", &v.Metrics.WindowSize, "odd SSIM window side (0 = default for the window)",
		func(d, s *Config) { d.Metrics.WindowSize = s.Metrics.WindowSize })
	fs.Float64Var(&v.Metrics.Sigma, "sigma", v.Metrics.Sigma, "gaussian window sigma")
	f.apply["sigma"] = func(d, s *Config) { d.Metrics.Sigma = s.Metrics.Sigma }
	fs.Float64Var(&v.Metrics.MaxPSNR, "max-psnr", v.Metrics.MaxPSNR, "cap PSNR of identical frames (0 = +Inf)")
	f.apply["max-psnr"] = func(d, s *Config) { d.Metrics.MaxPSNR = s.Metrics.MaxPSNR }
	f.intVar("workers", &v.Metrics.Workers, "evaluate samples concurrently with this many workers",
		func(d, s *Config) { d.Metrics.Workers = s.Metrics.Workers })

	f.stringVar("out", &v.Output.Dir, "output directory",
		func(d, s *Config) { d.Output.Dir = s.Output.Dir })
	f.stringVar("out-csv", &v.Output.CSV, "CSV file name inside -out (empty disables)",
		func(d, s *Config) { d.Output.CSV = s.Output.CSV })
	f.stringVar("out-gif", &v.Output.GIF, "comparison GIF file name inside -out (empty disables)",
		func(d, s *Config) { d.Output.GIF = s.Output.GIF })
	fs.Float64Var(&v.Output.GIFDelay, "gif-delay", v.Output.GIFDelay, "seconds per GIF frame")
	f.apply["gif-delay"] = func(d, s *Config) { d.Output.GIFDelay = s.Output.GIFDelay }
	f.intVar("gif-scale", &v.Output.GIFScale, "integer GIF upscale factor",
		func(d, s *Config) { d.Output.GIFScale = s.Output.GIFScale })
	fs.BoolVar(&v.Output.Plot, "plot", v.Output.Plot, "write per-timestep SSIM and PSNR plots")
	f.apply["plot"] = func(d, s *Config) { d.Output.Plot = s.Output.Plot }
	return f
}

func (f *Flags) stringVar(name string, p *string, usage string, apply func(d, s *Config)) {
	f.fs.StringVar(p, name, *p, usage)
	f.apply[name] = apply
}

func (f *Flags) intVar(name string, p *int, usage string, apply func(d, s *Config)) {
	f.fs.IntVar(p, name, *p, usage)
	f.apply[name] = apply
}

// Merge applies every explicitly set flag on top of base. Call it after the
// flag set has been parsed.
func (f *Flags) Merge(base Config) Config {
	out := base
	f.fs.Visit(func(fl *flag.Flag) {
		if apply, ok := f.apply[fl.Name]; ok {
			apply(&out, &f.values)
		}
	})
	return out
}

// Resolve loads path (when non-empty) and merges the parsed flags on top.
func (f *Flags) Resolve(path string) (Config, error) {
	base := Default()
	if path != "" {
		var err error
		if base, err = Load(path); err != nil {
			return Config{}, err
		}
	}
	cfg := f.Merge(base)
	return cfg, cfg.Validate()
}
