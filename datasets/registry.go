package datasets

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
)

var (
	// ErrUnknownDataset is returned by Load for names nobody registered.
	ErrUnknownDataset = errors.New("datasets: unknown dataset")

	// ErrInvalidOptions is returned for options a dataset cannot be built
	// from.
	ErrInvalidOptions = errors.New("datasets: invalid options")
)

// Options selects and configures a dataset.
type Options struct {
	// Name picks the registered dataset (e.g. "gaz_pose", "lab_value").
	Name string

	// DataRoot is the directory holding every dataset.
	DataRoot string

	// NPast and NFuture are the conditioning and predicted frame counts; an
	// example holds NPast+NFuture frames.
	NPast   int
	NFuture int

	// ImageSize is the square frame side after resizing.
	ImageSize int

	// SkipFactor keeps every SkipFactor-th frame.
	SkipFactor int

	// NumCandidates is the number of candidate futures of the value datasets.
	NumCandidates int
}

// SeqLen returns the number of frames per example.
func (o Options) SeqLen() int { return o.NPast + o.NFuture }

// Factory builds the train or test split of a dataset.
type Factory func(opts Options, train bool) (Dataset, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a dataset available to Load. Registering a name twice
// replaces the earlier factory.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Names lists the registered datasets in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Load builds the train and test splits of the dataset named by opts.Name.
func Load(opts Options) (train, test Dataset, err error) {
	registryMu.RLock()
	f, ok := registry[opts.Name]
	registryMu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownDataset, opts.Name, Names())
	}
	if opts.SeqLen() <= 0 {
		return nil, nil, fmt.Errorf("%w: n_past + n_future must be positive, got %d", ErrInvalidOptions, opts.SeqLen())
	}

	if train, err = f(opts, true); err != nil {
		return nil, nil, fmt.Errorf("%s train split: %w", opts.Name, err)
	}
	if test, err = f(opts, false); err != nil {
		return nil, nil, fmt.Errorf("%s test split: %w", opts.Name, err)
	}
	return train, test, nil
}

// frameFactory returns a Factory reading <root>/<env>/<kind>/<train|test>.
// Value datasets require a positive candidate count.
func frameFactory(env, kind string, needsCandidates bool) Factory {
	return func(opts Options, train bool) (Dataset, error) {
		if needsCandidates && opts.NumCandidates <= 0 {
			return nil, fmt.Errorf("%w: %s/%s needs num_cand > 0", ErrInvalidOptions, env, kind)
		}
		split := "test"
		if train {
			split = "train"
		}
		root := filepath.Join(opts.DataRoot, env, kind, split)
		ds, err := NewSequenceDataset(root, opts.SeqLen(), opts.ImageSize, opts.SkipFactor)
		if err != nil {
			return nil, err
		}
		ds.NumCandidates = opts.NumCandidates
		return ds, nil
	}
}

func init() {
	Register("gaz_pose", frameFactory("gazebo", "pose", false))
	Register("gaz_value", frameFactory("gazebo", "value", true))
	Register("lab_pose", frameFactory("lab", "pose", false))
	Register("lab_value", frameFactory("lab", "value", true))
}
