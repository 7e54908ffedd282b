package datasets

import (
	"errors"
	"fmt"
	"image"
	"io"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/Noofbiz/vidpred/internal/monitoring"
)

// ErrNoSequences is returned when no directory under the root holds enough
// frames for a single example.
var ErrNoSequences = errors.New("datasets: no usable sequences")

// SequenceDataset lazily loads fixed-length frame windows from a directory of
// sequences. Each sub-directory of Root is one sequence; its image files,
// sorted by name, are its frames.
type SequenceDataset struct {
	// Root directory holding one sub-directory per sequence
	Root string

	// SeqLen is the number of frames per example
	SeqLen int

	// ImageSize is the square side every frame is resized to (0 keeps the
	// native size, which then must match across frames)
	ImageSize int

	// SkipFactor keeps every SkipFactor-th frame
	SkipFactor int

	// NumCandidates is the number of candidate futures per example for the
	// value datasets; 0 for pose datasets
	NumCandidates int

	// BatchSize for yielding batches
	BatchSize int

	// Frame paths per usable sequence, after skipping
	sequences [][]string

	// Directory base name of every usable sequence
	names []string

	// Cumulative window counts for fast index mapping
	cumCounts []int

	// Total number of windows across all sequences
	totalExamples int

	// order maps example positions to windows; permuted by Shuffle
	order []int

	// Random generator for shuffling
	rand *rand.Rand

	// position of the next Yield
	cursor int
}

// NewSequenceDataset indexes the sequences under root. Sequences too short for
// a single window are skipped.
func NewSequenceDataset(root string, seqLen, imageSize, skipFactor int) (*SequenceDataset, error) {
	if seqLen <= 0 {
		return nil, fmt.Errorf("sequence length must be positive, got %d", seqLen)
	}
	if skipFactor <= 0 {
		skipFactor = 1
	}

	dirs, err := listSequenceDirs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to list sequences in %s: %w", root, err)
	}

	ds := &SequenceDataset{
		Root:       root,
		SeqLen:     seqLen,
		ImageSize:  imageSize,
		SkipFactor: skipFactor,
		BatchSize:  16,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	for _, dir := range dirs {
		frames, err := listFrames(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to list frames in %s: %w", dir, err)
		}
		frames = everyNth(frames, skipFactor)
		if len(frames) < seqLen {
			monitoring.Logf("datasets: skipping %s: %d frames, need %d", dir, len(frames), seqLen)
			continue
		}
		ds.sequences = append(ds.sequences, frames)
		ds.names = append(ds.names, filepath.Base(dir))
	}
	if len(ds.sequences) == 0 {
		return nil, fmt.Errorf("%w: %s (sequence length %d, skip %d)", ErrNoSequences, root, seqLen, skipFactor)
	}

	ds.buildIndex()
	return ds, nil
}

// buildIndex counts windows per sequence and builds cumulative counts
func (d *SequenceDataset) buildIndex() {
	d.cumCounts = make([]int, len(d.sequences)+1)
	for i, frames := range d.sequences {
		d.cumCounts[i+1] = d.cumCounts[i] + len(frames) - d.SeqLen + 1
	}
	d.totalExamples = d.cumCounts[len(d.sequences)]
	d.order = make([]int, d.totalExamples)
	for i := range d.order {
		d.order[i] = i
	}
}

// Len returns the total number of windows across all sequences
func (d *SequenceDataset) Len() int {
	return d.totalExamples
}

// Sequences returns the number of usable sequences.
func (d *SequenceDataset) Sequences() int {
	return len(d.sequences)
}

// SequenceNames returns the directory name of every usable sequence, in the
// same order as SequenceStarts.
func (d *SequenceDataset) SequenceNames() []string {
	names := make([]string, len(d.names))
	copy(names, d.names)
	return names
}

// SequenceStarts returns the example index of the first window of every
// usable sequence. The indices are only meaningful before Shuffle.
func (d *SequenceDataset) SequenceStarts() []int {
	starts := make([]int, len(d.sequences))
	copy(starts, d.cumCounts[:len(d.sequences)])
	return starts
}

// mapGlobalIndex maps a window index to (sequence index, first frame)
func (d *SequenceDataset) mapGlobalIndex(globalIdx int) (seqIdx, start int) {
	for i := range len(d.sequences) {
		if globalIdx < d.cumCounts[i+1] {
			return i, globalIdx - d.cumCounts[i]
		}
	}
	// Should never reach here if globalIdx is valid
	last := len(d.sequences) - 1
	return last, len(d.sequences[last]) - d.SeqLen
}

// Frames returns the frame paths of example idx.
func (d *SequenceDataset) Frames(idx int) ([]string, error) {
	if idx < 0 || idx >= d.totalExamples {
		return nil, fmt.Errorf("index %d out of range [0, %d)", idx, d.totalExamples)
	}
	seqIdx, start := d.mapGlobalIndex(d.order[idx])
	return d.sequences[seqIdx][start : start+d.SeqLen], nil
}

// readExample decodes the frames of example idx and appends them to dst.
func (d *SequenceDataset) readExample(dst []float32, idx int) ([]float32, int, int, error) {
	frames, err := d.Frames(idx)
	if err != nil {
		return nil, 0, 0, err
	}
	var h, w int
	for t, path := range frames {
		var bounds image.Rectangle
		dst, bounds, err = loadFrame(dst, path, d.ImageSize)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("example %d frame %d: %w", idx, t, err)
		}
		if t == 0 {
			h, w = bounds.Dy(), bounds.Dx()
		} else if bounds.Dy() != h || bounds.Dx() != w {
			return nil, 0, 0, fmt.Errorf("example %d frame %d: size %dx%d differs from %dx%d",
				idx, t, bounds.Dx(), bounds.Dy(), w, h)
		}
	}
	return dst, h, w, nil
}

// Example reads a single window as a [T, H, W, 3] tensor
func (d *SequenceDataset) Example(idx int) (*tensors.Tensor, error) {
	flat, h, w, err := d.readExample(nil, idx)
	if err != nil {
		return nil, err
	}
	return tensors.FromFlatDataAndDimensions(flat, d.SeqLen, h, w, 3), nil
}

// Batch reads multiple windows as a [B, T, H, W, 3] tensor
func (d *SequenceDataset) Batch(indices []int) (*tensors.Tensor, error) {
	if len(indices) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	var flat []float32
	var h, w int
	for pos, idx := range indices {
		var eh, ew int
		var err error
		flat, eh, ew, err = d.readExample(flat, idx)
		if err != nil {
			return nil, err
		}
		if pos == 0 {
			h, w = eh, ew
		} else if eh != h || ew != w {
			return nil, fmt.Errorf("example %d: size %dx%d differs from %dx%d", idx, ew, eh, w, h)
		}
	}
	return tensors.FromFlatDataAndDimensions(flat, len(indices), d.SeqLen, h, w, 3), nil
}

// Shuffle permutes the order in which examples are returned. The same seed
// always yields the same order.
func (d *SequenceDataset) Shuffle(seed int64) {
	for i := range d.order {
		d.order[i] = i
	}
	d.rand.Seed(seed)
	d.rand.Shuffle(len(d.order), func(i, j int) {
		d.order[i], d.order[j] = d.order[j], d.order[i]
	})
}

// Name returns the name of the dataset
func (d *SequenceDataset) Name() string {
	return "SequenceDataset"
}

// Yield returns the next batch for the gomlx Dataset interface: inputs holds
// one [B, C, H, W] tensor per timestep and there are no labels. The final
// batch of an epoch may be short; after it Yield returns io.EOF until
// Restart is called.
func (d *SequenceDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if d.cursor >= d.totalExamples {
		return nil, nil, nil, io.EOF
	}
	size := d.BatchSize
	if size <= 0 {
		size = 1
	}
	end := min(d.cursor+size, d.totalExamples)
	indices := make([]int, 0, end-d.cursor)
	for i := d.cursor; i < end; i++ {
		indices = append(indices, i)
	}
	d.cursor = end

	batch, err := d.Batch(indices)
	if err != nil {
		return nil, nil, nil, err
	}
	inputs, err = NormalizeSequence(batch)
	if err != nil {
		return nil, nil, nil, err
	}
	return nil, inputs, nil, nil
}

// Restart resets the dataset for a new epoch
func (d *SequenceDataset) Restart() error {
	d.cursor = 0
	return nil
}
