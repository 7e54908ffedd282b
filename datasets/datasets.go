package datasets

import "github.com/gomlx/gomlx/pkg/core/tensors"

// This package provides the video datasets consumed by the training loop and
// the name-based dispatch that picks one from the command line.
//
// Datasets use lazy loading: construction only indexes frame paths, and the
// image files are decoded when an example or batch is requested.
//
// Layout and intended usage:
//
// SequenceDataset
//   - Indexes <root>/<sequence>/*.png (or .jpg) directories
//   - Keeps every SkipFactor-th frame of a sequence
//   - Each example is a window of SeqLen consecutive kept frames, returned as
//     a float32 tensor shaped [T, H, W, C] with values in [0, 1]
//   - Batches are [B, T, H, W, C]; NormalizeSequence turns a batch into the
//     per-timestep [B, C, H, W] tensors the model and the metrics expect
//
// The datasets implement this interface in order to interact with GoMLX
// training loops and batching utilities.
type Dataset interface {
	Len() int
	Example(i int) (*tensors.Tensor, error)
	Batch(indices []int) (*tensors.Tensor, error)
	Shuffle(seed int64)

	// To implement gomlx's train.Dataset interface
	Yield() (any, []*tensors.Tensor, []*tensors.Tensor, error)
}
