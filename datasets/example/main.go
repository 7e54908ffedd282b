package main

// Example command that loads a registered frame dataset, reads a small batch
// as gomlx tensors and saves the batch as a single image grid: one row per
// example, one column per frame.
//
// Usage:
//   go run ./datasets/example -root data -dataset lab_pose
//
// The dataset root must follow the <root>/<env>/<kind>/<train|test>/<sequence>
// layout described in the datasets package.

import (
	"flag"
	"fmt"
	"log"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/Noofbiz/vidpred/datasets"
	"github.com/Noofbiz/vidpred/export"
	"github.com/Noofbiz/vidpred/grid"
)

func main() {
	root := flag.String("root", "data", "dataset root directory")
	name := flag.String("dataset", "lab_pose", "registered dataset name")
	nPast := flag.Int("n-past", 2, "conditioning frames")
	nFuture := flag.Int("n-future", 4, "predicted frames")
	size := flag.Int("image-width", 64, "frame size after resizing")
	out := flag.String("out", "output/batch.png", "where to save the batch grid")
	seed := flag.Int64("seed", 1, "shuffle seed")
	flag.Parse()

	train, test, err := datasets.Load(datasets.Options{
		Name:      *name,
		DataRoot:  *root,
		NPast:     *nPast,
		NFuture:   *nFuture,
		ImageSize: *size,
	})
	if err != nil {
		log.Fatalf("failed to load dataset %s: %v (known: %v)", *name, err, datasets.Names())
	}
	fmt.Printf("Dataset %s: train examples=%d test examples=%d\n", *name, train.Len(), test.Len())

	train.Shuffle(*seed)
	n := min(4, train.Len())
	indices := make([]int, n)
	for i := range n {
		indices[i] = i
	}

	fmt.Printf("Loading batch of %d examples...\n", n)
	batch, err := train.Batch(indices)
	if err != nil {
		log.Fatalf("failed to build batch: %v", err)
	}
	fmt.Printf("Batch tensor dims [B, T, H, W, C]: %v\n", batch.Shape().Dimensions)

	steps, err := datasets.NormalizeSequence(batch)
	if err != nil {
		log.Fatalf("failed to normalize batch: %v", err)
	}
	fmt.Printf("Per-timestep tensors: %d x %v\n", len(steps), steps[0].Shape().Dimensions)

	// [B, T, C, H, W]: one grid row per example
	rows, err := grid.FromTensor(exampleMajor(steps))
	if err != nil {
		log.Fatalf("failed to build grid input: %v", err)
	}
	if err := export.SaveGrid(*out, rows, 1); err != nil {
		log.Fatalf("failed to save grid: %v", err)
	}
	fmt.Printf("Batch grid written to %s\n", *out)
}

// exampleMajor stacks per-timestep [B, C, H, W] tensors into [B, T, C, H, W].
func exampleMajor(steps []*tensors.Tensor) *tensors.Tensor {
	dims := steps[0].Shape().Dimensions
	b, c, h, w := dims[0], dims[1], dims[2], dims[3]
	frame := c * h * w
	flat := make([]float32, b*len(steps)*frame)
	for t, st := range steps {
		src := tensors.MustCopyFlatData[float32](st)
		for i := 0; i < b; i++ {
			copy(flat[(i*len(steps)+t)*frame:], src[i*frame:(i+1)*frame])
		}
	}
	return tensors.FromFlatDataAndDimensions(flat, b, len(steps), c, h, w)
}
