package datasets

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/Noofbiz/vidpred/imgtensor"
)

// NormalizeSequence turns a [B, T, H, W, C] batch into T tensors shaped
// [B, C, H, W], the per-timestep layout used by the model and by
// metrics.EvaluateTensors.
func NormalizeSequence(batch *tensors.Tensor) ([]*tensors.Tensor, error) {
	if batch == nil {
		return nil, fmt.Errorf("nil batch")
	}
	dims := batch.Shape().Dimensions
	if len(dims) != 5 {
		return nil, fmt.Errorf("%w: want [B, T, H, W, C], got dimensions %v", imgtensor.ErrInvalidShape, dims)
	}
	src, err := imgtensor.FlatFloat32(batch)
	if err != nil {
		return nil, err
	}

	b, steps, h, w, c := dims[0], dims[1], dims[2], dims[3], dims[4]
	out := make([]*tensors.Tensor, steps)
	for t := 0; t < steps; t++ {
		dst := make([]float32, b*c*h*w)
		for i := 0; i < b; i++ {
			frame := src[(i*steps+t)*h*w*c:]
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					for ch := 0; ch < c; ch++ {
						dst[((i*c+ch)*h+y)*w+x] = frame[(y*w+x)*c+ch]
					}
				}
			}
		}
		out[t] = tensors.FromFlatDataAndDimensions(dst, b, c, h, w)
	}
	return out, nil
}
