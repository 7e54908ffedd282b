package grid

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/Noofbiz/vidpred/imgtensor"
)

// FromTensor resolves a float tensor into grid inputs by walking its leading
// axes:
//   - rank 3 [N, H, W]: a row of N single-channel leaves
//   - rank 4 [N, C, H, W]: a row of N leaves
//   - rank 5 and up: one nested input per leading index, recursively
func FromTensor(t *tensors.Tensor) ([]Input, error) {
	if t == nil {
		return nil, ErrEmptyInput
	}
	dims := t.Shape().Dimensions
	flat, err := imgtensor.FlatFloat32(t)
	if err != nil {
		return nil, err
	}
	return split(flat, dims)
}

func split(flat []float32, dims []int) ([]Input, error) {
	if len(dims) < 3 {
		return nil, fmt.Errorf("%w: want rank >= 3, got dimensions %v", imgtensor.ErrInvalidShape, dims)
	}
	if dims[0] == 0 {
		return nil, ErrEmptyInput
	}
	n := imgtensor.Prod(dims[1:]...)
	out := make([]Input, dims[0])
	for i := range out {
		part := flat[i*n : (i+1)*n]
		switch len(dims) {
		case 3:
			b, err := imgtensor.FromPlane(dims[1], dims[2], part)
			if err != nil {
				return nil, err
			}
			out[i] = Leaf(b)
		case 4:
			b, err := imgtensor.FromFlat(dims[1], dims[2], dims[3], part)
			if err != nil {
				return nil, err
			}
			out[i] = Leaf(b)
		default:
			children, err := split(part, dims[1:])
			if err != nil {
				return nil, err
			}
			out[i] = Nested(children...)
		}
	}
	return out, nil
}
