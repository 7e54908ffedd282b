// Package imgtensor holds the channel-first image buffer shared by the grid,
// metrics and export packages, plus its conversions to gomlx tensors and to
// 8-bit images.
//
// A Buffer is always C x H x W. Single-channel (H x W) inputs are stored with
// C == 1, so callers never need to distinguish 2-D and 3-D buffers.
package imgtensor

import (
	"errors"
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
)

var (
	// ErrInvalidShape is returned when dimensions are non-positive or do not
	// match the length of the flat data.
	ErrInvalidShape = errors.New("imgtensor: invalid shape")

	// ErrUnsupportedDType is returned for tensors that are not float32/float64.
	ErrUnsupportedDType = errors.New("imgtensor: unsupported dtype")
)

// Buffer is a dense channel-first float32 image. Element (c, y, x) lives at
// Data[c*H*W + y*W + x].
type Buffer struct {
	C, H, W int
	Data    []float32
}

// New allocates a zeroed C x H x W buffer.
func New(c, h, w int) (*Buffer, error) {
	if c <= 0 || h <= 0 || w <= 0 {
		return nil, fmt.Errorf("%w: %dx%dx%d", ErrInvalidShape, c, h, w)
	}
	return &Buffer{C: c, H: h, W: w, Data: make([]float32, c*h*w)}, nil
}

// Filled allocates a C x H x W buffer with every element set to v.
func Filled(c, h, w int, v float32) (*Buffer, error) {
	b, err := New(c, h, w)
	if err != nil {
		return nil, err
	}
	for i := range b.Data {
		b.Data[i] = v
	}
	return b, nil
}

// FromPlane copies a single H x W channel into a new buffer with C == 1.
func FromPlane(h, w int, data []float32) (*Buffer, error) {
	return FromFlat(1, h, w, data)
}

// FromFlat copies flat channel-first data into a new buffer.
func FromFlat(c, h, w int, data []float32) (*Buffer, error) {
	b, err := New(c, h, w)
	if err != nil {
		return nil, err
	}
	if len(data) != len(b.Data) {
		return nil, fmt.Errorf("%w: %d values for %dx%dx%d", ErrInvalidShape, len(data), c, h, w)
	}
	copy(b.Data, data)
	return b, nil
}

// Len returns the number of elements (C*H*W).
func (b *Buffer) Len() int { return b.C * b.H * b.W }

// Shape returns the dimensions as [C, H, W].
func (b *Buffer) Shape() []int { return []int{b.C, b.H, b.W} }

// SameShape reports whether both buffers have identical C, H and W.
func (b *Buffer) SameShape(o *Buffer) bool {
	return o != nil && b.C == o.C && b.H == o.H && b.W == o.W
}

func (b *Buffer) index(c, y, x int) int { return (c*b.H+y)*b.W + x }

// At returns element (c, y, x).
func (b *Buffer) At(c, y, x int) float32 { return b.Data[b.index(c, y, x)] }

// Set assigns element (c, y, x).
func (b *Buffer) Set(c, y, x int, v float32) { b.Data[b.index(c, y, x)] = v }

// Channel returns the H*W plane of channel c. The slice aliases b.Data.
func (b *Buffer) Channel(c int) []float32 {
	n := b.H * b.W
	return b.Data[c*n : (c+1)*n]
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	out := &Buffer{C: b.C, H: b.H, W: b.W, Data: make([]float32, len(b.Data))}
	copy(out.Data, b.Data)
	return out
}

// Clamp returns a copy with every element limited to [lo, hi].
func (b *Buffer) Clamp(lo, hi float32) *Buffer {
	out := b.Clone()
	for i, v := range out.Data {
		out.Data[i] = min(max(v, lo), hi)
	}
	return out
}

// MinMax returns the smallest and largest element.
func (b *Buffer) MinMax() (lo, hi float32) {
	lo, hi = b.Data[0], b.Data[0]
	for _, v := range b.Data[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}

// Tensor returns the buffer as a [C, H, W] float32 gomlx tensor.
func (b *Buffer) Tensor() *tensors.Tensor {
	flat := make([]float32, len(b.Data))
	copy(flat, b.Data)
	return tensors.FromFlatDataAndDimensions(flat, b.C, b.H, b.W)
}

// FromTensor converts a rank-2 ([H, W]) or rank-3 ([C, H, W]) float tensor
// into a Buffer.
func FromTensor(t *tensors.Tensor) (*Buffer, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil tensor", ErrInvalidShape)
	}
	dims := t.Shape().Dimensions
	flat, err := FlatFloat32(t)
	if err != nil {
		return nil, err
	}
	switch len(dims) {
	case 2:
		return FromFlat(1, dims[0], dims[1], flat)
	case 3:
		return FromFlat(dims[0], dims[1], dims[2], flat)
	default:
		return nil, fmt.Errorf("%w: want rank 2 or 3, got dimensions %v", ErrInvalidShape, dims)
	}
}

// SplitBatch converts a [B, C, H, W] tensor into B buffers.
func SplitBatch(t *tensors.Tensor) ([]*Buffer, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil tensor", ErrInvalidShape)
	}
	dims := t.Shape().Dimensions
	if len(dims) != 4 {
		return nil, fmt.Errorf("%w: want [B, C, H, W], got dimensions %v", ErrInvalidShape, dims)
	}
	flat, err := FlatFloat32(t)
	if err != nil {
		return nil, err
	}
	n := dims[1] * dims[2] * dims[3]
	out := make([]*Buffer, dims[0])
	for i := range out {
		b, err := FromFlat(dims[1], dims[2], dims[3], flat[i*n:(i+1)*n])
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		out[i] = b
	}
	return out, nil
}

// StackBatch is the inverse of SplitBatch: identical-shaped buffers become a
// [B, C, H, W] float32 tensor.
func StackBatch(batch []*Buffer) (*tensors.Tensor, error) {
	if len(batch) == 0 || batch[0] == nil {
		return nil, fmt.Errorf("%w: empty batch", ErrInvalidShape)
	}
	first := batch[0]
	flat := make([]float32, 0, len(batch)*first.Len())
	for i, b := range batch {
		if b == nil {
			return nil, fmt.Errorf("%w: sample %d is nil", ErrInvalidShape, i)
		}
		if !first.SameShape(b) {
			return nil, fmt.Errorf("%w: sample %d has shape %v, want %v", ErrInvalidShape, i, b.Shape(), first.Shape())
		}
		flat = append(flat, b.Data...)
	}
	return tensors.FromFlatDataAndDimensions(flat, len(batch), first.C, first.H, first.W), nil
}

// FlatFloat32 copies the flat data of a float32 or float64 tensor as float32.
func FlatFloat32(t *tensors.Tensor) ([]float32, error) {
	switch dt := t.Shape().DType; dt {
	case dtypes.Float32:
		return tensors.MustCopyFlatData[float32](t), nil
	case dtypes.Float64:
		src := tensors.MustCopyFlatData[float64](t)
		out := make([]float32, len(src))
		for i, v := range src {
			out[i] = float32(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDType, dt)
	}
}

// Prod multiplies the given dimensions. Prod() is 1.
func Prod(dims ...int) int {
	p := 1
	for _, d := range dims {
		p *= d
	}
	return p
}

// BatchFlatten reshapes a [B, ...] tensor into [B, prod(...)]. The result is
// always float32.
func BatchFlatten(t *tensors.Tensor) (*tensors.Tensor, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil tensor", ErrInvalidShape)
	}
	dims := t.Shape().Dimensions
	if len(dims) < 1 {
		return nil, fmt.Errorf("%w: scalar has no batch axis", ErrInvalidShape)
	}
	flat, err := FlatFloat32(t)
	if err != nil {
		return nil, err
	}
	return tensors.FromFlatDataAndDimensions(flat, dims[0], Prod(dims[1:]...)), nil
}
