// Package grid lays out nested collections of same-shaped image buffers into
// a single composite image.
//
// A flat list of leaves becomes one row: tiles are placed left to right along
// the width axis. A list of lists composes every child into its own image
// first and then stacks those top to bottom along the height axis, so the
// rows of a batch-of-sequences end up as the rows of the final grid.
package grid

import (
	"errors"
	"fmt"

	"github.com/Noofbiz/vidpred/imgtensor"
)

var (
	// ErrEmptyInput is returned for an empty list at any depth.
	ErrEmptyInput = errors.New("grid: empty input")

	// ErrShapeMismatch is returned when sibling tiles differ in channels,
	// height or width.
	ErrShapeMismatch = errors.New("grid: shape mismatch")

	// ErrMixedNesting is returned when a list mixes leaves and nested lists.
	ErrMixedNesting = errors.New("grid: mixed leaves and nested inputs")

	// ErrNegativePadding is returned for padding < 0.
	ErrNegativePadding = errors.New("grid: negative padding")
)

// Input is either a single buffer (a leaf) or an ordered list of inputs.
// The zero value is an empty nested list.
type Input struct {
	leaf     *imgtensor.Buffer
	children []Input
}

// Leaf wraps a single image buffer. Leaf(nil) is an empty nested list.
func Leaf(b *imgtensor.Buffer) Input { return Input{leaf: b} }

// Nested wraps an ordered list of inputs.
func Nested(children ...Input) Input { return Input{children: children} }

// Leaves wraps every buffer with Leaf.
func Leaves(bs ...*imgtensor.Buffer) []Input {
	out := make([]Input, len(bs))
	for i, b := range bs {
		out[i] = Leaf(b)
	}
	return out
}

// Rows builds a list of rows, one nested input per batch of buffers.
func Rows(rows ...[]*imgtensor.Buffer) []Input {
	out := make([]Input, len(rows))
	for i, r := range rows {
		out[i] = Nested(Leaves(r...)...)
	}
	return out
}

// IsLeaf reports whether the input wraps a single buffer.
func (in Input) IsLeaf() bool { return in.leaf != nil }

// Buffer returns the wrapped buffer, or nil for nested inputs.
func (in Input) Buffer() *imgtensor.Buffer { return in.leaf }

// Children returns the nested inputs, or nil for a leaf.
func (in Input) Children() []Input { return in.children }

// Options controls the composite layout.
type Options struct {
	// Padding is the number of fill pixels between neighbouring tiles.
	Padding int

	// Fill is the value written into padding gaps.
	Fill float32
}

// DefaultOptions returns one pixel of white (1.0) padding.
func DefaultOptions() Options {
	return Options{Padding: 1, Fill: 1}
}

// Compose lays out inputs with the given padding and a white fill.
func Compose(inputs []Input, padding int) (*imgtensor.Buffer, error) {
	opts := DefaultOptions()
	opts.Padding = padding
	return ComposeWith(inputs, opts)
}

// ComposeWith lays out inputs using opts. Nested children are composed with
// the same options, so Padding applies at every level: inner rows are not
// padded by a fixed 1, and [[a, a], [a, a]] with Padding 0 has no gaps at
// all. Inputs are never modified.
func ComposeWith(inputs []Input, opts Options) (*imgtensor.Buffer, error) {
	if opts.Padding < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativePadding, opts.Padding)
	}
	return compose(inputs, opts)
}

func compose(inputs []Input, opts Options) (*imgtensor.Buffer, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyInput
	}

	if !inputs[0].IsLeaf() {
		images := make([]*imgtensor.Buffer, len(inputs))
		for i, in := range inputs {
			if in.IsLeaf() {
				return nil, fmt.Errorf("%w: element %d is a leaf in a nested list", ErrMixedNesting, i)
			}
			img, err := compose(in.children, opts)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			images[i] = img
		}
		return tile(images, true, opts)
	}

	images := make([]*imgtensor.Buffer, len(inputs))
	for i, in := range inputs {
		if !in.IsLeaf() {
			return nil, fmt.Errorf("%w: element %d is nested in a list of leaves", ErrMixedNesting, i)
		}
		images[i] = in.leaf
	}
	return tile(images, false, opts)
}

// tile copies images into a single buffer, stacked along the height axis when
// vertical is set and along the width axis otherwise.
func tile(images []*imgtensor.Buffer, vertical bool, opts Options) (*imgtensor.Buffer, error) {
	first := images[0]
	for i, img := range images[1:] {
		if !first.SameShape(img) {
			return nil, fmt.Errorf("%w: tile %d is %v, tile 0 is %v", ErrShapeMismatch, i+1, img.Shape(), first.Shape())
		}
	}

	n, pad := len(images), opts.Padding
	h, w := first.H, first.W
	if vertical {
		h = first.H*n + pad*(n-1)
	} else {
		w = first.W*n + pad*(n-1)
	}
	out, err := imgtensor.Filled(first.C, h, w, opts.Fill)
	if err != nil {
		return nil, err
	}

	for i, img := range images {
		oy, ox := 0, 0
		if vertical {
			oy = i * (first.H + pad)
		} else {
			ox = i * (first.W + pad)
		}
		for c := 0; c < img.C; c++ {
			for y := 0; y < img.H; y++ {
				dst := ((c*out.H)+oy+y)*out.W + ox
				src := (c*img.H + y) * img.W
				copy(out.Data[dst:dst+img.W], img.Data[src:src+img.W])
			}
		}
	}
	return out, nil
}
