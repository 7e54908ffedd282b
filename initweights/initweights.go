// Package initweights draws initial layer parameters from an explicit
// per-layer-kind table. Convolution and linear weights start at N(0, 0.02),
// batch-norm scales at N(1, 0.02), and every bias at zero.
package initweights

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// ErrNoRule is returned for a layer whose kind has no entry in the table.
// Such layers keep whatever parameters they already had.
var ErrNoRule = errors.New("initweights: no rule for layer kind")

// LayerKind identifies the family a layer belongs to.
type LayerKind int

const (
	Conv LayerKind = iota
	ConvTranspose
	Linear
	BatchNorm
	LSTM
)

func (k LayerKind) String() string {
	switch k {
	case Conv:
		return "conv"
	case ConvTranspose:
		return "conv_transpose"
	case Linear:
		return "linear"
	case BatchNorm:
		return "batch_norm"
	case LSTM:
		return "lstm"
	}
	return fmt.Sprintf("LayerKind(%d)", int(k))
}

// Rule is the normal distribution a weight is drawn from plus the constant
// its bias is filled with.
type Rule struct {
	Mean float64
	Std  float64
	Bias float64
}

// Table maps layer kinds to their rule.
type Table map[LayerKind]Rule

// DefaultTable returns the DCGAN-style table.
func DefaultTable() Table {
	return Table{
		Conv:          {Mean: 0, Std: 0.02},
		ConvTranspose: {Mean: 0, Std: 0.02},
		Linear:        {Mean: 0, Std: 0.02},
		BatchNorm:     {Mean: 1, Std: 0.02},
	}
}

// Layer describes the parameters of one layer.
type Layer struct {
	Name string
	Kind LayerKind

	// WeightShape is the weight tensor dimensions, e.g. [out, in, kh, kw].
	WeightShape []int

	// BiasLen is the bias length; 0 means the layer has no bias.
	BiasLen int
}

// Params holds freshly drawn parameters. Bias is nil for layers without one.
type Params struct {
	Layer  Layer
	Weight *tensors.Tensor
	Bias   *tensors.Tensor
}

// Init draws the parameters of a single layer.
func Init(layer Layer, table Table, rng *rand.Rand) (Params, error) {
	rule, ok := table[layer.Kind]
	if !ok {
		return Params{}, fmt.Errorf("%w: %s (%s)", ErrNoRule, layer.Name, layer.Kind)
	}
	size := 1
	for _, d := range layer.WeightShape {
		if d <= 0 {
			return Params{}, fmt.Errorf("layer %s: invalid weight shape %v", layer.Name, layer.WeightShape)
		}
		size *= d
	}
	if len(layer.WeightShape) == 0 {
		return Params{}, fmt.Errorf("layer %s: empty weight shape", layer.Name)
	}
	if layer.BiasLen < 0 {
		return Params{}, fmt.Errorf("layer %s: negative bias length %d", layer.Name, layer.BiasLen)
	}

	w := make([]float32, size)
	for i := range w {
		w[i] = float32(rule.Mean + rule.Std*rng.NormFloat64())
	}
	p := Params{
		Layer:  layer,
		Weight: tensors.FromFlatDataAndDimensions(w, layer.WeightShape...),
	}
	if layer.BiasLen > 0 {
		b := make([]float32, layer.BiasLen)
		for i := range b {
			b[i] = float32(rule.Bias)
		}
		p.Bias = tensors.FromFlatDataAndDimensions(b, layer.BiasLen)
	}
	return p, nil
}

// InitAll initializes every layer that has a rule using a generator seeded
// with seed, in order. Layers without a rule are skipped and reported in the
// second return value.
func InitAll(layers []Layer, table Table, seed int64) ([]Params, []string, error) {
	rng := rand.New(rand.NewSource(seed))
	var out []Params
	var skipped []string
	for _, l := range layers {
		p, err := Init(l, table, rng)
		if errors.Is(err, ErrNoRule) {
			skipped = append(skipped, l.Name)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		out = append(out, p)
	}
	return out, skipped, nil
}
