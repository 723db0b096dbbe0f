package fl

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// Tensor is a dense row-major array of float64 values.
type Tensor struct {
	Shape []int     `json:"shape" cbor:"1,keyasint"`
	Data  []float64 `json:"data"  cbor:"2,keyasint"`
}

func NewTensor(shape []int, data []float64) (Tensor, error) {
	if size(shape) != len(data) {
		return Tensor{}, fmt.Errorf("%w: shape %v holds %d values, got %d", ErrShapeMismatch, shape, size(shape), len(data))
	}

	return Tensor{Shape: slices.Clone(shape), Data: slices.Clone(data)}, nil
}

func Zeros(shape ...int) Tensor {
	return Tensor{Shape: slices.Clone(shape), Data: make([]float64, size(shape))}
}

func (t Tensor) Len() int {
	return len(t.Data)
}

func (t Tensor) Clone() Tensor {
	return Tensor{Shape: slices.Clone(t.Shape), Data: slices.Clone(t.Data)}
}

func (t Tensor) valid() bool {
	return size(t.Shape) == len(t.Data)
}

func size(shape []int) int {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return -1
		}
		n *= d
	}

	return n
}

// ParameterSet is an ordered list of tensors making up a model's weights.
// Values are treated as immutable: operations return new sets.
type ParameterSet []Tensor

func (ps ParameterSet) Clone() ParameterSet {
	if ps == nil {
		return nil
	}
	out := make(ParameterSet, len(ps))
	for i, t := range ps {
		out[i] = t.Clone()
	}

	return out
}

// Signature returns the shape of every tensor in order.
func (ps ParameterSet) Signature() [][]int {
	sig := make([][]int, len(ps))
	for i, t := range ps {
		sig[i] = slices.Clone(t.Shape)
	}

	return sig
}

func (ps ParameterSet) NumValues() int {
	n := 0
	for _, t := range ps {
		n += t.Len()
	}

	return n
}

// Validate checks that every tensor's data length matches its shape.
func (ps ParameterSet) Validate() error {
	if len(ps) == 0 {
		return ErrEmptyParameters
	}
	for i, t := range ps {
		if !t.valid() {
			return fmt.Errorf("%w: tensor %d has shape %v and %d values", ErrShapeMismatch, i, t.Shape, len(t.Data))
		}
	}

	return nil
}

// Compatible reports whether both sets have the same number of tensors with
// identical shapes in the same order.
func (ps ParameterSet) Compatible(other ParameterSet) bool {
	if len(ps) != len(other) {
		return false
	}
	for i := range ps {
		if !slices.Equal(ps[i].Shape, other[i].Shape) || len(ps[i].Data) != len(other[i].Data) {
			return false
		}
	}

	return true
}

func (ps ParameterSet) Equal(other ParameterSet) bool {
	if !ps.Compatible(other) {
		return false
	}
	for i := range ps {
		if !floats.Equal(ps[i].Data, other[i].Data) {
			return false
		}
	}

	return true
}

// WeightedAverage combines sets element-wise with the given non-negative
// weights. All sets must be compatible with the first one.
func WeightedAverage(sets []ParameterSet, weights []float64) (ParameterSet, error) {
	if len(sets) == 0 {
		return nil, ErrNoSuccessfulClients
	}
	if len(sets) != len(weights) {
		return nil, fmt.Errorf("got %d parameter sets and %d weights", len(sets), len(weights))
	}

	total := floats.Sum(weights)
	if total <= 0 {
		return nil, ErrInvalidSampleCount
	}

	ref := sets[0]
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	out := make(ParameterSet, len(ref))
	for i, t := range ref {
		out[i] = Zeros(t.Shape...)
	}

	for k, set := range sets {
		if !ref.Compatible(set) {
			return nil, fmt.Errorf("%w: set %d has signature %v, want %v", ErrShapeMismatch, k, set.Signature(), ref.Signature())
		}
		w := weights[k] / total
		for i := range set {
			floats.AddScaled(out[i].Data, w, set[i].Data)
		}
	}

	return out, nil
}
