package model

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/absmach/flcoord/pkg/dataset"
	"github.com/absmach/flcoord/pkg/fl"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	defLearningRate = 0.001
	beta1           = 0.9
	beta2           = 0.999
	adamEpsilon     = 1e-7
)

var _ Model = (*Dense)(nil)

// Dense is a two layer perceptron: a ReLU hidden layer followed by a single
// sigmoid output, trained on binary cross-entropy with Adam. Its parameters
// are ordered kernel1, bias1, kernel2, bias2.
type Dense struct {
	mu     sync.Mutex
	inputs int
	hidden int
	lr     float64
	rng    *rand.Rand
	params fl.ParameterSet
	opt    adam
}

type Option func(*Dense)

func WithLearningRate(lr float64) Option {
	return func(d *Dense) {
		d.lr = lr
	}
}

func WithSeed(seed uint64) Option {
	return func(d *Dense) {
		d.rng = rand.New(rand.NewPCG(seed, seed+1))
	}
}

// NewDense returns a network with Glorot-uniform kernels and zero biases.
func NewDense(inputs, hidden int, opts ...Option) *Dense {
	d := &Dense{
		inputs: inputs,
		hidden: hidden,
		lr:     defLearningRate,
		rng:    rand.New(rand.NewPCG(1, 2)),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.params = fl.ParameterSet{
		d.glorot(inputs, hidden),
		fl.Zeros(hidden),
		d.glorot(hidden, 1),
		fl.Zeros(1),
	}
	d.opt = newAdam(d.params, d.lr)

	return d
}

func (d *Dense) glorot(fanIn, fanOut int) fl.Tensor {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	t := fl.Zeros(fanIn, fanOut)
	for i := range t.Data {
		t.Data[i] = (d.rng.Float64()*2 - 1) * limit
	}

	return t
}

func (d *Dense) Parameters() fl.ParameterSet {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.params.Clone()
}

func (d *Dense) SetParameters(ps fl.ParameterSet) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ps.Validate(); err != nil {
		return err
	}
	if !d.params.Compatible(ps) {
		return fmt.Errorf("%w: got %v, want %v", fl.ErrShapeMismatch, ps.Signature(), d.params.Signature())
	}
	d.params = ps.Clone()

	return nil
}

func (d *Dense) Train(ctx context.Context, data dataset.Dataset, epochs, batchSize int) (fl.ParameterSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if data.Len() == 0 {
		return nil, dataset.ErrEmpty
	}
	if data.NumFeatures() != d.inputs {
		return nil, fmt.Errorf("model expects %d features, dataset has %d", d.inputs, data.NumFeatures())
	}
	if batchSize <= 0 {
		batchSize = data.Len()
	}

	for range epochs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		perm := d.rng.Perm(data.Len())
		for start := 0; start < len(perm); start += batchSize {
			batch := data.Subset(perm[start:min(start+batchSize, len(perm))])
			d.opt.step(d.params, d.gradients(batch))
		}
	}

	return d.params.Clone(), nil
}

func (d *Dense) Predict(x [][]float64) ([]float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(x) == 0 {
		return nil, nil
	}
	if len(x[0]) != d.inputs {
		return nil, fmt.Errorf("model expects %d features, got %d", d.inputs, len(x[0]))
	}
	_, _, probs := d.forward(rows(x))

	return probs, nil
}

func (d *Dense) forward(x *mat.Dense) (z1, a1 *mat.Dense, probs []float64) {
	n, _ := x.Dims()
	w1 := mat.NewDense(d.inputs, d.hidden, d.params[0].Data)
	w2 := mat.NewDense(d.hidden, 1, d.params[2].Data)

	z1 = mat.NewDense(n, d.hidden, nil)
	z1.Mul(x, w1)
	for i := range n {
		floats.Add(z1.RawRowView(i), d.params[1].Data)
	}

	a1 = mat.NewDense(n, d.hidden, nil)
	a1.Apply(func(_, _ int, v float64) float64 { return math.Max(v, 0) }, z1)

	z2 := mat.NewDense(n, 1, nil)
	z2.Mul(a1, w2)

	probs = make([]float64, n)
	for i := range n {
		probs[i] = sigmoid(z2.At(i, 0) + d.params[3].Data[0])
	}

	return z1, a1, probs
}

func (d *Dense) gradients(batch dataset.Dataset) fl.ParameterSet {
	x := rows(batch.X)
	n := batch.Len()
	z1, a1, probs := d.forward(x)

	dz2 := mat.NewDense(n, 1, nil)
	for i, p := range probs {
		dz2.Set(i, 0, (p-batch.Y[i])/float64(n))
	}

	dw2 := mat.NewDense(d.hidden, 1, nil)
	dw2.Mul(a1.T(), dz2)

	w2 := mat.NewDense(d.hidden, 1, d.params[2].Data)
	da1 := mat.NewDense(n, d.hidden, nil)
	da1.Mul(dz2, w2.T())
	da1.Apply(func(i, j int, v float64) float64 {
		if z1.At(i, j) > 0 {
			return v
		}

		return 0
	}, da1)

	dw1 := mat.NewDense(d.inputs, d.hidden, nil)
	dw1.Mul(x.T(), da1)

	db1 := make([]float64, d.hidden)
	for i := range n {
		floats.Add(db1, da1.RawRowView(i))
	}

	return fl.ParameterSet{
		{Shape: []int{d.inputs, d.hidden}, Data: dw1.RawMatrix().Data},
		{Shape: []int{d.hidden}, Data: db1},
		{Shape: []int{d.hidden, 1}, Data: dw2.RawMatrix().Data},
		{Shape: []int{1}, Data: []float64{mat.Sum(dz2)}},
	}
}

func rows(x [][]float64) *mat.Dense {
	m := mat.NewDense(len(x), len(x[0]), nil)
	for i, row := range x {
		m.SetRow(i, row)
	}

	return m
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

type adam struct {
	lr   float64
	t    int
	m, v [][]float64
}

func newAdam(params fl.ParameterSet, lr float64) adam {
	a := adam{lr: lr, m: make([][]float64, len(params)), v: make([][]float64, len(params))}
	for i, p := range params {
		a.m[i] = make([]float64, p.Len())
		a.v[i] = make([]float64, p.Len())
	}

	return a
}

func (a *adam) step(params, grads fl.ParameterSet) {
	a.t++
	c1 := 1 - math.Pow(beta1, float64(a.t))
	c2 := 1 - math.Pow(beta2, float64(a.t))
	for i := range params {
		m, v, p := a.m[i], a.v[i], params[i].Data
		for j, g := range grads[i].Data {
			m[j] = beta1*m[j] + (1-beta1)*g
			v[j] = beta2*v[j] + (1-beta2)*g*g
			p[j] -= a.lr * (m[j] / c1) / (math.Sqrt(v[j]/c2) + adamEpsilon)
		}
	}
}
