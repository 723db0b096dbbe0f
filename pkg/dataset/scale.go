package dataset

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"
)

// Standardizer rescales every feature to zero mean and unit variance using
// statistics fitted on one dataset.
type Standardizer struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

func FitStandardizer(d Dataset) Standardizer {
	nf := d.NumFeatures()
	s := Standardizer{Mean: make([]float64, nf), Std: make([]float64, nf)}
	column := make([]float64, d.Len())
	for j := range nf {
		for i, row := range d.X {
			column[i] = row[j]
		}
		s.Mean[j], s.Std[j] = stat.MeanStdDev(column, nil)
		if s.Std[j] == 0 || math.IsNaN(s.Std[j]) {
			s.Std[j] = 1
		}
	}

	return s
}

// Apply returns a rescaled copy of d.
func (s Standardizer) Apply(d Dataset) Dataset {
	out := Dataset{
		Features: d.Features,
		X:        make([][]float64, d.Len()),
		Y:        d.Y,
	}
	for i, row := range d.X {
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.Mean[j]) / s.Std[j]
		}
		out.X[i] = scaled
	}

	return out
}

// Synthetic generates n rows of a noisy linearly separable problem. It
// stands in for a real dataset in simulations and tests.
func Synthetic(n, features int, seed uint64) Dataset {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	weights := make([]float64, features)
	for j := range weights {
		weights[j] = rng.NormFloat64()
	}

	d := Dataset{
		Features: make([]string, features),
		X:        make([][]float64, n),
		Y:        make([]float64, n),
	}
	for j := range features {
		d.Features[j] = "x" + string(rune('a'+j%26))
	}
	for i := range n {
		row := make([]float64, features)
		var z float64
		for j := range row {
			row[j] = rng.NormFloat64()
			z += weights[j] * row[j]
		}
		z += 0.3 * rng.NormFloat64()
		if z > 0 {
			d.Y[i] = 1
		}
		d.X[i] = row
	}

	return d
}
