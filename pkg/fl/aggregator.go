package fl

import (
	"fmt"
	"slices"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Aggregator combines the results of one round into a new global model and
// a distributed evaluation summary.
type Aggregator interface {
	// AggregateFit returns a ParameterSet compatible with reference. Only
	// successful results with a positive sample count contribute.
	AggregateFit(reference ParameterSet, results []ClientResult) (ParameterSet, error)

	// AggregateEvaluate averages client reported loss and metrics.
	AggregateEvaluate(results []ClientResult) (DistributedMetrics, error)
}

type fedAvg struct{}

// NewFedAvg returns the sample-count weighted averaging aggregator.
func NewFedAvg() Aggregator {
	return fedAvg{}
}

func (fedAvg) AggregateFit(reference ParameterSet, results []ClientResult) (ParameterSet, error) {
	usable, err := usableFit(reference, results)
	if err != nil {
		return nil, err
	}

	sets := make([]ParameterSet, len(usable))
	weights := make([]float64, len(usable))
	for i, r := range usable {
		sets[i] = r.Parameters
		weights[i] = float64(r.NumSamples)
	}

	return WeightedAverage(sets, weights)
}

func (fedAvg) AggregateEvaluate(results []ClientResult) (DistributedMetrics, error) {
	return weightedEvaluate(results)
}

type fedMedian struct{}

// NewFedMedian returns an aggregator taking the coordinate-wise median of
// the successful fit results. Sample counts only gate participation.
func NewFedMedian() Aggregator {
	return fedMedian{}
}

func (fedMedian) AggregateFit(reference ParameterSet, results []ClientResult) (ParameterSet, error) {
	usable, err := usableFit(reference, results)
	if err != nil {
		return nil, err
	}

	out := make(ParameterSet, len(reference))
	column := make([]float64, len(usable))
	for i, t := range reference {
		out[i] = Zeros(t.Shape...)
		for j := range out[i].Data {
			for k, r := range usable {
				column[k] = r.Parameters[i].Data[j]
			}
			sort.Float64s(column)
			out[i].Data[j] = median(column)
		}
	}

	return out, nil
}

func (fedMedian) AggregateEvaluate(results []ClientResult) (DistributedMetrics, error) {
	return weightedEvaluate(results)
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}

	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func usableFit(reference ParameterSet, results []ClientResult) ([]ClientResult, error) {
	if err := reference.Validate(); err != nil {
		return nil, err
	}

	usable := make([]ClientResult, 0, len(results))
	for _, r := range results {
		if r.Status != Success || r.NumSamples <= 0 {
			continue
		}
		if !reference.Compatible(r.Parameters) {
			return nil, fmt.Errorf("%w: client %s returned signature %v, want %v", ErrShapeMismatch, r.ClientID, r.Parameters.Signature(), reference.Signature())
		}
		usable = append(usable, r)
	}
	if len(usable) == 0 {
		return nil, ErrNoSuccessfulClients
	}

	return usable, nil
}

func weightedEvaluate(results []ClientResult) (DistributedMetrics, error) {
	var (
		losses  []float64
		weights []float64
		usable  []ClientResult
	)
	for _, r := range results {
		if r.Status != Success || r.NumSamples <= 0 {
			continue
		}
		usable = append(usable, r)
		losses = append(losses, r.Loss)
		weights = append(weights, float64(r.NumSamples))
	}
	if len(usable) == 0 {
		return DistributedMetrics{}, ErrNoSuccessfulClients
	}

	dm := DistributedMetrics{
		Loss:       stat.Mean(losses, weights),
		NumSamples: int(floats.Sum(weights)),
	}

	// A metric is only averaged when every usable client reported it.
	keys := make([]string, 0, len(usable[0].Metrics))
	for k := range usable[0].Metrics {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	values := make([]float64, len(usable))
	for _, k := range keys {
		complete := true
		for i, r := range usable {
			v, ok := r.Metrics[k]
			if !ok {
				complete = false

				break
			}
			values[i] = v
		}
		if !complete {
			continue
		}
		if dm.Metrics == nil {
			dm.Metrics = make(map[string]float64, len(keys))
		}
		dm.Metrics[k] = stat.Mean(values, weights)
	}

	return dm, nil
}
