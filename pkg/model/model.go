// Package model holds the learner collaborators used by participants and by
// the coordinator's centralized evaluation.
package model

import (
	"context"

	"github.com/absmach/flcoord/pkg/dataset"
	"github.com/absmach/flcoord/pkg/fl"
)

// Model is a binary classifier whose weights travel as a ParameterSet.
type Model interface {
	Parameters() fl.ParameterSet
	SetParameters(ps fl.ParameterSet) error
	// Train runs local epochs over data and returns the updated weights.
	Train(ctx context.Context, data dataset.Dataset, epochs, batchSize int) (fl.ParameterSet, error)
	// Predict returns the positive-class probability of every row.
	Predict(x [][]float64) ([]float64, error)
}

// Evaluate scores m on data.
func Evaluate(m Model, data dataset.Dataset) (fl.CentralizedMetrics, error) {
	if data.Len() == 0 {
		return fl.CentralizedMetrics{}, dataset.ErrEmpty
	}
	probs, err := m.Predict(data.X)
	if err != nil {
		return fl.CentralizedMetrics{}, err
	}

	return fl.Classification(data.Y, probs)
}
