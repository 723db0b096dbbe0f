package coordinator

import (
	"context"
	"sync"

	"github.com/absmach/flcoord/pkg/dataset"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/model"
)

type holdoutEvaluator struct {
	mu      sync.Mutex
	model   model.Model
	holdout dataset.Dataset
}

// NewEvaluator scores parameters with m on a holdout set the coordinator
// keeps for itself.
func NewEvaluator(m model.Model, holdout dataset.Dataset) Evaluator {
	return &holdoutEvaluator{
		model:   m,
		holdout: holdout,
	}
}

func (e *holdoutEvaluator) Evaluate(ctx context.Context, params fl.ParameterSet) (fl.CentralizedMetrics, error) {
	if err := ctx.Err(); err != nil {
		return fl.CentralizedMetrics{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.model.SetParameters(params); err != nil {
		return fl.CentralizedMetrics{}, err
	}

	return model.Evaluate(e.model, e.holdout)
}
