package clients

import (
	"context"
	"sync"

	"github.com/absmach/flcoord/pkg/dataset"
	"github.com/absmach/flcoord/pkg/model"
)

var _ Client = (*Local)(nil)

// Local is an in-process participant training its own model on a private
// partition.
type Local struct {
	mu    sync.Mutex
	model model.Model
	train dataset.Dataset
	eval  dataset.Dataset
}

func NewLocal(m model.Model, train, eval dataset.Dataset) *Local {
	return &Local{
		model: m,
		train: train,
		eval:  eval,
	}
}

func (l *Local) NumSamples() int {
	return l.train.Len()
}

func (l *Local) Fit(ctx context.Context, ins FitIns) (FitRes, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Train(ctx, l.model, l.train, ins)
}

func (l *Local) Evaluate(ctx context.Context, ins EvaluateIns) (EvaluateRes, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Score(ctx, l.model, l.eval, ins)
}

// Train loads the global parameters into m, trains on data and reports the
// updated weights with the training loss and accuracy.
func Train(ctx context.Context, m model.Model, data dataset.Dataset, ins FitIns) (FitRes, error) {
	if err := m.SetParameters(ins.Parameters); err != nil {
		return FitRes{}, err
	}
	params, err := m.Train(ctx, data, ins.Config.LocalEpochs, ins.Config.BatchSize)
	if err != nil {
		return FitRes{}, err
	}
	scores, err := model.Evaluate(m, data)
	if err != nil {
		return FitRes{}, err
	}

	return FitRes{
		Parameters: params,
		NumSamples: data.Len(),
		Metrics: map[string]float64{
			"loss":     scores.Loss,
			"accuracy": scores.Accuracy,
		},
	}, nil
}

// Score evaluates the global parameters on at most EvalSteps batches of
// data.
func Score(ctx context.Context, m model.Model, data dataset.Dataset, ins EvaluateIns) (EvaluateRes, error) {
	if err := ctx.Err(); err != nil {
		return EvaluateRes{}, err
	}
	if err := m.SetParameters(ins.Parameters); err != nil {
		return EvaluateRes{}, err
	}
	if limit := ins.Config.EvalSteps * ins.Config.BatchSize; limit > 0 {
		data = data.Head(limit)
	}
	scores, err := model.Evaluate(m, data)
	if err != nil {
		return EvaluateRes{}, err
	}

	return EvaluateRes{
		Loss:       scores.Loss,
		NumSamples: scores.NumSamples,
		Metrics: map[string]float64{
			"accuracy": scores.Accuracy,
			"f1_score": scores.F1,
		},
	}, nil
}
