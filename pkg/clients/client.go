package clients

import (
	"context"

	"github.com/absmach/flcoord/pkg/fl"
)

type FitIns struct {
	Parameters fl.ParameterSet
	Config     fl.RoundConfig
}

type FitRes struct {
	Parameters fl.ParameterSet
	NumSamples int
	Metrics    map[string]float64
}

type EvaluateIns struct {
	Parameters fl.ParameterSet
	Config     fl.RoundConfig
}

type EvaluateRes struct {
	Loss       float64
	NumSamples int
	Metrics    map[string]float64
}

// Client is the transport-level handle to one participant. Implementations
// must not modify the parameters they receive and must return once ctx is
// done.
type Client interface {
	Fit(ctx context.Context, ins FitIns) (FitRes, error)
	Evaluate(ctx context.Context, ins EvaluateIns) (EvaluateRes, error)
}
