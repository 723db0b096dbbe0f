package fl

import (
	"errors"
	"fmt"
	"math"
)

// ConfigPolicy derives the per-round configuration from the round number.
type ConfigPolicy interface {
	ConfigForRound(round int) RoundConfig
}

// StepPolicy switches local epochs and evaluation steps from an early to a
// late value once the round number reaches a threshold.
type StepPolicy struct {
	BatchSize      int `toml:"batch_size"       json:"batch_size"`
	EarlyEpochs    int `toml:"early_epochs"     json:"early_epochs"`
	LateEpochs     int `toml:"late_epochs"      json:"late_epochs"`
	EpochsFrom     int `toml:"epochs_from"      json:"epochs_from"`
	EarlyEvalSteps int `toml:"early_eval_steps" json:"early_eval_steps"`
	LateEvalSteps  int `toml:"late_eval_steps"  json:"late_eval_steps"`
	EvalStepsFrom  int `toml:"eval_steps_from"  json:"eval_steps_from"`
}

func DefaultPolicy() StepPolicy {
	return StepPolicy{
		BatchSize:      32,
		EarlyEpochs:    100,
		LateEpochs:     300,
		EpochsFrom:     2,
		EarlyEvalSteps: 5,
		LateEvalSteps:  10,
		EvalStepsFrom:  4,
	}
}

func (p StepPolicy) ConfigForRound(round int) RoundConfig {
	cfg := RoundConfig{
		Round:       round,
		BatchSize:   p.BatchSize,
		LocalEpochs: p.EarlyEpochs,
		EvalSteps:   p.EarlyEvalSteps,
	}
	if round >= p.EpochsFrom {
		cfg.LocalEpochs = p.LateEpochs
	}
	if round >= p.EvalStepsFrom {
		cfg.EvalSteps = p.LateEvalSteps
	}

	return cfg
}

// Strategy holds the participant selection parameters together with the
// configuration policy and the aggregation rule.
type Strategy struct {
	FractionFit         float64
	FractionEvaluate    float64
	MinFitClients       int
	MinEvaluateClients  int
	MinAvailableClients int
	Policy              ConfigPolicy
	Aggregator          Aggregator
}

// DefaultStrategy mirrors the reference deployment: 30% of clients train,
// 20% evaluate, at least three clients must be connected.
func DefaultStrategy() Strategy {
	return Strategy{
		FractionFit:         0.3,
		FractionEvaluate:    0.2,
		MinFitClients:       3,
		MinEvaluateClients:  2,
		MinAvailableClients: 3,
		Policy:              DefaultPolicy(),
		Aggregator:          NewFedAvg(),
	}
}

func (s Strategy) Validate() error {
	var errs []error
	if s.FractionFit < 0 || s.FractionFit > 1 {
		errs = append(errs, fmt.Errorf("fraction_fit %v out of [0, 1]", s.FractionFit))
	}
	if s.FractionEvaluate < 0 || s.FractionEvaluate > 1 {
		errs = append(errs, fmt.Errorf("fraction_evaluate %v out of [0, 1]", s.FractionEvaluate))
	}
	if s.MinFitClients < 1 {
		errs = append(errs, errors.New("min_fit_clients must be at least 1"))
	}
	if s.MinEvaluateClients < 0 {
		errs = append(errs, errors.New("min_evaluate_clients must not be negative"))
	}
	if s.MinAvailableClients < 0 {
		errs = append(errs, errors.New("min_available_clients must not be negative"))
	}
	if s.Policy == nil {
		errs = append(errs, errors.New("missing config policy"))
	}
	if s.Aggregator == nil {
		errs = append(errs, errors.New("missing aggregator"))
	}

	return errors.Join(errs...)
}

func (s Strategy) EvaluateEnabled() bool {
	return s.FractionEvaluate > 0
}

// SampleSize is max(minCount, ceil(fraction*available)) capped at available.
func SampleSize(available, minCount int, fraction float64) int {
	// The tolerance keeps products like 0.7*10 from rounding up past 7.
	n := int(math.Ceil(fraction*float64(available) - 1e-9))
	if n < minCount {
		n = minCount
	}
	if n > available {
		n = available
	}

	return n
}
