package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/flcoord/pkg/clients"
	"github.com/absmach/flcoord/pkg/fl"
	"golang.org/x/sync/errgroup"
)

const evaluateDisabled = "evaluation disabled"

type phase func(ctx context.Context, p *clients.Proxy, params fl.ParameterSet, cfg fl.RoundConfig) fl.ClientResult

func fitPhase(ctx context.Context, p *clients.Proxy, params fl.ParameterSet, cfg fl.RoundConfig) fl.ClientResult {
	return p.Fit(ctx, params, cfg)
}

func evaluatePhase(ctx context.Context, p *clients.Proxy, params fl.ParameterSet, cfg fl.RoundConfig) fl.ClientResult {
	return p.Evaluate(ctx, params, cfg)
}

// runRound executes one fit and evaluate cycle. The returned record is
// always populated; a non-nil error means the round failed.
func (svc *service) runRound(ctx context.Context, round int) (fl.RoundRecord, error) {
	start := time.Now()
	rec := fl.RoundRecord{
		Round:     round,
		Outcome:   fl.OutcomeFailed,
		Config:    svc.strategy.Policy.ConfigForRound(round),
		StartedAt: start,
	}
	finish := func(err error) (fl.RoundRecord, error) {
		svc.mu.RLock()
		rec.ModelVersion = svc.version
		svc.mu.RUnlock()
		rec.Duration = time.Since(start)
		if err != nil {
			rec.Outcome = fl.OutcomeFailed
			rec.Reason = err.Error()
		}

		return rec, err
	}

	avail, err := svc.pool.Available(ctx, svc.criterion)
	if err != nil {
		return finish(err)
	}
	if len(avail) < svc.strategy.MinAvailableClients {
		return finish(fmt.Errorf("%w: %d connected, %d required", fl.ErrInsufficientClients, len(avail), svc.strategy.MinAvailableClients))
	}

	sampled, err := svc.pool.Sample(ctx, svc.strategy.MinFitClients, svc.strategy.FractionFit, svc.criterion)
	if err != nil {
		return finish(err)
	}

	global := svc.currentModel()
	results := svc.fanOut(ctx, sampled, global, rec.Config, fitPhase)
	rec.Fit = fl.Summarize(results)

	params, err := svc.strategy.Aggregator.AggregateFit(global, results)
	if err != nil {
		return finish(err)
	}
	if !svc.signature.Compatible(params) {
		return finish(fmt.Errorf("%w: aggregate has signature %v", fl.ErrShapeMismatch, params.Signature()))
	}
	svc.commit(params)
	rec.Outcome = fl.OutcomeSucceeded

	rec.Distributed, rec.Evaluate, rec.EvaluateSkipped = svc.evaluate(ctx, params, rec.Config)

	if svc.evaluator != nil {
		m, err := svc.evaluator.Evaluate(context.WithoutCancel(ctx), params)
		if err != nil {
			svc.logger.Warn("centralized evaluation failed", slog.Int("round", round), slog.Any("error", err))
		} else {
			rec.Centralized = &m
		}
	}

	return finish(nil)
}

// evaluate runs the federated evaluation sub-step. Not reaching its quorum
// skips the sub-step without failing the round.
func (svc *service) evaluate(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (*fl.DistributedMetrics, fl.Participation, string) {
	if !svc.strategy.EvaluateEnabled() {
		return nil, fl.Participation{}, evaluateDisabled
	}

	sampled, err := svc.pool.Sample(ctx, svc.strategy.MinEvaluateClients, svc.strategy.FractionEvaluate, svc.criterion)
	if err != nil {
		return nil, fl.Participation{}, err.Error()
	}
	if len(sampled) == 0 {
		return nil, fl.Participation{}, fl.ErrInsufficientClients.Error()
	}

	results := svc.fanOut(ctx, sampled, params, cfg, evaluatePhase)
	part := fl.Summarize(results)

	m, err := svc.strategy.Aggregator.AggregateEvaluate(results)
	if err != nil {
		return nil, part, err.Error()
	}

	return &m, part, ""
}

// fanOut calls every sampled client concurrently and waits for all of them.
// Calls run detached from ctx cancellation so a cancelled run still lets
// the round in flight settle; the per-call timeout bounds them.
func (svc *service) fanOut(ctx context.Context, sampled []clients.Descriptor, params fl.ParameterSet, cfg fl.RoundConfig, call phase) []fl.ClientResult {
	ctx = context.WithoutCancel(ctx)
	results := make([]fl.ClientResult, len(sampled))

	var g errgroup.Group
	if svc.cfg.MaxConcurrency > 0 {
		g.SetLimit(svc.cfg.MaxConcurrency)
	}
	for i, d := range sampled {
		g.Go(func() error {
			p, err := svc.pool.Proxy(d.ID)
			if err != nil {
				results[i] = fl.ClientResult{
					ClientID: d.ID,
					Status:   fl.Failed,
					Err:      errors.Join(fl.ErrClientCallFailed, err).Error(),
				}

				return nil
			}
			results[i] = call(ctx, p, params.Clone(), cfg)

			return nil
		})
	}
	_ = g.Wait()

	return results
}
