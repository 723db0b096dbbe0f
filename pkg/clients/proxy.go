package clients

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/absmach/flcoord/pkg/fl"
)

// Proxy invokes a single client with a per-call deadline and turns every
// outcome into a ClientResult. It never returns an error.
type Proxy struct {
	id      string
	client  Client
	timeout time.Duration
}

// DefaultCallTimeout bounds client calls when no positive timeout is set.
const DefaultCallTimeout = time.Minute

// NewProxy returns a proxy whose calls time out after timeout, or after
// DefaultCallTimeout when timeout is not positive.
func NewProxy(id string, client Client, timeout time.Duration) *Proxy {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	return &Proxy{
		id:      id,
		client:  client,
		timeout: timeout,
	}
}

func (p *Proxy) ID() string {
	return p.id
}

func (p *Proxy) Timeout() time.Duration {
	return p.timeout
}

func (p *Proxy) Fit(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) fl.ClientResult {
	start := time.Now()
	res, status, err := call(ctx, p.timeout, func(ctx context.Context) (FitRes, error) {
		return p.client.Fit(ctx, FitIns{Parameters: params, Config: cfg})
	})

	result := fl.ClientResult{ClientID: p.id, Status: status}
	if err == nil {
		switch {
		case res.NumSamples <= 0:
			err = fmt.Errorf("%w: got %d", fl.ErrInvalidSampleCount, res.NumSamples)
		case res.Parameters.Validate() != nil:
			err = res.Parameters.Validate()
		case !params.Compatible(res.Parameters):
			err = fmt.Errorf("%w: got %v, want %v", fl.ErrShapeMismatch, res.Parameters.Signature(), params.Signature())
		}
		if err != nil {
			result.Status = fl.Failed
		} else {
			result.Parameters = res.Parameters
			result.NumSamples = res.NumSamples
			result.Metrics = res.Metrics
		}
	}
	if err != nil {
		result.Err = err.Error()
	}
	result.Duration = time.Since(start)

	return result
}

func (p *Proxy) Evaluate(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) fl.ClientResult {
	start := time.Now()
	res, status, err := call(ctx, p.timeout, func(ctx context.Context) (EvaluateRes, error) {
		return p.client.Evaluate(ctx, EvaluateIns{Parameters: params, Config: cfg})
	})

	result := fl.ClientResult{ClientID: p.id, Status: status}
	if err == nil {
		switch {
		case res.NumSamples <= 0:
			err = fmt.Errorf("%w: got %d", fl.ErrInvalidSampleCount, res.NumSamples)
		case math.IsNaN(res.Loss) || math.IsInf(res.Loss, 0):
			err = fmt.Errorf("%w: loss is %v", fl.ErrClientCallFailed, res.Loss)
		}
		if err != nil {
			result.Status = fl.Failed
		} else {
			result.Loss = res.Loss
			result.NumSamples = res.NumSamples
			result.Metrics = res.Metrics
		}
	}
	if err != nil {
		result.Err = err.Error()
	}
	result.Duration = time.Since(start)

	return result
}

type outcome[T any] struct {
	res T
	err error
}

// call runs fn in its own goroutine so a client that ignores its context
// cannot hold the caller past the deadline. A late result is dropped.
func call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, fl.Status, error) {
	var zero T
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{err: fmt.Errorf("client panicked: %v", r)}
			}
		}()
		res, err := fn(ctx)
		done <- outcome[T]{res: res, err: err}
	}()

	select {
	case o := <-done:
		switch {
		case o.err == nil:
			return o.res, fl.Success, nil
		case errors.Is(o.err, context.DeadlineExceeded):
			return zero, fl.TimedOut, fmt.Errorf("%w: %w", fl.ErrClientCallTimedOut, o.err)
		default:
			return zero, fl.Failed, fmt.Errorf("%w: %w", fl.ErrClientCallFailed, o.err)
		}
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fl.TimedOut, fmt.Errorf("%w: %w", fl.ErrClientCallTimedOut, ctx.Err())
		}

		return zero, fl.Failed, fmt.Errorf("%w: %w", fl.ErrClientCallFailed, ctx.Err())
	}
}
