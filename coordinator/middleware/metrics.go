package middleware

import (
	"context"
	"time"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/pkg/clients"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/go-kit/kit/metrics"
)

var _ coordinator.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     coordinator.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc coordinator.Service) coordinator.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) Run(ctx context.Context) (fl.Snapshot, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "run").Add(1)
		mm.latency.With("method", "run").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Run(ctx)
}

func (mm *metricsMiddleware) Cancel(ctx context.Context) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "cancel").Add(1)
		mm.latency.With("method", "cancel").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Cancel(ctx)
}

func (mm *metricsMiddleware) Status(ctx context.Context) (coordinator.RunStatus, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "status").Add(1)
		mm.latency.With("method", "status").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Status(ctx)
}

func (mm *metricsMiddleware) History(ctx context.Context) (fl.Snapshot, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "history").Add(1)
		mm.latency.With("method", "history").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.History(ctx)
}

func (mm *metricsMiddleware) ListClients(ctx context.Context, offset, limit uint64) (clients.Page, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-clients").Add(1)
		mm.latency.With("method", "list-clients").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListClients(ctx, offset, limit)
}

func (mm *metricsMiddleware) GlobalModel(ctx context.Context) (coordinator.ModelSnapshot, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "global-model").Add(1)
		mm.latency.With("method", "global-model").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GlobalModel(ctx)
}
