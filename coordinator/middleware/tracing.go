package middleware

import (
	"context"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/pkg/clients"
	"github.com/absmach/flcoord/pkg/fl"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ coordinator.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    coordinator.Service
}

func Tracing(tracer trace.Tracer, svc coordinator.Service) coordinator.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) Run(ctx context.Context) (snap fl.Snapshot, err error) {
	ctx, span := tm.tracer.Start(ctx, "run")
	defer func() {
		span.SetAttributes(
			attribute.String("run_id", snap.RunID),
			attribute.Int("rounds", len(snap.Rounds)),
		)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	return tm.svc.Run(ctx)
}

func (tm *tracing) Cancel(ctx context.Context) error {
	ctx, span := tm.tracer.Start(ctx, "cancel")
	defer span.End()

	return tm.svc.Cancel(ctx)
}

func (tm *tracing) Status(ctx context.Context) (coordinator.RunStatus, error) {
	ctx, span := tm.tracer.Start(ctx, "status")
	defer span.End()

	return tm.svc.Status(ctx)
}

func (tm *tracing) History(ctx context.Context) (fl.Snapshot, error) {
	ctx, span := tm.tracer.Start(ctx, "history")
	defer span.End()

	return tm.svc.History(ctx)
}

func (tm *tracing) ListClients(ctx context.Context, offset, limit uint64) (clients.Page, error) {
	ctx, span := tm.tracer.Start(ctx, "list-clients", trace.WithAttributes(
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.ListClients(ctx, offset, limit)
}

func (tm *tracing) GlobalModel(ctx context.Context) (coordinator.ModelSnapshot, error) {
	ctx, span := tm.tracer.Start(ctx, "global-model")
	defer span.End()

	return tm.svc.GlobalModel(ctx)
}
