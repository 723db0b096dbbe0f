package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/pkg/api"
	"github.com/absmach/flcoord/pkg/report"
	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func MakeHandler(svc coordinator.Service, logger *slog.Logger, instanceID string) http.Handler {
	mux := chi.NewRouter()

	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(apiutil.LoggingErrorEncoder(logger, api.EncodeError)),
	}

	mux.Route("/run", func(r chi.Router) {
		r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
			statusEndpoint(svc),
			decodeEmptyReq,
			api.EncodeResponse,
			opts...,
		), "run-status").ServeHTTP)
		r.Post("/cancel", otelhttp.NewHandler(kithttp.NewServer(
			cancelEndpoint(svc),
			decodeEmptyReq,
			api.EncodeResponse,
			opts...,
		), "cancel-run").ServeHTTP)
	})
	mux.Get("/history", otelhttp.NewHandler(kithttp.NewServer(
		historyEndpoint(svc),
		decodeEmptyReq,
		api.EncodeResponse,
		opts...,
	), "get-history").ServeHTTP)
	mux.Get("/history.csv", otelhttp.NewHandler(historyCSV(svc, logger), "get-history-csv").ServeHTTP)
	mux.Get("/clients", otelhttp.NewHandler(kithttp.NewServer(
		listClientsEndpoint(svc),
		decodeListClientsReq,
		api.EncodeResponse,
		opts...,
	), "list-clients").ServeHTTP)
	mux.Get("/model", otelhttp.NewHandler(kithttp.NewServer(
		modelEndpoint(svc),
		decodeModelReq,
		api.EncodeResponse,
		opts...,
	), "get-model").ServeHTTP)

	mux.Get("/health", supermq.Health("coordinator", instanceID))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func historyCSV(svc coordinator.Service, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap, err := svc.History(r.Context())
		if err != nil {
			apiutil.LoggingErrorEncoder(logger, api.EncodeError)(r.Context(), err, w)

			return
		}
		w.Header().Set("Content-Type", "text/csv")
		if err := report.WriteCSV(w, snap); err != nil {
			logger.Warn("failed to write history csv", slog.Any("error", err))
		}
	})
}

func decodeEmptyReq(_ context.Context, _ *http.Request) (any, error) {
	return emptyReq{}, nil
}

func decodeListClientsReq(_ context.Context, r *http.Request) (any, error) {
	offset, err := apiutil.ReadNumQuery[uint64](r, api.OffsetKey, api.DefOffset)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}
	limit, err := apiutil.ReadNumQuery[uint64](r, api.LimitKey, api.DefLimit)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	return listClientsReq{offset: offset, limit: limit}, nil
}

func decodeModelReq(_ context.Context, r *http.Request) (any, error) {
	withParameters, err := apiutil.ReadBoolQuery(r, api.ParametersKey, false)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	return modelReq{withParameters: withParameters}, nil
}
