package api

import (
	"context"
	"errors"

	"github.com/absmach/flcoord/coordinator"
	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	"github.com/absmach/flcoord/pkg/fl"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-kit/kit/endpoint"
)

func statusEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		status, err := svc.Status(ctx)
		if err != nil {
			return statusResponse{}, err
		}

		return statusResponse{RunStatus: status}, nil
	}
}

func cancelEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		if err := svc.Cancel(ctx); err != nil {
			return cancelResponse{}, err
		}

		return cancelResponse{}, nil
	}
}

func historyEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		snap, err := svc.History(ctx)
		if err != nil {
			return historyResponse{}, err
		}

		return historyResponse{Snapshot: snap}, nil
	}
}

func listClientsEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listClientsReq)
		if !ok {
			return listClientsResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return listClientsResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		page, err := svc.ListClients(ctx, req.offset, req.limit)
		if err != nil {
			return listClientsResponse{}, err
		}

		return listClientsResponse{Page: page}, nil
	}
}

func modelEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(modelReq)
		if !ok {
			return modelResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}

		model, err := svc.GlobalModel(ctx)
		if err != nil {
			return modelResponse{}, err
		}
		res := modelResponse{ModelSnapshot: model}
		if req.withParameters {
			res.Parameters, err = fl.EncodeParameters(model.Parameters)
			if err != nil {
				return modelResponse{}, err
			}
		}

		return res, nil
	}
}
