package mocks

import (
	"context"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/pkg/clients"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/stretchr/testify/mock"
)

var _ coordinator.Service = (*Service)(nil)

// Service is a mock implementation of coordinator.Service.
type Service struct {
	mock.Mock
}

func (m *Service) Run(ctx context.Context) (fl.Snapshot, error) {
	args := m.Called(ctx)

	return args.Get(0).(fl.Snapshot), args.Error(1)
}

func (m *Service) Cancel(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *Service) Status(ctx context.Context) (coordinator.RunStatus, error) {
	args := m.Called(ctx)

	return args.Get(0).(coordinator.RunStatus), args.Error(1)
}

func (m *Service) History(ctx context.Context) (fl.Snapshot, error) {
	args := m.Called(ctx)

	return args.Get(0).(fl.Snapshot), args.Error(1)
}

func (m *Service) ListClients(ctx context.Context, offset, limit uint64) (clients.Page, error) {
	args := m.Called(ctx, offset, limit)

	return args.Get(0).(clients.Page), args.Error(1)
}

func (m *Service) GlobalModel(ctx context.Context) (coordinator.ModelSnapshot, error) {
	args := m.Called(ctx)

	return args.Get(0).(coordinator.ModelSnapshot), args.Error(1)
}
