package sdk_test

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/coordinator/api"
	"github.com/absmach/flcoord/coordinator/mocks"
	"github.com/absmach/flcoord/pkg/clients"
	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (sdk.SDK, *mocks.Service) {
	t.Helper()

	svc := new(mocks.Service)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := httptest.NewServer(api.MakeHandler(svc, logger, "sdk-test"))
	t.Cleanup(ts.Close)

	return sdk.NewSDK(sdk.Config{CoordinatorURL: ts.URL + "/"}), svc
}

func TestStatus(t *testing.T) {
	client, svc := setup(t)
	svc.On("Status", mock.Anything).Return(coordinator.RunStatus{RunID: "r", State: coordinator.Aborted, Round: 4, Error: "too many failures"}, nil)

	status, err := client.Status()
	require.NoError(t, err)
	assert.Equal(t, "aborted", status.State)
	assert.Equal(t, 4, status.Round)
	assert.Equal(t, "too many failures", status.Error)
}

func TestCancel(t *testing.T) {
	cases := []struct {
		desc string
		err  error
	}{
		{desc: "accepted"},
		{desc: "nothing to cancel", err: pkgerrors.ErrConflict},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			client, svc := setup(t)
			svc.On("Cancel", mock.Anything).Return(tc.err)

			err := client.Cancel()
			if tc.err != nil {
				assert.ErrorContains(t, err, "409")

				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestHistory(t *testing.T) {
	client, svc := setup(t)
	svc.On("History", mock.Anything).Return(fl.Snapshot{
		RunID:    "r",
		Baseline: &fl.CentralizedMetrics{Loss: 0.69},
		Rounds: []fl.RoundRecord{
			{Round: 1, Outcome: fl.OutcomeSucceeded, Fit: fl.Participation{Sampled: 3, Succeeded: 3}},
		},
	}, nil)

	snap, err := client.History()
	require.NoError(t, err)
	require.Len(t, snap.Rounds, 1)
	assert.Equal(t, 3, snap.Rounds[0].Fit.Succeeded)
	assert.Equal(t, 0.69, snap.Baseline.Loss)

	csv, err := client.HistoryCSV()
	require.NoError(t, err)
	assert.Contains(t, string(csv), "round,outcome")
}

func TestListClients(t *testing.T) {
	client, svc := setup(t)
	svc.On("ListClients", mock.Anything, uint64(2), uint64(5)).Return(clients.Page{
		Offset:  2,
		Limit:   5,
		Total:   3,
		Clients: []clients.Descriptor{{ID: "c", State: clients.Offline}},
	}, nil)

	page, err := client.ListClients(2, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), page.Total)
	require.Len(t, page.Clients, 1)
	assert.Equal(t, clients.Offline, page.Clients[0].State)
}

func TestModel(t *testing.T) {
	client, svc := setup(t)
	params := fl.ParameterSet{fl.Zeros(2, 2), {Shape: []int{2}, Data: []float64{0.5, -0.5}}}
	svc.On("GlobalModel", mock.Anything).Return(coordinator.ModelSnapshot{
		Version:    2,
		Signature:  params.Signature(),
		NumValues:  params.NumValues(),
		Parameters: params,
	}, nil)

	m, err := client.Model(false)
	require.NoError(t, err)
	assert.Nil(t, m.Parameters)
	assert.Equal(t, [][]int{{2, 2}, {2}}, m.Signature)

	m, err = client.Model(true)
	require.NoError(t, err)
	assert.True(t, params.Equal(m.Parameters))
}
