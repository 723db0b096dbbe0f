package api_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/coordinator/api"
	"github.com/absmach/flcoord/coordinator/mocks"
	"github.com/absmach/flcoord/pkg/clients"
	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) (*httptest.Server, *mocks.Service) {
	t.Helper()

	svc := new(mocks.Service)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := httptest.NewServer(api.MakeHandler(svc, logger, "test"))
	t.Cleanup(ts.Close)

	return ts, svc
}

func TestStatusEndpoint(t *testing.T) {
	ts, svc := newServer(t)
	svc.On("Status", mock.Anything).Return(coordinator.RunStatus{
		RunID:     "run-1",
		State:     coordinator.Running,
		Round:     2,
		NumRounds: 5,
	}, nil)

	res, err := http.Get(ts.URL + "/run")
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "running", body["state"])
	assert.Equal(t, float64(2), body["round"])
}

func TestCancelEndpoint(t *testing.T) {
	cases := []struct {
		desc   string
		err    error
		status int
	}{
		{desc: "cancel running run", status: http.StatusAccepted},
		{desc: "cancel without run", err: pkgerrors.ErrConflict, status: http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			ts, svc := newServer(t)
			svc.On("Cancel", mock.Anything).Return(tc.err)

			res, err := http.Post(ts.URL+"/run/cancel", "application/json", nil)
			require.NoError(t, err)
			defer res.Body.Close()

			assert.Equal(t, tc.status, res.StatusCode)
			svc.AssertExpectations(t)
		})
	}
}

func TestListClientsEndpoint(t *testing.T) {
	cases := []struct {
		desc   string
		query  string
		offset uint64
		limit  uint64
		status int
		call   bool
	}{
		{desc: "default paging", query: "", offset: 0, limit: 100, status: http.StatusOK, call: true},
		{desc: "explicit paging", query: "?offset=5&limit=10", offset: 5, limit: 10, status: http.StatusOK, call: true},
		{desc: "limit too large", query: "?limit=1000", status: http.StatusBadRequest},
		{desc: "malformed offset", query: "?offset=abc", status: http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			ts, svc := newServer(t)
			if tc.call {
				svc.On("ListClients", mock.Anything, tc.offset, tc.limit).Return(clients.Page{
					Offset:  tc.offset,
					Limit:   tc.limit,
					Total:   1,
					Clients: []clients.Descriptor{{ID: "client-1", NumSamples: 40}},
				}, nil)
			}

			res, err := http.Get(ts.URL + "/clients" + tc.query)
			require.NoError(t, err)
			defer res.Body.Close()

			assert.Equal(t, tc.status, res.StatusCode)
			svc.AssertExpectations(t)
		})
	}
}

func TestModelEndpoint(t *testing.T) {
	ts, svc := newServer(t)
	params := fl.ParameterSet{{Shape: []int{2}, Data: []float64{1, 2}}}
	svc.On("GlobalModel", mock.Anything).Return(coordinator.ModelSnapshot{
		Version:    3,
		Signature:  params.Signature(),
		NumValues:  2,
		Parameters: params,
	}, nil)

	res, err := http.Get(ts.URL + "/model?parameters=true")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body struct {
		Version    int    `json:"version"`
		Parameters string `json:"parameters"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, 3, body.Version)

	decoded, err := fl.DecodeParameters(body.Parameters)
	require.NoError(t, err)
	assert.True(t, params.Equal(decoded))
}

func TestHistoryEndpoints(t *testing.T) {
	ts, svc := newServer(t)
	svc.On("History", mock.Anything).Return(fl.Snapshot{
		RunID: "run-1",
		Rounds: []fl.RoundRecord{
			{Round: 1, Outcome: fl.OutcomeSucceeded, Centralized: &fl.CentralizedMetrics{Loss: 0.4, Accuracy: 0.8}},
			{Round: 2, Outcome: fl.OutcomeFailed, Reason: "not enough clients"},
		},
	}, nil)

	res, err := http.Get(ts.URL + "/history")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var snap fl.Snapshot
	require.NoError(t, json.NewDecoder(res.Body).Decode(&snap))
	require.Len(t, snap.Rounds, 2)
	assert.Equal(t, fl.OutcomeFailed, snap.Rounds[1].Outcome)

	res, err = http.Get(ts.URL + "/history.csv")
	require.NoError(t, err)
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "round,outcome"))
}

func TestHealth(t *testing.T) {
	ts, _ := newServer(t)

	res, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "pass", body["status"])
	assert.Equal(t, "coordinator", body["description"])
}
