package sdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/absmach/flcoord/pkg/clients"
	"github.com/absmach/flcoord/pkg/fl"
)

const (
	runEndpoint     = "/run"
	historyEndpoint = "/history"
	clientsEndpoint = "/clients"
	modelEndpoint   = "/model"
)

type RunStatus struct {
	RunID               string    `json:"run_id"`
	State               string    `json:"state"`
	Round               int       `json:"round"`
	NumRounds           int       `json:"num_rounds"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	ModelVersion        int       `json:"model_version"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at"`
	Error               string    `json:"error,omitempty"`
}

type Model struct {
	Version    int             `json:"version"`
	Signature  [][]int         `json:"signature"`
	NumValues  int             `json:"num_values"`
	Encoded    string          `json:"parameters,omitempty"`
	Parameters fl.ParameterSet `json:"-"`
}

func (sdk *flSDK) Status() (RunStatus, error) {
	body, err := sdk.processRequest(http.MethodGet, sdk.coordinatorURL+runEndpoint, nil, http.StatusOK)
	if err != nil {
		return RunStatus{}, err
	}

	var s RunStatus
	if err := json.Unmarshal(body, &s); err != nil {
		return RunStatus{}, err
	}

	return s, nil
}

func (sdk *flSDK) Cancel() error {
	_, err := sdk.processRequest(http.MethodPost, sdk.coordinatorURL+runEndpoint+"/cancel", nil, http.StatusAccepted)

	return err
}

func (sdk *flSDK) History() (fl.Snapshot, error) {
	body, err := sdk.processRequest(http.MethodGet, sdk.coordinatorURL+historyEndpoint, nil, http.StatusOK)
	if err != nil {
		return fl.Snapshot{}, err
	}

	var snap fl.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return fl.Snapshot{}, err
	}

	return snap, nil
}

func (sdk *flSDK) HistoryCSV() ([]byte, error) {
	return sdk.processRequest(http.MethodGet, sdk.coordinatorURL+historyEndpoint+".csv", nil, http.StatusOK)
}

func (sdk *flSDK) ListClients(offset, limit uint64) (clients.Page, error) {
	queries := make([]string, 0)
	if offset > 0 {
		queries = append(queries, fmt.Sprintf("offset=%d", offset))
	}
	if limit > 0 {
		queries = append(queries, fmt.Sprintf("limit=%d", limit))
	}
	url := sdk.coordinatorURL + clientsEndpoint
	if len(queries) > 0 {
		url += "?" + strings.Join(queries, "&")
	}

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return clients.Page{}, err
	}

	var page clients.Page
	if err := json.Unmarshal(body, &page); err != nil {
		return clients.Page{}, err
	}

	return page, nil
}

func (sdk *flSDK) Model(withParameters bool) (Model, error) {
	url := sdk.coordinatorURL + modelEndpoint
	if withParameters {
		url += "?parameters=true"
	}

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return Model{}, err
	}

	var m Model
	if err := json.Unmarshal(body, &m); err != nil {
		return Model{}, err
	}
	if m.Encoded != "" {
		if m.Parameters, err = fl.DecodeParameters(m.Encoded); err != nil {
			return Model{}, err
		}
	}

	return m, nil
}
