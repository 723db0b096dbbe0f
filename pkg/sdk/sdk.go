package sdk

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/absmach/flcoord/pkg/clients"
	"github.com/absmach/flcoord/pkg/fl"
)

const CTJSON string = "application/json"

type SDK interface {
	// Status returns the state of the coordinator's run.
	//
	// example:
	//  status, _ := sdk.Status()
	//  fmt.Println(status.State, status.Round)
	Status() (RunStatus, error)

	// Cancel stops the run after the round in flight.
	Cancel() error

	// History returns every round record of the run.
	//
	// example:
	//  snap, _ := sdk.History()
	//  for _, r := range snap.Rounds {
	//    fmt.Println(r.Round, r.Outcome)
	//  }
	History() (fl.Snapshot, error)

	// HistoryCSV returns the history rendered as CSV.
	HistoryCSV() ([]byte, error)

	// ListClients lists registered clients.
	//
	// example:
	//  page, _ := sdk.ListClients(0, 10)
	//  fmt.Println(page.Total)
	ListClients(offset, limit uint64) (clients.Page, error)

	// Model returns the global model. Parameters are only fetched when
	// withParameters is set.
	Model(withParameters bool) (Model, error)
}

type flSDK struct {
	coordinatorURL string
	client         *http.Client
}

type Config struct {
	CoordinatorURL  string
	TLSVerification bool
}

func NewSDK(cfg Config) SDK {
	return &flSDK{
		coordinatorURL: strings.TrimSuffix(cfg.CoordinatorURL, "/"),
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			},
		},
	}
}

type errorRes struct {
	Error string `json:"error"`
}

func (sdk *flSDK) processRequest(method, reqURL string, data []byte, expectedRespCode int) ([]byte, error) {
	req, err := http.NewRequest(method, reqURL, bytes.NewReader(data))
	if err != nil {
		return []byte{}, err
	}

	req.Header.Add("Content-Type", CTJSON)

	resp, err := sdk.client.Do(req)
	if err != nil {
		return []byte{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte{}, err
	}

	if resp.StatusCode != expectedRespCode {
		var e errorRes
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return []byte{}, fmt.Errorf("unexpected response code %d: %s", resp.StatusCode, e.Error)
		}

		return []byte{}, fmt.Errorf("unexpected response code: %d", resp.StatusCode)
	}

	return body, nil
}
