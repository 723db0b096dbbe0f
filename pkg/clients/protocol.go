package clients

import (
	"encoding/json"
	"fmt"

	"github.com/absmach/flcoord/pkg/fl"
)

const (
	KindFit      = "fit"
	KindEvaluate = "evaluate"

	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Topics lays out the MQTT topics used between the coordinator and its
// participants under one domain channel.
type Topics struct {
	base string
}

func NewTopics(domainID, channelID string) Topics {
	return Topics{base: fmt.Sprintf("m/%s/c/%s", domainID, channelID)}
}

func (t Topics) Create() string {
	return t.base + "/control/client/create"
}

func (t Topics) Alive() string {
	return t.base + "/control/client/alive"
}

func (t Topics) Requests(clientID string) string {
	return t.base + "/fl/clients/" + clientID + "/requests"
}

func (t Topics) Results() string {
	return t.base + "/fl/results"
}

func (t Topics) Rounds() string {
	return t.base + "/fl/rounds/complete"
}

// Request asks one participant to fit or evaluate. Parameters are base64
// CBOR as produced by fl.EncodeParameters.
type Request struct {
	RequestID  string         `json:"request_id"`
	ClientID   string         `json:"client_id"`
	Kind       string         `json:"kind"`
	Config     fl.RoundConfig `json:"config"`
	Parameters string         `json:"parameters"`
}

type Response struct {
	RequestID  string             `json:"request_id"`
	ClientID   string             `json:"client_id"`
	Kind       string             `json:"kind"`
	Error      string             `json:"error,omitempty"`
	NumSamples int                `json:"num_samples"`
	Loss       float64            `json:"loss,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	Parameters string             `json:"parameters,omitempty"`
}

// Announcement is published by participants on connect, on every heartbeat
// and as their last will.
type Announcement struct {
	ClientID   string            `json:"client_id"`
	Name       string            `json:"name,omitempty"`
	Status     string            `json:"status"`
	NumSamples int               `json:"num_samples,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Decode converts a decoded JSON message into v.
func Decode(msg map[string]any, v any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, v)
}
