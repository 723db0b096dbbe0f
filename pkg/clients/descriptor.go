package clients

import (
	"fmt"
	"time"
)

type State uint8

const (
	Available State = iota
	Busy
	Offline
)

func (s State) String() string {
	switch s {
	case Available:
		return "available"
	case Busy:
		return "busy"
	case Offline:
		return "offline"
	default:
		return fmt.Sprintf("state(%d)", s)
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "available":
		*s = Available
	case "busy":
		*s = Busy
	case "offline":
		*s = Offline
	default:
		return fmt.Errorf("unknown client state %q", string(b))
	}

	return nil
}

// Descriptor is what the coordinator knows about a connected client.
type Descriptor struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	State        State             `json:"state"`
	NumSamples   int               `json:"num_samples,omitempty"`
	Properties   map[string]string `json:"properties,omitempty"`
	RegisteredAt time.Time         `json:"registered_at"`
	LastSeen     time.Time         `json:"last_seen"`
}

type Page struct {
	Offset  uint64       `json:"offset"`
	Limit   uint64       `json:"limit"`
	Total   uint64       `json:"total"`
	Clients []Descriptor `json:"clients"`
}

// Criterion filters the clients eligible for sampling.
type Criterion interface {
	Select(d Descriptor) bool
}

type CriterionFunc func(d Descriptor) bool

func (f CriterionFunc) Select(d Descriptor) bool {
	return f(d)
}

// WithProperty selects clients announcing key=value.
func WithProperty(key, value string) Criterion {
	return CriterionFunc(func(d Descriptor) bool {
		return d.Properties[key] == value
	})
}

// MinSamples selects clients holding at least n local samples.
func MinSamples(n int) Criterion {
	return CriterionFunc(func(d Descriptor) bool {
		return d.NumSamples >= n
	})
}
